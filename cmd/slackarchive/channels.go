package main

import (
	"fmt"

	"github.com/spf13/cobra"
	"github.com/spf13/pflag"

	"github.com/agentworkforce/slackarchive/internal/archive"
)

func init() {
	rootCmd.AddCommand(channelsCmd)
	addRemoteFlags(channelsCmd.Flags())
}

func addRemoteFlags(flags *pflag.FlagSet) {
	flags.String("token", "", "API token (or SLACKARCHIVE_TOKEN, SLACK_BOT_TOKEN)")
	flags.String("base-url", "", "Web API base URL")
}

var channelsCmd = &cobra.Command{
	Use:   "channels",
	Short: "List every channel the token can read",
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		cfg, err := loadConfig(cmd)
		if err != nil {
			return err
		}
		if err := cfg.ValidateRemote(); err != nil {
			return err
		}
		logger, err := newLogger(cfg)
		if err != nil {
			return err
		}
		defer func() { _ = logger.Sync() }()

		syncer, err := archive.NewSyncer(newRemoteClient(cfg), archive.SyncerOptions{Logger: logger})
		if err != nil {
			return err
		}
		channels, err := syncer.ListChannels(cmd.Context())
		if err != nil {
			return err
		}
		for _, ch := range channels {
			fmt.Fprintf(cmd.OutOrStdout(), "%s %s\n", ch.Name, ch.ID)
		}
		return nil
	},
}
