package main

import (
	"fmt"

	"github.com/dustin/go-humanize"
	"github.com/spf13/cobra"

	"github.com/agentworkforce/slackarchive/internal/archivestore"
	"github.com/agentworkforce/slackarchive/internal/config"
)

func init() {
	rootCmd.AddCommand(validateCmd)
	validateCmd.Flags().String("input", config.DefaultOutput, "archive to check")
}

var validateCmd = &cobra.Command{
	Use:   "validate",
	Short: "Check that an archive exists and matches the archive schema",
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		cfg, err := loadConfig(cmd)
		if err != nil {
			return err
		}
		logger, err := newLogger(cfg)
		if err != nil {
			return err
		}
		defer func() { _ = logger.Sync() }()

		store, err := openStore(cfg.Input, logger, archivestore.Options{})
		if err != nil {
			return err
		}
		defer store.Close()

		a, err := store.Require(cmd.Context())
		if err != nil {
			return err
		}
		fmt.Fprintf(cmd.OutOrStdout(), "%s: ok, %s channels, %s threads\n",
			store,
			humanize.Comma(int64(len(a.ChannelNames()))),
			humanize.Comma(int64(a.ThreadCount())),
		)
		return nil
	},
}
