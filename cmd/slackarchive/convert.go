package main

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/agentworkforce/slackarchive/internal/archivestore"
	"github.com/agentworkforce/slackarchive/internal/config"
	"github.com/agentworkforce/slackarchive/internal/legacy"
)

func init() {
	rootCmd.AddCommand(convertCmd)
	convertCmd.Flags().String("output", config.DefaultOutput, "archive to merge the converted channels into")
	convertCmd.Flags().String("emoji-table", "", "emoji table JSON (default: built-in)")
}

var convertCmd = &cobra.Command{
	Use:   "convert GLOB",
	Short: "Import <channel>_users.json and <channel>_replies.json pairs",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		cfg, err := loadConfig(cmd)
		if err != nil {
			return err
		}
		if err := cfg.Validate(); err != nil {
			return err
		}
		logger, err := newLogger(cfg)
		if err != nil {
			return err
		}
		defer func() { _ = logger.Sync() }()

		emoji, err := loadEmoji(cfg.EmojiTable)
		if err != nil {
			return err
		}
		store, err := openStore(cfg.Output, logger, archivestore.Options{})
		if err != nil {
			return err
		}
		defer store.Close()

		a, err := store.LoadOrEmpty(cmd.Context())
		if err != nil {
			return err
		}
		result, err := legacy.NewConverter(emoji, logger).Convert(args[0], a)
		if err != nil {
			return err
		}
		if err := store.Save(cmd.Context(), a); err != nil {
			return err
		}
		fmt.Fprintf(cmd.OutOrStdout(), "converted %d channels (%d skipped), %d new threads into %s\n",
			len(result.Channels), len(result.Skipped), result.Threads, store)
		return nil
	},
}
