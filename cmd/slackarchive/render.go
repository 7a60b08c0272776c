package main

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/agentworkforce/slackarchive/internal/archivestore"
	"github.com/agentworkforce/slackarchive/internal/config"
	"github.com/agentworkforce/slackarchive/internal/render"
)

func init() {
	rootCmd.AddCommand(renderCmd)
	renderCmd.Flags().String("input", config.DefaultOutput, "archive to render")
	renderCmd.Flags().String("out", "site", "output directory")
	renderCmd.Flags().String("title", "", "index page title")
	renderCmd.Flags().Bool("watch", false, "re-render whenever a file archive changes")
}

var renderCmd = &cobra.Command{
	Use:   "render",
	Short: "Write the archive as static HTML pages",
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

		renderer, err := render.New(render.Options{Title: cfg.Title, Logger: logger})
		if err != nil {
			return err
		}

		if watch, _ := cmd.Flags().GetBool("watch"); watch {
			path, ok := store.LocalPath()
			if !ok {
				return fmt.Errorf("%w: --watch needs a file archive, got %s", config.ErrInvalidConfig, store)
			}
			return renderer.Watch(cmd.Context(), path, store.Require, cfg.RenderDir)
		}

		a, err := store.Require(cmd.Context())
		if err != nil {
			return err
		}
		if err := renderer.Render(a, cfg.RenderDir); err != nil {
			return err
		}
		fmt.Fprintf(cmd.OutOrStdout(), "rendered %d channels to %s\n", len(a.ChannelNames()), cfg.RenderDir)
		return nil
	},
}
