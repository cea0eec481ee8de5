package main

import (
	"fmt"
	"os"

	"github.com/pkg/browser"
	"github.com/spf13/cobra"

	"github.com/ibeckermayer/pageprobe/internal/config"
)

func newOpenCommand(flags *globalFlags) *cobra.Command {
	return &cobra.Command{
		Use:       "open <config|shots>",
		Short:     "Open the config file or the screenshot directory",
		Args:      cobra.ExactArgs(1),
		ValidArgs: []string{"config", "shots"},
		RunE: func(cmd *cobra.Command, args []string) error {
			var path string

			switch args[0] {
			case "config":
				path = flags.configPath
				if path == "" {
					p, err := config.ConfigPath()
					if err != nil {
						return err
					}
					path = p
				}
				if _, err := os.Stat(path); os.IsNotExist(err) {
					if err := config.Default().SaveFile(path); err != nil {
						return fmt.Errorf("failed to write default config: %w", err)
					}
				}
			case "shots":
				cfg, err := config.LoadOrDefault(flags.configPath)
				if err != nil {
					return err
				}
				path = cfg.Output.ScreenshotDir
				if cmd.Flags().Changed("screenshots") {
					path = flags.screenshotDir
				}
				if err := os.MkdirAll(path, 0755); err != nil {
					return err
				}
			default:
				return fmt.Errorf("unknown target: %s", args[0])
			}

			if err := browser.OpenFile(path); err != nil {
				return fmt.Errorf("failed to open: %w", err)
			}
			return nil
		},
	}
}
