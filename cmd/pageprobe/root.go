package main

import (
	"fmt"
	"os"
	"runtime"
	"runtime/debug"
	"time"

	"github.com/spf13/cobra"

	"github.com/ibeckermayer/pageprobe/internal/config"
)

// globalFlags are the persistent flags shared by every subcommand.
type globalFlags struct {
	configPath    string
	baseURL       string
	username      string
	password      string
	driver        string
	headless      bool
	screenshotDir string
	slowMotion    time.Duration
	timeout       time.Duration
	noHistory     bool
}

func newRootCommand() *cobra.Command {
	flags := &globalFlags{}

	rootCmd := &cobra.Command{
		Use:   "pageprobe",
		Short: "Log into a web app and probe its pages with a real browser",
		Long: `pageprobe drives a Chromium browser through the login form of a web
application, then visits each configured page, checks DOM facts and saves a
screenshot per page.

Credentials come from PAGEPROBE_USERNAME and PAGEPROBE_PASSWORD or from
--username and --password.`,
		Version:       Version,
		SilenceUsage:  true,
		SilenceErrors: true,
	}

	rootCmd.SetVersionTemplate(fmt.Sprintf("{{.Name}} version {{.Version}}\nBuild time: %s\nGo version: %s\nPlatform: %s/%s\n",
		BuildTime, goVersion(), runtime.GOOS, runtime.GOARCH))

	pf := rootCmd.PersistentFlags()
	pf.StringVar(&flags.configPath, "config", "", "Config file path (default is the user config dir)")
	pf.StringVar(&flags.baseURL, "base-url", "", "Base URL of the application under test")
	pf.StringVar(&flags.username, "username", "", "Login username (default $"+config.EnvUsername+")")
	pf.StringVar(&flags.password, "password", "", "Login password (default $"+config.EnvPassword+")")
	pf.StringVar(&flags.driver, "driver", "", "Browser driver: chromedp or playwright")
	pf.BoolVar(&flags.headless, "headless", true, "Run the browser without a window")
	pf.StringVar(&flags.screenshotDir, "screenshots", "", "Directory for screenshots and results.json")
	pf.DurationVar(&flags.slowMotion, "slow-motion", 0, "Pause after each browser action")
	pf.DurationVar(&flags.timeout, "timeout", 0, "Network idle timeout per page")
	pf.BoolVar(&flags.noHistory, "no-history", false, "Do not record the run in the history database")

	rootCmd.AddCommand(newLoginCommand(flags))
	rootCmd.AddCommand(newProbeCommand(flags))
	rootCmd.AddCommand(newRunCommand(flags))
	rootCmd.AddCommand(newHistoryCommand())
	rootCmd.AddCommand(newOpenCommand(flags))

	return rootCmd
}

// loadConfig reads the config file and applies flag and env overrides.
// Flags win over the file; env only fills credentials left empty.
func loadConfig(cmd *cobra.Command, flags *globalFlags) (*config.Config, error) {
	cfg, err := config.LoadOrDefault(flags.configPath)
	if err != nil {
		return nil, fmt.Errorf("failed to load config: %w", err)
	}

	changed := cmd.Flags().Changed
	if changed("base-url") {
		cfg.Site.BaseURL = flags.baseURL
	}
	if changed("driver") {
		cfg.Browser.Driver = flags.driver
	}
	if changed("headless") {
		cfg.Browser.Headless = flags.headless
	}
	if changed("screenshots") {
		cfg.Output.ScreenshotDir = flags.screenshotDir
	}
	if changed("slow-motion") {
		cfg.Browser.SlowMotion = config.Duration{Duration: flags.slowMotion}
	}
	if changed("timeout") {
		cfg.Browser.NetworkIdleTimeout = config.Duration{Duration: flags.timeout}
	}
	if flags.noHistory {
		cfg.Output.History = false
	}

	cfg.Credentials.Username = flags.username
	cfg.Credentials.Password = flags.password
	cfg.ApplyEnv(os.Getenv)

	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// goVersion returns the Go version used to build the binary
func goVersion() string {
	if info, ok := debug.ReadBuildInfo(); ok {
		return info.GoVersion
	}
	return "unknown"
}
