package main

import (
	"errors"
	"fmt"
	"log"
	"os"
	"os/signal"
	"strings"
	"syscall"

	"github.com/spf13/cobra"

	"github.com/ibeckermayer/pageprobe/internal/config"
	"github.com/ibeckermayer/pageprobe/internal/driver"
	"github.com/ibeckermayer/pageprobe/internal/prober"
	"github.com/ibeckermayer/pageprobe/internal/report"
	"github.com/ibeckermayer/pageprobe/internal/store"
	"github.com/ibeckermayer/pageprobe/internal/types"
)

// errRunFailed is returned when a run completed but did not pass. Its
// details have already been printed.
var errRunFailed = errors.New("run failed")

func newLoginCommand(flags *globalFlags) *cobra.Command {
	return &cobra.Command{
		Use:   "login",
		Short: "Log in and report the outcome",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := loadConfig(cmd, flags)
			if err != nil {
				return err
			}
			return execute(cmd, cfg, runOptions(cfg, nil))
		},
	}
}

func newProbeCommand(flags *globalFlags) *cobra.Command {
	var discover string

	cmd := &cobra.Command{
		Use:   "probe <path>...",
		Short: "Log in and probe the given paths with the default checks",
		Long: `Log in and probe the given paths with the default checks.

With --discover, the first path is also searched for links matching the
selector, and every same-site link found is checked after the given paths:

  pageprobe probe /admin --discover 'a[href*="/admin"]'`,
		Args: cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := loadConfig(cmd, flags)
			if err != nil {
				return err
			}
			targets := make([]types.ProbeTarget, 0, len(args))
			for _, path := range args {
				targets = append(targets, types.ProbeTarget{
					Name:    path,
					Path:    path,
					Queries: prober.DefaultQueries(),
				})
			}
			opts := runOptions(cfg, targets)
			opts.Discover = discover
			return execute(cmd, cfg, opts)
		},
	}

	cmd.Flags().StringVar(&discover, "discover", "", "Also check same-site links matching this selector on the first path")
	return cmd
}

func newRunCommand(flags *globalFlags) *cobra.Command {
	return &cobra.Command{
		Use:   "run",
		Short: "Log in and probe every target in the config file",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := loadConfig(cmd, flags)
			if err != nil {
				return err
			}
			if len(cfg.Targets) == 0 {
				return fmt.Errorf("no targets configured")
			}
			return execute(cmd, cfg, runOptions(cfg, cfg.Targets))
		},
	}
}

// execute runs one session, prints the report and records it. Options
// without targets only log in.
func execute(cmd *cobra.Command, cfg *config.Config, opts prober.RunOptions) error {
	launcher, err := driver.New(cfg.Browser.Driver)
	if err != nil {
		return err
	}

	ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	out := cmd.OutOrStdout()
	opts.OnLogin = func(o types.LoginOutcome) {
		fmt.Fprintln(out, report.LoginLine(o))
	}
	opts.OnResult = func(res types.ProbeResult) {
		fmt.Fprintln(out, report.Line(res))
	}

	r := prober.Run(ctx, launcher, opts)
	fmt.Fprint(out, report.Summary(r))

	if path, err := store.SaveResults(cfg.Output.ScreenshotDir, r); err != nil {
		log.Printf("Failed to save results: %v", err)
	} else {
		log.Printf("Results written to %s", path)
	}
	if cfg.Output.History {
		recordHistory(r)
	}

	if !r.OK() {
		return errRunFailed
	}
	return nil
}

func recordHistory(r *types.RunReport) {
	path, err := store.HistoryPath()
	if err != nil {
		log.Printf("Failed to locate history: %v", err)
		return
	}
	s, err := store.New(path)
	if err != nil {
		log.Printf("Failed to open history: %v", err)
		return
	}
	defer s.Close()
	if err := s.SaveRun(r); err != nil {
		log.Printf("Failed to record run: %v", err)
	}
}

// runOptions maps the config onto one prober run.
func runOptions(cfg *config.Config, targets []types.ProbeTarget) prober.RunOptions {
	return prober.RunOptions{
		Session: prober.SessionOptions{
			BaseURL:            strings.TrimRight(cfg.Site.BaseURL, "/"),
			Headless:           cfg.Browser.Headless,
			SlowMotion:         cfg.Browser.SlowMotion.Duration,
			Width:              cfg.Browser.WindowWidth,
			Height:             cfg.Browser.WindowHeight,
			NavigationTimeout:  cfg.Browser.NavigationTimeout.Duration,
			NetworkIdleTimeout: cfg.Browser.NetworkIdleTimeout.Duration,
			ScreenshotDir:      cfg.Output.ScreenshotDir,
		},
		Credentials: cfg.Credentials,
		Login: prober.LoginForm{
			Path:              cfg.Login.Path,
			UsernameSelectors: cfg.Login.UsernameSelectors,
			PasswordSelectors: cfg.Login.PasswordSelectors,
			SubmitSelectors:   cfg.Login.SubmitSelectors,
			ErrorSelectors:    cfg.Login.ErrorSelectors,
			EndpointPattern:   cfg.Login.EndpointPattern,
			SuccessPattern:    cfg.Login.SuccessPattern,
			SessionCookie:     cfg.Login.SessionCookie,
			Timeout:           cfg.Login.Timeout.Duration,
		},
		Targets: targets,
	}
}
