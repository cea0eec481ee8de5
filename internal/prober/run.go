package prober

import (
	"context"
	"errors"
	"fmt"
	"log"
	"time"

	"github.com/google/uuid"

	"github.com/ibeckermayer/pageprobe/internal/driver"
	"github.com/ibeckermayer/pageprobe/internal/types"
)

// RunOptions is everything one login-then-probe run needs.
type RunOptions struct {
	Session     SessionOptions
	Credentials types.Credentials
	Login       LoginForm
	Targets     []types.ProbeTarget

	// Discover, when set, is a link selector: after login the links it
	// matches on DiscoverFrom (default the first target's path, else "/")
	// are visited after the explicit targets.
	Discover     string
	DiscoverFrom string

	// Optional progress callbacks, called synchronously.
	OnLogin  func(types.LoginOutcome)
	OnResult func(types.ProbeResult)
}

// Run opens one browser session, logs in, probes every target in order and
// closes the session exactly once. A failed login aborts the run before any
// target is visited. The report is always returned; its State is
// StateClosed for a run that got through its targets and StateAborted
// otherwise.
func Run(ctx context.Context, launcher driver.Launcher, opts RunOptions) *types.RunReport {
	report := &types.RunReport{
		ID:        uuid.New().String(),
		BaseURL:   opts.Session.BaseURL,
		StartedAt: time.Now(),
		State:     types.StateIdle,
		Results:   []types.ProbeResult{},
	}
	defer func() { report.FinishedAt = time.Now() }()

	log.Printf("[prober] Run %s against %s (%d targets)", report.ID, report.BaseURL, len(opts.Targets))

	sess, err := OpenSession(ctx, launcher, opts.Session)
	if err != nil {
		abort(report, err)
		return report
	}
	report.State = types.StateSessionOpen

	defer func() {
		if err := sess.Close(); err != nil {
			log.Printf("[prober] Failed to close browser: %v", err)
		}
		if report.State != types.StateAborted {
			report.State = types.StateClosed
		}
	}()

	outcome, err := sess.Login(ctx, opts.Credentials, opts.Login)
	if err != nil {
		if outcome.ResultingURL == "" {
			outcome.ResultingURL, _ = sess.page.URL(ctx)
		}
		if outcome.ObservedErrorText == "" {
			outcome.ObservedErrorText = err.Error()
		}
	}
	report.Login = &outcome
	if opts.OnLogin != nil {
		opts.OnLogin(outcome)
	}
	switch {
	case err != nil:
		if !errors.Is(err, types.ErrLoginFailed) {
			err = fmt.Errorf("%w: %w", types.ErrLoginFailed, err)
		}
		abort(report, err)
		return report
	case !outcome.Success:
		reason := outcome.ObservedErrorText
		if reason == "" {
			reason = "still at " + outcome.ResultingURL
		}
		abort(report, fmt.Errorf("%w: %s", types.ErrLoginFailed, reason))
		return report
	}
	report.State = types.StateLoggedIn

	targets := opts.Targets
	if opts.Discover != "" {
		targets = mergeTargets(targets, discover(ctx, sess, opts))
	}

	report.State = types.StateProbing
	for _, target := range targets {
		if err := ctx.Err(); err != nil {
			abort(report, err)
			return report
		}
		res := sess.Probe(ctx, target)
		report.Results = append(report.Results, res)
		if opts.OnResult != nil {
			opts.OnResult(res)
		}
	}

	log.Printf("[prober] Run %s finished: %d passed, %d failed", report.ID, report.Passed(), report.Failed())
	return report
}

// discover finds extra targets. A failure is logged and yields none.
func discover(ctx context.Context, sess *Session, opts RunOptions) []types.ProbeTarget {
	from := opts.DiscoverFrom
	if from == "" {
		from = "/"
		if len(opts.Targets) > 0 {
			from = opts.Targets[0].Path
		}
	}
	found, err := sess.Discover(ctx, from, opts.Discover)
	if err != nil {
		log.Printf("[prober] Discovery from %s failed: %v", from, err)
		return nil
	}
	return found
}

func abort(report *types.RunReport, err error) {
	report.State = types.StateAborted
	report.Err = err
	report.Error = err.Error()
	log.Printf("[prober] Run %s aborted: %v", report.ID, err)
}
