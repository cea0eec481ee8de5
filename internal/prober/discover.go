package prober

import (
	"context"
	"errors"
	"fmt"
	"log"
	"net/url"
	"strings"

	"github.com/ibeckermayer/pageprobe/internal/types"
)

// Discover loads fromPath and turns the href of every link matched by
// selector into a target carrying the default queries. Links to other
// hosts, non-http schemes and repeats are skipped; fragments are dropped.
func (s *Session) Discover(ctx context.Context, fromPath, selector string) ([]types.ProbeTarget, error) {
	if !s.loggedIn {
		return nil, errors.New("session is not logged in")
	}
	base, err := url.Parse(s.opts.BaseURL)
	if err != nil {
		return nil, fmt.Errorf("invalid base URL: %w", err)
	}

	if _, err := s.page.Navigate(ctx, s.pageURL(fromPath)); err != nil {
		return nil, err
	}
	if err := s.page.WaitNetworkIdle(ctx, s.opts.NetworkIdleTimeout); err != nil {
		log.Printf("[prober] Discovering on a page that did not settle: %v", err)
	}

	hrefs, err := s.page.Attributes(ctx, selector, "href")
	if err != nil {
		return nil, err
	}

	current := base
	if u, err := s.page.URL(ctx); err == nil {
		if parsed, err := url.Parse(u); err == nil {
			current = parsed
		}
	}

	basePath := strings.TrimRight(base.Path, "/")
	seen := make(map[string]bool)
	var targets []types.ProbeTarget
	for _, href := range hrefs {
		u, err := current.Parse(strings.TrimSpace(href))
		if err != nil || (u.Scheme != "http" && u.Scheme != "https") || u.Host != base.Host {
			continue
		}
		u.Fragment = ""

		path := u.RequestURI()
		switch {
		case basePath == "":
		case path == basePath || strings.HasPrefix(path, basePath+"/"):
			path = strings.TrimPrefix(path, basePath)
		default:
			path = u.String()
		}
		if path == "" {
			path = "/"
		}

		if seen[path] {
			continue
		}
		seen[path] = true
		targets = append(targets, types.ProbeTarget{Name: path, Path: path, Queries: DefaultQueries()})
	}

	log.Printf("[prober] Discovered %d pages from %s via %s", len(targets), fromPath, selector)
	return targets, nil
}

// mergeTargets appends discovered targets whose path is not already listed.
func mergeTargets(explicit, discovered []types.ProbeTarget) []types.ProbeTarget {
	seen := make(map[string]bool, len(explicit))
	for _, t := range explicit {
		seen[t.Path] = true
	}
	merged := append([]types.ProbeTarget(nil), explicit...)
	for _, t := range discovered {
		if !seen[t.Path] {
			seen[t.Path] = true
			merged = append(merged, t)
		}
	}
	return merged
}
