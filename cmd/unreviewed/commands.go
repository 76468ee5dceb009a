package main

import (
	"context"
	"fmt"
	"log/slog"
	"sort"
	"strings"

	"github.com/charmbracelet/lipgloss"

	"github.com/codeGROOVE-dev/unreviewed/pkg/cache"
	"github.com/codeGROOVE-dev/unreviewed/pkg/config"
	"github.com/codeGROOVE-dev/unreviewed/pkg/fetch"
	"github.com/codeGROOVE-dev/unreviewed/pkg/limiter"
	"github.com/codeGROOVE-dev/unreviewed/pkg/reconcile"
	"github.com/codeGROOVE-dev/unreviewed/pkg/relativetime"
	"github.com/codeGROOVE-dev/unreviewed/pkg/report"
)

type checkCmd struct {
	Repos       []string `arg:"" help:"Repositories to check, or @ for allGithubRepos."`
	Authors     []string `help:"Authors to check (comma separated), or @ for every author." sep:","`
	Org         string   `help:"GitHub organization (default: githubOrg)."`
	MaxCacheAge string   `help:"Reuse cached responses younger than this, e.g. '60 minutes' (default: cacheExpiry)." name:"max-cache-age"`
	Concurrency int      `help:"Repositories checked at once." default:"5"`
	NoColor     bool     `help:"Disable colored output." name:"no-color"`
}

func (c *checkCmd) Run(ctx context.Context, a *app) error {
	req, err := c.request(a)
	if err != nil {
		return err
	}

	source, err := a.newSource(a.settings.Token)
	if err != nil {
		return err
	}
	store, err := cache.NewDiskCache(a.cacheDir)
	if err != nil {
		return fmt.Errorf("opening cache: %w", err)
	}
	fetcher := fetch.New(store, source)

	var styler report.Styler = report.Plain{}
	if !c.NoColor {
		styler = report.NewColors(lipgloss.NewRenderer(a.stdout))
	}
	reporter := report.New(styler)

	summary, checkErr := reconcile.New(fetcher).Check(ctx, req, reporter)
	logSummary(summary, fetcher.Stats())

	if err := reporter.Flush(a.stdout); err != nil {
		return err
	}
	if checkErr != nil {
		return fmt.Errorf("some repositories could not be checked: %w", checkErr)
	}
	return nil
}

// logSummary reports the outcome of a check at debug level.
func logSummary(summary reconcile.Summary, stats fetch.Stats) {
	slog.Debug("Check complete", "component", "check", "repos", len(summary.Repos),
		"failed", len(summary.Failed), "results", summary.Results, "duration", summary.Duration)
	slog.Debug("Fetch statistics", "component", "fetch", "hits", stats.Hits, "misses", stats.Misses,
		"stale", stats.Stale, "network", stats.Network, "failed", stats.Failed)
}

// request resolves flags and settings into one immutable request.
func (c *checkCmd) request(a *app) (reconcile.Request, error) {
	org := c.Org
	if org == "" {
		org = a.settings.Org
	}
	if org == "" {
		return reconcile.Request{}, fmt.Errorf("no organization: pass --org or run 'setConfig %s <org>'", config.KeyOrg)
	}

	repos, err := expandRepos(c.Repos, a.settings.AllRepos)
	if err != nil {
		return reconcile.Request{}, err
	}

	logins := c.Authors
	if len(logins) == 0 {
		logins = a.settings.Authors
	}
	if len(logins) == 0 {
		return reconcile.Request{}, fmt.Errorf("no authors: pass --authors or run 'setConfig %s <login>...'", config.KeyAuthors)
	}

	expr := c.MaxCacheAge
	if expr == "" {
		expr = a.settings.CacheExpiry
	}
	maxAge, err := relativetime.Parse(expr)
	if err != nil {
		return reconcile.Request{}, err
	}

	concurrency := c.Concurrency
	if concurrency <= 0 {
		concurrency = limiter.DefaultConcurrency
	}

	return reconcile.Request{
		Cutoff:      fetch.CutoffFrom(a.now(), maxAge),
		Org:         org,
		Repos:       repos,
		Authors:     reconcile.Authors(logins...),
		Concurrency: concurrency,
	}, nil
}

// expandRepos replaces the @ placeholder with every configured repository.
func expandRepos(args, all []string) ([]string, error) {
	var repos []string
	for _, r := range args {
		if r != reconcile.Wildcard {
			repos = append(repos, r)
			continue
		}
		if len(all) == 0 {
			return nil, fmt.Errorf("@ given but %s is not configured", config.KeyAllRepos)
		}
		repos = append(repos, all...)
	}
	return repos, nil
}

type setConfigCmd struct {
	Key    string   `arg:"" help:"Configuration key."`
	Values []string `arg:"" help:"Value, or values for list keys."`
}

func (c *setConfigCmd) Run(a *app) error {
	return a.store.Set(c.Key, c.Values...)
}

type getConfigCmd struct {
	Key string `arg:"" help:"Configuration key."`
}

func (c *getConfigCmd) Run(a *app) error {
	v, ok, err := a.store.Get(c.Key)
	if err != nil {
		return err
	}
	if !ok {
		return fmt.Errorf("%s: %w", c.Key, errNotSet)
	}
	_, err = fmt.Fprintln(a.stdout, v.String())
	return err
}

type deleteConfigCmd struct {
	Key string `arg:"" help:"Configuration key."`
}

func (c *deleteConfigCmd) Run(a *app) error {
	return a.store.Delete(c.Key)
}

type listConfigCmd struct{}

func (*listConfigCmd) Run(a *app) error {
	values, err := a.store.List()
	if err != nil {
		return err
	}
	keys := make([]string, 0, len(values))
	for k := range values {
		keys = append(keys, k)
	}
	sort.Strings(keys)

	var b strings.Builder
	for _, k := range keys {
		fmt.Fprintf(&b, "%s = %s\n", k, values[k].Masked())
	}
	if _, err := fmt.Fprint(a.stdout, b.String()); err != nil {
		return fmt.Errorf("writing config listing: %w", err)
	}
	return nil
}
