package reconcile

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sort"
	"sync"
	"time"

	"github.com/codeGROOVE-dev/unreviewed/pkg/fetch"
	"github.com/codeGROOVE-dev/unreviewed/pkg/limiter"
)

// Request describes one check invocation. It is resolved once by the caller
// and never re-read while repositories are being processed.
type Request struct {
	Cutoff      fetch.Cutoff
	Org         string
	Repos       []string
	Authors     AuthorSet
	Concurrency int
}

// Sink receives the results of each successfully reconciled repository.
// Each call carries every result for one repository.
type Sink interface {
	Add(results []Result)
}

// Summary describes a completed check.
type Summary struct {
	Failed   map[string]error
	Repos    []string
	Results  int
	Duration time.Duration
}

// Check reconciles every repository in req with at most req.Concurrency
// repositories in flight, handing each repository's results to sink as one
// group. A failing repository contributes nothing to sink and does not stop
// the others. Check returns once every repository has settled; the error joins
// the failures of all failed repositories.
func (e *Engine) Check(ctx context.Context, req Request, sink Sink) (Summary, error) {
	if req.Org == "" {
		return Summary{}, errors.New("no organization given")
	}
	concurrency := req.Concurrency
	if concurrency <= 0 {
		concurrency = limiter.DefaultConcurrency
	}

	repos := dedupe(req.Repos)
	start := time.Now()
	slog.Info("Checking repositories", "component", "reconcile", "org", req.Org,
		"repos", len(repos), "concurrency", concurrency, "cutoff", req.Cutoff)

	l := limiter.New(concurrency)
	futures := make([]*limiter.Future[[]Result], len(repos))
	for i, repo := range repos {
		futures[i] = limiter.Schedule(l, func() ([]Result, error) {
			results, err := e.Reconcile(ctx, req.Org, repo, req.Authors, req.Cutoff)
			if err != nil {
				return nil, err
			}
			sink.Add(results)
			return results, nil
		})
	}
	l.Wait()

	summary := Summary{
		Repos:  repos,
		Failed: make(map[string]error),
	}
	var errs []error
	for i, f := range futures {
		results, err := f.Wait()
		if err != nil {
			slog.Error("Repository check failed", "component", "reconcile", "org", req.Org, "repo", repos[i], "error", err)
			summary.Failed[repos[i]] = err
			errs = append(errs, fmt.Errorf("%s/%s: %w", req.Org, repos[i], err))
			continue
		}
		summary.Results += len(results)
	}
	summary.Duration = time.Since(start)

	slog.Info("Check complete", "component", "reconcile", "org", req.Org,
		"repos", len(repos), "failed", len(summary.Failed), "results", summary.Results, "duration", summary.Duration)
	return summary, errors.Join(errs...)
}

// dedupe returns repos without duplicates or empty names, sorted.
func dedupe(repos []string) []string {
	seen := make(map[string]bool, len(repos))
	out := make([]string, 0, len(repos))
	for _, r := range repos {
		if r == "" || seen[r] {
			continue
		}
		seen[r] = true
		out = append(out, r)
	}
	sort.Strings(out)
	return out
}

// SinkFunc adapts a function to Sink.
type SinkFunc func(results []Result)

// Add implements Sink.
func (f SinkFunc) Add(results []Result) {
	f(results)
}

// Collector is a Sink that keeps every result in memory.
type Collector struct {
	results []Result
	mu      sync.Mutex
}

// Add implements Sink.
func (c *Collector) Add(results []Result) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.results = append(c.results, results...)
}

// Results returns the collected results sorted by repository, then in the
// order each repository produced them.
func (c *Collector) Results() []Result {
	c.mu.Lock()
	defer c.mu.Unlock()
	out := make([]Result, len(c.results))
	copy(out, c.results)
	sort.SliceStable(out, func(i, j int) bool { return out[i].Repo < out[j].Repo })
	return out
}
