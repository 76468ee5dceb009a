// Package github fetches open pull requests and their reviews from the
// GitHub REST API.
package github

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"

	"github.com/codeGROOVE-dev/retry"
	gh "github.com/google/go-github/v74/github"

	"github.com/codeGROOVE-dev/unreviewed/pkg/cache"
	"github.com/codeGROOVE-dev/unreviewed/pkg/fetch"
	"github.com/codeGROOVE-dev/unreviewed/pkg/types"
)

// Client constants.
const (
	DefaultHTTPTimeout       = 30 * time.Second
	DefaultRequestsPerSecond = 10
	perPage                  = 100
)

// Retry constants. Only secondary rate limits are retried.
const (
	maxRetryAttempts  = 5
	initialRetryDelay = 1 * time.Second
	maxRetryDelay     = 2 * time.Minute
)

// Client reads pull requests and reviews. It implements fetch.Source.
type Client struct {
	gh         *gh.Client
	retryDelay time.Duration
}

// Config holds configuration for creating a new GitHub client.
type Config struct {
	HTTPDoer          HTTPDoer // Optional; defaults to http.DefaultTransport
	Token             string
	BaseURL           string // Optional; for GitHub Enterprise and tests
	HTTPTimeout       time.Duration
	RequestsPerSecond float64
}

// New creates a GitHub API client.
func New(cfg Config) (*Client, error) {
	if cfg.HTTPTimeout <= 0 {
		cfg.HTTPTimeout = DefaultHTTPTimeout
	}
	if cfg.RequestsPerSecond <= 0 {
		cfg.RequestsPerSecond = DefaultRequestsPerSecond
	}

	httpClient := &http.Client{
		Timeout:   cfg.HTTPTimeout,
		Transport: NewTransport(cfg.HTTPDoer, cfg.RequestsPerSecond),
	}
	client := gh.NewClient(httpClient)
	if cfg.Token != "" {
		client = client.WithAuthToken(cfg.Token)
	}
	if cfg.BaseURL != "" {
		base, err := url.Parse(cfg.BaseURL)
		if err != nil {
			return nil, fmt.Errorf("invalid base URL %q: %w", cfg.BaseURL, err)
		}
		if !strings.HasSuffix(base.Path, "/") {
			base.Path += "/"
		}
		client.BaseURL = base
	}

	return &Client{gh: client, retryDelay: initialRetryDelay}, nil
}

// Fetch implements fetch.Source by dispatching on the signature kind.
func (c *Client) Fetch(ctx context.Context, sig cache.Signature) (json.RawMessage, error) {
	var v any
	var err error
	switch sig.Kind {
	case cache.KindPulls:
		v, err = c.OpenPullRequests(ctx, sig.Org, sig.Repo)
	case cache.KindReviews:
		number, convErr := strconv.Atoi(sig.ID)
		if convErr != nil {
			return nil, fmt.Errorf("invalid pull request number %q: %w", sig.ID, convErr)
		}
		v, err = c.Reviews(ctx, sig.Org, sig.Repo, number)
	default:
		return nil, fmt.Errorf("unsupported resource kind %q", sig.Kind)
	}
	if err != nil {
		return nil, err
	}

	data, err := json.Marshal(v)
	if err != nil {
		return nil, fmt.Errorf("encoding %s: %w", sig, err)
	}
	return data, nil
}

// OpenPullRequests returns every open pull request in owner/repo.
func (c *Client) OpenPullRequests(ctx context.Context, owner, repo string) ([]types.PullRequest, error) {
	opts := &gh.PullRequestListOptions{
		State:       "open",
		ListOptions: gh.ListOptions{PerPage: perPage},
	}

	prs := []types.PullRequest{}
	for {
		var page []*gh.PullRequest
		var resp *gh.Response
		err := retryWithBackoff(ctx, fmt.Sprintf("list pulls %s/%s", owner, repo), c.retryDelay, func() error {
			var err error
			page, resp, err = c.gh.PullRequests.List(ctx, owner, repo, opts)
			return err
		})
		if err != nil {
			return nil, fmt.Errorf("listing pull requests for %s/%s: %w", owner, repo, err)
		}

		for _, pr := range page {
			prs = append(prs, types.PullRequest{
				Number: pr.GetNumber(),
				Author: pr.GetUser().GetLogin(),
			})
		}
		if resp.NextPage == 0 {
			break
		}
		opts.Page = resp.NextPage
	}

	slog.Debug("Listed open pull requests", "component", "github", "owner", owner, "repo", repo, "count", len(prs))
	return prs, nil
}

// Reviews returns the reviews of a pull request in the order GitHub lists
// them, oldest first.
func (c *Client) Reviews(ctx context.Context, owner, repo string, number int) ([]types.Review, error) {
	opts := &gh.ListOptions{PerPage: perPage}

	reviews := []types.Review{}
	for {
		var page []*gh.PullRequestReview
		var resp *gh.Response
		err := retryWithBackoff(ctx, fmt.Sprintf("list reviews %s/%s#%d", owner, repo, number), c.retryDelay, func() error {
			var err error
			page, resp, err = c.gh.PullRequests.ListReviews(ctx, owner, repo, number, opts)
			return err
		})
		if err != nil {
			return nil, fmt.Errorf("listing reviews for %s/%s#%d: %w", owner, repo, number, err)
		}

		for _, r := range page {
			reviews = append(reviews, types.Review{
				SubmittedAt: r.GetSubmittedAt().Time,
				State:       r.GetState(),
				Author:      r.GetUser().GetLogin(),
			})
		}
		if resp.NextPage == 0 {
			break
		}
		opts.Page = resp.NextPage
	}

	slog.Debug("Listed reviews", "component", "github", "owner", owner, "repo", repo, "pr", number, "count", len(reviews))
	return reviews, nil
}

// isSecondaryRateLimit reports whether err is GitHub's secondary rate limit.
func isSecondaryRateLimit(err error) bool {
	var abuse *gh.AbuseRateLimitError
	return errors.As(err, &abuse)
}

// retryWithBackoff retries fn on secondary rate limits with exponential
// backoff using the codeGROOVE retry library. Any other error is returned at once.
func retryWithBackoff(ctx context.Context, operation string, delay time.Duration, fn func() error) error {
	return retry.Do(
		fn,
		retry.Context(ctx),
		retry.Attempts(uint(maxRetryAttempts)),
		retry.Delay(delay),
		retry.MaxDelay(maxRetryDelay),
		retry.DelayType(retry.CombineDelay(retry.BackOffDelay, retry.RandomDelay)),
		retry.MaxJitter(delay/4),
		retry.OnRetry(func(n uint, err error) {
			slog.Warn("Secondary rate limit, backing off", "component", "retry", "operation", operation,
				"attempt", n+1, "max_attempts", maxRetryAttempts, "error", err)
		}),
		retry.LastErrorOnly(true),
		retry.RetryIf(isSecondaryRateLimit),
	)
}

var _ fetch.Source = (*Client)(nil)
