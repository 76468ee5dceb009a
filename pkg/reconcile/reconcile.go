// Package reconcile matches open pull requests and their reviews against the
// authors expected to have them, per repository and across many repositories.
package reconcile

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"slices"
	"sort"

	"golang.org/x/sync/errgroup"

	"github.com/codeGROOVE-dev/unreviewed/pkg/cache"
	"github.com/codeGROOVE-dev/unreviewed/pkg/fetch"
	"github.com/codeGROOVE-dev/unreviewed/pkg/types"
)

// Wildcard selects every author, or every configured repository.
const Wildcard = "@"

// Status classifies one result.
type Status int

// Result statuses.
const (
	MissingPullRequest Status = iota
	NeedsReview
	Reviewed
)

func (s Status) String() string {
	switch s {
	case MissingPullRequest:
		return "MissingPullRequest"
	case NeedsReview:
		return "NeedsReview"
	case Reviewed:
		return "Reviewed"
	default:
		return fmt.Sprintf("Status(%d)", int(s))
	}
}

// Result is one verdict for an author in a repository. Number is zero and
// State empty for MissingPullRequest; State is empty for NeedsReview.
type Result struct {
	Repo   string
	Author string
	State  string
	Status Status
	Number int
}

// AuthorSet is either an explicit, deduplicated set of logins or the wildcard.
type AuthorSet struct {
	logins   []string
	wildcard bool
}

// AllAuthors returns the wildcard author set.
func AllAuthors() AuthorSet {
	return AuthorSet{wildcard: true}
}

// Authors returns an explicit author set. Duplicates and empty logins are
// dropped; a "@" anywhere selects the wildcard instead.
func Authors(logins ...string) AuthorSet {
	seen := make(map[string]bool, len(logins))
	var set AuthorSet
	for _, login := range logins {
		if login == Wildcard {
			return AllAuthors()
		}
		if login == "" || seen[login] {
			continue
		}
		seen[login] = true
		set.logins = append(set.logins, login)
	}
	sort.Strings(set.logins)
	return set
}

// IsWildcard reports whether s selects every author.
func (s AuthorSet) IsWildcard() bool {
	return s.wildcard
}

// Logins returns the explicit logins in sorted order, or nil for the wildcard.
func (s AuthorSet) Logins() []string {
	return slices.Clone(s.logins)
}

// Contains reports whether login is selected.
func (s AuthorSet) Contains(login string) bool {
	if s.wildcard {
		return true
	}
	_, found := slices.BinarySearch(s.logins, login)
	return found
}

// resolve returns the explicit logins, or for the wildcard the distinct
// authors of prs.
func (s AuthorSet) resolve(prs []types.PullRequest) []string {
	if !s.wildcard {
		return s.logins
	}
	seen := make(map[string]bool)
	var logins []string
	for _, pr := range prs {
		if !seen[pr.Author] {
			seen[pr.Author] = true
			logins = append(logins, pr.Author)
		}
	}
	sort.Strings(logins)
	return logins
}

// Fetcher is the cached API access the engine depends on.
type Fetcher interface {
	Fetch(ctx context.Context, sig cache.Signature, cutoff fetch.Cutoff) (json.RawMessage, error)
}

// Engine reconciles repositories against an author set.
type Engine struct {
	fetcher Fetcher
}

// New creates an Engine reading through fetcher.
func New(fetcher Fetcher) *Engine {
	return &Engine{fetcher: fetcher}
}

// Reconcile fetches the open pull requests for org/repo and classifies them.
//
// Authors in an explicit set with no pull request yield MissingPullRequest.
// Each remaining pull request yields NeedsReview when it has no reviews, or
// Reviewed carrying the state of its first review. Review listings are fetched
// concurrently and all run to completion; if any of them fails the whole
// repository fails and no results are returned.
func (e *Engine) Reconcile(ctx context.Context, org, repo string, authors AuthorSet, cutoff fetch.Cutoff) ([]Result, error) {
	payload, err := e.fetcher.Fetch(ctx, cache.PullsSignature(org, repo), cutoff)
	if err != nil {
		return nil, err
	}
	var all []types.PullRequest
	if err := json.Unmarshal(payload, &all); err != nil {
		return nil, fmt.Errorf("decoding pull requests for %s/%s: %w", org, repo, err)
	}

	var prs []types.PullRequest
	hasPR := make(map[string]bool)
	for _, pr := range all {
		if authors.Contains(pr.Author) {
			prs = append(prs, pr)
			hasPR[pr.Author] = true
		}
	}
	sort.Slice(prs, func(i, j int) bool { return prs[i].Number < prs[j].Number })

	var results []Result
	for _, login := range authors.resolve(prs) {
		if !hasPR[login] {
			results = append(results, Result{Repo: repo, Author: login, Status: MissingPullRequest})
		}
	}

	slog.Debug("Reconciling repository", "component", "reconcile", "org", org, "repo", repo,
		"open_prs", len(all), "selected_prs", len(prs), "missing", len(results))

	reviews := make([][]types.Review, len(prs))
	// A failed sibling does not cancel the others, so their payloads still
	// reach the cache.
	var g errgroup.Group
	for i, pr := range prs {
		g.Go(func() error {
			payload, err := e.fetcher.Fetch(ctx, cache.ReviewsSignature(org, repo, pr.Number), cutoff)
			if err != nil {
				return err
			}
			if err := json.Unmarshal(payload, &reviews[i]); err != nil {
				return fmt.Errorf("decoding reviews for %s/%s#%d: %w", org, repo, pr.Number, err)
			}
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, err
	}

	for i, pr := range prs {
		results = append(results, classify(repo, pr, reviews[i]))
	}
	return results, nil
}

// classify derives the verdict for one pull request. Only the first review
// counts: a later approval does not override an initial request for changes.
func classify(repo string, pr types.PullRequest, reviews []types.Review) Result {
	if len(reviews) == 0 {
		return Result{Repo: repo, Author: pr.Author, Status: NeedsReview, Number: pr.Number}
	}
	return Result{Repo: repo, Author: pr.Author, Status: Reviewed, Number: pr.Number, State: reviews[0].State}
}
