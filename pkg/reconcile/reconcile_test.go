package reconcile

import (
	"context"
	"errors"
	"sync/atomic"
	"testing"
	"time"

	"github.com/google/go-cmp/cmp"

	"github.com/codeGROOVE-dev/unreviewed/pkg/cache"
	"github.com/codeGROOVE-dev/unreviewed/pkg/fetch"
	"github.com/codeGROOVE-dev/unreviewed/pkg/internal/testutil"
	"github.com/codeGROOVE-dev/unreviewed/pkg/types"
)

func newEngine(source *testutil.MockSource) (*Engine, *fetch.Fetcher) {
	f := fetch.New(testutil.NewMockCache(), source)
	return New(f), f
}

func hourCutoff() fetch.Cutoff {
	return fetch.CutoffFrom(time.Now(), time.Hour)
}

func TestAuthors(t *testing.T) {
	set := Authors("bob", "alice", "bob", "")
	if set.IsWildcard() {
		t.Fatal("explicit set reported as wildcard")
	}
	if diff := cmp.Diff([]string{"alice", "bob"}, set.Logins()); diff != "" {
		t.Errorf("logins mismatch (-want +got):\n%s", diff)
	}
	if !set.Contains("alice") || set.Contains("carol") {
		t.Error("Contains gave wrong answer")
	}

	if !Authors("alice", Wildcard).IsWildcard() {
		t.Error("expected @ to select the wildcard")
	}
	if !AllAuthors().Contains("anyone") {
		t.Error("wildcard must contain every login")
	}
	if AllAuthors().Logins() != nil {
		t.Error("wildcard has no explicit logins")
	}
}

func TestReconcile_MissingAndNeedsReview(t *testing.T) {
	source := testutil.NewMockSource()
	source.SetPullRequests("acme", "widgets", types.PullRequest{Number: 1, Author: "alice"})
	source.SetReviews("acme", "widgets", 1)

	e, _ := newEngine(source)
	got, err := e.Reconcile(context.Background(), "acme", "widgets", Authors("alice", "bob"), hourCutoff())
	if err != nil {
		t.Fatalf("Reconcile: %v", err)
	}

	want := []Result{
		{Repo: "widgets", Author: "bob", Status: MissingPullRequest},
		{Repo: "widgets", Author: "alice", Status: NeedsReview, Number: 1},
	}
	if diff := cmp.Diff(want, got); diff != "" {
		t.Errorf("results mismatch (-want +got):\n%s", diff)
	}
}

func TestReconcile_WildcardReviewed(t *testing.T) {
	source := testutil.NewMockSource()
	source.SetPullRequests("acme", "widgets", types.PullRequest{Number: 2, Author: "carol"})
	source.SetReviews("acme", "widgets", 2, types.Review{State: types.ReviewApproved})

	e, _ := newEngine(source)
	got, err := e.Reconcile(context.Background(), "acme", "widgets", AllAuthors(), hourCutoff())
	if err != nil {
		t.Fatalf("Reconcile: %v", err)
	}

	want := []Result{
		{Repo: "widgets", Author: "carol", Status: Reviewed, Number: 2, State: "APPROVED"},
	}
	if diff := cmp.Diff(want, got); diff != "" {
		t.Errorf("results mismatch (-want +got):\n%s", diff)
	}
}

func TestReconcile_FirstReviewOnly(t *testing.T) {
	source := testutil.NewMockSource()
	source.SetPullRequests("acme", "widgets", types.PullRequest{Number: 5, Author: "dave"})
	source.SetReviews("acme", "widgets", 5,
		types.Review{State: types.ReviewChangesRequested},
		types.Review{State: types.ReviewApproved},
	)

	e, _ := newEngine(source)
	got, err := e.Reconcile(context.Background(), "acme", "widgets", Authors("dave"), hourCutoff())
	if err != nil {
		t.Fatalf("Reconcile: %v", err)
	}

	if len(got) != 1 || got[0].Status != Reviewed || got[0].State != types.ReviewChangesRequested {
		t.Errorf("expected first review state CHANGES_REQUESTED, got %+v", got)
	}
}

func TestReconcile_ExplicitAuthorsFilterPullRequests(t *testing.T) {
	source := testutil.NewMockSource()
	source.SetPullRequests("acme", "widgets",
		types.PullRequest{Number: 9, Author: "alice"},
		types.PullRequest{Number: 3, Author: "mallory"},
		types.PullRequest{Number: 4, Author: "alice"},
	)
	source.SetReviews("acme", "widgets", 9, types.Review{State: types.ReviewCommented})
	source.SetReviews("acme", "widgets", 4)

	e, _ := newEngine(source)
	got, err := e.Reconcile(context.Background(), "acme", "widgets", Authors("alice"), hourCutoff())
	if err != nil {
		t.Fatalf("Reconcile: %v", err)
	}

	want := []Result{
		{Repo: "widgets", Author: "alice", Status: NeedsReview, Number: 4},
		{Repo: "widgets", Author: "alice", Status: Reviewed, Number: 9, State: "COMMENTED"},
	}
	if diff := cmp.Diff(want, got); diff != "" {
		t.Errorf("results mismatch (-want +got):\n%s", diff)
	}
	if n := source.CallCount(cache.ReviewsSignature("acme", "widgets", 3)); n != 0 {
		t.Errorf("reviews fetched for unselected author's PR %d times", n)
	}
}

func TestReconcile_AuthorWithNoPRsExactlyOneMissing(t *testing.T) {
	source := testutil.NewMockSource()
	source.SetPullRequests("acme", "widgets")

	e, _ := newEngine(source)
	got, err := e.Reconcile(context.Background(), "acme", "widgets", Authors("erin"), hourCutoff())
	if err != nil {
		t.Fatalf("Reconcile: %v", err)
	}

	want := []Result{{Repo: "widgets", Author: "erin", Status: MissingPullRequest}}
	if diff := cmp.Diff(want, got); diff != "" {
		t.Errorf("results mismatch (-want +got):\n%s", diff)
	}
}

func TestReconcile_WildcardNoPRsNoResults(t *testing.T) {
	source := testutil.NewMockSource()
	source.SetPullRequests("acme", "empty")

	e, _ := newEngine(source)
	got, err := e.Reconcile(context.Background(), "acme", "empty", AllAuthors(), hourCutoff())
	if err != nil {
		t.Fatalf("Reconcile: %v", err)
	}
	if len(got) != 0 {
		t.Errorf("expected no results, got %+v", got)
	}
}

func TestReconcile_PullListFailureAborts(t *testing.T) {
	source := testutil.NewMockSource()
	boom := errors.New("502 bad gateway")
	source.SetError(cache.PullsSignature("acme", "widgets"), boom)

	e, _ := newEngine(source)
	got, err := e.Reconcile(context.Background(), "acme", "widgets", Authors("alice"), hourCutoff())
	if !errors.Is(err, boom) {
		t.Fatalf("expected pull list error, got %v", err)
	}
	var fetchErr *fetch.Error
	if !errors.As(err, &fetchErr) {
		t.Errorf("expected *fetch.Error, got %T", err)
	}
	if got != nil {
		t.Errorf("expected no results, got %+v", got)
	}
}

func TestReconcile_ReviewFailureAbortsWholeRepository(t *testing.T) {
	source := testutil.NewMockSource()
	source.SetPullRequests("acme", "widgets",
		types.PullRequest{Number: 1, Author: "alice"},
		types.PullRequest{Number: 2, Author: "bob"},
	)
	source.SetReviews("acme", "widgets", 1, types.Review{State: types.ReviewApproved})
	boom := errors.New("timeout")
	source.SetError(cache.ReviewsSignature("acme", "widgets", 2), boom)

	e, _ := newEngine(source)
	got, err := e.Reconcile(context.Background(), "acme", "widgets", Authors("alice", "bob", "carol"), hourCutoff())
	if !errors.Is(err, boom) {
		t.Fatalf("expected review error, got %v", err)
	}
	if got != nil {
		t.Errorf("expected all-or-nothing, got partial results %+v", got)
	}
}

func TestReconcile_ReviewFailureLetsSiblingsFinish(t *testing.T) {
	source := testutil.NewMockSource()
	source.SetPullRequests("acme", "widgets",
		types.PullRequest{Number: 1, Author: "alice"},
		types.PullRequest{Number: 2, Author: "bob"},
	)
	source.SetReviews("acme", "widgets", 2, types.Review{State: types.ReviewApproved})
	boom := errors.New("boom")
	source.SetError(cache.ReviewsSignature("acme", "widgets", 1), boom)

	slow := cache.ReviewsSignature("acme", "widgets", 2)
	var canceled atomic.Bool
	source.SetHook(func(ctx context.Context, sig cache.Signature) {
		if sig != slow {
			return
		}
		time.Sleep(100 * time.Millisecond)
		canceled.Store(ctx.Err() != nil)
	})

	store := testutil.NewMockCache()
	e := New(fetch.New(store, source))
	_, err := e.Reconcile(context.Background(), "acme", "widgets", AllAuthors(), hourCutoff())
	if !errors.Is(err, boom) {
		t.Fatalf("expected review error, got %v", err)
	}
	if canceled.Load() {
		t.Error("slow review fetch saw a canceled context")
	}
	entry, found := store.Get(slow)
	if !found || string(entry.Payload) != `[{"state":"APPROVED"}]` {
		t.Errorf("slow review payload not stored: found=%v payload=%s", found, entry.Payload)
	}
}

func TestReconcile_PullListPrecedesReviewFetches(t *testing.T) {
	source := testutil.NewMockSource()
	source.SetPullRequests("acme", "widgets",
		types.PullRequest{Number: 1, Author: "alice"},
		types.PullRequest{Number: 2, Author: "alice"},
		types.PullRequest{Number: 3, Author: "alice"},
	)
	for n := 1; n <= 3; n++ {
		source.SetReviews("acme", "widgets", n)
	}

	e, _ := newEngine(source)
	if _, err := e.Reconcile(context.Background(), "acme", "widgets", AllAuthors(), hourCutoff()); err != nil {
		t.Fatalf("Reconcile: %v", err)
	}

	calls := source.Calls()
	if len(calls) != 4 {
		t.Fatalf("expected 4 fetches, got %d", len(calls))
	}
	if calls[0] != cache.PullsSignature("acme", "widgets") {
		t.Errorf("expected pull list first, got %v", calls[0])
	}
}

func TestReconcile_ReviewFetchesAreConcurrent(t *testing.T) {
	source := testutil.NewMockSource()
	const prs = 4
	for n := 1; n <= prs; n++ {
		source.SetReviews("acme", "widgets", n)
	}
	list := make([]types.PullRequest, 0, prs)
	for n := 1; n <= prs; n++ {
		list = append(list, types.PullRequest{Number: n, Author: "alice"})
	}
	source.SetPullRequests("acme", "widgets", list...)

	// Every review fetch waits until all of them have started; this only
	// completes if they run concurrently.
	var started atomic.Int64
	all := make(chan struct{})
	source.SetHook(func(_ context.Context, sig cache.Signature) {
		if sig.Kind != cache.KindReviews {
			return
		}
		if started.Add(1) == prs {
			close(all)
		}
		select {
		case <-all:
		case <-time.After(5 * time.Second):
		}
	})

	e, _ := newEngine(source)
	begin := time.Now()
	if _, err := e.Reconcile(context.Background(), "acme", "widgets", AllAuthors(), hourCutoff()); err != nil {
		t.Fatalf("Reconcile: %v", err)
	}
	if elapsed := time.Since(begin); elapsed > 4*time.Second {
		t.Errorf("review fetches did not overlap (took %v)", elapsed)
	}
}

func TestReconcile_SecondRunServedFromCache(t *testing.T) {
	source := testutil.NewMockSource()
	source.SetPullRequests("acme", "widgets",
		types.PullRequest{Number: 1, Author: "alice"},
		types.PullRequest{Number: 2, Author: "bob"},
	)
	source.SetReviews("acme", "widgets", 1)
	source.SetReviews("acme", "widgets", 2, types.Review{State: types.ReviewApproved})

	store := testutil.NewMockCache()
	e := New(fetch.New(store, source))
	cutoff := hourCutoff()

	first, err := e.Reconcile(context.Background(), "acme", "widgets", Authors("alice", "bob", "zed"), cutoff)
	if err != nil {
		t.Fatalf("first Reconcile: %v", err)
	}
	networkCalls := len(source.Calls())

	second, err := e.Reconcile(context.Background(), "acme", "widgets", Authors("alice", "bob", "zed"), cutoff)
	if err != nil {
		t.Fatalf("second Reconcile: %v", err)
	}

	if n := len(source.Calls()); n != networkCalls {
		t.Errorf("expected no additional network fetches, got %d more", n-networkCalls)
	}
	if diff := cmp.Diff(first, second); diff != "" {
		t.Errorf("results differ between runs (-first +second):\n%s", diff)
	}
}

func TestStatus_String(t *testing.T) {
	tests := []struct {
		s    Status
		want string
	}{
		{MissingPullRequest, "MissingPullRequest"},
		{NeedsReview, "NeedsReview"},
		{Reviewed, "Reviewed"},
		{Status(42), "Status(42)"},
	}
	for _, tt := range tests {
		if got := tt.s.String(); got != tt.want {
			t.Errorf("String() = %q, want %q", got, tt.want)
		}
	}
}
