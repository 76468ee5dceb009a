package cache

import "fmt"

// Kind names the remote query a Signature identifies.
type Kind string

// Remote query kinds.
const (
	KindPulls   Kind = "pulls"
	KindReviews Kind = "reviews"
)

// Signature identifies one distinct remote query. Two signatures are the same
// query iff every field matches.
type Signature struct {
	Org  string
	Repo string
	Kind Kind
	ID   string
}

// PullsSignature identifies the open pull request listing for a repository.
func PullsSignature(org, repo string) Signature {
	return Signature{Org: org, Repo: repo, Kind: KindPulls}
}

// ReviewsSignature identifies the review listing for one pull request.
func ReviewsSignature(org, repo string, number int) Signature {
	return Signature{Org: org, Repo: repo, Kind: KindReviews, ID: fmt.Sprint(number)}
}

// String renders the canonical cache key, e.g. "acme/widgets:reviews:12".
func (s Signature) String() string {
	key := fmt.Sprintf("%s/%s:%s", s.Org, s.Repo, s.Kind)
	if s.ID != "" {
		key += ":" + s.ID
	}
	return key
}
