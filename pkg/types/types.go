// Package types contains shared data structures used across the checker.
//
//nolint:revive // "types" is a standard Go package name for shared data structures
package types

import "time"

// PullRequest represents an open GitHub pull request.
type PullRequest struct {
	Author string `json:"author"`
	Number int    `json:"number"`
}

// Review represents a single submitted review on a pull request.
type Review struct {
	SubmittedAt time.Time `json:"submitted_at,omitzero"`
	State       string    `json:"state"` // "APPROVED", "CHANGES_REQUESTED", "COMMENTED", "DISMISSED", "PENDING"
	Author      string    `json:"author,omitempty"`
}

// Review states as reported by the GitHub API.
const (
	ReviewApproved         = "APPROVED"
	ReviewChangesRequested = "CHANGES_REQUESTED"
	ReviewCommented        = "COMMENTED"
	ReviewDismissed        = "DISMISSED"
)
