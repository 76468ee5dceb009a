// Package report buffers status lines from concurrently checked repositories
// and writes them in a stable order.
//
// Lines are ordered by their plain rendered text, so output is identical
// across runs no matter which repository finished first.
package report

import (
	"fmt"
	"io"
	"sort"
	"sync"

	"github.com/charmbracelet/lipgloss"

	"github.com/codeGROOVE-dev/unreviewed/pkg/reconcile"
	"github.com/codeGROOVE-dev/unreviewed/pkg/types"
)

// Line is one rendered status line.
type Line struct {
	Text   string
	Status reconcile.Status
	State  string
}

// Key is the sort key of the line: its plain, unstyled text.
func (l Line) Key() string {
	return l.Text
}

// Render formats a result as a line.
func Render(r reconcile.Result) Line {
	var text string
	switch r.Status {
	case reconcile.MissingPullRequest:
		text = fmt.Sprintf("%s: %s has no open pull request", r.Repo, r.Author)
	case reconcile.NeedsReview:
		text = fmt.Sprintf("%s: %s #%d needs review", r.Repo, r.Author, r.Number)
	default:
		text = fmt.Sprintf("%s: %s #%d %s", r.Repo, r.Author, r.Number, r.State)
	}
	return Line{Text: text, Status: r.Status, State: r.State}
}

// Styler decorates a line for display. It must not change the line's Key.
type Styler interface {
	Style(l Line) string
}

// Plain writes lines unstyled.
type Plain struct{}

// Style implements Styler.
func (Plain) Style(l Line) string {
	return l.Text
}

// Colors styles lines by status with lipgloss.
type Colors struct {
	Missing  lipgloss.Style
	Needs    lipgloss.Style
	Approved lipgloss.Style
	Other    lipgloss.Style
}

// DefaultColors returns the standard palette for the default renderer.
func DefaultColors() Colors {
	return NewColors(lipgloss.DefaultRenderer())
}

// NewColors returns the standard palette for r. A renderer bound to a
// writer that is not a terminal produces plain text.
func NewColors(r *lipgloss.Renderer) Colors {
	return Colors{
		Missing:  r.NewStyle().Foreground(lipgloss.Color("#E5C07B")),
		Needs:    r.NewStyle().Foreground(lipgloss.Color("#FF6B6B")).Bold(true),
		Approved: r.NewStyle().Foreground(lipgloss.Color("#98C379")),
		Other:    r.NewStyle().Foreground(lipgloss.Color("#5B8DEF")),
	}
}

// Style implements Styler.
func (c Colors) Style(l Line) string {
	switch {
	case l.Status == reconcile.MissingPullRequest:
		return c.Missing.Render(l.Text)
	case l.Status == reconcile.NeedsReview:
		return c.Needs.Render(l.Text)
	case l.State == types.ReviewApproved:
		return c.Approved.Render(l.Text)
	default:
		return c.Other.Render(l.Text)
	}
}

// Reporter collects lines from concurrent producers. Every Report call is
// atomic: its lines are buffered whole and never interleave with another's.
type Reporter struct {
	styler Styler
	lines  []Line
	mu     sync.Mutex
}

// New creates a Reporter. A nil styler writes plain text.
func New(styler Styler) *Reporter {
	if styler == nil {
		styler = Plain{}
	}
	return &Reporter{styler: styler}
}

// Report buffers lines.
func (r *Reporter) Report(lines ...Line) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.lines = append(r.lines, lines...)
}

// Add renders and buffers all results of one repository.
// It implements reconcile.Sink.
func (r *Reporter) Add(results []reconcile.Result) {
	lines := make([]Line, len(results))
	for i, res := range results {
		lines[i] = Render(res)
	}
	r.Report(lines...)
}

// Len returns the number of buffered lines.
func (r *Reporter) Len() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.lines)
}

// Flush writes every buffered line to w sorted by Key and empties the buffer.
func (r *Reporter) Flush(w io.Writer) error {
	r.mu.Lock()
	lines := r.lines
	r.lines = nil
	r.mu.Unlock()

	sort.SliceStable(lines, func(i, j int) bool { return lines[i].Key() < lines[j].Key() })
	for _, l := range lines {
		if _, err := fmt.Fprintln(w, r.styler.Style(l)); err != nil {
			return fmt.Errorf("writing report: %w", err)
		}
	}
	return nil
}

var _ reconcile.Sink = (*Reporter)(nil)
