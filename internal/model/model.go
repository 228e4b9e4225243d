// Package model defines the core data types used throughout refcheck.
package model

import (
	"fmt"
	"strings"
	"time"
)

// Remote represents a single git remote.
type Remote struct {
	// Name is the configured remote name (for example, "origin").
	Name string `json:"name" yaml:"name"`
	// URL is the remote fetch URL.
	URL string `json:"url" yaml:"url"`
}

// RefKind enumerates the local ref categories refcheck reconciles.
type RefKind string

const (
	KindBranch RefKind = "branch"
	KindTag    RefKind = "tag"
	KindStash  RefKind = "stash"
)

// AllKinds is the default category selection, in report order.
var AllKinds = []RefKind{KindBranch, KindTag, KindStash}

// Plural returns the category name used in reports ("branches", "tags", "stashes").
func (k RefKind) Plural() string {
	switch k {
	case KindBranch:
		return "branches"
	case KindStash:
		return "stashes"
	default:
		return string(k) + "s"
	}
}

// ParseKind accepts singular or plural category names.
func ParseKind(raw string) (RefKind, error) {
	switch strings.ToLower(strings.TrimSpace(raw)) {
	case "branch", "branches", "heads":
		return KindBranch, nil
	case "tag", "tags":
		return KindTag, nil
	case "stash", "stashes":
		return KindStash, nil
	default:
		return "", fmt.Errorf("unsupported category %q (expected branches, tags, or stashes)", raw)
	}
}

// StashPlaceholderBranch labels stashes whose subject could not be parsed.
const StashPlaceholderBranch = "(unknown)"

// LocalRef is a named local pointer (branch, tag, or stash) to a commit.
type LocalRef struct {
	// Kind is the ref category.
	Kind RefKind `json:"kind" yaml:"kind"`
	// Name is the short ref name ("main", "v1.0", "stash@{0}").
	Name string `json:"name" yaml:"name"`
	// Commit is the object the ref points at. For annotated tags this is
	// the tag object id.
	Commit string `json:"commit" yaml:"commit"`
	// Peeled is the commit an annotated tag ultimately points to. Empty
	// when it equals Commit.
	Peeled      string    `json:"peeled,omitempty" yaml:"peeled,omitempty"`
	Author      string    `json:"author" yaml:"author"`
	AuthorEmail string    `json:"author_email,omitempty" yaml:"author_email,omitempty"`
	Date        time.Time `json:"date" yaml:"date"`
	Subject     string    `json:"subject" yaml:"subject"`
	// Index is the N of stash@{N}; zero for non-stash refs.
	Index int `json:"index,omitempty" yaml:"index,omitempty"`
	// Branch is the original branch a stash was created on.
	Branch string `json:"branch,omitempty" yaml:"branch,omitempty"`
	// Malformed describes a metadata parse failure. The ref still carries
	// placeholder values.
	Malformed string `json:"malformed,omitempty" yaml:"malformed,omitempty"`
}

// TargetCommit returns the commit used for reachability checks.
func (r LocalRef) TargetCommit() string {
	if r.Peeled != "" {
		return r.Peeled
	}
	return r.Commit
}

// ShortCommit returns an abbreviated commit id for display.
func (r LocalRef) ShortCommit() string {
	if len(r.Commit) > 7 {
		return r.Commit[:7]
	}
	return r.Commit
}

// MatchKind records how a local ref was found on a remote.
type MatchKind string

const (
	// MatchDirect is an exact name match on an advertised ref.
	MatchDirect MatchKind = "direct"
	// MatchPeeled is a name match on the remote's peeled (^{}) tag entry.
	MatchPeeled MatchKind = "peeled"
	// MatchReflog is a heuristic match on a fetch/push reflog record.
	MatchReflog MatchKind = "reflog"
	// MatchReachable is a heuristic match on reachability from a
	// remote-tracking branch tip.
	MatchReachable MatchKind = "reachable"
)

// SnapshotMode selects how remote knowledge is obtained.
type SnapshotMode string

const (
	// ModeExact queries each remote over the network.
	ModeExact SnapshotMode = "exact"
	// ModeHeuristic approximates remote state from local history only.
	ModeHeuristic SnapshotMode = "heuristic"
)

// ParseMode validates a mode flag value.
func ParseMode(raw string) (SnapshotMode, error) {
	mode := SnapshotMode(strings.ToLower(strings.TrimSpace(raw)))
	switch mode {
	case "", ModeExact:
		return ModeExact, nil
	case ModeHeuristic:
		return mode, nil
	default:
		return "", fmt.Errorf("unsupported mode %q (expected exact or heuristic)", raw)
	}
}

// UnreachablePolicy decides what happens to a remote that cannot be queried.
type UnreachablePolicy string

const (
	// UnreachableSkip drops the remote from classification with a warning.
	UnreachableSkip UnreachablePolicy = "skip"
	// UnreachableHeuristic falls back to a heuristic snapshot for the remote.
	UnreachableHeuristic UnreachablePolicy = "heuristic"
	// UnreachableAbort fails the run.
	UnreachableAbort UnreachablePolicy = "abort"
)

// ParseUnreachablePolicy validates an --on-unreachable value. Empty means skip.
func ParseUnreachablePolicy(raw string) (UnreachablePolicy, error) {
	policy := UnreachablePolicy(strings.ToLower(strings.TrimSpace(raw)))
	switch policy {
	case "":
		return UnreachableSkip, nil
	case UnreachableSkip, UnreachableHeuristic, UnreachableAbort:
		return policy, nil
	default:
		return "", fmt.Errorf("unsupported unreachable policy %q (expected skip, heuristic, or abort)", raw)
	}
}

// Match names one remote a ref was found on.
type Match struct {
	Remote string    `json:"remote" yaml:"remote"`
	Kind   MatchKind `json:"kind" yaml:"kind"`
}

// ClassificationResult is the reconciliation outcome for one local ref.
type ClassificationResult struct {
	// Ref is the classified local ref.
	Ref LocalRef `json:"ref" yaml:"ref"`
	// LocalOnly is true only when no reachable remote snapshot matched.
	LocalOnly bool `json:"local_only" yaml:"local_only"`
	// Matches lists the remotes the ref was found on, in registry order.
	Matches []Match `json:"matches,omitempty" yaml:"matches,omitempty"`
	// SuggestedCommand is the cleanup command for local-only refs. It is
	// never executed.
	SuggestedCommand string `json:"suggested_command,omitempty" yaml:"suggested_command,omitempty"`
	// Note carries per-ref annotations such as metadata parse failures.
	Note string `json:"note,omitempty" yaml:"note,omitempty"`
}

// CategoryReport groups results for one ref kind.
type CategoryReport struct {
	Kind    RefKind                `json:"kind" yaml:"kind"`
	Results []ClassificationResult `json:"results" yaml:"results"`
	// Evaluated is the number of refs classified. It is less than Total
	// when a limit truncated the category.
	Evaluated int  `json:"evaluated" yaml:"evaluated"`
	Total     int  `json:"total" yaml:"total"`
	Truncated bool `json:"truncated" yaml:"truncated"`
	// Remotes names the remotes whose snapshots took part, in registry
	// order.
	Remotes []string `json:"remotes,omitempty" yaml:"remotes,omitempty"`
}

// LocalOnly returns the local-only subset of results in enumerator order.
func (c CategoryReport) LocalOnly() []ClassificationResult {
	out := make([]ClassificationResult, 0, len(c.Results))
	for _, res := range c.Results {
		if res.LocalOnly {
			out = append(out, res)
		}
	}
	return out
}

// Report is the top-level output of a check run.
type Report struct {
	// GeneratedAt is the timestamp when this report was produced.
	GeneratedAt time.Time `json:"generated_at" yaml:"generated_at"`
	// Path is the repository the report describes.
	Path string `json:"path" yaml:"path"`
	// Mode is the snapshot mode requested for the run.
	Mode SnapshotMode `json:"mode" yaml:"mode"`
	// Remotes are the remotes whose snapshots took part in classification.
	Remotes []Remote `json:"remotes" yaml:"remotes"`
	// Warnings flag conditions that weaken the local-only guarantee.
	Warnings []string `json:"warnings,omitempty" yaml:"warnings,omitempty"`
	// Categories holds one entry per requested ref kind.
	Categories []CategoryReport `json:"categories" yaml:"categories"`
}

// LocalOnlyCount totals local-only refs across categories.
func (r *Report) LocalOnlyCount() int {
	if r == nil {
		return 0
	}
	n := 0
	for _, cat := range r.Categories {
		n += len(cat.LocalOnly())
	}
	return n
}
