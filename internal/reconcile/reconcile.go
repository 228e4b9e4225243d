// SPDX-License-Identifier: MIT
// Package reconcile classifies local refs against remote snapshots.
package reconcile

import (
	"context"
	"fmt"
	"iter"
	"strings"

	"github.com/skaphos/refcheck/internal/model"
)

// ProgressEvery is how many refs are classified between progress callbacks.
const ProgressEvery = 10

// Snapshot answers whether one remote has a ref.
type Snapshot interface {
	Lookup(ref model.LocalRef) (model.MatchKind, bool)
}

// RemoteSnapshot pairs a snapshot with the remote it describes.
type RemoteSnapshot struct {
	Remote   string
	Snapshot Snapshot
}

// Reconciler classifies refs. The zero value evaluates every ref and
// reports no progress.
type Reconciler struct {
	// Limit caps how many refs per category are evaluated. Zero or less
	// evaluates all of them.
	Limit int
	// OnProgress is called with the number of refs classified so far.
	OnProgress func(done, total int)
}

// Classify looks every ref of seq up in each snapshot, in order. A ref is
// local-only when no snapshot matches it. Results keep the order of seq.
// Total is the number of refs seq yields and is used for progress and
// truncation reporting.
func (r Reconciler) Classify(ctx context.Context, kind model.RefKind, seq iter.Seq[model.LocalRef], total int, snapshots []RemoteSnapshot) (model.CategoryReport, error) {
	report := model.CategoryReport{Kind: kind, Total: total}
	budget := total
	if r.Limit > 0 && r.Limit < budget {
		budget = r.Limit
	}
	report.Results = make([]model.ClassificationResult, 0, budget)

	if seq != nil {
		for ref := range seq {
			if err := ctx.Err(); err != nil {
				return report, err
			}
			if r.Limit > 0 && report.Evaluated >= r.Limit {
				break
			}
			report.Results = append(report.Results, classify(ref, snapshots))
			report.Evaluated++
			if report.Evaluated%ProgressEvery == 0 {
				r.progress(report.Evaluated, budget)
			}
		}
	}
	// Total may be stale if seq yielded more than promised.
	if report.Evaluated > report.Total {
		report.Total = report.Evaluated
	}
	report.Truncated = report.Evaluated < report.Total
	if report.Evaluated%ProgressEvery != 0 || report.Evaluated == 0 {
		r.progress(report.Evaluated, budget)
	}
	return report, nil
}

func (r Reconciler) progress(done, total int) {
	if r.OnProgress != nil {
		r.OnProgress(done, total)
	}
}

func classify(ref model.LocalRef, snapshots []RemoteSnapshot) model.ClassificationResult {
	res := model.ClassificationResult{Ref: ref}
	for _, rs := range snapshots {
		if rs.Snapshot == nil {
			continue
		}
		if match, ok := rs.Snapshot.Lookup(ref); ok {
			res.Matches = append(res.Matches, model.Match{Remote: rs.Remote, Kind: match})
		}
	}
	res.LocalOnly = len(res.Matches) == 0
	if res.LocalOnly {
		res.SuggestedCommand = SuggestedCommand(ref)
	}
	if ref.Malformed != "" {
		res.Note = ref.Malformed
	}
	return res
}

// SuggestedCommand returns the command that would delete ref. It is only
// ever printed.
func SuggestedCommand(ref model.LocalRef) string {
	switch ref.Kind {
	case model.KindBranch:
		return "git branch -D " + shellQuote(ref.Name)
	case model.KindTag:
		return "git tag -d " + shellQuote(ref.Name)
	case model.KindStash:
		return fmt.Sprintf("git stash drop stash@{%d}", ref.Index)
	default:
		return ""
	}
}

// shellQuote single-quotes names containing characters a POSIX shell would
// interpret.
func shellQuote(name string) string {
	if name != "" && strings.IndexFunc(name, unsafeShellRune) < 0 {
		return name
	}
	return "'" + strings.ReplaceAll(name, "'", `'\''`) + "'"
}

func unsafeShellRune(r rune) bool {
	switch {
	case r >= 'a' && r <= 'z', r >= 'A' && r <= 'Z', r >= '0' && r <= '9':
		return false
	case strings.ContainsRune("-_./+@:,%=", r):
		return false
	default:
		return true
	}
}
