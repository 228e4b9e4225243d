// SPDX-License-Identifier: MIT
// Package refs enumerates local branches, tags, and stashes.
package refs

import (
	"context"
	"fmt"
	"iter"
	"strings"

	"github.com/bmatcuk/doublestar/v4"

	"github.com/skaphos/refcheck/internal/model"
)

// Source reads local refs from a repository.
type Source interface {
	LocalRefs(ctx context.Context, dir string, kind model.RefKind) ([]model.LocalRef, error)
	Stashes(ctx context.Context, dir string) ([]model.LocalRef, error)
}

// Enumerator lists local refs of one category at a time.
type Enumerator struct {
	source  Source
	dir     string
	exclude []string
}

// NewEnumerator returns an Enumerator for the repository at dir. Branch and
// tag names matching any exclude glob are skipped; stashes are never
// excluded.
func NewEnumerator(source Source, dir string, exclude []string) (*Enumerator, error) {
	patterns := make([]string, 0, len(exclude))
	for _, pattern := range exclude {
		pattern = strings.TrimSpace(pattern)
		if pattern == "" {
			continue
		}
		if !doublestar.ValidatePattern(pattern) {
			return nil, fmt.Errorf("invalid exclude pattern %q", pattern)
		}
		patterns = append(patterns, pattern)
	}
	return &Enumerator{source: source, dir: dir, exclude: patterns}, nil
}

// Enumerate captures the refs of kind and returns a sequence over them with
// the number of refs it yields. The sequence may be ranged over any number
// of times and always yields the same refs in the same order: git's refname
// order for branches and tags, newest first for stashes. An empty category
// yields an empty sequence.
func (e *Enumerator) Enumerate(ctx context.Context, kind model.RefKind) (iter.Seq[model.LocalRef], int, error) {
	var (
		captured []model.LocalRef
		err      error
	)
	switch kind {
	case model.KindBranch, model.KindTag:
		captured, err = e.source.LocalRefs(ctx, e.dir, kind)
	case model.KindStash:
		captured, err = e.source.Stashes(ctx, e.dir)
	default:
		return nil, 0, fmt.Errorf("unsupported ref kind %q", kind)
	}
	if err != nil {
		return nil, 0, fmt.Errorf("enumerate %s: %w", kind.Plural(), err)
	}

	total := 0
	for _, ref := range captured {
		if !e.excluded(ref) {
			total++
		}
	}
	seq := func(yield func(model.LocalRef) bool) {
		for _, ref := range captured {
			if e.excluded(ref) {
				continue
			}
			if !yield(ref) {
				return
			}
		}
	}
	return seq, total, nil
}

func (e *Enumerator) excluded(ref model.LocalRef) bool {
	if ref.Kind == model.KindStash {
		return false
	}
	for _, pattern := range e.exclude {
		// Patterns are validated in NewEnumerator.
		if ok, _ := doublestar.Match(pattern, ref.Name); ok {
			return true
		}
	}
	return false
}
