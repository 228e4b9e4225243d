// SPDX-License-Identifier: MIT
// Package registry discovers which candidate remotes a repository has
// configured.
package registry

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/skaphos/refcheck/internal/model"
)

// ErrNoRemoteConfigured is returned when none of the candidate remotes exist.
var ErrNoRemoteConfigured = errors.New("no remote configured")

// DefaultCandidates are checked in order; upstream wins over origin.
var DefaultCandidates = []string{"upstream", "origin"}

// RemoteLister lists a repository's configured remotes.
type RemoteLister interface {
	Remotes(ctx context.Context, dir string) ([]model.Remote, error)
}

// Discover returns the configured remotes whose names appear in candidates,
// ordered by candidate order. Empty candidates select DefaultCandidates.
// Duplicate candidate names are ignored.
func Discover(ctx context.Context, lister RemoteLister, dir string, candidates []string) ([]model.Remote, error) {
	candidates = normalizeCandidates(candidates)
	configured, err := lister.Remotes(ctx, dir)
	if err != nil {
		return nil, fmt.Errorf("list remotes: %w", err)
	}
	byName := make(map[string]model.Remote, len(configured))
	for _, remote := range configured {
		byName[remote.Name] = remote
	}
	var out []model.Remote
	for _, name := range candidates {
		if remote, ok := byName[name]; ok {
			out = append(out, remote)
		}
	}
	if len(out) == 0 {
		return nil, fmt.Errorf("%w (looked for %s)", ErrNoRemoteConfigured, strings.Join(candidates, ", "))
	}
	return out, nil
}

// Names returns the remote names in order.
func Names(remotes []model.Remote) []string {
	names := make([]string, 0, len(remotes))
	for _, remote := range remotes {
		names = append(names, remote.Name)
	}
	return names
}

func normalizeCandidates(candidates []string) []string {
	seen := make(map[string]struct{}, len(candidates))
	out := make([]string, 0, len(candidates))
	for _, name := range candidates {
		name = strings.TrimSpace(name)
		if name == "" {
			continue
		}
		if _, ok := seen[name]; ok {
			continue
		}
		seen[name] = struct{}{}
		out = append(out, name)
	}
	if len(out) == 0 {
		return append([]string(nil), DefaultCandidates...)
	}
	return out
}
