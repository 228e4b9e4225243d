// SPDX-License-Identifier: MIT
package vcs

import (
	"fmt"
	"strings"

	"github.com/skaphos/refcheck/internal/gitx"
)

// Backend names accepted by --backend and the config file.
const (
	BackendGit   = "git"
	BackendGoGit = "gogit"
)

// ParseBackend normalizes a backend selection. Empty selects git.
func ParseBackend(raw string) (string, error) {
	name := strings.ToLower(strings.TrimSpace(raw))
	switch name {
	case "", BackendGit:
		return BackendGit, nil
	case BackendGoGit, "go-git":
		return BackendGoGit, nil
	default:
		return "", fmt.Errorf("unsupported backend %q (supported: %s,%s)", raw, BackendGit, BackendGoGit)
	}
}

// NewAdapterForBackend creates an adapter for a --backend selection.
// A nil runner uses the git binary on PATH.
func NewAdapterForBackend(raw string, runner gitx.Runner) (Adapter, error) {
	name, err := ParseBackend(raw)
	if err != nil {
		return nil, err
	}
	if name == BackendGoGit {
		return NewGoGitAdapter(runner), nil
	}
	return NewGitAdapter(runner), nil
}
