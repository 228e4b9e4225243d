// SPDX-License-Identifier: MIT
package vcs

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"strings"

	gitlib "github.com/go-git/go-git/v5"
	"github.com/go-git/go-git/v5/plumbing/transport"

	"github.com/skaphos/refcheck/internal/gitx"
	"github.com/skaphos/refcheck/internal/model"
)

// GoGitAdapter answers remote configuration and ls-remote queries with
// go-git. Local history queries (refs, stashes, reflogs, reachability) go
// through the embedded git CLI adapter.
type GoGitAdapter struct {
	*GitAdapter
}

func NewGoGitAdapter(runner gitx.Runner) *GoGitAdapter {
	return &GoGitAdapter{GitAdapter: NewGitAdapter(runner)}
}

func (g *GoGitAdapter) Name() string { return BackendGoGit }

func (g *GoGitAdapter) open(dir string) (*gitlib.Repository, error) {
	repo, err := gitlib.PlainOpenWithOptions(dir, &gitlib.PlainOpenOptions{DetectDotGit: true})
	if err != nil {
		if errors.Is(err, gitlib.ErrRepositoryNotExists) {
			return nil, fmt.Errorf("%s: %w", dir, gitx.ErrNotARepository)
		}
		return nil, fmt.Errorf("open repository: %w", err)
	}
	return repo, nil
}

// Remotes returns configured remotes sorted by name, matching `git remote`.
func (g *GoGitAdapter) Remotes(_ context.Context, dir string) ([]model.Remote, error) {
	repo, err := g.open(dir)
	if err != nil {
		return nil, err
	}
	remotes, err := repo.Remotes()
	if err != nil {
		return nil, fmt.Errorf("read remotes: %w", err)
	}
	if len(remotes) == 0 {
		return nil, nil
	}
	out := make([]model.Remote, 0, len(remotes))
	for _, remote := range remotes {
		cfg := remote.Config()
		if cfg == nil || len(cfg.URLs) == 0 {
			continue
		}
		out = append(out, model.Remote{Name: cfg.Name, URL: cfg.URLs[0]})
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Name < out[j].Name })
	return out, nil
}

// ListRemoteRefs lists the remote's advertised heads or tags. Annotated tags
// are reported twice, the second time peeled, like `git ls-remote`.
func (g *GoGitAdapter) ListRemoteRefs(ctx context.Context, dir, remote string, kind model.RefKind) ([]gitx.RemoteRef, error) {
	var prefix string
	switch kind {
	case model.KindBranch:
		prefix = "refs/heads/"
	case model.KindTag:
		prefix = "refs/tags/"
	default:
		return nil, fmt.Errorf("unsupported ref kind %q", kind)
	}
	repo, err := g.open(dir)
	if err != nil {
		return nil, err
	}
	rem, err := repo.Remote(remote)
	if err != nil {
		return nil, fmt.Errorf("remote %s: %w", remote, err)
	}
	advertised, err := rem.ListContext(ctx, &gitlib.ListOptions{PeelingOption: gitlib.AppendPeeled})
	if err != nil {
		if errors.Is(err, transport.ErrEmptyRemoteRepository) {
			return nil, nil
		}
		return nil, fmt.Errorf("list %s: %w", remote, err)
	}
	var out []gitx.RemoteRef
	for _, ref := range advertised {
		name := ref.Name().String()
		peeled := false
		if base, ok := strings.CutSuffix(name, "^{}"); ok {
			name = base
			peeled = true
		}
		if !strings.HasPrefix(name, prefix) || ref.Hash().IsZero() {
			continue
		}
		out = append(out, gitx.RemoteRef{Hash: ref.Hash().String(), Ref: name, Peeled: peeled})
	}
	sort.SliceStable(out, func(i, j int) bool {
		if out[i].Ref != out[j].Ref {
			return out[i].Ref < out[j].Ref
		}
		return !out[i].Peeled && out[j].Peeled
	})
	return out, nil
}
