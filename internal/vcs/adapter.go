package vcs

import (
	"context"

	"github.com/skaphos/refcheck/internal/gitx"
	"github.com/skaphos/refcheck/internal/model"
)

// Adapter defines the repository operations refcheck relies on.
// The git CLI adapter is the default; the gogit adapter answers remote
// queries in-process.
type Adapter interface {
	Name() string
	IsRepo(ctx context.Context, dir string) (bool, error)
	TopLevel(ctx context.Context, dir string) (string, error)
	Remotes(ctx context.Context, dir string) ([]model.Remote, error)
	LocalRefs(ctx context.Context, dir string, kind model.RefKind) ([]model.LocalRef, error)
	Stashes(ctx context.Context, dir string) ([]model.LocalRef, error)
	ListRemoteRefs(ctx context.Context, dir, remote string, kind model.RefKind) ([]gitx.RemoteRef, error)
	RemoteReflog(ctx context.Context, dir, remote string) ([]gitx.ReflogEntry, error)
	ReachableCommits(ctx context.Context, dir, remote string) ([]string, error)
	Fetch(ctx context.Context, dir, remote string) error
	NormalizeURL(rawURL string) string
}

// GitAdapter implements Adapter using the git CLI via gitx.
type GitAdapter struct {
	Runner gitx.Runner
}

func NewGitAdapter(runner gitx.Runner) *GitAdapter {
	if runner == nil {
		runner = &gitx.GitRunner{}
	}
	return &GitAdapter{Runner: runner}
}

func (g *GitAdapter) Name() string { return BackendGit }

func (g *GitAdapter) IsRepo(ctx context.Context, dir string) (bool, error) {
	return gitx.IsRepo(ctx, g.Runner, dir)
}

func (g *GitAdapter) TopLevel(ctx context.Context, dir string) (string, error) {
	return gitx.TopLevel(ctx, g.Runner, dir)
}

func (g *GitAdapter) Remotes(ctx context.Context, dir string) ([]model.Remote, error) {
	return gitx.Remotes(ctx, g.Runner, dir)
}

func (g *GitAdapter) LocalRefs(ctx context.Context, dir string, kind model.RefKind) ([]model.LocalRef, error) {
	return gitx.LocalRefs(ctx, g.Runner, dir, kind)
}

func (g *GitAdapter) Stashes(ctx context.Context, dir string) ([]model.LocalRef, error) {
	return gitx.Stashes(ctx, g.Runner, dir)
}

func (g *GitAdapter) ListRemoteRefs(ctx context.Context, dir, remote string, kind model.RefKind) ([]gitx.RemoteRef, error) {
	return gitx.LsRemote(ctx, g.Runner, dir, remote, kind)
}

func (g *GitAdapter) RemoteReflog(ctx context.Context, dir, remote string) ([]gitx.ReflogEntry, error) {
	return gitx.RemoteReflog(ctx, g.Runner, dir, remote)
}

func (g *GitAdapter) ReachableCommits(ctx context.Context, dir, remote string) ([]string, error) {
	return gitx.ReachableCommits(ctx, g.Runner, dir, remote)
}

func (g *GitAdapter) Fetch(ctx context.Context, dir, remote string) error {
	return gitx.Fetch(ctx, g.Runner, dir, remote)
}

func (g *GitAdapter) NormalizeURL(rawURL string) string {
	return gitx.NormalizeURL(rawURL)
}
