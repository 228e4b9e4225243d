package refcheck

import (
	"bytes"
	"context"
	"path/filepath"
	"strings"
	"testing"

	"github.com/spf13/cobra"
	"github.com/spf13/pflag"

	"github.com/skaphos/refcheck/internal/gitx"
	"github.com/skaphos/refcheck/internal/model"
	"github.com/skaphos/refcheck/internal/vcs"
)

// stubAdapter serves a fixed repository state.
type stubAdapter struct {
	notRepo bool
	remotes []model.Remote
	local   map[model.RefKind][]model.LocalRef
	remote  map[string][]gitx.RemoteRef
}

func newStubAdapter() *stubAdapter {
	return &stubAdapter{
		remotes: []model.Remote{{Name: "upstream", URL: "https://github.com/org/app.git"}},
		local: map[model.RefKind][]model.LocalRef{
			model.KindBranch: {{Kind: model.KindBranch, Name: "main", Commit: "c1"}},
			model.KindTag: {
				{Kind: model.KindTag, Name: "v1.0", Commit: "c1", Subject: "release 1.0"},
				{Kind: model.KindTag, Name: "v2.0", Commit: "c2", Subject: "release 2.0"},
			},
		},
		remote: map[string][]gitx.RemoteRef{
			"upstream": {
				{Hash: "c1", Ref: "refs/heads/main"},
				{Hash: "c1", Ref: "refs/tags/v1.0"},
			},
		},
	}
}

func (s *stubAdapter) Name() string { return "stub" }

func (s *stubAdapter) IsRepo(context.Context, string) (bool, error) { return !s.notRepo, nil }

func (s *stubAdapter) TopLevel(_ context.Context, dir string) (string, error) { return dir, nil }

func (s *stubAdapter) Remotes(context.Context, string) ([]model.Remote, error) {
	return s.remotes, nil
}

func (s *stubAdapter) LocalRefs(_ context.Context, _ string, kind model.RefKind) ([]model.LocalRef, error) {
	return s.local[kind], nil
}

func (s *stubAdapter) Stashes(context.Context, string) ([]model.LocalRef, error) {
	return s.local[model.KindStash], nil
}

func (s *stubAdapter) ListRemoteRefs(_ context.Context, _, remote string, kind model.RefKind) ([]gitx.RemoteRef, error) {
	prefix := "refs/heads/"
	if kind == model.KindTag {
		prefix = "refs/tags/"
	}
	var out []gitx.RemoteRef
	for _, ref := range s.remote[remote] {
		if strings.HasPrefix(ref.Ref, prefix) {
			out = append(out, ref)
		}
	}
	return out, nil
}

func (s *stubAdapter) RemoteReflog(context.Context, string, string) ([]gitx.ReflogEntry, error) {
	return nil, nil
}

func (s *stubAdapter) ReachableCommits(context.Context, string, string) ([]string, error) {
	return nil, nil
}

func (s *stubAdapter) Fetch(context.Context, string, string) error { return nil }

func (s *stubAdapter) NormalizeURL(rawURL string) string { return gitx.NormalizeURL(rawURL) }

// useStubAdapter routes every backend to adapter for the test's duration
// and isolates config lookup from the user's environment.
func useStubAdapter(t *testing.T, adapter vcs.Adapter) {
	t.Helper()
	prev := newAdapter
	newAdapter = func(string, gitx.Runner) (vcs.Adapter, error) { return adapter, nil }
	t.Cleanup(func() { newAdapter = prev })
	useRepositoryRoot(t, "")
	t.Setenv("REFCHECK_CONFIG", filepath.Join(t.TempDir(), "config.yaml"))
	t.Setenv("NO_COLOR", "")
}

// useRepositoryRoot makes every directory resolve to the repository root
// top, or to no repository when top is empty.
func useRepositoryRoot(t *testing.T, top string) {
	t.Helper()
	prev := repositoryRoot
	repositoryRoot = func(context.Context, string) string { return top }
	t.Cleanup(func() { repositoryRoot = prev })
}

func resetCommandFlags(cmd *cobra.Command) {
	reset := func(f *pflag.Flag) {
		_ = f.Value.Set(f.DefValue)
		f.Changed = false
	}
	cmd.Flags().VisitAll(reset)
	cmd.PersistentFlags().VisitAll(reset)
	for _, sub := range cmd.Commands() {
		resetCommandFlags(sub)
	}
}

// runCLI executes the command tree with args and returns stdout, stderr and
// the exit code.
func runCLI(t *testing.T, args ...string) (string, string, int) {
	t.Helper()
	resetCommandFlags(rootCmd)
	prevTTY := isTerminalFD
	isTerminalFD = func(int) bool { return false }
	defer func() { isTerminalFD = prevTTY }()

	out := &bytes.Buffer{}
	errOut := &bytes.Buffer{}
	rootCmd.SetOut(out)
	rootCmd.SetErr(errOut)
	rootCmd.SetIn(&bytes.Buffer{})
	rootCmd.SetArgs(args)
	defer func() {
		rootCmd.SetOut(nil)
		rootCmd.SetErr(nil)
		rootCmd.SetIn(nil)
		rootCmd.SetArgs(nil)
	}()
	code := ExecuteWithExitCode()
	return out.String(), errOut.String(), code
}
