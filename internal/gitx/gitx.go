// Package gitx provides helpers for executing git commands and parsing
// their output. It shells out to the installed git binary.
package gitx

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"os/exec"
	"strings"

	"github.com/skaphos/refcheck/internal/model"
)

// ErrNotARepository is returned when a directory is not inside a git repository.
var ErrNotARepository = errors.New("not a git repository")

// Runner executes git commands in a given repo directory.
// This interface allows mocking in tests.
type Runner interface {
	// Run executes a git command in the given directory and returns its
	// trimmed stdout. Stderr is folded into the returned error.
	Run(ctx context.Context, dir string, args ...string) (string, error)
}

// GitRunner is the default Runner implementation that shells out to git.
type GitRunner struct {
	// GitBin is the path to the git binary. Defaults to "git".
	GitBin string
}

// Run executes a git command.
func (g *GitRunner) Run(ctx context.Context, dir string, args ...string) (string, error) {
	bin := g.GitBin
	if bin == "" {
		bin = "git"
	}
	cmd := exec.CommandContext(ctx, bin, args...)
	if strings.TrimSpace(dir) != "" {
		cmd.Dir = dir
	}
	var stdout bytes.Buffer
	var stderr bytes.Buffer
	cmd.Stdout = &stdout
	cmd.Stderr = &stderr
	if err := cmd.Run(); err != nil {
		errText := strings.TrimSpace(stderr.String())
		if errText != "" {
			return "", fmt.Errorf("%s %s: %s: %w", bin, strings.Join(args, " "), errText, err)
		}
		return "", fmt.Errorf("%s %s: %w", bin, strings.Join(args, " "), err)
	}
	return strings.TrimSpace(stdout.String()), nil
}

// TracingRunner logs every command before delegating to Next.
type TracingRunner struct {
	Next  Runner
	Trace func(format string, args ...any)
}

// Run traces the command line and runs it.
func (t *TracingRunner) Run(ctx context.Context, dir string, args ...string) (string, error) {
	if t.Trace != nil {
		t.Trace("$ git %s", strings.Join(args, " "))
	}
	out, err := t.Next.Run(ctx, dir, args...)
	if err != nil && t.Trace != nil {
		t.Trace("  failed: %v", err)
	}
	return out, err
}

// IsRepo checks whether the given path is inside a git repository
// (bare or with a working tree). Only git's "not a git repository" answer
// yields false; other failures, such as a missing git binary, are errors.
func IsRepo(ctx context.Context, r Runner, dir string) (bool, error) {
	out, err := r.Run(ctx, dir, "rev-parse", "--git-dir")
	if err != nil {
		if !errors.Is(err, exec.ErrNotFound) && ClassifyError(err) == ClassNotARepo {
			return false, nil
		}
		return false, fmt.Errorf("git rev-parse: %w", err)
	}
	return strings.TrimSpace(out) != "", nil
}

// TopLevel returns the working tree root, or the git dir for bare repos.
func TopLevel(ctx context.Context, r Runner, dir string) (string, error) {
	out, err := r.Run(ctx, dir, "rev-parse", "--show-toplevel")
	if err == nil && strings.TrimSpace(out) != "" {
		return strings.TrimSpace(out), nil
	}
	out, err = r.Run(ctx, dir, "rev-parse", "--absolute-git-dir")
	if err != nil {
		return "", fmt.Errorf("git rev-parse: %w", err)
	}
	return strings.TrimSpace(out), nil
}

// Remotes returns all configured remotes for the repo.
func Remotes(ctx context.Context, r Runner, dir string) ([]model.Remote, error) {
	out, err := r.Run(ctx, dir, "remote")
	if err != nil {
		return nil, fmt.Errorf("git remote: %w", err)
	}
	if strings.TrimSpace(out) == "" {
		return nil, nil
	}
	names := strings.Split(strings.TrimSpace(out), "\n")
	var remotes []model.Remote
	for _, name := range names {
		name = strings.TrimSpace(name)
		if name == "" {
			continue
		}
		url, err := r.Run(ctx, dir, "remote", "get-url", name)
		if err != nil {
			continue
		}
		remotes = append(remotes, model.Remote{
			Name: name,
			URL:  strings.TrimSpace(url),
		})
	}
	return remotes, nil
}

// RefFormat selects one unit-separated record per ref. Annotated tags carry
// no author, so the tagger is used instead; creatordate covers both.
const RefFormat = "--format=%(refname:lstrip=2)%1f%(objectname)%1f%(*objectname)%1f" +
	"%(if)%(authorname)%(then)%(authorname)%(else)%(taggername)%(end)%1f" +
	"%(if)%(authoremail)%(then)%(authoremail)%(else)%(taggeremail)%(end)%1f" +
	"%(creatordate:iso-strict)%1f%(subject)"

// StashFormat mirrors RefFormat for `git stash list`.
const StashFormat = "--format=%gd%x1f%H%x1f%an%x1f%ae%x1f%aI%x1f%gs"

// LocalRefs lists local branches or tags in refname order.
func LocalRefs(ctx context.Context, r Runner, dir string, kind model.RefKind) ([]model.LocalRef, error) {
	var pattern string
	switch kind {
	case model.KindBranch:
		pattern = "refs/heads"
	case model.KindTag:
		pattern = "refs/tags"
	default:
		return nil, fmt.Errorf("unsupported ref kind %q", kind)
	}
	out, err := r.Run(ctx, dir, "for-each-ref", RefFormat, pattern)
	if err != nil {
		return nil, fmt.Errorf("git for-each-ref %s: %w", pattern, err)
	}
	return ParseRefRecords(out, kind), nil
}

// Stashes lists stash entries, newest first.
func Stashes(ctx context.Context, r Runner, dir string) ([]model.LocalRef, error) {
	out, err := r.Run(ctx, dir, "stash", "list", StashFormat)
	if err != nil {
		return nil, fmt.Errorf("git stash list: %w", err)
	}
	return ParseStashList(out), nil
}

// LsRemote queries a remote for its advertised branch heads or tags.
func LsRemote(ctx context.Context, r Runner, dir, remote string, kind model.RefKind) ([]RemoteRef, error) {
	var flag string
	switch kind {
	case model.KindBranch:
		flag = "--heads"
	case model.KindTag:
		flag = "--tags"
	default:
		return nil, fmt.Errorf("unsupported ref kind %q", kind)
	}
	out, err := r.Run(ctx, dir, "ls-remote", flag, remote)
	if err != nil {
		return nil, err
	}
	return ParseLsRemote(out)
}

// RemoteReflog returns reflog records of the remote-tracking refs under
// refs/remotes/<remote>/.
func RemoteReflog(ctx context.Context, r Runner, dir, remote string) ([]ReflogEntry, error) {
	tips, err := TrackingTips(ctx, r, dir, remote)
	if err != nil || len(tips) == 0 {
		return nil, err
	}
	out, err := r.Run(ctx, dir, "log", "--walk-reflogs", "--format=%gD%x1f%gs", "--remotes="+remote)
	if err != nil {
		return nil, fmt.Errorf("git log --walk-reflogs: %w", err)
	}
	return ParseReflog(out, remote), nil
}

// TrackingTips returns the commit ids of refs/remotes/<remote>/* tips.
func TrackingTips(ctx context.Context, r Runner, dir, remote string) ([]string, error) {
	out, err := r.Run(ctx, dir, "for-each-ref", "--format=%(objectname)", "refs/remotes/"+remote)
	if err != nil {
		return nil, fmt.Errorf("git for-each-ref refs/remotes/%s: %w", remote, err)
	}
	return splitLines(out), nil
}

// ReachableCommits lists every commit reachable from the remote-tracking
// tips of remote. An empty result means no tracking state exists.
func ReachableCommits(ctx context.Context, r Runner, dir, remote string) ([]string, error) {
	tips, err := TrackingTips(ctx, r, dir, remote)
	if err != nil || len(tips) == 0 {
		return nil, err
	}
	out, err := r.Run(ctx, dir, "rev-list", "--remotes="+remote)
	if err != nil {
		return nil, fmt.Errorf("git rev-list --remotes=%s: %w", remote, err)
	}
	return splitLines(out), nil
}

// Fetch refreshes remote-tracking state for one remote, including tags.
func Fetch(ctx context.Context, r Runner, dir, remote string) error {
	_, err := r.Run(ctx, dir, "-c", "fetch.recurseSubmodules=false", "fetch", "--tags", "--prune", "--no-recurse-submodules", remote)
	return err
}

func splitLines(out string) []string {
	if strings.TrimSpace(out) == "" {
		return nil
	}
	var lines []string
	for _, line := range strings.Split(out, "\n") {
		line = strings.TrimSpace(line)
		if line != "" {
			lines = append(lines, line)
		}
	}
	return lines
}
