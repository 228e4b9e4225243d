// SPDX-License-Identifier: MIT
package snapshot

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/avast/retry-go/v4"

	"github.com/skaphos/refcheck/internal/gitx"
	"github.com/skaphos/refcheck/internal/model"
)

// Source answers remote queries for the repository.
type Source interface {
	ListRemoteRefs(ctx context.Context, dir, remote string, kind model.RefKind) ([]gitx.RemoteRef, error)
	RemoteReflog(ctx context.Context, dir, remote string) ([]gitx.ReflogEntry, error)
	ReachableCommits(ctx context.Context, dir, remote string) ([]string, error)
	Fetch(ctx context.Context, dir, remote string) error
	NormalizeURL(rawURL string) string
}

// RetryPolicy bounds network retries. Local reads are never retried.
type RetryPolicy struct {
	// Attempts is the total number of tries, including the first.
	// Values below 1 mean a single try.
	Attempts uint
	Delay    time.Duration
}

// Options configure a Cache.
type Options struct {
	// Dir is the repository git commands run in.
	Dir  string
	Mode model.SnapshotMode
	// Retry applies to remote listing and fetches.
	Retry RetryPolicy
	// Timeout bounds each git invocation. Zero disables it.
	Timeout time.Duration
	Tracef  func(format string, args ...any)
}

type cacheKey struct {
	identity string
	kind     model.RefKind
	mode     model.SnapshotMode
}

type cacheEntry struct {
	snap *Snapshot
	err  error
}

// Cache builds each remote's snapshot at most once per kind and mode and
// reuses it for every lookup in the run. Exact snapshots are shared between
// remotes whose URLs name the same repository. A Cache is not safe for
// concurrent use.
type Cache struct {
	source Source
	opts   Options

	entries   map[cacheKey]cacheEntry
	reflogs   map[string]map[string]struct{}
	reachable map[string]map[string]struct{}
}

// New returns an empty Cache.
func New(source Source, opts Options) *Cache {
	if opts.Mode == "" {
		opts.Mode = model.ModeExact
	}
	if opts.Retry.Attempts < 1 {
		opts.Retry.Attempts = 1
	}
	return &Cache{
		source:    source,
		opts:      opts,
		entries:   map[cacheKey]cacheEntry{},
		reflogs:   map[string]map[string]struct{}{},
		reachable: map[string]map[string]struct{}{},
	}
}

// Mode returns the cache's default snapshot mode.
func (c *Cache) Mode() model.SnapshotMode { return c.opts.Mode }

// Snapshot returns remote's snapshot for kind in the cache's default mode.
func (c *Cache) Snapshot(ctx context.Context, remote model.Remote, kind model.RefKind) (*Snapshot, error) {
	return c.SnapshotWithMode(ctx, remote, kind, c.opts.Mode)
}

// SnapshotWithMode returns remote's snapshot for kind built in mode. Exact
// mode failures are returned as *RemoteUnreachableError and remembered, so a
// remote is not retried again for the same kind. Heuristic mode failures are
// local read errors.
func (c *Cache) SnapshotWithMode(ctx context.Context, remote model.Remote, kind model.RefKind, mode model.SnapshotMode) (*Snapshot, error) {
	key := cacheKey{identity: c.identity(remote, mode), kind: kind, mode: mode}
	if entry, ok := c.entries[key]; ok {
		if entry.err != nil {
			var unreachable *RemoteUnreachableError
			if errors.As(entry.err, &unreachable) && unreachable.Remote != remote.Name {
				relabeled := *unreachable
				relabeled.Remote = remote.Name
				return nil, &relabeled
			}
			return nil, entry.err
		}
		if entry.snap.Remote != remote.Name {
			c.tracef("snapshot %s %s: reusing %s (same repository)", remote.Name, kind.Plural(), entry.snap.Remote)
			return entry.snap.forRemote(remote.Name), nil
		}
		return entry.snap, nil
	}

	var (
		snap *Snapshot
		err  error
	)
	switch {
	case kind == model.KindStash:
		// Remotes never advertise stashes.
		snap = empty(remote.Name, kind, mode)
	case mode == model.ModeHeuristic:
		snap, err = c.buildHeuristic(ctx, remote.Name, kind)
	default:
		snap, err = c.buildExact(ctx, remote.Name, kind)
	}
	if err != nil {
		if ctx.Err() == nil {
			c.entries[key] = cacheEntry{err: err}
		}
		return nil, err
	}
	c.tracef("snapshot %s %s (%s): %d refs", remote.Name, kind.Plural(), mode, len(snap.Names()))
	c.entries[key] = cacheEntry{snap: snap}
	return snap, nil
}

// Fetch refreshes remote's tracking refs and tags, with retries. Cached
// heuristic state for the remote is discarded.
func (c *Cache) Fetch(ctx context.Context, remote model.Remote) error {
	attempts := 0
	_, err := retry.DoWithData(func() (struct{}, error) {
		attempts++
		callCtx, cancel := c.callContext(ctx)
		defer cancel()
		return struct{}{}, c.source.Fetch(callCtx, c.opts.Dir, remote.Name)
	}, c.retryOptions(ctx, remote.Name, "fetch")...)
	if err != nil {
		if ctxErr := ctx.Err(); ctxErr != nil {
			return ctxErr
		}
		return &RemoteUnreachableError{Remote: remote.Name, Class: gitx.ClassifyError(err), Attempts: attempts, Err: err}
	}
	delete(c.reflogs, remote.Name)
	delete(c.reachable, remote.Name)
	for key := range c.entries {
		if key.mode == model.ModeHeuristic && key.identity == remote.Name {
			delete(c.entries, key)
		}
	}
	return nil
}

func (c *Cache) buildExact(ctx context.Context, remote string, kind model.RefKind) (*Snapshot, error) {
	attempts := 0
	advertised, err := retry.DoWithData(func() ([]gitx.RemoteRef, error) {
		attempts++
		callCtx, cancel := c.callContext(ctx)
		defer cancel()
		return c.source.ListRemoteRefs(callCtx, c.opts.Dir, remote, kind)
	}, c.retryOptions(ctx, remote, "list "+kind.Plural())...)
	if err != nil {
		if ctxErr := ctx.Err(); ctxErr != nil {
			return nil, ctxErr
		}
		if errors.Is(err, gitx.ErrMalformedOutput) {
			return nil, fmt.Errorf("list %s of %s: %w", kind.Plural(), remote, err)
		}
		return nil, &RemoteUnreachableError{Remote: remote, Kind: kind, Class: gitx.ClassifyError(err), Attempts: attempts, Err: err}
	}
	return newExact(remote, kind, advertised), nil
}

func (c *Cache) buildHeuristic(ctx context.Context, remote string, kind model.RefKind) (*Snapshot, error) {
	snap := empty(remote, kind, model.ModeHeuristic)
	// Tags have no remote-tracking refs, so only branches carry reflog
	// evidence.
	if kind == model.KindBranch {
		names, err := c.reflogNames(ctx, remote)
		if err != nil {
			return nil, err
		}
		snap.reflog = names
	}
	commits, err := c.reachableCommits(ctx, remote)
	if err != nil {
		return nil, err
	}
	snap.reachable = commits
	return snap, nil
}

func (c *Cache) reflogNames(ctx context.Context, remote string) (map[string]struct{}, error) {
	if names, ok := c.reflogs[remote]; ok {
		return names, nil
	}
	callCtx, cancel := c.callContext(ctx)
	defer cancel()
	entries, err := c.source.RemoteReflog(callCtx, c.opts.Dir, remote)
	if err != nil {
		return nil, fmt.Errorf("read reflog of %s tracking refs: %w", remote, err)
	}
	names := map[string]struct{}{}
	for _, entry := range entries {
		if entry.FromRemoteTransfer() {
			names[entry.Name] = struct{}{}
		}
	}
	c.reflogs[remote] = names
	return names, nil
}

func (c *Cache) reachableCommits(ctx context.Context, remote string) (map[string]struct{}, error) {
	if commits, ok := c.reachable[remote]; ok {
		return commits, nil
	}
	callCtx, cancel := c.callContext(ctx)
	defer cancel()
	list, err := c.source.ReachableCommits(callCtx, c.opts.Dir, remote)
	if err != nil {
		return nil, fmt.Errorf("list commits reachable from %s: %w", remote, err)
	}
	commits := make(map[string]struct{}, len(list))
	for _, commit := range list {
		commits[commit] = struct{}{}
	}
	c.reachable[remote] = commits
	return commits, nil
}

// identity keys exact snapshots by repository so that two remotes pointing
// at the same URL share one listing. Heuristic state lives under
// refs/remotes/<name>/ and is keyed by name.
func (c *Cache) identity(remote model.Remote, mode model.SnapshotMode) string {
	if mode == model.ModeExact {
		if id := c.source.NormalizeURL(remote.URL); id != "" {
			return "url:" + id
		}
	}
	return remote.Name
}

func (c *Cache) retryOptions(ctx context.Context, remote, what string) []retry.Option {
	return []retry.Option{
		retry.Context(ctx),
		retry.Attempts(c.opts.Retry.Attempts),
		retry.Delay(c.opts.Retry.Delay),
		retry.DelayType(retry.FixedDelay),
		retry.LastErrorOnly(true),
		retry.RetryIf(gitx.Retryable),
		retry.OnRetry(func(n uint, err error) {
			c.tracef("%s %s: attempt %d failed: %v", what, remote, n+1, err)
		}),
	}
}

func (c *Cache) callContext(ctx context.Context) (context.Context, context.CancelFunc) {
	if c.opts.Timeout <= 0 {
		return context.WithCancel(ctx)
	}
	return context.WithTimeout(ctx, c.opts.Timeout)
}

func (c *Cache) tracef(format string, args ...any) {
	if c.opts.Tracef != nil {
		c.opts.Tracef(format, args...)
	}
}
