// Package engine orchestrates a check run: repository validation, remote
// discovery, ref enumeration, remote snapshots, and reconciliation.
package engine

import (
	"context"
	"errors"
	"fmt"
	"path/filepath"
	"strings"
	"time"

	"github.com/skaphos/refcheck/internal/config"
	"github.com/skaphos/refcheck/internal/gitx"
	"github.com/skaphos/refcheck/internal/model"
	"github.com/skaphos/refcheck/internal/reconcile"
	"github.com/skaphos/refcheck/internal/refs"
	"github.com/skaphos/refcheck/internal/registry"
	"github.com/skaphos/refcheck/internal/snapshot"
	"github.com/skaphos/refcheck/internal/vcs"
)

// Engine is the core orchestrator for refcheck operations.
type Engine struct {
	cfg     *config.Config
	adapter vcs.Adapter
	now     func() time.Time
}

// New creates a new Engine with the given configuration. A nil cfg uses
// config.DefaultConfig and a nil adapter uses the git CLI.
func New(cfg *config.Config, adapter vcs.Adapter) *Engine {
	if cfg == nil {
		def := config.DefaultConfig()
		cfg = &def
	}
	if adapter == nil {
		adapter = vcs.NewGitAdapter(nil)
	}
	return &Engine{cfg: cfg, adapter: adapter, now: time.Now}
}

// Config returns the engine configuration reference.
func (e *Engine) Config() *config.Config { return e.cfg }

// Adapter returns the engine VCS adapter.
func (e *Engine) Adapter() vcs.Adapter { return e.adapter }

// CheckOptions configures a check run. Zero values fall back to the
// engine configuration.
type CheckOptions struct {
	// Dir is any path inside the repository. Defaults to ".".
	Dir   string
	Kinds []model.RefKind
	Mode  model.SnapshotMode
	// Remotes are candidate remote names in priority order.
	Remotes []string
	// Limit caps refs evaluated per category. Zero uses the configured
	// limit; negative values remove it.
	Limit         int
	OnUnreachable model.UnreachablePolicy
	// Fetch refreshes each remote's tracking refs before snapshots are
	// built.
	Fetch bool
	// OnProgress receives per-category progress.
	OnProgress func(kind model.RefKind, done, total int)
	// Tracef receives debug tracing.
	Tracef func(format string, args ...any)
}

// Remotes returns the candidate remotes configured for the repository at
// dir, in priority order.
func (e *Engine) Remotes(ctx context.Context, dir string, candidates []string) ([]model.Remote, error) {
	top, err := e.repository(ctx, dir)
	if err != nil {
		return nil, err
	}
	if len(candidates) == 0 {
		candidates = e.cfg.Remotes
	}
	return registry.Discover(ctx, e.adapter, top, candidates)
}

// Check reconciles the repository's local refs against its remotes.
// Repository and remote discovery failures abort the run; unreachable
// remotes are handled per OnUnreachable and reported as warnings.
func (e *Engine) Check(ctx context.Context, opts CheckOptions) (*model.Report, error) {
	run, err := e.newRun(opts)
	if err != nil {
		return nil, err
	}

	top, err := e.repository(ctx, opts.Dir)
	if err != nil {
		return nil, err
	}
	run.tracef("repository %s", top)

	remotes, err := registry.Discover(ctx, e.adapter, top, run.candidates)
	if err != nil {
		return nil, err
	}
	run.tracef("remotes %s", strings.Join(registry.Names(remotes), ", "))
	for i := 1; i < len(remotes); i++ {
		if gitx.SameRepository(remotes[0].URL, remotes[i].URL) {
			run.tracef("%s and %s name the same repository", remotes[0].Name, remotes[i].Name)
		}
	}

	enumerator, err := refs.NewEnumerator(e.adapter, top, e.cfg.Exclude)
	if err != nil {
		return nil, err
	}
	cache := snapshot.New(e.adapter, snapshot.Options{
		Dir:     top,
		Mode:    run.mode,
		Retry:   snapshot.RetryPolicy{Attempts: e.cfg.Attempts(), Delay: e.cfg.RetryDelay()},
		Timeout: e.cfg.Timeout(),
		Tracef:  opts.Tracef,
	})

	if opts.Fetch {
		for _, remote := range remotes {
			if err := cache.Fetch(ctx, remote); err != nil {
				if ctx.Err() != nil {
					return nil, ctx.Err()
				}
				run.warn(fmt.Sprintf("fetch %s failed; using existing tracking refs: %v", remote.Name, err))
			}
		}
	}

	report := &model.Report{
		GeneratedAt: e.now(),
		Path:        top,
		Mode:        run.mode,
	}
	for _, kind := range run.kinds {
		cat, err := e.checkKind(ctx, run, enumerator, cache, remotes, kind, opts.OnProgress)
		if err != nil {
			return nil, err
		}
		report.Categories = append(report.Categories, cat)
	}

	for _, remote := range remotes {
		if run.served[remote.Name] {
			report.Remotes = append(report.Remotes, remote)
		}
	}
	if len(report.Remotes) == 0 {
		run.warn("no remote could be queried; every ref is reported as local-only")
	}
	if run.usedHeuristic {
		run.warn(snapshot.HeuristicBias)
	}
	report.Warnings = run.warnings
	return report, nil
}

func (e *Engine) checkKind(ctx context.Context, run *checkRun, enumerator *refs.Enumerator, cache *snapshot.Cache, remotes []model.Remote, kind model.RefKind, onProgress func(model.RefKind, int, int)) (model.CategoryReport, error) {
	seq, total, err := enumerator.Enumerate(ctx, kind)
	if err != nil {
		return model.CategoryReport{}, err
	}
	run.tracef("%s: %d local", kind.Plural(), total)

	var snapshots []reconcile.RemoteSnapshot
	for _, remote := range remotes {
		snap, err := run.snapshot(ctx, cache, remote, kind)
		if err != nil {
			return model.CategoryReport{}, err
		}
		if snap == nil {
			continue
		}
		run.served[remote.Name] = true
		snapshots = append(snapshots, reconcile.RemoteSnapshot{Remote: remote.Name, Snapshot: snap})
	}

	reconciler := reconcile.Reconciler{Limit: run.limit}
	if onProgress != nil {
		reconciler.OnProgress = func(done, total int) { onProgress(kind, done, total) }
	}
	cat, err := reconciler.Classify(ctx, kind, seq, total, snapshots)
	if err != nil {
		return cat, err
	}
	for _, rs := range snapshots {
		cat.Remotes = append(cat.Remotes, rs.Remote)
	}
	return cat, nil
}

func (e *Engine) repository(ctx context.Context, dir string) (string, error) {
	if strings.TrimSpace(dir) == "" {
		dir = "."
	}
	abs, err := filepath.Abs(dir)
	if err != nil {
		return "", err
	}
	ok, err := e.adapter.IsRepo(ctx, abs)
	if err != nil {
		return "", err
	}
	if !ok {
		return "", fmt.Errorf("%s: %w", abs, gitx.ErrNotARepository)
	}
	top, err := e.adapter.TopLevel(ctx, abs)
	if err != nil {
		return "", err
	}
	return top, nil
}

// checkRun holds the resolved settings and degradation state of one run.
type checkRun struct {
	kinds      []model.RefKind
	mode       model.SnapshotMode
	candidates []string
	limit      int
	policy     model.UnreachablePolicy
	tracef     func(format string, args ...any)

	skipped       map[string]bool
	degraded      map[string]bool
	// served marks remotes whose snapshot took part in some category.
	served        map[string]bool
	usedHeuristic bool
	warnings      []string
}

func (e *Engine) newRun(opts CheckOptions) (*checkRun, error) {
	run := &checkRun{
		kinds:      opts.Kinds,
		mode:       opts.Mode,
		candidates: opts.Remotes,
		limit:      opts.Limit,
		policy:     opts.OnUnreachable,
		tracef:     opts.Tracef,
		skipped:    map[string]bool{},
		degraded:   map[string]bool{},
		served:     map[string]bool{},
	}
	var err error
	if len(run.kinds) == 0 {
		if run.kinds, err = e.cfg.Kinds(); err != nil {
			return nil, err
		}
	}
	if run.mode == "" {
		if run.mode, err = model.ParseMode(e.cfg.Mode); err != nil {
			return nil, err
		}
	}
	if len(run.candidates) == 0 {
		run.candidates = e.cfg.Remotes
	}
	if run.limit == 0 {
		run.limit = e.cfg.Limit
	}
	if run.limit < 0 {
		run.limit = 0
	}
	if run.policy == "" {
		if run.policy, err = model.ParseUnreachablePolicy(e.cfg.OnUnreachable); err != nil {
			return nil, err
		}
	}
	if run.tracef == nil {
		run.tracef = func(string, ...any) {}
	}
	return run, nil
}

// snapshot returns remote's snapshot for kind, applying the unreachable
// policy. A nil snapshot with a nil error means the remote is skipped.
func (r *checkRun) snapshot(ctx context.Context, cache *snapshot.Cache, remote model.Remote, kind model.RefKind) (*snapshot.Snapshot, error) {
	if r.skipped[remote.Name] {
		return nil, nil
	}
	mode := r.mode
	if r.degraded[remote.Name] {
		mode = model.ModeHeuristic
	}
	snap, err := cache.SnapshotWithMode(ctx, remote, kind, mode)
	if err == nil {
		if snap.Mode == model.ModeHeuristic && kind != model.KindStash {
			r.usedHeuristic = true
		}
		return snap, nil
	}
	if ctx.Err() != nil || !errors.Is(err, snapshot.ErrRemoteUnreachable) {
		return nil, err
	}

	switch r.policy {
	case model.UnreachableAbort:
		return nil, err
	case model.UnreachableHeuristic:
		r.degraded[remote.Name] = true
		r.warn(fmt.Sprintf("%v; using heuristic mode for %s", err, remote.Name))
		snap, herr := cache.SnapshotWithMode(ctx, remote, kind, model.ModeHeuristic)
		if herr != nil {
			return nil, herr
		}
		r.usedHeuristic = true
		return snap, nil
	default:
		r.skipped[remote.Name] = true
		r.warn(fmt.Sprintf("%v; %s skipped, refs it has may be reported as local-only", err, remote.Name))
		return nil, nil
	}
}

func (r *checkRun) warn(msg string) {
	for _, existing := range r.warnings {
		if existing == msg {
			return
		}
	}
	r.warnings = append(r.warnings, msg)
}
