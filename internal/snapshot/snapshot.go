// SPDX-License-Identifier: MIT
// Package snapshot builds per-run knowledge of which refs each remote has.
//
// Exact snapshots come from listing the remote's advertised refs. Heuristic
// snapshots are derived from local history only and never touch the
// network; see HeuristicBias.
package snapshot

import (
	"sort"

	"github.com/skaphos/refcheck/internal/gitx"
	"github.com/skaphos/refcheck/internal/model"
)

// HeuristicBias describes the accuracy trade-off of heuristic snapshots. It
// is surfaced to users whenever a heuristic snapshot takes part in a run.
// Errors go both ways: the reachability signal hides a new name on an old
// commit, and a remote ref never fetched or pushed from here is missed.
const HeuristicBias = "heuristic mode checks local reflogs and remote-tracking history only: " +
	"refs pointing at commits already reachable from refs/remotes/<remote>/* are treated as present " +
	"even if never pushed under that name, and refs the remote has but this clone never fetched or pushed " +
	"may be reported as local-only; use exact mode to confirm"

// Snapshot is the set of refs one remote is known to have for one kind.
type Snapshot struct {
	Remote string
	Kind   model.RefKind
	Mode   model.SnapshotMode

	names  map[string]struct{}
	peeled map[string]string
	// heuristic signals
	reflog    map[string]struct{}
	reachable map[string]struct{}
}

func newExact(remote string, kind model.RefKind, advertised []gitx.RemoteRef) *Snapshot {
	s := &Snapshot{
		Remote: remote,
		Kind:   kind,
		Mode:   model.ModeExact,
		names:  make(map[string]struct{}, len(advertised)),
		peeled: map[string]string{},
	}
	for _, ref := range advertised {
		name := ref.ShortName()
		if ref.Peeled {
			s.peeled[name] = ref.Hash
			continue
		}
		s.names[name] = struct{}{}
	}
	return s
}

func empty(remote string, kind model.RefKind, mode model.SnapshotMode) *Snapshot {
	return &Snapshot{Remote: remote, Kind: kind, Mode: mode}
}

// Lookup reports whether the remote has ref and how it matched. Signals are
// checked in order: advertised name, peeled tag entry, fetch/push reflog
// record, reachability from a remote-tracking tip. Reachability matches by
// commit, not by name, so it can report a never-pushed name as present.
// Stashes never match.
func (s *Snapshot) Lookup(ref model.LocalRef) (model.MatchKind, bool) {
	if s == nil || ref.Kind == model.KindStash {
		return "", false
	}
	if _, ok := s.names[ref.Name]; ok {
		return model.MatchDirect, true
	}
	if _, ok := s.peeled[ref.Name]; ok {
		return model.MatchPeeled, true
	}
	if _, ok := s.reflog[ref.Name]; ok {
		return model.MatchReflog, true
	}
	if commit := ref.TargetCommit(); commit != "" {
		if _, ok := s.reachable[commit]; ok {
			return model.MatchReachable, true
		}
	}
	return "", false
}

// Names returns the advertised or reflog-recorded ref names, sorted.
func (s *Snapshot) Names() []string {
	if s == nil {
		return nil
	}
	seen := map[string]struct{}{}
	for _, set := range []map[string]struct{}{s.names, s.reflog} {
		for name := range set {
			seen[name] = struct{}{}
		}
	}
	for name := range s.peeled {
		seen[name] = struct{}{}
	}
	out := make([]string, 0, len(seen))
	for name := range seen {
		out = append(out, name)
	}
	sort.Strings(out)
	return out
}

// forRemote returns a copy labelled with another remote's name. The
// underlying sets are shared and never mutated after construction.
func (s *Snapshot) forRemote(remote string) *Snapshot {
	cp := *s
	cp.Remote = remote
	return &cp
}
