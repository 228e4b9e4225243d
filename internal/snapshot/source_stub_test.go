// SPDX-License-Identifier: MIT
package snapshot_test

import (
	"context"
	"fmt"

	"github.com/skaphos/refcheck/internal/gitx"
	"github.com/skaphos/refcheck/internal/model"
)

// sourceStub implements snapshot.Source. Listing errors are consumed one per
// call before the advertised refs are returned.
type sourceStub struct {
	advertised map[string][]gitx.RemoteRef
	listErrs   map[string][]error
	reflog     map[string][]gitx.ReflogEntry
	reachable  map[string][]string
	localErr   error
	fetchErrs  []error

	calls       map[string]int
	sawDeadline bool
}

func newSourceStub() *sourceStub {
	return &sourceStub{
		advertised: map[string][]gitx.RemoteRef{},
		listErrs:   map[string][]error{},
		reflog:     map[string][]gitx.ReflogEntry{},
		reachable:  map[string][]string{},
		calls:      map[string]int{},
	}
}

func listKey(remote string, kind model.RefKind) string {
	return fmt.Sprintf("%s/%s", remote, kind)
}

func (s *sourceStub) ListRemoteRefs(ctx context.Context, _, remote string, kind model.RefKind) ([]gitx.RemoteRef, error) {
	key := listKey(remote, kind)
	s.calls["list "+key]++
	if _, ok := ctx.Deadline(); ok {
		s.sawDeadline = true
	}
	if errs := s.listErrs[key]; len(errs) > 0 {
		s.listErrs[key] = errs[1:]
		return nil, errs[0]
	}
	return s.advertised[key], nil
}

func (s *sourceStub) RemoteReflog(_ context.Context, _, remote string) ([]gitx.ReflogEntry, error) {
	s.calls["reflog "+remote]++
	if s.localErr != nil {
		return nil, s.localErr
	}
	return s.reflog[remote], nil
}

func (s *sourceStub) ReachableCommits(_ context.Context, _, remote string) ([]string, error) {
	s.calls["reachable "+remote]++
	if s.localErr != nil {
		return nil, s.localErr
	}
	return s.reachable[remote], nil
}

func (s *sourceStub) Fetch(_ context.Context, _, remote string) error {
	s.calls["fetch "+remote]++
	if len(s.fetchErrs) > 0 {
		err := s.fetchErrs[0]
		s.fetchErrs = s.fetchErrs[1:]
		return err
	}
	return nil
}

func (s *sourceStub) NormalizeURL(rawURL string) string {
	return gitx.NormalizeURL(rawURL)
}

func tagRefs(names ...string) []gitx.RemoteRef {
	out := make([]gitx.RemoteRef, 0, len(names))
	for _, name := range names {
		out = append(out, gitx.RemoteRef{Hash: "h-" + name, Ref: "refs/tags/" + name})
	}
	return out
}
