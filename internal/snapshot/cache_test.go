package snapshot_test

import (
	"context"
	"errors"
	"time"

	. "github.com/onsi/ginkgo/v2"
	. "github.com/onsi/gomega"

	"github.com/skaphos/refcheck/internal/gitx"
	"github.com/skaphos/refcheck/internal/model"
	"github.com/skaphos/refcheck/internal/snapshot"
)

var (
	origin   = model.Remote{Name: "origin", URL: "git@github.com:me/repo.git"}
	upstream = model.Remote{Name: "upstream", URL: "https://github.com/org/repo.git"}
	mirror   = model.Remote{Name: "mirror", URL: "https://github.com/me/repo"}
)

func tag(name, commit, peeled string) model.LocalRef {
	return model.LocalRef{Kind: model.KindTag, Name: name, Commit: commit, Peeled: peeled}
}

func branch(name, commit string) model.LocalRef {
	return model.LocalRef{Kind: model.KindBranch, Name: name, Commit: commit}
}

var _ = Describe("Cache in exact mode", func() {
	var (
		ctx    context.Context
		source *sourceStub
		cache  *snapshot.Cache
	)

	BeforeEach(func() {
		ctx = context.Background()
		source = newSourceStub()
		cache = snapshot.New(source, snapshot.Options{Dir: "/repo", Mode: model.ModeExact, Retry: snapshot.RetryPolicy{Attempts: 3}})
	})

	It("lists each remote once per kind and reuses the snapshot", func() {
		source.advertised[listKey("origin", model.KindTag)] = tagRefs("v1.0", "v1.1")
		for range 5 {
			snap, err := cache.Snapshot(ctx, origin, model.KindTag)
			Expect(err).NotTo(HaveOccurred())
			Expect(snap.Names()).To(Equal([]string{"v1.0", "v1.1"}))
		}
		Expect(source.calls["list origin/tag"]).To(Equal(1))
		Expect(cache.Mode()).To(Equal(model.ModeExact))
	})

	It("matches names exactly after prefix stripping", func() {
		source.advertised[listKey("origin", model.KindTag)] = tagRefs("v1.0")
		snap, err := cache.Snapshot(ctx, origin, model.KindTag)
		Expect(err).NotTo(HaveOccurred())
		match, ok := snap.Lookup(tag("v1.0", "h-v1.0", ""))
		Expect(ok).To(BeTrue())
		Expect(match).To(Equal(model.MatchDirect))
		_, ok = snap.Lookup(tag("v1", "x", ""))
		Expect(ok).To(BeFalse())
		_, ok = snap.Lookup(tag("refs/tags/v1.0", "x", ""))
		Expect(ok).To(BeFalse())
	})

	It("matches tags advertised only through their peeled entry", func() {
		source.advertised[listKey("origin", model.KindTag)] = []gitx.RemoteRef{
			{Hash: "c1", Ref: "refs/tags/v2.0", Peeled: true},
		}
		snap, err := cache.Snapshot(ctx, origin, model.KindTag)
		Expect(err).NotTo(HaveOccurred())
		match, ok := snap.Lookup(tag("v2.0", "t1", "c1"))
		Expect(ok).To(BeTrue())
		Expect(match).To(Equal(model.MatchPeeled))
	})

	It("retries transient failures", func() {
		source.listErrs[listKey("origin", model.KindBranch)] = []error{
			errors.New("fatal: unable to access: Could not resolve host"),
			errors.New("connection timed out"),
		}
		source.advertised[listKey("origin", model.KindBranch)] = []gitx.RemoteRef{{Hash: "a", Ref: "refs/heads/main"}}
		snap, err := cache.Snapshot(ctx, origin, model.KindBranch)
		Expect(err).NotTo(HaveOccurred())
		_, ok := snap.Lookup(branch("main", "a"))
		Expect(ok).To(BeTrue())
		Expect(source.calls["list origin/branch"]).To(Equal(3))
	})

	It("reports an unreachable remote after the retry budget", func() {
		netErr := errors.New("fatal: unable to access: Could not resolve host")
		source.listErrs[listKey("origin", model.KindBranch)] = []error{netErr, netErr, netErr, netErr}
		_, err := cache.Snapshot(ctx, origin, model.KindBranch)
		Expect(err).To(MatchError(snapshot.ErrRemoteUnreachable))
		Expect(err).To(MatchError(netErr))
		var unreachable *snapshot.RemoteUnreachableError
		Expect(errors.As(err, &unreachable)).To(BeTrue())
		Expect(unreachable.Remote).To(Equal("origin"))
		Expect(unreachable.Kind).To(Equal(model.KindBranch))
		Expect(unreachable.Class).To(Equal(gitx.ClassNetwork))
		Expect(unreachable.Attempts).To(Equal(3))
		Expect(err.Error()).To(ContainSubstring("list branches failed after 3 attempt(s)"))
	})

	It("does not retry auth failures and remembers the failure", func() {
		source.listErrs[listKey("origin", model.KindTag)] = []error{errors.New("Permission denied (publickey)")}
		_, err := cache.Snapshot(ctx, origin, model.KindTag)
		Expect(err).To(MatchError(snapshot.ErrRemoteUnreachable))
		_, err = cache.Snapshot(ctx, origin, model.KindTag)
		Expect(err).To(MatchError(snapshot.ErrRemoteUnreachable))
		Expect(source.calls["list origin/tag"]).To(Equal(1))
	})

	It("fails once on unparsable listings without calling the remote unreachable", func() {
		_, parseErr := gitx.ParseLsRemote("garbage")
		source.listErrs[listKey("origin", model.KindBranch)] = []error{parseErr, parseErr, parseErr}
		_, err := cache.Snapshot(ctx, origin, model.KindBranch)
		Expect(err).To(MatchError(gitx.ErrMalformedOutput))
		Expect(errors.Is(err, snapshot.ErrRemoteUnreachable)).To(BeFalse())
		Expect(source.calls["list origin/branch"]).To(Equal(1))
	})

	It("shares one listing between remotes naming the same repository", func() {
		source.advertised[listKey("origin", model.KindTag)] = tagRefs("v1.0")
		first, err := cache.Snapshot(ctx, origin, model.KindTag)
		Expect(err).NotTo(HaveOccurred())
		second, err := cache.Snapshot(ctx, mirror, model.KindTag)
		Expect(err).NotTo(HaveOccurred())
		Expect(first.Remote).To(Equal("origin"))
		Expect(second.Remote).To(Equal("mirror"))
		Expect(second.Names()).To(Equal(first.Names()))
		Expect(source.calls["list mirror/tag"]).To(BeZero())

		_, err = cache.Snapshot(ctx, upstream, model.KindTag)
		Expect(err).NotTo(HaveOccurred())
		Expect(source.calls["list upstream/tag"]).To(Equal(1))
	})

	It("relabels a shared failure with the asking remote", func() {
		source.listErrs[listKey("origin", model.KindTag)] = []error{errors.New("repository not found")}
		_, err := cache.Snapshot(ctx, origin, model.KindTag)
		Expect(err).To(HaveOccurred())
		_, err = cache.Snapshot(ctx, mirror, model.KindTag)
		var unreachable *snapshot.RemoteUnreachableError
		Expect(errors.As(err, &unreachable)).To(BeTrue())
		Expect(unreachable.Remote).To(Equal("mirror"))
		Expect(unreachable.Class).To(Equal(gitx.ClassMissingRemote))
	})

	It("builds empty stash snapshots without remote I/O", func() {
		snap, err := cache.Snapshot(ctx, origin, model.KindStash)
		Expect(err).NotTo(HaveOccurred())
		_, ok := snap.Lookup(model.LocalRef{Kind: model.KindStash, Name: "stash@{0}", Commit: "s0"})
		Expect(ok).To(BeFalse())
		Expect(source.calls).To(BeEmpty())
	})

	It("bounds each call with the configured timeout", func() {
		cache = snapshot.New(source, snapshot.Options{Dir: "/repo", Timeout: time.Minute})
		_, err := cache.Snapshot(ctx, origin, model.KindBranch)
		Expect(err).NotTo(HaveOccurred())
		Expect(source.sawDeadline).To(BeTrue())
	})

	It("returns the context error when cancelled", func() {
		source.listErrs[listKey("origin", model.KindTag)] = []error{context.Canceled}
		cctx, cancel := context.WithCancel(ctx)
		cancel()
		_, err := cache.Snapshot(cctx, origin, model.KindTag)
		Expect(err).To(MatchError(context.Canceled))
		Expect(errors.Is(err, snapshot.ErrRemoteUnreachable)).To(BeFalse())
	})
})

var _ = Describe("Cache in heuristic mode", func() {
	var (
		ctx    context.Context
		source *sourceStub
		cache  *snapshot.Cache
	)

	BeforeEach(func() {
		ctx = context.Background()
		source = newSourceStub()
		cache = snapshot.New(source, snapshot.Options{Dir: "/repo", Mode: model.ModeHeuristic})
	})

	It("never touches the network", func() {
		_, err := cache.Snapshot(ctx, origin, model.KindBranch)
		Expect(err).NotTo(HaveOccurred())
		_, err = cache.Snapshot(ctx, origin, model.KindTag)
		Expect(err).NotTo(HaveOccurred())
		Expect(source.calls).NotTo(HaveKey("list origin/branch"))
		Expect(source.calls).NotTo(HaveKey("list origin/tag"))
	})

	It("matches branches recorded by fetch, pull, or push", func() {
		source.reflog["origin"] = []gitx.ReflogEntry{
			{Name: "fetched", Subject: "fetch origin: storing head"},
			{Name: "pushed", Subject: "update by push"},
			{Name: "pulled", Subject: "pull: fast-forward"},
			{Name: "manual", Subject: "branch: Created from HEAD"},
		}
		snap, err := cache.Snapshot(ctx, origin, model.KindBranch)
		Expect(err).NotTo(HaveOccurred())
		for _, name := range []string{"fetched", "pushed", "pulled"} {
			match, ok := snap.Lookup(branch(name, "zzz"))
			Expect(ok).To(BeTrue(), name)
			Expect(match).To(Equal(model.MatchReflog))
		}
		_, ok := snap.Lookup(branch("manual", "zzz"))
		Expect(ok).To(BeFalse())
	})

	It("matches refs whose target commit is reachable from tracking tips", func() {
		source.reachable["origin"] = []string{"c1", "c2"}
		snap, err := cache.Snapshot(ctx, origin, model.KindTag)
		Expect(err).NotTo(HaveOccurred())
		match, ok := snap.Lookup(tag("v1.0", "tagobj", "c1"))
		Expect(ok).To(BeTrue())
		Expect(match).To(Equal(model.MatchReachable))
		_, ok = snap.Lookup(tag("v2.0", "c3", ""))
		Expect(ok).To(BeFalse())
	})

	It("treats a never-pushed branch on a tracked commit as present", func() {
		source.reflog["origin"] = []gitx.ReflogEntry{{Name: "main", Subject: "update by push"}}
		source.reachable["origin"] = []string{"c1"}
		snap, err := cache.Snapshot(ctx, origin, model.KindBranch)
		Expect(err).NotTo(HaveOccurred())
		match, ok := snap.Lookup(branch("neverpushed", "c1"))
		Expect(ok).To(BeTrue())
		Expect(match).To(Equal(model.MatchReachable))
		Expect(snapshot.HeuristicBias).To(ContainSubstring("even if never pushed under that name"))
	})

	It("does not use branch reflog records for tags", func() {
		source.reflog["origin"] = []gitx.ReflogEntry{{Name: "v1.0", Subject: "fetch origin: storing head"}}
		snap, err := cache.Snapshot(ctx, origin, model.KindTag)
		Expect(err).NotTo(HaveOccurred())
		_, ok := snap.Lookup(tag("v1.0", "c9", ""))
		Expect(ok).To(BeFalse())
	})

	It("reports nothing present without tracking state", func() {
		snap, err := cache.Snapshot(ctx, origin, model.KindBranch)
		Expect(err).NotTo(HaveOccurred())
		_, ok := snap.Lookup(branch("main", "c1"))
		Expect(ok).To(BeFalse())
	})

	It("captures reachable commits once per remote", func() {
		_, err := cache.Snapshot(ctx, origin, model.KindBranch)
		Expect(err).NotTo(HaveOccurred())
		_, err = cache.Snapshot(ctx, origin, model.KindTag)
		Expect(err).NotTo(HaveOccurred())
		Expect(source.calls["reachable origin"]).To(Equal(1))
		Expect(source.calls["reflog origin"]).To(Equal(1))
	})

	It("keys heuristic state by remote name", func() {
		source.reachable["origin"] = []string{"c1"}
		_, err := cache.Snapshot(ctx, origin, model.KindTag)
		Expect(err).NotTo(HaveOccurred())
		snap, err := cache.Snapshot(ctx, mirror, model.KindTag)
		Expect(err).NotTo(HaveOccurred())
		_, ok := snap.Lookup(tag("v1.0", "c1", ""))
		Expect(ok).To(BeFalse())
	})

	It("returns local read failures without the unreachable sentinel", func() {
		source.localErr = errors.New("fatal: bad object")
		_, err := cache.Snapshot(ctx, origin, model.KindBranch)
		Expect(err).To(HaveOccurred())
		Expect(errors.Is(err, snapshot.ErrRemoteUnreachable)).To(BeFalse())
	})

	It("can build a heuristic snapshot on an exact cache", func() {
		exact := snapshot.New(source, snapshot.Options{Dir: "/repo"})
		source.reachable["origin"] = []string{"c1"}
		snap, err := exact.SnapshotWithMode(ctx, origin, model.KindTag, model.ModeHeuristic)
		Expect(err).NotTo(HaveOccurred())
		Expect(snap.Mode).To(Equal(model.ModeHeuristic))
		Expect(source.calls).NotTo(HaveKey("list origin/tag"))
	})
})

var _ = Describe("Cache.Fetch", func() {
	var (
		ctx    context.Context
		source *sourceStub
		cache  *snapshot.Cache
	)

	BeforeEach(func() {
		ctx = context.Background()
		source = newSourceStub()
		cache = snapshot.New(source, snapshot.Options{Dir: "/repo", Mode: model.ModeHeuristic, Retry: snapshot.RetryPolicy{Attempts: 2}})
	})

	It("discards cached heuristic state after a fetch", func() {
		_, err := cache.Snapshot(ctx, origin, model.KindTag)
		Expect(err).NotTo(HaveOccurred())
		Expect(cache.Fetch(ctx, origin)).To(Succeed())
		source.reachable["origin"] = []string{"c1"}
		snap, err := cache.Snapshot(ctx, origin, model.KindTag)
		Expect(err).NotTo(HaveOccurred())
		_, ok := snap.Lookup(tag("v1.0", "c1", ""))
		Expect(ok).To(BeTrue())
		Expect(source.calls["reachable origin"]).To(Equal(2))
	})

	It("retries and then reports the remote unreachable", func() {
		netErr := errors.New("connection refused")
		source.fetchErrs = []error{netErr, netErr}
		err := cache.Fetch(ctx, origin)
		var unreachable *snapshot.RemoteUnreachableError
		Expect(errors.As(err, &unreachable)).To(BeTrue())
		Expect(unreachable.Kind).To(BeEmpty())
		Expect(unreachable.Attempts).To(Equal(2))
		Expect(err.Error()).To(ContainSubstring("fetch failed"))
		Expect(source.calls["fetch origin"]).To(Equal(2))
	})
})
