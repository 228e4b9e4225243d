package reconcile_test

import (
	"context"
	"fmt"
	"slices"

	. "github.com/onsi/ginkgo/v2"
	. "github.com/onsi/gomega"

	"github.com/skaphos/refcheck/internal/model"
	"github.com/skaphos/refcheck/internal/reconcile"
)

// nameSet matches refs by name.
type nameSet map[string]struct{}

func (s nameSet) Lookup(ref model.LocalRef) (model.MatchKind, bool) {
	_, ok := s[ref.Name]
	if !ok {
		return "", false
	}
	return model.MatchDirect, true
}

func remote(name string, refs ...string) reconcile.RemoteSnapshot {
	set := nameSet{}
	for _, ref := range refs {
		set[ref] = struct{}{}
	}
	return reconcile.RemoteSnapshot{Remote: name, Snapshot: set}
}

func localTags(names ...string) []model.LocalRef {
	out := make([]model.LocalRef, 0, len(names))
	for _, name := range names {
		out = append(out, model.LocalRef{Kind: model.KindTag, Name: name, Commit: "c-" + name})
	}
	return out
}

func localOnlyNames(rep model.CategoryReport) []string {
	var out []string
	for _, res := range rep.LocalOnly() {
		out = append(out, res.Ref.Name)
	}
	return out
}

var _ = Describe("Reconciler.Classify", func() {
	ctx := context.Background()

	It("reports tags missing from the only remote", func() {
		refs := localTags("v1.0", "v1.1", "v2.0")
		rep, err := reconcile.Reconciler{}.Classify(ctx, model.KindTag, slices.Values(refs), len(refs),
			[]reconcile.RemoteSnapshot{remote("origin", "v1.0", "v1.1")})
		Expect(err).NotTo(HaveOccurred())
		Expect(localOnlyNames(rep)).To(Equal([]string{"v2.0"}))
		Expect(rep.Evaluated).To(Equal(3))
		Expect(rep.Truncated).To(BeFalse())
	})

	It("excludes refs present on any remote", func() {
		refs := localTags("v1.0", "v2.0", "v3.0")
		rep, err := reconcile.Reconciler{}.Classify(ctx, model.KindTag, slices.Values(refs), len(refs),
			[]reconcile.RemoteSnapshot{remote("upstream", "v1.0"), remote("origin", "v2.0")})
		Expect(err).NotTo(HaveOccurred())
		Expect(localOnlyNames(rep)).To(Equal([]string{"v3.0"}))
		Expect(rep.Results[0].Matches).To(Equal([]model.Match{{Remote: "upstream", Kind: model.MatchDirect}}))
		Expect(rep.Results[1].Matches).To(Equal([]model.Match{{Remote: "origin", Kind: model.MatchDirect}}))
	})

	It("records every matching remote in registry order", func() {
		refs := localTags("v1.0")
		rep, err := reconcile.Reconciler{}.Classify(ctx, model.KindTag, slices.Values(refs), 1,
			[]reconcile.RemoteSnapshot{remote("upstream", "v1.0"), remote("origin", "v1.0")})
		Expect(err).NotTo(HaveOccurred())
		Expect(rep.Results[0].LocalOnly).To(BeFalse())
		Expect(rep.Results[0].SuggestedCommand).To(BeEmpty())
		Expect(rep.Results[0].Matches).To(HaveLen(2))
		Expect(rep.Results[0].Matches[0].Remote).To(Equal("upstream"))
	})

	It("classifies soundly and completely for arbitrary snapshots", func() {
		names := make([]string, 0, 40)
		for i := range 40 {
			names = append(names, fmt.Sprintf("t%02d", i))
		}
		refs := localTags(names...)
		var onA, onB []string
		for i, name := range names {
			if i%3 == 0 {
				onA = append(onA, name)
			}
			if i%5 == 0 {
				onB = append(onB, name)
			}
		}
		rep, err := reconcile.Reconciler{}.Classify(ctx, model.KindTag, slices.Values(refs), len(refs),
			[]reconcile.RemoteSnapshot{remote("a", onA...), remote("b", onB...)})
		Expect(err).NotTo(HaveOccurred())
		for i, res := range rep.Results {
			present := i%3 == 0 || i%5 == 0
			Expect(res.LocalOnly).To(Equal(!present), res.Ref.Name)
			Expect(res.Ref.Name).To(Equal(names[i]))
		}
	})

	It("is idempotent", func() {
		refs := localTags("a", "b", "c")
		snaps := []reconcile.RemoteSnapshot{remote("origin", "b")}
		first, err := reconcile.Reconciler{}.Classify(ctx, model.KindTag, slices.Values(refs), 3, snaps)
		Expect(err).NotTo(HaveOccurred())
		second, err := reconcile.Reconciler{}.Classify(ctx, model.KindTag, slices.Values(refs), 3, snaps)
		Expect(err).NotTo(HaveOccurred())
		Expect(second).To(Equal(first))
	})

	It("treats every ref as local-only without snapshots", func() {
		refs := localTags("a")
		rep, err := reconcile.Reconciler{}.Classify(ctx, model.KindTag, slices.Values(refs), 1, nil)
		Expect(err).NotTo(HaveOccurred())
		Expect(localOnlyNames(rep)).To(Equal([]string{"a"}))
	})

	It("evaluates only the first N refs and records the truncation", func() {
		refs := localTags("a", "b", "c", "d", "e")
		rep, err := reconcile.Reconciler{Limit: 2}.Classify(ctx, model.KindTag, slices.Values(refs), len(refs), nil)
		Expect(err).NotTo(HaveOccurred())
		Expect(rep.Evaluated).To(Equal(2))
		Expect(rep.Total).To(Equal(5))
		Expect(rep.Truncated).To(BeTrue())
		Expect(localOnlyNames(rep)).To(Equal([]string{"a", "b"}))
	})

	It("does not mark a limit at or above the total as truncated", func() {
		refs := localTags("a", "b")
		rep, err := reconcile.Reconciler{Limit: 2}.Classify(ctx, model.KindTag, slices.Values(refs), 2, nil)
		Expect(err).NotTo(HaveOccurred())
		Expect(rep.Truncated).To(BeFalse())
	})

	It("reports progress every ten refs and once at the end", func() {
		names := make([]string, 25)
		for i := range names {
			names[i] = fmt.Sprintf("r%d", i)
		}
		refs := localTags(names...)
		var calls [][2]int
		r := reconcile.Reconciler{OnProgress: func(done, total int) {
			calls = append(calls, [2]int{done, total})
		}}
		_, err := r.Classify(ctx, model.KindTag, slices.Values(refs), len(refs), nil)
		Expect(err).NotTo(HaveOccurred())
		Expect(calls).To(Equal([][2]int{{10, 25}, {20, 25}, {25, 25}}))
	})

	It("reports progress against the limit when truncating", func() {
		refs := localTags(make([]string, 30)...)
		var last [2]int
		r := reconcile.Reconciler{Limit: 20, OnProgress: func(done, total int) { last = [2]int{done, total} }}
		_, err := r.Classify(ctx, model.KindTag, slices.Values(refs), 30, nil)
		Expect(err).NotTo(HaveOccurred())
		Expect(last).To(Equal([2]int{20, 20}))
	})

	It("reports a single progress call for empty categories", func() {
		calls := 0
		r := reconcile.Reconciler{OnProgress: func(int, int) { calls++ }}
		rep, err := r.Classify(ctx, model.KindBranch, nil, 0, nil)
		Expect(err).NotTo(HaveOccurred())
		Expect(rep.Results).To(BeEmpty())
		Expect(calls).To(Equal(1))
	})

	It("stops on context cancellation", func() {
		cctx, cancel := context.WithCancel(ctx)
		cancel()
		refs := localTags("a", "b")
		_, err := reconcile.Reconciler{}.Classify(cctx, model.KindTag, slices.Values(refs), 2, nil)
		Expect(err).To(MatchError(context.Canceled))
	})

	It("carries malformed metadata into the note", func() {
		refs := []model.LocalRef{{Kind: model.KindStash, Name: "stash@{0}", Index: 0, Branch: model.StashPlaceholderBranch, Malformed: "unrecognized stash subject"}}
		rep, err := reconcile.Reconciler{}.Classify(ctx, model.KindStash, slices.Values(refs), 1, nil)
		Expect(err).NotTo(HaveOccurred())
		Expect(rep.Results[0].Note).To(Equal("unrecognized stash subject"))
		Expect(rep.Results[0].SuggestedCommand).To(Equal("git stash drop stash@{0}"))
	})
})

var _ = DescribeTable("SuggestedCommand",
	func(ref model.LocalRef, want string) {
		Expect(reconcile.SuggestedCommand(ref)).To(Equal(want))
	},
	Entry("branch", model.LocalRef{Kind: model.KindBranch, Name: "feature/x"}, "git branch -D feature/x"),
	Entry("tag", model.LocalRef{Kind: model.KindTag, Name: "v1.0"}, "git tag -d v1.0"),
	Entry("stash", model.LocalRef{Kind: model.KindStash, Name: "stash@{3}", Index: 3}, "git stash drop stash@{3}"),
	Entry("quoted name", model.LocalRef{Kind: model.KindBranch, Name: "it's$weird"}, `git branch -D 'it'\''s$weird'`),
	Entry("unknown kind", model.LocalRef{Kind: "note", Name: "x"}, ""),
)
