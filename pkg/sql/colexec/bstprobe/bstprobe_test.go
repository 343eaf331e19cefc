// Copyright 2022 Matrix Origin
//
// Licensed under the Apache License, Version 2.0 (the "License");
// you may not use this file except in compliance with the License.
// You may obtain a copy of the License at
//
//      http://www.apache.org/licenses/LICENSE-2.0
//
// Unless required by applicable law or agreed to in writing, software
// distributed under the License is distributed on an "AS IS" BASIS,
// WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
// See the License for the specific language governing permissions and
// limitations under the License.

package bstprobe

import (
	"testing"

	"github.com/smartystreets/goconvey/convey"
	"github.com/stretchr/testify/require"

	"github.com/matrixorigin/npjoin/pkg/common/moerr"
	"github.com/matrixorigin/npjoin/pkg/container/tuplebuf"
	"github.com/matrixorigin/npjoin/pkg/container/types"
	"github.com/matrixorigin/npjoin/pkg/sql/colexec/hashprobe"
	"github.com/matrixorigin/npjoin/pkg/testutil"
)

// firstOccurrence keeps the first tuple of every key, which is what the
// tree holds after Build.
func firstOccurrence(r types.Relation) types.Relation {
	seen := make(map[int64]bool)
	var tuples []types.Tuple
	for _, t := range r.Tuples {
		if !seen[t.Key] {
			seen[t.Key] = true
			tuples = append(tuples, t)
		}
	}
	return types.NewRelation(tuples)
}

func probeAll(p *Prober, v hashprobe.Variant, s types.Relation) (int64, []types.JoinResult) {
	out := tuplebuf.NewChained(64)
	n := p.Probe(v, s, out)
	return n, testutil.SortResults(out.Results())
}

func TestBuild(t *testing.T) {
	convey.Convey("building a tree", t, func() {
		convey.Convey("empty relation gives an empty tree", func() {
			tree := Build(testutil.NewRelation())
			convey.So(tree.Len(), convey.ShouldEqual, 0)
			convey.So(tree.Root(), convey.ShouldEqual, NilNode)
			convey.So(tree.Depth(), convey.ShouldEqual, 0)
		})

		convey.Convey("duplicate keys keep the first payload", func() {
			r := testutil.NewRelationWithPayloads([]int64{5, 3, 5, 8, 3}, []int64{50, 30, 51, 80, 31})
			tree := Build(r)
			convey.So(tree.Len(), convey.ShouldEqual, 3)
			root := tree.Node(tree.Root())
			convey.So(root.Key, convey.ShouldEqual, 5)
			convey.So(root.Payload, convey.ShouldEqual, 50)
			convey.So(tree.Node(root.Left).Key, convey.ShouldEqual, 3)
			convey.So(tree.Node(root.Left).Payload, convey.ShouldEqual, 30)
			convey.So(tree.Node(root.Right).Key, convey.ShouldEqual, 8)
			convey.So(tree.Depth(), convey.ShouldEqual, 2)
		})

		convey.Convey("sorted input degenerates to a list across chunks", func() {
			n := nodeChunkSize + 10
			keys := make([]int64, n)
			for i := range keys {
				keys[i] = int64(i)
			}
			tree := Build(testutil.NewRelation(keys...))
			convey.So(tree.Len(), convey.ShouldEqual, n)
			convey.So(tree.Depth(), convey.ShouldEqual, n)
			tree.Destroy()
			convey.So(tree.Len(), convey.ShouldEqual, 0)
		})
	})
}

func TestTreeDropsDuplicatesHashKeepsThem(t *testing.T) {
	r := testutil.NewRelationWithPayloads([]int64{1, 1, 2}, []int64{10, 11, 20})
	s := testutil.NewRelationWithPayloads([]int64{1, 2, 3}, []int64{100, 200, 300})
	want := []types.JoinResult{{Left: 10, Right: 100}, {Left: 20, Right: 200}}

	p := New(Build(r), hashprobe.DefaultOptions())
	for _, v := range Variants() {
		n, got := probeAll(p, v, s)
		require.Equal(t, int64(2), n, "variant %s", v)
		require.Equal(t, want, got, "variant %s", v)
	}
	require.Len(t, testutil.NestedLoopJoin(r, s), 3)
}

func TestCrossVariantEquivalence(t *testing.T) {
	cases := []struct {
		name   string
		nr, ns int
		maxKey int64
		opts   hashprobe.Options
	}{
		{name: "dense keys", nr: 800, ns: 901, maxKey: 200, opts: hashprobe.DefaultOptions()},
		{name: "sparse keys", nr: 1000, ns: 1000, maxKey: 1 << 30, opts: hashprobe.DefaultOptions()},
		{name: "one lane", nr: 300, ns: 257, maxKey: 500, opts: hashprobe.Options{
			AMACLanes: 1, SIMDGroups: 1, GroupSize: 1, FilterA: 1,
		}},
		{name: "more lanes than tuples", nr: 9, ns: 5, maxKey: 12, opts: hashprobe.Options{
			PrefetchDistance: 32, AMACLanes: 40, SIMDGroups: 9, GroupSize: 1, FilterA: 1,
		}},
	}
	for _, c := range cases {
		t.Run(c.name, func(t *testing.T) {
			r := testutil.RandomRelation(c.nr, c.maxKey, 11)
			s := testutil.RandomRelation(c.ns, c.maxKey, 12)
			want := testutil.NestedLoopJoin(firstOccurrence(r), s)
			p := New(Build(r), c.opts)
			for _, v := range Variants() {
				n, got := probeAll(p, v, s)
				require.Equal(t, int64(len(want)), n, "variant %s", v)
				require.Equal(t, want, got, "variant %s", v)
			}
		})
	}
}

func TestEmptyTreeAndEmptyProbe(t *testing.T) {
	r := testutil.NewRelation(4, 2, 6)
	empty := testutil.NewRelation()
	for _, v := range Variants() {
		n, _ := probeAll(New(Build(empty), hashprobe.DefaultOptions()), v, r)
		require.Zero(t, n, "variant %s", v)
		n, got := probeAll(New(Build(r), hashprobe.DefaultOptions()), v, empty)
		require.Zero(t, n, "variant %s", v)
		require.Empty(t, got, "variant %s", v)
	}
}

func TestUnsupportedVariant(t *testing.T) {
	require.False(t, Supports(hashprobe.VariantGP))
	require.True(t, Supports(hashprobe.VariantSIMDAMACRaw))

	p := New(Build(testutil.NewRelation(1)), hashprobe.DefaultOptions())
	defer func() {
		err, ok := recover().(error)
		require.True(t, ok)
		require.True(t, moerr.IsMoErrCode(err, moerr.ErrNotSupported))
	}()
	p.Probe(hashprobe.VariantGP, testutil.NewRelation(1), tuplebuf.NewChained(0))
}
