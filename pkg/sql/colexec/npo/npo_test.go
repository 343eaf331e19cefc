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

package npo

import (
	"context"
	"fmt"
	"sync/atomic"
	"testing"

	"github.com/lni/goutils/leaktest"
	"github.com/prashantv/gostub"
	"github.com/smartystreets/goconvey/convey"
	"github.com/stretchr/testify/require"

	"github.com/matrixorigin/npjoin/pkg/common/moerr"
	"github.com/matrixorigin/npjoin/pkg/container/tuplebuf"
	"github.com/matrixorigin/npjoin/pkg/container/types"
	"github.com/matrixorigin/npjoin/pkg/sql/colexec/bstprobe"
	"github.com/matrixorigin/npjoin/pkg/sql/colexec/hashprobe"
	"github.com/matrixorigin/npjoin/pkg/testutil"
)

func testOptions(threads int) Options {
	opts := DefaultOptions()
	opts.Threads = threads
	opts.Pin = false
	opts.SlabSize = 16
	return opts
}

// collect gathers the materialized results of variant index v from every
// worker.
func collect(t *testing.T, res *Result, v int) []types.JoinResult {
	var all []types.JoinResult
	for _, sink := range res.Sinks(v) {
		c, ok := sink.(*tuplebuf.Chained)
		require.True(t, ok)
		all = append(all, c.Results()...)
	}
	if all == nil {
		all = make([]types.JoinResult, 0)
	}
	return testutil.SortResults(all)
}

func TestRunMatchesNestedLoop(t *testing.T) {
	defer leaktest.AfterTest(t)()
	r := testutil.RandomRelation(3000, 700, 5)
	s := testutil.RandomRelation(2500, 900, 6)
	want := testutil.NestedLoopJoin(r, s)

	for _, threads := range []int{1, 2, 4} {
		for _, st := range []bool{false, true} {
			t.Run(fmt.Sprintf("threads=%d/st=%v", threads, st), func(t *testing.T) {
				opts := testOptions(threads)
				opts.SingleThreadBuild = st
				res, err := Run(context.Background(), r, s, opts)
				require.NoError(t, err)
				require.NoError(t, res.Check())
				require.Equal(t, int64(len(want)), res.Total())
				require.Len(t, res.Rounds, len(opts.Variants)*opts.Repeat)
				require.Len(t, res.Threads, threads)
				require.NotNil(t, res.Table)
				for vi, v := range opts.Variants {
					if v.Filtered() {
						continue
					}
					require.Equal(t, want, collect(t, res, vi), "variant %s", v)
				}
			})
		}
	}
}

func TestRunWithoutDivide(t *testing.T) {
	defer leaktest.AfterTest(t)()
	r := testutil.RandomRelation(500, 100, 7)
	s := testutil.RandomRelation(400, 100, 8)
	want := testutil.NestedLoopJoin(r, s)

	opts := testOptions(3)
	opts.Divide = false
	opts.Materialize = false
	res, err := Run(context.Background(), r, s, opts)
	require.NoError(t, err)
	require.Equal(t, int64(len(want)), res.Total())
	for _, th := range res.Threads {
		for vi := range opts.Variants {
			for _, n := range th.Matches[vi] {
				require.Equal(t, int64(len(want)), n)
			}
			_, ok := th.Sinks[vi].(*tuplebuf.Counter)
			require.True(t, ok)
		}
	}
}

func TestRunConfigurations(t *testing.T) {
	convey.Convey("table configurations do not change the result", t, func() {
		r := testutil.RandomRelation(1000, 1<<16, 9)
		s := testutil.RandomRelation(1000, 1<<16, 10)
		want := int64(len(testutil.NestedLoopJoin(r, s)))

		convey.Convey("load factor and skip bits", func() {
			opts := testOptions(2)
			opts.LoadFactor = 4
			opts.SkipBits = 2
			res, err := Run(context.Background(), r, s, opts)
			convey.So(err, convey.ShouldBeNil)
			convey.So(res.Total(), convey.ShouldEqual, want)
		})

		convey.Convey("build prefetch and localized buckets", func() {
			opts := testOptions(2)
			opts.BuildPrefetch = 8
			opts.Localize = true
			res, err := Run(context.Background(), r, s, opts)
			convey.So(err, convey.ShouldBeNil)
			convey.So(res.Total(), convey.ShouldEqual, want)
		})

		convey.Convey("pipeline filter drops small keys", func() {
			opts := testOptions(2)
			opts.Variants = []hashprobe.Variant{hashprobe.VariantPipelineRaw, hashprobe.VariantPipelineAMAC}
			opts.Probe.FilterB = 1 << 15
			var kept []types.Tuple
			for _, tp := range s.Tuples {
				if tp.Key >= 1<<15 {
					kept = append(kept, tp)
				}
			}
			res, err := Run(context.Background(), r, s, opts)
			convey.So(err, convey.ShouldBeNil)
			convey.So(res.Check(), convey.ShouldBeNil)
			convey.So(res.Total(), convey.ShouldEqual, len(testutil.NestedLoopJoin(r, types.NewRelation(kept))))
		})
	})
}

func TestRunTree(t *testing.T) {
	defer leaktest.AfterTest(t)()
	r := testutil.NewRelationWithPayloads([]int64{4, 2, 4, 6, 2}, []int64{40, 20, 41, 60, 21})
	s := testutil.NewRelation(1, 2, 3, 4, 5, 6, 4)

	opts := testOptions(2)
	opts.Variants = bstprobe.Variants()
	res, err := RunTree(context.Background(), r, s, opts)
	require.NoError(t, err)
	require.NoError(t, res.Check())
	require.Equal(t, int64(4), res.Total())
	require.Equal(t, 3, res.TreeNodes)
	require.Equal(t, 2, res.TreeDepth)
	want := []types.JoinResult{{Left: 20, Right: 1}, {Left: 40, Right: 3}, {Left: 40, Right: 6}, {Left: 60, Right: 5}}
	for vi := range opts.Variants {
		require.Equal(t, want, collect(t, res, vi))
	}
}

func TestRunTreeRejectsHashOnlyVariants(t *testing.T) {
	opts := testOptions(1)
	opts.Variants = []hashprobe.Variant{hashprobe.VariantGP}
	_, err := RunTree(context.Background(), testutil.NewRelation(1), testutil.NewRelation(1), opts)
	require.True(t, moerr.IsMoErrCode(err, moerr.ErrNotSupported))
}

func TestRunTreeRejectsOversizedBuild(t *testing.T) {
	stubs := gostub.Stub(&maxTreeTuples, int64(2))
	defer stubs.Reset()

	opts := testOptions(1)
	opts.Variants = []hashprobe.Variant{hashprobe.VariantRaw}
	_, err := RunTree(context.Background(), testutil.NewRelation(1, 2, 3), testutil.NewRelation(1), opts)
	require.True(t, moerr.IsMoErrCode(err, moerr.ErrInvalidInput))

	res, err := RunTree(context.Background(), testutil.NewRelation(1, 2), testutil.NewRelation(1), opts)
	require.NoError(t, err)
	require.Equal(t, int64(1), res.Total())
}

func TestPinning(t *testing.T) {
	defer leaktest.AfterTest(t)()
	var calls atomic.Int32
	stubs := gostub.Stub(&bindThread, func(cpu int) error {
		calls.Add(1)
		return moerr.NewInternalError(context.Background(), "cannot pin to %d", cpu)
	})
	defer stubs.Reset()

	r := testutil.NewRelation(1, 2, 3)
	opts := testOptions(3)
	opts.Pin = true
	opts.CPUs = []int{5, 7}
	res, err := Run(context.Background(), r, r, opts)
	require.NoError(t, err)
	require.Equal(t, int32(3), calls.Load())
	require.Equal(t, int64(3), res.Total())
	require.Equal(t, []int{5, 7, 5}, []int{res.Threads[0].CPU, res.Threads[1].CPU, res.Threads[2].CPU})

	calls.Store(0)
	opts.Pin = false
	_, err = Run(context.Background(), r, r, opts)
	require.NoError(t, err)
	require.Zero(t, calls.Load())
}

func TestWorkerPanicStopsJob(t *testing.T) {
	defer leaktest.AfterTest(t)()
	opts := testOptions(4)
	opts.Variants = []hashprobe.Variant{hashprobe.VariantRaw}
	r := testutil.NewRelation(1, 2, 3, 4)
	j := newJob(opts, r, r)
	err := j.run(context.Background(),
		func(w *worker) {},
		func(w *worker, v hashprobe.Variant, out tuplebuf.Sink) int64 {
			if w.tid == 2 {
				panic("probe failed")
			}
			return 0
		})
	require.Error(t, err)
	require.True(t, moerr.IsMoErrCode(err, moerr.ErrInternal))
	require.Contains(t, err.Error(), "probe failed")
}

func TestValidate(t *testing.T) {
	cases := []struct {
		name  string
		apply func(o *Options)
		code  uint16
	}{
		{"ok", func(o *Options) {}, moerr.Ok},
		{"no threads", func(o *Options) { o.Threads = 0 }, moerr.ErrInvalidArg},
		{"no rounds", func(o *Options) { o.Repeat = 0 }, moerr.ErrInvalidArg},
		{"load factor not a power of two", func(o *Options) { o.LoadFactor = 3 }, moerr.ErrInvalidArg},
		{"no variants", func(o *Options) { o.Variants = nil }, moerr.ErrBadConfig},
		{"bad lanes", func(o *Options) { o.Probe.AMACLanes = 0 }, moerr.ErrInvalidArg},
	}
	for _, c := range cases {
		t.Run(c.name, func(t *testing.T) {
			opts := DefaultOptions()
			c.apply(&opts)
			require.True(t, moerr.IsMoErrCode(opts.Validate(), c.code))
		})
	}
}

func TestResultCheck(t *testing.T) {
	res := &Result{Rounds: []Round{{Matches: 3}, {Round: 1, Matches: 4}}}
	require.Equal(t, int64(3), res.Total())
	require.True(t, moerr.IsMoErrCode(res.Check(), moerr.ErrInvalidState))
	require.Zero(t, (&Result{}).Total())

	res = &Result{Rounds: []Round{
		{Variant: hashprobe.VariantPipelineRaw, Matches: 2},
		{Variant: hashprobe.VariantRaw, Matches: 5},
		{Variant: hashprobe.VariantPipelineAMAC, Matches: 2},
		{Variant: hashprobe.VariantAMAC, Matches: 5},
	}}
	require.Equal(t, int64(5), res.Total())
	require.NoError(t, res.Check())
}
