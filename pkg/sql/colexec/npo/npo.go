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

	"go.uber.org/zap"

	"github.com/matrixorigin/npjoin/pkg/common/moerr"
	"github.com/matrixorigin/npjoin/pkg/container/hashtable"
	"github.com/matrixorigin/npjoin/pkg/container/tuplebuf"
	"github.com/matrixorigin/npjoin/pkg/container/types"
	"github.com/matrixorigin/npjoin/pkg/sql/colexec/bstprobe"
	"github.com/matrixorigin/npjoin/pkg/sql/colexec/hashprobe"
)

// maxTreeTuples bounds the build side of RunTree. Tests lower it.
var maxTreeTuples int64 = bstprobe.MaxNodes

// Run joins r and s with a shared hash table. The workers build the table
// from their slices of r, then probe it with every variant of opts.
func Run(ctx context.Context, r, s types.Relation, opts Options) (*Result, error) {
	if err := opts.Validate(); err != nil {
		return nil, err
	}
	ht := hashtable.New(uint64(r.NumTuples()), opts.tableOptions()...)
	defer ht.Destroy()
	allocs := make([]*hashtable.Allocator, opts.Threads)
	for i := range allocs {
		allocs[i] = ht.NewAllocator()
	}
	prober := hashprobe.New(ht, opts.Probe)

	j := newJob(opts, r, s)
	j.logger.Info("hash join start",
		zap.Int("threads", opts.Threads),
		zap.Int("r", r.NumTuples()),
		zap.Int("s", s.NumTuples()),
		zap.Uint64("buckets", ht.NumBuckets()),
		zap.Bool("single-thread-build", opts.SingleThreadBuild))

	build := func(w *worker) {
		if !opts.SingleThreadBuild {
			ht.BuildMT(w.r, allocs[w.tid])
		} else if w.tid == 0 {
			ht.BuildST(r, allocs[0])
		}
	}
	probe := func(w *worker, v hashprobe.Variant, out tuplebuf.Sink) int64 {
		return prober.Probe(v, w.s, out)
	}
	if err := j.run(ctx, build, probe); err != nil {
		return nil, err
	}

	st := ht.Stats()
	j.logger.Info("hash table built",
		zap.Duration("elapsed", j.build),
		zap.Uint64("buckets", st.NumBuckets),
		zap.Int("overflow-buckets", ht.NumOverflowBuckets()),
		zap.Uint32("max-chain", st.MaxLength))
	j.logger.Debug("chain lengths", zap.Stringer("stats", st))

	res := j.result()
	res.Table = &st
	return res, nil
}

// RunTree joins r and s through a binary search tree built by worker 0.
// Duplicate keys of r are kept once.
func RunTree(ctx context.Context, r, s types.Relation, opts Options) (*Result, error) {
	if err := opts.Validate(); err != nil {
		return nil, err
	}
	for _, v := range opts.Variants {
		if !bstprobe.Supports(v) {
			return nil, moerr.NewNotSupported(ctx, "tree probe variant %s", v)
		}
	}
	if n := int64(r.NumTuples()); n > maxTreeTuples {
		return nil, moerr.NewInvalidInput(ctx, "build relation of %d tuples exceeds %d tree nodes", n, maxTreeTuples)
	}

	var (
		tree   *bstprobe.Tree
		prober *bstprobe.Prober
	)
	j := newJob(opts, r, s)
	j.logger.Info("tree join start",
		zap.Int("threads", opts.Threads),
		zap.Int("r", r.NumTuples()),
		zap.Int("s", s.NumTuples()))

	// the barrier after build publishes tree and prober to every worker
	build := func(w *worker) {
		if w.tid == 0 {
			tree = bstprobe.Build(r)
			prober = bstprobe.New(tree, opts.Probe)
		}
	}
	probe := func(w *worker, v hashprobe.Variant, out tuplebuf.Sink) int64 {
		return prober.Probe(v, w.s, out)
	}
	if err := j.run(ctx, build, probe); err != nil {
		return nil, err
	}
	defer tree.Destroy()

	res := j.result()
	res.TreeNodes = tree.Len()
	res.TreeDepth = tree.Depth()
	j.logger.Info("tree built",
		zap.Duration("elapsed", j.build),
		zap.Int("nodes", res.TreeNodes),
		zap.Int("depth", res.TreeDepth))
	return res, nil
}
