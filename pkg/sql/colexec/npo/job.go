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
	"runtime"
	"sync"
	"time"

	"github.com/panjf2000/ants/v2"
	"go.uber.org/zap"

	"github.com/matrixorigin/npjoin/pkg/common/affinity"
	"github.com/matrixorigin/npjoin/pkg/common/barrier"
	"github.com/matrixorigin/npjoin/pkg/common/moerr"
	"github.com/matrixorigin/npjoin/pkg/container/tuplebuf"
	"github.com/matrixorigin/npjoin/pkg/container/types"
	"github.com/matrixorigin/npjoin/pkg/logutil"
	"github.com/matrixorigin/npjoin/pkg/sql/colexec/hashprobe"
)

// bindThread pins the calling worker. Tests replace it.
var bindThread = affinity.Bind

type worker struct {
	tid int
	cpu int
	r   types.Relation
	s   types.Relation
	res *ThreadResult
}

type buildFunc func(w *worker)

type probeFunc func(w *worker, v hashprobe.Variant, out tuplebuf.Sink) int64

// job runs one build phase and the probe rounds of every variant over a
// fixed set of workers that meet at a shared barrier between phases.
type job struct {
	opts    Options
	bar     *barrier.Barrier
	workers []*worker
	logger  *zap.Logger

	// written by worker 0 only
	build   time.Duration
	elapsed [][]time.Duration

	mu  sync.Mutex
	err error
}

func newJob(opts Options, r, s types.Relation) *job {
	j := &job{
		opts:    opts,
		bar:     barrier.New(opts.Threads),
		workers: make([]*worker, opts.Threads),
		logger:  logutil.Named("npo"),
		elapsed: make([][]time.Duration, len(opts.Variants)),
	}
	for vi := range j.elapsed {
		j.elapsed[vi] = make([]time.Duration, opts.Repeat)
	}
	for tid := range j.workers {
		w := &worker{
			tid: tid,
			cpu: opts.CPUs.CPU(tid),
			r:   r.Part(tid, opts.Threads),
			s:   s,
		}
		if opts.Divide {
			w.s = s.Part(tid, opts.Threads)
		}
		w.res = &ThreadResult{
			ID:      tid,
			CPU:     w.cpu,
			Matches: make([][]int64, len(opts.Variants)),
			Sinks:   make([]tuplebuf.Sink, len(opts.Variants)),
		}
		for vi := range w.res.Matches {
			w.res.Matches[vi] = make([]int64, opts.Repeat)
		}
		j.workers[tid] = w
	}
	return j
}

func (j *job) fail(err error) {
	j.mu.Lock()
	if j.err == nil {
		j.err = err
	}
	j.mu.Unlock()
	j.bar.Break()
}

// run starts every worker on a pool and waits for all of them.
func (j *job) run(ctx context.Context, build buildFunc, probe probeFunc) error {
	pool, err := ants.NewPool(j.opts.Threads, ants.WithPanicHandler(func(v interface{}) {
		j.logger.Error("pool worker panic", zap.Any("panic", v))
	}))
	if err != nil {
		return moerr.ConvertGoError(ctx, err)
	}
	defer pool.Release()

	var wg sync.WaitGroup
	for _, w := range j.workers {
		w := w
		wg.Add(1)
		if err := pool.Submit(func() {
			defer func() {
				if p := recover(); p != nil {
					j.logger.Error("worker panic", zap.Int("tid", w.tid), zap.Any("panic", p))
					j.fail(moerr.ConvertPanicError(ctx, p))
				}
				wg.Done()
			}()
			j.work(w, build, probe)
		}); err != nil {
			wg.Done()
			j.fail(moerr.ConvertGoError(ctx, err))
		}
	}
	wg.Wait()
	return j.err
}

// arrive waits for the other workers and reports whether the job goes on.
func (j *job) arrive() bool {
	j.bar.Wait()
	return !j.bar.Broken()
}

func (j *job) work(w *worker, build buildFunc, probe probeFunc) {
	if j.opts.Pin {
		if err := bindThread(w.cpu); err != nil {
			j.logger.Warn("failed to pin worker", zap.Int("tid", w.tid), zap.Int("cpu", w.cpu), zap.Error(err))
		}
		defer runtime.UnlockOSThread()
	}

	if !j.arrive() {
		return
	}
	start := time.Now()
	build(w)
	if !j.arrive() {
		return
	}
	if w.tid == 0 {
		j.build = time.Since(start)
	}

	for vi, v := range j.opts.Variants {
		out := tuplebuf.New(j.opts.Materialize)
		for rp := 0; rp < j.opts.Repeat; rp++ {
			out.Reset()
			if !j.arrive() {
				return
			}
			t1 := time.Now()
			w.res.Matches[vi][rp] = probe(w, v, out)
			if !j.arrive() {
				return
			}
			if w.tid == 0 {
				j.elapsed[vi][rp] = time.Since(t1)
			}
		}
		w.res.Sinks[vi] = out
	}
}

// result sums the per worker counts of every round. Without Divide every
// worker probed all of S, so a round counts the matches of worker 0.
func (j *job) result() *Result {
	res := &Result{
		Threads: make([]ThreadResult, len(j.workers)),
		Build:   j.build,
	}
	for tid, w := range j.workers {
		res.Threads[tid] = *w.res
	}
	for vi, v := range j.opts.Variants {
		for rp := 0; rp < j.opts.Repeat; rp++ {
			var total int64
			if j.opts.Divide {
				for _, w := range j.workers {
					total += w.res.Matches[vi][rp]
				}
			} else {
				total = j.workers[0].res.Matches[vi][rp]
			}
			rd := Round{Variant: v, Round: rp, Matches: total, Elapsed: j.elapsed[vi][rp]}
			res.Rounds = append(res.Rounds, rd)
			j.logger.Info("probe round",
				zap.Stringer("variant", v),
				zap.Int("round", rp),
				zap.Int64("matches", total),
				zap.Duration("elapsed", rd.Elapsed))
		}
	}
	return res
}
