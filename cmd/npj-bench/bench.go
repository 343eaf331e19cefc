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

package main

import (
	"context"
	"fmt"
	"io"

	"go.uber.org/zap"

	"github.com/matrixorigin/npjoin/pkg/common/moerr"
	"github.com/matrixorigin/npjoin/pkg/container/types"
	"github.com/matrixorigin/npjoin/pkg/logutil"
	"github.com/matrixorigin/npjoin/pkg/relation"
	"github.com/matrixorigin/npjoin/pkg/sql/colexec/hashprobe"
	"github.com/matrixorigin/npjoin/pkg/sql/colexec/npo"
	"github.com/matrixorigin/npjoin/pkg/sql/colexec/verify"
	"github.com/matrixorigin/npjoin/pkg/vectorize/lanes"
)

func run(ctx context.Context, cfg *Config) (*npo.Result, error) {
	logger := logutil.Named("bench")
	r, s, err := loadRelations(ctx, &cfg.Relation)
	if err != nil {
		return nil, err
	}
	logger.Info("relations ready",
		zap.Stringer("r", relation.Analyze(r)),
		zap.Stringer("s", relation.Analyze(s)))
	backend, avx512 := lanes.Backend()
	logger.Info("vector lanes", zap.String("backend", backend), zap.Bool("avx512", avx512))

	opts, err := cfg.Join.options()
	if err != nil {
		return nil, err
	}
	var res *npo.Result
	if cfg.Join.Algorithm == algorithmBST {
		res, err = npo.RunTree(ctx, r, s, opts)
	} else {
		res, err = npo.Run(ctx, r, s, opts)
	}
	if err != nil {
		return nil, err
	}
	if err := res.Check(); err != nil {
		return nil, err
	}
	if cfg.Join.Verify {
		if err := verifyResult(ctx, cfg, r, s, opts, res); err != nil {
			return nil, err
		}
		logger.Info("verified every round")
	}
	return res, nil
}

// loadRelations reads R and S from their files, or generates them. S is
// drawn from a different seed than R.
func loadRelations(ctx context.Context, cfg *RelationConfig) (r, s types.Relation, err error) {
	if cfg.RFile != "" {
		r, err = relation.ReadFile(ctx, cfg.RFile)
	} else {
		r, err = relation.GenUnique(ctx, cfg.RSize, cfg.Seed, cfg.GenThreads)
	}
	if err != nil {
		return
	}
	switch {
	case cfg.SFile != "":
		s, err = relation.ReadFile(ctx, cfg.SFile)
	case cfg.SMaxKey > 0:
		s, err = relation.GenForeignKey(ctx, cfg.SSize, cfg.SMaxKey, cfg.Seed+1, cfg.GenThreads)
	default:
		s, err = relation.GenUnique(ctx, cfg.SSize, cfg.Seed+1, cfg.GenThreads)
	}
	return
}

// verifyResult compares every round, and the materialized results of
// every variant, with the oracle.
func verifyResult(ctx context.Context, cfg *Config, r, s types.Relation, opts npo.Options, res *npo.Result) error {
	oracle := verify.NewOracle(r)
	for vi, v := range opts.Variants {
		probe := s
		if v.Filtered() {
			probe = filtered(s, opts.Probe)
		}
		want := oracle.Matches(probe)
		if cfg.Join.Algorithm == algorithmBST {
			want = oracle.DistinctMatches(probe)
		}
		for _, rd := range res.Rounds {
			if rd.Variant == v && rd.Matches != want {
				return moerr.NewInternalError(ctx, "variant %s round %d found %d matches, expected %d", v, rd.Round, rd.Matches, want)
			}
		}
		if opts.Materialize {
			sinks := res.Sinks(vi)
			if !opts.Divide && len(sinks) > 1 {
				// every thread probed all of S
				sinks = sinks[:1]
			}
			got := verify.SinkCoverage(sinks...)
			if exp := oracle.ExpectedCoverage(probe); !got.Equals(exp) {
				return moerr.NewInternalError(ctx, "variant %s matched %d probe tuples, expected %d",
					v, got.GetCardinality(), exp.GetCardinality())
			}
			exp := oracle.Join(probe)
			if cfg.Join.Algorithm == algorithmBST {
				exp = oracle.DistinctJoin(probe)
			}
			if !verify.SameMultiset(exp, verify.SinkResults(sinks...)) {
				return moerr.NewInternalError(ctx, "variant %s materialized results differ from the oracle", v)
			}
		}
	}
	return nil
}

func filtered(s types.Relation, opts hashprobe.Options) types.Relation {
	kept := make([]types.Tuple, 0, s.NumTuples())
	for _, t := range s.Tuples {
		if !opts.Skips(t.Key) {
			kept = append(kept, t)
		}
	}
	return types.NewRelation(kept)
}

func printSummary(w io.Writer, cfg *Config, res *npo.Result) {
	fmt.Fprintf(w, "algorithm = %s, threads = %d\n", cfg.Join.Algorithm, cfg.Join.Threads)
	fmt.Fprintf(w, "build costs time (ms) = %.3f\n", float64(res.Build.Microseconds())/1000)
	if res.Table != nil {
		fmt.Fprintf(w, "hash table: %s\n", res.Table)
	} else {
		fmt.Fprintf(w, "tree: nodes = %d, depth = %d\n", res.TreeNodes, res.TreeDepth)
	}
	for _, rd := range res.Rounds {
		fmt.Fprintf(w, "%-18s round %d: total result num = %d, probe costs time (ms) = %.3f\n",
			rd.Variant, rd.Round, rd.Matches, float64(rd.Elapsed.Microseconds())/1000)
	}
	for _, th := range res.Threads {
		fmt.Fprintf(w, "thread %d (cpu %d):", th.ID, th.CPU)
		for vi, counts := range th.Matches {
			fmt.Fprintf(w, " %s=%d", cfg.Join.Variants[vi], counts[len(counts)-1])
		}
		fmt.Fprintln(w)
	}
	fmt.Fprintf(w, "total result num = %d\n", res.Total())
}
