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

// Package relation generates, describes and stores the input relations of
// a join run.
package relation

import (
	"context"
	"math/rand"
	"sync"

	"github.com/panjf2000/ants/v2"

	"github.com/matrixorigin/npjoin/pkg/common/moerr"
	"github.com/matrixorigin/npjoin/pkg/container/types"
)

// fillChunk is the number of tuples one generation task fills.
const fillChunk = 1 << 16

// GenUnique returns n tuples with the keys 1..n in random order. The
// payload of a tuple is its row number.
func GenUnique(ctx context.Context, n int, seed int64, threads int) (types.Relation, error) {
	return generate(ctx, n, seed, threads, func(i int) int64 {
		return int64(i) + 1
	})
}

// GenForeignKey returns n tuples whose keys cycle through 1..maxKey, in
// random order, so every key of a unique relation of maxKey tuples is
// referenced about n/maxKey times.
func GenForeignKey(ctx context.Context, n int, maxKey int64, seed int64, threads int) (types.Relation, error) {
	if maxKey <= 0 {
		return types.Relation{}, moerr.NewInvalidArg(ctx, "s-max-key", maxKey)
	}
	return generate(ctx, n, seed, threads, func(i int) int64 {
		return int64(i)%maxKey + 1
	})
}

func generate(ctx context.Context, n int, seed int64, threads int, key func(i int) int64) (types.Relation, error) {
	if n < 0 {
		return types.Relation{}, moerr.NewInvalidArg(ctx, "relation size", n)
	}
	if threads <= 0 {
		threads = 1
	}
	tuples := make([]types.Tuple, n)
	if err := parallelFill(ctx, n, threads, func(lo, hi int) {
		for i := lo; i < hi; i++ {
			tuples[i].Key = key(i)
		}
	}); err != nil {
		return types.Relation{}, err
	}

	rnd := rand.New(rand.NewSource(seed))
	for i := n - 1; i > 0; i-- {
		j := rnd.Intn(i + 1)
		tuples[i].Key, tuples[j].Key = tuples[j].Key, tuples[i].Key
	}

	if err := parallelFill(ctx, n, threads, func(lo, hi int) {
		for i := lo; i < hi; i++ {
			tuples[i].Payload = int64(i)
		}
	}); err != nil {
		return types.Relation{}, err
	}
	return types.NewRelation(tuples), nil
}

// parallelFill runs fill over chunks of [0, n) on a pool of threads
// workers.
func parallelFill(ctx context.Context, n, threads int, fill func(lo, hi int)) error {
	if n == 0 {
		return nil
	}
	pool, err := ants.NewPool(threads)
	if err != nil {
		return moerr.ConvertGoError(ctx, err)
	}
	defer pool.Release()

	var wg sync.WaitGroup
	for lo := 0; lo < n; lo += fillChunk {
		hi := lo + fillChunk
		if hi > n {
			hi = n
		}
		lo := lo
		wg.Add(1)
		if err := pool.Submit(func() {
			defer wg.Done()
			fill(lo, hi)
		}); err != nil {
			wg.Done()
			wg.Wait()
			return moerr.ConvertGoError(ctx, err)
		}
	}
	wg.Wait()
	return nil
}
