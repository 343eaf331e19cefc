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

package testutil

import (
	"math/rand"
	"sort"

	"github.com/matrixorigin/npjoin/pkg/container/types"
)

// NewRelation builds a relation whose payloads are the row numbers.
func NewRelation(keys ...int64) types.Relation {
	tuples := make([]types.Tuple, len(keys))
	for i, k := range keys {
		tuples[i] = types.Tuple{Key: k, Payload: int64(i)}
	}
	return types.NewRelation(tuples)
}

// NewRelationWithPayloads builds a relation from parallel key and payload
// lists.
func NewRelationWithPayloads(keys, payloads []int64) types.Relation {
	tuples := make([]types.Tuple, len(keys))
	for i := range keys {
		tuples[i] = types.Tuple{Key: keys[i], Payload: payloads[i]}
	}
	return types.NewRelation(tuples)
}

// RandomRelation draws n keys uniformly from [1, maxKey] with row number
// payloads.
func RandomRelation(n int, maxKey int64, seed int64) types.Relation {
	rnd := rand.New(rand.NewSource(seed))
	keys := make([]int64, n)
	for i := range keys {
		keys[i] = rnd.Int63n(maxKey) + 1
	}
	return NewRelation(keys...)
}

// NestedLoopJoin is the textbook join of r and s, build payload left.
func NestedLoopJoin(r, s types.Relation) []types.JoinResult {
	byKey := make(map[int64][]int64)
	for _, t := range r.Tuples {
		byKey[t.Key] = append(byKey[t.Key], t.Payload)
	}
	rs := make([]types.JoinResult, 0)
	for _, t := range s.Tuples {
		for _, p := range byKey[t.Key] {
			rs = append(rs, types.JoinResult{Left: p, Right: t.Payload})
		}
	}
	return SortResults(rs)
}

// SortResults orders results by left then right payload, in place.
func SortResults(rs []types.JoinResult) []types.JoinResult {
	sort.Slice(rs, func(i, j int) bool {
		if rs[i].Left != rs[j].Left {
			return rs[i].Left < rs[j].Left
		}
		return rs[i].Right < rs[j].Right
	})
	return rs
}
