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

// Package verify checks join results against an oracle that shares no code
// with the hash table or the tree.
package verify

import (
	"sort"

	"github.com/RoaringBitmap/roaring/roaring64"
	"github.com/google/btree"

	"github.com/matrixorigin/npjoin/pkg/container/tuplebuf"
	"github.com/matrixorigin/npjoin/pkg/container/types"
)

const btreeDegree = 32

// keyCount is the multiplicity of one build key and its payloads in
// build order.
type keyCount struct {
	key      int64
	n        int64
	payloads []int64
}

func (k *keyCount) Less(than btree.Item) bool {
	return k.key < than.(*keyCount).key
}

// Oracle holds the build keys of R in an ordered tree.
type Oracle struct {
	keys *btree.BTree
}

func NewOracle(r types.Relation) *Oracle {
	o := &Oracle{keys: btree.New(btreeDegree)}
	probe := &keyCount{}
	for _, t := range r.Tuples {
		probe.key = t.Key
		if it := o.keys.Get(probe); it != nil {
			kc := it.(*keyCount)
			kc.n++
			kc.payloads = append(kc.payloads, t.Payload)
			continue
		}
		o.keys.ReplaceOrInsert(&keyCount{key: t.Key, n: 1, payloads: []int64{t.Payload}})
	}
	return o
}

// Len is the number of distinct build keys.
func (o *Oracle) Len() int {
	return o.keys.Len()
}

func (o *Oracle) get(key int64) *keyCount {
	if it := o.keys.Get(&keyCount{key: key}); it != nil {
		return it.(*keyCount)
	}
	return nil
}

func (o *Oracle) count(key int64) int64 {
	if kc := o.get(key); kc != nil {
		return kc.n
	}
	return 0
}

// Matches is the size of the equi join of R and s.
func (o *Oracle) Matches(s types.Relation) int64 {
	var n int64
	for _, t := range s.Tuples {
		n += o.count(t.Key)
	}
	return n
}

// DistinctMatches is the size of the join when R keeps one tuple per key.
func (o *Oracle) DistinctMatches(s types.Relation) int64 {
	var n int64
	for _, t := range s.Tuples {
		if o.count(t.Key) > 0 {
			n++
		}
	}
	return n
}

// Join is the equi join of R and s as (build payload, probe payload)
// pairs.
func (o *Oracle) Join(s types.Relation) []types.JoinResult {
	res := make([]types.JoinResult, 0, len(s.Tuples))
	for _, t := range s.Tuples {
		if kc := o.get(t.Key); kc != nil {
			for _, p := range kc.payloads {
				res = append(res, types.JoinResult{Left: p, Right: t.Payload})
			}
		}
	}
	return res
}

// DistinctJoin is Join when R keeps only the first tuple of every key.
func (o *Oracle) DistinctJoin(s types.Relation) []types.JoinResult {
	res := make([]types.JoinResult, 0, len(s.Tuples))
	for _, t := range s.Tuples {
		if kc := o.get(t.Key); kc != nil {
			res = append(res, types.JoinResult{Left: kc.payloads[0], Right: t.Payload})
		}
	}
	return res
}

// ExpectedCoverage holds the payloads of the tuples of s that find a
// partner in R.
func (o *Oracle) ExpectedCoverage(s types.Relation) *roaring64.Bitmap {
	bm := roaring64.New()
	for _, t := range s.Tuples {
		if o.count(t.Key) > 0 {
			bm.Add(uint64(t.Payload))
		}
	}
	return bm
}

// KeyRange returns the smallest and largest build key.
func (o *Oracle) KeyRange() (min, max int64, ok bool) {
	if o.keys.Len() == 0 {
		return 0, 0, false
	}
	return o.keys.Min().(*keyCount).key, o.keys.Max().(*keyCount).key, true
}

func ExpectedMatches(r, s types.Relation) int64 {
	return NewOracle(r).Matches(s)
}

// Coverage holds the probe payloads found in results.
func Coverage(results []types.JoinResult) *roaring64.Bitmap {
	bm := roaring64.New()
	for _, rs := range results {
		bm.Add(uint64(rs.Right))
	}
	return bm
}

// SinkCoverage is Coverage over materialized sinks. Counting sinks carry
// no results and add nothing.
func SinkCoverage(sinks ...tuplebuf.Sink) *roaring64.Bitmap {
	bm := roaring64.New()
	for _, s := range sinks {
		c, ok := s.(*tuplebuf.Chained)
		if !ok {
			continue
		}
		c.Each(func(rs types.JoinResult) bool {
			bm.Add(uint64(rs.Right))
			return true
		})
	}
	return bm
}

// SinkResults gathers the results of materialized sinks.
func SinkResults(sinks ...tuplebuf.Sink) []types.JoinResult {
	var res []types.JoinResult
	for _, s := range sinks {
		if c, ok := s.(*tuplebuf.Chained); ok {
			res = append(res, c.Results()...)
		}
	}
	return res
}

// SameMultiset reports whether a and b hold the same results with the
// same multiplicities, in any order.
func SameMultiset(a, b []types.JoinResult) bool {
	if len(a) != len(b) {
		return false
	}
	x := sorted(a)
	y := sorted(b)
	for i := range x {
		if x[i] != y[i] {
			return false
		}
	}
	return true
}

func sorted(rs []types.JoinResult) []types.JoinResult {
	c := make([]types.JoinResult, len(rs))
	copy(c, rs)
	sort.Slice(c, func(i, j int) bool {
		if c[i].Left != c[j].Left {
			return c[i].Left < c[j].Left
		}
		return c[i].Right < c[j].Right
	})
	return c
}
