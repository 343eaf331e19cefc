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

package hashtable

import (
	"sort"
	"sync"
	"testing"
	"unsafe"

	"github.com/lni/goutils/leaktest"
	"github.com/stretchr/testify/require"

	"github.com/matrixorigin/npjoin/pkg/container/types"
)

func makeTuples(keys ...int64) []types.Tuple {
	ts := make([]types.Tuple, len(keys))
	for i, k := range keys {
		ts[i] = types.Tuple{Key: k, Payload: int64(i)}
	}
	return ts
}

// payloadsOf walks the chain of key and collects the payloads stored
// under it.
func payloadsOf(ht *HashTable, key int64) []int64 {
	var ps []int64
	b := ht.Head(key)
	for {
		for i := uint32(0); i < b.Count; i++ {
			if b.Tuples[i].Key == key {
				ps = append(ps, b.Tuples[i].Payload)
			}
		}
		if b.Next.IsNil() {
			break
		}
		b = ht.Resolve(b.Next)
	}
	sort.Slice(ps, func(i, j int) bool { return ps[i] < ps[j] })
	return ps
}

func chainLen(ht *HashTable, idx uint64) int {
	n := 1
	for b := ht.Bucket(idx); !b.Next.IsNil(); b = ht.Resolve(b.Next) {
		n++
	}
	return n
}

func TestNextPow2(t *testing.T) {
	cases := []struct {
		in, want uint64
	}{
		{0, 1}, {1, 1}, {2, 2}, {3, 4}, {5, 8}, {8, 8}, {1023, 1024}, {1025, 2048},
	}
	for _, c := range cases {
		require.Equal(t, c.want, NextPow2(c.in), "NextPow2(%d)", c.in)
	}
}

func TestNewSizing(t *testing.T) {
	require.Equal(t, uint64(1), New(1).NumBuckets())
	require.Equal(t, uint64(8), New(5).NumBuckets())
	require.Equal(t, uint64(4), New(5, WithLoadFactor(2)).NumBuckets())
	require.Equal(t, uint64(1), New(1, WithLoadFactor(4)).NumBuckets())

	ht := New(4, WithSkipBits(2))
	require.Equal(t, uint(2), ht.SkipBits())
	// only bits 2 and 3 of the key pick the bucket
	require.Equal(t, uint64(0), ht.Hash(3))
	require.Equal(t, uint64(1), ht.Hash(4))
	require.Equal(t, uint64(3), ht.Hash(12|1))
	require.Equal(t, uint64(0), ht.Hash(16))

	lt := New(1000, WithLocalize(3, nil))
	require.Equal(t, uint64(1024), lt.NumBuckets())
}

func TestBucketLayout(t *testing.T) {
	var b Bucket
	require.Zero(t, unsafe.Sizeof(b)%cacheLineSize)
	require.True(t, b.Next.IsNil())
	require.False(t, b.Full())
}

func TestBucketsStartOnCacheLine(t *testing.T) {
	for _, n := range []int{1, 2, 3, 7, 64, 1000} {
		bs := makeBuckets(n)
		require.Len(t, bs, n)
		require.Zero(t, uintptr(unsafe.Pointer(&bs[0]))%cacheLineSize)
		for i := range bs {
			require.Zero(t, bs[i].Count)
			require.True(t, bs[i].Next.IsNil())
		}
	}
	require.Empty(t, makeBuckets(0))

	for _, target := range []uint64{1, 3, 100} {
		ht := New(target, WithSlabSize(3))
		require.Zero(t, uintptr(unsafe.Pointer(&ht.buckets[0]))%cacheLineSize)
		a := ht.NewAllocator()
		_, b := a.NextBucket()
		require.Zero(t, uintptr(unsafe.Pointer(b))%cacheLineSize)
		ht.Destroy()
	}
}

func TestBucketRef(t *testing.T) {
	r := headRef(12345)
	require.False(t, r.IsNil())
	require.False(t, r.IsOverflow())
	require.Equal(t, uint64(12345), r.headIndex())

	r = overflowRef(7, 513, 1000)
	require.True(t, r.IsOverflow())
	owner, slab, slot := r.split()
	require.Equal(t, 7, owner)
	require.Equal(t, 513, slab)
	require.Equal(t, 1000, slot)

	// head bucket zero still is a valid reference
	require.NotEqual(t, NilRef, headRef(0))
}

func TestBuildSTSingleBucket(t *testing.T) {
	ht := New(1)
	a := ht.NewAllocator()
	rel := types.NewRelation(makeTuples(1, 1, 2))
	ht.BuildST(rel, a)

	require.Equal(t, []int64{0, 1}, payloadsOf(ht, 1))
	require.Equal(t, []int64{2}, payloadsOf(ht, 2))
	require.Empty(t, payloadsOf(ht, 3))
	require.Equal(t, 1, a.NumBuckets())
	require.Equal(t, uint32(2), ht.Bucket(0).Length)
}

func TestBuildOverflowChain(t *testing.T) {
	const n = 101
	ht := New(1, WithSlabSize(4))
	a := ht.NewAllocator()
	keys := make([]int64, n)
	for i := range keys {
		keys[i] = 42
	}
	ht.BuildST(types.NewRelation(makeTuples(keys...)), a)

	ps := payloadsOf(ht, 42)
	require.Len(t, ps, n)
	for i, p := range ps {
		require.Equal(t, int64(i), p)
	}
	// the head holds two tuples, every overflow bucket fills up before
	// a new one is spliced in
	require.Equal(t, 50, a.NumBuckets())
	require.Equal(t, 13, a.NumSlabs())
	require.Equal(t, 51, chainLen(ht, 0))
	require.Equal(t, uint32(51), ht.Bucket(0).Length)

	st := ht.Stats()
	require.Equal(t, uint32(51), st.MaxLength)
	require.Equal(t, uint64(51), st.TotalLength)
	require.Equal(t, uint64(1), st.Histogram[6])
	require.Contains(t, st.String(), "max=51")

	ht.Destroy()
	require.Equal(t, 0, a.NumSlabs())
	require.Equal(t, 0, ht.NumOverflowBuckets())
}

func TestBuildPrefetch(t *testing.T) {
	ht := New(64, WithBuildPrefetch(4))
	a := ht.NewAllocator()
	keys := make([]int64, 256)
	for i := range keys {
		keys[i] = int64(i % 100)
	}
	ht.BuildST(types.NewRelation(makeTuples(keys...)), a)
	for k := int64(0); k < 100; k++ {
		require.Len(t, payloadsOf(ht, k), expectCount(keys, k), "key %d", k)
	}
}

func expectCount(keys []int64, k int64) int {
	var n int
	for _, key := range keys {
		if key == k {
			n++
		}
	}
	return n
}

func TestBuildMTCompleteness(t *testing.T) {
	defer leaktest.AfterTest(t)()
	const (
		threads = 8
		n       = 20000
		keys    = 3000
	)
	tuples := make([]types.Tuple, n)
	for i := range tuples {
		tuples[i] = types.Tuple{Key: int64(i*7919) % keys, Payload: int64(i)}
	}
	rel := types.NewRelation(tuples)

	ht := New(n/BucketSize/4, WithSlabSize(16))
	allocs := make([]*Allocator, threads)
	for i := range allocs {
		allocs[i] = ht.NewAllocator()
	}
	var wg sync.WaitGroup
	wg.Add(threads)
	for tid := 0; tid < threads; tid++ {
		go func(tid int) {
			defer wg.Done()
			ht.BuildMT(rel.Part(tid, threads), allocs[tid])
		}(tid)
	}
	wg.Wait()

	want := make(map[int64][]int64)
	for _, tp := range tuples {
		want[tp.Key] = append(want[tp.Key], tp.Payload)
	}
	var total int
	for k, ps := range want {
		got := payloadsOf(ht, k)
		sort.Slice(ps, func(i, j int) bool { return ps[i] < ps[j] })
		require.Equal(t, ps, got, "key %d", k)
		total += len(got)
	}
	require.Equal(t, n, total)
	require.Greater(t, ht.NumOverflowBuckets(), 0)

	var stored uint64
	for i := uint64(0); i < ht.NumBuckets(); i++ {
		for b := ht.Bucket(i); ; b = ht.Resolve(b.Next) {
			stored += uint64(b.Count)
			if b.Next.IsNil() {
				break
			}
		}
		require.Equal(t, uint32(chainLen(ht, i)), max32(ht.Bucket(i).Length, 1))
	}
	require.Equal(t, uint64(n), stored)
	ht.Destroy()
}

func max32(a, b uint32) uint32 {
	if a > b {
		return a
	}
	return b
}
