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
	"math/bits"
	"sync"

	"github.com/matrixorigin/npjoin/pkg/common/affinity"
)

// HashTable is a bucket chained hash table over integer keys. Head buckets
// form a power of two sized array, chains continue through overflow
// buckets owned by the allocators registered on the table.
type HashTable struct {
	buckets  []Bucket
	hashMask uint64
	skipBits uint

	mu     sync.Mutex
	owners []*Allocator

	opts options
}

type options struct {
	loadFactor       uint64
	skipBits         uint
	slabSize         int
	prefetchDistance int
	localize         bool
	localizeThreads  int
	cpus             affinity.Mapping
}

type Option func(*options)

// WithLoadFactor divides the bucket count. It must be a power of two.
func WithLoadFactor(lf uint64) Option {
	return func(o *options) {
		o.loadFactor = lf
	}
}

// WithSkipBits drops the low bits of a key before it picks a bucket.
func WithSkipBits(skip uint) Option {
	return func(o *options) {
		o.skipBits = skip
	}
}

// WithSlabSize sets the number of buckets per overflow slab.
func WithSlabSize(n int) Option {
	return func(o *options) {
		o.slabSize = n
	}
}

// WithBuildPrefetch prefetches the head bucket of the tuple d positions
// ahead while building. Zero disables it.
func WithBuildPrefetch(d int) Option {
	return func(o *options) {
		o.prefetchDistance = d
	}
}

// WithLocalize first touches the bucket array from nthreads workers placed
// by cpus, so its pages are spread over the NUMA nodes of the workers.
func WithLocalize(nthreads int, cpus affinity.Mapping) Option {
	return func(o *options) {
		o.localize = true
		o.localizeThreads = nthreads
		o.cpus = cpus
	}
}

// New allocates a table sized for target build tuples.
func New(target uint64, opts ...Option) *HashTable {
	o := options{loadFactor: 1, slabSize: DefaultSlabSize}
	for _, opt := range opts {
		opt(&o)
	}
	if o.loadFactor == 0 {
		o.loadFactor = 1
	}
	if o.slabSize <= 0 || o.slabSize > MaxSlabSize {
		o.slabSize = DefaultSlabSize
	}

	n := NextPow2(target) / o.loadFactor
	if n == 0 {
		n = 1
	}
	ht := &HashTable{
		buckets:  makeBuckets(int(n)),
		hashMask: (n - 1) << o.skipBits,
		skipBits: o.skipBits,
		opts:     o,
	}
	if o.localize {
		affinity.Localize(len(ht.buckets), o.localizeThreads, o.cpus, func(lo, hi int) {
			for i := lo; i < hi; i++ {
				ht.buckets[i].Count = 0
			}
		})
	}
	return ht
}

// NextPow2 returns the smallest power of two not below v, and 1 for 0.
func NextPow2(v uint64) uint64 {
	if v <= 1 {
		return 1
	}
	return 1 << bits.Len64(v-1)
}

func (ht *HashTable) NumBuckets() uint64 {
	return uint64(len(ht.buckets))
}

func (ht *HashTable) SkipBits() uint {
	return ht.skipBits
}

// Hash maps a key to its head bucket index.
func (ht *HashTable) Hash(key int64) uint64 {
	return (uint64(key) & ht.hashMask) >> ht.skipBits
}

// Head returns the head bucket of the chain holding key.
func (ht *HashTable) Head(key int64) *Bucket {
	return &ht.buckets[(uint64(key)&ht.hashMask)>>ht.skipBits]
}

// HeadRef returns the reference of the head bucket of key.
func (ht *HashTable) HeadRef(key int64) BucketRef {
	return headRef(ht.Hash(key))
}

// Bucket returns the head bucket at index i.
func (ht *HashTable) Bucket(i uint64) *Bucket {
	return &ht.buckets[i]
}

// Resolve turns a valid reference into its bucket.
func (ht *HashTable) Resolve(ref BucketRef) *Bucket {
	if ref&refOverflow == 0 {
		return &ht.buckets[ref.headIndex()]
	}
	owner, slab, slot := ref.split()
	return ht.owners[owner].bucket(slab, slot)
}

// NewAllocator registers an overflow allocator for one build thread. All
// allocators must be registered before a concurrent build starts.
func (ht *HashTable) NewAllocator() *Allocator {
	ht.mu.Lock()
	defer ht.mu.Unlock()
	if len(ht.owners) == MaxOwners {
		panic("too many overflow allocators")
	}
	a := newAllocator(len(ht.owners), ht.opts.slabSize)
	ht.owners = append(ht.owners, a)
	return a
}

// NumOverflowBuckets sums the buckets taken from every allocator.
func (ht *HashTable) NumOverflowBuckets() int {
	var n int
	for _, a := range ht.owners {
		n += a.NumBuckets()
	}
	return n
}

// Destroy frees the bucket array and every overflow slab.
func (ht *HashTable) Destroy() {
	for _, a := range ht.owners {
		a.Release()
	}
	ht.owners = nil
	ht.buckets = nil
}
