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

// DefaultSlabSize is the number of buckets of one overflow slab.
const DefaultSlabSize = 1024

const (
	dirLeafBits = 10
	dirLeafSize = 1 << dirLeafBits
	dirTopSize  = (1 << slabBits) / dirLeafSize
)

type slab struct {
	buckets []Bucket
	used    int
}

// Allocator hands out overflow buckets to exactly one build thread.
// Buckets are carved from fixed size slabs which are only freed all
// together by Release.
//
// Slabs are reached through a two level directory whose top level never
// moves, so a thread that learned a reference under a bucket latch can
// resolve it while the owner keeps growing its slab list.
type Allocator struct {
	owner    int
	slabSize int
	nslabs   int
	cur      *slab
	dir      [dirTopSize]*[dirLeafSize]*slab
}

func newAllocator(owner, slabSize int) *Allocator {
	a := &Allocator{owner: owner, slabSize: slabSize}
	a.acquireSlab()
	return a
}

func (a *Allocator) acquireSlab() {
	if a.nslabs == 1<<slabBits {
		panic("overflow slab directory exhausted")
	}
	s := &slab{buckets: makeBuckets(a.slabSize)}
	hi, lo := a.nslabs>>dirLeafBits, a.nslabs&(dirLeafSize-1)
	if a.dir[hi] == nil {
		a.dir[hi] = new([dirLeafSize]*slab)
	}
	a.dir[hi][lo] = s
	a.nslabs++
	a.cur = s
}

// NextBucket returns a zeroed overflow bucket and its reference.
func (a *Allocator) NextBucket() (BucketRef, *Bucket) {
	if a.cur == nil {
		a.acquireSlab()
	} else if a.cur.used == len(a.cur.buckets) {
		a.acquireSlab()
	}
	slot := a.cur.used
	a.cur.used++
	return overflowRef(a.owner, a.nslabs-1, slot), &a.cur.buckets[slot]
}

func (a *Allocator) bucket(slab, slot int) *Bucket {
	return &a.dir[slab>>dirLeafBits][slab&(dirLeafSize-1)].buckets[slot]
}

// NumSlabs is the number of slabs currently held.
func (a *Allocator) NumSlabs() int {
	return a.nslabs
}

// NumBuckets is the number of buckets handed out since the last Release.
func (a *Allocator) NumBuckets() int {
	if a.nslabs == 0 {
		return 0
	}
	return (a.nslabs-1)*a.slabSize + a.cur.used
}

// Release frees every slab. References handed out before are invalid.
func (a *Allocator) Release() {
	for i := range a.dir {
		a.dir[i] = nil
	}
	a.nslabs = 0
	a.cur = nil
}
