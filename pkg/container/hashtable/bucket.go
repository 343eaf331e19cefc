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
	"unsafe"

	"github.com/matrixorigin/npjoin/pkg/common/latch"
	"github.com/matrixorigin/npjoin/pkg/container/types"
)

// BucketSize is the number of tuples stored inline in one bucket.
const BucketSize = 2

const (
	cacheLineSize = 64
	// latch, count, length and one word of padding
	bucketHeaderSize = 16
	bucketBodySize   = bucketHeaderSize + types.TupleSize*BucketSize + 8
	bucketPadSize    = (cacheLineSize - bucketBodySize%cacheLineSize) % cacheLineSize
)

// Bucket is one node of a hash chain. Head buckets live in the bucket
// array of the table, every other bucket of a chain is taken from an
// overflow slab.
type Bucket struct {
	latch latch.Latch
	// Count is the number of filled tuple slots.
	Count uint32
	// Length is the number of buckets in the chain, kept on the head only.
	Length uint32
	_      uint32
	Tuples [BucketSize]types.Tuple
	Next   BucketRef
	_      [bucketPadSize]byte
}

// makeBuckets returns n zeroed buckets whose first bucket starts on a
// cache line. Bucket holds no pointers, so the buckets may live in a
// byte buffer.
func makeBuckets(n int) []Bucket {
	if n == 0 {
		return nil
	}
	buf := make([]byte, (n+1)*cacheLineSize)
	off := int(-uintptr(unsafe.Pointer(&buf[0])) & (cacheLineSize - 1))
	return unsafe.Slice((*Bucket)(unsafe.Pointer(&buf[off])), n)
}

// BucketRef addresses a bucket by index. Bit 63 marks a valid reference,
// bit 62 an overflow bucket. A head reference carries the bucket array
// index, an overflow reference the owning allocator, the slab and the
// slot inside the slab. The zero value, NilRef, ends a chain.
type BucketRef uint64

const NilRef BucketRef = 0

const (
	refValid    BucketRef = 1 << 63
	refOverflow BucketRef = 1 << 62

	slotBits  = 20
	slabBits  = 20
	ownerBits = 16

	slotMask  = 1<<slotBits - 1
	slabMask  = 1<<slabBits - 1
	ownerMask = 1<<ownerBits - 1
	headMask  = 1<<62 - 1

	slabShift  = slotBits
	ownerShift = slotBits + slabBits

	// MaxOwners bounds the number of overflow allocators of one table.
	MaxOwners = 1 << ownerBits
	// MaxSlabSize bounds the number of buckets per overflow slab.
	MaxSlabSize = 1 << slotBits
)

func headRef(idx uint64) BucketRef {
	return refValid | BucketRef(idx)
}

func overflowRef(owner, slab, slot int) BucketRef {
	return refValid | refOverflow |
		BucketRef(owner)<<ownerShift | BucketRef(slab)<<slabShift | BucketRef(slot)
}

func (r BucketRef) IsNil() bool {
	return r == NilRef
}

func (r BucketRef) IsOverflow() bool {
	return r&refOverflow != 0
}

func (r BucketRef) headIndex() uint64 {
	return uint64(r & headMask)
}

func (r BucketRef) split() (owner, slab, slot int) {
	return int(r>>ownerShift) & ownerMask, int(r>>slabShift) & slabMask, int(r) & slotMask
}

// Full reports whether every inline slot is taken.
func (b *Bucket) Full() bool {
	return b.Count == BucketSize
}
