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

	"github.com/matrixorigin/npjoin/pkg/common/prefetch"
	"github.com/matrixorigin/npjoin/pkg/container/types"
)

// BuildST inserts every tuple of rel without latching. It must be the
// only writer of the table.
func (ht *HashTable) BuildST(rel types.Relation, a *Allocator) {
	tuples := rel.Tuples
	dist := ht.opts.prefetchDistance
	for i := range tuples {
		if dist > 0 && i+dist < len(tuples) {
			prefetch.T0(unsafe.Pointer(ht.Head(tuples[i+dist].Key)))
		}
		ht.place(ht.Head(tuples[i].Key), tuples[i], a)
	}
}

// BuildMT inserts every tuple of rel while other threads insert into the
// same table. Each chain is guarded by the latch of its head bucket, and
// a is owned by the calling thread.
func (ht *HashTable) BuildMT(rel types.Relation, a *Allocator) {
	tuples := rel.Tuples
	dist := ht.opts.prefetchDistance
	for i := range tuples {
		if dist > 0 && i+dist < len(tuples) {
			prefetch.T0(unsafe.Pointer(ht.Head(tuples[i+dist].Key)))
		}
		head := ht.Head(tuples[i].Key)
		head.latch.Lock()
		ht.place(head, tuples[i], a)
		head.latch.Unlock()
	}
}

// place puts t into the head bucket when it has room, else into the first
// overflow bucket when that has room, else into a new overflow bucket
// spliced right after the head.
func (ht *HashTable) place(head *Bucket, t types.Tuple, a *Allocator) {
	if !head.Full() {
		head.Tuples[head.Count] = t
		head.Count++
		head.Length = 1
		return
	}
	if !head.Next.IsNil() {
		if nxt := ht.Resolve(head.Next); !nxt.Full() {
			nxt.Tuples[nxt.Count] = t
			nxt.Count++
			return
		}
	}
	ref, b := a.NextBucket()
	b.Tuples[0] = t
	b.Count = 1
	b.Next = head.Next
	head.Next = ref
	head.Length++
}
