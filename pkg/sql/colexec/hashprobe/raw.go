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

package hashprobe

import (
	"unsafe"

	"github.com/matrixorigin/npjoin/pkg/common/prefetch"
	"github.com/matrixorigin/npjoin/pkg/container/tuplebuf"
	"github.com/matrixorigin/npjoin/pkg/container/types"
)

// Raw walks the chain of every probe tuple in turn. It is the baseline
// every other variant must agree with.
func (p *Prober) Raw(rel types.Relation, out tuplebuf.Sink) int64 {
	ht := p.ht
	tuples := rel.Tuples
	var matches int64
	for i := range tuples {
		t := &tuples[i]
		b := ht.Head(t.Key)
		for {
			matches += matchBucket(b, t, out)
			if b.Next.IsNil() {
				break
			}
			b = ht.Resolve(b.Next)
		}
	}
	return matches
}

// RawPrefetch is Raw plus a prefetch of the probe tuple and the head
// bucket PrefetchDistance tuples ahead.
func (p *Prober) RawPrefetch(rel types.Relation, out tuplebuf.Sink) int64 {
	ht := p.ht
	tuples := rel.Tuples
	dist := p.opts.PrefetchDistance
	var matches int64
	for i := range tuples {
		if ahead := i + dist; dist > 0 && ahead < len(tuples) {
			prefetch.T0(unsafe.Pointer(&tuples[ahead]))
			prefetch.T0(unsafe.Pointer(ht.Head(tuples[ahead].Key)))
		}
		t := &tuples[i]
		b := ht.Head(t.Key)
		for {
			matches += matchBucket(b, t, out)
			if b.Next.IsNil() {
				break
			}
			b = ht.Resolve(b.Next)
		}
	}
	return matches
}
