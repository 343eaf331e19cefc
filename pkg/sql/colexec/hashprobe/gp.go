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
	"github.com/matrixorigin/npjoin/pkg/container/hashtable"
	"github.com/matrixorigin/npjoin/pkg/container/tuplebuf"
	"github.com/matrixorigin/npjoin/pkg/container/types"
)

// GroupPrefetch probes GroupSize tuples at a time. Stage one computes and
// prefetches every head bucket of the group, stage two sweeps the group,
// testing each live bucket and prefetching its successor, until no member
// has a bucket left.
func (p *Prober) GroupPrefetch(rel types.Relation, out tuplebuf.Sink) int64 {
	ht := p.ht
	tuples := rel.Tuples
	g := p.opts.GroupSize
	buckets := make([]*hashtable.Bucket, g)
	var matches int64

	for base := 0; base < len(tuples); base += g {
		end := base + g
		if end > len(tuples) {
			end = len(tuples)
		}
		group := tuples[base:end]

		for j := range group {
			b := ht.Head(group[j].Key)
			prefetch.T0(unsafe.Pointer(b))
			buckets[j] = b
		}

		for live := len(group); live > 0; {
			live = 0
			for j := range group {
				b := buckets[j]
				if b == nil {
					continue
				}
				matches += matchBucket(b, &group[j], out)
				if b.Next.IsNil() {
					buckets[j] = nil
					continue
				}
				b = ht.Resolve(b.Next)
				prefetch.T0(unsafe.Pointer(b))
				buckets[j] = b
				live++
			}
		}
	}
	return matches
}
