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

// AMAC keeps AMACLanes probes in flight and visits them round robin. A
// lane in fetch takes the next probe tuple and prefetches its head bucket,
// a lane in probe tests its bucket and moves on to the prefetched next
// one. A lane whose chain ends goes back to fetch on the same visit, so
// no lane idles while tuples are left. The loop ends once every lane has
// found the relation exhausted.
func (p *Prober) AMAC(rel types.Relation, out tuplebuf.Sink) int64 {
	ht := p.ht
	tuples := rel.Tuples
	n := len(tuples)
	k := p.opts.AMACLanes
	dist := p.opts.PrefetchDistance
	states := make([]amacState, k)

	var matches int64
	cur, done := 0, 0
	for j := 0; done < k; {
		if j == k {
			j = 0
		}
		s := &states[j]
		switch s.stage {
		case stageFetch:
			if cur >= n {
				s.stage = stageDone
				done++
				j++
				continue
			}
			prefetch.Slice(tuples, cur+dist)
			s.b = ht.Head(tuples[cur].Key)
			prefetch.T0(unsafe.Pointer(s.b))
			s.tuple = cur
			s.stage = stageProbe
			cur++
			j++
		case stageProbe:
			b := s.b
			matches += matchBucket(b, &tuples[s.tuple], out)
			if b.Next.IsNil() {
				s.b = nil
				s.stage = stageFetch
				continue
			}
			s.b = ht.Resolve(b.Next)
			prefetch.T0(unsafe.Pointer(s.b))
			j++
		default:
			j++
		}
	}
	return matches
}
