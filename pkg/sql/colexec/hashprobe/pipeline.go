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

// Skips reports whether the pipeline selection drops a probe key.
func (o Options) Skips(key int64) bool {
	return key*o.FilterA < o.FilterB
}

func (p *Prober) skip(t *types.Tuple) bool {
	return p.opts.Skips(t.Key)
}

// PipelineRaw fuses a selection into Raw: probe tuples with
// Key*FilterA < FilterB never reach the table.
func (p *Prober) PipelineRaw(rel types.Relation, out tuplebuf.Sink) int64 {
	ht := p.ht
	tuples := rel.Tuples
	var matches int64
	for i := range tuples {
		t := &tuples[i]
		if p.skip(t) {
			continue
		}
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

// PipelineAMAC fuses the same selection into AMAC. A lane in fetch skips
// filtered tuples until it finds one to probe or the relation ends.
func (p *Prober) PipelineAMAC(rel types.Relation, out tuplebuf.Sink) int64 {
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
			for cur < n && p.skip(&tuples[cur]) {
				cur++
			}
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
