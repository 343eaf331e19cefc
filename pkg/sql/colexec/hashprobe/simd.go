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
	"github.com/matrixorigin/npjoin/pkg/vectorize/lanes"
)

// refill loads the next probe tuples into the idle lanes of s. Lanes that
// would point past the relation stay idle. It returns the lanes loaded.
func (p *Prober) refill(s *vecState, tuples []types.Tuple, cur *int) lanes.Mask {
	idle := s.active.Not()
	if idle == lanes.None || *cur >= len(tuples) {
		return lanes.None
	}
	next := lanes.ExpandSeq(&s.offs, idle, int64(*cur))
	fresh := lanes.CmpLt(&s.offs, int64(len(tuples)), idle)
	lanes.MaskSet(&s.offs, idle&^fresh, lanes.Sentinel)
	if next > int64(len(tuples)) {
		next = int64(len(tuples))
	}
	*cur = int(next)

	lanes.Gather(&s.keys, fresh, &s.offs, func(i int64) int64 {
		return tuples[i].Key
	})
	for i := 0; i < lanes.Width; i++ {
		if fresh.Has(i) {
			s.refs[i] = int64(p.ht.HeadRef(s.keys[i]))
		}
	}
	s.active |= fresh
	return fresh
}

// prefetchLanes prefetches the bucket every active lane looks at next.
func (p *Prober) prefetchLanes(s *vecState) {
	for i := 0; i < lanes.Width; i++ {
		if s.active.Has(i) {
			prefetch.T0(unsafe.Pointer(p.ht.Resolve(hashtable.BucketRef(s.refs[i]))))
		}
	}
}

// probeStep tests the current bucket of every active lane against the
// lane's key, emits the matches and advances each lane to the next bucket
// of its chain. Lanes at the end of a chain, or on an empty head bucket,
// become idle.
func (p *Prober) probeStep(s *vecState, tuples []types.Tuple, out tuplebuf.Sink) int64 {
	var (
		bkts     [lanes.Width]*hashtable.Bucket
		counts   lanes.Vec
		resident lanes.Vec
		left     lanes.Vec
		right    lanes.Vec
		next     lanes.Vec
		matches  int64
	)
	for i := 0; i < lanes.Width; i++ {
		if s.active.Has(i) {
			b := p.ht.Resolve(hashtable.BucketRef(s.refs[i]))
			bkts[i] = b
			counts[i] = int64(b.Count)
		}
	}
	live := lanes.CmpNe(&counts, 0, s.active)

	for slot := 0; slot < hashtable.BucketSize; slot++ {
		filled := lanes.CmpGt(&counts, int64(slot), live)
		if filled == lanes.None {
			break
		}
		for i := 0; i < lanes.Width; i++ {
			if filled.Has(i) {
				resident[i] = bkts[i].Tuples[slot].Key
			}
		}
		hit := lanes.CmpEq(&s.keys, &resident, filled)
		if hit == lanes.None {
			continue
		}
		for i := 0; i < lanes.Width; i++ {
			if hit.Has(i) {
				left[i] = bkts[i].Tuples[slot].Payload
			}
		}
		lanes.Gather(&right, hit, &s.offs, func(i int64) int64 {
			return tuples[i].Payload
		})
		n := hit.Count()
		lanes.ScatterJoin(out.Reserve(n), hit, &left, &right)
		matches += int64(n)
	}

	for i := 0; i < lanes.Width; i++ {
		if live.Has(i) {
			next[i] = int64(bkts[i].Next)
		}
	}
	s.active = lanes.CmpNe(&next, int64(hashtable.NilRef), live)
	lanes.Blend(&s.refs, &next, s.active)
	lanes.MaskSet(&s.offs, s.active.Not(), lanes.Sentinel)
	return matches
}

// SIMD keeps one vector of probes in flight. Each round loads new tuples
// into idle lanes and moves every lane one bucket down its chain.
func (p *Prober) SIMD(rel types.Relation, out tuplebuf.Sink) int64 {
	tuples := rel.Tuples
	s := newVecState()
	var matches int64
	for cur := 0; cur < len(tuples) || s.active != lanes.None; {
		p.refill(&s, tuples, &cur)
		matches += p.probeStep(&s, tuples, out)
	}
	return matches
}
