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
	"github.com/matrixorigin/npjoin/pkg/container/tuplebuf"
	"github.com/matrixorigin/npjoin/pkg/container/types"
	"github.com/matrixorigin/npjoin/pkg/vectorize/lanes"
)

// SIMDAMAC interleaves SIMDGroups vector groups round robin. A group in
// fetch refills its idle lanes and prefetches the buckets of all its
// lanes, a group in probe advances every lane by one bucket and goes back
// to fetch as soon as a lane turns idle.
func (p *Prober) SIMDAMAC(rel types.Relation, out tuplebuf.Sink) int64 {
	return p.simdAMAC(rel, out, p.opts.SIMDGroups)
}

// SIMDAMACRaw runs the SIMDAMAC state machine on a single group, so there
// is no interleaving between groups to hide latency.
func (p *Prober) SIMDAMACRaw(rel types.Relation, out tuplebuf.Sink) int64 {
	return p.simdAMAC(rel, out, 1)
}

func (p *Prober) simdAMAC(rel types.Relation, out tuplebuf.Sink, groups int) int64 {
	tuples := rel.Tuples
	states := make([]vecState, groups)
	for i := range states {
		states[i] = newVecState()
	}

	var matches int64
	cur, done := 0, 0
	for k := 0; done < groups; k++ {
		if k == groups {
			k = 0
		}
		s := &states[k]
		switch s.stage {
		case stageFetch:
			p.refill(s, tuples, &cur)
			if s.active == lanes.None {
				s.stage = stageDone
				done++
				continue
			}
			p.prefetchLanes(s)
			s.stage = stageProbe
		case stageProbe:
			matches += p.probeStep(s, tuples, out)
			if s.active != lanes.Full {
				s.stage = stageFetch
				continue
			}
			p.prefetchLanes(s)
		}
	}
	return matches
}

// SIMDGroupPrefetch is group prefetching at vector granularity. All
// SIMDGroups groups are filled and prefetched first, then swept one
// bucket per lane at a time until every lane of every group is idle.
func (p *Prober) SIMDGroupPrefetch(rel types.Relation, out tuplebuf.Sink) int64 {
	tuples := rel.Tuples
	states := make([]vecState, p.opts.SIMDGroups)
	for i := range states {
		states[i] = newVecState()
	}

	var matches int64
	for cur := 0; cur < len(tuples); {
		for k := range states {
			if p.refill(&states[k], tuples, &cur) != lanes.None {
				p.prefetchLanes(&states[k])
			}
		}
		for live := true; live; {
			live = false
			for k := range states {
				s := &states[k]
				if s.active == lanes.None {
					continue
				}
				matches += p.probeStep(s, tuples, out)
				if s.active != lanes.None {
					p.prefetchLanes(s)
					live = true
				}
			}
		}
	}
	return matches
}

// SIMDAMACCompact is SIMDAMAC with a spare group that keeps the lanes of
// the interleaved groups full. After a probe step a group that lost lanes
// either hands all its remaining lanes to the spare, when they fit, and
// refills from the relation, or takes lanes from the spare to fill up
// again. The spare is drained once the relation is exhausted.
func (p *Prober) SIMDAMACCompact(rel types.Relation, out tuplebuf.Sink) int64 {
	tuples := rel.Tuples
	groups := p.opts.SIMDGroups
	states := make([]vecState, groups)
	for i := range states {
		states[i] = newVecState()
	}
	spare := newVecState()

	var matches int64
	cur, done := 0, 0
	for k := 0; done < groups; k++ {
		if k == groups {
			k = 0
		}
		s := &states[k]
		switch s.stage {
		case stageFetch:
			p.refill(s, tuples, &cur)
			if s.active == lanes.None {
				s.stage = stageDone
				done++
				continue
			}
			p.prefetchLanes(s)
			s.stage = stageProbe
		case stageProbe:
			matches += p.probeStep(s, tuples, out)
			if s.active == lanes.Full {
				p.prefetchLanes(s)
				continue
			}
			have, spared := s.active.Count(), spare.active.Count()
			if have+spared <= lanes.Width {
				moveLanes(&spare, s, have)
				s.stage = stageFetch
				continue
			}
			moveLanes(s, &spare, lanes.Width-have)
			p.prefetchLanes(s)
		}
	}

	for spare.active != lanes.None {
		p.prefetchLanes(&spare)
		matches += p.probeStep(&spare, tuples, out)
	}
	return matches
}

// moveLanes moves the n lowest active lanes of src into the lowest idle
// lanes of dst.
func moveLanes(dst, src *vecState, n int) {
	take := src.active.Lowest(n)
	free := dst.active.Not().Lowest(n)
	var tmp lanes.Vec
	lanes.Compress(&tmp, &src.offs, take)
	lanes.Expand(&dst.offs, &tmp, free)
	lanes.Compress(&tmp, &src.keys, take)
	lanes.Expand(&dst.keys, &tmp, free)
	lanes.Compress(&tmp, &src.refs, take)
	lanes.Expand(&dst.refs, &tmp, free)
	dst.active |= free
	src.active &^= take
	lanes.MaskSet(&src.offs, take, lanes.Sentinel)
}
