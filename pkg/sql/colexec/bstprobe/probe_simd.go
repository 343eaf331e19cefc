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

package bstprobe

import (
	"unsafe"

	"github.com/matrixorigin/npjoin/pkg/common/prefetch"
	"github.com/matrixorigin/npjoin/pkg/container/tuplebuf"
	"github.com/matrixorigin/npjoin/pkg/container/types"
	"github.com/matrixorigin/npjoin/pkg/vectorize/lanes"
)

type vecState struct {
	offs   lanes.Vec
	keys   lanes.Vec
	nodes  lanes.Vec
	active lanes.Mask
	stage  stage
}

func newVecState() vecState {
	return vecState{offs: lanes.Broadcast(lanes.Sentinel)}
}

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
	lanes.MaskSet(&s.nodes, fresh, int64(p.tree.root))
	s.active |= fresh
	return fresh
}

func (p *Prober) prefetchLanes(s *vecState) {
	for i := 0; i < lanes.Width; i++ {
		if s.active.Has(i) {
			prefetch.T0(unsafe.Pointer(p.tree.Node(NodeRef(s.nodes[i]))))
		}
	}
}

// step compares every active lane with its current node. Equal lanes emit
// and turn idle, the others move to the child on their side and turn idle
// when there is none.
func (p *Prober) step(s *vecState, tuples []types.Tuple, out tuplebuf.Sink) int64 {
	var nodeKeys, left, right, next lanes.Vec
	for i := 0; i < lanes.Width; i++ {
		if s.active.Has(i) {
			nodeKeys[i] = p.tree.Node(NodeRef(s.nodes[i])).Key
		}
	}
	hit := lanes.CmpEq(&s.keys, &nodeKeys, s.active)
	var matches int64
	if hit != lanes.None {
		lanes.Gather(&left, hit, &s.nodes, func(ref int64) int64 {
			return p.tree.Node(NodeRef(ref)).Payload
		})
		lanes.Gather(&right, hit, &s.offs, func(i int64) int64 {
			return tuples[i].Payload
		})
		n := hit.Count()
		lanes.ScatterJoin(out.Reserve(n), hit, &left, &right)
		matches = int64(n)
	}

	miss := s.active &^ hit
	for i := 0; i < lanes.Width; i++ {
		if miss.Has(i) {
			nd := p.tree.Node(NodeRef(s.nodes[i]))
			if s.keys[i] < nd.Key {
				next[i] = int64(nd.Left)
			} else {
				next[i] = int64(nd.Right)
			}
		}
	}
	s.active = lanes.CmpNe(&next, int64(NilNode), miss)
	lanes.Blend(&s.nodes, &next, s.active)
	lanes.MaskSet(&s.offs, s.active.Not(), lanes.Sentinel)
	return matches
}

// SIMD descends one vector of probe tuples a level per round, refilling
// lanes as soon as they finish.
func (p *Prober) SIMD(rel types.Relation, out tuplebuf.Sink) int64 {
	if p.tree.root == NilNode {
		return 0
	}
	tuples := rel.Tuples
	s := newVecState()
	var matches int64
	for cur := 0; cur < len(tuples) || s.active != lanes.None; {
		p.refill(&s, tuples, &cur)
		matches += p.step(&s, tuples, out)
	}
	return matches
}

// SIMDAMAC interleaves SIMDGroups vector descents round robin.
func (p *Prober) SIMDAMAC(rel types.Relation, out tuplebuf.Sink) int64 {
	return p.simdAMAC(rel, out, p.opts.SIMDGroups)
}

// SIMDAMACRaw runs the vector state machine on a single group.
func (p *Prober) SIMDAMACRaw(rel types.Relation, out tuplebuf.Sink) int64 {
	return p.simdAMAC(rel, out, 1)
}

func (p *Prober) simdAMAC(rel types.Relation, out tuplebuf.Sink, groups int) int64 {
	if p.tree.root == NilNode {
		return 0
	}
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
			matches += p.step(s, tuples, out)
			if s.active != lanes.Full {
				s.stage = stageFetch
				continue
			}
			p.prefetchLanes(s)
		}
	}
	return matches
}
