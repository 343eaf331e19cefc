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
	"context"
	"unsafe"

	"github.com/matrixorigin/npjoin/pkg/common/moerr"
	"github.com/matrixorigin/npjoin/pkg/common/prefetch"
	"github.com/matrixorigin/npjoin/pkg/container/tuplebuf"
	"github.com/matrixorigin/npjoin/pkg/container/types"
	"github.com/matrixorigin/npjoin/pkg/sql/colexec/hashprobe"
)

type stage uint8

const (
	stageFetch stage = iota
	stageProbe
	stageDone
)

type treeState struct {
	tuple int
	node  NodeRef
	stage stage
}

// Prober searches a built tree for the keys of a probe relation. It uses
// the lane counts and prefetch distance of hashprobe.Options.
type Prober struct {
	tree *Tree
	opts hashprobe.Options
}

func New(tree *Tree, opts hashprobe.Options) *Prober {
	return &Prober{tree: tree, opts: opts}
}

// Variants lists the probe variants a tree supports.
func Variants() []hashprobe.Variant {
	return []hashprobe.Variant{
		hashprobe.VariantRaw,
		hashprobe.VariantAMAC,
		hashprobe.VariantSIMD,
		hashprobe.VariantSIMDAMAC,
		hashprobe.VariantSIMDAMACRaw,
	}
}

func Supports(v hashprobe.Variant) bool {
	for _, tv := range Variants() {
		if tv == v {
			return true
		}
	}
	return false
}

func (p *Prober) Probe(v hashprobe.Variant, rel types.Relation, out tuplebuf.Sink) int64 {
	switch v {
	case hashprobe.VariantRaw:
		return p.Raw(rel, out)
	case hashprobe.VariantAMAC:
		return p.AMAC(rel, out)
	case hashprobe.VariantSIMD:
		return p.SIMD(rel, out)
	case hashprobe.VariantSIMDAMAC:
		return p.SIMDAMAC(rel, out)
	case hashprobe.VariantSIMDAMACRaw:
		return p.SIMDAMACRaw(rel, out)
	}
	panic(moerr.NewNotSupported(context.Background(), "tree probe variant %s", v))
}

// Raw descends the tree once per probe tuple and stops at the first node
// with an equal key.
func (p *Prober) Raw(rel types.Relation, out tuplebuf.Sink) int64 {
	t := p.tree
	var matches int64
	if t.root == NilNode {
		return 0
	}
	for i := range rel.Tuples {
		tp := &rel.Tuples[i]
		for ref := t.root; ref != NilNode; {
			n := t.Node(ref)
			if tp.Key < n.Key {
				ref = n.Left
			} else if tp.Key > n.Key {
				ref = n.Right
			} else {
				out.Append(n.Payload, tp.Payload)
				matches++
				break
			}
		}
	}
	return matches
}

// AMAC keeps AMACLanes descents in flight, one node per visit. A lane
// that matched or fell off the tree fetches its next tuple on the same
// visit.
func (p *Prober) AMAC(rel types.Relation, out tuplebuf.Sink) int64 {
	t := p.tree
	if t.root == NilNode {
		return 0
	}
	tuples := rel.Tuples
	n := len(tuples)
	k := p.opts.AMACLanes
	dist := p.opts.PrefetchDistance
	states := make([]treeState, k)
	root := t.Node(t.root)

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
			prefetch.T0(unsafe.Pointer(root))
			s.node = t.root
			s.tuple = cur
			s.stage = stageProbe
			cur++
			j++
		case stageProbe:
			tp := &tuples[s.tuple]
			nd := t.Node(s.node)
			var next NodeRef
			if tp.Key < nd.Key {
				next = nd.Left
			} else if tp.Key > nd.Key {
				next = nd.Right
			} else {
				out.Append(nd.Payload, tp.Payload)
				matches++
			}
			if next == NilNode {
				s.stage = stageFetch
				continue
			}
			s.node = next
			prefetch.T0(unsafe.Pointer(t.Node(next)))
			j++
		default:
			j++
		}
	}
	return matches
}
