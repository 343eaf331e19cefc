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
	"github.com/matrixorigin/npjoin/pkg/container/types"
)

const (
	nodeChunkBits = 12
	nodeChunkSize = 1 << nodeChunkBits
)

// NodeRef addresses a node of the tree arena. NilNode is the empty child.
type NodeRef uint32

const NilNode NodeRef = 0

// MaxNodes is the largest number of nodes a NodeRef can address.
const MaxNodes = 1<<32 - 1

type Node struct {
	Key     int64
	Payload int64
	Left    NodeRef
	Right   NodeRef
}

// Tree is an unbalanced binary search tree over the build keys. Nodes are
// carved from fixed size chunks and never move.
type Tree struct {
	chunks [][]Node
	num    int
	root   NodeRef
}

// Build inserts the tuples of rel in order. A tuple whose key is already
// in the tree is dropped, so every key keeps the payload it was first
// seen with.
func Build(rel types.Relation) *Tree {
	t := &Tree{}
	tuples := rel.Tuples
	if len(tuples) == 0 {
		return t
	}
	t.root = t.newNode(tuples[0])
	for i := 1; i < len(tuples); i++ {
		tp := &tuples[i]
		ref := t.root
		for {
			n := t.Node(ref)
			if tp.Key < n.Key {
				if n.Left == NilNode {
					// newNode may grow the arena, n stays valid as
					// chunks never move
					n.Left = t.newNode(*tp)
					break
				}
				ref = n.Left
			} else if tp.Key > n.Key {
				if n.Right == NilNode {
					n.Right = t.newNode(*tp)
					break
				}
				ref = n.Right
			} else {
				break
			}
		}
	}
	return t
}

func (t *Tree) newNode(tp types.Tuple) NodeRef {
	i := t.num
	if i>>nodeChunkBits == len(t.chunks) {
		t.chunks = append(t.chunks, make([]Node, nodeChunkSize))
	}
	t.chunks[i>>nodeChunkBits][i&(nodeChunkSize-1)] = Node{Key: tp.Key, Payload: tp.Payload}
	t.num++
	return NodeRef(t.num)
}

// Node resolves a non nil reference.
func (t *Tree) Node(ref NodeRef) *Node {
	i := int(ref) - 1
	return &t.chunks[i>>nodeChunkBits][i&(nodeChunkSize-1)]
}

func (t *Tree) Root() NodeRef {
	return t.root
}

// Len is the number of distinct keys in the tree.
func (t *Tree) Len() int {
	return t.num
}

// Depth is the number of nodes on the longest root to leaf path.
func (t *Tree) Depth() int {
	if t.root == NilNode {
		return 0
	}
	type item struct {
		ref   NodeRef
		depth int
	}
	var max int
	stack := []item{{t.root, 1}}
	for len(stack) > 0 {
		it := stack[len(stack)-1]
		stack = stack[:len(stack)-1]
		if it.depth > max {
			max = it.depth
		}
		n := t.Node(it.ref)
		if n.Left != NilNode {
			stack = append(stack, item{n.Left, it.depth + 1})
		}
		if n.Right != NilNode {
			stack = append(stack, item{n.Right, it.depth + 1})
		}
	}
	return max
}

func (t *Tree) Destroy() {
	t.chunks = nil
	t.num = 0
	t.root = NilNode
}
