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

package types

import "unsafe"

// Tuple is one row of an input relation: a fixed width join key and the
// payload carried into the join result.
type Tuple struct {
	Key     int64
	Payload int64
}

const TupleSize = int(unsafe.Sizeof(Tuple{}))

// Relation is a borrowed, read-only array of tuples.
type Relation struct {
	Tuples []Tuple
}

func NewRelation(tuples []Tuple) Relation {
	return Relation{Tuples: tuples}
}

func (r Relation) NumTuples() int {
	return len(r.Tuples)
}

// Slice borrows the tuples in [lo, hi).
func (r Relation) Slice(lo, hi int) Relation {
	return Relation{Tuples: r.Tuples[lo:hi]}
}

// Part returns the i-th of n contiguous index slices of r. Every part
// holds len/n tuples, the last part also takes the remainder.
func (r Relation) Part(i, n int) Relation {
	per := len(r.Tuples) / n
	lo := i * per
	hi := lo + per
	if i == n-1 {
		hi = len(r.Tuples)
	}
	return r.Slice(lo, hi)
}

// JoinResult pairs the build side payload with the probe side payload of
// one matching key.
type JoinResult struct {
	Left  int64
	Right int64
}
