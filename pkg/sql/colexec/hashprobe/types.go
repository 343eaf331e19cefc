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
	"context"

	"github.com/matrixorigin/npjoin/pkg/common/moerr"
	"github.com/matrixorigin/npjoin/pkg/container/hashtable"
	"github.com/matrixorigin/npjoin/pkg/container/tuplebuf"
	"github.com/matrixorigin/npjoin/pkg/container/types"
	"github.com/matrixorigin/npjoin/pkg/vectorize/lanes"
)

// stage of one in-flight probe of an interleaved variant.
type stage uint8

const (
	stageFetch stage = iota
	stageProbe
	stageDone
)

// amacState is one lane of the scalar state machine.
type amacState struct {
	tuple int
	b     *hashtable.Bucket
	stage stage
}

// vecState is one vector group: up to lanes.Width probe tuples, each with
// the bucket it looks at next.
type vecState struct {
	offs   lanes.Vec
	keys   lanes.Vec
	refs   lanes.Vec
	active lanes.Mask
	stage  stage
}

func newVecState() vecState {
	return vecState{offs: lanes.Broadcast(lanes.Sentinel)}
}

type Options struct {
	// PrefetchDistance is how many tuples ahead sequential prefetches look.
	PrefetchDistance int
	// GroupSize is the number of tuples of one group prefetching group.
	GroupSize int
	// AMACLanes is the number of scalar probes kept in flight.
	AMACLanes int
	// SIMDGroups is the number of vector groups kept in flight.
	SIMDGroups int
	// FilterA and FilterB drop probe tuples with Key*FilterA < FilterB in
	// the pipeline variants.
	FilterA int64
	FilterB int64
}

func DefaultOptions() Options {
	return Options{
		PrefetchDistance: 20,
		GroupSize:        16,
		AMACLanes:        10,
		SIMDGroups:       4,
		FilterA:          1,
		FilterB:          0,
	}
}

func (o Options) Validate() error {
	ctx := context.Background()
	switch {
	case o.PrefetchDistance < 0:
		return moerr.NewInvalidArg(ctx, "prefetch-distance", o.PrefetchDistance)
	case o.GroupSize <= 0:
		return moerr.NewInvalidArg(ctx, "gp-group-size", o.GroupSize)
	case o.AMACLanes <= 0:
		return moerr.NewInvalidArg(ctx, "amac-lanes", o.AMACLanes)
	case o.SIMDGroups <= 0:
		return moerr.NewInvalidArg(ctx, "simd-groups", o.SIMDGroups)
	}
	return nil
}

// Prober runs probe relations against one built table. The table is read
// only, so any number of probers may share it.
type Prober struct {
	ht   *hashtable.HashTable
	opts Options
}

func New(ht *hashtable.HashTable, opts Options) *Prober {
	return &Prober{ht: ht, opts: opts}
}

// matchBucket emits every filled slot of b whose key equals t.Key.
func matchBucket(b *hashtable.Bucket, t *types.Tuple, out tuplebuf.Sink) int64 {
	var n int64
	for j := uint32(0); j < b.Count; j++ {
		if b.Tuples[j].Key == t.Key {
			out.Append(b.Tuples[j].Payload, t.Payload)
			n++
		}
	}
	return n
}
