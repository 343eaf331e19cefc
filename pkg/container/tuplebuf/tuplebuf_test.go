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

package tuplebuf

import (
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/matrixorigin/npjoin/pkg/container/types"
)

func TestChainedGrowth(t *testing.T) {
	c := NewChained(4)
	require.Equal(t, 0, c.NumChunks())
	for i := 0; i < 10; i++ {
		c.Append(int64(i), int64(-i))
	}
	require.Equal(t, int64(10), c.Count())
	require.Equal(t, 3, c.NumChunks())

	slots := c.Reserve(3)
	require.Len(t, slots, 3)
	for i := range slots {
		slots[i] = types.JoinResult{Left: int64(100 + i), Right: 0}
	}
	require.Equal(t, int64(13), c.Count())

	rs := c.Results()
	require.Len(t, rs, 13)
	for i := 0; i < 10; i++ {
		require.Equal(t, types.JoinResult{Left: int64(i), Right: int64(-i)}, rs[i])
	}
	require.Equal(t, int64(102), rs[12].Left)
}

func TestChainedOversizedReserve(t *testing.T) {
	c := NewChained(2)
	c.Append(1, 1)
	slots := c.Reserve(5)
	require.Len(t, slots, 5)
	require.Equal(t, int64(6), c.Count())
	// writing through the slots never clobbers earlier results
	for i := range slots {
		slots[i] = types.JoinResult{Left: 9, Right: 9}
	}
	rs := c.Results()
	require.Equal(t, types.JoinResult{Left: 1, Right: 1}, rs[0])
	require.Equal(t, types.JoinResult{Left: 9, Right: 9}, rs[5])
}

func TestChainedResetReuse(t *testing.T) {
	c := NewChained(2)
	for i := 0; i < 7; i++ {
		c.Append(int64(i), 0)
	}
	chunks := len(c.chunks)
	c.Reset()
	require.Equal(t, int64(0), c.Count())
	require.Empty(t, c.Results())
	for i := 0; i < 7; i++ {
		c.Append(int64(i), 0)
	}
	require.Equal(t, chunks, len(c.chunks))
	require.Len(t, c.Results(), 7)

	var seen int
	c.Each(func(r types.JoinResult) bool {
		seen++
		return seen < 3
	})
	require.Equal(t, 3, seen)

	c.Free()
	require.Equal(t, int64(0), c.Count())
}

func TestCounter(t *testing.T) {
	s := New(false)
	s.Append(1, 2)
	require.Len(t, s.Reserve(8), 8)
	require.Len(t, s.Reserve(40), 40)
	require.Equal(t, int64(49), s.Count())
	s.Reset()
	require.Equal(t, int64(0), s.Count())

	_, ok := New(true).(*Chained)
	require.True(t, ok)
}
