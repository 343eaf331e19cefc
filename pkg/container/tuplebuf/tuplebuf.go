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
	"github.com/matrixorigin/npjoin/pkg/container/types"
)

// DefaultChunkSize is the number of results held by one chunk of a
// chained buffer.
const DefaultChunkSize = 1 << 15

// Sink receives the join results produced by one probe thread.
type Sink interface {
	// Append writes one result.
	Append(left, right int64)
	// Reserve hands out n contiguous result slots. The caller must fill
	// all of them before the next call on the sink.
	Reserve(n int) []types.JoinResult
	// Count is the number of results written since the last Reset.
	Count() int64
	// Reset drops every result, keeping allocated memory for reuse.
	Reset()
}

// Chained is an append-only result buffer made of fixed size chunks.
// Growing never moves results already written.
type Chained struct {
	chunkSize int
	chunks    [][]types.JoinResult
	// cur is the index of the chunk being written.
	cur   int
	count int64
}

var _ Sink = new(Chained)

func NewChained(chunkSize int) *Chained {
	if chunkSize <= 0 {
		chunkSize = DefaultChunkSize
	}
	return &Chained{
		chunkSize: chunkSize,
		chunks:    [][]types.JoinResult{make([]types.JoinResult, 0, chunkSize)},
	}
}

func (c *Chained) Append(left, right int64) {
	slot := c.Reserve(1)
	slot[0] = types.JoinResult{Left: left, Right: right}
}

func (c *Chained) Reserve(n int) []types.JoinResult {
	chunk := c.chunks[c.cur]
	if len(chunk)+n > cap(chunk) {
		c.cur++
		if c.cur == len(c.chunks) {
			size := c.chunkSize
			if n > size {
				size = n
			}
			c.chunks = append(c.chunks, make([]types.JoinResult, 0, size))
		} else if cap(c.chunks[c.cur]) < n {
			c.chunks[c.cur] = make([]types.JoinResult, 0, n)
		}
		chunk = c.chunks[c.cur]
	}
	start := len(chunk)
	chunk = chunk[:start+n]
	c.chunks[c.cur] = chunk
	c.count += int64(n)
	return chunk[start : start+n : start+n]
}

func (c *Chained) Count() int64 {
	return c.count
}

func (c *Chained) Reset() {
	for i := range c.chunks {
		c.chunks[i] = c.chunks[i][:0]
	}
	c.cur = 0
	c.count = 0
}

// NumChunks is the number of chunks holding results.
func (c *Chained) NumChunks() int {
	if c.count == 0 {
		return 0
	}
	return c.cur + 1
}

// Each calls fn on every result in write order until fn returns false.
func (c *Chained) Each(fn func(r types.JoinResult) bool) {
	for i := 0; i <= c.cur && i < len(c.chunks); i++ {
		for _, r := range c.chunks[i] {
			if !fn(r) {
				return
			}
		}
	}
}

// Results copies every result out of the buffer.
func (c *Chained) Results() []types.JoinResult {
	rs := make([]types.JoinResult, 0, c.count)
	c.Each(func(r types.JoinResult) bool {
		rs = append(rs, r)
		return true
	})
	return rs
}

// Free releases every chunk. The buffer must not be used afterwards.
func (c *Chained) Free() {
	c.chunks = nil
	c.cur = 0
	c.count = 0
}

// Counter counts results without keeping them.
type Counter struct {
	scratch []types.JoinResult
	count   int64
}

var _ Sink = new(Counter)

func NewCounter() *Counter {
	return &Counter{scratch: make([]types.JoinResult, 16)}
}

func (c *Counter) Append(left, right int64) {
	c.count++
}

func (c *Counter) Reserve(n int) []types.JoinResult {
	if n > len(c.scratch) {
		c.scratch = make([]types.JoinResult, n)
	}
	c.count += int64(n)
	return c.scratch[:n]
}

func (c *Counter) Count() int64 {
	return c.count
}

func (c *Counter) Reset() {
	c.count = 0
}

// New returns a materializing sink or a counting one.
func New(materialize bool) Sink {
	if materialize {
		return NewChained(DefaultChunkSize)
	}
	return NewCounter()
}
