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

// Package lanes expresses fixed width vector steps as per lane loops: masked
// gathers, compares, compress/expand and scatter over 8 lanes of int64.
// Every operation is a pure Go loop over a fixed size array, which the
// compiler unrolls. The function variables let a hardware backend replace
// the pure versions.
package lanes

import (
	"math/bits"

	"golang.org/x/sys/cpu"

	"github.com/matrixorigin/npjoin/pkg/container/types"
)

// Width is the number of lanes of one vector.
const Width = 8

// Sentinel marks a lane holding no value.
const Sentinel int64 = -1

// Mask holds one bit per lane, bit i for lane i.
type Mask uint8

const (
	None Mask = 0
	Full Mask = 1<<Width - 1
)

func (m Mask) Count() int {
	return bits.OnesCount8(uint8(m))
}

func (m Mask) Has(i int) bool {
	return m&(1<<uint(i)) != 0
}

func (m Mask) Not() Mask {
	return ^m & Full
}

// Lowest keeps the n lowest lanes of m.
func (m Mask) Lowest(n int) Mask {
	var r Mask
	for ; n > 0 && m != 0; n-- {
		low := m & -m
		r |= low
		m &^= low
	}
	return r
}

// Vec is one vector of int64 lanes.
type Vec [Width]int64

func Broadcast(x int64) Vec {
	var v Vec
	for i := range v {
		v[i] = x
	}
	return v
}

var (
	expandSeq   func(v *Vec, m Mask, start int64) int64
	cmpLt       func(v *Vec, bound int64, m Mask) Mask
	cmpGt       func(v *Vec, bound int64, m Mask) Mask
	cmpEq       func(a, b *Vec, m Mask) Mask
	cmpNe       func(v *Vec, x int64, m Mask) Mask
	maskSet     func(v *Vec, m Mask, x int64)
	blend       func(dst, src *Vec, m Mask)
	compress    func(dst, src *Vec, m Mask) int
	expand      func(dst, src *Vec, m Mask) int
	scatterJoin func(dst []types.JoinResult, m Mask, left, right *Vec) int
)

func init() {
	expandSeq = expandSeqPure
	cmpLt = cmpLtPure
	cmpGt = cmpGtPure
	cmpEq = cmpEqPure
	cmpNe = cmpNePure
	maskSet = maskSetPure
	blend = blendPure
	compress = compressPure
	expand = expandPure
	scatterJoin = scatterJoinPure
}

// Backend names the implementation in use and whether the cpu could run
// a 512 bit backend.
func Backend() (name string, avx512 bool) {
	return "pure", cpu.X86.HasAVX512F
}

// ExpandSeq writes start, start+1, ... into the lanes of m in lane order
// and returns the value after the last one written.
func ExpandSeq(v *Vec, m Mask, start int64) int64 {
	return expandSeq(v, m, start)
}

// CmpLt returns the lanes of m whose value is below bound.
func CmpLt(v *Vec, bound int64, m Mask) Mask {
	return cmpLt(v, bound, m)
}

// CmpGt returns the lanes of m whose value is above bound.
func CmpGt(v *Vec, bound int64, m Mask) Mask {
	return cmpGt(v, bound, m)
}

// CmpEq returns the lanes of m where a and b agree.
func CmpEq(a, b *Vec, m Mask) Mask {
	return cmpEq(a, b, m)
}

// CmpNe returns the lanes of m whose value differs from x.
func CmpNe(v *Vec, x int64, m Mask) Mask {
	return cmpNe(v, x, m)
}

// MaskSet writes x into the lanes of m.
func MaskSet(v *Vec, m Mask, x int64) {
	maskSet(v, m, x)
}

// Blend copies the lanes of m from src into dst.
func Blend(dst, src *Vec, m Mask) {
	blend(dst, src, m)
}

// Compress packs the lanes of m of src into the low lanes of dst and
// returns how many were packed. The other lanes of dst are untouched.
func Compress(dst, src *Vec, m Mask) int {
	return compress(dst, src, m)
}

// Expand spreads the low lanes of src into the lanes of m of dst and
// returns how many were used.
func Expand(dst, src *Vec, m Mask) int {
	return expand(dst, src, m)
}

// ScatterJoin writes one result per lane of m, in lane order, to the front
// of dst and returns the number written. dst must have room for m.Count().
func ScatterJoin(dst []types.JoinResult, m Mask, left, right *Vec) int {
	return scatterJoin(dst, m, left, right)
}

// Gather loads load(idx[i]) into dst[i] for every lane i of m.
func Gather(dst *Vec, m Mask, idx *Vec, load func(i int64) int64) {
	for i := 0; i < Width; i++ {
		if m.Has(i) {
			dst[i] = load(idx[i])
		}
	}
}
