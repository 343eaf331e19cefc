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

package lanes

import (
	"github.com/matrixorigin/npjoin/pkg/container/types"
)

func expandSeqPure(v *Vec, m Mask, start int64) int64 {
	for i := 0; i < Width; i++ {
		if m.Has(i) {
			v[i] = start
			start++
		}
	}
	return start
}

func cmpLtPure(v *Vec, bound int64, m Mask) Mask {
	var r Mask
	for i := 0; i < Width; i++ {
		if v[i] < bound {
			r |= 1 << uint(i)
		}
	}
	return r & m
}

func cmpGtPure(v *Vec, bound int64, m Mask) Mask {
	var r Mask
	for i := 0; i < Width; i++ {
		if v[i] > bound {
			r |= 1 << uint(i)
		}
	}
	return r & m
}

func cmpEqPure(a, b *Vec, m Mask) Mask {
	var r Mask
	for i := 0; i < Width; i++ {
		if a[i] == b[i] {
			r |= 1 << uint(i)
		}
	}
	return r & m
}

func cmpNePure(v *Vec, x int64, m Mask) Mask {
	var r Mask
	for i := 0; i < Width; i++ {
		if v[i] != x {
			r |= 1 << uint(i)
		}
	}
	return r & m
}

func maskSetPure(v *Vec, m Mask, x int64) {
	for i := 0; i < Width; i++ {
		if m.Has(i) {
			v[i] = x
		}
	}
}

func blendPure(dst, src *Vec, m Mask) {
	for i := 0; i < Width; i++ {
		if m.Has(i) {
			dst[i] = src[i]
		}
	}
}

func compressPure(dst, src *Vec, m Mask) int {
	n := 0
	for i := 0; i < Width; i++ {
		if m.Has(i) {
			dst[n] = src[i]
			n++
		}
	}
	return n
}

func expandPure(dst, src *Vec, m Mask) int {
	n := 0
	for i := 0; i < Width; i++ {
		if m.Has(i) {
			dst[i] = src[n]
			n++
		}
	}
	return n
}

func scatterJoinPure(dst []types.JoinResult, m Mask, left, right *Vec) int {
	n := 0
	for i := 0; i < Width; i++ {
		if m.Has(i) {
			dst[n] = types.JoinResult{Left: left[i], Right: right[i]}
			n++
		}
	}
	return n
}
