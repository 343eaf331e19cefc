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

package hashtable

import (
	"fmt"
	"strings"
)

const (
	statsBinWidth = 10
	statsBins     = 100
)

// Stats describes how chain lengths are distributed over the buckets.
type Stats struct {
	NumBuckets uint64
	// MaxLength and TotalLength are counted in buckets per chain.
	MaxLength   uint32
	TotalLength uint64
	// Histogram[i] counts the chains whose length rounds up to i*10.
	Histogram [statsBins]uint64
}

func (ht *HashTable) Stats() Stats {
	st := Stats{NumBuckets: uint64(len(ht.buckets))}
	for i := range ht.buckets {
		l := ht.buckets[i].Length
		bin := (l + statsBinWidth - 1) / statsBinWidth
		if bin >= statsBins {
			bin = statsBins - 1
		}
		st.Histogram[bin]++
		if l > st.MaxLength {
			st.MaxLength = l
		}
		st.TotalLength += uint64(l)
	}
	return st
}

func (st Stats) String() string {
	var sb strings.Builder
	fmt.Fprintf(&sb, "buckets=%d max=%d total=%d", st.NumBuckets, st.MaxLength, st.TotalLength)
	for i, n := range st.Histogram {
		if n > 0 {
			fmt.Fprintf(&sb, " len<=%d:%d", i*statsBinWidth, n)
		}
	}
	return sb.String()
}
