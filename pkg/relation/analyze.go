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

package relation

import (
	"encoding/binary"
	"fmt"

	hll "github.com/axiomhq/hyperloglog"

	"github.com/matrixorigin/npjoin/pkg/container/types"
)

// Stats describes the keys of a relation.
type Stats struct {
	Tuples int
	MinKey int64
	MaxKey int64
	// Distinct is a HyperLogLog estimate of the number of distinct keys.
	Distinct uint64
}

func Analyze(rel types.Relation) Stats {
	st := Stats{Tuples: rel.NumTuples()}
	if st.Tuples == 0 {
		return st
	}
	sk := hll.New()
	var buf [8]byte
	st.MinKey, st.MaxKey = rel.Tuples[0].Key, rel.Tuples[0].Key
	for _, t := range rel.Tuples {
		if t.Key < st.MinKey {
			st.MinKey = t.Key
		}
		if t.Key > st.MaxKey {
			st.MaxKey = t.Key
		}
		binary.LittleEndian.PutUint64(buf[:], uint64(t.Key))
		sk.Insert(buf[:])
	}
	st.Distinct = sk.Estimate()
	return st
}

func (st Stats) String() string {
	return fmt.Sprintf("tuples=%d keys=[%d,%d] distinct~%d", st.Tuples, st.MinKey, st.MaxKey, st.Distinct)
}
