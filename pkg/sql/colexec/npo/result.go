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

package npo

import (
	"context"
	"time"

	"github.com/matrixorigin/npjoin/pkg/common/moerr"
	"github.com/matrixorigin/npjoin/pkg/container/hashtable"
	"github.com/matrixorigin/npjoin/pkg/container/tuplebuf"
	"github.com/matrixorigin/npjoin/pkg/sql/colexec/hashprobe"
)

// ThreadResult is what one worker produced. It is written only by its
// worker and read after all workers have returned.
type ThreadResult struct {
	ID  int
	CPU int
	// Matches[v][r] is the match count of round r of variant v.
	Matches [][]int64
	// Sinks[v] holds the results of the last round of variant v.
	Sinks []tuplebuf.Sink
}

// Round is one probe round summed over the workers.
type Round struct {
	Variant hashprobe.Variant
	Round   int
	Matches int64
	Elapsed time.Duration
}

type Result struct {
	Threads []ThreadResult
	Rounds  []Round
	Build   time.Duration
	// Table is set by Run.
	Table *hashtable.Stats
	// TreeNodes and TreeDepth are set by RunTree.
	TreeNodes int
	TreeDepth int
}

// Total is the match count of the first round of an unfiltered variant,
// or of the first round when every variant is filtered.
func (r *Result) Total() int64 {
	for _, rd := range r.Rounds {
		if !rd.Variant.Filtered() {
			return rd.Matches
		}
	}
	if len(r.Rounds) == 0 {
		return 0
	}
	return r.Rounds[0].Matches
}

// Check reports an error when two rounds disagree on the match count.
// Filtered variants are only compared with each other.
func (r *Result) Check() error {
	want := make(map[bool]int64, 2)
	for _, rd := range r.Rounds {
		f := rd.Variant.Filtered()
		n, ok := want[f]
		if !ok {
			want[f] = rd.Matches
			continue
		}
		if rd.Matches != n {
			return moerr.NewInvalidState(context.Background(),
				"round %d of %s found %d matches, expected %d", rd.Round, rd.Variant, rd.Matches, n)
		}
	}
	return nil
}

// Sinks returns the sinks every worker filled for variant index v.
func (r *Result) Sinks(v int) []tuplebuf.Sink {
	sinks := make([]tuplebuf.Sink, 0, len(r.Threads))
	for _, t := range r.Threads {
		if v < len(t.Sinks) && t.Sinks[v] != nil {
			sinks = append(sinks, t.Sinks[v])
		}
	}
	return sinks
}
