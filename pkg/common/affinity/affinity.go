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

package affinity

import (
	"context"
	"runtime"
	"strings"
	"sync"

	"github.com/fagongzi/util/format"

	"github.com/matrixorigin/npjoin/pkg/common/moerr"
)

// Mapping maps a worker id to the logical cpu it runs on. An empty
// mapping round-robins over the cpus the process may run on.
type Mapping []int

var allowedOnce struct {
	sync.Once
	cpus Mapping
}

// Allowed returns the cpus in the affinity mask of the process.
func Allowed() Mapping {
	allowedOnce.Do(func() {
		allowedOnce.cpus = allowed()
		if len(allowedOnce.cpus) == 0 {
			for i := 0; i < runtime.NumCPU(); i++ {
				allowedOnce.cpus = append(allowedOnce.cpus, i)
			}
		}
	})
	return allowedOnce.cpus
}

// ParseMapping parses a comma separated cpu list such as "0,2,4,6".
func ParseMapping(s string) (Mapping, error) {
	s = strings.TrimSpace(s)
	if s == "" {
		return nil, nil
	}
	parts := strings.Split(s, ",")
	m := make(Mapping, 0, len(parts))
	for _, p := range parts {
		cpu, err := format.ParseStringUint64(strings.TrimSpace(p))
		if err != nil {
			return nil, moerr.NewBadConfig(context.Background(), "bad cpu %q in mapping %q", p, s)
		}
		if cpu >= uint64(maxCPU) {
			return nil, moerr.NewInvalidArg(context.Background(), "cpu-mapping", cpu)
		}
		m = append(m, int(cpu))
	}
	return m, nil
}

// CPU returns the cpu worker tid is placed on.
func (m Mapping) CPU(tid int) int {
	if len(m) == 0 {
		all := Allowed()
		return all[tid%len(all)]
	}
	return m[tid%len(m)]
}

// Bind locks the calling goroutine to its OS thread and pins that thread
// to cpu. The caller must runtime.UnlockOSThread when the work is done.
func Bind(cpu int) error {
	runtime.LockOSThread()
	return pin(cpu)
}

// Localize runs touch over nthreads disjoint chunks of [0, n), each chunk
// from a worker bound to the cpu of its id. Pages written first by a
// worker are placed on that worker's NUMA node by the kernel.
func Localize(n, nthreads int, m Mapping, touch func(lo, hi int)) {
	if n == 0 {
		return
	}
	if nthreads <= 0 {
		nthreads = 1
	}
	per := (n + nthreads - 1) / nthreads
	var wg sync.WaitGroup
	for tid := 0; tid < nthreads; tid++ {
		lo := tid * per
		if lo >= n {
			break
		}
		hi := lo + per
		if hi > n {
			hi = n
		}
		wg.Add(1)
		go func(tid, lo, hi int) {
			defer wg.Done()
			// placement is best effort
			_ = Bind(m.CPU(tid))
			defer runtime.UnlockOSThread()
			touch(lo, hi)
		}(tid, lo, hi)
	}
	wg.Wait()
}
