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

package latch

import (
	"runtime"
	"sync/atomic"
)

// spinsBeforeYield bounds how long a waiter burns its core before handing
// the P back to the scheduler.
const spinsBeforeYield = 128

// Latch is a test-and-test-and-set spinlock over a single atomic flag.
// It guards one hash bucket chain while buckets are built concurrently.
// The zero value is unlocked.
type Latch struct {
	v atomic.Uint32
}

func (l *Latch) Lock() {
	for !l.v.CompareAndSwap(0, 1) {
		spins := 0
		for l.v.Load() != 0 {
			cpuRelax()
			if spins++; spins == spinsBeforeYield {
				runtime.Gosched()
				spins = 0
			}
		}
	}
}

func (l *Latch) TryLock() bool {
	return l.v.Load() == 0 && l.v.CompareAndSwap(0, 1)
}

func (l *Latch) Unlock() {
	l.v.Store(0)
}

func (l *Latch) Locked() bool {
	return l.v.Load() != 0
}
