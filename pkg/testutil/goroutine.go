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

package testutil

import (
	"runtime"
	"strings"
	"time"
)

// WaitForGoroutine yields until a goroutine running fn has started and
// shows up in the stack dump, or the timeout expires. Packages whose init starts
// background goroutines call it from TestMain, so leak checks that
// snapshot goroutines at the start of a test already see them.
func WaitForGoroutine(fn string, timeout time.Duration) bool {
	buf := make([]byte, 1<<20)
	deadline := time.Now().Add(timeout)
	for {
		runtime.Gosched()
		if started(string(buf[:runtime.Stack(buf, true)]), fn) {
			return true
		}
		if time.Now().After(deadline) {
			return false
		}
		time.Sleep(time.Millisecond)
	}
}

// started reports whether dump holds a goroutine in fn that has run and
// parked. A goroutine that was never scheduled is runnable and may still
// unwind to runtime.goexit.
func started(dump, fn string) bool {
	for _, g := range strings.Split(dump, "\n\n") {
		header, stack, ok := strings.Cut(g, "\n")
		if !ok || strings.Contains(header, "[runnable") {
			continue
		}
		if strings.Contains(stack, fn) && !strings.Contains(stack, "runtime.goexit") {
			return true
		}
	}
	return false
}
