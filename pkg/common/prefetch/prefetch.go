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

// Package prefetch issues software prefetch hints. The hints never fault,
// so any address, including one past the end of a slice's data, is legal.
package prefetch

import "unsafe"

// Slice prefetches the element i of s when it exists.
func Slice[T any](s []T, i int) {
	if i >= 0 && i < len(s) {
		T0(unsafe.Pointer(&s[i]))
	}
}
