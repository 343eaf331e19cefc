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
	"testing"
	"time"

	"github.com/matrixorigin/npjoin/pkg/testutil"
)

func TestMain(m *testing.M) {
	// ants starts the purge goroutine of its default pool in init
	testutil.WaitForGoroutine("ants/v2.(*Pool).purgePeriodically", time.Second)
	m.Run()
}
