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

package main

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/matrixorigin/npjoin/pkg/common/moerr"
	"github.com/matrixorigin/npjoin/pkg/sql/colexec/hashprobe"
)

func writeConfig(t *testing.T, content string) string {
	path := filepath.Join(t.TempDir(), "npj.toml")
	require.NoError(t, os.WriteFile(path, []byte(content), 0o644))
	return path
}

func TestParseConfig(t *testing.T) {
	path := writeConfig(t, `
[log]
level = "debug"
format = "json"

[join]
algorithm = "NPO-ST"
threads = 8
divide = false
variants = ["raw", "simd-amac", "pipeline-amac"]
load-factor = 2
cpu-mapping = "0, 2,4"
filter-b = 30000056

[relation]
r-size = 1000
s-max-key = 50
`)
	cfg, err := parseConfigFromFile(path)
	require.NoError(t, err)
	assert.Equal(t, "debug", cfg.Log.Level)
	assert.Equal(t, algorithmNPOST, cfg.Join.Algorithm)
	assert.Equal(t, 8, cfg.Join.Threads)
	assert.False(t, cfg.Join.Divide)
	// keys left out keep their defaults
	assert.True(t, cfg.Join.Materialize)
	assert.Equal(t, 2, cfg.Join.Repeat)
	assert.Equal(t, 1<<20, cfg.Relation.SSize)

	opts, err := cfg.Join.options()
	require.NoError(t, err)
	assert.True(t, opts.SingleThreadBuild)
	assert.Equal(t, uint64(2), opts.LoadFactor)
	assert.Equal(t, []int{0, 2, 4}, []int(opts.CPUs))
	assert.Equal(t, []hashprobe.Variant{hashprobe.VariantRaw, hashprobe.VariantSIMDAMAC, hashprobe.VariantPipelineAMAC}, opts.Variants)
	assert.Equal(t, int64(30000056), opts.Probe.FilterB)
}

func TestDefaultVariants(t *testing.T) {
	cfg, err := parseConfigFromFile(writeConfig(t, "[join]\nthreads = 2\n"))
	require.NoError(t, err)
	assert.Equal(t, defaultHashVariants, cfg.Join.Variants)

	cfg, err = parseConfigFromFile(writeConfig(t, "[join]\nalgorithm = \"bst\"\n"))
	require.NoError(t, err)
	assert.Equal(t, []string{"raw", "amac", "simd", "simd-amac", "simd-amac-raw"}, cfg.Join.Variants)
}

func TestBadConfig(t *testing.T) {
	cases := []struct {
		name    string
		content string
		code    uint16
	}{
		{"unknown algorithm", "[join]\nalgorithm = \"radix\"\n", moerr.ErrBadConfig},
		{"unknown variant", "[join]\nvariants = [\"raw\", \"warp\"]\n", moerr.ErrInvalidArg},
		{"tree with group prefetching", "[join]\nalgorithm = \"bst\"\nvariants = [\"gp\"]\n", moerr.ErrBadConfig},
		{"load factor", "[join]\nload-factor = 3\n", moerr.ErrInvalidArg},
		{"no threads", "[join]\nthreads = 0\n", moerr.ErrInvalidArg},
		{"cpu list", "[join]\ncpu-mapping = \"0,x\"\n", moerr.ErrBadConfig},
		{"negative key range", "[relation]\ns-max-key = -1\n", moerr.ErrInvalidArg},
	}
	for _, c := range cases {
		t.Run(c.name, func(t *testing.T) {
			_, err := parseConfigFromFile(writeConfig(t, c.content))
			require.Error(t, err)
			require.True(t, moerr.IsMoErrCode(err, c.code), "got %v", err)
		})
	}

	_, err := parseConfigFromFile(filepath.Join(t.TempDir(), "missing.toml"))
	require.True(t, moerr.IsMoErrCode(err, moerr.ErrFileNotFound))
	_, err = parseConfigFromFile("")
	require.True(t, moerr.IsMoErrCode(err, moerr.ErrBadConfig))
}
