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
	"context"
	"strings"

	"github.com/BurntSushi/toml"

	"github.com/matrixorigin/npjoin/pkg/common/affinity"
	"github.com/matrixorigin/npjoin/pkg/common/moerr"
	"github.com/matrixorigin/npjoin/pkg/container/hashtable"
	"github.com/matrixorigin/npjoin/pkg/logutil"
	"github.com/matrixorigin/npjoin/pkg/sql/colexec/bstprobe"
	"github.com/matrixorigin/npjoin/pkg/sql/colexec/hashprobe"
	"github.com/matrixorigin/npjoin/pkg/sql/colexec/npo"
)

const (
	algorithmNPO   = "npo"
	algorithmNPOST = "npo-st"
	algorithmBST   = "bst"
)

var defaultHashVariants = []string{"raw", "prefetch", "gp", "amac", "simd", "simd-amac", "simd-amac-raw"}

// Config is the benchmark configuration.
type Config struct {
	Log      logutil.LogConfig `toml:"log"`
	Join     JoinConfig        `toml:"join"`
	Relation RelationConfig    `toml:"relation"`
}

type JoinConfig struct {
	// Algorithm is npo, npo-st or bst.
	Algorithm   string   `toml:"algorithm"`
	Threads     int      `toml:"threads"`
	Repeat      int      `toml:"repeat"`
	Divide      bool     `toml:"divide"`
	Materialize bool     `toml:"materialize"`
	Variants    []string `toml:"variants"`

	LoadFactor       uint64 `toml:"load-factor"`
	SlabSize         int    `toml:"slab-size"`
	BuildPrefetch    int    `toml:"build-prefetch"`
	AMACLanes        int    `toml:"amac-lanes"`
	GPGroupSize      int    `toml:"gp-group-size"`
	SIMDGroups       int    `toml:"simd-groups"`
	PrefetchDistance int    `toml:"prefetch-distance"`
	FilterA          int64  `toml:"filter-a"`
	FilterB          int64  `toml:"filter-b"`

	// CPUMapping is a comma separated cpu list, worker i runs on entry i.
	CPUMapping   string `toml:"cpu-mapping"`
	PinThreads   bool   `toml:"pin-threads"`
	NUMALocalize bool   `toml:"numa-localize"`
	// Verify checks every round against an independent oracle.
	Verify bool `toml:"verify"`
}

type RelationConfig struct {
	RSize int    `toml:"r-size"`
	SSize int    `toml:"s-size"`
	RFile string `toml:"r-file"`
	SFile string `toml:"s-file"`
	// SMaxKey > 0 draws S as foreign keys in [1, SMaxKey], else S has
	// unique keys.
	SMaxKey    int64 `toml:"s-max-key"`
	Seed       int64 `toml:"seed"`
	GenThreads int   `toml:"gen-threads"`
}

func defaultConfig() *Config {
	probe := hashprobe.DefaultOptions()
	return &Config{
		Log: logutil.LogConfig{
			Level:  "info",
			Format: "console",
		},
		Join: JoinConfig{
			Algorithm:        algorithmNPO,
			Threads:          4,
			Repeat:           2,
			Divide:           true,
			Materialize:      true,
			LoadFactor:       1,
			SlabSize:         hashtable.DefaultSlabSize,
			AMACLanes:        probe.AMACLanes,
			GPGroupSize:      probe.GroupSize,
			SIMDGroups:       probe.SIMDGroups,
			PrefetchDistance: probe.PrefetchDistance,
			FilterA:          probe.FilterA,
			FilterB:          probe.FilterB,
			PinThreads:       true,
		},
		Relation: RelationConfig{
			RSize:      1 << 20,
			SSize:      1 << 20,
			Seed:       12345,
			GenThreads: 4,
		},
	}
}

// parseConfigFromFile overlays the keys present in file on the defaults.
func parseConfigFromFile(file string) (*Config, error) {
	if file == "" {
		return nil, moerr.NewBadConfig(context.Background(), "toml config file not set")
	}
	cfg := defaultConfig()
	if _, err := toml.DecodeFile(file, cfg); err != nil {
		return nil, moerr.ConvertGoError(context.Background(), err)
	}
	if err := cfg.validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

func (c *Config) validate() error {
	ctx := context.Background()
	c.Join.Algorithm = strings.ToLower(strings.TrimSpace(c.Join.Algorithm))
	switch c.Join.Algorithm {
	case algorithmNPO, algorithmNPOST, algorithmBST:
	default:
		return moerr.NewBadConfig(ctx, "unknown join algorithm %q", c.Join.Algorithm)
	}
	if len(c.Join.Variants) == 0 {
		if c.Join.Algorithm == algorithmBST {
			for _, v := range bstprobe.Variants() {
				c.Join.Variants = append(c.Join.Variants, v.String())
			}
		} else {
			c.Join.Variants = append([]string(nil), defaultHashVariants...)
		}
	}
	r := &c.Relation
	if r.RFile == "" && r.RSize < 0 {
		return moerr.NewInvalidArg(ctx, "r-size", r.RSize)
	}
	if r.SFile == "" && r.SSize < 0 {
		return moerr.NewInvalidArg(ctx, "s-size", r.SSize)
	}
	if r.SMaxKey < 0 {
		return moerr.NewInvalidArg(ctx, "s-max-key", r.SMaxKey)
	}
	if r.GenThreads <= 0 {
		r.GenThreads = 1
	}
	opts, err := c.Join.options()
	if err != nil {
		return err
	}
	if c.Join.Algorithm == algorithmBST {
		for _, v := range opts.Variants {
			if !bstprobe.Supports(v) {
				return moerr.NewBadConfig(ctx, "variant %s does not apply to %s", v, algorithmBST)
			}
		}
	}
	return opts.Validate()
}

// options turns the join section into orchestration options.
func (j *JoinConfig) options() (npo.Options, error) {
	cpus, err := affinity.ParseMapping(j.CPUMapping)
	if err != nil {
		return npo.Options{}, err
	}
	variants := make([]hashprobe.Variant, 0, len(j.Variants))
	for _, name := range j.Variants {
		v, err := hashprobe.ParseVariant(name)
		if err != nil {
			return npo.Options{}, err
		}
		variants = append(variants, v)
	}
	return npo.Options{
		Threads:     j.Threads,
		Repeat:      j.Repeat,
		Divide:      j.Divide,
		Materialize: j.Materialize,
		Variants:    variants,
		Probe: hashprobe.Options{
			PrefetchDistance: j.PrefetchDistance,
			GroupSize:        j.GPGroupSize,
			AMACLanes:        j.AMACLanes,
			SIMDGroups:       j.SIMDGroups,
			FilterA:          j.FilterA,
			FilterB:          j.FilterB,
		},
		LoadFactor:        j.LoadFactor,
		SlabSize:          j.SlabSize,
		BuildPrefetch:     j.BuildPrefetch,
		SingleThreadBuild: j.Algorithm == algorithmNPOST,
		CPUs:              cpus,
		Pin:               j.PinThreads,
		Localize:          j.NUMALocalize,
	}, nil
}
