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

	"github.com/matrixorigin/npjoin/pkg/common/affinity"
	"github.com/matrixorigin/npjoin/pkg/common/moerr"
	"github.com/matrixorigin/npjoin/pkg/container/hashtable"
	"github.com/matrixorigin/npjoin/pkg/sql/colexec/hashprobe"
)

type Options struct {
	// Threads is the number of workers building and probing.
	Threads int
	// Repeat is the number of probe rounds run per variant.
	Repeat int
	// Divide slices the probe relation across the workers. Otherwise every
	// worker probes all of it.
	Divide bool
	// Materialize keeps every join result in per worker chunked buffers.
	Materialize bool
	Variants    []hashprobe.Variant
	Probe       hashprobe.Options

	LoadFactor    uint64
	SkipBits      uint
	SlabSize      int
	BuildPrefetch int
	// SingleThreadBuild builds the whole table from worker 0 without
	// latching while the other workers wait.
	SingleThreadBuild bool

	CPUs     affinity.Mapping
	Pin      bool
	Localize bool
}

func DefaultOptions() Options {
	return Options{
		Threads:     2,
		Repeat:      2,
		Divide:      true,
		Materialize: true,
		Variants:    hashprobe.AllVariants(),
		Probe:       hashprobe.DefaultOptions(),
		LoadFactor:  1,
		SlabSize:    hashtable.DefaultSlabSize,
		Pin:         true,
	}
}

func (o Options) Validate() error {
	ctx := context.Background()
	switch {
	case o.Threads <= 0 || o.Threads > hashtable.MaxOwners:
		return moerr.NewInvalidArg(ctx, "threads", o.Threads)
	case o.Repeat <= 0:
		return moerr.NewInvalidArg(ctx, "repeat", o.Repeat)
	case o.LoadFactor == 0 || o.LoadFactor&(o.LoadFactor-1) != 0:
		return moerr.NewInvalidArg(ctx, "load-factor", o.LoadFactor)
	case o.BuildPrefetch < 0:
		return moerr.NewInvalidArg(ctx, "build-prefetch", o.BuildPrefetch)
	case len(o.Variants) == 0:
		return moerr.NewBadConfig(ctx, "no probe variant selected")
	}
	return o.Probe.Validate()
}

func (o Options) tableOptions() []hashtable.Option {
	opts := []hashtable.Option{
		hashtable.WithLoadFactor(o.LoadFactor),
		hashtable.WithSkipBits(o.SkipBits),
		hashtable.WithSlabSize(o.SlabSize),
		hashtable.WithBuildPrefetch(o.BuildPrefetch),
	}
	if o.Localize {
		opts = append(opts, hashtable.WithLocalize(o.Threads, o.CPUs))
	}
	return opts
}
