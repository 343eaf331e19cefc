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

package hashprobe

import (
	"context"
	"strings"

	"github.com/matrixorigin/npjoin/pkg/common/moerr"
	"github.com/matrixorigin/npjoin/pkg/container/tuplebuf"
	"github.com/matrixorigin/npjoin/pkg/container/types"
)

type Variant int

const (
	VariantRaw Variant = iota
	VariantPrefetch
	VariantGP
	VariantAMAC
	VariantSIMD
	VariantSIMDAMAC
	VariantSIMDAMACRaw
	VariantSIMDGP
	VariantSIMDAMACCompact
	VariantPipelineRaw
	VariantPipelineAMAC
	variantEnd
)

var variantNames = [...]string{
	VariantRaw:             "raw",
	VariantPrefetch:        "prefetch",
	VariantGP:              "gp",
	VariantAMAC:            "amac",
	VariantSIMD:            "simd",
	VariantSIMDAMAC:        "simd-amac",
	VariantSIMDAMACRaw:     "simd-amac-raw",
	VariantSIMDGP:          "simd-gp",
	VariantSIMDAMACCompact: "simd-amac-compact",
	VariantPipelineRaw:     "pipeline-raw",
	VariantPipelineAMAC:    "pipeline-amac",
}

func (v Variant) String() string {
	if v < 0 || v >= variantEnd {
		return "unknown"
	}
	return variantNames[v]
}

// Filtered reports whether the variant drops probe tuples by the pipeline
// filter before probing.
func (v Variant) Filtered() bool {
	return v == VariantPipelineRaw || v == VariantPipelineAMAC
}

func ParseVariant(s string) (Variant, error) {
	s = strings.ToLower(strings.TrimSpace(s))
	for v, name := range variantNames {
		if name == s {
			return Variant(v), nil
		}
	}
	return 0, moerr.NewInvalidArg(context.Background(), "probe variant", s)
}

// AllVariants lists every probe variant, the raw baseline first.
func AllVariants() []Variant {
	vs := make([]Variant, 0, variantEnd)
	for v := VariantRaw; v < variantEnd; v++ {
		vs = append(vs, v)
	}
	return vs
}

// Probe runs variant v over rel and returns the number of matches.
func (p *Prober) Probe(v Variant, rel types.Relation, out tuplebuf.Sink) int64 {
	switch v {
	case VariantRaw:
		return p.Raw(rel, out)
	case VariantPrefetch:
		return p.RawPrefetch(rel, out)
	case VariantGP:
		return p.GroupPrefetch(rel, out)
	case VariantAMAC:
		return p.AMAC(rel, out)
	case VariantSIMD:
		return p.SIMD(rel, out)
	case VariantSIMDAMAC:
		return p.SIMDAMAC(rel, out)
	case VariantSIMDAMACRaw:
		return p.SIMDAMACRaw(rel, out)
	case VariantSIMDGP:
		return p.SIMDGroupPrefetch(rel, out)
	case VariantSIMDAMACCompact:
		return p.SIMDAMACCompact(rel, out)
	case VariantPipelineRaw:
		return p.PipelineRaw(rel, out)
	case VariantPipelineAMAC:
		return p.PipelineAMAC(rel, out)
	}
	panic(moerr.NewInvalidArg(context.Background(), "probe variant", int(v)))
}
