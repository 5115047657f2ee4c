// Copyright 2020 Grail Inc.
//
// Licensed under the Apache License, Version 2.0 (the "License");
// you may not use this file except in compliance with the License.
// You may obtain a copy of the License at
//
//    http://www.apache.org/licenses/LICENSE-2.0
//
// Unless required by applicable law or agreed to in writing, software
// distributed under the License is distributed on an "AS IS" BASIS,
// WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
// See the License for the specific language governing permissions and
// limitations under the License.
package burden_test

import (
	"math"
	"testing"

	"github.com/grailbio/testutil/expect"
	"github.com/grailbio/tmb/burden"
	"github.com/grailbio/tmb/encoding/vcf"
	"github.com/grailbio/tmb/interval"
)

func testEntry(t *testing.T, refName string, start0, end interval.PosType) interval.Entry {
	e, err := interval.NewEntry(refName, start0, end)
	expect.NoError(t, err)
	return e
}

func testUnion(t *testing.T, entries ...interval.Entry) interval.BEDUnion {
	u, err := interval.NewBEDUnionFromEntries(entries)
	expect.NoError(t, err)
	return u
}

// testCandidate returns an in-region PASS SNV with no sample or annotation
// data.
func testCandidate() vcf.Candidate {
	return vcf.Candidate{
		RefName:    "chr1",
		Pos1:       500,
		Ref:        "A",
		Alt:        "T",
		AlleleFrac: math.NaN(),
		PopFreq:    math.NaN(),
	}
}

func TestClassify(t *testing.T) {
	regions := testUnion(t, testEntry(t, "chr1", 0, 1000))
	tests := []struct {
		name        string
		mutate      func(c *vcf.Candidate)
		cfg         burden.Config
		wantVerdict burden.Verdict
		wantReason  string
	}{
		{
			name:        "pass_through",
			mutate:      func(c *vcf.Candidate) {},
			wantVerdict: burden.Accepted,
		},
		{
			name:        "last_in_region_base",
			mutate:      func(c *vcf.Candidate) { c.Pos1 = 1000 },
			wantVerdict: burden.Accepted,
		},
		{
			name:        "past_region_end",
			mutate:      func(c *vcf.Candidate) { c.Pos1 = 1001 },
			wantVerdict: burden.RejectedByRegion,
			wantReason:  burden.ReasonOffTarget,
		},
		{
			name:        "unknown_contig",
			mutate:      func(c *vcf.Candidate) { c.RefName = "chrM" },
			wantVerdict: burden.RejectedByRegion,
			wantReason:  burden.ReasonOffTarget,
		},
		{
			// Region membership is tested before everything else, so an
			// off-target candidate never shows up in the filter tallies.
			name: "region_before_filter",
			mutate: func(c *vcf.Candidate) {
				c.Pos1 = 2000
				c.Filters = []string{"q10"}
			},
			cfg:         burden.Config{MinQual: 100},
			wantVerdict: burden.RejectedByRegion,
			wantReason:  burden.ReasonOffTarget,
		},
		{
			name:        "filter_tag",
			mutate:      func(c *vcf.Candidate) { c.Filters = []string{"q10"} },
			wantVerdict: burden.RejectedByFilter,
			wantReason:  burden.ReasonFilterTag,
		},
		{
			name:        "filter_tag_allowed",
			mutate:      func(c *vcf.Candidate) { c.Filters = []string{"q10"} },
			cfg:         burden.Config{FilterAllow: []string{"q10"}},
			wantVerdict: burden.Accepted,
		},
		{
			name: "filter_tag_partially_allowed",
			mutate: func(c *vcf.Candidate) {
				c.Filters = []string{"q10", "map_qual"}
			},
			cfg:         burden.Config{FilterAllow: []string{"q10"}},
			wantVerdict: burden.RejectedByFilter,
			wantReason:  burden.ReasonFilterTag,
		},
		{
			name:        "include_filtered",
			mutate:      func(c *vcf.Candidate) { c.Filters = []string{"q10", "map_qual"} },
			cfg:         burden.Config{AllowAllFilters: true},
			wantVerdict: burden.Accepted,
		},
		{
			name: "low_qual",
			mutate: func(c *vcf.Candidate) {
				c.Qual = 10
				c.HasQual = true
			},
			cfg:         burden.Config{MinQual: 30},
			wantVerdict: burden.RejectedByFilter,
			wantReason:  burden.ReasonLowQual,
		},
		{
			name:        "missing_qual_passes",
			mutate:      func(c *vcf.Candidate) {},
			cfg:         burden.Config{MinQual: 30},
			wantVerdict: burden.Accepted,
		},
		{
			// A bad FILTER tag wins over a bad QUAL.
			name: "filter_tag_before_low_qual",
			mutate: func(c *vcf.Candidate) {
				c.Filters = []string{"q10"}
				c.Qual = 10
				c.HasQual = true
			},
			cfg:         burden.Config{MinQual: 30},
			wantVerdict: burden.RejectedByFilter,
			wantReason:  burden.ReasonFilterTag,
		},
		{
			name:        "germline_hom_alt",
			mutate:      func(c *vcf.Candidate) { c.Zygosity = vcf.ZygosityHomAlt },
			cfg:         burden.Config{GermlineExclude: true, GermlineMaxFrac: 0.9},
			wantVerdict: burden.RejectedByFilter,
			wantReason:  burden.ReasonGermline,
		},
		{
			name:   "germline_high_frac",
			mutate: func(c *vcf.Candidate) { c.AlleleFrac = 0.95 },
			cfg: burden.Config{
				GermlineExclude: true,
				GermlineMaxFrac: 0.9,
				MinAlleleFrac:   0.99,
			},
			wantVerdict: burden.RejectedByFilter,
			wantReason:  burden.ReasonGermline,
		},
		{
			name: "germline_frac_boundary",
			mutate: func(c *vcf.Candidate) {
				c.Zygosity = vcf.ZygosityHet
				c.AlleleFrac = 0.9
			},
			cfg:         burden.Config{GermlineExclude: true, GermlineMaxFrac: 0.9},
			wantVerdict: burden.RejectedByFilter,
			wantReason:  burden.ReasonGermline,
		},
		{
			name: "het_below_germline_frac",
			mutate: func(c *vcf.Candidate) {
				c.Zygosity = vcf.ZygosityHet
				c.AlleleFrac = 0.4
			},
			cfg:         burden.Config{GermlineExclude: true, GermlineMaxFrac: 0.9},
			wantVerdict: burden.Accepted,
		},
		{
			// Missing genotype data is never treated as evidence of
			// germline origin.
			name:        "germline_unknown_zygosity_passes",
			mutate:      func(c *vcf.Candidate) {},
			cfg:         burden.Config{GermlineExclude: true, GermlineMaxFrac: 0.9},
			wantVerdict: burden.Accepted,
		},
		{
			name:        "low_allele_frac",
			mutate:      func(c *vcf.Candidate) { c.AlleleFrac = 0.01 },
			cfg:         burden.Config{MinAlleleFrac: 0.05},
			wantVerdict: burden.RejectedByFilter,
			wantReason:  burden.ReasonLowAF,
		},
		{
			name:        "missing_allele_frac_passes",
			mutate:      func(c *vcf.Candidate) {},
			cfg:         burden.Config{MinAlleleFrac: 0.05},
			wantVerdict: burden.Accepted,
		},
		{
			name:   "consequence_excluded",
			mutate: func(c *vcf.Candidate) { c.Consequence = "Synonymous_Variant" },
			cfg: burden.Config{
				ExcludeConsequences: []string{"synonymous_variant"},
			},
			wantVerdict: burden.RejectedByAnnotation,
			wantReason:  burden.ReasonConsequence,
		},
		{
			name:   "consequence_kept",
			mutate: func(c *vcf.Candidate) { c.Consequence = "missense_variant" },
			cfg: burden.Config{
				ExcludeConsequences: []string{"synonymous_variant"},
			},
			wantVerdict: burden.Accepted,
		},
		{
			name:        "popfreq_above_max",
			mutate:      func(c *vcf.Candidate) { c.PopFreq = 0.02 },
			cfg:         burden.Config{MaxPopFreq: 0.01},
			wantVerdict: burden.RejectedByAnnotation,
			wantReason:  burden.ReasonPopFreq,
		},
		{
			name:        "popfreq_at_max_passes",
			mutate:      func(c *vcf.Candidate) { c.PopFreq = 0.01 },
			cfg:         burden.Config{MaxPopFreq: 0.01},
			wantVerdict: burden.Accepted,
		},
		{
			name:        "popfreq_missing_passes",
			mutate:      func(c *vcf.Candidate) {},
			cfg:         burden.Config{MaxPopFreq: 0.01},
			wantVerdict: burden.Accepted,
		},
		{
			// Filter tests outrank annotation tests.
			name: "filter_before_annotation",
			mutate: func(c *vcf.Candidate) {
				c.Filters = []string{"q10"}
				c.PopFreq = 0.5
			},
			cfg:         burden.Config{MaxPopFreq: 0.01},
			wantVerdict: burden.RejectedByFilter,
			wantReason:  burden.ReasonFilterTag,
		},
	}
	for _, tt := range tests {
		cls := burden.NewClassifier(&regions, tt.cfg)
		cand := testCandidate()
		tt.mutate(&cand)
		got := cls.Classify(cand)
		expect.EQ(t, got.Verdict, tt.wantVerdict, "%s", tt.name)
		expect.EQ(t, got.Reason, tt.wantReason, "%s", tt.name)
		expect.EQ(t, got.Candidate.Pos1, cand.Pos1, "%s", tt.name)
	}
}

func TestClassifySequentialPositions(t *testing.T) {
	// The region cursor must give the same answers when positions arrive in
	// ascending order, the pattern the streaming runner produces.
	regions := testUnion(t,
		testEntry(t, "chr1", 100, 200),
		testEntry(t, "chr1", 300, 400),
	)
	cls := burden.NewClassifier(&regions, burden.Config{})
	wantIn := func(pos1 interval.PosType) bool {
		pos0 := pos1 - 1
		return (pos0 >= 100 && pos0 < 200) || (pos0 >= 300 && pos0 < 400)
	}
	for pos1 := interval.PosType(1); pos1 <= 500; pos1++ {
		cand := testCandidate()
		cand.Pos1 = pos1
		got := cls.Classify(cand)
		if wantIn(pos1) {
			expect.EQ(t, got.Verdict, burden.Accepted, "pos1=%d", pos1)
		} else {
			expect.EQ(t, got.Verdict, burden.RejectedByRegion, "pos1=%d", pos1)
		}
	}
}
