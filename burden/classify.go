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
package burden

import (
	"math"
	"strings"

	"github.com/grailbio/tmb/encoding/vcf"
	"github.com/grailbio/tmb/interval"
)

// Verdict is the outcome of classifying one candidate.
type Verdict int

const (
	// Accepted means the candidate counts toward the burden numerator.
	Accepted Verdict = iota
	// RejectedByFilter means the candidate failed a FILTER-tag, QUAL, or
	// somatic-status test.
	RejectedByFilter
	// RejectedByRegion means the candidate lies outside the effective
	// target region.
	RejectedByRegion
	// RejectedByAnnotation means the candidate was excluded by a
	// consequence or population-frequency annotation.
	RejectedByAnnotation
)

func (v Verdict) String() string {
	switch v {
	case Accepted:
		return "accepted"
	case RejectedByFilter:
		return "rejected-by-filter"
	case RejectedByRegion:
		return "rejected-by-region"
	case RejectedByAnnotation:
		return "rejected-by-annotation"
	}
	return "invalid"
}

// Reason tags reported alongside a rejection.  Stable strings; downstream
// tooling matches on them.
const (
	ReasonOffTarget   = "off-target"
	ReasonFilterTag   = "filter-tag"
	ReasonLowQual     = "low-qual"
	ReasonGermline    = "germline"
	ReasonLowAF       = "low-af"
	ReasonConsequence = "consequence"
	ReasonPopFreq     = "popfreq"
)

// Config holds the candidate-qualification thresholds.
type Config struct {
	// MinQual rejects candidates with QUAL below this value.  Records with
	// missing QUAL ('.') always pass.  Zero disables the test.
	MinQual float64
	// FilterAllow lists FILTER tags tolerated in addition to PASS and '.'.
	FilterAllow []string
	// AllowAllFilters disables FILTER-tag rejection entirely.
	AllowAllFilters bool
	// GermlineExclude rejects candidates that look germline: homozygous-alt
	// genotype, or allele fraction at or above GermlineMaxFrac.
	GermlineExclude bool
	// GermlineMaxFrac is the allele-fraction cutoff used by
	// GermlineExclude.  Nonpositive disables the fraction test; the
	// genotype test still applies.
	GermlineMaxFrac float64
	// MinAlleleFrac rejects candidates with allele fraction below this
	// value.  Candidates with no reported fraction always pass.  Zero
	// disables the test.
	MinAlleleFrac float64
	// ExcludeConsequences lists consequence terms (case-insensitive) that
	// disqualify a candidate.
	ExcludeConsequences []string
	// MaxPopFreq rejects candidates whose population allele frequency
	// exceeds this value.  Nonpositive disables the test.
	MaxPopFreq float64
}

// Classification pairs a candidate with its verdict.
type Classification struct {
	Candidate vcf.Candidate
	Verdict   Verdict
	// Reason names the first test that failed; empty for accepted
	// candidates.
	Reason string
}

// Classifier applies the qualification tests to candidates.  It is not safe
// for concurrent use: region queries keep a cursor for the sequential fast
// path.  Each goroutine should construct its own Classifier around its own
// Clone() of the region union.
type Classifier struct {
	regions    *interval.BEDUnion
	cfg        Config
	allow      map[string]bool
	excludeCsq map[string]bool
}

// NewClassifier returns a Classifier testing candidates against regions and
// cfg.
func NewClassifier(regions *interval.BEDUnion, cfg Config) *Classifier {
	c := &Classifier{regions: regions, cfg: cfg}
	if len(cfg.FilterAllow) > 0 {
		c.allow = make(map[string]bool, len(cfg.FilterAllow))
		for _, tag := range cfg.FilterAllow {
			c.allow[tag] = true
		}
	}
	if len(cfg.ExcludeConsequences) > 0 {
		c.excludeCsq = make(map[string]bool, len(cfg.ExcludeConsequences))
		for _, csq := range cfg.ExcludeConsequences {
			c.excludeCsq[strings.ToLower(csq)] = true
		}
	}
	return c
}

// Classify runs the qualification tests in a fixed order and reports the
// first failure.  Region membership is tested first so that off-target
// noise never leaks into the filter and annotation tallies.
func (c *Classifier) Classify(cand vcf.Candidate) Classification {
	verdict, reason := c.test(cand)
	return Classification{Candidate: cand, Verdict: verdict, Reason: reason}
}

func (c *Classifier) test(cand vcf.Candidate) (Verdict, string) {
	// cand.Pos1 is 1-based VCF text; the union is 0-based half-open.
	if !c.regions.ContainsByName(cand.RefName, cand.Pos1-1) {
		return RejectedByRegion, ReasonOffTarget
	}
	if !c.cfg.AllowAllFilters {
		// Filters == nil means PASS or '.'.
		for _, tag := range cand.Filters {
			if !c.allow[tag] {
				return RejectedByFilter, ReasonFilterTag
			}
		}
	}
	if (c.cfg.MinQual > 0) && cand.HasQual && (cand.Qual < c.cfg.MinQual) {
		return RejectedByFilter, ReasonLowQual
	}
	if c.cfg.GermlineExclude {
		if cand.Zygosity == vcf.ZygosityHomAlt {
			return RejectedByFilter, ReasonGermline
		}
		if (c.cfg.GermlineMaxFrac > 0) && !math.IsNaN(cand.AlleleFrac) &&
			(cand.AlleleFrac >= c.cfg.GermlineMaxFrac) {
			return RejectedByFilter, ReasonGermline
		}
	}
	if (c.cfg.MinAlleleFrac > 0) && !math.IsNaN(cand.AlleleFrac) &&
		(cand.AlleleFrac < c.cfg.MinAlleleFrac) {
		return RejectedByFilter, ReasonLowAF
	}
	if (cand.Consequence != "") && c.excludeCsq[strings.ToLower(cand.Consequence)] {
		return RejectedByAnnotation, ReasonConsequence
	}
	if (c.cfg.MaxPopFreq > 0) && !math.IsNaN(cand.PopFreq) &&
		(cand.PopFreq > c.cfg.MaxPopFreq) {
		return RejectedByAnnotation, ReasonPopFreq
	}
	return Accepted, ""
}
