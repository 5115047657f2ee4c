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

// Counts tallies classification outcomes for one VCF.  Every field is a
// plain sum, so counts from independent workers merge by addition.
type Counts struct {
	// Examined is the number of alt-allele candidates seen, counting every
	// fan-out of a multi-allelic record separately.
	Examined int64
	// Accepted is the number of candidates that passed every test, before
	// deduplication.
	Accepted int64
	// RejectedByFilter counts candidates rejected for FILTER tags, low QUAL,
	// apparent germline status, or low allele fraction.
	RejectedByFilter int64
	// RejectedByRegion counts candidates positioned outside the effective
	// target region.
	RejectedByRegion int64
	// RejectedByAnnotation counts candidates rejected by consequence or
	// population-frequency annotations.
	RejectedByAnnotation int64
	// Malformed counts input lines that could not be parsed, when the run
	// is configured to skip them instead of aborting.
	Malformed int64
}

// tally records one classified candidate.
func (c *Counts) tally(v Verdict) {
	c.Examined++
	switch v {
	case Accepted:
		c.Accepted++
	case RejectedByFilter:
		c.RejectedByFilter++
	case RejectedByRegion:
		c.RejectedByRegion++
	case RejectedByAnnotation:
		c.RejectedByAnnotation++
	}
}

// Merge adds the field values of the two Counts objects and creates new
// Counts.
func (c Counts) Merge(o Counts) Counts {
	c.Examined += o.Examined
	c.Accepted += o.Accepted
	c.RejectedByFilter += o.RejectedByFilter
	c.RejectedByRegion += o.RejectedByRegion
	c.RejectedByAnnotation += o.RejectedByAnnotation
	c.Malformed += o.Malformed
	return c
}
