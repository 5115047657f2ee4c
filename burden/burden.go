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

// Package burden computes tumor mutational burden: the number of distinct
// qualifying somatic mutations per megabase of effectively targeted
// territory.  Variant candidates are streamed out of one or more VCFs,
// pushed through a fixed sequence of region/filter/annotation tests,
// deduplicated, and divided by the effective target size.
package burden

import (
	"github.com/grailbio/tmb/interval"
	"github.com/pkg/errors"
)

// PosType is the integer type used to represent genomic positions.
type PosType = interval.PosType

// Output format names accepted by the report writers.
const (
	// FormatTSV is plain tab-separated text.
	FormatTSV = "tsv"
	// FormatTSVBgz is bgzf-compressed tab-separated text.
	FormatTSVBgz = "tsv-bgz"
)

var (
	// ErrEmptyDenominator is returned when the effective target region is
	// empty, i.e. the exclusion BED removed every targeted base.  This is a
	// configuration error, reported before any VCF is opened.
	ErrEmptyDenominator = errors.New("effective target region is empty")

	// ErrEmptyInput is returned when a VCF yields no variant candidates at
	// all.  A burden of zero is only reported when at least one candidate
	// was examined and rejected.
	ErrEmptyInput = errors.New("no variant records")
)
