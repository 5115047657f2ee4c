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
	"context"
	"fmt"
	"runtime"

	"github.com/grailbio/base/compress"
	"github.com/grailbio/base/file"
	"github.com/grailbio/base/log"
	"github.com/grailbio/base/traverse"
	"github.com/grailbio/tmb/encoding/vcf"
	"github.com/grailbio/tmb/interval"
	"github.com/pkg/errors"
)

// batchLines is the number of data lines handed to a worker at a time.
const batchLines = 512

// Opts configures a burden run.
type Opts struct {
	// Target territory: exactly one of BEDPath and Region must be set.
	BEDPath string
	Region  string
	// ExcludePath optionally names a BED of regions subtracted from the
	// target territory before any counting.
	ExcludePath string
	// BEDOneBased treats start coordinates in both BEDs as 1-based.
	BEDOneBased bool
	// Config holds the candidate-qualification thresholds.
	Config Config
	// SampleIndex selects the genotype column consulted for zygosity and
	// allele fraction (0 = first sample).
	SampleIndex int
	// ConsequenceKey and PopFreqKey name the INFO annotations consulted by
	// the classifier.
	ConsequenceKey string
	PopFreqKey     string
	// SkipMalformed tallies unparseable lines instead of aborting.
	SkipMalformed bool
	// Parallelism bounds the number of concurrent classification workers;
	// nonpositive means runtime.NumCPU().
	Parallelism int
}

// DefaultOpts is the default Run configuration, referenced by the bio-tmb
// flag defaults.
var DefaultOpts = Opts{
	Config: Config{
		GermlineMaxFrac: 0.9,
		MaxPopFreq:      1.0,
	},
	ConsequenceKey: "Consequence",
	PopFreqKey:     "POP_AF",
}

// Run computes the burden of each VCF in vcfPaths against the effective
// target region described by opts.  Results are returned in input order;
// the first error aborts the whole run.
func Run(ctx context.Context, vcfPaths []string, opts Opts) ([]Result, error) {
	if len(vcfPaths) == 0 {
		return nil, fmt.Errorf("Run: no VCFs specified")
	}
	parallelism := opts.Parallelism
	if parallelism <= 0 {
		parallelism = runtime.NumCPU()
	}
	regions, err := loadRegions(opts)
	if err != nil {
		return nil, err
	}
	effectiveBases := regions.TotalBases()
	if effectiveBases == 0 {
		return nil, ErrEmptyDenominator
	}
	log.Printf("Run: effective target region spans %d base(s)", effectiveBases)

	results := make([]Result, 0, len(vcfPaths))
	for _, path := range vcfPaths {
		result, err := runVCF(ctx, path, &regions, opts, parallelism, effectiveBases)
		if err != nil {
			return nil, err
		}
		log.Printf("%s: %d candidate(s) examined, %d qualifying, burden %.2f",
			path, result.Counts.Examined, result.Qualifying, result.MutPerMb)
		results = append(results, result)
	}
	return results, nil
}

// loadRegions builds the effective target region: the target BED or region
// string, minus the exclusion BED if one is given.
func loadRegions(opts Opts) (regions interval.BEDUnion, err error) {
	bedOpts := interval.NewBEDOpts{OneBasedInput: opts.BEDOneBased}
	if opts.BEDPath != "" {
		if opts.Region != "" {
			err = fmt.Errorf("Run: -region and -bed flags can't be used together")
			return
		}
		if regions, err = interval.NewBEDUnionFromPath(opts.BEDPath, bedOpts); err != nil {
			return
		}
	} else if opts.Region != "" {
		var regionEntry interval.Entry
		if regionEntry, err = interval.ParseRegionString(opts.Region); err != nil {
			return
		}
		if regions, err = interval.NewBEDUnionFromEntries([]interval.Entry{regionEntry}); err != nil {
			return
		}
	} else {
		err = fmt.Errorf("Run: either -bed or -region is required")
		return
	}
	if opts.ExcludePath != "" {
		var excl interval.BEDUnion
		if excl, err = interval.NewBEDUnionFromPath(opts.ExcludePath, bedOpts); err != nil {
			return
		}
		regions = regions.Subtract(&excl)
	}
	return
}

func runVCF(ctx context.Context, path string, regions *interval.BEDUnion, opts Opts, parallelism int, effectiveBases int64) (result Result, err error) {
	var in file.File
	if in, err = file.Open(ctx, path); err != nil {
		return
	}
	defer func() {
		if e := in.Close(ctx); e != nil && err == nil {
			err = e
		}
	}()
	reader, _ := compress.NewReader(in.Reader(ctx))
	defer func() {
		if e := reader.Close(); e != nil && err == nil {
			err = e
		}
	}()
	vr := vcf.NewReader(reader, opts.SampleIndex)

	// One goroutine scans raw line batches; workers parse and classify.
	batches := make(chan *vcf.LineBatch, parallelism)
	var scanErr error
	go func() {
		for {
			batch := vr.ScanBatch(batchLines)
			if batch == nil {
				break
			}
			batches <- batch
		}
		scanErr = vr.Err()
		close(batches)
	}()

	copts := vcf.CandidateOpts{
		ConsequenceKey: opts.ConsequenceKey,
		PopFreqKey:     opts.PopFreqKey,
	}
	aggs := make([]*Aggregator, parallelism)
	err = traverse.Each(parallelism, func(jobIdx int) error {
		regionsCopy := regions.Clone()
		cls := NewClassifier(&regionsCopy, opts.Config)
		agg := NewAggregator()
		aggs[jobIdx] = agg
		var jobErr error
		for batch := range batches {
			if jobErr != nil {
				// Keep draining so the scanning goroutine can finish.
				continue
			}
			for i, line := range batch.Lines {
				var v vcf.Variant
				if v, jobErr = vcf.ParseLine(line, opts.SampleIndex); jobErr != nil {
					if opts.SkipMalformed {
						agg.AddMalformed()
						jobErr = nil
						continue
					}
					jobErr = errors.Wrapf(jobErr, "%s: line %d", path, batch.LineNums[i])
					break
				}
				for _, cand := range v.Candidates(copts) {
					agg.Add(cls.Classify(cand))
				}
			}
		}
		return jobErr
	})
	if err != nil {
		return
	}
	if scanErr != nil {
		err = errors.Wrapf(scanErr, "%s", path)
		return
	}

	agg := aggs[0]
	for _, o := range aggs[1:] {
		agg.Merge(o)
	}
	if agg.Counts().Examined == 0 {
		err = errors.Wrapf(ErrEmptyInput, "%s", path)
		return
	}
	result = agg.Finalize(path, effectiveBases)
	return
}
