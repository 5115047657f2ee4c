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
package cmd

import (
	"fmt"
	"runtime"
	"strings"

	"github.com/grailbio/base/cmdutil"
	"github.com/grailbio/base/vcontext"
	"github.com/grailbio/tmb/burden"
	"v.io/x/lib/cmdline"
)

type calcFlags struct {
	opts burden.Opts
	// filterAllow and excludeConsequence are comma-separated on the command
	// line and split into the Config slices before the run.
	filterAllow        string
	excludeConsequence string
	format             string
	outPath            string
	mutationsPath      string
}

func newCmdCalc() *cmdline.Command {
	cmd := &cmdline.Command{
		Name:     "calc",
		Short:    "Compute tumor mutational burden from somatic VCFs",
		ArgsName: "vcfpath...",
	}
	flags := calcFlags{opts: burden.DefaultOpts}
	cmd.Flags.StringVar(&flags.opts.BEDPath, "bed", burden.DefaultOpts.BEDPath, "Input target BED path; this xor -region required")
	cmd.Flags.StringVar(&flags.opts.Region, "region", burden.DefaultOpts.Region, "Restrict counting to the specified region. Format as <contig ID>:<1-based first pos>-<last pos>, <contig ID>:<1-based pos>, or just <contig ID>; this xor -bed required")
	cmd.Flags.StringVar(&flags.opts.ExcludePath, "exclude", burden.DefaultOpts.ExcludePath, "Optional BED of regions subtracted from the target territory before counting")
	cmd.Flags.BoolVar(&flags.opts.BEDOneBased, "bed-one-based", burden.DefaultOpts.BEDOneBased, "Treat start coordinates in the input BEDs as 1-based")
	cmd.Flags.Float64Var(&flags.opts.Config.MinQual, "min-qual", burden.DefaultOpts.Config.MinQual, "Candidates with QUAL below this value are rejected; 0 disables the test")
	cmd.Flags.StringVar(&flags.filterAllow, "filter-allow", "", "Comma-separated FILTER tags tolerated in addition to PASS and '.'")
	cmd.Flags.BoolVar(&flags.opts.Config.AllowAllFilters, "include-filtered", burden.DefaultOpts.Config.AllowAllFilters, "Accept candidates regardless of FILTER tags")
	cmd.Flags.BoolVar(&flags.opts.Config.GermlineExclude, "germline-exclude", burden.DefaultOpts.Config.GermlineExclude, "Reject homozygous-alt or high-allele-fraction candidates as likely germline")
	cmd.Flags.Float64Var(&flags.opts.Config.GermlineMaxFrac, "germline-max-frac", burden.DefaultOpts.Config.GermlineMaxFrac, "Allele-fraction cutoff used by -germline-exclude")
	cmd.Flags.Float64Var(&flags.opts.Config.MinAlleleFrac, "min-allele-frac", burden.DefaultOpts.Config.MinAlleleFrac, "Candidates with allele fraction below this value are rejected; 0 disables the test")
	cmd.Flags.StringVar(&flags.excludeConsequence, "exclude-consequence", "", "Comma-separated consequence terms (case-insensitive) that disqualify a candidate")
	cmd.Flags.Float64Var(&flags.opts.Config.MaxPopFreq, "max-popfreq", burden.DefaultOpts.Config.MaxPopFreq, "Candidates with population allele frequency above this value are rejected")
	cmd.Flags.StringVar(&flags.opts.ConsequenceKey, "consequence-key", burden.DefaultOpts.ConsequenceKey, "INFO key holding the functional consequence term")
	cmd.Flags.StringVar(&flags.opts.PopFreqKey, "popfreq-key", burden.DefaultOpts.PopFreqKey, "INFO key holding the population allele frequency")
	cmd.Flags.IntVar(&flags.opts.SampleIndex, "sample", burden.DefaultOpts.SampleIndex, "0-based genotype column consulted for zygosity and allele fraction")
	cmd.Flags.BoolVar(&flags.opts.SkipMalformed, "skip-malformed", burden.DefaultOpts.SkipMalformed, "Count unparseable records instead of aborting")
	cmd.Flags.IntVar(&flags.opts.Parallelism, "parallelism", burden.DefaultOpts.Parallelism, "Maximum number of simultaneous classification workers; 0 = runtime.NumCPU()")
	cmd.Flags.StringVar(&flags.format, "format", burden.FormatTSV, "Output format; 'tsv' and 'tsv-bgz' supported")
	cmd.Flags.StringVar(&flags.outPath, "out", "bio-tmb.tsv", "Report output path")
	cmd.Flags.StringVar(&flags.mutationsPath, "mutations", "", "Optional accepted-mutation detail output path; requires exactly one vcfpath")
	cmd.Runner = cmdutil.RunnerFunc(func(env *cmdline.Env, argv []string) error {
		if len(argv) == 0 {
			return fmt.Errorf("calc takes at least one vcfpath argument")
		}
		return runCalc(flags, argv)
	})
	return cmd
}

func runCalc(flags calcFlags, vcfPaths []string) error {
	if (flags.format != burden.FormatTSV) && (flags.format != burden.FormatTSVBgz) {
		return fmt.Errorf("unknown output format %q", flags.format)
	}
	if (flags.mutationsPath != "") && (len(vcfPaths) != 1) {
		return fmt.Errorf("-mutations requires exactly one vcfpath, but got %d", len(vcfPaths))
	}
	opts := flags.opts
	if flags.filterAllow != "" {
		opts.Config.FilterAllow = strings.Split(flags.filterAllow, ",")
	}
	if flags.excludeConsequence != "" {
		opts.Config.ExcludeConsequences = strings.Split(flags.excludeConsequence, ",")
	}
	ctx := vcontext.Background()
	results, err := burden.Run(ctx, vcfPaths, opts)
	if err != nil {
		return err
	}
	parallelism := opts.Parallelism
	if parallelism <= 0 {
		parallelism = runtime.NumCPU()
	}
	if err := burden.WriteReport(ctx, flags.outPath, flags.format, parallelism, results); err != nil {
		return err
	}
	if flags.mutationsPath != "" {
		return burden.WriteMutations(ctx, flags.mutationsPath, flags.format, parallelism, &results[0])
	}
	return nil
}
