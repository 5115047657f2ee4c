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

/*
bio-tmb computes tumor mutational burden: the number of qualifying somatic
mutations per megabase of effectively analyzable territory.

The calc subcommand reads one or more somatic VCFs and a target BED (or a
-region string), subtracts an optional exclusion BED, classifies every
(variant, alternate allele) candidate, deduplicates the accepted mutations,
and writes one summary row per input VCF.  All inputs may be
gzip/bgzip-compressed.

The bed subcommand generates a target BED from a reference FASTA by
identifying runs of target letters (unambiguous bases by default), for use as
calc's -bed input.

Sample usage:
bio-tmb calc \
    -bed targets.bed \
    -exclude blacklist.bed \
    -out tmb.tsv \
    tumor.vcf.gz

bio-tmb bed \
    -human-autosome \
    -out targets.bed \
    ref.fa
*/
package main
