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
	"io"
	"runtime"
	"strconv"
	"strings"

	"github.com/grailbio/base/compress"
	"github.com/grailbio/base/file"
	"github.com/grailbio/base/log"
	"github.com/grailbio/base/tsv"
	"github.com/grailbio/tmb/encoding/fasta"
)

// TargetOpts configures target-BED generation.
type TargetOpts struct {
	// Letters are the reference bases treated as targeted territory.
	Letters string
	// CaseSensitive keeps soft-masked (lowercase) bases distinct from
	// Letters instead of folding case.
	CaseSensitive bool
	// HumanAutosome restricts output to chr1..chr22, with or without the
	// "chr" prefix.
	HumanAutosome bool
	// BGZF compresses the output.
	BGZF bool
}

// DefaultTargetOpts is the default GenerateTargets configuration,
// referenced by the bio-tmb flag defaults.
var DefaultTargetOpts = TargetOpts{
	Letters: "ACGT",
}

// isHumanAutosome reports whether name denotes one of the 22 human
// autosomes, accepting both "chrN" and plain "N".
func isHumanAutosome(name string) bool {
	n, err := strconv.Atoi(strings.TrimPrefix(name, "chr"))
	if err != nil {
		return false
	}
	return (n >= 1) && (n <= 22)
}

// GenerateTargets streams the FASTA at faPath and writes a BED of maximal
// runs of target letters to outPath.  No contig is ever held in memory; a
// run ends at any non-target byte, so output intervals are disjoint and
// non-touching by construction.
func GenerateTargets(ctx context.Context, faPath, outPath string, opts TargetOpts) (err error) {
	letters := opts.Letters
	if letters == "" {
		letters = DefaultTargetOpts.Letters
	}
	var isTarget [256]bool
	for i := 0; i < len(letters); i++ {
		isTarget[letters[i]] = true
	}
	if !opts.CaseSensitive {
		for i := 0; i < len(letters); i++ {
			c := letters[i]
			if ('A' <= c) && (c <= 'Z') {
				isTarget[c+'a'-'A'] = true
			} else if ('a' <= c) && (c <= 'z') {
				isTarget[c-'a'+'A'] = true
			}
		}
	}

	var infile file.File
	if infile, err = file.Open(ctx, faPath); err != nil {
		return
	}
	defer func() {
		if e := infile.Close(ctx); e != nil && err == nil {
			err = e
		}
	}()
	reader, _ := compress.NewReader(infile.Reader(ctx))
	defer func() {
		if e := reader.Close(); e != nil && err == nil {
			err = e
		}
	}()

	format := FormatTSV
	if opts.BGZF {
		format = FormatTSVBgz
	}
	return writeTSVOutput(ctx, outPath, format, runtime.NumCPU(), func(w *tsv.Writer) error {
		return scanTargets(reader, &isTarget, opts.HumanAutosome, w)
	})
}

func scanTargets(r io.Reader, isTarget *[256]bool, autosomeOnly bool, w *tsv.Writer) error {
	scanner := fasta.NewScanner(r)
	var (
		curName  string
		skip     bool
		pos      int64
		runStart int64 = -1
		nRows    int64
		nBases   int64
	)
	// flush emits the open run, if any, as [runStart, pos).
	flush := func() error {
		if runStart < 0 {
			return nil
		}
		w.WriteString(curName)
		w.WriteInt64(runStart)
		w.WriteInt64(pos)
		nRows++
		nBases += pos - runStart
		runStart = -1
		return w.EndLine()
	}
	for scanner.Scan() {
		if scanner.Name() != curName {
			if err := flush(); err != nil {
				return err
			}
			curName = scanner.Name()
			pos = 0
			skip = autosomeOnly && !isHumanAutosome(curName)
		}
		if skip {
			continue
		}
		for _, c := range scanner.Line() {
			if isTarget[c] {
				if runStart < 0 {
					runStart = pos
				}
			} else if err := flush(); err != nil {
				return err
			}
			pos++
		}
	}
	if err := scanner.Err(); err != nil {
		return err
	}
	if err := flush(); err != nil {
		return err
	}
	log.Printf("GenerateTargets: %d interval(s) emitted, %d base(s) covered", nRows, nBases)
	return nil
}
