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

	"github.com/grailbio/base/errors"
	"github.com/grailbio/base/file"
	"github.com/grailbio/base/tsv"
	"github.com/grailbio/hts/bgzf"
)

// writeTSVOutput creates path and streams rows through a tsv.Writer,
// bgzf-compressing when format is FormatTSVBgz.
func writeTSVOutput(ctx context.Context, path, format string, parallelism int, write func(*tsv.Writer) error) (err error) {
	if (format != FormatTSV) && (format != FormatTSVBgz) {
		return fmt.Errorf("writeTSVOutput: unrecognized format %q", format)
	}
	var dst file.File
	if dst, err = file.Create(ctx, path); err != nil {
		return errors.E(err, "couldn't create output file:", path)
	}
	defer file.CloseAndReport(ctx, dst, &err)

	var w *tsv.Writer
	if format == FormatTSV {
		w = tsv.NewWriter(dst.Writer(ctx))
	} else {
		bgzfWriter := bgzf.NewWriter(dst.Writer(ctx), parallelism)
		w = tsv.NewWriter(bgzfWriter)
		defer func() {
			if e := bgzfWriter.Close(); e != nil && err == nil {
				err = e
			}
		}()
	}
	if err = write(w); err != nil {
		return
	}
	err = w.Flush()
	return
}

// writeReportRows writes the summary header and one row per result.
func writeReportRows(w *tsv.Writer, results []Result) error {
	w.WriteString("#VCF\tEXAMINED\tQUALIFYING\tDUPLICATE\tREJ_FILTER\tREJ_REGION\tREJ_ANNOTATION\tMALFORMED\tEFFECTIVE_MB\tTMB\tDIGEST")
	if err := w.EndLine(); err != nil {
		return err
	}
	for i := range results {
		r := &results[i]
		w.WriteString(r.Path)
		w.WriteInt64(r.Counts.Examined)
		w.WriteInt64(r.Qualifying)
		w.WriteInt64(r.DuplicateCalls)
		w.WriteInt64(r.Counts.RejectedByFilter)
		w.WriteInt64(r.Counts.RejectedByRegion)
		w.WriteInt64(r.Counts.RejectedByAnnotation)
		w.WriteInt64(r.Counts.Malformed)
		w.WriteFloat64(float64(r.EffectiveBases)/1e6, 'f', 6)
		// The burden itself is reported with two decimals.
		w.WriteFloat64(r.MutPerMb, 'f', 2)
		w.WriteString(fmt.Sprintf("%016x", r.Digest))
		if err := w.EndLine(); err != nil {
			return err
		}
	}
	return nil
}

// WriteReport writes one summary row per evaluated VCF to path.  format is
// FormatTSV or FormatTSVBgz; parallelism only affects bgzf compression.
func WriteReport(ctx context.Context, path, format string, parallelism int, results []Result) error {
	return writeTSVOutput(ctx, path, format, parallelism, func(w *tsv.Writer) error {
		return writeReportRows(w, results)
	})
}

// writeMutationRows writes the accepted mutations of one result, one row
// per distinct mutation, POS 1-based as in VCF text.
func writeMutationRows(w *tsv.Writer, result *Result) error {
	w.WriteString("#CHROM\tPOS\tREF\tALT")
	if err := w.EndLine(); err != nil {
		return err
	}
	for _, m := range result.Mutations {
		w.WriteString(m.RefName)
		w.WriteUint32(uint32(m.Pos1))
		w.WriteString(m.Ref)
		w.WriteString(m.Alt)
		if err := w.EndLine(); err != nil {
			return err
		}
	}
	return nil
}

// WriteMutations writes the deduplicated accepted-mutation detail of one
// result to path, in (CHROM, POS, REF, ALT) order.
func WriteMutations(ctx context.Context, path, format string, parallelism int, result *Result) error {
	return writeTSVOutput(ctx, path, format, parallelism, func(w *tsv.Writer) error {
		return writeMutationRows(w, result)
	})
}
