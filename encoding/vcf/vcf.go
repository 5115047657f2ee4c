// Package vcf implements a minimal streaming reader for the Variant Call
// Format, covering the columns a mutation-counting pipeline needs: the fixed
// site fields, FILTER tags, a configurable subset of INFO annotations, and
// one genotype column.  It does not interpret header metadata beyond the
// sample names on the #CHROM line.
package vcf

import (
	"math"
	"strconv"
	"strings"

	gunsafe "github.com/grailbio/base/unsafe"
	"github.com/grailbio/tmb/interval"
	"github.com/pkg/errors"
)

// PosType is the integer type used to represent genomic positions.
type PosType = interval.PosType

// ErrMalformedRecord is the cause of errors returned for data lines that
// violate the column contract.
var ErrMalformedRecord = errors.New("malformed VCF record")

// nFixedCol is the number of mandatory columns: CHROM, POS, ID, REF, ALT,
// QUAL, FILTER, INFO.
const nFixedCol = 8

// Variant is one parsed VCF data line, restricted to the selected sample.
type Variant struct {
	// RefName is the CHROM column.
	RefName string
	// Pos1 is the 1-based POS column.
	Pos1 PosType
	// ID is the ID column, as is ("." included).
	ID string
	// Ref is the reference allele.
	Ref string
	// Alts holds the comma-separated alternate alleles; nil when the ALT
	// column is ".".
	Alts []string
	// Qual is the QUAL column; only meaningful when HasQual is set.
	Qual    float64
	HasQual bool
	// Filters holds the FILTER column's semicolon-separated tags.  nil means
	// the column was "PASS" or ".".
	Filters []string
	// Info is the raw INFO column.
	Info string
	// Format and Sample are the FORMAT column and the selected genotype
	// column.  Both are empty when the record carries no genotype data for
	// that sample.
	Format string
	Sample string
}

// splitByTab identifies up to the first len(fields) tab-separated fields of
// curLine, returning the number found.  Unlike a whitespace tokenizer, empty
// fields are preserved, since VCF columns are strictly tab-delimited and some
// (e.g. INFO values) may contain spaces.
func splitByTab(fields [][]byte, curLine []byte) int {
	fieldIdx := 0
	start := 0
	for pos := 0; pos <= len(curLine); pos++ {
		if (pos == len(curLine)) || (curLine[pos] == '\t') {
			fields[fieldIdx] = curLine[start:pos]
			fieldIdx++
			if (fieldIdx == len(fields)) || (pos == len(curLine)) {
				break
			}
			start = pos + 1
		}
	}
	return fieldIdx
}

// ParseLine parses one VCF data line.  sampleIdx selects which genotype
// column is retained (0 = first sample); records with fewer genotype columns
// simply parse with no sample data.  The returned Variant copies everything
// it keeps, so curLine's buffer can be reused.  Errors have cause
// ErrMalformedRecord.
func ParseLine(curLine []byte, sampleIdx int) (v Variant, err error) {
	// Tolerate CRLF line endings.
	if len(curLine) > 0 && curLine[len(curLine)-1] == '\r' {
		curLine = curLine[:len(curLine)-1]
	}
	wantFields := nFixedCol + 2 + sampleIdx
	var fields [][]byte
	var fieldsBuf [10][]byte
	if wantFields > len(fieldsBuf) {
		fields = make([][]byte, wantFields)
	} else {
		fields = fieldsBuf[:wantFields]
	}
	nField := splitByTab(fields, curLine)
	if nField < nFixedCol {
		err = errors.Wrapf(ErrMalformedRecord, "%d column(s), %d required", nField, nFixedCol)
		return
	}

	if len(fields[0]) == 0 {
		err = errors.Wrap(ErrMalformedRecord, "empty CHROM")
		return
	}
	v.RefName = string(fields[0])

	var pos1 int
	if pos1, err = strconv.Atoi(gunsafe.BytesToString(fields[1])); err != nil {
		err = errors.Wrapf(ErrMalformedRecord, "invalid POS %q", fields[1])
		return
	}
	if (pos1 <= 0) || (pos1 >= interval.PosTypeMax) {
		err = errors.Wrapf(ErrMalformedRecord, "POS %d out of range", pos1)
		return
	}
	v.Pos1 = PosType(pos1)

	v.ID = string(fields[2])

	if len(fields[3]) == 0 {
		err = errors.Wrap(ErrMalformedRecord, "empty REF")
		return
	}
	v.Ref = string(fields[3])

	if alt := gunsafe.BytesToString(fields[4]); alt != "." && alt != "" {
		v.Alts = strings.Split(string(fields[4]), ",")
	}

	if qual := gunsafe.BytesToString(fields[5]); qual != "." && qual != "" {
		if v.Qual, err = strconv.ParseFloat(qual, 64); err != nil {
			err = errors.Wrapf(ErrMalformedRecord, "invalid QUAL %q", fields[5])
			return
		}
		v.HasQual = true
	}

	if filter := gunsafe.BytesToString(fields[6]); filter != "PASS" && filter != "." && filter != "" {
		v.Filters = strings.Split(string(fields[6]), ";")
	}

	v.Info = string(fields[7])

	if nField == wantFields {
		v.Format = string(fields[nFixedCol])
		v.Sample = string(fields[wantFields-1])
	}
	return
}

// InfoValue returns the value of the given INFO key, with found=false when
// the key is absent.  Flag keys (present without '=') return ("", true).
func (v *Variant) InfoValue(key string) (value string, found bool) {
	info := v.Info
	for len(info) > 0 {
		var kv string
		if i := strings.IndexByte(info, ';'); i >= 0 {
			kv, info = info[:i], info[i+1:]
		} else {
			kv, info = info, ""
		}
		if j := strings.IndexByte(kv, '='); j >= 0 {
			if kv[:j] == key {
				return kv[j+1:], true
			}
		} else if kv == key {
			return "", true
		}
	}
	return "", false
}

// FormatValue returns the selected sample's value for the given FORMAT key.
// found is false when the key is absent, the record carries no genotype
// columns, or the value is the missing marker ".".  Trailing fields omitted
// from the sample column count as absent.
func (v *Variant) FormatValue(key string) (value string, found bool) {
	format, sample := v.Format, v.Sample
	if format == "" || sample == "" {
		return "", false
	}
	sampleDone := false
	for {
		var k, val string
		if i := strings.IndexByte(format, ':'); i >= 0 {
			k, format = format[:i], format[i+1:]
		} else {
			k, format = format, ""
		}
		if !sampleDone {
			if j := strings.IndexByte(sample, ':'); j >= 0 {
				val, sample = sample[:j], sample[j+1:]
			} else {
				val, sample = sample, ""
				sampleDone = true
			}
		}
		if k == key {
			if val == "" || val == "." {
				return "", false
			}
			return val, true
		}
		if format == "" {
			return "", false
		}
	}
}

// Zygosity describes the selected sample's genotype relative to one
// alternate allele.
type Zygosity int

const (
	// ZygosityUnknown covers uncalled, unparseable, and absent genotypes.
	ZygosityUnknown Zygosity = iota
	// ZygosityRefOnly means no called allele matches the alt.
	ZygosityRefOnly
	// ZygosityHet means some but not all called alleles match the alt.
	ZygosityHet
	// ZygosityHomAlt means every called allele matches the alt.
	ZygosityHomAlt
)

// genotypeZygosity classifies a GT value relative to alternate allele altIdx.
// altIdx is 0-based while GT allele numbering reserves 0 for the reference,
// so alt k corresponds to GT allele k+1.
func genotypeZygosity(gt string, altIdx int) Zygosity {
	nCalled, nMatch := 0, 0
	for len(gt) > 0 {
		var tok string
		if sep := strings.IndexAny(gt, "/|"); sep >= 0 {
			tok, gt = gt[:sep], gt[sep+1:]
		} else {
			tok, gt = gt, ""
		}
		if tok == "" || tok == "." {
			continue
		}
		alleleIdx, err := strconv.Atoi(tok)
		if err != nil || alleleIdx < 0 {
			return ZygosityUnknown
		}
		nCalled++
		if alleleIdx == altIdx+1 {
			nMatch++
		}
	}
	if nCalled == 0 {
		return ZygosityUnknown
	}
	switch {
	case nMatch == 0:
		return ZygosityRefOnly
	case nMatch == nCalled:
		return ZygosityHomAlt
	default:
		return ZygosityHet
	}
}

// perAltValue returns the alt-specific entry of a Number=A comma-separated
// value.  A value without exactly nAlts entries is returned whole.
func perAltValue(raw string, altIdx, nAlts int) string {
	if (nAlts == 1) || (strings.IndexByte(raw, ',') < 0) {
		return raw
	}
	parts := strings.Split(raw, ",")
	if len(parts) != nAlts {
		return raw
	}
	return parts[altIdx]
}

// alleleFracFromAD derives an allele fraction from an AD (allelic depths)
// value, which lists the reference depth followed by one depth per alt.
func alleleFracFromAD(ad string, altIdx int) float64 {
	parts := strings.Split(ad, ",")
	if altIdx+1 >= len(parts) {
		return math.NaN()
	}
	var sum, altDepth float64
	for i, part := range parts {
		depth, err := strconv.ParseFloat(part, 64)
		if err != nil {
			return math.NaN()
		}
		sum += depth
		if i == altIdx+1 {
			altDepth = depth
		}
	}
	if sum <= 0 {
		return math.NaN()
	}
	return altDepth / sum
}

// trimAllele reduces (pos1, ref, alt) to the minimal representation:
// shared trailing bases are dropped first, then shared leading bases, always
// keeping at least one base on each side.  The position advances past
// dropped leading bases.  This gives each alt of a multi-allelic record its
// own effective position, e.g. REF=CA ALT=CT,C places the SNV at pos1+1 and
// the deletion at pos1.
func trimAllele(pos1 PosType, ref, alt string) (PosType, string, string) {
	for (len(ref) > 1) && (len(alt) > 1) && (ref[len(ref)-1] == alt[len(alt)-1]) {
		ref = ref[:len(ref)-1]
		alt = alt[:len(alt)-1]
	}
	for (len(ref) > 1) && (len(alt) > 1) && (ref[0] == alt[0]) {
		ref = ref[1:]
		alt = alt[1:]
		pos1++
	}
	return pos1, ref, alt
}

// isSequenceAlt distinguishes plain sequence alleles from the ALT values
// that cannot be counted as point mutations: the missing markers "." and
// "*", symbolic alleles like <DEL>, and breakend notation.
func isSequenceAlt(alt string) bool {
	if alt == "" || alt == "." || alt == "*" {
		return false
	}
	if alt[0] == '<' {
		return false
	}
	return !strings.ContainsAny(alt, "[]")
}

// CandidateOpts selects the INFO keys consulted during candidate generation.
// Zero value means no annotation lookup.
type CandidateOpts struct {
	// ConsequenceKey is the INFO key holding the functional consequence term.
	ConsequenceKey string
	// PopFreqKey is the INFO key holding the population allele frequency.
	PopFreqKey string
}

// Candidate is a single (variant, alternate allele) pair.  A multi-allelic
// record fans out into one Candidate per countable alt, each classified
// independently downstream.  Pos1/Ref/Alt hold the alt's minimal
// representation, which may sit downstream of the record's POS.
type Candidate struct {
	RefName string
	Pos1    PosType
	Ref     string
	Alt     string
	// AltIdx is the allele's 0-based position in the record's ALT column.
	AltIdx  int
	Qual    float64
	HasQual bool
	Filters []string
	// Zygosity reflects the selected sample's GT for this alt.
	Zygosity Zygosity
	// AlleleFrac is the sample's allele fraction for this alt, from FORMAT
	// AF when present, otherwise derived from AD.  NaN when unavailable.
	AlleleFrac float64
	// Consequence is this alt's entry of the configured consequence INFO
	// key; empty when absent.
	Consequence string
	// PopFreq is this alt's entry of the configured population-frequency
	// INFO key; NaN when absent or unparseable.
	PopFreq float64
}

// Candidates fans the variant out into per-alt candidates.  Number=A values
// (comma-separated, one entry per alt) are resolved to the matching entry;
// scalars apply to every alt.
func (v *Variant) Candidates(opts CandidateOpts) []Candidate {
	if len(v.Alts) == 0 {
		return nil
	}
	gt, hasGT := v.FormatValue("GT")
	af, hasAF := v.FormatValue("AF")
	ad, hasAD := v.FormatValue("AD")
	var consequenceRaw string
	if opts.ConsequenceKey != "" {
		consequenceRaw, _ = v.InfoValue(opts.ConsequenceKey)
	}
	var popFreqRaw string
	var hasPopFreq bool
	if opts.PopFreqKey != "" {
		popFreqRaw, hasPopFreq = v.InfoValue(opts.PopFreqKey)
	}

	nAlts := len(v.Alts)
	candidates := make([]Candidate, 0, nAlts)
	for altIdx, alt := range v.Alts {
		if !isSequenceAlt(alt) {
			continue
		}
		cpos, cref, calt := trimAllele(v.Pos1, v.Ref, alt)
		c := Candidate{
			RefName:    v.RefName,
			Pos1:       cpos,
			Ref:        cref,
			Alt:        calt,
			AltIdx:     altIdx,
			Qual:       v.Qual,
			HasQual:    v.HasQual,
			Filters:    v.Filters,
			AlleleFrac: math.NaN(),
			PopFreq:    math.NaN(),
		}
		if hasGT {
			c.Zygosity = genotypeZygosity(gt, altIdx)
		}
		if hasAF {
			if frac, err := strconv.ParseFloat(perAltValue(af, altIdx, nAlts), 64); err == nil {
				c.AlleleFrac = frac
			}
		} else if hasAD {
			c.AlleleFrac = alleleFracFromAD(ad, altIdx)
		}
		if consequenceRaw != "" {
			c.Consequence = perAltValue(consequenceRaw, altIdx, nAlts)
		}
		if hasPopFreq {
			if freq, err := strconv.ParseFloat(perAltValue(popFreqRaw, altIdx, nAlts), 64); err == nil {
				c.PopFreq = freq
			}
		}
		candidates = append(candidates, c)
	}
	return candidates
}
