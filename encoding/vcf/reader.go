package vcf

import (
	"bufio"
	"bytes"
	"io"
	"strings"

	"github.com/pkg/errors"
)

const (
	// initScanBytes is the initial size of the line-scanning buffer.
	initScanBytes = 1 << 16
	// maxScanBytes bounds a single VCF line.  Lines grow with sample count
	// and structural-variant payloads, so this is deliberately generous.
	maxScanBytes = 1 << 26
)

var (
	errEOF            = errors.New("eof")
	chromHeaderPrefix = []byte("#CHROM")
)

// Reader streams data lines from one VCF, skipping header lines and
// remembering the sample names declared on the #CHROM line.  Readers are not
// threadsafe; for parallel parsing, take raw lines via ScanBatch and call
// ParseLine from the workers.
type Reader struct {
	b         *bufio.Scanner
	sampleIdx int
	lineNum   int
	samples   []string
	err       error
}

// NewReader constructs a Reader.  sampleIdx selects the genotype column
// retained by Scan (0 = first sample).
func NewReader(r io.Reader, sampleIdx int) *Reader {
	b := bufio.NewScanner(r)
	// Scanner does not auto-resize past its max; VCF lines regularly exceed
	// the bufio default.
	b.Buffer(make([]byte, 0, initScanBytes), maxScanBytes)
	return &Reader{b: b, sampleIdx: sampleIdx}
}

// nextLine advances to the next data line, handling header and blank lines.
// It returns nil at end of input or on error.
func (r *Reader) nextLine() []byte {
	for r.b.Scan() {
		r.lineNum++
		line := r.b.Bytes()
		if len(line) == 0 || (len(line) == 1 && line[0] == '\r') {
			continue
		}
		if line[0] == '#' {
			if bytes.HasPrefix(line, chromHeaderPrefix) {
				cols := strings.Split(strings.TrimRight(string(line), "\r"), "\t")
				if len(cols) > nFixedCol+1 {
					r.samples = cols[nFixedCol+1:]
				}
			}
			continue
		}
		return line
	}
	if r.err = r.b.Err(); r.err == nil {
		r.err = errEOF
	}
	return nil
}

// Scan parses the next data line into v, returning whether it succeeded.
// Once Scan returns false, it never returns true again.  Upon completion,
// the user should check the Err method to determine whether scanning stopped
// because of an error or because the end of the stream was reached.
func (r *Reader) Scan(v *Variant) bool {
	if r.err != nil {
		return false
	}
	line := r.nextLine()
	if line == nil {
		return false
	}
	parsed, err := ParseLine(line, r.sampleIdx)
	if err != nil {
		r.err = errors.Wrapf(err, "line %d", r.lineNum)
		return false
	}
	*v = parsed
	return true
}

// LineBatch holds raw data lines copied out of the reader's buffer, plus
// their 1-based line numbers for error reporting.
type LineBatch struct {
	Lines    [][]byte
	LineNums []int
}

// ScanBatch reads up to maxLines data lines.  It returns nil when the input
// is exhausted or a read error occurred; check Err.  The returned lines are
// copies and remain valid after further scanning.
func (r *Reader) ScanBatch(maxLines int) *LineBatch {
	if r.err != nil {
		return nil
	}
	batch := &LineBatch{
		Lines:    make([][]byte, 0, maxLines),
		LineNums: make([]int, 0, maxLines),
	}
	for len(batch.Lines) < maxLines {
		line := r.nextLine()
		if line == nil {
			break
		}
		batch.Lines = append(batch.Lines, append([]byte(nil), line...))
		batch.LineNums = append(batch.LineNums, r.lineNum)
	}
	if len(batch.Lines) == 0 {
		return nil
	}
	return batch
}

// Err returns the scanning error, if any.
func (r *Reader) Err() error {
	if r.err == errEOF {
		return nil
	}
	return r.err
}

// Samples returns the sample names from the #CHROM header line, or nil if
// none has been seen yet.  Most VCFs declare it before any data line, so the
// result is meaningful after the first Scan or ScanBatch call.
func (r *Reader) Samples() []string {
	return r.samples
}

// LineNum returns the 1-based number of the most recently consumed line.
func (r *Reader) LineNum() int {
	return r.lineNum
}
