// Package fasta contains a streaming parser for FASTA files.  Briefly, FASTA
// files consist of a number of named sequences whose bases may be interrupted
// by newlines.  For example:
//
// >chr7
// ACGTAC
// GAGGAC
// GCG
// >chr8
// ACGT
//
// Note: Sequence names are defined to be the stretch of characters excluding
// spaces immediately after '>'.  Any text appearing after a space is ignored.
// For example, '>chr1 A viral sequence' becomes 'chr1'.
package fasta

import (
	"bufio"
	"io"
	"strings"

	"github.com/pkg/errors"
)

const (
	// initScanBytes is the initial size of the line-scanning buffer.
	initScanBytes = 1 << 16
	// maxScanBytes bounds a single line.  Unwrapped references put a whole
	// sequence on one line, so this must accommodate the largest contig.
	maxScanBytes = 1 << 29
)

// ErrInvalid is returned when an invalid FASTA file is encountered.
var ErrInvalid = errors.New("invalid FASTA file")

var errEOF = errors.New("eof")

// Scanner streams a FASTA file line by line, tracking which sequence each
// line belongs to, without ever materializing a whole sequence.  It suits
// single-pass consumers; it never seeks.  Scanners are not threadsafe.
type Scanner struct {
	b    *bufio.Scanner
	name string
	line []byte
	err  error
}

// NewScanner constructs a Scanner that reads raw FASTA data from the
// provided reader.
func NewScanner(r io.Reader) *Scanner {
	b := bufio.NewScanner(r)
	b.Buffer(make([]byte, 0, initScanBytes), maxScanBytes)
	return &Scanner{b: b}
}

// Scan advances to the next sequence line, returning whether one is
// available.  Header lines are consumed along the way, updating Name.  Once
// Scan returns false, it never returns true again; check Err to distinguish
// end of input from a malformed file or read error.
func (s *Scanner) Scan() bool {
	if s.err != nil {
		return false
	}
	for s.b.Scan() {
		line := s.b.Bytes()
		if len(line) > 0 && line[len(line)-1] == '\r' {
			line = line[:len(line)-1]
		}
		if len(line) == 0 {
			continue
		}
		if line[0] == '>' {
			name := string(line[1:])
			if i := strings.IndexByte(name, ' '); i >= 0 {
				name = name[:i]
			}
			if name == "" {
				s.err = errors.Wrap(ErrInvalid, "empty sequence name")
				return false
			}
			s.name = name
			continue
		}
		if s.name == "" {
			s.err = errors.Wrap(ErrInvalid, "sequence data before first header")
			return false
		}
		s.line = line
		return true
	}
	if s.err = s.b.Err(); s.err == nil {
		s.err = errEOF
	}
	return false
}

// Name returns the name of the sequence the current line belongs to.
func (s *Scanner) Name() string {
	return s.name
}

// Line returns the current sequence line.  The returned bytes are only valid
// until the next Scan call.
func (s *Scanner) Line() []byte {
	return s.line
}

// Err returns the scanning error, if any.
func (s *Scanner) Err() error {
	if s.err == errEOF {
		return nil
	}
	return s.err
}
