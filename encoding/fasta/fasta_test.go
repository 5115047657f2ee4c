package fasta

import (
	"strings"
	"testing"

	"github.com/pkg/errors"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func scanAll(contents string) (names []string, lines []string, err error) {
	s := NewScanner(strings.NewReader(contents))
	for s.Scan() {
		names = append(names, s.Name())
		lines = append(lines, string(s.Line()))
	}
	return names, lines, s.Err()
}

func TestScanner(t *testing.T) {
	names, lines, err := scanAll(">chr7\nACGTAC\nGAGGAC\nGCG\n>chr8\nACGT\n")
	require.NoError(t, err)
	assert.Equal(t, []string{"chr7", "chr7", "chr7", "chr8"}, names)
	assert.Equal(t, []string{"ACGTAC", "GAGGAC", "GCG", "ACGT"}, lines)
}

func TestScannerNameAfterSpace(t *testing.T) {
	names, _, err := scanAll(">chr1 A viral sequence\nACGT\n")
	require.NoError(t, err)
	assert.Equal(t, []string{"chr1"}, names)
}

func TestScannerBlankLinesAndCRLF(t *testing.T) {
	names, lines, err := scanAll(">chr1\r\nAC\r\n\r\nGT\r\n")
	require.NoError(t, err)
	assert.Equal(t, []string{"chr1", "chr1"}, names)
	assert.Equal(t, []string{"AC", "GT"}, lines)
}

func TestScannerEmptySequence(t *testing.T) {
	names, _, err := scanAll(">empty\n>chr2\nAC\n")
	require.NoError(t, err)
	assert.Equal(t, []string{"chr2"}, names)
}

func TestScannerInvalid(t *testing.T) {
	_, _, err := scanAll("ACGT\n>chr1\nACGT\n")
	require.Error(t, err)
	assert.Equal(t, ErrInvalid, errors.Cause(err))

	_, _, err = scanAll(">\nACGT\n")
	require.Error(t, err)
	assert.Equal(t, ErrInvalid, errors.Cause(err))
}

func TestScannerEmptyInput(t *testing.T) {
	_, _, err := scanAll("")
	require.NoError(t, err)
}
