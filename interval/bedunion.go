package interval

import (
	"bufio"
	"bytes"
	"fmt"
	"io"
	"math"
	"sort"
	"strconv"
	"strings"

	"github.com/grailbio/base/file"
	"github.com/grailbio/base/fileio"
	"github.com/grailbio/base/log"
	gunsafe "github.com/grailbio/base/unsafe"
	"github.com/grailbio/base/vcontext"
	"github.com/klauspost/compress/gzip"
	"github.com/pkg/errors"
)

// PosType is the type used to represent interval coordinates.  int32 is wide
// enough for every reference assembly in circulation.
type PosType int32

// PosTypeMax is the maximum value that can be represented by a PosType.
const PosTypeMax = math.MaxInt32

// ErrInvalidInterval is the cause of errors returned for intervals with
// coordinates that are negative, out of range, or in the wrong order.
var ErrInvalidInterval = errors.New("invalid interval")

// getTokens identifies up to the first len(tokens) tokens from curLine,
// returning the number of tokens saved.  Any (group of) characters <= ' ' is
// treated as a delimiter.
func getTokens(tokens [][]byte, curLine []byte) int {
	posEnd := 0
	lineLen := len(curLine)
	for tokenIdx := range tokens {
		// These simple loops are better than the standard library string-split
		// functions when length <20 tokens are expected.
		// Unfortunately, the compiler currently does not inline any function with
		// a loop no matter how trivial, so we can't justify making these 5-line
		// for loops functions of their own.
		pos := posEnd
		for ; pos != lineLen; pos++ {
			if curLine[pos] > ' ' {
				break
			}
		}
		if pos == lineLen {
			return tokenIdx
		}
		posEnd = pos
		for ; posEnd != lineLen; posEnd++ {
			if curLine[posEnd] <= ' ' {
				break
			}
		}
		tokens[tokenIdx] = curLine[pos:posEnd]
	}
	return len(tokens)
}

// searchPosTypes returns the index of x in a[], or the position where x would
// be inserted if x isn't in a (this could be len(a)).  It's exactly the same
// as sort.SearchInts(), except for PosType.
func searchPosTypes(a []PosType, x PosType) int {
	return sort.Search(len(a), func(i int) bool { return a[i] >= x })
}

// expsearchPosType performs "exponential search"
// (https://en.wikipedia.org/wiki/Exponential_search ), checking a[idx], then
// a[idx + 1], then a[idx + 3], then a[idx + 7], etc., and finishing with
// binary search once it's either found an element larger than the target or
// has hit the end of the slice.  It's usually a better choice than
// searchPosTypes when iterating.
func expsearchPosType(a []PosType, x PosType, idx int) int {
	nextIncr := 1
	startIdx := idx
	endIdx := len(a)
	for idx < endIdx {
		if a[idx] >= x {
			endIdx = idx
			break
		}
		startIdx = idx + 1
		idx += nextIncr
		nextIncr *= 2
	}
	// This is really just an inlined sort.Search call.  We spell it out since
	// startIdx is usually equal to endIdx, and the compiler doesn't inline
	// anything with a loop for now.
	for startIdx < endIdx {
		midIdx := int(uint(startIdx+endIdx) >> 1)
		if a[midIdx] >= x {
			endIdx = midIdx
		} else {
			startIdx = midIdx + 1
		}
	}
	return startIdx
}

// Entry represents a single half-open interval, with 0-based coordinates.
type Entry struct {
	RefName string
	Start0  PosType
	End     PosType
}

// NewEntry validates the given coordinates and returns the corresponding
// Entry.  The error, if any, has cause ErrInvalidInterval.
func NewEntry(refName string, start0, end PosType) (Entry, error) {
	if len(refName) == 0 {
		return Entry{}, errors.Wrap(ErrInvalidInterval, "empty reference name")
	}
	if (start0 < 0) || (end <= start0) || (end >= PosTypeMax) {
		return Entry{}, errors.Wrapf(ErrInvalidInterval, "%s:[%d, %d)", refName, start0, end)
	}
	return Entry{RefName: refName, Start0: start0, End: end}, nil
}

// BEDUnion represents a set of disjoint intervals, keyed by reference name.
// It is currently implemented as a collection of length-2N ascending
// sequences, where N is the number of intervals on one reference, the
// (0-based) start position of interval #k (numbering from zero) is in element
// [2k] and the end position is in element [2k+1].  Advantages of this
// representation over a length-N sequence of {start, end} structs include
// simpler set-algebra code, and reuse of standard []int32 binary and
// exponential search algorithms (which the compiler is more likely to optimize
// well).
type BEDUnion struct {
	// nameMap is a reference-name-keyed map with disjoint-interval-set values.
	// Always initialized, and never mutated after construction; derived unions
	// may share value slices with their parents.
	nameMap map[string][]PosType
	// lastRefIntervals points to the disjoint-interval-set for the most
	// recently queried reference.  This is a minor performance optimization.
	lastRefIntervals []PosType
	// lastRefName is the name of the last queried reference.  If it's
	// nonempty, it must be in sync with lastRefIntervals.
	lastRefName string
	// lastPosPlus1 is 1 plus the last spot-queried position.
	lastPosPlus1 PosType
	// lastIdx is searchPosTypes(lastRefIntervals, lastPosPlus1).  Cached to
	// accelerate sequential queries.
	lastIdx int
	// isSequential is true if all queries since the last reference change have
	// been in order of nondecreasing position.
	isSequential bool
}

func initBEDUnion() (bedUnion BEDUnion) {
	bedUnion.nameMap = make(map[string][]PosType)
	return
}

// ContainsByName checks whether the (0-based) interval [pos, pos+1) is
// contained within the BEDUnion, where the reference is specified by name.
// This mutates search state, so each goroutine must query its own Clone.
func (u *BEDUnion) ContainsByName(refName string, pos PosType) bool {
	posPlus1 := pos + 1
	if refName != u.lastRefName {
		u.lastRefName = refName
		u.lastRefIntervals = u.nameMap[refName]
		// Force use of searchPosTypes() on the first query for a reference.
		if u.lastRefIntervals == nil {
			return false
		}
		u.lastIdx = searchPosTypes(u.lastRefIntervals, posPlus1)
		u.lastPosPlus1 = posPlus1
		u.isSequential = true
		return u.lastIdx&1 == 1
	}
	if u.lastRefIntervals == nil {
		return false
	}
	if u.isSequential {
		if posPlus1 >= u.lastPosPlus1 {
			u.lastIdx = expsearchPosType(u.lastRefIntervals, posPlus1, u.lastIdx)
			u.lastPosPlus1 = posPlus1
			return u.lastIdx&1 == 1
		}
		u.isSequential = false
	}
	return searchPosTypes(u.lastRefIntervals, posPlus1)&1 == 1
}

// NewBEDUnionFromEntries initializes a BEDUnion from a []Entry given in any
// order.  Overlapping and touching intervals are merged, and empty entries
// are dropped, so the result is the same for any permutation or restatement
// of the same covered bases.
func NewBEDUnionFromEntries(entries []Entry) (bedUnion BEDUnion, err error) {
	bedUnion = initBEDUnion()
	sorted := make([]Entry, len(entries))
	copy(sorted, entries)
	sort.Slice(sorted, func(i, j int) bool {
		ei, ej := &sorted[i], &sorted[j]
		if ei.RefName != ej.RefName {
			return ei.RefName < ej.RefName
		}
		if ei.Start0 != ej.Start0 {
			return ei.Start0 < ej.Start0
		}
		return ei.End < ej.End
	})
	prevRef := ""
	var prevStart, prevEnd PosType
	var refIntervals []PosType
	for _, entry := range sorted {
		if entry.Start0 < 0 {
			err = errors.Wrapf(ErrInvalidInterval, "%s:[%d, %d): negative start coordinate", entry.RefName, entry.Start0, entry.End)
			return
		}
		if (entry.End < entry.Start0) || (entry.End >= PosTypeMax) {
			err = errors.Wrapf(ErrInvalidInterval, "%s:[%d, %d)", entry.RefName, entry.Start0, entry.End)
			return
		}
		if entry.End == entry.Start0 {
			continue
		}
		if entry.RefName != prevRef {
			// Save last interval, add to map.
			if prevRef != "" {
				bedUnion.nameMap[prevRef] = append(refIntervals, prevStart, prevEnd)
			}
			prevRef = entry.RefName
			refIntervals = nil
			prevStart = entry.Start0
			prevEnd = entry.End
			continue
		}
		if entry.Start0 > prevEnd {
			// New interval doesn't overlap or touch the previous one, so we can
			// save the previous one.
			refIntervals = append(refIntervals, prevStart, prevEnd)
			prevStart = entry.Start0
			prevEnd = entry.End
		} else if entry.End > prevEnd {
			// Intervals overlap or touch, merge them.
			prevEnd = entry.End
		}
	}
	if prevRef != "" {
		bedUnion.nameMap[prevRef] = append(refIntervals, prevStart, prevEnd)
	}
	return
}

// subtractEndpoints clips away the parts of a's intervals that overlap b's,
// where both slices use the sorted length-2N endpoint representation.
func subtractEndpoints(a, b []PosType) (out []PosType) {
	bIdx := 0
	for i := 0; i < len(a); i += 2 {
		start, end := a[i], a[i+1]
		for bIdx < len(b) && b[bIdx+1] <= start {
			bIdx += 2
		}
		cur := start
		for j := bIdx; j < len(b) && b[j] < end; j += 2 {
			if b[j] > cur {
				out = append(out, cur, b[j])
			}
			if b[j+1] > cur {
				cur = b[j+1]
			}
			if cur >= end {
				break
			}
		}
		if cur < end {
			out = append(out, cur, end)
		}
	}
	return
}

// intersectEndpoints returns the overlapping parts of a's and b's intervals,
// in the same representation.
func intersectEndpoints(a, b []PosType) (out []PosType) {
	i, j := 0, 0
	for i < len(a) && j < len(b) {
		start := a[i]
		if b[j] > start {
			start = b[j]
		}
		end := a[i+1]
		if b[j+1] < end {
			end = b[j+1]
		}
		if start < end {
			out = append(out, start, end)
		}
		if a[i+1] <= b[j+1] {
			i += 2
		} else {
			j += 2
		}
	}
	return
}

// Subtract returns the set difference u minus excl.  Intervals of u fully
// covered by excl disappear; partially covered ones are trimmed, possibly
// splitting in two.  References absent from excl carry over as is.
func (u *BEDUnion) Subtract(excl *BEDUnion) BEDUnion {
	diff := initBEDUnion()
	for refName, refIntervals := range u.nameMap {
		exclIntervals := excl.nameMap[refName]
		if len(exclIntervals) == 0 {
			diff.nameMap[refName] = refIntervals
			continue
		}
		if remaining := subtractEndpoints(refIntervals, exclIntervals); len(remaining) > 0 {
			diff.nameMap[refName] = remaining
		}
	}
	return diff
}

// Intersect returns the set intersection of u and other.
func (u *BEDUnion) Intersect(other *BEDUnion) BEDUnion {
	both := initBEDUnion()
	for refName, refIntervals := range u.nameMap {
		if otherIntervals := other.nameMap[refName]; len(otherIntervals) > 0 {
			if shared := intersectEndpoints(refIntervals, otherIntervals); len(shared) > 0 {
				both.nameMap[refName] = shared
			}
		}
	}
	return both
}

// TotalBases returns the number of bases covered by the union, summed across
// all references.
func (u *BEDUnion) TotalBases() (n int64) {
	for _, refIntervals := range u.nameMap {
		for i := 0; i < len(refIntervals); i += 2 {
			n += int64(refIntervals[i+1] - refIntervals[i])
		}
	}
	return
}

// RefNames returns the names of all references with at least one covered
// base, in sorted order.
func (u *BEDUnion) RefNames() []string {
	names := make([]string, 0, len(u.nameMap))
	for refName := range u.nameMap {
		names = append(names, refName)
	}
	sort.Strings(names)
	return names
}

// Entries returns the union's intervals as a sorted []Entry.
func (u *BEDUnion) Entries() (entries []Entry) {
	for _, refName := range u.RefNames() {
		refIntervals := u.nameMap[refName]
		for i := 0; i < len(refIntervals); i += 2 {
			entries = append(entries, Entry{RefName: refName, Start0: refIntervals[i], End: refIntervals[i+1]})
		}
	}
	return
}

// Clone returns a new BEDUnion which shares the interval set, but has its own
// search state.
func (u *BEDUnion) Clone() (bedUnion BEDUnion) {
	bedUnion.nameMap = u.nameMap
	bedUnion.lastRefIntervals = nil
	bedUnion.lastRefName = ""
	return
}

// NewBEDOpts defines behavior of this package's BED-loading function(s).
type NewBEDOpts struct {
	// OneBasedInput interprets the BED interval boundaries as one-based [start,
	// end] instead of the usual zero-based [start, end).
	OneBasedInput bool
}

var (
	browserPrefix = []byte("browser")
	trackPrefix   = []byte("track")
)

func scanBEDEntries(scanner *bufio.Scanner, opts NewBEDOpts) (entries []Entry, err error) {
	var startSubtract int
	if opts.OneBasedInput {
		startSubtract++
	}

	// This could also be inside the for loop; minor tradeoff between extra
	// zero-reinitialization and positive side effects of better locality.
	var tokens [3][]byte

	lineIdx := 0
	for scanner.Scan() {
		lineIdx++
		// Bytes() in place of Text() since it doesn't allocate.
		curLine := scanner.Bytes()
		nToken := getTokens(tokens[:], curLine)
		if nToken == 0 {
			continue
		}
		if (tokens[0][0] == '#') || bytes.Equal(tokens[0], browserPrefix) || bytes.Equal(tokens[0], trackPrefix) {
			continue
		}
		if nToken != 3 {
			err = fmt.Errorf("interval.scanBEDEntries: line %d has fewer tokens than expected", lineIdx)
			return
		}

		var parsedStart int
		if parsedStart, err = strconv.Atoi(gunsafe.BytesToString(tokens[1])); err != nil {
			return
		}
		parsedStart -= startSubtract
		if parsedStart < 0 {
			err = fmt.Errorf("interval.scanBEDEntries: negative start coordinate %v on line %d", tokens[1], lineIdx)
			return
		}

		var parsedEnd int
		if parsedEnd, err = strconv.Atoi(gunsafe.BytesToString(tokens[2])); err != nil {
			return
		}
		if (parsedEnd < parsedStart) || (parsedEnd >= PosTypeMax) {
			err = fmt.Errorf("interval.scanBEDEntries: invalid coordinate pair on line %d", lineIdx)
			return
		}
		// Must create a copy of tokens[0] contents, since it refers to bytes on
		// curLine that will be overwritten soon.
		entries = append(entries, Entry{
			RefName: string(tokens[0]),
			Start0:  PosType(parsedStart),
			End:     PosType(parsedEnd),
		})
	}
	err = scanner.Err()
	return
}

// NewBEDUnion loads the intervals from an interval-BED, in any row order,
// merging touching/overlapping intervals and eliminating empty ones in the
// process.  Lines starting with '#', 'browser', or 'track' are skipped, and
// columns past the third are ignored.  A BEDUnion is returned.
func NewBEDUnion(reader io.Reader, opts NewBEDOpts) (bedUnion BEDUnion, err error) {
	// Note that Scanner does not handle very long lines unless we specify an
	// adequate buffer size in advance; it does not auto-resize.
	// Shouldn't matter for BED files, though.
	scanner := bufio.NewScanner(reader)
	var entries []Entry
	if entries, err = scanBEDEntries(scanner, opts); err != nil {
		return
	}
	if bedUnion, err = NewBEDUnionFromEntries(entries); err != nil {
		return
	}
	log.Printf("BED loaded, %d base(s) covered.", bedUnion.TotalBases())
	return
}

// NewBEDUnionFromPath is a wrapper for NewBEDUnion that takes a path instead
// of an io.Reader.
func NewBEDUnionFromPath(path string, opts NewBEDOpts) (bedUnion BEDUnion, err error) {
	ctx := vcontext.Background()
	var infile file.File
	if infile, err = file.Open(ctx, path); err != nil {
		return
	}
	defer func() {
		if cerr := infile.Close(ctx); cerr != nil && err == nil {
			err = cerr
		}
	}()
	reader := io.Reader(infile.Reader(ctx))
	switch fileio.DetermineType(path) {
	case fileio.Gzip:
		if reader, err = gzip.NewReader(reader); err != nil {
			return
		}
	}
	return NewBEDUnion(reader, opts)
}

// ParseRegionString parses a region string of one of the forms
//   [contig ID]:[1-based first pos]-[last pos]
//   [contig ID]:[1-based pos]
//   [contig ID]
// returning a contig ID and 0-based interval boundaries.  The interval
// [0, PosTypeMax - 1] is returned if there is no positional restriction.
func ParseRegionString(region string) (result Entry, err error) {
	if len(region) == 0 {
		err = fmt.Errorf("interval.ParseRegionString: empty region string")
		return
	}
	colonPos := strings.IndexByte(region, ':')
	if colonPos == -1 {
		result.RefName = region
		result.Start0 = 0
		result.End = PosTypeMax - 1
		return
	}
	if colonPos == 0 {
		err = fmt.Errorf("interval.ParseRegionString: empty contig ID")
		return
	}
	result.RefName = region[0:colonPos]
	rangeStr := region[colonPos+1:]
	dashPos := strings.IndexByte(rangeStr, '-')
	if dashPos == -1 {
		var pos1 int64
		if pos1, err = strconv.ParseInt(rangeStr, 10, 32); err != nil {
			return
		}
		if pos1 <= 0 {
			err = fmt.Errorf("interval.ParseRegionString: position %v in region string out of range", rangeStr)
			return
		}
		result.Start0 = PosType(pos1 - 1)
		result.End = PosType(pos1)
		return
	}
	start1Str := rangeStr[:dashPos]
	endStr := rangeStr[dashPos+1:]
	var start1 int
	if start1, err = strconv.Atoi(start1Str); err != nil {
		return
	}
	if start1 <= 0 {
		err = fmt.Errorf("interval.ParseRegionString: position %v in region string out of range", start1Str)
		return
	}
	var end0 int
	if end0, err = strconv.Atoi(endStr); err != nil {
		return
	}
	// We may as well prohibit end0 == PosTypeMax so that the interval-array
	// is guaranteed to contain no repeats.  This means ParseInt(., 10, 32)
	// doesn't quite do the right thing, so Atoi is used above.
	if end0 < start1 || end0 >= PosTypeMax {
		err = fmt.Errorf("interval.ParseRegionString: invalid range string %v", rangeStr)
		return
	}
	result.Start0 = PosType(start1 - 1)
	result.End = PosType(end0)
	return
}
