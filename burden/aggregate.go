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
	"encoding/binary"
	"hash"
	"strings"

	"blainsmith.com/go/seahash"
	"github.com/biogo/store/llrb"
	"github.com/grailbio/base/unsafe"
)

// Mutation identifies one accepted mutation: contig, 1-based position,
// reference bases, alternate bases.
type Mutation struct {
	RefName string
	Pos1    PosType
	Ref     string
	Alt     string
}

// Compare orders mutations by (RefName, Pos1, Ref, Alt) for use in llrb.
func (m Mutation) Compare(c2 llrb.Comparable) int {
	m2 := c2.(Mutation)
	if d := strings.Compare(m.RefName, m2.RefName); d != 0 {
		return d
	}
	if d := m.Pos1 - m2.Pos1; d != 0 {
		return int(d)
	}
	if d := strings.Compare(m.Ref, m2.Ref); d != 0 {
		return d
	}
	return strings.Compare(m.Alt, m2.Alt)
}

// Aggregator accumulates classified candidates for one VCF: outcome
// tallies, the deduplicated accepted-mutation set, and an order-independent
// digest of that set.  Merge is commutative and associative, so per-worker
// aggregators combine into the same result regardless of how the input was
// batched.
//
// An Aggregator is not safe for concurrent use.
type Aggregator struct {
	counts     Counts
	accepted   llrb.Tree
	duplicates int64
	digest     uint64
	h          hash.Hash64
}

// NewAggregator returns an empty Aggregator.
func NewAggregator() *Aggregator {
	return &Aggregator{h: seahash.New()}
}

// Add records one classified candidate.  An accepted candidate restating a
// mutation already in the accepted set counts as a duplicate call instead
// of a second qualifying mutation.
func (a *Aggregator) Add(c Classification) {
	a.counts.tally(c.Verdict)
	if c.Verdict != Accepted {
		return
	}
	a.insert(Mutation{
		RefName: c.Candidate.RefName,
		Pos1:    c.Candidate.Pos1,
		Ref:     c.Candidate.Ref,
		Alt:     c.Candidate.Alt,
	})
}

// AddMalformed records one unparseable input line.
func (a *Aggregator) AddMalformed() {
	a.counts.Malformed++
}

// Counts returns the tallies accumulated so far.
func (a *Aggregator) Counts() Counts {
	return a.counts
}

func (a *Aggregator) insert(m Mutation) {
	if a.accepted.Get(m) != nil {
		a.duplicates++
		return
	}
	a.accepted.Insert(m)
	a.digest += a.hashMutation(m)
}

var mutationFieldSep = []byte{0}

// hashMutation hashes one mutation key.  Per-mutation hashes are summed mod
// 2^64 into the digest, so the digest does not depend on arrival order.
func (a *Aggregator) hashMutation(m Mutation) uint64 {
	pos := [8]byte{}
	binary.LittleEndian.PutUint64(pos[:], uint64(m.Pos1))
	a.h.Reset()
	a.h.Write(pos[:])
	a.h.Write(unsafe.StringToBytes(m.RefName))
	a.h.Write(mutationFieldSep)
	a.h.Write(unsafe.StringToBytes(m.Ref))
	a.h.Write(mutationFieldSep)
	a.h.Write(unsafe.StringToBytes(m.Alt))
	return a.h.Sum64()
}

// Merge folds o into a.  A mutation accepted on both sides counts once,
// with the extra acceptance tallied as a duplicate call.
func (a *Aggregator) Merge(o *Aggregator) {
	a.counts = a.counts.Merge(o.counts)
	a.duplicates += o.duplicates
	o.accepted.Do(func(c llrb.Comparable) (done bool) {
		a.insert(c.(Mutation))
		return
	})
}

// Mutations returns the deduplicated accepted mutations in
// (RefName, Pos1, Ref, Alt) order.
func (a *Aggregator) Mutations() []Mutation {
	muts := make([]Mutation, 0, a.accepted.Len())
	a.accepted.Do(func(c llrb.Comparable) (done bool) {
		muts = append(muts, c.(Mutation))
		return
	})
	return muts
}

// Result is the outcome of evaluating one VCF against one effective target
// region.
type Result struct {
	// Path is the VCF the result describes.
	Path string
	// Counts holds the raw per-candidate tallies.
	Counts Counts
	// Qualifying is the number of distinct accepted mutations.
	Qualifying int64
	// DuplicateCalls is the number of accepted candidates dropped by
	// deduplication, i.e. Counts.Accepted - Qualifying.
	DuplicateCalls int64
	// EffectiveBases is the size of the effective target region.
	EffectiveBases int64
	// MutPerMb is the burden: Qualifying per million effective bases.
	MutPerMb float64
	// Digest is an order-independent checksum of the accepted mutation
	// set.
	Digest uint64
	// Mutations lists the accepted set in (RefName, Pos1, Ref, Alt) order.
	Mutations []Mutation
}

// Finalize computes the per-VCF result.  effectiveBases must be positive;
// the caller checks the denominator before any VCF is read.
func (a *Aggregator) Finalize(path string, effectiveBases int64) Result {
	qualifying := int64(a.accepted.Len())
	return Result{
		Path:           path,
		Counts:         a.counts,
		Qualifying:     qualifying,
		DuplicateCalls: a.duplicates,
		EffectiveBases: effectiveBases,
		MutPerMb:       float64(qualifying) / (float64(effectiveBases) / 1e6),
		Digest:         a.digest,
		Mutations:      a.Mutations(),
	}
}
