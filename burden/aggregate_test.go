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
package burden_test

import (
	"math/rand"
	"testing"

	"github.com/grailbio/testutil/expect"
	"github.com/grailbio/tmb/burden"
	"github.com/grailbio/tmb/encoding/vcf"
)

func acceptedAt(refName string, pos1 burden.PosType, ref, alt string) burden.Classification {
	return burden.Classification{
		Candidate: vcf.Candidate{RefName: refName, Pos1: pos1, Ref: ref, Alt: alt},
		Verdict:   burden.Accepted,
	}
}

func rejected(verdict burden.Verdict, reason string) burden.Classification {
	return burden.Classification{
		Candidate: vcf.Candidate{RefName: "chr1", Pos1: 1, Ref: "A", Alt: "T"},
		Verdict:   verdict,
		Reason:    reason,
	}
}

func TestAggregatorDedup(t *testing.T) {
	agg := burden.NewAggregator()
	agg.Add(acceptedAt("chr1", 100, "A", "T"))
	agg.Add(acceptedAt("chr1", 100, "A", "T"))
	agg.Add(acceptedAt("chr1", 100, "A", "G")) // same site, different alt
	agg.Add(acceptedAt("chr2", 100, "A", "T")) // same coordinates, other contig
	agg.Add(rejected(burden.RejectedByFilter, burden.ReasonFilterTag))
	agg.Add(rejected(burden.RejectedByFilter, burden.ReasonFilterTag))
	agg.AddMalformed()

	counts := agg.Counts()
	expect.EQ(t, counts.Examined, int64(6))
	expect.EQ(t, counts.Accepted, int64(4))
	expect.EQ(t, counts.RejectedByFilter, int64(2))
	expect.EQ(t, counts.Malformed, int64(1))

	result := agg.Finalize("test.vcf", 1000000)
	expect.EQ(t, result.Qualifying, int64(3))
	expect.EQ(t, result.DuplicateCalls, int64(1))
	expect.EQ(t, result.MutPerMb, 3.0)
	expect.EQ(t, result.Mutations, []burden.Mutation{
		{RefName: "chr1", Pos1: 100, Ref: "A", Alt: "G"},
		{RefName: "chr1", Pos1: 100, Ref: "A", Alt: "T"},
		{RefName: "chr2", Pos1: 100, Ref: "A", Alt: "T"},
	})
}

func TestAggregatorMutationsSorted(t *testing.T) {
	muts := []burden.Mutation{
		{RefName: "chr1", Pos1: 5, Ref: "A", Alt: "T"},
		{RefName: "chr1", Pos1: 5, Ref: "AC", Alt: "A"},
		{RefName: "chr1", Pos1: 900, Ref: "G", Alt: "C"},
		{RefName: "chr10", Pos1: 1, Ref: "T", Alt: "A"},
		{RefName: "chr2", Pos1: 1, Ref: "T", Alt: "A"},
	}
	// Insertion order must not matter.
	rng := rand.New(rand.NewSource(1))
	for iter := 0; iter < 10; iter++ {
		shuffled := append([]burden.Mutation{}, muts...)
		rng.Shuffle(len(shuffled), func(i, j int) {
			shuffled[i], shuffled[j] = shuffled[j], shuffled[i]
		})
		agg := burden.NewAggregator()
		for _, m := range shuffled {
			agg.Add(acceptedAt(m.RefName, m.Pos1, m.Ref, m.Alt))
		}
		expect.EQ(t, agg.Mutations(), muts, "iter=%d", iter)
	}
}

func TestAggregatorDigestOrderIndependent(t *testing.T) {
	add := func(agg *burden.Aggregator, order []int) {
		muts := []burden.Classification{
			acceptedAt("chr1", 100, "A", "T"),
			acceptedAt("chr1", 200, "C", "G"),
			acceptedAt("chr2", 100, "CA", "C"),
		}
		for _, i := range order {
			agg.Add(muts[i])
		}
	}
	a := burden.NewAggregator()
	add(a, []int{0, 1, 2})
	b := burden.NewAggregator()
	add(b, []int{2, 0, 1})
	ra := a.Finalize("a.vcf", 1000000)
	rb := b.Finalize("b.vcf", 1000000)
	expect.NEQ(t, ra.Digest, uint64(0))
	expect.EQ(t, rb.Digest, ra.Digest)

	// A different set digests differently.
	c := burden.NewAggregator()
	add(c, []int{0, 1})
	expect.NEQ(t, c.Finalize("c.vcf", 1000000).Digest, ra.Digest)

	// Duplicates do not perturb the digest.
	d := burden.NewAggregator()
	add(d, []int{0, 0, 1, 2, 2, 2})
	expect.EQ(t, d.Finalize("d.vcf", 1000000).Digest, ra.Digest)
}

func TestAggregatorMerge(t *testing.T) {
	// Everything in one aggregator.
	whole := burden.NewAggregator()
	whole.Add(acceptedAt("chr1", 100, "A", "T"))
	whole.Add(acceptedAt("chr1", 200, "C", "G"))
	whole.Add(acceptedAt("chr1", 200, "C", "G"))
	whole.Add(acceptedAt("chr2", 50, "G", "GA"))
	whole.Add(rejected(burden.RejectedByRegion, burden.ReasonOffTarget))
	whole.AddMalformed()

	// The same stream split across two workers, with the repeated call
	// landing on the other side of the boundary.
	left := burden.NewAggregator()
	left.Add(acceptedAt("chr1", 100, "A", "T"))
	left.Add(acceptedAt("chr1", 200, "C", "G"))
	right := burden.NewAggregator()
	right.Add(acceptedAt("chr1", 200, "C", "G"))
	right.Add(acceptedAt("chr2", 50, "G", "GA"))
	right.Add(rejected(burden.RejectedByRegion, burden.ReasonOffTarget))
	right.AddMalformed()
	left.Merge(right)

	wantResult := whole.Finalize("x.vcf", 2000000)
	gotResult := left.Finalize("x.vcf", 2000000)
	expect.EQ(t, gotResult, wantResult)
	expect.EQ(t, gotResult.Qualifying, int64(3))
	expect.EQ(t, gotResult.DuplicateCalls, int64(1))
	expect.EQ(t, gotResult.Counts.Examined, int64(5))
	expect.EQ(t, gotResult.Counts.Malformed, int64(1))
}

func TestAggregatorFinalizeRate(t *testing.T) {
	agg := burden.NewAggregator()
	for pos1 := burden.PosType(1); pos1 <= 10; pos1++ {
		agg.Add(acceptedAt("chr1", pos1*1000, "A", "T"))
	}
	result := agg.Finalize("rate.vcf", 2000000)
	expect.EQ(t, result.Qualifying, int64(10))
	expect.EQ(t, result.EffectiveBases, int64(2000000))
	expect.EQ(t, result.MutPerMb, 5.0)
}

func TestAggregatorEmpty(t *testing.T) {
	agg := burden.NewAggregator()
	result := agg.Finalize("empty.vcf", 1000000)
	expect.EQ(t, result.Qualifying, int64(0))
	expect.EQ(t, result.DuplicateCalls, int64(0))
	expect.EQ(t, result.MutPerMb, 0.0)
	expect.EQ(t, result.Digest, uint64(0))
	expect.EQ(t, len(result.Mutations), 0)
}
