package matching

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func optimizerFixture() ([]Candidate, []MatchedPair) {
	cands := []Candidate{
		newCand("a1", "x", 10),
		newCand("b1", "x", 90),
		newCand("a2", "x", 12),
		newCand("b2", "x", 88),
	}
	pairs := []MatchedPair{
		{U: 0, V: 1, Weight: 80, Algorithm: AlgorithmGreedy},
		{U: 2, V: 3, Weight: 76, Algorithm: AlgorithmGreedy},
	}
	return cands, pairs
}

func TestOptimizer_Swaps(t *testing.T) {
	cands, pairs := optimizerFixture()
	opt := Optimizer{MaxPasses: 10, Ledger: NewLedger(nil), Now: testNow}

	out, swaps := opt.Optimize(cands, pairs)

	assert.Equal(t, 1, swaps)
	require.Len(t, out, 2)
	assert.Equal(t, MatchedPair{U: 0, V: 2, Weight: 2, Algorithm: AlgorithmGreedy}, out[0])
	assert.Equal(t, MatchedPair{U: 1, V: 3, Weight: 2, Algorithm: AlgorithmGreedy}, out[1])

	// Input is left untouched.
	assert.Equal(t, 80.0, pairs[0].Weight)
}

func TestOptimizer_RespectsHistory(t *testing.T) {
	cands, pairs := optimizerFixture()
	ledger := NewLedger([]HistoricalPair{{Key: NewPairKey("a1", "a2")}})
	opt := Optimizer{Ledger: ledger, Now: testNow}

	out, swaps := opt.Optimize(cands, pairs)

	// The only other option ties the current weight and is not taken.
	assert.Zero(t, swaps)
	assert.Equal(t, pairs, out)
}

func TestOptimizer_RespectsCompatibility(t *testing.T) {
	cands, pairs := optimizerFixture()
	cands[0].GenderPreference = []string{"y"}
	cands[0].Gender = "y"
	cands[1].Gender = "y"
	cands[2].Gender = "z"
	cands[3].Gender = "y"
	opt := Optimizer{Ledger: NewLedger(nil), Now: testNow}

	out, swaps := opt.Optimize(cands, pairs)

	for _, p := range out {
		assert.True(t, Predicate{}.Compatible(&cands[p.U], &cands[p.V]))
	}
	assert.Zero(t, swaps)
}

func TestOptimizer_PicksBetterOfTwoSwaps(t *testing.T) {
	cands := []Candidate{
		newCand("a1", "x", 10),
		newCand("b1", "x", 50),
		newCand("a2", "x", 52),
		newCand("b2", "x", 11),
	}
	// (a1,b1)=40 + (a2,b2)=41 = 81
	// (a1,a2)+(b1,b2) = 42+39 = 81, (a1,b2)+(a2,b1) = 1+2 = 3
	pairs := []MatchedPair{
		{U: 0, V: 1, Weight: 40, Algorithm: AlgorithmBlossom},
		{U: 2, V: 3, Weight: 41, Algorithm: AlgorithmDroughtPriority},
	}

	out, swaps := Optimizer{Ledger: NewLedger(nil), Now: testNow}.Optimize(cands, pairs)

	assert.Equal(t, 1, swaps)
	assert.Equal(t, MatchedPair{U: 0, V: 3, Weight: 1, Algorithm: AlgorithmBlossom}, out[0])
	assert.Equal(t, MatchedPair{U: 2, V: 1, Weight: 2, Algorithm: AlgorithmDroughtPriority}, out[1])
}

func TestOptimizer_Empty(t *testing.T) {
	out, swaps := Optimizer{}.Optimize(nil, nil)
	assert.Empty(t, out)
	assert.Zero(t, swaps)
}
