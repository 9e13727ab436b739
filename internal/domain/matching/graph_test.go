package matching

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestEdgeWeight_Floor(t *testing.T) {
	a := newCand("a", "x", 70)
	b := newCand("b", "x", 70)

	assert.Equal(t, MinEdgeWeight, EdgeWeight(&a, &b, testNow))
}

func TestEdgeWeight_AgeDiscount(t *testing.T) {
	half := testNow.Add(-year / 2)
	old := testNow.Add(-5 * year)

	a := newCand("a", "x", 20, registered(half))
	b := newCand("b", "x", 60, registered(half))
	// avg age = 0.5y, discount = 0.15
	assert.InDelta(t, 40*0.85, EdgeWeight(&a, &b, testNow), 1e-9)

	c := newCand("c", "x", 20, registered(old))
	d := newCand("d", "x", 60, registered(old))
	assert.InDelta(t, 40*(1-MaxAgeDiscount), EdgeWeight(&c, &d, testNow), 1e-9)
}

func TestEdgeWeight_ClockSkew(t *testing.T) {
	future := testNow.Add(48 * time.Hour)
	a := newCand("a", "x", 10, registered(future))
	b := newCand("b", "x", 30, registered(future))

	assert.InDelta(t, 20.0, EdgeWeight(&a, &b, testNow), 1e-9)
}

func TestMatchScore(t *testing.T) {
	a := newCand("a", "x", 90)
	b := newCand("b", "x", 65)
	assert.Equal(t, 75.0, MatchScore(&a, &b))
	assert.Equal(t, 25.0, ScoreDiff(&a, &b))
}

func TestBuildEdges(t *testing.T) {
	cands := []Candidate{
		newCand("a", "male", 50, wantsGender("female")),
		newCand("b", "male", 51),
		newCand("c", "female", 60),
		newCand("d", "female", 55),
	}
	ledger := NewLedger([]HistoricalPair{{Key: NewPairKey("a", "d")}})

	edges := BuildEdges(cands, ledger, Predicate{}, testNow)

	type uv struct{ u, v int }
	var got []uv
	for _, e := range edges {
		require.Less(t, e.U, e.V)
		got = append(got, uv{e.U, e.V})
		assert.GreaterOrEqual(t, e.Weight, MinEdgeWeight)
	}
	// a-b incompatible, a-d historical.
	assert.Equal(t, []uv{{0, 2}, {1, 2}, {1, 3}, {2, 3}}, got)

	again := BuildEdges(cands, ledger, Predicate{}, testNow)
	assert.Equal(t, edges, again)
}
