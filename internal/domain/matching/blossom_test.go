package matching

import (
	"math"
	"math/rand"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestBlossom_PrefersCardinalityOverWeight(t *testing.T) {
	// 0-1-2-3: the light middle edge alone would leave two vertices unmatched.
	edges := []Edge{
		{U: 0, V: 1, Weight: 5},
		{U: 1, V: 2, Weight: 1},
		{U: 2, V: 3, Weight: 5},
	}

	pairs, err := BlossomSolver{}.Solve(4, edges)
	require.NoError(t, err)
	assert.ElementsMatch(t, []Pair{{U: 0, V: 1}, {U: 2, V: 3}}, pairs)
}

func TestBlossom_MinimizesWeight(t *testing.T) {
	edges := []Edge{
		{U: 0, V: 1, Weight: 1},
		{U: 2, V: 3, Weight: 1},
		{U: 0, V: 2, Weight: 10},
		{U: 1, V: 3, Weight: 10},
		{U: 0, V: 3, Weight: 0.1},
		{U: 1, V: 2, Weight: 0.1},
	}

	pairs, err := BlossomSolver{}.Solve(4, edges)
	require.NoError(t, err)
	assert.ElementsMatch(t, []Pair{{U: 0, V: 3}, {U: 1, V: 2}}, pairs)
}

func TestBlossom_OddCycle(t *testing.T) {
	// Triangle with a pendant vertex forces a blossom to form and expand.
	edges := []Edge{
		{U: 0, V: 1, Weight: 1},
		{U: 1, V: 2, Weight: 1},
		{U: 0, V: 2, Weight: 1},
		{U: 2, V: 3, Weight: 50},
	}

	pairs, err := BlossomSolver{}.Solve(4, edges)
	require.NoError(t, err)
	assert.ElementsMatch(t, []Pair{{U: 0, V: 1}, {U: 2, V: 3}}, pairs)
}

func TestBlossom_EmptyAndIsolated(t *testing.T) {
	pairs, err := BlossomSolver{}.Solve(3, nil)
	require.NoError(t, err)
	assert.Empty(t, pairs)

	pairs, err = BlossomSolver{}.Solve(5, []Edge{{U: 1, V: 3, Weight: 2}})
	require.NoError(t, err)
	assert.Equal(t, []Pair{{U: 1, V: 3}}, pairs)
}

func TestBlossom_RejectsInvalidInput(t *testing.T) {
	tests := []struct {
		name  string
		edges []Edge
	}{
		{"self loop", []Edge{{U: 1, V: 1, Weight: 1}}},
		{"out of range", []Edge{{U: 0, V: 9, Weight: 1}}},
		{"negative endpoint", []Edge{{U: -1, V: 0, Weight: 1}}},
		{"nan weight", []Edge{{U: 0, V: 1, Weight: math.NaN()}}},
		{"inf weight", []Edge{{U: 0, V: 1, Weight: math.Inf(1)}}},
		{"duplicate", []Edge{{U: 0, V: 1, Weight: 1}, {U: 1, V: 0, Weight: 2}}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := BlossomSolver{}.Solve(3, tt.edges)
			assert.ErrorIs(t, err, ErrInvalidGraph)
		})
	}
}

func TestBlossom_MatchesBruteForce(t *testing.T) {
	rng := rand.New(rand.NewSource(42))

	for iter := 0; iter < 300; iter++ {
		n := 2 + rng.Intn(7)
		var edges []Edge
		for u := 0; u < n; u++ {
			for v := u + 1; v < n; v++ {
				if rng.Float64() < 0.55 {
					w := math.Round(rng.Float64()*1000) / 10
					edges = append(edges, Edge{U: u, V: v, Weight: math.Max(MinEdgeWeight, w)})
				}
			}
		}

		pairs, err := BlossomSolver{}.Solve(n, edges)
		require.NoError(t, err)
		require.NoError(t, VerifyMatching(n, edges, pairs))

		wantCard, wantWeight := bruteForce(n, edges)
		weights := edgeWeights(edges)
		var gotWeight float64
		for _, p := range pairs {
			gotWeight += weights[orderedPair(p.U, p.V)]
		}

		require.Equal(t, wantCard, len(pairs), "iteration %d: cardinality", iter)
		require.InDelta(t, wantWeight, gotWeight, 1e-6, "iteration %d: weight", iter)
	}
}

// bruteForce returns the maximum cardinality and the minimum weight among
// matchings of that cardinality.
func bruteForce(n int, edges []Edge) (int, float64) {
	used := make([]bool, n)
	bestCard, bestWeight := 0, 0.0

	var rec func(k, card int, weight float64)
	rec = func(k, card int, weight float64) {
		if k == len(edges) {
			if card > bestCard || (card == bestCard && weight < bestWeight) {
				bestCard, bestWeight = card, weight
			}
			return
		}
		rec(k+1, card, weight)
		e := edges[k]
		if !used[e.U] && !used[e.V] {
			used[e.U], used[e.V] = true, true
			rec(k+1, card+1, weight+e.Weight)
			used[e.U], used[e.V] = false, false
		}
	}
	rec(0, 0, 0)
	return bestCard, bestWeight
}
