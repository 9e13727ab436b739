package matching

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

func TestDroughtWindowStart(t *testing.T) {
	cycle := time.Date(2026, 3, 6, 0, 0, 0, 0, time.UTC)

	assert.Equal(t, cycle.Add(-5*7*24*time.Hour), DroughtWindowStart(cycle, 0, 0))
	assert.Equal(t, cycle.Add(-2*24*time.Hour), DroughtWindowStart(cycle, 24*time.Hour, 2))
}

func TestComputeDroughtPriority(t *testing.T) {
	week := 7 * 24 * time.Hour
	cycle := time.Date(2026, 3, 6, 0, 0, 0, 0, time.UTC)
	windowStart := DroughtWindowStart(cycle, week, 5)

	records := []DroughtRecord{
		{CandidateID: "late", CycleDate: cycle.Add(-1 * week)},
		{CandidateID: "early", CycleDate: cycle.Add(-4 * week)},
		{CandidateID: "early", CycleDate: cycle.Add(-1 * week)},
		{CandidateID: "tie-b", CycleDate: cycle.Add(-2 * week)},
		{CandidateID: "tie-a", CycleDate: cycle.Add(-2 * week)},
		{CandidateID: "expired", CycleDate: cycle.Add(-6 * week)},
		{CandidateID: "edge", CycleDate: windowStart},
	}

	got := ComputeDroughtPriority(records, windowStart)
	assert.Equal(t, []CandidateID{"edge", "early", "tie-a", "tie-b", "late"}, got)
}

func TestComputeDroughtPriority_Empty(t *testing.T) {
	assert.Empty(t, ComputeDroughtPriority(nil, testNow))
}

func TestDroughtIndices(t *testing.T) {
	pool := []Candidate{newCand("a", "x", 1), newCand("b", "x", 1), newCand("c", "x", 1)}

	got := DroughtIndices([]CandidateID{"c", "gone", "a"}, pool)
	assert.Equal(t, []int{2, 0}, got)
}
