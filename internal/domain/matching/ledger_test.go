package matching

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestPairKey_Canonical(t *testing.T) {
	assert.Equal(t, NewPairKey("b", "a"), NewPairKey("a", "b"))
	assert.Equal(t, "a_b", NewPairKey("b", "a").String())
}

func TestLedger(t *testing.T) {
	l := NewLedger([]HistoricalPair{{Key: NewPairKey("u2", "u1")}})

	assert.True(t, l.Has("u1", "u2"))
	assert.True(t, l.Has("u2", "u1"))
	assert.False(t, l.Has("u1", "u3"))

	l.Add("u3", "u1")
	assert.True(t, l.Has("u1", "u3"))
	assert.Equal(t, 2, l.Len())

	var empty *Ledger
	assert.False(t, empty.Has("u1", "u2"))
	assert.Zero(t, empty.Len())
}
