package shared

import (
	"errors"
	"fmt"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestDomainError(t *testing.T) {
	cause := errors.New("dial tcp: refused")
	err := WrapError("oracle", "Score", ErrServiceUnavailable, "request failed", cause)

	assert.Equal(t, "oracle.Score: request failed: dial tcp: refused", err.Error())
	assert.ErrorIs(t, err, ErrServiceUnavailable)
	assert.ErrorIs(t, err, cause)
	assert.NotErrorIs(t, err, ErrNotFound)

	plain := NewDomainError("matching", "Complete", ErrStateTransition, "run already finished")
	assert.Equal(t, "matching.Complete: run already finished", plain.Error())
	assert.Equal(t, ErrStateTransition, errors.Unwrap(plain))
}

func TestPredicates(t *testing.T) {
	assert.True(t, IsNotFound(fmt.Errorf("run 42: %w", ErrNotFound)))
	assert.True(t, IsAlreadyExists(ErrAlreadyExists))
	assert.True(t, IsValidation(NewDomainError("matching", "Parse", ErrInvalidInput, "bad")))
	assert.False(t, IsValidation(ErrConflict))
	assert.ErrorIs(t, ErrOracleRateLimited, ErrRateLimited)
}
