package command

import (
	"context"
	"sync"
	"time"

	"github.com/alem-hub/drop-matcher/internal/domain/matching"
)

// LocalRunLock is an in-process RunLock for single-instance deployments.
// The ttl is ignored: the lock lives until released.
type LocalRunLock struct {
	mu sync.Mutex
}

var _ matching.RunLock = (*LocalRunLock)(nil)

// NewLocalRunLock creates a new LocalRunLock.
func NewLocalRunLock() *LocalRunLock {
	return &LocalRunLock{}
}

// Acquire takes the lock or returns matching.ErrRunInProgress.
func (l *LocalRunLock) Acquire(_ context.Context, _ time.Duration) (func(context.Context) error, error) {
	if !l.mu.TryLock() {
		return nil, matching.ErrRunInProgress
	}
	var once sync.Once
	return func(context.Context) error {
		once.Do(l.mu.Unlock)
		return nil
	}, nil
}
