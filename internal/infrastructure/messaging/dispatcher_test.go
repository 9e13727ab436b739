package messaging

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/alem-hub/drop-matcher/internal/domain/notification"
	"github.com/alem-hub/drop-matcher/pkg/logger"
	"github.com/alem-hub/drop-matcher/pkg/retry"
)

type fakeNotifier struct {
	mu       sync.Mutex
	failures map[string]int // candidate → remaining transient failures
	perm     map[string]bool
	calls    map[string]int
	panics   bool
}

func newFakeNotifier() *fakeNotifier {
	return &fakeNotifier{failures: map[string]int{}, perm: map[string]bool{}, calls: map[string]int{}}
}

func (f *fakeNotifier) Channel() notification.ChannelType { return notification.ChannelTypeLog }

func (f *fakeNotifier) NotifyMatch(_ context.Context, to notification.Recipient, _ notification.MatchProfile) error {
	return f.record(to.CandidateID)
}

func (f *fakeNotifier) NotifyNoMatch(_ context.Context, to notification.Recipient) error {
	return f.record(to.CandidateID)
}

func (f *fakeNotifier) record(id string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.calls[id]++
	if f.panics {
		panic("boom")
	}
	if f.perm[id] {
		return retry.Permanent(errors.New("rejected"))
	}
	if f.failures[id] > 0 {
		f.failures[id]--
		return errors.New("temporary")
	}
	return nil
}

type memDeliveries struct {
	saved []notification.Delivery
}

func (m *memDeliveries) SaveBatch(_ context.Context, d []notification.Delivery) error {
	m.saved = append(m.saved, d...)
	return nil
}

func (m *memDeliveries) ListByRun(context.Context, uuid.UUID) ([]notification.Delivery, error) {
	return m.saved, nil
}

func newTestDispatcher(n notification.Notifier, log notification.DeliveryRepository, throttle time.Duration) *NotificationDispatcher {
	return NewNotificationDispatcher(DispatcherConfig{
		Notifier:   n,
		Deliveries: log,
		MaxRetries: 2,
		BaseDelay:  time.Millisecond,
		Throttle:   throttle,
		Logger:     logger.Discard(),
	})
}

func matchJob(runID uuid.UUID, id string) notification.Job {
	return notification.Job{
		Kind:      notification.KindMatch,
		RunID:     runID,
		Recipient: notification.Recipient{CandidateID: id},
		Partner:   &notification.MatchProfile{Name: "partner"},
	}
}

func TestDispatch_RetriesAndRecords(t *testing.T) {
	n := newFakeNotifier()
	n.failures["a"] = 2 // succeeds on the last allowed attempt
	n.failures["b"] = 5 // exhausts retries
	n.perm["c"] = true

	runID := uuid.New()
	log := &memDeliveries{}
	d := newTestDispatcher(n, log, 0)

	report := d.Dispatch(context.Background(), []notification.Job{
		matchJob(runID, "a"),
		matchJob(runID, "b"),
		matchJob(runID, "c"),
		{Kind: notification.KindNoMatch, RunID: runID, Recipient: notification.Recipient{CandidateID: "d"}},
	})

	assert.Equal(t, 2, report.Sent)
	assert.Equal(t, 2, report.Failed)
	require.Len(t, log.saved, 4)

	byID := map[string]notification.Delivery{}
	for _, del := range log.saved {
		assert.Equal(t, runID, del.RunID)
		byID[del.CandidateID] = del
	}

	assert.True(t, byID["a"].IsSent())
	assert.Equal(t, 3, byID["a"].Attempts)

	assert.Equal(t, notification.DeliveryStatusFailed, byID["b"].Status)
	assert.Equal(t, 3, byID["b"].Attempts)
	assert.Equal(t, "temporary", byID["b"].Error)

	assert.Equal(t, 1, byID["c"].Attempts)
	assert.Equal(t, notification.KindNoMatch, byID["d"].Kind)
}

func TestDispatch_Throttles(t *testing.T) {
	d := newTestDispatcher(newFakeNotifier(), nil, 30*time.Millisecond)
	runID := uuid.New()

	start := time.Now()
	report := d.Dispatch(context.Background(), []notification.Job{
		matchJob(runID, "a"), matchJob(runID, "b"), matchJob(runID, "c"),
	})

	assert.Equal(t, 3, report.Sent)
	assert.GreaterOrEqual(t, time.Since(start), 55*time.Millisecond)
}

func TestDispatch_RecoversPanics(t *testing.T) {
	n := newFakeNotifier()
	n.panics = true
	d := newTestDispatcher(n, nil, 0)

	report := d.Dispatch(context.Background(), []notification.Job{matchJob(uuid.New(), "a")})

	require.Len(t, report.Deliveries, 1)
	assert.Equal(t, 1, report.Failed)
	assert.Equal(t, 1, n.calls["a"])
	assert.Contains(t, report.Deliveries[0].Error, "notifier panic")
}

func TestDispatch_MatchWithoutPartnerFails(t *testing.T) {
	n := newFakeNotifier()
	d := newTestDispatcher(n, nil, 0)

	job := matchJob(uuid.New(), "a")
	job.Partner = nil
	report := d.Dispatch(context.Background(), []notification.Job{job})

	assert.Equal(t, 1, report.Failed)
	assert.Zero(t, n.calls["a"])
}

func TestDispatch_CancelledContext(t *testing.T) {
	d := newTestDispatcher(newFakeNotifier(), nil, time.Hour)
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	report := d.Dispatch(ctx, []notification.Job{matchJob(uuid.New(), "a"), matchJob(uuid.New(), "b")})
	assert.Equal(t, 2, report.Failed)
}
