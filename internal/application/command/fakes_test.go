package command

import (
	"context"
	"errors"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/alem-hub/drop-matcher/internal/domain/matching"
	"github.com/alem-hub/drop-matcher/internal/domain/notification"
	"github.com/alem-hub/drop-matcher/pkg/logger"
)

var testNow = time.Date(2026, 3, 6, 18, 0, 0, 0, time.UTC)

func cand(id string, score float64) matching.Candidate {
	return matching.Candidate{
		ID:           matching.CandidateID(id),
		Name:         id,
		Email:        id + "@campus.edu",
		Gender:       "female",
		Cohort:       "2026",
		Major:        "CS",
		Instagram:    "@" + id,
		PhotoURL:     "https://cdn.example.com/" + id + ".jpg",
		Score:        score,
		RegisteredAt: testNow.Add(-24 * time.Hour),
		OptedIn:      true,
	}
}

// ─── Roster ───

type memRoster struct {
	mu      sync.Mutex
	cands   []matching.Candidate
	updates map[matching.CandidateID]float64
	err     error
}

func (r *memRoster) ListOptedIn(context.Context) ([]matching.Candidate, error) {
	if r.err != nil {
		return nil, r.err
	}
	out := make([]matching.Candidate, len(r.cands))
	copy(out, r.cands)
	return out, nil
}

func (r *memRoster) UpdateScore(_ context.Context, id matching.CandidateID, score float64) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.updates == nil {
		r.updates = map[matching.CandidateID]float64{}
	}
	r.updates[id] = score
	return nil
}

// ─── History & droughts ───

type memHistory struct {
	pairs []matching.HistoricalPair
}

func (h *memHistory) ListPairs(context.Context) ([]matching.HistoricalPair, error) {
	return h.pairs, nil
}

type memDroughts struct {
	records []matching.DroughtRecord
}

func (d *memDroughts) ListSince(_ context.Context, since time.Time) ([]matching.DroughtRecord, error) {
	var out []matching.DroughtRecord
	for _, r := range d.records {
		if !r.CycleDate.Before(since) {
			out = append(out, r)
		}
	}
	return out, nil
}

func (d *memDroughts) Record(_ context.Context, records []matching.DroughtRecord) (int, error) {
	n := 0
	for _, r := range records {
		dup := false
		for _, e := range d.records {
			if e.CandidateID == r.CandidateID && e.CycleDate.Equal(r.CycleDate) {
				dup = true
				break
			}
		}
		if !dup {
			d.records = append(d.records, r)
			n++
		}
	}
	return n, nil
}

// ─── Runs ───

type memRuns struct {
	mu      sync.Mutex
	runs    map[uuid.UUID]matching.RunAttempt
	updates int
}

func newMemRuns() *memRuns {
	return &memRuns{runs: map[uuid.UUID]matching.RunAttempt{}}
}

func (r *memRuns) Create(_ context.Context, run *matching.RunAttempt) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	for _, existing := range r.runs {
		if existing.Status == matching.StatusProcessing {
			return matching.ErrRunInProgress
		}
	}
	r.runs[run.ID] = *run
	return nil
}

func (r *memRuns) Update(ctx context.Context, run *matching.RunAttempt) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	stored, ok := r.runs[run.ID]
	if !ok {
		return matching.ErrRunNotFound
	}
	if stored.Status != matching.StatusProcessing {
		return matching.ErrRunFinished
	}
	r.runs[run.ID] = *run
	r.updates++
	return nil
}

func (r *memRuns) GetByID(_ context.Context, id uuid.UUID) (*matching.RunAttempt, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	run, ok := r.runs[id]
	if !ok {
		return nil, matching.ErrRunNotFound
	}
	return &run, nil
}

func (r *memRuns) FailStale(_ context.Context, olderThan time.Time, reason string) (int, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	n := 0
	for id, run := range r.runs {
		if run.Status == matching.StatusProcessing && run.StartedAt.Before(olderThan) {
			run.Status = matching.StatusFailed
			run.Reason = reason
			r.runs[id] = run
			n++
		}
	}
	return n, nil
}

func (r *memRuns) only() matching.RunAttempt {
	r.mu.Lock()
	defer r.mu.Unlock()
	for _, run := range r.runs {
		return run
	}
	return matching.RunAttempt{}
}

// ─── Unit of work ───

var errInjected = errors.New("injected write failure")

// memUoW stages writes and applies them only when fn succeeds.
type memUoW struct {
	assignments []matching.Assignment
	pairs       map[matching.PairKey]bool

	// failOnInsert makes the n-th InsertAssignment (1-based) fail.
	failOnInsert int
	inserts      int

	// beforeCommit runs after fn succeeds, before the writes are applied.
	beforeCommit func(ctx context.Context) error
}

func newMemUoW() *memUoW {
	return &memUoW{pairs: map[matching.PairKey]bool{}}
}

type stagedWriter struct {
	uow         *memUoW
	assignments []matching.Assignment
	pairs       []matching.PairKey
}

func (w *stagedWriter) PairExists(_ context.Context, key matching.PairKey) (bool, error) {
	if w.uow.pairs[key] {
		return true, nil
	}
	for _, k := range w.pairs {
		if k == key {
			return true, nil
		}
	}
	return false, nil
}

func (w *stagedWriter) InsertAssignment(_ context.Context, a *matching.Assignment) error {
	w.uow.inserts++
	if w.uow.failOnInsert > 0 && w.uow.inserts == w.uow.failOnInsert {
		return errInjected
	}
	w.assignments = append(w.assignments, *a)
	return nil
}

func (w *stagedWriter) InsertHistoricalPair(_ context.Context, p matching.HistoricalPair) error {
	w.pairs = append(w.pairs, p.Key)
	return nil
}

func (u *memUoW) WithinTx(ctx context.Context, fn func(ctx context.Context, w matching.MatchWriter) error) error {
	w := &stagedWriter{uow: u}
	if err := fn(ctx, w); err != nil {
		return err
	}
	if u.beforeCommit != nil {
		if err := u.beforeCommit(ctx); err != nil {
			return err
		}
	}
	u.assignments = append(u.assignments, w.assignments...)
	for _, k := range w.pairs {
		u.pairs[k] = true
	}
	return nil
}

// ─── Scoring & notification ───

type fakeScorer struct {
	mu     sync.Mutex
	scores map[string]float64
	errs   map[string]error
	calls  map[string]int
}

func (s *fakeScorer) Score(_ context.Context, url string) (float64, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.calls == nil {
		s.calls = map[string]int{}
	}
	s.calls[url]++
	if err := s.errs[url]; err != nil {
		return 0, err
	}
	return s.scores[url], nil
}

type fakeDispatcher struct {
	jobs []notification.Job
}

func (d *fakeDispatcher) Dispatch(_ context.Context, jobs []notification.Job) notification.DispatchReport {
	d.jobs = append(d.jobs, jobs...)
	return notification.DispatchReport{Sent: len(jobs)}
}

// ─── Wiring ───

type fixture struct {
	roster     *memRoster
	history    *memHistory
	droughts   *memDroughts
	runs       *memRuns
	uow        *memUoW
	lock       *LocalRunLock
	scorer     *fakeScorer
	dispatcher *fakeDispatcher
}

func newFixture(cands ...matching.Candidate) *fixture {
	return &fixture{
		roster:     &memRoster{cands: cands},
		history:    &memHistory{},
		droughts:   &memDroughts{},
		runs:       newMemRuns(),
		uow:        newMemUoW(),
		lock:       NewLocalRunLock(),
		scorer:     &fakeScorer{},
		dispatcher: &fakeDispatcher{},
	}
}

func (f *fixture) handler(mutate ...func(*RunMatchCycleConfig)) *RunMatchCycleHandler {
	cfg := DefaultRunMatchCycleConfig()
	for _, m := range mutate {
		m(&cfg)
	}
	h := NewRunMatchCycleHandler(RunMatchCycleDeps{
		Roster:     f.roster,
		History:    f.history,
		Droughts:   f.droughts,
		Runs:       f.runs,
		UoW:        f.uow,
		Lock:       f.lock,
		Scorer:     f.scorer,
		Dispatcher: f.dispatcher,
		Logger:     logger.Discard(),
	}, cfg)
	h.now = func() time.Time { return testNow }
	return h
}
