package matching

import (
	"time"

	"github.com/google/uuid"
)

// PairKey - канонический ключ пары: ID отсортированы лексически.
type PairKey struct {
	Low  CandidateID
	High CandidateID
}

// NewPairKey строит ключ независимо от порядка аргументов.
func NewPairKey(a, b CandidateID) PairKey {
	if b < a {
		a, b = b, a
	}
	return PairKey{Low: a, High: b}
}

// String возвращает ключ в виде "low_high".
func (k PairKey) String() string {
	return string(k.Low) + "_" + string(k.High)
}

// HistoricalPair - неизменяемая запись о том, что пара уже встречалась.
type HistoricalPair struct {
	Key       PairKey
	RunID     uuid.UUID
	CreatedAt time.Time
}

// Ledger - множество исторических пар в памяти.
// Не потокобезопасен: принадлежит одному запуску.
type Ledger struct {
	pairs map[PairKey]struct{}
}

// NewLedger строит журнал из сохранённых пар.
func NewLedger(pairs []HistoricalPair) *Ledger {
	l := &Ledger{pairs: make(map[PairKey]struct{}, len(pairs))}
	for _, p := range pairs {
		l.pairs[p.Key] = struct{}{}
	}
	return l
}

// Has проверяет, встречалась ли пара раньше.
func (l *Ledger) Has(a, b CandidateID) bool {
	if l == nil {
		return false
	}
	_, ok := l.pairs[NewPairKey(a, b)]
	return ok
}

// Add добавляет пару в журнал.
func (l *Ledger) Add(a, b CandidateID) {
	l.pairs[NewPairKey(a, b)] = struct{}{}
}

// Len возвращает количество пар.
func (l *Ledger) Len() int {
	if l == nil {
		return 0
	}
	return len(l.pairs)
}
