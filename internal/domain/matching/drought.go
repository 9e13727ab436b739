package matching

import (
	"sort"
	"time"

	"github.com/google/uuid"
)

// ══════════════════════════════════════════════════════════════════════════════
// DROUGHT
// "Засуха" - кандидат остался без пары в недавнем цикле.
// ══════════════════════════════════════════════════════════════════════════════

const (
	// DefaultDroughtWindowCycles - сколько последних циклов учитывается.
	DefaultDroughtWindowCycles = 5

	// DefaultCycleLength - длина цикла дропа.
	DefaultCycleLength = 7 * 24 * time.Hour
)

// DroughtRecord - отметка о том, что кандидат остался без пары в цикле.
// Записи никогда не удаляются; живыми считаются только записи внутри окна.
type DroughtRecord struct {
	CandidateID CandidateID
	CycleDate   time.Time
	RunID       uuid.UUID
	CreatedAt   time.Time
}

// DroughtWindowStart вычисляет начало скользящего окна.
func DroughtWindowStart(cycleDate time.Time, cycleLength time.Duration, windowCycles int) time.Time {
	if cycleLength <= 0 {
		cycleLength = DefaultCycleLength
	}
	if windowCycles <= 0 {
		windowCycles = DefaultDroughtWindowCycles
	}
	return cycleDate.Add(-time.Duration(windowCycles) * cycleLength)
}

// ComputeDroughtPriority возвращает кандидатов в засухе в порядке приоритета:
// по возрастанию самой ранней даты внутри окна, при равенстве - по ID.
func ComputeDroughtPriority(records []DroughtRecord, windowStart time.Time) []CandidateID {
	earliest := make(map[CandidateID]time.Time)
	for _, r := range records {
		if r.CycleDate.Before(windowStart) {
			continue
		}
		if cur, ok := earliest[r.CandidateID]; !ok || r.CycleDate.Before(cur) {
			earliest[r.CandidateID] = r.CycleDate
		}
	}

	ids := make([]CandidateID, 0, len(earliest))
	for id := range earliest {
		ids = append(ids, id)
	}
	sort.Slice(ids, func(i, j int) bool {
		ti, tj := earliest[ids[i]], earliest[ids[j]]
		if !ti.Equal(tj) {
			return ti.Before(tj)
		}
		return ids[i] < ids[j]
	})
	return ids
}

// DroughtIndices переводит приоритетный список ID в индексы пула.
// Кандидаты, которых нет в пуле, пропускаются.
func DroughtIndices(priority []CandidateID, pool []Candidate) []int {
	pos := make(map[CandidateID]int, len(pool))
	for i := range pool {
		pos[pool[i].ID] = i
	}
	out := make([]int, 0, len(priority))
	for _, id := range priority {
		if i, ok := pos[id]; ok {
			out = append(out, i)
		}
	}
	return out
}
