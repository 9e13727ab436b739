package matching

import (
	"math"
	"time"
)

// ══════════════════════════════════════════════════════════════════════════════
// COMPATIBILITY GRAPH
// ══════════════════════════════════════════════════════════════════════════════

const (
	// MinEdgeWeight - нижняя граница веса ребра.
	MinEdgeWeight = 0.1
	// MaxEdgeWeight - верхняя граница веса ребра.
	MaxEdgeWeight = 100.0
	// MaxAgeDiscount - максимальная скидка за "стаж" аккаунтов.
	MaxAgeDiscount = 0.3

	year = 365 * 24 * time.Hour
)

// Edge - ребро графа совместимости. U и V - индексы в срезе кандидатов.
// Чем меньше вес, тем лучше пара.
type Edge struct {
	U      int
	V      int
	Weight float64
}

// EdgeWeight считает вес пары: разница оценок со скидкой за возраст аккаунтов,
// ограниченная диапазоном [MinEdgeWeight, MaxEdgeWeight].
func EdgeWeight(a, b *Candidate, now time.Time) float64 {
	avgAge := float64(a.Age(now)+b.Age(now)) / float64(2*year)
	discount := math.Min(MaxAgeDiscount, MaxAgeDiscount*avgAge)

	w := math.Abs(a.Score-b.Score) * (1 - discount)
	return math.Max(MinEdgeWeight, math.Min(MaxEdgeWeight, w))
}

// ScoreDiff возвращает модуль разницы оценок.
func ScoreDiff(a, b *Candidate) float64 {
	return math.Abs(a.Score - b.Score)
}

// MatchScore - публичная оценка пары: max(0, 100 - |sA - sB|).
func MatchScore(a, b *Candidate) float64 {
	return math.Max(0, 100-ScoreDiff(a, b))
}

// BuildEdges строит рёбра для всех пар i < j, которые совместимы и ещё не встречались.
// Порядок рёбер детерминирован.
func BuildEdges(candidates []Candidate, ledger *Ledger, pred Predicate, now time.Time) []Edge {
	edges := make([]Edge, 0, len(candidates))
	for i := 0; i < len(candidates); i++ {
		a := &candidates[i]
		for j := i + 1; j < len(candidates); j++ {
			b := &candidates[j]
			if ledger.Has(a.ID, b.ID) {
				continue
			}
			if !pred.Compatible(a, b) {
				continue
			}
			edges = append(edges, Edge{U: i, V: j, Weight: EdgeWeight(a, b, now)})
		}
	}
	return edges
}
