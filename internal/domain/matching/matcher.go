package matching

import (
	"fmt"
	"sort"
)

// ══════════════════════════════════════════════════════════════════════════════
// ALGORITHMS
// ══════════════════════════════════════════════════════════════════════════════

// Algorithm - тег алгоритма, которым создана пара.
type Algorithm string

const (
	// AlgorithmDroughtPriority - пара зафиксирована на проходе по засухе.
	AlgorithmDroughtPriority Algorithm = "drought_priority"
	// AlgorithmBlossom - оптимальное паросочетание.
	AlgorithmBlossom Algorithm = "blossom"
	// AlgorithmGreedy - жадное паросочетание (явно или как fallback).
	AlgorithmGreedy Algorithm = "greedy"
)

// IsValid проверяет тег.
func (a Algorithm) IsValid() bool {
	switch a {
	case AlgorithmDroughtPriority, AlgorithmBlossom, AlgorithmGreedy:
		return true
	default:
		return false
	}
}

// String возвращает строковое представление тега.
func (a Algorithm) String() string {
	return string(a)
}

// Pair - пара индексов вершин, выбранная решателем.
type Pair struct {
	U int
	V int
}

// Solver - стратегия паросочетания на графе из n вершин.
type Solver interface {
	Name() Algorithm
	Solve(n int, edges []Edge) ([]Pair, error)
}

// ParseStrategy возвращает решатель по имени стратегии.
func ParseStrategy(name string) (Solver, error) {
	switch Algorithm(name) {
	case AlgorithmBlossom, "":
		return BlossomSolver{}, nil
	case AlgorithmGreedy:
		return GreedySolver{}, nil
	default:
		return nil, fmt.Errorf("%w: %q", ErrInvalidStrategy, name)
	}
}

// ══════════════════════════════════════════════════════════════════════════════
// GREEDY SOLVER
// ══════════════════════════════════════════════════════════════════════════════

// GreedySolver сортирует рёбра по возрастанию веса и берёт ребро,
// если оба конца свободны. При равных весах сохраняется исходный порядок.
type GreedySolver struct{}

// Name возвращает тег алгоритма.
func (GreedySolver) Name() Algorithm {
	return AlgorithmGreedy
}

// Solve выполняет жадное паросочетание.
func (GreedySolver) Solve(n int, edges []Edge) ([]Pair, error) {
	if err := ValidateGraph(n, edges); err != nil {
		return nil, err
	}
	return greedy(n, edges), nil
}

func greedy(n int, edges []Edge) []Pair {
	sorted := make([]Edge, len(edges))
	copy(sorted, edges)
	sort.SliceStable(sorted, func(i, j int) bool {
		return sorted[i].Weight < sorted[j].Weight
	})

	used := make([]bool, n)
	var pairs []Pair
	for _, e := range sorted {
		if used[e.U] || used[e.V] {
			continue
		}
		used[e.U], used[e.V] = true, true
		pairs = append(pairs, Pair{U: e.U, V: e.V})
	}
	return pairs
}

// ══════════════════════════════════════════════════════════════════════════════
// MATCHER
// ══════════════════════════════════════════════════════════════════════════════

// MatchedPair - пара с весом и алгоритмом, которым она получена.
type MatchedPair struct {
	U         int
	V         int
	Weight    float64
	Algorithm Algorithm
}

// MatchResult - результат паросочетания.
type MatchResult struct {
	Pairs     []MatchedPair
	Unmatched []int

	// Algorithm - основной алгоритм, фактически отработавший после прохода по засухе.
	Algorithm Algorithm

	// Degraded - основной решатель упал и был заменён жадным.
	Degraded       bool
	FallbackReason string

	DroughtServed int
}

// Matcher объединяет проход по засухе, основной решатель и fallback.
type Matcher struct {
	solver         Solver
	droughtPrePass bool
}

// NewMatcher создаёт матчер. nil solver означает BlossomSolver.
func NewMatcher(solver Solver, droughtPrePass bool) *Matcher {
	if solver == nil {
		solver = BlossomSolver{}
	}
	return &Matcher{solver: solver, droughtPrePass: droughtPrePass}
}

// Match строит паросочетание на n вершинах. drought - индексы вершин в порядке приоритета.
// Результат всегда корректен: если основной решатель вернул ошибку или
// некорректный ответ, используется жадный алгоритм.
func (m *Matcher) Match(n int, edges []Edge, drought []int) MatchResult {
	res := MatchResult{Algorithm: m.solver.Name()}
	matched := make([]bool, n)

	if m.droughtPrePass && len(drought) > 0 {
		pre := droughtPrePass(n, edges, drought, matched)
		res.Pairs = append(res.Pairs, pre...)
		res.DroughtServed = len(pre)
	}

	// Рёбра только между ещё свободными вершинами.
	remaining := make([]Edge, 0, len(edges))
	for _, e := range edges {
		if !matched[e.U] && !matched[e.V] {
			remaining = append(remaining, e)
		}
	}

	pairs, err := safeSolve(m.solver, n, remaining)
	if err == nil {
		err = VerifyMatching(n, remaining, pairs)
	}
	if err != nil {
		res.Degraded = true
		res.FallbackReason = err.Error()
		res.Algorithm = AlgorithmGreedy
		pairs = greedy(n, remaining)
	}

	weights := edgeWeights(remaining)
	for _, p := range pairs {
		res.Pairs = append(res.Pairs, MatchedPair{
			U:         p.U,
			V:         p.V,
			Weight:    weights[orderedPair(p.U, p.V)],
			Algorithm: res.Algorithm,
		})
		matched[p.U], matched[p.V] = true, true
	}

	for v := 0; v < n; v++ {
		if !matched[v] {
			res.Unmatched = append(res.Unmatched, v)
		}
	}
	return res
}

func safeSolve(solver Solver, n int, edges []Edge) (pairs []Pair, err error) {
	defer func() {
		if r := recover(); r != nil {
			pairs = nil
			err = fmt.Errorf("%w: %v", ErrSolverPanic, r)
		}
	}()
	return solver.Solve(n, edges)
}

// droughtPrePass фиксирует для каждого кандидата в засухе самое лёгкое ребро
// к свободному соседу. При равных весах выигрывает первое ребро.
func droughtPrePass(n int, edges []Edge, drought []int, matched []bool) []MatchedPair {
	adj := make([][]int, n)
	for k, e := range edges {
		adj[e.U] = append(adj[e.U], k)
		adj[e.V] = append(adj[e.V], k)
	}

	var out []MatchedPair
	for _, x := range drought {
		if x < 0 || x >= n || matched[x] {
			continue
		}
		best := -1
		for _, k := range adj[x] {
			e := edges[k]
			other := e.U
			if other == x {
				other = e.V
			}
			if matched[other] {
				continue
			}
			if best == -1 || e.Weight < edges[best].Weight {
				best = k
			}
		}
		if best == -1 {
			continue
		}
		e := edges[best]
		matched[e.U], matched[e.V] = true, true
		out = append(out, MatchedPair{U: e.U, V: e.V, Weight: e.Weight, Algorithm: AlgorithmDroughtPriority})
	}
	return out
}

// VerifyMatching проверяет, что пары не пересекаются и каждая пара - ребро графа.
func VerifyMatching(n int, edges []Edge, pairs []Pair) error {
	weights := edgeWeights(edges)
	used := make([]bool, n)
	for _, p := range pairs {
		if p.U < 0 || p.U >= n || p.V < 0 || p.V >= n || p.U == p.V {
			return fmt.Errorf("%w: pair (%d,%d) out of range", ErrInvalidMatching, p.U, p.V)
		}
		if _, ok := weights[orderedPair(p.U, p.V)]; !ok {
			return fmt.Errorf("%w: pair (%d,%d) is not an edge", ErrInvalidMatching, p.U, p.V)
		}
		if used[p.U] || used[p.V] {
			return fmt.Errorf("%w: vertex reused in pair (%d,%d)", ErrInvalidMatching, p.U, p.V)
		}
		used[p.U], used[p.V] = true, true
	}
	return nil
}

func orderedPair(u, v int) [2]int {
	if v < u {
		u, v = v, u
	}
	return [2]int{u, v}
}

func edgeWeights(edges []Edge) map[[2]int]float64 {
	out := make(map[[2]int]float64, len(edges))
	for _, e := range edges {
		out[orderedPair(e.U, e.V)] = e.Weight
	}
	return out
}
