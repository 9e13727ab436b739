package matching

import (
	"fmt"
	"math"
)

// ══════════════════════════════════════════════════════════════════════════════
// BLOSSOM SOLVER
// Паросочетание максимального веса в произвольном графе (алгоритм Эдмондса
// с двойственными переменными, O(n³)). Работает в режиме максимальной мощности
// на преобразованных целочисленных весах, поэтому результат - максимальное
// количество пар, а среди таких - минимальный суммарный вес.
// ══════════════════════════════════════════════════════════════════════════════

// weightScale переводит вещественные веса в целые без потери значимых разрядов.
const weightScale = 1e6

// BlossomSolver - оптимальная стратегия паросочетания.
type BlossomSolver struct{}

// Name возвращает тег алгоритма.
func (BlossomSolver) Name() Algorithm {
	return AlgorithmBlossom
}

// Solve находит паросочетание максимальной мощности и минимального веса.
// Паника внутри алгоритма превращается в ошибку.
func (BlossomSolver) Solve(n int, edges []Edge) (pairs []Pair, err error) {
	if err := ValidateGraph(n, edges); err != nil {
		return nil, err
	}
	if len(edges) == 0 {
		return nil, nil
	}

	defer func() {
		if r := recover(); r != nil {
			pairs = nil
			err = fmt.Errorf("%w: %v", ErrSolverPanic, r)
		}
	}()

	scaled := make([]int64, len(edges))
	var maxWeight int64
	for k, e := range edges {
		scaled[k] = int64(math.Round(e.Weight*weightScale)) * 2
		if scaled[k] > maxWeight {
			maxWeight = scaled[k]
		}
	}

	// Минимизация веса сводится к максимизации (c - w); c чётное, все веса > 0.
	c := maxWeight + 2
	be := make([]blossomEdge, len(edges))
	for k, e := range edges {
		be[k] = blossomEdge{i: e.U, j: e.V, w: c - scaled[k]}
	}

	mate := newBlossomState(n, be, true).run()
	for v, m := range mate {
		if m > v {
			pairs = append(pairs, Pair{U: v, V: m})
		}
	}
	return pairs, nil
}

// ValidateGraph проверяет входной граф: концы в диапазоне, без петель,
// без дубликатов, веса конечные и неотрицательные.
func ValidateGraph(n int, edges []Edge) error {
	if n < 0 {
		return fmt.Errorf("%w: negative vertex count %d", ErrInvalidGraph, n)
	}
	seen := make(map[[2]int]struct{}, len(edges))
	for k, e := range edges {
		if e.U < 0 || e.U >= n || e.V < 0 || e.V >= n {
			return fmt.Errorf("%w: edge %d endpoint out of range (%d,%d)", ErrInvalidGraph, k, e.U, e.V)
		}
		if e.U == e.V {
			return fmt.Errorf("%w: edge %d is a self-loop on %d", ErrInvalidGraph, k, e.U)
		}
		if math.IsNaN(e.Weight) || math.IsInf(e.Weight, 0) || e.Weight < 0 {
			return fmt.Errorf("%w: edge %d has weight %v", ErrInvalidGraph, k, e.Weight)
		}
		key := [2]int{e.U, e.V}
		if e.V < e.U {
			key = [2]int{e.V, e.U}
		}
		if _, dup := seen[key]; dup {
			return fmt.Errorf("%w: duplicate edge (%d,%d)", ErrInvalidGraph, key[0], key[1])
		}
		seen[key] = struct{}{}
	}
	return nil
}

// ──────────────────────────────────────────────────────────────────────────────
// Internal state
// ──────────────────────────────────────────────────────────────────────────────

type blossomEdge struct {
	i, j int
	w    int64
}

// Вершины пронумерованы 0..n-1, блоссомы - n..2n-1.
// Конец ребра p: ребро p/2, вершина endpoint[p]; p^1 - противоположный конец.
// Метки: 0 - свободна, 1 - S, 2 - T; бит 4 используется в scanBlossom.
type blossomState struct {
	nvertex        int
	edges          []blossomEdge
	maxCardinality bool

	endpoint  []int
	neighbend [][]int
	mate      []int

	label         []int
	labelend      []int
	inblossom     []int
	blossomparent []int
	blossomchilds [][]int
	blossombase   []int
	blossomendps  [][]int

	bestedge         []int
	blossombestedges [][]int
	unusedblossoms   []int

	dualvar   []int64
	allowedge []bool
	queue     []int
}

func newBlossomState(n int, edges []blossomEdge, maxCardinality bool) *blossomState {
	s := &blossomState{
		nvertex:          n,
		edges:            edges,
		maxCardinality:   maxCardinality,
		endpoint:         make([]int, 2*len(edges)),
		neighbend:        make([][]int, n),
		mate:             filled(n, -1),
		label:            make([]int, 2*n),
		labelend:         filled(2*n, -1),
		inblossom:        make([]int, n),
		blossomparent:    filled(2*n, -1),
		blossomchilds:    make([][]int, 2*n),
		blossombase:      filled(2*n, -1),
		blossomendps:     make([][]int, 2*n),
		bestedge:         filled(2*n, -1),
		blossombestedges: make([][]int, 2*n),
		unusedblossoms:   make([]int, 0, n),
		dualvar:          make([]int64, 2*n),
		allowedge:        make([]bool, len(edges)),
	}

	var maxWeight int64
	for k, e := range edges {
		s.endpoint[2*k] = e.i
		s.endpoint[2*k+1] = e.j
		s.neighbend[e.i] = append(s.neighbend[e.i], 2*k+1)
		s.neighbend[e.j] = append(s.neighbend[e.j], 2*k)
		if e.w > maxWeight {
			maxWeight = e.w
		}
	}
	for v := 0; v < n; v++ {
		s.inblossom[v] = v
		s.blossombase[v] = v
		s.dualvar[v] = maxWeight
	}
	for b := n; b < 2*n; b++ {
		s.unusedblossoms = append(s.unusedblossoms, b)
	}
	return s
}

func filled(n, v int) []int {
	out := make([]int, n)
	for i := range out {
		out[i] = v
	}
	return out
}

// wrap переводит отрицательный индекс в индекс с конца среза.
func wrap(i, n int) int {
	if i < 0 {
		return i + n
	}
	return i
}

func indexOf(xs []int, x int) int {
	for i, v := range xs {
		if v == x {
			return i
		}
	}
	panic(fmt.Sprintf("blossom: child %d not found", x))
}

func rotate(xs []int, i int) []int {
	out := make([]int, 0, len(xs))
	out = append(out, xs[i:]...)
	return append(out, xs[:i]...)
}

func reverseInts(xs []int) {
	for i, j := 0, len(xs)-1; i < j; i, j = i+1, j-1 {
		xs[i], xs[j] = xs[j], xs[i]
	}
}

func (s *blossomState) slack(k int) int64 {
	e := s.edges[k]
	return s.dualvar[e.i] + s.dualvar[e.j] - 2*e.w
}

func (s *blossomState) leaves(b int) []int {
	if b < s.nvertex {
		return []int{b}
	}
	var out []int
	for _, t := range s.blossomchilds[b] {
		out = append(out, s.leaves(t)...)
	}
	return out
}

func (s *blossomState) assignLabel(w, t, p int) {
	b := s.inblossom[w]
	s.label[w], s.label[b] = t, t
	s.labelend[w], s.labelend[b] = p, p
	s.bestedge[w], s.bestedge[b] = -1, -1
	switch t {
	case 1:
		s.queue = append(s.queue, s.leaves(b)...)
	case 2:
		base := s.blossombase[b]
		s.assignLabel(s.endpoint[s.mate[base]], 1, s.mate[base]^1)
	}
}

// scanBlossom идёт вверх по дереву от v и w. Возвращает базу нового блоссома
// или -1, если найден увеличивающий путь.
func (s *blossomState) scanBlossom(v, w int) int {
	var path []int
	base := -1
	for v != -1 || w != -1 {
		b := s.inblossom[v]
		if s.label[b]&4 != 0 {
			base = s.blossombase[b]
			break
		}
		path = append(path, b)
		s.label[b] = 5
		if s.labelend[b] == -1 {
			v = -1
		} else {
			v = s.endpoint[s.labelend[b]]
			b = s.inblossom[v]
			v = s.endpoint[s.labelend[b]]
		}
		if w != -1 {
			v, w = w, v
		}
	}
	for _, b := range path {
		s.label[b] = 1
	}
	return base
}

func (s *blossomState) addBlossom(base, k int) {
	v, w := s.edges[k].i, s.edges[k].j
	bb := s.inblossom[base]
	bv := s.inblossom[v]
	bw := s.inblossom[w]

	b := s.unusedblossoms[len(s.unusedblossoms)-1]
	s.unusedblossoms = s.unusedblossoms[:len(s.unusedblossoms)-1]

	s.blossombase[b] = base
	s.blossomparent[b] = -1
	s.blossomparent[bb] = b

	path := make([]int, 0, 4)
	endps := make([]int, 0, 4)
	for bv != bb {
		s.blossomparent[bv] = b
		path = append(path, bv)
		endps = append(endps, s.labelend[bv])
		v = s.endpoint[s.labelend[bv]]
		bv = s.inblossom[v]
	}
	path = append(path, bb)
	reverseInts(path)
	reverseInts(endps)
	endps = append(endps, 2*k)
	for bw != bb {
		s.blossomparent[bw] = b
		path = append(path, bw)
		endps = append(endps, s.labelend[bw]^1)
		w = s.endpoint[s.labelend[bw]]
		bw = s.inblossom[w]
	}
	s.blossomchilds[b] = path
	s.blossomendps[b] = endps

	s.label[b] = 1
	s.labelend[b] = s.labelend[bb]
	s.dualvar[b] = 0

	for _, leaf := range s.leaves(b) {
		if s.label[s.inblossom[leaf]] == 2 {
			s.queue = append(s.queue, leaf)
		}
		s.inblossom[leaf] = b
	}

	bestedgeto := filled(2*s.nvertex, -1)
	for _, child := range path {
		var nblists [][]int
		if s.blossombestedges[child] == nil {
			for _, leaf := range s.leaves(child) {
				nb := make([]int, len(s.neighbend[leaf]))
				for i, p := range s.neighbend[leaf] {
					nb[i] = p / 2
				}
				nblists = append(nblists, nb)
			}
		} else {
			nblists = [][]int{s.blossombestedges[child]}
		}
		for _, nblist := range nblists {
			for _, ek := range nblist {
				j := s.edges[ek].j
				if s.inblossom[j] == b {
					j = s.edges[ek].i
				}
				bj := s.inblossom[j]
				if bj != b && s.label[bj] == 1 &&
					(bestedgeto[bj] == -1 || s.slack(ek) < s.slack(bestedgeto[bj])) {
					bestedgeto[bj] = ek
				}
			}
		}
		s.blossombestedges[child] = nil
		s.bestedge[child] = -1
	}

	best := make([]int, 0, len(bestedgeto))
	for _, ek := range bestedgeto {
		if ek != -1 {
			best = append(best, ek)
		}
	}
	s.blossombestedges[b] = best
	s.bestedge[b] = -1
	for _, ek := range best {
		if s.bestedge[b] == -1 || s.slack(ek) < s.slack(s.bestedge[b]) {
			s.bestedge[b] = ek
		}
	}
}

func (s *blossomState) expandBlossom(b int, endstage bool) {
	for _, child := range s.blossomchilds[b] {
		s.blossomparent[child] = -1
		switch {
		case child < s.nvertex:
			s.inblossom[child] = child
		case endstage && s.dualvar[child] == 0:
			s.expandBlossom(child, endstage)
		default:
			for _, leaf := range s.leaves(child) {
				s.inblossom[leaf] = child
			}
		}
	}

	if !endstage && s.label[b] == 2 {
		childs := s.blossomchilds[b]
		endps := s.blossomendps[b]
		nc := len(childs)

		entrychild := s.inblossom[s.endpoint[s.labelend[b]^1]]
		j := indexOf(childs, entrychild)
		var jstep, endptrick int
		if j&1 != 0 {
			j -= nc
			jstep, endptrick = 1, 0
		} else {
			jstep, endptrick = -1, 1
		}

		p := s.labelend[b]
		for j != 0 {
			s.label[s.endpoint[p^1]] = 0
			s.label[s.endpoint[endps[wrap(j-endptrick, nc)]^endptrick^1]] = 0
			s.assignLabel(s.endpoint[p^1], 2, p)
			s.allowedge[endps[wrap(j-endptrick, nc)]/2] = true
			j += jstep
			p = endps[wrap(j-endptrick, nc)] ^ endptrick
			s.allowedge[p/2] = true
			j += jstep
		}

		bv := childs[wrap(j, nc)]
		s.label[s.endpoint[p^1]] = 2
		s.label[bv] = 2
		s.labelend[s.endpoint[p^1]] = p
		s.labelend[bv] = p
		s.bestedge[bv] = -1
		j += jstep

		for childs[wrap(j, nc)] != entrychild {
			bv = childs[wrap(j, nc)]
			if s.label[bv] == 1 {
				j += jstep
				continue
			}
			reached := -1
			for _, leaf := range s.leaves(bv) {
				if s.label[leaf] != 0 {
					reached = leaf
					break
				}
			}
			if reached >= 0 {
				s.label[reached] = 0
				s.label[s.endpoint[s.mate[s.blossombase[bv]]]] = 0
				s.assignLabel(reached, 2, s.labelend[reached])
			}
			j += jstep
		}
	}

	s.label[b] = -1
	s.labelend[b] = -1
	s.blossomchilds[b] = nil
	s.blossomendps[b] = nil
	s.blossombase[b] = -1
	s.blossombestedges[b] = nil
	s.bestedge[b] = -1
	s.unusedblossoms = append(s.unusedblossoms, b)
}

// augmentBlossom меняет паросочетание внутри блоссома b так, чтобы базой стала вершина v.
func (s *blossomState) augmentBlossom(b, v int) {
	t := v
	for s.blossomparent[t] != b {
		t = s.blossomparent[t]
	}
	if t >= s.nvertex {
		s.augmentBlossom(t, v)
	}

	childs := s.blossomchilds[b]
	endps := s.blossomendps[b]
	nc := len(childs)

	i := indexOf(childs, t)
	j := i
	var jstep, endptrick int
	if i&1 != 0 {
		j -= nc
		jstep, endptrick = 1, 0
	} else {
		jstep, endptrick = -1, 1
	}

	for j != 0 {
		j += jstep
		t = childs[wrap(j, nc)]
		p := endps[wrap(j-endptrick, nc)] ^ endptrick
		if t >= s.nvertex {
			s.augmentBlossom(t, s.endpoint[p])
		}
		j += jstep
		t = childs[wrap(j, nc)]
		if t >= s.nvertex {
			s.augmentBlossom(t, s.endpoint[p^1])
		}
		s.mate[s.endpoint[p]] = p ^ 1
		s.mate[s.endpoint[p^1]] = p
	}

	s.blossomchilds[b] = rotate(childs, i)
	s.blossomendps[b] = rotate(endps, i)
	s.blossombase[b] = s.blossombase[s.blossomchilds[b][0]]
}

func (s *blossomState) augmentMatching(k int) {
	e := s.edges[k]
	for _, start := range [2][2]int{{e.i, 2*k + 1}, {e.j, 2 * k}} {
		v, p := start[0], start[1]
		for {
			bs := s.inblossom[v]
			if bs >= s.nvertex {
				s.augmentBlossom(bs, v)
			}
			s.mate[v] = p
			if s.labelend[bs] == -1 {
				break
			}
			t := s.endpoint[s.labelend[bs]]
			bt := s.inblossom[t]
			v = s.endpoint[s.labelend[bt]]
			j := s.endpoint[s.labelend[bt]^1]
			if bt >= s.nvertex {
				s.augmentBlossom(bt, j)
			}
			s.mate[j] = s.labelend[bt]
			p = s.labelend[bt] ^ 1
		}
	}
}

func (s *blossomState) minVertexDual() int64 {
	m := s.dualvar[0]
	for v := 1; v < s.nvertex; v++ {
		if s.dualvar[v] < m {
			m = s.dualvar[v]
		}
	}
	return m
}

// run выполняет не более n стадий; каждая стадия либо увеличивает паросочетание,
// либо доказывает его оптимальность. Возвращает mate[v] или -1.
func (s *blossomState) run() []int {
	n := s.nvertex
	if n == 0 || len(s.edges) == 0 {
		return filled(n, -1)
	}

	for stage := 0; stage < n; stage++ {
		for i := range s.label {
			s.label[i] = 0
			s.bestedge[i] = -1
		}
		for b := n; b < 2*n; b++ {
			s.blossombestedges[b] = nil
		}
		for k := range s.allowedge {
			s.allowedge[k] = false
		}
		s.queue = s.queue[:0]

		for v := 0; v < n; v++ {
			if s.mate[v] == -1 && s.label[s.inblossom[v]] == 0 {
				s.assignLabel(v, 1, -1)
			}
		}

		augmented := false
	substage:
		for {
			for len(s.queue) > 0 && !augmented {
				v := s.queue[len(s.queue)-1]
				s.queue = s.queue[:len(s.queue)-1]

				for _, p := range s.neighbend[v] {
					k := p / 2
					w := s.endpoint[p]
					if s.inblossom[v] == s.inblossom[w] {
						continue
					}
					var kslack int64
					if !s.allowedge[k] {
						kslack = s.slack(k)
						if kslack <= 0 {
							s.allowedge[k] = true
						}
					}
					switch {
					case s.allowedge[k]:
						switch {
						case s.label[s.inblossom[w]] == 0:
							s.assignLabel(w, 2, p^1)
						case s.label[s.inblossom[w]] == 1:
							if base := s.scanBlossom(v, w); base >= 0 {
								s.addBlossom(base, k)
							} else {
								s.augmentMatching(k)
								augmented = true
							}
						case s.label[w] == 0:
							s.label[w] = 2
							s.labelend[w] = p ^ 1
						}
					case s.label[s.inblossom[w]] == 1:
						b := s.inblossom[v]
						if s.bestedge[b] == -1 || kslack < s.slack(s.bestedge[b]) {
							s.bestedge[b] = k
						}
					case s.label[w] == 0:
						if s.bestedge[w] == -1 || kslack < s.slack(s.bestedge[w]) {
							s.bestedge[w] = k
						}
					}
					if augmented {
						break
					}
				}
			}
			if augmented {
				break
			}

			deltatype := -1
			var delta int64
			deltaedge, deltablossom := -1, -1

			if !s.maxCardinality {
				deltatype = 1
				delta = s.minVertexDual()
			}
			for v := 0; v < n; v++ {
				if s.label[s.inblossom[v]] == 0 && s.bestedge[v] != -1 {
					d := s.slack(s.bestedge[v])
					if deltatype == -1 || d < delta {
						delta, deltatype, deltaedge = d, 2, s.bestedge[v]
					}
				}
			}
			for b := 0; b < 2*n; b++ {
				if s.blossomparent[b] == -1 && s.label[b] == 1 && s.bestedge[b] != -1 {
					d := s.slack(s.bestedge[b]) / 2
					if deltatype == -1 || d < delta {
						delta, deltatype, deltaedge = d, 3, s.bestedge[b]
					}
				}
			}
			for b := n; b < 2*n; b++ {
				if s.blossombase[b] >= 0 && s.blossomparent[b] == -1 && s.label[b] == 2 &&
					(deltatype == -1 || s.dualvar[b] < delta) {
					delta, deltatype, deltablossom = s.dualvar[b], 4, b
				}
			}
			if deltatype == -1 {
				// Max-cardinality: больше улучшений нет, дуальные переменные
				// доводятся до оптимальности.
				deltatype = 1
				delta = max(0, s.minVertexDual())
			}

			for v := 0; v < n; v++ {
				switch s.label[s.inblossom[v]] {
				case 1:
					s.dualvar[v] -= delta
				case 2:
					s.dualvar[v] += delta
				}
			}
			for b := n; b < 2*n; b++ {
				if s.blossombase[b] >= 0 && s.blossomparent[b] == -1 {
					switch s.label[b] {
					case 1:
						s.dualvar[b] += delta
					case 2:
						s.dualvar[b] -= delta
					}
				}
			}

			switch deltatype {
			case 1:
				break substage
			case 2:
				s.allowedge[deltaedge] = true
				i, j := s.edges[deltaedge].i, s.edges[deltaedge].j
				if s.label[s.inblossom[i]] == 0 {
					i = j
				}
				s.queue = append(s.queue, i)
			case 3:
				s.allowedge[deltaedge] = true
				s.queue = append(s.queue, s.edges[deltaedge].i)
			case 4:
				s.expandBlossom(deltablossom, false)
			}
		}

		if !augmented {
			break
		}

		for b := n; b < 2*n; b++ {
			if s.blossomparent[b] == -1 && s.blossombase[b] >= 0 && s.label[b] == 1 && s.dualvar[b] == 0 {
				s.expandBlossom(b, true)
			}
		}
	}

	mate := make([]int, n)
	for v := 0; v < n; v++ {
		if s.mate[v] >= 0 {
			mate[v] = s.endpoint[s.mate[v]]
		} else {
			mate[v] = -1
		}
	}
	return mate
}
