package matching

import "time"

// DefaultOptimizerPasses - максимальное число проходов локального улучшения.
const DefaultOptimizerPasses = 10

// improvementEpsilon отсекает "улучшения" на уровне погрешности float.
const improvementEpsilon = 1e-9

// Optimizer - локальный поиск обменами партнёров между двумя парами.
// Это не глобальный оптимум: только улучшение уже найденного паросочетания.
type Optimizer struct {
	MaxPasses int
	Predicate Predicate
	Ledger    *Ledger
	Now       time.Time
}

// Optimize перебирает пары пар (M1, M2) и пробует обмены
// (a1,a2)+(b1,b2) и (a1,b2)+(a2,b1). Обмен принимается, если обе новые пары
// совместимы, не встречались раньше и суммарный вес строго меньше.
// Возвращает новый срез и число принятых обменов.
func (o Optimizer) Optimize(candidates []Candidate, pairs []MatchedPair) ([]MatchedPair, int) {
	out := make([]MatchedPair, len(pairs))
	copy(out, pairs)

	passes := o.MaxPasses
	if passes <= 0 {
		passes = DefaultOptimizerPasses
	}

	swaps := 0
	for pass := 0; pass < passes; pass++ {
		improved := false
		for i := 0; i < len(out); i++ {
			for j := i + 1; j < len(out); j++ {
				m1, m2 := out[i], out[j]
				current := m1.Weight + m2.Weight

				options := [2][2][2]int{
					{{m1.U, m2.U}, {m1.V, m2.V}},
					{{m1.U, m2.V}, {m2.U, m1.V}},
				}

				bestSum := current
				var best *[2][2]int
				var bestW [2]float64
				for k := range options {
					opt := &options[k]
					w1, ok1 := o.pairWeight(candidates, opt[0][0], opt[0][1])
					w2, ok2 := o.pairWeight(candidates, opt[1][0], opt[1][1])
					if !ok1 || !ok2 {
						continue
					}
					if sum := w1 + w2; sum+improvementEpsilon < bestSum {
						bestSum = sum
						best = opt
						bestW = [2]float64{w1, w2}
					}
				}
				if best == nil {
					continue
				}

				out[i] = MatchedPair{U: best[0][0], V: best[0][1], Weight: bestW[0], Algorithm: m1.Algorithm}
				out[j] = MatchedPair{U: best[1][0], V: best[1][1], Weight: bestW[1], Algorithm: m2.Algorithm}
				swaps++
				improved = true
			}
		}
		if !improved {
			break
		}
	}
	return out, swaps
}

func (o Optimizer) pairWeight(candidates []Candidate, u, v int) (float64, bool) {
	a, b := &candidates[u], &candidates[v]
	if o.Ledger.Has(a.ID, b.ID) {
		return 0, false
	}
	if !o.Predicate.Compatible(a, b) {
		return 0, false
	}
	return EdgeWeight(a, b, o.Now), true
}
