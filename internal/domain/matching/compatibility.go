package matching

import "strings"

// EthnicityNoPreference - значение, которое снимает фильтр по этничности с обеих сторон.
const EthnicityNoPreference = "prefer not to answer"

// Predicate - фильтр совместимости двух кандидатов.
// Чистая, детерминированная и симметричная функция.
type Predicate struct {
	// CohortFilter включает жёсткое требование одного курса.
	CohortFilter bool
}

// Compatible проверяет, что a и b удовлетворяют предпочтениям друг друга.
func (p Predicate) Compatible(a, b *Candidate) bool {
	if !acceptsGender(a.GenderPreference, b.Gender) || !acceptsGender(b.GenderPreference, a.Gender) {
		return false
	}
	if !acceptsEthnicity(a.EthnicityPreference, b.Ethnicity) || !acceptsEthnicity(b.EthnicityPreference, a.Ethnicity) {
		return false
	}
	if p.CohortFilter && !sameValue(a.Cohort, b.Cohort) {
		return false
	}
	return true
}

// acceptsGender: пустое множество предпочтений означает "любой".
func acceptsGender(preference []string, gender string) bool {
	if len(preference) == 0 {
		return true
	}
	return containsValue(preference, gender)
}

func acceptsEthnicity(preference, ethnicity []string) bool {
	if len(preference) == 0 {
		return true
	}
	if containsValue(preference, EthnicityNoPreference) || containsValue(ethnicity, EthnicityNoPreference) {
		return true
	}
	for _, e := range ethnicity {
		if containsValue(preference, e) {
			return true
		}
	}
	return false
}

func containsValue(set []string, v string) bool {
	for _, s := range set {
		if sameValue(s, v) {
			return true
		}
	}
	return false
}

func sameValue(a, b string) bool {
	return strings.EqualFold(strings.TrimSpace(a), strings.TrimSpace(b))
}
