package matching

import (
	"time"
)

var testNow = time.Date(2026, 3, 6, 18, 0, 0, 0, time.UTC)

type candOpt func(*Candidate)

func wantsGender(g ...string) candOpt {
	return func(c *Candidate) { c.GenderPreference = g }
}

func ethnicity(e ...string) candOpt {
	return func(c *Candidate) { c.Ethnicity = e }
}

func wantsEthnicity(e ...string) candOpt {
	return func(c *Candidate) { c.EthnicityPreference = e }
}

func cohort(y string) candOpt {
	return func(c *Candidate) { c.Cohort = y }
}

func registered(at time.Time) candOpt {
	return func(c *Candidate) { c.RegisteredAt = at }
}

func newCand(id, gender string, score float64, opts ...candOpt) Candidate {
	c := Candidate{
		ID:           CandidateID(id),
		Name:         "user " + id,
		Email:        id + "@example.edu",
		Gender:       gender,
		Cohort:       "2027",
		Major:        "cs",
		Instagram:    "@" + id,
		PhotoURL:     "https://cdn.example.edu/" + id + ".jpg",
		Score:        score,
		RegisteredAt: testNow,
		OptedIn:      true,
	}
	for _, opt := range opts {
		opt(&c)
	}
	return c
}

func assertDisjoint(pairs []MatchedPair) bool {
	seen := map[int]bool{}
	for _, p := range pairs {
		if seen[p.U] || seen[p.V] {
			return false
		}
		seen[p.U], seen[p.V] = true, true
	}
	return true
}
