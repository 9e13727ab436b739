package command

import (
	"github.com/google/uuid"

	"github.com/alem-hub/drop-matcher/internal/domain/matching"
	"github.com/alem-hub/drop-matcher/internal/domain/notification"
)

// BuildNotificationJobs creates one match job per side of every persisted
// assignment and, when includeUnmatched is set, one no-match job per
// unmatched candidate. Partners see the profile snapshot stored with the pair.
func BuildNotificationJobs(
	runID uuid.UUID,
	pool []matching.Candidate,
	persisted []matching.Assignment,
	unmatched []matching.Candidate,
	includeUnmatched bool,
) []notification.Job {
	byID := make(map[matching.CandidateID]*matching.Candidate, len(pool))
	for i := range pool {
		byID[pool[i].ID] = &pool[i]
	}

	jobs := make([]notification.Job, 0, 2*len(persisted)+len(unmatched))
	for i := range persisted {
		a := &persisted[i]
		ca, cb := byID[a.A], byID[a.B]
		if ca == nil || cb == nil {
			continue
		}
		profileB, profileA := toMatchProfile(a.ProfileB), toMatchProfile(a.ProfileA)
		jobs = append(jobs,
			notification.Job{Kind: notification.KindMatch, RunID: runID, Recipient: recipient(ca), Partner: &profileB},
			notification.Job{Kind: notification.KindMatch, RunID: runID, Recipient: recipient(cb), Partner: &profileA},
		)
	}

	if includeUnmatched {
		for i := range unmatched {
			jobs = append(jobs, notification.Job{
				Kind:      notification.KindNoMatch,
				RunID:     runID,
				Recipient: recipient(&unmatched[i]),
			})
		}
	}
	return jobs
}

func recipient(c *matching.Candidate) notification.Recipient {
	return notification.Recipient{
		CandidateID:    c.ID.String(),
		Name:           c.Name,
		Email:          c.Email,
		TelegramChatID: c.TelegramChatID,
	}
}

func toMatchProfile(p matching.Profile) notification.MatchProfile {
	return notification.MatchProfile{
		Name:      p.Name,
		Cohort:    p.Cohort,
		Major:     p.Major,
		Ethnicity: p.Ethnicity,
		Gender:    p.Gender,
		Instagram: p.Instagram,
		PhotoURL:  p.PhotoURL,
		ScoreDiff: p.ScoreDiff,
	}
}
