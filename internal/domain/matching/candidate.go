// Package matching содержит доменную модель еженедельного "дропа":
// кандидатов, граф совместимости, алгоритмы паросочетания и жизненный цикл запуска.
// Ввод-вывод здесь не выполняется: хранилище и транспорт описаны интерфейсами.
package matching

import (
	"strings"
	"time"
)

// ══════════════════════════════════════════════════════════════════════════════
// VALUE OBJECTS
// ══════════════════════════════════════════════════════════════════════════════

// CandidateID - идентификатор пользователя в ростере.
type CandidateID string

// String возвращает строковое представление ID.
func (id CandidateID) String() string {
	return string(id)
}

// IsValid проверяет, что ID не пустой.
func (id CandidateID) IsValid() bool {
	return strings.TrimSpace(string(id)) != ""
}

// ══════════════════════════════════════════════════════════════════════════════
// CANDIDATE
// ══════════════════════════════════════════════════════════════════════════════

// Candidate - снимок профиля пользователя на момент запуска.
// Движок читает кандидатов заново при каждом запуске и никогда их не изменяет,
// кроме записи оценки от оракула.
type Candidate struct {
	ID                  CandidateID `validate:"required"`
	Name                string      `validate:"required"`
	Email               string      `validate:"required,email"`
	Gender              string      `validate:"required"`
	Ethnicity           []string
	GenderPreference    []string
	EthnicityPreference []string
	Cohort              string `validate:"required"`
	Major               string `validate:"required"`
	Instagram           string `validate:"required"`
	PhotoURL            string `validate:"required,url"`
	TelegramChatID      int64  `validate:"gte=0"`

	// Score - оценка в диапазоне [0,100]. 0 означает "не задано".
	Score float64 `validate:"gte=0,lte=100"`

	RegisteredAt time.Time `validate:"required"`
	OptedIn      bool

	// Malformed выставляется хранилищем, если запись не прошла валидацию.
	Malformed bool
}

// HasScore возвращает true, если оценка уже получена.
func (c *Candidate) HasScore() bool {
	return c.Score > 0
}

// Age возвращает возраст аккаунта. Отрицательный возраст (рассинхрон часов) считается нулевым.
func (c *Candidate) Age(now time.Time) time.Duration {
	age := now.Sub(c.RegisteredAt)
	if age < 0 {
		return 0
	}
	return age
}

// HasRequiredFields проверяет, что заполнены все поля, без которых матч невозможен.
func (c *Candidate) HasRequiredFields() bool {
	required := []string{
		string(c.ID), c.Name, c.Email, c.Gender,
		c.Cohort, c.Major, c.Instagram, c.PhotoURL,
	}
	for _, v := range required {
		if strings.TrimSpace(v) == "" {
			return false
		}
	}
	return true
}

// IsEligible - участвует ли кандидат в дропе (без учёта оценки).
func (c *Candidate) IsEligible() bool {
	return c.OptedIn && !c.Malformed && c.HasRequiredFields()
}

// Profile возвращает публичный снимок профиля для партнёра по матчу.
func (c *Candidate) Profile() Profile {
	return Profile{
		Name:      c.Name,
		Cohort:    c.Cohort,
		Major:     c.Major,
		Ethnicity: append([]string(nil), c.Ethnicity...),
		Gender:    c.Gender,
		Instagram: c.Instagram,
		PhotoURL:  c.PhotoURL,
	}
}

// Profile - денормализованный публичный профиль, сохраняется вместе с матчем.
type Profile struct {
	Name      string   `json:"name"`
	Cohort    string   `json:"year"`
	Major     string   `json:"major"`
	Ethnicity []string `json:"ethnicity"`
	Gender    string   `json:"gender"`
	Instagram string   `json:"instagram"`
	PhotoURL  string   `json:"photo"`
	ScoreDiff float64  `json:"attractiveness_diff"`
}

// SplitByEligibility делит ростер на подходящих кандидатов и количество отброшенных.
func SplitByEligibility(all []Candidate) (eligible []Candidate, invalid int) {
	eligible = make([]Candidate, 0, len(all))
	for i := range all {
		if all[i].IsEligible() {
			eligible = append(eligible, all[i])
			continue
		}
		invalid++
	}
	return eligible, invalid
}
