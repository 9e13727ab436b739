package scheduler

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestParseCronExpression_Invalid(t *testing.T) {
	tests := []string{
		"",
		"* * * *",
		"60 * * * *",
		"* 24 * * *",
		"* * 0 * *",
		"* * * 13 *",
		"* * * * 8",
		"*/0 * * * *",
		"5-1 * * * *",
		"a * * * *",
		"1,,2 * * * *",
	}
	for _, expr := range tests {
		t.Run(expr, func(t *testing.T) {
			_, err := ParseCronExpression(expr)
			assert.Error(t, err)
		})
	}
}

func TestCronExpression_Next(t *testing.T) {
	tests := []struct {
		name  string
		expr  string
		after time.Time
		want  time.Time
	}{
		{
			name:  "weekly drop from monday",
			expr:  FridayEvening,
			after: time.Date(2026, 3, 2, 10, 0, 0, 0, time.UTC),
			want:  time.Date(2026, 3, 6, 18, 0, 0, 0, time.UTC),
		},
		{
			name:  "exactly at fire time moves to next week",
			expr:  FridayEvening,
			after: time.Date(2026, 3, 6, 18, 0, 0, 0, time.UTC),
			want:  time.Date(2026, 3, 13, 18, 0, 0, 0, time.UTC),
		},
		{
			name:  "step minutes",
			expr:  Every15Minutes,
			after: time.Date(2026, 3, 6, 18, 7, 30, 0, time.UTC),
			want:  time.Date(2026, 3, 6, 18, 15, 0, 0, time.UTC),
		},
		{
			name:  "sunday as 7",
			expr:  "30 9 * * 7",
			after: time.Date(2026, 3, 6, 0, 0, 0, 0, time.UTC),
			want:  time.Date(2026, 3, 8, 9, 30, 0, 0, time.UTC),
		},
		{
			name:  "day of month or weekday",
			expr:  "0 0 10 * 1",
			after: time.Date(2026, 3, 6, 0, 0, 0, 0, time.UTC),
			want:  time.Date(2026, 3, 9, 0, 0, 0, 0, time.UTC),
		},
		{
			name:  "list and range in month",
			expr:  "0 12 1 1-2,6 *",
			after: time.Date(2026, 3, 6, 0, 0, 0, 0, time.UTC),
			want:  time.Date(2026, 6, 1, 12, 0, 0, 0, time.UTC),
		},
		{
			name:  "year rollover",
			expr:  "0 0 1 1 *",
			after: time.Date(2026, 12, 31, 23, 59, 0, 0, time.UTC),
			want:  time.Date(2027, 1, 1, 0, 0, 0, 0, time.UTC),
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			ce, err := ParseCronExpression(tt.expr)
			require.NoError(t, err)
			assert.Equal(t, tt.want, ce.Next(tt.after))
		})
	}
}

func TestCronExpression_NextInLocation(t *testing.T) {
	loc := time.FixedZone("ALMT", 5*60*60)
	ce := MustParseCronExpression(FridayEvening)

	next := ce.Next(time.Date(2026, 3, 6, 12, 0, 0, 0, time.UTC).In(loc))

	assert.Equal(t, time.Date(2026, 3, 6, 13, 0, 0, 0, time.UTC), next.UTC())
}

func TestCronExpression_NeverMatches(t *testing.T) {
	ce := MustParseCronExpression("0 0 30 2 *")
	assert.True(t, ce.Next(time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC)).IsZero())
}

func TestIntervalSchedule(t *testing.T) {
	now := time.Date(2026, 3, 6, 18, 0, 0, 0, time.UTC)

	assert.Equal(t, now.Add(time.Hour), NewIntervalSchedule(time.Hour).Next(now))
	assert.True(t, NewIntervalSchedule(0).Next(now).IsZero())
	assert.Equal(t, "@every 1h0m0s", NewIntervalSchedule(time.Hour).String())
}
