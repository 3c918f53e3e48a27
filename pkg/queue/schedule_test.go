package queue_test

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/dmitrymomot/notifykit/pkg/queue"
)

func TestSchedules(t *testing.T) {
	t.Parallel()

	from := time.Date(2025, 3, 10, 14, 30, 0, 0, time.UTC)

	tests := []struct {
		name     string
		schedule queue.Schedule
		want     time.Time
	}{
		{"interval", queue.EveryInterval(90 * time.Second), from.Add(90 * time.Second)},
		{"minutes", queue.EveryMinutes(5), from.Add(5 * time.Minute)},
		{"daily later today", queue.DailyAt(18, 0), time.Date(2025, 3, 10, 18, 0, 0, 0, time.UTC)},
		{"daily tomorrow", queue.DailyAt(3, 15), time.Date(2025, 3, 11, 3, 15, 0, 0, time.UTC)},
		{"cron", queue.MustCron("0 3 * * *"), time.Date(2025, 3, 11, 3, 0, 0, 0, time.UTC)},
		{"cron descriptor", queue.MustCron("@every 15m"), from.Add(15 * time.Minute)},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()
			assert.Equal(t, tt.want, tt.schedule.Next(from))
		})
	}
}

func TestCron_Invalid(t *testing.T) {
	t.Parallel()

	_, err := queue.Cron("not a cron")
	assert.ErrorIs(t, err, queue.ErrInvalidSchedule)
	assert.Panics(t, func() { queue.MustCron("61 * * * *") })

	s, err := queue.Cron("@hourly")
	require.NoError(t, err)
	assert.Equal(t, "cron @hourly", s.String())
}
