package scheduler

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/christopherklint97/daylog/internal/config"
)

type fakeRetrier struct {
	calls int
	n     int
	err   error
}

func (f *fakeRetrier) RetryFailed(ctx context.Context) (int, error) {
	f.calls++
	return f.n, f.err
}

func newTestScheduler(t *testing.T, retrier Retrier, review ReviewFunc) *Scheduler {
	t.Helper()
	cfg := config.DefaultConfig()
	cfg.Notifications.Enabled = false
	return New(&cfg, retrier, review, time.UTC, nil)
}

func TestNextReminder(t *testing.T) {
	s := newTestScheduler(t, nil, nil)

	tests := []struct {
		name string
		now  time.Time
		want time.Time
	}{
		{
			name: "later today",
			now:  time.Date(2025, 3, 10, 9, 0, 0, 0, time.UTC), // Monday
			want: time.Date(2025, 3, 10, 16, 30, 0, 0, time.UTC),
		},
		{
			name: "exactly at reminder moves to tomorrow",
			now:  time.Date(2025, 3, 10, 16, 30, 0, 0, time.UTC),
			want: time.Date(2025, 3, 11, 16, 30, 0, 0, time.UTC),
		},
		{
			name: "friday evening skips weekend",
			now:  time.Date(2025, 3, 14, 18, 0, 0, 0, time.UTC),
			want: time.Date(2025, 3, 17, 16, 30, 0, 0, time.UTC),
		},
		{
			name: "sunday",
			now:  time.Date(2025, 3, 16, 8, 0, 0, 0, time.UTC),
			want: time.Date(2025, 3, 17, 16, 30, 0, 0, time.UTC),
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, s.nextReminder(tt.now))
		})
	}
}

func TestNextReminder_NoWorkDaysMeansEveryDay(t *testing.T) {
	s := newTestScheduler(t, nil, nil)
	s.cfg.WorkDays = nil
	got := s.nextReminder(time.Date(2025, 3, 15, 18, 0, 0, 0, time.UTC)) // Saturday
	assert.Equal(t, time.Date(2025, 3, 16, 16, 30, 0, 0, time.UTC), got)
}

func TestParseTime(t *testing.T) {
	h, m := parseTime("08:05")
	assert.Equal(t, 8, h)
	assert.Equal(t, 5, m)

	for _, bad := range []string{"", "8", "25:00", "aa:bb", "10:75"} {
		h, m := parseTime(bad)
		assert.Equal(t, 16, h, bad)
		assert.Equal(t, 30, m, bad)
	}
}

func TestRemind_RetriesThenReviews(t *testing.T) {
	retrier := &fakeRetrier{n: 2}
	var reviewed []string
	s := newTestScheduler(t, retrier, func(ctx context.Context, date string) error {
		reviewed = append(reviewed, date)
		return nil
	})

	s.remind(context.Background(), time.Date(2025, 3, 10, 16, 30, 0, 0, time.UTC))

	assert.Equal(t, 1, retrier.calls)
	require.Len(t, reviewed, 1)
	assert.Equal(t, "2025-03-10", reviewed[0])
}

func TestRemind_RetryErrorDoesNotBlockReview(t *testing.T) {
	retrier := &fakeRetrier{err: errors.New("backend down")}
	reviewed := false
	s := newTestScheduler(t, retrier, func(ctx context.Context, date string) error {
		reviewed = true
		return errors.New("tui closed")
	})

	s.remind(context.Background(), time.Date(2025, 3, 10, 16, 30, 0, 0, time.UTC))
	assert.True(t, reviewed)
}
