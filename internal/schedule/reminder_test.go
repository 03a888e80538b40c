package schedule

import (
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
)

type countingTarget struct{ calls atomic.Int32 }

func (c *countingTarget) RemindSplit() {
	c.calls.Add(1)
}

func TestParse(t *testing.T) {
	schedule, err := Parse("0 18 * * 1-5")
	require.NoError(t, err)

	friday := time.Date(2026, 10, 16, 12, 0, 0, 0, time.UTC)
	require.Equal(t, time.Date(2026, 10, 16, 18, 0, 0, 0, time.UTC), schedule.Next(friday))

	evening := time.Date(2026, 10, 16, 19, 0, 0, 0, time.UTC)
	require.Equal(t, time.Date(2026, 10, 19, 18, 0, 0, 0, time.UTC), schedule.Next(evening))

	_, err = Parse("@daily")
	require.NoError(t, err)

	_, err = Parse("every evening")
	require.Error(t, err)
}

func TestNew_Empty(t *testing.T) {
	_, err := New("", nil, &countingTarget{}, nil)
	require.ErrorIs(t, err, ErrNoSchedule)
}

func TestReminder_Fires(t *testing.T) {
	target := &countingTarget{}
	reminder, err := New("@every 1s", time.UTC, target, nil)
	require.NoError(t, err)

	reminder.Start()
	t.Cleanup(reminder.Stop)

	require.Eventually(t, func() bool {
		return target.calls.Load() >= 1
	}, 3*time.Second, 20*time.Millisecond)
}
