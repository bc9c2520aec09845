package sqlite

import (
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/banshee-data/localizer/internal/timeutil"
)

func TestRunStoreUsesClock(t *testing.T) {
	t.Parallel()
	db := openTestDB(t)

	start := time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)
	clock := timeutil.NewMockClock(start)
	store := NewRunStoreWithClock(db.DB, clock)

	run := &Run{MapPath: "m", Source: "simulated", ParticleCount: 10}
	require.NoError(t, store.InsertRun(run))
	assert.Equal(t, start.UnixNano(), run.CreatedAt)

	clock.Advance(90 * time.Second)
	require.NoError(t, store.FinishRun(run.RunID))

	got, err := store.GetRun(run.RunID)
	require.NoError(t, err)
	assert.Equal(t, start.Add(90*time.Second).UnixNano(), got.FinishedAt)
}

func TestRetryOnBusy(t *testing.T) {
	t.Parallel()

	clock := timeutil.NewMockClock(time.Unix(0, 0))
	store := NewRunStoreWithClock(nil, clock)

	calls := 0
	err := store.retryOnBusy(func() error {
		calls++
		if calls < 3 {
			return errors.New("database is locked (5) (SQLITE_BUSY)")
		}
		return nil
	})
	require.NoError(t, err)
	assert.Equal(t, 3, calls)
	assert.Equal(t, []time.Duration{10 * time.Millisecond, 20 * time.Millisecond}, clock.Sleeps())

	calls = 0
	other := errors.New("constraint failed")
	err = store.retryOnBusy(func() error {
		calls++
		return other
	})
	assert.ErrorIs(t, err, other)
	assert.Equal(t, 1, calls)

	calls = 0
	err = store.retryOnBusy(func() error {
		calls++
		return errors.New("SQLITE_BUSY")
	})
	assert.Error(t, err)
	assert.Equal(t, 5, calls)
}
