package raceclock

import (
	"testing"
	"time"

	"github.com/jonboulle/clockwork"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/fellside/timekeeper/internal/racing"
)

func TestStartPauseResume(t *testing.T) {
	clk := clockwork.NewFakeClock()
	c := New(clk)

	require.NoError(t, c.Start())
	clk.Advance(5 * time.Second)
	assert.Equal(t, 5*time.Second, c.Elapsed())

	require.NoError(t, c.Pause())
	clk.Advance(3 * time.Second)
	assert.Equal(t, 5*time.Second, c.Elapsed(), "paused clock must not advance")

	require.NoError(t, c.Start())
	clk.Advance(2 * time.Second)
	assert.Equal(t, 7*time.Second, c.Elapsed(), "resume continues from the paused value")
}

func TestFinishIsTerminal(t *testing.T) {
	clk := clockwork.NewFakeClock()
	c := New(clk)

	require.NoError(t, c.Start())
	clk.Advance(time.Minute)
	require.NoError(t, c.Finish())

	clk.Advance(time.Hour)
	assert.Equal(t, time.Minute, c.Elapsed())
	assert.Equal(t, ModeFinished, c.Mode())

	assert.NoError(t, c.Finish(), "finishing twice is a no-op")
	assert.ErrorIs(t, c.Start(), ErrFinished)
}

func TestPauseRequiresRunning(t *testing.T) {
	c := New(clockwork.NewFakeClock())
	assert.ErrorIs(t, c.Pause(), ErrNotRunning)
	assert.ErrorIs(t, c.Finish(), ErrNotRunning)
}

func TestCountdownTiers(t *testing.T) {
	clk := clockwork.NewFakeClock()
	c := New(clk)

	target := clk.Now().Add(5 * time.Minute)
	require.NoError(t, c.StartCountdown(target))
	assert.Equal(t, IndicatorWaiting, c.Indicator())

	clk.Advance(4 * time.Minute)
	assert.Equal(t, IndicatorStartsSoon, c.Indicator(), "60s remaining")

	clk.Advance(50 * time.Second)
	assert.Equal(t, IndicatorStarting, c.Indicator(), "10s remaining")
	assert.Equal(t, 10*time.Second, c.Remaining())
}

func TestCountdownAutoStartsAtTarget(t *testing.T) {
	clk := clockwork.NewFakeClock()
	c := New(clk)

	target := clk.Now().Add(30 * time.Second)
	require.NoError(t, c.StartCountdown(target))

	// The first read after the target lands mid-tick; elapsed is anchored to
	// the target, not to the read.
	clk.Advance(32 * time.Second)
	assert.Equal(t, ModeLive, c.Mode())
	assert.Equal(t, 2*time.Second, c.Elapsed())
	assert.Equal(t, IndicatorLive, c.Indicator())
}

func TestStartCountdownRequiresIdle(t *testing.T) {
	clk := clockwork.NewFakeClock()
	c := New(clk)

	require.NoError(t, c.Start())
	assert.ErrorIs(t, c.StartCountdown(clk.Now().Add(time.Minute)), ErrNotIdle)
}

func TestReconcileLivePinsAnchorToServerStart(t *testing.T) {
	clk := clockwork.NewFakeClock()
	c := New(clk)

	started := clk.Now().Add(-90 * time.Second)
	timing := racing.RaceTiming{RaceID: 1, TimeStarted: &started}

	c.Reconcile(timing)
	assert.Equal(t, ModeLive, c.Mode())
	assert.Equal(t, 90*time.Second, c.Elapsed())

	// Reconciling the same snapshot again never regresses elapsed time.
	clk.Advance(10 * time.Second)
	c.Reconcile(timing)
	assert.Equal(t, 100*time.Second, c.Elapsed())
}

func TestReconcileFinished(t *testing.T) {
	clk := clockwork.NewFakeClock()
	c := New(clk)

	started := clk.Now().Add(-2 * time.Hour)
	finished := started.Add(90 * time.Minute)
	c.Reconcile(racing.RaceTiming{RaceID: 1, TimeStarted: &started, TimeFinished: &finished})

	assert.Equal(t, ModeFinished, c.Mode())
	assert.Equal(t, 90*time.Minute, c.Elapsed())
	assert.Equal(t, IndicatorFinished, c.Indicator())
}

func TestReconcileScheduledStartInFuture(t *testing.T) {
	clk := clockwork.NewFakeClock()
	c := New(clk)

	scheduled := clk.Now().Add(10 * time.Minute)
	c.Reconcile(racing.RaceTiming{RaceID: 1, ScheduledStart: &scheduled})

	assert.Equal(t, ModeCountdown, c.Mode())
	assert.Equal(t, 10*time.Minute, c.Remaining())
}

func TestReconcileOverdueScheduledStartWaits(t *testing.T) {
	clk := clockwork.NewFakeClock()
	c := New(clk)

	// Scheduled start has passed with no manual start: hold in a waiting
	// state rather than guessing a start time.
	scheduled := clk.Now().Add(-5 * time.Minute)
	c.Reconcile(racing.RaceTiming{RaceID: 1, ScheduledStart: &scheduled})

	assert.Equal(t, ModeIdle, c.Mode())
	assert.Equal(t, IndicatorStarting, c.Indicator())
	assert.Equal(t, time.Duration(0), c.Elapsed())
}

func TestElapsedClamped(t *testing.T) {
	clk := clockwork.NewFakeClock()
	c := New(clk)

	require.NoError(t, c.Start())
	clk.Advance(30 * time.Hour)
	assert.Equal(t, maxElapsed, c.Elapsed())
}

func TestFormatElapsed(t *testing.T) {
	tests := []struct {
		d    time.Duration
		want string
	}{
		{0, "00:00:00.000"},
		{3661*time.Second + 42*time.Millisecond, "01:01:01.042"},
		{2*time.Hour + 5*time.Minute, "02:05:00.000"},
		{-time.Second, "00:00:00.000"},
	}
	for _, tt := range tests {
		assert.Equal(t, tt.want, FormatElapsed(tt.d))
	}
}

func TestFormatCountdown(t *testing.T) {
	tests := []struct {
		d    time.Duration
		want string
	}{
		{90 * time.Second, "00h 01m 30s"},
		{26*time.Hour + 3*time.Minute + 4*time.Second, "1d 02h 03m 04s"},
		{0, "00h 00m 00s"},
	}
	for _, tt := range tests {
		assert.Equal(t, tt.want, FormatCountdown(tt.d))
	}
}
