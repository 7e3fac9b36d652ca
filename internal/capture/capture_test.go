package capture

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/jonboulle/clockwork"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/fellside/timekeeper/internal/api"
	"github.com/fellside/timekeeper/internal/localstore"
	"github.com/fellside/timekeeper/internal/raceclock"
)

type fakeSubmitter struct {
	err     error
	raceID  int64
	entries []api.SubmitEntry
	by      string
	at      string
	calls   int
}

func (f *fakeSubmitter) SubmitResults(_ context.Context, raceID int64, entries []api.SubmitEntry, submittedBy, checkpoint string) error {
	f.calls++
	if f.err != nil {
		return f.err
	}
	f.raceID = raceID
	f.entries = entries
	f.by = submittedBy
	f.at = checkpoint
	return nil
}

func newTestManager(t *testing.T) (*Manager, *fakeSubmitter, *raceclock.Clock, *clockwork.FakeClock) {
	t.Helper()

	clk := clockwork.NewFakeClock()
	cache, err := localstore.New(t.TempDir())
	require.NoError(t, err)

	clock := raceclock.New(clk)
	sub := &fakeSubmitter{}
	m, err := NewManager(7, clock, clk, cache, sub)
	require.NoError(t, err)
	return m, sub, clock, clk
}

func TestRecordOnlineUsesRaceClock(t *testing.T) {
	m, _, clock, clk := newTestManager(t)
	require.NoError(t, m.SetOnline(true))
	require.NoError(t, clock.Start())
	clk.Advance(90 * time.Second)

	e, err := m.Record()
	require.NoError(t, err)
	assert.Equal(t, KindOnline, e.Kind)
	assert.Equal(t, int64(90_000), e.Time)
	assert.NotEmpty(t, e.ID)
	assert.Len(t, m.Working(), 1)
}

func TestRecordOfflineUsesWallClock(t *testing.T) {
	m, _, _, clk := newTestManager(t)

	e, err := m.Record()
	require.NoError(t, err)
	assert.Equal(t, KindOffline, e.Kind)
	assert.Equal(t, clk.Now().UnixMilli(), e.Time)
}

func TestRecordOfflineWithLiveClockUsesElapsed(t *testing.T) {
	m, _, clock, clk := newTestManager(t)
	require.NoError(t, clock.Start())
	clk.Advance(90 * time.Second)

	// Disconnected, but the clock is live from a start learned earlier:
	// elapsed time needs no network, so the capture stays race-relative.
	e, err := m.Record()
	require.NoError(t, err)
	assert.Equal(t, KindOnline, e.Kind)
	assert.Equal(t, int64(90_000), e.Time)
}

func TestRecordConnectedBeforeStartUsesElapsed(t *testing.T) {
	m, _, _, _ := newTestManager(t)
	require.NoError(t, m.SetOnline(true))

	// Connected captures are always race-relative, even before the start.
	e, err := m.Record()
	require.NoError(t, err)
	assert.Equal(t, KindOnline, e.Kind)
	assert.Equal(t, int64(0), e.Time)
}

func TestAssignMovesToStaged(t *testing.T) {
	m, _, _, _ := newTestManager(t)
	e, err := m.Record()
	require.NoError(t, err)

	require.NoError(t, m.Assign(e.ID, 42))
	assert.Empty(t, m.Working())

	staged := m.Staged()
	require.Len(t, staged, 1)
	assert.Equal(t, 42, staged[0].BibNumber)
	assert.Equal(t, e.Time, staged[0].Time)
}

func TestAssignValidation(t *testing.T) {
	m, _, _, _ := newTestManager(t)
	e, err := m.Record()
	require.NoError(t, err)

	assert.ErrorIs(t, m.Assign(e.ID, 0), ErrNoBib)
	assert.ErrorIs(t, m.Assign("no-such-id", 42), ErrNotFound)
}

func TestUnstageClearsBib(t *testing.T) {
	m, _, _, _ := newTestManager(t)
	e, _ := m.Record()
	require.NoError(t, m.Assign(e.ID, 42))

	require.NoError(t, m.Unstage(e.ID))
	assert.Empty(t, m.Staged())

	working := m.Working()
	require.Len(t, working, 1)
	assert.Zero(t, working[0].BibNumber)
}

func TestDeleteOnlyTouchesWorkingQueue(t *testing.T) {
	m, _, _, _ := newTestManager(t)
	e, _ := m.Record()
	require.NoError(t, m.Assign(e.ID, 42))

	// Staged entries must be unstaged before they can be discarded.
	assert.ErrorIs(t, m.Delete(e.ID), ErrNotFound)

	require.NoError(t, m.Unstage(e.ID))
	require.NoError(t, m.Delete(e.ID))
	assert.Empty(t, m.Working())
}

func TestSubmitPreconditions(t *testing.T) {
	m, _, _, _ := newTestManager(t)
	ctx := context.Background()

	assert.ErrorIs(t, m.Submit(ctx, "", "Finish"), ErrNoMarshal)
	assert.ErrorIs(t, m.Submit(ctx, "Ada", ""), ErrNoCheckpoint)
	assert.ErrorIs(t, m.Submit(ctx, "Ada", "Finish"), ErrOffline)

	require.NoError(t, m.SetOnline(true))
	assert.ErrorIs(t, m.Submit(ctx, "Ada", "Finish"), ErrNothingStaged)
}

func TestSubmitSendsBatchAndClearsStaged(t *testing.T) {
	m, sub, _, _ := newTestManager(t)
	require.NoError(t, m.SetOnline(true))

	for i, bib := range []int{3, 9} {
		e, err := m.Record()
		require.NoError(t, err)
		require.NoError(t, m.Assign(e.ID, bib), "entry %d", i)
	}

	require.NoError(t, m.Submit(context.Background(), "Ada Pritchard", "Finish"))

	assert.Equal(t, int64(7), sub.raceID)
	assert.Equal(t, "Ada Pritchard", sub.by)
	assert.Equal(t, "Finish", sub.at)
	require.Len(t, sub.entries, 2)
	assert.Equal(t, 3, sub.entries[0].BibNumber)
	assert.Equal(t, 9, sub.entries[1].BibNumber)
	assert.Empty(t, m.Staged())
}

func TestSubmitFailureKeepsStaged(t *testing.T) {
	m, sub, _, _ := newTestManager(t)
	require.NoError(t, m.SetOnline(true))
	sub.err = errors.New("server unreachable")

	e, _ := m.Record()
	require.NoError(t, m.Assign(e.ID, 5))

	err := m.Submit(context.Background(), "Ada", "Finish")
	require.Error(t, err)
	assert.Len(t, m.Staged(), 1, "failed submission must not lose timestamps")
}

func TestConvertOfflineIsIdempotent(t *testing.T) {
	m, _, _, clk := newTestManager(t)

	start := clk.Now().Add(-90 * time.Second)
	e, err := m.Record() // offline, wall clock
	require.NoError(t, err)
	require.NoError(t, m.Assign(e.ID, 4))

	require.NoError(t, m.ConvertOffline(start))

	staged := m.Staged()
	require.Len(t, staged, 1)
	assert.Equal(t, int64(90_000), staged[0].Time)
	assert.Equal(t, KindOnline, staged[0].Kind)
	assert.True(t, staged[0].Converted)

	// Converting again, even against a different start, changes nothing.
	require.NoError(t, m.ConvertOffline(start.Add(-time.Hour)))
	assert.Equal(t, int64(90_000), m.Staged()[0].Time)
}

func TestConvertOfflineClampsPreStartCaptures(t *testing.T) {
	m, _, _, clk := newTestManager(t)

	_, err := m.Record()
	require.NoError(t, err)

	// Start instant after the capture: elapsed clamps to zero.
	require.NoError(t, m.ConvertOffline(clk.Now().Add(time.Minute)))

	working := m.Working()
	require.Len(t, working, 1)
	assert.Equal(t, int64(0), working[0].Time)
	assert.Equal(t, KindOnline, working[0].Kind)
	assert.True(t, working[0].Converted)
}

func TestConvertOfflineSkipsOnlineEntries(t *testing.T) {
	m, _, clock, clk := newTestManager(t)
	require.NoError(t, m.SetOnline(true))
	require.NoError(t, clock.Start())
	clk.Advance(30 * time.Second)

	_, err := m.Record()
	require.NoError(t, err)

	require.NoError(t, m.ConvertOffline(clk.Now().Add(-time.Hour)))

	working := m.Working()
	assert.Equal(t, int64(30_000), working[0].Time)
	assert.False(t, working[0].Converted)
}

func TestQueuesSurviveRestart(t *testing.T) {
	clk := clockwork.NewFakeClock()
	dir := t.TempDir()
	cache, err := localstore.New(dir)
	require.NoError(t, err)
	clock := raceclock.New(clk)

	m, err := NewManager(7, clock, clk, cache, &fakeSubmitter{})
	require.NoError(t, err)

	e, err := m.Record()
	require.NoError(t, err)
	e2, err := m.Record()
	require.NoError(t, err)
	require.NoError(t, m.Assign(e2.ID, 11))

	// A fresh manager over the same cache sees both queues.
	restored, err := NewManager(7, clock, clk, cache, &fakeSubmitter{})
	require.NoError(t, err)

	working := restored.Working()
	require.Len(t, working, 1)
	assert.Equal(t, e.ID, working[0].ID)

	staged := restored.Staged()
	require.Len(t, staged, 1)
	assert.Equal(t, e2.ID, staged[0].ID)
	assert.Equal(t, 11, staged[0].BibNumber)
}

func TestCachedQueuesForOtherRaceDiscarded(t *testing.T) {
	clk := clockwork.NewFakeClock()
	cache, err := localstore.New(t.TempDir())
	require.NoError(t, err)
	clock := raceclock.New(clk)

	m, err := NewManager(7, clock, clk, cache, &fakeSubmitter{})
	require.NoError(t, err)
	_, err = m.Record()
	require.NoError(t, err)

	other, err := NewManager(8, clock, clk, cache, &fakeSubmitter{})
	require.NoError(t, err)
	assert.Empty(t, other.Working())
}
