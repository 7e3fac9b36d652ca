package server

import (
	"context"
	"errors"
	"strconv"
	"testing"

	"github.com/jonboulle/clockwork"

	"github.com/fellside/timekeeper/internal/api"
	"github.com/fellside/timekeeper/internal/database"
	"github.com/fellside/timekeeper/internal/migrations"
	"github.com/fellside/timekeeper/internal/racing"
)

func newTestStore(t *testing.T) (Store, int64) {
	t.Helper()

	db, err := database.Open(context.Background(), ":memory:")
	if err != nil {
		t.Fatalf("opening database: %v", err)
	}
	t.Cleanup(func() { db.Close() })
	// One connection, or each pooled conn would get its own :memory: database.
	db.SetMaxOpenConns(1)

	if err := migrations.Run(db); err != nil {
		t.Fatalf("running migrations: %v", err)
	}

	store := NewSQLiteStore(db)
	raceID, err := store.CreateRace(context.Background(), NewRace{
		Name:        "Test Race",
		Location:    "Testville",
		Checkpoints: []string{"Halfway", "Summit"},
		Marshals:    []racing.Marshal{{FirstName: "Ada", LastName: "Pritchard"}},
		Participants: []racing.Participant{
			{FirstName: "Maya", LastName: "Holt"},
			{FirstName: "Owen", LastName: "Fletcher"},
			{FirstName: "Isla", LastName: "Murray"},
		},
	})
	if err != nil {
		t.Fatalf("creating race: %v", err)
	}
	return store, raceID
}

func newTestResults(t *testing.T) (*Results, Store, int64) {
	t.Helper()
	store, raceID := newTestStore(t)
	return NewResults(store, clockwork.NewFakeClock()), store, raceID
}

func submitFinish(t *testing.T, results *Results, raceID int64, bib int, elapsed int64) {
	t.Helper()
	err := results.SubmitBatch(context.Background(), raceID, []api.SubmitEntry{
		{BibNumber: bib, Time: elapsed, Type: api.KindOnline},
	}, "Ada Pritchard", racing.FinishCheckpoint)
	if err != nil {
		t.Fatalf("submitting finish time for bib %d: %v", bib, err)
	}
}

func TestSubmitFirstFinishTimePromotes(t *testing.T) {
	results, store, raceID := newTestResults(t)

	submitFinish(t, results, raceID, 1, 3661000)

	p, err := store.ParticipantByBib(context.Background(), raceID, 1)
	if err != nil {
		t.Fatalf("reading participant: %v", err)
	}
	if p.TimeFinished == nil || *p.TimeFinished != 3661000 {
		t.Errorf("TimeFinished = %v, want 3661000", p.TimeFinished)
	}
	if p.HasConflict {
		t.Error("first submission must not create a conflict")
	}
	if len(p.PendingTimes) != 0 {
		t.Errorf("PendingTimes = %v, want empty", p.PendingTimes)
	}
}

func TestSubmitSecondFinishTimeCreatesConflict(t *testing.T) {
	results, store, raceID := newTestResults(t)

	submitFinish(t, results, raceID, 1, 3661000)
	submitFinish(t, results, raceID, 1, 3665000)

	p, err := store.ParticipantByBib(context.Background(), raceID, 1)
	if err != nil {
		t.Fatalf("reading participant: %v", err)
	}
	if p.TimeFinished == nil || *p.TimeFinished != 3661000 {
		t.Errorf("TimeFinished = %v, want the original 3661000", p.TimeFinished)
	}
	if !p.HasConflict {
		t.Error("second submission must flag a conflict")
	}
	if len(p.PendingTimes) != 1 {
		t.Fatalf("PendingTimes has %d entries, want 1", len(p.PendingTimes))
	}
	pt := p.PendingTimes[0]
	if pt.Time != 3665000 {
		t.Errorf("pending time = %d, want 3665000", pt.Time)
	}
	if pt.SubmittedBy != "Ada Pritchard" {
		t.Errorf("pending submittedBy = %q", pt.SubmittedBy)
	}
	if pt.CurrentTime == nil || *pt.CurrentTime != 3661000 {
		t.Errorf("pending currentTime = %v, want 3661000", pt.CurrentTime)
	}
}

func TestSubmitBatchValidation(t *testing.T) {
	results, _, raceID := newTestResults(t)
	ctx := context.Background()

	tests := []struct {
		name       string
		entries    []api.SubmitEntry
		marshal    string
		checkpoint string
	}{
		{"empty batch", nil, "Ada", racing.FinishCheckpoint},
		{"missing marshal", []api.SubmitEntry{{BibNumber: 1, Time: 1000}}, "", racing.FinishCheckpoint},
		{"missing checkpoint", []api.SubmitEntry{{BibNumber: 1, Time: 1000}}, "Ada", ""},
		{"bad bib", []api.SubmitEntry{{BibNumber: 0, Time: 1000}}, "Ada", racing.FinishCheckpoint},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := results.SubmitBatch(ctx, raceID, tt.entries, tt.marshal, tt.checkpoint)
			if !errors.Is(err, ErrInvalid) {
				t.Errorf("SubmitBatch() = %v, want ErrInvalid", err)
			}
		})
	}
}

func TestSubmitUnknownBib(t *testing.T) {
	results, _, raceID := newTestResults(t)

	err := results.SubmitBatch(context.Background(), raceID, []api.SubmitEntry{
		{BibNumber: 99, Time: 1000},
	}, "Ada", racing.FinishCheckpoint)
	if !errors.Is(err, ErrNotFound) {
		t.Errorf("SubmitBatch() = %v, want ErrNotFound", err)
	}
}

func TestResolvePromotesAcceptedTime(t *testing.T) {
	results, store, raceID := newTestResults(t)

	submitFinish(t, results, raceID, 2, 3661000)
	submitFinish(t, results, raceID, 2, 3665000)

	if err := results.Resolve(context.Background(), raceID, 2, 3665000); err != nil {
		t.Fatalf("resolving: %v", err)
	}

	p, err := store.ParticipantByBib(context.Background(), raceID, 2)
	if err != nil {
		t.Fatalf("reading participant: %v", err)
	}
	if p.TimeFinished == nil || *p.TimeFinished != 3665000 {
		t.Errorf("TimeFinished = %v, want 3665000", p.TimeFinished)
	}
	if p.HasConflict || len(p.PendingTimes) != 0 {
		t.Errorf("conflict not cleared: hasConflict=%v pending=%v", p.HasConflict, p.PendingTimes)
	}
}

func TestResolveAcceptsOperatorTypedTime(t *testing.T) {
	// The accepted time does not have to match any pending candidate.
	results, store, raceID := newTestResults(t)

	submitFinish(t, results, raceID, 2, 3661000)
	submitFinish(t, results, raceID, 2, 3665000)

	if err := results.Resolve(context.Background(), raceID, 2, 3663000); err != nil {
		t.Fatalf("resolving: %v", err)
	}

	p, _ := store.ParticipantByBib(context.Background(), raceID, 2)
	if p.TimeFinished == nil || *p.TimeFinished != 3663000 {
		t.Errorf("TimeFinished = %v, want 3663000", p.TimeFinished)
	}
}

func TestRejectRemovesOneMatchingCandidate(t *testing.T) {
	results, store, raceID := newTestResults(t)
	ctx := context.Background()

	// Two pending candidates with the same time: rejecting removes exactly one.
	submitFinish(t, results, raceID, 3, 3661000)
	submitFinish(t, results, raceID, 3, 3665000)
	submitFinish(t, results, raceID, 3, 3665000)

	if err := results.Reject(ctx, raceID, 3, 3665000); err != nil {
		t.Fatalf("rejecting: %v", err)
	}

	p, _ := store.ParticipantByBib(ctx, raceID, 3)
	if len(p.PendingTimes) != 1 {
		t.Fatalf("PendingTimes has %d entries after first reject, want 1", len(p.PendingTimes))
	}
	if !p.HasConflict {
		t.Error("conflict must persist while candidates remain")
	}

	if err := results.Reject(ctx, raceID, 3, 3665000); err != nil {
		t.Fatalf("rejecting again: %v", err)
	}

	p, _ = store.ParticipantByBib(ctx, raceID, 3)
	if len(p.PendingTimes) != 0 {
		t.Fatalf("PendingTimes has %d entries after second reject, want 0", len(p.PendingTimes))
	}
	if p.HasConflict {
		t.Error("conflict must clear when the last candidate is rejected")
	}
	if p.TimeFinished == nil || *p.TimeFinished != 3661000 {
		t.Errorf("TimeFinished = %v, want the promoted 3661000 untouched", p.TimeFinished)
	}
}

func TestRejectUnknownTimeKeepsCandidates(t *testing.T) {
	results, store, raceID := newTestResults(t)

	submitFinish(t, results, raceID, 1, 3661000)
	submitFinish(t, results, raceID, 1, 3665000)

	if err := results.Reject(context.Background(), raceID, 1, 9999999); err != nil {
		t.Fatalf("rejecting: %v", err)
	}

	p, _ := store.ParticipantByBib(context.Background(), raceID, 1)
	if len(p.PendingTimes) != 1 || !p.HasConflict {
		t.Errorf("state changed by no-op reject: pending=%v hasConflict=%v", p.PendingTimes, p.HasConflict)
	}
}

func TestCheckpointTimesLastWriteWins(t *testing.T) {
	results, store, raceID := newTestResults(t)
	ctx := context.Background()

	checkpoints, err := store.Checkpoints(ctx, raceID)
	if err != nil {
		t.Fatalf("listing checkpoints: %v", err)
	}
	cp := strconv.FormatInt(checkpoints[0].ID, 10)

	for _, elapsed := range []int64{1800000, 1805000} {
		err := results.SubmitBatch(ctx, raceID, []api.SubmitEntry{
			{BibNumber: 1, Time: elapsed, Type: api.KindOnline},
		}, "Ada", cp)
		if err != nil {
			t.Fatalf("submitting checkpoint time: %v", err)
		}
	}

	p, _ := store.ParticipantByBib(ctx, raceID, 1)
	times, err := store.ParticipantCheckpointTimes(ctx, p.ID)
	if err != nil {
		t.Fatalf("reading checkpoint times: %v", err)
	}
	if len(times) != 1 {
		t.Fatalf("got %d checkpoint times, want 1", len(times))
	}
	if times[0].TimeFinished != 1805000 {
		t.Errorf("checkpoint time = %d, want the later 1805000", times[0].TimeFinished)
	}
	if p.HasConflict {
		t.Error("checkpoint submissions must never flag conflicts")
	}
}

func TestConflictsOrderedByBib(t *testing.T) {
	results, _, raceID := newTestResults(t)
	ctx := context.Background()

	for _, bib := range []int{3, 1} {
		submitFinish(t, results, raceID, bib, 3661000)
		submitFinish(t, results, raceID, bib, 3665000)
	}

	conflicts, err := results.Conflicts(ctx, raceID)
	if err != nil {
		t.Fatalf("listing conflicts: %v", err)
	}
	if len(conflicts) != 2 {
		t.Fatalf("got %d conflicts, want 2", len(conflicts))
	}
	if conflicts[0].BibNumber != 1 || conflicts[1].BibNumber != 3 {
		t.Errorf("conflicts ordered %d,%d; want 1,3", conflicts[0].BibNumber, conflicts[1].BibNumber)
	}
}
