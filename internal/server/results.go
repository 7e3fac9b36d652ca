package server

import (
	"context"
	"errors"
	"fmt"
	"strconv"
	"time"

	"github.com/jonboulle/clockwork"

	"github.com/fellside/timekeeper/internal/api"
	"github.com/fellside/timekeeper/internal/racing"
)

// ErrInvalid marks submissions rejected before any state mutation.
var ErrInvalid = errors.New("invalid submission")

// Results is the authoritative finish-time engine. All writes to a
// participant's conflict fields go through a per-(race,bib) lock: the store
// has no transactions around the read-modify-write of pending_times, so the
// engine serializes concurrent submissions for the same bib itself.
type Results struct {
	store Store
	clock clockwork.Clock
	locks *keyedMutex
}

func NewResults(store Store, clock clockwork.Clock) *Results {
	return &Results{
		store: store,
		clock: clock,
		locks: newKeyedMutex(),
	}
}

// SubmitBatch applies one staged-timestamp batch. Validation happens up
// front; a NotFound on any entry aborts the rest of the batch so the client
// retries it as a unit.
func (e *Results) SubmitBatch(ctx context.Context, raceID int64, entries []api.SubmitEntry, submittedBy, checkpoint string) error {
	if len(entries) == 0 {
		return fmt.Errorf("%w: no staged timestamps", ErrInvalid)
	}
	if submittedBy == "" {
		return fmt.Errorf("%w: missing marshal", ErrInvalid)
	}
	if checkpoint == "" {
		return fmt.Errorf("%w: missing checkpoint", ErrInvalid)
	}
	for _, entry := range entries {
		if entry.BibNumber <= 0 {
			return fmt.Errorf("%w: bib number %d", ErrInvalid, entry.BibNumber)
		}
	}

	for _, entry := range entries {
		if err := e.submitOne(ctx, raceID, entry, submittedBy, checkpoint); err != nil {
			return err
		}
	}
	return nil
}

func (e *Results) submitOne(ctx context.Context, raceID int64, entry api.SubmitEntry, submittedBy, checkpoint string) error {
	if checkpoint != racing.FinishCheckpoint {
		return e.recordCheckpointTime(ctx, raceID, entry, checkpoint)
	}

	unlock := e.locks.lock(bibKey(raceID, entry.BibNumber))
	defer unlock()

	p, err := e.store.ParticipantByBib(ctx, raceID, entry.BibNumber)
	if err != nil {
		return err
	}

	hadConflict := p.TimeFinished != nil || len(p.PendingTimes) > 0

	pending := append(p.PendingTimes, racing.PendingTime{
		Time:        entry.Time,
		SubmittedBy: submittedBy,
		SubmittedAt: e.clock.Now().UTC(),
		CurrentTime: p.TimeFinished,
	})

	if !hadConflict {
		// First submission ever recorded for this bib: promote immediately.
		return e.store.UpdateParticipantResult(ctx, raceID, entry.BibNumber, &entry.Time, nil, false)
	}
	return e.store.UpdateParticipantResult(ctx, raceID, entry.BibNumber, p.TimeFinished, pending, true)
}

func (e *Results) recordCheckpointTime(ctx context.Context, raceID int64, entry api.SubmitEntry, checkpoint string) error {
	checkpointID, err := strconv.ParseInt(checkpoint, 10, 64)
	if err != nil {
		return fmt.Errorf("%w: checkpoint %q", ErrInvalid, checkpoint)
	}

	p, err := e.store.ParticipantByBib(ctx, raceID, entry.BibNumber)
	if err != nil {
		return err
	}
	// One row per (checkpoint, participant): last write wins, no conflicts.
	return e.store.UpsertCheckpointTime(ctx, checkpointID, p.ID, entry.Time)
}

// Conflicts returns every participant awaiting operator review, ordered by
// bib number.
func (e *Results) Conflicts(ctx context.Context, raceID int64) ([]api.ConflictView, error) {
	participants, err := e.store.ConflictParticipants(ctx, raceID)
	if err != nil {
		return nil, err
	}

	conflicts := []api.ConflictView{}
	for _, p := range participants {
		view := api.ConflictView{
			ParticipantID: p.ID,
			BibNumber:     p.BibNumber,
			FirstName:     p.FirstName,
			LastName:      p.LastName,
			TimeFinished:  p.TimeFinished,
			PendingTimes:  make([]api.PendingTimeView, 0, len(p.PendingTimes)),
		}
		for _, pt := range p.PendingTimes {
			view.PendingTimes = append(view.PendingTimes, api.PendingTimeView{
				Time:        pt.Time,
				SubmittedBy: pt.SubmittedBy,
				SubmittedAt: pt.SubmittedAt.Format(time.RFC3339Nano),
				CurrentTime: pt.CurrentTime,
			})
		}
		conflicts = append(conflicts, view)
	}
	return conflicts, nil
}

// Resolve promotes acceptedTime to the authoritative finish time and clears
// all pending candidates. The accepted time is deliberately not checked
// against pendingTimes: operators may type a corrected time.
func (e *Results) Resolve(ctx context.Context, raceID int64, bib int, acceptedTime int64) error {
	unlock := e.locks.lock(bibKey(raceID, bib))
	defer unlock()

	if _, err := e.store.ParticipantByBib(ctx, raceID, bib); err != nil {
		return err
	}
	return e.store.UpdateParticipantResult(ctx, raceID, bib, &acceptedTime, nil, false)
}

// Reject removes the first pending entry whose time equals rejectedTime and
// recomputes the conflict flag. The authoritative time is left untouched,
// even when the last candidate is rejected and no time was ever promoted.
func (e *Results) Reject(ctx context.Context, raceID int64, bib int, rejectedTime int64) error {
	unlock := e.locks.lock(bibKey(raceID, bib))
	defer unlock()

	p, err := e.store.ParticipantByBib(ctx, raceID, bib)
	if err != nil {
		return err
	}

	pending := p.PendingTimes
	for i, pt := range pending {
		if pt.Time == rejectedTime {
			pending = append(pending[:i:i], pending[i+1:]...)
			break
		}
	}

	return e.store.UpdateParticipantResult(ctx, raceID, bib, p.TimeFinished, pending, len(pending) > 0)
}

func bibKey(raceID int64, bib int) string {
	return strconv.FormatInt(raceID, 10) + "/" + strconv.Itoa(bib)
}
