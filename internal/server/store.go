package server

import (
	"context"
	"errors"
	"time"

	"github.com/fellside/timekeeper/internal/api"
	"github.com/fellside/timekeeper/internal/racing"
)

var ErrNotFound = errors.New("not found")

// NewRace bundles everything created at race setup. Bib numbers are assigned
// server-side in participant order, starting at 1.
type NewRace struct {
	Name              string
	Location          string
	ScheduledStart    *time.Time
	ScheduledDuration time.Duration
	Checkpoints       []string
	Marshals          []racing.Marshal
	Participants      []racing.Participant
}

type Store interface {
	ListRaces(ctx context.Context, page, pageSize int) ([]api.RaceSummary, int, error)
	RaceTiming(ctx context.Context, raceID int64) (racing.RaceTiming, error)
	CreateRace(ctx context.Context, req NewRace) (int64, error)
	DeleteRace(ctx context.Context, raceID int64) error
	SetStartTime(ctx context.Context, raceID int64, t time.Time) error
	SetFinishTime(ctx context.Context, raceID int64, t time.Time) error

	Checkpoints(ctx context.Context, raceID int64) ([]racing.Checkpoint, error)
	Marshals(ctx context.Context, raceID int64) ([]racing.Marshal, error)
	Participants(ctx context.Context, raceID int64, page, pageSize int) ([]racing.Participant, int, error)
	ParticipantByBib(ctx context.Context, raceID int64, bib int) (racing.Participant, error)
	ParticipantCheckpointTimes(ctx context.Context, participantID int64) ([]api.CheckpointTimeView, error)

	// UpdateParticipantResult writes the conflict bookkeeping fields of one
	// participant in a single statement.
	UpdateParticipantResult(ctx context.Context, raceID int64, bib int, timeFinished *int64, pending []racing.PendingTime, hasConflict bool) error
	UpsertCheckpointTime(ctx context.Context, checkpointID, participantID, elapsed int64) error
	ConflictParticipants(ctx context.Context, raceID int64) ([]racing.Participant, error)
}
