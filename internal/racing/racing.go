// Package racing defines the core domain types for race timing.
// It has zero external dependencies — everything here is pure Go.
package racing

import "time"

// RaceTiming holds the authoritative timing fields of a race. TimeStarted is
// set once by a manual start action; TimeFinished, once set, is never earlier
// than TimeStarted.
type RaceTiming struct {
	RaceID            int64
	Name              string
	Location          string
	ScheduledStart    *time.Time
	ScheduledDuration time.Duration
	TimeStarted       *time.Time
	TimeFinished      *time.Time
}

// Live reports whether the race is running at the given instant.
func (t RaceTiming) Live(now time.Time) bool {
	if t.TimeStarted == nil {
		return false
	}
	return t.TimeFinished == nil || !t.TimeFinished.Before(now)
}

type Participant struct {
	ID        int64
	RaceID    int64
	FirstName string
	LastName  string
	BibNumber int
	Attended  bool

	// TimeFinished is the authoritative finish time in elapsed
	// milliseconds, nil until a submission is promoted or resolved.
	TimeFinished *int64
	// PendingTimes holds unconfirmed finish-time candidates. Append-only
	// until consumed by resolve/reject.
	PendingTimes []PendingTime
	HasConflict  bool
}

// PendingTime is one unconfirmed finish-time submission. The JSON tags match
// the pending_times column encoding.
type PendingTime struct {
	Time        int64     `json:"time"`
	SubmittedBy string    `json:"submitted_by"`
	SubmittedAt time.Time `json:"submitted_at"`
	// CurrentTime records what the authoritative time was at the moment of
	// submission, so operators can compare candidates against it.
	CurrentTime *int64 `json:"current_time"`
}

type Checkpoint struct {
	ID     int64
	RaceID int64
	Name   string
	Order  int
}

// FinishCheckpoint is the distinguished checkpoint value carrying
// conflict-accumulating semantics. All other checkpoints are last-write-wins.
const FinishCheckpoint = "Finish"

type CheckpointTime struct {
	CheckpointID  int64
	ParticipantID int64
	Time          int64
}

type Marshal struct {
	ID        int64
	RaceID    int64
	FirstName string
	LastName  string
}
