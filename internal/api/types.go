// Package api defines the wire contract between the timing server and the
// marshal client. Both internal/server and internal/raceapi build against
// these types so the two ends cannot drift apart.
package api

// Update-race actions accepted by PATCH /api/update-race.
const (
	ActionUpdateStartTime  = "update-start-time"
	ActionUpdateFinishTime = "update-finish-time"
	ActionSubmitResults    = "submit-results"
)

// TimestampKind tags how a captured timestamp was taken.
const (
	KindOnline  = "online"
	KindOffline = "offline"
)

type Pagination struct {
	Page       int `json:"page"`
	PageSize   int `json:"pageSize"`
	Total      int `json:"total"`
	TotalPages int `json:"totalPages"`
}

type RaceSummary struct {
	RaceID            int64  `json:"raceId"`
	RaceName          string `json:"raceName"`
	RaceLocation      string `json:"raceLocation"`
	ScheduledStart    *int64 `json:"scheduledStartTime"`
	ScheduledDuration int64  `json:"scheduledDuration"`
	TimeStarted       *int64 `json:"timeStarted"`
	TimeFinished      *int64 `json:"timeFinished"`
	Participants      int    `json:"participants"`
}

type RaceListResponse struct {
	Races      []RaceSummary `json:"races"`
	Pagination Pagination    `json:"pagination"`
}

// RaceDetail is the race snapshot consumed by clock reconciliation and the
// sync coordinator. Instants are unix milliseconds; durations are
// milliseconds.
type RaceDetail struct {
	RaceID            int64             `json:"raceId"`
	RaceName          string            `json:"raceName"`
	RaceLocation      string            `json:"raceLocation"`
	ScheduledStart    *int64            `json:"scheduledStartTime"`
	ScheduledDuration int64             `json:"scheduledDuration"`
	TimeStarted       *int64            `json:"timeStarted"`
	TimeFinished      *int64            `json:"timeFinished"`
	TotalCheckpoints  int               `json:"totalCheckpoints"`
	Checkpoints       []CheckpointInfo  `json:"checkpoints"`
	Marshals          []MarshalInfo     `json:"marshals"`
	Participants      []ParticipantView `json:"participants"`
	Pagination        Pagination        `json:"pagination"`
}

type CheckpointInfo struct {
	CheckpointID    int64  `json:"checkpointId"`
	CheckpointName  string `json:"checkpointName"`
	CheckpointOrder int    `json:"checkpointOrder"`
}

type MarshalInfo struct {
	MarshalID int64  `json:"marshalId"`
	FirstName string `json:"firstName"`
	LastName  string `json:"lastName"`
}

type ParticipantView struct {
	ParticipantID int64                `json:"participantId"`
	FirstName     string               `json:"firstName"`
	LastName      string               `json:"lastName"`
	BibNumber     int                  `json:"bibNumber"`
	Attended      bool                 `json:"attended"`
	TimeFinished  *int64               `json:"timeFinished"`
	Checkpoints   []CheckpointTimeView `json:"checkpoints,omitempty"`
}

type CheckpointTimeView struct {
	CheckpointID    int64  `json:"checkpointId"`
	CheckpointName  string `json:"checkpointName"`
	CheckpointOrder int    `json:"checkpointOrder"`
	TimeFinished    int64  `json:"checkpointTimeFinished"`
}

// SubmitEntry is one staged timestamp inside a submit-results batch.
type SubmitEntry struct {
	BibNumber int    `json:"bibNumber"`
	Time      int64  `json:"time"`
	Type      string `json:"type"`
	Converted bool   `json:"converted,omitempty"`
}

// UpdateRaceRequest is the PATCH /api/update-race body. Data carries the
// action-specific payload: {"startTime": ms} or {"finishTime": ms} for the
// timing actions, or the staged entry batch for submit-results.
type UpdateRaceRequest struct {
	RaceID      int64         `json:"raceId"`
	Action      string        `json:"action"`
	StartTime   *int64        `json:"-"`
	FinishTime  *int64        `json:"-"`
	Entries     []SubmitEntry `json:"-"`
	SubmittedBy string        `json:"submittedBy,omitempty"`
	Checkpoint  string        `json:"checkpoint,omitempty"`
}

type PendingTimeView struct {
	Time        int64  `json:"time"`
	SubmittedBy string `json:"submittedBy"`
	SubmittedAt string `json:"submittedAt"`
	CurrentTime *int64 `json:"currentTimeAtSubmission"`
}

type ConflictView struct {
	ParticipantID int64             `json:"participantId"`
	BibNumber     int               `json:"bibNumber"`
	FirstName     string            `json:"firstName"`
	LastName      string            `json:"lastName"`
	TimeFinished  *int64            `json:"timeFinished"`
	PendingTimes  []PendingTimeView `json:"pendingTimes"`
}

// ResolveRequest covers both POST /api/resolve-conflict and
// POST /api/reject-timestamp.
type ResolveRequest struct {
	RaceID    int64 `json:"raceId"`
	BibNumber int   `json:"bibNumber"`
	Time      int64 `json:"time"`
}

// RaceEvent is the SSE payload pushed to race subscribers.
type RaceEvent struct {
	Type      string `json:"type"`
	BibNumber int    `json:"bibNumber,omitempty"`
	Time      *int64 `json:"time,omitempty"`
}

// SSE event types.
const (
	EventRaceStarted      = "race_started"
	EventRaceFinished     = "race_finished"
	EventResultsSubmitted = "results_submitted"
	EventConflictResolved = "conflict_resolved"
	EventTimeRejected     = "timestamp_rejected"
)
