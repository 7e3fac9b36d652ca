package server

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/fellside/timekeeper/internal/api"
	"github.com/fellside/timekeeper/internal/racing"
)

type SQLiteStore struct {
	db *sql.DB
}

func NewSQLiteStore(db *sql.DB) *SQLiteStore {
	return &SQLiteStore{db: db}
}

func (s *SQLiteStore) ListRaces(ctx context.Context, page, pageSize int) ([]api.RaceSummary, int, error) {
	offset := (page - 1) * pageSize
	rows, err := s.db.QueryContext(ctx, `
		SELECT r.race_id, r.race_name, r.race_location,
			r.scheduled_start_time, r.scheduled_duration,
			r.time_started, r.time_finished,
			(SELECT COUNT(*) FROM participants p WHERE p.race_id = r.race_id)
		FROM races r
		ORDER BY r.race_id DESC
		LIMIT ? OFFSET ?
	`, pageSize, offset)
	if err != nil {
		return nil, 0, err
	}
	defer rows.Close()

	var races []api.RaceSummary
	for rows.Next() {
		var r api.RaceSummary
		var scheduled, started, finished sql.NullInt64
		if err := rows.Scan(&r.RaceID, &r.RaceName, &r.RaceLocation,
			&scheduled, &r.ScheduledDuration, &started, &finished, &r.Participants); err != nil {
			return nil, 0, err
		}
		r.ScheduledStart = nullableMillis(scheduled)
		r.TimeStarted = nullableMillis(started)
		r.TimeFinished = nullableMillis(finished)
		races = append(races, r)
	}
	if err := rows.Err(); err != nil {
		return nil, 0, err
	}

	var total int
	if err := s.db.QueryRowContext(ctx, `SELECT COUNT(*) FROM races`).Scan(&total); err != nil {
		return nil, 0, err
	}
	return races, total, nil
}

func (s *SQLiteStore) RaceTiming(ctx context.Context, raceID int64) (racing.RaceTiming, error) {
	var t racing.RaceTiming
	var scheduled, started, finished sql.NullInt64
	var duration int64
	err := s.db.QueryRowContext(ctx, `
		SELECT race_id, race_name, race_location,
			scheduled_start_time, scheduled_duration, time_started, time_finished
		FROM races
		WHERE race_id = ?
	`, raceID).Scan(&t.RaceID, &t.Name, &t.Location, &scheduled, &duration, &started, &finished)
	if errors.Is(err, sql.ErrNoRows) {
		return t, ErrNotFound
	}
	if err != nil {
		return t, err
	}
	t.ScheduledDuration = time.Duration(duration) * time.Millisecond
	t.ScheduledStart = nullableTime(scheduled)
	t.TimeStarted = nullableTime(started)
	t.TimeFinished = nullableTime(finished)
	return t, nil
}

func (s *SQLiteStore) CreateRace(ctx context.Context, req NewRace) (int64, error) {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return 0, err
	}
	defer tx.Rollback()

	var scheduled any
	if req.ScheduledStart != nil {
		scheduled = req.ScheduledStart.UnixMilli()
	}

	var raceID int64
	err = tx.QueryRowContext(ctx, `
		INSERT INTO races (race_name, race_location, scheduled_start_time, scheduled_duration, time_started, time_finished)
		VALUES (?, ?, ?, ?, NULL, NULL)
		RETURNING race_id
	`, req.Name, req.Location, scheduled, req.ScheduledDuration.Milliseconds()).Scan(&raceID)
	if err != nil {
		return 0, fmt.Errorf("inserting race: %w", err)
	}

	for order, name := range req.Checkpoints {
		if _, err := tx.ExecContext(ctx, `
			INSERT INTO checkpoints (race_id, checkpoint_name, checkpoint_order)
			VALUES (?, ?, ?)
		`, raceID, name, order+1); err != nil {
			return 0, fmt.Errorf("inserting checkpoint %q: %w", name, err)
		}
	}

	for _, m := range req.Marshals {
		if _, err := tx.ExecContext(ctx, `
			INSERT INTO marshals (race_id, first_name, last_name)
			VALUES (?, ?, ?)
		`, raceID, m.FirstName, m.LastName); err != nil {
			return 0, fmt.Errorf("inserting marshal: %w", err)
		}
	}

	for _, p := range req.Participants {
		if _, err := tx.ExecContext(ctx, `
			INSERT INTO participants (race_id, first_name, last_name, bib_number)
			VALUES (?, ?, ?, COALESCE((SELECT MAX(bib_number) + 1 FROM participants WHERE race_id = ?), 1))
		`, raceID, p.FirstName, p.LastName, raceID); err != nil {
			return 0, fmt.Errorf("inserting participant: %w", err)
		}
	}

	if err := tx.Commit(); err != nil {
		return 0, err
	}
	return raceID, nil
}

func (s *SQLiteStore) DeleteRace(ctx context.Context, raceID int64) error {
	// Child rows cascade via foreign keys.
	result, err := s.db.ExecContext(ctx, `DELETE FROM races WHERE race_id = ?`, raceID)
	if err != nil {
		return err
	}
	n, _ := result.RowsAffected()
	if n == 0 {
		return ErrNotFound
	}
	return nil
}

func (s *SQLiteStore) SetStartTime(ctx context.Context, raceID int64, t time.Time) error {
	result, err := s.db.ExecContext(ctx, `
		UPDATE races SET time_started = ? WHERE race_id = ?
	`, t.UnixMilli(), raceID)
	if err != nil {
		return err
	}
	n, _ := result.RowsAffected()
	if n == 0 {
		return ErrNotFound
	}
	return nil
}

func (s *SQLiteStore) SetFinishTime(ctx context.Context, raceID int64, t time.Time) error {
	result, err := s.db.ExecContext(ctx, `
		UPDATE races SET time_finished = ? WHERE race_id = ?
	`, t.UnixMilli(), raceID)
	if err != nil {
		return err
	}
	n, _ := result.RowsAffected()
	if n == 0 {
		return ErrNotFound
	}
	return nil
}

func (s *SQLiteStore) Checkpoints(ctx context.Context, raceID int64) ([]racing.Checkpoint, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT checkpoint_id, race_id, checkpoint_name, checkpoint_order
		FROM checkpoints
		WHERE race_id = ?
		ORDER BY checkpoint_order
	`, raceID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var checkpoints []racing.Checkpoint
	for rows.Next() {
		var c racing.Checkpoint
		if err := rows.Scan(&c.ID, &c.RaceID, &c.Name, &c.Order); err != nil {
			return nil, err
		}
		checkpoints = append(checkpoints, c)
	}
	return checkpoints, rows.Err()
}

func (s *SQLiteStore) Marshals(ctx context.Context, raceID int64) ([]racing.Marshal, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT marshal_id, race_id, first_name, last_name
		FROM marshals
		WHERE race_id = ?
		ORDER BY marshal_id
	`, raceID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var marshals []racing.Marshal
	for rows.Next() {
		var m racing.Marshal
		if err := rows.Scan(&m.ID, &m.RaceID, &m.FirstName, &m.LastName); err != nil {
			return nil, err
		}
		marshals = append(marshals, m)
	}
	return marshals, rows.Err()
}

func (s *SQLiteStore) Participants(ctx context.Context, raceID int64, page, pageSize int) ([]racing.Participant, int, error) {
	offset := (page - 1) * pageSize
	rows, err := s.db.QueryContext(ctx, `
		SELECT participant_id, race_id, first_name, last_name, bib_number,
			attended, time_finished, pending_times, has_conflict
		FROM participants
		WHERE race_id = ?
		ORDER BY participant_id
		LIMIT ? OFFSET ?
	`, raceID, pageSize, offset)
	if err != nil {
		return nil, 0, err
	}
	defer rows.Close()

	var participants []racing.Participant
	for rows.Next() {
		p, err := scanParticipant(rows)
		if err != nil {
			return nil, 0, err
		}
		participants = append(participants, p)
	}
	if err := rows.Err(); err != nil {
		return nil, 0, err
	}

	var total int
	err = s.db.QueryRowContext(ctx, `
		SELECT COUNT(*) FROM participants WHERE race_id = ?
	`, raceID).Scan(&total)
	return participants, total, err
}

func (s *SQLiteStore) ParticipantByBib(ctx context.Context, raceID int64, bib int) (racing.Participant, error) {
	row := s.db.QueryRowContext(ctx, `
		SELECT participant_id, race_id, first_name, last_name, bib_number,
			attended, time_finished, pending_times, has_conflict
		FROM participants
		WHERE race_id = ? AND bib_number = ?
	`, raceID, bib)
	p, err := scanParticipant(row)
	if errors.Is(err, sql.ErrNoRows) {
		return p, ErrNotFound
	}
	return p, err
}

func (s *SQLiteStore) ParticipantCheckpointTimes(ctx context.Context, participantID int64) ([]api.CheckpointTimeView, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT c.checkpoint_id, c.checkpoint_name, c.checkpoint_order, ct.time_finished
		FROM checkpoint_times ct
		JOIN checkpoints c ON ct.checkpoint_id = c.checkpoint_id
		WHERE ct.participant_id = ?
		ORDER BY c.checkpoint_order
	`, participantID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var times []api.CheckpointTimeView
	for rows.Next() {
		var ct api.CheckpointTimeView
		if err := rows.Scan(&ct.CheckpointID, &ct.CheckpointName, &ct.CheckpointOrder, &ct.TimeFinished); err != nil {
			return nil, err
		}
		times = append(times, ct)
	}
	return times, rows.Err()
}

func (s *SQLiteStore) UpdateParticipantResult(ctx context.Context, raceID int64, bib int, timeFinished *int64, pending []racing.PendingTime, hasConflict bool) error {
	var pendingJSON any
	if len(pending) > 0 {
		b, err := json.Marshal(pending)
		if err != nil {
			return fmt.Errorf("encoding pending times: %w", err)
		}
		pendingJSON = string(b)
	}

	var finished any
	if timeFinished != nil {
		finished = *timeFinished
	}

	result, err := s.db.ExecContext(ctx, `
		UPDATE participants
		SET time_finished = ?, pending_times = ?, has_conflict = ?
		WHERE race_id = ? AND bib_number = ?
	`, finished, pendingJSON, hasConflict, raceID, bib)
	if err != nil {
		return err
	}
	n, _ := result.RowsAffected()
	if n == 0 {
		return ErrNotFound
	}
	return nil
}

func (s *SQLiteStore) UpsertCheckpointTime(ctx context.Context, checkpointID, participantID, elapsed int64) error {
	_, err := s.db.ExecContext(ctx, `
		INSERT INTO checkpoint_times (checkpoint_id, participant_id, time_finished)
		VALUES (?, ?, ?)
		ON CONFLICT (checkpoint_id, participant_id) DO UPDATE SET time_finished = excluded.time_finished
	`, checkpointID, participantID, elapsed)
	return err
}

func (s *SQLiteStore) ConflictParticipants(ctx context.Context, raceID int64) ([]racing.Participant, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT participant_id, race_id, first_name, last_name, bib_number,
			attended, time_finished, pending_times, has_conflict
		FROM participants
		WHERE race_id = ? AND has_conflict = TRUE
		ORDER BY bib_number
	`, raceID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var participants []racing.Participant
	for rows.Next() {
		p, err := scanParticipant(rows)
		if err != nil {
			return nil, err
		}
		participants = append(participants, p)
	}
	return participants, rows.Err()
}

type rowScanner interface {
	Scan(dest ...any) error
}

func scanParticipant(row rowScanner) (racing.Participant, error) {
	var p racing.Participant
	var finished sql.NullInt64
	var pendingJSON sql.NullString
	err := row.Scan(&p.ID, &p.RaceID, &p.FirstName, &p.LastName, &p.BibNumber,
		&p.Attended, &finished, &pendingJSON, &p.HasConflict)
	if err != nil {
		return p, err
	}
	if finished.Valid {
		p.TimeFinished = &finished.Int64
	}
	if pendingJSON.Valid && pendingJSON.String != "" {
		if err := json.Unmarshal([]byte(pendingJSON.String), &p.PendingTimes); err != nil {
			return p, fmt.Errorf("decoding pending times for bib %d: %w", p.BibNumber, err)
		}
	}
	return p, nil
}

func nullableMillis(v sql.NullInt64) *int64 {
	if !v.Valid {
		return nil
	}
	ms := v.Int64
	return &ms
}

func nullableTime(v sql.NullInt64) *time.Time {
	if !v.Valid {
		return nil
	}
	t := time.UnixMilli(v.Int64)
	return &t
}
