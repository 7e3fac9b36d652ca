// Package capture manages the two timestamp queues on a marshal's device:
// working (captured, not yet assigned a bib) and staged (bib assigned, ready
// to submit). Every mutation persists the full queue state to the local cache
// before returning, so a crash or page reload never loses a capture.
package capture

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/jonboulle/clockwork"

	"github.com/fellside/timekeeper/internal/api"
	"github.com/fellside/timekeeper/internal/localstore"
	"github.com/fellside/timekeeper/internal/raceclock"
)

type Kind string

const (
	KindOnline  Kind = api.KindOnline
	KindOffline Kind = api.KindOffline
)

var (
	ErrNothingStaged = errors.New("no staged timestamps to submit")
	ErrNoMarshal     = errors.New("marshal name is required")
	ErrNoCheckpoint  = errors.New("checkpoint is required")
	ErrOffline       = errors.New("cannot submit while offline")
	ErrNotFound      = errors.New("timestamp not found")
	ErrNoBib         = errors.New("bib number must be positive")
)

// Entry is one captured timestamp. Online entries hold race-relative elapsed
// milliseconds; offline entries hold a wall-clock unix-millisecond instant
// until conversion rewrites them in place.
type Entry struct {
	ID        string `json:"id"`
	RaceID    int64  `json:"raceId"`
	Time      int64  `json:"time"`
	Kind      Kind   `json:"type"`
	BibNumber int    `json:"bibNumber,omitempty"`
	Converted bool   `json:"converted,omitempty"`
	// ConvertedAt is the wall instant the offline→online rewrite happened,
	// in unix milliseconds.
	ConvertedAt int64 `json:"convertedAt,omitempty"`
}

// Submitter sends a staged batch to the timing server.
type Submitter interface {
	SubmitResults(ctx context.Context, raceID int64, entries []api.SubmitEntry, submittedBy, checkpoint string) error
}

type Manager struct {
	raceID    int64
	clock     *raceclock.Clock
	wall      clockwork.Clock
	cache     *localstore.Store
	submitter Submitter

	mu      sync.Mutex
	online  bool
	working []Entry
	staged  []Entry
}

// snapshot is the persisted form of the queues. Written whole on every
// mutation.
type snapshot struct {
	Working     []Entry   `json:"working"`
	Staged      []Entry   `json:"staged"`
	RaceID      int64     `json:"raceId"`
	Online      bool      `json:"online"`
	LastUpdated time.Time `json:"lastUpdated"`
}

// NewManager restores any persisted queues for raceID. A cached snapshot from
// a different race is discarded, not merged.
func NewManager(raceID int64, clock *raceclock.Clock, wall clockwork.Clock, cache *localstore.Store, submitter Submitter) (*Manager, error) {
	m := &Manager{
		raceID:    raceID,
		clock:     clock,
		wall:      wall,
		cache:     cache,
		submitter: submitter,
	}

	var snap snapshot
	ok, err := cache.Load(localstore.KeyTimestamps, &snap)
	if err != nil {
		return nil, fmt.Errorf("restoring timestamp queues: %w", err)
	}
	if ok && snap.RaceID == raceID {
		m.working = snap.Working
		m.staged = snap.Staged
		m.online = snap.Online
	}
	return m, nil
}

// SetOnline records the connectivity state used by Record and Submit.
func (m *Manager) SetOnline(online bool) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.online == online {
		return nil
	}
	m.online = online
	return m.persistLocked()
}

func (m *Manager) Online() bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.online
}

// Record captures the current instant into the working queue. While
// connected, or whenever the clock is live (elapsed time needs no network),
// the entry is race-relative; only a disconnected device without a running
// clock falls back to a wall-clock offline entry for later conversion.
func (m *Manager) Record() (Entry, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	e := Entry{
		ID:     uuid.Must(uuid.NewV7()).String(),
		RaceID: m.raceID,
	}
	if m.online || m.clock.Mode() == raceclock.ModeLive {
		e.Time = m.clock.Elapsed().Milliseconds()
		e.Kind = KindOnline
	} else {
		e.Time = m.wall.Now().UnixMilli()
		e.Kind = KindOffline
	}

	m.working = append(m.working, e)
	if err := m.persistLocked(); err != nil {
		return Entry{}, err
	}
	return e, nil
}

// Assign attaches a bib to a working entry and moves it to the staged queue.
func (m *Manager) Assign(id string, bib int) error {
	if bib <= 0 {
		return ErrNoBib
	}

	m.mu.Lock()
	defer m.mu.Unlock()

	i := indexOf(m.working, id)
	if i < 0 {
		return ErrNotFound
	}
	e := m.working[i]
	e.BibNumber = bib
	m.working = remove(m.working, i)
	m.staged = append(m.staged, e)
	return m.persistLocked()
}

// Unstage moves a staged entry back to the working queue, clearing its bib.
func (m *Manager) Unstage(id string) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	i := indexOf(m.staged, id)
	if i < 0 {
		return ErrNotFound
	}
	e := m.staged[i]
	e.BibNumber = 0
	m.staged = remove(m.staged, i)
	m.working = append(m.working, e)
	return m.persistLocked()
}

// Delete discards a working entry. Staged entries must be unstaged first so a
// deliberate two-step stands between a capture and its disposal.
func (m *Manager) Delete(id string) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	i := indexOf(m.working, id)
	if i < 0 {
		return ErrNotFound
	}
	m.working = remove(m.working, i)
	return m.persistLocked()
}

// Working returns a copy of the working queue in capture order.
func (m *Manager) Working() []Entry {
	m.mu.Lock()
	defer m.mu.Unlock()
	return append([]Entry(nil), m.working...)
}

// Staged returns a copy of the staged queue in staging order.
func (m *Manager) Staged() []Entry {
	m.mu.Lock()
	defer m.mu.Unlock()
	return append([]Entry(nil), m.staged...)
}

// Submit sends the whole staged queue as one batch. The queue is cleared only
// after the server acknowledges; any failure leaves it intact for retry.
func (m *Manager) Submit(ctx context.Context, marshalName, checkpoint string) error {
	if marshalName == "" {
		return ErrNoMarshal
	}
	if checkpoint == "" {
		return ErrNoCheckpoint
	}

	m.mu.Lock()
	defer m.mu.Unlock()

	if !m.online {
		return ErrOffline
	}
	if len(m.staged) == 0 {
		return ErrNothingStaged
	}

	entries := make([]api.SubmitEntry, len(m.staged))
	for i, e := range m.staged {
		entries[i] = api.SubmitEntry{
			BibNumber: e.BibNumber,
			Time:      e.Time,
			Type:      string(e.Kind),
			Converted: e.Converted,
		}
	}

	// The lock is held across the call: submission is all-or-nothing and no
	// queue mutation may interleave with it.
	if err := m.submitter.SubmitResults(ctx, m.raceID, entries, marshalName, checkpoint); err != nil {
		return fmt.Errorf("submitting %d timestamps: %w", len(entries), err)
	}

	m.staged = nil
	return m.persistLocked()
}

// ConvertOffline rewrites offline entries in both queues to race-relative
// times, given the authoritative start instant, and flips their kind to
// online. Entries captured before the start clamp to zero. Already-converted
// entries are untouched, so the call is idempotent.
func (m *Manager) ConvertOffline(timeStarted time.Time) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	start := timeStarted.UnixMilli()
	now := m.wall.Now().UnixMilli()
	changed := false

	for _, queue := range [][]Entry{m.working, m.staged} {
		for i := range queue {
			e := &queue[i]
			if e.Kind != KindOffline || e.Converted {
				continue
			}
			elapsed := e.Time - start
			if elapsed < 0 {
				elapsed = 0
			}
			e.Time = elapsed
			e.Kind = KindOnline
			e.Converted = true
			e.ConvertedAt = now
			changed = true
		}
	}

	if !changed {
		return nil
	}
	return m.persistLocked()
}

func (m *Manager) persistLocked() error {
	snap := snapshot{
		Working:     m.working,
		Staged:      m.staged,
		RaceID:      m.raceID,
		Online:      m.online,
		LastUpdated: m.wall.Now().UTC(),
	}
	if err := m.cache.Save(localstore.KeyTimestamps, snap); err != nil {
		return fmt.Errorf("persisting timestamp queues: %w", err)
	}
	return nil
}

func indexOf(entries []Entry, id string) int {
	for i, e := range entries {
		if e.ID == id {
			return i
		}
	}
	return -1
}

func remove(entries []Entry, i int) []Entry {
	return append(entries[:i:i], entries[i+1:]...)
}
