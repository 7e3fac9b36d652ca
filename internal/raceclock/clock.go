// Package raceclock keeps a local view of the race clock on a marshal's
// device. Elapsed time is derived from a wall-clock anchor on every read, so
// display ticks can stall or fire late without the clock drifting. Server
// state wins: Reconcile replaces whatever the local machine thinks with the
// authoritative timing snapshot.
package raceclock

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/jonboulle/clockwork"

	"github.com/fellside/timekeeper/internal/racing"
)

type Mode string

const (
	ModeIdle      Mode = "idle"
	ModeCountdown Mode = "countdown"
	ModeLive      Mode = "live"
	ModePaused    Mode = "paused"
	ModeFinished  Mode = "finished"
)

// Countdown display tiers.
const (
	IndicatorWaiting    = "WAITING"
	IndicatorStartsSoon = "STARTS SOON"
	IndicatorStarting   = "STARTING"
	IndicatorLive       = "LIVE"
	IndicatorFinished   = "FINISHED"
)

const (
	// TickInterval is the display refresh cadence used by Run.
	TickInterval = 10 * time.Millisecond

	startsSoonWindow = time.Minute
	startingWindow   = 10 * time.Second

	// maxElapsed caps the displayed elapsed time. A clock left running past
	// this is a stale device, not a real race.
	maxElapsed = 24 * time.Hour
)

var (
	ErrFinished   = errors.New("race clock is finished")
	ErrNotRunning = errors.New("race clock is not running")
	ErrNotIdle    = errors.New("race clock is already running")
)

// Snapshot is a consistent read of the clock for display.
type Snapshot struct {
	Mode      Mode
	Elapsed   time.Duration
	Remaining time.Duration
	Indicator string
}

type Clock struct {
	clk clockwork.Clock

	mu      sync.Mutex
	mode    Mode
	anchor  time.Time     // wall instant elapsed is measured from (Live)
	frozen  time.Duration // elapsed at the moment of Pause/Finish
	target  time.Time     // countdown target (Countdown)
	waiting bool          // scheduled start has passed with no manual start
}

func New(clk clockwork.Clock) *Clock {
	return &Clock{clk: clk, mode: ModeIdle}
}

// Start begins (or resumes) live timing from the current instant, preserving
// any elapsed time accumulated before a pause.
func (c *Clock) Start() error {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.advanceCountdown(c.clk.Now())

	switch c.mode {
	case ModeFinished:
		return ErrFinished
	case ModeLive:
		return nil
	}
	c.anchor = c.clk.Now().Add(-c.frozen)
	c.mode = ModeLive
	c.waiting = false
	return nil
}

// StartCountdown arms a countdown toward target. When the target passes, the
// clock transitions to Live with the target as its zero point, so a late tick
// never shifts where elapsed time starts counting.
func (c *Clock) StartCountdown(target time.Time) error {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.mode != ModeIdle {
		return ErrNotIdle
	}
	c.mode = ModeCountdown
	c.target = target
	c.waiting = false
	return nil
}

// Pause freezes the elapsed display. Timing resumes from the frozen value on
// the next Start.
func (c *Clock) Pause() error {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.advanceCountdown(c.clk.Now())

	if c.mode != ModeLive {
		return ErrNotRunning
	}
	c.frozen = c.elapsedLocked(c.clk.Now())
	c.mode = ModePaused
	return nil
}

// Finish stops the clock permanently at its current elapsed value.
func (c *Clock) Finish() error {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.advanceCountdown(c.clk.Now())

	switch c.mode {
	case ModeFinished:
		return nil
	case ModeLive:
		c.frozen = c.elapsedLocked(c.clk.Now())
	case ModePaused:
		// frozen already holds the value
	default:
		return ErrNotRunning
	}
	c.mode = ModeFinished
	return nil
}

// Reconcile replaces the local state with the server's timing snapshot. It is
// idempotent: reconciling the same snapshot twice leaves the clock unchanged,
// and a live clock's zero point is pinned to the server's start instant so
// elapsed time never regresses between syncs.
func (c *Clock) Reconcile(t racing.RaceTiming) {
	c.mu.Lock()
	defer c.mu.Unlock()

	now := c.clk.Now()
	switch {
	case t.TimeStarted != nil && t.TimeFinished != nil && t.TimeFinished.Before(now):
		c.mode = ModeFinished
		c.frozen = t.TimeFinished.Sub(*t.TimeStarted)
		c.waiting = false
	case t.TimeStarted != nil:
		c.mode = ModeLive
		c.anchor = *t.TimeStarted
		c.waiting = false
	case t.ScheduledStart != nil && t.ScheduledStart.After(now):
		c.mode = ModeCountdown
		c.target = *t.ScheduledStart
		c.waiting = false
	case t.ScheduledStart != nil:
		// Scheduled start has passed but nobody pressed start. Hold in a
		// waiting display state rather than guessing a start time.
		c.mode = ModeIdle
		c.frozen = 0
		c.waiting = true
	default:
		c.mode = ModeIdle
		c.frozen = 0
		c.waiting = false
	}
}

func (c *Clock) Mode() Mode {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.advanceCountdown(c.clk.Now())
	return c.mode
}

// Elapsed returns the race time shown on the device right now.
func (c *Clock) Elapsed() time.Duration {
	c.mu.Lock()
	defer c.mu.Unlock()
	now := c.clk.Now()
	c.advanceCountdown(now)
	return c.elapsedLocked(now)
}

// Remaining returns the time until the countdown target, zero outside
// countdown mode.
func (c *Clock) Remaining() time.Duration {
	c.mu.Lock()
	defer c.mu.Unlock()
	now := c.clk.Now()
	c.advanceCountdown(now)
	if c.mode != ModeCountdown {
		return 0
	}
	return c.target.Sub(now)
}

// Snapshot returns mode, elapsed, remaining, and indicator in one consistent
// read.
func (c *Clock) Snapshot() Snapshot {
	c.mu.Lock()
	defer c.mu.Unlock()
	now := c.clk.Now()
	c.advanceCountdown(now)

	s := Snapshot{Mode: c.mode, Elapsed: c.elapsedLocked(now)}
	if c.mode == ModeCountdown {
		s.Remaining = c.target.Sub(now)
	}
	s.Indicator = c.indicatorLocked(now)
	return s
}

// Indicator returns the display badge for the current state.
func (c *Clock) Indicator() string {
	c.mu.Lock()
	defer c.mu.Unlock()
	now := c.clk.Now()
	c.advanceCountdown(now)
	return c.indicatorLocked(now)
}

// Run drives the display: it calls onTick with a fresh snapshot every
// TickInterval until ctx is cancelled. The ticks are purely presentational —
// elapsed time stays correct even if they stall.
func (c *Clock) Run(ctx context.Context, onTick func(Snapshot)) {
	ticker := c.clk.NewTicker(TickInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.Chan():
			onTick(c.Snapshot())
		}
	}
}

// advanceCountdown promotes an expired countdown to Live. Callers hold mu.
func (c *Clock) advanceCountdown(now time.Time) {
	if c.mode == ModeCountdown && !c.target.After(now) {
		c.mode = ModeLive
		c.anchor = c.target
		c.frozen = 0
	}
}

func (c *Clock) elapsedLocked(now time.Time) time.Duration {
	var d time.Duration
	switch c.mode {
	case ModeLive:
		d = now.Sub(c.anchor)
	case ModePaused, ModeFinished:
		d = c.frozen
	default:
		return 0
	}
	if d < 0 {
		return 0
	}
	if d > maxElapsed {
		return maxElapsed
	}
	return d
}

func (c *Clock) indicatorLocked(now time.Time) string {
	switch c.mode {
	case ModeLive:
		return IndicatorLive
	case ModeFinished:
		return IndicatorFinished
	case ModeCountdown:
		remaining := c.target.Sub(now)
		switch {
		case remaining <= startingWindow:
			return IndicatorStarting
		case remaining <= startsSoonWindow:
			return IndicatorStartsSoon
		default:
			return IndicatorWaiting
		}
	case ModeIdle:
		if c.waiting {
			return IndicatorStarting
		}
	}
	return ""
}

// FormatElapsed renders a race time as HH:MM:SS.mmm.
func FormatElapsed(d time.Duration) string {
	if d < 0 {
		d = 0
	}
	ms := d.Milliseconds()
	h := ms / 3_600_000
	m := ms / 60_000 % 60
	s := ms / 1_000 % 60
	return fmt.Sprintf("%02d:%02d:%02d.%03d", h, m, s, ms%1_000)
}

// FormatCountdown renders time-to-start as "Xd XXh XXm XXs", omitting the
// days part when zero.
func FormatCountdown(d time.Duration) string {
	if d < 0 {
		d = 0
	}
	secs := int64(d / time.Second)
	days := secs / 86_400
	h := secs / 3_600 % 24
	m := secs / 60 % 60
	s := secs % 60
	if days > 0 {
		return fmt.Sprintf("%dd %02dh %02dm %02ds", days, h, m, s)
	}
	return fmt.Sprintf("%02dh %02dm %02ds", h, m, s)
}
