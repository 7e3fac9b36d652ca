// Package syncer keeps the marshal client aligned with the timing server: a
// periodic poll (plus on-demand nudges) probes connectivity, refreshes the
// cached race snapshot, reconciles the local race clock, and converts any
// offline timestamps once the race has an authoritative start time.
package syncer

import (
	"context"
	"log/slog"
	"time"

	"github.com/jonboulle/clockwork"

	"github.com/fellside/timekeeper/internal/api"
	"github.com/fellside/timekeeper/internal/capture"
	"github.com/fellside/timekeeper/internal/localstore"
	"github.com/fellside/timekeeper/internal/raceclock"
	"github.com/fellside/timekeeper/internal/racing"
)

// PollInterval is how often the coordinator re-syncs without being nudged.
const PollInterval = 10 * time.Second

// RaceFetcher is the server surface the coordinator needs.
type RaceFetcher interface {
	Online(ctx context.Context) bool
	Race(ctx context.Context, raceID int64, page, pageSize int) (api.RaceDetail, error)
}

type Coordinator struct {
	raceID  int64
	fetcher RaceFetcher
	cache   *localstore.Store
	clock   *raceclock.Clock
	capture *capture.Manager
	clk     clockwork.Clock
	logger  *slog.Logger

	notify chan struct{}
}

func New(raceID int64, fetcher RaceFetcher, cache *localstore.Store, clock *raceclock.Clock, queues *capture.Manager, clk clockwork.Clock, logger *slog.Logger) *Coordinator {
	return &Coordinator{
		raceID:  raceID,
		fetcher: fetcher,
		cache:   cache,
		clock:   clock,
		capture: queues,
		clk:     clk,
		logger:  logger,
		notify:  make(chan struct{}, 1),
	}
}

// Notify nudges the coordinator to refresh ahead of the next poll. Nudges
// coalesce: any number of calls while a refresh is pending produce one
// refresh.
func (c *Coordinator) Notify() {
	select {
	case c.notify <- struct{}{}:
	default:
	}
}

// Run refreshes immediately, then on every poll tick or nudge until ctx is
// cancelled. All refreshes happen on this goroutine, so they never overlap.
func (c *Coordinator) Run(ctx context.Context) error {
	if _, err := c.Refresh(ctx); err != nil {
		c.logger.Warn("initial sync failed", "error", err)
	}

	ticker := c.clk.NewTicker(PollInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-ticker.Chan():
		case <-c.notify:
		}

		if _, err := c.Refresh(ctx); err != nil {
			c.logger.Warn("sync failed", "error", err)
		}
	}
}

// Refresh performs one sync pass and returns the race timing it reconciled
// against. Offline passes fall back to the cached snapshot; with no cache the
// local clock state is simply left alone.
func (c *Coordinator) Refresh(ctx context.Context) (racing.RaceTiming, error) {
	online := c.fetcher.Online(ctx)
	if err := c.capture.SetOnline(online); err != nil {
		c.logger.Warn("persisting connectivity state failed", "error", err)
	}

	var detail api.RaceDetail
	if online {
		d, err := c.fetcher.Race(ctx, c.raceID, 0, 0)
		if err != nil {
			return racing.RaceTiming{}, err
		}
		detail = d
		if err := c.cache.Save(localstore.KeyRace, detail); err != nil {
			c.logger.Warn("caching race snapshot failed", "error", err)
		}
	} else {
		ok, err := c.cache.Load(localstore.KeyRace, &detail)
		if err != nil {
			return racing.RaceTiming{}, err
		}
		if !ok || detail.RaceID != c.raceID {
			// Offline with nothing cached: leave the clock as-is.
			return racing.RaceTiming{RaceID: c.raceID}, nil
		}
	}

	timing := timingFromDetail(detail)
	c.clock.Reconcile(timing)

	if timing.TimeStarted != nil {
		if err := c.capture.ConvertOffline(*timing.TimeStarted); err != nil {
			c.logger.Warn("converting offline timestamps failed", "error", err)
		}
	}
	return timing, nil
}

func timingFromDetail(d api.RaceDetail) racing.RaceTiming {
	return racing.RaceTiming{
		RaceID:            d.RaceID,
		Name:              d.RaceName,
		Location:          d.RaceLocation,
		ScheduledStart:    millisToTime(d.ScheduledStart),
		ScheduledDuration: time.Duration(d.ScheduledDuration) * time.Millisecond,
		TimeStarted:       millisToTime(d.TimeStarted),
		TimeFinished:      millisToTime(d.TimeFinished),
	}
}

func millisToTime(ms *int64) *time.Time {
	if ms == nil {
		return nil
	}
	t := time.UnixMilli(*ms).UTC()
	return &t
}
