package main

import (
	"fmt"
	"log/slog"
	"os"

	"github.com/jonboulle/clockwork"

	"github.com/fellside/timekeeper/internal/capture"
	"github.com/fellside/timekeeper/internal/config"
	"github.com/fellside/timekeeper/internal/localstore"
	"github.com/fellside/timekeeper/internal/raceapi"
	"github.com/fellside/timekeeper/internal/raceclock"
	"github.com/fellside/timekeeper/internal/syncer"
)

// commandContext wires the client stack lazily so flag parsing and --help
// never touch the filesystem or network.
type commandContext struct {
	raceFlag   *int64
	serverFlag *string

	cfg     config.MarshalConfig
	logger  *slog.Logger
	client  *raceapi.Client
	cache   *localstore.Store
	clock   *raceclock.Clock
	capture *capture.Manager
	sync    *syncer.Coordinator

	ready bool
}

func newCommandContext(raceFlag *int64, serverFlag *string) *commandContext {
	return &commandContext{raceFlag: raceFlag, serverFlag: serverFlag}
}

func (c *commandContext) ensure() error {
	if c.ready {
		return nil
	}

	cfg, err := config.LoadMarshal()
	if err != nil {
		return fmt.Errorf("loading config: %w", err)
	}
	if *c.serverFlag != "" {
		cfg.ServerURL = *c.serverFlag
	}
	if *c.raceFlag != 0 {
		cfg.RaceID = *c.raceFlag
	}
	c.cfg = *cfg

	c.logger = slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{
		Level: cfg.LogLevel,
	}))

	c.cache, err = localstore.New(cfg.DataDir)
	if err != nil {
		return err
	}

	clk := clockwork.NewRealClock()
	c.client = raceapi.New(cfg.ServerURL)
	c.clock = raceclock.New(clk)

	c.capture, err = capture.NewManager(cfg.RaceID, c.clock, clk, c.cache, c.client)
	if err != nil {
		return err
	}

	c.sync = syncer.New(cfg.RaceID, c.client, c.cache, c.clock, c.capture, clk, c.logger)
	c.ready = true
	return nil
}

// requireRace guards commands that act on a specific race.
func (c *commandContext) requireRace() error {
	if err := c.ensure(); err != nil {
		return err
	}
	if c.cfg.RaceID == 0 {
		return fmt.Errorf("no race selected: set TIMEKEEPER_RACE or pass --race")
	}
	return nil
}
