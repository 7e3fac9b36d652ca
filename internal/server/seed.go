package server

import (
	"context"
	"log/slog"
	"time"

	"github.com/fellside/timekeeper/internal/racing"
)

// SeedDemo creates a demo race with checkpoints, marshals, and participants
// if no races exist. Idempotent: does nothing otherwise.
func SeedDemo(ctx context.Context, logger *slog.Logger, store Store) error {
	_, total, err := store.ListRaces(ctx, 1, 1)
	if err != nil {
		return err
	}
	if total > 0 {
		return nil
	}

	scheduled := time.Now().Add(30 * time.Minute)
	raceID, err := store.CreateRace(ctx, NewRace{
		Name:              "Fellside Half Marathon",
		Location:          "Fellside",
		ScheduledStart:    &scheduled,
		ScheduledDuration: 4 * time.Hour,
		Checkpoints:       []string{"Quarry Gate", "Tarn Crossing", "High Ridge"},
		Marshals: []racing.Marshal{
			{FirstName: "Ada", LastName: "Pritchard"},
			{FirstName: "Tom", LastName: "Cole"},
		},
		Participants: []racing.Participant{
			{FirstName: "Maya", LastName: "Holt"},
			{FirstName: "Owen", LastName: "Fletcher"},
			{FirstName: "Isla", LastName: "Murray"},
		},
	})
	if err != nil {
		return err
	}

	logger.Info("demo race created and seeded", "race_id", raceID)
	return nil
}
