package server

import (
	"database/sql"
	"log/slog"

	"github.com/go-chi/chi/v5"
	"github.com/swaggest/swgui/v5emb"
)

func addRoutes(r chi.Router, logger *slog.Logger, store Store, results *Results, broker *Broker, db *sql.DB) {
	r.Get("/openapi.json", handleOpenAPI())
	r.Mount("/docs", v5emb.New("Timekeeper API", "/openapi.json", "/docs"))
	r.Get("/healthz", handleHealth(logger, db))

	r.Route("/api", func(r chi.Router) {
		r.Get("/races", handleListRaces(store))
		r.Post("/races", handleCreateRace(logger, store))
		r.Get("/races/{raceID}", handleGetRace(store))
		r.Get("/races/{raceID}/events", handleEvents(broker))

		r.Patch("/update-race", handleUpdateRace(logger, store, results, broker))
		r.Delete("/delete-race", handleDeleteRace(logger, store))

		r.Get("/conflicts", handleListConflicts(results))
		r.Post("/resolve-conflict", handleResolveConflict(logger, results, broker))
		r.Post("/reject-timestamp", handleRejectTimestamp(logger, results, broker))
	})
}
