package server

import (
	"errors"
	"log/slog"
	"net/http"
	"time"

	"github.com/fellside/timekeeper/internal/api"
)

func handleUpdateRace(logger *slog.Logger, store Store, results *Results, broker *Broker) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		var req api.UpdateRaceRequest
		if err := readJSON(r, &req); err != nil {
			writeError(w, http.StatusBadRequest, "invalid request body")
			return
		}
		if req.RaceID <= 0 {
			writeError(w, http.StatusBadRequest, "race id is required")
			return
		}

		timing, err := store.RaceTiming(r.Context(), req.RaceID)
		if errors.Is(err, ErrNotFound) {
			writeError(w, http.StatusNotFound, "race not found")
			return
		}
		if err != nil {
			writeError(w, http.StatusInternalServerError, "internal error")
			return
		}

		switch req.Action {
		case api.ActionUpdateStartTime:
			if req.StartTime == nil {
				writeError(w, http.StatusBadRequest, "startTime is required")
				return
			}
			// The start time is set once, by an explicit manual action.
			if timing.TimeStarted != nil {
				writeError(w, http.StatusConflict, "race already started")
				return
			}
			start := time.UnixMilli(*req.StartTime)
			if err := store.SetStartTime(r.Context(), req.RaceID, start); err != nil {
				writeError(w, http.StatusInternalServerError, "internal error")
				return
			}
			logger.Info("race started", "race_id", req.RaceID, "time_started", start)
			broker.Publish(req.RaceID, api.RaceEvent{Type: api.EventRaceStarted, Time: req.StartTime})

		case api.ActionUpdateFinishTime:
			if req.FinishTime == nil {
				writeError(w, http.StatusBadRequest, "finishTime is required")
				return
			}
			if timing.TimeStarted == nil {
				writeError(w, http.StatusConflict, "race has not started")
				return
			}
			finish := time.UnixMilli(*req.FinishTime)
			if finish.Before(*timing.TimeStarted) {
				writeError(w, http.StatusBadRequest, "finish time precedes start time")
				return
			}
			if err := store.SetFinishTime(r.Context(), req.RaceID, finish); err != nil {
				writeError(w, http.StatusInternalServerError, "internal error")
				return
			}
			logger.Info("race finished", "race_id", req.RaceID, "time_finished", finish)
			broker.Publish(req.RaceID, api.RaceEvent{Type: api.EventRaceFinished, Time: req.FinishTime})

		case api.ActionSubmitResults:
			err := results.SubmitBatch(r.Context(), req.RaceID, req.Entries, req.SubmittedBy, req.Checkpoint)
			switch {
			case errors.Is(err, ErrInvalid):
				writeError(w, http.StatusBadRequest, err.Error())
				return
			case errors.Is(err, ErrNotFound):
				writeError(w, http.StatusNotFound, "participant not found")
				return
			case err != nil:
				logger.Error("submitting results", "race_id", req.RaceID, "error", err)
				writeError(w, http.StatusInternalServerError, "internal error")
				return
			}
			logger.Info("results submitted",
				"race_id", req.RaceID,
				"entries", len(req.Entries),
				"submitted_by", req.SubmittedBy,
				"checkpoint", req.Checkpoint,
			)
			broker.Publish(req.RaceID, api.RaceEvent{Type: api.EventResultsSubmitted})

		default:
			writeError(w, http.StatusBadRequest, "unknown action")
			return
		}

		w.WriteHeader(http.StatusOK)
	}
}
