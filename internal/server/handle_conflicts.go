package server

import (
	"errors"
	"log/slog"
	"net/http"
	"strconv"

	"github.com/fellside/timekeeper/internal/api"
)

func handleListConflicts(results *Results) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		raceID, err := strconv.ParseInt(r.URL.Query().Get("raceId"), 10, 64)
		if err != nil {
			writeError(w, http.StatusBadRequest, "invalid race id")
			return
		}

		conflicts, err := results.Conflicts(r.Context(), raceID)
		if err != nil {
			writeError(w, http.StatusInternalServerError, "internal error")
			return
		}
		writeJSON(w, http.StatusOK, conflicts)
	}
}

func handleResolveConflict(logger *slog.Logger, results *Results, broker *Broker) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		req, ok := readResolveRequest(w, r)
		if !ok {
			return
		}

		err := results.Resolve(r.Context(), req.RaceID, req.BibNumber, req.Time)
		if errors.Is(err, ErrNotFound) {
			writeError(w, http.StatusNotFound, "participant not found")
			return
		}
		if err != nil {
			logger.Error("resolving conflict", "race_id", req.RaceID, "bib", req.BibNumber, "error", err)
			writeError(w, http.StatusInternalServerError, "internal error")
			return
		}

		logger.Info("conflict resolved", "race_id", req.RaceID, "bib", req.BibNumber, "time", req.Time)
		broker.Publish(req.RaceID, api.RaceEvent{
			Type:      api.EventConflictResolved,
			BibNumber: req.BibNumber,
			Time:      &req.Time,
		})
		w.WriteHeader(http.StatusOK)
	}
}

func handleRejectTimestamp(logger *slog.Logger, results *Results, broker *Broker) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		req, ok := readResolveRequest(w, r)
		if !ok {
			return
		}

		err := results.Reject(r.Context(), req.RaceID, req.BibNumber, req.Time)
		if errors.Is(err, ErrNotFound) {
			writeError(w, http.StatusNotFound, "participant not found")
			return
		}
		if err != nil {
			logger.Error("rejecting timestamp", "race_id", req.RaceID, "bib", req.BibNumber, "error", err)
			writeError(w, http.StatusInternalServerError, "internal error")
			return
		}

		logger.Info("timestamp rejected", "race_id", req.RaceID, "bib", req.BibNumber, "time", req.Time)
		broker.Publish(req.RaceID, api.RaceEvent{
			Type:      api.EventTimeRejected,
			BibNumber: req.BibNumber,
			Time:      &req.Time,
		})
		w.WriteHeader(http.StatusOK)
	}
}

func readResolveRequest(w http.ResponseWriter, r *http.Request) (api.ResolveRequest, bool) {
	var req api.ResolveRequest
	if err := readJSON(r, &req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid request body")
		return req, false
	}
	if req.RaceID <= 0 {
		writeError(w, http.StatusBadRequest, "race id is required")
		return req, false
	}
	if req.BibNumber <= 0 {
		writeError(w, http.StatusBadRequest, "bib number is required")
		return req, false
	}
	return req, true
}
