package server

import (
	"errors"
	"log/slog"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/go-chi/chi/v5"

	"github.com/fellside/timekeeper/internal/api"
	"github.com/fellside/timekeeper/internal/racing"
)

const defaultPageSize = 10

// CreateRaceRequest is the race setup payload. Bib numbers are assigned by
// the store in participant order.
type CreateRaceRequest struct {
	RaceName           string       `json:"raceName"`
	RaceLocation       string       `json:"raceLocation"`
	ScheduledStartTime *int64       `json:"scheduledStartTime"`
	ScheduledDuration  int64        `json:"scheduledDuration"`
	Checkpoints        []string     `json:"checkpoints"`
	Marshals           []PersonName `json:"marshals"`
	Participants       []PersonName `json:"participants"`
}

type PersonName struct {
	FirstName string `json:"firstName"`
	LastName  string `json:"lastName"`
}

type CreateRaceResponse struct {
	RaceID int64 `json:"raceId"`
}

func handleListRaces(store Store) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		page, pageSize := pageParams(r)

		races, total, err := store.ListRaces(r.Context(), page, pageSize)
		if err != nil {
			writeError(w, http.StatusInternalServerError, "internal error")
			return
		}
		if races == nil {
			races = []api.RaceSummary{}
		}

		writeJSON(w, http.StatusOK, api.RaceListResponse{
			Races:      races,
			Pagination: paginate(page, pageSize, total),
		})
	}
}

func handleGetRace(store Store) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		raceID, err := strconv.ParseInt(chi.URLParam(r, "raceID"), 10, 64)
		if err != nil {
			writeError(w, http.StatusBadRequest, "invalid race id")
			return
		}
		page, pageSize := pageParams(r)

		timing, err := store.RaceTiming(r.Context(), raceID)
		if errors.Is(err, ErrNotFound) {
			writeError(w, http.StatusNotFound, "race not found")
			return
		}
		if err != nil {
			writeError(w, http.StatusInternalServerError, "internal error")
			return
		}

		checkpoints, err := store.Checkpoints(r.Context(), raceID)
		if err != nil {
			writeError(w, http.StatusInternalServerError, "internal error")
			return
		}
		marshals, err := store.Marshals(r.Context(), raceID)
		if err != nil {
			writeError(w, http.StatusInternalServerError, "internal error")
			return
		}
		participants, total, err := store.Participants(r.Context(), raceID, page, pageSize)
		if err != nil {
			writeError(w, http.StatusInternalServerError, "internal error")
			return
		}

		detail := api.RaceDetail{
			RaceID:            timing.RaceID,
			RaceName:          timing.Name,
			RaceLocation:      timing.Location,
			ScheduledDuration: timing.ScheduledDuration.Milliseconds(),
			ScheduledStart:    unixMillis(timing.ScheduledStart),
			TimeStarted:       unixMillis(timing.TimeStarted),
			TimeFinished:      unixMillis(timing.TimeFinished),
			TotalCheckpoints:  len(checkpoints),
			Checkpoints:       make([]api.CheckpointInfo, 0, len(checkpoints)),
			Marshals:          make([]api.MarshalInfo, 0, len(marshals)),
			Participants:      make([]api.ParticipantView, 0, len(participants)),
			Pagination:        paginate(page, pageSize, total),
		}

		for _, c := range checkpoints {
			detail.Checkpoints = append(detail.Checkpoints, api.CheckpointInfo{
				CheckpointID:    c.ID,
				CheckpointName:  c.Name,
				CheckpointOrder: c.Order,
			})
		}
		for _, m := range marshals {
			detail.Marshals = append(detail.Marshals, api.MarshalInfo{
				MarshalID: m.ID,
				FirstName: m.FirstName,
				LastName:  m.LastName,
			})
		}
		for _, p := range participants {
			times, err := store.ParticipantCheckpointTimes(r.Context(), p.ID)
			if err != nil {
				writeError(w, http.StatusInternalServerError, "internal error")
				return
			}
			detail.Participants = append(detail.Participants, api.ParticipantView{
				ParticipantID: p.ID,
				FirstName:     p.FirstName,
				LastName:      p.LastName,
				BibNumber:     p.BibNumber,
				Attended:      p.Attended,
				TimeFinished:  p.TimeFinished,
				Checkpoints:   times,
			})
		}

		writeJSON(w, http.StatusOK, detail)
	}
}

func handleCreateRace(logger *slog.Logger, store Store) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		var req CreateRaceRequest
		if err := readJSON(r, &req); err != nil {
			writeError(w, http.StatusBadRequest, "invalid request body")
			return
		}
		req.RaceName = strings.TrimSpace(req.RaceName)
		if req.RaceName == "" {
			writeError(w, http.StatusBadRequest, "race name is required")
			return
		}
		if req.ScheduledDuration < 0 {
			writeError(w, http.StatusBadRequest, "scheduled duration must not be negative")
			return
		}

		newRace := NewRace{
			Name:              req.RaceName,
			Location:          req.RaceLocation,
			ScheduledDuration: time.Duration(req.ScheduledDuration) * time.Millisecond,
			Checkpoints:       req.Checkpoints,
		}
		if req.ScheduledStartTime != nil {
			t := time.UnixMilli(*req.ScheduledStartTime)
			newRace.ScheduledStart = &t
		}
		for _, m := range req.Marshals {
			newRace.Marshals = append(newRace.Marshals, racing.Marshal{FirstName: m.FirstName, LastName: m.LastName})
		}
		for _, p := range req.Participants {
			newRace.Participants = append(newRace.Participants, racing.Participant{FirstName: p.FirstName, LastName: p.LastName})
		}

		raceID, err := store.CreateRace(r.Context(), newRace)
		if err != nil {
			logger.Error("creating race", "error", err)
			writeError(w, http.StatusInternalServerError, "internal error")
			return
		}

		writeJSON(w, http.StatusCreated, CreateRaceResponse{RaceID: raceID})
	}
}

func handleDeleteRace(logger *slog.Logger, store Store) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		raceID, err := strconv.ParseInt(r.URL.Query().Get("raceId"), 10, 64)
		if err != nil {
			writeError(w, http.StatusBadRequest, "invalid race id")
			return
		}

		err = store.DeleteRace(r.Context(), raceID)
		if errors.Is(err, ErrNotFound) {
			writeError(w, http.StatusNotFound, "race not found")
			return
		}
		if err != nil {
			writeError(w, http.StatusInternalServerError, "internal error")
			return
		}

		logger.Info("race deleted", "race_id", raceID)
		w.WriteHeader(http.StatusOK)
	}
}

func pageParams(r *http.Request) (page, pageSize int) {
	page, _ = strconv.Atoi(r.URL.Query().Get("page"))
	if page < 1 {
		page = 1
	}
	pageSize, _ = strconv.Atoi(r.URL.Query().Get("pageSize"))
	if pageSize < 1 {
		pageSize = defaultPageSize
	}
	return page, pageSize
}

func paginate(page, pageSize, total int) api.Pagination {
	return api.Pagination{
		Page:       page,
		PageSize:   pageSize,
		Total:      total,
		TotalPages: (total + pageSize - 1) / pageSize,
	}
}

func unixMillis(t *time.Time) *int64 {
	if t == nil {
		return nil
	}
	ms := t.UnixMilli()
	return &ms
}
