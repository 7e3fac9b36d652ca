package server

import (
	"encoding/json"
	"net/http"

	openapi "github.com/swaggest/openapi-go"
	"github.com/swaggest/openapi-go/openapi3"

	"github.com/fellside/timekeeper/internal/api"
)

// ErrorResponse is returned for all error responses.
type ErrorResponse struct {
	Error string `json:"error"`
}

func newOpenAPISpec() *openapi3.Spec {
	r := openapi3.NewReflector()
	r.Spec.Info.Title = "Timekeeper API"
	r.Spec.Info.Version = "0.1.0"
	r.Spec.Info.WithDescription("Race timing API: race snapshots, timestamp submission, and finish-time conflict resolution.")

	// GET /healthz
	getHealthz, _ := r.NewOperationContext(http.MethodGet, "/healthz")
	getHealthz.SetSummary("Health check")
	getHealthz.SetDescription("Returns the health status of backend dependencies. Marshal clients use it as their connectivity probe.")
	getHealthz.AddRespStructure(HealthResponse{}, openapi.WithHTTPStatus(http.StatusOK))
	getHealthz.AddRespStructure(HealthResponse{}, openapi.WithHTTPStatus(http.StatusServiceUnavailable))
	_ = r.AddOperation(getHealthz)

	// GET /api/races
	listRaces, _ := r.NewOperationContext(http.MethodGet, "/api/races")
	listRaces.SetSummary("List races")
	listRaces.SetDescription("Returns all races with participant counts, paginated.")
	listRaces.AddRespStructure(api.RaceListResponse{}, openapi.WithHTTPStatus(http.StatusOK))
	_ = r.AddOperation(listRaces)

	// POST /api/races
	createRace, _ := r.NewOperationContext(http.MethodPost, "/api/races")
	createRace.SetSummary("Create race")
	createRace.SetDescription("Creates a race with its checkpoints, marshals, and participants. Bib numbers are assigned in order.")
	createRace.AddReqStructure(CreateRaceRequest{})
	createRace.AddRespStructure(CreateRaceResponse{}, openapi.WithHTTPStatus(http.StatusCreated))
	createRace.AddRespStructure(ErrorResponse{}, openapi.WithHTTPStatus(http.StatusBadRequest))
	_ = r.AddOperation(createRace)

	// GET /api/races/{raceID}
	getRace, _ := r.NewOperationContext(http.MethodGet, "/api/races/{raceID}")
	getRace.SetSummary("Get race snapshot")
	getRace.SetDescription("Returns timing fields plus paginated participants with checkpoint times. Consumed by clock reconciliation and the sync coordinator.")
	getRace.AddRespStructure(api.RaceDetail{}, openapi.WithHTTPStatus(http.StatusOK))
	getRace.AddRespStructure(ErrorResponse{}, openapi.WithHTTPStatus(http.StatusNotFound))
	_ = r.AddOperation(getRace)

	// GET /api/races/{raceID}/events
	getEvents, _ := r.NewOperationContext(http.MethodGet, "/api/races/{raceID}/events")
	getEvents.SetSummary("SSE event stream")
	getEvents.SetDescription("Server-Sent Events stream of race updates: starts, finishes, result submissions, conflict resolutions.")
	getEvents.AddRespStructure(nil, openapi.WithHTTPStatus(http.StatusOK),
		openapi.WithContentType("text/event-stream"))
	_ = r.AddOperation(getEvents)

	// PATCH /api/update-race
	updateRace, _ := r.NewOperationContext(http.MethodPatch, "/api/update-race")
	updateRace.SetSummary("Update race")
	updateRace.SetDescription("Applies update-start-time, update-finish-time, or a submit-results batch of staged timestamps.")
	updateRace.AddReqStructure(api.UpdateRaceRequest{})
	updateRace.AddRespStructure(nil, openapi.WithHTTPStatus(http.StatusOK))
	updateRace.AddRespStructure(ErrorResponse{}, openapi.WithHTTPStatus(http.StatusBadRequest))
	updateRace.AddRespStructure(ErrorResponse{}, openapi.WithHTTPStatus(http.StatusNotFound))
	updateRace.AddRespStructure(ErrorResponse{}, openapi.WithHTTPStatus(http.StatusConflict))
	_ = r.AddOperation(updateRace)

	// DELETE /api/delete-race
	deleteRace, _ := r.NewOperationContext(http.MethodDelete, "/api/delete-race")
	deleteRace.SetSummary("Delete race")
	deleteRace.SetDescription("Deletes a race and all its checkpoints, marshals, and participants.")
	deleteRace.AddRespStructure(nil, openapi.WithHTTPStatus(http.StatusOK))
	deleteRace.AddRespStructure(ErrorResponse{}, openapi.WithHTTPStatus(http.StatusNotFound))
	_ = r.AddOperation(deleteRace)

	// GET /api/conflicts
	getConflicts, _ := r.NewOperationContext(http.MethodGet, "/api/conflicts")
	getConflicts.SetSummary("List conflicts")
	getConflicts.SetDescription("Returns participants with unresolved finish-time conflicts and their pending candidates, ordered by bib number.")
	getConflicts.AddRespStructure([]api.ConflictView{}, openapi.WithHTTPStatus(http.StatusOK))
	getConflicts.AddRespStructure(ErrorResponse{}, openapi.WithHTTPStatus(http.StatusBadRequest))
	_ = r.AddOperation(getConflicts)

	// POST /api/resolve-conflict
	resolve, _ := r.NewOperationContext(http.MethodPost, "/api/resolve-conflict")
	resolve.SetSummary("Resolve conflict")
	resolve.SetDescription("Promotes the given time to the authoritative finish time and clears pending candidates.")
	resolve.AddReqStructure(api.ResolveRequest{})
	resolve.AddRespStructure(nil, openapi.WithHTTPStatus(http.StatusOK))
	resolve.AddRespStructure(ErrorResponse{}, openapi.WithHTTPStatus(http.StatusNotFound))
	_ = r.AddOperation(resolve)

	// POST /api/reject-timestamp
	reject, _ := r.NewOperationContext(http.MethodPost, "/api/reject-timestamp")
	reject.SetSummary("Reject timestamp")
	reject.SetDescription("Removes one pending finish-time candidate without touching the authoritative time.")
	reject.AddReqStructure(api.ResolveRequest{})
	reject.AddRespStructure(nil, openapi.WithHTTPStatus(http.StatusOK))
	reject.AddRespStructure(ErrorResponse{}, openapi.WithHTTPStatus(http.StatusNotFound))
	_ = r.AddOperation(reject)

	return r.Spec
}

func handleOpenAPI() http.HandlerFunc {
	spec := newOpenAPISpec()
	data, _ := json.MarshalIndent(spec, "", "  ")

	return func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json; charset=utf-8")
		w.WriteHeader(http.StatusOK)
		_, _ = w.Write(data)
	}
}
