package server

import (
	"encoding/json"
	"net/http"
)

// writeJSON encodes v as the response body. Timing instants cross this
// boundary as unix-millisecond numbers (see internal/api), never as
// formatted strings.
func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json; charset=utf-8")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

func readJSON(r *http.Request, v any) error {
	defer r.Body.Close()
	return json.NewDecoder(r.Body).Decode(v)
}

// writeError emits the {"error": msg} shape the marshal client's StatusError
// decodes.
func writeError(w http.ResponseWriter, status int, msg string) {
	writeJSON(w, status, map[string]string{"error": msg})
}
