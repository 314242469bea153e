// Package httputil holds the JSON response helpers shared by the debug
// routes.
package httputil

import (
	"encoding/json"
	"net/http"

	"github.com/banshee-data/boxtrack/internal/monitoring"
)

var logf = monitoring.Component("http")

// WriteJSON writes v as a JSON response with the given status code.
func WriteJSON(w http.ResponseWriter, status int, v interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		logf("failed to encode json response: %v", err)
	}
}

// WriteJSONOK writes v with status 200.
func WriteJSONOK(w http.ResponseWriter, v interface{}) {
	WriteJSON(w, http.StatusOK, v)
}

// WriteJSONError writes {"error": msg} with the given status code.
func WriteJSONError(w http.ResponseWriter, status int, msg string) {
	WriteJSON(w, status, map[string]string{"error": msg})
}
