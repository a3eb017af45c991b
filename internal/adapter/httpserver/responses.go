// Package httpserver contains HTTP handlers and middleware.
//
// Every coaching endpoint answers with a complete CoachResponse-shaped JSON
// body regardless of outcome; the status code alone distinguishes hard
// faults from degraded-but-successful turns.
package httpserver

import (
	"encoding/json"
	"net/http"
)

func writeJSON(w http.ResponseWriter, status int, v interface{}) {
	w.Header().Set("Content-Type", "application/json; charset=utf-8")
	w.Header().Set("Cache-Control", "no-store")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}
