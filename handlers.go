package main

import (
	"encoding/json"
	"log"
	"net/http"
	"time"
)

// newHTTPServer builds the HTTP mux for App: a health check and a
// snapshot of the most recent registration solution.
func newHTTPServer(a *App) http.Handler {
	mux := http.NewServeMux()

	mux.HandleFunc("/health", func(w http.ResponseWriter, r *http.Request) {
		log.Printf("[HTTP] /health request from %s", r.RemoteAddr)
		w.Header().Set("Content-Type", "application/json")
		status := struct {
			Status    string    `json:"status"`
			Timestamp time.Time `json:"timestamp"`
		}{
			Status:    "ok",
			Timestamp: time.Now(),
		}
		if err := json.NewEncoder(w).Encode(status); err != nil {
			log.Printf("error encoding health status: %v", err)
		}
	})

	mux.HandleFunc("/solution", func(w http.ResponseWriter, r *http.Request) {
		jobID, sol, corrCount, prunedCount := a.snapshot()
		if jobID == "" {
			http.Error(w, "no solution computed yet", http.StatusServiceUnavailable)
			return
		}

		w.Header().Set("Content-Type", "application/json")
		payload := struct {
			JobID               string      `json:"job_id"`
			Valid               bool        `json:"valid"`
			Rotation            [3][3]float64 `json:"rotation"`
			Translation         [3]float64    `json:"translation"`
			CorrespondenceCount int         `json:"correspondence_count"`
			PrunedCount         int         `json:"pruned_count"`
		}{
			JobID:               jobID,
			Valid:               sol.Valid,
			Rotation:            sol.Rotation,
			Translation:         [3]float64{sol.Translation.X, sol.Translation.Y, sol.Translation.Z},
			CorrespondenceCount: corrCount,
			PrunedCount:         prunedCount,
		}
		if err := json.NewEncoder(w).Encode(payload); err != nil {
			log.Printf("error encoding solution: %v", err)
		}
	})

	return mux
}
