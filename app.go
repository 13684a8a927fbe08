package main

import (
	"fmt"
	"log"
	"net/http"
	"sync"

	"github.com/kwv/pcreg/registration"
	"github.com/kwv/pcreg/registration/telemetry"
)

// App holds the state an HTTP server needs to answer registration
// queries: the most recently computed solution plus the config that
// produced it, guarded by a mutex for concurrent handler access.
type App struct {
	cfg       registration.Config
	publisher *telemetry.Publisher

	mu       sync.RWMutex
	lastJob  string
	lastSol  registration.RegistrationSolution
	lastCorr int
	lastPrun int
}

// NewApp builds an App. publisher may be nil, which disables telemetry
// publishing entirely.
func NewApp(cfg registration.Config, publisher *telemetry.Publisher) *App {
	return &App{cfg: cfg, publisher: publisher}
}

// RecordSolution stores the latest solution for the HTTP /solution endpoint
// and, if a publisher is configured, reports it over MQTT.
func (a *App) RecordSolution(jobID string, sol registration.RegistrationSolution, corrCount, prunedCount int, ts int64) {
	a.mu.Lock()
	a.lastJob = jobID
	a.lastSol = sol
	a.lastCorr = corrCount
	a.lastPrun = prunedCount
	a.mu.Unlock()

	if a.publisher != nil {
		if err := a.publisher.Publish(jobID, sol, corrCount, prunedCount, ts); err != nil {
			log.Printf("telemetry: publish failed for %s: %v", jobID, err)
		}
	}
}

func (a *App) snapshot() (string, registration.RegistrationSolution, int, int) {
	a.mu.RLock()
	defer a.mu.RUnlock()
	return a.lastJob, a.lastSol, a.lastCorr, a.lastPrun
}

// runHTTP starts the HTTP server serving /health and /solution.
func (a *App) runHTTP(port int) error {
	mux := newHTTPServer(a)
	addr := fmt.Sprintf(":%d", port)
	log.Printf("pcreg: HTTP server listening on %s", addr)
	return http.ListenAndServe(addr, mux)
}
