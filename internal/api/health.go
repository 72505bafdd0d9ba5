package api

import (
	"context"
	"fmt"
	"net/http"
	"runtime"
	"time"
)

const (
	statusHealthy   = "healthy"
	statusUnhealthy = "unhealthy"
)

type HealthResponse struct {
	Status      string         `json:"status"`
	Timestamp   time.Time      `json:"timestamp"`
	Store       string         `json:"store"`
	Journal     string         `json:"journal"`
	Records     map[string]int `json:"records"`
	Connections map[string]int `json:"connections"`
	System      map[string]any `json:"system"`
}

// GET /health reports 503 when the store is closed or the journal fails.
func (s *Server) healthCheck(w http.ResponseWriter, r *http.Request) {
	ctx, cancel := context.WithTimeout(r.Context(), 5*time.Second)
	defer cancel()

	status := statusHealthy
	storeStatus := statusHealthy
	if err := s.deps.Store.Err(); err != nil {
		status = statusUnhealthy
		storeStatus = fmt.Sprintf("error: %v", err)
	}

	journalStatus := "disabled"
	if s.deps.Journal != nil {
		journalStatus = statusHealthy
		if err := s.deps.Journal.HealthCheck(ctx); err != nil {
			status = statusUnhealthy
			journalStatus = fmt.Sprintf("error: %v", err)
		}
	}

	connections := map[string]int{}
	if s.deps.Registry != nil {
		connections = s.deps.Registry.GetStats()
	}

	response := HealthResponse{
		Status:      status,
		Timestamp:   time.Now().UTC(),
		Store:       storeStatus,
		Journal:     journalStatus,
		Records:     s.deps.Store.Stats(),
		Connections: connections,
		System: map[string]any{
			"goroutines": runtime.NumGoroutine(),
			"uptime":     time.Since(s.started).Round(time.Second).String(),
		},
	}

	code := http.StatusOK
	if status == statusUnhealthy {
		code = http.StatusServiceUnavailable
	}
	s.writeJSON(w, code, response)
}
