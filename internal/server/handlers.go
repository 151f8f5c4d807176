package server

import (
	"encoding/json"
	"net/http"
	"time"

	"go.uber.org/zap"

	"benchd.sh/internal/middleware"
)

// endpoint describes a route in the service info document
type endpoint struct {
	Method      string `json:"method"`
	Path        string `json:"path"`
	Description string `json:"description"`
}

type serviceInfo struct {
	Name      string     `json:"name"`
	Version   string     `json:"version"`
	Endpoints []endpoint `json:"endpoints"`
}

// handleHealth returns a freshly assembled snapshot. Probe failures are
// carried inside the document, so this always answers 200 unless encoding
// itself fails.
func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	snap := s.source.Assemble(r.Context())
	s.writeJSON(w, r, http.StatusOK, snap)
}

// handleHealthStatus returns the snapshot with an overall verdict attached
func (s *Server) handleHealthStatus(w http.ResponseWriter, r *http.Request) {
	snap := s.source.Assemble(r.Context())
	s.writeJSON(w, r, http.StatusOK, s.assessor.NewReport(snap))
}

// handleHealthLive returns liveness status (is the service running?)
func (s *Server) handleHealthLive(w http.ResponseWriter, r *http.Request) {
	s.writeJSON(w, r, http.StatusOK, map[string]any{
		"status":    "alive",
		"timestamp": time.Now().Unix(),
	})
}

func (s *Server) handleInfo(w http.ResponseWriter, r *http.Request) {
	prefix := s.config.APIPrefix
	s.writeJSON(w, r, http.StatusOK, serviceInfo{
		Name:    "benchd",
		Version: s.config.Version,
		Endpoints: []endpoint{
			{Method: http.MethodGet, Path: prefix + "/health", Description: "current system snapshot"},
			{Method: http.MethodGet, Path: prefix + "/health/status", Description: "snapshot with health assessment"},
			{Method: http.MethodGet, Path: StreamPath, Description: "websocket snapshot stream"},
			{Method: http.MethodGet, Path: "/health/live", Description: "liveness probe"},
			{Method: http.MethodGet, Path: "/metrics", Description: "prometheus metrics"},
		},
	})
}

// writeJSON marshals before writing so an encoding failure can still
// become a clean 500.
func (s *Server) writeJSON(w http.ResponseWriter, r *http.Request, status int, v any) {
	body, err := json.Marshal(v)
	if err != nil {
		s.logger.WithRequestID(middleware.GetRequestID(r.Context())).Error("Failed to encode response",
			zap.String("path", r.URL.Path),
			zap.Error(err),
		)
		middleware.WriteError(w, http.StatusInternalServerError, "failed to encode response")
		return
	}

	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_, _ = w.Write(body)
}
