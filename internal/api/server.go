// Package api is the thin HTTP surface over the engine: routing,
// request decoding, and error-to-status mapping. All semantics live in
// the disk package.
package api

import (
	"net/http"

	"github.com/VictoriaMetrics/metrics"

	"drivemeta/internal/disk"
)

// Server exposes the engine's five operations plus a metrics endpoint.
type Server struct {
	svc    *disk.Service
	logger disk.Logger
}

func NewServer(svc *disk.Service, logger disk.Logger) *Server {
	return &Server{svc: svc, logger: logger}
}

// Handler builds the route table.
func (s *Server) Handler() http.Handler {
	mux := http.NewServeMux()
	mux.HandleFunc("POST /imports", s.handleImport)
	mux.HandleFunc("DELETE /delete/{id}", s.handleDelete)
	mux.HandleFunc("GET /nodes/{id}", s.handleGetNode)
	mux.HandleFunc("GET /node/{id}/history", s.handleHistory)
	mux.HandleFunc("GET /updates", s.handleUpdates)
	mux.HandleFunc("GET /metrics", func(w http.ResponseWriter, _ *http.Request) {
		metrics.WritePrometheus(w, true)
	})
	return mux
}
