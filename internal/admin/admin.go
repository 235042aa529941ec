// Package admin implements the read-only introspection HTTP endpoint
// (C12, SPEC_FULL.md §4.12): a small server owned by the process root,
// exposing call-table and location-table counters for operators. It never
// mutates anything.
package admin

import (
	"context"
	"encoding/json"
	"log/slog"
	"net/http"

	"github.com/tinysip/b2bua/internal/callslot"
	"github.com/tinysip/b2bua/internal/location"
)

// Stats is the JSON body served at GET /stats.
type Stats struct {
	ActiveCalls     int `json:"active_calls"`
	Capacity        int `json:"capacity"`
	RegisteredUsers int `json:"registered_users"`
}

// Server is the admin HTTP server.
type Server struct {
	httpSrv *http.Server
	table   *callslot.Table
	loc     *location.Table
}

// New builds an admin server listening on addr.
func New(addr string, table *callslot.Table, loc *location.Table) *Server {
	s := &Server{table: table, loc: loc}
	mux := http.NewServeMux()
	mux.HandleFunc("/stats", s.handleStats)
	s.httpSrv = &http.Server{Addr: addr, Handler: mux}
	return s
}

// Start begins serving in the background. A listen error is logged, not
// returned: admin introspection is diagnostic, not load-bearing.
func (s *Server) Start() {
	go func() {
		if err := s.httpSrv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			slog.Error("admin: server error", "error", err)
		}
	}()
}

// Close shuts the server down gracefully within ctx's deadline.
func (s *Server) Close(ctx context.Context) error {
	return s.httpSrv.Shutdown(ctx)
}

func (s *Server) handleStats(w http.ResponseWriter, _ *http.Request) {
	stats := Stats{
		ActiveCalls:     s.table.Size(),
		Capacity:        s.table.Capacity(),
		RegisteredUsers: s.loc.Count(),
	}
	w.Header().Set("Content-Type", "application/json")
	if err := json.NewEncoder(w).Encode(stats); err != nil {
		slog.Warn("admin: failed writing /stats response", "error", err)
	}
}
