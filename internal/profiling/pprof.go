// Package profiling wires the standard library's pprof handlers behind an
// optional debug HTTP endpoint, gated by config.PprofAddr.
package profiling

import (
	"context"
	"fmt"
	"net/http"
	_ "net/http/pprof"
	"os"
)

// Server is the optional debug pprof HTTP endpoint.
type Server struct {
	addr   string
	server *http.Server
}

// New builds a Server bound to addr. An empty addr disables it: Start and
// Stop both become no-ops.
func New(addr string) *Server {
	return &Server{addr: addr}
}

// Start launches the debug HTTP server in the background if addr is
// non-empty. It never blocks.
func (s *Server) Start() {
	if s.addr == "" {
		return
	}
	s.server = &http.Server{Addr: s.addr, Handler: http.DefaultServeMux}
	go func() {
		if err := s.server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			fmt.Fprintf(os.Stderr, "pprof server error: %v\n", err)
		}
	}()
}

// Stop gracefully shuts the debug server down, if it was started.
func (s *Server) Stop(ctx context.Context) error {
	if s.server == nil {
		return nil
	}
	return s.server.Shutdown(ctx)
}
