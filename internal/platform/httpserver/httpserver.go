// Package httpserver builds the portal's HTTP server with its timeout policy
// in one place.
package httpserver

import (
	"net/http"
	"time"
)

// ShutdownTimeout bounds graceful drain on SIGTERM. Secret operations are
// short writes; anything still running after this window is abandoned.
const ShutdownTimeout = 10 * time.Second

// New builds the portal server. ReadHeaderTimeout guards against slow-header
// clients holding connections open; handler-level deadlines cover the rest.
func New(addr string, handler http.Handler) *http.Server {
	return &http.Server{
		Addr:              addr,
		Handler:           handler,
		ReadHeaderTimeout: 5 * time.Second,
	}
}
