package httpserver

import (
	"net/http"
	"time"
)

// New builds the HTTP server. There is no WriteTimeout because tracking
// streams hold their connection open for the life of a session.
func New(addr string, handler http.Handler) *http.Server {
	return &http.Server{
		Addr:              addr,
		Handler:           handler,
		ReadHeaderTimeout: 5 * time.Second,
		ReadTimeout:       15 * time.Second,
		IdleTimeout:       90 * time.Second,
		MaxHeaderBytes:    1 << 16,
	}
}
