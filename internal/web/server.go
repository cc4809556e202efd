package web

import (
	"context"
	"io/fs"
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"go.uber.org/zap"
)

// Server wraps the HTTP server and handlers.
type Server struct {
	addr     string
	handlers *Handlers
	metrics  http.Handler
	log      *zap.SugaredLogger
}

// NewServer creates a server configured for the given address and dependencies.
func NewServer(addr string, broadcaster *SnapshotBroadcaster, reg *prometheus.Registry, log *zap.SugaredLogger) *Server {
	subFS, err := fs.Sub(staticFiles, "static")
	if err != nil {
		log.Fatalw("failed to sub static fs", "error", err)
	}

	return &Server{
		addr:     addr,
		handlers: NewHandlers(broadcaster, log, subFS),
		metrics:  promhttp.HandlerFor(reg, promhttp.HandlerOpts{}),
		log:      log,
	}
}

// Mux returns an http.Handler with all routes registered.
func (s *Server) Mux() http.Handler {
	mux := http.NewServeMux()

	mux.HandleFunc("GET /api/status", s.handlers.HandleStatus)
	mux.HandleFunc("GET /screen.png", s.handlers.HandleScreen)
	mux.HandleFunc("GET /artifacts/latest", s.handlers.HandleLastArtifact)
	mux.HandleFunc("GET /status/stream", s.handlers.HandleStatusStream)
	mux.Handle("GET /metrics", s.metrics)
	mux.Handle("/static/", http.StripPrefix("/static/", http.FileServer(http.FS(s.handlers.staticFS))))
	mux.HandleFunc("GET /{$}", s.handlers.ServeIndex) // exact match for root only

	return mux
}

// Run starts the server and blocks until ctx is cancelled, then shuts down gracefully.
func (s *Server) Run(ctx context.Context) error {
	srv := &http.Server{Addr: s.addr, Handler: s.Mux()}
	errCh := make(chan error, 1)
	go func() {
		s.log.Infow("web server listening", "addr", s.addr)
		errCh <- srv.ListenAndServe()
	}()

	select {
	case err := <-errCh:
		if err != nil && err != http.ErrServerClosed {
			return err
		}
		return nil
	case <-ctx.Done():
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		return srv.Shutdown(shutdownCtx)
	}
}
