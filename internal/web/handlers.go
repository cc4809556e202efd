package web

import (
	"encoding/json"
	"image/png"
	"io/fs"
	"net/http"
	"time"

	"go.uber.org/zap"
)

// Handlers holds dependencies for HTTP handlers.
type Handlers struct {
	Broadcaster *SnapshotBroadcaster
	Log         *zap.SugaredLogger
	staticFS    fs.FS
}

// NewHandlers creates handlers with the given dependencies.
func NewHandlers(broadcaster *SnapshotBroadcaster, log *zap.SugaredLogger, staticFS fs.FS) *Handlers {
	return &Handlers{
		Broadcaster: broadcaster,
		Log:         log,
		staticFS:    staticFS,
	}
}

// HandleStatus returns the latest control-loop snapshot as JSON.
func (h *Handlers) HandleStatus(w http.ResponseWriter, r *http.Request) {
	snap, ok := h.Broadcaster.Latest()
	if !ok {
		http.Error(w, "no status yet", http.StatusServiceUnavailable)
		return
	}
	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(snap)
}

// HandleScreen serves the last rendered display frame as a PNG, so a
// browser can mirror the physical LCD.
func (h *Handlers) HandleScreen(w http.ResponseWriter, r *http.Request) {
	snap, ok := h.Broadcaster.Latest()
	if !ok || snap.Frame == nil {
		http.Error(w, "no frame yet", http.StatusNotFound)
		return
	}
	w.Header().Set("Content-Type", "image/png")
	w.Header().Set("Cache-Control", "no-store")
	if err := png.Encode(w, snap.Frame); err != nil {
		h.Log.Errorw("screen encode failed", "error", err)
	}
}

// HandleLastArtifact serves the most recently saved capture from disk.
func (h *Handlers) HandleLastArtifact(w http.ResponseWriter, r *http.Request) {
	snap, ok := h.Broadcaster.Latest()
	if !ok || snap.LastSaved == "" {
		http.Error(w, "nothing saved yet", http.StatusNotFound)
		return
	}
	http.ServeFile(w, r, snap.LastSaved)
}

// ServeIndex serves the main HTML page (root path only).
func (h *Handlers) ServeIndex(w http.ResponseWriter, r *http.Request) {
	data, err := fs.ReadFile(h.staticFS, "index.html")
	if err != nil {
		http.Error(w, "not found", http.StatusNotFound)
		return
	}
	w.Header().Set("Content-Type", "text/html; charset=utf-8")
	w.Write(data)
}

// HandleStatusStream handles GET /status/stream for SSE.
func (h *Handlers) HandleStatusStream(w http.ResponseWriter, r *http.Request) {
	flusher, ok := w.(http.Flusher)
	if !ok {
		http.Error(w, "streaming not supported", http.StatusInternalServerError)
		return
	}

	w.Header().Set("Content-Type", "text/event-stream")
	w.Header().Set("Cache-Control", "no-cache")
	w.Header().Set("Connection", "keep-alive")
	w.Header().Set("X-Accel-Buffering", "no") // nginx

	ch, unsub := h.Broadcaster.Subscribe()
	defer unsub()

	w.Write([]byte(": connected\n\n"))
	// New clients get the current state right away, not on the next
	// transition.
	if snap, ok := h.Broadcaster.Latest(); ok {
		if data, err := json.Marshal(snap); err == nil {
			w.Write([]byte("data: " + string(data) + "\n\n"))
		}
	}
	flusher.Flush()

	// Heartbeat while idle
	ticker := time.NewTicker(30 * time.Second)
	defer ticker.Stop()

	for {
		select {
		case msg, ok := <-ch:
			if !ok {
				return
			}
			w.Write([]byte("data: " + msg + "\n\n"))
			flusher.Flush()

		case <-ticker.C:
			w.Write([]byte(": heartbeat\n\n"))
			flusher.Flush()

		case <-r.Context().Done():
			return
		}
	}
}
