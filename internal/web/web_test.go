package web

import (
	"context"
	"encoding/json"
	"image"
	"image/png"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"testing/fstest"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"go.uber.org/zap"

	"github.com/openspectro/fieldbox/internal/device"
	"github.com/openspectro/fieldbox/internal/logic/machine"
)

func testSnapshot() machine.Snapshot {
	img := image.NewRGBA(image.Rect(0, 0, 128, 128))
	return machine.Snapshot{
		State:     "SPECTRA",
		IdleView:  "spectra",
		Spectro:   device.Status{Connected: true, CheckedAt: time.Now()},
		Camera:    device.Status{},
		LastSaved: "/data/spectrum_20241212102529.png",
		UpdatedAt: time.Now(),
		Frame:     img,
	}
}

func testHandlers() (*Handlers, *SnapshotBroadcaster) {
	b := NewSnapshotBroadcaster()
	staticFS := fstest.MapFS{
		"index.html": &fstest.MapFile{Data: []byte("<html>fieldbox</html>")},
	}
	return NewHandlers(b, zap.NewNop().Sugar(), staticFS), b
}

// ---------- broadcaster ----------

func TestBroadcasterLatest(t *testing.T) {
	b := NewSnapshotBroadcaster()
	if _, ok := b.Latest(); ok {
		t.Fatal("Latest reported a snapshot before any publish")
	}

	b.Publish(testSnapshot())
	snap, ok := b.Latest()
	if !ok {
		t.Fatal("Latest missing after publish")
	}
	if snap.State != "SPECTRA" {
		t.Errorf("State = %q, want SPECTRA", snap.State)
	}
}

func TestBroadcasterSubscribe(t *testing.T) {
	b := NewSnapshotBroadcaster()
	ch, unsub := b.Subscribe()
	defer unsub()

	b.Publish(testSnapshot())

	select {
	case msg := <-ch:
		var snap machine.Snapshot
		if err := json.Unmarshal([]byte(msg), &snap); err != nil {
			t.Fatalf("payload not JSON: %v", err)
		}
		if snap.State != "SPECTRA" {
			t.Errorf("State = %q, want SPECTRA", snap.State)
		}
	case <-time.After(time.Second):
		t.Fatal("no message received")
	}
}

func TestBroadcasterSlowClientSkipped(t *testing.T) {
	b := NewSnapshotBroadcaster()
	_, unsub := b.Subscribe()
	defer unsub()

	// Fill well past the channel buffer; Publish must never block.
	done := make(chan struct{})
	go func() {
		for i := 0; i < 100; i++ {
			b.Publish(testSnapshot())
		}
		close(done)
	}()
	select {
	case <-done:
	case <-time.After(2 * time.Second):
		t.Fatal("Publish blocked on a slow client")
	}
}

func TestBroadcasterUnsubscribe(t *testing.T) {
	b := NewSnapshotBroadcaster()
	ch, unsub := b.Subscribe()
	unsub()

	if _, ok := <-ch; ok {
		t.Fatal("channel not closed after unsubscribe")
	}
	// Must not panic with no subscribers.
	b.Publish(testSnapshot())
}

// ---------- handlers ----------

func TestHandleStatus(t *testing.T) {
	h, b := testHandlers()

	rec := httptest.NewRecorder()
	h.HandleStatus(rec, httptest.NewRequest(http.MethodGet, "/api/status", nil))
	if rec.Code != http.StatusServiceUnavailable {
		t.Fatalf("empty broadcaster: code = %d, want 503", rec.Code)
	}

	b.Publish(testSnapshot())
	rec = httptest.NewRecorder()
	h.HandleStatus(rec, httptest.NewRequest(http.MethodGet, "/api/status", nil))
	if rec.Code != http.StatusOK {
		t.Fatalf("code = %d, want 200", rec.Code)
	}
	var snap machine.Snapshot
	if err := json.Unmarshal(rec.Body.Bytes(), &snap); err != nil {
		t.Fatalf("body not JSON: %v", err)
	}
	if snap.LastSaved != "/data/spectrum_20241212102529.png" {
		t.Errorf("LastSaved = %q", snap.LastSaved)
	}
	if !snap.Spectro.Connected {
		t.Error("spectrometer status lost in transit")
	}
}

func TestHandleScreen(t *testing.T) {
	h, b := testHandlers()

	rec := httptest.NewRecorder()
	h.HandleScreen(rec, httptest.NewRequest(http.MethodGet, "/screen.png", nil))
	if rec.Code != http.StatusNotFound {
		t.Fatalf("no frame: code = %d, want 404", rec.Code)
	}

	b.Publish(testSnapshot())
	rec = httptest.NewRecorder()
	h.HandleScreen(rec, httptest.NewRequest(http.MethodGet, "/screen.png", nil))
	if rec.Code != http.StatusOK {
		t.Fatalf("code = %d, want 200", rec.Code)
	}
	if ct := rec.Header().Get("Content-Type"); ct != "image/png" {
		t.Errorf("Content-Type = %q", ct)
	}
	img, err := png.Decode(rec.Body)
	if err != nil {
		t.Fatalf("body not a PNG: %v", err)
	}
	if img.Bounds().Dx() != 128 || img.Bounds().Dy() != 128 {
		t.Errorf("decoded size = %v, want 128x128", img.Bounds())
	}
}

func TestHandleStatusStreamSendsCurrentState(t *testing.T) {
	h, b := testHandlers()
	b.Publish(testSnapshot())

	req := httptest.NewRequest(http.MethodGet, "/status/stream", nil)
	ctx, cancel := context.WithTimeout(req.Context(), 200*time.Millisecond)
	defer cancel()
	rec := httptest.NewRecorder()

	done := make(chan struct{})
	go func() {
		h.HandleStatusStream(rec, req.WithContext(ctx))
		close(done)
	}()
	<-done

	body := rec.Body.String()
	if !strings.Contains(body, ": connected") {
		t.Errorf("missing connection comment: %q", body)
	}
	if !strings.Contains(body, `"state":"SPECTRA"`) {
		t.Errorf("current state not replayed to new client: %q", body)
	}
}

func TestHandleLastArtifact(t *testing.T) {
	h, b := testHandlers()

	rec := httptest.NewRecorder()
	h.HandleLastArtifact(rec, httptest.NewRequest(http.MethodGet, "/artifacts/latest", nil))
	if rec.Code != http.StatusNotFound {
		t.Fatalf("nothing saved: code = %d, want 404", rec.Code)
	}

	path := filepath.Join(t.TempDir(), "spectrum_20241212102529.png")
	if err := os.WriteFile(path, []byte("not-really-a-png"), 0o644); err != nil {
		t.Fatal(err)
	}
	snap := testSnapshot()
	snap.LastSaved = path
	b.Publish(snap)

	rec = httptest.NewRecorder()
	h.HandleLastArtifact(rec, httptest.NewRequest(http.MethodGet, "/artifacts/latest", nil))
	if rec.Code != http.StatusOK {
		t.Fatalf("code = %d, want 200", rec.Code)
	}
	if rec.Body.String() != "not-really-a-png" {
		t.Errorf("body = %q", rec.Body.String())
	}
}

func TestServeIndex(t *testing.T) {
	h, _ := testHandlers()
	rec := httptest.NewRecorder()
	h.ServeIndex(rec, httptest.NewRequest(http.MethodGet, "/", nil))
	if rec.Code != http.StatusOK {
		t.Fatalf("code = %d, want 200", rec.Code)
	}
	if !strings.Contains(rec.Body.String(), "fieldbox") {
		t.Errorf("unexpected index body: %q", rec.Body.String())
	}
}

// ---------- routing ----------

func TestMuxRoutes(t *testing.T) {
	b := NewSnapshotBroadcaster()
	b.Publish(testSnapshot())
	srv := NewServer("127.0.0.1:0", b, prometheus.NewRegistry(), zap.NewNop().Sugar())
	mux := srv.Mux()

	cases := []struct {
		path string
		code int
	}{
		{"/api/status", http.StatusOK},
		{"/screen.png", http.StatusOK},
		{"/metrics", http.StatusOK},
		{"/", http.StatusOK},
		{"/nope", http.StatusNotFound},
	}
	for _, tc := range cases {
		t.Run(tc.path, func(t *testing.T) {
			rec := httptest.NewRecorder()
			mux.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, tc.path, nil))
			if rec.Code != tc.code {
				t.Errorf("GET %s = %d, want %d", tc.path, rec.Code, tc.code)
			}
		})
	}
}
