package httpapi

import (
	"compress/gzip"
	"context"
	"encoding/json"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"
	"unicode/utf8"

	"github.com/you/sanctum-chat/internal/core"
)

func TestBroadcastAfterShutdown(t *testing.T) {
	srv, _ := newTestServer(t, Options{})

	client := &streamClient{
		session: "s1",
		ch:      make(chan core.Message, 1),
	}
	srv.mu.Lock()
	srv.clients[client] = struct{}{}
	srv.mu.Unlock()

	ctx, cancel := context.WithTimeout(context.Background(), time.Second)
	defer cancel()
	if err := srv.Shutdown(ctx); err != nil {
		t.Fatalf("shutdown: %v", err)
	}

	// An in-flight request may still broadcast while the HTTP server
	// drains; it must be a no-op, not a send on a closed channel.
	srv.Broadcast("s1", core.Message{ID: "m1", SenderAlias: "ash", Content: "hi"})

	srv.mu.Lock()
	remaining := len(srv.clients)
	srv.mu.Unlock()
	if remaining != 0 {
		t.Fatalf("%d clients left registered after shutdown", remaining)
	}
}

func TestShutdownIdempotent(t *testing.T) {
	srv, _ := newTestServer(t, Options{})
	ctx := context.Background()
	if err := srv.Shutdown(ctx); err != nil {
		t.Fatalf("first shutdown: %v", err)
	}
	if err := srv.Shutdown(ctx); err != nil {
		t.Fatalf("second shutdown: %v", err)
	}
}

func TestBroadcastDropsSlowClient(t *testing.T) {
	srv, _ := newTestServer(t, Options{})

	client := &streamClient{
		session: "s1",
		ch:      make(chan core.Message), // unbuffered, nobody reading
	}
	srv.mu.Lock()
	srv.clients[client] = struct{}{}
	srv.mu.Unlock()

	done := make(chan struct{})
	go func() {
		srv.Broadcast("s1", core.Message{ID: "m1"})
		close(done)
	}()
	select {
	case <-done:
	case <-time.After(time.Second):
		t.Fatal("broadcast blocked on a slow client")
	}
}

func TestGzipResponse(t *testing.T) {
	srv, store := newTestServer(t, Options{})
	store.Save("s1", []core.Message{{
		ID: "m1", SenderAlias: "ash", Content: "hi",
		Ts: time.Date(2026, 8, 20, 12, 0, 0, 0, time.UTC), Kind: core.KindText,
	}})

	req := httptest.NewRequest(http.MethodGet, "/sessions/s1/messages", nil)
	req.Header.Set("Accept-Encoding", "gzip")
	rec := httptest.NewRecorder()
	srv.Mux().ServeHTTP(rec, req)

	if rec.Code != http.StatusOK {
		t.Fatalf("status %d", rec.Code)
	}
	if got := rec.Header().Get("Content-Encoding"); got != "gzip" {
		t.Fatalf("content-encoding %q", got)
	}
	if vary := rec.Header().Values("Vary"); len(vary) == 0 {
		t.Fatal("missing Vary header")
	}

	zr, err := gzip.NewReader(rec.Body)
	if err != nil {
		t.Fatalf("gzip reader: %v", err)
	}
	raw, err := io.ReadAll(zr)
	if err != nil {
		t.Fatalf("decompress: %v", err)
	}
	var msgs []core.Message
	if err := json.Unmarshal(raw, &msgs); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if len(msgs) != 1 || msgs[0].ID != "m1" {
		t.Fatalf("unexpected payload: %v", msgs)
	}
}

func TestGzipSkippedWithoutAcceptEncoding(t *testing.T) {
	srv, _ := newTestServer(t, Options{})
	rec := doJSON(t, srv, http.MethodGet, "/healthz", "")
	if got := rec.Header().Get("Content-Encoding"); got != "" {
		t.Fatalf("unexpected content-encoding %q", got)
	}
	if rec.Body.String() != "ok" {
		t.Fatalf("body %q", rec.Body.String())
	}
}

func TestGzipSkippedForEventStream(t *testing.T) {
	req := httptest.NewRequest(http.MethodGet, "/stream?session=s1", nil)
	req.Header.Set("Accept-Encoding", "gzip")
	req.Header.Set("Accept", "text/event-stream")
	rec := newResponseRecorder(httptest.NewRecorder())

	if _, ok := maybeGzip(rec, req); ok {
		t.Fatal("gzip applied to an event-stream request")
	}

	upgrade := httptest.NewRequest(http.MethodGet, "/ws?session=s1", nil)
	upgrade.Header.Set("Accept-Encoding", "gzip")
	upgrade.Header.Set("Upgrade", "websocket")
	if _, ok := maybeGzip(newResponseRecorder(httptest.NewRecorder()), upgrade); ok {
		t.Fatal("gzip applied to an upgrade request")
	}
}

func TestSnippetRuneBoundary(t *testing.T) {
	long := strings.Repeat("é", 40) // 80 bytes of 2-byte runes
	got := snippet(long)
	if !utf8.ValidString(got) {
		t.Fatalf("snippet tore a rune: %q", got)
	}
	if len(got) > 48 {
		t.Fatalf("snippet too long: %d bytes", len(got))
	}

	short := "hello"
	if snippet(short) != short {
		t.Fatalf("short content mangled: %q", snippet(short))
	}
}
