package server

import (
	"bufio"
	"context"
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/gorilla/websocket"
)

func TestServer_StaticFiles(t *testing.T) {
	tmpDir := t.TempDir()

	testContent := "<html><body>Face Gift</body></html>"
	if err := os.WriteFile(filepath.Join(tmpDir, "index.html"), []byte(testContent), 0644); err != nil {
		t.Fatalf("failed to create test file: %v", err)
	}
	cssContent := "body { color: red; }"
	if err := os.WriteFile(filepath.Join(tmpDir, "style.css"), []byte(cssContent), 0644); err != nil {
		t.Fatalf("failed to create test CSS file: %v", err)
	}

	s := New(Config{StaticDir: tmpDir}, nil)

	tests := []struct {
		name   string
		path   string
		status int
		body   string
	}{
		{"index at root", "/", http.StatusOK, testContent},
		{"file by name", "/style.css", http.StatusOK, cssContent},
		{"missing file", "/nonexistent.html", http.StatusNotFound, ""},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			rec := httptest.NewRecorder()
			s.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, tt.path, nil))
			if rec.Code != tt.status {
				t.Errorf("status = %d, want %d", rec.Code, tt.status)
			}
			if tt.body != "" && rec.Body.String() != tt.body {
				t.Errorf("body = %q, want %q", rec.Body.String(), tt.body)
			}
		})
	}
}

func TestServer_NoStaticDir(t *testing.T) {
	s := New(Config{}, nil)
	rec := httptest.NewRecorder()
	s.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/", nil))
	if rec.Code != http.StatusNotFound {
		t.Errorf("status = %d, want %d", rec.Code, http.StatusNotFound)
	}
}

func TestServer_Health(t *testing.T) {
	s := New(Config{Status: func() map[string]any {
		return map[string]any{"detection_enabled": true}
	}}, nil)

	rec := httptest.NewRecorder()
	s.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/api/health", nil))
	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d", rec.Code)
	}
	var health map[string]any
	json.NewDecoder(rec.Body).Decode(&health)
	if health["status"] != "ok" || health["detection_enabled"] != true {
		t.Errorf("health = %v", health)
	}

	rec = httptest.NewRecorder()
	s.ServeHTTP(rec, httptest.NewRequest(http.MethodPost, "/api/health", nil))
	if rec.Code != http.StatusMethodNotAllowed {
		t.Errorf("POST status = %d, want %d", rec.Code, http.StatusMethodNotAllowed)
	}
}

func TestServer_UnconfiguredRoutes(t *testing.T) {
	s := New(Config{}, nil)
	for _, path := range []string{"/api/faces", "/api/events", "/api/stream", "/api/ws"} {
		rec := httptest.NewRecorder()
		s.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, path, nil))
		if rec.Code != http.StatusNotFound {
			t.Errorf("%s status = %d, want 404", path, rec.Code)
		}
	}
}

func TestFrameBuffer_Next(t *testing.T) {
	b := NewFrameBuffer()
	if _, seq := b.Latest(); seq != 0 {
		t.Fatalf("empty buffer seq = %d", seq)
	}

	got := make(chan string, 1)
	go func() {
		data, _, err := b.Next(context.Background(), 0)
		if err != nil {
			got <- err.Error()
			return
		}
		got <- string(data)
	}()

	time.Sleep(10 * time.Millisecond)
	src := []byte("frame-1")
	b.Publish(src)
	src[0] = 'X'

	select {
	case s := <-got:
		if s != "frame-1" {
			t.Errorf("Next() = %q, want frame-1", s)
		}
	case <-time.After(time.Second):
		t.Fatal("Next() did not wake on publish")
	}

	// An already newer frame returns at once.
	if data, seq, _ := b.Next(context.Background(), 0); string(data) != "frame-1" || seq != 1 {
		t.Errorf("Next(0) = %q, %d", data, seq)
	}

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Millisecond)
	defer cancel()
	if _, _, err := b.Next(ctx, 1); err == nil {
		t.Error("Next() should stop when the context ends")
	}
}

func TestStreamHandler(t *testing.T) {
	frames := NewFrameBuffer()
	ts := httptest.NewServer(New(Config{Frames: frames}, nil))
	defer ts.Close()

	frames.Publish([]byte("jpeg-bytes"))

	resp, err := ts.Client().Get(ts.URL + "/api/stream")
	if err != nil {
		t.Fatalf("GET /api/stream: %v", err)
	}
	defer resp.Body.Close()

	if ct := resp.Header.Get("Content-Type"); !strings.HasPrefix(ct, "multipart/x-mixed-replace") {
		t.Fatalf("Content-Type = %q", ct)
	}

	r := bufio.NewReader(resp.Body)
	var lines []string
	for len(lines) < 4 {
		line, err := r.ReadString('\n')
		if err != nil {
			t.Fatalf("read part: %v", err)
		}
		lines = append(lines, strings.TrimRight(line, "\r\n"))
	}
	if lines[0] != "--frame" || lines[1] != "Content-Type: image/jpeg" || lines[2] != "Content-Length: 10" {
		t.Errorf("part headers = %q", lines)
	}
	body := make([]byte, 10)
	if _, err := io.ReadFull(r, body); err != nil || string(body) != "jpeg-bytes" {
		t.Errorf("part body = %q, %v", body, err)
	}
}

func TestFrameBuffer_Close(t *testing.T) {
	b := NewFrameBuffer()
	errc := make(chan error, 1)
	go func() {
		_, _, err := b.Next(context.Background(), 0)
		errc <- err
	}()

	time.Sleep(10 * time.Millisecond)
	b.Close()
	b.Close()

	select {
	case err := <-errc:
		if !errors.Is(err, ErrFramesClosed) {
			t.Errorf("Next() error = %v, want ErrFramesClosed", err)
		}
	case <-time.After(time.Second):
		t.Fatal("Next() did not return after Close()")
	}

	b.Publish([]byte("late"))
	if _, _, err := b.Next(context.Background(), 0); !errors.Is(err, ErrFramesClosed) {
		t.Errorf("Next() after Close() error = %v", err)
	}
}

func TestServer_ShutdownEndsStreams(t *testing.T) {
	frames := NewFrameBuffer()
	srv := New(Config{Frames: frames}, nil)
	ts := httptest.NewServer(srv)
	defer ts.Close()

	frames.Publish([]byte("jpeg-bytes"))
	resp, err := ts.Client().Get(ts.URL + "/api/stream")
	if err != nil {
		t.Fatalf("GET /api/stream: %v", err)
	}
	defer resp.Body.Close()

	done := make(chan error, 1)
	go func() {
		_, err := io.Copy(io.Discard, resp.Body)
		done <- err
	}()

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	start := time.Now()
	if err := srv.Shutdown(ctx); err != nil {
		t.Fatalf("Shutdown() error = %v", err)
	}

	select {
	case <-done:
	case <-time.After(2 * time.Second):
		t.Fatal("stream still open after Shutdown()")
	}
	if elapsed := time.Since(start); elapsed > 2*time.Second {
		t.Errorf("Shutdown() took %v", elapsed)
	}
}

func TestHub_Publish(t *testing.T) {
	hub := NewHub(nil)
	ts := httptest.NewServer(New(Config{Hub: hub}, nil))
	defer ts.Close()

	url := "ws" + strings.TrimPrefix(ts.URL, "http") + "/api/ws"
	conn, _, err := websocket.DefaultDialer.Dial(url, nil)
	if err != nil {
		t.Fatalf("dial: %v", err)
	}
	defer conn.Close()

	deadline := time.Now().Add(time.Second)
	for hub.Clients() != 1 {
		if time.Now().After(deadline) {
			t.Fatal("client never registered")
		}
		time.Sleep(5 * time.Millisecond)
	}

	hub.Publish("face", map[string]string{"person_id": "person_001"})

	conn.SetReadDeadline(time.Now().Add(time.Second))
	var msg struct {
		Type string            `json:"type"`
		Data map[string]string `json:"data"`
	}
	if err := conn.ReadJSON(&msg); err != nil {
		t.Fatalf("read: %v", err)
	}
	if msg.Type != "face" || msg.Data["person_id"] != "person_001" {
		t.Errorf("message = %+v", msg)
	}

	hub.Close()
	if hub.Clients() != 0 {
		t.Errorf("Clients() = %d after Close", hub.Clients())
	}
	conn.SetReadDeadline(time.Now().Add(time.Second))
	if _, _, err := conn.ReadMessage(); err == nil {
		t.Error("connection should be closed after hub Close")
	}
}
