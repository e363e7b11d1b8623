package server

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"sync"

	"gocv.io/x/gocv"
)

// ErrFramesClosed is returned by Next once the buffer is closed.
var ErrFramesClosed = errors.New("frame buffer closed")

// FrameBuffer holds the most recent camera frame as JPEG bytes. The
// pipeline publishes into it and any number of stream clients read from
// it, so the camera is only read once.
type FrameBuffer struct {
	mu      sync.Mutex
	jpeg    []byte
	seq     uint64
	updated chan struct{}
	done    chan struct{}
	closed  bool
}

// NewFrameBuffer returns an empty buffer.
func NewFrameBuffer() *FrameBuffer {
	return &FrameBuffer{updated: make(chan struct{}), done: make(chan struct{})}
}

// Close ends every waiting and future Next call. Streams finish their
// current part and return.
func (b *FrameBuffer) Close() {
	b.mu.Lock()
	defer b.mu.Unlock()
	if !b.closed {
		b.closed = true
		close(b.done)
	}
}

// Publish stores a copy of jpeg as the latest frame and wakes waiters.
func (b *FrameBuffer) Publish(jpeg []byte) uint64 {
	data := append([]byte(nil), jpeg...)

	b.mu.Lock()
	defer b.mu.Unlock()
	b.jpeg = data
	b.seq++
	close(b.updated)
	b.updated = make(chan struct{})
	return b.seq
}

// PublishMat JPEG-encodes frame and publishes it.
func (b *FrameBuffer) PublishMat(frame gocv.Mat) error {
	buf, err := gocv.IMEncode(gocv.JPEGFileExt, frame)
	if err != nil {
		return fmt.Errorf("encode frame: %w", err)
	}
	defer buf.Close()
	b.Publish(buf.GetBytes())
	return nil
}

// Latest returns the current frame and its sequence number. A zero
// sequence means nothing has been published.
func (b *FrameBuffer) Latest() ([]byte, uint64) {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.jpeg, b.seq
}

// Next blocks until a frame newer than after is available.
func (b *FrameBuffer) Next(ctx context.Context, after uint64) ([]byte, uint64, error) {
	for {
		b.mu.Lock()
		if b.closed {
			b.mu.Unlock()
			return nil, after, ErrFramesClosed
		}
		if b.seq > after {
			data, seq := b.jpeg, b.seq
			b.mu.Unlock()
			return data, seq, nil
		}
		updated := b.updated
		b.mu.Unlock()

		select {
		case <-ctx.Done():
			return nil, after, ctx.Err()
		case <-b.done:
			return nil, after, ErrFramesClosed
		case <-updated:
		}
	}
}

// StreamHandler serves published frames as MJPEG.
type StreamHandler struct {
	frames *FrameBuffer
}

// NewStreamHandler creates a StreamHandler reading from frames.
func NewStreamHandler(frames *FrameBuffer) *StreamHandler {
	return &StreamHandler{frames: frames}
}

// ServeHTTP streams frames until the client goes away or the buffer is
// closed.
func (h *StreamHandler) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	w.Header().Set("Content-Type", "multipart/x-mixed-replace; boundary=frame")
	w.Header().Set("Cache-Control", "no-cache")
	w.Header().Set("Connection", "keep-alive")
	flusher, _ := w.(http.Flusher)

	var seq uint64
	for {
		data, next, err := h.frames.Next(r.Context(), seq)
		if err != nil {
			return
		}
		seq = next

		fmt.Fprintf(w, "--frame\r\nContent-Type: image/jpeg\r\nContent-Length: %d\r\n\r\n", len(data))
		if _, err := w.Write(data); err != nil {
			return
		}
		fmt.Fprint(w, "\r\n")
		if flusher != nil {
			flusher.Flush()
		}
	}
}
