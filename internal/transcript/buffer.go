// Package transcript keeps recent speech segments and spots spoken
// commands in them.
package transcript

import (
	"strings"
	"sync"
	"time"
)

// DefaultMaxSegments is how many segments a buffer keeps.
const DefaultMaxSegments = 100

// Segment is one transcribed utterance.
type Segment struct {
	Seq       uint64    `json:"seq"`
	Text      string    `json:"text"`
	Timestamp time.Time `json:"timestamp"`
}

// Buffer is a bounded, concurrency-safe log of segments. Sequence numbers
// start at 1 and keep counting after old segments are evicted.
type Buffer struct {
	max int
	now func() time.Time

	mu        sync.Mutex
	segments  []Segment
	nextSeq   uint64
	processed uint64
}

// NewBuffer keeps the last max segments.
func NewBuffer(max int) *Buffer {
	if max < 1 {
		max = DefaultMaxSegments
	}
	return &Buffer{max: max, now: time.Now, nextSeq: 1}
}

// Add appends text. Blank text is ignored and returns false.
func (b *Buffer) Add(text string) (Segment, bool) {
	text = strings.TrimSpace(text)
	if text == "" {
		return Segment{}, false
	}

	b.mu.Lock()
	defer b.mu.Unlock()

	seg := Segment{Seq: b.nextSeq, Text: text, Timestamp: b.now()}
	b.nextSeq++
	b.segments = append(b.segments, seg)
	if len(b.segments) > b.max {
		b.segments = append(b.segments[:0:0], b.segments[len(b.segments)-b.max:]...)
	}
	return seg, true
}

// Latest returns the text of the newest segment, or "".
func (b *Buffer) Latest() string {
	seg, _ := b.LatestSegment()
	return seg.Text
}

// LatestSegment returns the newest segment.
func (b *Buffer) LatestSegment() (Segment, bool) {
	b.mu.Lock()
	defer b.mu.Unlock()
	if len(b.segments) == 0 {
		return Segment{}, false
	}
	return b.segments[len(b.segments)-1], true
}

// Recent joins the text of segments no older than d.
func (b *Buffer) Recent(d time.Duration) string {
	b.mu.Lock()
	defer b.mu.Unlock()

	cutoff := b.now().Add(-d)
	var parts []string
	for _, seg := range b.segments {
		if !seg.Timestamp.Before(cutoff) {
			parts = append(parts, seg.Text)
		}
	}
	return strings.Join(parts, " ")
}

// Segments returns a copy of every buffered segment, oldest first.
func (b *Buffer) Segments() []Segment {
	b.mu.Lock()
	defer b.mu.Unlock()
	return append([]Segment(nil), b.segments...)
}

// Unprocessed returns the segments added since the previous call and
// marks them processed. Segments evicted before they were read are lost.
func (b *Buffer) Unprocessed() []Segment {
	b.mu.Lock()
	defer b.mu.Unlock()

	var out []Segment
	for _, seg := range b.segments {
		if seg.Seq > b.processed {
			out = append(out, seg)
		}
	}
	if len(out) > 0 {
		b.processed = out[len(out)-1].Seq
	}
	return out
}

// Len returns the number of buffered segments.
func (b *Buffer) Len() int {
	b.mu.Lock()
	defer b.mu.Unlock()
	return len(b.segments)
}

// Clear drops every segment. Sequence numbers keep counting.
func (b *Buffer) Clear() {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.segments = nil
	b.processed = b.nextSeq - 1
}
