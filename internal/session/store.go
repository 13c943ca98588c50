package session

import (
	"strings"
	"sync"
	"time"
)

// Segment is one transcribed unit of speech. Segments are immutable once
// appended and are identified by their 1-based sequence number.
type Segment struct {
	Sequence  int
	Text      string
	CreatedAt time.Time
}

// Store owns the single process-wide ordered transcript. All access goes
// through Append, Snapshot and Window; callers never see internal state.
type Store struct {
	mu       sync.Mutex
	segments []Segment
}

func NewStore() *Store {
	return &Store{}
}

// Append assigns the next sequence number and stores the segment. The
// assignment and the append happen under one lock so readers never observe
// a gap or a half-applied write.
func (s *Store) Append(text string) Segment {
	s.mu.Lock()
	defer s.mu.Unlock()

	seg := Segment{
		Sequence:  len(s.segments) + 1,
		Text:      text,
		CreatedAt: time.Now(),
	}
	s.segments = append(s.segments, seg)
	return seg
}

// Snapshot returns a point-in-time copy of the transcript in sequence order.
// The returned slice does not alias internal state.
func (s *Store) Snapshot() []Segment {
	s.mu.Lock()
	defer s.mu.Unlock()

	out := make([]Segment, len(s.segments))
	copy(out, s.segments)
	return out
}

// Texts returns the segment texts in sequence order.
func (s *Store) Texts() []string {
	s.mu.Lock()
	defer s.mu.Unlock()

	out := make([]string, len(s.segments))
	for i, seg := range s.segments {
		out[i] = seg.Text
	}
	return out
}

// Window returns the last maxChars characters of the space-joined
// transcript. Truncation happens mid-word but never mid-rune; the result
// is deterministic for a given transcript state.
func (s *Store) Window(maxChars int) string {
	s.mu.Lock()
	defer s.mu.Unlock()

	parts := make([]string, len(s.segments))
	for i, seg := range s.segments {
		parts[i] = seg.Text
	}
	joined := strings.Join(parts, " ")

	if maxChars <= 0 {
		return ""
	}
	if len(joined) <= maxChars {
		return joined
	}
	runes := []rune(joined)
	if len(runes) <= maxChars {
		return joined
	}
	return string(runes[len(runes)-maxChars:])
}

// Len returns the number of appended segments.
func (s *Store) Len() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.segments)
}
