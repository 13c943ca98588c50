package ingest

import (
	"context"
	"errors"
	"fmt"
	"os"
	"strings"
	"sync"
	"testing"

	"github.com/google/uuid"

	"github.com/amanullahtanweer/lecture-relay/internal/protocol"
	"github.com/amanullahtanweer/lecture-relay/internal/session"
)

type fakeTranscoder struct {
	err error
}

func (f *fakeTranscoder) Convert(ctx context.Context, src string) ([]byte, error) {
	if f.err != nil {
		return nil, f.err
	}
	if _, err := os.Stat(src); err != nil {
		return nil, fmt.Errorf("scratch file missing: %w", err)
	}
	return []byte("RIFFwav"), nil
}

type fakeTranscriber struct {
	text string
	err  error
}

func (f *fakeTranscriber) Transcribe(ctx context.Context, wav []byte) (string, error) {
	if f.err != nil {
		return "", f.err
	}
	return f.text, nil
}

type recordingSender struct {
	mu         sync.Mutex
	broadcasts [][]byte
	unicasts   map[uuid.UUID][][]byte
}

func newRecordingSender() *recordingSender {
	return &recordingSender{unicasts: make(map[uuid.UUID][][]byte)}
}

func (s *recordingSender) Broadcast(payload []byte) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.broadcasts = append(s.broadcasts, payload)
}

func (s *recordingSender) Unicast(id uuid.UUID, payload []byte) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.unicasts[id] = append(s.unicasts[id], payload)
	return true
}

func newTestPipeline(t *testing.T, tc Transcoder, tr Transcriber) (*Pipeline, *session.Store, *recordingSender, string) {
	t.Helper()
	scratch := t.TempDir()
	store := session.NewStore()
	sender := newRecordingSender()
	p := New(Config{ScratchDir: scratch}, store, tc, tr, sender, nil)
	return p, store, sender, scratch
}

func assertScratchEmpty(t *testing.T, scratch string) {
	t.Helper()
	entries, err := os.ReadDir(scratch)
	if err != nil {
		t.Fatalf("read scratch dir: %v", err)
	}
	if len(entries) != 0 {
		t.Errorf("scratch dir not cleaned, %d files left", len(entries))
	}
}

func TestHandleChunkAppendsAndBroadcasts(t *testing.T) {
	p, store, sender, scratch := newTestPipeline(t,
		&fakeTranscoder{}, &fakeTranscriber{text: "hello world"})

	origin := uuid.New()
	p.HandleChunk(context.Background(), origin, []byte("webm-bytes"))

	snap := store.Snapshot()
	if len(snap) != 1 || snap[0].Text != "hello world" {
		t.Fatalf("unexpected transcript %+v", snap)
	}

	if len(sender.broadcasts) != 1 {
		t.Fatalf("expected 1 broadcast, got %d", len(sender.broadcasts))
	}
	env, err := protocol.Decode(sender.broadcasts[0])
	if err != nil {
		t.Fatalf("decode broadcast: %v", err)
	}
	if env.Event != protocol.EventNewSpeech || env.Text != "hello world" {
		t.Errorf("unexpected broadcast %+v", env)
	}
	if len(sender.unicasts) != 0 {
		t.Errorf("unexpected unicast on success path")
	}
	assertScratchEmpty(t, scratch)
}

func TestHandleChunkTranscodeFailureIsIsolated(t *testing.T) {
	p, store, sender, scratch := newTestPipeline(t,
		&fakeTranscoder{err: errors.New("invalid data")}, &fakeTranscriber{text: "unused"})

	origin := uuid.New()
	p.HandleChunk(context.Background(), origin, []byte("corrupted"))

	if store.Len() != 0 {
		t.Errorf("store mutated on transcode failure")
	}
	if len(sender.broadcasts) != 0 {
		t.Errorf("failure was broadcast")
	}
	frames := sender.unicasts[origin]
	if len(frames) != 1 {
		t.Fatalf("expected 1 unicast to origin, got %d", len(frames))
	}
	env, err := protocol.Decode(frames[0])
	if err != nil {
		t.Fatalf("decode unicast: %v", err)
	}
	if env.Event != protocol.EventNewSpeech || !strings.HasPrefix(env.Text, "Error: ") {
		t.Errorf("unexpected diagnostic %+v", env)
	}
	assertScratchEmpty(t, scratch)
}

func TestHandleChunkTranscriptionFailureIsIsolated(t *testing.T) {
	p, store, sender, scratch := newTestPipeline(t,
		&fakeTranscoder{}, &fakeTranscriber{err: errors.New("model overloaded")})

	origin := uuid.New()
	p.HandleChunk(context.Background(), origin, []byte("audio"))

	if store.Len() != 0 {
		t.Errorf("store mutated on transcription failure")
	}
	if len(sender.broadcasts) != 0 {
		t.Errorf("failure was broadcast")
	}
	if len(sender.unicasts[origin]) != 1 {
		t.Errorf("expected diagnostic unicast to origin")
	}
	assertScratchEmpty(t, scratch)
}

func TestIngestErrorKinds(t *testing.T) {
	p, _, _, _ := newTestPipeline(t,
		&fakeTranscoder{err: errors.New("boom")}, &fakeTranscriber{})
	if _, err := p.ingest(context.Background(), []byte("x")); !errors.Is(err, ErrTranscode) {
		t.Errorf("expected ErrTranscode, got %v", err)
	}

	p2, _, _, _ := newTestPipeline(t,
		&fakeTranscoder{}, &fakeTranscriber{err: errors.New("boom")})
	if _, err := p2.ingest(context.Background(), []byte("x")); !errors.Is(err, ErrTranscribe) {
		t.Errorf("expected ErrTranscribe, got %v", err)
	}
}

func TestConcurrentChunksAllAppendExactlyOnce(t *testing.T) {
	p, store, _, _ := newTestPipeline(t,
		&fakeTranscoder{}, &fakeTranscriber{text: "line"})

	var wg sync.WaitGroup
	for i := 0; i < 10; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			p.HandleChunk(context.Background(), uuid.New(), []byte("audio"))
		}()
	}
	wg.Wait()

	snap := store.Snapshot()
	if len(snap) != 10 {
		t.Fatalf("expected 10 segments, got %d", len(snap))
	}
	for i, seg := range snap {
		if seg.Sequence != i+1 {
			t.Errorf("sequence gap at %d: %d", i, seg.Sequence)
		}
	}
}
