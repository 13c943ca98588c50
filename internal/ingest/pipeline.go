// Package ingest drives an inbound audio chunk through transcoding and
// transcription and into the shared transcript.
package ingest

import (
	"context"
	"errors"
	"fmt"
	"os"
	"sync"
	"time"

	"github.com/charmbracelet/log"
	"github.com/google/uuid"

	"github.com/amanullahtanweer/lecture-relay/internal/metrics"
	"github.com/amanullahtanweer/lecture-relay/internal/protocol"
	"github.com/amanullahtanweer/lecture-relay/internal/session"
)

var (
	ErrTranscode  = errors.New("transcoding failed")
	ErrTranscribe = errors.New("transcription failed")
)

// Transcoder converts a captured audio chunk on disk into canonical wav.
type Transcoder interface {
	Convert(ctx context.Context, src string) ([]byte, error)
}

// Transcriber turns canonical wav audio into text.
type Transcriber interface {
	Transcribe(ctx context.Context, wav []byte) (string, error)
}

// Sender is the outbound half of the hub.
type Sender interface {
	Broadcast(payload []byte)
	Unicast(id uuid.UUID, payload []byte) bool
}

type Config struct {
	ScratchDir  string        // temp chunk files; os.TempDir() if empty
	Workers     int           // concurrent ingestions; default 4
	CallTimeout time.Duration // bound per external call chain; default 60s
}

// Pipeline turns audio chunks into transcript segments. Each chunk is
// handled on its own goroutine, gated by a worker semaphore so slow
// external calls never stall the connection read loops. The transcript
// lock is only taken for the in-memory append.
type Pipeline struct {
	config      Config
	store       *session.Store
	transcoder  Transcoder
	transcriber Transcriber
	sender      Sender
	recorder    *metrics.Recorder

	sem chan struct{}

	// publishMu orders broadcasts identically to appends.
	publishMu sync.Mutex
}

func New(config Config, store *session.Store, transcoder Transcoder, transcriber Transcriber, sender Sender, recorder *metrics.Recorder) *Pipeline {
	if config.Workers <= 0 {
		config.Workers = 4
	}
	if config.CallTimeout <= 0 {
		config.CallTimeout = 60 * time.Second
	}
	if config.ScratchDir == "" {
		config.ScratchDir = os.TempDir()
	}

	return &Pipeline{
		config:      config,
		store:       store,
		transcoder:  transcoder,
		transcriber: transcriber,
		sender:      sender,
		recorder:    recorder,
		sem:         make(chan struct{}, config.Workers),
	}
}

// HandleChunk ingests one audio chunk from the origin connection. On
// success the new segment is appended and broadcast; on failure the store
// is untouched and a diagnostic goes back to the origin only. Designed to
// run on its own goroutine.
func (p *Pipeline) HandleChunk(ctx context.Context, origin uuid.UUID, audio []byte) {
	select {
	case p.sem <- struct{}{}:
	case <-ctx.Done():
		return
	}
	defer func() { <-p.sem }()

	p.recorder.ChunkReceived()

	text, err := p.ingest(ctx, audio)
	if err != nil {
		log.Error("ingestion failed", "connection", origin, "error", err)
		p.recorder.IngestFailed()
		frame, encErr := protocol.Encode(protocol.NewSpeech("Error: " + err.Error()))
		if encErr == nil {
			p.sender.Unicast(origin, frame)
		}
		return
	}

	p.publishMu.Lock()
	seg := p.store.Append(text)
	frame, encErr := protocol.Encode(protocol.NewSpeech(seg.Text))
	if encErr == nil {
		p.sender.Broadcast(frame)
	}
	p.publishMu.Unlock()

	p.recorder.SegmentAppended(len(text))
	log.Info("segment appended", "sequence", seg.Sequence, "chars", len(text), "connection", origin)
}

func (p *Pipeline) ingest(ctx context.Context, audio []byte) (string, error) {
	ctx, cancel := context.WithTimeout(ctx, p.config.CallTimeout)
	defer cancel()

	f, err := os.CreateTemp(p.config.ScratchDir, "chunk-*.webm")
	if err != nil {
		return "", fmt.Errorf("create scratch file: %w", err)
	}
	path := f.Name()
	defer func() {
		if err := os.Remove(path); err != nil && !os.IsNotExist(err) {
			log.Warn("scratch file not removed", "path", path, "error", err)
		}
	}()

	if _, err := f.Write(audio); err != nil {
		f.Close()
		return "", fmt.Errorf("write scratch file: %w", err)
	}
	if err := f.Close(); err != nil {
		return "", fmt.Errorf("close scratch file: %w", err)
	}

	wav, err := p.transcoder.Convert(ctx, path)
	if err != nil {
		return "", fmt.Errorf("%w: %v", ErrTranscode, err)
	}

	text, err := p.transcriber.Transcribe(ctx, wav)
	if err != nil {
		return "", fmt.Errorf("%w: %v", ErrTranscribe, err)
	}
	return text, nil
}
