package metrics

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/charmbracelet/log"
	redis "github.com/redis/go-redis/v9"
)

// Recorder aggregates process-wide counters for the relay: connections,
// ingested chunks, appended segments, failures and questions. A Redis
// client may be attached to mirror the counters for external dashboards;
// mirroring is fire-and-forget and never blocks the hot path.
type Recorder struct {
	StartTime time.Time

	mu              sync.Mutex
	connects        int
	disconnects     int
	chunks          int
	segments        int
	transcriptChars int
	ingestFailures  int
	questions       int
	answerFailures  int

	rdb    *redis.Client
	prefix string
}

func NewRecorder() *Recorder {
	return &Recorder{StartTime: time.Now()}
}

// SetRedis attaches a Redis client used to mirror counters under
// prefix+"counters".
func (r *Recorder) SetRedis(client *redis.Client, prefix string) {
	r.rdb = client
	r.prefix = prefix
}

func (r *Recorder) ClientConnected() {
	if r == nil {
		return
	}
	r.mu.Lock()
	r.connects++
	r.mu.Unlock()
	r.mirror("connects", 1)
}

func (r *Recorder) ClientDisconnected() {
	if r == nil {
		return
	}
	r.mu.Lock()
	r.disconnects++
	r.mu.Unlock()
	r.mirror("disconnects", 1)
}

func (r *Recorder) ChunkReceived() {
	if r == nil {
		return
	}
	r.mu.Lock()
	r.chunks++
	r.mu.Unlock()
	r.mirror("chunks", 1)
}

func (r *Recorder) SegmentAppended(chars int) {
	if r == nil {
		return
	}
	r.mu.Lock()
	r.segments++
	r.transcriptChars += chars
	r.mu.Unlock()
	r.mirror("segments", 1)
}

func (r *Recorder) IngestFailed() {
	if r == nil {
		return
	}
	r.mu.Lock()
	r.ingestFailures++
	r.mu.Unlock()
	r.mirror("ingest_failures", 1)
}

func (r *Recorder) QuestionAsked() {
	if r == nil {
		return
	}
	r.mu.Lock()
	r.questions++
	r.mu.Unlock()
	r.mirror("questions", 1)
}

func (r *Recorder) AnswerFailed() {
	if r == nil {
		return
	}
	r.mu.Lock()
	r.answerFailures++
	r.mu.Unlock()
	r.mirror("answer_failures", 1)
}

func (r *Recorder) mirror(field string, delta int64) {
	if r.rdb == nil {
		return
	}
	go func() {
		ctx, cancel := context.WithTimeout(context.Background(), 800*time.Millisecond)
		defer cancel()
		key := r.prefix + "counters"
		if err := r.rdb.HIncrBy(ctx, key, field, delta).Err(); err != nil {
			log.Warn("metrics mirror failed", "key", key, "field", field, "error", err)
		}
	}()
}

func (r *Recorder) Summary() string {
	r.mu.Lock()
	defer r.mu.Unlock()

	return fmt.Sprintf(
		"Uptime: %v\n"+
			"Connects: %d\n"+
			"Disconnects: %d\n"+
			"Audio Chunks: %d\n"+
			"Segments: %d\n"+
			"Transcript Length: %d chars\n"+
			"Ingest Failures: %d\n"+
			"Questions: %d\n"+
			"Answer Failures: %d\n",
		time.Since(r.StartTime).Round(time.Second),
		r.connects,
		r.disconnects,
		r.chunks,
		r.segments,
		r.transcriptChars,
		r.ingestFailures,
		r.questions,
		r.answerFailures,
	)
}
