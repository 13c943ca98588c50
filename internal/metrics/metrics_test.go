package metrics

import (
	"strings"
	"testing"
)

func TestRecorderCountsEvents(t *testing.T) {
	r := NewRecorder()

	r.ClientConnected()
	r.ClientConnected()
	r.ClientDisconnected()
	r.ChunkReceived()
	r.SegmentAppended(11)
	r.IngestFailed()
	r.QuestionAsked()
	r.AnswerFailed()

	summary := r.Summary()
	for _, want := range []string{
		"Connects: 2",
		"Disconnects: 1",
		"Audio Chunks: 1",
		"Segments: 1",
		"Transcript Length: 11 chars",
		"Ingest Failures: 1",
		"Questions: 1",
		"Answer Failures: 1",
	} {
		if !strings.Contains(summary, want) {
			t.Errorf("summary missing %q:\n%s", want, summary)
		}
	}
}

func TestNilRecorderIsSafe(t *testing.T) {
	var r *Recorder
	r.ClientConnected()
	r.ClientDisconnected()
	r.ChunkReceived()
	r.SegmentAppended(1)
	r.IngestFailed()
	r.QuestionAsked()
	r.AnswerFailed()
}
