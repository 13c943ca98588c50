// Package qa answers client questions against the recent transcript.
package qa

import (
	"context"
	"time"

	"github.com/charmbracelet/log"
	"github.com/google/uuid"

	"github.com/amanullahtanweer/lecture-relay/internal/chat"
	"github.com/amanullahtanweer/lecture-relay/internal/metrics"
	"github.com/amanullahtanweer/lecture-relay/internal/protocol"
	"github.com/amanullahtanweer/lecture-relay/internal/session"
)

// DefaultWindowChars is how much trailing transcript grounds an answer.
const DefaultWindowChars = 1000

// Sender delivers the answer to the asking connection.
type Sender interface {
	Unicast(id uuid.UUID, payload []byte) bool
}

type Config struct {
	WindowChars int           // default DefaultWindowChars
	CallTimeout time.Duration // bound on the chat call; default 60s
}

type Orchestrator struct {
	config   Config
	store    *session.Store
	engine   chat.Engine
	sender   Sender
	recorder *metrics.Recorder
}

func New(config Config, store *session.Store, engine chat.Engine, sender Sender, recorder *metrics.Recorder) *Orchestrator {
	if config.WindowChars <= 0 {
		config.WindowChars = DefaultWindowChars
	}
	if config.CallTimeout <= 0 {
		config.CallTimeout = 60 * time.Second
	}
	return &Orchestrator{
		config:   config,
		store:    store,
		engine:   engine,
		sender:   sender,
		recorder: recorder,
	}
}

// HandleQuestion answers one question using the trailing transcript window
// and replies to the origin connection only. Failures become a diagnostic
// answer; the transcript is never touched. Designed to run on its own
// goroutine.
func (o *Orchestrator) HandleQuestion(ctx context.Context, origin uuid.UUID, question string) {
	o.recorder.QuestionAsked()

	window := o.store.Window(o.config.WindowChars)

	callCtx, cancel := context.WithTimeout(ctx, o.config.CallTimeout)
	defer cancel()

	answer, err := o.engine.Complete(callCtx, systemPrompt(window), question)
	if err != nil {
		log.Error("question answering failed", "connection", origin, "error", err)
		o.recorder.AnswerFailed()
		answer = "Error generating response: " + err.Error()
	}

	frame, encErr := protocol.Encode(protocol.Answer(answer))
	if encErr != nil {
		log.Error("encode answer", "connection", origin, "error", encErr)
		return
	}
	o.sender.Unicast(origin, frame)
}

// systemPrompt constrains the model to the transcript window, allows
// social openers and closers, and asks for short answers.
func systemPrompt(window string) string {
	return "You are a helpful assistant answering questions based strictly on the following transcript. " +
		"If the user greets you then politely greet them back. If the user says bye then respond appropriately as well. " +
		"If the question is outside this content, reply with 'I'm sorry, but I can only answer questions related to the provided transcript.' " +
		"Answer concisely, limiting your response to 200 characters. Here is the transcript: " + window
}
