// Package server exposes the realtime websocket channel and an optional
// AudioSocket telephony ingress, and routes inbound events to the
// ingestion pipeline and the QA orchestrator.
package server

import (
	"context"
	"fmt"
	"net"
	"net/http"
	"sync"
	"time"

	"github.com/charmbracelet/log"
	"github.com/google/uuid"
	"github.com/gorilla/websocket"

	"github.com/amanullahtanweer/lecture-relay/internal/hub"
	"github.com/amanullahtanweer/lecture-relay/internal/ingest"
	"github.com/amanullahtanweer/lecture-relay/internal/metrics"
	"github.com/amanullahtanweer/lecture-relay/internal/protocol"
	"github.com/amanullahtanweer/lecture-relay/internal/qa"
	"github.com/amanullahtanweer/lecture-relay/internal/session"
)

const writeTimeout = 10 * time.Second

type TelephonyConfig struct {
	Enabled      bool
	Host         string
	Port         int
	SampleRate   int // default 8000
	FlushSeconds int // utterance window when no silence marker arrives; default 5
}

type Config struct {
	Host      string
	Port      int
	Telephony TelephonyConfig
}

type Server struct {
	config       Config
	store        *session.Store
	hub          *hub.Hub
	pipeline     *ingest.Pipeline
	orchestrator *qa.Orchestrator
	recorder     *metrics.Recorder

	httpServer *http.Server
	telephony  net.Listener
	upgrader   websocket.Upgrader
	wg         sync.WaitGroup
	shutdown   chan struct{}

	// live websocket conns, closed on Stop to unblock the read pumps
	connMu sync.Mutex
	conns  map[uuid.UUID]*websocket.Conn
}

func New(config Config, store *session.Store, h *hub.Hub, pipeline *ingest.Pipeline, orchestrator *qa.Orchestrator, recorder *metrics.Recorder) *Server {
	if config.Telephony.SampleRate <= 0 {
		config.Telephony.SampleRate = 8000
	}
	if config.Telephony.FlushSeconds <= 0 {
		config.Telephony.FlushSeconds = 5
	}

	s := &Server{
		config:       config,
		store:        store,
		hub:          h,
		pipeline:     pipeline,
		orchestrator: orchestrator,
		recorder:     recorder,
		upgrader: websocket.Upgrader{
			ReadBufferSize:  4096,
			WriteBufferSize: 4096,
			CheckOrigin:     func(*http.Request) bool { return true },
		},
		shutdown: make(chan struct{}),
		conns:    make(map[uuid.UUID]*websocket.Conn),
	}

	mux := http.NewServeMux()
	mux.HandleFunc("/ws", s.handleWS)
	mux.HandleFunc("/healthz", func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
	})
	s.httpServer = &http.Server{
		Addr:    fmt.Sprintf("%s:%d", config.Host, config.Port),
		Handler: mux,
	}
	return s
}

// Start blocks serving the websocket endpoint until Stop is called. The
// telephony ingress, when enabled, runs alongside on its own listener.
func (s *Server) Start() error {
	if s.config.Telephony.Enabled {
		addr := fmt.Sprintf("%s:%d", s.config.Telephony.Host, s.config.Telephony.Port)
		ln, err := net.Listen("tcp", addr)
		if err != nil {
			return fmt.Errorf("failed to listen on %s: %w", addr, err)
		}
		s.telephony = ln
		log.Info("telephony ingress listening", "addr", addr)

		s.wg.Add(1)
		go s.acceptCalls(ln)
	}

	log.Info("relay listening", "addr", s.httpServer.Addr)
	if err := s.httpServer.ListenAndServe(); err != nil && err != http.ErrServerClosed {
		return fmt.Errorf("http server: %w", err)
	}
	return nil
}

func (s *Server) Stop() {
	close(s.shutdown)

	if s.telephony != nil {
		s.telephony.Close()
	}

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := s.httpServer.Shutdown(ctx); err != nil {
		log.Error("http shutdown", "error", err)
	}

	s.connMu.Lock()
	for _, conn := range s.conns {
		conn.Close()
	}
	s.connMu.Unlock()

	s.wg.Wait()
}

func (s *Server) handleWS(w http.ResponseWriter, r *http.Request) {
	conn, err := s.upgrader.Upgrade(w, r, nil)
	if err != nil {
		log.Error("websocket upgrade failed", "remote", r.RemoteAddr, "error", err)
		return
	}

	client := hub.NewClient()
	log.Info("client connected", "id", client.ID, "remote", r.RemoteAddr)
	s.recorder.ClientConnected()

	s.connMu.Lock()
	s.conns[client.ID] = conn
	s.connMu.Unlock()

	// Register before taking the snapshot: a segment appended in between
	// is included in the snapshot and its broadcast sits queued behind it,
	// so the client never misses a line.
	s.hub.Register(client)

	frame, err := protocol.Encode(protocol.LoadTranscript(s.store.Texts()))
	if err == nil {
		conn.SetWriteDeadline(time.Now().Add(writeTimeout))
		err = conn.WriteMessage(websocket.TextMessage, frame)
	}
	if err != nil {
		log.Error("failed to send transcript snapshot", "id", client.ID, "error", err)
		s.dropClient(client, conn)
		return
	}

	s.wg.Add(1)
	go s.writePump(client, conn)

	s.readPump(client, conn)
}

func (s *Server) dropClient(client *hub.Client, conn *websocket.Conn) {
	s.hub.Unregister(client)
	s.connMu.Lock()
	delete(s.conns, client.ID)
	s.connMu.Unlock()
	conn.Close()
	s.recorder.ClientDisconnected()
	log.Info("client disconnected", "id", client.ID)
}

// readPump delivers inbound events. Slow work is handed off so one
// connection's transcription or chat call never stalls another's events.
func (s *Server) readPump(client *hub.Client, conn *websocket.Conn) {
	defer s.dropClient(client, conn)

	for {
		_, data, err := conn.ReadMessage()
		if err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseNormalClosure, websocket.CloseGoingAway) {
				log.Error("read failed", "id", client.ID, "error", err)
			}
			return
		}

		env, err := protocol.Decode(data)
		if err != nil {
			log.Warn("discarding malformed frame", "id", client.ID, "error", err)
			continue
		}

		switch env.Event {
		case protocol.EventSpeechData:
			if len(env.Audio) == 0 {
				continue
			}
			go s.pipeline.HandleChunk(context.Background(), client.ID, env.Audio)
		case protocol.EventQuestion:
			go s.orchestrator.HandleQuestion(context.Background(), client.ID, env.Text)
		default:
			log.Warn("unknown event", "id", client.ID, "event", env.Event)
		}
	}
}

func (s *Server) writePump(client *hub.Client, conn *websocket.Conn) {
	defer s.wg.Done()

	for frame := range client.Outbound() {
		conn.SetWriteDeadline(time.Now().Add(writeTimeout))
		if err := conn.WriteMessage(websocket.TextMessage, frame); err != nil {
			conn.Close()
			return
		}
	}

	// Hub closed the outbound channel; say goodbye properly.
	conn.SetWriteDeadline(time.Now().Add(writeTimeout))
	conn.WriteMessage(websocket.CloseMessage,
		websocket.FormatCloseMessage(websocket.CloseNormalClosure, ""))
}
