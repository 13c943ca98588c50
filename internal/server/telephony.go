package server

import (
	"context"
	"io"
	"net"

	"github.com/CyCoreSystems/audiosocket"
	"github.com/charmbracelet/log"
	"github.com/google/uuid"

	"github.com/amanullahtanweer/lecture-relay/internal/audio"
)

// acceptCalls runs the AudioSocket listener loop. Each call becomes a
// speaker: its audio is chunked into utterances and fed through the same
// ingestion pipeline as websocket speech.
func (s *Server) acceptCalls(ln net.Listener) {
	defer s.wg.Done()

	for {
		conn, err := ln.Accept()
		if err != nil {
			select {
			case <-s.shutdown:
				return
			default:
				log.Error("telephony accept failed", "error", err)
				continue
			}
		}

		s.wg.Add(1)
		go s.handleCall(conn)
	}
}

func (s *Server) handleCall(conn net.Conn) {
	defer s.wg.Done()
	defer conn.Close()

	id, err := audiosocket.GetID(conn)
	if err != nil {
		log.Error("failed to read call id", "remote", conn.RemoteAddr(), "error", err)
		return
	}
	log.Info("call started", "id", id, "remote", conn.RemoteAddr())
	s.recorder.ClientConnected()
	defer s.recorder.ClientDisconnected()

	rate := s.config.Telephony.SampleRate
	flushBytes := rate * 2 * s.config.Telephony.FlushSeconds
	buf := make([]byte, 0, flushBytes)

	flush := func() {
		if len(buf) == 0 {
			return
		}
		pcm := make([]byte, len(buf))
		copy(pcm, buf)
		buf = buf[:0]

		wav, err := audio.WrapPCM(pcm, rate)
		if err != nil {
			log.Error("failed to wrap call audio", "id", id, "error", err)
			return
		}
		s.wg.Add(1)
		go func(origin uuid.UUID, chunk []byte) {
			defer s.wg.Done()
			s.pipeline.HandleChunk(context.Background(), origin, chunk)
		}(uuid.UUID(id), wav)
	}
	defer flush()

	for {
		select {
		case <-s.shutdown:
			return
		default:
		}

		msg, err := audiosocket.NextMessage(conn)
		if err != nil {
			if err != io.EOF {
				log.Error("call read failed", "id", id, "error", err)
			}
			return
		}

		switch msg.Kind() {
		case audiosocket.KindSlin:
			buf = append(buf, msg.Payload()...)
			if len(buf) >= flushBytes {
				flush()
			}
		case audiosocket.KindSilence:
			// natural utterance boundary
			flush()
		case audiosocket.KindHangup:
			log.Info("call ended", "id", id)
			return
		case audiosocket.KindError:
			log.Error("call error frame", "id", id, "code", msg.ErrorCode())
		}
	}
}
