package server

import (
	"context"
	"encoding/json"
	"net/http"
	"strconv"
	"time"

	"github.com/coder/websocket"

	"github.com/deirlabs/mentord/internal/live"
	"github.com/deirlabs/mentord/pkg/audio"
	providerlive "github.com/deirlabs/mentord/pkg/provider/live"
)

// liveControl is a client → server control frame on the live WebSocket.
type liveControl struct {
	// Type is one of "pause", "resume", "close".
	Type string `json:"type"`
}

// liveEvent is a server → client event frame on the live WebSocket. Audio
// chunks travel as separate binary frames; everything else is one of these.
type liveEvent struct {
	Type     string               `json:"type"`
	State    string               `json:"state,omitempty"`
	Speaker  providerlive.Speaker `json:"speaker,omitempty"`
	Text     string               `json:"text,omitempty"`
	Level    float64              `json:"level,omitempty"`
	Speaking bool                 `json:"speaking,omitempty"`
	Error    string               `json:"error,omitempty"`
}

// handleLive bridges one WebSocket connection onto a live mentor session.
// Binary frames from the client are PCM16 mono microphone chunks at 16 kHz,
// or at the rate declared in the "rate" query parameter (resampled before
// uplink); binary frames to the client are PCM16 mono 24 kHz model audio.
// Text frames carry JSON control messages inbound and JSON events outbound.
// Closing the socket ends the session.
func (s *Server) handleLive(w http.ResponseWriter, r *http.Request) {
	if s.cfg.Live == nil {
		s.writeError(w, http.StatusServiceUnavailable, "no live provider configured")
		return
	}

	exerciseID := r.URL.Query().Get("exercise")
	voice := r.URL.Query().Get("voice")

	captureRate := audio.CaptureSampleRate
	if v := r.URL.Query().Get("rate"); v != "" {
		rate, err := strconv.Atoi(v)
		if err != nil || rate <= 0 {
			s.writeError(w, http.StatusBadRequest, "invalid capture rate")
			return
		}
		captureRate = rate
	}

	conn, err := websocket.Accept(w, r, nil)
	if err != nil {
		s.logger.Warn("live websocket accept", "err", err)
		return
	}
	defer conn.Close(websocket.StatusInternalError, "bridge terminated")

	ctx := r.Context()

	ctrl, err := s.cfg.Live.Start(ctx, providerlive.SessionConfig{Voice: voice}, exerciseID)
	if err != nil {
		s.logger.Error("live session start", "exercise_id", exerciseID, "err", err)
		s.writeLiveEvent(ctx, conn, liveEvent{Type: "error", Error: "live session start failed"})
		conn.Close(websocket.StatusInternalError, "session start failed")
		return
	}

	// Forward controller events to the client until the event stream closes.
	writeDone := make(chan struct{})
	go func() {
		defer close(writeDone)
		s.writeLoop(ctx, conn, ctrl)
	}()

	s.readLoop(ctx, conn, ctrl, captureRate)

	// Release the session slot before the close handshake: a peer that has
	// already stopped reading never echoes the close frame, and the handshake
	// would hold the manager until its timeout.
	ctrl.Close()
	stopCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	if err := s.cfg.Live.Stop(stopCtx); err != nil {
		s.logger.Warn("live session stop", "err", err)
	}
	cancel()

	<-writeDone
	audio.Drain(ctrl.Events())

	conn.Close(websocket.StatusNormalClosure, "session closed")
}

// readLoop consumes client frames until the socket or context ends. Mic
// frames arriving at a non-native capture rate are resampled to 16 kHz.
func (s *Server) readLoop(ctx context.Context, conn *websocket.Conn, ctrl *live.Controller, captureRate int) {
	for {
		typ, data, err := conn.Read(ctx)
		if err != nil {
			return
		}

		switch typ {
		case websocket.MessageBinary:
			if captureRate != audio.CaptureSampleRate {
				data = audio.ResampleMono16(data, captureRate, audio.CaptureSampleRate)
			}
			if err := ctrl.SendFrame(data); err != nil {
				s.logger.Warn("live uplink frame", "err", err)
				return
			}
		case websocket.MessageText:
			var msg liveControl
			if err := json.Unmarshal(data, &msg); err != nil {
				s.logger.Debug("live control frame unreadable", "err", err)
				continue
			}
			switch msg.Type {
			case "pause":
				if err := ctrl.Pause(); err != nil {
					s.logger.Debug("live pause rejected", "err", err)
				}
			case "resume":
				if err := ctrl.Resume(); err != nil {
					s.logger.Debug("live resume rejected", "err", err)
				}
			case "close":
				return
			default:
				s.logger.Debug("live control frame unknown", "type", msg.Type)
			}
		}
	}
}

// writeLoop forwards controller events to the client. Model audio goes out
// as binary frames, everything else as JSON text frames.
func (s *Server) writeLoop(ctx context.Context, conn *websocket.Conn, ctrl *live.Controller) {
	for ev := range ctrl.Events() {
		switch ev.Type {
		case live.EventModelAudio:
			if err := conn.Write(ctx, websocket.MessageBinary, ev.Chunk.Data); err != nil {
				return
			}
		case live.EventState:
			if !s.writeLiveEvent(ctx, conn, liveEvent{Type: "state", State: ev.State.String()}) {
				return
			}
		case live.EventFlush:
			if !s.writeLiveEvent(ctx, conn, liveEvent{Type: "flush"}) {
				return
			}
		case live.EventSpeaking:
			if !s.writeLiveEvent(ctx, conn, liveEvent{Type: "speaking", Speaking: ev.Speaking}) {
				return
			}
		case live.EventInputLevel:
			if !s.writeLiveEvent(ctx, conn, liveEvent{Type: "level", Level: ev.Level}) {
				return
			}
		case live.EventTranscript:
			if !s.writeLiveEvent(ctx, conn, liveEvent{Type: "transcript", Speaker: ev.Speaker, Text: ev.Text}) {
				return
			}
		}
	}

	if err := ctrl.Err(); err != nil {
		s.writeLiveEvent(ctx, conn, liveEvent{Type: "error", Error: err.Error()})
	}
}

func (s *Server) writeLiveEvent(ctx context.Context, conn *websocket.Conn, ev liveEvent) bool {
	data, err := json.Marshal(ev)
	if err != nil {
		s.logger.Warn("encode live event", "err", err)
		return false
	}
	if err := conn.Write(ctx, websocket.MessageText, data); err != nil {
		return false
	}
	return true
}
