package server

import (
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"strings"

	"github.com/deirlabs/mentord/internal/chat"
	"github.com/deirlabs/mentord/pkg/provider/media"
	"github.com/deirlabs/mentord/pkg/types"
)

// maxAudioUpload caps the transcription request body.
const maxAudioUpload = 20 << 20 // 20 MiB

// chatRequest is one mentor chat message. Attachment data is base64 via
// encoding/json's []byte handling.
type chatRequest struct {
	Message    string `json:"message"`
	ExerciseID string `json:"exerciseId,omitempty"`
	Attachment *struct {
		MIMEType string `json:"mimeType"`
		Data     []byte `json:"data"`
	} `json:"attachment,omitempty"`
}

type chatResponse struct {
	Reply string `json:"reply"`
}

// handleChat submits one message to the mentor and returns the reply.
func (s *Server) handleChat(w http.ResponseWriter, r *http.Request) {
	if s.cfg.Chat == nil {
		s.writeError(w, http.StatusServiceUnavailable, "no text provider configured")
		return
	}

	var req chatRequest
	if !s.readJSON(w, r, &req) {
		return
	}
	if strings.TrimSpace(req.Message) == "" {
		s.writeError(w, http.StatusBadRequest, "message must not be empty")
		return
	}

	var attachment *types.Attachment
	if req.Attachment != nil {
		attachment = &types.Attachment{
			MIMEType: req.Attachment.MIMEType,
			Data:     req.Attachment.Data,
		}
	}

	reply, err := s.cfg.Chat.Send(r.Context(), req.Message, attachment, req.ExerciseID)
	if err != nil {
		if errors.Is(err, chat.ErrBusy) {
			s.writeError(w, http.StatusTooManyRequests, err.Error())
			return
		}
		s.writeError(w, http.StatusBadRequest, err.Error())
		return
	}

	s.writeJSON(w, http.StatusOK, chatResponse{Reply: reply})
}

type debateRequest struct {
	Topic string `json:"topic"`
}

// handleDebate streams the four-part internal debate as newline-delimited
// JSON. Each line is one chat.DebateUpdate; the final line has Done set.
func (s *Server) handleDebate(w http.ResponseWriter, r *http.Request) {
	if s.cfg.Chat == nil {
		s.writeError(w, http.StatusServiceUnavailable, "no text provider configured")
		return
	}

	var req debateRequest
	if !s.readJSON(w, r, &req) {
		return
	}

	updates, err := s.cfg.Chat.StreamDebate(r.Context(), req.Topic)
	if err != nil {
		if errors.Is(err, chat.ErrBusy) {
			s.writeError(w, http.StatusTooManyRequests, err.Error())
			return
		}
		s.writeError(w, http.StatusBadRequest, err.Error())
		return
	}

	w.Header().Set("Content-Type", "application/x-ndjson")
	w.Header().Set("Cache-Control", "no-cache")
	w.WriteHeader(http.StatusOK)

	flusher, _ := w.(http.Flusher)
	enc := json.NewEncoder(w)
	for update := range updates {
		if err := enc.Encode(update); err != nil {
			s.logger.Warn("debate stream write", "err", err)
			return
		}
		if flusher != nil {
			flusher.Flush()
		}
	}
}

type transcribeResponse struct {
	Text string `json:"text"`
}

// handleTranscribe converts an uploaded audio clip into text. The clip is the
// raw request body; its encoding comes from the Content-Type header and an
// optional vocabulary hint from the "hint" query parameter.
func (s *Server) handleTranscribe(w http.ResponseWriter, r *http.Request) {
	if s.cfg.Transcriber == nil {
		s.writeError(w, http.StatusServiceUnavailable, "no media provider configured")
		return
	}

	audio, err := io.ReadAll(io.LimitReader(r.Body, maxAudioUpload))
	if err != nil {
		s.writeError(w, http.StatusBadRequest, "read audio: "+err.Error())
		return
	}
	if len(audio) == 0 {
		s.writeError(w, http.StatusBadRequest, "empty audio payload")
		return
	}

	text, err := s.cfg.Transcriber.Transcribe(r.Context(), media.TranscriptionRequest{
		Audio:    audio,
		MIMEType: r.Header.Get("Content-Type"),
		Hint:     r.URL.Query().Get("hint"),
	})
	if err != nil {
		s.logger.Error("transcribe", "err", err)
		s.writeError(w, http.StatusBadGateway, "transcription failed")
		return
	}

	s.writeJSON(w, http.StatusOK, transcribeResponse{Text: text})
}
