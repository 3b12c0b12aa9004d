package server

import (
	"errors"
	"net/http"

	"github.com/deirlabs/mentord/internal/studio"
	"github.com/deirlabs/mentord/pkg/provider/media"
)

// handleConcepts lists the active stage's focus concepts with toggle state.
func (s *Server) handleConcepts(w http.ResponseWriter, _ *http.Request) {
	if s.cfg.Studio == nil {
		s.writeError(w, http.StatusServiceUnavailable, "no media provider configured")
		return
	}
	s.writeJSON(w, http.StatusOK, s.cfg.Studio.Concepts())
}

// handleToggleConcept flips one focus concept on or off.
func (s *Server) handleToggleConcept(w http.ResponseWriter, r *http.Request) {
	if s.cfg.Studio == nil {
		s.writeError(w, http.StatusServiceUnavailable, "no media provider configured")
		return
	}

	id := r.PathValue("id")
	enabled, err := s.cfg.Studio.ToggleConcept(id)
	if err != nil {
		s.writeError(w, http.StatusNotFound, err.Error())
		return
	}

	s.writeJSON(w, http.StatusOK, map[string]any{
		"id":      id,
		"enabled": enabled,
	})
}

// imageRequest covers generation and editing. Source is required for edits.
type imageRequest struct {
	Prompt string `json:"prompt"`
	Source *struct {
		MIMEType string `json:"mimeType"`
		Data     []byte `json:"data"`
	} `json:"source,omitempty"`
}

type imagePayload struct {
	MIMEType string `json:"mimeType"`
	Data     []byte `json:"data"`
}

func (s *Server) handleGenerateImage(w http.ResponseWriter, r *http.Request) {
	if s.cfg.Studio == nil {
		s.writeError(w, http.StatusServiceUnavailable, "no media provider configured")
		return
	}

	var req imageRequest
	if !s.readJSON(w, r, &req) {
		return
	}

	img, err := s.cfg.Studio.GenerateImage(r.Context(), req.Prompt)
	if err != nil {
		s.writeStudioError(w, err)
		return
	}
	s.writeJSON(w, http.StatusOK, imagePayload{MIMEType: img.MIMEType, Data: img.Data})
}

func (s *Server) handleEditImage(w http.ResponseWriter, r *http.Request) {
	if s.cfg.Studio == nil {
		s.writeError(w, http.StatusServiceUnavailable, "no media provider configured")
		return
	}

	var req imageRequest
	if !s.readJSON(w, r, &req) {
		return
	}
	if req.Source == nil {
		s.writeError(w, http.StatusBadRequest, "edit requires a source image")
		return
	}

	source := &media.Image{MIMEType: req.Source.MIMEType, Data: req.Source.Data}
	img, err := s.cfg.Studio.EditImage(r.Context(), req.Prompt, source)
	if err != nil {
		s.writeStudioError(w, err)
		return
	}
	s.writeJSON(w, http.StatusOK, imagePayload{MIMEType: img.MIMEType, Data: img.Data})
}

type videoRequest struct {
	Prompt      string `json:"prompt"`
	AspectRatio string `json:"aspectRatio,omitempty"`
	Source      *struct {
		MIMEType string `json:"mimeType"`
		Data     []byte `json:"data"`
	} `json:"source,omitempty"`
}

type videoPayload struct {
	MIMEType string `json:"mimeType"`
	Data     []byte `json:"data"`
}

// handleGenerateVideo renders a clip. The call blocks for the duration of the
// remote render, so clients should use a generous timeout.
func (s *Server) handleGenerateVideo(w http.ResponseWriter, r *http.Request) {
	if s.cfg.Studio == nil {
		s.writeError(w, http.StatusServiceUnavailable, "no media provider configured")
		return
	}

	var req videoRequest
	if !s.readJSON(w, r, &req) {
		return
	}

	var source *media.Image
	if req.Source != nil {
		source = &media.Image{MIMEType: req.Source.MIMEType, Data: req.Source.Data}
	}

	vid, err := s.cfg.Studio.GenerateVideo(r.Context(), req.Prompt, source, req.AspectRatio)
	if err != nil {
		s.writeStudioError(w, err)
		return
	}
	s.writeJSON(w, http.StatusOK, videoPayload{MIMEType: vid.MIMEType, Data: vid.Data})
}

// handleStudioHistory lists this run's generations, newest first.
func (s *Server) handleStudioHistory(w http.ResponseWriter, _ *http.Request) {
	if s.cfg.Studio == nil {
		s.writeError(w, http.StatusServiceUnavailable, "no media provider configured")
		return
	}
	s.writeJSON(w, http.StatusOK, s.cfg.Studio.History())
}

// writeStudioError maps studio failures onto HTTP statuses.
func (s *Server) writeStudioError(w http.ResponseWriter, err error) {
	switch {
	case errors.Is(err, studio.ErrBusy):
		s.writeError(w, http.StatusTooManyRequests, err.Error())
	default:
		s.logger.Error("studio generation", "err", err)
		s.writeError(w, http.StatusBadGateway, err.Error())
	}
}
