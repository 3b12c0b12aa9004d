// Package mock provides test doubles for the media provider interfaces.
package mock

import (
	"context"
	"sync"

	"github.com/deirlabs/mentord/pkg/provider/media"
)

// TranscribeCall records a single invocation of Transcribe.
type TranscribeCall struct {
	// Req is the TranscriptionRequest passed to Transcribe.
	Req media.TranscriptionRequest
}

// Transcriber is a mock implementation of media.Transcriber.
type Transcriber struct {
	mu sync.Mutex

	// Transcript is returned by Transcribe.
	Transcript string

	// Err, if non-nil, is returned as the error from Transcribe.
	Err error

	// Calls records every invocation in order.
	Calls []TranscribeCall
}

// Transcribe records the call and returns Transcript, Err.
func (t *Transcriber) Transcribe(_ context.Context, req media.TranscriptionRequest) (string, error) {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.Calls = append(t.Calls, TranscribeCall{Req: req})
	if t.Err != nil {
		return "", t.Err
	}
	return t.Transcript, nil
}

var _ media.Transcriber = (*Transcriber)(nil)

// ImageGenerator is a mock implementation of media.ImageGenerator.
type ImageGenerator struct {
	mu sync.Mutex

	// Image is returned by GenerateImage.
	Image *media.Image

	// Err, if non-nil, is returned as the error from GenerateImage.
	Err error

	// Calls records every request in order.
	Calls []media.ImageRequest
}

// GenerateImage records the call and returns Image, Err.
func (g *ImageGenerator) GenerateImage(_ context.Context, req media.ImageRequest) (*media.Image, error) {
	g.mu.Lock()
	defer g.mu.Unlock()
	g.Calls = append(g.Calls, req)
	if g.Err != nil {
		return nil, g.Err
	}
	return g.Image, nil
}

var _ media.ImageGenerator = (*ImageGenerator)(nil)

// VideoGenerator is a mock implementation of media.VideoGenerator.
type VideoGenerator struct {
	mu sync.Mutex

	// Video is returned by GenerateVideo.
	Video *media.Video

	// Err, if non-nil, is returned as the error from GenerateVideo.
	Err error

	// Calls records every request in order.
	Calls []media.VideoRequest
}

// GenerateVideo records the call and returns Video, Err.
func (g *VideoGenerator) GenerateVideo(_ context.Context, req media.VideoRequest) (*media.Video, error) {
	g.mu.Lock()
	defer g.mu.Unlock()
	g.Calls = append(g.Calls, req)
	if g.Err != nil {
		return nil, g.Err
	}
	return g.Video, nil
}

var _ media.VideoGenerator = (*VideoGenerator)(nil)
