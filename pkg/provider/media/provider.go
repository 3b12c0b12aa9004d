// Package media defines provider interfaces for non-conversational model
// capabilities: audio transcription, image generation, and video generation.
//
// These are used by the studio features, which turn a stage description into
// visual material, and by the voice-note flow, which transcribes recorded
// audio before handing it to the mentor engine.
package media

import (
	"context"
	"time"
)

// TranscriptionRequest carries one recorded audio clip.
type TranscriptionRequest struct {
	// Audio is the raw encoded audio payload.
	Audio []byte

	// MIMEType identifies the audio encoding (e.g., "audio/wav", "audio/webm").
	MIMEType string

	// Hint is an optional vocabulary hint prepended to the transcription
	// prompt. Useful for domain terms the model would otherwise mishear.
	Hint string
}

// Transcriber converts recorded audio into text.
type Transcriber interface {
	// Transcribe returns the plain-text transcript of the given audio clip.
	Transcribe(ctx context.Context, req TranscriptionRequest) (string, error)
}

// Image is a generated still image.
type Image struct {
	// Data is the raw encoded image payload.
	Data []byte

	// MIMEType identifies the image encoding (e.g., "image/png").
	MIMEType string
}

// ImageRequest describes one image generation or edit.
type ImageRequest struct {
	// Prompt is the textual description of the desired image, or of the edit
	// to apply when Source is set.
	Prompt string

	// Source, when non-nil, turns the request into an edit of an existing
	// image instead of a fresh generation.
	Source *Image
}

// ImageGenerator produces or edits a still image from a text prompt.
type ImageGenerator interface {
	// GenerateImage returns the first image the model produces for req.
	GenerateImage(ctx context.Context, req ImageRequest) (*Image, error)
}

// Video is a generated video clip.
type Video struct {
	// Data is the raw encoded video payload.
	Data []byte

	// MIMEType identifies the video encoding (e.g., "video/mp4").
	MIMEType string
}

// VideoRequest describes one video generation.
type VideoRequest struct {
	// Prompt is the textual description of the desired clip.
	Prompt string

	// SourceImage, when non-nil, seeds the render with a still image.
	SourceImage *Image

	// AspectRatio is the requested frame ratio (e.g., "16:9"). Empty uses the
	// backend default.
	AspectRatio string
}

// VideoGenerator produces a short video clip from a text prompt. Video
// generation is a long-running operation; implementations poll the backend
// until the clip is ready or ctx is cancelled.
type VideoGenerator interface {
	// GenerateVideo returns the finished clip for req. The call blocks for
	// the duration of the remote render, typically tens of seconds.
	GenerateVideo(ctx context.Context, req VideoRequest) (*Video, error)
}

// PollInterval is the default delay between status checks for long-running
// generation operations.
const PollInterval = 5 * time.Second
