// Package gemini implements the media provider interfaces using the Google
// Gemini API via the official google.golang.org/genai SDK.
package gemini

import (
	"context"
	"fmt"
	"time"

	"google.golang.org/genai"

	"github.com/deirlabs/mentord/pkg/provider/media"
)

var (
	_ media.Transcriber    = (*Provider)(nil)
	_ media.ImageGenerator = (*Provider)(nil)
	_ media.VideoGenerator = (*Provider)(nil)
)

// Default model names for each capability.
const (
	DefaultTranscriptionModel = "gemini-3-flash-preview"
	DefaultImageModel         = "gemini-2.5-flash-image"
	DefaultVideoModel         = "veo-3.1-fast-generate-preview"
)

// Option is a functional option for Provider.
type Option func(*Provider)

// WithTranscriptionModel overrides the model used for Transcribe.
func WithTranscriptionModel(model string) Option {
	return func(p *Provider) { p.transcriptionModel = model }
}

// WithImageModel overrides the model used for GenerateImage.
func WithImageModel(model string) Option {
	return func(p *Provider) { p.imageModel = model }
}

// WithVideoModel overrides the model used for GenerateVideo.
func WithVideoModel(model string) Option {
	return func(p *Provider) { p.videoModel = model }
}

// WithPollInterval overrides the delay between video operation status checks.
func WithPollInterval(d time.Duration) Option {
	return func(p *Provider) { p.pollInterval = d }
}

// Provider implements Transcriber, ImageGenerator and VideoGenerator against
// the Gemini API.
type Provider struct {
	client *genai.Client

	transcriptionModel string
	imageModel         string
	videoModel         string
	pollInterval       time.Duration
}

// New constructs a Gemini media provider.
func New(ctx context.Context, apiKey string, opts ...Option) (*Provider, error) {
	if apiKey == "" {
		return nil, fmt.Errorf("gemini: apiKey must not be empty")
	}

	client, err := genai.NewClient(ctx, &genai.ClientConfig{
		APIKey:  apiKey,
		Backend: genai.BackendGeminiAPI,
	})
	if err != nil {
		return nil, fmt.Errorf("gemini: create client: %w", err)
	}

	p := &Provider{
		client:             client,
		transcriptionModel: DefaultTranscriptionModel,
		imageModel:         DefaultImageModel,
		videoModel:         DefaultVideoModel,
		pollInterval:       media.PollInterval,
	}
	for _, o := range opts {
		o(p)
	}
	return p, nil
}

// Transcribe implements media.Transcriber.
func (p *Provider) Transcribe(ctx context.Context, req media.TranscriptionRequest) (string, error) {
	if len(req.Audio) == 0 {
		return "", fmt.Errorf("gemini: audio must not be empty")
	}
	mimeType := req.MIMEType
	if mimeType == "" {
		mimeType = "audio/wav"
	}

	prompt := "Transcribe this audio verbatim. Return only the spoken words, without commentary."
	if req.Hint != "" {
		prompt += " The speaker may use these terms: " + req.Hint + "."
	}

	contents := []*genai.Content{
		genai.NewContentFromParts([]*genai.Part{
			genai.NewPartFromText(prompt),
			genai.NewPartFromBytes(req.Audio, mimeType),
		}, genai.RoleUser),
	}

	resp, err := p.client.Models.GenerateContent(ctx, p.transcriptionModel, contents, nil)
	if err != nil {
		return "", fmt.Errorf("gemini: transcribe: %w", err)
	}
	return resp.Text(), nil
}

// GenerateImage implements media.ImageGenerator. A request with a Source
// image becomes an edit: the source rides along as an inline part.
func (p *Provider) GenerateImage(ctx context.Context, req media.ImageRequest) (*media.Image, error) {
	if req.Prompt == "" {
		return nil, fmt.Errorf("gemini: prompt must not be empty")
	}

	cfg := &genai.GenerateContentConfig{
		ResponseModalities: []string{"IMAGE", "TEXT"},
	}

	parts := []*genai.Part{genai.NewPartFromText(req.Prompt)}
	if req.Source != nil {
		parts = append(parts, genai.NewPartFromBytes(req.Source.Data, req.Source.MIMEType))
	}
	contents := []*genai.Content{genai.NewContentFromParts(parts, genai.RoleUser)}

	resp, err := p.client.Models.GenerateContent(ctx, p.imageModel, contents, cfg)
	if err != nil {
		return nil, fmt.Errorf("gemini: generate image: %w", err)
	}

	for _, cand := range resp.Candidates {
		if cand.Content == nil {
			continue
		}
		for _, part := range cand.Content.Parts {
			if part.InlineData != nil && len(part.InlineData.Data) > 0 {
				return &media.Image{
					Data:     part.InlineData.Data,
					MIMEType: part.InlineData.MIMEType,
				}, nil
			}
		}
	}
	return nil, fmt.Errorf("gemini: no image in response")
}

// GenerateVideo implements media.VideoGenerator. It starts a long-running
// render operation and polls until it completes or ctx is cancelled.
func (p *Provider) GenerateVideo(ctx context.Context, req media.VideoRequest) (*media.Video, error) {
	if req.Prompt == "" {
		return nil, fmt.Errorf("gemini: prompt must not be empty")
	}

	var source *genai.Image
	if req.SourceImage != nil {
		source = &genai.Image{
			ImageBytes: req.SourceImage.Data,
			MIMEType:   req.SourceImage.MIMEType,
		}
	}

	var cfg *genai.GenerateVideosConfig
	if req.AspectRatio != "" {
		cfg = &genai.GenerateVideosConfig{AspectRatio: req.AspectRatio}
	}

	op, err := p.client.Models.GenerateVideos(ctx, p.videoModel, req.Prompt, source, cfg)
	if err != nil {
		return nil, fmt.Errorf("gemini: start video render: %w", err)
	}

	for !op.Done {
		select {
		case <-ctx.Done():
			return nil, fmt.Errorf("gemini: video render: %w", ctx.Err())
		case <-time.After(p.pollInterval):
		}
		op, err = p.client.Operations.GetVideosOperation(ctx, op, nil)
		if err != nil {
			return nil, fmt.Errorf("gemini: poll video render: %w", err)
		}
	}

	if op.Response == nil || len(op.Response.GeneratedVideos) == 0 {
		return nil, fmt.Errorf("gemini: no video in response")
	}

	vid := op.Response.GeneratedVideos[0].Video
	if vid == nil {
		return nil, fmt.Errorf("gemini: no video in response")
	}
	if len(vid.VideoBytes) == 0 {
		if _, err := p.client.Files.Download(ctx, vid, nil); err != nil {
			return nil, fmt.Errorf("gemini: download video: %w", err)
		}
	}

	mimeType := vid.MIMEType
	if mimeType == "" {
		mimeType = "video/mp4"
	}
	return &media.Video{Data: vid.VideoBytes, MIMEType: mimeType}, nil
}
