// Package gemini provides a text provider backed by the Google Gemini API via
// the official google.golang.org/genai SDK.
package gemini

import (
	"context"
	"fmt"
	"strings"

	"google.golang.org/genai"

	"github.com/deirlabs/mentord/pkg/provider/text"
	"github.com/deirlabs/mentord/pkg/types"
)

var _ text.Provider = (*Provider)(nil)

// DefaultModel is used when no model is configured.
const DefaultModel = "gemini-3-pro-preview"

// Provider implements text.Provider using the Gemini API.
type Provider struct {
	client *genai.Client
	model  string
}

// New constructs a Gemini text provider. If model is empty, DefaultModel is
// used.
func New(ctx context.Context, apiKey string, model string) (*Provider, error) {
	if apiKey == "" {
		return nil, fmt.Errorf("gemini: apiKey must not be empty")
	}
	if model == "" {
		model = DefaultModel
	}

	client, err := genai.NewClient(ctx, &genai.ClientConfig{
		APIKey:  apiKey,
		Backend: genai.BackendGeminiAPI,
	})
	if err != nil {
		return nil, fmt.Errorf("gemini: create client: %w", err)
	}

	return &Provider{client: client, model: model}, nil
}

// StreamCompletion implements text.Provider.
func (p *Provider) StreamCompletion(ctx context.Context, req text.CompletionRequest) (<-chan text.Chunk, error) {
	contents, cfg, err := buildRequest(req)
	if err != nil {
		return nil, fmt.Errorf("gemini: build request: %w", err)
	}

	ch := make(chan text.Chunk, 32)
	go func() {
		defer close(ch)

		for resp, err := range p.client.Models.GenerateContentStream(ctx, p.model, contents, cfg) {
			if err != nil {
				select {
				case ch <- text.Chunk{FinishReason: "error", Text: err.Error()}:
				case <-ctx.Done():
				}
				return
			}

			out := text.Chunk{Text: resp.Text()}
			if len(resp.Candidates) > 0 && resp.Candidates[0].FinishReason != "" {
				out.FinishReason = finishReason(resp.Candidates[0].FinishReason)
			}

			select {
			case ch <- out:
			case <-ctx.Done():
				return
			}
		}
	}()

	return ch, nil
}

// Complete implements text.Provider.
func (p *Provider) Complete(ctx context.Context, req text.CompletionRequest) (*text.CompletionResponse, error) {
	contents, cfg, err := buildRequest(req)
	if err != nil {
		return nil, fmt.Errorf("gemini: build request: %w", err)
	}

	resp, err := p.client.Models.GenerateContent(ctx, p.model, contents, cfg)
	if err != nil {
		return nil, fmt.Errorf("gemini: generate content: %w", err)
	}

	result := &text.CompletionResponse{Content: resp.Text()}
	if resp.UsageMetadata != nil {
		result.Usage = text.Usage{
			PromptTokens:     int(resp.UsageMetadata.PromptTokenCount),
			CompletionTokens: int(resp.UsageMetadata.CandidatesTokenCount),
			TotalTokens:      int(resp.UsageMetadata.TotalTokenCount),
		}
	}
	return result, nil
}

// CountTokens implements text.Provider. A local approximation is used to avoid
// a network round trip per budget check; ~4 characters per token is close
// enough for Gemini-series tokenisers.
func (p *Provider) CountTokens(messages []types.Message) (int, error) {
	total := 0
	for _, m := range messages {
		total += (len(m.Content) + 3) / 4
		total += 4
	}
	return total, nil
}

// Capabilities implements text.Provider.
func (p *Provider) Capabilities() text.Capabilities {
	caps := text.Capabilities{
		ContextWindow:     1_048_576,
		MaxOutputTokens:   65_536,
		SupportsStreaming: true,
		SupportsVision:    true,
	}
	if strings.Contains(strings.ToLower(p.model), "flash") {
		caps.MaxOutputTokens = 8_192
	}
	return caps
}

// buildRequest converts a CompletionRequest into genai contents and config.
func buildRequest(req text.CompletionRequest) ([]*genai.Content, *genai.GenerateContentConfig, error) {
	if len(req.Messages) == 0 {
		return nil, nil, fmt.Errorf("messages must not be empty")
	}

	cfg := &genai.GenerateContentConfig{}
	if req.SystemPrompt != "" {
		cfg.SystemInstruction = genai.NewContentFromText(req.SystemPrompt, genai.RoleUser)
	}
	if req.Temperature != 0 {
		cfg.Temperature = genai.Ptr(float32(req.Temperature))
	}
	if req.MaxTokens > 0 {
		cfg.MaxOutputTokens = int32(req.MaxTokens)
	}

	var contents []*genai.Content
	for i, m := range req.Messages {
		role, err := geminiRole(m.Role)
		if err != nil {
			return nil, nil, err
		}

		// Attachments ride on the final message.
		if i == len(req.Messages)-1 && len(req.Attachments) > 0 {
			parts := []*genai.Part{genai.NewPartFromText(m.Content)}
			for _, att := range req.Attachments {
				parts = append(parts, genai.NewPartFromBytes(att.Data, att.MIMEType))
			}
			contents = append(contents, genai.NewContentFromParts(parts, role))
			continue
		}

		contents = append(contents, genai.NewContentFromText(m.Content, role))
	}
	return contents, cfg, nil
}

// geminiRole maps conversation roles onto the two roles Gemini knows. System
// messages inside the history are folded into user turns; the dedicated system
// instruction field handles the usual case.
func geminiRole(role string) (genai.Role, error) {
	switch role {
	case types.RoleUser, types.RoleSystem:
		return genai.RoleUser, nil
	case types.RoleAssistant:
		return genai.RoleModel, nil
	default:
		return "", fmt.Errorf("unknown message role %q", role)
	}
}

// finishReason normalises the SDK's finish reason enum to the lowercase wire
// vocabulary used across providers.
func finishReason(r genai.FinishReason) string {
	switch r {
	case genai.FinishReasonStop:
		return "stop"
	case genai.FinishReasonMaxTokens:
		return "length"
	default:
		return strings.ToLower(string(r))
	}
}
