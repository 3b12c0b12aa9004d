package chat

import (
	"context"
	"fmt"
	"strings"

	"github.com/deirlabs/mentord/pkg/provider/text"
	"github.com/deirlabs/mentord/pkg/types"
)

// Debate section markers as emitted by the model. The prompt instructs the
// model to label each part of the debate with exactly these tags.
const (
	MarkerInit     = "[AGENT_A_INIT]"
	MarkerCritique = "[AGENT_B_CRITIQUE]"
	MarkerRebuttal = "[AGENT_A_REBUTTAL]"
	MarkerFinal    = "[FINAL_PLAN]"
)

// debateMarkers in presentation order.
var debateMarkers = []string{MarkerInit, MarkerCritique, MarkerRebuttal, MarkerFinal}

// DebateUpdate is one incremental rendering state of a streamed debate.
type DebateUpdate struct {
	// Raw is the full accumulated text so far, markers included. Consumers
	// fall back to rendering Raw while Sections is empty.
	Raw string

	// Sections maps each fully-resolved marker to its text. Partially
	// streamed markers are excluded until they resolve.
	Sections map[string]string

	// Done marks the final update of the stream.
	Done bool
}

// StreamDebate runs the four-part internal debate (position, critique,
// rebuttal, synthesis) on topic and streams rendering updates. The returned
// channel is closed when the debate finishes or ctx is cancelled. The busy
// flag is shared with Send: a debate cannot start while a chat message is in
// flight and vice versa.
func (o *Orchestrator) StreamDebate(ctx context.Context, topic string) (<-chan DebateUpdate, error) {
	if strings.TrimSpace(topic) == "" {
		return nil, fmt.Errorf("chat: topic must not be empty")
	}

	if err := o.acquire(); err != nil {
		return nil, err
	}

	req := text.CompletionRequest{
		Messages: []types.Message{
			{Role: types.RoleUser, Content: topic},
		},
		SystemPrompt: o.debatePrompt(),
	}

	chunks, err := o.provider.StreamCompletion(ctx, req)
	if err != nil {
		o.release()
		return nil, fmt.Errorf("chat: start debate: %w", err)
	}

	updates := make(chan DebateUpdate, 16)
	go func() {
		defer o.release()
		defer close(updates)

		var accum strings.Builder
		failed := false

		for chunk := range chunks {
			if chunk.FinishReason == "error" {
				o.logger.Warn("debate stream failed", "error", chunk.Text)
				failed = true
				break
			}
			if chunk.Text == "" {
				continue
			}
			accum.WriteString(chunk.Text)

			update := DebateUpdate{
				Raw:      accum.String(),
				Sections: ParseDebateSections(accum.String()),
			}
			select {
			case updates <- update:
			case <-ctx.Done():
				return
			}
		}

		final := DebateUpdate{Done: true}
		if failed {
			final.Raw = Apology
		} else {
			final.Raw = accum.String()
			final.Sections = ParseDebateSections(final.Raw)
		}
		select {
		case updates <- final:
		case <-ctx.Done():
			return
		}

		if !failed && o.recorder != nil {
			answer := final.Raw
			if plan, ok := final.Sections[MarkerFinal]; ok && plan != "" {
				answer = plan
			}
			o.recorder.RecordExchange(ctx, topic, StripMarkup(answer), "")
		}
	}()

	return updates, nil
}

// ParseDebateSections extracts the labelled debate sections from raw streamed
// text. Markers that have not fully arrived yet are ignored; a trailing
// partial marker is trimmed from the preceding section so it never flashes as
// content mid-stream.
func ParseDebateSections(raw string) map[string]string {
	type span struct {
		marker string
		start  int // index just past the marker
	}

	var spans []span
	for _, m := range debateMarkers {
		if idx := strings.Index(raw, m); idx >= 0 {
			spans = append(spans, span{marker: m, start: idx + len(m)})
		}
	}
	if len(spans) == 0 {
		return nil
	}

	// Markers may stream out of canonical order if the model misbehaves;
	// sort by position so section boundaries are well defined.
	for i := 1; i < len(spans); i++ {
		for j := i; j > 0 && spans[j].start < spans[j-1].start; j-- {
			spans[j], spans[j-1] = spans[j-1], spans[j]
		}
	}

	sections := make(map[string]string, len(spans))
	for i, sp := range spans {
		end := len(raw)
		if i+1 < len(spans) {
			end = spans[i+1].start - len(spans[i+1].marker)
		}
		content := raw[sp.start:end]
		if i == len(spans)-1 {
			content = trimPartialMarker(content)
		}
		sections[sp.marker] = strings.TrimSpace(content)
	}
	return sections
}

// trimPartialMarker removes an incomplete marker prefix from the end of
// content, e.g. "…text [AGENT_B_CRI" while the rest of the tag is still in
// flight.
func trimPartialMarker(content string) string {
	open := strings.LastIndex(content, "[")
	if open < 0 {
		return content
	}
	tail := content[open:]
	if strings.Contains(tail, "]") {
		return content
	}
	for _, m := range debateMarkers {
		if strings.HasPrefix(m, tail) {
			return content[:open]
		}
	}
	return content
}

// debatePrompt instructs the model to produce the four labelled parts.
func (o *Orchestrator) debatePrompt() string {
	return fmt.Sprintf(`Two advisors debate how the user should approach the topic, then synthesise a plan.

Structure your answer in exactly four parts, each introduced by its tag on its own line:
%s - advisor A states an initial position.
%s - advisor B critiques that position.
%s - advisor A responds to the critique.
%s - the final synthesised plan for the user.

%s`,
		MarkerInit, MarkerCritique, MarkerRebuttal, MarkerFinal, o.contextBlock(""))
}
