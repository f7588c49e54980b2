package provider

import (
	"context"
	"fmt"

	"github.com/anthropics/anthropic-sdk-go"
	anthropicoption "github.com/anthropics/anthropic-sdk-go/option"
	"github.com/anthropics/anthropic-sdk-go/packages/ssestream"

	"github.com/cabinwatch/cabinwatch/internal/credential"
)

// Anthropic implements Provider using the Anthropic native API.
type Anthropic struct {
	client anthropic.Client
	model  string
}

func NewAnthropic(cred credential.Credential, model string) *Anthropic {
	if model == "" {
		model = "claude-sonnet-4-20250514"
	}
	return &Anthropic{
		client: anthropic.NewClient(anthropicoption.WithAPIKey(cred.Key())),
		model:  model,
	}
}

func (p *Anthropic) Name() string  { return "anthropic" }
func (p *Anthropic) Model() string { return p.model }

func (p *Anthropic) Generate(ctx context.Context, req *Request) (<-chan Event, error) {
	model := req.Model
	if model == "" {
		model = p.model
	}

	maxTokens := int64(req.MaxTokens)
	if maxTokens <= 0 {
		maxTokens = 1024
	}

	params := anthropic.MessageNewParams{
		Model:     anthropic.Model(model),
		Messages:  buildAnthropicMessages(req.Messages),
		MaxTokens: maxTokens,
	}
	if req.SystemPrompt != "" {
		params.System = []anthropic.TextBlockParam{{Text: req.SystemPrompt}}
	}
	if req.Temperature != nil {
		params.Temperature = anthropic.Float(*req.Temperature)
	}

	stream := p.client.Messages.NewStreaming(ctx, params)

	ch := make(chan Event, 16)
	go p.processStream(ctx, stream, ch)
	return ch, nil
}

// processStream reads the Anthropic SSE stream and emits unified events.
//
// Anthropic streaming event sequence:
//   - ContentBlockDeltaEvent (TextDelta) -> emit EventTextDelta
//   - MessageDeltaEvent -> record usage and stop reason
//   - stream end -> emit EventDone
func (p *Anthropic) processStream(ctx context.Context, stream *ssestream.Stream[anthropic.MessageStreamEventUnion], ch chan<- Event) {
	defer close(ch)
	defer stream.Close()

	var usage Usage
	finish := FinishCompleted

	for stream.Next() {
		select {
		case <-ctx.Done():
			ch <- Event{Type: EventError, Err: ctx.Err()}
			return
		default:
		}

		event := stream.Current()
		switch variant := event.AsAny().(type) {
		case anthropic.ContentBlockDeltaEvent:
			if d, ok := variant.Delta.AsAny().(anthropic.TextDelta); ok {
				ch <- Event{Type: EventTextDelta, TextDelta: d.Text}
			}

		case anthropic.MessageDeltaEvent:
			usage = Usage{
				InputTokens:  int(variant.Usage.InputTokens),
				OutputTokens: int(variant.Usage.OutputTokens),
			}
			finish = anthropicFinishReason(string(variant.Delta.StopReason))
		}
	}

	if err := stream.Err(); err != nil {
		ch <- Event{Type: EventError, Err: Wrap(fmt.Errorf("anthropic streaming error: %w", err))}
		return
	}

	ch <- Event{Type: EventDone, Usage: &usage, FinishReason: finish}
}

// anthropicFinishReason maps the vendor stop_reason onto ours.
func anthropicFinishReason(stop string) FinishReason {
	if stop == "max_tokens" {
		return FinishTruncated
	}
	return FinishCompleted
}

// buildAnthropicMessages converts unified messages to Anthropic params.
// System content travels in the top-level System field, never in the list.
func buildAnthropicMessages(msgs []Message) []anthropic.MessageParam {
	params := make([]anthropic.MessageParam, 0, len(msgs))
	for _, msg := range msgs {
		switch msg.Role {
		case RoleAssistant:
			params = append(params, anthropic.NewAssistantMessage(anthropic.NewTextBlock(msg.Text)))
		case RoleSystem:
			// Callers hoist system text into Request.SystemPrompt.
		default:
			params = append(params, anthropic.NewUserMessage(anthropic.NewTextBlock(msg.Text)))
		}
	}
	return params
}
