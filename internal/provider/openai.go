package provider

import (
	"context"
	"fmt"
	"strings"

	"github.com/openai/openai-go"
	"github.com/openai/openai-go/option"
	"github.com/openai/openai-go/packages/ssestream"

	"github.com/cabinwatch/cabinwatch/internal/credential"
)

// OpenAI implements Provider for all OpenAI-compatible APIs, including
// OpenAI itself, Gemini's compatibility endpoint, DeepSeek and Groq.
type OpenAI struct {
	client  openai.Client
	model   string
	name    string
	baseURL string
}

// NewOpenAI builds an adapter for an OpenAI-compatible endpoint. An empty
// baseURL targets api.openai.com.
func NewOpenAI(cred credential.Credential, baseURL, model string) *OpenAI {
	opts := []option.RequestOption{option.WithAPIKey(cred.Key())}
	if baseURL != "" {
		opts = append(opts, option.WithBaseURL(baseURL))
	}

	name := "openai"
	switch {
	case strings.Contains(baseURL, "generativelanguage.googleapis.com"):
		name = "gemini"
	case strings.Contains(baseURL, "deepseek"):
		name = "deepseek"
	case strings.Contains(baseURL, "groq"):
		name = "groq"
	}

	if model == "" {
		model = "gpt-4o-mini"
	}

	return &OpenAI{
		client:  openai.NewClient(opts...),
		model:   model,
		name:    name,
		baseURL: baseURL,
	}
}

func (p *OpenAI) Name() string  { return p.name }
func (p *OpenAI) Model() string { return p.model }

func (p *OpenAI) Generate(ctx context.Context, req *Request) (<-chan Event, error) {
	model := req.Model
	if model == "" {
		model = p.model
	}

	params := openai.ChatCompletionNewParams{
		Model:    openai.ChatModel(model),
		Messages: buildOpenAIMessages(req),
		StreamOptions: openai.ChatCompletionStreamOptionsParam{
			IncludeUsage: openai.Bool(true),
		},
	}
	if req.MaxTokens > 0 {
		params.MaxTokens = openai.Int(int64(req.MaxTokens))
	}
	if req.Temperature != nil {
		params.Temperature = openai.Float(*req.Temperature)
	}

	stream := p.client.Chat.Completions.NewStreaming(ctx, params)

	ch := make(chan Event, 16)
	go p.processStream(ctx, stream, ch)
	return ch, nil
}

// processStream reads the OpenAI SSE stream and emits unified events.
// Exactly one terminal event is emitted: the finish_reason chunk and the
// trailing usage-only chunk (sent after it when usage reporting is on) are
// folded into a single EventDone.
func (p *OpenAI) processStream(ctx context.Context, stream *ssestream.Stream[openai.ChatCompletionChunk], ch chan<- Event) {
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

		chunk := stream.Current()
		if chunk.Usage.PromptTokens > 0 || chunk.Usage.CompletionTokens > 0 {
			usage = Usage{
				InputTokens:  int(chunk.Usage.PromptTokens),
				OutputTokens: int(chunk.Usage.CompletionTokens),
			}
		}
		if len(chunk.Choices) == 0 {
			continue
		}

		choice := chunk.Choices[0]
		if choice.Delta.Content != "" {
			ch <- Event{Type: EventTextDelta, TextDelta: choice.Delta.Content}
		}
		if reason := string(choice.FinishReason); reason != "" {
			finish = openAIFinishReason(reason)
		}
	}

	if err := stream.Err(); err != nil {
		ch <- Event{Type: EventError, Err: Wrap(fmt.Errorf("openai streaming error: %w", err))}
		return
	}

	ch <- Event{Type: EventDone, Usage: &usage, FinishReason: finish}
}

// openAIFinishReason maps the vendor finish_reason onto ours.
func openAIFinishReason(reason string) FinishReason {
	if reason == "length" {
		return FinishTruncated
	}
	return FinishCompleted
}

// buildOpenAIMessages converts unified messages to OpenAI chat params.
func buildOpenAIMessages(req *Request) []openai.ChatCompletionMessageParamUnion {
	params := make([]openai.ChatCompletionMessageParamUnion, 0, len(req.Messages)+1)
	if req.SystemPrompt != "" {
		params = append(params, openai.SystemMessage(req.SystemPrompt))
	}
	for _, msg := range req.Messages {
		switch msg.Role {
		case RoleSystem:
			params = append(params, openai.SystemMessage(msg.Text))
		case RoleAssistant:
			params = append(params, openai.AssistantMessage(msg.Text))
		default:
			params = append(params, openai.UserMessage(msg.Text))
		}
	}
	return params
}
