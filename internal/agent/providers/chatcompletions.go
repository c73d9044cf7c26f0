package providers

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"time"

	openai "github.com/sashabaranov/go-openai"

	"github.com/openvia/openvia/internal/agent"
	"github.com/openvia/openvia/internal/agent/toolconv"
	"github.com/openvia/openvia/pkg/models"
)

// maxContextTokens is a static, provider-maintained table of context window
// sizes, keyed by model name. It errs on the conservative side for any model
// not explicitly listed.
var chatCompletionsContextTokens = map[string]int{
	"gpt-4o":        128000,
	"gpt-4o-mini":   128000,
	"gpt-4-turbo":   128000,
	"gpt-4":         8192,
	"gpt-3.5-turbo": 16385,
}

const defaultChatCompletionsContextTokens = 128000

// ChatCompletionsProvider implements agent.Provider against OpenAI's
// chat-completions streaming API via go-openai. It is the wire variant
// selected for llm.format == "openai" (spec §4.1).
type ChatCompletionsProvider struct {
	BaseProvider
	client *openai.Client
}

// NewChatCompletionsProvider creates a chat-completions adapter. baseURL may
// be empty to use OpenAI's default endpoint, or set to point at a
// compatible gateway.
func NewChatCompletionsProvider(apiKey, baseURL string) *ChatCompletionsProvider {
	cfg := openai.DefaultConfig(apiKey)
	if baseURL != "" {
		cfg.BaseURL = baseURL
	}
	return &ChatCompletionsProvider{
		BaseProvider: NewBaseProvider("openai", 3, time.Second),
		client:       openai.NewClientWithConfig(cfg),
	}
}

// Name returns the provider identifier used for logging and classification.
func (p *ChatCompletionsProvider) Name() string { return "openai" }

// MaxContextTokens returns the context window for model, falling back to a
// conservative default for unrecognized models.
func (p *ChatCompletionsProvider) MaxContextTokens(model string) int {
	if tokens, ok := chatCompletionsContextTokens[model]; ok {
		return tokens
	}
	return defaultChatCompletionsContextTokens
}

// Complete streams one chat-completions round and translates it into the
// unified models.LLMEvent sequence.
func (p *ChatCompletionsProvider) Complete(ctx context.Context, req agent.Request) (<-chan models.LLMEvent, error) {
	messages, err := toChatCompletionMessages(req)
	if err != nil {
		return nil, NewProviderError(p.Name(), req.Model, err)
	}

	chatReq := openai.ChatCompletionRequest{
		Model:       req.Model,
		Messages:    messages,
		Stream:      true,
		MaxTokens:   req.MaxTokens,
		Temperature: float32(req.Temperature),
		StreamOptions: &openai.StreamOptions{
			IncludeUsage: true,
		},
	}
	if len(req.Tools) > 0 {
		chatReq.Tools = toolconv.ToOpenAITools(req.Tools)
	}

	var stream *openai.ChatCompletionStream
	retryErr := p.Retry(ctx, IsRetryable, func() error {
		s, err := p.client.CreateChatCompletionStream(ctx, chatReq)
		if err != nil {
			return classifyOpenAIErr(err)
		}
		stream = s
		return nil
	})
	if retryErr != nil {
		return nil, NewProviderError(p.Name(), req.Model, retryErr)
	}

	events := make(chan models.LLMEvent, 16)
	go p.streamEvents(ctx, stream, events)
	return events, nil
}

func (p *ChatCompletionsProvider) streamEvents(ctx context.Context, stream *openai.ChatCompletionStream, events chan<- models.LLMEvent) {
	defer close(events)
	defer stream.Close()

	// Accumulated by index, since OpenAI streams tool-call name/arguments as
	// fragments across multiple deltas before FinishReason signals "tool_calls".
	calls := make(map[int]*models.ToolCall)
	order := make([]int, 0, 2)
	var usage *models.Usage

	for {
		select {
		case <-ctx.Done():
			events <- models.LLMEvent{Kind: models.LLMEventError, Message: ctx.Err().Error()}
			return
		default:
		}

		resp, err := stream.Recv()
		if err != nil {
			if err == io.EOF {
				for _, idx := range order {
					if tc := calls[idx]; tc != nil && tc.Name != "" {
						events <- models.LLMEvent{Kind: models.LLMEventToolCall, ToolCall: tc}
					}
				}
				events <- models.LLMEvent{Kind: models.LLMEventDone, Usage: usage}
				return
			}
			events <- models.LLMEvent{Kind: models.LLMEventError, Message: err.Error()}
			return
		}

		// stream_options.include_usage makes OpenAI send one trailing chunk
		// with Usage populated and no choices; capture it for the Done event
		// rather than falling through to the choice-indexed handling below.
		if resp.Usage != nil {
			usage = &models.Usage{
				PromptTokens:     resp.Usage.PromptTokens,
				CompletionTokens: resp.Usage.CompletionTokens,
				TotalTokens:      resp.Usage.TotalTokens,
			}
		}

		if len(resp.Choices) == 0 {
			continue
		}
		choice := resp.Choices[0]
		delta := choice.Delta

		if delta.Content != "" {
			events <- models.LLMEvent{Kind: models.LLMEventTextDelta, Text: delta.Content}
		}

		for _, tc := range delta.ToolCalls {
			index := 0
			if tc.Index != nil {
				index = *tc.Index
			}
			if calls[index] == nil {
				calls[index] = &models.ToolCall{}
				order = append(order, index)
			}
			if tc.ID != "" {
				calls[index].ID = tc.ID
			}
			if tc.Function.Name != "" {
				calls[index].Name = tc.Function.Name
			}
			if tc.Function.Arguments != "" {
				calls[index].Args = append(calls[index].Args, []byte(tc.Function.Arguments)...)
				events <- models.LLMEvent{Kind: models.LLMEventToolCallDelta, ToolCall: calls[index]}
			}
		}

		if choice.FinishReason == "tool_calls" {
			for _, idx := range order {
				if tc := calls[idx]; tc != nil && tc.Name != "" {
					events <- models.LLMEvent{Kind: models.LLMEventToolCall, ToolCall: tc}
				}
			}
			calls = make(map[int]*models.ToolCall)
			order = order[:0]
		}
	}
}

// toChatCompletionMessages renders the unified Request into OpenAI's
// chat-completions message array: the system prompt first, then history,
// then one role="tool" message per spliced ToolResultRecord.
func toChatCompletionMessages(req agent.Request) ([]openai.ChatCompletionMessage, error) {
	out := make([]openai.ChatCompletionMessage, 0, len(req.Messages)+len(req.ToolResults)+1)

	if req.SystemPrompt != "" {
		out = append(out, openai.ChatCompletionMessage{Role: openai.ChatMessageRoleSystem, Content: req.SystemPrompt})
	}

	for _, m := range req.Messages {
		out = append(out, toChatCompletionMessage(m))
	}

	for _, tr := range req.ToolResults {
		out = append(out, openai.ChatCompletionMessage{
			Role:       openai.ChatMessageRoleTool,
			Content:    tr.Content,
			ToolCallID: tr.ToolCallID,
		})
	}

	return out, nil
}

func toChatCompletionMessage(m models.Message) openai.ChatCompletionMessage {
	role := string(m.Role)
	if m.Role == models.RoleTool {
		role = openai.ChatMessageRoleTool
	}

	var parts []openai.ChatMessagePart
	var textOnly string
	multimodal := false
	for _, block := range m.Content {
		switch block.Kind {
		case models.BlockText:
			if len(parts) == 0 && !multimodal {
				textOnly += block.Text
			}
			parts = append(parts, openai.ChatMessagePart{Type: openai.ChatMessagePartTypeText, Text: block.Text})
		case models.BlockImage:
			multimodal = true
			parts = append(parts, openai.ChatMessagePart{
				Type: openai.ChatMessagePartTypeImageURL,
				ImageURL: &openai.ChatMessageImageURL{
					URL: fmt.Sprintf("data:%s;base64,%s", block.MimeType, block.Data),
				},
			})
		}
	}

	if multimodal {
		return openai.ChatCompletionMessage{Role: role, MultiContent: parts}
	}
	return openai.ChatCompletionMessage{Role: role, Content: textOnly}
}

func classifyOpenAIErr(err error) error {
	if err == nil {
		return nil
	}
	slog.Debug("openai stream create failed", "error", err)
	return err
}
