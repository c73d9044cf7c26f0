package providers

import (
	"bufio"
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/openvia/openvia/internal/agent"
	"github.com/openvia/openvia/pkg/models"
)

var responsesContextTokens = map[string]int{
	"gpt-4o":      128000,
	"gpt-4o-mini": 128000,
	"o1":          200000,
	"o3-mini":     200000,
}

const defaultResponsesContextTokens = 128000

// ResponsesProvider implements agent.Provider against the Responses API
// (selected by a /responses URL suffix, spec §4.1). There is no vendored
// Go client for this wire protocol, so the adapter reads the SSE stream by
// hand over net/http and bufio.Scanner.
//
// format: "claude" resolves to this variant (see DESIGN.md): the
// Responses API's typed input-item blocks and streamed output items are
// structurally the closest match in this module's dependency set to
// Claude's content-block message shape, and no Anthropic SDK is carried
// in this build (DESIGN.md, dropped dependencies).
type ResponsesProvider struct {
	BaseProvider
	httpClient *http.Client
	apiKey     string
	baseURL    string
}

// NewResponsesProvider creates a Responses-API adapter. baseURL must include
// the /responses path suffix that selects this wire variant.
func NewResponsesProvider(apiKey, baseURL string) *ResponsesProvider {
	if baseURL == "" {
		baseURL = "https://api.openai.com/v1/responses"
	}
	return &ResponsesProvider{
		BaseProvider: NewBaseProvider("claude", 3, time.Second),
		httpClient:   &http.Client{Timeout: 120 * time.Second},
		apiKey:       apiKey,
		baseURL:      baseURL,
	}
}

// Name returns the provider identifier.
func (p *ResponsesProvider) Name() string { return "claude" }

// MaxContextTokens returns model's context window, defaulting conservatively
// for unrecognized models.
func (p *ResponsesProvider) MaxContextTokens(model string) int {
	if tokens, ok := responsesContextTokens[model]; ok {
		return tokens
	}
	return defaultResponsesContextTokens
}

type responsesInputItem struct {
	Type    string                `json:"type"`
	Role    string                `json:"role,omitempty"`
	Content []responsesInputBlock `json:"content,omitempty"`

	// function_call_output fields
	CallID string `json:"call_id,omitempty"`
	Output string `json:"output,omitempty"`
}

type responsesInputBlock struct {
	Type     string `json:"type"`
	Text     string `json:"text,omitempty"`
	ImageURL string `json:"image_url,omitempty"`
}

type responsesTool struct {
	Type        string          `json:"type"`
	Name        string          `json:"name"`
	Description string          `json:"description"`
	Parameters  json.RawMessage `json:"parameters"`
}

type responsesRequestBody struct {
	Model        string               `json:"model"`
	Input        []responsesInputItem `json:"input"`
	Tools        []responsesTool      `json:"tools,omitempty"`
	Instructions string               `json:"instructions,omitempty"`
	Stream       bool                 `json:"stream"`
	MaxTokens    int                  `json:"max_output_tokens,omitempty"`
	Temperature  float64              `json:"temperature,omitempty"`
	PreviousID   string               `json:"previous_response_id,omitempty"`
}

// Complete streams one Responses-API round and translates it into the
// unified models.LLMEvent sequence.
func (p *ResponsesProvider) Complete(ctx context.Context, req agent.Request) (<-chan models.LLMEvent, error) {
	body := toResponsesBody(req)

	payload, err := json.Marshal(body)
	if err != nil {
		return nil, NewProviderError(p.Name(), req.Model, err)
	}

	var resp *http.Response
	retryErr := p.Retry(ctx, IsRetryable, func() error {
		httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, p.baseURL, bytes.NewReader(payload))
		if err != nil {
			return err
		}
		httpReq.Header.Set("Content-Type", "application/json")
		httpReq.Header.Set("Authorization", "Bearer "+p.apiKey)
		httpReq.Header.Set("Accept", "text/event-stream")

		r, err := p.httpClient.Do(httpReq)
		if err != nil {
			return err
		}
		if r.StatusCode >= 300 {
			defer r.Body.Close()
			b, _ := io.ReadAll(r.Body)
			return NewProviderError(p.Name(), req.Model, fmt.Errorf("responses api: %s", string(b))).WithStatus(r.StatusCode)
		}
		resp = r
		return nil
	})
	if retryErr != nil {
		return nil, NewProviderError(p.Name(), req.Model, retryErr)
	}

	events := make(chan models.LLMEvent, 16)
	go p.readSSE(ctx, resp.Body, events)
	return events, nil
}

// itemCacheEntry tracks a function-call output item until its arguments
// finish streaming, per spec §4.1's item_id → {call_id,name} cache, scoped
// to one Complete invocation.
type itemCacheEntry struct {
	callID string
	name   string
}

func (p *ResponsesProvider) readSSE(ctx context.Context, body io.ReadCloser, events chan<- models.LLMEvent) {
	defer close(events)
	defer body.Close()

	itemCache := make(map[string]itemCacheEntry)
	emitted := make(map[string]bool) // dedup by call_id

	scanner := bufio.NewScanner(body)
	scanner.Buffer(make([]byte, 64*1024), 1<<20)

	var eventType string
	for scanner.Scan() {
		select {
		case <-ctx.Done():
			events <- models.LLMEvent{Kind: models.LLMEventError, Message: ctx.Err().Error()}
			return
		default:
		}

		line := scanner.Text()
		switch {
		case strings.HasPrefix(line, "event: "):
			eventType = strings.TrimPrefix(line, "event: ")
		case strings.HasPrefix(line, "data: "):
			data := strings.TrimPrefix(line, "data: ")
			if data == "[DONE]" {
				events <- models.LLMEvent{Kind: models.LLMEventDone}
				return
			}
			p.handleResponsesEvent(eventType, data, itemCache, emitted, events)
		case line == "":
			eventType = ""
		}
	}
	if err := scanner.Err(); err != nil {
		events <- models.LLMEvent{Kind: models.LLMEventError, Message: err.Error()}
		return
	}
	events <- models.LLMEvent{Kind: models.LLMEventDone}
}

func (p *ResponsesProvider) handleResponsesEvent(eventType, data string, itemCache map[string]itemCacheEntry, emitted map[string]bool, events chan<- models.LLMEvent) {
	switch eventType {
	case "response.output_text.delta":
		var payload struct {
			Delta string `json:"delta"`
		}
		if json.Unmarshal([]byte(data), &payload) == nil && payload.Delta != "" {
			events <- models.LLMEvent{Kind: models.LLMEventTextDelta, Text: payload.Delta}
		}

	case "response.output_item.added":
		var payload struct {
			Item struct {
				ID     string `json:"id"`
				Type   string `json:"type"`
				CallID string `json:"call_id"`
				Name   string `json:"name"`
			} `json:"item"`
		}
		if json.Unmarshal([]byte(data), &payload) == nil && payload.Item.Type == "function_call" {
			itemCache[payload.Item.ID] = itemCacheEntry{callID: payload.Item.CallID, name: payload.Item.Name}
		}

	case "response.function_call_arguments.done":
		var payload struct {
			ItemID    string `json:"item_id"`
			Arguments string `json:"arguments"`
		}
		if json.Unmarshal([]byte(data), &payload) != nil {
			return
		}
		entry, ok := itemCache[payload.ItemID]
		if !ok || emitted[entry.callID] {
			return
		}
		emitted[entry.callID] = true
		events <- models.LLMEvent{
			Kind: models.LLMEventToolCall,
			ToolCall: &models.ToolCall{
				ID:   entry.callID,
				Name: entry.name,
				Args: json.RawMessage(payload.Arguments),
			},
		}

	case "response.output_item.done":
		// Fallback path: some item types (and early API revisions) only
		// surface their final state here rather than via the dedicated
		// arguments.done event. Dedup by call_id protects against
		// double-emission when both fire for the same call.
		var payload struct {
			Item struct {
				ID        string `json:"id"`
				Type      string `json:"type"`
				CallID    string `json:"call_id"`
				Name      string `json:"name"`
				Arguments string `json:"arguments"`
			} `json:"item"`
		}
		if json.Unmarshal([]byte(data), &payload) != nil || payload.Item.Type != "function_call" {
			return
		}
		if emitted[payload.Item.CallID] {
			return
		}
		emitted[payload.Item.CallID] = true
		events <- models.LLMEvent{
			Kind: models.LLMEventToolCall,
			ToolCall: &models.ToolCall{
				ID:   payload.Item.CallID,
				Name: payload.Item.Name,
				Args: json.RawMessage(payload.Item.Arguments),
			},
		}

	case "response.completed":
		var payload struct {
			Response struct {
				ID    string `json:"id"`
				Usage struct {
					InputTokens  int `json:"input_tokens"`
					OutputTokens int `json:"output_tokens"`
					TotalTokens  int `json:"total_tokens"`
				} `json:"usage"`
			} `json:"response"`
		}
		if json.Unmarshal([]byte(data), &payload) == nil {
			events <- models.LLMEvent{
				Kind:       models.LLMEventDone,
				ResponseID: payload.Response.ID,
				Usage: &models.Usage{
					PromptTokens:     payload.Response.Usage.InputTokens,
					CompletionTokens: payload.Response.Usage.OutputTokens,
					TotalTokens:      payload.Response.Usage.TotalTokens,
				},
			}
		}

	case "error", "response.failed":
		var payload struct {
			Error struct {
				Message string `json:"message"`
			} `json:"error"`
		}
		json.Unmarshal([]byte(data), &payload)
		msg := payload.Error.Message
		if msg == "" {
			msg = "responses api: stream error"
		}
		events <- models.LLMEvent{Kind: models.LLMEventError, Message: msg}
	}
}

// toResponsesBody renders the unified Request into the Responses API's
// input-item shape: typed content blocks for each message, function_call_
// output items for spliced tool results, and instructions carrying the
// system prompt (spec §4.1 rule 3).
func toResponsesBody(req agent.Request) responsesRequestBody {
	body := responsesRequestBody{
		Model:        req.Model,
		Instructions: req.SystemPrompt,
		Stream:       true,
		MaxTokens:    req.MaxTokens,
		Temperature:  req.Temperature,
		PreviousID:   req.PreviousResponseID,
	}

	for _, m := range req.Messages {
		item := responsesInputItem{Type: "message", Role: string(m.Role)}
		for _, block := range m.Content {
			switch block.Kind {
			case models.BlockText:
				blockType := "input_text"
				if m.Role == models.RoleAssistant {
					blockType = "output_text"
				}
				item.Content = append(item.Content, responsesInputBlock{Type: blockType, Text: block.Text})
			case models.BlockImage:
				item.Content = append(item.Content, responsesInputBlock{
					Type:     "input_image",
					ImageURL: "data:" + block.MimeType + ";base64," + block.Data,
				})
			}
		}
		if len(item.Content) > 0 {
			body.Input = append(body.Input, item)
		}
	}

	for _, tr := range req.ToolResults {
		body.Input = append(body.Input, responsesInputItem{
			Type:   "function_call_output",
			CallID: tr.ToolCallID,
			Output: tr.Content,
		})
	}

	for _, tool := range req.Tools {
		body.Tools = append(body.Tools, responsesTool{
			Type:        "function",
			Name:        tool.Name,
			Description: tool.Description,
			Parameters:  tool.InputSchema,
		})
	}

	return body
}
