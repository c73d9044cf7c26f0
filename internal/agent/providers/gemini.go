package providers

import (
	"context"
	"encoding/base64"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"google.golang.org/genai"

	"github.com/openvia/openvia/internal/agent"
	"github.com/openvia/openvia/internal/agent/toolconv"
	"github.com/openvia/openvia/pkg/models"
)

var geminiContextTokens = map[string]int{
	"gemini-2.0-flash":      1000000,
	"gemini-2.0-flash-lite": 1000000,
	"gemini-1.5-pro":        2000000,
	"gemini-1.5-flash":      1000000,
	"gemini-1.5-flash-8b":   1000000,
}

const defaultGeminiContextTokens = 1000000
const defaultGeminiModel = "gemini-2.0-flash"

// GeminiProvider implements agent.Provider against the Google Gen AI SDK's
// streaming GenerateContent API. It is the wire variant selected for
// llm.format == "gemini" (spec §4.1).
type GeminiProvider struct {
	BaseProvider
	client       *genai.Client
	defaultModel string
}

// NewGeminiProvider creates a Gemini adapter from an API key.
func NewGeminiProvider(apiKey string) (*GeminiProvider, error) {
	if apiKey == "" {
		return nil, errors.New("gemini: API key is required")
	}
	client, err := genai.NewClient(context.Background(), &genai.ClientConfig{
		APIKey:  apiKey,
		Backend: genai.BackendGeminiAPI,
	})
	if err != nil {
		return nil, fmt.Errorf("gemini: failed to create client: %w", err)
	}
	return &GeminiProvider{
		BaseProvider: NewBaseProvider("gemini", 3, time.Second),
		client:       client,
		defaultModel: defaultGeminiModel,
	}, nil
}

// Name returns the provider identifier.
func (p *GeminiProvider) Name() string { return "gemini" }

// MaxContextTokens returns model's context window, defaulting conservatively
// for unrecognized models.
func (p *GeminiProvider) MaxContextTokens(model string) int {
	if tokens, ok := geminiContextTokens[model]; ok {
		return tokens
	}
	return defaultGeminiContextTokens
}

// Complete streams one Gemini round and translates it into the unified
// models.LLMEvent sequence.
func (p *GeminiProvider) Complete(ctx context.Context, req agent.Request) (<-chan models.LLMEvent, error) {
	model := req.Model
	if model == "" {
		model = p.defaultModel
	}

	contents, err := toGeminiContents(req)
	if err != nil {
		return nil, NewProviderError(p.Name(), model, err)
	}

	config := &genai.GenerateContentConfig{}
	if req.SystemPrompt != "" {
		config.SystemInstruction = &genai.Content{Parts: []*genai.Part{{Text: req.SystemPrompt}}}
	}
	if req.MaxTokens > 0 {
		config.MaxOutputTokens = int32(req.MaxTokens)
	}
	if req.Temperature > 0 {
		temp := float32(req.Temperature)
		config.Temperature = &temp
	}
	if len(req.Tools) > 0 {
		config.Tools = toolconv.ToGeminiTools(req.Tools)
	}

	events := make(chan models.LLMEvent, 16)
	go p.stream(ctx, model, contents, config, events)
	return events, nil
}

func (p *GeminiProvider) stream(ctx context.Context, model string, contents []*genai.Content, config *genai.GenerateContentConfig, events chan<- models.LLMEvent) {
	defer close(events)

	retryErr := p.Retry(ctx, IsRetryable, func() error {
		streamIter := p.client.Models.GenerateContentStream(ctx, model, contents, config)
		for resp, err := range streamIter {
			select {
			case <-ctx.Done():
				return ctx.Err()
			default:
			}
			if err != nil {
				return err
			}
			if resp == nil {
				continue
			}
			for _, candidate := range resp.Candidates {
				if candidate == nil || candidate.Content == nil {
					continue
				}
				for _, part := range candidate.Content.Parts {
					if part == nil {
						continue
					}
					if part.Text != "" {
						events <- models.LLMEvent{Kind: models.LLMEventTextDelta, Text: part.Text}
					}
					if part.FunctionCall != nil {
						argsJSON, marshalErr := json.Marshal(part.FunctionCall.Args)
						if marshalErr != nil {
							argsJSON = []byte("{}")
						}
						tc := &models.ToolCall{
							ID:   "call_" + part.FunctionCall.Name,
							Name: part.FunctionCall.Name,
							Args: argsJSON,
						}
						// Gemini 3-class models gate multi-turn function calling
						// on an opaque thoughtSignature attached to the call;
						// carry it through toolCallMeta so the next round can
						// echo it back on the paired functionCall part (spec
						// §9's "Gemini thoughtSignature").
						if len(part.ThoughtSignature) > 0 {
							tc.Meta = map[string]any{
								"thoughtSignature": base64.StdEncoding.EncodeToString(part.ThoughtSignature),
							}
						}
						events <- models.LLMEvent{Kind: models.LLMEventToolCall, ToolCall: tc}
					}
				}
			}
		}
		return nil
	})

	if retryErr != nil {
		events <- models.LLMEvent{Kind: models.LLMEventError, Message: retryErr.Error()}
		return
	}
	events <- models.LLMEvent{Kind: models.LLMEventDone}
}

// toGeminiContents renders the unified Request into Gemini's Content array:
// system prompt is carried separately via SystemInstruction, history becomes
// user/model turns, and spliced ToolResultRecords become functionResponse
// parts attached to a trailing user turn.
func toGeminiContents(req agent.Request) ([]*genai.Content, error) {
	var result []*genai.Content

	for _, m := range req.Messages {
		if m.Role == models.RoleSystem {
			continue
		}
		content := &genai.Content{}
		switch m.Role {
		case models.RoleUser, models.RoleTool:
			content.Role = genai.RoleUser
		case models.RoleAssistant:
			content.Role = genai.RoleModel
		default:
			content.Role = genai.RoleUser
		}
		if text := m.Text(); text != "" {
			content.Parts = append(content.Parts, &genai.Part{Text: text})
		}
		for _, block := range m.Content {
			if block.Kind == models.BlockImage {
				data, err := base64.StdEncoding.DecodeString(block.Data)
				if err != nil {
					continue
				}
				content.Parts = append(content.Parts, &genai.Part{
					InlineData: &genai.Blob{MIMEType: block.MimeType, Data: data},
				})
			}
		}
		if len(content.Parts) > 0 {
			result = append(result, content)
		}
	}

	if len(req.ToolResults) > 0 {
		// Gemini requires a tool-call round to be paired: a model-role
		// functionCall part followed by a user-role functionResponse part
		// with the same name (spec §4.1's Gemini variant). Reconstruct the
		// functionCall from what the Orchestrator spliced back into the
		// ToolResultRecord, echoing the thoughtSignature it carried from the
		// original call when one survived the round-trip; otherwise fall
		// back to a natural-language text pair (spec §9).
		modelTurn := &genai.Content{Role: genai.RoleModel}
		responseTurn := &genai.Content{Role: genai.RoleUser}

		for _, tr := range req.ToolResults {
			sig, _ := tr.ToolCallMeta["thoughtSignature"].(string)
			if sig == "" {
				modelTurn.Parts = append(modelTurn.Parts, &genai.Part{
					Text: fmt.Sprintf("Called %s(%s)", tr.ToolName, string(tr.ToolArgs)),
				})
				responseTurn.Parts = append(responseTurn.Parts, &genai.Part{
					Text: fmt.Sprintf("Result of %s: %s", tr.ToolName, tr.Content),
				})
				continue
			}

			var args map[string]any
			_ = json.Unmarshal(tr.ToolArgs, &args)
			fcPart := &genai.Part{FunctionCall: &genai.FunctionCall{Name: tr.ToolName, Args: args}}
			if decoded, err := base64.StdEncoding.DecodeString(sig); err == nil {
				fcPart.ThoughtSignature = decoded
			}
			modelTurn.Parts = append(modelTurn.Parts, fcPart)

			var response map[string]any
			if err := json.Unmarshal([]byte(tr.Content), &response); err != nil {
				response = map[string]any{"result": tr.Content, "error": tr.IsError}
			}
			responseTurn.Parts = append(responseTurn.Parts, &genai.Part{
				FunctionResponse: &genai.FunctionResponse{
					Name:     tr.ToolName,
					Response: response,
				},
			})
		}

		if len(modelTurn.Parts) > 0 {
			result = append(result, modelTurn)
		}
		if len(responseTurn.Parts) > 0 {
			result = append(result, responseTurn)
		}
	}

	return result, nil
}
