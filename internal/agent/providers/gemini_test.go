package providers

import (
	"encoding/base64"
	"testing"

	"google.golang.org/genai"

	"github.com/openvia/openvia/internal/agent"
	"github.com/openvia/openvia/pkg/models"
)

func TestNewGeminiProvider_RequiresAPIKey(t *testing.T) {
	if _, err := NewGeminiProvider(""); err == nil {
		t.Fatal("expected an error for an empty API key")
	}
}

func TestGeminiProvider_MaxContextTokens(t *testing.T) {
	p := &GeminiProvider{defaultModel: defaultGeminiModel}
	if got := p.MaxContextTokens("gemini-1.5-pro"); got != 2000000 {
		t.Fatalf("got %d, want 2000000", got)
	}
	if got := p.MaxContextTokens("some-unknown-model"); got != defaultGeminiContextTokens {
		t.Fatalf("got %d, want default %d", got, defaultGeminiContextTokens)
	}
}

func TestToGeminiContents_SkipsSystemMessages(t *testing.T) {
	req := agent.Request{
		Messages: []models.Message{
			models.NewTextMessage(models.RoleSystem, "ignored, carried via SystemInstruction"),
			models.NewTextMessage(models.RoleUser, "hello"),
		},
	}
	contents, err := toGeminiContents(req)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(contents) != 1 {
		t.Fatalf("got %d contents, want 1 (system message skipped)", len(contents))
	}
}

func TestToGeminiContents_ToolResultsWithThoughtSignatureArePaired(t *testing.T) {
	sig := base64.StdEncoding.EncodeToString([]byte("opaque-signature"))
	req := agent.Request{
		ToolResults: []models.ToolResultRecord{
			{
				ToolCallID:   "call_1",
				ToolName:     "read_file",
				ToolArgs:     []byte(`{"path":"a.txt"}`),
				ToolCallMeta: map[string]any{"thoughtSignature": sig},
				Content:      `{"ok":true}`,
			},
		},
	}
	contents, err := toGeminiContents(req)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(contents) != 2 {
		t.Fatalf("got %d contents, want 2 (paired model functionCall + user functionResponse)", len(contents))
	}

	modelTurn, responseTurn := contents[0], contents[1]
	if modelTurn.Role != genai.RoleModel {
		t.Fatalf("got role %q, want model", modelTurn.Role)
	}
	fc := modelTurn.Parts[0].FunctionCall
	if fc == nil || fc.Name != "read_file" {
		t.Fatalf("got model part %+v, want a read_file functionCall", modelTurn.Parts[0])
	}
	if string(modelTurn.Parts[0].ThoughtSignature) != "opaque-signature" {
		t.Fatalf("got thoughtSignature %q, want echoed original", modelTurn.Parts[0].ThoughtSignature)
	}

	fr := responseTurn.Parts[0].FunctionResponse
	if fr == nil || fr.Name != "read_file" {
		t.Fatalf("got response part %+v, want a read_file functionResponse", responseTurn.Parts[0])
	}
}

func TestToGeminiContents_ToolResultsWithoutThoughtSignatureFallBackToText(t *testing.T) {
	req := agent.Request{
		ToolResults: []models.ToolResultRecord{
			{ToolCallID: "call_1", ToolName: "read_file", Content: `{"ok":true}`},
		},
	}
	contents, err := toGeminiContents(req)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(contents) != 2 {
		t.Fatalf("got %d contents, want 2 (synthetic model/user text pair)", len(contents))
	}
	if contents[0].Parts[0].FunctionCall != nil || contents[0].Parts[0].Text == "" {
		t.Fatalf("got model part %+v, want plain text fallback", contents[0].Parts[0])
	}
	if contents[1].Parts[0].FunctionResponse != nil || contents[1].Parts[0].Text == "" {
		t.Fatalf("got response part %+v, want plain text fallback", contents[1].Parts[0])
	}
}
