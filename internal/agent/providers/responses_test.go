package providers

import (
	"testing"

	"github.com/openvia/openvia/internal/agent"
	"github.com/openvia/openvia/pkg/models"
)

func TestResponsesProvider_Name(t *testing.T) {
	p := NewResponsesProvider("key", "")
	if p.Name() != "claude" {
		t.Fatalf("got %q, want claude", p.Name())
	}
}

func TestToResponsesBody_InstructionsCarrySystemPrompt(t *testing.T) {
	req := agent.Request{
		SystemPrompt: "be terse",
		Messages:     []models.Message{models.NewTextMessage(models.RoleUser, "hi")},
	}
	body := toResponsesBody(req)
	if body.Instructions != "be terse" {
		t.Fatalf("got instructions %q", body.Instructions)
	}
	if len(body.Input) != 1 || body.Input[0].Content[0].Type != "input_text" {
		t.Fatalf("got input %+v", body.Input)
	}
}

func TestToResponsesBody_ToolResultsBecomeFunctionCallOutput(t *testing.T) {
	req := agent.Request{
		ToolResults: []models.ToolResultRecord{
			{ToolCallID: "call_1", Content: `{"ok":true}`},
		},
	}
	body := toResponsesBody(req)
	if len(body.Input) != 1 || body.Input[0].Type != "function_call_output" || body.Input[0].CallID != "call_1" {
		t.Fatalf("got input %+v", body.Input)
	}
}

func TestHandleResponsesEvent_TextDelta(t *testing.T) {
	p := &ResponsesProvider{}
	events := make(chan models.LLMEvent, 4)
	p.handleResponsesEvent("response.output_text.delta", `{"delta":"hi"}`, map[string]itemCacheEntry{}, map[string]bool{}, events)
	close(events)
	ev := <-events
	if ev.Kind != models.LLMEventTextDelta || ev.Text != "hi" {
		t.Fatalf("got %+v", ev)
	}
}

func TestHandleResponsesEvent_FunctionCallArgumentsResolvesViaCache(t *testing.T) {
	p := &ResponsesProvider{}
	events := make(chan models.LLMEvent, 4)
	cache := map[string]itemCacheEntry{"item_1": {callID: "call_1", name: "read_file"}}
	p.handleResponsesEvent("response.function_call_arguments.done", `{"item_id":"item_1","arguments":"{\"path\":\"a.txt\"}"}`, cache, map[string]bool{}, events)
	close(events)
	ev := <-events
	if ev.Kind != models.LLMEventToolCall || ev.ToolCall.Name != "read_file" || ev.ToolCall.ID != "call_1" {
		t.Fatalf("got %+v", ev)
	}
}

func TestHandleResponsesEvent_DedupByCallID(t *testing.T) {
	p := &ResponsesProvider{}
	events := make(chan models.LLMEvent, 4)
	cache := map[string]itemCacheEntry{"item_1": {callID: "call_1", name: "read_file"}}
	emitted := map[string]bool{}
	p.handleResponsesEvent("response.function_call_arguments.done", `{"item_id":"item_1","arguments":"{}"}`, cache, emitted, events)
	p.handleResponsesEvent("response.output_item.done", `{"item":{"id":"item_1","type":"function_call","call_id":"call_1","name":"read_file","arguments":"{}"}}`, cache, emitted, events)
	close(events)
	count := 0
	for range events {
		count++
	}
	if count != 1 {
		t.Fatalf("got %d tool_call events, want 1 (deduped by call_id)", count)
	}
}
