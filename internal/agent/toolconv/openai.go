// Package toolconv projects the unified models.ToolSchema into each wire
// provider's native tool-declaration shape.
package toolconv

import (
	"encoding/json"

	"github.com/openvia/openvia/pkg/models"
	openai "github.com/sashabaranov/go-openai"
)

// ToOpenAITools converts registry tool schemas to OpenAI function
// declarations, used by both the chat-completions and Responses-API
// adapters (the latter flattens them further into its own input-item shape).
func ToOpenAITools(tools []models.ToolSchema) []openai.Tool {
	result := make([]openai.Tool, len(tools))
	for i, tool := range tools {
		var schemaMap map[string]any
		if err := json.Unmarshal(tool.InputSchema, &schemaMap); err != nil {
			schemaMap = map[string]any{
				"type":       "object",
				"properties": map[string]any{},
			}
		}

		result[i] = openai.Tool{
			Type: openai.ToolTypeFunction,
			Function: &openai.FunctionDefinition{
				Name:        tool.Name,
				Description: tool.Description,
				Parameters:  schemaMap,
			},
		}
	}
	return result
}
