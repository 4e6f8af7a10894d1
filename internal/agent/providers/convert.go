package providers

import (
	"encoding/json"

	openai "github.com/sashabaranov/go-openai"

	"github.com/haasonsaas/axon/internal/agent"
)

// jsonUnmarshalLenient unmarshals data, treating empty input as an
// empty JSON object. Models occasionally emit tool calls with no
// arguments at all.
func jsonUnmarshalLenient(data json.RawMessage, v any) error {
	if len(data) == 0 {
		data = json.RawMessage(`{}`)
	}
	return json.Unmarshal(data, v)
}

// toOpenAITools converts tool schemas to the OpenAI function format,
// shared by the OpenAI and local adapters.
func toOpenAITools(tools []agent.ToolSchema) []openai.Tool {
	out := make([]openai.Tool, 0, len(tools))
	for _, tool := range tools {
		var params map[string]any
		if err := jsonUnmarshalLenient(tool.Parameters, &params); err != nil {
			params = map[string]any{"type": "object"}
		}
		out = append(out, openai.Tool{
			Type: openai.ToolTypeFunction,
			Function: &openai.FunctionDefinition{
				Name:        tool.Name,
				Description: tool.Description,
				Parameters:  params,
			},
		})
	}
	return out
}
