package ollama

import (
	"encoding/json"

	"github.com/ollama/ollama/api"

	"github.com/cmclachlan/confab/llm"
)

// ToOllamaMessages converts canonical history to Ollama chat messages.
// Model turns become assistant messages carrying content and tool calls;
// function responses become tool-role messages so the model can match them
// to its calls positionally (Ollama carries no call ids on the wire).
func ToOllamaMessages(msgs []llm.Message) []api.Message {
	result := make([]api.Message, 0, len(msgs))
	for _, msg := range msgs {
		result = append(result, toOllamaMessage(msg)...)
	}
	return result
}

func toOllamaMessage(msg llm.Message) []api.Message {
	var content string
	var toolCalls []api.ToolCall
	var toolResponses []api.Message

	for _, part := range msg.Parts {
		switch part.Type {
		case llm.PartTypeText:
			if content != "" {
				content += "\n"
			}
			content += part.Text
		case llm.PartTypeFunctionCall:
			if part.FunctionCall == nil {
				continue
			}
			args := make(api.ToolCallFunctionArguments)
			for k, v := range part.FunctionCall.Args {
				args[k] = v
			}
			toolCalls = append(toolCalls, api.ToolCall{
				Function: api.ToolCallFunction{
					Name:      part.FunctionCall.Name,
					Arguments: args,
				},
			})
		case llm.PartTypeFunctionResponse:
			if part.FunctionResponse == nil {
				continue
			}
			payload, err := json.Marshal(part.FunctionResponse.Response)
			if err != nil {
				payload = []byte("{}")
			}
			toolResponses = append(toolResponses, api.Message{
				Role:    "tool",
				Content: string(payload),
			})
		}
	}

	if len(toolResponses) > 0 && content == "" && len(toolCalls) == 0 {
		return toolResponses
	}

	role := "user"
	if msg.Role == llm.RoleModel {
		role = "assistant"
	}
	out := []api.Message{{
		Role:      role,
		Content:   content,
		ToolCalls: toolCalls,
	}}
	return append(out, toolResponses...)
}

// ToOllamaTools converts llm.ToolSpecs to Ollama tool definitions.
func ToOllamaTools(specs []llm.ToolSpec) []api.Tool {
	result := make([]api.Tool, 0, len(specs))
	for i := range specs {
		result = append(result, ToOllamaTool(&specs[i]))
	}
	return result
}

// ToOllamaTool converts a single llm.ToolSpec to an Ollama Tool.
// Ollama's parameter schema is a typed struct rather than a free-form map,
// so nested schema detail beyond the property type is flattened.
func ToOllamaTool(spec *llm.ToolSpec) api.Tool {
	properties := make(map[string]api.ToolProperty)
	for k, v := range spec.Schema.Properties {
		prop := api.ToolProperty{Type: []string{"string"}}
		if propMap, ok := v.(map[string]any); ok {
			if propType, ok := propMap["type"].(string); ok && propType != "" {
				prop.Type = []string{propType}
			}
			if desc, ok := propMap["description"].(string); ok {
				prop.Description = desc
			}
		}
		properties[k] = prop
	}

	return api.Tool{
		Type: "function",
		Function: api.ToolFunction{
			Name:        spec.Name,
			Description: spec.Description,
			Parameters: api.ToolFunctionParameters{
				Type:       spec.Schema.Type,
				Properties: properties,
				Required:   spec.Schema.Required,
			},
		},
	}
}
