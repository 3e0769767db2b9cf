package openai

import (
	"encoding/json"

	openai "github.com/sashabaranov/go-openai"

	"github.com/cmclachlan/confab/llm"
)

// ToChatMessages converts canonical history to OpenAI chat messages.
// A canonical model turn becomes one assistant message carrying text content
// and tool calls. Function responses expand into one tool-role message per
// response, addressed by tool call id; they are never merged into a generic
// user turn.
func ToChatMessages(msgs []llm.Message) []openai.ChatCompletionMessage {
	result := make([]openai.ChatCompletionMessage, 0, len(msgs))
	for _, msg := range msgs {
		result = append(result, toChatMessage(msg)...)
	}
	return result
}

func toChatMessage(msg llm.Message) []openai.ChatCompletionMessage {
	var content string
	var toolCalls []openai.ToolCall
	var toolResponses []openai.ChatCompletionMessage

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
			argsJSON, err := json.Marshal(part.FunctionCall.Args)
			if err != nil {
				argsJSON = []byte("{}")
			}
			toolCalls = append(toolCalls, openai.ToolCall{
				ID:   part.FunctionCall.ID,
				Type: openai.ToolTypeFunction,
				Function: openai.FunctionCall{
					Name:      part.FunctionCall.Name,
					Arguments: string(argsJSON),
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
			toolResponses = append(toolResponses, openai.ChatCompletionMessage{
				Role:       openai.ChatMessageRoleTool,
				Content:    string(payload),
				ToolCallID: part.FunctionResponse.CallID,
			})
		}
	}

	// A canonical message holding only function responses produces only the
	// tool-role messages.
	if len(toolResponses) > 0 && content == "" && len(toolCalls) == 0 {
		return toolResponses
	}

	role := openai.ChatMessageRoleUser
	if msg.Role == llm.RoleModel {
		role = openai.ChatMessageRoleAssistant
	}
	chatMsg := openai.ChatCompletionMessage{Role: role, Content: content}
	if len(toolCalls) > 0 {
		chatMsg.ToolCalls = toolCalls
	}

	out := []openai.ChatCompletionMessage{chatMsg}
	return append(out, toolResponses...)
}

// ToTools converts llm.ToolSpecs to OpenAI function-tool definitions.
func ToTools(specs []llm.ToolSpec) []openai.Tool {
	result := make([]openai.Tool, 0, len(specs))
	for i := range specs {
		result = append(result, ToTool(&specs[i]))
	}
	return result
}

// ToTool converts a single llm.ToolSpec to an OpenAI Tool.
func ToTool(spec *llm.ToolSpec) openai.Tool {
	properties := make(map[string]any)
	for k, v := range spec.Schema.Properties {
		properties[k] = v
	}

	parameters := map[string]any{
		"type":       spec.Schema.Type,
		"properties": properties,
	}
	if len(spec.Schema.Required) > 0 {
		parameters["required"] = spec.Schema.Required
	}
	for k, v := range spec.Schema.ExtraFields {
		parameters[k] = v
	}

	return openai.Tool{
		Type: openai.ToolTypeFunction,
		Function: &openai.FunctionDefinition{
			Name:        spec.Name,
			Description: spec.Description,
			Parameters:  parameters,
		},
	}
}
