package anthropic

import (
	"encoding/json"

	anthropic "github.com/anthropics/anthropic-sdk-go"
	"github.com/samber/lo"

	"github.com/cmclachlan/confab/llm"
)

// ToMessageParam converts a canonical llm.Message to an Anthropic MessageParam.
// Canonical model turns become assistant messages; function responses (which
// travel in role-user messages) become tool_result blocks addressed by call id.
func ToMessageParam(msg llm.Message) anthropic.MessageParam {
	contentBlocks := make([]anthropic.ContentBlockParamUnion, 0, len(msg.Parts))
	for _, part := range msg.Parts {
		switch part.Type {
		case llm.PartTypeText:
			contentBlocks = append(contentBlocks, anthropic.NewTextBlock(part.Text))
		case llm.PartTypeFunctionCall:
			if part.FunctionCall != nil {
				contentBlocks = append(contentBlocks, anthropic.NewToolUseBlock(
					part.FunctionCall.ID,
					part.FunctionCall.Args,
					part.FunctionCall.Name,
				))
			}
		case llm.PartTypeFunctionResponse:
			if part.FunctionResponse != nil {
				payload, err := json.Marshal(part.FunctionResponse.Response)
				if err != nil {
					payload = []byte("{}")
				}
				_, isError := part.FunctionResponse.Response["error"]
				contentBlocks = append(contentBlocks, anthropic.NewToolResultBlock(
					part.FunctionResponse.CallID,
					string(payload),
					isError,
				))
			}
		}
	}

	if msg.Role == llm.RoleModel {
		return anthropic.NewAssistantMessage(contentBlocks...)
	}
	return anthropic.NewUserMessage(contentBlocks...)
}

// ToMessageParams converts a canonical history to Anthropic MessageParams.
func ToMessageParams(msgs []llm.Message) []anthropic.MessageParam {
	return lo.Map(msgs, func(msg llm.Message, _ int) anthropic.MessageParam {
		return ToMessageParam(msg)
	})
}

// ToToolUnionParam converts an llm.ToolSpec to an Anthropic ToolUnionParam.
func ToToolUnionParam(spec *llm.ToolSpec) anthropic.ToolUnionParam {
	toolParam := anthropic.ToolParam{
		Name:        spec.Name,
		Description: anthropic.String(spec.Description),
		InputSchema: anthropic.ToolInputSchemaParam{
			Type:        "object",
			Properties:  spec.Schema.Properties,
			Required:    spec.Schema.Required,
			ExtraFields: spec.Schema.ExtraFields,
		},
	}
	return anthropic.ToolUnionParam{OfTool: &toolParam}
}

// ToToolUnionParams converts a slice of llm.ToolSpecs to Anthropic ToolUnionParams.
func ToToolUnionParams(specs []llm.ToolSpec) []anthropic.ToolUnionParam {
	return lo.Map(specs, func(spec llm.ToolSpec, _ int) anthropic.ToolUnionParam {
		return ToToolUnionParam(&spec)
	})
}
