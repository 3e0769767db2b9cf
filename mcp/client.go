package mcp

import (
	"context"

	"github.com/mark3labs/mcp-go/mcp"
)

// ToolDescriptor describes one tool advertised by a connected server.
// Names are globally unique across the gateway's routing table; ServerID
// identifies the owning server.
type ToolDescriptor struct {
	Name        string         `json:"name"`
	Description string         `json:"description"`
	InputSchema map[string]any `json:"inputSchema"`
	ServerID    string         `json:"serverId"`
}

// MCPClient is the transport-neutral interface for one MCP server connection.
type MCPClient interface {
	// Start initializes the connection and performs the MCP handshake.
	Start(ctx context.Context) error

	// SupportsTools reports whether the server advertised the tool-listing
	// capability during the handshake. Servers without it are valid,
	// context-only peers that contribute no tools.
	SupportsTools() bool

	// ListTools returns all tools available from the server.
	ListTools(ctx context.Context) ([]ToolDescriptor, error)

	// InvokeTool invokes a tool on the server with the given input.
	InvokeTool(ctx context.Context, name string, input map[string]any) (map[string]any, error)

	// Close closes the connection to the server.
	Close() error
}

// clientInfo identifies this host in the MCP handshake.
func clientInfo() mcp.Implementation {
	return mcp.Implementation{
		Name:    "confab",
		Version: "1.0.0",
	}
}

// toolDescriptors converts mcp-go tool listings into ToolDescriptors.
func toolDescriptors(tools []mcp.Tool) []ToolDescriptor {
	result := make([]ToolDescriptor, 0, len(tools))
	for _, tool := range tools {
		inputSchema := map[string]any{
			"type": tool.InputSchema.Type,
		}
		if tool.InputSchema.Properties != nil {
			inputSchema["properties"] = tool.InputSchema.Properties
		}
		if len(tool.InputSchema.Required) > 0 {
			inputSchema["required"] = tool.InputSchema.Required
		}
		if len(tool.InputSchema.Defs) > 0 {
			inputSchema["$defs"] = tool.InputSchema.Defs
		}
		result = append(result, ToolDescriptor{
			Name:        tool.Name,
			Description: tool.Description,
			InputSchema: inputSchema,
		})
	}
	return result
}

// callResultToMap flattens an mcp-go tool result into the loosely typed map
// the rest of the system passes around unmodified.
func callResultToMap(result *mcp.CallToolResult) map[string]any {
	output := make(map[string]any)
	if len(result.Content) > 0 {
		var texts []string
		for _, content := range result.Content {
			if textContent, ok := mcp.AsTextContent(content); ok {
				texts = append(texts, textContent.Text)
			} else if contentStr := mcp.GetTextFromContent(content); contentStr != "" {
				texts = append(texts, contentStr)
			}
		}
		if len(texts) == 1 {
			output["text"] = texts[0]
		} else if len(texts) > 1 {
			output["text"] = texts
		}
	}

	if result.IsError {
		output["error"] = true
		if len(result.Content) > 0 {
			if textContent, ok := mcp.AsTextContent(result.Content[0]); ok {
				output["error_message"] = textContent.Text
			}
		}
	}
	return output
}
