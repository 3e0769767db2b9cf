package mcp

import (
	"context"
	"fmt"
	"strings"

	"github.com/mark3labs/mcp-go/client"
	"github.com/mark3labs/mcp-go/mcp"
	"github.com/rs/zerolog"
)

// StdioMCPClient implements MCPClient over a spawned subprocess.
type StdioMCPClient struct {
	client        *client.Client
	command       string
	args          []string
	env           []string
	supportsTools bool
	logger        zerolog.Logger
}

// NewStdioMCPClient creates a stdio MCP client for the given command line.
// A command string containing spaces is split into command and leading args.
func NewStdioMCPClient(logger zerolog.Logger, command string, args, env []string) (*StdioMCPClient, error) {
	if command == "" {
		return nil, fmt.Errorf("command is required for stdio MCP client")
	}

	logger = logger.With().Str("component", "stdioMCPClient").Logger()

	parts := strings.Fields(command)
	cmd := parts[0]
	cmdArgs := make([]string, 0, len(parts)-1+len(args))
	cmdArgs = append(cmdArgs, parts[1:]...)
	cmdArgs = append(cmdArgs, args...)

	mcpClient, err := client.NewStdioMCPClient(cmd, env, cmdArgs...)
	if err != nil {
		logger.Error().Err(err).Str("command", cmd).Msg("Failed to create stdio MCP client")
		return nil, fmt.Errorf("failed to create stdio MCP client: %w", err)
	}

	return &StdioMCPClient{
		client:  mcpClient,
		command: cmd,
		args:    cmdArgs,
		env:     env,
		logger:  logger,
	}, nil
}

// Start performs the MCP handshake with the spawned server.
func (c *StdioMCPClient) Start(ctx context.Context) error {
	initReq := mcp.InitializeRequest{
		Params: mcp.InitializeParams{
			ProtocolVersion: mcp.LATEST_PROTOCOL_VERSION,
			Capabilities:    mcp.ClientCapabilities{},
			ClientInfo:      clientInfo(),
		},
	}

	initResult, err := c.client.Initialize(ctx, initReq)
	if err != nil {
		c.logger.Error().Err(err).Str("command", c.command).Msg("Initialize failed")
		return fmt.Errorf("failed to initialize MCP client: %w", err)
	}
	c.supportsTools = initResult.Capabilities.Tools != nil

	if err := c.client.Start(ctx); err != nil {
		c.logger.Error().Err(err).Str("command", c.command).Msg("Start failed")
		return fmt.Errorf("failed to start MCP client: %w", err)
	}

	c.logger.Info().
		Str("command", c.command).
		Bool("supports_tools", c.supportsTools).
		Msg("Stdio MCP client started")
	return nil
}

// SupportsTools reports the tools capability from the handshake.
func (c *StdioMCPClient) SupportsTools() bool {
	return c.supportsTools
}

// ListTools returns all tools available from the MCP server.
func (c *StdioMCPClient) ListTools(ctx context.Context) ([]ToolDescriptor, error) {
	result, err := c.client.ListTools(ctx, mcp.ListToolsRequest{})
	if err != nil {
		return nil, fmt.Errorf("failed to list tools: %w", err)
	}
	c.logger.Debug().
		Str("command", c.command).
		Int("tool_count", len(result.Tools)).
		Msg("Listed tools")
	return toolDescriptors(result.Tools), nil
}

// InvokeTool invokes a tool on the MCP server.
func (c *StdioMCPClient) InvokeTool(ctx context.Context, name string, input map[string]any) (map[string]any, error) {
	result, err := c.client.CallTool(ctx, mcp.CallToolRequest{
		Params: mcp.CallToolParams{
			Name:      name,
			Arguments: input,
		},
	})
	if err != nil {
		return nil, fmt.Errorf("failed to invoke tool %s: %w", name, err)
	}
	return callResultToMap(result), nil
}

// Close closes the connection and terminates the subprocess.
func (c *StdioMCPClient) Close() error {
	if c.client != nil {
		return c.client.Close()
	}
	return nil
}
