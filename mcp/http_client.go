package mcp

import (
	"context"
	"fmt"
	"net/url"

	"github.com/mark3labs/mcp-go/client"
	"github.com/mark3labs/mcp-go/mcp"
	"github.com/rs/zerolog"
)

// HTTPTransport selects the wire transport for a remote HTTP server.
type HTTPTransport string

const (
	TransportStreamableHTTP HTTPTransport = "streamable-http"
	TransportSSE            HTTPTransport = "sse"
)

// HttpMCPClient implements MCPClient over HTTP, using either the streamable
// HTTP transport or the legacy SSE transport.
type HttpMCPClient struct {
	client        *client.Client
	baseURL       string
	transport     HTTPTransport
	supportsTools bool
	logger        zerolog.Logger
}

// NewHttpMCPClient creates an HTTP MCP client for the given URL and transport.
func NewHttpMCPClient(logger zerolog.Logger, baseURL string, transport HTTPTransport) (*HttpMCPClient, error) {
	if baseURL == "" {
		return nil, fmt.Errorf("baseURL is required for HTTP MCP client")
	}
	if _, err := url.Parse(baseURL); err != nil {
		return nil, fmt.Errorf("invalid baseURL: %w", err)
	}

	logger = logger.With().
		Str("component", "httpMCPClient").
		Str("transport", string(transport)).
		Logger()

	var mcpClient *client.Client
	var err error
	switch transport {
	case TransportSSE:
		mcpClient, err = client.NewSSEMCPClient(baseURL)
	default:
		mcpClient, err = client.NewStreamableHttpClient(baseURL)
	}
	if err != nil {
		logger.Error().Err(err).Str("base_url", baseURL).Msg("Failed to create HTTP MCP client")
		return nil, fmt.Errorf("failed to create HTTP MCP client: %w", err)
	}

	return &HttpMCPClient{
		client:    mcpClient,
		baseURL:   baseURL,
		transport: transport,
		logger:    logger,
	}, nil
}

// Start opens the transport and performs the MCP handshake.
func (c *HttpMCPClient) Start(ctx context.Context) error {
	if err := c.client.Start(ctx); err != nil {
		c.logger.Warn().Err(err).Str("base_url", c.baseURL).Msg("Transport start failed")
		return fmt.Errorf("failed to start HTTP MCP client: %w", err)
	}

	initReq := mcp.InitializeRequest{
		Params: mcp.InitializeParams{
			ProtocolVersion: mcp.LATEST_PROTOCOL_VERSION,
			Capabilities:    mcp.ClientCapabilities{},
			ClientInfo:      clientInfo(),
		},
	}
	initResult, err := c.client.Initialize(ctx, initReq)
	if err != nil {
		c.logger.Warn().Err(err).Str("base_url", c.baseURL).Msg("Initialize failed")
		return fmt.Errorf("failed to initialize HTTP MCP client: %w", err)
	}
	c.supportsTools = initResult.Capabilities.Tools != nil

	c.logger.Info().
		Str("base_url", c.baseURL).
		Bool("supports_tools", c.supportsTools).
		Msg("HTTP MCP client started")
	return nil
}

// SupportsTools reports the tools capability from the handshake.
func (c *HttpMCPClient) SupportsTools() bool {
	return c.supportsTools
}

// ListTools returns all tools available from the MCP server.
func (c *HttpMCPClient) ListTools(ctx context.Context) ([]ToolDescriptor, error) {
	result, err := c.client.ListTools(ctx, mcp.ListToolsRequest{})
	if err != nil {
		return nil, fmt.Errorf("failed to list tools: %w", err)
	}
	c.logger.Debug().
		Str("base_url", c.baseURL).
		Int("tool_count", len(result.Tools)).
		Msg("Listed tools")
	return toolDescriptors(result.Tools), nil
}

// InvokeTool invokes a tool on the MCP server.
func (c *HttpMCPClient) InvokeTool(ctx context.Context, name string, input map[string]any) (map[string]any, error) {
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

// Close closes the connection to the MCP server.
func (c *HttpMCPClient) Close() error {
	if c.client != nil {
		return c.client.Close()
	}
	return nil
}
