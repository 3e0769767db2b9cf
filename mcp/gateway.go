// Package mcp implements the tool gateway: connections to one or more remote
// MCP tool servers, an aggregated tool catalog, and name-based call routing.
package mcp

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/rs/zerolog"
	"github.com/samber/lo"
)

// defaultDialTimeout bounds how long establishing a single server connection
// may take.
const defaultDialTimeout = 60 * time.Second

// ServerConfig describes one remote tool server. A server is reached either
// by URL (streamable HTTP with SSE fallback) or by spawning Command (stdio).
type ServerConfig struct {
	ID      string
	Name    string
	URL     string
	Command string
	Args    []string
	Env     []string
}

// ServerStatus reports the connection state of one configured server.
type ServerStatus struct {
	Connected bool
	Err       string
}

// DialFunc establishes a connection to one server, trying its transports in
// order. Replaceable for tests.
type DialFunc func(ctx context.Context, cfg ServerConfig, logger zerolog.Logger) (MCPClient, error)

// Gateway multiplexes tool calls across all connected servers. Tool names
// route to the owning server; the catalog is the merged listing of every
// connected server that advertises tools.
type Gateway struct {
	logger      zerolog.Logger
	servers     []ServerConfig
	dial        DialFunc
	dialTimeout time.Duration

	mu      sync.RWMutex
	clients map[string]MCPClient
	routes  map[string]string // tool name -> server id
	catalog []ToolDescriptor
	status  map[string]ServerStatus
	cancels map[string]context.CancelFunc
}

// GatewayOption configures a Gateway.
type GatewayOption func(*Gateway)

// WithDialer overrides the transport dialer.
func WithDialer(dial DialFunc) GatewayOption {
	return func(g *Gateway) { g.dial = dial }
}

// WithDialTimeout overrides the per-server connection timeout.
func WithDialTimeout(d time.Duration) GatewayOption {
	return func(g *Gateway) { g.dialTimeout = d }
}

// NewGateway creates a Gateway for the given server set. No connections are
// opened until Connect.
func NewGateway(logger zerolog.Logger, servers []ServerConfig, opts ...GatewayOption) *Gateway {
	g := &Gateway{
		logger:      logger.With().Str("component", "toolGateway").Logger(),
		servers:     servers,
		dial:        dialServer,
		dialTimeout: defaultDialTimeout,
		clients:     make(map[string]MCPClient),
		routes:      make(map[string]string),
		status:      make(map[string]ServerStatus),
		cancels:     make(map[string]context.CancelFunc),
	}
	for _, opt := range opts {
		opt(g)
	}
	return g
}

// Connect dials every configured server concurrently and independently.
// A failure connecting to one server never prevents others from succeeding;
// failures are recorded per server and reported via ConnectionStatus.
func (g *Gateway) Connect(ctx context.Context) {
	var wg sync.WaitGroup
	for _, cfg := range g.servers {
		wg.Add(1)
		go func(cfg ServerConfig) {
			defer wg.Done()
			g.connectOne(ctx, cfg)
		}(cfg)
	}
	wg.Wait()
}

func (g *Gateway) connectOne(ctx context.Context, cfg ServerConfig) {
	// SSE transports bind their event stream to the context passed to
	// Start, so the connection context must outlive Connect. It is only
	// cancelled by Disconnect; the dial budget is enforced by a timer,
	// and the caller's cancellation applies only while dialing.
	connCtx, cancel := context.WithCancel(context.WithoutCancel(ctx))
	timer := time.AfterFunc(g.dialTimeout, cancel)
	stop := context.AfterFunc(ctx, cancel)
	client, err := g.dial(connCtx, cfg, g.logger)
	timer.Stop()
	stop()
	if err != nil {
		cancel()
		g.logger.Warn().Err(err).Str("server_id", cfg.ID).Msg("Failed to connect to tool server")
		g.mu.Lock()
		g.status[cfg.ID] = ServerStatus{Connected: false, Err: err.Error()}
		g.mu.Unlock()
		return
	}

	// A connected server without the tools capability is a valid,
	// context-only peer; it just contributes nothing to the catalog.
	var tools []ToolDescriptor
	if client.SupportsTools() {
		tools, err = client.ListTools(connCtx)
		if err != nil {
			g.logger.Warn().Err(err).Str("server_id", cfg.ID).Msg("Failed to list tools")
			tools = nil
		}
	}

	g.mu.Lock()
	defer g.mu.Unlock()
	g.clients[cfg.ID] = client
	g.cancels[cfg.ID] = cancel
	g.status[cfg.ID] = ServerStatus{Connected: true}
	for _, tool := range tools {
		if owner, taken := g.routes[tool.Name]; taken {
			// First registration wins; later duplicates are dropped.
			g.logger.Warn().
				Str("tool", tool.Name).
				Str("owner", owner).
				Str("duplicate_server", cfg.ID).
				Msg("Tool name collision, keeping first registration")
			continue
		}
		tool.ServerID = cfg.ID
		g.routes[tool.Name] = cfg.ID
		g.catalog = append(g.catalog, tool)
	}
	g.logger.Info().
		Str("server_id", cfg.ID).
		Int("tool_count", len(tools)).
		Msg("Connected to tool server")
}

// dialServer is the default DialFunc: stdio for command servers, streamable
// HTTP with an SSE fallback for URL servers.
func dialServer(ctx context.Context, cfg ServerConfig, logger zerolog.Logger) (MCPClient, error) {
	if cfg.Command != "" {
		client, err := NewStdioMCPClient(logger, cfg.Command, cfg.Args, cfg.Env)
		if err != nil {
			return nil, err
		}
		if err := client.Start(ctx); err != nil {
			_ = client.Close()
			return nil, err
		}
		return client, nil
	}
	if cfg.URL == "" {
		return nil, fmt.Errorf("server %s has neither url nor command", cfg.ID)
	}

	client, primaryErr := startHTTP(ctx, logger, cfg.URL, TransportStreamableHTTP)
	if primaryErr == nil {
		return client, nil
	}
	logger.Warn().Err(primaryErr).Str("server_id", cfg.ID).Msg("Streamable HTTP failed, falling back to SSE")

	client, fallbackErr := startHTTP(ctx, logger, cfg.URL, TransportSSE)
	if fallbackErr == nil {
		return client, nil
	}
	return nil, fmt.Errorf("all transports failed: streamable-http: %v; sse: %w", primaryErr, fallbackErr)
}

func startHTTP(ctx context.Context, logger zerolog.Logger, baseURL string, transport HTTPTransport) (MCPClient, error) {
	client, err := NewHttpMCPClient(logger, baseURL, transport)
	if err != nil {
		return nil, err
	}
	if err := client.Start(ctx); err != nil {
		_ = client.Close()
		return nil, err
	}
	return client, nil
}

// ListAllTools returns the merged catalog across all connected servers.
func (g *Gateway) ListAllTools() []ToolDescriptor {
	g.mu.RLock()
	defer g.mu.RUnlock()
	return append([]ToolDescriptor(nil), g.catalog...)
}

// CallTool routes a tool call to the owning server and returns its raw
// result unmodified.
func (g *Gateway) CallTool(ctx context.Context, name string, args map[string]any) (map[string]any, error) {
	g.mu.RLock()
	serverID, known := g.routes[name]
	client := g.clients[serverID]
	g.mu.RUnlock()

	if !known {
		return nil, fmt.Errorf("unknown tool: %s", name)
	}
	if client == nil {
		return nil, fmt.Errorf("tool %s: server %s is not connected", name, serverID)
	}
	return client.InvokeTool(ctx, name, args)
}

// ConnectionStatus reports, per configured server, whether it is connected
// and the last recorded connection error if not.
func (g *Gateway) ConnectionStatus() map[string]ServerStatus {
	g.mu.RLock()
	defer g.mu.RUnlock()
	out := make(map[string]ServerStatus, len(g.servers))
	for _, cfg := range g.servers {
		if st, ok := g.status[cfg.ID]; ok {
			out[cfg.ID] = st
		} else {
			out[cfg.ID] = ServerStatus{Connected: false}
		}
	}
	return out
}

// ServerIDs returns the configured server ids.
func (g *Gateway) ServerIDs() []string {
	return lo.Map(g.servers, func(cfg ServerConfig, _ int) string { return cfg.ID })
}

// Disconnect closes all live connections independently and clears routing
// state. One connection failing to close never blocks the others.
func (g *Gateway) Disconnect() {
	g.mu.Lock()
	defer g.mu.Unlock()
	for id, client := range g.clients {
		if err := client.Close(); err != nil {
			g.logger.Warn().Err(err).Str("server_id", id).Msg("Failed to close tool server connection")
		}
		if cancel, ok := g.cancels[id]; ok {
			cancel()
		}
	}
	g.clients = make(map[string]MCPClient)
	g.routes = make(map[string]string)
	g.catalog = nil
	g.status = make(map[string]ServerStatus)
	g.cancels = make(map[string]context.CancelFunc)
}
