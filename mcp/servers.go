package mcp

import (
	"context"
	"fmt"
	"os"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/mark3labs/mcp-go/client"
	"github.com/mark3labs/mcp-go/client/transport"
	mcptypes "github.com/mark3labs/mcp-go/mcp"

	"otchat/config"
	"otchat/tools"
)

const protocolVersion = "2025-06-18"

// toolClient is the subset of *client.Client used here.
type toolClient interface {
	Initialize(ctx context.Context, req mcptypes.InitializeRequest) (*mcptypes.InitializeResult, error)
	ListTools(ctx context.Context, req mcptypes.ListToolsRequest) (*mcptypes.ListToolsResult, error)
	CallTool(ctx context.Context, req mcptypes.CallToolRequest) (*mcptypes.CallToolResult, error)
	Close() error
}

type dialFunc func(ctx context.Context, cfg config.MCPServerConfig) (toolClient, error)

// dial connects to a server over its configured transport.
func dial(ctx context.Context, cfg config.MCPServerConfig) (toolClient, error) {
	switch cfg.TransportType() {
	case config.MCPHTTP:
		return dialStreamableHTTP(ctx, cfg)
	case config.MCPSSE:
		return dialSSE(ctx, cfg)
	default:
		return dialStdio(ctx, cfg)
	}
}

func dialStdio(_ context.Context, cfg config.MCPServerConfig) (toolClient, error) {
	// Keep PATH and friends, then layer the configured variables on top
	env := append(os.Environ(), cfg.EnvList()...)
	c, err := client.NewStdioMCPClient(cfg.Command, env, cfg.Args...)
	if err != nil {
		return nil, err
	}
	return c, nil
}

func dialSSE(ctx context.Context, cfg config.MCPServerConfig) (toolClient, error) {
	var opts []transport.ClientOption
	if headers := cfg.ExpandedHeaders(); len(headers) > 0 {
		opts = append(opts, transport.WithHeaders(headers))
	}

	c, err := client.NewSSEMCPClient(cfg.URL, opts...)
	if err != nil {
		return nil, err
	}

	// SSE needs its stream open before Initialize
	if err := c.Start(ctx); err != nil {
		_ = c.Close()
		return nil, fmt.Errorf("failed to start SSE transport: %w", err)
	}

	if config.DebugLog != nil {
		config.DebugLog.Printf("[MCP] Started SSE transport for %s", cfg.ID)
	}
	return c, nil
}

func dialStreamableHTTP(ctx context.Context, cfg config.MCPServerConfig) (toolClient, error) {
	var opts []transport.StreamableHTTPCOption
	if headers := cfg.ExpandedHeaders(); len(headers) > 0 {
		opts = append(opts, transport.WithHTTPHeaders(headers))
	}

	c, err := client.NewStreamableHttpClient(cfg.URL, opts...)
	if err != nil {
		return nil, err
	}
	if err := c.Start(ctx); err != nil {
		_ = c.Close()
		return nil, fmt.Errorf("failed to start HTTP transport: %w", err)
	}

	if config.DebugLog != nil {
		config.DebugLog.Printf("[MCP] Started streamable HTTP transport for %s", cfg.ID)
	}
	return c, nil
}

type server struct {
	id     string
	client toolClient
	tools  []mcptypes.Tool
}

// Servers owns the running MCP server connections.
type Servers struct {
	mu      sync.Mutex
	servers map[string]*server
	dial    dialFunc
}

func NewServers() *Servers {
	return &Servers{
		servers: make(map[string]*server),
		dial:    dial,
	}
}

// Start launches a server, performs the MCP handshake and caches its tools.
func (s *Servers) Start(ctx context.Context, cfg config.MCPServerConfig) error {
	s.mu.Lock()
	if _, running := s.servers[cfg.ID]; running {
		s.mu.Unlock()
		return fmt.Errorf("mcp server %s already running", cfg.ID)
	}
	s.mu.Unlock()

	c, err := s.dial(ctx, cfg)
	if err != nil {
		return fmt.Errorf("failed to start mcp server %s: %w", cfg.ID, err)
	}

	initReq := mcptypes.InitializeRequest{
		Params: mcptypes.InitializeParams{
			ProtocolVersion: protocolVersion,
			Capabilities:    mcptypes.ClientCapabilities{},
			ClientInfo: mcptypes.Implementation{
				Name:    "otchat",
				Version: "1.0.0",
			},
		},
	}
	if _, err := c.Initialize(ctx, initReq); err != nil {
		_ = c.Close()
		return fmt.Errorf("failed to initialize mcp server %s: %w", cfg.ID, err)
	}

	res, err := c.ListTools(ctx, mcptypes.ListToolsRequest{})
	if err != nil {
		_ = c.Close()
		return fmt.Errorf("failed to list tools for %s: %w", cfg.ID, err)
	}

	s.mu.Lock()
	s.servers[cfg.ID] = &server{id: cfg.ID, client: c, tools: res.Tools}
	s.mu.Unlock()

	if config.DebugLog != nil {
		config.DebugLog.Printf("[MCP] Started server '%s' with %d tools", cfg.ID, len(res.Tools))
	}
	return nil
}

// StartAll starts every configured server. Servers that fail are reported
// and skipped.
func (s *Servers) StartAll(ctx context.Context, cfgs []config.MCPServerConfig) []error {
	var errs []error
	for _, cfg := range cfgs {
		if err := s.Start(ctx, cfg); err != nil {
			errs = append(errs, err)
		}
	}
	return errs
}

// ToolName is the registry name of a server tool. Dots are not allowed in
// OpenAI function names, so the server id is joined with an underscore.
func ToolName(serverID, tool string) string {
	return serverID + "_" + tool
}

// RegisterTools adds the tools of every running server to reg.
func (s *Servers) RegisterTools(reg *tools.Registry) error {
	s.mu.Lock()
	ids := make([]string, 0, len(s.servers))
	for id := range s.servers {
		ids = append(ids, id)
	}
	s.mu.Unlock()
	sort.Strings(ids)

	for _, id := range ids {
		s.mu.Lock()
		srv := s.servers[id]
		s.mu.Unlock()
		if srv == nil {
			continue
		}
		for _, t := range srv.tools {
			spec := t
			spec.Name = ToolName(srv.id, t.Name)
			if err := reg.Register(spec, s.caller(srv.id, t.Name)); err != nil {
				return err
			}
		}
	}
	return nil
}

func (s *Servers) caller(serverID, toolName string) tools.Func {
	return func(ctx context.Context, args map[string]any) (string, error) {
		s.mu.Lock()
		srv := s.servers[serverID]
		s.mu.Unlock()
		if srv == nil {
			return "", fmt.Errorf("mcp server %s not running", serverID)
		}

		res, err := srv.client.CallTool(ctx, mcptypes.CallToolRequest{
			Params: mcptypes.CallToolParams{
				Name:      toolName,
				Arguments: args,
			},
		})
		if err != nil {
			return "", err
		}
		text := ResultText(res)
		if res.IsError {
			return "", fmt.Errorf("%s", text)
		}
		return text, nil
	}
}

// ResultText flattens a tool result into plain text.
func ResultText(res *mcptypes.CallToolResult) string {
	if res == nil {
		return ""
	}
	var parts []string
	for _, c := range res.Content {
		switch v := c.(type) {
		case mcptypes.TextContent:
			parts = append(parts, v.Text)
		case *mcptypes.TextContent:
			parts = append(parts, v.Text)
		case mcptypes.ImageContent:
			parts = append(parts, fmt.Sprintf("[image %s]", v.MIMEType))
		case *mcptypes.ImageContent:
			parts = append(parts, fmt.Sprintf("[image %s]", v.MIMEType))
		}
	}
	return strings.Join(parts, "\n")
}

// Shutdown closes every server, giving each at most a second.
func (s *Servers) Shutdown(ctx context.Context) {
	s.mu.Lock()
	servers := s.servers
	s.servers = make(map[string]*server)
	s.mu.Unlock()

	for id, srv := range servers {
		closeCtx, cancel := context.WithTimeout(ctx, 1*time.Second)
		done := make(chan error, 1)
		go func() {
			done <- srv.client.Close()
		}()

		select {
		case err := <-done:
			if err != nil && config.DebugLog != nil {
				config.DebugLog.Printf("[MCP] Error closing server '%s': %v", id, err)
			}
		case <-closeCtx.Done():
			if config.DebugLog != nil {
				config.DebugLog.Printf("[MCP] Timed out closing server '%s'", id)
			}
		}
		cancel()
	}
}
