package tools

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"barberbot/app/config"

	"github.com/mark3labs/mcp-go/client"
	"github.com/mark3labs/mcp-go/client/transport"
	"github.com/mark3labs/mcp-go/mcp"
	"github.com/samber/oops"
)

const mcpInitTimeout = time.Minute

type mcpClientWrapper struct {
	client client.MCPClient
	tools  []Tool
	name   string
}

func createMCPClient(ctx context.Context, server config.MCPServer) (*client.Client, error) {
	if server.URL != "" {
		mcpClient, err := client.NewStreamableHttpClient(server.URL, transport.WithHTTPHeaders(server.Headers))
		if err != nil {
			return nil, err
		}
		if err = mcpClient.Start(ctx); err != nil {
			return nil, err
		}
		return mcpClient, nil
	}

	return client.NewStdioMCPClient(server.Command, server.Env, server.Args...)
}

// connectMCP performs the MCP handshake and adapts every advertised tool.
func connectMCP(ctx context.Context, name string, mcpClient client.MCPClient) (*mcpClientWrapper, error) {
	initRequest := mcp.InitializeRequest{}
	initRequest.Params.ProtocolVersion = mcp.LATEST_PROTOCOL_VERSION
	initRequest.Params.ClientInfo = mcp.Implementation{
		Name:    "barberbot",
		Version: "1.0.0",
	}

	if _, err := mcpClient.Initialize(ctx, initRequest); err != nil {
		return nil, fmt.Errorf("failed to initialize MCP client %s: %w", name, err)
	}

	toolsResponse, err := mcpClient.ListTools(ctx, mcp.ListToolsRequest{})
	if err != nil {
		return nil, fmt.Errorf("failed to list tools from %s: %w", name, err)
	}

	adapted := make([]Tool, 0, len(toolsResponse.Tools))
	for _, mcpTool := range toolsResponse.Tools {
		adapted = append(adapted, &mcpToolAdapter{
			client: mcpClient,
			tool:   mcpTool,
			name:   fmt.Sprintf("%s_%s", name, mcpTool.Name),
		})
	}

	return &mcpClientWrapper{
		client: mcpClient,
		tools:  adapted,
		name:   name,
	}, nil
}

// initializeMCPClients connects every configured server. A server that cannot
// be reached is logged and skipped.
func (s *Service) initializeMCPClients(ctx context.Context, servers []config.MCPServer) {
	for _, server := range servers {
		if err := s.addMCPServer(ctx, server); err != nil {
			slog.Error("MCP server unavailable, its tools are disabled",
				"server", server.Name,
				"error", err,
			)
		}
	}
}

func (s *Service) addMCPServer(ctx context.Context, server config.MCPServer) error {
	ctx, cancel := context.WithTimeout(ctx, mcpInitTimeout)
	defer cancel()

	mcpClient, err := createMCPClient(ctx, server)
	if err != nil {
		return oops.In("tools").With("server", server.Name).Wrapf(err, "create MCP client")
	}

	wrapper, err := connectMCP(ctx, server.Name, mcpClient)
	if err != nil {
		_ = mcpClient.Close()
		return oops.In("tools").With("server", server.Name).Wrap(err)
	}

	s.addClient(wrapper)

	return nil
}

func (s *Service) addClient(wrapper *mcpClientWrapper) {
	s.mcpClients = append(s.mcpClients, wrapper)
	for _, t := range wrapper.tools {
		s.Register(t)
	}

	slog.Info("Connected MCP server",
		"server", wrapper.name,
		"tools", len(wrapper.tools),
	)
}
