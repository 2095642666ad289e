package tools

import (
	"context"
	"encoding/json"
	"strings"

	"github.com/mark3labs/mcp-go/client"
	"github.com/mark3labs/mcp-go/mcp"
	"github.com/samber/oops"
)

type mcpToolAdapter struct {
	client client.MCPClient
	tool   mcp.Tool
	name   string
}

func (m *mcpToolAdapter) Name() string {
	return m.name
}

func (m *mcpToolAdapter) Description() string {
	return m.tool.Description
}

func (m *mcpToolAdapter) Parameters() map[string]any {
	properties := m.tool.InputSchema.Properties
	if properties == nil {
		properties = map[string]any{}
	}
	return objectSchema(properties, m.tool.InputSchema.Required...)
}

func (m *mcpToolAdapter) Call(ctx context.Context, input string) (string, error) {
	callRequest := mcp.CallToolRequest{
		Request: mcp.Request{
			Method: "tools/call",
		},
	}
	callRequest.Params.Name = m.tool.Name

	args := map[string]any{}
	if strings.TrimSpace(input) != "" {
		if err := json.Unmarshal([]byte(input), &args); err != nil {
			return "", oops.Errorf("arguments must be a JSON object: %w", err)
		}
	}
	callRequest.Params.Arguments = args

	response, err := m.client.CallTool(ctx, callRequest)
	if err != nil {
		return "", oops.Errorf("MCP tool call failed: %w", err)
	}

	var result strings.Builder
	for _, content := range response.Content {
		if textContent, ok := content.(mcp.TextContent); ok {
			result.WriteString(textContent.Text)
			result.WriteString("\n")
		}
	}
	text := strings.TrimSpace(result.String())

	if response.IsError {
		return "", oops.Errorf("%s", text)
	}

	return text, nil
}
