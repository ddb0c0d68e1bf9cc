package inbox_tools

import (
	"encoding/json"
	"fmt"

	"github.com/mark3labs/mcp-go/mcp"
	mcpserver "github.com/mark3labs/mcp-go/server"

	"github.com/teemow/inboxmerge/internal/server"
)

// RegisterInboxTools registers all inbox tools with the MCP server.
func RegisterInboxTools(s *mcpserver.MCPServer, sc *server.ServerContext) error {
	if err := RegisterAccountTools(s, sc); err != nil {
		return fmt.Errorf("failed to register account tools: %w", err)
	}
	if err := RegisterFeedTools(s, sc); err != nil {
		return fmt.Errorf("failed to register feed tools: %w", err)
	}
	if err := RegisterSendTools(s, sc); err != nil {
		return fmt.Errorf("failed to register send tools: %w", err)
	}
	return nil
}

func jsonResult(v any) (*mcp.CallToolResult, error) {
	data, err := json.MarshalIndent(v, "", "  ")
	if err != nil {
		return mcp.NewToolResultError(fmt.Sprintf("Failed to encode result: %v", err)), nil
	}
	return mcp.NewToolResultText(string(data)), nil
}
