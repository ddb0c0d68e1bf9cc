package cmd

import (
	"fmt"

	"github.com/spf13/cobra"

	mcpserver "github.com/mark3labs/mcp-go/server"

	"github.com/teemow/inboxmerge/internal/resources"
	"github.com/teemow/inboxmerge/internal/server"
	"github.com/teemow/inboxmerge/internal/tools/inbox_tools"
)

func newMCPCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "mcp",
		Short: "Serve the inbox tools over MCP on stdio",
		Long: `Start a Model Context Protocol server on standard input/output.

AI assistants can link accounts, refresh and read the merged feed, and send
the daily message through the inbox_* tools. Logs go to stderr.`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			a, err := newApp(cmd.Context(), false)
			if err != nil {
				return err
			}
			defer a.Close()

			mcpSrv, err := newMCPServer(a.sc)
			if err != nil {
				return err
			}
			return runStdioServer(mcpSrv)
		},
	}
}

func newMCPServer(sc *server.ServerContext) (*mcpserver.MCPServer, error) {
	mcpSrv := mcpserver.NewMCPServer("inboxmerge", version,
		mcpserver.WithToolCapabilities(true),
		mcpserver.WithResourceCapabilities(false, false),
	)
	if err := registerAllTools(mcpSrv, sc); err != nil {
		return nil, err
	}
	return mcpSrv, nil
}

func runStdioServer(mcpSrv *mcpserver.MCPServer) error {
	serverDone := make(chan error, 1)
	go func() {
		defer close(serverDone)
		if err := mcpserver.ServeStdio(mcpSrv); err != nil {
			serverDone <- err
		}
	}()

	err := <-serverDone
	if err != nil {
		return fmt.Errorf("server stopped with error: %w", err)
	}
	return nil
}

// registerAllTools registers all MCP tools and resources
func registerAllTools(mcpSrv *mcpserver.MCPServer, sc *server.ServerContext) error {
	type toolRegistration struct {
		name     string
		register func() error
	}

	registrations := []toolRegistration{
		{
			name: "Inbox",
			register: func() error {
				return inbox_tools.RegisterInboxTools(mcpSrv, sc)
			},
		},
		{
			name: "Inbox Resources",
			register: func() error {
				return resources.RegisterInboxResources(mcpSrv, sc)
			},
		},
	}

	for _, reg := range registrations {
		if err := reg.register(); err != nil {
			return fmt.Errorf("failed to register %s: %w", reg.name, err)
		}
	}

	return nil
}
