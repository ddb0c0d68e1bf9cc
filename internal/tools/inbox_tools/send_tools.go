package inbox_tools

import (
	"context"
	"errors"
	"fmt"

	"github.com/mark3labs/mcp-go/mcp"
	mcpserver "github.com/mark3labs/mcp-go/server"

	"github.com/teemow/inboxmerge/internal/batch"
	"github.com/teemow/inboxmerge/internal/compose"
	"github.com/teemow/inboxmerge/internal/server"
	"github.com/teemow/inboxmerge/internal/tools/common"
)

// RegisterSendTools registers the compose tools.
func RegisterSendTools(s *mcpserver.MCPServer, sc *server.ServerContext) error {
	sendTool := mcp.NewTool("inbox_send",
		mcp.WithDescription("Send a plain-text message from the main account to one or more addresses. Only one send per day succeeds."),
		mcp.WithString("recipients",
			mcp.Required(),
			mcp.Description("Recipient address (string) or array of addresses"),
		),
		mcp.WithString("subject",
			mcp.Description("Message subject"),
		),
		mcp.WithString("body",
			mcp.Description("Plain-text message body"),
		),
	)
	s.AddTool(sendTool, common.InstrumentedToolHandler("inbox_send", sc,
		func(ctx context.Context, request mcp.CallToolRequest) (*mcp.CallToolResult, error) {
			return handleSend(ctx, request, sc)
		}))

	statusTool := mcp.NewTool("inbox_send_status",
		mcp.WithDescription("Report whether a send is still allowed today and the linked addresses it can go to"),
	)
	s.AddTool(statusTool, common.InstrumentedToolHandler("inbox_send_status", sc,
		func(ctx context.Context, request mcp.CallToolRequest) (*mcp.CallToolResult, error) {
			return handleSendStatus(ctx, request, sc)
		}))

	return nil
}

func handleSend(ctx context.Context, request mcp.CallToolRequest, sc *server.ServerContext) (*mcp.CallToolResult, error) {
	args := request.GetArguments()

	recipients, err := batch.ParseStringOrArray(args["recipients"], "recipients")
	if err != nil {
		return mcp.NewToolResultError(err.Error()), nil
	}
	subject, _ := args["subject"].(string)
	body, _ := args["body"].(string)

	report, err := sc.Compose().Send(ctx, compose.Draft{
		Recipients: recipients,
		Subject:    subject,
		Body:       body,
	})
	switch {
	case errors.Is(err, compose.ErrAllFailed):
		return mcp.NewToolResultError(fmt.Sprintf("%v\n%s", err, batch.FormatResults(report.Results))), nil
	case err != nil:
		return mcp.NewToolResultError(err.Error()), nil
	}
	return mcp.NewToolResultText(batch.FormatResults(report.Results)), nil
}

type sendStatus struct {
	compose.Status
	Recipients []string `json:"recipients"`
}

func handleSendStatus(ctx context.Context, _ mcp.CallToolRequest, sc *server.ServerContext) (*mcp.CallToolResult, error) {
	st, err := sc.Compose().Status(ctx)
	if err != nil {
		return mcp.NewToolResultError(fmt.Sprintf("Failed to read send status: %v", err)), nil
	}
	recipients, err := sc.Compose().Recipients(ctx)
	if err != nil {
		return mcp.NewToolResultError(fmt.Sprintf("Failed to list recipients: %v", err)), nil
	}
	if recipients == nil {
		recipients = []string{}
	}
	return jsonResult(sendStatus{Status: st, Recipients: recipients})
}
