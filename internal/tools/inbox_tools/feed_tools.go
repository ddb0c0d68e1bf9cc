package inbox_tools

import (
	"context"
	"errors"
	"fmt"
	"html"
	"strings"
	"time"

	"github.com/mark3labs/mcp-go/mcp"
	mcpserver "github.com/mark3labs/mcp-go/server"

	"github.com/teemow/inboxmerge/internal/filter"
	"github.com/teemow/inboxmerge/internal/inbox"
	"github.com/teemow/inboxmerge/internal/server"
	"github.com/teemow/inboxmerge/internal/tools/common"
)

const defaultFeedLimit = 20

// RegisterFeedTools registers the merged-feed tools.
func RegisterFeedTools(s *mcpserver.MCPServer, sc *server.ServerContext) error {
	refreshTool := mcp.NewTool("inbox_refresh",
		mcp.WithDescription("Fetch the inboxes of all linked accounts and rebuild the merged feed"),
	)
	s.AddTool(refreshTool, common.InstrumentedToolHandler("inbox_refresh", sc,
		func(ctx context.Context, request mcp.CallToolRequest) (*mcp.CallToolResult, error) {
			return handleRefresh(ctx, request, sc)
		}))

	feedTool := mcp.NewTool("inbox_feed",
		mcp.WithDescription("Show the merged feed from the last refresh, newest first"),
		mcp.WithString("sender",
			mcp.Description("Only show messages whose sender contains this text (e.g., 'shopee')"),
		),
		mcp.WithNumber("maxResults",
			mcp.Description("Maximum number of messages to return (default: 20)"),
		),
	)
	s.AddTool(feedTool, common.InstrumentedToolHandler("inbox_feed", sc,
		func(ctx context.Context, request mcp.CallToolRequest) (*mcp.CallToolResult, error) {
			return handleFeed(ctx, request, sc)
		}))

	return nil
}

func handleRefresh(ctx context.Context, _ mcp.CallToolRequest, sc *server.ServerContext) (*mcp.CallToolResult, error) {
	ok, err := sc.Tokens().IsAuthenticated(ctx)
	if err != nil {
		return mcp.NewToolResultError(fmt.Sprintf("Failed to read accounts: %v", err)), nil
	}
	if !ok {
		return mcp.NewToolResultError("No main account is signed in. Use inbox_auth_url to link one."), nil
	}

	feed, err := sc.Refresh(ctx)
	if errors.Is(err, inbox.ErrRefreshInProgress) {
		return mcp.NewToolResultError("A refresh is already running; try again shortly."), nil
	}
	if err != nil {
		return mcp.NewToolResultError(fmt.Sprintf("Failed to refresh: %v", err)), nil
	}

	var b strings.Builder
	fmt.Fprintf(&b, "Refreshed %d accounts, %d messages in feed:\n", len(feed.Accounts), len(feed.Messages))
	for _, acc := range feed.Accounts {
		if acc.Error != "" {
			fmt.Fprintf(&b, "- %s: failed (%s)\n", acc.Email, acc.Error)
			continue
		}
		fmt.Fprintf(&b, "- %s: %d fetched, %d kept\n", acc.Email, acc.Fetched, acc.Kept)
	}
	return mcp.NewToolResultText(b.String()), nil
}

func handleFeed(_ context.Context, request mcp.CallToolRequest, sc *server.ServerContext) (*mcp.CallToolResult, error) {
	args := request.GetArguments()

	sender, _ := args["sender"].(string)
	limit := defaultFeedLimit
	if v, ok := args["maxResults"].(float64); ok && v > 0 {
		limit = int(v)
	}

	feed := sc.Aggregator().Feed()
	if feed.RefreshID == "" {
		return mcp.NewToolResultText("The feed is empty. Run inbox_refresh first."), nil
	}

	// Every message in the feed counts as shown, not only the filtered view.
	fresh := sc.Seen().Classify(feed.Messages).NewIDs()
	msgs := filter.BySender(feed.Messages, sender)

	total := len(msgs)
	if len(msgs) > limit {
		msgs = msgs[:limit]
	}

	var b strings.Builder
	fmt.Fprintf(&b, "Showing %d of %d messages (refreshed %s):\n", len(msgs), total,
		feed.FinishedAt.Format(time.RFC3339))
	for i, m := range msgs {
		marker := ""
		if fresh[m.ID] {
			marker = " [new]"
		}
		if m.IsUnread {
			marker += " [unread]"
		}
		fmt.Fprintf(&b, "%d. %s%s\n   From: %s\n   To: %s\n   Received: %s\n   %s\n",
			i+1, m.Subject, marker, m.Sender, m.OwnerAccount,
			time.UnixMilli(m.ReceivedEpochMs).UTC().Format(time.RFC3339),
			html.UnescapeString(m.Snippet))
	}
	return mcp.NewToolResultText(b.String()), nil
}
