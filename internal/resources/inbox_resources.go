package resources

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/mark3labs/mcp-go/mcp"
	mcpserver "github.com/mark3labs/mcp-go/server"

	"github.com/teemow/inboxmerge/internal/server"
)

const (
	AccountsURI = "inbox://accounts"
	FeedURI     = "inbox://feed"
)

// RegisterInboxResources registers the account and feed resources.
func RegisterInboxResources(s *mcpserver.MCPServer, sc *server.ServerContext) error {
	accountsResource := mcp.NewResource(
		AccountsURI,
		"Linked Accounts",
		mcp.WithResourceDescription("Google accounts whose inboxes are merged, with the main (sending) account flagged"),
		mcp.WithMIMEType("application/json"),
	)
	s.AddResource(accountsResource, func(ctx context.Context, request mcp.ReadResourceRequest) ([]mcp.ResourceContents, error) {
		return handleAccounts(ctx, request, sc)
	})

	feedResource := mcp.NewResource(
		FeedURI,
		"Merged Feed",
		mcp.WithResourceDescription("Messages from allowed senders across all linked accounts, newest first, as of the last refresh"),
		mcp.WithMIMEType("application/json"),
	)
	s.AddResource(feedResource, func(ctx context.Context, request mcp.ReadResourceRequest) ([]mcp.ResourceContents, error) {
		return handleFeed(ctx, request, sc)
	})

	return nil
}

func handleAccounts(ctx context.Context, request mcp.ReadResourceRequest, sc *server.ServerContext) ([]mcp.ResourceContents, error) {
	accounts, err := sc.Tokens().ListAccounts(ctx)
	if err != nil {
		return nil, fmt.Errorf("failed to list accounts: %w", err)
	}
	main, hasMain, err := sc.Tokens().MainCredential(ctx)
	if err != nil {
		return nil, fmt.Errorf("failed to read main account: %w", err)
	}

	type account struct {
		Email     string    `json:"email"`
		Main      bool      `json:"main"`
		ExpiresAt time.Time `json:"expires_at"`
	}
	data := struct {
		Authenticated bool      `json:"authenticated"`
		Accounts      []account `json:"accounts"`
	}{Authenticated: hasMain, Accounts: make([]account, 0, len(accounts))}
	for _, acc := range accounts {
		data.Accounts = append(data.Accounts, account{
			Email:     acc.Email,
			Main:      hasMain && acc.Email == main.Email,
			ExpiresAt: time.UnixMilli(acc.ExpiresAt).UTC(),
		})
	}
	return jsonContents(request.Params.URI, data)
}

func handleFeed(_ context.Context, request mcp.ReadResourceRequest, sc *server.ServerContext) ([]mcp.ResourceContents, error) {
	return jsonContents(request.Params.URI, sc.Aggregator().Feed())
}

func jsonContents(uri string, v any) ([]mcp.ResourceContents, error) {
	jsonData, err := json.MarshalIndent(v, "", "  ")
	if err != nil {
		return nil, fmt.Errorf("failed to marshal resource: %w", err)
	}
	return []mcp.ResourceContents{
		&mcp.TextResourceContents{
			URI:      uri,
			MIMEType: "application/json",
			Text:     string(jsonData),
		},
	}, nil
}
