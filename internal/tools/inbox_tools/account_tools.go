package inbox_tools

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/mark3labs/mcp-go/mcp"
	mcpserver "github.com/mark3labs/mcp-go/server"

	"github.com/teemow/inboxmerge/internal/google"
	"github.com/teemow/inboxmerge/internal/server"
	"github.com/teemow/inboxmerge/internal/tools/common"
)

// RegisterAccountTools registers the account-linking tools.
func RegisterAccountTools(s *mcpserver.MCPServer, sc *server.ServerContext) error {
	authURLTool := mcp.NewTool("inbox_auth_url",
		mcp.WithDescription("Get the Google consent URL to link an account. Open it in a browser, then pass the URL you are redirected to to inbox_complete_callback."),
		mcp.WithString("account",
			mcp.Description("Which account to link: 'main' (the sending account, default) or 'additional'"),
		),
	)
	s.AddTool(authURLTool, common.InstrumentedToolHandler("inbox_auth_url", sc,
		func(ctx context.Context, request mcp.CallToolRequest) (*mcp.CallToolResult, error) {
			return handleAuthURL(ctx, request, sc)
		}))

	callbackTool := mcp.NewTool("inbox_complete_callback",
		mcp.WithDescription("Finish linking an account from the redirect URL (or its #fragment) returned by Google"),
		mcp.WithString("url",
			mcp.Required(),
			mcp.Description("Full redirect URL including the #access_token fragment, or the fragment alone"),
		),
	)
	s.AddTool(callbackTool, common.InstrumentedToolHandler("inbox_complete_callback", sc,
		func(ctx context.Context, request mcp.CallToolRequest) (*mcp.CallToolResult, error) {
			return handleCompleteCallback(ctx, request, sc)
		}))

	listTool := mcp.NewTool("inbox_list_accounts",
		mcp.WithDescription("List linked accounts whose access token has not expired"),
	)
	s.AddTool(listTool, common.InstrumentedToolHandler("inbox_list_accounts", sc,
		func(ctx context.Context, request mcp.CallToolRequest) (*mcp.CallToolResult, error) {
			return handleListAccounts(ctx, request, sc)
		}))

	removeTool := mcp.NewTool("inbox_remove_account",
		mcp.WithDescription("Unlink an account. Removing the main account signs out."),
		mcp.WithString("email",
			mcp.Required(),
			mcp.Description("Email address of the account to unlink"),
		),
	)
	s.AddTool(removeTool, common.InstrumentedToolHandler("inbox_remove_account", sc,
		func(ctx context.Context, request mcp.CallToolRequest) (*mcp.CallToolResult, error) {
			return handleRemoveAccount(ctx, request, sc)
		}))

	return nil
}

func handleAuthURL(_ context.Context, request mcp.CallToolRequest, sc *server.ServerContext) (*mcp.CallToolResult, error) {
	args := request.GetArguments()

	account := "main"
	if v, ok := args["account"].(string); ok && v != "" {
		account = strings.ToLower(v)
	}
	if account != "main" && account != "additional" {
		return mcp.NewToolResultError("account must be 'main' or 'additional'"), nil
	}
	if sc.Config().OAuth.ClientID == "" {
		return mcp.NewToolResultError("oauth.client_id is not configured"), nil
	}

	return mcp.NewToolResultText(sc.Flow().AuthorizationURL(account == "main")), nil
}

func handleCompleteCallback(ctx context.Context, request mcp.CallToolRequest, sc *server.ServerContext) (*mcp.CallToolResult, error) {
	args := request.GetArguments()

	raw, ok := args["url"].(string)
	if !ok || strings.TrimSpace(raw) == "" {
		return mcp.NewToolResultError("url is required"), nil
	}

	loc, err := google.NewURLLocation(strings.TrimSpace(raw))
	if err != nil {
		return mcp.NewToolResultError(fmt.Sprintf("Invalid redirect URL: %v", err)), nil
	}

	result, err := sc.Flow().CompleteCallback(ctx, loc)
	if err != nil {
		return mcp.NewToolResultError(fmt.Sprintf("Failed to store account: %v", err)), nil
	}
	if !result.Success {
		return mcp.NewToolResultError(fmt.Sprintf("Account was not linked (stage: %s)", result.Stage)), nil
	}
	return jsonResult(result)
}

type accountInfo struct {
	Email     string    `json:"email"`
	Main      bool      `json:"main"`
	ExpiresAt time.Time `json:"expires_at"`
}

func handleListAccounts(ctx context.Context, _ mcp.CallToolRequest, sc *server.ServerContext) (*mcp.CallToolResult, error) {
	accounts, err := sc.Tokens().ListAccounts(ctx)
	if err != nil {
		return mcp.NewToolResultError(fmt.Sprintf("Failed to list accounts: %v", err)), nil
	}
	main, hasMain, err := sc.Tokens().MainCredential(ctx)
	if err != nil {
		return mcp.NewToolResultError(fmt.Sprintf("Failed to read main account: %v", err)), nil
	}

	out := make([]accountInfo, 0, len(accounts))
	for _, acc := range accounts {
		out = append(out, accountInfo{
			Email:     acc.Email,
			Main:      hasMain && acc.Email == main.Email,
			ExpiresAt: time.UnixMilli(acc.ExpiresAt).UTC(),
		})
	}
	return jsonResult(out)
}

func handleRemoveAccount(ctx context.Context, request mcp.CallToolRequest, sc *server.ServerContext) (*mcp.CallToolResult, error) {
	args := request.GetArguments()

	email, ok := args["email"].(string)
	if !ok || strings.TrimSpace(email) == "" {
		return mcp.NewToolResultError("email is required"), nil
	}

	if err := sc.Tokens().RemoveAccount(ctx, strings.TrimSpace(email)); err != nil {
		return mcp.NewToolResultError(fmt.Sprintf("Failed to remove account: %v", err)), nil
	}
	return mcp.NewToolResultText(fmt.Sprintf("Removed account %s", strings.TrimSpace(email))), nil
}
