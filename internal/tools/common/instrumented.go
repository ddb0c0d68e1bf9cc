package common

import (
	"context"
	"errors"
	"log/slog"
	"time"

	"github.com/mark3labs/mcp-go/mcp"

	"github.com/teemow/inboxmerge/internal/instrumentation"
	"github.com/teemow/inboxmerge/internal/logging"
	"github.com/teemow/inboxmerge/internal/server"
)

// ToolHandler is the signature mcp-go expects for tool handlers.
type ToolHandler func(ctx context.Context, request mcp.CallToolRequest) (*mcp.CallToolResult, error)

// InstrumentedToolHandler wraps a tool handler with a span, invocation metrics
// and a log line per call. A result with IsError counts as a failed call.
//
// Usage:
//
//	s.AddTool(myTool, common.InstrumentedToolHandler("my_tool", sc, handler))
func InstrumentedToolHandler(toolName string, sc *server.ServerContext, handler ToolHandler) ToolHandler {
	logger := logging.WithComponent(sc.Logger(), "mcp")

	return func(ctx context.Context, request mcp.CallToolRequest) (*mcp.CallToolResult, error) {
		ctx, span := instrumentation.StartToolSpan(ctx, toolName)
		start := time.Now()

		result, err := handler(ctx, request)
		duration := time.Since(start)

		status := instrumentation.StatusSuccess
		spanErr := err
		if err != nil || (result != nil && result.IsError) {
			status = instrumentation.StatusError
			if spanErr == nil {
				spanErr = errors.New(ResultText(result))
			}
		}

		sc.Metrics().RecordToolInvocation(ctx, toolName, status, duration)
		instrumentation.EndSpan(span, spanErr)

		attrs := []any{
			slog.String("tool", toolName),
			slog.Duration(logging.KeyDuration, duration),
			logging.Status(status),
		}
		if spanErr != nil {
			attrs = append(attrs, logging.Err(spanErr))
		}
		logger.Info("tool invoked", attrs...)

		return result, err
	}
}

// ResultText joins the text content of a tool result.
func ResultText(result *mcp.CallToolResult) string {
	if result == nil {
		return ""
	}
	var out string
	for _, c := range result.Content {
		if tc, ok := c.(mcp.TextContent); ok {
			out += tc.Text
		}
	}
	return out
}
