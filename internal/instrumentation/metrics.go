package instrumentation

import (
	"context"
	"fmt"
	"strconv"
	"time"

	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/metric"
)

// Metric attribute keys
const (
	attrMethod    = "method"
	attrPath      = "path"
	attrStatus    = "status"
	attrOperation = "operation"
	attrService   = "service"
	attrResult    = "result"
	attrTool      = "tool"
	attrStage     = "stage"
)

// Metrics provides methods for recording observability metrics.
// A nil or zero Metrics records nothing.
type Metrics struct {
	// HTTP metrics
	httpRequestsTotal   metric.Int64Counter
	httpRequestDuration metric.Float64Histogram

	// Provider API metrics
	apiOperationsTotal   metric.Int64Counter
	apiOperationDuration metric.Float64Histogram

	// OAuth metrics
	oauthCallbacksTotal metric.Int64Counter

	// Inbox metrics
	refreshTotal    metric.Int64Counter
	refreshDuration metric.Float64Histogram
	messagesTotal   metric.Int64Counter

	// Send metrics
	sendAttemptsTotal metric.Int64Counter
	sendGateBlocked   metric.Int64Counter

	// MCP tool metrics
	toolInvocations metric.Int64Counter
	toolDuration    metric.Float64Histogram
}

// NewMetrics creates a new Metrics instance with all metrics initialized.
func NewMetrics(meter metric.Meter) (*Metrics, error) {
	m := &Metrics{}
	var err error

	m.httpRequestsTotal, err = meter.Int64Counter(
		"http_requests_total",
		metric.WithDescription("Total number of HTTP requests"),
		metric.WithUnit("{request}"),
	)
	if err != nil {
		return nil, fmt.Errorf("failed to create http_requests_total counter: %w", err)
	}

	m.httpRequestDuration, err = meter.Float64Histogram(
		"http_request_duration_seconds",
		metric.WithDescription("HTTP request duration in seconds"),
		metric.WithUnit("s"),
		metric.WithExplicitBucketBoundaries(0.001, 0.01, 0.1, 0.5, 1.0, 2.5, 5.0, 10.0),
	)
	if err != nil {
		return nil, fmt.Errorf("failed to create http_request_duration_seconds histogram: %w", err)
	}

	m.apiOperationsTotal, err = meter.Int64Counter(
		"google_api_operations_total",
		metric.WithDescription("Total number of Google API operations"),
		metric.WithUnit("{operation}"),
	)
	if err != nil {
		return nil, fmt.Errorf("failed to create google_api_operations_total counter: %w", err)
	}

	m.apiOperationDuration, err = meter.Float64Histogram(
		"google_api_operation_duration_seconds",
		metric.WithDescription("Google API operation duration in seconds"),
		metric.WithUnit("s"),
		metric.WithExplicitBucketBoundaries(0.01, 0.05, 0.1, 0.25, 0.5, 1.0, 2.5, 5.0, 10.0, 30.0),
	)
	if err != nil {
		return nil, fmt.Errorf("failed to create google_api_operation_duration_seconds histogram: %w", err)
	}

	m.oauthCallbacksTotal, err = meter.Int64Counter(
		"oauth_callbacks_total",
		metric.WithDescription("Total number of OAuth redirect callbacks processed"),
		metric.WithUnit("{callback}"),
	)
	if err != nil {
		return nil, fmt.Errorf("failed to create oauth_callbacks_total counter: %w", err)
	}

	m.refreshTotal, err = meter.Int64Counter(
		"inbox_refresh_total",
		metric.WithDescription("Total number of aggregate inbox refreshes"),
		metric.WithUnit("{refresh}"),
	)
	if err != nil {
		return nil, fmt.Errorf("failed to create inbox_refresh_total counter: %w", err)
	}

	m.refreshDuration, err = meter.Float64Histogram(
		"inbox_refresh_duration_seconds",
		metric.WithDescription("Aggregate inbox refresh duration in seconds"),
		metric.WithUnit("s"),
		metric.WithExplicitBucketBoundaries(0.1, 0.5, 1.0, 2.5, 5.0, 10.0, 30.0, 60.0),
	)
	if err != nil {
		return nil, fmt.Errorf("failed to create inbox_refresh_duration_seconds histogram: %w", err)
	}

	m.messagesTotal, err = meter.Int64Counter(
		"inbox_messages_total",
		metric.WithDescription("Messages seen by the inbox pipeline by stage"),
		metric.WithUnit("{message}"),
	)
	if err != nil {
		return nil, fmt.Errorf("failed to create inbox_messages_total counter: %w", err)
	}

	m.sendAttemptsTotal, err = meter.Int64Counter(
		"send_attempts_total",
		metric.WithDescription("Outbound message attempts per recipient"),
		metric.WithUnit("{message}"),
	)
	if err != nil {
		return nil, fmt.Errorf("failed to create send_attempts_total counter: %w", err)
	}

	m.sendGateBlocked, err = meter.Int64Counter(
		"send_gate_blocked_total",
		metric.WithDescription("Sends rejected by the daily send limit"),
		metric.WithUnit("{attempt}"),
	)
	if err != nil {
		return nil, fmt.Errorf("failed to create send_gate_blocked_total counter: %w", err)
	}

	m.toolInvocations, err = meter.Int64Counter(
		"mcp_tool_invocations_total",
		metric.WithDescription("Total number of MCP tool invocations"),
		metric.WithUnit("{invocation}"),
	)
	if err != nil {
		return nil, fmt.Errorf("failed to create mcp_tool_invocations_total counter: %w", err)
	}

	m.toolDuration, err = meter.Float64Histogram(
		"mcp_tool_duration_seconds",
		metric.WithDescription("MCP tool execution duration in seconds"),
		metric.WithUnit("s"),
		metric.WithExplicitBucketBoundaries(0.01, 0.05, 0.1, 0.25, 0.5, 1.0, 2.5, 5.0, 10.0, 30.0),
	)
	if err != nil {
		return nil, fmt.Errorf("failed to create mcp_tool_duration_seconds histogram: %w", err)
	}

	return m, nil
}

// RecordHTTPRequest records an HTTP request with method, route, status code, and duration.
func (m *Metrics) RecordHTTPRequest(ctx context.Context, method, path string, statusCode int, duration time.Duration) {
	if m == nil || m.httpRequestsTotal == nil || m.httpRequestDuration == nil {
		return
	}

	attrs := metric.WithAttributes(
		attribute.String(attrMethod, method),
		attribute.String(attrPath, path),
		attribute.String(attrStatus, strconv.Itoa(statusCode)),
	)
	m.httpRequestsTotal.Add(ctx, 1, attrs)
	m.httpRequestDuration.Record(ctx, duration.Seconds(), attrs)
}

// RecordAPIOperation records a provider API call.
//
// Parameters:
//   - service: provider service name (gmail, userinfo)
//   - operation: list, get, profile, send
//   - status: "success" or "error"
func (m *Metrics) RecordAPIOperation(ctx context.Context, service, operation, status string, duration time.Duration) {
	if m == nil || m.apiOperationsTotal == nil || m.apiOperationDuration == nil {
		return
	}

	attrs := metric.WithAttributes(
		attribute.String(attrService, service),
		attribute.String(attrOperation, operation),
		attribute.String(attrStatus, status),
	)
	m.apiOperationsTotal.Add(ctx, 1, attrs)
	m.apiOperationDuration.Record(ctx, duration.Seconds(), attrs)
}

// RecordOAuthCallback records the outcome of a redirect callback.
func (m *Metrics) RecordOAuthCallback(ctx context.Context, result string) {
	if m == nil || m.oauthCallbacksTotal == nil {
		return
	}
	m.oauthCallbacksTotal.Add(ctx, 1, metric.WithAttributes(attribute.String(attrResult, result)))
}

// RecordRefresh records one aggregate refresh. status is success or rejected.
func (m *Metrics) RecordRefresh(ctx context.Context, status string, duration time.Duration) {
	if m == nil || m.refreshTotal == nil || m.refreshDuration == nil {
		return
	}
	attrs := metric.WithAttributes(attribute.String(attrStatus, status))
	m.refreshTotal.Add(ctx, 1, attrs)
	if status != StatusRejected {
		m.refreshDuration.Record(ctx, duration.Seconds(), attrs)
	}
}

// RecordMessages adds n messages at the given pipeline stage.
func (m *Metrics) RecordMessages(ctx context.Context, stage string, n int) {
	if m == nil || m.messagesTotal == nil || n <= 0 {
		return
	}
	m.messagesTotal.Add(ctx, int64(n), metric.WithAttributes(attribute.String(attrStage, stage)))
}

// RecordSendAttempt records one per-recipient send.
func (m *Metrics) RecordSendAttempt(ctx context.Context, status string) {
	if m == nil || m.sendAttemptsTotal == nil {
		return
	}
	m.sendAttemptsTotal.Add(ctx, 1, metric.WithAttributes(attribute.String(attrStatus, status)))
}

// RecordSendBlocked records a send rejected by the daily limit.
func (m *Metrics) RecordSendBlocked(ctx context.Context) {
	if m == nil || m.sendGateBlocked == nil {
		return
	}
	m.sendGateBlocked.Add(ctx, 1)
}

// RecordToolInvocation records an MCP tool invocation with tool name, status, and duration.
func (m *Metrics) RecordToolInvocation(ctx context.Context, toolName, status string, duration time.Duration) {
	if m == nil || m.toolInvocations == nil || m.toolDuration == nil {
		return
	}
	attrs := metric.WithAttributes(
		attribute.String(attrTool, toolName),
		attribute.String(attrStatus, status),
	)
	m.toolInvocations.Add(ctx, 1, attrs)
	m.toolDuration.Record(ctx, duration.Seconds(), attrs)
}
