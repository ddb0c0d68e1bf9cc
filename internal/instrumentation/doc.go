// Package instrumentation provides OpenTelemetry metrics and tracing for inboxmerge.
//
// # Metrics
//
// HTTP:
//   - http_requests_total, http_request_duration_seconds by method, route, status
//
// Google API:
//   - google_api_operations_total, google_api_operation_duration_seconds by
//     service (gmail, userinfo), operation and status
//
// OAuth:
//   - oauth_callbacks_total by result
//
// Inbox:
//   - inbox_refresh_total, inbox_refresh_duration_seconds by status
//   - inbox_messages_total by stage (fetched, kept, dropped)
//
// Sending:
//   - send_attempts_total by status
//   - send_gate_blocked_total
//
// MCP:
//   - mcp_tool_invocations_total, mcp_tool_duration_seconds by tool and status
//
// # Tracing
//
// Spans are created for provider calls (google.<service>.<operation>), inbox
// refresh cycles and MCP tool invocations (tool.<name>).
//
// # Configuration
//
// Environment variables:
//   - INSTRUMENTATION_ENABLED: Enable/disable instrumentation (default: true)
//   - METRICS_EXPORTER: prometheus, otlp, stdout (default: prometheus)
//   - TRACING_EXPORTER: otlp, stdout, none (default: none)
//   - OTEL_EXPORTER_OTLP_ENDPOINT: OTLP endpoint for traces/metrics
//   - OTEL_TRACES_SAMPLER_ARG: Sampling rate (0.0 to 1.0, default: 0.1)
//   - OTEL_SERVICE_NAME: Service name (default: inboxmerge)
package instrumentation
