// Package server wires the application services and exposes them over HTTP.
//
// # Key Components
//
// ServerContext builds the credential store, account-linking flow, Gmail
// client, inbox aggregator and compose service once per process and hands
// them to the CLI, the HTTP API and the MCP tools.
//
// NewRouter returns the chi router for the JSON API:
//   - GET /login and GET /callback start and finish account linking
//   - /api/accounts, /api/session and /api/logout manage linked accounts
//   - /api/refresh and /api/feed serve the merged inbox
//   - /api/recipients and /api/send compose under the daily limit
//
// HealthChecker serves /healthz and /readyz. MetricsServer serves
// Prometheus metrics on a dedicated port.
package server
