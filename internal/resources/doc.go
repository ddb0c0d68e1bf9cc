// Package resources provides read-only MCP resources: the linked accounts
// and the merged feed from the last refresh. Access tokens are never exposed.
package resources
