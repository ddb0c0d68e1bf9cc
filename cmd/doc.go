// Package cmd implements the command-line interface for inboxmerge.
//
// This package provides the following commands:
//   - login, callback, logout: Link Google accounts through the browser consent flow
//   - accounts: List, remove and prune linked accounts
//   - inbox: Show the merged feed of allowed senders across all accounts
//   - send: Send one message per day from the main account
//   - serve: Run the web API with periodic background refresh
//   - mcp: Serve the inbox tools over MCP on stdio
//   - generate-docs: Generate markdown documentation for the MCP tools
//   - version: Display version information
//
// The inbox command is the default command when no subcommand is specified.
package cmd
