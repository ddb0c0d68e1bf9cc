// Package inbox_tools exposes the merged inbox over MCP.
//
// Account tools link and unlink Google accounts through the same
// implicit-grant flow the web page uses: inbox_auth_url returns the consent
// URL, and inbox_complete_callback takes the redirect URL the browser landed
// on. Feed tools refresh and read the merged, sender-filtered inbox. Send
// tools compose one message from the main account to linked accounts,
// subject to the once-per-day limit.
package inbox_tools
