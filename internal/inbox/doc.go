// Package inbox merges the filtered inboxes of every linked account into one
// feed ordered newest first.
//
// Accounts are fetched one after another. Within an account, message details
// are fetched in fixed-size batches: concurrently inside a batch, with a short
// pause between batches. A failing account or message is logged and skipped,
// never aborting the refresh.
package inbox
