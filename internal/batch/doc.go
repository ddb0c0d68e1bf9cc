// Package batch holds helpers for operations applied to several items where
// individual items may fail.
//
// This package includes helpers for:
//   - Splitting ids into fixed-size chunks
//   - Parsing parameters that accept both single values and arrays
//   - Running an operation per item and collecting per-item results
//   - Summarizing results for display or JSON output
package batch
