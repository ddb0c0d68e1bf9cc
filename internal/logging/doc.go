// Package logging provides structured logging utilities for inboxmerge.
//
// This package centralizes logging patterns so every component logs with the
// same attribute names, using the standard library's slog package.
//
// # Usage Patterns
//
// Create a logger with standard attributes:
//
//	logger := logging.WithOperation(slog.Default(), "inbox.refresh")
//	logger.Info("refresh finished",
//	    logging.Status(logging.StatusSuccess))
//
// Sanitize sensitive data before logging:
//
//	logger.Info("account linked",
//	    logging.UserHash(email))
//
// # Security Considerations
//
//   - Account emails are hashed to prevent PII leakage while allowing correlation
//   - Access tokens are never logged directly, only via SanitizeToken
package logging
