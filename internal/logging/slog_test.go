package logging

import (
	"bytes"
	"errors"
	"log/slog"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNew(t *testing.T) {
	tests := []struct {
		name     string
		level    string
		format   string
		wantJSON bool
		logDebug bool
	}{
		{"text info", "info", "text", false, false},
		{"json debug", "debug", "json", true, true},
		{"json uppercase", "warn", "JSON", true, false},
		{"unknown defaults", "nonsense", "", false, false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			var buf bytes.Buffer
			logger := New(&buf, tt.level, tt.format)
			logger.Debug("debug line")
			logger.Error("error line")

			out := buf.String()
			assert.Contains(t, out, "error line")
			assert.Equal(t, tt.logDebug, strings.Contains(out, "debug line"))
			if tt.wantJSON {
				assert.True(t, strings.HasPrefix(out, "{"), "expected JSON output, got %q", out)
			}
		})
	}
}

func TestParseLevel(t *testing.T) {
	tests := map[string]slog.Level{
		"debug":   slog.LevelDebug,
		" DEBUG ": slog.LevelDebug,
		"info":    slog.LevelInfo,
		"warning": slog.LevelWarn,
		"warn":    slog.LevelWarn,
		"error":   slog.LevelError,
		"":        slog.LevelInfo,
	}
	for in, want := range tests {
		t.Run(in, func(t *testing.T) {
			assert.Equal(t, want, ParseLevel(in))
		})
	}
}

func TestOrDiscard(t *testing.T) {
	require.NotNil(t, OrDiscard(nil))
	l := slog.Default()
	assert.Same(t, l, OrDiscard(l))
}

func TestWithHelpers(t *testing.T) {
	var buf bytes.Buffer
	base := New(&buf, "info", "text")

	WithComponent(WithOperation(WithAccount(base, "jane@example.com"), "inbox.refresh"), "inbox").Info("hello")

	out := buf.String()
	assert.Contains(t, out, KeyOperation+"=inbox.refresh")
	assert.Contains(t, out, KeyComponent+"=inbox")
	assert.Contains(t, out, KeyUserHash+"=user:")
	assert.NotContains(t, out, "jane@example.com")
}

func TestAttrs(t *testing.T) {
	tests := []struct {
		name    string
		attr    slog.Attr
		wantKey string
		wantVal string
	}{
		{"operation", Operation("test_op"), KeyOperation, "test_op"},
		{"status", Status(StatusSuccess), KeyStatus, "success"},
		{"refresh id", RefreshID("abc"), KeyRefreshID, "abc"},
		{"batch", Batch(3), KeyBatch, "3"},
		{"domain", Domain("jane@example.com"), "user_domain", "example.com"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.wantKey, tt.attr.Key)
			assert.Equal(t, tt.wantVal, tt.attr.Value.String())
		})
	}
}

func TestErr(t *testing.T) {
	attr := Err(errors.New("test error"))
	assert.Equal(t, KeyError, attr.Key)
	assert.Equal(t, "test error", attr.Value.String())

	// nil yields an empty group that slog omits
	assert.Equal(t, "", Err(nil).Key)
}

func TestAnonymizeEmail(t *testing.T) {
	tests := []struct {
		email    string
		wantLen  int
		hasValue bool
	}{
		{"jane@example.com", 21, true}, // "user:" + 16 hex chars
		{"user@gmail.com", 21, true},
		{"", 0, false},
	}

	for _, tt := range tests {
		t.Run(tt.email, func(t *testing.T) {
			result := AnonymizeEmail(tt.email)
			if !tt.hasValue {
				assert.Empty(t, result)
				return
			}
			assert.Len(t, result, tt.wantLen)
			assert.True(t, strings.HasPrefix(result, "user:"))
		})
	}

	assert.Equal(t, AnonymizeEmail("test@example.com"), AnonymizeEmail("test@example.com"))
	assert.Equal(t, AnonymizeEmail("Test@Example.com"), AnonymizeEmail("test@example.com"))
	assert.NotEqual(t, AnonymizeEmail("test@example.com"), AnonymizeEmail("other@example.com"))
}

func TestUserHash(t *testing.T) {
	attr := UserHash("jane@example.com")
	assert.Equal(t, KeyUserHash, attr.Key)
	assert.Len(t, attr.Value.String(), 21)
}

func TestSanitizeToken(t *testing.T) {
	tests := []struct {
		token    string
		expected string
	}{
		{"", "<empty>"},
		{"abc123", "[token:6 chars]"},
		{"a_very_long_token_string", "[token:24 chars]"},
	}

	for _, tt := range tests {
		t.Run(tt.expected, func(t *testing.T) {
			assert.Equal(t, tt.expected, SanitizeToken(tt.token))
		})
	}
}

func TestExtractDomain(t *testing.T) {
	tests := []struct {
		email    string
		expected string
	}{
		{"jane@example.com", "example.com"},
		{"user@gmail.com", "gmail.com"},
		{"invalid", ""},
		{"", ""},
		{"@", ""},
		{"user@", ""},
	}

	for _, tt := range tests {
		t.Run(tt.email, func(t *testing.T) {
			assert.Equal(t, tt.expected, ExtractDomain(tt.email))
		})
	}
}
