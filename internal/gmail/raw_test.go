package gmail

import (
	"encoding/base64"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestBuildRawMessage(t *testing.T) {
	raw := string(BuildRawMessage(OutgoingMessage{To: "a@example.com", Subject: "Hi", Body: "line1\r\nline2"}))

	assert.Equal(t, "To: a@example.com\r\n"+
		"Subject: Hi\r\n"+
		"MIME-Version: 1.0\r\n"+
		"Content-Type: text/plain; charset=utf-8\r\n"+
		"\r\n"+
		"line1\r\nline2", raw)
}

func TestBuildRawMessage_EncodesNonASCIISubject(t *testing.T) {
	raw := string(BuildRawMessage(OutgoingMessage{To: "a@example.com", Subject: "ยืนยันคำสั่งซื้อ"}))
	assert.Contains(t, raw, "Subject: =?UTF-8?b?")
	assert.NotContains(t, raw, "ยืนยัน")
}

func TestBuildRawMessage_SubjectCannotAddHeaders(t *testing.T) {
	raw := string(BuildRawMessage(OutgoingMessage{To: "a@example.com", Subject: "hi\r\nBcc: x@example.com", Body: "body"}))

	assert.NotContains(t, raw, "\r\nBcc:")
	assert.Contains(t, raw, "Subject: =?UTF-8?b?")
}

func TestValidateRecipient(t *testing.T) {
	tests := []struct {
		name    string
		to      string
		wantErr bool
	}{
		{name: "plain address", to: "a@example.com"},
		{name: "display name", to: "Alice <a@example.com>"},
		{name: "empty", to: "  ", wantErr: true},
		{name: "injected header", to: "a@example.com\r\nBcc: x@example.com", wantErr: true},
		{name: "bare newline", to: "a@example.com\nCc: x@example.com", wantErr: true},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := ValidateRecipient(tt.to)
			if tt.wantErr {
				assert.Error(t, err)
				return
			}
			assert.NoError(t, err)
		})
	}
}

func TestEncodeRawMessage_Alphabet(t *testing.T) {
	encoded := EncodeRawMessage(OutgoingMessage{To: "a@example.com", Subject: "???>>>", Body: "~~~???>>>"})
	assert.NotContains(t, encoded, "=")
	assert.NotContains(t, encoded, "+")
	assert.NotContains(t, encoded, "/")
}

func TestRawMessage_RoundTrip(t *testing.T) {
	tests := []struct {
		name string
		msg  OutgoingMessage
	}{
		{name: "ascii", msg: OutgoingMessage{To: "a@example.com", Subject: "Weekly report", Body: "All good."}},
		{name: "thai subject", msg: OutgoingMessage{To: "b@example.com", Subject: "สวัสดีครับ", Body: "ขอบคุณ"}},
		{name: "empty subject and body", msg: OutgoingMessage{To: "c@example.com"}},
		{name: "multiline body", msg: OutgoingMessage{To: "d@example.com", Subject: "x", Body: "one\r\ntwo\r\nthree"}},
		{name: "line break in subject", msg: OutgoingMessage{To: "e@example.com", Subject: "hi\r\nBcc: x@example.com", Body: "body"}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := DecodeRawMessage(EncodeRawMessage(tt.msg))
			require.NoError(t, err)
			assert.Equal(t, tt.msg, got)
		})
	}
}

func TestDecodeRawMessage_AcceptsPadding(t *testing.T) {
	msg := OutgoingMessage{To: "a@example.com", Subject: "pad", Body: "b"}
	padded := base64.URLEncoding.EncodeToString(BuildRawMessage(msg))

	got, err := DecodeRawMessage(padded)
	require.NoError(t, err)
	assert.Equal(t, msg, got)
}

func TestDecodeRawMessage_Invalid(t *testing.T) {
	_, err := DecodeRawMessage("***not base64***")
	require.Error(t, err)
	assert.True(t, strings.Contains(err.Error(), "base64"))
}
