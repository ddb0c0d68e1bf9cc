package gmail

import (
	"bytes"
	"encoding/base64"
	"errors"
	"fmt"
	"io"
	"mime"
	"strings"

	"github.com/emersion/go-message/mail"
)

// OutgoingMessage is a plain-text message to a single recipient.
type OutgoingMessage struct {
	To      string
	Subject string
	Body    string
}

// encodeRFC2047 encodes a header value when it contains non-ASCII or control
// characters, so CR and LF can never end the header line.
func encodeRFC2047(s string) string {
	return mime.BEncoding.Encode("UTF-8", s)
}

// ValidateRecipient rejects addresses that cannot be placed in a To header.
func ValidateRecipient(to string) error {
	if strings.TrimSpace(to) == "" {
		return errors.New("recipient is required")
	}
	if strings.ContainsAny(to, "\r\n") {
		return errors.New("recipient must not contain line breaks")
	}
	return nil
}

// BuildRawMessage renders msg in RFC 2822 form with CRLF line endings.
func BuildRawMessage(msg OutgoingMessage) []byte {
	var b strings.Builder

	b.WriteString("To: ")
	b.WriteString(msg.To)
	b.WriteString("\r\n")

	b.WriteString("Subject: ")
	b.WriteString(encodeRFC2047(msg.Subject))
	b.WriteString("\r\n")

	b.WriteString("MIME-Version: 1.0\r\n")
	b.WriteString("Content-Type: text/plain; charset=utf-8\r\n")
	b.WriteString("\r\n")
	b.WriteString(msg.Body)

	return []byte(b.String())
}

// EncodeRawMessage returns the unpadded base64url form Gmail expects in "raw".
func EncodeRawMessage(msg OutgoingMessage) string {
	return base64.RawURLEncoding.EncodeToString(BuildRawMessage(msg))
}

// DecodeRawMessage reverses EncodeRawMessage. Padded input is accepted.
func DecodeRawMessage(raw string) (OutgoingMessage, error) {
	data, err := base64.RawURLEncoding.DecodeString(strings.TrimRight(raw, "="))
	if err != nil {
		return OutgoingMessage{}, fmt.Errorf("invalid base64url message: %w", err)
	}

	mr, err := mail.CreateReader(bytes.NewReader(data))
	if err != nil {
		return OutgoingMessage{}, fmt.Errorf("failed to parse message: %w", err)
	}
	defer mr.Close()

	out := OutgoingMessage{To: mr.Header.Get("To")}
	if out.Subject, err = mr.Header.Subject(); err != nil {
		return OutgoingMessage{}, fmt.Errorf("failed to decode subject: %w", err)
	}

	for {
		part, err := mr.NextPart()
		if errors.Is(err, io.EOF) {
			break
		}
		if err != nil {
			return OutgoingMessage{}, fmt.Errorf("failed to read message part: %w", err)
		}
		if h, ok := part.Header.(*mail.InlineHeader); ok {
			contentType, _, _ := h.ContentType()
			if contentType != "" && !strings.HasPrefix(contentType, "text/plain") {
				continue
			}
			body, err := io.ReadAll(part.Body)
			if err != nil {
				return OutgoingMessage{}, fmt.Errorf("failed to read body: %w", err)
			}
			out.Body = string(body)
			break
		}
	}
	return out, nil
}
