package gmail

import (
	"strings"

	gmail "google.golang.org/api/gmail/v1"
)

// Placeholders used when a message lacks the corresponding header.
const (
	NoSubject     = "(no subject)"
	UnknownSender = "(unknown sender)"
)

// LabelUnread marks unread messages in labelIds.
const LabelUnread = "UNREAD"

// Message is the normalized view of one inbox message.
type Message struct {
	ID              string `json:"id"`
	ThreadID        string `json:"thread_id"`
	Subject         string `json:"subject"`
	Sender          string `json:"sender"`
	SentAtRaw       string `json:"sent_at_raw"`
	ReceivedEpochMs int64  `json:"received_epoch_ms"`
	Snippet         string `json:"snippet"`
	IsUnread        bool   `json:"is_unread"`
	// OwnerAccount is stamped by the aggregator after filtering.
	OwnerAccount string `json:"owner_account,omitempty"`
}

// Profile is the subset of the mailbox profile the app uses.
type Profile struct {
	EmailAddress  string `json:"email_address"`
	MessagesTotal int64  `json:"messages_total"`
	ThreadsTotal  int64  `json:"threads_total"`
}

// headerMap lowercases header names. A repeated header keeps its last value.
func headerMap(m *gmail.Message) map[string]string {
	out := make(map[string]string)
	if m.Payload == nil {
		return out
	}
	for _, h := range m.Payload.Headers {
		if h == nil {
			continue
		}
		out[strings.ToLower(h.Name)] = h.Value
	}
	return out
}

// messageFromAPI converts a provider message into a Message.
func messageFromAPI(m *gmail.Message) Message {
	headers := headerMap(m)

	subject := headers["subject"]
	if subject == "" {
		subject = NoSubject
	}
	sender := headers["from"]
	if sender == "" {
		sender = UnknownSender
	}

	unread := false
	for _, l := range m.LabelIds {
		if l == LabelUnread {
			unread = true
			break
		}
	}

	return Message{
		ID:              m.Id,
		ThreadID:        m.ThreadId,
		Subject:         subject,
		Sender:          sender,
		SentAtRaw:       headers["date"],
		ReceivedEpochMs: m.InternalDate,
		Snippet:         m.Snippet,
		IsUnread:        unread,
	}
}
