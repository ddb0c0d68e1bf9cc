// Package filter decides which messages reach the aggregate feed.
package filter

import (
	"regexp"
	"strings"

	"github.com/emersion/go-message/mail"

	"github.com/teemow/inboxmerge/internal/gmail"
)

// AllowList keeps messages whose sender contains one of its patterns.
// Matching is a case-insensitive substring test, so "@shopee.co.th" also
// matches "notice@SHOPEE.co.th".
type AllowList struct {
	patterns []string
}

// NewAllowList returns an allow-list over patterns. Empty patterns are ignored.
func NewAllowList(patterns []string) *AllowList {
	a := &AllowList{}
	for _, p := range patterns {
		p = strings.ToLower(strings.TrimSpace(p))
		if p != "" {
			a.patterns = append(a.patterns, p)
		}
	}
	return a
}

// Patterns returns the normalized patterns.
func (a *AllowList) Patterns() []string {
	return append([]string(nil), a.patterns...)
}

// Matches reports whether from contains any pattern. An empty from never matches.
func (a *AllowList) Matches(from string) bool {
	if from == "" {
		return false
	}
	lower := strings.ToLower(from)
	for _, p := range a.patterns {
		if strings.Contains(lower, p) {
			return true
		}
	}
	return false
}

// Apply returns the messages whose sender matches, preserving order.
func (a *AllowList) Apply(msgs []gmail.Message) []gmail.Message {
	out := make([]gmail.Message, 0, len(msgs))
	for _, m := range msgs {
		if a.Matches(m.Sender) {
			out = append(out, m)
		}
	}
	return out
}

// FilterAll is the BySender pattern that keeps everything.
const FilterAll = "all"

// BySender narrows msgs to senders containing pattern (case-insensitive).
// An empty pattern or FilterAll returns msgs unchanged.
func BySender(msgs []gmail.Message, pattern string) []gmail.Message {
	if pattern == "" || pattern == FilterAll {
		return msgs
	}
	p := strings.ToLower(pattern)
	out := make([]gmail.Message, 0, len(msgs))
	for _, m := range msgs {
		if strings.Contains(strings.ToLower(m.Sender), p) {
			out = append(out, m)
		}
	}
	return out
}

var displayAddr = regexp.MustCompile(`^(.+?)\s*<(.+?)>$`)

// ParseSender splits a From header into display name and address. When the
// header has no display name both values are the raw header.
func ParseSender(from string) (name, address string) {
	if addr, err := mail.ParseAddress(from); err == nil && addr.Name != "" {
		return addr.Name, addr.Address
	}
	if m := displayAddr.FindStringSubmatch(from); m != nil {
		return strings.TrimSpace(strings.ReplaceAll(m[1], `"`, "")), strings.TrimSpace(m[2])
	}
	return from, from
}

// Known sender categories.
const (
	CategoryShopee  = "shopee"
	CategoryLazada  = "lazada"
	CategoryGoogle  = "google"
	CategoryPartner = "welovename123"
)

// Category classifies a sender by its address for display. It returns "" for
// senders outside the known categories.
func Category(from string) string {
	_, addr := ParseSender(from)
	addr = strings.ToLower(addr)
	for _, c := range []string{CategoryShopee, CategoryLazada, CategoryGoogle, CategoryPartner} {
		if strings.Contains(addr, c) {
			return c
		}
	}
	return ""
}
