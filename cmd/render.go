package cmd

import (
	"fmt"
	"html"
	"io"
	"strings"
	"time"
	"unicode"
	"unicode/utf8"

	"github.com/charmbracelet/lipgloss"

	"github.com/teemow/inboxmerge/internal/filter"
	"github.com/teemow/inboxmerge/internal/inbox"
)

var (
	subjectStyle = lipgloss.NewStyle().Bold(true)
	newStyle     = lipgloss.NewStyle().Bold(true).Foreground(lipgloss.Color("2"))
	dateStyle    = lipgloss.NewStyle().Foreground(lipgloss.Color("241"))
	senderStyle  = lipgloss.NewStyle().Foreground(lipgloss.Color("4"))
	snippetStyle = lipgloss.NewStyle().Foreground(lipgloss.Color("250")).PaddingLeft(3)
	accountStyle = lipgloss.NewStyle().Foreground(lipgloss.Color("241")).PaddingLeft(3)
	footerStyle  = lipgloss.NewStyle().Foreground(lipgloss.Color("241")).PaddingTop(1)
	errorStyle   = lipgloss.NewStyle().Foreground(lipgloss.Color("1"))
)

var categoryIcons = map[string]string{
	filter.CategoryShopee:  "🛒",
	filter.CategoryLazada:  "🛍️",
	filter.CategoryGoogle:  "🔍",
	filter.CategoryPartner: "💌",
}

// senderIcon returns the category icon, or the sender's initial.
func senderIcon(from string) string {
	if icon, ok := categoryIcons[filter.Category(from)]; ok {
		return icon
	}
	name, _ := filter.ParseSender(from)
	r, _ := utf8.DecodeRuneInString(strings.TrimSpace(name))
	if r == utf8.RuneError {
		return "📧"
	}
	return string(unicode.ToUpper(r))
}

// formatDate renders a receive time relative to now: the clock time for
// messages under a day old, then "Yesterday", "N days ago" up to a week,
// then the date.
func formatDate(epochMs int64, now time.Time, loc *time.Location) string {
	t := time.UnixMilli(epochMs).In(loc)
	days := int(now.Sub(t) / (24 * time.Hour))
	switch {
	case days <= 0:
		return t.Format("15:04")
	case days == 1:
		return "Yesterday"
	case days < 7:
		return fmt.Sprintf("%d days ago", days)
	default:
		return t.Format("2006-01-02")
	}
}

// renderFeed writes msgs as cards, newest first as given. isNew marks messages
// not shown before.
func renderFeed(w io.Writer, feed inbox.Feed, sender string, isNew map[string]bool, now time.Time, loc *time.Location) {
	msgs := filter.BySender(feed.Messages, sender)
	if len(msgs) == 0 {
		fmt.Fprintln(w, dateStyle.Render("No messages from the configured senders."))
	}

	for _, m := range msgs {
		header := subjectStyle.Render(m.Subject)
		if isNew[m.ID] {
			header = newStyle.Render("NEW") + " " + header
		}
		fmt.Fprintf(w, "%s  %s\n", header, dateStyle.Render(formatDate(m.ReceivedEpochMs, now, loc)))

		name, address := filter.ParseSender(m.Sender)
		fmt.Fprintf(w, "%s %s\n", senderIcon(m.Sender), senderStyle.Render(fmt.Sprintf("%s <%s>", name, address)))
		if snippet := html.UnescapeString(m.Snippet); snippet != "" {
			fmt.Fprintln(w, snippetStyle.Render(snippet))
		}
		fmt.Fprintln(w, accountStyle.Render("📧 "+m.OwnerAccount))
		fmt.Fprintln(w)
	}

	for _, acc := range feed.Accounts {
		if acc.Error != "" {
			fmt.Fprintln(w, errorStyle.Render(fmt.Sprintf("%s: %s", acc.Email, acc.Error)))
		}
	}

	fresh := 0
	for _, m := range msgs {
		if isNew[m.ID] {
			fresh++
		}
	}
	fmt.Fprintln(w, footerStyle.Render(fmt.Sprintf("%d messages, %d new, %d accounts, updated %s",
		len(msgs), fresh, len(feed.Accounts), feed.FinishedAt.In(loc).Format("15:04:05"))))
}
