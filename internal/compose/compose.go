// Package compose sends one message from the main account to a set of
// linked accounts, at most once per local calendar day.
package compose

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"sync"
	"time"

	"github.com/teemow/inboxmerge/internal/batch"
	"github.com/teemow/inboxmerge/internal/gmail"
	"github.com/teemow/inboxmerge/internal/instrumentation"
	"github.com/teemow/inboxmerge/internal/logging"
	"github.com/teemow/inboxmerge/internal/token"
)

var (
	// ErrNoRecipients is returned when a draft has no recipients.
	ErrNoRecipients = errors.New("at least one recipient is required")
	// ErrInvalidRecipient is returned when an address cannot be used in a header.
	ErrInvalidRecipient = errors.New("invalid recipient")
	// ErrDailyLimitReached is returned when a send already succeeded today.
	ErrDailyLimitReached = errors.New("only one send per day is allowed")
	// ErrNotAuthenticated is returned when there is no valid main account.
	ErrNotAuthenticated = errors.New("main account is not signed in")
	// ErrAllFailed is returned when no recipient could be reached.
	ErrAllFailed = errors.New("sending failed for every recipient")
)

// Sender sends a plain-text message with an access token.
type Sender interface {
	SendMessage(ctx context.Context, accessToken, to, subject, body string) (bool, error)
}

// Credentials exposes the linked accounts.
type Credentials interface {
	MainCredential(ctx context.Context) (token.Credential, bool, error)
	ListAccounts(ctx context.Context) ([]token.Credential, error)
}

// Gate enforces the daily send limit.
type Gate interface {
	CanSendToday(ctx context.Context) (bool, error)
	RecordSend(ctx context.Context) error
	LastSend(ctx context.Context) (time.Time, bool, error)
}

// Draft is a message to send.
type Draft struct {
	Recipients []string `json:"recipients"`
	Subject    string   `json:"subject"`
	Body       string   `json:"body"`
}

// Status describes whether a send is currently possible.
type Status struct {
	CanSend  bool       `json:"can_send"`
	LastSent *time.Time `json:"last_sent,omitempty"`
}

// Service sends drafts. Sends are serialized so two callers cannot both pass
// the daily gate.
type Service struct {
	sender  Sender
	creds   Credentials
	gate    Gate
	metrics *instrumentation.Metrics
	logger  *slog.Logger

	mu sync.Mutex
}

// NewService returns a Service.
func NewService(sender Sender, creds Credentials, gate Gate, metrics *instrumentation.Metrics, logger *slog.Logger) *Service {
	return &Service{
		sender:  sender,
		creds:   creds,
		gate:    gate,
		metrics: metrics,
		logger:  logging.WithComponent(logging.OrDiscard(logger), "compose"),
	}
}

// Send delivers d to each recipient in turn from the main account. The daily
// gate is recorded only when at least one recipient succeeded.
func (s *Service) Send(ctx context.Context, d Draft) (batch.Report, error) {
	recipients := cleanRecipients(d.Recipients)
	if len(recipients) == 0 {
		return batch.Report{}, ErrNoRecipients
	}
	for _, to := range recipients {
		if err := gmail.ValidateRecipient(to); err != nil {
			return batch.Report{}, fmt.Errorf("%w %q: %v", ErrInvalidRecipient, to, err)
		}
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	ok, err := s.gate.CanSendToday(ctx)
	if err != nil {
		return batch.Report{}, err
	}
	if !ok {
		s.metrics.RecordSendBlocked(ctx)
		return batch.Report{}, ErrDailyLimitReached
	}

	main, ok, err := s.creds.MainCredential(ctx)
	if err != nil {
		return batch.Report{}, err
	}
	if !ok {
		return batch.Report{}, ErrNotAuthenticated
	}

	results := batch.Process(ctx, recipients, func(ctx context.Context, to string) (string, error) {
		sent, err := s.sender.SendMessage(ctx, main.AccessToken, to, d.Subject, d.Body)
		if err == nil && !sent {
			err = errors.New("send was not accepted")
		}
		if err != nil {
			s.metrics.RecordSendAttempt(ctx, instrumentation.StatusError)
			return "", err
		}
		s.metrics.RecordSendAttempt(ctx, instrumentation.StatusSuccess)
		return "sent", nil
	})
	report := batch.Summarize(results)

	s.logger.Info("compose finished",
		logging.UserHash(main.Email),
		slog.Int("successful", report.Successful),
		slog.Int("failed", report.Failed))

	if report.Successful == 0 {
		return report, ErrAllFailed
	}
	if err := s.gate.RecordSend(ctx); err != nil {
		return report, fmt.Errorf("sent %d of %d but could not record it: %w", report.Successful, report.Total, err)
	}
	return report, nil
}

// Recipients returns the emails of the linked accounts.
func (s *Service) Recipients(ctx context.Context) ([]string, error) {
	accounts, err := s.creds.ListAccounts(ctx)
	if err != nil {
		return nil, err
	}
	out := make([]string, 0, len(accounts))
	for _, a := range accounts {
		out = append(out, a.Email)
	}
	return out, nil
}

// Status reports whether a send is allowed now and when the last one happened.
func (s *Service) Status(ctx context.Context) (Status, error) {
	can, err := s.gate.CanSendToday(ctx)
	if err != nil {
		return Status{}, err
	}
	st := Status{CanSend: can}
	last, ok, err := s.gate.LastSend(ctx)
	if err != nil {
		return Status{}, err
	}
	if ok {
		st.LastSent = &last
	}
	return st, nil
}

// cleanRecipients trims and drops empty and duplicate addresses.
func cleanRecipients(in []string) []string {
	seen := make(map[string]bool, len(in))
	var out []string
	for _, r := range in {
		r = strings.TrimSpace(r)
		key := strings.ToLower(r)
		if r == "" || seen[key] {
			continue
		}
		seen[key] = true
		out = append(out, r)
	}
	return out
}
