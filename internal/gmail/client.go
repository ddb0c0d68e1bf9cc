package gmail

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"time"

	"golang.org/x/oauth2"
	"golang.org/x/time/rate"
	gmail "google.golang.org/api/gmail/v1"
	"google.golang.org/api/googleapi"
	"google.golang.org/api/option"

	"github.com/teemow/inboxmerge/internal/instrumentation"
	"github.com/teemow/inboxmerge/internal/logging"
)

const (
	userMe     = "me"
	inboxQuery = "in:inbox"
)

// APIError is a provider call that failed with an HTTP status.
type APIError struct {
	Op     string
	Status int
	Err    error
}

func (e *APIError) Error() string {
	if e.Status != 0 {
		return fmt.Sprintf("gmail %s: status %d: %v", e.Op, e.Status, e.Err)
	}
	return fmt.Sprintf("gmail %s: %v", e.Op, e.Err)
}

func (e *APIError) Unwrap() error { return e.Err }

// Client is a stateless Gmail client. Every call carries the bearer token
// of the account it acts for.
type Client struct {
	endpoint   string
	httpClient *http.Client
	limiter    *rate.Limiter
	metrics    *instrumentation.Metrics
	logger     *slog.Logger
}

// Option configures a Client.
type Option func(*Client)

// WithEndpoint points the client at a different API base URL (tests, proxies).
func WithEndpoint(endpoint string) Option {
	return func(c *Client) { c.endpoint = endpoint }
}

// WithHTTPClient sets the base HTTP client. Its Timeout bounds every call.
func WithHTTPClient(hc *http.Client) Option {
	return func(c *Client) { c.httpClient = hc }
}

// WithRateLimit paces provider calls to qps. Zero or less disables pacing.
func WithRateLimit(qps float64) Option {
	return func(c *Client) {
		if qps > 0 {
			burst := int(qps)
			if burst < 1 {
				burst = 1
			}
			c.limiter = rate.NewLimiter(rate.Limit(qps), burst)
		}
	}
}

// WithMetrics records provider call metrics.
func WithMetrics(m *instrumentation.Metrics) Option {
	return func(c *Client) { c.metrics = m }
}

// WithLogger sets the logger.
func WithLogger(logger *slog.Logger) Option {
	return func(c *Client) { c.logger = logger }
}

// NewClient returns a Client. Without WithHTTPClient a 30s timeout client is used.
func NewClient(opts ...Option) *Client {
	c := &Client{}
	for _, opt := range opts {
		opt(c)
	}
	if c.httpClient == nil {
		c.httpClient = &http.Client{Timeout: 30 * time.Second}
	}
	c.logger = logging.WithComponent(logging.OrDiscard(c.logger), "gmail")
	return c
}

// service builds a Gmail service authorized with token.
func (c *Client) service(ctx context.Context, token string) (*gmail.Service, error) {
	if token == "" {
		return nil, &APIError{Op: "auth", Err: errors.New("empty access token")}
	}
	ts := oauth2.StaticTokenSource(&oauth2.Token{AccessToken: token, TokenType: "Bearer"})
	hc := oauth2.NewClient(context.WithValue(ctx, oauth2.HTTPClient, c.httpClient), ts)
	hc.Timeout = c.httpClient.Timeout

	opts := []option.ClientOption{option.WithHTTPClient(hc)}
	if c.endpoint != "" {
		opts = append(opts, option.WithEndpoint(c.endpoint))
	}
	svc, err := gmail.NewService(ctx, opts...)
	if err != nil {
		return nil, fmt.Errorf("failed to create Gmail service: %w", err)
	}
	return svc, nil
}

// call runs fn with pacing, tracing and metrics, and normalizes the error.
func (c *Client) call(ctx context.Context, op string, fn func(ctx context.Context) error) error {
	if c.limiter != nil {
		if err := c.limiter.Wait(ctx); err != nil {
			return &APIError{Op: op, Err: err}
		}
	}

	ctx, span := instrumentation.StartAPISpan(ctx, instrumentation.ServiceGmail, op)
	start := time.Now()
	err := fn(ctx)
	status := instrumentation.StatusSuccess
	if err != nil {
		status = instrumentation.StatusError
		err = wrapAPIError(op, err)
	}
	c.metrics.RecordAPIOperation(ctx, instrumentation.ServiceGmail, op, status, time.Since(start))
	instrumentation.EndSpan(span, err)
	return err
}

func wrapAPIError(op string, err error) error {
	var apiErr *APIError
	if errors.As(err, &apiErr) {
		return err
	}
	var gerr *googleapi.Error
	if errors.As(err, &gerr) {
		return &APIError{Op: op, Status: gerr.Code, Err: err}
	}
	return &APIError{Op: op, Err: err}
}

// GetProfile returns the mailbox profile of the token's account.
func (c *Client) GetProfile(ctx context.Context, token string) (*Profile, error) {
	svc, err := c.service(ctx, token)
	if err != nil {
		return nil, err
	}
	var p *gmail.Profile
	err = c.call(ctx, "profile", func(ctx context.Context) error {
		var err error
		p, err = svc.Users.GetProfile(userMe).Context(ctx).Do()
		return err
	})
	if err != nil {
		return nil, err
	}
	return &Profile{
		EmailAddress:  p.EmailAddress,
		MessagesTotal: p.MessagesTotal,
		ThreadsTotal:  p.ThreadsTotal,
	}, nil
}

// ListMessageIDs returns up to maxResults inbox message ids, newest first as
// the provider orders them.
func (c *Client) ListMessageIDs(ctx context.Context, token string, maxResults int64) ([]string, error) {
	svc, err := c.service(ctx, token)
	if err != nil {
		return nil, err
	}
	var res *gmail.ListMessagesResponse
	err = c.call(ctx, "list", func(ctx context.Context) error {
		var err error
		res, err = svc.Users.Messages.List(userMe).Q(inboxQuery).MaxResults(maxResults).Context(ctx).Do()
		return err
	})
	if err != nil {
		return nil, err
	}
	ids := make([]string, 0, len(res.Messages))
	for _, m := range res.Messages {
		if m != nil && m.Id != "" {
			ids = append(ids, m.Id)
		}
	}
	return ids, nil
}

// GetMessageDetail fetches one message and normalizes its headers.
func (c *Client) GetMessageDetail(ctx context.Context, token, id string) (*Message, error) {
	svc, err := c.service(ctx, token)
	if err != nil {
		return nil, err
	}
	var m *gmail.Message
	err = c.call(ctx, "get", func(ctx context.Context) error {
		var err error
		m, err = svc.Users.Messages.Get(userMe, id).
			Format("metadata").
			MetadataHeaders("Subject", "From", "Date").
			Context(ctx).
			Do()
		return err
	})
	if err != nil {
		return nil, err
	}
	msg := messageFromAPI(m)
	return &msg, nil
}

// SendMessage sends a plain-text message from the token's account.
// It reports false with the cause on any failure.
func (c *Client) SendMessage(ctx context.Context, token, to, subject, body string) (bool, error) {
	if err := ValidateRecipient(to); err != nil {
		return false, &APIError{Op: "send", Err: err}
	}
	svc, err := c.service(ctx, token)
	if err != nil {
		return false, err
	}
	raw := EncodeRawMessage(OutgoingMessage{To: to, Subject: subject, Body: body})
	err = c.call(ctx, "send", func(ctx context.Context) error {
		_, err := svc.Users.Messages.Send(userMe, &gmail.Message{Raw: raw}).Context(ctx).Do()
		return err
	})
	if err != nil {
		c.logger.Warn("send failed", logging.UserHash(to), logging.Err(err))
		return false, err
	}
	return true, nil
}
