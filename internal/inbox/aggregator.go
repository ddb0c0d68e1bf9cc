package inbox

import (
	"cmp"
	"context"
	"errors"
	"log/slog"
	"slices"
	"sync"
	"time"

	"github.com/google/uuid"
	"go.opentelemetry.io/otel/attribute"
	"golang.org/x/sync/errgroup"

	"github.com/teemow/inboxmerge/internal/batch"
	"github.com/teemow/inboxmerge/internal/filter"
	"github.com/teemow/inboxmerge/internal/gmail"
	"github.com/teemow/inboxmerge/internal/instrumentation"
	"github.com/teemow/inboxmerge/internal/logging"
	"github.com/teemow/inboxmerge/internal/token"
)

// ErrRefreshInProgress is returned when a refresh is requested while another
// one is running.
var ErrRefreshInProgress = errors.New("refresh already in progress")

// Defaults for Options fields left at zero.
const (
	DefaultPageSize   = 50
	DefaultBatchSize  = 10
	DefaultBatchDelay = 100 * time.Millisecond
)

// MailClient is the subset of the Gmail client the aggregator needs.
type MailClient interface {
	ListMessageIDs(ctx context.Context, token string, maxResults int64) ([]string, error)
	GetMessageDetail(ctx context.Context, token, id string) (*gmail.Message, error)
}

// Options tune fetching.
type Options struct {
	PageSize   int
	BatchSize  int
	BatchDelay time.Duration
}

// AccountResult describes one account's part of a refresh.
type AccountResult struct {
	Email   string `json:"email"`
	Fetched int    `json:"fetched"`
	Kept    int    `json:"kept"`
	Error   string `json:"error,omitempty"`
}

// Feed is the merged inbox produced by one refresh.
type Feed struct {
	RefreshID  string          `json:"refresh_id"`
	StartedAt  time.Time       `json:"started_at"`
	FinishedAt time.Time       `json:"finished_at"`
	Messages   []gmail.Message `json:"messages"`
	Accounts   []AccountResult `json:"accounts"`
}

// Aggregator fetches and merges inboxes. Refreshes never overlap.
type Aggregator struct {
	client  MailClient
	allow   *filter.AllowList
	opts    Options
	metrics *instrumentation.Metrics
	logger  *slog.Logger
	now     func() time.Time
	sleep   func(ctx context.Context, d time.Duration) error

	refreshMu sync.Mutex

	feedMu sync.RWMutex
	feed   Feed
}

// Option configures an Aggregator.
type Option func(*Aggregator)

// WithOptions sets fetch tuning. Zero fields keep their defaults.
func WithOptions(o Options) Option {
	return func(a *Aggregator) {
		if o.PageSize > 0 {
			a.opts.PageSize = o.PageSize
		}
		if o.BatchSize > 0 {
			a.opts.BatchSize = o.BatchSize
		}
		if o.BatchDelay > 0 {
			a.opts.BatchDelay = o.BatchDelay
		}
	}
}

// WithMetrics records refresh metrics.
func WithMetrics(m *instrumentation.Metrics) Option {
	return func(a *Aggregator) { a.metrics = m }
}

// WithLogger sets the logger.
func WithLogger(logger *slog.Logger) Option {
	return func(a *Aggregator) { a.logger = logger }
}

// WithClock replaces time.Now for feed timestamps.
func WithClock(now func() time.Time) Option {
	return func(a *Aggregator) { a.now = now }
}

// withSleep replaces the pause between batches.
func withSleep(sleep func(ctx context.Context, d time.Duration) error) Option {
	return func(a *Aggregator) { a.sleep = sleep }
}

// NewAggregator returns an Aggregator that keeps messages allowed by allow.
func NewAggregator(client MailClient, allow *filter.AllowList, opts ...Option) *Aggregator {
	a := &Aggregator{
		client: client,
		allow:  allow,
		opts: Options{
			PageSize:   DefaultPageSize,
			BatchSize:  DefaultBatchSize,
			BatchDelay: DefaultBatchDelay,
		},
		now:   time.Now,
		sleep: sleepContext,
	}
	for _, opt := range opts {
		opt(a)
	}
	a.logger = logging.WithComponent(logging.OrDiscard(a.logger), "inbox")
	return a
}

func sleepContext(ctx context.Context, d time.Duration) error {
	timer := time.NewTimer(d)
	defer timer.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-timer.C:
		return nil
	}
}

// FetchAccountInbox returns the allowed inbox messages of one account,
// stamped with ownerEmail, in provider order. A listing failure yields no
// messages and is reported in the result. Failed detail fetches are dropped.
func (a *Aggregator) FetchAccountInbox(ctx context.Context, accessToken, ownerEmail string) ([]gmail.Message, AccountResult) {
	logger := logging.WithAccount(a.logger, ownerEmail)
	result := AccountResult{Email: ownerEmail}

	ids, err := a.client.ListMessageIDs(ctx, accessToken, int64(a.opts.PageSize))
	if err != nil {
		logger.Warn("failed to list inbox", logging.Err(err))
		result.Error = err.Error()
		return nil, result
	}

	var fetched []gmail.Message
	chunks := batch.Chunk(ids, a.opts.BatchSize)
	for i, chunk := range chunks {
		fetched = append(fetched, a.fetchBatch(ctx, logger, accessToken, chunk)...)

		if i < len(chunks)-1 {
			if err := a.sleep(ctx, a.opts.BatchDelay); err != nil {
				logger.Warn("inbox fetch interrupted", logging.Batch(i), logging.Err(err))
				result.Error = err.Error()
				break
			}
		}
	}

	kept := a.allow.Apply(fetched)
	for i := range kept {
		kept[i].OwnerAccount = ownerEmail
	}

	result.Fetched = len(fetched)
	result.Kept = len(kept)
	a.metrics.RecordMessages(ctx, instrumentation.StageFetched, len(fetched))
	a.metrics.RecordMessages(ctx, instrumentation.StageKept, len(kept))
	a.metrics.RecordMessages(ctx, instrumentation.StageDropped, len(fetched)-len(kept))
	logger.Debug("account inbox fetched",
		slog.Int("listed", len(ids)),
		slog.Int("fetched", len(fetched)),
		slog.Int("kept", len(kept)))
	return kept, result
}

// fetchBatch fetches ids concurrently and returns the successes in id order.
func (a *Aggregator) fetchBatch(ctx context.Context, logger *slog.Logger, accessToken string, ids []string) []gmail.Message {
	details := make([]*gmail.Message, len(ids))

	var g errgroup.Group
	for i, id := range ids {
		g.Go(func() error {
			msg, err := a.client.GetMessageDetail(ctx, accessToken, id)
			if err != nil {
				logger.Debug("dropping message", slog.String("message_id", id), logging.Err(err))
				return nil
			}
			details[i] = msg
			return nil
		})
	}
	_ = g.Wait()

	out := make([]gmail.Message, 0, len(ids))
	for _, d := range details {
		if d != nil {
			out = append(out, *d)
		}
	}
	return out
}

// RefreshAll rebuilds the feed from accounts, in order, and stores it. It
// returns ErrRefreshInProgress without doing anything when a refresh is
// already running. When ctx ends mid-refresh the previous feed is kept and
// ctx's error is returned.
func (a *Aggregator) RefreshAll(ctx context.Context, accounts []token.Credential) (Feed, error) {
	if !a.refreshMu.TryLock() {
		a.metrics.RecordRefresh(ctx, instrumentation.StatusRejected, 0)
		return Feed{}, ErrRefreshInProgress
	}
	defer a.refreshMu.Unlock()

	feed := Feed{
		RefreshID: uuid.NewString(),
		StartedAt: a.now(),
		Messages:  []gmail.Message{},
		Accounts:  make([]AccountResult, 0, len(accounts)),
	}
	ctx, span := instrumentation.StartSpan(ctx, "inbox.refresh",
		attribute.String("refresh.id", feed.RefreshID),
		attribute.Int("refresh.accounts", len(accounts)))
	logger := a.logger.With(logging.RefreshID(feed.RefreshID))
	start := time.Now()

	failed := 0
	for _, acc := range accounts {
		msgs, res := a.FetchAccountInbox(ctx, acc.AccessToken, acc.Email)
		if res.Error != "" {
			failed++
		}
		feed.Messages = append(feed.Messages, msgs...)
		feed.Accounts = append(feed.Accounts, res)
	}

	if err := ctx.Err(); err != nil {
		a.metrics.RecordRefresh(ctx, instrumentation.StatusError, time.Since(start))
		instrumentation.EndSpan(span, err)
		logger.Warn("refresh interrupted, keeping previous feed", logging.Err(err))
		return Feed{}, err
	}

	slices.SortStableFunc(feed.Messages, func(x, y gmail.Message) int {
		return cmp.Compare(y.ReceivedEpochMs, x.ReceivedEpochMs)
	})
	feed.FinishedAt = a.now()

	a.feedMu.Lock()
	a.feed = feed
	a.feedMu.Unlock()

	status := instrumentation.StatusSuccess
	if failed > 0 && failed == len(accounts) {
		status = instrumentation.StatusError
	}
	a.metrics.RecordRefresh(ctx, status, time.Since(start))
	span.SetAttributes(attribute.Int("refresh.messages", len(feed.Messages)))
	instrumentation.EndSpan(span, nil)

	logger.Info("refresh completed",
		slog.Int("accounts", len(accounts)),
		slog.Int("failed_accounts", failed),
		slog.Int("messages", len(feed.Messages)),
		slog.Duration(logging.KeyDuration, time.Since(start)),
		logging.Status(status))
	return feed, nil
}

// Feed returns the last completed feed. It is empty before the first refresh.
func (a *Aggregator) Feed() Feed {
	a.feedMu.RLock()
	defer a.feedMu.RUnlock()
	f := a.feed
	f.Messages = slices.Clone(f.Messages)
	f.Accounts = slices.Clone(f.Accounts)
	return f
}
