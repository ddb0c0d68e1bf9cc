package inbox

import (
	"context"
	"errors"
	"log/slog"
	"time"

	"github.com/teemow/inboxmerge/internal/logging"
	"github.com/teemow/inboxmerge/internal/token"
)

// DefaultRefreshInterval is how often the poller refreshes the feed.
const DefaultRefreshInterval = time.Hour

// AccountLister returns the accounts to refresh.
type AccountLister interface {
	ListAccounts(ctx context.Context) ([]token.Credential, error)
}

// Poller refreshes the feed on a fixed interval until its context ends.
type Poller struct {
	agg      *Aggregator
	accounts AccountLister
	logger   *slog.Logger
	onFeed   func(Feed)
}

// NewPoller returns a Poller. onFeed, when non-nil, is called after every
// successful refresh.
func NewPoller(agg *Aggregator, accounts AccountLister, logger *slog.Logger, onFeed func(Feed)) *Poller {
	return &Poller{
		agg:      agg,
		accounts: accounts,
		logger:   logging.WithComponent(logging.OrDiscard(logger), "poller"),
		onFeed:   onFeed,
	}
}

// Start runs a refresh immediately and then every interval. It blocks until
// ctx is cancelled.
func (p *Poller) Start(ctx context.Context, interval time.Duration) {
	if interval <= 0 {
		interval = DefaultRefreshInterval
	}
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	p.logger.Info("auto-refresh started", slog.Duration("interval", interval))
	p.run(ctx)

	for {
		select {
		case <-ctx.Done():
			p.logger.Info("auto-refresh stopped")
			return
		case <-ticker.C:
			p.run(ctx)
		}
	}
}

func (p *Poller) run(ctx context.Context) {
	if err := p.RunOnce(ctx); err != nil {
		if errors.Is(err, ErrRefreshInProgress) || ctx.Err() != nil {
			p.logger.Debug("skipping refresh", logging.Err(err))
			return
		}
		p.logger.Error("refresh failed", logging.Err(err))
	}
}

// RunOnce lists the valid accounts and refreshes the feed once.
func (p *Poller) RunOnce(ctx context.Context) error {
	accounts, err := p.accounts.ListAccounts(ctx)
	if err != nil {
		return err
	}
	feed, err := p.agg.RefreshAll(ctx, accounts)
	if err != nil {
		return err
	}
	if p.onFeed != nil {
		p.onFeed(feed)
	}
	return nil
}
