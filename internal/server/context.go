package server

import (
	"context"
	"fmt"
	"log/slog"
	"net/http"
	"sync"

	"github.com/teemow/inboxmerge/internal/compose"
	"github.com/teemow/inboxmerge/internal/config"
	"github.com/teemow/inboxmerge/internal/filter"
	"github.com/teemow/inboxmerge/internal/gmail"
	"github.com/teemow/inboxmerge/internal/google"
	"github.com/teemow/inboxmerge/internal/inbox"
	"github.com/teemow/inboxmerge/internal/instrumentation"
	"github.com/teemow/inboxmerge/internal/kv"
	"github.com/teemow/inboxmerge/internal/logging"
	"github.com/teemow/inboxmerge/internal/seen"
	"github.com/teemow/inboxmerge/internal/sendgate"
	"github.com/teemow/inboxmerge/internal/token"
)

// ServerContext holds the services shared by every surface: CLI, HTTP API
// and MCP tools. It is built once per process.
type ServerContext struct {
	ctx    context.Context
	cancel context.CancelFunc

	cfg      *config.Config
	kv       kv.Store
	tokens   *token.Store
	flow     *google.Flow
	mail     *gmail.Client
	agg      *inbox.Aggregator
	compose  *compose.Service
	gate     *sendgate.Gate
	seen     *seen.Tracker
	provider *instrumentation.Provider
	logger   *slog.Logger

	mu       sync.RWMutex
	shutdown bool
}

// Option configures a ServerContext.
type Option func(*options)

type options struct {
	provider   *instrumentation.Provider
	logger     *slog.Logger
	httpClient *http.Client
}

// WithProvider sets the instrumentation provider.
func WithProvider(p *instrumentation.Provider) Option {
	return func(o *options) { o.provider = p }
}

// WithLogger sets the logger shared by all services.
func WithLogger(logger *slog.Logger) Option {
	return func(o *options) { o.logger = logger }
}

// WithHTTPClient sets the base client for provider calls. Its timeout is
// replaced by gmail.request_timeout.
func WithHTTPClient(hc *http.Client) Option {
	return func(o *options) { o.httpClient = hc }
}

// NewServerContext wires the services on top of store. The context owns store
// and closes it on Shutdown.
func NewServerContext(ctx context.Context, cfg *config.Config, store kv.Store, opts ...Option) (*ServerContext, error) {
	o := &options{}
	for _, opt := range opts {
		opt(o)
	}
	logger := logging.OrDiscard(o.logger)
	metrics := o.provider.Metrics()

	loc, err := cfg.Location()
	if err != nil {
		return nil, fmt.Errorf("failed to load timezone: %w", err)
	}

	hc := &http.Client{}
	if o.httpClient != nil {
		copied := *o.httpClient
		hc = &copied
	}
	hc.Timeout = cfg.Gmail.RequestTimeout

	shutdownCtx, cancel := context.WithCancel(ctx)

	tokens := token.NewStore(store, token.WithLogger(logger))
	gate := sendgate.New(store, sendgate.WithLocation(loc), sendgate.WithLogger(logger))

	mailOpts := []gmail.Option{
		gmail.WithHTTPClient(hc),
		gmail.WithRateLimit(cfg.Gmail.QPS),
		gmail.WithMetrics(metrics),
		gmail.WithLogger(logger),
	}
	if cfg.Gmail.Endpoint != "" {
		mailOpts = append(mailOpts, gmail.WithEndpoint(cfg.Gmail.Endpoint))
	}
	mail := gmail.NewClient(mailOpts...)

	agg := inbox.NewAggregator(mail, filter.NewAllowList(cfg.Filter.Senders),
		inbox.WithOptions(inbox.Options{
			PageSize:   cfg.Gmail.PageSize,
			BatchSize:  cfg.Gmail.BatchSize,
			BatchDelay: cfg.Gmail.BatchDelay,
		}),
		inbox.WithMetrics(metrics),
		inbox.WithLogger(logger))

	return &ServerContext{
		ctx:    shutdownCtx,
		cancel: cancel,
		cfg:    cfg,
		kv:     store,
		tokens: tokens,
		flow: google.NewFlow(cfg.OAuth, tokens,
			google.WithHTTPClient(hc),
			google.WithMetrics(metrics),
			google.WithLogger(logger)),
		mail:     mail,
		agg:      agg,
		compose:  compose.NewService(mail, tokens, gate, metrics, logger),
		gate:     gate,
		seen:     seen.NewTracker(),
		provider: o.provider,
		logger:   logger,
	}, nil
}

// Context returns the server context
func (sc *ServerContext) Context() context.Context { return sc.ctx }

// Config returns the loaded configuration.
func (sc *ServerContext) Config() *config.Config { return sc.cfg }

// Tokens returns the credential store.
func (sc *ServerContext) Tokens() *token.Store { return sc.tokens }

// Flow returns the account-linking flow.
func (sc *ServerContext) Flow() *google.Flow { return sc.flow }

// Mail returns the Gmail client.
func (sc *ServerContext) Mail() *gmail.Client { return sc.mail }

// Aggregator returns the inbox aggregator.
func (sc *ServerContext) Aggregator() *inbox.Aggregator { return sc.agg }

// Compose returns the compose service.
func (sc *ServerContext) Compose() *compose.Service { return sc.compose }

// Seen returns the seen-message tracker.
func (sc *ServerContext) Seen() *seen.Tracker { return sc.seen }

// Metrics returns the metrics recorder; it is never nil.
func (sc *ServerContext) Metrics() *instrumentation.Metrics { return sc.provider.Metrics() }

// Logger returns the shared logger.
func (sc *ServerContext) Logger() *slog.Logger { return sc.logger }

// Refresh refreshes the feed from the currently valid accounts.
func (sc *ServerContext) Refresh(ctx context.Context) (inbox.Feed, error) {
	accounts, err := sc.tokens.ListAccounts(ctx)
	if err != nil {
		return inbox.Feed{}, err
	}
	return sc.agg.RefreshAll(ctx, accounts)
}

// NewPoller returns a poller refreshing this context's feed.
func (sc *ServerContext) NewPoller(onFeed func(inbox.Feed)) *inbox.Poller {
	return inbox.NewPoller(sc.agg, sc.tokens, sc.logger, onFeed)
}

// Ping checks that the storage backend answers.
func (sc *ServerContext) Ping(ctx context.Context) error {
	_, _, err := sc.tokens.MainCredential(ctx)
	return err
}

// IsShutdown returns whether the server has been shutdown
func (sc *ServerContext) IsShutdown() bool {
	sc.mu.RLock()
	defer sc.mu.RUnlock()
	return sc.shutdown
}

// Shutdown cancels the context and closes storage. It is safe to call twice.
func (sc *ServerContext) Shutdown() error {
	sc.mu.Lock()
	defer sc.mu.Unlock()

	if sc.shutdown {
		return nil
	}

	sc.shutdown = true
	sc.cancel()
	if err := sc.kv.Close(); err != nil {
		return fmt.Errorf("failed to close storage: %w", err)
	}
	return nil
}
