// Package sendgate limits composing to one successful send per local
// calendar day.
package sendgate

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strconv"
	"strings"
	"time"

	"github.com/teemow/inboxmerge/internal/kv"
	"github.com/teemow/inboxmerge/internal/logging"
)

// KeyLastSent holds the epoch-ms time of the last successful send.
const KeyLastSent = "inboxmerge_last_sent"

// Gate decides whether a send is allowed today.
type Gate struct {
	store  kv.Store
	now    func() time.Time
	loc    *time.Location
	logger *slog.Logger
}

// Option configures a Gate.
type Option func(*Gate)

// WithClock replaces time.Now.
func WithClock(now func() time.Time) Option {
	return func(g *Gate) { g.now = now }
}

// WithLocation sets the time zone that defines a calendar day.
func WithLocation(loc *time.Location) Option {
	return func(g *Gate) {
		if loc != nil {
			g.loc = loc
		}
	}
}

// WithLogger sets the logger.
func WithLogger(logger *slog.Logger) Option {
	return func(g *Gate) { g.logger = logger }
}

// New returns a Gate persisting to store.
func New(store kv.Store, opts ...Option) *Gate {
	g := &Gate{store: store, now: time.Now, loc: time.Local}
	for _, opt := range opts {
		opt(g)
	}
	g.logger = logging.WithComponent(logging.OrDiscard(g.logger), "sendgate")
	return g
}

// LastSend returns the time of the last successful send. ok is false when
// nothing was recorded or the stored value is unreadable.
func (g *Gate) LastSend(ctx context.Context) (time.Time, bool, error) {
	data, err := g.store.Get(ctx, KeyLastSent)
	if errors.Is(err, kv.ErrNotFound) {
		return time.Time{}, false, nil
	}
	if err != nil {
		return time.Time{}, false, fmt.Errorf("failed to read last send: %w", err)
	}

	ms, err := strconv.ParseInt(strings.Trim(strings.TrimSpace(string(data)), `"`), 10, 64)
	if err != nil {
		g.logger.Warn("ignoring corrupt last send value", logging.Err(err))
		return time.Time{}, false, nil
	}
	return time.UnixMilli(ms).In(g.loc), true, nil
}

// CanSendToday reports whether no send has been recorded on today's local date.
func (g *Gate) CanSendToday(ctx context.Context) (bool, error) {
	last, ok, err := g.LastSend(ctx)
	if err != nil {
		return false, err
	}
	if !ok {
		return true, nil
	}
	return !sameDay(last, g.now().In(g.loc)), nil
}

// RecordSend stores now as the last successful send.
func (g *Gate) RecordSend(ctx context.Context) error {
	ms := g.now().UnixMilli()
	if err := g.store.Set(ctx, KeyLastSent, []byte(strconv.FormatInt(ms, 10))); err != nil {
		return fmt.Errorf("failed to record send: %w", err)
	}
	return nil
}

func sameDay(a, b time.Time) bool {
	ay, am, ad := a.Date()
	by, bm, bd := b.Date()
	return ay == by && am == bm && ad == bd
}
