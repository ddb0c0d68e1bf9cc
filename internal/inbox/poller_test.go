package inbox

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/teemow/inboxmerge/internal/token"
)

type staticAccounts struct {
	accounts []token.Credential
	err      error
}

func (s staticAccounts) ListAccounts(context.Context) ([]token.Credential, error) {
	return s.accounts, s.err
}

func TestPoller_RunOnce(t *testing.T) {
	client := newFakeMail()
	client.add("tok", msg("m1", "x@shopee.co.th", 1))
	agg := newTestAggregator(client, &sleepRecorder{})

	var got []Feed
	p := NewPoller(agg, staticAccounts{accounts: []token.Credential{{Email: "a@example.com", AccessToken: "tok"}}}, nil,
		func(f Feed) { got = append(got, f) })

	require.NoError(t, p.RunOnce(context.Background()))
	require.Len(t, got, 1)
	assert.Len(t, got[0].Messages, 1)
}

func TestPoller_RunOnce_ListError(t *testing.T) {
	agg := newTestAggregator(newFakeMail(), &sleepRecorder{})
	p := NewPoller(agg, staticAccounts{err: errors.New("storage down")}, nil, nil)

	assert.EqualError(t, p.RunOnce(context.Background()), "storage down")
}

func TestPoller_StartRefreshesImmediatelyAndStops(t *testing.T) {
	client := newFakeMail()
	client.add("tok", msg("m1", "x@shopee.co.th", 1))
	agg := newTestAggregator(client, &sleepRecorder{})

	var mu sync.Mutex
	refreshes := 0
	first := make(chan struct{})
	p := NewPoller(agg, staticAccounts{accounts: []token.Credential{{Email: "a@example.com", AccessToken: "tok"}}}, nil,
		func(Feed) {
			mu.Lock()
			defer mu.Unlock()
			refreshes++
			if refreshes == 1 {
				close(first)
			}
		})

	ctx, cancel := context.WithCancel(context.Background())
	stopped := make(chan struct{})
	go func() {
		p.Start(ctx, time.Hour)
		close(stopped)
	}()

	select {
	case <-first:
	case <-time.After(5 * time.Second):
		t.Fatal("first refresh did not run")
	}
	cancel()

	select {
	case <-stopped:
	case <-time.After(5 * time.Second):
		t.Fatal("poller did not stop")
	}
	mu.Lock()
	defer mu.Unlock()
	assert.Equal(t, 1, refreshes)
}
