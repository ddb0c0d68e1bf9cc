package sendgate

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/teemow/inboxmerge/internal/kv"
)

func TestGate(t *testing.T) {
	bangkok := time.FixedZone("ICT", 7*60*60)
	ctx := context.Background()

	tests := []struct {
		name     string
		lastSent time.Time
		now      time.Time
		want     bool
	}{
		{
			name:     "same local day",
			lastSent: time.Date(2026, 3, 10, 8, 0, 0, 0, bangkok),
			now:      time.Date(2026, 3, 10, 23, 59, 0, 0, bangkok),
			want:     false,
		},
		{
			name:     "next local day",
			lastSent: time.Date(2026, 3, 10, 23, 59, 0, 0, bangkok),
			now:      time.Date(2026, 3, 11, 0, 1, 0, 0, bangkok),
			want:     true,
		},
		{
			name:     "same UTC day but different local day",
			lastSent: time.Date(2026, 3, 10, 16, 30, 0, 0, time.UTC),
			now:      time.Date(2026, 3, 10, 17, 30, 0, 0, time.UTC),
			want:     true,
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			store := kv.NewMemoryStore()
			now := tt.lastSent
			g := New(store, WithLocation(bangkok), WithClock(func() time.Time { return now }))

			require.NoError(t, g.RecordSend(ctx))
			now = tt.now

			got, err := g.CanSendToday(ctx)
			require.NoError(t, err)
			assert.Equal(t, tt.want, got)
		})
	}
}

func TestGate_NeverSent(t *testing.T) {
	g := New(kv.NewMemoryStore())

	ok, err := g.CanSendToday(context.Background())
	require.NoError(t, err)
	assert.True(t, ok)

	_, sent, err := g.LastSend(context.Background())
	require.NoError(t, err)
	assert.False(t, sent)
}

func TestGate_CorruptValue(t *testing.T) {
	ctx := context.Background()
	store := kv.NewMemoryStore()
	require.NoError(t, store.Set(ctx, KeyLastSent, []byte("yesterday-ish")))

	g := New(store)
	ok, err := g.CanSendToday(ctx)
	require.NoError(t, err)
	assert.True(t, ok)
}

func TestGate_LastSend(t *testing.T) {
	ctx := context.Background()
	store := kv.NewMemoryStore()
	require.NoError(t, store.Set(ctx, KeyLastSent, []byte(`"1700000000000"`)))

	g := New(store, WithLocation(time.UTC))
	last, ok, err := g.LastSend(ctx)
	require.NoError(t, err)
	require.True(t, ok)
	assert.Equal(t, int64(1700000000000), last.UnixMilli())
	assert.Equal(t, time.UTC, last.Location())
}
