package instrumentation

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	sdkmetric "go.opentelemetry.io/otel/sdk/metric"
	"go.opentelemetry.io/otel/sdk/metric/metricdata"
)

func newTestMetrics(t *testing.T) (*Metrics, *sdkmetric.ManualReader) {
	t.Helper()
	reader := sdkmetric.NewManualReader()
	mp := sdkmetric.NewMeterProvider(sdkmetric.WithReader(reader))
	t.Cleanup(func() { _ = mp.Shutdown(context.Background()) })

	m, err := NewMetrics(mp.Meter("test"))
	require.NoError(t, err)
	return m, reader
}

// counterTotal sums all data points of the named Int64 sum.
func counterTotal(t *testing.T, reader *sdkmetric.ManualReader, name string) int64 {
	t.Helper()
	var rm metricdata.ResourceMetrics
	require.NoError(t, reader.Collect(context.Background(), &rm))
	var total int64
	for _, sm := range rm.ScopeMetrics {
		for _, m := range sm.Metrics {
			if m.Name != name {
				continue
			}
			sum, ok := m.Data.(metricdata.Sum[int64])
			require.True(t, ok, "metric %s is not an int64 sum", name)
			for _, dp := range sum.DataPoints {
				total += dp.Value
			}
		}
	}
	return total
}

func TestMetrics_Record(t *testing.T) {
	ctx := context.Background()
	m, reader := newTestMetrics(t)

	m.RecordHTTPRequest(ctx, "GET", "/api/feed", 200, 10*time.Millisecond)
	m.RecordAPIOperation(ctx, ServiceGmail, "list", StatusSuccess, 200*time.Millisecond)
	m.RecordAPIOperation(ctx, ServiceGmail, "get", StatusError, 50*time.Millisecond)
	m.RecordOAuthCallback(ctx, OAuthResultSuccess)
	m.RecordRefresh(ctx, StatusSuccess, time.Second)
	m.RecordRefresh(ctx, StatusRejected, 0)
	m.RecordMessages(ctx, StageFetched, 23)
	m.RecordMessages(ctx, StageKept, 4)
	m.RecordMessages(ctx, StageDropped, 0)
	m.RecordSendAttempt(ctx, StatusSuccess)
	m.RecordSendBlocked(ctx)
	m.RecordToolInvocation(ctx, "inbox_feed", StatusSuccess, time.Millisecond)

	assert.Equal(t, int64(1), counterTotal(t, reader, "http_requests_total"))
	assert.Equal(t, int64(2), counterTotal(t, reader, "google_api_operations_total"))
	assert.Equal(t, int64(1), counterTotal(t, reader, "oauth_callbacks_total"))
	assert.Equal(t, int64(2), counterTotal(t, reader, "inbox_refresh_total"))
	assert.Equal(t, int64(27), counterTotal(t, reader, "inbox_messages_total"))
	assert.Equal(t, int64(1), counterTotal(t, reader, "send_attempts_total"))
	assert.Equal(t, int64(1), counterTotal(t, reader, "send_gate_blocked_total"))
	assert.Equal(t, int64(1), counterTotal(t, reader, "mcp_tool_invocations_total"))
}

func TestMetrics_ZeroAndNilAreNoops(t *testing.T) {
	ctx := context.Background()
	for _, m := range []*Metrics{nil, {}} {
		assert.NotPanics(t, func() {
			m.RecordHTTPRequest(ctx, "GET", "/", 200, 0)
			m.RecordAPIOperation(ctx, ServiceGmail, "list", StatusSuccess, 0)
			m.RecordOAuthCallback(ctx, OAuthResultNoIdentity)
			m.RecordRefresh(ctx, StatusSuccess, 0)
			m.RecordMessages(ctx, StageKept, 1)
			m.RecordSendAttempt(ctx, StatusError)
			m.RecordSendBlocked(ctx)
			m.RecordToolInvocation(ctx, "x", StatusError, 0)
		})
	}
}
