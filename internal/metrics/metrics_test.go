package metrics

import (
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/require"
)

func installFresh(t *testing.T) *HTTPMetrics {
	t.Helper()
	m := NewHTTPMetrics(prometheus.NewRegistry())
	Install(m)
	t.Cleanup(func() { Install(nil) })
	return m
}

func TestRecordersAreNoopsWhenNotInstalled(t *testing.T) {
	Install(nil)
	require.NotPanics(t, func() {
		RecordRequest("GET", "/health", 200, time.Millisecond, 10)
		RecordError("NOT_FOUND", 404)
		RecordPanic()
		SetServerStartTime(time.Now())
	})
}

func TestRecordRequest(t *testing.T) {
	m := installFresh(t)

	RecordRequest("POST", "/v1/fetch", 200, 250*time.Millisecond, 512)
	RecordRequest("POST", "/v1/fetch", 200, 100*time.Millisecond, 64)
	RecordRequest("POST", "/v1/fetch", 502, time.Second, 128)

	require.Equal(t, 2.0, testutil.ToFloat64(m.requests.WithLabelValues("POST", "/v1/fetch", "200")))
	require.Equal(t, 1.0, testutil.ToFloat64(m.requests.WithLabelValues("POST", "/v1/fetch", "502")))
	require.Equal(t, 1, testutil.CollectAndCount(m.duration))
}

func TestRecordErrorAndPanic(t *testing.T) {
	m := installFresh(t)

	RecordError("UPSTREAM_BLOCKED", 502)
	RecordError("UPSTREAM_BLOCKED", 502)
	RecordPanic()

	require.Equal(t, 2.0, testutil.ToFloat64(m.errors.WithLabelValues("UPSTREAM_BLOCKED", "502")))
	require.Equal(t, 1.0, testutil.ToFloat64(m.panics))
}

func TestSetServerStartTime(t *testing.T) {
	m := installFresh(t)
	at := time.Unix(1700000000, 0)

	SetServerStartTime(at)

	require.Equal(t, float64(at.Unix()), testutil.ToFloat64(m.startTime))
}
