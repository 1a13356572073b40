package rpc

import (
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
)

func getAs(t *testing.T, url, client string, out interface{}) int {
	t.Helper()
	req, err := http.NewRequest(http.MethodGet, url, nil)
	require.NoError(t, err)
	req.Header.Set("X-Real-IP", client)
	resp, err := http.DefaultClient.Do(req)
	require.NoError(t, err)
	defer resp.Body.Close()
	if out != nil {
		require.NoError(t, json.NewDecoder(resp.Body).Decode(out))
	}
	return resp.StatusCode
}

func TestQuoteRateLimitedPerClient(t *testing.T) {
	srv, _ := newTestServer(t, Config{RateLimits: map[string]RateLimit{
		LimitQuote: {RequestsPerMinute: 1, Burst: 2},
	}})
	quote := srv.URL + "/v1/quote?asset=USDC&amount=1000"

	require.Equal(t, http.StatusOK, getAs(t, quote, "10.0.0.1", nil))
	require.Equal(t, http.StatusOK, getAs(t, quote, "10.0.0.1", nil))
	var failure errorBody
	require.Equal(t, http.StatusTooManyRequests, getAs(t, quote, "10.0.0.1", &failure))
	require.Equal(t, "rate_limited", failure.Kind)

	require.Equal(t, http.StatusOK, getAs(t, quote, "10.0.0.2", nil))
	// the query class has no limit configured
	for i := 0; i < 5; i++ {
		require.Equal(t, http.StatusOK, getAs(t, srv.URL+"/v1/curve", "10.0.0.1", nil))
	}
}

func TestQueryClassLimitedSeparately(t *testing.T) {
	srv, _ := newTestServer(t, Config{RateLimits: map[string]RateLimit{
		LimitQuery: {RequestsPerMinute: 1, Burst: 1},
	}})
	require.Equal(t, http.StatusOK, getAs(t, srv.URL+"/v1/assets", "10.0.0.1", nil))
	require.Equal(t, http.StatusTooManyRequests, getAs(t, srv.URL+"/v1/curve", "10.0.0.1", nil))
	require.Equal(t, http.StatusOK, getAs(t, srv.URL+"/v1/quote?asset=USDC&amount=1", "10.0.0.1", nil))
	require.Equal(t, http.StatusOK, getAs(t, srv.URL+"/healthz", "10.0.0.1", nil))
}

func TestRateLimiterForgetsIdleClients(t *testing.T) {
	now := time.Unix(1_700_000_000, 0)
	limiter := NewRateLimiter(map[string]RateLimit{LimitQuote: {RequestsPerMinute: 1, Burst: 1}})
	limiter.clockNow = func() time.Time { return now }

	require.True(t, limiter.allow("a", limiter.limits[LimitQuote]))
	require.False(t, limiter.allow("a", limiter.limits[LimitQuote]))
	require.Len(t, limiter.visitors, 1)

	now = now.Add(visitorTTL)
	require.True(t, limiter.allow("b", limiter.limits[LimitQuote]))
	require.Len(t, limiter.visitors, 1)
}

func TestClientID(t *testing.T) {
	req := httptest.NewRequest(http.MethodGet, "/v1/curve", nil)
	req.RemoteAddr = "192.0.2.7:4411"
	require.Equal(t, "192.0.2.7", clientID(req))

	req.Header.Set("X-Forwarded-For", "198.51.100.3, 10.0.0.1")
	require.Equal(t, "198.51.100.3", clientID(req))

	req.Header.Set("X-Real-IP", "203.0.113.9")
	require.Equal(t, "203.0.113.9", clientID(req))
}
