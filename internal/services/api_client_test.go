// internal/services/api_client_test.go
package services

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"sync/atomic"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/javajoker/funnel-etl/internal/config"
	"github.com/javajoker/funnel-etl/internal/logger"
	"github.com/javajoker/funnel-etl/internal/metrics"
)

type recordedSleeps struct {
	delays []time.Duration
}

func (r *recordedSleeps) sleep(ctx context.Context, d time.Duration) error {
	r.delays = append(r.delays, d)
	return ctx.Err()
}

func newTestAPIClient(t *testing.T, baseURL string, retries int) (*APIClient, *recordedSleeps, *metrics.Metrics) {
	t.Helper()
	return newTestAPIClientWith(t, config.APIConfig{
		BaseURL:    baseURL,
		Timeout:    time.Second,
		RetryCount: retries,
		RetryDelay: 10 * time.Millisecond,
		RateBurst:  1,
		UserAgent:  "EcommerceDataPipeline/1.0",
	})
}

func newTestAPIClientWith(t *testing.T, cfg config.APIConfig) (*APIClient, *recordedSleeps, *metrics.Metrics) {
	t.Helper()
	m := metrics.New()
	client := NewAPIClient(cfg, logger.Discard(), m)
	sleeps := &recordedSleeps{}
	client.sleep = sleeps.sleep
	return client, sleeps, m
}

func TestAPIClientFetchList(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/products", r.URL.Path)
		assert.Equal(t, http.MethodGet, r.Method)
		assert.Equal(t, "EcommerceDataPipeline/1.0", r.Header.Get("User-Agent"))
		w.Header().Set("Content-Type", "application/json")
		w.Write([]byte(`[{"id": 1, "price": 9.99}, 42, {"id": 2}]`))
	}))
	defer srv.Close()

	client, sleeps, _ := newTestAPIClient(t, srv.URL+"/", 3)
	records, err := client.FetchList(context.Background(), "/products")
	require.NoError(t, err)

	require.Len(t, records, 3)
	id, err := records[0].Int("id")
	require.NoError(t, err)
	assert.Equal(t, int64(1), id)
	assert.Nil(t, records[1])
	assert.Empty(t, sleeps.delays)
	assert.Equal(t, int64(1), client.Latency().Count)
}

func TestAPIClientRetriesWithBackoff(t *testing.T) {
	var calls int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if atomic.AddInt32(&calls, 1) < 3 {
			w.WriteHeader(http.StatusServiceUnavailable)
			return
		}
		w.Write([]byte(`[]`))
	}))
	defer srv.Close()

	client, sleeps, m := newTestAPIClient(t, srv.URL, 3)
	records, err := client.FetchList(context.Background(), "/carts")
	require.NoError(t, err)

	assert.Empty(t, records)
	assert.Equal(t, int32(3), atomic.LoadInt32(&calls))
	assert.Equal(t, []time.Duration{10 * time.Millisecond, 20 * time.Millisecond}, sleeps.delays)
	assert.Equal(t, 2.0, testutil.ToFloat64(m.APIRetries))
}

func TestAPIClientHonorsRetryAfter(t *testing.T) {
	var calls int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if atomic.AddInt32(&calls, 1) == 1 {
			w.Header().Set("Retry-After", "3")
			w.WriteHeader(http.StatusTooManyRequests)
			return
		}
		w.Write([]byte(`[{"id": 1}]`))
	}))
	defer srv.Close()

	client, sleeps, _ := newTestAPIClient(t, srv.URL, 3)
	_, err := client.FetchList(context.Background(), "/users")
	require.NoError(t, err)
	assert.Equal(t, []time.Duration{3 * time.Second}, sleeps.delays)
}

func TestAPIClientCapsRetryWait(t *testing.T) {
	var calls int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		switch atomic.AddInt32(&calls, 1) {
		case 1:
			w.Header().Set("Retry-After", "86400")
			w.WriteHeader(http.StatusServiceUnavailable)
		case 2:
			w.WriteHeader(http.StatusServiceUnavailable)
		default:
			w.Write([]byte(`[]`))
		}
	}))
	defer srv.Close()

	client, sleeps, _ := newTestAPIClientWith(t, config.APIConfig{
		BaseURL:      srv.URL,
		Timeout:      time.Second,
		RetryCount:   3,
		RetryDelay:   4 * time.Second,
		MaxRetryWait: 5 * time.Second,
		RateBurst:    1,
		UserAgent:    "EcommerceDataPipeline/1.0",
	})
	_, err := client.FetchList(context.Background(), "/carts")
	require.NoError(t, err)
	assert.Equal(t, []time.Duration{5 * time.Second, 5 * time.Second}, sleeps.delays)
}

func TestAPIClientRejectsOversizedResponse(t *testing.T) {
	var calls int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		atomic.AddInt32(&calls, 1)
		w.Write([]byte(`[{"id": 1}, {"id": 2}, {"id": 3}]`))
	}))
	defer srv.Close()

	client, sleeps, _ := newTestAPIClientWith(t, config.APIConfig{
		BaseURL:          srv.URL,
		Timeout:          time.Second,
		RetryCount:       3,
		RateBurst:        1,
		UserAgent:        "EcommerceDataPipeline/1.0",
		MaxResponseBytes: 16,
	})
	_, err := client.FetchList(context.Background(), "/products")

	var sizeErr *ResponseTooLargeError
	require.ErrorAs(t, err, &sizeErr)
	assert.Equal(t, int64(16), sizeErr.Limit)
	assert.Equal(t, int32(1), atomic.LoadInt32(&calls))
	assert.Empty(t, sleeps.delays)
	assert.Equal(t, "fetch.response_too_large", ErrorType(&StageError{Stage: StageFetch, Err: err}))

	exact, _, _ := newTestAPIClientWith(t, config.APIConfig{
		BaseURL:          srv.URL,
		Timeout:          time.Second,
		RateBurst:        1,
		UserAgent:        "EcommerceDataPipeline/1.0",
		MaxResponseBytes: int64(len(`[{"id": 1}, {"id": 2}, {"id": 3}]`)),
	})
	records, err := exact.FetchList(context.Background(), "/products")
	require.NoError(t, err)
	assert.Len(t, records, 3)
}

func TestAPIClientGivesUp(t *testing.T) {
	var calls int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		atomic.AddInt32(&calls, 1)
		w.WriteHeader(http.StatusBadGateway)
	}))
	defer srv.Close()

	client, sleeps, _ := newTestAPIClient(t, srv.URL, 2)
	_, err := client.FetchList(context.Background(), "/products")

	var statusErr *HTTPStatusError
	require.ErrorAs(t, err, &statusErr)
	assert.Equal(t, http.StatusBadGateway, statusErr.StatusCode)
	assert.Equal(t, int32(3), atomic.LoadInt32(&calls))
	assert.Len(t, sleeps.delays, 2)
}

func TestAPIClientDoesNotRetryClientErrors(t *testing.T) {
	var calls int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		atomic.AddInt32(&calls, 1)
		w.WriteHeader(http.StatusNotFound)
	}))
	defer srv.Close()

	client, _, _ := newTestAPIClient(t, srv.URL, 3)
	_, err := client.FetchList(context.Background(), "/nope")

	var statusErr *HTTPStatusError
	require.ErrorAs(t, err, &statusErr)
	assert.Equal(t, http.StatusNotFound, statusErr.StatusCode)
	assert.Equal(t, int32(1), atomic.LoadInt32(&calls))
}

func TestAPIClientDecodeError(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte(`{"not": "a list"}`))
	}))
	defer srv.Close()

	client, _, _ := newTestAPIClient(t, srv.URL, 3)
	_, err := client.FetchList(context.Background(), "/products")

	var decodeErr *DecodeError
	require.ErrorAs(t, err, &decodeErr)
	assert.Equal(t, "fetch.decode", ErrorType(&StageError{Stage: StageFetch, Err: err}))
}

func TestAPIClientTimeout(t *testing.T) {
	release := make(chan struct{})
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		select {
		case <-release:
		case <-r.Context().Done():
		}
	}))
	defer srv.Close()
	defer close(release)

	client, _, _ := newTestAPIClient(t, srv.URL, 0)
	client.timeout = 20 * time.Millisecond

	_, err := client.FetchList(context.Background(), "/products")
	require.Error(t, err)
	assert.True(t, errors.Is(err, context.DeadlineExceeded))
	assert.Equal(t, "fetch.timeout", ErrorType(&StageError{Stage: StageFetch, Err: err}))
}

func TestAPIClientCancelledContext(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusInternalServerError)
	}))
	defer srv.Close()

	client, _, _ := newTestAPIClient(t, srv.URL, 3)
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	_, err := client.FetchList(ctx, "/products")
	require.Error(t, err)
	assert.ErrorIs(t, err, context.Canceled)
}

func TestParseRetryAfter(t *testing.T) {
	assert.Equal(t, 5*time.Second, parseRetryAfter("5"))
	assert.Zero(t, parseRetryAfter(""))
	assert.Zero(t, parseRetryAfter("-1"))
	assert.Zero(t, parseRetryAfter("soon"))

	future := time.Now().Add(time.Hour).UTC().Format(http.TimeFormat)
	assert.Greater(t, parseRetryAfter(future), 50*time.Minute)
}
