// internal/services/api_client.go
package services

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/HdrHistogram/hdrhistogram-go"
	"github.com/sirupsen/logrus"

	"github.com/javajoker/funnel-etl/internal/config"
	"github.com/javajoker/funnel-etl/internal/metrics"
	"github.com/javajoker/funnel-etl/internal/middleware"
	"github.com/javajoker/funnel-etl/internal/models"
)

// HTTPStatusError is returned for a non-2xx response that is not retried, or when retries run out.
type HTTPStatusError struct {
	URL        string
	StatusCode int
}

func (e *HTTPStatusError) Error() string {
	return fmt.Sprintf("unexpected status %d from %s", e.StatusCode, e.URL)
}

// DecodeError means the response body was not a JSON array.
type DecodeError struct {
	URL string
	Err error
}

func (e *DecodeError) Error() string {
	return fmt.Sprintf("failed to decode response from %s: %v", e.URL, e.Err)
}

func (e *DecodeError) Unwrap() error {
	return e.Err
}

// ResponseTooLargeError means the response body exceeded the configured size limit. It is not retried.
type ResponseTooLargeError struct {
	URL   string
	Limit int64
}

func (e *ResponseTooLargeError) Error() string {
	return fmt.Sprintf("response from %s exceeds %d bytes", e.URL, e.Limit)
}

var retryableStatus = map[int]bool{
	http.StatusTooManyRequests:     true,
	http.StatusInternalServerError: true,
	http.StatusBadGateway:          true,
	http.StatusServiceUnavailable:  true,
	http.StatusGatewayTimeout:      true,
}

// LatencySummary describes request latency percentiles collected by an APIClient.
type LatencySummary struct {
	Count int64
	P50   time.Duration
	P95   time.Duration
	P99   time.Duration
	Max   time.Duration
}

// APIClient issues GET requests against the source API with timeouts, retries and pacing.
type APIClient struct {
	baseURL      string
	userAgent    string
	timeout      time.Duration
	retryCount   int
	retryDelay   time.Duration
	maxRetryWait time.Duration
	maxBody      int64
	httpClient   *http.Client
	metrics      *metrics.Metrics
	log          *logrus.Entry
	sleep        func(context.Context, time.Duration) error

	mu      sync.Mutex
	latency *hdrhistogram.Histogram
}

func NewAPIClient(cfg config.APIConfig, log logrus.FieldLogger, m *metrics.Metrics) *APIClient {
	entry := log.WithField("component", "api_client")

	var transport http.RoundTripper = middleware.NewLoggingTransport(http.DefaultTransport, entry)
	transport = middleware.NewRateLimitTransport(transport, cfg.RateLimit, cfg.RateBurst)

	return &APIClient{
		baseURL:      strings.TrimRight(cfg.BaseURL, "/"),
		userAgent:    cfg.UserAgent,
		timeout:      cfg.Timeout,
		retryCount:   cfg.RetryCount,
		retryDelay:   cfg.RetryDelay,
		maxRetryWait: cfg.MaxRetryWait,
		maxBody:      cfg.MaxResponseBytes,
		httpClient:   &http.Client{Transport: transport},
		metrics:      m,
		log:          entry,
		sleep:        sleepContext,
		latency:      hdrhistogram.New(1, int64(10*time.Minute/time.Microsecond), 3),
	}
}

// FetchList GETs endpoint and decodes a JSON array of objects. Array elements that are
// not objects come back as nil records so callers can count them as malformed.
func (c *APIClient) FetchList(ctx context.Context, endpoint string) ([]models.RawRecord, error) {
	url := c.baseURL + endpoint
	c.log.WithField("url", url).Info("Fetching data from API")

	body, err := c.get(ctx, url)
	if err != nil {
		c.log.WithError(err).WithField("url", url).Error("API request failed")
		return nil, err
	}

	records, err := decodeRecords(body)
	if err != nil {
		return nil, &DecodeError{URL: url, Err: err}
	}

	c.log.WithFields(logrus.Fields{
		"url":     url,
		"bytes":   len(body),
		"records": len(records),
	}).Info("API response received")
	return records, nil
}

func (c *APIClient) get(ctx context.Context, url string) ([]byte, error) {
	for attempt := 1; ; attempt++ {
		body, retryAfter, err := c.attempt(ctx, url)
		if err == nil {
			return body, nil
		}
		if ctx.Err() != nil {
			return nil, fmt.Errorf("request to %s cancelled: %w", url, ctx.Err())
		}
		if !isRetryable(err) || attempt > c.retryCount {
			return nil, err
		}

		delay := c.backoff(attempt)
		if retryAfter > 0 {
			delay = retryAfter
		}
		if c.maxRetryWait > 0 && delay > c.maxRetryWait {
			delay = c.maxRetryWait
		}
		if c.metrics != nil {
			c.metrics.APIRetries.Inc()
		}
		c.log.WithFields(logrus.Fields{
			"url":     url,
			"attempt": attempt,
			"delay":   delay.String(),
		}).WithError(err).Warn("Retrying API request")

		if err := c.sleep(ctx, delay); err != nil {
			return nil, fmt.Errorf("request to %s cancelled: %w", url, err)
		}
	}
}

// attempt performs one request bounded by the client timeout.
func (c *APIClient) attempt(ctx context.Context, url string) ([]byte, time.Duration, error) {
	reqCtx := ctx
	if c.timeout > 0 {
		var cancel context.CancelFunc
		reqCtx, cancel = context.WithTimeout(ctx, c.timeout)
		defer cancel()
	}

	req, err := http.NewRequestWithContext(reqCtx, http.MethodGet, url, nil)
	if err != nil {
		return nil, 0, fmt.Errorf("failed to build request: %w", err)
	}
	req.Header.Set("User-Agent", c.userAgent)
	req.Header.Set("Accept", "application/json")

	start := time.Now()
	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, 0, &transportError{err: fmt.Errorf("request to %s failed: %w", url, err)}
	}
	defer resp.Body.Close()

	var reader io.Reader = resp.Body
	if c.maxBody > 0 {
		reader = io.LimitReader(resp.Body, c.maxBody+1)
	}
	body, err := io.ReadAll(reader)
	c.recordLatency(time.Since(start))
	if err != nil {
		return nil, 0, &transportError{err: fmt.Errorf("failed to read response from %s: %w", url, err)}
	}
	if c.maxBody > 0 && int64(len(body)) > c.maxBody {
		return nil, 0, &ResponseTooLargeError{URL: url, Limit: c.maxBody}
	}

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		return nil, parseRetryAfter(resp.Header.Get("Retry-After")), &HTTPStatusError{URL: url, StatusCode: resp.StatusCode}
	}
	return body, 0, nil
}

// backoff returns retryDelay * 2^(attempt-1).
func (c *APIClient) backoff(attempt int) time.Duration {
	return c.retryDelay * time.Duration(1<<uint(attempt-1))
}

func (c *APIClient) recordLatency(d time.Duration) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.latency.RecordValue(d.Microseconds())
}

func (c *APIClient) Latency() LatencySummary {
	c.mu.Lock()
	defer c.mu.Unlock()

	at := func(q float64) time.Duration {
		return time.Duration(c.latency.ValueAtQuantile(q)) * time.Microsecond
	}
	return LatencySummary{
		Count: c.latency.TotalCount(),
		P50:   at(50),
		P95:   at(95),
		P99:   at(99),
		Max:   time.Duration(c.latency.Max()) * time.Microsecond,
	}
}

type transportError struct {
	err error
}

func (e *transportError) Error() string { return e.err.Error() }
func (e *transportError) Unwrap() error { return e.err }

func isRetryable(err error) bool {
	var statusErr *HTTPStatusError
	if errors.As(err, &statusErr) {
		return retryableStatus[statusErr.StatusCode]
	}
	var tErr *transportError
	return errors.As(err, &tErr)
}

// parseRetryAfter understands both delta-seconds and HTTP-date forms.
func parseRetryAfter(value string) time.Duration {
	value = strings.TrimSpace(value)
	if value == "" {
		return 0
	}
	if seconds, err := strconv.Atoi(value); err == nil {
		if seconds < 0 {
			return 0
		}
		return time.Duration(seconds) * time.Second
	}
	if at, err := http.ParseTime(value); err == nil {
		if d := time.Until(at); d > 0 {
			return d
		}
	}
	return 0
}

func decodeRecords(body []byte) ([]models.RawRecord, error) {
	dec := json.NewDecoder(bytes.NewReader(body))
	dec.UseNumber()

	var items []interface{}
	if err := dec.Decode(&items); err != nil {
		return nil, err
	}
	if items == nil {
		return nil, errors.New("expected a JSON array, got null")
	}

	records := make([]models.RawRecord, len(items))
	for i, item := range items {
		if obj, ok := item.(map[string]interface{}); ok {
			records[i] = models.RawRecord(obj)
		}
	}
	return records, nil
}

func sleepContext(ctx context.Context, d time.Duration) error {
	if d <= 0 {
		return ctx.Err()
	}
	timer := time.NewTimer(d)
	defer timer.Stop()

	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-timer.C:
		return nil
	}
}
