// internal/middleware/logging.go
package middleware

import (
	"net/http"
	"time"

	"github.com/sirupsen/logrus"
)

// RoundTripperFunc adapts a function to http.RoundTripper.
type RoundTripperFunc func(*http.Request) (*http.Response, error)

func (f RoundTripperFunc) RoundTrip(req *http.Request) (*http.Response, error) {
	return f(req)
}

// LoggingTransport logs every outbound request with its status and duration.
type LoggingTransport struct {
	Next http.RoundTripper
	Log  logrus.FieldLogger
}

func NewLoggingTransport(next http.RoundTripper, log logrus.FieldLogger) *LoggingTransport {
	if next == nil {
		next = http.DefaultTransport
	}
	return &LoggingTransport{Next: next, Log: log}
}

func (t *LoggingTransport) RoundTrip(req *http.Request) (*http.Response, error) {
	start := time.Now()
	resp, err := t.Next.RoundTrip(req)
	duration := time.Since(start)

	fields := logrus.Fields{
		"method":     req.Method,
		"url":        req.URL.String(),
		"duration":   duration.Milliseconds(),
		"user_agent": req.UserAgent(),
	}
	if err != nil {
		t.Log.WithFields(fields).WithError(err).Warn("Request failed")
		return nil, err
	}

	fields["status"] = resp.StatusCode
	fields["content_length"] = resp.ContentLength
	t.Log.WithFields(fields).Debug("Request processed")
	return resp, nil
}
