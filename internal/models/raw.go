// internal/models/raw.go
package models

import (
	"encoding/json"
	"errors"
	"fmt"
	"math"
	"strconv"
	"strings"
	"time"
)

// RawRecord is one JSON object exactly as the source API returned it.
// Numbers are expected to be decoded with json.Decoder.UseNumber.
type RawRecord map[string]interface{}

var (
	ErrMissingField = errors.New("missing field")
	ErrInvalidType  = errors.New("invalid type")
	ErrInvalidValue = errors.New("invalid value")
)

// FieldError reports which field of a raw record failed coercion.
type FieldError struct {
	Field string
	Err   error
}

func (e *FieldError) Error() string {
	return fmt.Sprintf("field %q: %v", e.Field, e.Err)
}

func (e *FieldError) Unwrap() error {
	return e.Err
}

var timeLayouts = []string{
	time.RFC3339Nano,
	"2006-01-02T15:04:05.999999999",
	"2006-01-02 15:04:05",
	"2006-01-02",
}

// Ref returns the record's "id" for log messages, or "unknown".
func (r RawRecord) Ref() string {
	v, ok := r["id"]
	if !ok || v == nil {
		return "unknown"
	}
	return fmt.Sprint(v)
}

func (r RawRecord) lookup(key string) (interface{}, error) {
	v, ok := r[key]
	if !ok || v == nil {
		return nil, &FieldError{Field: key, Err: ErrMissingField}
	}
	return v, nil
}

func (r RawRecord) Int(key string) (int64, error) {
	v, err := r.lookup(key)
	if err != nil {
		return 0, err
	}
	n, err := toInt(v)
	if err != nil {
		return 0, &FieldError{Field: key, Err: err}
	}
	return n, nil
}

func (r RawRecord) Float(key string) (float64, error) {
	v, err := r.lookup(key)
	if err != nil {
		return 0, err
	}
	f, err := toFloat(v)
	if err != nil {
		return 0, &FieldError{Field: key, Err: err}
	}
	return f, nil
}

// String returns a trimmed text field. Numbers are accepted in their literal form.
func (r RawRecord) String(key string) (string, error) {
	v, err := r.lookup(key)
	if err != nil {
		return "", err
	}
	switch s := v.(type) {
	case string:
		return strings.TrimSpace(s), nil
	case json.Number:
		return s.String(), nil
	default:
		return "", &FieldError{Field: key, Err: ErrInvalidType}
	}
}

func (r RawRecord) Object(key string) (RawRecord, error) {
	v, err := r.lookup(key)
	if err != nil {
		return nil, err
	}
	obj, ok := asObject(v)
	if !ok {
		return nil, &FieldError{Field: key, Err: ErrInvalidType}
	}
	return obj, nil
}

func (r RawRecord) Objects(key string) ([]RawRecord, error) {
	v, err := r.lookup(key)
	if err != nil {
		return nil, err
	}
	items, ok := v.([]interface{})
	if !ok {
		return nil, &FieldError{Field: key, Err: ErrInvalidType}
	}
	out := make([]RawRecord, 0, len(items))
	for i, item := range items {
		obj, ok := asObject(item)
		if !ok {
			return nil, &FieldError{Field: fmt.Sprintf("%s[%d]", key, i), Err: ErrInvalidType}
		}
		out = append(out, obj)
	}
	return out, nil
}

// Time parses a timestamp field. Values without a zone are taken as UTC.
func (r RawRecord) Time(key string) (time.Time, error) {
	s, err := r.String(key)
	if err != nil {
		return time.Time{}, err
	}
	for _, layout := range timeLayouts {
		if t, err := time.ParseInLocation(layout, s, time.UTC); err == nil {
			return t.UTC(), nil
		}
	}
	return time.Time{}, &FieldError{Field: key, Err: ErrInvalidValue}
}

func asObject(v interface{}) (RawRecord, bool) {
	switch obj := v.(type) {
	case map[string]interface{}:
		return RawRecord(obj), true
	case RawRecord:
		return obj, true
	}
	return nil, false
}

// toInt accepts integral numbers and numeric strings. Fractional values are rejected.
func toInt(v interface{}) (int64, error) {
	switch n := v.(type) {
	case json.Number:
		if i, err := n.Int64(); err == nil {
			return i, nil
		}
		f, err := n.Float64()
		if err != nil {
			return 0, ErrInvalidValue
		}
		return integral(f)
	case float64:
		return integral(n)
	case int:
		return int64(n), nil
	case int64:
		return n, nil
	case string:
		i, err := strconv.ParseInt(strings.TrimSpace(n), 10, 64)
		if err != nil {
			return 0, ErrInvalidValue
		}
		return i, nil
	}
	return 0, ErrInvalidType
}

func integral(f float64) (int64, error) {
	if math.IsNaN(f) || math.IsInf(f, 0) || f != math.Trunc(f) {
		return 0, ErrInvalidValue
	}
	if f > math.MaxInt64 || f < math.MinInt64 {
		return 0, ErrInvalidValue
	}
	return int64(f), nil
}

func toFloat(v interface{}) (float64, error) {
	var f float64
	switch n := v.(type) {
	case json.Number:
		parsed, err := n.Float64()
		if err != nil {
			return 0, ErrInvalidValue
		}
		f = parsed
	case float64:
		f = n
	case int:
		f = float64(n)
	case int64:
		f = float64(n)
	case string:
		parsed, err := strconv.ParseFloat(strings.TrimSpace(n), 64)
		if err != nil {
			return 0, ErrInvalidValue
		}
		f = parsed
	default:
		return 0, ErrInvalidType
	}
	if math.IsNaN(f) || math.IsInf(f, 0) {
		return 0, ErrInvalidValue
	}
	return f, nil
}
