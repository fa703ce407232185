// internal/models/raw_test.go
package models

import (
	"encoding/json"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func decodeRecord(t *testing.T, s string) RawRecord {
	t.Helper()
	dec := json.NewDecoder(strings.NewReader(s))
	dec.UseNumber()
	var r RawRecord
	require.NoError(t, dec.Decode(&r))
	return r
}

func TestRawRecordInt(t *testing.T) {
	r := decodeRecord(t, `{"a": 7, "b": "12", "c": 7.0, "d": 7.5, "e": true, "f": null}`)

	v, err := r.Int("a")
	require.NoError(t, err)
	assert.Equal(t, int64(7), v)

	v, err = r.Int("b")
	require.NoError(t, err)
	assert.Equal(t, int64(12), v)

	v, err = r.Int("c")
	require.NoError(t, err)
	assert.Equal(t, int64(7), v)

	_, err = r.Int("d")
	assert.ErrorIs(t, err, ErrInvalidValue)

	_, err = r.Int("e")
	assert.ErrorIs(t, err, ErrInvalidType)

	_, err = r.Int("f")
	assert.ErrorIs(t, err, ErrMissingField)

	_, err = r.Int("missing")
	var fieldErr *FieldError
	require.ErrorAs(t, err, &fieldErr)
	assert.Equal(t, "missing", fieldErr.Field)
}

func TestRawRecordFloat(t *testing.T) {
	r := decodeRecord(t, `{"a": 9.99, "b": "3.5", "c": "NaN", "d": "abc", "e": [1]}`)

	v, err := r.Float("a")
	require.NoError(t, err)
	assert.InDelta(t, 9.99, v, 1e-9)

	v, err = r.Float("b")
	require.NoError(t, err)
	assert.InDelta(t, 3.5, v, 1e-9)

	_, err = r.Float("c")
	assert.ErrorIs(t, err, ErrInvalidValue)

	_, err = r.Float("d")
	assert.ErrorIs(t, err, ErrInvalidValue)

	_, err = r.Float("e")
	assert.ErrorIs(t, err, ErrInvalidType)
}

func TestRawRecordNested(t *testing.T) {
	r := decodeRecord(t, `{"rating": {"rate": 4.1, "count": 259}, "products": [{"productId": 1}, 3], "title": " Shirt "}`)

	rating, err := r.Object("rating")
	require.NoError(t, err)
	count, err := rating.Int("count")
	require.NoError(t, err)
	assert.Equal(t, int64(259), count)

	_, err = r.Objects("products")
	assert.ErrorIs(t, err, ErrInvalidType)

	_, err = r.Object("title")
	assert.ErrorIs(t, err, ErrInvalidType)

	title, err := r.String("title")
	require.NoError(t, err)
	assert.Equal(t, "Shirt", title)
}

func TestRawRecordTime(t *testing.T) {
	r := decodeRecord(t, `{"a": "2020-03-02T00:00:00.000Z", "b": "2024-01-01T00:00:00+02:00", "c": "2024-01-01", "d": "yesterday"}`)

	v, err := r.Time("a")
	require.NoError(t, err)
	assert.Equal(t, time.Date(2020, 3, 2, 0, 0, 0, 0, time.UTC), v)

	v, err = r.Time("b")
	require.NoError(t, err)
	assert.Equal(t, time.Date(2023, 12, 31, 22, 0, 0, 0, time.UTC), v)

	v, err = r.Time("c")
	require.NoError(t, err)
	assert.Equal(t, time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC), v)

	_, err = r.Time("d")
	assert.ErrorIs(t, err, ErrInvalidValue)
}

func TestNilRecord(t *testing.T) {
	var r RawRecord
	_, err := r.Int("id")
	assert.ErrorIs(t, err, ErrMissingField)
	assert.Equal(t, "unknown", r.Ref())
}

func TestEventHelpers(t *testing.T) {
	at := time.Date(2024, 1, 1, 23, 59, 0, 0, time.FixedZone("X", -2*3600))
	assert.Equal(t, time.Date(2024, 1, 2, 0, 0, 0, 0, time.UTC), EventDateOf(at))
	assert.Equal(t, "sess_5", SessionIDFor(5))
	assert.True(t, EventTypePurchase.Valid())
	assert.False(t, EventType("click").Valid())
	assert.True(t, RunStatusFailed.Terminal())
	assert.False(t, RunStatusRunning.Terminal())
}
