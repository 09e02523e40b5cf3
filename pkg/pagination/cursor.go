// Package pagination provides opaque cursor utilities for keyset pagination.
// Cursors encode a stable position using a sort key + ID so pages stay
// deterministic across identical queries.
package pagination

import (
	"encoding/base64"
	"fmt"
	"strconv"
	"strings"
	"time"
)

const (
	// DefaultLimit is the default page size if not specified
	DefaultLimit = 50
	// MaxLimit is the maximum allowed page size
	MaxLimit = 500
)

// scoreScale converts a [0,1] float score into an integer sort key without
// losing meaningful precision.
const scoreScale = 1_000_000_000

// Cursor represents a stable pagination position.
type Cursor struct {
	SortKey int64
	ID      string
}

// Encode serializes the cursor to an opaque string for clients.
// Format: base64("sk:{sort_key}:id:{id}")
func (c Cursor) Encode() string {
	raw := fmt.Sprintf("sk:%d:id:%s", c.SortKey, c.ID)
	return base64.StdEncoding.EncodeToString([]byte(raw))
}

// DecodeCursor parses an encoded cursor string.
// Returns an error if the cursor format is invalid.
func DecodeCursor(encoded string) (*Cursor, error) {
	if encoded == "" {
		return nil, nil
	}

	data, err := base64.StdEncoding.DecodeString(encoded)
	if err != nil {
		return nil, fmt.Errorf("invalid cursor encoding: %w", err)
	}

	raw := string(data)
	if !strings.HasPrefix(raw, "sk:") {
		return nil, fmt.Errorf("invalid cursor format: missing sk prefix")
	}

	parts := strings.SplitN(raw[len("sk:"):], ":id:", 2)
	if len(parts) != 2 {
		return nil, fmt.Errorf("invalid cursor format: missing id segment")
	}

	sortKey, err := strconv.ParseInt(parts[0], 10, 64)
	if err != nil {
		return nil, fmt.Errorf("invalid cursor key: %w", err)
	}

	return &Cursor{SortKey: sortKey, ID: parts[1]}, nil
}

// EncodeCursor is a convenience function to create and encode a cursor.
func EncodeCursor(sortKey int64, id string) string {
	return Cursor{SortKey: sortKey, ID: id}.Encode()
}

// ScoreSortKey maps a [0,1] score to an integer sort key. Equal scores map to
// equal keys, preserving the tie-break order encoded in the cursor id.
func ScoreSortKey(score float64) int64 {
	return int64(score * scoreScale)
}

// TimeSortKey maps a timestamp to an integer sort key. Microsecond
// resolution matches Postgres TIMESTAMPTZ, so a boundary decoded with
// SortKeyTime compares equal to the stored row it came from.
func TimeSortKey(t time.Time) int64 {
	return t.UnixMicro()
}

// SortKeyTime rebuilds the timestamp a TimeSortKey cursor was encoded from.
func SortKeyTime(key int64) time.Time {
	return time.UnixMicro(key).UTC()
}

// ClampLimit ensures limit is within valid bounds.
func ClampLimit(limit int) int {
	if limit <= 0 {
		return DefaultLimit
	}
	if limit > MaxLimit {
		return MaxLimit
	}
	return limit
}

// Params holds parsed pagination parameters.
type Params struct {
	Limit  int
	Cursor *Cursor
}

// Parse builds Params from raw limit/cursor request values.
func Parse(limit int, cursor string) (*Params, error) {
	params := &Params{Limit: ClampLimit(limit)}

	if cursor != "" {
		decoded, err := DecodeCursor(cursor)
		if err != nil {
			return nil, fmt.Errorf("invalid cursor: %w", err)
		}
		params.Cursor = decoded
	}

	return params, nil
}
