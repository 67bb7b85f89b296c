package utils

import (
	"errors"
	"strconv"
	"strings"
	"time"
)

var ErrInvalidCursor = errors.New("invalid cursor")

// Cursor points at a (created_at, id) position in a descending feed.
type Cursor struct {
	CreatedAt time.Time
	ID        int64
}

// EncodeCursor renders "<RFC3339 UTC>_<id>".
func EncodeCursor(createdAt time.Time, id int64) string {
	return createdAt.UTC().Format(time.RFC3339Nano) + "_" + strconv.FormatInt(id, 10)
}

// DecodeCursor parses a cursor produced by EncodeCursor.
func DecodeCursor(raw string) (*Cursor, error) {
	idx := strings.LastIndex(raw, "_")
	if idx <= 0 || idx == len(raw)-1 {
		return nil, ErrInvalidCursor
	}
	ts, err := time.Parse(time.RFC3339Nano, raw[:idx])
	if err != nil {
		return nil, ErrInvalidCursor
	}
	id, err := strconv.ParseInt(raw[idx+1:], 10, 64)
	if err != nil || id <= 0 {
		return nil, ErrInvalidCursor
	}
	return &Cursor{CreatedAt: ts.UTC(), ID: id}, nil
}
