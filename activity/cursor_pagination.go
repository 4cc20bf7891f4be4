package activity

import (
	"encoding/base64"
	"errors"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/uptrace/bun"
)

// Cursor marks the last entry of a feed page.
type Cursor struct {
	OccurredAt time.Time
	ID         uuid.UUID
}

// ErrInvalidCursor is returned when a cursor token cannot be decoded.
var ErrInvalidCursor = errors.New("activity: invalid cursor")

// Encode renders the cursor as an opaque URL-safe token.
func (c Cursor) Encode() string {
	raw := c.OccurredAt.UTC().Format(time.RFC3339Nano) + "|" + c.ID.String()
	return base64.RawURLEncoding.EncodeToString([]byte(raw))
}

// ParseCursor decodes a token produced by Cursor.Encode. An empty token
// yields a nil cursor.
func ParseCursor(token string) (*Cursor, error) {
	token = strings.TrimSpace(token)
	if token == "" {
		return nil, nil
	}
	raw, err := base64.RawURLEncoding.DecodeString(token)
	if err != nil {
		return nil, ErrInvalidCursor
	}
	ts, id, ok := strings.Cut(string(raw), "|")
	if !ok {
		return nil, ErrInvalidCursor
	}
	occurredAt, err := time.Parse(time.RFC3339Nano, ts)
	if err != nil {
		return nil, ErrInvalidCursor
	}
	parsed, err := uuid.Parse(id)
	if err != nil {
		return nil, ErrInvalidCursor
	}
	return &Cursor{OccurredAt: occurredAt, ID: parsed}, nil
}

// ApplyCursorPagination orders by created_at DESC, id DESC and keeps only
// entries older than cursor.
func ApplyCursorPagination(q *bun.SelectQuery, cursor *Cursor, limit int) *bun.SelectQuery {
	if q == nil {
		return nil
	}
	q = q.OrderExpr("created_at DESC, id DESC")
	if limit > 0 {
		q = q.Limit(limit)
	}
	if cursor == nil || cursor.OccurredAt.IsZero() {
		return q
	}
	if cursor.ID == uuid.Nil {
		return q.Where("created_at < ?", cursor.OccurredAt)
	}
	return q.Where("(created_at < ?) OR (created_at = ? AND id < ?)", cursor.OccurredAt, cursor.OccurredAt, cursor.ID)
}
