// Package pagination implements keyset paging over (created_at, id), newest
// first. Cursors are opaque to clients.
package pagination

import (
	"encoding/base64"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"
)

const (
	DefaultLimit = 25
	MaxLimit     = 100
)

var errBadCursor = errors.New("malformed cursor")

// Params is a page request as it arrives from a controller.
type Params struct {
	Limit  int
	Cursor string
}

// Cursor is the position of the last row already served.
type Cursor struct {
	CreatedAt time.Time `json:"t"`
	ID        uuid.UUID `json:"id"`
}

// NormalizeLimit maps non-positive values to DefaultLimit and caps at MaxLimit.
func NormalizeLimit(limit int) int {
	if limit <= 0 {
		return DefaultLimit
	}
	return min(limit, MaxLimit)
}

func EncodeCursor(c Cursor) string {
	c.CreatedAt = c.CreatedAt.UTC()
	raw, _ := json.Marshal(c)
	return base64.RawURLEncoding.EncodeToString(raw)
}

// ParseCursor returns nil for an empty value, meaning the first page.
func ParseCursor(value string) (*Cursor, error) {
	value = strings.TrimSpace(value)
	if value == "" {
		return nil, nil
	}
	raw, err := base64.RawURLEncoding.DecodeString(value)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", errBadCursor, err)
	}
	var c Cursor
	if err := json.Unmarshal(raw, &c); err != nil {
		return nil, fmt.Errorf("%w: %v", errBadCursor, err)
	}
	if c.CreatedAt.IsZero() || c.ID == uuid.Nil {
		return nil, errBadCursor
	}
	return &c, nil
}

// Apply orders query newest first, skips everything up to and including
// cursor, and asks for one row beyond the page so Trim can tell whether
// another page exists.
func Apply(query *gorm.DB, cursor *Cursor, limit int) *gorm.DB {
	if cursor != nil {
		query = query.Where("(created_at, id) < (?, ?)", cursor.CreatedAt, cursor.ID)
	}
	return query.Order("created_at DESC, id DESC").Limit(NormalizeLimit(limit) + 1)
}

// Trim drops the lookahead row fetched by Apply. The returned cursor is empty
// on the last page.
func Trim[T any](rows []T, limit int, cursorOf func(T) Cursor) ([]T, string) {
	size := NormalizeLimit(limit)
	if len(rows) <= size {
		return rows, ""
	}
	rows = rows[:size]
	return rows, EncodeCursor(cursorOf(rows[size-1]))
}
