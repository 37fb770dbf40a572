package pagination

import (
	"encoding/base64"
	"encoding/json"
	"errors"
	"time"
)

const (
	DefaultLimit = 10
	MaxLimit     = 250
)

var ErrInvalidCursor = errors.New("pagination: invalid cursor")

type Pagination struct {
	Cursor string `form:"cursor"`
	Limit  int    `form:"limit"`
}

// Normalize clamps Limit into [1, MaxLimit], using DefaultLimit when unset.
func (p Pagination) Normalize() Pagination {
	switch {
	case p.Limit <= 0:
		p.Limit = DefaultLimit
	case p.Limit > MaxLimit:
		p.Limit = MaxLimit
	}
	return p
}

// Cursor points at the last item of a page ordered by (created_at, id) descending.
type Cursor struct {
	CreatedAt time.Time `json:"created_at"`
	ID        string    `json:"id"`
}

type PageInfo struct {
	NextCursor string `json:"next_cursor,omitempty"`
	HasMore    bool   `json:"has_more"`
}

func EncodeCursor(c Cursor) (string, error) {
	b, err := json.Marshal(c)
	if err != nil {
		return "", err
	}
	return base64.RawURLEncoding.EncodeToString(b), nil
}

// DecodeCursor returns nil for an empty cursor.
func DecodeCursor(s string) (*Cursor, error) {
	if s == "" {
		return nil, nil
	}
	b, err := base64.RawURLEncoding.DecodeString(s)
	if err != nil {
		return nil, ErrInvalidCursor
	}
	var c Cursor
	if err := json.Unmarshal(b, &c); err != nil || c.ID == "" {
		return nil, ErrInvalidCursor
	}
	return &c, nil
}

// Page trims items fetched with limit+1 rows down to limit and builds the
// page info from the last kept item.
func Page[T any](items []T, limit int, cursorOf func(T) Cursor) ([]T, PageInfo, error) {
	if len(items) <= limit {
		return items, PageInfo{}, nil
	}
	items = items[:limit]
	next, err := EncodeCursor(cursorOf(items[len(items)-1]))
	if err != nil {
		return nil, PageInfo{}, err
	}
	return items, PageInfo{NextCursor: next, HasMore: true}, nil
}
