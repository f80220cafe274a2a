package pagination

import (
	"encoding/base64"
	"encoding/json"
	"errors"
	"fmt"
	"time"
)

const (
	DefaultLimit = 10
	MaxLimit     = 250
)

var ErrInvalidCursor = errors.New("invalid cursor")

type Pagination struct {
	Cursor string `form:"cursor"`
	Limit  int    `form:"limit,default=10" binding:"omitempty,gte=1,lte=250"`
}

// NormalizeLimit clamps limit to [1, MaxLimit], using DefaultLimit for unset values.
func NormalizeLimit(limit int) int {
	if limit <= 0 {
		return DefaultLimit
	}
	if limit > MaxLimit {
		return MaxLimit
	}
	return limit
}

// Normalize returns p with its limit clamped.
func (p Pagination) Normalize() Pagination {
	p.Limit = NormalizeLimit(p.Limit)
	return p
}

// Validate rejects a cursor that cannot be decoded into a keyset position.
func (p Pagination) Validate() error {
	if p.Cursor == "" {
		return nil
	}
	_, _, err := ParseCursor(p.Cursor)
	return err
}

type Cursor struct {
	CreatedAt string `json:"created_at,omitempty"`
	ID        string `json:"id,omitempty"`
}

type PageInfo struct {
	NextCursor     string `json:"next_cursor"`
	PreviousCursor string `json:"previous_cursor"`
	HasMore        bool   `json:"has_more"`
}

func EncodeCursor(data Cursor) (string, error) {
	b, err := json.Marshal(data)
	if err != nil {
		return "", err
	}

	return base64.StdEncoding.EncodeToString(b), nil
}

func DecodeCursor(data string) (*Cursor, error) {
	b, err := base64.StdEncoding.DecodeString(data)
	if err != nil {
		return nil, err
	}

	var cursor Cursor
	if err := json.Unmarshal(b, &cursor); err != nil {
		return nil, err
	}

	return &cursor, nil
}

// ParseCursor decodes an encoded cursor into its (created_at, id) position.
func ParseCursor(data string) (time.Time, string, error) {
	cursor, err := DecodeCursor(data)
	if err != nil {
		return time.Time{}, "", fmt.Errorf("%w: %v", ErrInvalidCursor, err)
	}
	createdAt, err := time.Parse(time.RFC3339Nano, cursor.CreatedAt)
	if err != nil {
		return time.Time{}, "", fmt.Errorf("%w: %v", ErrInvalidCursor, err)
	}
	if cursor.ID == "" {
		return time.Time{}, "", fmt.Errorf("%w: missing id", ErrInvalidCursor)
	}
	return createdAt.UTC(), cursor.ID, nil
}

// Page trims the extra row fetched by option.ApplyPagination and builds the PageInfo.
func Page[T any](data []*T, limit int, extractCursor func(*T) Cursor) ([]*T, *PageInfo) {
	limit = NormalizeLimit(limit)
	if len(data) == 0 {
		return data, &PageInfo{HasMore: false}
	}

	hasMore := false
	if len(data) > limit {
		hasMore = true
		data = data[:limit]
	}

	info := &PageInfo{HasMore: hasMore}
	if hasMore {
		info.NextCursor, _ = EncodeCursor(extractCursor(data[len(data)-1]))
	}

	return data, info
}
