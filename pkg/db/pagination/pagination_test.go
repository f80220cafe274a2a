package pagination

import (
	"testing"
	"time"

	"github.com/stretchr/testify/require"
)

type row struct {
	ID string
}

func TestNormalizeLimit(t *testing.T) {
	require.Equal(t, DefaultLimit, NormalizeLimit(0))
	require.Equal(t, DefaultLimit, NormalizeLimit(-3))
	require.Equal(t, 42, NormalizeLimit(42))
	require.Equal(t, MaxLimit, NormalizeLimit(1000))
	require.Equal(t, MaxLimit, Pagination{Limit: 1000}.Normalize().Limit)
}

func TestPageTrimsToClampedLimit(t *testing.T) {
	data := make([]*row, MaxLimit+1)
	for i := range data {
		data[i] = &row{ID: string(rune('a' + i%26))}
	}

	page, info := Page(data, 1000, func(r *row) Cursor {
		return Cursor{CreatedAt: "2026-10-16T12:00:00Z", ID: r.ID}
	})
	require.Len(t, page, MaxLimit)
	require.True(t, info.HasMore)
	require.NotEmpty(t, info.NextCursor)
}

func TestValidateCursor(t *testing.T) {
	require.NoError(t, Pagination{}.Validate())

	good, err := EncodeCursor(Cursor{CreatedAt: "2026-10-16T12:00:00.5Z", ID: "42"})
	require.NoError(t, err)
	require.NoError(t, Pagination{Cursor: good}.Validate())

	at, id, err := ParseCursor(good)
	require.NoError(t, err)
	require.Equal(t, "42", id)
	require.Equal(t, time.Date(2026, 10, 16, 12, 0, 0, 500_000_000, time.UTC), at)

	badTime, err := EncodeCursor(Cursor{CreatedAt: "yesterday", ID: "42"})
	require.NoError(t, err)
	noID, err := EncodeCursor(Cursor{CreatedAt: "2026-10-16T12:00:00Z"})
	require.NoError(t, err)

	for _, c := range []string{"%%%", badTime, noID} {
		require.ErrorIs(t, Pagination{Cursor: c}.Validate(), ErrInvalidCursor, c)
	}
}
