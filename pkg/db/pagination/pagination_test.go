package pagination

import (
	"testing"

	"github.com/stretchr/testify/require"
)

type row struct {
	ID string
}

func rows(ids ...string) []*row {
	out := make([]*row, 0, len(ids))
	for _, id := range ids {
		out = append(out, &row{ID: id})
	}
	return out
}

func TestBuildCursorPageInfoWithOverfetch(t *testing.T) {
	var pageSize int32 = 2

	info := BuildCursorPageInfo(rows("a", "b", "c"), pageSize, func(r *row) string { return r.ID })
	require.True(t, info.HasMore)
	require.Equal(t, "b", info.NextPageToken)
}

func TestBuildCursorPageInfoLastPage(t *testing.T) {
	var pageSize int32 = 5

	info := BuildCursorPageInfo(rows("a", "b"), pageSize, func(r *row) string { return r.ID })
	require.False(t, info.HasMore)
	require.Equal(t, "b", info.NextPageToken)

	info = BuildCursorPageInfo(nil, pageSize, func(r *row) string { return r.ID })
	require.False(t, info.HasMore)
	require.Empty(t, info.NextPageToken)
}

func TestCursorRoundTrip(t *testing.T) {
	token, err := EncodeCursor(Cursor{ID: "42", CreatedAt: "2026-04-01T10:00:00Z"})
	require.NoError(t, err)

	cursor, err := DecodeCursor(token)
	require.NoError(t, err)
	require.Equal(t, "42", cursor.ID)
	require.Equal(t, "2026-04-01T10:00:00Z", cursor.CreatedAt)

	_, err = DecodeCursor("not-base64!")
	require.Error(t, err)
}
