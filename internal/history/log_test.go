package history

import (
	"context"
	"fmt"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/vovakirdan/chatrelay/internal/store/sqlite"
)

func fixedClock() func() time.Time {
	t := time.Date(2025, 3, 1, 9, 0, 0, 0, time.UTC)
	return func() time.Time {
		t = t.Add(time.Second)
		return t
	}
}

func TestAppendEvictsOldestBeyondLimit(t *testing.T) {
	const limit = 5
	l := New(nil, limit, WithClock(fixedClock()))
	ctx := context.Background()

	for i := range limit + 1 {
		_, err := l.Append(ctx, "lobby", "alice", fmt.Sprintf("m%d", i))
		require.NoError(t, err)
	}

	got := l.Recent("lobby", limit)
	require.Len(t, got, limit)
	require.Equal(t, "m1", got[0].Text)
	require.Equal(t, "m5", got[limit-1].Text)
	for i := 1; i < len(got); i++ {
		require.True(t, got[i-1].CreatedAt.Before(got[i].CreatedAt))
	}
}

func TestRecentRespectsLimitAndRoom(t *testing.T) {
	l := New(nil, 100)
	ctx := context.Background()

	for i := range 10 {
		_, _ = l.Append(ctx, "a", "u", fmt.Sprintf("a%d", i))
	}
	_, _ = l.Append(ctx, "b", "u", "b0")

	got := l.Recent("a", 3)
	require.Equal(t, []string{"a7", "a8", "a9"}, texts(got))
	require.Len(t, l.Recent("a", 0), 10)
	require.Len(t, l.Recent("b", 50), 1)
	require.Empty(t, l.Recent("missing", 5))
}

func TestRecentReturnsCopy(t *testing.T) {
	l := New(nil, 10)
	_, _ = l.Append(context.Background(), "a", "u", "one")

	got := l.Recent("a", 1)
	got[0].Text = "mutated"
	require.Equal(t, "one", l.Recent("a", 1)[0].Text)
}

func TestClearRoomAndAll(t *testing.T) {
	l := New(nil, 10)
	ctx := context.Background()
	_, _ = l.Append(ctx, "a", "u", "x")
	_, _ = l.Append(ctx, "b", "u", "y")

	require.NoError(t, l.Clear(ctx, "a"))
	require.Empty(t, l.Recent("a", 0))
	require.Len(t, l.Recent("b", 0), 1)

	require.NoError(t, l.Clear(ctx, ""))
	require.Empty(t, l.Recent("b", 0))
}

func TestRenameMovesEntries(t *testing.T) {
	l := New(nil, 3)
	ctx := context.Background()
	_, _ = l.Append(ctx, "old", "u", "1")
	_, _ = l.Append(ctx, "old", "u", "2")
	_, _ = l.Append(ctx, "new", "u", "3")

	require.NoError(t, l.Rename(ctx, "old", "new"))
	require.Empty(t, l.Recent("old", 0))

	got := l.Recent("new", 0)
	require.Len(t, got, 3)
	for _, e := range got {
		require.Equal(t, "new", e.Room)
	}
}

func TestPersistedHistoryReloads(t *testing.T) {
	st, err := sqlite.New(":memory:")
	require.NoError(t, err)
	defer st.Close()
	ctx := context.Background()

	l := New(st, 3, WithClock(fixedClock()))
	for i := range 5 {
		_, err := l.Append(ctx, "lobby", "alice", fmt.Sprintf("m%d", i))
		require.NoError(t, err)
	}
	_, err = l.Append(ctx, "dev", "SERVER", "bob joined")
	require.NoError(t, err)

	reloaded := New(st, 3)
	require.NoError(t, reloaded.Load(ctx))
	require.Equal(t, []string{"m2", "m3", "m4"}, texts(reloaded.Recent("lobby", 10)))
	require.Equal(t, []string{"bob joined"}, texts(reloaded.Recent("dev", 10)))
	require.Equal(t, l.Recent("lobby", 1)[0].CreatedAt.UnixNano(), reloaded.Recent("lobby", 1)[0].CreatedAt.UnixNano())

	require.NoError(t, l.Clear(ctx, "lobby"))
	again := New(st, 3)
	require.NoError(t, again.Load(ctx))
	require.Empty(t, again.Recent("lobby", 10))
}

func texts(entries []Entry) []string {
	out := make([]string, 0, len(entries))
	for _, e := range entries {
		out = append(out, e.Text)
	}
	return out
}
