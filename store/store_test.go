package store

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/hupe1980/channelmesh/core"
)

func openStores(t *testing.T) map[string]Store {
	t.Helper()
	sqlite, err := NewSQLiteStore(filepath.Join(t.TempDir(), "nested", "log.db"), nil)
	require.NoError(t, err)
	t.Cleanup(func() { _ = sqlite.Close() })

	return map[string]Store{
		"memory": NewInMemoryStore(),
		"sqlite": sqlite,
	}
}

func TestStore_AppendAndRecent(t *testing.T) {
	ctx := context.Background()
	for name, s := range openStores(t) {
		t.Run(name, func(t *testing.T) {
			for i := 0; i < 5; i++ {
				require.NoError(t, s.Append(ctx, NewRecord("c1", "conv", KindUser, fmt.Sprintf("msg %d", i))))
			}
			require.NoError(t, s.Append(ctx, NewRecord("c2", "other", KindReply, "elsewhere")))

			all, err := s.Recent(ctx, "c1", 0)
			require.NoError(t, err)
			require.Len(t, all, 5)
			assert.Equal(t, "msg 0", all[0].Content)
			assert.Equal(t, "msg 4", all[4].Content)

			last, err := s.Recent(ctx, "c1", 2)
			require.NoError(t, err)
			require.Len(t, last, 2)
			assert.Equal(t, "msg 3", last[0].Content)
			assert.Equal(t, "msg 4", last[1].Content)
			assert.Equal(t, core.ChannelID("c1"), last[1].ChannelID)
			assert.Equal(t, KindUser, last[1].Kind)
			assert.Equal(t, "conv", last[1].ConversationID)
			assert.False(t, last[1].CreatedAt.IsZero())

			none, err := s.Recent(ctx, "missing", 10)
			require.NoError(t, err)
			assert.Empty(t, none)
		})
	}
}

func TestNewSQLiteStore_CreatesDirectory(t *testing.T) {
	path := filepath.Join(t.TempDir(), "a", "b", "log.db")
	s, err := NewSQLiteStore(path, nil)
	require.NoError(t, err)
	defer s.Close()

	_, err = os.Stat(path)
	assert.NoError(t, err)
}

func TestSQLiteStore_Reopen(t *testing.T) {
	ctx := context.Background()
	path := filepath.Join(t.TempDir(), "log.db")

	s, err := NewSQLiteStore(path, nil)
	require.NoError(t, err)
	require.NoError(t, s.Append(ctx, NewRecord("c1", "conv", KindBranchResult, "[Branch result]: x")))
	require.NoError(t, s.Close())

	s, err = NewSQLiteStore(path, nil)
	require.NoError(t, err)
	defer s.Close()

	recs, err := s.Recent(ctx, "c1", 0)
	require.NoError(t, err)
	require.Len(t, recs, 1)
	assert.Equal(t, KindBranchResult, recs[0].Kind)
}

func TestInMemoryStore_Closed(t *testing.T) {
	s := NewInMemoryStore()
	require.NoError(t, s.Close())
	assert.ErrorIs(t, s.Append(context.Background(), NewRecord("c", "", KindUser, "x")), ErrClosed)
	_, err := s.Recent(context.Background(), "c", 0)
	assert.ErrorIs(t, err, ErrClosed)
}

func TestRecord_ToContent(t *testing.T) {
	reply := NewRecord("c", "", KindReply, "hello").ToContent()
	assert.Equal(t, core.RoleAssistant, reply.Role)
	assert.Equal(t, "hello", reply.Text())

	user := NewRecord("c", "", KindWorkerResult, "[Worker completed]: done").ToContent()
	assert.Equal(t, core.RoleUser, user.Role)
}
