package sqlite

import (
	"context"
	"path/filepath"
	"testing"
	"time"

	"github.com/aretw0/wren/pkg/domain"
	"github.com/aretw0/wren/pkg/ports"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func openTempStore(t *testing.T) *Store {
	t.Helper()
	store, err := Open(filepath.Join(t.TempDir(), "wren.db"))
	require.NoError(t, err)
	t.Cleanup(func() { _ = store.Close() })
	return store
}

func TestOpenRequiresPath(t *testing.T) {
	_, err := Open("  ")
	assert.Error(t, err)
}

func TestSQLiteStore_Contract(t *testing.T) {
	ports.RunStoreContract(t, openTempStore(t))
}

func TestSQLiteConversations_Contract(t *testing.T) {
	ports.RunConversationStoreContract(t, openTempStore(t).Conversations())
}

func TestReopenKeepsLog(t *testing.T) {
	path := filepath.Join(t.TempDir(), "wren.db")
	ctx := context.Background()
	at := time.Date(2026, time.March, 1, 12, 0, 0, 0, time.UTC)

	store, err := Open(path)
	require.NoError(t, err)
	sess := domain.Session{ID: "sr-reopen1", Name: "Reopen", CreatedBy: "gm", CreatedAt: at, LastActive: at, IsActive: true, Theme: domain.DefaultTheme}
	gm := domain.Membership{SessionID: sess.ID, ParticipantID: "gm", Role: domain.RoleGameMaster, CharacterName: domain.GameMasterCharacter, JoinedAt: at}
	require.NoError(t, store.CreateSession(ctx, sess, domain.NewSceneState(sess.ID, at), gm))
	_, err = store.AppendLog(ctx, domain.LogEntry{SessionID: sess.ID, AuthorID: "gm", Speaker: "Game Master", Content: "first", CreatedAt: at})
	require.NoError(t, err)
	require.NoError(t, store.Close())

	// Migrations are idempotent and the sequence resumes after the stored maximum.
	store, err = Open(path)
	require.NoError(t, err)
	defer store.Close()

	entry, err := store.AppendLog(ctx, domain.LogEntry{SessionID: sess.ID, AuthorID: "gm", Speaker: "Game Master", Content: "second", CreatedAt: at.Add(time.Second)})
	require.NoError(t, err)
	assert.Equal(t, int64(2), entry.Seq)
}
