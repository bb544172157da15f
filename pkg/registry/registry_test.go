package registry_test

import (
	"context"
	"testing"
	"time"

	"github.com/aretw0/wren/pkg/adapters/memory"
	"github.com/aretw0/wren/pkg/domain"
	"github.com/aretw0/wren/pkg/registry"
	"github.com/aretw0/wren/pkg/session"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newRegistry(t *testing.T) (*registry.Registry, *memory.Store) {
	t.Helper()
	store := memory.NewStore()
	return registry.New(store, session.NewManager()), store
}

func TestCreate_Defaults(t *testing.T) {
	reg, _ := newRegistry(t)
	ctx := context.Background()

	sess, err := reg.Create(ctx, registry.CreateRequest{})
	require.NoError(t, err)

	assert.Regexp(t, `^sr-[0-9a-f]{8}$`, sess.ID)
	assert.Equal(t, domain.DefaultSessionName, sess.Name)
	assert.Equal(t, domain.DefaultCreator, sess.CreatedBy)
	assert.Equal(t, domain.DefaultTheme, sess.Theme)
	assert.True(t, sess.IsActive)

	snap, err := reg.Snapshot(ctx, sess.ID)
	require.NoError(t, err)
	require.Len(t, snap.Members, 1)
	assert.Equal(t, domain.RoleGameMaster, snap.Members[0].Role)
	assert.Equal(t, domain.GameMasterCharacter, snap.Members[0].CharacterName)
	assert.Equal(t, 1, snap.Scene.SceneNumber)
	assert.Equal(t, "Unknown location", snap.Scene.Location)
	assert.Empty(t, snap.Entities)
	assert.Empty(t, snap.RecentLog)
}

func TestCreate_UniqueIDs(t *testing.T) {
	reg, _ := newRegistry(t)
	seen := map[string]bool{}
	for i := 0; i < 50; i++ {
		sess, err := reg.Create(context.Background(), registry.CreateRequest{CreatorID: "gm"})
		require.NoError(t, err)
		require.False(t, seen[sess.ID], "duplicate id %s", sess.ID)
		seen[sess.ID] = true
	}
}

func TestCreate_DuplicateIDIsStorageError(t *testing.T) {
	store := memory.NewStore()
	reg := registry.New(store, session.NewManager(), registry.WithIDGenerator(func() string { return "sr-fixed000" }))
	ctx := context.Background()

	_, err := reg.Create(ctx, registry.CreateRequest{CreatorID: "gm"})
	require.NoError(t, err)
	_, err = reg.Create(ctx, registry.CreateRequest{CreatorID: "other"})
	assert.ErrorIs(t, err, domain.ErrStorage)
}

func TestJoin(t *testing.T) {
	reg, _ := newRegistry(t)
	ctx := context.Background()
	sess, err := reg.Create(ctx, registry.CreateRequest{CreatorID: "gm-1"})
	require.NoError(t, err)

	t.Run("Default Character Name", func(t *testing.T) {
		m, err := reg.Join(ctx, registry.JoinRequest{SessionID: sess.ID, ParticipantID: "user-abcd1234"})
		require.NoError(t, err)
		assert.Equal(t, domain.RolePlayer, m.Role)
		assert.Equal(t, "Runner-1234", m.CharacterName)
	})

	t.Run("Explicit Role And Character", func(t *testing.T) {
		m, err := reg.Join(ctx, registry.JoinRequest{
			SessionID:     sess.ID,
			ParticipantID: "watcher",
			Role:          "Observer",
			CharacterName: "Fixer",
		})
		require.NoError(t, err)
		assert.Equal(t, domain.RoleObserver, m.Role)
		assert.Equal(t, "Fixer", m.CharacterName)
	})

	t.Run("Twice", func(t *testing.T) {
		_, err := reg.Join(ctx, registry.JoinRequest{SessionID: sess.ID, ParticipantID: "user-abcd1234"})
		assert.ErrorIs(t, err, domain.ErrAlreadyMember)
	})

	t.Run("Invalid Role", func(t *testing.T) {
		_, err := reg.Join(ctx, registry.JoinRequest{SessionID: sess.ID, ParticipantID: "x", Role: "dragon"})
		assert.ErrorIs(t, err, domain.ErrValidation)
	})

	t.Run("Missing Participant", func(t *testing.T) {
		_, err := reg.Join(ctx, registry.JoinRequest{SessionID: sess.ID})
		assert.ErrorIs(t, err, domain.ErrValidation)
	})

	t.Run("Unknown Session", func(t *testing.T) {
		_, err := reg.Join(ctx, registry.JoinRequest{SessionID: "sr-nope", ParticipantID: "x"})
		assert.ErrorIs(t, err, domain.ErrSessionNotFound)
	})

	members, err := reg.Snapshot(ctx, sess.ID)
	require.NoError(t, err)
	assert.Len(t, members.Members, 3)
}

func TestJoin_BumpsLastActive(t *testing.T) {
	clock := time.Date(2026, 1, 1, 12, 0, 0, 0, time.UTC)
	store := memory.NewStore()
	reg := registry.New(store, session.NewManager(), registry.WithClock(func() time.Time { return clock }))
	ctx := context.Background()

	sess, err := reg.Create(ctx, registry.CreateRequest{CreatorID: "gm"})
	require.NoError(t, err)

	clock = clock.Add(time.Minute)
	_, err = reg.Join(ctx, registry.JoinRequest{SessionID: sess.ID, ParticipantID: "p1"})
	require.NoError(t, err)

	got, err := reg.Session(ctx, sess.ID)
	require.NoError(t, err)
	assert.Equal(t, clock, got.LastActive)
}

func TestClose(t *testing.T) {
	reg, _ := newRegistry(t)
	ctx := context.Background()
	sess, err := reg.Create(ctx, registry.CreateRequest{CreatorID: "gm"})
	require.NoError(t, err)
	_, err = reg.Join(ctx, registry.JoinRequest{SessionID: sess.ID, ParticipantID: "p1"})
	require.NoError(t, err)

	assert.ErrorIs(t, reg.Close(ctx, sess.ID, "p1"), domain.ErrUnauthorized)
	assert.ErrorIs(t, reg.Close(ctx, sess.ID, "stranger"), domain.ErrNotAMember)
	require.NoError(t, reg.Close(ctx, sess.ID, "gm"))

	_, err = reg.RequireActive(ctx, sess.ID)
	assert.ErrorIs(t, err, domain.ErrSessionNotFound)

	_, err = reg.Join(ctx, registry.JoinRequest{SessionID: sess.ID, ParticipantID: "late"})
	assert.ErrorIs(t, err, domain.ErrSessionNotFound)

	// Closed sessions stay readable.
	got, err := reg.Session(ctx, sess.ID)
	require.NoError(t, err)
	assert.False(t, got.IsActive)
}

func TestSnapshot_RecentLimit(t *testing.T) {
	store := memory.NewStore()
	reg := registry.New(store, session.NewManager(), registry.WithRecentLimit(3))
	ctx := context.Background()
	sess, err := reg.Create(ctx, registry.CreateRequest{CreatorID: "gm"})
	require.NoError(t, err)

	for i := 0; i < 5; i++ {
		_, err := store.AppendLog(ctx, domain.LogEntry{SessionID: sess.ID, Speaker: "gm", Content: "x", CreatedAt: time.Now()})
		require.NoError(t, err)
	}

	snap, err := reg.Snapshot(ctx, sess.ID)
	require.NoError(t, err)
	require.Len(t, snap.RecentLog, 3)
	assert.Equal(t, int64(3), snap.RecentLog[0].Seq)
	assert.Equal(t, int64(5), snap.RecentLog[2].Seq)

	_, err = reg.Snapshot(ctx, "sr-missing")
	assert.ErrorIs(t, err, domain.ErrSessionNotFound)
}

func TestList(t *testing.T) {
	reg, _ := newRegistry(t)
	ctx := context.Background()
	for i := 0; i < 3; i++ {
		_, err := reg.Create(ctx, registry.CreateRequest{CreatorID: "gm"})
		require.NoError(t, err)
	}
	list, err := reg.List(ctx)
	require.NoError(t, err)
	assert.Len(t, list, 3)
}
