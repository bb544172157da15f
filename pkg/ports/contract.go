package ports

import (
	"context"
	"fmt"
	"sync"
	"testing"
	"time"

	"github.com/aretw0/wren/pkg/domain"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// RunStoreContract runs a suite of tests to verify that a Store implementation
// adheres to the defined interface contract.
func RunStoreContract(t *testing.T, store Store) {
	ctx := context.Background()
	base := time.Date(2026, time.March, 1, 12, 0, 0, 0, time.UTC)
	counter := 0

	newSession := func(t *testing.T) domain.Session {
		t.Helper()
		counter++
		sess := domain.Session{
			ID:         fmt.Sprintf("sr-contract-%d-%d", time.Now().UnixNano(), counter),
			Name:       "Contract Run",
			CreatedBy:  "gm-0001",
			CreatedAt:  base,
			LastActive: base,
			IsActive:   true,
			Theme:      domain.DefaultTheme,
			Meta:       map[string]any{"table": "corp"},
		}
		gm := domain.Membership{
			SessionID:     sess.ID,
			ParticipantID: sess.CreatedBy,
			Role:          domain.RoleGameMaster,
			CharacterName: domain.GameMasterCharacter,
			JoinedAt:      base,
		}
		require.NoError(t, store.CreateSession(ctx, sess, domain.NewSceneState(sess.ID, base), gm))
		return sess
	}

	t.Run("Create and Get Session", func(t *testing.T) {
		sess := newSession(t)

		loaded, err := store.GetSession(ctx, sess.ID)
		require.NoError(t, err)
		assert.Equal(t, sess.ID, loaded.ID)
		assert.Equal(t, sess.Name, loaded.Name)
		assert.Equal(t, sess.Theme, loaded.Theme)
		assert.True(t, loaded.IsActive)
		assert.True(t, sess.CreatedAt.Equal(loaded.CreatedAt))
		assert.Equal(t, "corp", loaded.Meta["table"])

		scene, err := store.GetScene(ctx, sess.ID)
		require.NoError(t, err)
		assert.Equal(t, "Unknown location", scene.Location)
		assert.Equal(t, 1, scene.SceneNumber)

		gm, err := store.GetMembership(ctx, sess.ID, sess.CreatedBy)
		require.NoError(t, err)
		assert.Equal(t, domain.RoleGameMaster, gm.Role)
		assert.Equal(t, domain.GameMasterCharacter, gm.CharacterName)
	})

	t.Run("Create Duplicate Session", func(t *testing.T) {
		sess := newSession(t)
		gm := domain.Membership{SessionID: sess.ID, ParticipantID: "other", Role: domain.RoleGameMaster, JoinedAt: base}
		err := store.CreateSession(ctx, sess, domain.NewSceneState(sess.ID, base), gm)
		assert.ErrorIs(t, err, domain.ErrStorage)

		_, err = store.GetMembership(ctx, sess.ID, "other")
		assert.ErrorIs(t, err, domain.ErrNotAMember, "failed creation must not leave a membership behind")
	})

	t.Run("Get Non-Existent", func(t *testing.T) {
		_, err := store.GetSession(ctx, "sr-missing")
		assert.ErrorIs(t, err, domain.ErrSessionNotFound)

		_, err = store.GetScene(ctx, "sr-missing")
		assert.ErrorIs(t, err, domain.ErrNotFound)

		_, err = store.GetMembership(ctx, "sr-missing", "nobody")
		assert.ErrorIs(t, err, domain.ErrNotAMember)

		_, err = store.GetEntity(ctx, "sr-missing", "nothing")
		assert.ErrorIs(t, err, domain.ErrNotFound)
	})

	t.Run("Memberships", func(t *testing.T) {
		sess := newSession(t)
		player := domain.Membership{
			SessionID:     sess.ID,
			ParticipantID: "player-1234",
			Role:          domain.RolePlayer,
			CharacterName: "Twitch",
			JoinedAt:      base.Add(time.Second),
		}
		require.NoError(t, store.AddMembership(ctx, player))

		err := store.AddMembership(ctx, player)
		assert.ErrorIs(t, err, domain.ErrAlreadyMember)

		members, err := store.ListMemberships(ctx, sess.ID)
		require.NoError(t, err)
		require.Len(t, members, 2)
		assert.Equal(t, sess.CreatedBy, members[0].ParticipantID)
		assert.Equal(t, "Twitch", members[1].CharacterName)
	})

	t.Run("Touch and Close Session", func(t *testing.T) {
		sess := newSession(t)
		later := base.Add(time.Hour)

		require.NoError(t, store.TouchSession(ctx, sess.ID, later))
		loaded, err := store.GetSession(ctx, sess.ID)
		require.NoError(t, err)
		assert.True(t, later.Equal(loaded.LastActive))

		require.NoError(t, store.CloseSession(ctx, sess.ID, later))
		loaded, err = store.GetSession(ctx, sess.ID)
		require.NoError(t, err)
		assert.False(t, loaded.IsActive)

		assert.ErrorIs(t, store.TouchSession(ctx, "sr-missing", later), domain.ErrSessionNotFound)

		sessions, err := store.ListSessions(ctx)
		require.NoError(t, err)
		ids := make([]string, 0, len(sessions))
		for _, s := range sessions {
			ids = append(ids, s.ID)
		}
		assert.Contains(t, ids, sess.ID)
	})

	t.Run("Append Assigns Sequence", func(t *testing.T) {
		sess := newSession(t)
		for i := 1; i <= 3; i++ {
			at := base.Add(time.Duration(i) * time.Minute)
			entry, err := store.AppendLog(ctx, domain.LogEntry{
				SessionID: sess.ID,
				AuthorID:  sess.CreatedBy,
				Speaker:   "Game Master",
				Content:   fmt.Sprintf("line %d", i),
				Kind:      domain.KindEcho,
				CreatedAt: at,
			})
			require.NoError(t, err)
			assert.Equal(t, int64(i), entry.Seq)
		}

		loaded, err := store.GetSession(ctx, sess.ID)
		require.NoError(t, err)
		assert.True(t, base.Add(3*time.Minute).Equal(loaded.LastActive), "append must bump last_active")

		all, err := store.LogSince(ctx, sess.ID, 0, 0)
		require.NoError(t, err)
		require.Len(t, all, 3)
		assert.Equal(t, "line 1", all[0].Content)
		assert.Equal(t, domain.KindEcho, all[0].Kind)

		tail, err := store.LogSince(ctx, sess.ID, 2, 0)
		require.NoError(t, err)
		require.Len(t, tail, 1)
		assert.Equal(t, int64(3), tail[0].Seq)

		limited, err := store.LogSince(ctx, sess.ID, 0, 2)
		require.NoError(t, err)
		require.Len(t, limited, 2)
		assert.Equal(t, int64(2), limited[1].Seq)

		recent, err := store.RecentLog(ctx, sess.ID, 2)
		require.NoError(t, err)
		require.Len(t, recent, 2)
		assert.Equal(t, int64(2), recent[0].Seq)
		assert.Equal(t, int64(3), recent[1].Seq)

		empty, err := store.LogSince(ctx, sess.ID, 3, 0)
		require.NoError(t, err)
		assert.Empty(t, empty)
	})

	t.Run("Append Unknown Session", func(t *testing.T) {
		_, err := store.AppendLog(ctx, domain.LogEntry{SessionID: "sr-missing", Content: "x", CreatedAt: base})
		assert.ErrorIs(t, err, domain.ErrSessionNotFound)
	})

	t.Run("Concurrent Appends", func(t *testing.T) {
		sess := newSession(t)
		const writers = 20

		var wg sync.WaitGroup
		seqs := make(chan int64, writers)
		for i := 0; i < writers; i++ {
			wg.Add(1)
			go func(i int) {
				defer wg.Done()
				entry, err := store.AppendLog(ctx, domain.LogEntry{
					SessionID: sess.ID,
					AuthorID:  "writer",
					Content:   fmt.Sprintf("w%d", i),
					CreatedAt: time.Now().UTC(),
				})
				if assert.NoError(t, err) {
					seqs <- entry.Seq
				}
			}(i)
		}
		wg.Wait()
		close(seqs)

		seen := make(map[int64]bool)
		for s := range seqs {
			assert.False(t, seen[s], "duplicate seq %d", s)
			seen[s] = true
		}
		for i := int64(1); i <= writers; i++ {
			assert.True(t, seen[i], "missing seq %d", i)
		}
	})

	t.Run("Save Scene", func(t *testing.T) {
		sess := newSession(t)
		scene, err := store.GetScene(ctx, sess.ID)
		require.NoError(t, err)

		scene.Location = "Downtown"
		scene.SceneNumber = 2
		scene.LastUpdated = base.Add(time.Minute)
		require.NoError(t, store.SaveScene(ctx, scene))

		loaded, err := store.GetScene(ctx, sess.ID)
		require.NoError(t, err)
		assert.Equal(t, "Downtown", loaded.Location)
		assert.Equal(t, "Awaiting mission briefing", loaded.Goal)
		assert.Equal(t, 2, loaded.SceneNumber)
		assert.True(t, scene.LastUpdated.Equal(loaded.LastUpdated))

		missing := domain.NewSceneState("sr-missing", base)
		assert.ErrorIs(t, store.SaveScene(ctx, missing), domain.ErrNotFound)
	})

	t.Run("Entities", func(t *testing.T) {
		sess := newSession(t)
		first := domain.Entity{
			SessionID:   sess.ID,
			ID:          "ent00001",
			Name:        "Lone Star officer",
			Type:        domain.EntityBoss,
			Status:      domain.StatusActive,
			IsActive:    true,
			CreatedBy:   sess.CreatedBy,
			CreatedAt:   base.Add(time.Minute),
			LastUpdated: base.Add(time.Minute),
		}
		second := first
		second.ID = "ent00002"
		second.Name = "Fire spirit"
		second.Type = domain.EntitySpirit
		second.CreatedAt = base.Add(2 * time.Minute)
		second.LastUpdated = base.Add(2 * time.Minute)

		require.NoError(t, store.InsertEntity(ctx, first))
		require.NoError(t, store.InsertEntity(ctx, second))

		active, err := store.ListActiveEntities(ctx, sess.ID)
		require.NoError(t, err)
		require.Len(t, active, 2)
		assert.Equal(t, "ent00001", active[0].ID)

		since, err := store.EntitiesUpdatedSince(ctx, sess.ID, base.Add(time.Minute))
		require.NoError(t, err)
		require.Len(t, since, 1)
		assert.Equal(t, "ent00002", since[0].ID)

		first.IsActive = false
		first.Status = domain.StatusRetired
		first.LastUpdated = base.Add(3 * time.Minute)
		require.NoError(t, store.UpdateEntity(ctx, first))

		active, err = store.ListActiveEntities(ctx, sess.ID)
		require.NoError(t, err)
		require.Len(t, active, 1)
		assert.Equal(t, "ent00002", active[0].ID)

		loaded, err := store.GetEntity(ctx, sess.ID, first.ID)
		require.NoError(t, err)
		assert.False(t, loaded.IsActive)
		assert.Equal(t, domain.StatusRetired, loaded.Status)

		since, err = store.EntitiesUpdatedSince(ctx, sess.ID, base.Add(2*time.Minute))
		require.NoError(t, err)
		require.Len(t, since, 1, "retired entities stay visible to the feed")
		assert.Equal(t, "ent00001", since[0].ID)

		ghost := first
		ghost.ID = "ghost"
		assert.ErrorIs(t, store.UpdateEntity(ctx, ghost), domain.ErrNotFound)
	})
}

// RunConversationStoreContract verifies a ConversationStore implementation.
func RunConversationStoreContract(t *testing.T, store ConversationStore) {
	ctx := context.Background()
	base := time.Date(2026, time.March, 1, 12, 0, 0, 0, time.UTC)
	participant := fmt.Sprintf("participant-%d", time.Now().UnixNano())

	t.Run("Append and Recent", func(t *testing.T) {
		for i := 0; i < 4; i++ {
			role := domain.MessageUser
			if i%2 == 1 {
				role = domain.MessageAssistant
			}
			require.NoError(t, store.Append(ctx, participant, domain.Message{
				Role:      role,
				Content:   fmt.Sprintf("turn %d", i),
				CreatedAt: base.Add(time.Duration(i) * time.Second),
			}))
		}

		recent, err := store.Recent(ctx, participant, 2)
		require.NoError(t, err)
		require.Len(t, recent, 2)
		assert.Equal(t, "turn 2", recent[0].Content)
		assert.Equal(t, domain.MessageUser, recent[0].Role)
		assert.Equal(t, "turn 3", recent[1].Content)
		assert.Equal(t, domain.MessageAssistant, recent[1].Role)
	})

	t.Run("Participants Are Isolated", func(t *testing.T) {
		recent, err := store.Recent(ctx, participant+"-other", 5)
		require.NoError(t, err)
		assert.Empty(t, recent)
	})
}
