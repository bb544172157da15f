package scenelog_test

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/aretw0/wren/pkg/adapters/memory"
	"github.com/aretw0/wren/pkg/domain"
	"github.com/aretw0/wren/pkg/scenelog"
	"github.com/aretw0/wren/pkg/session"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func seed(t *testing.T, store *memory.Store, id string) {
	t.Helper()
	now := time.Now().UTC()
	err := store.CreateSession(context.Background(),
		domain.Session{ID: id, IsActive: true, CreatedAt: now, LastActive: now},
		domain.NewSceneState(id, now),
		domain.Membership{SessionID: id, ParticipantID: "gm", Role: domain.RoleGameMaster, CharacterName: domain.GameMasterCharacter},
	)
	require.NoError(t, err)
}

func TestAppend_SequenceAndSpeaker(t *testing.T) {
	store := memory.NewStore()
	seed(t, store, "sr-1")
	log := scenelog.New(store, session.NewManager())
	ctx := context.Background()

	e1, err := log.Append(ctx, scenelog.AppendRequest{SessionID: "sr-1", AuthorID: "gm", Content: "The rain falls."})
	require.NoError(t, err)
	assert.Equal(t, int64(1), e1.Seq)
	assert.Equal(t, domain.GameMasterCharacter, e1.Speaker)

	e2, err := log.Append(ctx, scenelog.AppendRequest{SessionID: "sr-1", AuthorID: "ghost-9876", Content: "hi"})
	require.NoError(t, err)
	assert.Equal(t, int64(2), e2.Seq)
	assert.Equal(t, "User-9876", e2.Speaker)

	e3, err := log.Append(ctx, scenelog.AppendRequest{
		SessionID: "sr-1",
		AuthorID:  "gm",
		Speaker:   domain.SceneSpeaker,
		Content:   "**SCENE 2**",
		Kind:      domain.KindScene,
		Override:  true,
	})
	require.NoError(t, err)
	assert.Equal(t, domain.SceneSpeaker, e3.Speaker)
	assert.True(t, e3.IsOverride)

	latest, err := log.Latest(ctx, "sr-1")
	require.NoError(t, err)
	assert.Equal(t, int64(3), latest)
}

func TestAppend_Rejections(t *testing.T) {
	store := memory.NewStore()
	seed(t, store, "sr-1")
	log := scenelog.New(store, session.NewManager())
	ctx := context.Background()

	_, err := log.Append(ctx, scenelog.AppendRequest{SessionID: "sr-1", AuthorID: "gm", Content: "  "})
	assert.ErrorIs(t, err, domain.ErrValidation)

	_, err = log.Append(ctx, scenelog.AppendRequest{SessionID: "sr-none", AuthorID: "gm", Content: "x"})
	assert.ErrorIs(t, err, domain.ErrSessionNotFound)

	require.NoError(t, store.CloseSession(ctx, "sr-1", time.Now()))
	_, err = log.Append(ctx, scenelog.AppendRequest{SessionID: "sr-1", AuthorID: "gm", Content: "x"})
	assert.ErrorIs(t, err, domain.ErrSessionNotFound)
}

func TestAppend_ConcurrentWritersGetDistinctSeqs(t *testing.T) {
	store := memory.NewStore()
	seed(t, store, "sr-1")
	log := scenelog.New(store, session.NewManager())
	ctx := context.Background()

	const writers = 25
	var wg sync.WaitGroup
	seqs := make(chan int64, writers)
	for i := 0; i < writers; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			e, err := log.Append(ctx, scenelog.AppendRequest{SessionID: "sr-1", AuthorID: "gm", Content: "go"})
			assert.NoError(t, err)
			seqs <- e.Seq
		}()
	}
	wg.Wait()
	close(seqs)

	seen := map[int64]bool{}
	for s := range seqs {
		assert.False(t, seen[s])
		seen[s] = true
	}
	for i := int64(1); i <= writers; i++ {
		assert.True(t, seen[i], "missing seq %d", i)
	}
}

func TestAppend_NotifiesAndHooks(t *testing.T) {
	store := memory.NewStore()
	seed(t, store, "sr-1")
	notifier := memory.NewNotifier()
	var appended []int64
	log := scenelog.New(store, session.NewManager(),
		scenelog.WithNotifier(notifier),
		scenelog.WithHooks(domain.Hooks{
			OnAppend: func(ctx context.Context, e *domain.AppendEvent) {
				appended = append(appended, e.Entry.Seq)
			},
		}),
	)
	ctx := context.Background()

	wake, cancel := notifier.Subscribe(ctx, "sr-1")
	defer cancel()

	_, err := log.Append(ctx, scenelog.AppendRequest{SessionID: "sr-1", AuthorID: "gm", Content: "x"})
	require.NoError(t, err)

	select {
	case <-wake:
	case <-time.After(time.Second):
		t.Fatal("expected wake-up after append")
	}
	assert.Equal(t, []int64{1}, appended)
}

func TestSince(t *testing.T) {
	store := memory.NewStore()
	seed(t, store, "sr-1")
	log := scenelog.New(store, session.NewManager())
	ctx := context.Background()

	for i := 0; i < 5; i++ {
		_, err := log.Append(ctx, scenelog.AppendRequest{SessionID: "sr-1", AuthorID: "gm", Content: "x"})
		require.NoError(t, err)
	}

	all, err := log.Since(ctx, "sr-1", 0, 0)
	require.NoError(t, err)
	assert.Len(t, all, 5)

	tail, err := log.Since(ctx, "sr-1", 3, 0)
	require.NoError(t, err)
	require.Len(t, tail, 2)
	assert.Equal(t, int64(4), tail[0].Seq)

	limited, err := log.Since(ctx, "sr-1", 0, 2)
	require.NoError(t, err)
	require.Len(t, limited, 2)
	assert.Equal(t, int64(2), limited[1].Seq)

	none, err := log.Since(ctx, "sr-1", 5, 0)
	require.NoError(t, err)
	assert.Empty(t, none)

	_, err = log.Since(ctx, "sr-none", 0, 0)
	assert.ErrorIs(t, err, domain.ErrSessionNotFound)

	recent, err := log.Recent(ctx, "sr-1", 2)
	require.NoError(t, err)
	require.Len(t, recent, 2)
	assert.Equal(t, int64(5), recent[1].Seq)
}
