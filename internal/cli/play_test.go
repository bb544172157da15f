package cli

import (
	"bytes"
	"context"
	"strings"
	"testing"

	"github.com/aretw0/wren"
	"github.com/aretw0/wren/pkg/domain"
	"github.com/aretw0/wren/pkg/registry"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestPlay_CreatesSession(t *testing.T) {
	eng, err := wren.New()
	require.NoError(t, err)

	var out bytes.Buffer
	in := strings.NewReader("/scene\n\n/dance\n/echo Move out.\nquit\n/echo never sent\n")
	sessionID, err := Play(context.Background(), eng, PlayOptions{ParticipantID: "gm-0001"}, in, &out)
	require.NoError(t, err)
	require.NotEmpty(t, sessionID)

	text := out.String()
	assert.Contains(t, text, "created. You are the game-master.")
	assert.Contains(t, text, "Unknown location")
	assert.Contains(t, text, "Error: ")
	assert.Contains(t, text, "Unknown command: /dance")

	entries, err := eng.LogSince(context.Background(), sessionID, 0, 0)
	require.NoError(t, err)
	require.Len(t, entries, 1)
	assert.Equal(t, "Move out.", entries[0].Content)
}

func TestPlay_JoinsExisting(t *testing.T) {
	eng, err := wren.New()
	require.NoError(t, err)
	ctx := context.Background()
	sess, err := eng.CreateSession(ctx, registry.CreateRequest{CreatorID: "gm-0001"})
	require.NoError(t, err)

	var out bytes.Buffer
	_, err = Play(ctx, eng, PlayOptions{
		SessionID:     sess.ID,
		ParticipantID: "p-4242",
		CharacterName: "Ghost",
	}, strings.NewReader("exit\n"), &out)
	require.NoError(t, err)
	assert.Contains(t, out.String(), "as Ghost (player)")

	m, err := eng.Membership(ctx, sess.ID, "p-4242")
	require.NoError(t, err)
	assert.Equal(t, domain.RolePlayer, m.Role)

	out.Reset()
	_, err = Play(ctx, eng, PlayOptions{SessionID: sess.ID, ParticipantID: "p-4242"}, strings.NewReader(""), &out)
	require.NoError(t, err)
	assert.Contains(t, out.String(), "Resuming session")

	_, err = Play(ctx, eng, PlayOptions{SessionID: "missing", ParticipantID: "p"}, strings.NewReader(""), &out)
	assert.ErrorIs(t, err, domain.ErrSessionNotFound)
}

func TestPlay_StreamReplies(t *testing.T) {
	eng, err := wren.New()
	require.NoError(t, err)

	var out bytes.Buffer
	in := strings.NewReader("hello\n/echo Move out.\n")
	sessionID, err := Play(context.Background(), eng, PlayOptions{
		ParticipantID: "gm-0001",
		StreamReplies: true,
	}, in, &out)
	require.NoError(t, err)

	text := out.String()
	assert.Contains(t, text, domain.AISpeaker+": Hoi, chummer!")
	assert.Equal(t, 1, strings.Count(text, "Hoi, chummer!"))

	entries, err := eng.LogSince(context.Background(), sessionID, 0, 0)
	require.NoError(t, err)
	require.Len(t, entries, 2)
	assert.Equal(t, domain.KindAI, entries[0].Kind)
}
