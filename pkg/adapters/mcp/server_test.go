package mcp

import (
	"context"
	"testing"

	"github.com/aretw0/wren"
	"github.com/aretw0/wren/pkg/dice"
	"github.com/aretw0/wren/pkg/domain"
	"github.com/mark3labs/mcp-go/mcp"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newTestServer(t *testing.T) *Server {
	t.Helper()
	eng, err := wren.New(wren.WithRoller(dice.NewRoller(11)))
	require.NoError(t, err)
	return NewServer(eng)
}

func TestTools_SessionFlow(t *testing.T) {
	s := newTestServer(t)
	ctx := context.Background()
	req := mcp.CallToolRequest{}

	sess, err := s.handleCreateSession(ctx, req, map[string]interface{}{
		"creator": "gm-1",
		"name":    "Night Market",
	})
	require.NoError(t, err)
	assert.Equal(t, "Night Market", sess.Name)

	m, err := s.handleJoinSession(ctx, req, map[string]interface{}{
		"session_id":     sess.ID,
		"participant_id": "agent-0042",
		"character_name": "Oracle",
	})
	require.NoError(t, err)
	assert.Equal(t, domain.RolePlayer, m.Role)

	res, err := s.handleRunCommand(ctx, req, map[string]interface{}{
		"session_id":     sess.ID,
		"participant_id": "agent-0042",
		"text":           "/echo I am watching.",
	})
	require.NoError(t, err)
	assert.Equal(t, "echo", res.Command)

	_, err = s.handleRunCommand(ctx, req, map[string]interface{}{
		"session_id":     sess.ID,
		"participant_id": "agent-0042",
		"text":           "/roll 2d6",
	})
	require.NoError(t, err)

	logs, err := s.handleReadLogSince(ctx, req, map[string]interface{}{
		"session_id": sess.ID,
		"since":      float64(1),
	})
	require.NoError(t, err)
	require.Len(t, logs.Entries, 1)
	assert.Equal(t, int64(2), logs.Latest)

	snap, err := s.handleGetSnapshot(ctx, req, map[string]interface{}{"session_id": sess.ID})
	require.NoError(t, err)
	assert.Len(t, snap.RecentLog, 2)
}

func TestTools_Errors(t *testing.T) {
	s := newTestServer(t)
	ctx := context.Background()
	req := mcp.CallToolRequest{}

	_, err := s.handleGetSnapshot(ctx, req, map[string]interface{}{"session_id": "missing"})
	assert.ErrorIs(t, err, domain.ErrSessionNotFound)

	_, err = s.handleReadLogSince(ctx, req, map[string]interface{}{"session_id": "x", "since": float64(-1)})
	assert.ErrorIs(t, err, domain.ErrValidation)

	_, err = s.handleReadLogSince(ctx, req, map[string]interface{}{"session_id": "x", "since": []string{"a"}})
	assert.ErrorIs(t, err, domain.ErrValidation)
}

func TestResource_Sessions(t *testing.T) {
	s := newTestServer(t)
	ctx := context.Background()

	_, err := s.handleCreateSession(ctx, mcp.CallToolRequest{}, map[string]interface{}{"creator": "gm-1", "name": "Alpha"})
	require.NoError(t, err)

	contents, err := s.readSessions(ctx, mcp.ReadResourceRequest{})
	require.NoError(t, err)
	require.Len(t, contents, 1)
	text, ok := contents[0].(mcp.TextResourceContents)
	require.True(t, ok)
	assert.Equal(t, SessionsURI, text.URI)
	assert.Contains(t, text.Text, "Alpha")
}
