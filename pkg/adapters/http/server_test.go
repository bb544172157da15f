package http_test

import (
	"bufio"
	"bytes"
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/aretw0/wren"
	wrenhttp "github.com/aretw0/wren/pkg/adapters/http"
	"github.com/aretw0/wren/pkg/dice"
	"github.com/aretw0/wren/pkg/domain"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newHandler(t *testing.T) http.Handler {
	t.Helper()
	eng, err := wren.New(
		wren.WithRoller(dice.NewRoller(3)),
		wren.WithFeedInterval(10*time.Millisecond),
	)
	require.NoError(t, err)
	return wrenhttp.NewHandler(eng)
}

func do(t *testing.T, h http.Handler, method, path string, body any) *httptest.ResponseRecorder {
	t.Helper()
	var buf bytes.Buffer
	if body != nil {
		require.NoError(t, json.NewEncoder(&buf).Encode(body))
	}
	req := httptest.NewRequest(method, path, &buf)
	req.Header.Set("Content-Type", "application/json")
	w := httptest.NewRecorder()
	h.ServeHTTP(w, req)
	return w
}

func createSession(t *testing.T, h http.Handler, creator string) string {
	t.Helper()
	w := do(t, h, http.MethodPost, "/sessions", map[string]any{"name": "Docks", "creator": creator})
	require.Equal(t, http.StatusCreated, w.Code, w.Body.String())
	var resp struct {
		SessionID string `json:"sessionId"`
	}
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &resp))
	require.NotEmpty(t, resp.SessionID)
	return resp.SessionID
}

func TestLoadSpec(t *testing.T) {
	doc, err := wrenhttp.LoadSpec(context.Background())
	require.NoError(t, err)
	assert.Equal(t, "1.2.0", doc.Info.Version)
}

func TestHealthAndInfo(t *testing.T) {
	h := newHandler(t)

	w := do(t, h, http.MethodGet, "/health", nil)
	assert.Equal(t, http.StatusOK, w.Code)

	w = do(t, h, http.MethodGet, "/info", nil)
	require.Equal(t, http.StatusOK, w.Code)
	var info map[string]string
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &info))
	assert.Equal(t, wren.Version, info["version"])
	assert.Equal(t, "1.2.0", info["api_version"])

	w = do(t, h, http.MethodGet, "/openapi.yaml", nil)
	assert.Equal(t, http.StatusOK, w.Code)
	assert.Contains(t, w.Body.String(), `"openapi":"3.0.3"`)
}

func TestSessionLifecycle(t *testing.T) {
	h := newHandler(t)
	id := createSession(t, h, "gm-1")

	w := do(t, h, http.MethodPost, "/sessions/"+id+"/join", map[string]string{
		"participantId": "p-1234",
		"characterName": "Ghost",
	})
	require.Equal(t, http.StatusOK, w.Code, w.Body.String())
	assert.Contains(t, w.Body.String(), `"role":"player"`)

	w = do(t, h, http.MethodPost, "/sessions/"+id+"/join", map[string]string{"participantId": "p-1234"})
	assert.Equal(t, http.StatusBadRequest, w.Code)

	w = do(t, h, http.MethodPost, "/sessions/"+id+"/command", map[string]string{
		"participantId": "p-1234",
		"commandText":   "/roll 3d6 jump",
	})
	require.Equal(t, http.StatusOK, w.Code, w.Body.String())
	var res wrenhttp.CommandResponse
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &res))
	assert.Equal(t, "success", res.Status)
	assert.Equal(t, "roll", res.Command)
	require.NotNil(t, res.Roll)
	assert.Len(t, res.Roll.Values, 3)

	w = do(t, h, http.MethodGet, "/sessions/"+id, nil)
	require.Equal(t, http.StatusOK, w.Code)
	var snap domain.Snapshot
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &snap))
	assert.Len(t, snap.Members, 2)
	assert.Len(t, snap.RecentLog, 1)

	w = do(t, h, http.MethodGet, "/sessions/"+id+"/log?since=0", nil)
	require.Equal(t, http.StatusOK, w.Code)
	var entries []domain.LogEntry
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &entries))
	require.Len(t, entries, 1)
	assert.Equal(t, "Ghost", entries[0].Speaker)

	w = do(t, h, http.MethodPost, "/sessions/"+id+"/close", map[string]string{"participantId": "p-1234"})
	assert.Equal(t, http.StatusForbidden, w.Code)
	w = do(t, h, http.MethodPost, "/sessions/"+id+"/close", map[string]string{"participantId": "gm-1"})
	assert.Equal(t, http.StatusOK, w.Code)

	w = do(t, h, http.MethodGet, "/sessions", nil)
	require.Equal(t, http.StatusOK, w.Code)
	assert.Contains(t, w.Body.String(), `"is_active":false`)
}

func TestErrorMapping(t *testing.T) {
	h := newHandler(t)
	id := createSession(t, h, "gm-1")

	tests := []struct {
		name string
		path string
		body map[string]string
		code int
	}{
		{"missing session", "/sessions/nope/command", map[string]string{"participantId": "gm-1", "commandText": "/roll"}, http.StatusNotFound},
		{"not a member", "/sessions/" + id + "/command", map[string]string{"participantId": "stranger", "commandText": "/roll"}, http.StatusForbidden},
		{"unknown command", "/sessions/" + id + "/command", map[string]string{"participantId": "gm-1", "commandText": "/dance"}, http.StatusBadRequest},
		{"not implemented", "/sessions/" + id + "/command", map[string]string{"participantId": "gm-1", "commandText": "/mark"}, http.StatusNotImplemented},
		{"bad role", "/sessions/" + id + "/join", map[string]string{"participantId": "p-9", "role": "king"}, http.StatusBadRequest},
		{"join missing", "/sessions/nope/join", map[string]string{"participantId": "p-9"}, http.StatusNotFound},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			w := do(t, h, http.MethodPost, tt.path, tt.body)
			assert.Equal(t, tt.code, w.Code, w.Body.String())
			var resp wrenhttp.ErrorResponse
			require.NoError(t, json.Unmarshal(w.Body.Bytes(), &resp))
			assert.Equal(t, "error", resp.Status)
			assert.NotEmpty(t, resp.Message)
		})
	}

	for _, path := range []string{
		"/sessions/" + id + "/log?since=-1",
		"/sessions/" + id + "/log?since=abc",
		"/sessions/" + id + "/log?limit=many",
	} {
		w := do(t, h, http.MethodGet, path, nil)
		assert.Equal(t, http.StatusBadRequest, w.Code, path)
		var resp wrenhttp.ErrorResponse
		require.NoError(t, json.Unmarshal(w.Body.Bytes(), &resp), path)
		assert.Equal(t, "error", resp.Status)
	}
}

func TestSubscribeEvents_Rejects(t *testing.T) {
	h := newHandler(t)
	id := createSession(t, h, "gm-1")

	w := do(t, h, http.MethodGet, "/sessions/missing/events?participantId=gm-1", nil)
	assert.Equal(t, http.StatusNotFound, w.Code)

	w = do(t, h, http.MethodGet, "/sessions/"+id+"/events?participantId=stranger", nil)
	assert.Equal(t, http.StatusForbidden, w.Code)

	w = do(t, h, http.MethodGet, "/sessions/"+id+"/events?participantId=gm-1&cursor=x:y", nil)
	assert.Equal(t, http.StatusBadRequest, w.Code)

	w = do(t, h, http.MethodGet, "/sessions/"+id+"/events", nil)
	assert.Equal(t, http.StatusBadRequest, w.Code)
	assert.Contains(t, w.Body.String(), "participantId")
}

func TestSubscribeEvents_Stream(t *testing.T) {
	h := newHandler(t)
	id := createSession(t, h, "gm-1")

	w := do(t, h, http.MethodPost, "/sessions/"+id+"/command", map[string]string{
		"participantId": "gm-1",
		"commandText":   "/echo Lights out.",
	})
	require.Equal(t, http.StatusOK, w.Code, w.Body.String())

	srv := httptest.NewServer(h)
	defer srv.Close()

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, srv.URL+"/sessions/"+id+"/events?participantId=gm-1", nil)
	require.NoError(t, err)
	resp, err := http.DefaultClient.Do(req)
	require.NoError(t, err)
	defer resp.Body.Close()

	assert.Equal(t, "text/event-stream", resp.Header.Get("Content-Type"))

	var lines []string
	scanner := bufio.NewScanner(resp.Body)
	for scanner.Scan() {
		line := scanner.Text()
		lines = append(lines, line)
		if line == "event: heartbeat" {
			break
		}
	}
	body := strings.Join(lines, "\n")
	assert.Contains(t, body, "event: ping")
	assert.Contains(t, body, "event: log")
	assert.Contains(t, body, "Lights out.")
	assert.Contains(t, body, "event: scene_update")
	assert.Contains(t, body, "id: 1:")
}

func TestSubscribeEvents_ResumesFromLastEventID(t *testing.T) {
	h := newHandler(t)
	id := createSession(t, h, "gm-1")
	for _, text := range []string{"/echo First.", "/echo Second."} {
		w := do(t, h, http.MethodPost, "/sessions/"+id+"/command", map[string]string{
			"participantId": "gm-1",
			"commandText":   text,
		})
		require.Equal(t, http.StatusOK, w.Code, w.Body.String())
	}

	srv := httptest.NewServer(h)
	defer srv.Close()

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, srv.URL+"/sessions/"+id+"/events?participantId=gm-1", nil)
	require.NoError(t, err)
	req.Header.Set("Last-Event-ID", "1")
	resp, err := http.DefaultClient.Do(req)
	require.NoError(t, err)
	defer resp.Body.Close()
	require.Equal(t, http.StatusOK, resp.StatusCode)

	var lines []string
	scanner := bufio.NewScanner(resp.Body)
	for scanner.Scan() {
		line := scanner.Text()
		lines = append(lines, line)
		if line == "event: heartbeat" {
			break
		}
	}
	body := strings.Join(lines, "\n")
	assert.NotContains(t, body, "First.")
	assert.Contains(t, body, "Second.")
	assert.Contains(t, body, "id: 2:")
}

func TestRunCommandStream(t *testing.T) {
	h := newHandler(t)
	id := createSession(t, h, "gm-1")
	path := "/sessions/" + id + "/command/stream"

	t.Run("Prompt Streams Fragments Then Result", func(t *testing.T) {
		w := do(t, h, http.MethodPost, path, map[string]string{"participantId": "gm-1", "commandText": "hello"})
		require.Equal(t, http.StatusOK, w.Code, w.Body.String())
		assert.Equal(t, "text/event-stream", w.Header().Get("Content-Type"))

		var deltas strings.Builder
		var result wrenhttp.CommandResponse
		events := strings.Split(strings.TrimSpace(w.Body.String()), "\n\n")
		require.Greater(t, len(events), 2)
		for i, ev := range events {
			name, data, ok := strings.Cut(ev, "\ndata: ")
			require.True(t, ok, ev)
			if i == len(events)-1 {
				assert.Equal(t, "event: result", name)
				require.NoError(t, json.Unmarshal([]byte(data), &result))
				continue
			}
			assert.Equal(t, "event: delta", name)
			var d wrenhttp.DeltaEvent
			require.NoError(t, json.Unmarshal([]byte(data), &d))
			deltas.WriteString(d.Content)
		}
		assert.Equal(t, "success", result.Status)
		require.NotNil(t, result.Entry)
		assert.Equal(t, result.Entry.Content, deltas.String())
	})

	t.Run("Command Sends Only Result", func(t *testing.T) {
		w := do(t, h, http.MethodPost, path, map[string]string{"participantId": "gm-1", "commandText": "/roll 2d6"})
		require.Equal(t, http.StatusOK, w.Code, w.Body.String())
		assert.True(t, strings.HasPrefix(w.Body.String(), "event: result\ndata: "))
		assert.NotContains(t, w.Body.String(), "event: delta")
	})

	t.Run("Early Failure Is JSON", func(t *testing.T) {
		w := do(t, h, http.MethodPost, path, map[string]string{"participantId": "stranger", "commandText": "hello"})
		assert.Equal(t, http.StatusForbidden, w.Code)
		var resp wrenhttp.ErrorResponse
		require.NoError(t, json.Unmarshal(w.Body.Bytes(), &resp))
		assert.Equal(t, "error", resp.Status)
	})
}

func TestCORSPreflight(t *testing.T) {
	h := newHandler(t)
	w := do(t, h, http.MethodOptions, "/sessions", nil)
	assert.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, "*", w.Header().Get("Access-Control-Allow-Origin"))
}
