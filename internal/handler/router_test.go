package handler

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/gorilla/websocket"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"groupchat/internal/app/chat"
	"groupchat/internal/app/store"
	"groupchat/internal/configs"
	"groupchat/internal/pkg/metrics"
)

func newTestServer(t *testing.T) *httptest.Server {
	t.Helper()

	ctx, cancel := context.WithCancel(context.Background())
	st := store.NewMemory()
	m := metrics.New()
	manager := chat.NewManager(st, chat.Options{}, m)

	deps := &AppDeps{
		Manager: manager,
		Config:  &configs.AppConfig{Environment: "development", JWTSecret: "test-secret"},
		Store:   st,
		Metrics: m,
	}

	server := httptest.NewServer(Router(ctx, deps))
	t.Cleanup(func() {
		shutdownCtx, cancelShutdown := context.WithTimeout(context.Background(), 2*time.Second)
		defer cancelShutdown()
		_ = manager.Shutdown(shutdownCtx)
		server.Close()
		cancel()
	})
	return server
}

type signupResult struct {
	Data struct {
		Token string `json:"token"`
		User  struct {
			ID       string `json:"id"`
			Username string `json:"username"`
		} `json:"user"`
	} `json:"data"`
}

func signup(t *testing.T, server *httptest.Server, username string) signupResult {
	t.Helper()

	res, err := http.Post(server.URL+"/api/dev/signup", "application/json", strings.NewReader(`{"username":"`+username+`"}`))
	require.NoError(t, err)
	defer res.Body.Close()
	require.Equal(t, http.StatusOK, res.StatusCode)

	var out signupResult
	require.NoError(t, json.NewDecoder(res.Body).Decode(&out))
	require.NotEmpty(t, out.Data.Token)
	return out
}

func authed(t *testing.T, method, url, token string) *http.Response {
	t.Helper()

	req, err := http.NewRequest(method, url, nil)
	require.NoError(t, err)
	req.Header.Set("Authorization", "Bearer "+token)

	res, err := http.DefaultClient.Do(req)
	require.NoError(t, err)
	t.Cleanup(func() { res.Body.Close() })
	return res
}

func TestRouter_OperationalEndpoints(t *testing.T) {
	server := newTestServer(t)

	res, err := http.Get(server.URL + "/health")
	require.NoError(t, err)
	res.Body.Close()
	assert.Equal(t, http.StatusOK, res.StatusCode)

	res, err = http.Get(server.URL + "/metrics")
	require.NoError(t, err)
	res.Body.Close()
	assert.Equal(t, http.StatusOK, res.StatusCode)

	res, err = http.Get(server.URL + "/ws")
	require.NoError(t, err)
	res.Body.Close()
	assert.Equal(t, http.StatusUnauthorized, res.StatusCode)
}

func TestRouter_SignupAndSelf(t *testing.T) {
	server := newTestServer(t)
	alice := signup(t, server, "alice")

	res := authed(t, http.MethodGet, server.URL+"/api/self", alice.Data.Token)
	require.Equal(t, http.StatusOK, res.StatusCode)

	var self struct {
		Data struct {
			ID       string `json:"id"`
			Username string `json:"username"`
		} `json:"data"`
	}
	require.NoError(t, json.NewDecoder(res.Body).Decode(&self))
	assert.Equal(t, alice.Data.User.ID, self.Data.ID)
	assert.Equal(t, "alice", self.Data.Username)

	dup, err := http.Post(server.URL+"/api/dev/signup", "application/json", strings.NewReader(`{"username":"alice"}`))
	require.NoError(t, err)
	dup.Body.Close()
	assert.Equal(t, http.StatusConflict, dup.StatusCode)

	bad, err := http.Post(server.URL+"/api/dev/signup", "application/json", strings.NewReader(`{"username":"a"}`))
	require.NoError(t, err)
	bad.Body.Close()
	assert.Equal(t, http.StatusBadRequest, bad.StatusCode)
}

func TestRouter_WebSocketRoundTripAndLogout(t *testing.T) {
	server := newTestServer(t)
	alice := signup(t, server, "alice")

	wsURL := "ws" + strings.TrimPrefix(server.URL, "http") + "/ws?token=" + alice.Data.Token
	conn, _, err := websocket.DefaultDialer.Dial(wsURL, nil)
	require.NoError(t, err)
	defer conn.Close()

	require.NoError(t, conn.WriteJSON(map[string]any{"id": 1, "op": "channel:list"}))

	require.NoError(t, conn.SetReadDeadline(time.Now().Add(2*time.Second)))
	var reply struct {
		Type    string `json:"type"`
		ID      int    `json:"id"`
		Status  string `json:"status"`
		HasMore *bool  `json:"hasMore"`
		Data    []struct {
			Name string `json:"name"`
		} `json:"data"`
	}
	require.NoError(t, conn.ReadJSON(&reply))
	assert.Equal(t, "response", reply.Type)
	assert.Equal(t, 1, reply.ID)
	assert.Equal(t, "OK", reply.Status)
	require.Len(t, reply.Data, 1)
	assert.Equal(t, store.GeneralChannelName, reply.Data[0].Name)
	require.NotNil(t, reply.HasMore)
	assert.False(t, *reply.HasMore)

	res := authed(t, http.MethodPost, server.URL+"/api/logout", alice.Data.Token)
	assert.Equal(t, http.StatusNoContent, res.StatusCode)

	_, _, err = conn.ReadMessage()
	assert.True(t, websocket.IsCloseError(err, chat.WsCloseCodeSessionEnded), "got %v", err)
}
