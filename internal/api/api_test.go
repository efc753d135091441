package api_test

import (
	"context"
	"encoding/json"
	"fmt"
	"net"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/gorilla/websocket"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/mcoot/globalchat/internal/api"
	"github.com/mcoot/globalchat/internal/api/apierr"
	"github.com/mcoot/globalchat/internal/api/response"
	"github.com/mcoot/globalchat/internal/config"
	"github.com/mcoot/globalchat/internal/factory"
	"github.com/mcoot/globalchat/internal/model"
	"github.com/mcoot/globalchat/internal/testutil"
)

// testServer wraps the full router over a test app
type testServer struct {
	handler http.Handler
	app     *factory.TestApp
}

func newTestServer(t *testing.T) *testServer {
	t.Helper()

	app := factory.NewTestApp()
	return &testServer{
		handler: app.Router(),
		app:     app,
	}
}

func (ts *testServer) request(method, path, token string) *httptest.ResponseRecorder {
	req := httptest.NewRequest(method, path, nil)
	if token != "" {
		req.Header.Set("Authorization", "Bearer "+token)
	}

	rr := httptest.NewRecorder()
	ts.handler.ServeHTTP(rr, req)
	return rr
}

func decodeError(t *testing.T, rr *httptest.ResponseRecorder) apierr.APIError {
	t.Helper()
	var resp apierr.ErrorResponse
	require.NoError(t, json.Unmarshal(rr.Body.Bytes(), &resp))
	return resp.Error
}

func TestHealthCheck(t *testing.T) {
	ts := newTestServer(t)
	ts.app.Presence.Register("c1", "alice123", false)

	rr := ts.request(http.MethodGet, "/api/v1/health", "")
	assert.Equal(t, http.StatusOK, rr.Code)

	var resp response.Health
	require.NoError(t, json.Unmarshal(rr.Body.Bytes(), &resp))
	assert.Equal(t, "ok", resp.Status)
	assert.Equal(t, 1, resp.Sessions)
	assert.Equal(t, 0, resp.Connections)
}

func TestOnlineReflectsLiveSessions(t *testing.T) {
	ts := newTestServer(t)
	ts.app.Presence.Register("c1", "alice123", false)
	ts.app.Presence.Register("c2", "Guest0007", true)
	ts.app.Presence.Register("c3", "alice123", false)
	require.NoError(t, ts.app.Presence.SetStatus("c2", model.StatusIdle))

	rr := ts.request(http.MethodGet, "/api/v1/online", "")
	assert.Equal(t, http.StatusOK, rr.Code)

	var resp response.Online
	require.NoError(t, json.Unmarshal(rr.Body.Bytes(), &resp))
	assert.Equal(t, []model.OnlineUser{
		{User: "alice123", Status: model.StatusOnline},
		{User: "Guest0007", Status: model.StatusIdle},
	}, resp.Users)
}

func TestOnlineEmptyIsArray(t *testing.T) {
	ts := newTestServer(t)

	rr := ts.request(http.MethodGet, "/api/v1/online", "")
	assert.Equal(t, http.StatusOK, rr.Code)
	assert.JSONEq(t, `{"users":[]}`, rr.Body.String())
}

func TestGetAccount(t *testing.T) {
	ts := newTestServer(t)
	_, _, err := ts.app.Accounts.Authenticate(context.Background(), "alice123", "pass1234")
	require.NoError(t, err)

	rr := ts.request(http.MethodGet, "/api/v1/accounts/alice123", "")
	assert.Equal(t, http.StatusOK, rr.Code)
	assert.NotContains(t, rr.Body.String(), "pass1234")
	assert.NotContains(t, strings.ToLower(rr.Body.String()), "hash")

	var resp response.Account
	require.NoError(t, json.Unmarshal(rr.Body.Bytes(), &resp))
	assert.Equal(t, "alice123", resp.Username)
	assert.Equal(t, 0, resp.Experience)
	assert.Equal(t, 1, resp.Level)
}

func TestGetAccountErrors(t *testing.T) {
	ts := newTestServer(t)

	rr := ts.request(http.MethodGet, "/api/v1/accounts/nobody12", "")
	assert.Equal(t, http.StatusNotFound, rr.Code)
	assert.Equal(t, apierr.CodeAccountNotFound, decodeError(t, rr).Code)

	rr = ts.request(http.MethodGet, "/api/v1/accounts/ab", "")
	assert.Equal(t, http.StatusBadRequest, rr.Code)
	assert.Equal(t, apierr.CodeInvalidUsername, decodeError(t, rr).Code)
}

func TestMeWithToken(t *testing.T) {
	ts := newTestServer(t)
	ts.app.MockRandom.QueueString("guest-token")
	_, err := ts.app.Tokens.Issue(context.Background(), "Guest0042", true)
	require.NoError(t, err)

	rr := ts.request(http.MethodGet, "/api/v1/me", "guest-token")
	assert.Equal(t, http.StatusOK, rr.Code)

	var resp response.Me
	require.NoError(t, json.Unmarshal(rr.Body.Bytes(), &resp))
	assert.Equal(t, "Guest0042", resp.Username)
	assert.True(t, resp.Guest)
}

func TestMeUnauthorized(t *testing.T) {
	ts := newTestServer(t)

	rr := ts.request(http.MethodGet, "/api/v1/me", "")
	assert.Equal(t, http.StatusUnauthorized, rr.Code)
	assert.Equal(t, apierr.CodeUnauthorized, decodeError(t, rr).Code)

	rr = ts.request(http.MethodGet, "/api/v1/me", "not-a-token")
	assert.Equal(t, http.StatusUnauthorized, rr.Code)
	assert.Equal(t, apierr.CodeInvalidToken, decodeError(t, rr).Code)
}

func TestMethodNotAllowed(t *testing.T) {
	ts := newTestServer(t)

	for _, path := range []string{"/api/v1/online", "/api/v1/health", "/api/v1/accounts/alice123", "/api/v1/me", "/ws"} {
		rr := ts.request(http.MethodPost, path, "")
		assert.Equal(t, http.StatusMethodNotAllowed, rr.Code, path)
		assert.Equal(t, apierr.CodeMethodNotAllowed, decodeError(t, rr).Code, path)
	}
}

func TestUnknownRouteNotFound(t *testing.T) {
	ts := newTestServer(t)

	rr := ts.request(http.MethodGet, "/api/v1/nope", "")
	assert.Equal(t, http.StatusNotFound, rr.Code)
	assert.Equal(t, apierr.CodeNotFound, decodeError(t, rr).Code)
}

func TestWebSocketThroughRouter(t *testing.T) {
	ts := newTestServer(t)
	server := httptest.NewServer(ts.handler)
	defer server.Close()

	wsURL := "ws" + strings.TrimPrefix(server.URL, "http") + "/ws"
	conn, resp, err := websocket.DefaultDialer.Dial(wsURL, nil)
	require.NoError(t, err)
	_ = resp.Body.Close()
	defer func() { _ = conn.Close() }()

	ts.app.MockRandom.QueueIntn(7)
	frame, err := model.NewEnvelope(model.EventLogin, model.LoginPayload{Guest: true})
	require.NoError(t, err)
	require.NoError(t, conn.WriteMessage(websocket.TextMessage, frame))

	_ = conn.SetReadDeadline(time.Now().Add(2 * time.Second))
	_, data, err := conn.ReadMessage()
	require.NoError(t, err)

	var env model.Envelope
	require.NoError(t, json.Unmarshal(data, &env))
	assert.Equal(t, model.EventLoginSuccess, env.Event)

	var ok model.LoginSuccessPayload
	require.NoError(t, json.Unmarshal(env.Data, &ok))
	assert.Equal(t, "Guest0007", ok.Username)

	rr := ts.request(http.MethodGet, "/api/v1/health", "")
	var health response.Health
	require.NoError(t, json.Unmarshal(rr.Body.Bytes(), &health))
	assert.Equal(t, 1, health.Connections)
}

func TestServerConfigFrom(t *testing.T) {
	sc := api.ServerConfigFrom(config.ServerConfig{Host: "127.0.0.1", Port: 9090, ShutdownTimeout: 5 * time.Second})
	assert.Equal(t, "127.0.0.1", sc.Host)
	assert.Equal(t, 9090, sc.Port)
	assert.Equal(t, 5*time.Second, sc.ShutdownTimeout)
	assert.Equal(t, 15*time.Second, sc.ReadTimeout)

	sc = api.ServerConfigFrom(config.ServerConfig{})
	assert.Equal(t, 8080, sc.Port)
	assert.Equal(t, 30*time.Second, sc.ShutdownTimeout)
}

func TestJSONResponsesAreUncacheable(t *testing.T) {
	ts := newTestServer(t)

	rr := ts.request(http.MethodGet, "/api/v1/online", "")
	assert.Equal(t, "no-store", rr.Header().Get("Cache-Control"))
	assert.Equal(t, "application/json", rr.Header().Get("Content-Type"))
}

func TestServerRunStopsOnCancel(t *testing.T) {
	listener, err := net.Listen("tcp", "127.0.0.1:0")
	require.NoError(t, err)
	port := listener.Addr().(*net.TCPAddr).Port
	require.NoError(t, listener.Close())

	cfg := api.DefaultServerConfig()
	cfg.Host = "127.0.0.1"
	cfg.Port = port
	server := api.NewServer(newTestServer(t).handler, cfg, testutil.NopLogger())

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- server.Run(ctx) }()

	url := fmt.Sprintf("http://127.0.0.1:%d/api/v1/health", port)
	require.Eventually(t, func() bool {
		resp, err := http.Get(url)
		if err != nil {
			return false
		}
		_ = resp.Body.Close()
		return resp.StatusCode == http.StatusOK
	}, 2*time.Second, 20*time.Millisecond)

	cancel()
	select {
	case err := <-done:
		assert.NoError(t, err)
	case <-time.After(5 * time.Second):
		t.Fatal("server did not stop")
	}
}
