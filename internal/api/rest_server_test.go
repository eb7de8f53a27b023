package api

import (
	"bytes"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/annel0/lerocia/internal/auth"
	"github.com/annel0/lerocia/internal/game"
	"github.com/annel0/lerocia/internal/vec"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type staticWorld struct{ snap *game.Snapshot }

func (s staticWorld) Snapshot() *game.Snapshot { return s.snap }

type envelope struct {
	Success bool            `json:"success"`
	Message string          `json:"message"`
	Token   string          `json:"token"`
	Data    json.RawMessage `json:"data"`
}

func newTestServer(t *testing.T) *RestServer {
	t.Helper()
	users := auth.NewMemoryUserRepo()
	hash, err := auth.HashPassword("hunter2")
	require.NoError(t, err)
	_, err = users.CreateUser("admin", hash, true)
	require.NoError(t, err)
	_, err = users.CreateUser("viewer", hash, false)
	require.NoError(t, err)

	issuer, err := auth.NewIssuer(strings.Repeat("k", 32), time.Hour)
	require.NoError(t, err)

	snap := &game.Snapshot{
		TakenAt: time.Now(),
		Clock:   3 * time.Second,
		Characters: []game.CharacterView{
			{ID: 5, Kind: "npc", Name: "Guard", Alive: true, Health: 100, MaxHealth: 100},
			{ID: 10, Kind: "player", Name: "alice", Alive: true, Health: 80, MaxHealth: 100},
			{ID: 11, Kind: "body", Name: "bob's body"},
		},
		WorldItems:  []game.WorldItemView{{WorldID: 1, ItemID: 7, Position: vec.Vec3{X: 3}}},
		Connections: game.ConnectionCounts{Ready: 1, Pending: 2},
	}

	rs, err := NewRestServer(Config{
		Addr:     "127.0.0.1:0",
		Users:    users,
		Issuer:   issuer,
		World:    staticWorld{snap},
		Registry: prometheus.NewRegistry(),
	})
	require.NoError(t, err)
	return rs
}

func do(t *testing.T, rs *RestServer, method, path, token string, body interface{}) (*httptest.ResponseRecorder, envelope) {
	t.Helper()
	var buf bytes.Buffer
	if body != nil {
		require.NoError(t, json.NewEncoder(&buf).Encode(body))
	}
	req := httptest.NewRequest(method, path, &buf)
	req.Header.Set("Content-Type", "application/json")
	if token != "" {
		req.Header.Set("Authorization", "Bearer "+token)
	}
	rec := httptest.NewRecorder()
	rs.Handler().ServeHTTP(rec, req)

	var env envelope
	if strings.HasPrefix(rec.Header().Get("Content-Type"), "application/json") {
		require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &env))
	}
	return rec, env
}

func login(t *testing.T, rs *RestServer, user string) string {
	t.Helper()
	rec, env := do(t, rs, http.MethodPost, "/api/auth/login", "", LoginRequest{Username: user, Password: "hunter2"})
	require.Equal(t, http.StatusOK, rec.Code)
	require.True(t, env.Success)
	require.NotEmpty(t, env.Token)
	return env.Token
}

func TestHealth(t *testing.T) {
	rs := newTestServer(t)
	rec, env := do(t, rs, http.MethodGet, "/health", "", nil)
	assert.Equal(t, http.StatusOK, rec.Code)
	assert.True(t, env.Success)
	assert.NotEmpty(t, rec.Header().Get("X-Trace-Id"))
}

func TestLogin(t *testing.T) {
	rs := newTestServer(t)

	t.Run("неверный пароль", func(t *testing.T) {
		rec, env := do(t, rs, http.MethodPost, "/api/auth/login", "", LoginRequest{Username: "admin", Password: "nope"})
		assert.Equal(t, http.StatusUnauthorized, rec.Code)
		assert.False(t, env.Success)
	})
	t.Run("пустое тело", func(t *testing.T) {
		rec, _ := do(t, rs, http.MethodPost, "/api/auth/login", "", map[string]string{})
		assert.Equal(t, http.StatusBadRequest, rec.Code)
	})
	t.Run("успешный вход", func(t *testing.T) {
		token := login(t, rs, "admin")
		claims, err := rs.issuer.Validate(token)
		require.NoError(t, err)
		assert.Equal(t, "admin", claims.Username)
	})
}

func TestProtectedRoutes(t *testing.T) {
	rs := newTestServer(t)

	rec, _ := do(t, rs, http.MethodGet, "/api/stats", "", nil)
	assert.Equal(t, http.StatusUnauthorized, rec.Code)

	rec, _ = do(t, rs, http.MethodGet, "/api/stats", "garbage", nil)
	assert.Equal(t, http.StatusUnauthorized, rec.Code)

	rec, _ = do(t, rs, http.MethodGet, "/api/stats", login(t, rs, "viewer"), nil)
	assert.Equal(t, http.StatusForbidden, rec.Code)
}

func TestStats(t *testing.T) {
	rs := newTestServer(t)
	rec, env := do(t, rs, http.MethodGet, "/api/stats", login(t, rs, "admin"), nil)
	require.Equal(t, http.StatusOK, rec.Code)

	var stats StatsResponse
	require.NoError(t, json.Unmarshal(env.Data, &stats))
	assert.Equal(t, 1, stats.Players)
	assert.Equal(t, 1, stats.NPCs)
	assert.Equal(t, 1, stats.Bodies)
	assert.Equal(t, 1, stats.WorldItems)
	assert.Equal(t, 2, stats.Connections.Pending)
	assert.Equal(t, "3s", stats.Clock)
}

func TestCharactersAndItems(t *testing.T) {
	rs := newTestServer(t)
	token := login(t, rs, "admin")

	_, env := do(t, rs, http.MethodGet, "/api/characters", token, nil)
	var all []game.CharacterView
	require.NoError(t, json.Unmarshal(env.Data, &all))
	assert.Len(t, all, 3)

	_, env = do(t, rs, http.MethodGet, "/api/characters?kind=npc", token, nil)
	var npcs []game.CharacterView
	require.NoError(t, json.Unmarshal(env.Data, &npcs))
	require.Len(t, npcs, 1)
	assert.Equal(t, "Guard", npcs[0].Name)

	_, env = do(t, rs, http.MethodGet, "/api/world-items", token, nil)
	var items []game.WorldItemView
	require.NoError(t, json.Unmarshal(env.Data, &items))
	require.Len(t, items, 1)
	assert.Equal(t, 7, items[0].ItemID)
}

func TestMetricsEndpoint(t *testing.T) {
	rs := newTestServer(t)
	do(t, rs, http.MethodGet, "/health", "", nil)

	rec, _ := do(t, rs, http.MethodGet, "/metrics", "", nil)
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Contains(t, rec.Body.String(), "lerocia_api_http_request_duration_seconds")
}
