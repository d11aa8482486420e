package http

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"sigrelay/internal/core/ports"
	"sigrelay/internal/core/services"
	"sigrelay/internal/infrastructure/monitoring"
	"sigrelay/internal/infrastructure/repositories/memory"
	"sigrelay/internal/infrastructure/signal"

	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newTestRouter(t *testing.T) (*gin.Engine, ports.EndpointRepository, ports.SessionRepository, *monitoring.HealthChecker) {
	t.Helper()
	gin.SetMode(gin.TestMode)

	endpoints := memory.NewMemoryEndpointRepository()
	sessions := memory.NewMemorySessionRepository()
	service := services.NewSignalService(endpoints, sessions, nil, nil)
	wsServer := signal.NewWebSocketServer(service, nil, nil)
	health := monitoring.NewHealthChecker()

	handler := NewPresenceHandler(endpoints, sessions, wsServer, health)
	router := gin.New()
	handler.SetupRoutes(router)
	return router, endpoints, sessions, health
}

func doGet(router *gin.Engine, path string) *httptest.ResponseRecorder {
	w := httptest.NewRecorder()
	req := httptest.NewRequest(http.MethodGet, path, nil)
	router.ServeHTTP(w, req)
	return w
}

func TestListPresence(t *testing.T) {
	router, endpoints, _, _ := newTestRouter(t)
	ctx := context.Background()

	_, _, err := endpoints.Register(ctx, "alice", "conn_a")
	require.NoError(t, err)
	_, _, err = endpoints.Register(ctx, "bob", "conn_b")
	require.NoError(t, err)

	w := doGet(router, "/api/v1/presence")
	require.Equal(t, http.StatusOK, w.Code)

	var body struct {
		Identities []string `json:"identities"`
		Count      int      `json:"count"`
	}
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &body))
	assert.Equal(t, []string{"alice", "bob"}, body.Identities)
	assert.Equal(t, 2, body.Count)
}

func TestGetPresence(t *testing.T) {
	router, endpoints, sessions, _ := newTestRouter(t)
	ctx := context.Background()

	_, _, err := endpoints.Register(ctx, "alice", "conn_a")
	require.NoError(t, err)
	_, _, err = sessions.Open(ctx, "alice", "bob")
	require.NoError(t, err)

	w := doGet(router, "/api/v1/presence/alice")
	require.Equal(t, http.StatusOK, w.Code)

	var body struct {
		Identity string `json:"identity"`
		Conn     string `json:"conn"`
		Sessions []struct {
			ID string
		} `json:"sessions"`
	}
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &body))
	assert.Equal(t, "alice", body.Identity)
	assert.Equal(t, "conn_a", body.Conn)
	assert.Len(t, body.Sessions, 1)
}

func TestGetPresenceUnknown(t *testing.T) {
	router, _, _, _ := newTestRouter(t)

	w := doGet(router, "/api/v1/presence/ghost")
	assert.Equal(t, http.StatusNotFound, w.Code)
}

func TestGetSession(t *testing.T) {
	router, _, sessions, _ := newTestRouter(t)

	session, _, err := sessions.Open(context.Background(), "alice", "bob")
	require.NoError(t, err)

	w := doGet(router, "/api/v1/sessions/"+string(session.ID))
	assert.Equal(t, http.StatusOK, w.Code)

	w = doGet(router, "/api/v1/sessions/nope")
	assert.Equal(t, http.StatusNotFound, w.Code)
}

func TestGetStats(t *testing.T) {
	router, endpoints, sessions, _ := newTestRouter(t)
	ctx := context.Background()

	_, _, err := endpoints.Register(ctx, "alice", "conn_a")
	require.NoError(t, err)
	_, _, err = sessions.Open(ctx, "alice", "bob")
	require.NoError(t, err)

	w := doGet(router, "/api/v1/stats")
	require.Equal(t, http.StatusOK, w.Code)

	var body struct {
		Connections          int `json:"connections"`
		RegisteredIdentities int `json:"registered_identities"`
		ActiveSessions       int `json:"active_sessions"`
	}
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &body))
	assert.Equal(t, 0, body.Connections)
	assert.Equal(t, 1, body.RegisteredIdentities)
	assert.Equal(t, 1, body.ActiveSessions)
}

func TestHealth(t *testing.T) {
	router, _, _, health := newTestRouter(t)

	health.AddCheck("ok", func(ctx context.Context) (bool, error) {
		return true, nil
	}, time.Second)

	w := doGet(router, "/health")
	assert.Equal(t, http.StatusOK, w.Code)

	health.AddCheck("broken", func(ctx context.Context) (bool, error) {
		return false, errors.New("dependency down")
	}, time.Second)

	w = doGet(router, "/health")
	assert.Equal(t, http.StatusServiceUnavailable, w.Code)
}
