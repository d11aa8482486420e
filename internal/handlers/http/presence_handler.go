package http

import (
	"net/http"

	"sigrelay/internal/core/domain"
	"sigrelay/internal/core/ports"
	"sigrelay/internal/infrastructure/monitoring"
	"sigrelay/internal/infrastructure/signal"

	"github.com/gin-gonic/gin"
)

// PresenceHandler exposes read-only views of the relay's live state. The
// signaling plane itself stays on the WebSocket; these endpoints exist for
// operators and dashboards.
type PresenceHandler struct {
	endpoints ports.EndpointRepository
	sessions  ports.SessionRepository
	server    *signal.WebSocketServer
	health    *monitoring.HealthChecker
}

func NewPresenceHandler(
	endpoints ports.EndpointRepository,
	sessions ports.SessionRepository,
	server *signal.WebSocketServer,
	health *monitoring.HealthChecker,
) *PresenceHandler {
	return &PresenceHandler{
		endpoints: endpoints,
		sessions:  sessions,
		server:    server,
		health:    health,
	}
}

func (h *PresenceHandler) SetupRoutes(router *gin.Engine) {
	router.GET("/health", h.Health)

	api := router.Group("/api/v1")
	{
		api.GET("/presence", h.ListPresence)
		api.GET("/presence/:identity", h.GetPresence)
		api.GET("/sessions", h.ListSessions)
		api.GET("/sessions/:id", h.GetSession)
		api.GET("/stats", h.GetStats)
	}
}

func (h *PresenceHandler) Health(c *gin.Context) {
	status := h.health.CheckAll(c.Request.Context())

	code := http.StatusOK
	if status.Status != "healthy" {
		code = http.StatusServiceUnavailable
	}
	c.JSON(code, status)
}

func (h *PresenceHandler) ListPresence(c *gin.Context) {
	identities, err := h.endpoints.ListIdentities(c.Request.Context())
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
		return
	}

	c.JSON(http.StatusOK, gin.H{
		"identities": identities,
		"count":      len(identities),
	})
}

func (h *PresenceHandler) GetPresence(c *gin.Context) {
	identity := domain.Identity(c.Param("identity"))

	conn, err := h.endpoints.Lookup(c.Request.Context(), identity)
	if err != nil {
		if err == domain.ErrEndpointNotFound {
			c.JSON(http.StatusNotFound, gin.H{"error": "identity not registered"})
			return
		}
		c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
		return
	}

	sessions, err := h.sessions.FindByParticipant(c.Request.Context(), identity)
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
		return
	}

	c.JSON(http.StatusOK, gin.H{
		"identity": identity,
		"conn":     conn,
		"sessions": sessions,
	})
}

func (h *PresenceHandler) ListSessions(c *gin.Context) {
	count, err := h.sessions.Count(c.Request.Context())
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
		return
	}

	c.JSON(http.StatusOK, gin.H{
		"count": count,
	})
}

func (h *PresenceHandler) GetSession(c *gin.Context) {
	id := domain.SessionID(c.Param("id"))

	session, err := h.sessions.Get(c.Request.Context(), id)
	if err != nil {
		if err == domain.ErrSessionNotFound {
			c.JSON(http.StatusNotFound, gin.H{"error": "session not found"})
			return
		}
		c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
		return
	}

	c.JSON(http.StatusOK, gin.H{
		"session": session,
	})
}

func (h *PresenceHandler) GetStats(c *gin.Context) {
	ctx := c.Request.Context()

	registered, err := h.endpoints.Count(ctx)
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
		return
	}
	active, err := h.sessions.Count(ctx)
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
		return
	}

	c.JSON(http.StatusOK, gin.H{
		"connections":           h.server.ConnectionCount(),
		"registered_identities": registered,
		"active_sessions":       active,
	})
}
