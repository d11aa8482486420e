package signal

import (
	"context"
	"encoding/json"
	"net/http"
	"sync"
	"time"

	"sigrelay/internal/core/domain"
	"sigrelay/internal/core/ports"
	"sigrelay/internal/infrastructure/monitoring"
	"sigrelay/pkg/tracing"
	"sigrelay/pkg/utils"
	"sigrelay/pkg/validation"

	"github.com/gorilla/websocket"
	"go.uber.org/zap"
	"golang.org/x/time/rate"
)

var upgrader = websocket.Upgrader{
	CheckOrigin: func(r *http.Request) bool {
		return true // Should be configured properly for production
	},
	ReadBufferSize:  1024,
	WriteBufferSize: 1024,
}

// client is one live WebSocket connection. identity stays empty until the
// connection completes register.
type client struct {
	id       domain.ConnID
	conn     *websocket.Conn
	identity domain.Identity

	writeMu sync.Mutex
}

type WebSocketServer struct {
	service ports.SignalService

	clients map[domain.ConnID]*client
	mu      sync.RWMutex

	pingInterval time.Duration
	pongTimeout  time.Duration
	readTimeout  time.Duration
	writeTimeout time.Duration

	msgRate        rate.Limit
	msgBurst       int
	maxMessageSize int64

	tracingEnabled bool

	metrics *monitoring.PrometheusCollector
	logger  *zap.SugaredLogger
}

func NewWebSocketServer(service ports.SignalService, metrics *monitoring.PrometheusCollector, logger *zap.SugaredLogger) *WebSocketServer {
	if logger == nil {
		logger = zap.NewNop().Sugar()
	}
	return &WebSocketServer{
		service:      service,
		clients:      make(map[domain.ConnID]*client),
		pingInterval: 30 * time.Second, // Default ping interval
		pongTimeout:  60 * time.Second, // Default pong timeout
		readTimeout:  60 * time.Second, // Default read timeout
		writeTimeout: 10 * time.Second, // Default write timeout
		metrics:      metrics,
		logger:       logger,
	}
}

// SetPingInterval sets ping interval for WebSocket connections
func (s *WebSocketServer) SetPingInterval(interval time.Duration) {
	s.pingInterval = interval
}

// SetPongTimeout sets pong timeout for WebSocket connections
func (s *WebSocketServer) SetPongTimeout(timeout time.Duration) {
	s.pongTimeout = timeout
	s.readTimeout = timeout
}

// SetWriteTimeout sets write timeout for WebSocket connections
func (s *WebSocketServer) SetWriteTimeout(timeout time.Duration) {
	s.writeTimeout = timeout
}

// SetMessageRateLimit enables per-connection message rate limiting.
func (s *WebSocketServer) SetMessageRateLimit(perSecond float64, burst int) {
	s.msgRate = rate.Limit(perSecond)
	s.msgBurst = burst
}

// SetMaxMessageSize caps the size of inbound frames.
func (s *WebSocketServer) SetMaxMessageSize(bytes int64) {
	s.maxMessageSize = bytes
}

// SetTracingEnabled wraps message dispatch in spans when enabled.
func (s *WebSocketServer) SetTracingEnabled(enabled bool) {
	s.tracingEnabled = enabled
}

func (s *WebSocketServer) HandleWebSocket(w http.ResponseWriter, r *http.Request) {
	conn, err := upgrader.Upgrade(w, r, nil)
	if err != nil {
		s.logger.Errorw("websocket upgrade failed", "error", err)
		return
	}
	defer conn.Close()

	// Allocate a transport-level connection handle. No identity is bound
	// yet and no presence changes until the client registers.
	c := &client{
		id:   domain.ConnID(utils.GenerateConnectionID()),
		conn: conn,
	}

	s.mu.Lock()
	s.clients[c.id] = c
	s.mu.Unlock()

	if s.metrics != nil {
		s.metrics.RecordConnectionOpened()
	}
	s.logger.Infow("connection accepted", "conn", c.id, "remote", conn.RemoteAddr().String())

	if s.maxMessageSize > 0 {
		conn.SetReadLimit(s.maxMessageSize)
	}

	// Set read/write deadlines
	conn.SetReadDeadline(time.Now().Add(s.readTimeout))
	conn.SetPongHandler(func(string) error {
		conn.SetReadDeadline(time.Now().Add(s.readTimeout))
		return nil
	})

	var limiter *rate.Limiter
	if s.msgRate > 0 {
		limiter = rate.NewLimiter(s.msgRate, s.msgBurst)
	}

	// Start ping ticker
	pingTicker := time.NewTicker(s.pingInterval)
	defer pingTicker.Stop()

	// Channel for message processing
	messageChan := make(chan domain.Inbound, 10)
	errorChan := make(chan error, 1)

	// Start message reader goroutine
	go func() {
		for {
			var msg domain.Inbound
			if err := conn.ReadJSON(&msg); err != nil {
				errorChan <- err
				return
			}
			conn.SetReadDeadline(time.Now().Add(s.readTimeout))
			messageChan <- msg
		}
	}()

	// Process messages and ping
	for {
		select {
		case msg := <-messageChan:
			if limiter != nil && !limiter.Allow() {
				if s.metrics != nil {
					s.metrics.RecordRelayDropped(msg.Type, "rate_limited")
				}
				s.logger.Warnw("dropping rate-limited message", "conn", c.id, "kind", msg.Type)
				continue
			}
			s.dispatch(r.Context(), c, msg)

		case <-pingTicker.C:
			// Send ping
			c.writeMu.Lock()
			conn.SetWriteDeadline(time.Now().Add(s.writeTimeout))
			err := conn.WriteMessage(websocket.PingMessage, nil)
			c.writeMu.Unlock()
			if err != nil {
				s.logger.Infow("error sending ping", "conn", c.id, "error", err)
				goto cleanup
			}

		case err := <-errorChan:
			if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseAbnormalClosure) {
				s.logger.Infow("error reading message", "conn", c.id, "error", err)
			}
			goto cleanup
		}
	}

cleanup:
	// Clean up on disconnect
	s.mu.Lock()
	delete(s.clients, c.id)
	s.mu.Unlock()

	if s.metrics != nil {
		s.metrics.RecordConnectionClosed()
	}

	// Cleanup is skipped entirely for connections that never registered.
	if c.identity != "" {
		effects, err := s.service.Disconnect(context.Background(), c.id, c.identity)
		if err != nil {
			s.logger.Errorw("error running disconnect cleanup", "conn", c.id, "identity", c.identity, "error", err)
		}
		s.applyEffects(effects)
	}

	s.logger.Infow("connection closed", "conn", c.id, "identity", c.identity)
}

// dispatch routes one inbound message. A panic while handling a single
// message is caught here: its effects are abandoned and the process and
// every other connection keep running.
func (s *WebSocketServer) dispatch(ctx context.Context, c *client, msg domain.Inbound) {
	defer func() {
		if r := recover(); r != nil {
			s.logger.Errorw("panic while handling message", "conn", c.id, "kind", msg.Type, "panic", r)
		}
	}()

	if msg.Type == "" {
		s.logger.Warnw("dropping message without type", "conn", c.id)
		return
	}

	if msg.Type == domain.KindRegister {
		s.handleRegister(ctx, c, msg)
		return
	}

	if c.identity == "" {
		s.logger.Warnw("dropping message from unregistered connection", "conn", c.id, "kind", msg.Type)
		return
	}

	if s.tracingEnabled {
		spanCtx, span := tracing.TraceSignalMessage(ctx, string(msg.Type), string(c.identity))
		ctx = spanCtx
		defer span.End()
	}

	effects, err := s.service.HandleMessage(ctx, c.identity, msg)
	if err != nil {
		// Malformed or unknown messages are dropped at this boundary,
		// never answered and never fatal.
		if s.tracingEnabled {
			tracing.RecordError(ctx, err)
		}
		s.logger.Infow("dropping message", "conn", c.id, "identity", c.identity, "kind", msg.Type, "error", err)
		return
	}
	s.applyEffects(effects)
}

func (s *WebSocketServer) handleRegister(ctx context.Context, c *client, msg domain.Inbound) {
	var payload domain.RegisterPayload
	if err := json.Unmarshal(msg.Payload, &payload); err != nil {
		s.logger.Warnw("dropping invalid register payload", "conn", c.id, "error", err)
		return
	}
	if err := validation.ValidateIdentity(string(payload.Identity)); err != nil {
		s.logger.Warnw("dropping register with invalid identity", "conn", c.id, "error", err)
		return
	}

	if s.tracingEnabled {
		spanCtx, span := tracing.TraceLifecycle(ctx, "register", string(payload.Identity))
		ctx = spanCtx
		defer span.End()
	}

	effects, err := s.service.Register(ctx, c.id, payload.Identity)
	if err != nil {
		s.logger.Errorw("register failed", "conn", c.id, "identity", payload.Identity, "error", err)
		return
	}
	s.mu.Lock()
	c.identity = payload.Identity
	s.mu.Unlock()
	s.applyEffects(effects)
}

// applyEffects writes the service's deliveries to the wire and closes
// superseded connections. Relay is fire-and-forget: a write failure is
// logged and forgotten, never retried.
func (s *WebSocketServer) applyEffects(effects domain.Effects) {
	for _, delivery := range effects.Deliveries {
		if delivery.Broadcast {
			s.broadcast(delivery.Message)
			continue
		}
		s.mu.RLock()
		target, ok := s.clients[delivery.Conn]
		s.mu.RUnlock()
		if !ok {
			s.logger.Infow("delivery target gone", "conn", delivery.Conn, "kind", delivery.Message.Type)
			continue
		}
		if err := s.writeToClient(target, delivery.Message); err != nil {
			s.logger.Infow("failed to deliver message", "conn", target.id, "kind", delivery.Message.Type, "error", err)
		}
	}

	for _, connID := range effects.Close {
		s.mu.RLock()
		stale, ok := s.clients[connID]
		s.mu.RUnlock()
		if ok {
			s.logger.Infow("closing superseded connection", "conn", connID)
			stale.conn.Close()
		}
	}
}

func (s *WebSocketServer) broadcast(msg domain.Outbound) {
	s.mu.RLock()
	targets := make([]*client, 0, len(s.clients))
	for _, c := range s.clients {
		targets = append(targets, c)
	}
	s.mu.RUnlock()

	for _, c := range targets {
		if err := s.writeToClient(c, msg); err != nil {
			s.logger.Infow("failed to broadcast message", "conn", c.id, "kind", msg.Type, "error", err)
		}
	}
}

func (s *WebSocketServer) writeToClient(c *client, msg domain.Outbound) error {
	c.writeMu.Lock()
	defer c.writeMu.Unlock()

	c.conn.SetWriteDeadline(time.Now().Add(s.writeTimeout))
	return c.conn.WriteJSON(msg)
}

// ConnectionCount reports the number of live connections, registered or not.
func (s *WebSocketServer) ConnectionCount() int {
	s.mu.RLock()
	defer s.mu.RUnlock()

	return len(s.clients)
}

// ConnectedIdentities returns the identities bound to live connections.
func (s *WebSocketServer) ConnectedIdentities() []domain.Identity {
	s.mu.RLock()
	defer s.mu.RUnlock()

	identities := make([]domain.Identity, 0, len(s.clients))
	for _, c := range s.clients {
		if c.identity != "" {
			identities = append(identities, c.identity)
		}
	}
	return identities
}
