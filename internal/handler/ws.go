package handler

import (
	"context"
	"errors"
	"log/slog"
	"net/http"
	"strings"
	"sync"
	"time"

	"github.com/gorilla/websocket"

	"github.com/pulsetrack/pulsetrack/internal/analytics"
	"github.com/pulsetrack/pulsetrack/internal/metrics"
	"github.com/pulsetrack/pulsetrack/internal/middleware"
	"github.com/pulsetrack/pulsetrack/internal/model"
)

// EventProcessor folds one raw message into the aggregates.
type EventProcessor interface {
	ProcessMessage(ctx context.Context, raw []byte) (*analytics.Outcome, error)
}

// PresenceTracker records which visitors are connected.
type PresenceTracker interface {
	Connect(domain, userID string)
	Disconnect(domain, userID string)
}

// IngestConfig tunes the websocket ingest endpoint.
type IngestConfig struct {
	// ReadLimit is the largest accepted message in bytes.
	ReadLimit int64
	// PongWait is how long a silent client is kept before it is dropped.
	PongWait time.Duration
	// PingPeriod must be shorter than PongWait.
	PingPeriod time.Duration
	WriteWait  time.Duration
	// CheckOrigin requires a browser Origin to belong to domain_name.
	CheckOrigin bool
}

// DefaultIngestConfig returns limits suited to browser trackers.
func DefaultIngestConfig() IngestConfig {
	return IngestConfig{
		ReadLimit:  64 << 10,
		PongWait:   60 * time.Second,
		PingPeriod: 54 * time.Second,
		WriteWait:  10 * time.Second,
	}
}

// IngestHandler accepts the long-lived event connections of tracked sites.
type IngestHandler struct {
	processor EventProcessor
	presence  PresenceTracker
	cfg       IngestConfig
	logger    *slog.Logger
	metrics   metrics.Recorder
	upgrader  websocket.Upgrader

	mu    sync.Mutex
	conns map[*websocket.Conn]struct{}
}

// NewIngestHandler creates an IngestHandler.
func NewIngestHandler(processor EventProcessor, presence PresenceTracker, cfg IngestConfig, logger *slog.Logger, recorder metrics.Recorder) *IngestHandler {
	if recorder == nil {
		recorder = metrics.NewNoop()
	}
	h := &IngestHandler{
		processor: processor,
		presence:  presence,
		cfg:       cfg,
		logger:    logger.With("component", "handler.ingest"),
		metrics:   recorder,
		conns:     make(map[*websocket.Conn]struct{}),
	}
	h.upgrader = websocket.Upgrader{
		ReadBufferSize:  4096,
		WriteBufferSize: 1024,
		CheckOrigin:     h.checkOrigin,
	}
	return h
}

// Session handles GET /ws/session?domain_name={domain}&user_id={id}.
// Text frames carry JSON events. Nothing is sent back on the data path.
func (h *IngestHandler) Session(w http.ResponseWriter, r *http.Request) {
	query := r.URL.Query()
	domain := model.NormalizeDomain(query.Get("domain_name"))
	userID := strings.TrimSpace(query.Get("user_id"))

	if err := middleware.ValidateDomainName(domain); err != nil {
		h.metrics.IncConnection(metrics.ConnRejected)
		writeErrorJSON(w, http.StatusBadRequest, "INVALID_DOMAIN_NAME", err.Error())
		return
	}
	if err := middleware.ValidateUserID(userID); err != nil {
		h.metrics.IncConnection(metrics.ConnRejected)
		writeErrorJSON(w, http.StatusBadRequest, "INVALID_USER_ID", err.Error())
		return
	}

	conn, err := h.upgrader.Upgrade(w, r, nil)
	if err != nil {
		// The upgrader has already written the HTTP error.
		h.metrics.IncConnection(metrics.ConnRejected)
		h.logger.Warn("websocket upgrade failed",
			"error", err,
			"domain_name", domain,
			"origin", r.Header.Get("Origin"),
			"request_id", middleware.GetRequestID(r.Context()),
		)
		return
	}
	h.metrics.IncConnection(metrics.ConnAccepted)

	h.track(conn)
	h.presence.Connect(domain, userID)
	logger := h.logger.With(
		"domain_name", domain,
		"user_id", userID,
		"request_id", middleware.GetRequestID(r.Context()),
	)
	logger.Debug("visitor connected")

	defer func() {
		h.presence.Disconnect(domain, userID)
		h.untrack(conn)
		_ = conn.Close()
		logger.Debug("visitor disconnected")
	}()

	done := make(chan struct{})
	defer close(done)
	go h.keepAlive(conn, done)

	h.readLoop(r.Context(), conn, logger)
}

// readLoop processes messages in arrival order until the connection ends.
func (h *IngestHandler) readLoop(ctx context.Context, conn *websocket.Conn, logger *slog.Logger) {
	conn.SetReadLimit(h.cfg.ReadLimit)
	_ = conn.SetReadDeadline(time.Now().Add(h.cfg.PongWait))
	conn.SetPongHandler(func(string) error {
		return conn.SetReadDeadline(time.Now().Add(h.cfg.PongWait))
	})

	for {
		msgType, data, err := conn.ReadMessage()
		if err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseNormalClosure, websocket.CloseNoStatusReceived) {
				logger.Info("websocket connection closed unexpectedly", "error", err)
			}
			return
		}
		_ = conn.SetReadDeadline(time.Now().Add(h.cfg.PongWait))

		if msgType != websocket.TextMessage {
			logger.Warn("closing connection after binary frame")
			_ = conn.WriteControl(websocket.CloseMessage,
				websocket.FormatCloseMessage(websocket.CloseUnsupportedData, "text frames only"),
				time.Now().Add(h.cfg.WriteWait))
			return
		}

		if _, err := h.processor.ProcessMessage(ctx, data); err != nil {
			if errors.Is(err, analytics.ErrMalformedEvent) {
				logger.Warn("rejected malformed event", "error", err, "bytes", len(data))
				continue
			}
			logger.Error("event processing failed", "error", err)
		}
	}
}

// keepAlive pings the client until done is closed.
func (h *IngestHandler) keepAlive(conn *websocket.Conn, done <-chan struct{}) {
	ticker := time.NewTicker(h.cfg.PingPeriod)
	defer ticker.Stop()

	for {
		select {
		case <-done:
			return
		case <-ticker.C:
			if err := conn.WriteControl(websocket.PingMessage, nil, time.Now().Add(h.cfg.WriteWait)); err != nil {
				return
			}
		}
	}
}

// checkOrigin accepts non-browser clients and, when enabled, browser origins
// on domain_name or one of its subdomains.
func (h *IngestHandler) checkOrigin(r *http.Request) bool {
	if !h.cfg.CheckOrigin {
		return true
	}
	origin := r.Header.Get("Origin")
	if origin == "" {
		return true
	}
	host := model.NormalizeDomain(origin)
	domain := model.NormalizeDomain(r.URL.Query().Get("domain_name"))
	return host == domain || strings.HasSuffix(host, "."+domain)
}

func (h *IngestHandler) track(conn *websocket.Conn) {
	h.mu.Lock()
	h.conns[conn] = struct{}{}
	h.mu.Unlock()
}

func (h *IngestHandler) untrack(conn *websocket.Conn) {
	h.mu.Lock()
	delete(h.conns, conn)
	h.mu.Unlock()
}

// Shutdown sends a going-away close frame to every open connection.
// Hijacked connections are not covered by http.Server.Shutdown.
func (h *IngestHandler) Shutdown() {
	h.mu.Lock()
	conns := make([]*websocket.Conn, 0, len(h.conns))
	for c := range h.conns {
		conns = append(conns, c)
	}
	h.mu.Unlock()

	deadline := time.Now().Add(h.cfg.WriteWait)
	msg := websocket.FormatCloseMessage(websocket.CloseGoingAway, "server shutting down")
	for _, c := range conns {
		_ = c.WriteControl(websocket.CloseMessage, msg, deadline)
	}
	h.logger.Info("closed websocket connections", "count", len(conns))
}

// OpenConnections returns the number of live websocket connections.
func (h *IngestHandler) OpenConnections() int {
	h.mu.Lock()
	defer h.mu.Unlock()
	return len(h.conns)
}
