package ws

import (
	"context"
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"
	"time"

	"github.com/gorilla/websocket"

	"airwatch/internal/sensor"
)

const (
	writeWait      = 10 * time.Second
	pongWait       = 60 * time.Second
	pingPeriod     = (pongWait * 9) / 10
	maxMessageSize = 64 << 10
)

// Ingester consumes device frames received on a socket.
type Ingester interface {
	Ingest(ctx context.Context, frame sensor.DeviceFrame, now time.Time) error
}

type handler struct {
	hub      *Hub
	ingest   Ingester
	logger   *slog.Logger
	upgrader websocket.Upgrader
	now      func() time.Time
}

// NewHandler upgrades requests, registers the connection with hub and feeds
// every text frame it sends to ingest. Bad frames are answered with an error
// status on the same connection only.
func NewHandler(hub *Hub, ingest Ingester, logger *slog.Logger) http.Handler {
	return &handler{
		hub:    hub,
		ingest: ingest,
		logger: logger,
		upgrader: websocket.Upgrader{
			ReadBufferSize:  4096,
			WriteBufferSize: 4096,
			// Sensor boards do not send an Origin header.
			CheckOrigin: func(*http.Request) bool { return true },
		},
		now: time.Now,
	}
}

func (h *handler) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	conn, err := h.upgrader.Upgrade(w, r, nil)
	if err != nil {
		h.logger.Warn("websocket upgrade failed", "error", err, "remote", r.RemoteAddr)
		return
	}

	c := h.hub.NewClient()
	h.hub.Register(c)
	logger := h.logger.With("client_id", c.ID.String())
	logger.Info("websocket connected", "remote", r.RemoteAddr)

	done := make(chan struct{})
	go func() {
		defer close(done)
		writeLoop(conn, c, logger)
	}()

	h.readLoop(r.Context(), conn, c, logger)
	h.hub.Unregister(c)
	<-done
	_ = conn.Close()
	logger.Info("websocket disconnected")
}

func (h *handler) readLoop(ctx context.Context, conn *websocket.Conn, c *Client, logger *slog.Logger) {
	conn.SetReadLimit(maxMessageSize)
	_ = conn.SetReadDeadline(time.Now().Add(pongWait))
	conn.SetPongHandler(func(string) error {
		return conn.SetReadDeadline(time.Now().Add(pongWait))
	})

	for {
		kind, data, err := conn.ReadMessage()
		if err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseNormalClosure, websocket.CloseNoStatusReceived) {
				logger.Warn("websocket read failed", "error", err)
			}
			return
		}
		if kind != websocket.TextMessage {
			continue
		}
		if status, ok := h.handleFrame(ctx, data, logger); !ok {
			reply(c, status, logger)
		}
	}
}

func (h *handler) handleFrame(ctx context.Context, data []byte, logger *slog.Logger) (sensor.Status, bool) {
	frame, err := sensor.DecodeFrame(data)
	if err != nil {
		return sensor.ErrorStatus("Invalid input format: " + err.Error()), false
	}
	if err := h.ingest.Ingest(ctx, frame, h.now()); err != nil {
		var syntax *json.SyntaxError
		var typeErr *json.UnmarshalTypeError
		if errors.As(err, &syntax) || errors.As(err, &typeErr) {
			return sensor.ErrorStatus("Invalid input format: " + err.Error()), false
		}
		logger.Error("ingest device frame", "error", err)
		return sensor.ErrorStatus("Internal server error"), false
	}
	return sensor.Status{}, true
}

func reply(c *Client, status sensor.Status, logger *slog.Logger) {
	msg, err := json.Marshal(status)
	if err != nil {
		logger.Error("encode status", "error", err)
		return
	}
	if !c.Send(msg) {
		logger.Warn("status reply dropped", "status", status.Status)
	}
}

// writeLoop drains the client's queue onto conn and keeps the connection
// alive with pings. It returns when the queue is closed or a write fails.
func writeLoop(conn *websocket.Conn, c *Client, logger *slog.Logger) {
	ticker := time.NewTicker(pingPeriod)
	defer ticker.Stop()

	for {
		select {
		case msg, ok := <-c.Messages():
			_ = conn.SetWriteDeadline(time.Now().Add(writeWait))
			if !ok {
				_ = conn.WriteMessage(websocket.CloseMessage, websocket.FormatCloseMessage(websocket.CloseNormalClosure, ""))
				return
			}
			if err := conn.WriteMessage(websocket.TextMessage, msg); err != nil {
				logger.Warn("websocket write failed", "error", err)
				_ = conn.Close()
				return
			}
		case <-ticker.C:
			_ = conn.SetWriteDeadline(time.Now().Add(writeWait))
			if err := conn.WriteMessage(websocket.PingMessage, nil); err != nil {
				_ = conn.Close()
				return
			}
		}
	}
}
