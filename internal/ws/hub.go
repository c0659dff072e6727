// Package ws fans sensor events out to WebSocket clients and accepts device
// frames on the same endpoint.
package ws

import (
	"context"
	"encoding/json"
	"log/slog"
	"sync"
	"time"

	"github.com/google/uuid"

	"airwatch/internal/sensor"
)

const sendBuffer = 32

// Hub tracks connected clients and when device data last arrived.
type Hub struct {
	logger *slog.Logger

	mu       sync.RWMutex
	clients  map[uuid.UUID]*Client
	lastData time.Time
}

func NewHub(logger *slog.Logger, now time.Time) *Hub {
	if logger == nil {
		logger = slog.Default()
	}
	return &Hub{
		logger:   logger,
		clients:  make(map[uuid.UUID]*Client),
		lastData: now,
	}
}

// NewClient allocates a client with a fresh id. It receives nothing until
// registered.
func (h *Hub) NewClient() *Client {
	return &Client{ID: uuid.New(), send: make(chan []byte, sendBuffer)}
}

func (h *Hub) Register(c *Client) {
	h.mu.Lock()
	h.clients[c.ID] = c
	n := len(h.clients)
	h.mu.Unlock()
	h.logger.Info("websocket client registered", "client_id", c.ID.String(), "clients", n)
}

func (h *Hub) Unregister(c *Client) {
	h.mu.Lock()
	_, ok := h.clients[c.ID]
	delete(h.clients, c.ID)
	n := len(h.clients)
	h.mu.Unlock()
	if ok {
		c.close()
		h.logger.Info("websocket client unregistered", "client_id", c.ID.String(), "clients", n)
	}
}

func (h *Hub) Count() int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return len(h.clients)
}

// Broadcast queues msg for every client. Clients whose queue is full are
// dropped.
func (h *Hub) Broadcast(msg []byte) {
	var slow []*Client
	h.mu.RLock()
	for _, c := range h.clients {
		if !c.Send(msg) {
			slow = append(slow, c)
		}
	}
	h.mu.RUnlock()

	for _, c := range slow {
		h.logger.Warn("dropping slow websocket client", "client_id", c.ID.String())
		h.Unregister(c)
	}
}

func (h *Hub) BroadcastJSON(v any) error {
	msg, err := json.Marshal(v)
	if err != nil {
		return err
	}
	h.Broadcast(msg)
	return nil
}

// Publish broadcasts a sensor event.
func (h *Hub) Publish(ev sensor.Event) error {
	return h.BroadcastJSON(ev)
}

// MarkData records that device data arrived at t.
func (h *Hub) MarkData(t time.Time) {
	h.mu.Lock()
	if t.After(h.lastData) {
		h.lastData = t
	}
	h.mu.Unlock()
}

func (h *Hub) LastData() time.Time {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return h.lastData
}

// CheckData sends the no_data status to every client when more than timeout
// has passed since the last device data. It reports whether it did.
func (h *Hub) CheckData(now time.Time, timeout time.Duration) bool {
	if now.Sub(h.LastData()) <= timeout {
		return false
	}
	if err := h.BroadcastJSON(sensor.NoDataStatus()); err != nil {
		h.logger.Error("broadcast no_data status", "error", err)
		return false
	}
	return true
}

// RunWatchdog calls CheckData every interval until ctx is done.
func (h *Hub) RunWatchdog(ctx context.Context, timeout, interval time.Duration) {
	ticker := time.NewTicker(interval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case now := <-ticker.C:
			h.CheckData(now, timeout)
		}
	}
}

// Close unregisters every client, which ends their write loops.
func (h *Hub) Close() {
	h.mu.RLock()
	clients := make([]*Client, 0, len(h.clients))
	for _, c := range h.clients {
		clients = append(clients, c)
	}
	h.mu.RUnlock()
	for _, c := range clients {
		h.Unregister(c)
	}
}
