package ws

import (
	"context"
	"errors"
	"net/http/httptest"
	"net/url"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/gorilla/websocket"

	"airwatch/internal/sensor"
)

type fakeIngester struct {
	mu     sync.Mutex
	frames []sensor.DeviceFrame
	err    error
	hub    *Hub
}

func (f *fakeIngester) Ingest(_ context.Context, frame sensor.DeviceFrame, now time.Time) error {
	f.mu.Lock()
	f.frames = append(f.frames, frame)
	err := f.err
	f.mu.Unlock()
	if err != nil {
		return err
	}
	events, err := frame.Events(now)
	if err != nil {
		return err
	}
	for _, ev := range events {
		if err := f.hub.Publish(ev); err != nil {
			return err
		}
	}
	return nil
}

func (f *fakeIngester) count() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return len(f.frames)
}

func startServer(t *testing.T, ing *fakeIngester) (*Hub, *url.URL) {
	t.Helper()
	hub := NewHub(quiet(), time.Now())
	ing.hub = hub
	srv := httptest.NewServer(NewHandler(hub, ing, quiet()))
	t.Cleanup(func() {
		hub.Close()
		srv.Close()
	})
	page, err := url.Parse(srv.URL)
	if err != nil {
		t.Fatalf("parse: %v", err)
	}
	u, err := SocketURL(page, "/ws/sensor-data/")
	if err != nil {
		t.Fatalf("SocketURL: %v", err)
	}
	return hub, u
}

func dial(t *testing.T, u *url.URL) *websocket.Conn {
	t.Helper()
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	conn, err := Dial(ctx, u)
	if err != nil {
		t.Fatalf("Dial: %v", err)
	}
	t.Cleanup(func() { _ = conn.Close() })
	return conn
}

func readText(t *testing.T, conn *websocket.Conn) []byte {
	t.Helper()
	_ = conn.SetReadDeadline(time.Now().Add(5 * time.Second))
	_, msg, err := conn.ReadMessage()
	if err != nil {
		t.Fatalf("ReadMessage: %v", err)
	}
	return msg
}

func waitForClients(t *testing.T, hub *Hub, n int) {
	t.Helper()
	deadline := time.Now().Add(5 * time.Second)
	for hub.Count() != n {
		if time.Now().After(deadline) {
			t.Fatalf("Count = %d; want %d", hub.Count(), n)
		}
		time.Sleep(10 * time.Millisecond)
	}
}

func TestHandler_FrameIsBroadcast(t *testing.T) {
	ing := &fakeIngester{}
	hub, u := startServer(t, ing)

	device := dial(t, u)
	display := dial(t, u)
	waitForClients(t, hub, 2)

	frame := `{"DHT22":{"temC":23.456,"humi":55.1},"mq135":{"value":312,"quality":"Moderate"}}`
	if err := device.WriteMessage(websocket.TextMessage, []byte(frame)); err != nil {
		t.Fatalf("WriteMessage: %v", err)
	}

	for _, conn := range []*websocket.Conn{display, device} {
		first, err := sensor.Decode(readText(t, conn))
		if err != nil {
			t.Fatalf("Decode: %v", err)
		}
		second, err := sensor.Decode(readText(t, conn))
		if err != nil {
			t.Fatalf("Decode: %v", err)
		}
		if first.Kind != sensor.KindDHT22 || second.Kind != sensor.KindMQ135 {
			t.Errorf("kinds = %s, %s; want DHT22, MQ135", first.Kind, second.Kind)
		}
		if first.Timestamp.IsZero() {
			t.Error("broadcast event has no timestamp")
		}
	}
}

func TestHandler_InvalidFrame(t *testing.T) {
	ing := &fakeIngester{}
	hub, u := startServer(t, ing)
	device := dial(t, u)
	other := dial(t, u)
	waitForClients(t, hub, 2)

	if err := device.WriteMessage(websocket.TextMessage, []byte(`{not json`)); err != nil {
		t.Fatalf("WriteMessage: %v", err)
	}
	st, ok := sensor.DecodeStatus(readText(t, device))
	if !ok || st.Status != sensor.StatusError || !strings.HasPrefix(st.Message, "Invalid input format: ") {
		t.Errorf("status = %+v; want Invalid input format error", st)
	}
	if ing.count() != 0 {
		t.Errorf("ingest called %d times; want 0", ing.count())
	}

	// The error goes to the sender only.
	_ = other.SetReadDeadline(time.Now().Add(200 * time.Millisecond))
	if _, msg, err := other.ReadMessage(); err == nil {
		t.Errorf("other client got %s; want nothing", msg)
	}
}

func TestHandler_MalformedSection(t *testing.T) {
	ing := &fakeIngester{}
	hub, u := startServer(t, ing)
	device := dial(t, u)
	waitForClients(t, hub, 1)

	if err := device.WriteMessage(websocket.TextMessage, []byte(`{"DHT22":{"temC":"warm","humi":1}}`)); err != nil {
		t.Fatalf("WriteMessage: %v", err)
	}
	st, _ := sensor.DecodeStatus(readText(t, device))
	if !strings.HasPrefix(st.Message, "Invalid input format: ") {
		t.Errorf("message = %q; want Invalid input format", st.Message)
	}
}

func TestHandler_IngestFailure(t *testing.T) {
	ing := &fakeIngester{err: errors.New("disk full")}
	hub, u := startServer(t, ing)
	device := dial(t, u)
	waitForClients(t, hub, 1)

	if err := device.WriteMessage(websocket.TextMessage, []byte(`{}`)); err != nil {
		t.Fatalf("WriteMessage: %v", err)
	}
	st, ok := sensor.DecodeStatus(readText(t, device))
	if !ok || st != sensor.ErrorStatus("Internal server error") {
		t.Errorf("status = %+v; want Internal server error", st)
	}
}

func TestHandler_DisconnectUnregisters(t *testing.T) {
	hub, u := startServer(t, &fakeIngester{})
	conn := dial(t, u)
	waitForClients(t, hub, 1)

	_ = conn.WriteMessage(websocket.CloseMessage, websocket.FormatCloseMessage(websocket.CloseNormalClosure, ""))
	_ = conn.Close()
	waitForClients(t, hub, 0)
}
