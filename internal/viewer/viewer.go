// Package viewer is a headless display client: it loads the page served at
// PAGE_URL, subscribes to the sensor socket and applies every event to its
// copy of the document.
package viewer

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"net/url"
	"os"
	"path/filepath"
	"time"

	"github.com/gorilla/websocket"

	"airwatch/internal/config"
	"airwatch/internal/display"
	"airwatch/internal/sensor"
	"airwatch/internal/ws"
)

const (
	defaultWSPath = "/ws/sensor-data/"
	// rootID carries the socket path in its data-ws-path attribute.
	rootID = "airwatch"
)

type Viewer struct {
	pageURL *url.URL
	outPath string
	logger  *slog.Logger
	client  *http.Client
	updater *display.Updater
	now     func() time.Time

	doc *display.HTMLDocument
}

func New(cfg config.ViewerConfig, logger *slog.Logger) *Viewer {
	return &Viewer{
		pageURL: cfg.PageURL,
		outPath: cfg.OutPath,
		logger:  logger,
		client:  &http.Client{Timeout: 10 * time.Second},
		updater: display.NewUpdater(logger),
		now:     time.Now,
	}
}

// Load fetches and parses the page and stamps the clock once. It returns the
// socket path the page advertises.
func (v *Viewer) Load(ctx context.Context) (string, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, v.pageURL.String(), nil)
	if err != nil {
		return "", err
	}
	resp, err := v.client.Do(req)
	if err != nil {
		return "", fmt.Errorf("fetch page: %w", err)
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		return "", fmt.Errorf("fetch page: unexpected status %d", resp.StatusCode)
	}

	doc, err := display.ParseHTML(resp.Body)
	if err != nil {
		return "", err
	}
	v.doc = doc

	if err := display.StampClock(doc, v.now()); err != nil {
		v.logger.Warn("clock not stamped", "error", err)
	}

	path := defaultWSPath
	if root, err := doc.Element(rootID); err == nil && root.Attr("data-ws-path") != "" {
		path = root.Attr("data-ws-path")
	}
	v.write()
	return path, nil
}

// Handle applies one socket message. Undecodable messages are logged and the
// display keeps its previous values. Messages before Load are dropped.
func (v *Viewer) Handle(msg []byte) {
	if v.doc == nil {
		v.logger.Warn("message before page load dropped", "payload", string(msg))
		return
	}
	if st, ok := sensor.DecodeStatus(msg); ok {
		v.logger.Info("server status", "status", st.Status, "message", st.Message)
		return
	}

	ev, err := sensor.Decode(msg)
	if err != nil {
		v.logger.Warn("error parsing sensor data", "error", err, "payload", string(msg))
		return
	}
	if err := v.updater.Dispatch(v.doc, ev); err != nil {
		v.logger.Warn("display update failed", "sensor_type", string(ev.Kind), "error", err)
		return
	}
	v.write()
}

// Document is the viewer's current copy of the page.
func (v *Viewer) Document() *display.HTMLDocument { return v.doc }

// Run loads the page, connects and processes messages until ctx ends or the
// server closes the socket. There is no reconnect.
func (v *Viewer) Run(ctx context.Context) error {
	path, err := v.Load(ctx)
	if err != nil {
		return err
	}
	u, err := ws.SocketURL(v.pageURL, path)
	if err != nil {
		return err
	}
	conn, err := ws.Dial(ctx, u)
	if err != nil {
		return err
	}
	v.logger.Info("websocket connected", "url", u.String())

	done := make(chan struct{})
	defer close(done)
	go func() {
		select {
		case <-ctx.Done():
			_ = conn.WriteControl(websocket.CloseMessage,
				websocket.FormatCloseMessage(websocket.CloseNormalClosure, ""),
				time.Now().Add(time.Second))
			_ = conn.Close()
		case <-done:
		}
	}()

	for {
		kind, msg, err := conn.ReadMessage()
		if err != nil {
			_ = conn.Close()
			if ctx.Err() != nil {
				return ctx.Err()
			}
			if websocket.IsCloseError(err, websocket.CloseNormalClosure, websocket.CloseGoingAway) {
				v.logger.Info("websocket closed by server")
				return nil
			}
			return fmt.Errorf("read socket: %w", err)
		}
		if kind != websocket.TextMessage {
			continue
		}
		v.Handle(msg)
	}
}

func (v *Viewer) write() {
	if v.outPath == "" || v.doc == nil {
		return
	}
	if err := writeFile(v.outPath, v.doc); err != nil {
		v.logger.Error("write page", "path", v.outPath, "error", err)
	}
}

// writeFile replaces path atomically.
func writeFile(path string, doc *display.HTMLDocument) error {
	body, err := doc.Bytes()
	if err != nil {
		return err
	}
	if dir := filepath.Dir(path); dir != "" {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return err
		}
	}
	tmp := path + ".tmp"
	if err := os.WriteFile(tmp, body, 0o644); err != nil {
		return err
	}
	if err := os.Rename(tmp, path); err != nil {
		return errors.Join(err, os.Remove(tmp))
	}
	return nil
}
