package controller

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"airwatch/internal/modules/sensors/repository"
	"airwatch/internal/sensor"
)

type mockService struct {
	page        []byte
	pageErr     error
	latest      sensor.Event
	latestErr   error
	readings    []sensor.Event
	readingsErr error

	gotKind  sensor.Kind
	gotLimit int
	gotFrom  time.Time
}

func (m *mockService) Latest(_ context.Context, kind sensor.Kind) (sensor.Event, error) {
	m.gotKind = kind
	return m.latest, m.latestErr
}

func (m *mockService) Readings(_ context.Context, kind sensor.Kind, from, _ time.Time, limit int) ([]sensor.Event, error) {
	m.gotKind, m.gotFrom, m.gotLimit = kind, from, limit
	return m.readings, m.readingsErr
}

func (m *mockService) RenderPage(time.Time) ([]byte, error) {
	return m.page, m.pageErr
}

func newTestController(svc *mockService) *sensorControllerImpl {
	logger := slog.New(slog.NewTextHandler(io.Discard, nil))
	return NewSensorController(svc, logger).(*sensorControllerImpl)
}

func serve(ctrl *sensorControllerImpl, target string) *httptest.ResponseRecorder {
	mux := http.NewServeMux()
	ctrl.RegisterRoutes(mux)
	rec := httptest.NewRecorder()
	mux.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, target, nil))
	return rec
}

func Test_handlePage(t *testing.T) {
	t.Run("returns 404 when path is not /", func(t *testing.T) {
		rec := serve(newTestController(&mockService{page: []byte("<html></html>")}), "/dashboard")
		if rec.Code != http.StatusNotFound {
			t.Errorf("status = %d; want %d", rec.Code, http.StatusNotFound)
		}
	})

	t.Run("returns 500 and error body when render fails", func(t *testing.T) {
		rec := serve(newTestController(&mockService{pageErr: errors.New("no page loaded")}), "/")
		if rec.Code != http.StatusInternalServerError {
			t.Errorf("status = %d; want %d", rec.Code, http.StatusInternalServerError)
		}
		if body := rec.Body.String(); !strings.Contains(body, "failed to render page") {
			t.Errorf("body = %q; expected 'failed to render page'", body)
		}
	})

	t.Run("serves the page uncached", func(t *testing.T) {
		rec := serve(newTestController(&mockService{page: []byte("<html><body>ok</body></html>")}), "/")
		if rec.Code != http.StatusOK {
			t.Fatalf("status = %d; want %d", rec.Code, http.StatusOK)
		}
		if ct := rec.Header().Get("Content-Type"); ct != "text/html; charset=utf-8" {
			t.Errorf("Content-Type = %q", ct)
		}
		if cc := rec.Header().Get("Cache-Control"); cc != "no-store" {
			t.Errorf("Cache-Control = %q; want no-store", cc)
		}
		if !strings.Contains(rec.Body.String(), "ok") {
			t.Errorf("body = %q", rec.Body.String())
		}
	})
}

func Test_handleKinds(t *testing.T) {
	rec := serve(newTestController(&mockService{}), "/api/v1/sensors")
	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d; want %d", rec.Code, http.StatusOK)
	}
	body := rec.Body.String()
	for _, want := range []string{`"DHT22"`, `"MQ135"`, `"pmValue"`} {
		if !strings.Contains(body, want) {
			t.Errorf("body = %q; missing %s", body, want)
		}
	}
}

func Test_handleLatest(t *testing.T) {
	ts := time.Date(2025, 2, 1, 12, 0, 0, 0, time.UTC)

	t.Run("returns the latest reading", func(t *testing.T) {
		svc := &mockService{latest: sensor.NewDHT22Event(sensor.DHT22{TempC: 21.5, Humidity: 40}, ts)}
		rec := serve(newTestController(svc), "/api/v1/sensors/DHT22/latest")
		if rec.Code != http.StatusOK {
			t.Fatalf("status = %d; want %d", rec.Code, http.StatusOK)
		}
		if svc.gotKind != sensor.KindDHT22 {
			t.Errorf("kind = %q; want DHT22", svc.gotKind)
		}
		body := rec.Body.String()
		if !strings.Contains(body, `"sensor_type":"DHT22"`) || !strings.Contains(body, "21.5") {
			t.Errorf("body = %q", body)
		}
	})

	t.Run("returns 400 for an unknown kind", func(t *testing.T) {
		rec := serve(newTestController(&mockService{}), "/api/v1/sensors/dht22/latest")
		if rec.Code != http.StatusBadRequest {
			t.Errorf("status = %d; want %d", rec.Code, http.StatusBadRequest)
		}
		if !strings.Contains(rec.Body.String(), "unknown sensor_type") {
			t.Errorf("body = %q", rec.Body.String())
		}
	})

	t.Run("returns 404 when nothing is stored", func(t *testing.T) {
		rec := serve(newTestController(&mockService{latestErr: repository.ErrNotFound}), "/api/v1/sensors/MQ135/latest")
		if rec.Code != http.StatusNotFound {
			t.Errorf("status = %d; want %d", rec.Code, http.StatusNotFound)
		}
	})

	t.Run("returns 500 when the store fails", func(t *testing.T) {
		rec := serve(newTestController(&mockService{latestErr: errors.New("db error")}), "/api/v1/sensors/MQ135/latest")
		if rec.Code != http.StatusInternalServerError {
			t.Errorf("status = %d; want %d", rec.Code, http.StatusInternalServerError)
		}
		if strings.Contains(rec.Body.String(), "db error") {
			t.Errorf("body leaks store error: %q", rec.Body.String())
		}
	})
}

func Test_handleReadings(t *testing.T) {
	ts := time.Date(2025, 2, 1, 12, 0, 0, 0, time.UTC)

	t.Run("returns items with the default limit", func(t *testing.T) {
		svc := &mockService{readings: []sensor.Event{
			sensor.NewPMEvent(sensor.PM{PM1p0: 1, PM2p5: 2, PM4p0: 3, PM10p0: 4, Quality: "good"}, ts),
		}}
		rec := serve(newTestController(svc), "/api/v1/sensors/pmValue/readings")
		if rec.Code != http.StatusOK {
			t.Fatalf("status = %d; want %d", rec.Code, http.StatusOK)
		}
		if svc.gotLimit != defaultLimit {
			t.Errorf("limit = %d; want %d", svc.gotLimit, defaultLimit)
		}
		body := rec.Body.String()
		for _, want := range []string{`"sensor_type":"pmValue"`, `"from":null`, `"limit":100`, `"PM_2p5":2`} {
			if !strings.Contains(body, want) {
				t.Errorf("body = %q; missing %s", body, want)
			}
		}
	})

	t.Run("passes the parsed range through", func(t *testing.T) {
		svc := &mockService{readings: []sensor.Event{}}
		rec := serve(newTestController(svc), "/api/v1/sensors/MQ135/readings?from=2025-02-01T00:00:00Z&limit=5")
		if rec.Code != http.StatusOK {
			t.Fatalf("status = %d; want %d", rec.Code, http.StatusOK)
		}
		if svc.gotLimit != 5 || !svc.gotFrom.Equal(time.Date(2025, 2, 1, 0, 0, 0, 0, time.UTC)) {
			t.Errorf("got from=%v limit=%d", svc.gotFrom, svc.gotLimit)
		}
		if !strings.Contains(rec.Body.String(), `"items":[]`) {
			t.Errorf("body = %q; want empty items array", rec.Body.String())
		}
	})

	t.Run("returns 400 for a bad query", func(t *testing.T) {
		rec := serve(newTestController(&mockService{}), "/api/v1/sensors/MQ135/readings?limit=abc")
		if rec.Code != http.StatusBadRequest {
			t.Errorf("status = %d; want %d", rec.Code, http.StatusBadRequest)
		}
	})

	t.Run("returns 500 when the store fails", func(t *testing.T) {
		rec := serve(newTestController(&mockService{readingsErr: errors.New("db error")}), "/api/v1/sensors/DHT22/readings")
		if rec.Code != http.StatusInternalServerError {
			t.Errorf("status = %d; want %d", rec.Code, http.StatusInternalServerError)
		}
	})
}
