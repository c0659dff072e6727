package controller

import (
	"context"
	"errors"
	"log/slog"
	"net/http"
	"time"

	"airwatch/internal/modules/sensors/repository"
	"airwatch/internal/sensor"
	"airwatch/internal/utils"
)

// SensorService is what the handlers need from the sensors service.
type SensorService interface {
	Latest(ctx context.Context, kind sensor.Kind) (sensor.Event, error)
	Readings(ctx context.Context, kind sensor.Kind, from, to time.Time, limit int) ([]sensor.Event, error)
	RenderPage(now time.Time) ([]byte, error)
}

type SensorController interface {
	RegisterRoutes(mux *http.ServeMux)
}

type sensorControllerImpl struct {
	service SensorService
	logger  *slog.Logger
	now     func() time.Time
}

func NewSensorController(service SensorService, logger *slog.Logger) SensorController {
	return &sensorControllerImpl{service: service, logger: logger, now: time.Now}
}

func (c *sensorControllerImpl) RegisterRoutes(mux *http.ServeMux) {
	mux.HandleFunc("GET /{$}", c.handlePage)
	mux.HandleFunc("GET /api/v1/sensors", c.handleKinds)
	mux.HandleFunc("GET /api/v1/sensors/{kind}/latest", c.handleLatest)
	mux.HandleFunc("GET /api/v1/sensors/{kind}/readings", c.handleReadings)
}

func (c *sensorControllerImpl) handlePage(w http.ResponseWriter, r *http.Request) {
	page, err := c.service.RenderPage(c.now())
	if err != nil {
		c.logger.Error("render page failed", "error", err)
		utils.WriteError(w, http.StatusInternalServerError, "failed to render page")
		return
	}
	utils.WriteHTML(w, http.StatusOK, page)
}

func (c *sensorControllerImpl) handleKinds(w http.ResponseWriter, r *http.Request) {
	utils.WriteJSON(w, http.StatusOK, map[string]any{"sensors": sensor.Kinds})
}

func (c *sensorControllerImpl) handleLatest(w http.ResponseWriter, r *http.Request) {
	kind, err := sensor.ParseKind(r.PathValue("kind"))
	if err != nil {
		utils.WriteError(w, http.StatusBadRequest, err.Error())
		return
	}

	ev, err := c.service.Latest(r.Context(), kind)
	if errors.Is(err, repository.ErrNotFound) {
		utils.WriteError(w, http.StatusNotFound, "no readings for "+string(kind))
		return
	}
	if err != nil {
		c.logger.Error("latest reading failed", "sensor_type", string(kind), "error", err)
		utils.WriteError(w, http.StatusInternalServerError, "failed to load reading")
		return
	}
	utils.WriteJSON(w, http.StatusOK, ev)
}

func (c *sensorControllerImpl) handleReadings(w http.ResponseWriter, r *http.Request) {
	kind, err := sensor.ParseKind(r.PathValue("kind"))
	if err != nil {
		utils.WriteError(w, http.StatusBadRequest, err.Error())
		return
	}

	from, to, limit, err := parseReadingsQuery(r)
	if err != nil {
		utils.WriteError(w, http.StatusBadRequest, err.Error())
		return
	}

	items, err := c.service.Readings(r.Context(), kind, from, to, limit)
	if err != nil {
		c.logger.Error("readings failed", "sensor_type", string(kind), "error", err)
		utils.WriteError(w, http.StatusInternalServerError, "failed to load readings")
		return
	}

	utils.WriteJSON(w, http.StatusOK, map[string]any{
		"sensor_type": kind,
		"from":        zeroAsNullTime(from),
		"to":          zeroAsNullTime(to),
		"limit":       limit,
		"items":       items,
	})
}
