package sensors

import (
	"context"
	"database/sql"
	"fmt"
	"log/slog"
	"net/http"

	"airwatch/internal/config"
	"airwatch/internal/modules/sensors/controller"
	"airwatch/internal/modules/sensors/repository"
	"airwatch/internal/modules/sensors/service"
	"airwatch/internal/modules/sensors/views"
	"airwatch/internal/ws"
)

const pageTitle = "AirWatch"

// RegisterFeature wires the sensors module onto mux: the display page, the
// JSON read API and the socket at cfg.WSPath. Templates must already be
// loaded. The returned service is what background loops and MQTT feed.
func RegisterFeature(ctx context.Context, mux *http.ServeMux, db *sql.DB, hub *ws.Hub, cfg config.Config, logger *slog.Logger) (*service.Service, error) {
	logger = logger.With("module", "sensors")

	page, err := views.NewDocument(views.PageData{Title: pageTitle, WSPath: cfg.WSPath})
	if err != nil {
		return nil, fmt.Errorf("build display page: %w", err)
	}

	sensorRepository := repository.NewRepository(db)
	sensorService := service.NewService(sensorRepository, hub, page, logger)
	if err := sensorService.Restore(ctx); err != nil {
		return nil, err
	}

	controller.NewSensorController(sensorService, logger).RegisterRoutes(mux)
	mux.Handle("GET "+cfg.WSPath, ws.NewHandler(hub, sensorService, logger))
	return sensorService, nil
}
