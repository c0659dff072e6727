package sensors

import (
	"context"
	"log/slog"
	"time"

	"airwatch/internal/mqtt"
	"airwatch/internal/sensor"
)

// FrameSubscriber is the part of the MQTT subscriber the module needs.
type FrameSubscriber interface {
	SetFrameHandler(h mqtt.FrameHandler)
}

// FrameIngester is satisfied by the sensors service.
type FrameIngester interface {
	Ingest(ctx context.Context, frame sensor.DeviceFrame, now time.Time) error
}

// RegisterMQTTHandler routes frames published over MQTT into the same ingest
// path as socket frames.
func RegisterMQTTHandler(subscriber FrameSubscriber, ingester FrameIngester, logger *slog.Logger) {
	subscriber.SetFrameHandler(func(ctx context.Context, frame sensor.DeviceFrame, now time.Time) error {
		logger.Debug("processing mqtt frame", "received_at", now)
		if err := ingester.Ingest(ctx, frame, now); err != nil {
			logger.Error("failed to ingest mqtt frame", "error", err)
			return err
		}
		return nil
	})
}
