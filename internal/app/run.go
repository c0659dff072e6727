package app

import (
	"context"
	"errors"
	"log/slog"
	"net/http"
	"sync"
	"time"

	"airwatch/internal/config"
	"airwatch/internal/db"
	"airwatch/internal/httpapi"
	"airwatch/internal/migrate"
	"airwatch/internal/modules/sensors"
	"airwatch/internal/modules/sensors/views"
	"airwatch/internal/mqtt"
	"airwatch/internal/ws"
)

func Run(ctx context.Context, cfg config.Config, logger *slog.Logger) error {
	logger.Info("config loaded",
		"appEnv", cfg.AppEnv,
		"logLevel", cfg.LogLevel.String(),
		"httpAddr", cfg.HTTPAddr,
		"sqliteDriver", cfg.Driver,
		"sqlitePath", cfg.Path,
		"sqliteMaxOpenConns", cfg.MaxOpenConns,
		"sqliteMaxIdleConns", cfg.MaxIdleConns,
		"sqliteConnMaxLifetime", cfg.ConnMaxLifetime,
		"mqttEnabled", cfg.MQTTEnabled,
		"mqttBroker", cfg.MQTTBroker,
		"mqttPort", cfg.MQTTPort,
		"mqttTopic", cfg.MQTTTopic,
		"wsPath", cfg.WSPath,
		"dataTimeout", cfg.DataTimeout,
	)

	dbConn, err := db.Open(ctx, cfg, logger)
	if err != nil {
		return err
	}
	defer func() {
		if closeErr := dbConn.Close(); closeErr != nil {
			logger.Error("db close", "error", closeErr)
		}
	}()

	if err := migrate.Run(ctx, dbConn, logger); err != nil {
		return err
	}
	if err := views.LoadTemplates(); err != nil {
		return err
	}

	hub := ws.NewHub(logger, time.Now())
	defer hub.Close()

	mux := httpapi.NewMux(dbConn, logger)
	sensorService, err := sensors.RegisterFeature(ctx, mux, dbConn, hub, cfg, logger)
	if err != nil {
		return err
	}

	bgCtx, stopBackground := context.WithCancel(ctx)
	var wg sync.WaitGroup
	wg.Add(2)
	go func() {
		defer wg.Done()
		hub.RunWatchdog(bgCtx, cfg.DataTimeout, cfg.DataCheckInterval)
	}()
	go func() {
		defer wg.Done()
		sensorService.RunFlusher(bgCtx, cfg.FlushInterval)
	}()
	defer func() {
		stopBackground()
		wg.Wait()
	}()

	var subscriber *mqtt.Subscriber
	if cfg.MQTTEnabled {
		// Handler goes in before Connect: the broker may deliver queued
		// messages right after CONNACK.
		subscriber = mqtt.NewSubscriber(cfg, logger)
		sensors.RegisterMQTTHandler(subscriber, sensorService, logger)

		connectCtx, connectCancel := context.WithTimeout(ctx, 5*time.Second)
		err = subscriber.Connect(connectCtx)
		connectCancel()
		if err != nil {
			// Sockets and HTTP keep working without the broker.
			logger.Warn("mqtt connection failed (continuing without mqtt)", "error", err)
		}
		defer subscriber.Disconnect()
	}

	srv := httpapi.NewServer(cfg.HTTPAddr, mux, logger)

	errCh := make(chan error, 1)
	go func() {
		logger.Info("http listening", "addr", cfg.HTTPAddr)
		errCh <- srv.ListenAndServe()
	}()

	select {
	case <-ctx.Done():
	case err := <-errCh:
		if err != nil && !errors.Is(err, http.ErrServerClosed) {
			return err
		}
		return nil
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	if subscriber != nil {
		logger.Info("mqtt disconnecting")
		subscriber.Disconnect()
	}

	logger.Info("http shutting down")
	// Shutdown does not wait for hijacked connections.
	hub.Close()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		return err
	}

	err = <-errCh
	if err != nil && !errors.Is(err, http.ErrServerClosed) {
		return err
	}

	return ctx.Err()
}
