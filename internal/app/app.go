package app

import (
	"context"
	"errors"
	"log/slog"
	"net/http"
	"time"

	"github.com/pcurt/hivesense2mqtt/internal/config"
	"github.com/pcurt/hivesense2mqtt/internal/db"
	"github.com/pcurt/hivesense2mqtt/internal/db/migrate"
	"github.com/pcurt/hivesense2mqtt/internal/geoloc"
	"github.com/pcurt/hivesense2mqtt/internal/history"
	"github.com/pcurt/hivesense2mqtt/internal/homeassistant"
	"github.com/pcurt/hivesense2mqtt/internal/httpapi"
	"github.com/pcurt/hivesense2mqtt/internal/ingest"
	"github.com/pcurt/hivesense2mqtt/internal/metrics"
	"github.com/pcurt/hivesense2mqtt/internal/mqtt"
)

const (
	connectTimeout  = 10 * time.Second
	shutdownTimeout = 10 * time.Second
)

func Run(ctx context.Context, cfg config.Config, logger *slog.Logger) error {
	logger.Info("config loaded",
		"appEnv", cfg.AppEnv,
		"logLevel", cfg.LogLevel.String(),
		"httpAddr", cfg.HTTPAddr,
		"orangeBroker", cfg.Orange.URL(),
		"orangeTopic", cfg.OrangeTopic,
		"haBroker", cfg.HomeAssistant.URL(),
		"haUniqueID", cfg.HAUniqueID,
		"discoveryPrefix", cfg.DiscoveryPrefix,
		"geolocation", cfg.GoogleAPIKey != "",
		"sqlitePath", cfg.SQLitePath,
		"movementThresholdMeters", cfg.MovementThresholdMeters,
	)

	dbConn, err := db.Open(cfg, logger)
	if err != nil {
		return err
	}
	defer func() {
		if closeErr := db.Close(dbConn); closeErr != nil {
			logger.Error("db close", "error", closeErr)
		}
	}()

	if err := migrate.Run(ctx, dbConn, logger); err != nil {
		return err
	}

	m := metrics.New()

	haPublisher, err := mqtt.NewPublisher(cfg.HomeAssistant, logger.With("broker", "homeassistant"), mqtt.PublisherOptions{
		QoS: 1,
		Will: &mqtt.Will{
			Topic:    homeassistant.AvailabilityTopic,
			Payload:  homeassistant.PayloadOffline,
			Retained: true,
		},
	})
	if err != nil {
		return err
	}

	sink := homeassistant.NewSink(haPublisher, homeassistant.Options{
		UniqueID:        cfg.HAUniqueID,
		DiscoveryPrefix: cfg.DiscoveryPrefix,
		Logger:          logger,
	})
	haPublisher.OnConnect(func() {
		discoveryCtx, cancel := context.WithTimeout(ctx, connectTimeout)
		defer cancel()
		if err := sink.PublishDiscovery(discoveryCtx); err != nil {
			logger.Error("home assistant discovery failed", "error", err)
		}
	})

	repo := history.NewRepository(dbConn)
	recorder := history.NewRecorder(repo, history.RecorderOptions{
		Alarm:           sink,
		ThresholdMeters: cfg.MovementThresholdMeters,
		Logger:          logger,
		Metrics:         m,
	})

	// Without an API key the service is never called and the hint is the only source.
	var locator geoloc.Locator
	if cfg.GoogleAPIKey != "" {
		locator = geoloc.NewClient(geoloc.ClientConfig{URL: cfg.GeolocationURL, APIKey: cfg.GoogleAPIKey})
	} else {
		logger.Warn("GOOGLE_API_KEY not set, using network position hints only")
	}
	resolver := geoloc.NewResolver(locator, geoloc.Options{
		Timeout: cfg.GeolocationTimeout,
		Logger:  logger,
		Metrics: m,
	})

	pipeline := ingest.NewPipeline(resolver, sink, ingest.Options{
		Logger:    logger,
		Metrics:   m,
		Recorders: []ingest.Recorder{recorder},
	})

	subscriber, err := mqtt.NewSubscriber(cfg.Orange, cfg.OrangeTopic, pipeline.HandleMessage, logger.With("broker", "orange"))
	if err != nil {
		return err
	}

	// Home Assistant first so discovery is in place before the first uplink arrives.
	connectCtx, connectCancel := context.WithTimeout(ctx, connectTimeout)
	err = haPublisher.Connect(connectCtx)
	connectCancel()
	if err != nil {
		logger.Warn("home assistant mqtt connection failed (retrying in background)", "error", err)
	}

	connectCtx, connectCancel = context.WithTimeout(ctx, connectTimeout)
	err = subscriber.Connect(connectCtx)
	connectCancel()
	if err != nil {
		logger.Warn("orange mqtt connection failed (retrying in background)", "error", err)
	}

	router := httpapi.NewRouter(httpapi.RouterOptions{
		Checks: []httpapi.HealthCheck{
			httpapi.ConnectedCheck("orange", subscriber.IsConnected),
			httpapi.ConnectedCheck("homeassistant", haPublisher.IsConnected),
			httpapi.PingCheck("sqlite", dbConn),
		},
		Readings: repo,
		Metrics:  m.Handler(),
		Logger:   logger,
	})
	srv := httpapi.NewServer(cfg, router)

	errCh := make(chan error, 1)
	go func() {
		logger.Info("http listening", "addr", cfg.HTTPAddr)
		errCh <- srv.ListenAndServe()
	}()

	var serveErr error
	select {
	case <-ctx.Done():
	case serveErr = <-errCh:
	}

	// Stop intake before the publisher so in-flight uplinks can still forward.
	logger.Info("mqtt disconnecting")
	subscriber.Disconnect()
	offlineCtx, offlineCancel := context.WithTimeout(context.Background(), connectTimeout)
	if err := sink.MarkOffline(offlineCtx); err != nil {
		logger.Warn("failed to publish offline availability", "error", err)
	}
	offlineCancel()
	haPublisher.Disconnect()

	if serveErr != nil {
		if errors.Is(serveErr, http.ErrServerClosed) {
			return nil
		}
		return serveErr
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
	defer cancel()

	logger.Info("http shutting down")
	if err := srv.Shutdown(shutdownCtx); err != nil {
		return err
	}

	err = <-errCh
	if err != nil && !errors.Is(err, http.ErrServerClosed) {
		return err
	}

	return ctx.Err()
}
