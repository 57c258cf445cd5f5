package main

import (
	"context"
	"fmt"
	"net"
	"net/http"
	"time"

	"safetrip/internal/domain/geo"
	"safetrip/internal/engine"
	"safetrip/internal/general/config"
	"safetrip/internal/general/contracts"
	"safetrip/internal/general/jwt"
	"safetrip/internal/general/logger"
	"safetrip/internal/general/postgres"
	"safetrip/internal/general/rabbitmq"
	"safetrip/internal/general/redisgeo"
	"safetrip/internal/general/websocket"
	"safetrip/internal/geoindex"
	"safetrip/internal/ingest"
	"safetrip/internal/presence"
	"safetrip/internal/router"

	"github.com/prometheus/client_golang/prometheus/promhttp"
)

func run(ctx context.Context, configPath string, prefetch, maxConcurrent int) error {
	// set up a new logger for the alert service with a static request ID for startup logs
	log := logger.New("alert-service")
	ctx = log.WithRequestID(ctx, "startup-001")

	// load configuration
	cfg, err := config.LoadFromFile(configPath)
	if err != nil {
		return fmt.Errorf("load config: %w", err)
	}

	// set up a Postgres connection pool
	pool, err := postgres.NewPool(ctx, cfg, log)
	if err != nil {
		log.Error(ctx, "db_connection_failed", "Failed to initialize Postgres pool", err, nil)
		return err
	}
	defer pool.Close()

	// connect to RabbitMQ
	rmq, err := rabbitmq.ConnectRabbitMQ(ctx, cfg, log)
	if err != nil {
		log.Error(ctx, "rabbitmq_connection_failed", "Failed to connect to RabbitMQ", err, nil)
		return err
	}
	defer rmq.Close()

	// set up the RabbitMQ publisher
	pub := rabbitmq.NewMQPublisher(rmq)

	// set up the JWT manager
	jwtManager := jwt.NewManager(cfg.JWT.SecretKey, 2*time.Hour)

	// set up the repos
	alertRepo := postgres.NewAlertRepo(pool)
	rideRepo := postgres.NewRideRepo(pool)
	tripRepo := postgres.NewTripRepo(pool)

	// in-memory alerting state
	index := geoindex.New()
	registry := presence.NewRegistry()
	rt := router.New(log)

	// the Redis hotspot index is optional; when it is down Postgres answers
	// hotspot queries instead
	var hotspotSink engine.HotspotSink
	hotspotNearby := pgNearbyAdapter(alertRepo)
	hotspots := redisgeo.New(cfg.Redis.Addr, cfg.Redis.Password, cfg.Redis.GeoKey, log)
	if err := hotspots.Ping(ctx); err != nil {
		log.Error(ctx, "redis_unavailable", "Redis hotspot index unavailable, continuing without it", err, nil)
	} else {
		defer hotspots.Close()
		hotspotSink = hotspots
		hotspotNearby = nearbyAdapter(hotspots)
	}

	// the alerting engine
	eng := engine.New(log, index, registry, alertRepo, pub, hotspotSink, cfg.Alerts.CollapseWindow)
	if err := eng.WarmStart(ctx); err != nil {
		// a cold index still serves; new ingestions repopulate it
		log.Error(ctx, "warm_start_failed", "Could not preload active alerts, starting cold", err, nil)
	}

	// the websocket gateway, wired as the engine's fan-out edge
	gw := websocket.NewGateway(log, jwtManager, eng, rt, registry, index).
		WithMemberships(rideRepo, tripRepo).
		WithHotspots(hotspotNearby)
	if cfg.Weather.APIKey != "" {
		weather := ingest.NewOpenWeatherClient(cfg.Weather.BaseURL, cfg.Weather.APIKey)
		gw.WithForecast(weather, cfg.Alerts.ForecastInterval, cfg.Alerts.RainThresholdMM)

		// fixed-watchpoint weather polling
		poller := ingest.NewWeatherPoller(log, weather, eng, cfg.Weather.Watchpoints, cfg.Weather.PollInterval, cfg.Alerts.RainThresholdMM)
		go poller.Run(ctx)
	} else {
		log.Info(ctx, "weather_disabled", "No weather API key configured, weather ingestion disabled", nil)
	}
	eng.SetNotifier(gw)

	// background workers
	sweeper := presence.NewSweeper(registry, log, cfg.Alerts.SweepInterval, cfg.Alerts.StaleAfter)
	go sweeper.Run(ctx)

	traffic := ingest.NewTrafficConsumer(log, rmq, eng, prefetch)
	go traffic.Run(ctx)

	// HTTP surface: websocket endpoint, metrics, liveness
	mux := http.NewServeMux()
	mux.HandleFunc("/ws", gw.Connect)
	mux.Handle("/metrics", promhttp.Handler())
	mux.HandleFunc("/healthz", func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusOK)
		_, _ = w.Write([]byte("ok"))
	})

	// global concurrency limiter, blocks when capacity is full
	limitedHandler := withConcurrencyLimit(maxConcurrent, mux)

	// set up the server configurations
	srv := &http.Server{
		Addr:              fmt.Sprintf(":%d", cfg.WebSocket.Port),
		Handler:           limitedHandler,
		ReadHeaderTimeout: 5 * time.Second,
		IdleTimeout:       60 * time.Second,
		BaseContext:       func(net.Listener) context.Context { return ctx },
	}

	log.Info(ctx, "service_started",
		fmt.Sprintf("Alert Service started on port %d", cfg.WebSocket.Port),
		map[string]any{"port": cfg.WebSocket.Port, "max_concurrent": maxConcurrent},
	)

	// start the server in a background goroutine
	errCh := make(chan error, 1)
	go func() {
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			errCh <- err
			return
		}
		errCh <- nil
	}()

	// wait for context cancellation or server error
	select {
	case <-ctx.Done():
		// graceful HTTP shutdown on context cancel
		shCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		if err := srv.Shutdown(shCtx); err != nil && err != http.ErrServerClosed {
			log.Error(ctx, "http_shutdown_failed", "Failed to gracefully shut down HTTP server", err, nil)
		}
	case err := <-errCh:
		// server returned a terminal error at startup or during run
		if err != nil && err != http.ErrServerClosed {
			log.Error(ctx, "http_server_error", "HTTP server terminated with error", err, map[string]any{"port": cfg.WebSocket.Port})
			return err
		}
	}

	return nil
}

// nearbyAdapter bridges the redis hotspot index into the gateway's query shape.
func nearbyAdapter(h *redisgeo.HotspotIndex) websocket.NearbyFunc {
	return func(ctx context.Context, lat, lng, radiusMeters float64, limit int) ([]contracts.Hotspot, error) {
		p, err := geo.NewPoint(lat, lng)
		if err != nil {
			return nil, err
		}
		return h.Nearby(ctx, p, radiusMeters, limit)
	}
}

// pgNearbyAdapter answers hotspot queries from Postgres. It is the fallback
// when the Redis geo index is not reachable.
func pgNearbyAdapter(repo *postgres.AlertRepo) websocket.NearbyFunc {
	return func(ctx context.Context, lat, lng, radiusMeters float64, limit int) ([]contracts.Hotspot, error) {
		p, err := geo.NewPoint(lat, lng)
		if err != nil {
			return nil, err
		}
		alerts, err := repo.FindNear(ctx, p, radiusMeters, limit)
		if err != nil {
			return nil, err
		}
		out := make([]contracts.Hotspot, 0, len(alerts))
		for _, a := range alerts {
			out = append(out, contracts.Hotspot{
				AlertID:        a.ID,
				Kind:           a.Kind.String(),
				Location:       contracts.GeoPoint{Lat: a.Point.Latitude, Lng: a.Point.Longitude},
				DistanceMeters: geo.Distance(p, a.Point),
				Severity:       a.Severity.String(),
			})
		}
		return out, nil
	}
}

// withConcurrencyLimit wraps an http.Handler with a semaphore-based limiter.
// It controls how many HTTP requests can be in-progress at the same time.
func withConcurrencyLimit(n int, next http.Handler) http.Handler {
	if n <= 0 {
		return next
	}
	sem := make(chan struct{}, n)
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		select {
		case sem <- struct{}{}: // acquire
			defer func() { <-sem }() // release
			next.ServeHTTP(w, r)
		case <-r.Context().Done():
			// client canceled or server is shutting down
			http.Error(w, http.StatusText(http.StatusServiceUnavailable), http.StatusServiceUnavailable)
		}
	})
}
