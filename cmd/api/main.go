package main

import (
	"context"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/prometheus/client_golang/prometheus"

	"github.com/geocoder89/replayhub/internal/auth"
	"github.com/geocoder89/replayhub/internal/cache"
	"github.com/geocoder89/replayhub/internal/capture"
	"github.com/geocoder89/replayhub/internal/config"
	"github.com/geocoder89/replayhub/internal/db"
	"github.com/geocoder89/replayhub/internal/geo"
	httpx "github.com/geocoder89/replayhub/internal/http"
	"github.com/geocoder89/replayhub/internal/observability"
	"github.com/geocoder89/replayhub/internal/repo/postgres"
	"github.com/geocoder89/replayhub/internal/workerclient"
)

// set at build time via -ldflags
var version = "dev"

func main() {
	cfg, err := config.Load()

	if err != nil {
		fmt.Fprintf(os.Stderr, "config: %v\n", err)
		os.Exit(1)
	}

	log := observability.NewLogger(cfg.LogLevel)

	ctx := context.Background()

	// tracing is optional; without an endpoint spans stay local
	shutdownTracer, err := observability.InitTracer(ctx, "replayhub-api", cfg.OTLPEndpoint)

	if err != nil {
		log.Error("tracer init failed", "err", err)
		os.Exit(1)
	}

	pool, err := db.NewPool(cfg.DatabaseURL, false)

	if err != nil {
		log.Error("db connect failed", "err", err)
		os.Exit(1)
	}

	defer pool.Close()

	if err := db.Migrate(ctx, pool); err != nil {
		log.Error("migrate failed", "err", err)
		os.Exit(1)
	}

	if err := db.EnsureAdminUser(ctx, pool, cfg); err != nil {
		log.Error("admin seed failed", "err", err)
		os.Exit(1)
	}

	registry := prometheus.NewRegistry()
	prom := observability.NewProm(registry)

	writer := capture.NewWriter(postgres.NewSnapshotsRepo(pool, prom), log, cfg.Snapshot.Buffer)

	resolver := geo.NewResolver(openGeoDB(cfg, log))

	var store cache.Store
	if cfg.Redis.Addr != "" {
		store = cache.NewRedis(cache.RedisConfig{
			Addr:     cfg.Redis.Addr,
			Password: cfg.Redis.Password,
			DB:       cfg.Redis.DB,
		})
	} else {
		store = cache.NewMemory()
	}

	router := httpx.NewRouter(cfg, httpx.RouterDeps{
		Log:      log,
		Pool:     pool,
		Prom:     prom,
		Gatherer: registry,
		JWT:      auth.NewManager(cfg.JWT.Secret, cfg.JWT.AccessExpiresIn, cfg.JWT.RefreshTTL()),
		Writer:   writer,
		Resolver: resolver,
		Deny:     capture.NewDenySet(cfg.Snapshot.DenyHeaders),
		Worker:   workerclient.New(cfg.Worker.URL, 5*time.Second),
		Cache:    store,
		Version:  version,
	})

	srv := &http.Server{
		Addr:              fmt.Sprintf(":%d", cfg.Port),
		Handler:           router,
		ReadHeaderTimeout: 5 * time.Second,
		ReadTimeout:       15 * time.Second,
		WriteTimeout:      15 * time.Second,
		IdleTimeout:       60 * time.Second,
	}

	go func() {
		log.Info("server starting", "port", cfg.Port, "env", cfg.Env, "version", version)

		err := srv.ListenAndServe()

		if err != nil && err != http.ErrServerClosed {
			log.Error("server failed", "err", err)
			os.Exit(1)
		}
	}()

	// Graceful shutdown

	stop := make(chan os.Signal, 1)
	signal.Notify(stop, syscall.SIGINT, syscall.SIGTERM)
	<-stop
	log.Info("server shutting down")

	shutdownCh := make(chan struct{})

	go func() {
		defer close(shutdownCh)

		sctx, cancel := config.WithTimeout(10 * time.Second)
		defer cancel()

		if err := srv.Shutdown(sctx); err != nil {
			log.Error("graceful shutdown failed", "err", err)
			return
		}

		// drain captured snapshots still in the buffer
		writer.Close()

		_ = shutdownTracer(sctx)
	}()

	select {
	case <-shutdownCh:
		log.Info("shutdown complete")

	case <-time.After(12 * time.Second):
		log.Error("shutdown timed out")
	}
}

func openGeoDB(cfg config.Config, log *slog.Logger) geo.IPLookup {
	if cfg.GeoIPDBPath == "" {
		return nil
	}

	mmdb, err := geo.OpenMMDB(cfg.GeoIPDBPath)

	if err != nil {
		log.Warn("geoip database unavailable, ip lookups disabled", "path", cfg.GeoIPDBPath, "err", err)
		return nil
	}

	return mmdb
}
