package http

import (
	"context"
	"log/slog"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"go.opentelemetry.io/contrib/instrumentation/github.com/gin-gonic/gin/otelgin"

	"github.com/geocoder89/replayhub/internal/auth"
	"github.com/geocoder89/replayhub/internal/cache"
	"github.com/geocoder89/replayhub/internal/capture"
	"github.com/geocoder89/replayhub/internal/config"
	"github.com/geocoder89/replayhub/internal/domain/user"
	"github.com/geocoder89/replayhub/internal/geo"
	"github.com/geocoder89/replayhub/internal/http/handlers"
	"github.com/geocoder89/replayhub/internal/http/middlewares"
	"github.com/geocoder89/replayhub/internal/observability"
	"github.com/geocoder89/replayhub/internal/replay"
	"github.com/geocoder89/replayhub/internal/repo/postgres"
	"github.com/geocoder89/replayhub/internal/workerclient"
)

type RouterDeps struct {
	Log      *slog.Logger
	Pool     *pgxpool.Pool
	Prom     *observability.Prom
	Gatherer prometheus.Gatherer
	JWT      *auth.Manager
	Writer   *capture.Writer
	Resolver *geo.Resolver
	Deny     capture.DenySet
	Worker   *workerclient.Client
	Cache    cache.Store
	Version  string
}

// NewRouter wires the API process. The replay engine dispatches straight
// back into the returned engine, so replays exercise the same middleware
// chain minus snapshot capture.
func NewRouter(cfg config.Config, deps RouterDeps) *gin.Engine {
	if !cfg.IsDevelopment() {
		gin.SetMode(gin.ReleaseMode)
	}

	r := gin.New()

	// middleware

	r.Use(gin.Recovery())
	r.Use(otelgin.Middleware("replayhub-api"))
	r.Use(middlewares.RequestID())
	r.Use(middlewares.RequestLogger(deps.Log))
	r.Use(middlewares.SecurityHeaders(cfg.IsProduction()))
	r.Use(middlewares.CORSMiddleware(cfg.CORSOrigins))
	r.Use(middlewares.MaxBodyBytes(1 << 20))
	if deps.Prom != nil {
		r.Use(deps.Prom.GinHandleMiddleware())
	}
	r.Use(middlewares.Snapshot(middlewares.SnapshotConfig{
		Prefix:       cfg.Snapshot.Prefix,
		MaxBodyBytes: cfg.Snapshot.MaxBodyBytes,
		Version:      deps.Version,
		Stage:        cfg.Env,
	}, deps.Writer, deps.Resolver, deps.Deny))

	ping := func(ctx context.Context) error {
		if deps.Pool == nil {
			return nil
		}
		return deps.Pool.Ping(ctx)
	}

	// wire up repositories

	usersRepo := postgres.NewUsersRepo(deps.Pool)
	refreshRepo := postgres.NewRefreshTokensRepo(deps.Pool)
	tablesRepo := postgres.NewTablesRepo(deps.Pool, deps.Prom)
	snapshotsRepo := postgres.NewSnapshotsRepo(deps.Pool, deps.Prom)
	statsRepo := postgres.NewWorkerStatsRepo(deps.Pool, deps.Prom)

	engine := replay.New(snapshotsRepo, r, deps.Deny, cfg.Replay.AllowMethods, cfg.Replay.RefusePrefixes)

	// wire up handlers

	authHandler := handlers.NewAuthHandler(usersRepo, deps.JWT, refreshRepo, cfg)
	healthHandler := handlers.NewHealthHandler(ping, statsRepo)
	infoHandler := handlers.NewInfoHandler(cfg.Env, deps.Version)
	tablesHandler := handlers.NewTablesHandler(tablesRepo)
	replayHandler := handlers.NewReplayHandler(snapshotsRepo, engine)
	workerProxy := handlers.NewWorkerProxy(deps.Worker, deps.Cache)

	authMW := middlewares.NewAuthMiddleware(deps.JWT)
	loginLimiter := middlewares.NewRateLimiter(10, time.Minute)

	if deps.Gatherer != nil {
		r.GET("/metrics", gin.WrapH(promhttp.HandlerFor(deps.Gatherer, promhttp.HandlerOpts{})))
	}

	v1 := r.Group("/api/v1")

	// open endpoints
	v1.GET("/health/liveness", healthHandler.Liveness)
	v1.GET("/health/readiness", healthHandler.Readiness)

	authGroup := v1.Group("/auth", middlewares.RequireJSON())
	authGroup.POST("/login", loginLimiter.RateLimiterMiddleware(middlewares.KeyByIP), authHandler.Login)
	authGroup.POST("/refresh", authHandler.Refresh)
	authGroup.POST("/logout", authHandler.Logout)

	// everything below needs an admin token
	admin := v1.Group("", authMW.RequireAuth(), authMW.RequireRole(user.RoleAdmin))

	admin.GET("/health", healthHandler.Health)
	admin.GET("/info", infoHandler.Info)

	for _, table := range tablesRepo.Tables() {
		grp := admin.Group("/"+table, setParam("table", table))
		grp.GET("", tablesHandler.List)
		grp.POST("", middlewares.RequireJSON(), tablesHandler.Create)
		grp.GET("/:id", tablesHandler.Get)
		grp.PUT("/:id", middlewares.RequireJSON(), tablesHandler.Update)
		grp.PATCH("/:id", middlewares.RequireJSON(), tablesHandler.Update)
		grp.DELETE("/:id", tablesHandler.Delete)
	}

	admin.GET("/replay", replayHandler.List)
	admin.GET("/replay/:id", replayHandler.Get)
	admin.POST("/replay/:id/replay", replayHandler.Replay)
	admin.DELETE("/replay/:id", replayHandler.Delete)

	workerGroup := admin.Group("/worker")
	workerGroup.GET("/stats", workerProxy.Stats)
	workerGroup.GET("/queue/stats", workerProxy.QueueStats)
	workerGroup.GET("/jobs", workerProxy.Jobs)
	workerGroup.GET("/scheduler/jobs", workerProxy.SchedulerJobs)
	workerGroup.POST("/jobs/enqueue", middlewares.RequireJSON(), workerProxy.Enqueue)

	return r
}

// setParam lets per-table static routes share the param-based handlers.
func setParam(key, value string) gin.HandlerFunc {
	return func(c *gin.Context) {
		c.Params = append(c.Params, gin.Param{Key: key, Value: value})
		c.Next()
	}
}
