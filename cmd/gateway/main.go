package main

import (
	"context"
	"flag"
	"log"
	"os"
	"os/signal"
	"runtime"
	"syscall"
	"time"

	"github.com/gin-contrib/cors"
	"github.com/gin-gonic/gin"
	"go.uber.org/zap"

	"github.com/loadrelay/go-download-gateway/internal/api"
	"github.com/loadrelay/go-download-gateway/internal/cnl"
	"github.com/loadrelay/go-download-gateway/internal/core"
	"github.com/loadrelay/go-download-gateway/internal/core/memory"
	"github.com/loadrelay/go-download-gateway/internal/session"
	"github.com/loadrelay/go-download-gateway/internal/setup"
	"github.com/loadrelay/go-download-gateway/internal/transport"
	"github.com/loadrelay/go-download-gateway/pkg/config"
	"github.com/loadrelay/go-download-gateway/pkg/logging"
	"github.com/loadrelay/go-download-gateway/pkg/middleware"
)

var (
	configFile = flag.String("config", "configs/gateway.yaml", "Path to configuration file")
	version    = "dev"
)

func main() {
	flag.Parse()

	cfg, err := config.Load(*configFile)
	if err != nil {
		log.Fatalf("Failed to load configuration: %v", err)
	}

	logger, err := logging.NewLogger(cfg.Logging)
	if err != nil {
		log.Fatalf("Failed to initialize logger: %v", err)
	}
	defer func() { _ = logger.Sync() }()

	logger.Info("Starting download gateway", zap.String("version", version))

	sessions, err := newSessionStore(cfg, logger)
	if err != nil {
		logger.Fatal("Failed to initialize session store", zap.Error(err))
	}
	defer func() { _ = sessions.Close() }()

	// Standalone runs use the in-memory core; embedded deployments hand
	// the daemon's own core to the dispatcher instead.
	memCore := memory.New()
	registry := core.NewRegistry(memCore)

	router := setupRouter(cfg, memCore, registry, sessions, logger)

	supervisor := transport.NewSupervisor(cfg.Server, router, logger)
	if err := supervisor.Start(); err != nil {
		logger.Fatal("No usable server backend", zap.Error(err))
	}
	if err := supervisor.StartupError(2 * time.Second); err != nil {
		logger.Fatal("Failed to start server backend", zap.Error(err))
	}

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit

	logger.Info("Shutting down")
	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := supervisor.Shutdown(ctx); err != nil {
		logger.Error("Shutdown failed", zap.Error(err))
	}
}

func setupRouter(cfg *config.Config, memCore *memory.Core, registry *core.Registry, sessions session.Store, logger *zap.Logger) *gin.Engine {
	if cfg.Server.Debug {
		gin.SetMode(gin.DebugMode)
	} else {
		gin.SetMode(gin.ReleaseMode)
	}

	router := gin.New()
	router.Use(gin.Recovery())
	router.Use(middleware.Logger(logger))
	router.Use(cors.Default())

	var limiter *middleware.LoginRateLimiter
	if cfg.RateLimit.Enabled {
		limiter = middleware.NewLoginRateLimiter(cfg.RateLimit.MaxAttempts, cfg.RateLimit.WindowSeconds, logger)
	}

	ttl := time.Duration(cfg.Session.TTLHours) * time.Hour
	dispatcher := api.NewDispatcher(memCore, registry, sessions, limiter, ttl, logger)
	dispatcher.RegisterRoutes(router)

	if cfg.CNL.Enabled {
		cnl.NewHandlers(memCore, cfg.CNL, logger).RegisterRoutes(router)
	}

	var svc setup.Service
	if cfg.Setup.Enabled {
		svc = &setupService{core: memCore}
	}
	timeout := time.Duration(cfg.Setup.TimeoutMinutes) * time.Minute
	setup.NewController(svc, timeout, nil, logger).RegisterRoutes(router)

	return router
}

func newSessionStore(cfg *config.Config, logger *zap.Logger) (session.Store, error) {
	if cfg.Session.Type == "redis" {
		return session.NewRedisStore(&session.RedisConfig{
			Address:    cfg.Session.Redis.Address,
			Password:   cfg.Session.Redis.Password,
			DB:         cfg.Session.Redis.DB,
			KeyPrefix:  cfg.Session.Redis.KeyPrefix,
			DefaultTTL: time.Duration(cfg.Session.TTLHours) * time.Hour,
		}, logger)
	}
	return session.NewMemoryStore(logger), nil
}

// setupService adapts the in-memory core to the setup wizard.
type setupService struct {
	core *memory.Core
}

func (s *setupService) CheckSystem(ctx context.Context) map[string]any {
	return map[string]any{
		"os":   runtime.GOOS,
		"arch": runtime.GOARCH,
		"cpus": runtime.NumCPU(),
	}
}

func (s *setupService) CheckDeps(ctx context.Context) map[string]any {
	return map[string]any{
		"js":     true,
		"crypto": true,
	}
}

func (s *setupService) AddUser(ctx context.Context, username, password string) error {
	if username == "" || password == "" {
		return core.Domainf("username and password are required")
	}
	_, err := s.core.AddUser(username, password, core.PermAll, true)
	return err
}

func (s *setupService) Save(ctx context.Context) error {
	return nil
}
