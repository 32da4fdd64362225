package main

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/robfig/cron"
	"github.com/sirupsen/logrus"
	gintrace "gopkg.in/DataDog/dd-trace-go.v1/contrib/gin-gonic/gin"
	"gopkg.in/DataDog/dd-trace-go.v1/ddtrace/tracer"

	"github.com/leaksopan/SnapMe-sub000/cmd/middleware"
	"github.com/leaksopan/SnapMe-sub000/internal/api"
	"github.com/leaksopan/SnapMe-sub000/internal/api/handlers"
	"github.com/leaksopan/SnapMe-sub000/internal/claim"
	"github.com/leaksopan/SnapMe-sub000/internal/configuration"
	"github.com/leaksopan/SnapMe-sub000/internal/events"
	"github.com/leaksopan/SnapMe-sub000/internal/folders"
	"github.com/leaksopan/SnapMe-sub000/internal/services"
	"github.com/leaksopan/SnapMe-sub000/internal/storage"
	"github.com/leaksopan/SnapMe-sub000/internal/storage/memory"
	"github.com/leaksopan/SnapMe-sub000/internal/sweep"
	"github.com/leaksopan/SnapMe-sub000/internal/uploads"
)

func main() {
	cfg, err := configuration.Load()
	if err != nil {
		logrus.Fatalf("Failed to load configuration: %v", err)
	}
	logger := newLogger(cfg.Log)

	if err := run(cfg, logger); err != nil {
		logger.Fatalf("Server stopped: %v", err)
	}
}

func newLogger(cfg configuration.LogConfig) *logrus.Logger {
	logger := logrus.New()
	level, err := logrus.ParseLevel(cfg.Level)
	if err != nil {
		level = logrus.InfoLevel
	}
	logger.SetLevel(level)
	if cfg.Format == "json" {
		logger.SetFormatter(&logrus.JSONFormatter{})
	} else {
		logger.SetFormatter(&logrus.TextFormatter{FullTimestamp: true})
	}
	return logger
}

func run(cfg *configuration.Config, logger *logrus.Logger) error {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	if cfg.Tracing.Enabled {
		opts := []tracer.StartOption{tracer.WithService(cfg.Tracing.ServiceName)}
		if cfg.Tracing.AgentAddr != "" {
			opts = append(opts, tracer.WithAgentAddr(cfg.Tracing.AgentAddr))
		}
		tracer.Start(opts...)
		defer tracer.Stop()
	}

	records, err := openRecordStore(cfg.Database, logger)
	if err != nil {
		return err
	}
	defer records.Close()

	checks := map[string]handlers.HealthCheck{"records": records.Ping}
	objects, err := openObjectStore(ctx, cfg.MinIO, logger, checks)
	if err != nil {
		return err
	}

	bus, err := openBus(cfg.NATS, logger)
	if err != nil {
		return err
	}
	defer bus.Close()

	manager := folders.NewManager(records, records, objects, bus, logger)
	coordinator := uploads.NewCoordinator(records, records, objects, bus, logger, uploadOptions(cfg, logger)...)
	urls := claim.NewURLCache(cfg.Photos.URLCacheSize, cfg.Photos.URLExpiry)
	claimService := claim.NewService(manager, records, objects, urls, cfg.Photos.URLExpiry, logger)
	sweeper := sweep.New(records, manager, sweep.Config{
		ClaimedRetention: cfg.Sweep.ClaimedRetention,
		ReadyRetention:   cfg.Sweep.ReadyRetention,
	}, logger)

	unsubscribe, err := events.SubscribeAll(bus, eventRoutes(urls, logger))
	if err != nil {
		return fmt.Errorf("failed to subscribe to events: %w", err)
	}
	defer unsubscribe()

	scheduler, err := scheduleSweep(cfg.Sweep.Schedule, sweeper, logger)
	if err != nil {
		return err
	}
	if scheduler != nil {
		defer scheduler.Stop()
	}

	staffAuth, err := staffAuthMiddleware(ctx, cfg.Auth, logger)
	if err != nil {
		return err
	}

	r := gin.New()
	r.Use(gin.Recovery(), middleware.RequestLogger(logger))
	if cfg.Tracing.Enabled {
		r.Use(gintrace.Middleware(cfg.Tracing.ServiceName))
	}
	api.RegisterRoutes(r, &handlers.Handler{
		Folders: manager,
		Uploads: coordinator,
		Claim:   claimService,
		Sweeper: sweeper,
		Checks:  checks,
		Logger:  logger,
	}, staffAuth, cfg.Server.AllowedOrigins)

	srv := &http.Server{
		Addr:              ":" + cfg.Server.Port,
		Handler:           r,
		ReadHeaderTimeout: 10 * time.Second,
	}

	errCh := make(chan error, 1)
	go func() {
		logger.Infof("Server starting on :%s", cfg.Server.Port)
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
		close(errCh)
	}()

	select {
	case err := <-errCh:
		return err
	case <-ctx.Done():
	}

	logger.Info("Shutting down gracefully...")
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 15*time.Second)
	defer cancel()
	return srv.Shutdown(shutdownCtx)
}

func openRecordStore(cfg configuration.DatabaseConfig, logger logrus.FieldLogger) (storage.RecordStore, error) {
	switch cfg.Backend {
	case "memory":
		logger.Warn("[DB] using in-memory record store, data is lost on restart")
		return memory.NewRecordStore()
	case "postgres":
		dsn := cfg.ConnectionString()
		if err := storage.Migrate(dsn, logger); err != nil {
			return nil, fmt.Errorf("failed to migrate database: %w", err)
		}
		return storage.Connect(dsn, logger)
	}
	return nil, fmt.Errorf("unknown STORE_BACKEND %q", cfg.Backend)
}

func openObjectStore(ctx context.Context, cfg configuration.MinIOConfig, logger logrus.FieldLogger, checks map[string]handlers.HealthCheck) (storage.ObjectStore, error) {
	switch cfg.Backend {
	case "memory":
		logger.Warn("[MinIO] using in-memory object store, photos are lost on restart")
		return memory.NewObjectStore(), nil
	case "minio":
		svc, err := services.NewMinioService(ctx, cfg.Endpoint, cfg.AccessKey, cfg.SecretKey, cfg.BucketName, cfg.UseSSL, logger)
		if err != nil {
			return nil, fmt.Errorf("failed to initialize MinIO: %w", err)
		}
		checks["objects"] = svc.CheckConnection
		return svc, nil
	}
	return nil, fmt.Errorf("unknown OBJECT_BACKEND %q", cfg.Backend)
}

func openBus(cfg configuration.NATSConfig, logger logrus.FieldLogger) (events.Bus, error) {
	if cfg.URL == "" {
		logger.Info("[NATS] NATS_URL not set, events stay in-process")
		return events.NewLocalBus(logger), nil
	}
	bus, err := events.ConnectNATS(cfg.URL, cfg.ClientName, logger)
	if err != nil {
		return nil, fmt.Errorf("failed to connect to NATS: %w", err)
	}
	return bus, nil
}

func uploadOptions(cfg *configuration.Config, logger logrus.FieldLogger) []uploads.Option {
	opts := []uploads.Option{
		uploads.WithMaxFileSize(cfg.Photos.MaxUploadSize),
		uploads.WithThumbnailer(services.NewThumbnailer(cfg.Photos.ThumbnailWidth)),
	}
	if cfg.ClamAV.Address != "" {
		scanner := services.NewClamAVScanner(cfg.ClamAV.Address, logger)
		if err := scanner.Ping(); err != nil {
			logger.Warnf("ClamAV at %s not reachable yet: %v", cfg.ClamAV.Address, err)
		}
		opts = append(opts, uploads.WithScanner(scanner))
	}
	return opts
}

// eventRoutes lists the in-process reactions to folder and photo events.
func eventRoutes(urls *claim.URLCache, logger logrus.FieldLogger) events.Routes {
	audit := handlers.AuditLog(logger)
	routes := events.Routes{}
	for _, t := range events.AllTypes {
		routes[t] = []events.Handler{audit}
	}
	routes[events.PhotoDeleted] = append(routes[events.PhotoDeleted], urls.HandlePhotoDeleted)
	return routes
}

// scheduleSweep runs the expiry sweep on a cron schedule. An empty schedule
// leaves the sweep to POST /api/maintenance/expire.
func scheduleSweep(schedule string, sweeper *sweep.Sweeper, logger logrus.FieldLogger) (*cron.Cron, error) {
	if schedule == "" {
		logger.Info("SWEEP_SCHEDULE not set, scheduled expiry disabled")
		return nil, nil
	}
	c := cron.New()
	err := c.AddFunc(schedule, func() {
		ctx, cancel := context.WithTimeout(context.Background(), 10*time.Minute)
		defer cancel()
		if _, err := sweeper.Run(ctx); err != nil {
			logger.Errorf("scheduled sweep failed: %v", err)
		}
	})
	if err != nil {
		return nil, fmt.Errorf("invalid SWEEP_SCHEDULE %q: %w", schedule, err)
	}
	c.Start()
	logger.Infof("expiry sweep scheduled: %s", schedule)
	return c, nil
}

func staffAuthMiddleware(ctx context.Context, cfg configuration.AuthConfig, logger logrus.FieldLogger) (gin.HandlerFunc, error) {
	if cfg.IssuerURL == "" {
		logger.Warn("[AUTH] AUTH_ISSUER_URL not set, staff API is unauthenticated")
		return nil, nil
	}
	auth, err := middleware.NewAuthenticator(ctx, cfg.IssuerURL, cfg.ClientID, logger)
	if err != nil {
		return nil, fmt.Errorf("failed to initialize OIDC: %w", err)
	}
	return auth.RequireAuth(), nil
}
