package main

import (
	"context"
	"errors"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/gofiber/fiber/v2"
	"github.com/gofiber/fiber/v2/middleware/adaptor"
	"github.com/gofiber/fiber/v2/middleware/cors"
	fiberlogger "github.com/gofiber/fiber/v2/middleware/logger"
	"github.com/gofiber/fiber/v2/middleware/recover"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"

	"automation-license-server/internal/bundle"
	"automation-license-server/internal/config"
	"automation-license-server/internal/database"
	"automation-license-server/internal/handler"
	"automation-license-server/internal/license"
	"automation-license-server/internal/logging"
	"automation-license-server/internal/metrics"
	"automation-license-server/internal/middleware"
	"automation-license-server/internal/model"
	"automation-license-server/internal/packager"
	"automation-license-server/internal/util"
)

func main() {
	cfg, warnings, err := config.Load()
	if err != nil {
		fmt.Fprintf(os.Stderr, "配置加载失败: %v\n", err)
		os.Exit(1)
	}

	log, err := logging.New(cfg.Log.Level, cfg.Log.Development)
	if err != nil {
		fmt.Fprintf(os.Stderr, "日志初始化失败: %v\n", err)
		os.Exit(1)
	}
	defer log.Sync()

	for _, w := range warnings {
		log.Warn(w)
	}

	if err := run(cfg, log); err != nil {
		log.Fatal("server exited", zap.Error(err))
	}
}

func run(cfg *config.Config, log *zap.Logger) error {
	// 初始化数据库
	if err := database.InitDB(cfg, log); err != nil {
		return err
	}
	defer database.Close()

	util.InitJWT(cfg.Auth.JWTSecret, cfg.Auth.TokenTTL)

	registry := prometheus.NewRegistry()
	registry.MustRegister(collectors.NewGoCollector(), collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}))
	m := metrics.New(registry)

	recorder, feed, closeRedis := auditRecorders(cfg, log)
	defer closeRedis()

	gormStore := license.NewGormStore(database.DB)
	store := license.NewBreakerStore(gormStore, cfg.License.BreakerFailures, cfg.License.BreakerCooldown, log)

	cache := license.NewCache(cfg.Cache.TTL, cfg.Cache.MaxEntries, license.WithSweepHook(m.ObserveSweep))
	verifier := license.NewVerifier(store, cache,
		license.WithAuditRecorder(recorder),
		license.WithLogger(log),
		license.WithMetrics(m),
		license.WithStoreTimeout(cfg.License.StoreTimeout),
	)

	catalog, err := packager.LoadCatalog(cfg.Bundle.PlansFile)
	if err != nil {
		return err
	}
	log.Info("plan catalog loaded", zap.Strings("plans", catalog.IDs()))

	encryptor := bundle.NewEncryptor(bundle.WithIterations(cfg.Bundle.KDFIterations))
	packages := packager.NewService(store, catalog, os.DirFS(cfg.Bundle.ScriptsDir), encryptor, cfg.Bundle.Password,
		packager.WithAuditRecorder(recorder),
		packager.WithLogger(log),
		packager.WithMetrics(m),
		packager.WithStoreTimeout(cfg.License.StoreTimeout),
	)

	handler.InitLogger(log)
	handler.InitLicense(verifier, gormStore, cfg.TrialDuration())
	handler.InitPackager(packages)
	handler.InitAuditFeed(feed)
	sheets, err := handler.InitSheetSync(cfg.Sheets, log)
	if err != nil {
		log.Warn("sheet sync disabled", zap.Error(err))
	} else if sheets != nil {
		go func() {
			var devices []model.Device
			if err := database.DB.Find(&devices).Error; err != nil {
				log.Warn("failed to load devices for sheet sync", zap.Error(err))
				return
			}
			if err := sheets.BatchSyncDevices(devices); err != nil {
				log.Warn("initial sheet sync failed", zap.Error(err))
			}
		}()
	}

	app := fiber.New(fiber.Config{
		ReadTimeout:  cfg.Server.ReadTimeout,
		WriteTimeout: cfg.Server.WriteTimeout,
		ErrorHandler: func(c *fiber.Ctx, err error) error {
			code := fiber.StatusInternalServerError
			var e *fiber.Error
			if errors.As(err, &e) {
				code = e.Code
			}
			if code >= fiber.StatusInternalServerError {
				log.Error("unhandled request error", zap.String("path", c.Path()), zap.Error(err))
			}
			return c.Status(code).JSON(fiber.Map{
				"success": false,
				"error":   fiberErrorMessage(code),
			})
		},
	})

	// 中间件
	app.Use(recover.New())
	app.Use(fiberlogger.New())
	app.Use(cors.New())

	app.Get("/health", func(c *fiber.Ctx) error {
		status := fiber.StatusOK
		if store.State() == "open" {
			status = fiber.StatusServiceUnavailable
		}
		return c.Status(status).JSON(fiber.Map{
			"status":  store.State(),
			"entries": cache.Len(),
		})
	})
	app.Get("/metrics", adaptor.HTTPHandler(promhttp.HandlerFor(registry, promhttp.HandlerOpts{})))

	limiter := middleware.NewRateLimiter(cfg.RateLimit.RPS, cfg.RateLimit.Burst, log)
	handler.RegisterRoutes(app, limiter.Handler())

	errCh := make(chan error, 1)
	go func() {
		log.Info("license server listening", zap.String("addr", cfg.Server.Addr))
		errCh <- app.Listen(cfg.Server.Addr)
	}()

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)

	select {
	case err := <-errCh:
		return err
	case sig := <-quit:
		log.Info("shutting down", zap.String("signal", sig.String()))
	}
	return app.ShutdownWithTimeout(10 * time.Second)
}

// auditRecorders 数据库审计总是开启，配置了 Redis 时同时写入实时队列
func auditRecorders(cfg *config.Config, log *zap.Logger) (license.AuditRecorder, *license.RedisAuditRecorder, func()) {
	dbRecorder := license.NewDBAuditRecorder(database.DB)
	if cfg.Redis.Addr == "" {
		return dbRecorder, nil, func() {}
	}

	client := redis.NewClient(&redis.Options{
		Addr:     cfg.Redis.Addr,
		Password: cfg.Redis.Password,
	})
	ctx, cancel := context.WithTimeout(context.Background(), 3*time.Second)
	defer cancel()
	if err := client.Ping(ctx).Err(); err != nil {
		log.Warn("redis unavailable, audit feed disabled", zap.String("addr", cfg.Redis.Addr), zap.Error(err))
		client.Close()
		return dbRecorder, nil, func() {}
	}

	feed := license.NewRedisAuditRecorder(client, cfg.Redis.AuditKey, cfg.Redis.AuditMaxLen)
	return license.MultiRecorder{dbRecorder, feed}, feed, func() { client.Close() }
}

func fiberErrorMessage(code int) string {
	switch code {
	case fiber.StatusNotFound:
		return "Not found"
	case fiber.StatusMethodNotAllowed:
		return "Method not allowed"
	case fiber.StatusRequestEntityTooLarge:
		return "Request body too large"
	}
	if code < fiber.StatusInternalServerError {
		return "Bad request"
	}
	return "Internal server error"
}
