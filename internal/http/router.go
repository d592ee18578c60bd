package http

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/gofiber/fiber/v2"
	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"

	"morpho/internal/config"
	"morpho/internal/convert"
	"morpho/internal/metrics"
	"morpho/internal/services"
	"morpho/internal/storage"
	"morpho/internal/store"
	"morpho/internal/tools"
)

type Server struct {
	app    *fiber.App
	config *config.Config
	store  *store.Store
	logger *slog.Logger
}

func NewServer(cfg *config.Config, st *store.Store, files *storage.Dir, catalog *tools.Catalog, sched *convert.Scheduler, logger *slog.Logger) *Server {
	app := fiber.New(fiber.Config{
		BodyLimit: bodyLimit(cfg),
	})

	convertSvc := services.NewConvertService(cfg, st, sched, logger)
	downloadSvc := services.NewDownloadService(st, files)

	// Inject config, store, and services into context for handlers
	app.Use(func(c *fiber.Ctx) error {
		c.Locals("config", cfg)
		c.Locals("store", st)
		c.Locals("files", files)
		c.Locals("catalog", catalog)
		c.Locals("convertService", convertSvc)
		c.Locals("downloadService", downloadSvc)
		return c.Next()
	})

	// Request logging + metrics middleware
	app.Use(func(c *fiber.Ctx) error {
		start := time.Now()

		// Ensure a request ID exists
		reqID := c.Get("X-Request-Id")
		if reqID == "" {
			reqID = uuid.New().String()
		}
		c.Locals("request_id", reqID)
		if logger != nil {
			c.Locals("logger", logger)
		}

		err := c.Next()

		latency := time.Since(start)
		status := c.Response().StatusCode()
		method := c.Method()
		path := c.Path()

		metrics.RecordRequest(method, path, status, latency.Milliseconds())

		if logger != nil {
			logger.Info("request",
				"request_id", reqID,
				"method", method,
				"path", path,
				"status", status,
				"latency_ms", latency.Milliseconds(),
			)
		}

		return err
	})

	// Redis client for rate limiting and health checks
	var rdb *redis.Client
	if cfg.Redis.URL != "" {
		if opt, err := redis.ParseURL(cfg.Redis.URL); err == nil {
			rdb = redis.NewClient(opt)
		}
	}

	// Health endpoints
	app.Get("/healthz", func(c *fiber.Ctx) error {
		// Shallow health: process is up
		if c.Query("deep") != "true" {
			return c.JSON(fiber.Map{"status": "ok"})
		}

		// Deep health: check DB and Redis connectivity.
		ctx, cancel := context.WithTimeout(c.Context(), 2*time.Second)
		defer cancel()

		dbStatus := "ok"
		if err := st.DB.PingContext(ctx); err != nil {
			dbStatus = "error"
		}

		redisStatus := "disabled"
		if rdb != nil {
			if err := rdb.Ping(ctx).Err(); err != nil {
				redisStatus = "error"
			} else {
				redisStatus = "ok"
			}
		}

		status := "ok"
		if dbStatus != "ok" || redisStatus == "error" {
			status = "error"
		}

		return c.JSON(fiber.Map{
			"status": status,
			"db":     dbStatus,
			"redis":  redisStatus,
		})
	})

	// Prometheus-style metrics endpoint
	app.Get("/metrics", func(c *fiber.Ctx) error {
		c.Type("text/plain")
		return c.SendString(metrics.Export())
	})

	visitorMw := visitorMiddleware(st)
	authMw := authMiddleware(cfg, st)
	var rateMw fiber.Handler
	if rdb != nil {
		rateMw = rateLimitMiddleware(cfg, rdb)
	} else {
		rateMw = func(c *fiber.Ctx) error { return c.Next() }
	}

	// Tool pages are the public, cookie-tracked surface.
	app.Get("/tools/:slug", visitorMw, toolPageHandler)

	v1 := app.Group("/v1", visitorMw, authMw, rateMw)
	registerV1Routes(v1)

	admin := app.Group("/admin", authMw, adminOnlyMiddleware)
	registerAdminRoutes(admin)

	return &Server{
		app:    app,
		config: cfg,
		store:  st,
		logger: logger,
	}
}

func (s *Server) Listen() error {
	addr := fmt.Sprintf("%s:%d", s.config.Server.Host, s.config.Server.Port)
	return s.app.Listen(addr)
}

func registerV1Routes(group fiber.Router) {
	group.Post("/convert", convertHandler)
	group.Post("/convert/batch", batchConvertHandler)
	group.Get("/convert/batch/:id", batchStatusHandler)
	group.Get("/convert/batch/:id/download", batchDownloadHandler)
	group.Get("/convert/:id", getJobHandler)
	group.Delete("/convert/:id", deleteJobHandler)
	group.Get("/convert/:id/download", downloadHandler)
	group.Get("/jobs", jobsListHandler)
	group.Get("/tools", toolsListHandler)
	group.Get("/tools/:slug", toolDetailHandler)
}

func registerAdminRoutes(group fiber.Router) {
	group.Get("/api-keys", adminListAPIKeysHandler)
	group.Post("/api-keys", adminCreateAPIKeyHandler)
	group.Delete("/api-keys/:id", adminRevokeAPIKeyHandler)
	group.Get("/jobs", adminListJobsHandler)
	group.Get("/usage", adminUsageHandler)
	group.Post("/retention/run", adminRetentionRunHandler)
}

// bodyLimit sizes fiber's request body cap from the upload cap plus
// headroom for multipart framing.
func bodyLimit(cfg *config.Config) int {
	if cfg.Storage.MaxUploadBytes <= 0 {
		return 100 * 1024 * 1024
	}
	return int(cfg.Storage.MaxUploadBytes) + 1024*1024
}
