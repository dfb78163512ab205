// Package httpapi exposes the cached dashboard state over HTTP. Handlers only
// read the cache; refresh work happens on the scheduler's clock.
package httpapi

import (
	"encoding/json"
	"errors"
	"time"

	"github.com/gofiber/fiber/v2"
	"github.com/gofiber/fiber/v2/middleware/logger"
	"github.com/gofiber/fiber/v2/middleware/recover"

	"github.com/MirDochEgal555/Dashboard/internal/refresh"
	"github.com/MirDochEgal555/Dashboard/internal/store"
)

// StatusReporter reports the state of every scheduled refresh job.
type StatusReporter interface {
	Statuses() []refresh.Status
}

// NewApp creates the Fiber app with middleware and a centralized error
// response shape.
func NewApp() *fiber.App {
	app := fiber.New(fiber.Config{
		AppName:               "dashboard",
		DisableStartupMessage: true,
		ReadTimeout:           10 * time.Second,
		WriteTimeout:          10 * time.Second,
		ErrorHandler: func(c *fiber.Ctx, err error) error {
			code := fiber.StatusInternalServerError
			if e, ok := err.(*fiber.Error); ok {
				code = e.Code
			}
			return c.Status(code).JSON(fiber.Map{
				"error":   true,
				"message": err.Error(),
			})
		},
	})

	app.Use(logger.New())
	app.Use(recover.New())

	return app
}

// RegisterRoutes wires the HTTP handlers into the Fiber app.
func RegisterRoutes(app *fiber.App, cache store.Store, jobs StatusReporter) {
	app.Get("/healthz", func(c *fiber.Ctx) error {
		return c.JSON(fiber.Map{
			"status":  "ok",
			"service": "dashboard",
		})
	})

	v1 := app.Group("/api/v1")

	v1.Get("/status", func(c *fiber.Ctx) error {
		return c.JSON(fiber.Map{
			"jobs": jobs.Statuses(),
		})
	})

	v1.Get("/widgets", func(c *fiber.Ctx) error {
		keys, err := cache.Keys(c.Context())
		if err != nil {
			return fiber.NewError(fiber.StatusInternalServerError, "failed to list cached widgets")
		}
		return c.JSON(fiber.Map{
			"keys": keys,
		})
	})

	v1.Get("/widgets/:key", func(c *fiber.Ctx) error {
		entry, err := cache.Get(c.Context(), c.Params("key"))
		if err != nil {
			if errors.Is(err, store.ErrNotFound) {
				return fiber.NewError(fiber.StatusNotFound, "no cached data for widget")
			}
			return fiber.NewError(fiber.StatusInternalServerError, "failed to read widget")
		}
		return c.JSON(widgetResponse{
			Key:        entry.Key,
			FetchedAt:  entry.FetchedAt,
			TTLSeconds: int64(entry.TTL / time.Second),
			Stale:      !entry.Fresh(time.Now()),
			Payload:    entry.Payload,
		})
	})
}

// widgetResponse wraps a cache entry with its freshness metadata. Stale
// payloads are served as-is; the client decides how to present them.
type widgetResponse struct {
	Key        string          `json:"key"`
	FetchedAt  time.Time       `json:"fetched_at"`
	TTLSeconds int64           `json:"ttl_seconds"`
	Stale      bool            `json:"stale"`
	Payload    json.RawMessage `json:"payload"`
}
