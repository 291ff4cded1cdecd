package internal

import (
	"strings"
	"time"

	"github.com/gofiber/fiber/v2"
	"github.com/gofiber/fiber/v2/middleware/cors"
	"github.com/karloscodes/cartridge"
	cartridgemiddleware "github.com/karloscodes/cartridge/middleware"

	v1 "tally/api/v1"
	"tally/internal/collectors"
	"tally/internal/config"
	"tally/internal/events"
	"tally/internal/http"
	"tally/internal/pkg/gazetteer"
)

// MountAppRoutes mounts all application routes using cartridge's route API
func MountAppRoutes(srv *cartridge.Server, registry *collectors.Registry, queue *events.Queue, cities *gazetteer.Gazetteer) {
	cfg := config.GetConfig()

	// Ingestion endpoints are called cross-origin from tracked pages, so
	// CORS reflects the configured allow-list. Registry.Create enforces
	// the list again server-side; CORS alone is advisory.
	allowedOrigins := "*"
	if origins := cfg.OriginAllowlist(); len(origins) > 0 {
		allowedOrigins = strings.Join(origins, ",")
	}
	publicCORSConfig := &cors.Config{
		AllowOrigins: allowedOrigins,
		AllowMethods: "POST,GET,OPTIONS",
		AllowHeaders: "Origin, Content-Type, Accept, Referrer, User-Agent",
	}

	// Rate limiting would interfere with tests, so it only runs in
	// production.
	conditionalRateLimiter := func(limiter fiber.Handler) fiber.Handler {
		return func(c *fiber.Ctx) error {
			if cfg.IsProduction() {
				return limiter(c)
			}
			return c.Next()
		}
	}

	// 70 req/min per IP handles legitimate tracking traffic while keeping
	// burst abuse off the queue.
	publicRateLimiter := conditionalRateLimiter(cartridgemiddleware.RateLimiter(
		cartridgemiddleware.WithMax(70),
		cartridgemiddleware.WithDuration(time.Minute),
	))

	publicAPIConfig := &cartridge.RouteConfig{
		EnableCORS:       true,
		WriteConcurrency: false,
		CustomMiddleware: []fiber.Handler{publicRateLimiter},
		CORSConfig:       publicCORSConfig,
	}

	readAPIConfig := &cartridge.RouteConfig{
		EnableCORS: true,
		CORSConfig: publicCORSConfig,
	}

	// Health check endpoint
	healthAction := http.HealthIndexAction(queue)
	srv.Get("/_health", healthAction)
	srv.Head("/_health", healthAction)

	// === PUBLIC INGESTION API ===
	srv.Post("/api/v1/collectors", v1.CreateCollectorHandler(registry), publicAPIConfig)
	srv.Options("/api/v1/collectors", func(ctx *cartridge.Context) error {
		return ctx.SendStatus(fiber.StatusNoContent)
	}, publicAPIConfig)
	srv.Get("/api/v1/collect", v1.CollectEventHandler(queue), publicAPIConfig)
	srv.Options("/api/v1/collect", func(ctx *cartridge.Context) error {
		return ctx.SendStatus(fiber.StatusNoContent)
	}, publicAPIConfig)

	// === READ API ===
	srv.Get("/api/v1/collectors/:id", v1.GetCollectorHandler(registry), readAPIConfig)
	srv.Get("/api/v1/sessions", http.SessionsIndexAction, readAPIConfig)
	srv.Get("/api/v1/sessions/map", http.SessionsMapAction(cities), readAPIConfig)
	srv.Get("/api/v1/summary", http.SummaryAction, readAPIConfig)
	srv.Get("/api/v1/summary/hourly", http.SummaryHourlyAction, readAPIConfig)
	srv.Get("/api/v1/summary/fiveminutes", http.SummaryFiveMinutesAction, readAPIConfig)
	srv.Get("/api/v1/summary/weekly", http.SummaryWeeklyAction, readAPIConfig)
	srv.Get("/api/v1/summary/urls", http.SummaryURLsAction, readAPIConfig)
	srv.Get("/api/v1/summary/referrers", http.SummaryReferrersAction, readAPIConfig)
	srv.Get("/api/v1/summary/browsers", http.SummaryBrowsersAction, readAPIConfig)
	srv.Get("/api/v1/summary/osbrowsers", http.SummaryOSBrowsersAction, readAPIConfig)
	srv.Get("/api/v1/summary/percentages", http.SummaryPercentagesAction, readAPIConfig)
}
