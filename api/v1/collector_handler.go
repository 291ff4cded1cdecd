package v1

import (
	"errors"
	"log/slog"
	"net/http"

	"github.com/gofiber/fiber/v2"
	"github.com/karloscodes/cartridge"

	"tally/internal/collectors"
)

// CreateCollectorHandler registers a new collector for the requesting
// origin. Geo and device attributes are snapshotted from the request at
// creation time; the returned id is what the tracking script submits
// events under.
func CreateCollectorHandler(registry *collectors.Registry) func(*cartridge.Context) error {
	return func(ctx *cartridge.Context) error {
		origin := ctx.Get("Origin")
		if origin == "" {
			origin = ctx.Get("Referer")
		}

		ctx.Logger.Info("Received collector creation request",
			slog.String("path", ctx.Path()),
			slog.String("origin", origin))

		collector, err := registry.Create(collectors.CreateInput{
			Origin:    origin,
			IPAddress: getClientIP(ctx.Ctx),
			UserAgent: ctx.Get("User-Agent"),
		})
		if err != nil {
			var originErr *collectors.OriginNotAllowedError
			if errors.As(err, &originErr) {
				ctx.Logger.Warn("Rejected collector for unknown origin", slog.String("origin", origin))
				return ctx.Status(http.StatusForbidden).JSON(fiber.Map{
					"error": "Origin is not allowed to create collectors",
					"code":  "ORIGIN_NOT_ALLOWED",
				})
			}

			ctx.Logger.Error("Failed to create collector", slog.Any("error", err))
			return ctx.Status(http.StatusInternalServerError).JSON(fiber.Map{
				"error": "Failed to create collector",
				"code":  "COLLECTOR_ERROR",
			})
		}

		ctx.Logger.Info("Collector created", slog.String("collector_id", collector.ID))
		return ctx.Status(http.StatusCreated).JSON(fiber.Map{
			"id": collector.ID,
		})
	}
}

// GetCollectorHandler returns a single collector by id.
func GetCollectorHandler(registry *collectors.Registry) func(*cartridge.Context) error {
	return func(ctx *cartridge.Context) error {
		id := ctx.Ctx.Params("id")

		collector, err := registry.Lookup(id)
		if err != nil {
			var notFoundErr *collectors.NotFoundError
			if errors.As(err, &notFoundErr) {
				return ctx.Status(http.StatusNotFound).JSON(fiber.Map{
					"error": "Collector not found",
					"code":  "COLLECTOR_NOT_FOUND",
				})
			}

			ctx.Logger.Error("Failed to look up collector",
				slog.String("collector_id", id),
				slog.Any("error", err))
			return ctx.Status(http.StatusInternalServerError).JSON(fiber.Map{
				"error": "Failed to look up collector",
				"code":  "COLLECTOR_ERROR",
			})
		}

		return ctx.JSON(collector)
	}
}
