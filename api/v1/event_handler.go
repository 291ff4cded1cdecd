package v1

import (
	"errors"
	"log/slog"
	"net/http"

	"github.com/gofiber/fiber/v2"
	"github.com/karloscodes/cartridge"

	"tally/internal/events"
)

const msgEventAccepted = "Event accepted"

// CollectEventHandler is the hot ingestion path. Events arrive as GET
// query parameters so the tracking script can fire them without a
// preflight; the handler only validates and enqueues, it never touches
// storage.
func CollectEventHandler(queue *events.Queue) func(*cartridge.Context) error {
	return func(ctx *cartridge.Context) error {
		input := events.SubmitInput{
			CollectorID: ctx.Query("collector_id"),
			Name:        ctx.Query("name"),
			URL:         ctx.Query("url"),
			Referrer:    ctx.Query("referrer"),
		}

		result, err := queue.Submit(input)
		if err != nil {
			if errors.Is(err, events.ErrMissingField) {
				return ctx.Status(http.StatusBadRequest).JSON(fiber.Map{
					"error": "collector_id and url are required",
					"code":  "MISSING_FIELD",
				})
			}

			var unknownErr *events.UnknownCollectorError
			if errors.As(err, &unknownErr) {
				ctx.Logger.Warn("Rejected event for unknown collector",
					slog.String("collector_id", input.CollectorID))
				return ctx.Status(http.StatusBadRequest).JSON(fiber.Map{
					"error": "Collector not found - create a collector first",
					"code":  "UNKNOWN_COLLECTOR",
				})
			}

			ctx.Logger.Error("Failed to submit event", slog.Any("error", err))
			return ctx.Status(http.StatusInternalServerError).JSON(fiber.Map{
				"error": "Failed to submit event",
				"code":  "SUBMISSION_ERROR",
			})
		}

		// Drops under burst load are acknowledged the same way as accepted
		// events: the client fire-and-forgets either way.
		if result == events.SubmitDropped {
			ctx.Logger.Debug("Event dropped at capacity",
				slog.String("collector_id", input.CollectorID))
		}
		return ctx.Status(http.StatusAccepted).JSON(fiber.Map{
			"message": msgEventAccepted,
			"status":  http.StatusAccepted,
		})
	}
}
