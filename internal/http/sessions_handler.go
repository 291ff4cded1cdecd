package http

import (
	"context"
	"log/slog"
	"time"

	"github.com/gofiber/fiber/v2"
	"github.com/karloscodes/cartridge"

	"tally/internal/config"
	"tally/internal/pkg/gazetteer"
	"tally/internal/sessions"
	"tally/internal/stats"
)

// recentSessionsLimit bounds the sessions listing to the latest collectors.
const recentSessionsLimit = 50

// queryTimeout is the deadline applied to every read-side query so a slow
// aggregate cannot hold a connection while ingestion flushes.
const queryTimeout = 10 * time.Second

// SessionsIndexAction returns reconstructed sessions for the most recent
// collectors.
func SessionsIndexAction(ctx *cartridge.Context) error {
	cfg := config.GetConfig()

	queryCtx, cancel := context.WithTimeout(ctx.Ctx.UserContext(), queryTimeout)
	defer cancel()

	result, err := sessions.ForRecentCollectors(
		queryCtx,
		ctx.DBManager.GetConnection(),
		cfg.GetSessionGap(),
		recentSessionsLimit,
	)
	if err != nil {
		ctx.Logger.Error("Failed to reconstruct sessions", slog.Any("error", err))
		return ctx.Status(fiber.StatusInternalServerError).JSON(fiber.Map{
			"error": "Failed to load sessions",
		})
	}

	return ctx.JSON(result)
}

// SessionsMapAction returns the per-city session rollup with coordinates.
func SessionsMapAction(g *gazetteer.Gazetteer) func(*cartridge.Context) error {
	return func(ctx *cartridge.Context) error {
		queryCtx, cancel := context.WithTimeout(ctx.Ctx.UserContext(), queryTimeout)
		defer cancel()

		points, err := stats.GetCityRollup(queryCtx, ctx.DBManager.GetConnection(), g)
		if err != nil {
			ctx.Logger.Error("Failed to build session map", slog.Any("error", err))
			return ctx.Status(fiber.StatusInternalServerError).JSON(fiber.Map{
				"error": "Failed to load session map",
			})
		}

		return ctx.JSON(points)
	}
}
