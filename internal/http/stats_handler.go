package http

import (
	"context"
	"log/slog"
	"time"

	"github.com/gofiber/fiber/v2"
	"github.com/karloscodes/cartridge"

	"tally/internal/pkg/async"
	"tally/internal/stats"
)

// summaryWorkers sizes the pool for the live counter fan-out; one worker
// per counter query.
const summaryWorkers = 4

// SummaryAction returns the live traffic counters.
func SummaryAction(ctx *cartridge.Context) error {
	queryCtx, cancel := context.WithTimeout(ctx.Ctx.UserContext(), queryTimeout)
	defer cancel()

	summary, err := stats.GetSummary(queryCtx, ctx.DBManager.GetConnection(), async.NewPool(summaryWorkers))
	if err != nil {
		return statsError(ctx, "summary", err)
	}

	return ctx.JSON(summary)
}

// SummaryHourlyAction returns per-hour event counts for the trailing day.
func SummaryHourlyAction(ctx *cartridge.Context) error {
	queryCtx, cancel := context.WithTimeout(ctx.Ctx.UserContext(), queryTimeout)
	defer cancel()

	buckets, err := stats.GetHourlyBuckets(queryCtx, ctx.DBManager.GetConnection())
	if err != nil {
		return statsError(ctx, "hourly", err)
	}

	return ctx.JSON(buckets)
}

// SummaryFiveMinutesAction returns per-minute event counts for the trailing
// day.
func SummaryFiveMinutesAction(ctx *cartridge.Context) error {
	queryCtx, cancel := context.WithTimeout(ctx.Ctx.UserContext(), queryTimeout)
	defer cancel()

	buckets, err := stats.GetMinuteBuckets(queryCtx, ctx.DBManager.GetConnection())
	if err != nil {
		return statsError(ctx, "fiveminutes", err)
	}

	return ctx.JSON(buckets)
}

// SummaryWeeklyAction returns the weekday/hour heatmap for the trailing
// week.
func SummaryWeeklyAction(ctx *cartridge.Context) error {
	queryCtx, cancel := context.WithTimeout(ctx.Ctx.UserContext(), queryTimeout)
	defer cancel()

	cells, err := stats.GetWeeklyHeatmap(queryCtx, ctx.DBManager.GetConnection())
	if err != nil {
		return statsError(ctx, "weekly", err)
	}

	return ctx.JSON(cells)
}

// SummaryURLsAction returns the most visited URLs.
func SummaryURLsAction(ctx *cartridge.Context) error {
	queryCtx, cancel := context.WithTimeout(ctx.Ctx.UserContext(), queryTimeout)
	defer cancel()

	results, err := stats.GetTopURLs(queryCtx, ctx.DBManager.GetConnection())
	if err != nil {
		return statsError(ctx, "urls", err)
	}

	return ctx.JSON(results)
}

// SummaryReferrersAction returns the top referrer hosts.
func SummaryReferrersAction(ctx *cartridge.Context) error {
	queryCtx, cancel := context.WithTimeout(ctx.Ctx.UserContext(), queryTimeout)
	defer cancel()

	results, err := stats.GetTopReferrers(queryCtx, ctx.DBManager.GetConnection())
	if err != nil {
		return statsError(ctx, "referrers", err)
	}

	return ctx.JSON(results)
}

// SummaryBrowsersAction returns the top browsers by session count.
func SummaryBrowsersAction(ctx *cartridge.Context) error {
	queryCtx, cancel := context.WithTimeout(ctx.Ctx.UserContext(), queryTimeout)
	defer cancel()

	results, err := stats.GetTopBrowsers(queryCtx, ctx.DBManager.GetConnection())
	if err != nil {
		return statsError(ctx, "browsers", err)
	}

	return ctx.JSON(results)
}

// SummaryOSBrowsersAction returns the top (os, browser) pairs by session
// count.
func SummaryOSBrowsersAction(ctx *cartridge.Context) error {
	queryCtx, cancel := context.WithTimeout(ctx.Ctx.UserContext(), queryTimeout)
	defer cancel()

	results, err := stats.GetTopOSBrowsers(queryCtx, ctx.DBManager.GetConnection())
	if err != nil {
		return statsError(ctx, "osbrowsers", err)
	}

	return ctx.JSON(results)
}

// SummaryPercentagesAction returns day/week/month traffic changes.
func SummaryPercentagesAction(ctx *cartridge.Context) error {
	queryCtx, cancel := context.WithTimeout(ctx.Ctx.UserContext(), queryTimeout)
	defer cancel()

	changes, err := stats.GetPercentChanges(queryCtx, ctx.DBManager.GetConnection(), time.Now())
	if err != nil {
		return statsError(ctx, "percentages", err)
	}

	return ctx.JSON(changes)
}

func statsError(ctx *cartridge.Context, view string, err error) error {
	ctx.Logger.Error("Failed to compute stats view",
		slog.String("view", view),
		slog.Any("error", err))
	return ctx.Status(fiber.StatusInternalServerError).JSON(fiber.Map{
		"error": "Failed to compute " + view + " statistics",
	})
}
