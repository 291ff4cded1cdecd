package events

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/karloscodes/cartridge"
	"github.com/karloscodes/cartridge/sqlite"
	"gorm.io/gorm"
)

// Writer persists event batches. Each batch is one transaction: either all
// of its events commit or none do, so a crash mid-batch cannot leave
// partial writes behind.
type Writer struct {
	dbManager  cartridge.DBManager
	logger     *slog.Logger
	maxRetries int
	backoff    time.Duration
}

// NewWriter creates a batch writer that retries failed writes maxRetries
// times with linear backoff before abandoning the batch.
func NewWriter(dbManager cartridge.DBManager, logger *slog.Logger, maxRetries int, backoff time.Duration) *Writer {
	return &Writer{
		dbManager:  dbManager,
		logger:     logger,
		maxRetries: maxRetries,
		backoff:    backoff,
	}
}

// WriteBatch commits the batch atomically, returning the number of events
// written. Exhausting retries surfaces the last storage error; the caller
// owns the decision to drop the batch.
func (w *Writer) WriteBatch(ctx context.Context, batch []Event) (int, error) {
	if len(batch) == 0 {
		return 0, nil
	}

	db := w.dbManager.GetConnection()
	if db == nil {
		return 0, gorm.ErrInvalidDB
	}

	var lastErr error
	for attempt := 0; attempt <= w.maxRetries; attempt++ {
		if attempt > 0 {
			select {
			case <-time.After(time.Duration(attempt) * w.backoff):
			case <-ctx.Done():
				return 0, fmt.Errorf("batch write canceled: %w", ctx.Err())
			}
		}

		err := sqlite.PerformWrite(w.logger, db.WithContext(ctx), func(tx *gorm.DB) error {
			return tx.Create(&batch).Error
		})
		if err == nil {
			w.logger.Info("Batch written", slog.Int("count", len(batch)))
			return len(batch), nil
		}

		lastErr = err
		w.logger.Warn("Batch write attempt failed",
			slog.Int("attempt", attempt+1),
			slog.Int("batch_size", len(batch)),
			slog.Any("error", err))
	}

	return 0, fmt.Errorf("batch write failed after %d attempts: %w", w.maxRetries+1, lastErr)
}
