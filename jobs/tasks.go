package jobs

import (
	"context"
	"log/slog"
	"strconv"
	"time"

	"github.com/hibiken/asynq"

	jobmetrics "github.com/meridian-ims/meridian/internal/jobs"
	"github.com/meridian-ims/meridian/internal/shared"
	"github.com/meridian-ims/meridian/internal/stock"
)

const (
	// QueueDefault is the default queue name for background jobs.
	QueueDefault = "default"

	// TaskReservationSweep releases expired stock reservation holds.
	TaskReservationSweep = "stock:reservation_sweep"
	// TaskIdempotencyCleanup prunes consumed idempotency keys.
	TaskIdempotencyCleanup = "shared:idempotency_cleanup"
	// TaskLowStockScan reports ledger rows below the configured threshold.
	TaskLowStockScan = "stock:low_stock_scan"
)

const sweepBatchSize = 500

// Tasks bundles the services the background handlers run against.
type Tasks struct {
	Stock             *stock.Service
	Idempotency       *shared.IdempotencyStore
	Audit             *shared.AuditLogger
	Logger            *slog.Logger
	Metrics           *jobmetrics.Metrics
	LowStockThreshold int64
	IdempotencyMaxAge time.Duration
}

// NewReservationSweepTask constructs the sweep task.
func NewReservationSweepTask() *asynq.Task {
	return asynq.NewTask(TaskReservationSweep, nil)
}

// NewIdempotencyCleanupTask constructs the cleanup task.
func NewIdempotencyCleanupTask() *asynq.Task {
	return asynq.NewTask(TaskIdempotencyCleanup, nil)
}

// NewLowStockScanTask constructs the low-stock scan task.
func NewLowStockScanTask() *asynq.Task {
	return asynq.NewTask(TaskLowStockScan, nil)
}

// HandleReservationSweep releases holds whose TTL has passed. Orders still
// PENDING lose their claim on stock; a later confirm then fails cleanly.
func (t *Tasks) HandleReservationSweep(ctx context.Context, _ *asynq.Task) error {
	track := t.Metrics.Track(TaskReservationSweep)
	released, err := t.Stock.SweepExpiredHolds(ctx, time.Now(), sweepBatchSize)
	if err != nil {
		t.Logger.Error("reservation sweep", slog.Any("error", err))
		return track.End(err)
	}
	if released > 0 {
		t.Logger.Info("reservation sweep", slog.Int("released", released))
	}
	return track.End(nil)
}

// HandleIdempotencyCleanup drops consumed idempotency keys past their
// retention window.
func (t *Tasks) HandleIdempotencyCleanup(ctx context.Context, _ *asynq.Task) error {
	track := t.Metrics.Track(TaskIdempotencyCleanup)
	maxAge := t.IdempotencyMaxAge
	if maxAge <= 0 {
		maxAge = 24 * time.Hour
	}
	if err := t.Idempotency.Cleanup(ctx, maxAge); err != nil {
		t.Logger.Error("idempotency cleanup", slog.Any("error", err))
		return track.End(err)
	}
	return track.End(nil)
}

// HandleLowStockScan logs and audits every product/warehouse pair whose
// availability sits below the threshold.
func (t *Tasks) HandleLowStockScan(ctx context.Context, _ *asynq.Task) error {
	track := t.Metrics.Track(TaskLowStockScan)
	threshold := t.LowStockThreshold
	if threshold <= 0 {
		threshold = 10
	}
	rows, err := t.Stock.LowStock(ctx, threshold)
	if err != nil {
		t.Logger.Error("low stock scan", slog.Any("error", err))
		return track.End(err)
	}
	for _, row := range rows {
		t.Logger.Warn("low stock",
			slog.Int64("product_id", row.ProductID),
			slog.Int64("warehouse_id", row.WarehouseID),
			slog.Int64("available", row.OnHand-row.Reserved))
	}
	if len(rows) > 0 && t.Audit != nil {
		if err := t.Audit.Record(ctx, shared.AuditLog{
			Action:   "stock.low_stock_scan",
			Entity:   "stock",
			EntityID: strconv.FormatInt(threshold, 10),
			Meta:     map[string]any{"rows": len(rows)},
		}); err != nil {
			t.Logger.Warn("audit record", slog.Any("error", err))
		}
	}
	return track.End(nil)
}
