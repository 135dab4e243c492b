package jobs

import (
	"context"
	"encoding/json"
	"errors"
	"log/slog"
	"time"

	"github.com/hibiken/asynq"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/freightline-erp/freightline/internal/receipts"
)

// ReceiptRefresher recomputes the derived status of one receipt.
type ReceiptRefresher interface {
	Refresh(ctx context.Context, receiptID int64) (receipts.Status, error)
}

// ReceiptRefreshJob sweeps receipts whose derived status may have drifted
// from stored state. The refresh is idempotent so re-running a sweep is
// always safe.
type ReceiptRefreshJob struct {
	Service ReceiptRefresher
	Pool    *pgxpool.Pool
	Logger  *slog.Logger
}

// NewReceiptRefreshJob initialises the refresh handler.
func NewReceiptRefreshJob(service ReceiptRefresher, pool *pgxpool.Pool, logger *slog.Logger) *ReceiptRefreshJob {
	return &ReceiptRefreshJob{Service: service, Pool: pool, Logger: logger}
}

// Handle refreshes one receipt, or sweeps all non-shipped receipts when the
// payload names none.
func (j *ReceiptRefreshJob) Handle(ctx context.Context, t *asynq.Task) error {
	if j == nil || j.Service == nil {
		return errors.New("receipt refresh: handler not configured")
	}
	var payload ReceiptRefreshPayload
	if err := json.Unmarshal(t.Payload(), &payload); err != nil {
		return asynq.SkipRetry
	}

	logger := j.logger()
	start := time.Now()

	if payload.ReceiptID > 0 {
		status, err := j.Service.Refresh(ctx, payload.ReceiptID)
		if err != nil {
			logger.Error("refresh failed", slog.Any("error", err), slog.Int64("receipt_id", payload.ReceiptID))
			return err
		}
		logger.Info("receipt refreshed", slog.Int64("receipt_id", payload.ReceiptID), slog.String("status", string(status)))
		return nil
	}

	ids, err := j.listCandidates(ctx)
	if err != nil {
		logger.Error("list candidates failed", slog.Any("error", err))
		return err
	}
	refreshed := 0
	for _, id := range ids {
		if _, err := j.Service.Refresh(ctx, id); err != nil {
			logger.Warn("refresh failed", slog.Any("error", err), slog.Int64("receipt_id", id))
			continue
		}
		refreshed++
	}
	logger.Info("completed receipt sweep",
		slog.Int("candidates", len(ids)),
		slog.Int("refreshed", refreshed),
		slog.Duration("duration", time.Since(start)),
	)
	return nil
}

func (j *ReceiptRefreshJob) listCandidates(ctx context.Context) ([]int64, error) {
	if j.Pool == nil {
		return nil, errors.New("receipt refresh: pool not configured")
	}
	rows, err := j.Pool.Query(ctx, `SELECT id FROM warehouse_receipts WHERE status <> 'SHIPPED' ORDER BY id`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var ids []int64
	for rows.Next() {
		var id int64
		if err := rows.Scan(&id); err != nil {
			return nil, err
		}
		ids = append(ids, id)
	}
	return ids, rows.Err()
}

func (j *ReceiptRefreshJob) logger() *slog.Logger {
	if j.Logger != nil {
		return j.Logger.With(slog.String("job", TaskReceiptStatusRefresh))
	}
	return slog.Default().With(slog.String("job", TaskReceiptStatusRefresh))
}
