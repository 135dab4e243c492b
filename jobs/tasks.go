// Package jobs hosts the background workers: ledger integrity scanning,
// receipt status refresh sweeps and idempotency key cleanup.
package jobs

import (
	"encoding/json"
	"time"

	"github.com/hibiken/asynq"
)

const (
	// QueueDefault is the default queue name for background jobs.
	QueueDefault = "default"
	// TaskLedgerIntegrityScan verifies item quantities against movement sums.
	TaskLedgerIntegrityScan = "ledger:integrity_scan"
	// TaskReceiptStatusRefresh recomputes derived receipt statuses.
	TaskReceiptStatusRefresh = "receipts:status_refresh"
	// TaskIdempotencyCleanup prunes expired idempotency keys.
	TaskIdempotencyCleanup = "idempotency:cleanup"
)

// LedgerIntegrityPayload carries scheduling metadata for the integrity scan.
type LedgerIntegrityPayload struct {
	ScheduledFor time.Time `json:"scheduled_for"`
}

// NewLedgerIntegrityTask constructs an Asynq task for the ledger scan.
func NewLedgerIntegrityTask(at time.Time) (*asynq.Task, error) {
	body, err := json.Marshal(LedgerIntegrityPayload{ScheduledFor: at})
	if err != nil {
		return nil, err
	}
	return asynq.NewTask(TaskLedgerIntegrityScan, body, asynq.Queue(QueueDefault)), nil
}

// ReceiptRefreshPayload selects which receipts to refresh. A zero ReceiptID
// means sweep every non-shipped receipt.
type ReceiptRefreshPayload struct {
	ReceiptID int64 `json:"receipt_id,omitempty"`
}

// NewReceiptRefreshTask constructs an Asynq task for the status sweep.
func NewReceiptRefreshTask(receiptID int64) (*asynq.Task, error) {
	body, err := json.Marshal(ReceiptRefreshPayload{ReceiptID: receiptID})
	if err != nil {
		return nil, err
	}
	return asynq.NewTask(TaskReceiptStatusRefresh, body, asynq.Queue(QueueDefault)), nil
}

// IdempotencyCleanupPayload sets the retention window for key pruning.
type IdempotencyCleanupPayload struct {
	Retention time.Duration `json:"retention"`
}

// NewIdempotencyCleanupTask constructs an Asynq task for key cleanup.
func NewIdempotencyCleanupTask(retention time.Duration) (*asynq.Task, error) {
	body, err := json.Marshal(IdempotencyCleanupPayload{Retention: retention})
	if err != nil {
		return nil, err
	}
	return asynq.NewTask(TaskIdempotencyCleanup, body, asynq.Queue(QueueDefault)), nil
}
