package receipts

import (
	"context"
	"errors"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/freightline-erp/freightline/internal/items"
	"github.com/freightline-erp/freightline/internal/platform/db"
)

// Repository persists warehouse receipts in PostgreSQL.
type Repository struct {
	pool *pgxpool.Pool
}

// NewRepository constructs Repository.
func NewRepository(pool *pgxpool.Pool) *Repository {
	return &Repository{pool: pool}
}

type txRepository struct {
	tx pgx.Tx
}

// WithTx executes the callback inside a repeatable-read transaction.
func (r *Repository) WithTx(ctx context.Context, fn func(context.Context, TxRepository) error) error {
	if r == nil {
		return errors.New("receipts repository not initialised")
	}
	return db.WithTx(ctx, r.pool, func(tx pgx.Tx) error {
		return fn(ctx, &txRepository{tx: tx})
	})
}

// GetReceipt loads one receipt row.
func (r *Repository) GetReceipt(ctx context.Context, id int64) (WarehouseReceipt, error) {
	var wr WarehouseReceipt
	err := r.pool.QueryRow(ctx, `SELECT id, code, status, created_at, updated_at FROM warehouse_receipts WHERE id=$1`, id).
		Scan(&wr.ID, &wr.Code, &wr.Status, &wr.CreatedAt, &wr.UpdatedAt)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return WarehouseReceipt{}, ErrReceiptNotFound
		}
		return WarehouseReceipt{}, err
	}
	return wr, nil
}

// GetDetail loads a receipt with its items.
func (r *Repository) GetDetail(ctx context.Context, id int64) (Detail, error) {
	wr, err := r.GetReceipt(ctx, id)
	if err != nil {
		return Detail{}, err
	}
	rows, err := r.pool.Query(ctx, `SELECT id, receipt_id, commodity, sku, unit, initial_qty, current_qty, created_at, updated_at
FROM inventory_items WHERE receipt_id=$1 ORDER BY id ASC`, id)
	if err != nil {
		return Detail{}, err
	}
	defer rows.Close()
	detail := Detail{WarehouseReceipt: wr, Items: []items.InventoryItem{}}
	for rows.Next() {
		var it items.InventoryItem
		if err := rows.Scan(&it.ID, &it.ReceiptID, &it.Commodity, &it.SKU, &it.Unit, &it.InitialQty, &it.CurrentQty, &it.CreatedAt, &it.UpdatedAt); err != nil {
			return Detail{}, err
		}
		detail.Items = append(detail.Items, it)
	}
	return detail, rows.Err()
}

func (r *txRepository) InsertReceipt(ctx context.Context, code string) (WarehouseReceipt, error) {
	var wr WarehouseReceipt
	err := r.tx.QueryRow(ctx, `INSERT INTO warehouse_receipts (code, status, created_at, updated_at)
VALUES ($1, $2, NOW(), NOW()) RETURNING id, code, status, created_at, updated_at`, code, string(StatusReceived)).
		Scan(&wr.ID, &wr.Code, &wr.Status, &wr.CreatedAt, &wr.UpdatedAt)
	return wr, err
}

func (r *txRepository) GetRollup(ctx context.Context, receiptID int64) (Rollup, error) {
	rollup, err := LoadRollup(ctx, r.tx, receiptID)
	if err != nil {
		return Rollup{}, err
	}
	return rollup, nil
}

func (r *txRepository) UpdateStatusIfChanged(ctx context.Context, receiptID int64, status Status) (bool, error) {
	return WriteStatusIfChanged(ctx, r.tx, receiptID, status)
}

// Querier is the subset of pgx satisfied by both pgx.Tx and *pgxpool.Pool.
type Querier interface {
	QueryRow(ctx context.Context, sql string, args ...any) pgx.Row
	Query(ctx context.Context, sql string, args ...any) (pgx.Rows, error)
}

// LoadRollup reads the aggregation inputs for one receipt inside the
// caller's transaction. The allocation engine reuses this from its own
// transaction so the refresh sees its uncommitted writes.
func LoadRollup(ctx context.Context, q Querier, receiptID int64) (Rollup, error) {
	var current Status
	if err := q.QueryRow(ctx, `SELECT status FROM warehouse_receipts WHERE id=$1`, receiptID).Scan(&current); err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return Rollup{}, ErrReceiptNotFound
		}
		return Rollup{}, err
	}

	rollup := Rollup{ReceiptID: receiptID, Current: current}
	itemRows, err := q.Query(ctx, `SELECT id, initial_qty, current_qty FROM inventory_items WHERE receipt_id=$1 ORDER BY id ASC`, receiptID)
	if err != nil {
		return Rollup{}, err
	}
	defer itemRows.Close()
	index := map[int64]int{}
	for itemRows.Next() {
		var state ItemState
		if err := itemRows.Scan(&state.ItemID, &state.InitialQty, &state.CurrentQty); err != nil {
			return Rollup{}, err
		}
		index[state.ItemID] = len(rollup.Items)
		rollup.Items = append(rollup.Items, state)
	}
	if err := itemRows.Err(); err != nil {
		return Rollup{}, err
	}
	itemRows.Close()

	allocRows, err := q.Query(ctx, `SELECT a.item_id, a.status, a.shipped_qty
FROM allocations a
JOIN inventory_items i ON i.id = a.item_id
WHERE i.receipt_id = $1`, receiptID)
	if err != nil {
		return Rollup{}, err
	}
	defer allocRows.Close()
	for allocRows.Next() {
		var itemID int64
		var state AllocationState
		if err := allocRows.Scan(&itemID, &state.Status, &state.ShippedQty); err != nil {
			return Rollup{}, err
		}
		if pos, ok := index[itemID]; ok {
			rollup.Items[pos].Allocations = append(rollup.Items[pos].Allocations, state)
		}
	}
	return rollup, allocRows.Err()
}

// WriteStatusIfChanged persists the derived status only when it differs from
// the stored value. Returns whether a write happened.
func WriteStatusIfChanged(ctx context.Context, q Querier, receiptID int64, status Status) (bool, error) {
	var changed bool
	err := q.QueryRow(ctx, `UPDATE warehouse_receipts SET status=$2, updated_at=NOW()
WHERE id=$1 AND status <> $2 RETURNING TRUE`, receiptID, string(status)).Scan(&changed)
	if errors.Is(err, pgx.ErrNoRows) {
		return false, nil
	}
	return changed, err
}
