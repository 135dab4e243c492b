package allocations

import (
	"context"
	"errors"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/shopspring/decimal"

	"github.com/freightline-erp/freightline/internal/items"
	"github.com/freightline-erp/freightline/internal/ledger"
	"github.com/freightline-erp/freightline/internal/platform/db"
	"github.com/freightline-erp/freightline/internal/receipts"
)

// Repository persists allocations in PostgreSQL.
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
		return errors.New("allocations repository not initialised")
	}
	return db.WithTx(ctx, r.pool, func(tx pgx.Tx) error {
		return fn(ctx, &txRepository{tx: tx})
	})
}

const allocationColumns = `id, item_id, shipment_id, container_id, allocated_qty, picked_qty, loaded_qty, shipped_qty, status, created_at, updated_at`

func scanAllocation(row pgx.Row) (Allocation, error) {
	var a Allocation
	err := row.Scan(&a.ID, &a.ItemID, &a.ShipmentID, &a.ContainerID, &a.AllocatedQty, &a.PickedQty, &a.LoadedQty, &a.ShippedQty, &a.Status, &a.CreatedAt, &a.UpdatedAt)
	return a, err
}

// GetByID loads one allocation by id.
func (r *Repository) GetByID(ctx context.Context, id int64) (Allocation, error) {
	a, err := scanAllocation(r.pool.QueryRow(ctx, `SELECT `+allocationColumns+` FROM allocations WHERE id=$1`, id))
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return Allocation{}, ErrAllocationNotFound
		}
		return Allocation{}, err
	}
	return a, nil
}

// ListByItem loads all allocations against an item, oldest first.
func (r *Repository) ListByItem(ctx context.Context, itemID int64) ([]Allocation, error) {
	rows, err := r.pool.Query(ctx, `SELECT `+allocationColumns+` FROM allocations WHERE item_id=$1 ORDER BY id ASC`, itemID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	allocs := []Allocation{}
	for rows.Next() {
		a, err := scanAllocation(rows)
		if err != nil {
			return nil, err
		}
		allocs = append(allocs, a)
	}
	return allocs, rows.Err()
}

func (r *txRepository) GetItemForUpdate(ctx context.Context, itemID int64) (items.InventoryItem, error) {
	var it items.InventoryItem
	err := r.tx.QueryRow(ctx, `SELECT id, receipt_id, commodity, sku, unit, initial_qty, current_qty, created_at, updated_at
FROM inventory_items WHERE id=$1 FOR UPDATE`, itemID).
		Scan(&it.ID, &it.ReceiptID, &it.Commodity, &it.SKU, &it.Unit, &it.InitialQty, &it.CurrentQty, &it.CreatedAt, &it.UpdatedAt)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return items.InventoryItem{}, items.ErrItemNotFound
		}
		return items.InventoryItem{}, err
	}
	return it, nil
}

// SumActiveAllocated totals quantity held by reservations that have not
// shipped or been cancelled. Shipped allocations are excluded because their
// quantity already left current_qty.
func (r *txRepository) SumActiveAllocated(ctx context.Context, itemID int64) (decimal.Decimal, error) {
	var sum decimal.Decimal
	err := r.tx.QueryRow(ctx, `SELECT COALESCE(SUM(allocated_qty), 0) FROM allocations
WHERE item_id=$1 AND status NOT IN ('SHIPPED','CANCELLED')`, itemID).Scan(&sum)
	return sum, err
}

func (r *txRepository) InsertAllocation(ctx context.Context, alloc Allocation) (int64, error) {
	var id int64
	err := r.tx.QueryRow(ctx, `INSERT INTO allocations
(item_id, shipment_id, container_id, allocated_qty, picked_qty, loaded_qty, shipped_qty, status, created_at, updated_at)
VALUES ($1,$2,$3,$4,0,0,0,$5,NOW(),NOW()) RETURNING id`,
		alloc.ItemID, alloc.ShipmentID, alloc.ContainerID, alloc.AllocatedQty, string(alloc.Status)).Scan(&id)
	return id, err
}

func (r *txRepository) GetAllocationForUpdate(ctx context.Context, id int64) (Allocation, error) {
	a, err := scanAllocation(r.tx.QueryRow(ctx, `SELECT `+allocationColumns+` FROM allocations WHERE id=$1 FOR UPDATE`, id))
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return Allocation{}, ErrAllocationNotFound
		}
		return Allocation{}, err
	}
	return a, nil
}

func (r *txRepository) UpdateAllocation(ctx context.Context, alloc Allocation) error {
	_, err := r.tx.Exec(ctx, `UPDATE allocations SET
container_id=$2, allocated_qty=$3, picked_qty=$4, loaded_qty=$5, shipped_qty=$6, status=$7, updated_at=NOW()
WHERE id=$1`,
		alloc.ID, alloc.ContainerID, alloc.AllocatedQty, alloc.PickedQty, alloc.LoadedQty, alloc.ShippedQty, string(alloc.Status))
	return err
}

func (r *txRepository) UpdateItemQty(ctx context.Context, itemID int64, qty decimal.Decimal) error {
	_, err := r.tx.Exec(ctx, `UPDATE inventory_items SET current_qty=$2, updated_at=NOW() WHERE id=$1`, itemID, qty)
	return err
}

func (r *txRepository) InsertMovement(ctx context.Context, mv ledger.Movement) (int64, error) {
	return ledger.Record(ctx, r.tx, mv)
}

func (r *txRepository) GetReceiptRollup(ctx context.Context, receiptID int64) (receipts.Rollup, error) {
	return receipts.LoadRollup(ctx, r.tx, receiptID)
}

func (r *txRepository) UpdateReceiptStatusIfChanged(ctx context.Context, receiptID int64, status receipts.Status) (bool, error) {
	return receipts.WriteStatusIfChanged(ctx, r.tx, receiptID, status)
}
