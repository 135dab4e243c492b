package items

import (
	"context"
	"errors"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/shopspring/decimal"

	"github.com/freightline-erp/freightline/internal/ledger"
	"github.com/freightline-erp/freightline/internal/platform/db"
)

// Repository persists inventory items in PostgreSQL.
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
		return errors.New("items repository not initialised")
	}
	return db.WithTx(ctx, r.pool, func(tx pgx.Tx) error {
		return fn(ctx, &txRepository{tx: tx})
	})
}

const itemColumns = `id, receipt_id, commodity, sku, unit, initial_qty, current_qty, created_at, updated_at`

func scanItem(row pgx.Row) (InventoryItem, error) {
	var it InventoryItem
	err := row.Scan(&it.ID, &it.ReceiptID, &it.Commodity, &it.SKU, &it.Unit, &it.InitialQty, &it.CurrentQty, &it.CreatedAt, &it.UpdatedAt)
	return it, err
}

// GetItem loads one item by id.
func (r *Repository) GetItem(ctx context.Context, id int64) (InventoryItem, error) {
	it, err := scanItem(r.pool.QueryRow(ctx, `SELECT `+itemColumns+` FROM inventory_items WHERE id=$1`, id))
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return InventoryItem{}, ErrItemNotFound
		}
		return InventoryItem{}, err
	}
	return it, nil
}

// ListByReceipt loads all items for a receipt.
func (r *Repository) ListByReceipt(ctx context.Context, receiptID int64) ([]InventoryItem, error) {
	rows, err := r.pool.Query(ctx, `SELECT `+itemColumns+` FROM inventory_items WHERE receipt_id=$1 ORDER BY id ASC`, receiptID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	items := []InventoryItem{}
	for rows.Next() {
		it, err := scanItem(rows)
		if err != nil {
			return nil, err
		}
		items = append(items, it)
	}
	return items, rows.Err()
}

func (r *txRepository) ReceiptExists(ctx context.Context, receiptID int64) (bool, error) {
	var exists bool
	err := r.tx.QueryRow(ctx, `SELECT EXISTS (SELECT 1 FROM warehouse_receipts WHERE id=$1)`, receiptID).Scan(&exists)
	return exists, err
}

func (r *txRepository) InsertItem(ctx context.Context, item InventoryItem) (int64, error) {
	var id int64
	err := r.tx.QueryRow(ctx, `INSERT INTO inventory_items (receipt_id, commodity, sku, unit, initial_qty, current_qty, created_at, updated_at)
VALUES ($1,$2,$3,$4,$5,$6,NOW(),NOW()) RETURNING id`,
		item.ReceiptID, item.Commodity, item.SKU, item.Unit, item.InitialQty, item.CurrentQty).Scan(&id)
	return id, err
}

func (r *txRepository) GetItemForUpdate(ctx context.Context, id int64) (InventoryItem, error) {
	it, err := scanItem(r.tx.QueryRow(ctx, `SELECT `+itemColumns+` FROM inventory_items WHERE id=$1 FOR UPDATE`, id))
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return InventoryItem{}, ErrItemNotFound
		}
		return InventoryItem{}, err
	}
	return it, nil
}

func (r *txRepository) UpdateItemQty(ctx context.Context, id int64, qty decimal.Decimal) error {
	_, err := r.tx.Exec(ctx, `UPDATE inventory_items SET current_qty=$2, updated_at=NOW() WHERE id=$1`, id, qty)
	return err
}

func (r *txRepository) InsertMovement(ctx context.Context, mv ledger.Movement) (int64, error) {
	return ledger.Record(ctx, r.tx, mv)
}

func (r *txRepository) CountNonCancelledAllocations(ctx context.Context, itemID int64) (int64, error) {
	var count int64
	err := r.tx.QueryRow(ctx, `SELECT COUNT(*) FROM allocations WHERE item_id=$1 AND status <> 'CANCELLED'`, itemID).Scan(&count)
	return count, err
}

func (r *txRepository) DeleteItem(ctx context.Context, id int64) error {
	// Movements and cancelled allocations are cascade-deleted by their FKs;
	// live allocations were already rejected by the service guard.
	_, err := r.tx.Exec(ctx, `DELETE FROM inventory_items WHERE id=$1`, id)
	return err
}
