package ledger

import (
	"context"
	"errors"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
)

// Querier is the subset of pgx satisfied by both *pgxpool.Pool and pgx.Tx.
// Record takes one so the write always joins the caller's transaction.
type Querier interface {
	QueryRow(ctx context.Context, sql string, args ...any) pgx.Row
	Query(ctx context.Context, sql string, args ...any) (pgx.Rows, error)
}

// Repository persists movements in PostgreSQL.
type Repository struct {
	pool *pgxpool.Pool
}

// NewRepository constructs Repository.
func NewRepository(pool *pgxpool.Pool) *Repository {
	return &Repository{pool: pool}
}

// Record appends a movement inside the caller's transaction and returns its id.
func Record(ctx context.Context, q Querier, mv Movement) (int64, error) {
	if err := mv.Validate(); err != nil {
		return 0, err
	}
	var id int64
	err := q.QueryRow(ctx, `INSERT INTO inventory_movements (item_id, ref_type, ref_id, qty_delta, created_at)
VALUES ($1, $2, $3, $4, NOW()) RETURNING id`, mv.ItemID, string(mv.RefType), mv.RefID, mv.QtyDelta).Scan(&id)
	return id, err
}

// ListByItem returns the movements for an item, oldest first. Audit and
// reconstruction only; the hot path reads the cached quantity on the item.
func (r *Repository) ListByItem(ctx context.Context, itemID int64) ([]Movement, error) {
	if r == nil {
		return nil, errors.New("ledger repository not initialised")
	}
	rows, err := r.pool.Query(ctx, `SELECT id, item_id, ref_type, ref_id, qty_delta, created_at
FROM inventory_movements
WHERE item_id = $1
ORDER BY created_at ASC, id ASC`, itemID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	movements := []Movement{}
	for rows.Next() {
		var mv Movement
		if err := rows.Scan(&mv.ID, &mv.ItemID, &mv.RefType, &mv.RefID, &mv.QtyDelta, &mv.CreatedAt); err != nil {
			return nil, err
		}
		movements = append(movements, mv)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	return movements, nil
}
