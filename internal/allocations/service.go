package allocations

import (
	"context"
	"fmt"
	"log/slog"
	"strconv"

	"github.com/shopspring/decimal"

	"github.com/freightline-erp/freightline/internal/items"
	"github.com/freightline-erp/freightline/internal/ledger"
	"github.com/freightline-erp/freightline/internal/receipts"
	"github.com/freightline-erp/freightline/internal/shared"
)

// RepositoryPort abstracts repository usage for service.
type RepositoryPort interface {
	WithTx(ctx context.Context, fn func(context.Context, TxRepository) error) error
	GetByID(ctx context.Context, id int64) (Allocation, error)
	ListByItem(ctx context.Context, itemID int64) ([]Allocation, error)
}

// TxRepository exposes transactional operations used by service. The item
// row is the lock key for availability checks; the allocation row is the
// lock key for lifecycle transitions.
type TxRepository interface {
	GetItemForUpdate(ctx context.Context, itemID int64) (items.InventoryItem, error)
	SumActiveAllocated(ctx context.Context, itemID int64) (decimal.Decimal, error)
	InsertAllocation(ctx context.Context, alloc Allocation) (int64, error)
	GetAllocationForUpdate(ctx context.Context, id int64) (Allocation, error)
	UpdateAllocation(ctx context.Context, alloc Allocation) error
	UpdateItemQty(ctx context.Context, itemID int64, qty decimal.Decimal) error
	InsertMovement(ctx context.Context, mv ledger.Movement) (int64, error)
	GetReceiptRollup(ctx context.Context, receiptID int64) (receipts.Rollup, error)
	UpdateReceiptStatusIfChanged(ctx context.Context, receiptID int64, status receipts.Status) (bool, error)
}

// AuditPort abstracts audit logging functionality.
type AuditPort interface {
	Record(ctx context.Context, log shared.AuditLog) error
}

// ReceiptCacheInvalidator drops cached receipt reads after a mutation.
type ReceiptCacheInvalidator interface {
	InvalidateCache(ctx context.Context, receiptID int64) error
}

// ReceiptRefreshEnqueuer schedules an out-of-band status refresh through the
// job queue after a mutation commits.
type ReceiptRefreshEnqueuer interface {
	EnqueueReceiptRefresh(ctx context.Context, receiptID int64) error
}

// Service is the allocation state machine. Every mutation runs inside one
// transaction spanning the allocation row, any item/ledger write and the
// receipt status refresh; callers observe the full effect or none.
type Service struct {
	repo        RepositoryPort
	audit       AuditPort
	idempotency *shared.IdempotencyStore
	cache       ReceiptCacheInvalidator
	enqueue     ReceiptRefreshEnqueuer
	logger      *slog.Logger
}

// NewService builds Service.
func NewService(repo RepositoryPort, audit AuditPort, idem *shared.IdempotencyStore, cache ReceiptCacheInvalidator, enqueue ReceiptRefreshEnqueuer, logger *slog.Logger) *Service {
	return &Service{repo: repo, audit: audit, idempotency: idem, cache: cache, enqueue: enqueue, logger: logger}
}

// Get returns a single allocation.
func (s *Service) Get(ctx context.Context, id int64) (Allocation, error) {
	return s.repo.GetByID(ctx, id)
}

// ListByItem returns all allocations against an item, oldest first.
func (s *Service) ListByItem(ctx context.Context, itemID int64) ([]Allocation, error) {
	return s.repo.ListByItem(ctx, itemID)
}

// Create reserves quantity of an item for a shipment. Availability is the
// item's current quantity minus everything already held by non-terminal
// allocations; the check runs under the item row lock so two concurrent
// creates cannot jointly over-allocate. No stock moves and no ledger entry
// is written: an allocation is a reservation, not a movement.
func (s *Service) Create(ctx context.Context, req CreateAllocationRequest) (Allocation, error) {
	if !req.AllocatedQty.IsPositive() {
		return Allocation{}, ErrInvalidQuantity
	}

	insertedKey := false
	if s.idempotency != nil && req.IdempotencyKey != "" {
		if err := s.idempotency.CheckAndInsert(ctx, req.IdempotencyKey, "allocations"); err != nil {
			return Allocation{}, err
		}
		insertedKey = true
	}

	alloc := Allocation{
		ItemID:       req.ItemID,
		ShipmentID:   req.ShipmentID,
		ContainerID:  req.ContainerID,
		AllocatedQty: req.AllocatedQty,
		Status:       StatusAllocated,
	}

	err := s.repo.WithTx(ctx, func(ctx context.Context, tx TxRepository) error {
		item, err := tx.GetItemForUpdate(ctx, req.ItemID)
		if err != nil {
			return err
		}
		reserved, err := tx.SumActiveAllocated(ctx, req.ItemID)
		if err != nil {
			return err
		}
		available := item.CurrentQty.Sub(reserved)
		if req.AllocatedQty.GreaterThan(available) {
			return fmt.Errorf("%w: requested %s, available %s", ErrInsufficientQuantity, req.AllocatedQty, available)
		}
		id, err := tx.InsertAllocation(ctx, alloc)
		if err != nil {
			return fmt.Errorf("insert allocation: %w", err)
		}
		alloc.ID = id
		return nil
	})
	if err != nil {
		if insertedKey {
			_ = s.idempotency.Delete(ctx, req.IdempotencyKey)
		}
		return Allocation{}, err
	}

	s.recordAudit(ctx, "allocations:create", alloc.ID, map[string]any{
		"item_id":       alloc.ItemID,
		"shipment_id":   alloc.ShipmentID,
		"allocated_qty": alloc.AllocatedQty.String(),
	})
	return alloc, nil
}

// Pick records the physically picked quantity. Picking does not touch the
// ledger; stock movement is recorded once, at ship time.
func (s *Service) Pick(ctx context.Context, id int64, req PickRequest) (Allocation, error) {
	if !req.PickedQty.IsPositive() {
		return Allocation{}, ErrInvalidQuantity
	}

	var alloc Allocation
	err := s.repo.WithTx(ctx, func(ctx context.Context, tx TxRepository) error {
		var err error
		alloc, err = tx.GetAllocationForUpdate(ctx, id)
		if err != nil {
			return err
		}
		if !alloc.Status.CanPick() {
			return fmt.Errorf("%w (status %s)", ErrCannotPick, alloc.Status)
		}
		if req.PickedQty.GreaterThan(alloc.AllocatedQty) {
			return ErrPickExceedsAllocated
		}
		alloc.PickedQty = req.PickedQty
		alloc.Status = StatusPicked
		return tx.UpdateAllocation(ctx, alloc)
	})
	if err != nil {
		return Allocation{}, err
	}

	s.recordAudit(ctx, "allocations:pick", alloc.ID, map[string]any{"picked_qty": alloc.PickedQty.String()})
	return alloc, nil
}

// Load records the quantity loaded into a container, optionally reassigning
// the container.
func (s *Service) Load(ctx context.Context, id int64, req LoadRequest) (Allocation, error) {
	if !req.LoadedQty.IsPositive() {
		return Allocation{}, ErrInvalidQuantity
	}

	var alloc Allocation
	err := s.repo.WithTx(ctx, func(ctx context.Context, tx TxRepository) error {
		var err error
		alloc, err = tx.GetAllocationForUpdate(ctx, id)
		if err != nil {
			return err
		}
		if !alloc.Status.CanLoad() {
			return fmt.Errorf("%w (status %s)", ErrCannotLoad, alloc.Status)
		}
		if req.LoadedQty.GreaterThan(alloc.PickedQty) {
			return ErrLoadExceedsPicked
		}
		alloc.LoadedQty = req.LoadedQty
		if req.ContainerID != nil {
			alloc.ContainerID = req.ContainerID
		}
		alloc.Status = StatusLoaded
		return tx.UpdateAllocation(ctx, alloc)
	})
	if err != nil {
		return Allocation{}, err
	}

	s.recordAudit(ctx, "allocations:load", alloc.ID, map[string]any{"loaded_qty": alloc.LoadedQty.String()})
	return alloc, nil
}

// Ship closes the allocation and is the single point where reserved stock
// actually leaves the item: the SHIP ledger entry and the item quantity
// update commit atomically with the status change and the receipt refresh.
func (s *Service) Ship(ctx context.Context, id int64, req ShipRequest) (Allocation, error) {
	if !req.ShippedQty.IsPositive() {
		return Allocation{}, ErrInvalidQuantity
	}

	var alloc Allocation
	var receiptID int64
	err := s.repo.WithTx(ctx, func(ctx context.Context, tx TxRepository) error {
		var err error
		alloc, err = tx.GetAllocationForUpdate(ctx, id)
		if err != nil {
			return err
		}
		if !alloc.Status.CanShip() {
			return fmt.Errorf("%w (status %s)", ErrCannotShip, alloc.Status)
		}
		if req.ShippedQty.GreaterThan(alloc.LoadedQty) {
			return ErrShipExceedsLoaded
		}

		item, err := tx.GetItemForUpdate(ctx, alloc.ItemID)
		if err != nil {
			return err
		}
		if err := item.Apply(req.ShippedQty.Neg()); err != nil {
			return err
		}
		if err := tx.UpdateItemQty(ctx, item.ID, item.CurrentQty); err != nil {
			return fmt.Errorf("update item qty: %w", err)
		}
		if _, err := tx.InsertMovement(ctx, ledger.Movement{
			ItemID:   item.ID,
			RefType:  ledger.RefTypeShip,
			RefID:    alloc.ID,
			QtyDelta: req.ShippedQty.Neg(),
		}); err != nil {
			return fmt.Errorf("record ship movement: %w", err)
		}

		alloc.ShippedQty = req.ShippedQty
		alloc.Status = StatusShipped
		if err := tx.UpdateAllocation(ctx, alloc); err != nil {
			return err
		}

		receiptID = item.ReceiptID
		return s.refreshReceipt(ctx, tx, receiptID)
	})
	if err != nil {
		return Allocation{}, err
	}

	s.invalidateReceipt(ctx, receiptID)
	s.enqueueRefresh(ctx, receiptID)
	s.recordAudit(ctx, "allocations:ship", alloc.ID, map[string]any{
		"shipped_qty": alloc.ShippedQty.String(),
		"receipt_id":  receiptID,
	})
	return alloc, nil
}

// Cancel releases the reservation. Nothing was ever deducted, so there is
// no ledger entry; the held quantity simply becomes available again.
func (s *Service) Cancel(ctx context.Context, id int64) (Allocation, error) {
	var alloc Allocation
	var receiptID int64
	err := s.repo.WithTx(ctx, func(ctx context.Context, tx TxRepository) error {
		var err error
		alloc, err = tx.GetAllocationForUpdate(ctx, id)
		if err != nil {
			return err
		}
		if !alloc.Status.CanCancel() {
			return fmt.Errorf("%w (status %s)", ErrCannotCancel, alloc.Status)
		}

		// Lock the item so the release serializes with availability checks.
		item, err := tx.GetItemForUpdate(ctx, alloc.ItemID)
		if err != nil {
			return err
		}

		alloc.Status = StatusCancelled
		if err := tx.UpdateAllocation(ctx, alloc); err != nil {
			return err
		}

		receiptID = item.ReceiptID
		return s.refreshReceipt(ctx, tx, receiptID)
	})
	if err != nil {
		return Allocation{}, err
	}

	s.invalidateReceipt(ctx, receiptID)
	s.enqueueRefresh(ctx, receiptID)
	s.recordAudit(ctx, "allocations:cancel", alloc.ID, map[string]any{"receipt_id": receiptID})
	return alloc, nil
}

// Split carves splitQty out of an unpicked allocation into a new sibling
// reservation, atomically: the original shrinks and the sibling appears in
// the same transaction, with the combined quantity unchanged.
func (s *Service) Split(ctx context.Context, id int64, req SplitRequest) (SplitResult, error) {
	if !req.SplitQty.IsPositive() {
		return SplitResult{}, ErrInvalidQuantity
	}

	var result SplitResult
	err := s.repo.WithTx(ctx, func(ctx context.Context, tx TxRepository) error {
		original, err := tx.GetAllocationForUpdate(ctx, id)
		if err != nil {
			return err
		}
		if !original.Status.CanSplit() {
			return fmt.Errorf("%w (status %s)", ErrCannotSplit, original.Status)
		}
		if !req.SplitQty.LessThan(original.AllocatedQty) {
			return ErrInvalidSplitQuantity
		}

		// Serialize against availability checks on the same item.
		if _, err := tx.GetItemForUpdate(ctx, original.ItemID); err != nil {
			return err
		}

		original.AllocatedQty = original.AllocatedQty.Sub(req.SplitQty)
		if err := tx.UpdateAllocation(ctx, original); err != nil {
			return err
		}

		sibling := Allocation{
			ItemID:       original.ItemID,
			ShipmentID:   original.ShipmentID,
			ContainerID:  original.ContainerID,
			AllocatedQty: req.SplitQty,
			Status:       StatusAllocated,
		}
		if req.NewContainerID != nil {
			sibling.ContainerID = req.NewContainerID
		}
		siblingID, err := tx.InsertAllocation(ctx, sibling)
		if err != nil {
			return fmt.Errorf("insert sibling allocation: %w", err)
		}
		sibling.ID = siblingID

		result = SplitResult{Original: original, Sibling: sibling}
		return nil
	})
	if err != nil {
		return SplitResult{}, err
	}

	s.recordAudit(ctx, "allocations:split", result.Original.ID, map[string]any{
		"split_qty":  req.SplitQty.String(),
		"sibling_id": result.Sibling.ID,
	})
	return result, nil
}

func (s *Service) refreshReceipt(ctx context.Context, tx TxRepository, receiptID int64) error {
	rollup, err := tx.GetReceiptRollup(ctx, receiptID)
	if err != nil {
		return err
	}
	status := receipts.Compute(rollup)
	_, err = tx.UpdateReceiptStatusIfChanged(ctx, receiptID, status)
	return err
}

// enqueueRefresh schedules a queue-side re-derivation of the receipt status.
// The in-transaction refresh is authoritative; the queued pass re-settles the
// status and rewarms downstream readers after concurrent mutations land.
func (s *Service) enqueueRefresh(ctx context.Context, receiptID int64) {
	if s.enqueue == nil || receiptID == 0 {
		return
	}
	if err := s.enqueue.EnqueueReceiptRefresh(ctx, receiptID); err != nil && s.logger != nil {
		s.logger.Warn("receipt refresh enqueue failed", slog.Any("error", err), slog.Int64("receipt_id", receiptID))
	}
}

func (s *Service) invalidateReceipt(ctx context.Context, receiptID int64) {
	if s.cache == nil || receiptID == 0 {
		return
	}
	if err := s.cache.InvalidateCache(ctx, receiptID); err != nil && s.logger != nil {
		s.logger.Warn("receipt cache invalidate failed", slog.Any("error", err), slog.Int64("receipt_id", receiptID))
	}
}

func (s *Service) recordAudit(ctx context.Context, action string, allocationID int64, meta map[string]any) {
	if s.audit == nil {
		return
	}
	_ = s.audit.Record(ctx, shared.AuditLog{
		Action:   action,
		Entity:   "allocation",
		EntityID: strconv.FormatInt(allocationID, 10),
		Meta:     meta,
	})
}
