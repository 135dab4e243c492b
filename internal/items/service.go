package items

import (
	"context"
	"fmt"
	"strconv"

	"github.com/shopspring/decimal"

	"github.com/freightline-erp/freightline/internal/ledger"
	"github.com/freightline-erp/freightline/internal/shared"
)

// RepositoryPort abstracts repository usage for service.
type RepositoryPort interface {
	WithTx(ctx context.Context, fn func(context.Context, TxRepository) error) error
	GetItem(ctx context.Context, id int64) (InventoryItem, error)
	ListByReceipt(ctx context.Context, receiptID int64) ([]InventoryItem, error)
}

// TxRepository exposes transactional operations used by service.
type TxRepository interface {
	ReceiptExists(ctx context.Context, receiptID int64) (bool, error)
	InsertItem(ctx context.Context, item InventoryItem) (int64, error)
	GetItemForUpdate(ctx context.Context, id int64) (InventoryItem, error)
	UpdateItemQty(ctx context.Context, id int64, qty decimal.Decimal) error
	InsertMovement(ctx context.Context, mv ledger.Movement) (int64, error)
	CountNonCancelledAllocations(ctx context.Context, itemID int64) (int64, error)
	DeleteItem(ctx context.Context, id int64) error
}

// AuditPort abstracts audit logging functionality.
type AuditPort interface {
	Record(ctx context.Context, log shared.AuditLog) error
}

// Service coordinates inventory item operations.
type Service struct {
	repo  RepositoryPort
	audit AuditPort
}

// NewService builds Service.
func NewService(repo RepositoryPort, audit AuditPort) *Service {
	return &Service{repo: repo, audit: audit}
}

// CreateInput describes goods received into a receipt.
type CreateInput struct {
	ReceiptID  int64
	Commodity  string
	SKU        string
	Unit       string
	InitialQty decimal.Decimal
	ActorID    int64
}

// AdjustInput describes a manual quantity correction.
type AdjustInput struct {
	ItemID  int64
	Delta   decimal.Decimal
	Reason  string
	ActorID int64
}

// Create stores a new item with currentQty = initialQty and writes the
// opening RECEIPT ledger entry in the same transaction.
func (s *Service) Create(ctx context.Context, input CreateInput) (InventoryItem, error) {
	if input.ReceiptID <= 0 {
		return InventoryItem{}, ErrReceiptNotFound
	}
	if input.Commodity == "" || input.SKU == "" || input.Unit == "" {
		return InventoryItem{}, ErrMissingFields
	}
	if !input.InitialQty.IsPositive() {
		return InventoryItem{}, ErrInvalidQuantity
	}

	item := InventoryItem{
		ReceiptID:  input.ReceiptID,
		Commodity:  input.Commodity,
		SKU:        input.SKU,
		Unit:       input.Unit,
		InitialQty: input.InitialQty,
		CurrentQty: input.InitialQty,
	}

	err := s.repo.WithTx(ctx, func(ctx context.Context, tx TxRepository) error {
		exists, err := tx.ReceiptExists(ctx, input.ReceiptID)
		if err != nil {
			return err
		}
		if !exists {
			return ErrReceiptNotFound
		}
		id, err := tx.InsertItem(ctx, item)
		if err != nil {
			return fmt.Errorf("insert item: %w", err)
		}
		item.ID = id
		if _, err := tx.InsertMovement(ctx, ledger.Movement{
			ItemID:   id,
			RefType:  ledger.RefTypeReceipt,
			RefID:    input.ReceiptID,
			QtyDelta: input.InitialQty,
		}); err != nil {
			return fmt.Errorf("record receipt movement: %w", err)
		}
		return nil
	})
	if err != nil {
		return InventoryItem{}, err
	}

	s.recordAudit(ctx, input.ActorID, "items:create", item.ID, map[string]any{
		"receipt_id":  item.ReceiptID,
		"sku":         item.SKU,
		"initial_qty": item.InitialQty.String(),
	})
	return item, nil
}

// Adjust applies a signed manual delta through the same bounds as every other
// quantity change and records an ADJUST ledger entry.
func (s *Service) Adjust(ctx context.Context, input AdjustInput) (InventoryItem, error) {
	if input.Delta.IsZero() {
		return InventoryItem{}, ErrZeroDelta
	}

	var item InventoryItem
	err := s.repo.WithTx(ctx, func(ctx context.Context, tx TxRepository) error {
		var err error
		item, err = tx.GetItemForUpdate(ctx, input.ItemID)
		if err != nil {
			return err
		}
		if err := item.Apply(input.Delta); err != nil {
			return err
		}
		if err := tx.UpdateItemQty(ctx, item.ID, item.CurrentQty); err != nil {
			return fmt.Errorf("update item qty: %w", err)
		}
		if _, err := tx.InsertMovement(ctx, ledger.Movement{
			ItemID:   item.ID,
			RefType:  ledger.RefTypeAdjust,
			RefID:    item.ID,
			QtyDelta: input.Delta,
		}); err != nil {
			return fmt.Errorf("record adjust movement: %w", err)
		}
		return nil
	})
	if err != nil {
		return InventoryItem{}, err
	}

	s.recordAudit(ctx, input.ActorID, "items:adjust", item.ID, map[string]any{
		"delta":  input.Delta.String(),
		"reason": input.Reason,
	})
	return item, nil
}

// Delete removes an item that was never consumed and has no open allocations.
// The item's movements are cascade-deleted with it.
func (s *Service) Delete(ctx context.Context, id int64, actorID int64) error {
	err := s.repo.WithTx(ctx, func(ctx context.Context, tx TxRepository) error {
		item, err := tx.GetItemForUpdate(ctx, id)
		if err != nil {
			return err
		}
		if !item.CurrentQty.Equal(item.InitialQty) {
			return ErrItemConsumed
		}
		open, err := tx.CountNonCancelledAllocations(ctx, id)
		if err != nil {
			return err
		}
		if open > 0 {
			return ErrItemAllocated
		}
		return tx.DeleteItem(ctx, id)
	})
	if err != nil {
		return err
	}

	s.recordAudit(ctx, actorID, "items:delete", id, nil)
	return nil
}

// Get returns a single item.
func (s *Service) Get(ctx context.Context, id int64) (InventoryItem, error) {
	return s.repo.GetItem(ctx, id)
}

// ListByReceipt returns all items attached to a receipt.
func (s *Service) ListByReceipt(ctx context.Context, receiptID int64) ([]InventoryItem, error) {
	return s.repo.ListByReceipt(ctx, receiptID)
}

func (s *Service) recordAudit(ctx context.Context, actorID int64, action string, itemID int64, meta map[string]any) {
	if s.audit == nil {
		return
	}
	_ = s.audit.Record(ctx, shared.AuditLog{
		ActorID:  actorID,
		Action:   action,
		Entity:   "inventory_item",
		EntityID: strconv.FormatInt(itemID, 10),
		Meta:     meta,
	})
}
