package receipts

import (
	"context"
	"fmt"
	"log/slog"
	"strconv"
	"strings"

	"github.com/google/uuid"
	"golang.org/x/sync/singleflight"
)

// RepositoryPort abstracts repository usage for service.
type RepositoryPort interface {
	WithTx(ctx context.Context, fn func(context.Context, TxRepository) error) error
	GetReceipt(ctx context.Context, id int64) (WarehouseReceipt, error)
	GetDetail(ctx context.Context, id int64) (Detail, error)
}

// TxRepository exposes transactional operations used by service.
type TxRepository interface {
	InsertReceipt(ctx context.Context, code string) (WarehouseReceipt, error)
	GetRollup(ctx context.Context, receiptID int64) (Rollup, error)
	UpdateStatusIfChanged(ctx context.Context, receiptID int64, status Status) (bool, error)
}

// Service recomputes and serves derived receipt status.
type Service struct {
	repo   RepositoryPort
	cache  *StatusCache
	logger *slog.Logger
	group  singleflight.Group
}

// NewService builds Service.
func NewService(repo RepositoryPort, cache *StatusCache, logger *slog.Logger) *Service {
	return &Service{repo: repo, cache: cache, logger: logger}
}

// Create stores a new intake record. The initial status is RECEIVED.
func (s *Service) Create(ctx context.Context, code string) (WarehouseReceipt, error) {
	if code == "" {
		code = fmt.Sprintf("WR-%s", strings.ToUpper(uuid.NewString()[:8]))
	}
	var receipt WarehouseReceipt
	err := s.repo.WithTx(ctx, func(ctx context.Context, tx TxRepository) error {
		var err error
		receipt, err = tx.InsertReceipt(ctx, code)
		return err
	})
	if err != nil {
		return WarehouseReceipt{}, err
	}
	return receipt, nil
}

// Get returns a receipt with its items, read through the cache.
func (s *Service) Get(ctx context.Context, id int64) (Detail, error) {
	if detail, ok := s.cache.Get(ctx, id); ok {
		return detail, nil
	}
	detail, err := s.repo.GetDetail(ctx, id)
	if err != nil {
		return Detail{}, err
	}
	if err := s.cache.Set(ctx, detail); err != nil && s.logger != nil {
		s.logger.Warn("receipt cache set failed", slog.Any("error", err), slog.Int64("receipt_id", id))
	}
	return detail, nil
}

// Refresh recomputes the derived status and writes it only when it changed.
// Concurrent refreshes of the same receipt collapse into one; last writer
// wins on the status column, which is safe because the value is derived.
func (s *Service) Refresh(ctx context.Context, id int64) (Status, error) {
	v, err, _ := s.group.Do(strconv.FormatInt(id, 10), func() (any, error) {
		return s.refresh(ctx, id)
	})
	if err != nil {
		return "", err
	}
	return v.(Status), nil
}

func (s *Service) refresh(ctx context.Context, id int64) (Status, error) {
	var status Status
	var changed bool
	err := s.repo.WithTx(ctx, func(ctx context.Context, tx TxRepository) error {
		rollup, err := tx.GetRollup(ctx, id)
		if err != nil {
			return err
		}
		status = Compute(rollup)
		changed, err = tx.UpdateStatusIfChanged(ctx, id, status)
		return err
	})
	if err != nil {
		return "", err
	}
	if changed {
		if err := s.cache.Invalidate(ctx, id); err != nil && s.logger != nil {
			s.logger.Warn("receipt cache invalidate failed", slog.Any("error", err), slog.Int64("receipt_id", id))
		}
		if s.logger != nil {
			s.logger.Info("receipt status updated", slog.Int64("receipt_id", id), slog.String("status", string(status)))
		}
	}
	return status, nil
}

// InvalidateCache drops the cached detail for a receipt. Allocation
// mutations call this after their transaction commits.
func (s *Service) InvalidateCache(ctx context.Context, receiptID int64) error {
	return s.cache.Invalidate(ctx, receiptID)
}
