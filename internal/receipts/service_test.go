package receipts

import (
	"context"
	"testing"
	"time"

	miniredis "github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/require"

	"github.com/freightline-erp/freightline/internal/items"
)

type memoryRepo struct {
	receipts map[int64]WarehouseReceipt
	rollups  map[int64]Rollup
	writes   int
	detail   map[int64]Detail
	nextID   int64
}

type memoryTx struct {
	repo *memoryRepo
}

func newMemoryRepo() *memoryRepo {
	return &memoryRepo{
		receipts: make(map[int64]WarehouseReceipt),
		rollups:  make(map[int64]Rollup),
		detail:   make(map[int64]Detail),
	}
}

func (r *memoryRepo) WithTx(ctx context.Context, fn func(context.Context, TxRepository) error) error {
	return fn(ctx, &memoryTx{repo: r})
}

func (r *memoryRepo) GetReceipt(ctx context.Context, id int64) (WarehouseReceipt, error) {
	wr, ok := r.receipts[id]
	if !ok {
		return WarehouseReceipt{}, ErrReceiptNotFound
	}
	return wr, nil
}

func (r *memoryRepo) GetDetail(ctx context.Context, id int64) (Detail, error) {
	wr, err := r.GetReceipt(ctx, id)
	if err != nil {
		return Detail{}, err
	}
	d := r.detail[id]
	d.WarehouseReceipt = wr
	return d, nil
}

func (tx *memoryTx) InsertReceipt(ctx context.Context, code string) (WarehouseReceipt, error) {
	tx.repo.nextID++
	wr := WarehouseReceipt{ID: tx.repo.nextID, Code: code, Status: StatusReceived}
	tx.repo.receipts[wr.ID] = wr
	return wr, nil
}

func (tx *memoryTx) GetRollup(ctx context.Context, receiptID int64) (Rollup, error) {
	rollup, ok := tx.repo.rollups[receiptID]
	if !ok {
		if wr, exists := tx.repo.receipts[receiptID]; exists {
			return Rollup{ReceiptID: receiptID, Current: wr.Status}, nil
		}
		return Rollup{}, ErrReceiptNotFound
	}
	rollup.Current = tx.repo.receipts[receiptID].Status
	return rollup, nil
}

func (tx *memoryTx) UpdateStatusIfChanged(ctx context.Context, receiptID int64, status Status) (bool, error) {
	wr := tx.repo.receipts[receiptID]
	if wr.Status == status {
		return false, nil
	}
	wr.Status = status
	tx.repo.receipts[receiptID] = wr
	tx.repo.writes++
	return true, nil
}

func newTestService(t *testing.T, repo *memoryRepo) (*Service, *StatusCache) {
	t.Helper()
	mr := miniredis.RunT(t)
	client := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { _ = client.Close() })
	cache := NewStatusCache(client, time.Minute)
	return NewService(repo, cache, nil), cache
}

func TestCreateDefaultsCode(t *testing.T) {
	repo := newMemoryRepo()
	svc, _ := newTestService(t, repo)
	ctx := context.Background()

	wr, err := svc.Create(ctx, "")
	require.NoError(t, err)
	require.NotEmpty(t, wr.Code)
	require.Equal(t, StatusReceived, wr.Status)

	named, err := svc.Create(ctx, "WR-2026-0042")
	require.NoError(t, err)
	require.Equal(t, "WR-2026-0042", named.Code)
}

func TestRefreshWritesOnlyOnChange(t *testing.T) {
	repo := newMemoryRepo()
	svc, _ := newTestService(t, repo)
	ctx := context.Background()

	wr, err := svc.Create(ctx, "WR-1")
	require.NoError(t, err)
	repo.rollups[wr.ID] = Rollup{ReceiptID: wr.ID, Items: []ItemState{
		{ItemID: 1, InitialQty: dec("100"), CurrentQty: dec("60")},
	}}

	status, err := svc.Refresh(ctx, wr.ID)
	require.NoError(t, err)
	require.Equal(t, StatusPartial, status)
	require.Equal(t, 1, repo.writes)

	// Second refresh derives the same status and skips the write.
	status, err = svc.Refresh(ctx, wr.ID)
	require.NoError(t, err)
	require.Equal(t, StatusPartial, status)
	require.Equal(t, 1, repo.writes)
}

func TestRefreshUnknownReceipt(t *testing.T) {
	repo := newMemoryRepo()
	svc, _ := newTestService(t, repo)

	_, err := svc.Refresh(context.Background(), 99)
	require.ErrorIs(t, err, ErrReceiptNotFound)
}

func TestGetReadsThroughCache(t *testing.T) {
	repo := newMemoryRepo()
	svc, cache := newTestService(t, repo)
	ctx := context.Background()

	wr, err := svc.Create(ctx, "WR-1")
	require.NoError(t, err)
	repo.detail[wr.ID] = Detail{Items: []items.InventoryItem{{ID: 1, ReceiptID: wr.ID, SKU: "SKU-1", InitialQty: dec("10"), CurrentQty: dec("10")}}}

	first, err := svc.Get(ctx, wr.ID)
	require.NoError(t, err)
	require.Len(t, first.Items, 1)

	// Repository changes are invisible until the cache entry drops.
	delete(repo.receipts, wr.ID)
	cached, err := svc.Get(ctx, wr.ID)
	require.NoError(t, err)
	require.Equal(t, first.ID, cached.ID)

	require.NoError(t, cache.Invalidate(ctx, wr.ID))
	_, err = svc.Get(ctx, wr.ID)
	require.ErrorIs(t, err, ErrReceiptNotFound)
}

func TestInvalidateCacheDropsDetail(t *testing.T) {
	repo := newMemoryRepo()
	svc, _ := newTestService(t, repo)
	ctx := context.Background()

	wr, err := svc.Create(ctx, "WR-1")
	require.NoError(t, err)
	repo.detail[wr.ID] = Detail{}

	_, err = svc.Get(ctx, wr.ID)
	require.NoError(t, err)

	require.NoError(t, svc.InvalidateCache(ctx, wr.ID))

	// The next read goes back to the repository.
	wr2 := repo.receipts[wr.ID]
	wr2.Status = StatusPartial
	repo.receipts[wr.ID] = wr2
	fresh, err := svc.Get(ctx, wr.ID)
	require.NoError(t, err)
	require.Equal(t, StatusPartial, fresh.Status)
}
