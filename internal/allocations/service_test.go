package allocations

import (
	"context"
	"errors"
	"sync"
	"testing"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/require"

	"github.com/freightline-erp/freightline/internal/items"
	"github.com/freightline-erp/freightline/internal/ledger"
	"github.com/freightline-erp/freightline/internal/receipts"
	"github.com/freightline-erp/freightline/internal/shared"
)

type memoryRepo struct {
	items          map[int64]items.InventoryItem
	allocations    map[int64]Allocation
	movements      []ledger.Movement
	receiptStatus  map[int64]receipts.Status
	nextAllocID    int64
	nextMovementID int64
}

type memoryTx struct {
	repo *memoryRepo
}

func newMemoryRepo() *memoryRepo {
	return &memoryRepo{
		items:         make(map[int64]items.InventoryItem),
		allocations:   make(map[int64]Allocation),
		receiptStatus: make(map[int64]receipts.Status),
	}
}

func (r *memoryRepo) addItem(id, receiptID int64, qty string) {
	q := decimal.RequireFromString(qty)
	r.items[id] = items.InventoryItem{ID: id, ReceiptID: receiptID, Commodity: "cargo", SKU: "SKU-1", Unit: "CTN", InitialQty: q, CurrentQty: q}
	if _, ok := r.receiptStatus[receiptID]; !ok {
		r.receiptStatus[receiptID] = receipts.StatusReceived
	}
}

func (r *memoryRepo) WithTx(ctx context.Context, fn func(context.Context, TxRepository) error) error {
	tx := &memoryTx{repo: r}
	return fn(ctx, tx)
}

func (r *memoryRepo) GetByID(ctx context.Context, id int64) (Allocation, error) {
	a, ok := r.allocations[id]
	if !ok {
		return Allocation{}, ErrAllocationNotFound
	}
	return a, nil
}

func (r *memoryRepo) ListByItem(ctx context.Context, itemID int64) ([]Allocation, error) {
	var out []Allocation
	for id := int64(1); id <= r.nextAllocID; id++ {
		if a, ok := r.allocations[id]; ok && a.ItemID == itemID {
			out = append(out, a)
		}
	}
	return out, nil
}

func (tx *memoryTx) GetItemForUpdate(ctx context.Context, itemID int64) (items.InventoryItem, error) {
	it, ok := tx.repo.items[itemID]
	if !ok {
		return items.InventoryItem{}, items.ErrItemNotFound
	}
	return it, nil
}

func (tx *memoryTx) SumActiveAllocated(ctx context.Context, itemID int64) (decimal.Decimal, error) {
	sum := decimal.Zero
	for _, a := range tx.repo.allocations {
		if a.ItemID == itemID && a.Status != StatusShipped && a.Status != StatusCancelled {
			sum = sum.Add(a.AllocatedQty)
		}
	}
	return sum, nil
}

func (tx *memoryTx) InsertAllocation(ctx context.Context, alloc Allocation) (int64, error) {
	tx.repo.nextAllocID++
	alloc.ID = tx.repo.nextAllocID
	tx.repo.allocations[alloc.ID] = alloc
	return alloc.ID, nil
}

func (tx *memoryTx) GetAllocationForUpdate(ctx context.Context, id int64) (Allocation, error) {
	a, ok := tx.repo.allocations[id]
	if !ok {
		return Allocation{}, ErrAllocationNotFound
	}
	return a, nil
}

func (tx *memoryTx) UpdateAllocation(ctx context.Context, alloc Allocation) error {
	tx.repo.allocations[alloc.ID] = alloc
	return nil
}

func (tx *memoryTx) UpdateItemQty(ctx context.Context, itemID int64, qty decimal.Decimal) error {
	it := tx.repo.items[itemID]
	it.CurrentQty = qty
	tx.repo.items[itemID] = it
	return nil
}

func (tx *memoryTx) InsertMovement(ctx context.Context, mv ledger.Movement) (int64, error) {
	tx.repo.nextMovementID++
	mv.ID = tx.repo.nextMovementID
	tx.repo.movements = append(tx.repo.movements, mv)
	return mv.ID, nil
}

func (tx *memoryTx) GetReceiptRollup(ctx context.Context, receiptID int64) (receipts.Rollup, error) {
	current, ok := tx.repo.receiptStatus[receiptID]
	if !ok {
		return receipts.Rollup{}, receipts.ErrReceiptNotFound
	}
	rollup := receipts.Rollup{ReceiptID: receiptID, Current: current}
	for _, it := range tx.repo.items {
		if it.ReceiptID != receiptID {
			continue
		}
		state := receipts.ItemState{ItemID: it.ID, InitialQty: it.InitialQty, CurrentQty: it.CurrentQty}
		for _, a := range tx.repo.allocations {
			if a.ItemID == it.ID {
				state.Allocations = append(state.Allocations, receipts.AllocationState{Status: string(a.Status), ShippedQty: a.ShippedQty})
			}
		}
		rollup.Items = append(rollup.Items, state)
	}
	return rollup, nil
}

func (tx *memoryTx) UpdateReceiptStatusIfChanged(ctx context.Context, receiptID int64, status receipts.Status) (bool, error) {
	if tx.repo.receiptStatus[receiptID] == status {
		return false, nil
	}
	tx.repo.receiptStatus[receiptID] = status
	return true, nil
}

func dec(s string) decimal.Decimal {
	return decimal.RequireFromString(s)
}

func newTestService(repo *memoryRepo) *Service {
	return NewService(repo, nil, nil, nil, nil, nil)
}

type fakeEnqueuer struct {
	receiptIDs []int64
	err        error
}

func (f *fakeEnqueuer) EnqueueReceiptRefresh(ctx context.Context, receiptID int64) error {
	if f.err != nil {
		return f.err
	}
	f.receiptIDs = append(f.receiptIDs, receiptID)
	return nil
}

func TestCreateReservesWithoutMovingStock(t *testing.T) {
	repo := newMemoryRepo()
	repo.addItem(1, 10, "100")
	svc := newTestService(repo)
	ctx := context.Background()

	alloc, err := svc.Create(ctx, CreateAllocationRequest{ItemID: 1, ShipmentID: 7, AllocatedQty: dec("60")})
	require.NoError(t, err)
	require.Equal(t, StatusAllocated, alloc.Status)
	require.True(t, alloc.AllocatedQty.Equal(dec("60")))

	// Reservation overlay: current quantity untouched, no ledger entry.
	require.True(t, repo.items[1].CurrentQty.Equal(dec("100")))
	require.Empty(t, repo.movements)
}

func TestCreateRejectsOverAllocation(t *testing.T) {
	repo := newMemoryRepo()
	repo.addItem(1, 10, "100")
	svc := newTestService(repo)
	ctx := context.Background()

	_, err := svc.Create(ctx, CreateAllocationRequest{ItemID: 1, ShipmentID: 7, AllocatedQty: dec("60")})
	require.NoError(t, err)

	// 60 already held; only 40 remains available.
	_, err = svc.Create(ctx, CreateAllocationRequest{ItemID: 1, ShipmentID: 8, AllocatedQty: dec("50")})
	require.ErrorIs(t, err, shared.ErrInsufficientQuantity)

	_, err = svc.Create(ctx, CreateAllocationRequest{ItemID: 1, ShipmentID: 8, AllocatedQty: dec("40")})
	require.NoError(t, err)
}

func TestCreateValidation(t *testing.T) {
	repo := newMemoryRepo()
	repo.addItem(1, 10, "100")
	svc := newTestService(repo)
	ctx := context.Background()

	_, err := svc.Create(ctx, CreateAllocationRequest{ItemID: 1, ShipmentID: 7, AllocatedQty: dec("0")})
	require.ErrorIs(t, err, shared.ErrValidation)

	_, err = svc.Create(ctx, CreateAllocationRequest{ItemID: 1, ShipmentID: 7, AllocatedQty: dec("-5")})
	require.ErrorIs(t, err, shared.ErrValidation)

	_, err = svc.Create(ctx, CreateAllocationRequest{ItemID: 99, ShipmentID: 7, AllocatedQty: dec("5")})
	require.ErrorIs(t, err, shared.ErrNotFound)
}

func TestFullLifecycleDeductsOnlyAtShip(t *testing.T) {
	repo := newMemoryRepo()
	repo.addItem(1, 10, "100")
	svc := newTestService(repo)
	ctx := context.Background()

	alloc, err := svc.Create(ctx, CreateAllocationRequest{ItemID: 1, ShipmentID: 7, AllocatedQty: dec("60")})
	require.NoError(t, err)

	alloc, err = svc.Pick(ctx, alloc.ID, PickRequest{PickedQty: dec("60")})
	require.NoError(t, err)
	require.Equal(t, StatusPicked, alloc.Status)
	require.True(t, repo.items[1].CurrentQty.Equal(dec("100")))
	require.Empty(t, repo.movements)

	alloc, err = svc.Load(ctx, alloc.ID, LoadRequest{LoadedQty: dec("60")})
	require.NoError(t, err)
	require.Equal(t, StatusLoaded, alloc.Status)
	require.True(t, repo.items[1].CurrentQty.Equal(dec("100")))
	require.Empty(t, repo.movements)

	alloc, err = svc.Ship(ctx, alloc.ID, ShipRequest{ShippedQty: dec("60")})
	require.NoError(t, err)
	require.Equal(t, StatusShipped, alloc.Status)
	require.True(t, repo.items[1].CurrentQty.Equal(dec("40")))

	require.Len(t, repo.movements, 1)
	mv := repo.movements[0]
	require.Equal(t, ledger.RefTypeShip, mv.RefType)
	require.Equal(t, alloc.ID, mv.RefID)
	require.True(t, mv.QtyDelta.Equal(dec("-60")))

	require.Equal(t, receipts.StatusPartial, repo.receiptStatus[10])
}

func TestShipAllMarksReceiptShipped(t *testing.T) {
	repo := newMemoryRepo()
	repo.addItem(1, 10, "100")
	svc := newTestService(repo)
	ctx := context.Background()

	alloc, err := svc.Create(ctx, CreateAllocationRequest{ItemID: 1, ShipmentID: 7, AllocatedQty: dec("100")})
	require.NoError(t, err)
	_, err = svc.Pick(ctx, alloc.ID, PickRequest{PickedQty: dec("100")})
	require.NoError(t, err)
	_, err = svc.Load(ctx, alloc.ID, LoadRequest{LoadedQty: dec("100")})
	require.NoError(t, err)
	_, err = svc.Ship(ctx, alloc.ID, ShipRequest{ShippedQty: dec("100")})
	require.NoError(t, err)

	require.True(t, repo.items[1].CurrentQty.IsZero())
	require.Equal(t, receipts.StatusShipped, repo.receiptStatus[10])
}

func TestStageQuantityMonotonicity(t *testing.T) {
	repo := newMemoryRepo()
	repo.addItem(1, 10, "100")
	svc := newTestService(repo)
	ctx := context.Background()

	alloc, err := svc.Create(ctx, CreateAllocationRequest{ItemID: 1, ShipmentID: 7, AllocatedQty: dec("50")})
	require.NoError(t, err)

	_, err = svc.Pick(ctx, alloc.ID, PickRequest{PickedQty: dec("51")})
	require.ErrorIs(t, err, ErrPickExceedsAllocated)

	_, err = svc.Pick(ctx, alloc.ID, PickRequest{PickedQty: dec("40")})
	require.NoError(t, err)

	_, err = svc.Load(ctx, alloc.ID, LoadRequest{LoadedQty: dec("41")})
	require.ErrorIs(t, err, ErrLoadExceedsPicked)

	_, err = svc.Load(ctx, alloc.ID, LoadRequest{LoadedQty: dec("30")})
	require.NoError(t, err)

	_, err = svc.Ship(ctx, alloc.ID, ShipRequest{ShippedQty: dec("31")})
	require.ErrorIs(t, err, ErrShipExceedsLoaded)

	shipped, err := svc.Ship(ctx, alloc.ID, ShipRequest{ShippedQty: dec("30")})
	require.NoError(t, err)
	require.True(t, repo.items[1].CurrentQty.Equal(dec("70")))
	require.True(t, shipped.ShippedQty.Equal(dec("30")))
}

func TestStateMachineRejectsSkippedStages(t *testing.T) {
	repo := newMemoryRepo()
	repo.addItem(1, 10, "100")
	svc := newTestService(repo)
	ctx := context.Background()

	alloc, err := svc.Create(ctx, CreateAllocationRequest{ItemID: 1, ShipmentID: 7, AllocatedQty: dec("50")})
	require.NoError(t, err)

	// Cannot load or ship before picking.
	_, err = svc.Load(ctx, alloc.ID, LoadRequest{LoadedQty: dec("10")})
	require.ErrorIs(t, err, shared.ErrInvalidStateTransition)
	_, err = svc.Ship(ctx, alloc.ID, ShipRequest{ShippedQty: dec("10")})
	require.ErrorIs(t, err, shared.ErrInvalidStateTransition)

	_, err = svc.Pick(ctx, alloc.ID, PickRequest{PickedQty: dec("50")})
	require.NoError(t, err)

	// Re-pick is allowed while still PICKED; ship straight from PICKED is not.
	_, err = svc.Pick(ctx, alloc.ID, PickRequest{PickedQty: dec("45")})
	require.NoError(t, err)
	_, err = svc.Ship(ctx, alloc.ID, ShipRequest{ShippedQty: dec("45")})
	require.ErrorIs(t, err, shared.ErrInvalidStateTransition)
}

func TestTerminalAllocationsAreImmutable(t *testing.T) {
	repo := newMemoryRepo()
	repo.addItem(1, 10, "100")
	svc := newTestService(repo)
	ctx := context.Background()

	alloc, err := svc.Create(ctx, CreateAllocationRequest{ItemID: 1, ShipmentID: 7, AllocatedQty: dec("50")})
	require.NoError(t, err)
	_, err = svc.Cancel(ctx, alloc.ID)
	require.NoError(t, err)

	_, err = svc.Pick(ctx, alloc.ID, PickRequest{PickedQty: dec("10")})
	require.ErrorIs(t, err, shared.ErrInvalidStateTransition)
	_, err = svc.Cancel(ctx, alloc.ID)
	require.ErrorIs(t, err, shared.ErrInvalidStateTransition)
}

func TestCancelReleasesReservation(t *testing.T) {
	repo := newMemoryRepo()
	repo.addItem(1, 10, "100")
	svc := newTestService(repo)
	ctx := context.Background()

	first, err := svc.Create(ctx, CreateAllocationRequest{ItemID: 1, ShipmentID: 7, AllocatedQty: dec("80")})
	require.NoError(t, err)

	_, err = svc.Create(ctx, CreateAllocationRequest{ItemID: 1, ShipmentID: 8, AllocatedQty: dec("40")})
	require.ErrorIs(t, err, shared.ErrInsufficientQuantity)

	cancelled, err := svc.Cancel(ctx, first.ID)
	require.NoError(t, err)
	require.Equal(t, StatusCancelled, cancelled.Status)
	require.True(t, repo.items[1].CurrentQty.Equal(dec("100")))
	require.Empty(t, repo.movements)

	// Released quantity is available again.
	_, err = svc.Create(ctx, CreateAllocationRequest{ItemID: 1, ShipmentID: 8, AllocatedQty: dec("100")})
	require.NoError(t, err)
}

func TestCancelLoadedAllocationKeepsStock(t *testing.T) {
	repo := newMemoryRepo()
	repo.addItem(1, 10, "100")
	svc := newTestService(repo)
	ctx := context.Background()

	alloc, err := svc.Create(ctx, CreateAllocationRequest{ItemID: 1, ShipmentID: 7, AllocatedQty: dec("50")})
	require.NoError(t, err)
	_, err = svc.Pick(ctx, alloc.ID, PickRequest{PickedQty: dec("50")})
	require.NoError(t, err)
	_, err = svc.Load(ctx, alloc.ID, LoadRequest{LoadedQty: dec("50")})
	require.NoError(t, err)

	// Cancel before ship: nothing was ever deducted so nothing comes back.
	_, err = svc.Cancel(ctx, alloc.ID)
	require.NoError(t, err)
	require.True(t, repo.items[1].CurrentQty.Equal(dec("100")))
	require.Empty(t, repo.movements)
}

func TestSplitConservesQuantity(t *testing.T) {
	repo := newMemoryRepo()
	repo.addItem(1, 10, "100")
	svc := newTestService(repo)
	ctx := context.Background()

	alloc, err := svc.Create(ctx, CreateAllocationRequest{ItemID: 1, ShipmentID: 7, AllocatedQty: dec("60")})
	require.NoError(t, err)

	result, err := svc.Split(ctx, alloc.ID, SplitRequest{SplitQty: dec("25")})
	require.NoError(t, err)
	require.True(t, result.Original.AllocatedQty.Equal(dec("35")))
	require.True(t, result.Sibling.AllocatedQty.Equal(dec("25")))
	require.Equal(t, StatusAllocated, result.Sibling.Status)
	require.Equal(t, alloc.ShipmentID, result.Sibling.ShipmentID)

	// Split law: the combined reservation footprint is unchanged.
	tx := &memoryTx{repo: repo}
	sum, err := tx.SumActiveAllocated(ctx, 1)
	require.NoError(t, err)
	require.True(t, sum.Equal(dec("60")))
}

func TestSplitBounds(t *testing.T) {
	repo := newMemoryRepo()
	repo.addItem(1, 10, "100")
	svc := newTestService(repo)
	ctx := context.Background()

	alloc, err := svc.Create(ctx, CreateAllocationRequest{ItemID: 1, ShipmentID: 7, AllocatedQty: dec("60")})
	require.NoError(t, err)

	_, err = svc.Split(ctx, alloc.ID, SplitRequest{SplitQty: dec("0")})
	require.ErrorIs(t, err, shared.ErrValidation)
	_, err = svc.Split(ctx, alloc.ID, SplitRequest{SplitQty: dec("60")})
	require.ErrorIs(t, err, ErrInvalidSplitQuantity)
	_, err = svc.Split(ctx, alloc.ID, SplitRequest{SplitQty: dec("61")})
	require.ErrorIs(t, err, ErrInvalidSplitQuantity)
}

func TestSplitRequiresUnpickedAllocation(t *testing.T) {
	repo := newMemoryRepo()
	repo.addItem(1, 10, "100")
	svc := newTestService(repo)
	ctx := context.Background()

	alloc, err := svc.Create(ctx, CreateAllocationRequest{ItemID: 1, ShipmentID: 7, AllocatedQty: dec("60")})
	require.NoError(t, err)
	_, err = svc.Pick(ctx, alloc.ID, PickRequest{PickedQty: dec("60")})
	require.NoError(t, err)

	_, err = svc.Split(ctx, alloc.ID, SplitRequest{SplitQty: dec("20")})
	require.ErrorIs(t, err, shared.ErrInvalidStateTransition)
}

func TestSplitContainerAssignment(t *testing.T) {
	repo := newMemoryRepo()
	repo.addItem(1, 10, "100")
	svc := newTestService(repo)
	ctx := context.Background()

	container := int64(42)
	alloc, err := svc.Create(ctx, CreateAllocationRequest{ItemID: 1, ShipmentID: 7, ContainerID: &container, AllocatedQty: dec("60")})
	require.NoError(t, err)

	newContainer := int64(43)
	result, err := svc.Split(ctx, alloc.ID, SplitRequest{SplitQty: dec("20"), NewContainerID: &newContainer})
	require.NoError(t, err)
	require.NotNil(t, result.Original.ContainerID)
	require.Equal(t, container, *result.Original.ContainerID)
	require.NotNil(t, result.Sibling.ContainerID)
	require.Equal(t, newContainer, *result.Sibling.ContainerID)
}

func TestPartialShipThenSiblingShip(t *testing.T) {
	repo := newMemoryRepo()
	repo.addItem(1, 10, "100")
	svc := newTestService(repo)
	ctx := context.Background()

	alloc, err := svc.Create(ctx, CreateAllocationRequest{ItemID: 1, ShipmentID: 7, AllocatedQty: dec("100")})
	require.NoError(t, err)
	result, err := svc.Split(ctx, alloc.ID, SplitRequest{SplitQty: dec("40")})
	require.NoError(t, err)

	ship := func(id int64, qty string) {
		t.Helper()
		_, err := svc.Pick(ctx, id, PickRequest{PickedQty: dec(qty)})
		require.NoError(t, err)
		_, err = svc.Load(ctx, id, LoadRequest{LoadedQty: dec(qty)})
		require.NoError(t, err)
		_, err = svc.Ship(ctx, id, ShipRequest{ShippedQty: dec(qty)})
		require.NoError(t, err)
	}

	ship(result.Original.ID, "60")
	require.True(t, repo.items[1].CurrentQty.Equal(dec("40")))
	require.Equal(t, receipts.StatusPartial, repo.receiptStatus[10])

	ship(result.Sibling.ID, "40")
	require.True(t, repo.items[1].CurrentQty.IsZero())
	require.Equal(t, receipts.StatusShipped, repo.receiptStatus[10])

	// Ledger conservation: deltas sum to the full initial quantity out.
	total := decimal.Zero
	for _, mv := range repo.movements {
		total = total.Add(mv.QtyDelta)
	}
	require.True(t, total.Equal(dec("-100")))
}

func TestLoadReassignsContainer(t *testing.T) {
	repo := newMemoryRepo()
	repo.addItem(1, 10, "100")
	svc := newTestService(repo)
	ctx := context.Background()

	alloc, err := svc.Create(ctx, CreateAllocationRequest{ItemID: 1, ShipmentID: 7, AllocatedQty: dec("50")})
	require.NoError(t, err)
	_, err = svc.Pick(ctx, alloc.ID, PickRequest{PickedQty: dec("50")})
	require.NoError(t, err)

	container := int64(17)
	loaded, err := svc.Load(ctx, alloc.ID, LoadRequest{LoadedQty: dec("50"), ContainerID: &container})
	require.NoError(t, err)
	require.NotNil(t, loaded.ContainerID)
	require.Equal(t, container, *loaded.ContainerID)
}

func TestShipAndCancelEnqueueReceiptRefresh(t *testing.T) {
	repo := newMemoryRepo()
	repo.addItem(1, 10, "100")
	enq := &fakeEnqueuer{}
	svc := NewService(repo, nil, nil, nil, enq, nil)
	ctx := context.Background()

	alloc, err := svc.Create(ctx, CreateAllocationRequest{ItemID: 1, ShipmentID: 7, AllocatedQty: dec("60")})
	require.NoError(t, err)
	_, err = svc.Pick(ctx, alloc.ID, PickRequest{PickedQty: dec("60")})
	require.NoError(t, err)
	_, err = svc.Load(ctx, alloc.ID, LoadRequest{LoadedQty: dec("60")})
	require.NoError(t, err)

	// Reserve-only transitions stay off the queue.
	require.Empty(t, enq.receiptIDs)

	_, err = svc.Ship(ctx, alloc.ID, ShipRequest{ShippedQty: dec("60")})
	require.NoError(t, err)
	require.Equal(t, []int64{10}, enq.receiptIDs)

	other, err := svc.Create(ctx, CreateAllocationRequest{ItemID: 1, ShipmentID: 8, AllocatedQty: dec("20")})
	require.NoError(t, err)
	_, err = svc.Cancel(ctx, other.ID)
	require.NoError(t, err)
	require.Equal(t, []int64{10, 10}, enq.receiptIDs)
}

func TestEnqueueFailureDoesNotFailShip(t *testing.T) {
	repo := newMemoryRepo()
	repo.addItem(1, 10, "100")
	enq := &fakeEnqueuer{err: errors.New("queue down")}
	svc := NewService(repo, nil, nil, nil, enq, nil)
	ctx := context.Background()

	alloc, err := svc.Create(ctx, CreateAllocationRequest{ItemID: 1, ShipmentID: 7, AllocatedQty: dec("40")})
	require.NoError(t, err)
	_, err = svc.Pick(ctx, alloc.ID, PickRequest{PickedQty: dec("40")})
	require.NoError(t, err)
	_, err = svc.Load(ctx, alloc.ID, LoadRequest{LoadedQty: dec("40")})
	require.NoError(t, err)

	shipped, err := svc.Ship(ctx, alloc.ID, ShipRequest{ShippedQty: dec("40")})
	require.NoError(t, err)
	require.Equal(t, StatusShipped, shipped.Status)
	require.True(t, repo.items[1].CurrentQty.Equal(dec("60")))
}

// lockingRepo models the item row lock: the first GetItemForUpdate in a
// transaction takes a per-item mutex that is held until the transaction
// callback returns, so availability checks serialize like FOR UPDATE does.
type lockingRepo struct {
	*memoryRepo
	itemLocks sync.Map
}

type lockingTx struct {
	*memoryTx
	locks *sync.Map
	held  *sync.Mutex
}

func (r *lockingRepo) WithTx(ctx context.Context, fn func(context.Context, TxRepository) error) error {
	tx := &lockingTx{memoryTx: &memoryTx{repo: r.memoryRepo}, locks: &r.itemLocks}
	defer tx.release()
	return fn(ctx, tx)
}

func (tx *lockingTx) GetItemForUpdate(ctx context.Context, itemID int64) (items.InventoryItem, error) {
	if tx.held == nil {
		mu, _ := tx.locks.LoadOrStore(itemID, &sync.Mutex{})
		mu.(*sync.Mutex).Lock()
		tx.held = mu.(*sync.Mutex)
	}
	return tx.memoryTx.GetItemForUpdate(ctx, itemID)
}

func (tx *lockingTx) release() {
	if tx.held != nil {
		tx.held.Unlock()
		tx.held = nil
	}
}

func TestConcurrentCreatesNeverOverAllocate(t *testing.T) {
	repo := &lockingRepo{memoryRepo: newMemoryRepo()}
	repo.addItem(1, 10, "100")
	svc := NewService(repo, nil, nil, nil, nil, nil)
	ctx := context.Background()

	// 8 workers race for 100 units in chunks of 30: only 3 chunks fit.
	const workers = 8
	errs := make(chan error, workers)
	var wg sync.WaitGroup
	for i := 0; i < workers; i++ {
		wg.Add(1)
		go func(shipment int64) {
			defer wg.Done()
			_, err := svc.Create(ctx, CreateAllocationRequest{ItemID: 1, ShipmentID: shipment, AllocatedQty: dec("30")})
			errs <- err
		}(int64(i + 1))
	}
	wg.Wait()
	close(errs)

	succeeded, rejected := 0, 0
	for err := range errs {
		switch {
		case err == nil:
			succeeded++
		case errors.Is(err, shared.ErrInsufficientQuantity):
			rejected++
		default:
			t.Fatalf("unexpected error: %v", err)
		}
	}
	require.Equal(t, 3, succeeded)
	require.Equal(t, workers-3, rejected)

	tx := &memoryTx{repo: repo.memoryRepo}
	sum, err := tx.SumActiveAllocated(ctx, 1)
	require.NoError(t, err)
	require.True(t, sum.Equal(dec("90")))
}
