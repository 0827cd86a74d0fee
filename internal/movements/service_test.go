package movements

import (
	"context"
	"io"
	"log/slog"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/meridian-ims/meridian/internal/masterdata/products"
	"github.com/meridian-ims/meridian/internal/masterdata/warehouses"
	"github.com/meridian-ims/meridian/internal/platform/httpx"
	"github.com/meridian-ims/meridian/internal/stock"
)

type memoryMovementRepo struct {
	nextID    int64
	movements map[int64]*Movement
}

func newMemoryMovementRepo() *memoryMovementRepo {
	return &memoryMovementRepo{nextID: 1, movements: map[int64]*Movement{}}
}

func (m *memoryMovementRepo) Create(_ context.Context, mv Movement) (int64, error) {
	mv.ID = m.nextID
	m.nextID++
	mv.CreatedAt = time.Now()
	m.movements[mv.ID] = &mv
	return mv.ID, nil
}

func (m *memoryMovementRepo) Get(_ context.Context, id int64) (*Movement, error) {
	mv, ok := m.movements[id]
	if !ok {
		return nil, httpx.ErrNotFound
	}
	cp := *mv
	return &cp, nil
}

func (m *memoryMovementRepo) List(_ context.Context, req ListMovementsRequest) ([]Movement, int, error) {
	var out []Movement
	for _, mv := range m.movements {
		if req.Status != nil && mv.Status != *req.Status {
			continue
		}
		out = append(out, *mv)
	}
	return out, len(out), nil
}

func (m *memoryMovementRepo) Update(_ context.Context, id int64, req UpdateMovementRequest) error {
	mv, ok := m.movements[id]
	if !ok {
		return httpx.ErrNotFound
	}
	if req.Qty != nil {
		mv.Qty = *req.Qty
	}
	if req.MovementDate != nil {
		mv.MovementDate = *req.MovementDate
	}
	if req.Notes != nil {
		mv.Notes = *req.Notes
	}
	return nil
}

func (m *memoryMovementRepo) TransitionStatus(_ context.Context, id int64, from, to Status) error {
	mv, ok := m.movements[id]
	if !ok || mv.Status != from {
		return httpx.ErrInvalidTransition
	}
	mv.Status = to
	if to == StatusCompleted {
		now := time.Now()
		mv.CompletedAt = &now
	}
	return nil
}

func (m *memoryMovementRepo) Delete(_ context.Context, id int64) error {
	if _, ok := m.movements[id]; !ok {
		return httpx.ErrNotFound
	}
	delete(m.movements, id)
	return nil
}

// fakeLedger tracks on-hand per product/warehouse and enforces the
// conditional decrement the real ledger applies.
type fakeLedger struct {
	onHand map[[2]int64]int64
	calls  int
}

func newFakeLedger() *fakeLedger {
	return &fakeLedger{onHand: map[[2]int64]int64{}}
}

func (f *fakeLedger) LevelIn(_ context.Context, productID, warehouseID int64) (stock.Level, error) {
	return stock.Level{ProductID: productID, WarehouseID: warehouseID,
		OnHand: f.onHand[[2]int64{productID, warehouseID}]}, nil
}

func (f *fakeLedger) ApplyMovement(_ context.Context, productID int64, src, dst *int64, qty int64, _ string) error {
	if src != nil {
		key := [2]int64{productID, *src}
		if f.onHand[key] < qty {
			return httpx.ErrInsufficientStock
		}
		f.onHand[key] -= qty
	}
	if dst != nil {
		f.onHand[[2]int64{productID, *dst}] += qty
	}
	f.calls++
	return nil
}

type fakeCatalog map[int64]products.Product

func (f fakeCatalog) Get(_ context.Context, id int64) (products.Product, error) {
	p, ok := f[id]
	if !ok {
		return products.Product{}, httpx.ErrNotFound
	}
	return p, nil
}

type fakeWarehouses map[int64]warehouses.Warehouse

func (f fakeWarehouses) Get(_ context.Context, id int64) (warehouses.Warehouse, error) {
	wh, ok := f[id]
	if !ok {
		return warehouses.Warehouse{}, httpx.ErrNotFound
	}
	return wh, nil
}

type fixture struct {
	svc    *Service
	repo   *memoryMovementRepo
	ledger *fakeLedger
}

func newFixture() fixture {
	repo := newMemoryMovementRepo()
	ledger := newFakeLedger()
	ledger.onHand[[2]int64{1, 1}] = 10
	catalog := fakeCatalog{1: {ID: 1, SKU: "WID-001", Name: "Widget", IsActive: true}}
	dirs := fakeWarehouses{1: {ID: 1, Code: "WH1"}, 2: {ID: 2, Code: "WH2"}}
	svc := NewService(repo, catalog, dirs, ledger, nil,
		slog.New(slog.NewTextHandler(io.Discard, nil)))
	return fixture{svc: svc, repo: repo, ledger: ledger}
}

func ptr(v int64) *int64 { return &v }

func TestCreateRequiresAWarehouseSide(t *testing.T) {
	fx := newFixture()

	_, err := fx.svc.Create(context.Background(), CreateMovementRequest{ProductID: 1, Qty: 3}, 1)
	require.ErrorIs(t, err, httpx.ErrValidation)

	_, err = fx.svc.Create(context.Background(), CreateMovementRequest{
		ProductID: 1, SourceID: ptr(1), DestinationID: ptr(1), Qty: 3}, 1)
	require.ErrorIs(t, err, httpx.ErrValidation)
}

func TestCreateSourceAvailabilityIsAdvisory(t *testing.T) {
	fx := newFixture()

	_, err := fx.svc.Create(context.Background(), CreateMovementRequest{
		ProductID: 1, SourceID: ptr(1), Qty: 50}, 1)
	require.ErrorIs(t, err, httpx.ErrInsufficientStock)

	m, err := fx.svc.Create(context.Background(), CreateMovementRequest{
		ProductID: 1, SourceID: ptr(1), DestinationID: ptr(2), Qty: 4}, 1)
	require.NoError(t, err)
	require.Equal(t, StatusPending, m.Status)
	// nothing applied yet
	require.EqualValues(t, 10, fx.ledger.onHand[[2]int64{1, 1}])
	require.EqualValues(t, 0, fx.ledger.onHand[[2]int64{1, 2}])
}

func TestCompleteAppliesLedgerExactlyOnce(t *testing.T) {
	fx := newFixture()
	m, err := fx.svc.Create(context.Background(), CreateMovementRequest{
		ProductID: 1, SourceID: ptr(1), DestinationID: ptr(2), Qty: 4}, 1)
	require.NoError(t, err)

	done, err := fx.svc.Complete(context.Background(), m.ID)
	require.NoError(t, err)
	require.Equal(t, StatusCompleted, done.Status)
	require.NotNil(t, done.CompletedAt)
	require.EqualValues(t, 6, fx.ledger.onHand[[2]int64{1, 1}])
	require.EqualValues(t, 4, fx.ledger.onHand[[2]int64{1, 2}])

	_, err = fx.svc.Complete(context.Background(), m.ID)
	require.ErrorIs(t, err, httpx.ErrInvalidTransition)
	require.Equal(t, 1, fx.ledger.calls)

	_, err = fx.svc.Cancel(context.Background(), m.ID)
	require.ErrorIs(t, err, httpx.ErrInvalidTransition)
	require.EqualValues(t, 6, fx.ledger.onHand[[2]int64{1, 1}])
}

func TestCompleteInsufficientStockLeavesMovementPending(t *testing.T) {
	fx := newFixture()
	m, err := fx.svc.Create(context.Background(), CreateMovementRequest{
		ProductID: 1, SourceID: ptr(1), Qty: 8}, 1)
	require.NoError(t, err)

	// stock drained between create and complete
	fx.ledger.onHand[[2]int64{1, 1}] = 5

	_, err = fx.svc.Complete(context.Background(), m.ID)
	require.ErrorIs(t, err, httpx.ErrInsufficientStock)

	got, err := fx.svc.Get(context.Background(), m.ID)
	require.NoError(t, err)
	require.Equal(t, StatusPending, got.Status)
	require.EqualValues(t, 5, fx.ledger.onHand[[2]int64{1, 1}])
}

func TestCancelPendingHasNoLedgerEffect(t *testing.T) {
	fx := newFixture()
	m, err := fx.svc.Create(context.Background(), CreateMovementRequest{
		ProductID: 1, SourceID: ptr(1), DestinationID: ptr(2), Qty: 4}, 1)
	require.NoError(t, err)

	cancelled, err := fx.svc.Cancel(context.Background(), m.ID)
	require.NoError(t, err)
	require.Equal(t, StatusCancelled, cancelled.Status)
	require.EqualValues(t, 10, fx.ledger.onHand[[2]int64{1, 1}])
	require.Equal(t, 0, fx.ledger.calls)
}

func TestUpdatePendingOnly(t *testing.T) {
	fx := newFixture()
	m, err := fx.svc.Create(context.Background(), CreateMovementRequest{
		ProductID: 1, SourceID: ptr(1), DestinationID: ptr(2), Qty: 4}, 1)
	require.NoError(t, err)

	updated, err := fx.svc.Update(context.Background(), m.ID, UpdateMovementRequest{Qty: ptr(6)})
	require.NoError(t, err)
	require.EqualValues(t, 6, updated.Qty)

	// qty change re-runs the advisory check
	_, err = fx.svc.Update(context.Background(), m.ID, UpdateMovementRequest{Qty: ptr(50)})
	require.ErrorIs(t, err, httpx.ErrInsufficientStock)

	_, err = fx.svc.Complete(context.Background(), m.ID)
	require.NoError(t, err)
	_, err = fx.svc.Update(context.Background(), m.ID, UpdateMovementRequest{Qty: ptr(2)})
	require.ErrorIs(t, err, httpx.ErrInvalidTransition)
}

func TestDeleteRejectedOnceCompleted(t *testing.T) {
	fx := newFixture()
	m, err := fx.svc.Create(context.Background(), CreateMovementRequest{
		ProductID: 1, DestinationID: ptr(2), Qty: 4}, 1)
	require.NoError(t, err)

	_, err = fx.svc.Complete(context.Background(), m.ID)
	require.NoError(t, err)
	require.ErrorIs(t, fx.svc.Delete(context.Background(), m.ID), httpx.ErrInvalidTransition)

	pending, err := fx.svc.Create(context.Background(), CreateMovementRequest{
		ProductID: 1, DestinationID: ptr(2), Qty: 4}, 1)
	require.NoError(t, err)
	require.NoError(t, fx.svc.Delete(context.Background(), pending.ID))
}
