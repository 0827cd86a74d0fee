package stock

import (
	"context"
	"io"
	"log/slog"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/meridian-ims/meridian/internal/platform/httpx"
)

type memoryLedger struct {
	levels       map[[2]int64]*Level
	entries      []Entry
	reservations map[int64]*Reservation
	nextResID    int64
}

func newMemoryLedger() *memoryLedger {
	return &memoryLedger{
		levels:       map[[2]int64]*Level{},
		reservations: map[int64]*Reservation{},
		nextResID:    1,
	}
}

func (m *memoryLedger) snapshot() *memoryLedger {
	cp := newMemoryLedger()
	cp.nextResID = m.nextResID
	cp.entries = append([]Entry(nil), m.entries...)
	for k, v := range m.levels {
		l := *v
		cp.levels[k] = &l
	}
	for k, v := range m.reservations {
		r := *v
		cp.reservations[k] = &r
	}
	return cp
}

func (m *memoryLedger) restore(s *memoryLedger) {
	m.levels = s.levels
	m.entries = s.entries
	m.reservations = s.reservations
	m.nextResID = s.nextResID
}

func (m *memoryLedger) WithTx(ctx context.Context, fn func(context.Context, TxRepository) error) error {
	snap := m.snapshot()
	if err := fn(ctx, m); err != nil {
		m.restore(snap)
		return err
	}
	return nil
}

func (m *memoryLedger) level(productID, warehouseID int64) *Level {
	key := [2]int64{productID, warehouseID}
	l, ok := m.levels[key]
	if !ok {
		l = &Level{ProductID: productID, WarehouseID: warehouseID}
		m.levels[key] = l
	}
	return l
}

func (m *memoryLedger) GetLevel(_ context.Context, productID, warehouseID int64) (Level, error) {
	if l, ok := m.levels[[2]int64{productID, warehouseID}]; ok {
		return *l, nil
	}
	return Level{ProductID: productID, WarehouseID: warehouseID}, nil
}

func (m *memoryLedger) SetOnHand(_ context.Context, productID, warehouseID, qty int64) (Level, error) {
	l := m.level(productID, warehouseID)
	l.OnHand = qty
	l.UpdatedAt = time.Now()
	return *l, nil
}

func (m *memoryLedger) AdjustOnHand(_ context.Context, productID, warehouseID, delta int64) (Level, error) {
	l := m.level(productID, warehouseID)
	if delta < 0 && l.OnHand-l.Reserved < -delta {
		return Level{}, httpx.ErrInsufficientStock
	}
	l.OnHand += delta
	l.UpdatedAt = time.Now()
	return *l, nil
}

func (m *memoryLedger) Reserve(_ context.Context, productID, warehouseID, qty int64) (Level, error) {
	l := m.level(productID, warehouseID)
	if l.OnHand-l.Reserved < qty {
		return Level{}, httpx.ErrInsufficientStock
	}
	l.Reserved += qty
	return *l, nil
}

func (m *memoryLedger) ReleaseReserved(_ context.Context, productID, warehouseID, qty int64) (Level, error) {
	l := m.level(productID, warehouseID)
	if l.Reserved < qty {
		return Level{}, httpx.ErrInsufficientStock
	}
	l.Reserved -= qty
	return *l, nil
}

func (m *memoryLedger) CommitReserved(_ context.Context, productID, warehouseID, qty int64) (Level, error) {
	l := m.level(productID, warehouseID)
	if l.Reserved < qty || l.OnHand < qty {
		return Level{}, httpx.ErrInsufficientStock
	}
	l.Reserved -= qty
	l.OnHand -= qty
	return *l, nil
}

func (m *memoryLedger) ListLevels(_ context.Context, productID int64) ([]Level, error) {
	var out []Level
	for _, l := range m.levels {
		if l.ProductID == productID {
			out = append(out, *l)
		}
	}
	return out, nil
}

func (m *memoryLedger) SumOnHand(_ context.Context, productID int64) (int64, error) {
	var total int64
	for _, l := range m.levels {
		if l.ProductID == productID {
			total += l.OnHand
		}
	}
	return total, nil
}

func (m *memoryLedger) InsertEntry(_ context.Context, e Entry) error {
	e.ID = int64(len(m.entries) + 1)
	m.entries = append(m.entries, e)
	return nil
}

func (m *memoryLedger) CreateReservation(_ context.Context, r Reservation) (Reservation, error) {
	r.ID = m.nextResID
	m.nextResID++
	r.CreatedAt = time.Now()
	m.reservations[r.ID] = &r
	return r, nil
}

func (m *memoryLedger) GetReservation(_ context.Context, id int64) (Reservation, error) {
	r, ok := m.reservations[id]
	if !ok {
		return Reservation{}, httpx.ErrNotFound
	}
	return *r, nil
}

func (m *memoryLedger) ListOrderReservations(_ context.Context, orderID int64, status string) ([]Reservation, error) {
	var out []Reservation
	for _, r := range m.reservations {
		if r.OrderID == orderID && (status == "" || r.Status == status) {
			out = append(out, *r)
		}
	}
	return out, nil
}

func (m *memoryLedger) MarkReservation(_ context.Context, id int64, from, to string) error {
	r, ok := m.reservations[id]
	if !ok || r.Status != from {
		return httpx.ErrInvalidTransition
	}
	r.Status = to
	return nil
}

func (m *memoryLedger) ListExpiredHeld(_ context.Context, now time.Time, limit int) ([]Reservation, error) {
	var out []Reservation
	for _, r := range m.reservations {
		if r.Status == ReservationHeld && r.ExpiresAt.Before(now) {
			out = append(out, *r)
			if len(out) >= limit {
				break
			}
		}
	}
	return out, nil
}

func (m *memoryLedger) LowStock(_ context.Context, threshold int64) ([]LowStockRow, error) {
	var out []LowStockRow
	for _, l := range m.levels {
		if l.OnHand-l.Reserved < threshold {
			out = append(out, LowStockRow{ProductID: l.ProductID, WarehouseID: l.WarehouseID, OnHand: l.OnHand, Reserved: l.Reserved})
		}
	}
	return out, nil
}

func newTestService(ledger *memoryLedger) *Service {
	return NewService(ledger, nil, nil, nil, slog.New(slog.NewTextHandler(io.Discard, nil)))
}

func TestTotalOnHandSumsWarehouses(t *testing.T) {
	ledger := newMemoryLedger()
	svc := newTestService(ledger)
	ctx := context.Background()

	_, err := svc.SetLevel(ctx, 1, 1, 10)
	require.NoError(t, err)
	_, err = svc.SetLevel(ctx, 1, 2, 7)
	require.NoError(t, err)
	_, err = svc.SetLevel(ctx, 2, 1, 99)
	require.NoError(t, err)

	total, err := svc.TotalOnHand(ctx, 1)
	require.NoError(t, err)
	require.EqualValues(t, 17, total)
}

func TestTransferConservesTotal(t *testing.T) {
	ledger := newMemoryLedger()
	svc := newTestService(ledger)
	ctx := context.Background()

	_, err := svc.SetLevel(ctx, 1, 1, 10)
	require.NoError(t, err)

	require.NoError(t, svc.Transfer(ctx, 1, 1, 2, 4, ""))

	src, err := svc.LevelIn(ctx, 1, 1)
	require.NoError(t, err)
	dst, err := svc.LevelIn(ctx, 1, 2)
	require.NoError(t, err)
	require.EqualValues(t, 6, src.OnHand)
	require.EqualValues(t, 4, dst.OnHand)

	total, err := svc.TotalOnHand(ctx, 1)
	require.NoError(t, err)
	require.EqualValues(t, 10, total)
}

func TestTransferInsufficientLeavesLedgerUntouched(t *testing.T) {
	ledger := newMemoryLedger()
	svc := newTestService(ledger)
	ctx := context.Background()

	_, err := svc.SetLevel(ctx, 1, 1, 3)
	require.NoError(t, err)

	err = svc.Transfer(ctx, 1, 1, 2, 5, "")
	require.ErrorIs(t, err, httpx.ErrInsufficientStock)

	src, _ := svc.LevelIn(ctx, 1, 1)
	dst, _ := svc.LevelIn(ctx, 1, 2)
	require.EqualValues(t, 3, src.OnHand)
	require.EqualValues(t, 0, dst.OnHand)
}

func TestTransferRespectsReservedStock(t *testing.T) {
	ledger := newMemoryLedger()
	svc := newTestService(ledger)
	ctx := context.Background()

	_, err := svc.SetLevel(ctx, 1, 1, 10)
	require.NoError(t, err)
	_, err = svc.ReserveForOrder(ctx, 5, []ItemRequest{{ProductID: 1, WarehouseID: 1, Qty: 7}}, time.Hour)
	require.NoError(t, err)

	// only 3 available even though 10 on hand
	err = svc.Transfer(ctx, 1, 1, 2, 4, "")
	require.ErrorIs(t, err, httpx.ErrInsufficientStock)
	require.NoError(t, svc.Transfer(ctx, 1, 1, 2, 3, ""))
}

func TestReserveCommitCancelScenario(t *testing.T) {
	ledger := newMemoryLedger()
	svc := newTestService(ledger)
	ctx := context.Background()
	const orderID = 42

	_, err := svc.SetLevel(ctx, 1, 1, 10)
	require.NoError(t, err)

	// hold 5: on-hand view stays 10
	_, err = svc.ReserveForOrder(ctx, orderID, []ItemRequest{{ProductID: 1, WarehouseID: 1, Qty: 5}}, time.Hour)
	require.NoError(t, err)
	level, _ := svc.LevelIn(ctx, 1, 1)
	require.EqualValues(t, 10, level.OnHand)
	require.EqualValues(t, 5, level.Reserved)

	// confirm: on-hand drops to 5
	require.NoError(t, svc.CommitOrderHolds(ctx, orderID))
	level, _ = svc.LevelIn(ctx, 1, 1)
	require.EqualValues(t, 5, level.OnHand)
	require.EqualValues(t, 0, level.Reserved)

	// cancel after confirm: restock to 10
	require.NoError(t, svc.RestockCommitted(ctx, orderID))
	level, _ = svc.LevelIn(ctx, 1, 1)
	require.EqualValues(t, 10, level.OnHand)
}

func TestReserveForOrderAllOrNothing(t *testing.T) {
	ledger := newMemoryLedger()
	svc := newTestService(ledger)
	ctx := context.Background()

	_, err := svc.SetLevel(ctx, 1, 1, 10)
	require.NoError(t, err)
	_, err = svc.SetLevel(ctx, 2, 1, 1)
	require.NoError(t, err)

	_, err = svc.ReserveForOrder(ctx, 7, []ItemRequest{
		{ProductID: 1, WarehouseID: 1, Qty: 5},
		{ProductID: 2, WarehouseID: 1, Qty: 3},
	}, time.Hour)
	require.ErrorIs(t, err, httpx.ErrInsufficientStock)

	// the first hold must have been rolled back
	level, _ := svc.LevelIn(ctx, 1, 1)
	require.EqualValues(t, 0, level.Reserved)
	holds, err := ledger.ListOrderReservations(ctx, 7, "")
	require.NoError(t, err)
	require.Empty(t, holds)
}

func TestCommitFailsWhenHoldGone(t *testing.T) {
	ledger := newMemoryLedger()
	svc := newTestService(ledger)
	ctx := context.Background()
	const orderID = 9

	_, err := svc.SetLevel(ctx, 1, 1, 10)
	require.NoError(t, err)
	_, err = svc.ReserveForOrder(ctx, orderID, []ItemRequest{{ProductID: 1, WarehouseID: 1, Qty: 5}}, time.Hour)
	require.NoError(t, err)
	require.NoError(t, svc.ReleaseOrderHolds(ctx, orderID))

	err = svc.CommitOrderHolds(ctx, orderID)
	require.ErrorIs(t, err, httpx.ErrInsufficientStock)
	level, _ := svc.LevelIn(ctx, 1, 1)
	require.EqualValues(t, 10, level.OnHand)
}

func TestSweepReleasesOnlyExpiredHolds(t *testing.T) {
	ledger := newMemoryLedger()
	svc := newTestService(ledger)
	ctx := context.Background()

	_, err := svc.SetLevel(ctx, 1, 1, 10)
	require.NoError(t, err)
	_, err = svc.ReserveForOrder(ctx, 1, []ItemRequest{{ProductID: 1, WarehouseID: 1, Qty: 2}}, -time.Minute)
	require.NoError(t, err)
	_, err = svc.ReserveForOrder(ctx, 2, []ItemRequest{{ProductID: 1, WarehouseID: 1, Qty: 3}}, time.Hour)
	require.NoError(t, err)

	released, err := svc.SweepExpiredHolds(ctx, time.Now(), 100)
	require.NoError(t, err)
	require.Equal(t, 1, released)

	level, _ := svc.LevelIn(ctx, 1, 1)
	require.EqualValues(t, 3, level.Reserved)
}

func TestPickWarehousePrefersMostAvailable(t *testing.T) {
	ledger := newMemoryLedger()
	svc := newTestService(ledger)
	ctx := context.Background()

	_, err := svc.SetLevel(ctx, 1, 1, 5)
	require.NoError(t, err)
	_, err = svc.SetLevel(ctx, 1, 2, 9)
	require.NoError(t, err)

	id, err := svc.PickWarehouse(ctx, 1, 4)
	require.NoError(t, err)
	require.EqualValues(t, 2, id)

	_, err = svc.PickWarehouse(ctx, 1, 50)
	require.ErrorIs(t, err, httpx.ErrInsufficientStock)
}

func TestSetLevelWritesJournalEntry(t *testing.T) {
	ledger := newMemoryLedger()
	svc := newTestService(ledger)
	ctx := context.Background()

	_, err := svc.SetLevel(ctx, 1, 1, 10)
	require.NoError(t, err)
	require.NoError(t, svc.Transfer(ctx, 1, 1, 2, 4, ""))

	require.Len(t, ledger.entries, 3)
	require.EqualValues(t, 10, ledger.entries[0].Delta)
	require.Equal(t, RefAdjustment, ledger.entries[0].RefType)
	require.EqualValues(t, -4, ledger.entries[1].Delta)
	require.EqualValues(t, 6, ledger.entries[1].Balance)
	require.EqualValues(t, 4, ledger.entries[2].Delta)
}
