package orders

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"sort"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/meridian-ims/meridian/internal/masterdata/products"
	"github.com/meridian-ims/meridian/internal/platform/httpx"
	"github.com/meridian-ims/meridian/internal/sales/customers"
	"github.com/meridian-ims/meridian/internal/stock"
)

type memoryOrderRepo struct {
	nextOrderID int64
	nextItemID  int64
	nextSeq     int64
	orders      map[int64]*Order
	items       map[int64]*OrderItem

	beforeTransition func()
}

func newMemoryOrderRepo() *memoryOrderRepo {
	return &memoryOrderRepo{nextOrderID: 1, nextItemID: 1, nextSeq: 1,
		orders: map[int64]*Order{}, items: map[int64]*OrderItem{}}
}

func (m *memoryOrderRepo) WithTx(ctx context.Context, fn func(context.Context, Repository) error) error {
	return fn(ctx, m)
}

func (m *memoryOrderRepo) Create(_ context.Context, order Order) (int64, error) {
	order.ID = m.nextOrderID
	m.nextOrderID++
	order.PlacedAt = time.Now()
	m.orders[order.ID] = &order
	return order.ID, nil
}

func (m *memoryOrderRepo) Get(ctx context.Context, id int64) (*Order, error) {
	o, ok := m.orders[id]
	if !ok {
		return nil, httpx.ErrNotFound
	}
	cp := *o
	var err error
	cp.Items, err = m.ListItems(ctx, id)
	return &cp, err
}

func (m *memoryOrderRepo) List(_ context.Context, req ListOrdersRequest) ([]OrderWithCustomer, int, error) {
	var out []OrderWithCustomer
	for _, o := range m.orders {
		if req.Status != nil && o.Status != *req.Status {
			continue
		}
		out = append(out, OrderWithCustomer{Order: *o})
	}
	return out, len(out), nil
}

func (m *memoryOrderRepo) InsertItem(_ context.Context, item OrderItem) (int64, error) {
	item.ID = m.nextItemID
	m.nextItemID++
	m.items[item.ID] = &item
	return item.ID, nil
}

func (m *memoryOrderRepo) DeleteItem(_ context.Context, orderID, itemID int64) (OrderItem, error) {
	item, ok := m.items[itemID]
	if !ok || item.OrderID != orderID {
		return OrderItem{}, httpx.ErrNotFound
	}
	delete(m.items, itemID)
	return *item, nil
}

func (m *memoryOrderRepo) ListItems(_ context.Context, orderID int64) ([]OrderItem, error) {
	var out []OrderItem
	for _, item := range m.items {
		if item.OrderID == orderID {
			out = append(out, *item)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out, nil
}

func (m *memoryOrderRepo) SetTotal(_ context.Context, orderID int64, total float64) error {
	o, ok := m.orders[orderID]
	if !ok {
		return httpx.ErrNotFound
	}
	o.Total = total
	return nil
}

func (m *memoryOrderRepo) TransitionStatus(_ context.Context, id int64, from, to Status, stamp string) error {
	if m.beforeTransition != nil {
		hook := m.beforeTransition
		m.beforeTransition = nil
		hook()
	}
	o, ok := m.orders[id]
	if !ok || o.Status != from {
		return httpx.ErrInvalidTransition
	}
	o.Status = to
	now := time.Now()
	switch stamp {
	case "shipped_at":
		o.ShippedAt = &now
	case "delivered_at":
		o.DeliveredAt = &now
	}
	return nil
}

func (m *memoryOrderRepo) SetCancelled(_ context.Context, id int64, from Status, reason string) error {
	o, ok := m.orders[id]
	if !ok || o.Status != from {
		return httpx.ErrInvalidTransition
	}
	o.Status = StatusCancelled
	now := time.Now()
	o.CancelledAt = &now
	if reason != "" {
		o.CancelReason = &reason
	}
	return nil
}

func (m *memoryOrderRepo) Delete(_ context.Context, id int64) error {
	if _, ok := m.orders[id]; !ok {
		return httpx.ErrNotFound
	}
	delete(m.orders, id)
	for itemID, item := range m.items {
		if item.OrderID == id {
			delete(m.items, itemID)
		}
	}
	return nil
}

func (m *memoryOrderRepo) GenerateNumber(_ context.Context) (string, error) {
	n := fmt.Sprintf("ORD-%05d", m.nextSeq)
	m.nextSeq++
	return n, nil
}

type fakeLevel struct {
	onHand   int64
	reserved int64
}

type fakeHold struct {
	id          int64
	orderID     int64
	productID   int64
	warehouseID int64
	qty         int64
	status      string
	expiresAt   time.Time
}

// fakeStock mirrors the ledger semantics the orders service relies on.
type fakeStock struct {
	levels   map[[2]int64]*fakeLevel
	holds    map[int64]*fakeHold
	nextHold int64
}

func newFakeStock() *fakeStock {
	return &fakeStock{levels: map[[2]int64]*fakeLevel{}, holds: map[int64]*fakeHold{}, nextHold: 1}
}

func (f *fakeStock) set(productID, warehouseID, onHand int64) {
	f.levels[[2]int64{productID, warehouseID}] = &fakeLevel{onHand: onHand}
}

func (f *fakeStock) level(productID, warehouseID int64) *fakeLevel {
	key := [2]int64{productID, warehouseID}
	l, ok := f.levels[key]
	if !ok {
		l = &fakeLevel{}
		f.levels[key] = l
	}
	return l
}

func (f *fakeStock) PickWarehouse(_ context.Context, productID, qty int64) (int64, error) {
	type cand struct {
		warehouseID int64
		available   int64
	}
	var cands []cand
	for key, l := range f.levels {
		if key[0] == productID {
			cands = append(cands, cand{key[1], l.onHand - l.reserved})
		}
	}
	sort.Slice(cands, func(i, j int) bool {
		if cands[i].available != cands[j].available {
			return cands[i].available > cands[j].available
		}
		return cands[i].warehouseID < cands[j].warehouseID
	})
	for _, c := range cands {
		if c.available >= qty {
			return c.warehouseID, nil
		}
	}
	return 0, httpx.ErrInsufficientStock
}

func (f *fakeStock) ReserveForOrder(_ context.Context, orderID int64, items []stock.ItemRequest, ttl time.Duration) ([]stock.Reservation, error) {
	var taken []*fakeHold
	rollback := func() {
		for _, h := range taken {
			f.level(h.productID, h.warehouseID).reserved -= h.qty
			delete(f.holds, h.id)
		}
	}
	var out []stock.Reservation
	for _, item := range items {
		l := f.level(item.ProductID, item.WarehouseID)
		if l.onHand-l.reserved < item.Qty {
			rollback()
			return nil, httpx.ErrInsufficientStock
		}
		l.reserved += item.Qty
		h := &fakeHold{
			id: f.nextHold, orderID: orderID, productID: item.ProductID,
			warehouseID: item.WarehouseID, qty: item.Qty,
			status: stock.ReservationHeld, expiresAt: time.Now().Add(ttl),
		}
		f.nextHold++
		f.holds[h.id] = h
		taken = append(taken, h)
		out = append(out, stock.Reservation{ID: h.id, OrderID: orderID, ProductID: item.ProductID,
			WarehouseID: item.WarehouseID, Qty: item.Qty, Status: h.status, ExpiresAt: h.expiresAt})
	}
	return out, nil
}

func (f *fakeStock) ReleaseReservation(_ context.Context, reservationID int64) error {
	h, ok := f.holds[reservationID]
	if !ok || h.status != stock.ReservationHeld {
		return httpx.ErrInvalidTransition
	}
	h.status = stock.ReservationReleased
	f.level(h.productID, h.warehouseID).reserved -= h.qty
	return nil
}

func (f *fakeStock) CommitOrderHolds(_ context.Context, orderID int64) error {
	var held []*fakeHold
	for _, h := range f.holds {
		if h.orderID == orderID && h.status == stock.ReservationHeld {
			held = append(held, h)
		}
	}
	if len(held) == 0 {
		return httpx.ErrInsufficientStock
	}
	for _, h := range held {
		l := f.level(h.productID, h.warehouseID)
		l.onHand -= h.qty
		l.reserved -= h.qty
		h.status = stock.ReservationCommitted
	}
	return nil
}

func (f *fakeStock) ReleaseOrderHolds(_ context.Context, orderID int64) error {
	for _, h := range f.holds {
		if h.orderID == orderID && h.status == stock.ReservationHeld {
			h.status = stock.ReservationReleased
			f.level(h.productID, h.warehouseID).reserved -= h.qty
		}
	}
	return nil
}

func (f *fakeStock) RestockCommitted(_ context.Context, orderID int64) error {
	for _, h := range f.holds {
		if h.orderID == orderID && h.status == stock.ReservationCommitted {
			h.status = stock.ReservationReleased
			f.level(h.productID, h.warehouseID).onHand += h.qty
		}
	}
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

type fakeCustomers map[int64]customers.Customer

func (f fakeCustomers) Get(_ context.Context, id int64) (*customers.Customer, error) {
	c, ok := f[id]
	if !ok {
		return nil, httpx.ErrNotFound
	}
	return &c, nil
}

type fixture struct {
	svc   *Service
	repo  *memoryOrderRepo
	stock *fakeStock
}

func newFixture() fixture {
	repo := newMemoryOrderRepo()
	ledger := newFakeStock()
	ledger.set(1, 1, 10)
	catalog := fakeCatalog{1: {ID: 1, SKU: "WID-001", Name: "Widget", Price: 2.5, IsActive: true}}
	dir := fakeCustomers{7: {ID: 7, Code: "CUST-00007", Name: "Acme", IsActive: true}}
	svc := NewService(repo, dir, catalog, ledger, nil,
		slog.New(slog.NewTextHandler(io.Discard, nil)), time.Hour)
	return fixture{svc: svc, repo: repo, stock: ledger}
}

func (fx fixture) createOrder(t *testing.T, qty int64) *Order {
	t.Helper()
	order, err := fx.svc.Create(context.Background(), CreateOrderRequest{
		CustomerID:      7,
		ShippingAddress: "1 Main St",
		Items:           []CreateOrderItemRequest{{ProductID: 1, Qty: qty}},
	}, 1)
	require.NoError(t, err)
	return order
}

func TestCreateOrderReservesWithoutTouchingOnHand(t *testing.T) {
	fx := newFixture()

	order := fx.createOrder(t, 5)
	require.Equal(t, StatusPending, order.Status)
	require.Len(t, order.Items, 1)
	require.EqualValues(t, 1, order.Items[0].WarehouseID)
	require.InDelta(t, 12.5, order.Total, 1e-9)

	l := fx.stock.level(1, 1)
	require.EqualValues(t, 10, l.onHand)
	require.EqualValues(t, 5, l.reserved)
}

func TestCreateOrderInsufficientStockRollsBack(t *testing.T) {
	fx := newFixture()

	_, err := fx.svc.Create(context.Background(), CreateOrderRequest{
		CustomerID:      7,
		ShippingAddress: "1 Main St",
		Items:           []CreateOrderItemRequest{{ProductID: 1, WarehouseID: 1, Qty: 50}},
	}, 1)
	require.ErrorIs(t, err, httpx.ErrInsufficientStock)
	require.Empty(t, fx.repo.orders)
	require.EqualValues(t, 0, fx.stock.level(1, 1).reserved)
}

func TestConfirmDecrementsOnHand(t *testing.T) {
	fx := newFixture()
	order := fx.createOrder(t, 5)

	confirmed, err := fx.svc.Confirm(context.Background(), order.ID)
	require.NoError(t, err)
	require.Equal(t, StatusConfirmed, confirmed.Status)

	l := fx.stock.level(1, 1)
	require.EqualValues(t, 5, l.onHand)
	require.EqualValues(t, 0, l.reserved)
}

func TestConfirmFailsWhenHoldGone(t *testing.T) {
	fx := newFixture()
	order := fx.createOrder(t, 5)
	require.NoError(t, fx.stock.ReleaseOrderHolds(context.Background(), order.ID))

	_, err := fx.svc.Confirm(context.Background(), order.ID)
	require.ErrorIs(t, err, httpx.ErrInsufficientStock)

	got, err := fx.svc.Get(context.Background(), order.ID)
	require.NoError(t, err)
	require.Equal(t, StatusPending, got.Status)
	require.EqualValues(t, 10, fx.stock.level(1, 1).onHand)
}

func TestConcurrentCancelDuringConfirmKeepsLedgerIntact(t *testing.T) {
	fx := newFixture()
	order := fx.createOrder(t, 5)

	// A cancel that lands just as Confirm claims the transition wins the
	// race; the claim must fail before any hold is committed.
	fx.repo.beforeTransition = func() {
		require.NoError(t, fx.repo.SetCancelled(context.Background(), order.ID, StatusPending, "changed mind"))
		require.NoError(t, fx.stock.ReleaseOrderHolds(context.Background(), order.ID))
	}

	_, err := fx.svc.Confirm(context.Background(), order.ID)
	require.ErrorIs(t, err, httpx.ErrInvalidTransition)

	got, err := fx.svc.Get(context.Background(), order.ID)
	require.NoError(t, err)
	require.Equal(t, StatusCancelled, got.Status)
	require.EqualValues(t, 10, fx.stock.level(1, 1).onHand)
	require.EqualValues(t, 0, fx.stock.level(1, 1).reserved)
}

func TestCancelPendingReleasesHold(t *testing.T) {
	fx := newFixture()
	order := fx.createOrder(t, 5)

	cancelled, err := fx.svc.Cancel(context.Background(), order.ID, "changed mind")
	require.NoError(t, err)
	require.Equal(t, StatusCancelled, cancelled.Status)
	require.NotNil(t, cancelled.CancelledAt)

	l := fx.stock.level(1, 1)
	require.EqualValues(t, 10, l.onHand)
	require.EqualValues(t, 0, l.reserved)
}

func TestCancelConfirmedRestoresExactQuantities(t *testing.T) {
	fx := newFixture()
	order := fx.createOrder(t, 5)

	_, err := fx.svc.Confirm(context.Background(), order.ID)
	require.NoError(t, err)
	require.EqualValues(t, 5, fx.stock.level(1, 1).onHand)

	_, err = fx.svc.Cancel(context.Background(), order.ID, "")
	require.NoError(t, err)
	require.EqualValues(t, 10, fx.stock.level(1, 1).onHand)
}

func TestTerminalStatesRejectTransitions(t *testing.T) {
	fx := newFixture()
	order := fx.createOrder(t, 2)

	_, err := fx.svc.Confirm(context.Background(), order.ID)
	require.NoError(t, err)
	_, err = fx.svc.Ship(context.Background(), order.ID)
	require.NoError(t, err)
	delivered, err := fx.svc.Deliver(context.Background(), order.ID)
	require.NoError(t, err)
	require.Equal(t, StatusDelivered, delivered.Status)

	_, err = fx.svc.Cancel(context.Background(), order.ID, "")
	require.ErrorIs(t, err, httpx.ErrInvalidTransition)
	_, err = fx.svc.Ship(context.Background(), order.ID)
	require.ErrorIs(t, err, httpx.ErrInvalidTransition)

	other := fx.createOrder(t, 1)
	_, err = fx.svc.Cancel(context.Background(), other.ID, "")
	require.NoError(t, err)
	_, err = fx.svc.Confirm(context.Background(), other.ID)
	require.ErrorIs(t, err, httpx.ErrInvalidTransition)
}

func TestHistoricalStatusesRejectTransitions(t *testing.T) {
	fx := newFixture()

	for _, status := range []Status{StatusApproved, StatusProcessing} {
		order := fx.createOrder(t, 1)
		fx.repo.orders[order.ID].Status = status

		_, err := fx.svc.Confirm(context.Background(), order.ID)
		require.ErrorIs(t, err, httpx.ErrInvalidTransition, "confirm from %s", status)
		_, err = fx.svc.Ship(context.Background(), order.ID)
		require.ErrorIs(t, err, httpx.ErrInvalidTransition, "ship from %s", status)
		_, err = fx.svc.Cancel(context.Background(), order.ID, "")
		require.ErrorIs(t, err, httpx.ErrInvalidTransition, "cancel from %s", status)
	}
}

func TestAddRemoveItemOnPendingOnly(t *testing.T) {
	fx := newFixture()
	fx.stock.set(2, 1, 4)
	order := fx.createOrder(t, 5)

	updated, err := fx.svc.AddItem(context.Background(), order.ID, CreateOrderItemRequest{ProductID: 1, WarehouseID: 1, Qty: 3})
	require.NoError(t, err)
	require.Len(t, updated.Items, 2)
	require.EqualValues(t, 8, fx.stock.level(1, 1).reserved)
	require.InDelta(t, 20.0, updated.Total, 1e-9)

	updated, err = fx.svc.RemoveItem(context.Background(), order.ID, updated.Items[1].ID)
	require.NoError(t, err)
	require.Len(t, updated.Items, 1)
	require.EqualValues(t, 5, fx.stock.level(1, 1).reserved)

	_, err = fx.svc.Confirm(context.Background(), order.ID)
	require.NoError(t, err)
	_, err = fx.svc.AddItem(context.Background(), order.ID, CreateOrderItemRequest{ProductID: 1, WarehouseID: 1, Qty: 1})
	require.ErrorIs(t, err, httpx.ErrInvalidTransition)
}

func TestDeletePendingReleasesHolds(t *testing.T) {
	fx := newFixture()
	order := fx.createOrder(t, 5)

	require.NoError(t, fx.svc.Delete(context.Background(), order.ID))
	require.Empty(t, fx.repo.orders)
	require.EqualValues(t, 0, fx.stock.level(1, 1).reserved)

	confirmed := fx.createOrder(t, 2)
	_, err := fx.svc.Confirm(context.Background(), confirmed.ID)
	require.NoError(t, err)
	require.ErrorIs(t, fx.svc.Delete(context.Background(), confirmed.ID), httpx.ErrInvalidTransition)
}

func TestScenarioOnHandView(t *testing.T) {
	fx := newFixture()

	// 10 on hand, order 5: still 10 visible
	order := fx.createOrder(t, 5)
	require.EqualValues(t, 10, fx.stock.level(1, 1).onHand)

	// confirm: 5
	_, err := fx.svc.Confirm(context.Background(), order.ID)
	require.NoError(t, err)
	require.EqualValues(t, 5, fx.stock.level(1, 1).onHand)

	// cancel: back to 10
	_, err = fx.svc.Cancel(context.Background(), order.ID, "")
	require.NoError(t, err)
	require.EqualValues(t, 10, fx.stock.level(1, 1).onHand)
}
