package billing

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/meridian-ims/meridian/internal/platform/httpx"
	"github.com/meridian-ims/meridian/internal/sales/orders"
)

type memoryBillingRepo struct {
	nextInvoice int64
	nextPayment int64
	invoices    map[int64]*Invoice
	payments    map[int64]*Payment
}

func newMemoryBillingRepo() *memoryBillingRepo {
	return &memoryBillingRepo{nextInvoice: 1, nextPayment: 1,
		invoices: map[int64]*Invoice{}, payments: map[int64]*Payment{}}
}

func (m *memoryBillingRepo) WithTx(ctx context.Context, fn func(context.Context, Repository) error) error {
	return fn(ctx, m)
}

func (m *memoryBillingRepo) CreateInvoice(_ context.Context, inv Invoice) (int64, error) {
	inv.ID = m.nextInvoice
	m.nextInvoice++
	inv.CreatedAt = time.Now()
	m.invoices[inv.ID] = &inv
	return inv.ID, nil
}

func (m *memoryBillingRepo) GetInvoice(_ context.Context, id int64) (*Invoice, error) {
	inv, ok := m.invoices[id]
	if !ok {
		return nil, httpx.ErrNotFound
	}
	cp := *inv
	return &cp, nil
}

func (m *memoryBillingRepo) GetInvoiceForUpdate(ctx context.Context, id int64) (*Invoice, error) {
	return m.GetInvoice(ctx, id)
}

func (m *memoryBillingRepo) ListInvoices(_ context.Context, req ListInvoicesRequest) ([]Invoice, int, error) {
	var out []Invoice
	for _, inv := range m.invoices {
		if req.Status != nil && inv.Status != *req.Status {
			continue
		}
		out = append(out, *inv)
	}
	return out, len(out), nil
}

func (m *memoryBillingRepo) ListOutstanding(_ context.Context) ([]Invoice, error) {
	var out []Invoice
	for _, inv := range m.invoices {
		if inv.Status == InvoiceIssued || inv.Status == InvoicePartial {
			out = append(out, *inv)
		}
	}
	return out, nil
}

func (m *memoryBillingRepo) TransitionStatus(_ context.Context, id int64, from, to InvoiceStatus) error {
	inv, ok := m.invoices[id]
	if !ok || inv.Status != from {
		return httpx.ErrInvalidTransition
	}
	inv.Status = to
	if to == InvoiceIssued {
		now := time.Now()
		inv.IssuedAt = &now
	}
	return nil
}

func (m *memoryBillingRepo) SetPaid(_ context.Context, id int64, paid float64, status InvoiceStatus) error {
	inv, ok := m.invoices[id]
	if !ok {
		return httpx.ErrNotFound
	}
	inv.Paid = paid
	inv.Status = status
	return nil
}

func (m *memoryBillingRepo) InsertPayment(_ context.Context, p Payment) (int64, error) {
	p.ID = m.nextPayment
	m.nextPayment++
	m.payments[p.ID] = &p
	return p.ID, nil
}

func (m *memoryBillingRepo) ListPayments(_ context.Context, invoiceID int64) ([]Payment, error) {
	var out []Payment
	for _, p := range m.payments {
		if p.InvoiceID == invoiceID {
			out = append(out, *p)
		}
	}
	return out, nil
}

func (m *memoryBillingRepo) GenerateInvoiceNumber(_ context.Context) (string, error) {
	return fmt.Sprintf("INV-%05d", m.nextInvoice), nil
}

func (m *memoryBillingRepo) GeneratePaymentNumber(_ context.Context) (string, error) {
	return fmt.Sprintf("PAY-%05d", m.nextPayment), nil
}

type fakeOrders map[int64]*orders.Order

func (f fakeOrders) Get(_ context.Context, id int64) (*orders.Order, error) {
	o, ok := f[id]
	if !ok {
		return nil, httpx.ErrNotFound
	}
	cp := *o
	return &cp, nil
}

func newTestService() (*Service, *memoryBillingRepo) {
	repo := newMemoryBillingRepo()
	src := fakeOrders{
		1: {ID: 1, Number: "ORD-00001", CustomerID: 7, Status: orders.StatusConfirmed, Total: 100},
		2: {ID: 2, Number: "ORD-00002", CustomerID: 7, Status: orders.StatusPending, Total: 50},
	}
	svc := NewService(repo, src, nil, slog.New(slog.NewTextHandler(io.Discard, nil)))
	return svc, repo
}

func issuedInvoice(t *testing.T, svc *Service) *Invoice {
	t.Helper()
	inv, err := svc.CreateFromOrder(context.Background(), CreateInvoiceRequest{OrderID: 1, TaxRate: 0.2})
	require.NoError(t, err)
	inv, err = svc.Issue(context.Background(), inv.ID)
	require.NoError(t, err)
	return inv
}

func TestCreateFromOrderSnapshotsTotals(t *testing.T) {
	svc, _ := newTestService()

	inv, err := svc.CreateFromOrder(context.Background(), CreateInvoiceRequest{OrderID: 1, TaxRate: 0.2})
	require.NoError(t, err)
	require.Equal(t, InvoiceDraft, inv.Status)
	require.InDelta(t, 100, inv.Subtotal, 1e-9)
	require.InDelta(t, 20, inv.TaxAmount, 1e-9)
	require.InDelta(t, 120, inv.Total, 1e-9)
	require.InDelta(t, 120, inv.Balance(), 1e-9)
	require.EqualValues(t, 7, inv.CustomerID)
}

func TestCreateFromPendingOrderRejected(t *testing.T) {
	svc, _ := newTestService()

	_, err := svc.CreateFromOrder(context.Background(), CreateInvoiceRequest{OrderID: 2})
	require.ErrorIs(t, err, httpx.ErrValidation)
}

func TestPaymentsMoveStatusToPartialThenPaid(t *testing.T) {
	svc, _ := newTestService()
	inv := issuedInvoice(t, svc)

	_, err := svc.RegisterPayment(context.Background(), inv.ID, RegisterPaymentRequest{Amount: 50, Method: "card"})
	require.NoError(t, err)
	got, err := svc.Get(context.Background(), inv.ID)
	require.NoError(t, err)
	require.Equal(t, InvoicePartial, got.Status)
	require.InDelta(t, 70, got.Balance(), 1e-9)

	_, err = svc.RegisterPayment(context.Background(), inv.ID, RegisterPaymentRequest{Amount: 70, Method: "transfer"})
	require.NoError(t, err)
	got, err = svc.Get(context.Background(), inv.ID)
	require.NoError(t, err)
	require.Equal(t, InvoicePaid, got.Status)
	require.InDelta(t, 0, got.Balance(), 1e-9)

	payments, err := svc.Payments(context.Background(), inv.ID)
	require.NoError(t, err)
	require.Len(t, payments, 2)
}

func TestOverpaymentRejected(t *testing.T) {
	svc, _ := newTestService()
	inv := issuedInvoice(t, svc)

	_, err := svc.RegisterPayment(context.Background(), inv.ID, RegisterPaymentRequest{Amount: 130, Method: "cash"})
	require.ErrorIs(t, err, httpx.ErrValidation)

	_, err = svc.RegisterPayment(context.Background(), inv.ID, RegisterPaymentRequest{Amount: 100, Method: "cash"})
	require.NoError(t, err)
	_, err = svc.RegisterPayment(context.Background(), inv.ID, RegisterPaymentRequest{Amount: 25, Method: "cash"})
	require.ErrorIs(t, err, httpx.ErrValidation)
}

func TestDraftInvoiceCannotReceivePayments(t *testing.T) {
	svc, _ := newTestService()
	inv, err := svc.CreateFromOrder(context.Background(), CreateInvoiceRequest{OrderID: 1, TaxRate: 0})
	require.NoError(t, err)

	_, err = svc.RegisterPayment(context.Background(), inv.ID, RegisterPaymentRequest{Amount: 10, Method: "cash"})
	require.ErrorIs(t, err, httpx.ErrInvalidTransition)
}

func TestVoidOnlyBeforePayments(t *testing.T) {
	svc, _ := newTestService()
	inv := issuedInvoice(t, svc)

	_, err := svc.RegisterPayment(context.Background(), inv.ID, RegisterPaymentRequest{Amount: 50, Method: "cash"})
	require.NoError(t, err)
	_, err = svc.Void(context.Background(), inv.ID)
	require.ErrorIs(t, err, httpx.ErrInvalidTransition)

	fresh := issuedInvoice(t, svc)
	voided, err := svc.Void(context.Background(), fresh.ID)
	require.NoError(t, err)
	require.Equal(t, InvoiceVoid, voided.Status)
}

func TestAgingBucketsOpenBalances(t *testing.T) {
	svc, repo := newTestService()
	asOf := time.Date(2026, 8, 1, 0, 0, 0, 0, time.UTC)

	due := func(daysOverdue int) *time.Time {
		d := asOf.AddDate(0, 0, -daysOverdue)
		return &d
	}
	mk := func(dueDate *time.Time, amount, paid float64) {
		inv, err := svc.CreateFromOrder(context.Background(), CreateInvoiceRequest{OrderID: 1, DueDate: dueDate})
		require.NoError(t, err)
		inv, err = svc.Issue(context.Background(), inv.ID)
		require.NoError(t, err)
		repo.invoices[inv.ID].Total = amount
		repo.invoices[inv.ID].Paid = paid
		if paid > 0 {
			repo.invoices[inv.ID].Status = InvoicePartial
		}
	}
	mk(due(-5), 100, 0)  // not yet due
	mk(due(10), 80, 30)  // 10 days overdue, 50 open
	mk(due(45), 60, 0)   // 31-60 bucket
	mk(due(200), 40, 0)  // far overdue

	buckets, err := svc.Aging(context.Background(), asOf)
	require.NoError(t, err)
	require.InDelta(t, 100, buckets.Current, 1e-9)
	require.InDelta(t, 50, buckets.Days30, 1e-9)
	require.InDelta(t, 60, buckets.Days60, 1e-9)
	require.InDelta(t, 0, buckets.Days90, 1e-9)
	require.InDelta(t, 40, buckets.Days90Up, 1e-9)
}
