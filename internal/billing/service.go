package billing

import (
	"context"
	"fmt"
	"log/slog"
	"strconv"
	"time"

	"github.com/meridian-ims/meridian/internal/platform/httpx"
	"github.com/meridian-ims/meridian/internal/sales/orders"
	"github.com/meridian-ims/meridian/internal/shared"
)

// DefaultPaymentTerm is how long a customer has to pay when the invoice
// carries no explicit due date.
const DefaultPaymentTerm = 30 * 24 * time.Hour

// OrderSource resolves the order an invoice bills.
type OrderSource interface {
	Get(ctx context.Context, id int64) (*orders.Order, error)
}

type Service struct {
	repo   Repository
	orders OrderSource
	audit  *shared.AuditLogger
	logger *slog.Logger
}

func NewService(repo Repository, orderSrc OrderSource, audit *shared.AuditLogger, logger *slog.Logger) *Service {
	return &Service{repo: repo, orders: orderSrc, audit: audit, logger: logger}
}

func (s *Service) recordAudit(ctx context.Context, action string, entityID int64, meta map[string]any) {
	actor := shared.ActorFromContext(ctx)
	if err := s.audit.Record(ctx, shared.AuditLog{
		ActorID:  actor.UserID,
		Action:   action,
		Entity:   "invoice",
		EntityID: strconv.FormatInt(entityID, 10),
		Meta:     meta,
	}); err != nil {
		s.logger.Warn("audit record", slog.String("action", action), slog.Any("error", err))
	}
}

func invoiceable(status orders.Status) bool {
	switch status {
	case orders.StatusConfirmed, orders.StatusShipped, orders.StatusDelivered:
		return true
	}
	return false
}

// CreateFromOrder builds a DRAFT invoice snapshotting the order's totals.
// Only confirmed (or later) orders can be billed.
func (s *Service) CreateFromOrder(ctx context.Context, req CreateInvoiceRequest) (*Invoice, error) {
	order, err := s.orders.Get(ctx, req.OrderID)
	if err != nil {
		return nil, fmt.Errorf("order %d: %w", req.OrderID, err)
	}
	if !invoiceable(order.Status) {
		return nil, fmt.Errorf("%w: order %s is %s", httpx.ErrValidation, order.Number, order.Status)
	}
	if req.TaxRate < 0 || req.TaxRate > 1 {
		return nil, fmt.Errorf("%w: tax rate must be within [0, 1]", httpx.ErrValidation)
	}

	number, err := s.repo.GenerateInvoiceNumber(ctx)
	if err != nil {
		return nil, fmt.Errorf("generate invoice number: %w", err)
	}
	due := time.Now().Add(DefaultPaymentTerm)
	if req.DueDate != nil {
		due = *req.DueDate
	}
	subtotal := order.Total
	taxAmount := subtotal * req.TaxRate

	id, err := s.repo.CreateInvoice(ctx, Invoice{
		Number:     number,
		OrderID:    order.ID,
		CustomerID: order.CustomerID,
		Subtotal:   subtotal,
		TaxRate:    req.TaxRate,
		TaxAmount:  taxAmount,
		Total:      subtotal + taxAmount,
		Status:     InvoiceDraft,
		DueDate:    due,
	})
	if err != nil {
		return nil, err
	}
	s.recordAudit(ctx, "invoice.create", id, map[string]any{"order_id": order.ID, "number": number})
	return s.repo.GetInvoice(ctx, id)
}

// Issue moves a DRAFT invoice to ISSUED, opening it for payments.
func (s *Service) Issue(ctx context.Context, id int64) (*Invoice, error) {
	inv, err := s.repo.GetInvoice(ctx, id)
	if err != nil {
		return nil, err
	}
	if !inv.Status.CanIssue() {
		return nil, fmt.Errorf("%w: invoice %s is %s", httpx.ErrInvalidTransition, inv.Number, inv.Status)
	}
	if err := s.repo.TransitionStatus(ctx, id, InvoiceDraft, InvoiceIssued); err != nil {
		return nil, err
	}
	s.recordAudit(ctx, "invoice.issue", id, nil)
	return s.repo.GetInvoice(ctx, id)
}

// Void cancels an invoice that has received no payments.
func (s *Service) Void(ctx context.Context, id int64) (*Invoice, error) {
	inv, err := s.repo.GetInvoice(ctx, id)
	if err != nil {
		return nil, err
	}
	if !inv.Status.CanVoid() {
		return nil, fmt.Errorf("%w: invoice %s is %s", httpx.ErrInvalidTransition, inv.Number, inv.Status)
	}
	if err := s.repo.TransitionStatus(ctx, id, inv.Status, InvoiceVoid); err != nil {
		return nil, err
	}
	s.recordAudit(ctx, "invoice.void", id, nil)
	return s.repo.GetInvoice(ctx, id)
}

// RegisterPayment records money against an ISSUED or PARTIAL invoice and
// recomputes the paid amount and status in the same transaction. Paying more
// than the open balance is rejected.
func (s *Service) RegisterPayment(ctx context.Context, invoiceID int64, req RegisterPaymentRequest) (*Payment, error) {
	if req.Amount <= 0 {
		return nil, fmt.Errorf("%w: amount must be positive", httpx.ErrValidation)
	}
	paidAt := time.Now()
	if req.PaidAt != nil {
		paidAt = *req.PaidAt
	}

	var payment Payment
	err := s.repo.WithTx(ctx, func(ctx context.Context, repo Repository) error {
		inv, err := repo.GetInvoiceForUpdate(ctx, invoiceID)
		if err != nil {
			return err
		}
		if !inv.Status.CanReceivePayment() {
			return fmt.Errorf("%w: invoice %s is %s", httpx.ErrInvalidTransition, inv.Number, inv.Status)
		}
		if req.Amount > inv.Balance()+1e-9 {
			return fmt.Errorf("%w: amount %.2f exceeds open balance %.2f", httpx.ErrValidation, req.Amount, inv.Balance())
		}

		number, err := repo.GeneratePaymentNumber(ctx)
		if err != nil {
			return fmt.Errorf("generate payment number: %w", err)
		}
		payment = Payment{
			Number:    number,
			InvoiceID: invoiceID,
			Amount:    req.Amount,
			Method:    req.Method,
			PaidAt:    paidAt,
			Note:      req.Note,
		}
		payment.ID, err = repo.InsertPayment(ctx, payment)
		if err != nil {
			return err
		}

		paid := inv.Paid + req.Amount
		status := InvoicePartial
		if paid >= inv.Total-1e-9 {
			status = InvoicePaid
		}
		return repo.SetPaid(ctx, invoiceID, paid, status)
	})
	if err != nil {
		return nil, err
	}
	s.recordAudit(ctx, "invoice.payment", invoiceID, map[string]any{"amount": req.Amount, "method": req.Method})
	return &payment, nil
}

func (s *Service) Get(ctx context.Context, id int64) (*Invoice, error) {
	return s.repo.GetInvoice(ctx, id)
}

func (s *Service) List(ctx context.Context, req ListInvoicesRequest) ([]Invoice, int, error) {
	if req.Limit <= 0 {
		req.Limit = shared.DefaultPageSize
	}
	return s.repo.ListInvoices(ctx, req)
}

func (s *Service) Payments(ctx context.Context, invoiceID int64) ([]Payment, error) {
	if _, err := s.repo.GetInvoice(ctx, invoiceID); err != nil {
		return nil, err
	}
	return s.repo.ListPayments(ctx, invoiceID)
}

// Aging groups the open balances of outstanding invoices by how many days
// they are past due as of the given date.
func (s *Service) Aging(ctx context.Context, asOf time.Time) (AgingBuckets, error) {
	if asOf.IsZero() {
		asOf = time.Now()
	}
	invoices, err := s.repo.ListOutstanding(ctx)
	if err != nil {
		return AgingBuckets{}, err
	}
	var buckets AgingBuckets
	for _, inv := range invoices {
		days := int(asOf.Sub(inv.DueDate).Hours() / 24)
		balance := inv.Balance()
		switch {
		case days <= 0:
			buckets.Current += balance
		case days <= 30:
			buckets.Days30 += balance
		case days <= 60:
			buckets.Days60 += balance
		case days <= 90:
			buckets.Days90 += balance
		default:
			buckets.Days90Up += balance
		}
	}
	return buckets, nil
}
