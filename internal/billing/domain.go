package billing

import "time"

// InvoiceStatus enumerates invoice lifecycle states.
type InvoiceStatus string

const (
	InvoiceDraft   InvoiceStatus = "DRAFT"
	InvoiceIssued  InvoiceStatus = "ISSUED"
	InvoicePartial InvoiceStatus = "PARTIAL"
	InvoicePaid    InvoiceStatus = "PAID"
	InvoiceVoid    InvoiceStatus = "VOID"
)

// CanIssue reports whether the invoice may be issued.
func (s InvoiceStatus) CanIssue() bool { return s == InvoiceDraft }

// CanVoid reports whether the invoice may be voided.
func (s InvoiceStatus) CanVoid() bool { return s == InvoiceDraft || s == InvoiceIssued }

// CanReceivePayment reports whether payments may be registered.
func (s InvoiceStatus) CanReceivePayment() bool {
	return s == InvoiceIssued || s == InvoicePartial
}

// Invoice bills a confirmed order. Amounts are snapshotted from the order at
// creation time and never follow later order edits.
type Invoice struct {
	ID         int64         `json:"id"`
	Number     string        `json:"number"`
	OrderID    int64         `json:"order_id"`
	CustomerID int64         `json:"customer_id"`
	Subtotal   float64       `json:"subtotal"`
	TaxRate    float64       `json:"tax_rate"`
	TaxAmount  float64       `json:"tax_amount"`
	Total      float64       `json:"total"`
	Paid       float64       `json:"paid"`
	Status     InvoiceStatus `json:"status"`
	DueDate    time.Time     `json:"due_date"`
	IssuedAt   *time.Time    `json:"issued_at,omitempty"`
	CreatedAt  time.Time     `json:"created_at"`
	UpdatedAt  time.Time     `json:"updated_at"`
}

// Balance is what remains to be paid.
func (i Invoice) Balance() float64 { return i.Total - i.Paid }

// Payment records money received against an invoice.
type Payment struct {
	ID        int64     `json:"id"`
	Number    string    `json:"number"`
	InvoiceID int64     `json:"invoice_id"`
	Amount    float64   `json:"amount"`
	Method    string    `json:"method"`
	PaidAt    time.Time `json:"paid_at"`
	Note      string    `json:"note,omitempty"`
	CreatedAt time.Time `json:"created_at"`
}

// AgingBuckets summarises outstanding balances by days overdue.
type AgingBuckets struct {
	Current   float64 `json:"current"`
	Days30    float64 `json:"days_30"`
	Days60    float64 `json:"days_60"`
	Days90    float64 `json:"days_90"`
	Days90Up  float64 `json:"days_90_up"`
}
