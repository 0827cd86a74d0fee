package billing

import "time"

type CreateInvoiceRequest struct {
	OrderID int64      `json:"order_id" validate:"required,gt=0"`
	TaxRate float64    `json:"tax_rate" validate:"gte=0,lte=1"`
	DueDate *time.Time `json:"due_date,omitempty"`
}

type RegisterPaymentRequest struct {
	Amount float64    `json:"amount" validate:"required,gt=0"`
	Method string     `json:"method" validate:"required,oneof=cash card transfer cheque"`
	PaidAt *time.Time `json:"paid_at,omitempty"`
	Note   string     `json:"note" validate:"max=2000"`
}

type ListInvoicesRequest struct {
	CustomerID *int64         `json:"customer_id,omitempty"`
	Status     *InvoiceStatus `json:"status,omitempty"`
	Limit      int            `json:"limit" validate:"gte=0,lte=1000"`
	Offset     int            `json:"offset" validate:"gte=0"`
}
