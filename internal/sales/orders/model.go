package orders

import "time"

// Status of an order. APPROVED and PROCESSING exist for imported historical
// rows; the API only ever produces the PENDING→CONFIRMED→SHIPPED→DELIVERED
// chain plus CANCELLED.
type Status string

const (
	StatusPending    Status = "PENDING"
	StatusApproved   Status = "APPROVED"
	StatusProcessing Status = "PROCESSING"
	StatusConfirmed  Status = "CONFIRMED"
	StatusShipped    Status = "SHIPPED"
	StatusDelivered  Status = "DELIVERED"
	StatusCancelled  Status = "CANCELLED"
)

// CanEdit reports whether items may still be added or removed.
func (s Status) CanEdit() bool { return s == StatusPending }

// CanConfirm reports whether the order may be confirmed.
func (s Status) CanConfirm() bool { return s == StatusPending }

// CanCancel reports whether the order may still be cancelled.
func (s Status) CanCancel() bool { return s == StatusPending || s == StatusConfirmed }

// CanShip reports whether the order may be marked shipped.
func (s Status) CanShip() bool { return s == StatusConfirmed }

// CanDeliver reports whether the order may be marked delivered.
func (s Status) CanDeliver() bool { return s == StatusShipped }

// IsTerminal reports whether no further transition is allowed.
func (s Status) IsTerminal() bool { return s == StatusCancelled || s == StatusDelivered }

type Order struct {
	ID              int64       `json:"id" db:"id"`
	Number          string      `json:"number" db:"number"`
	CustomerID      int64       `json:"customer_id" db:"customer_id"`
	SalesManagerID  *int64      `json:"sales_manager_id,omitempty" db:"sales_manager_id"`
	Status          Status      `json:"status" db:"status"`
	ShippingAddress string      `json:"shipping_address" db:"shipping_address"`
	BillingAddress  string      `json:"billing_address" db:"billing_address"`
	Total           float64     `json:"total" db:"total"`
	PlacedAt        time.Time   `json:"placed_at" db:"placed_at"`
	ShippedAt       *time.Time  `json:"shipped_at,omitempty" db:"shipped_at"`
	DeliveredAt     *time.Time  `json:"delivered_at,omitempty" db:"delivered_at"`
	CancelledAt     *time.Time  `json:"cancelled_at,omitempty" db:"cancelled_at"`
	CancelReason    *string     `json:"cancel_reason,omitempty" db:"cancel_reason"`
	CreatedBy       int64       `json:"created_by" db:"created_by"`
	CreatedAt       time.Time   `json:"created_at" db:"created_at"`
	UpdatedAt       time.Time   `json:"updated_at" db:"updated_at"`
	Items           []OrderItem `json:"items,omitempty" db:"-"`
}

type OrderItem struct {
	ID            int64   `json:"id" db:"id"`
	OrderID       int64   `json:"order_id" db:"order_id"`
	ProductID     int64   `json:"product_id" db:"product_id"`
	WarehouseID   int64   `json:"warehouse_id" db:"warehouse_id"`
	ReservationID *int64  `json:"-" db:"reservation_id"`
	Qty           int64   `json:"qty" db:"qty"`
	UnitPrice     float64 `json:"unit_price" db:"unit_price"`
	LineTotal     float64 `json:"line_total" db:"line_total"`
}

// OrderWithCustomer decorates a listing row with the customer name.
type OrderWithCustomer struct {
	Order
	CustomerName string `json:"customer_name" db:"customer_name"`
}
