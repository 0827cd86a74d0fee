package stock

import "time"

// Level is one row of the stock ledger, keyed by product and warehouse.
type Level struct {
	ProductID   int64     `json:"product_id"`
	WarehouseID int64     `json:"warehouse_id"`
	OnHand      int64     `json:"on_hand"`
	Reserved    int64     `json:"reserved"`
	UpdatedAt   time.Time `json:"updated_at"`
}

// Available is the quantity not yet promised to an order.
func (l Level) Available() int64 {
	return l.OnHand - l.Reserved
}

// Entry is a journal row recording a single ledger mutation.
type Entry struct {
	ID          int64     `json:"id"`
	ProductID   int64     `json:"product_id"`
	WarehouseID int64     `json:"warehouse_id"`
	Delta       int64     `json:"delta"`
	Balance     int64     `json:"balance"`
	RefType     string    `json:"ref_type"`
	RefID       string    `json:"ref_id"`
	CreatedAt   time.Time `json:"created_at"`
}

// Reservation statuses.
const (
	ReservationHeld      = "HELD"
	ReservationCommitted = "COMMITTED"
	ReservationReleased  = "RELEASED"
)

// Reservation is a hold taken against available stock for an order item.
type Reservation struct {
	ID          int64     `json:"id"`
	OrderID     int64     `json:"order_id"`
	ProductID   int64     `json:"product_id"`
	WarehouseID int64     `json:"warehouse_id"`
	Qty         int64     `json:"qty"`
	Status      string    `json:"status"`
	ExpiresAt   time.Time `json:"expires_at"`
	CreatedAt   time.Time `json:"created_at"`
}

// LowStockRow reports a product below the given availability threshold.
type LowStockRow struct {
	ProductID   int64  `json:"product_id"`
	SKU         string `json:"sku"`
	Name        string `json:"name"`
	WarehouseID int64  `json:"warehouse_id"`
	OnHand      int64  `json:"on_hand"`
	Reserved    int64  `json:"reserved"`
}
