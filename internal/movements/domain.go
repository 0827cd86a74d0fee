package movements

import "time"

// Status of a stock movement. PLANNED and IN_PROGRESS exist for imported
// historical rows; the API only ever produces PENDING, COMPLETED and
// CANCELLED.
type Status string

const (
	StatusPlanned    Status = "PLANNED"
	StatusPending    Status = "PENDING"
	StatusInProgress Status = "IN_PROGRESS"
	StatusCompleted  Status = "COMPLETED"
	StatusCancelled  Status = "CANCELLED"
)

// CanEdit reports whether qty, notes or date may still change.
func (s Status) CanEdit() bool { return s == StatusPending }

// CanComplete reports whether the movement may be applied to the ledger.
func (s Status) CanComplete() bool { return s == StatusPending }

// CanCancel reports whether the movement may be cancelled.
func (s Status) CanCancel() bool { return s == StatusPending }

// Movement moves qty of a product out of a source warehouse, into a
// destination warehouse, or between the two. At least one side is set.
type Movement struct {
	ID                 int64      `json:"id" db:"id"`
	ProductID          int64      `json:"product_id" db:"product_id"`
	SourceWarehouseID  *int64     `json:"source_warehouse_id,omitempty" db:"source_warehouse_id"`
	DestWarehouseID    *int64     `json:"destination_warehouse_id,omitempty" db:"destination_warehouse_id"`
	Qty                int64      `json:"qty" db:"qty"`
	Status             Status     `json:"status" db:"status"`
	MovementDate       time.Time  `json:"movement_date" db:"movement_date"`
	Notes              string     `json:"notes,omitempty" db:"notes"`
	CreatedBy          int64      `json:"created_by" db:"created_by"`
	CompletedAt        *time.Time `json:"completed_at,omitempty" db:"completed_at"`
	CreatedAt          time.Time  `json:"created_at" db:"created_at"`
	UpdatedAt          time.Time  `json:"updated_at" db:"updated_at"`
}
