package movements

import "time"

type CreateMovementRequest struct {
	ProductID       int64      `json:"product_id" validate:"required,gt=0"`
	SourceID        *int64     `json:"source_warehouse_id,omitempty" validate:"omitempty,gt=0"`
	DestinationID   *int64     `json:"destination_warehouse_id,omitempty" validate:"omitempty,gt=0"`
	Qty             int64      `json:"qty" validate:"required,gt=0"`
	MovementDate    *time.Time `json:"movement_date,omitempty"`
	Notes           string     `json:"notes" validate:"max=2000"`
}

type UpdateMovementRequest struct {
	Qty          *int64     `json:"qty,omitempty" validate:"omitempty,gt=0"`
	MovementDate *time.Time `json:"movement_date,omitempty"`
	Notes        *string    `json:"notes,omitempty" validate:"omitempty,max=2000"`
}

type ListMovementsRequest struct {
	ProductID   *int64  `json:"product_id,omitempty"`
	WarehouseID *int64  `json:"warehouse_id,omitempty"`
	Status      *Status `json:"status,omitempty"`
	Limit       int     `json:"limit" validate:"gte=0,lte=1000"`
	Offset      int     `json:"offset" validate:"gte=0"`
}
