package orders

type CreateOrderItemRequest struct {
	ProductID   int64 `json:"product_id" validate:"required,gt=0"`
	WarehouseID int64 `json:"warehouse_id" validate:"omitempty,gt=0"`
	Qty         int64 `json:"qty" validate:"required,gt=0"`
}

type CreateOrderRequest struct {
	CustomerID      int64                    `json:"customer_id" validate:"required,gt=0"`
	SalesManagerID  *int64                   `json:"sales_manager_id,omitempty" validate:"omitempty,gt=0"`
	ShippingAddress string                   `json:"shipping_address" validate:"required"`
	BillingAddress  string                   `json:"billing_address"`
	Items           []CreateOrderItemRequest `json:"items" validate:"required,min=1,dive"`
}

type CancelOrderRequest struct {
	Reason string `json:"reason"`
}

type ListOrdersRequest struct {
	CustomerID *int64  `json:"customer_id,omitempty"`
	Status     *Status `json:"status,omitempty"`
	Limit      int     `json:"limit" validate:"gte=0,lte=1000"`
	Offset     int     `json:"offset" validate:"gte=0"`
}
