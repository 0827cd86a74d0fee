package products

type ProductForm struct {
	SKU         string  `json:"sku"`
	Name        string  `json:"name"`
	Description string  `json:"description"`
	CategoryID  *int64  `json:"category_id"`
	Price       float64 `json:"price"`
	IsActive    bool    `json:"is_active"`
}
