package shared

import (
	"net/http"
	"strconv"
)

// ListFilters represents standard list page filters
type ListFilters struct {
	Page    int
	Limit   int
	Search  string
	SortBy  string
	SortDir string
	IsActive *bool

	// Entity specific filters
	CategoryID  *int64
	WarehouseID *int64
}

// FiltersFromRequest extracts common list filters from query parameters.
func FiltersFromRequest(r *http.Request) ListFilters {
	q := r.URL.Query()
	page, _ := strconv.Atoi(q.Get("page"))
	if page < 1 {
		page = DefaultPage
	}
	limit, _ := strconv.Atoi(q.Get("limit"))
	if limit < 1 {
		limit = DefaultLimit
	}
	f := ListFilters{
		Page:    page,
		Limit:   limit,
		Search:  q.Get("search"),
		SortBy:  q.Get("sort"),
		SortDir: q.Get("dir"),
	}
	if v := q.Get("is_active"); v != "" {
		active := v == "true"
		f.IsActive = &active
	}
	if v := q.Get("category_id"); v != "" {
		if id, err := strconv.ParseInt(v, 10, 64); err == nil {
			f.CategoryID = &id
		}
	}
	if v := q.Get("warehouse_id"); v != "" {
		if id, err := strconv.ParseInt(v, 10, 64); err == nil {
			f.WarehouseID = &id
		}
	}
	return f
}
