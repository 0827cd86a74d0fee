package warehouses

import (
	"context"
	"fmt"
	"strings"

	"github.com/meridian-ims/meridian/internal/masterdata/shared"
	"github.com/meridian-ims/meridian/internal/platform/httpx"
)

type Service struct {
	repo Repository
}

func NewService(repo Repository) *Service {
	return &Service{repo: repo}
}

func (s *Service) List(ctx context.Context, filters shared.ListFilters) ([]Warehouse, int, error) {
	return s.repo.List(ctx, filters)
}

func (s *Service) Get(ctx context.Context, id int64) (Warehouse, error) {
	if id <= 0 {
		return Warehouse{}, fmt.Errorf("%w: invalid warehouse ID", httpx.ErrValidation)
	}
	return s.repo.Get(ctx, id)
}

func (s *Service) Create(ctx context.Context, warehouse Warehouse) (Warehouse, error) {
	warehouse.Code = strings.ToUpper(strings.TrimSpace(warehouse.Code))
	if err := s.validate(warehouse); err != nil {
		return Warehouse{}, err
	}
	return s.repo.Create(ctx, warehouse)
}

func (s *Service) Update(ctx context.Context, id int64, warehouse Warehouse) error {
	if id <= 0 {
		return fmt.Errorf("%w: invalid warehouse ID", httpx.ErrValidation)
	}
	warehouse.Code = strings.ToUpper(strings.TrimSpace(warehouse.Code))
	if err := s.validate(warehouse); err != nil {
		return err
	}
	return s.repo.Update(ctx, id, warehouse)
}

func (s *Service) Delete(ctx context.Context, id int64) error {
	if id <= 0 {
		return fmt.Errorf("%w: invalid warehouse ID", httpx.ErrValidation)
	}
	return s.repo.Delete(ctx, id)
}

// Staff lists operators assigned to a warehouse.
func (s *Service) Staff(ctx context.Context, warehouseID int64) ([]StaffMember, error) {
	if _, err := s.Get(ctx, warehouseID); err != nil {
		return nil, err
	}
	return s.repo.ListStaff(ctx, warehouseID)
}

// AssignStaff links an operator to a warehouse.
func (s *Service) AssignStaff(ctx context.Context, warehouseID, userID int64) error {
	if _, err := s.Get(ctx, warehouseID); err != nil {
		return err
	}
	return s.repo.AssignStaff(ctx, warehouseID, userID)
}

// RemoveStaff unlinks an operator from a warehouse.
func (s *Service) RemoveStaff(ctx context.Context, warehouseID, userID int64) error {
	return s.repo.RemoveStaff(ctx, warehouseID, userID)
}
