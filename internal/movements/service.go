package movements

import (
	"context"
	"fmt"
	"log/slog"
	"strconv"
	"time"

	"github.com/meridian-ims/meridian/internal/masterdata/products"
	"github.com/meridian-ims/meridian/internal/masterdata/warehouses"
	"github.com/meridian-ims/meridian/internal/platform/httpx"
	"github.com/meridian-ims/meridian/internal/shared"
	"github.com/meridian-ims/meridian/internal/stock"
)

// LedgerPort is the slice of the stock service movements depend on. All
// ledger writes go through ApplyMovement so a completed movement mutates
// stock in exactly one transaction.
type LedgerPort interface {
	LevelIn(ctx context.Context, productID, warehouseID int64) (stock.Level, error)
	ApplyMovement(ctx context.Context, productID int64, src, dst *int64, qty int64, refID string) error
}

// ProductCatalog resolves products referenced by movements.
type ProductCatalog interface {
	Get(ctx context.Context, id int64) (products.Product, error)
}

// WarehouseDirectory resolves warehouses referenced by movements.
type WarehouseDirectory interface {
	Get(ctx context.Context, id int64) (warehouses.Warehouse, error)
}

type Service struct {
	repo       Repository
	catalog    ProductCatalog
	warehouses WarehouseDirectory
	ledger     LedgerPort
	audit      *shared.AuditLogger
	logger     *slog.Logger
}

func NewService(repo Repository, catalog ProductCatalog, dir WarehouseDirectory, ledger LedgerPort, audit *shared.AuditLogger, logger *slog.Logger) *Service {
	return &Service{repo: repo, catalog: catalog, warehouses: dir, ledger: ledger, audit: audit, logger: logger}
}

func (s *Service) recordAudit(ctx context.Context, action string, movementID int64, meta map[string]any) {
	actor := shared.ActorFromContext(ctx)
	if err := s.audit.Record(ctx, shared.AuditLog{
		ActorID:  actor.UserID,
		Action:   action,
		Entity:   "stock_movement",
		EntityID: strconv.FormatInt(movementID, 10),
		Meta:     meta,
	}); err != nil {
		s.logger.Warn("audit record", slog.String("action", action), slog.Any("error", err))
	}
}

// checkSource warns the caller early when the source warehouse cannot cover
// qty. Advisory only: stock can still drain between create and complete, the
// conditional decrement at completion is what actually protects the ledger.
func (s *Service) checkSource(ctx context.Context, productID, warehouseID, qty int64) error {
	level, err := s.ledger.LevelIn(ctx, productID, warehouseID)
	if err != nil {
		return err
	}
	if level.Available() < qty {
		return fmt.Errorf("%w: %d available at warehouse %d", httpx.ErrInsufficientStock, level.Available(), warehouseID)
	}
	return nil
}

func (s *Service) Create(ctx context.Context, req CreateMovementRequest, createdBy int64) (*Movement, error) {
	if req.SourceID == nil && req.DestinationID == nil {
		return nil, fmt.Errorf("%w: source or destination warehouse required", httpx.ErrValidation)
	}
	if req.SourceID != nil && req.DestinationID != nil && *req.SourceID == *req.DestinationID {
		return nil, fmt.Errorf("%w: source and destination must differ", httpx.ErrValidation)
	}
	if req.Qty <= 0 {
		return nil, fmt.Errorf("%w: quantity must be positive", httpx.ErrValidation)
	}
	if _, err := s.catalog.Get(ctx, req.ProductID); err != nil {
		return nil, fmt.Errorf("product %d: %w", req.ProductID, err)
	}
	for _, id := range []*int64{req.SourceID, req.DestinationID} {
		if id == nil {
			continue
		}
		if _, err := s.warehouses.Get(ctx, *id); err != nil {
			return nil, fmt.Errorf("warehouse %d: %w", *id, err)
		}
	}
	if req.SourceID != nil {
		if err := s.checkSource(ctx, req.ProductID, *req.SourceID, req.Qty); err != nil {
			return nil, err
		}
	}

	date := time.Now()
	if req.MovementDate != nil {
		date = *req.MovementDate
	}
	id, err := s.repo.Create(ctx, Movement{
		ProductID:         req.ProductID,
		SourceWarehouseID: req.SourceID,
		DestWarehouseID:   req.DestinationID,
		Qty:               req.Qty,
		Status:            StatusPending,
		MovementDate:      date,
		Notes:             req.Notes,
		CreatedBy:         createdBy,
	})
	if err != nil {
		return nil, err
	}
	s.recordAudit(ctx, "movement.create", id, map[string]any{"product_id": req.ProductID, "qty": req.Qty})
	return s.repo.Get(ctx, id)
}

// Complete applies the movement to the stock ledger. The status flip claims
// the movement first, so a concurrent Complete loses the conditional update
// and never applies the ledger effect twice. A failed ledger write hands the
// claim back.
func (s *Service) Complete(ctx context.Context, id int64) (*Movement, error) {
	m, err := s.repo.Get(ctx, id)
	if err != nil {
		return nil, err
	}
	if !m.Status.CanComplete() {
		return nil, fmt.Errorf("%w: movement %d is %s", httpx.ErrInvalidTransition, id, m.Status)
	}
	if err := s.repo.TransitionStatus(ctx, id, StatusPending, StatusCompleted); err != nil {
		return nil, err
	}
	refID := strconv.FormatInt(id, 10)
	if err := s.ledger.ApplyMovement(ctx, m.ProductID, m.SourceWarehouseID, m.DestWarehouseID, m.Qty, refID); err != nil {
		if revErr := s.repo.TransitionStatus(ctx, id, StatusCompleted, StatusPending); revErr != nil {
			s.logger.Error("revert movement claim", slog.Int64("movement_id", id), slog.Any("error", revErr))
		}
		return nil, err
	}
	s.recordAudit(ctx, "movement.complete", id, map[string]any{"product_id": m.ProductID, "qty": m.Qty})
	return s.repo.Get(ctx, id)
}

func (s *Service) Cancel(ctx context.Context, id int64) (*Movement, error) {
	m, err := s.repo.Get(ctx, id)
	if err != nil {
		return nil, err
	}
	if !m.Status.CanCancel() {
		return nil, fmt.Errorf("%w: movement %d is %s", httpx.ErrInvalidTransition, id, m.Status)
	}
	if err := s.repo.TransitionStatus(ctx, id, StatusPending, StatusCancelled); err != nil {
		return nil, err
	}
	s.recordAudit(ctx, "movement.cancel", id, nil)
	return s.repo.Get(ctx, id)
}

func (s *Service) Update(ctx context.Context, id int64, req UpdateMovementRequest) (*Movement, error) {
	m, err := s.repo.Get(ctx, id)
	if err != nil {
		return nil, err
	}
	if !m.Status.CanEdit() {
		return nil, fmt.Errorf("%w: movement %d is %s", httpx.ErrInvalidTransition, id, m.Status)
	}
	if req.Qty != nil {
		if *req.Qty <= 0 {
			return nil, fmt.Errorf("%w: quantity must be positive", httpx.ErrValidation)
		}
		if m.SourceWarehouseID != nil {
			if err := s.checkSource(ctx, m.ProductID, *m.SourceWarehouseID, *req.Qty); err != nil {
				return nil, err
			}
		}
	}
	if err := s.repo.Update(ctx, id, req); err != nil {
		return nil, err
	}
	s.recordAudit(ctx, "movement.update", id, nil)
	return s.repo.Get(ctx, id)
}

func (s *Service) Delete(ctx context.Context, id int64) error {
	m, err := s.repo.Get(ctx, id)
	if err != nil {
		return err
	}
	if m.Status == StatusCompleted {
		return fmt.Errorf("%w: completed movements are kept for the ledger trail", httpx.ErrInvalidTransition)
	}
	if err := s.repo.Delete(ctx, id); err != nil {
		return err
	}
	s.recordAudit(ctx, "movement.delete", id, nil)
	return nil
}

func (s *Service) Get(ctx context.Context, id int64) (*Movement, error) {
	return s.repo.Get(ctx, id)
}

func (s *Service) List(ctx context.Context, req ListMovementsRequest) ([]Movement, int, error) {
	if req.Limit <= 0 {
		req.Limit = shared.DefaultPageSize
	}
	return s.repo.List(ctx, req)
}
