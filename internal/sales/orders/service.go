package orders

import (
	"context"
	"fmt"
	"log/slog"
	"strconv"
	"time"

	"github.com/meridian-ims/meridian/internal/masterdata/products"
	"github.com/meridian-ims/meridian/internal/platform/httpx"
	"github.com/meridian-ims/meridian/internal/sales/customers"
	"github.com/meridian-ims/meridian/internal/shared"
	"github.com/meridian-ims/meridian/internal/stock"
)

// DefaultHoldTTL bounds how long a pending order keeps stock reserved.
const DefaultHoldTTL = 24 * time.Hour

// StockPort is the slice of the stock service orders depend on.
type StockPort interface {
	PickWarehouse(ctx context.Context, productID, qty int64) (int64, error)
	ReserveForOrder(ctx context.Context, orderID int64, items []stock.ItemRequest, ttl time.Duration) ([]stock.Reservation, error)
	ReleaseReservation(ctx context.Context, reservationID int64) error
	CommitOrderHolds(ctx context.Context, orderID int64) error
	ReleaseOrderHolds(ctx context.Context, orderID int64) error
	RestockCommitted(ctx context.Context, orderID int64) error
}

// ProductCatalog resolves products for price snapshots.
type ProductCatalog interface {
	Get(ctx context.Context, id int64) (products.Product, error)
}

// CustomerDirectory resolves customers placing orders.
type CustomerDirectory interface {
	Get(ctx context.Context, id int64) (*customers.Customer, error)
}

type Service struct {
	repo      Repository
	customers CustomerDirectory
	catalog   ProductCatalog
	stock     StockPort
	audit     *shared.AuditLogger
	logger    *slog.Logger
	holdTTL   time.Duration
}

func NewService(repo Repository, customerDir CustomerDirectory, catalog ProductCatalog, stockSvc StockPort, audit *shared.AuditLogger, logger *slog.Logger, holdTTL time.Duration) *Service {
	if holdTTL <= 0 {
		holdTTL = DefaultHoldTTL
	}
	return &Service{
		repo:      repo,
		customers: customerDir,
		catalog:   catalog,
		stock:     stockSvc,
		audit:     audit,
		logger:    logger,
		holdTTL:   holdTTL,
	}
}

func (s *Service) recordAudit(ctx context.Context, action string, orderID int64, meta map[string]any) {
	actor := shared.ActorFromContext(ctx)
	if err := s.audit.Record(ctx, shared.AuditLog{
		ActorID:  actor.UserID,
		Action:   action,
		Entity:   "order",
		EntityID: strconv.FormatInt(orderID, 10),
		Meta:     meta,
	}); err != nil {
		s.logger.Warn("audit record", slog.String("action", action), slog.Any("error", err))
	}
}

type pricedItem struct {
	productID   int64
	warehouseID int64
	qty         int64
	unitPrice   float64
}

func (s *Service) priceItems(ctx context.Context, reqs []CreateOrderItemRequest) ([]pricedItem, error) {
	items := make([]pricedItem, 0, len(reqs))
	for _, req := range reqs {
		if req.Qty <= 0 {
			return nil, fmt.Errorf("%w: quantity must be positive", httpx.ErrValidation)
		}
		product, err := s.catalog.Get(ctx, req.ProductID)
		if err != nil {
			return nil, fmt.Errorf("product %d: %w", req.ProductID, err)
		}
		if !product.IsActive {
			return nil, fmt.Errorf("%w: product %s is inactive", httpx.ErrValidation, product.SKU)
		}
		warehouseID := req.WarehouseID
		if warehouseID == 0 {
			warehouseID, err = s.stock.PickWarehouse(ctx, req.ProductID, req.Qty)
			if err != nil {
				return nil, err
			}
		}
		items = append(items, pricedItem{
			productID:   req.ProductID,
			warehouseID: warehouseID,
			qty:         req.Qty,
			unitPrice:   product.Price,
		})
	}
	return items, nil
}

// Create builds a PENDING order and takes one reservation hold per item.
// Stock on hand is not touched; any item without enough availability fails
// the whole order and releases the holds already taken.
func (s *Service) Create(ctx context.Context, req CreateOrderRequest, createdBy int64) (*Order, error) {
	customer, err := s.customers.Get(ctx, req.CustomerID)
	if err != nil {
		return nil, fmt.Errorf("customer %d: %w", req.CustomerID, err)
	}
	if !customer.IsActive {
		return nil, fmt.Errorf("%w: customer %s is inactive", httpx.ErrValidation, customer.Code)
	}
	if len(req.Items) == 0 {
		return nil, fmt.Errorf("%w: at least one item required", httpx.ErrValidation)
	}

	priced, err := s.priceItems(ctx, req.Items)
	if err != nil {
		return nil, err
	}

	billing := req.BillingAddress
	if billing == "" {
		billing = req.ShippingAddress
	}

	number, err := s.repo.GenerateNumber(ctx)
	if err != nil {
		return nil, fmt.Errorf("generate order number: %w", err)
	}

	order := Order{
		Number:          number,
		CustomerID:      req.CustomerID,
		SalesManagerID:  req.SalesManagerID,
		Status:          StatusPending,
		ShippingAddress: req.ShippingAddress,
		BillingAddress:  billing,
		CreatedBy:       createdBy,
	}
	var orderID int64
	err = s.repo.WithTx(ctx, func(ctx context.Context, repo Repository) error {
		var err error
		orderID, err = repo.Create(ctx, order)
		return err
	})
	if err != nil {
		return nil, fmt.Errorf("create order: %w", err)
	}

	requests := make([]stock.ItemRequest, len(priced))
	for i, item := range priced {
		requests[i] = stock.ItemRequest{ProductID: item.productID, WarehouseID: item.warehouseID, Qty: item.qty}
	}
	holds, err := s.stock.ReserveForOrder(ctx, orderID, requests, s.holdTTL)
	if err != nil {
		if delErr := s.repo.Delete(ctx, orderID); delErr != nil {
			s.logger.Error("rollback order after failed reservation",
				slog.Int64("order_id", orderID), slog.Any("error", delErr))
		}
		return nil, err
	}

	var total float64
	err = s.repo.WithTx(ctx, func(ctx context.Context, repo Repository) error {
		for i, item := range priced {
			lineTotal := float64(item.qty) * item.unitPrice
			total += lineTotal
			reservationID := holds[i].ID
			if _, err := repo.InsertItem(ctx, OrderItem{
				OrderID:       orderID,
				ProductID:     item.productID,
				WarehouseID:   item.warehouseID,
				ReservationID: &reservationID,
				Qty:           item.qty,
				UnitPrice:     item.unitPrice,
				LineTotal:     lineTotal,
			}); err != nil {
				return err
			}
		}
		return repo.SetTotal(ctx, orderID, total)
	})
	if err != nil {
		if relErr := s.stock.ReleaseOrderHolds(ctx, orderID); relErr != nil {
			s.logger.Error("release holds after failed item insert", slog.Any("error", relErr))
		}
		if delErr := s.repo.Delete(ctx, orderID); delErr != nil {
			s.logger.Error("rollback order after failed item insert", slog.Any("error", delErr))
		}
		return nil, fmt.Errorf("create order items: %w", err)
	}

	s.recordAudit(ctx, "order.create", orderID, map[string]any{"number": number, "total": total})
	return s.repo.Get(ctx, orderID)
}

// Confirm commits every reservation hold, decrementing on-hand stock. A
// vanished hold (released or swept) fails the confirm and leaves the order
// PENDING.
func (s *Service) Confirm(ctx context.Context, id int64) (*Order, error) {
	order, err := s.repo.Get(ctx, id)
	if err != nil {
		return nil, err
	}
	if !order.Status.CanConfirm() {
		return nil, fmt.Errorf("%w: order %s is %s", httpx.ErrInvalidTransition, order.Number, order.Status)
	}
	// Claim the transition first; the conditional update loses to any
	// concurrent cancel, so holds are only ever committed for an order that
	// is already CONFIRMED.
	if err := s.repo.TransitionStatus(ctx, id, StatusPending, StatusConfirmed, ""); err != nil {
		return nil, err
	}
	if err := s.stock.CommitOrderHolds(ctx, id); err != nil {
		if revErr := s.repo.TransitionStatus(ctx, id, StatusConfirmed, StatusPending, ""); revErr != nil {
			s.logger.Error("revert confirm after failed hold commit",
				slog.Int64("order_id", id), slog.Any("error", revErr))
		}
		return nil, err
	}
	s.recordAudit(ctx, "order.confirm", id, nil)
	return s.repo.Get(ctx, id)
}

// Cancel releases holds (PENDING) or restocks committed quantities
// (CONFIRMED). Terminal orders cannot be cancelled.
func (s *Service) Cancel(ctx context.Context, id int64, reason string) (*Order, error) {
	order, err := s.repo.Get(ctx, id)
	if err != nil {
		return nil, err
	}
	if !order.Status.CanCancel() {
		return nil, fmt.Errorf("%w: order %s is %s", httpx.ErrInvalidTransition, order.Number, order.Status)
	}
	if err := s.repo.SetCancelled(ctx, id, order.Status, reason); err != nil {
		return nil, err
	}
	switch order.Status {
	case StatusPending:
		err = s.stock.ReleaseOrderHolds(ctx, id)
	case StatusConfirmed:
		err = s.stock.RestockCommitted(ctx, id)
	}
	if err != nil {
		return nil, fmt.Errorf("cancel order %d ledger: %w", id, err)
	}
	s.recordAudit(ctx, "order.cancel", id, map[string]any{"reason": reason, "was": string(order.Status)})
	return s.repo.Get(ctx, id)
}

// Ship stamps the shipped timestamp. No ledger effect.
func (s *Service) Ship(ctx context.Context, id int64) (*Order, error) {
	if err := s.repo.TransitionStatus(ctx, id, StatusConfirmed, StatusShipped, "shipped_at"); err != nil {
		return nil, err
	}
	s.recordAudit(ctx, "order.ship", id, nil)
	return s.repo.Get(ctx, id)
}

// Deliver stamps the delivered timestamp. No ledger effect.
func (s *Service) Deliver(ctx context.Context, id int64) (*Order, error) {
	if err := s.repo.TransitionStatus(ctx, id, StatusShipped, StatusDelivered, "delivered_at"); err != nil {
		return nil, err
	}
	s.recordAudit(ctx, "order.deliver", id, nil)
	return s.repo.Get(ctx, id)
}

// AddItem appends an item to a PENDING order, taking a fresh hold.
func (s *Service) AddItem(ctx context.Context, orderID int64, req CreateOrderItemRequest) (*Order, error) {
	order, err := s.repo.Get(ctx, orderID)
	if err != nil {
		return nil, err
	}
	if !order.Status.CanEdit() {
		return nil, fmt.Errorf("%w: order %s is %s", httpx.ErrInvalidTransition, order.Number, order.Status)
	}
	priced, err := s.priceItems(ctx, []CreateOrderItemRequest{req})
	if err != nil {
		return nil, err
	}
	item := priced[0]
	holds, err := s.stock.ReserveForOrder(ctx, orderID, []stock.ItemRequest{
		{ProductID: item.productID, WarehouseID: item.warehouseID, Qty: item.qty},
	}, s.holdTTL)
	if err != nil {
		return nil, err
	}
	reservationID := holds[0].ID
	lineTotal := float64(item.qty) * item.unitPrice
	err = s.repo.WithTx(ctx, func(ctx context.Context, repo Repository) error {
		if _, err := repo.InsertItem(ctx, OrderItem{
			OrderID:       orderID,
			ProductID:     item.productID,
			WarehouseID:   item.warehouseID,
			ReservationID: &reservationID,
			Qty:           item.qty,
			UnitPrice:     item.unitPrice,
			LineTotal:     lineTotal,
		}); err != nil {
			return err
		}
		return repo.SetTotal(ctx, orderID, order.Total+lineTotal)
	})
	if err != nil {
		if relErr := s.stock.ReleaseReservation(ctx, reservationID); relErr != nil {
			s.logger.Error("release hold after failed item insert", slog.Any("error", relErr))
		}
		return nil, err
	}
	s.recordAudit(ctx, "order.add_item", orderID, map[string]any{"product_id": item.productID, "qty": item.qty})
	return s.repo.Get(ctx, orderID)
}

// RemoveItem deletes an item from a PENDING order and releases its hold.
func (s *Service) RemoveItem(ctx context.Context, orderID, itemID int64) (*Order, error) {
	order, err := s.repo.Get(ctx, orderID)
	if err != nil {
		return nil, err
	}
	if !order.Status.CanEdit() {
		return nil, fmt.Errorf("%w: order %s is %s", httpx.ErrInvalidTransition, order.Number, order.Status)
	}
	var removed OrderItem
	err = s.repo.WithTx(ctx, func(ctx context.Context, repo Repository) error {
		var err error
		removed, err = repo.DeleteItem(ctx, orderID, itemID)
		if err != nil {
			return err
		}
		return repo.SetTotal(ctx, orderID, order.Total-removed.LineTotal)
	})
	if err != nil {
		return nil, err
	}
	if removed.ReservationID != nil {
		if err := s.stock.ReleaseReservation(ctx, *removed.ReservationID); err != nil {
			s.logger.Error("release hold for removed item", slog.Any("error", err))
		}
	}
	s.recordAudit(ctx, "order.remove_item", orderID, map[string]any{"item_id": itemID})
	return s.repo.Get(ctx, orderID)
}

// Delete removes a PENDING order entirely, releasing its holds.
func (s *Service) Delete(ctx context.Context, id int64) error {
	order, err := s.repo.Get(ctx, id)
	if err != nil {
		return err
	}
	if !order.Status.CanEdit() {
		return fmt.Errorf("%w: order %s is %s", httpx.ErrInvalidTransition, order.Number, order.Status)
	}
	if err := s.stock.ReleaseOrderHolds(ctx, id); err != nil {
		return err
	}
	if err := s.repo.Delete(ctx, id); err != nil {
		return err
	}
	s.recordAudit(ctx, "order.delete", id, nil)
	return nil
}

func (s *Service) Get(ctx context.Context, id int64) (*Order, error) {
	return s.repo.Get(ctx, id)
}

func (s *Service) List(ctx context.Context, req ListOrdersRequest) ([]OrderWithCustomer, int, error) {
	if req.Limit <= 0 {
		req.Limit = shared.DefaultPageSize
	}
	return s.repo.List(ctx, req)
}
