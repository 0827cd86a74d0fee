package stock

import (
	"context"
	"fmt"
	"log/slog"
	"sort"
	"strconv"
	"time"

	"golang.org/x/sync/singleflight"

	"github.com/meridian-ims/meridian/internal/observability"
	"github.com/meridian-ims/meridian/internal/platform/httpx"
	"github.com/meridian-ims/meridian/internal/shared"
)

// Journal reference types.
const (
	RefAdjustment = "adjustment"
	RefTransfer   = "transfer"
	RefRestock    = "restock"
	RefOrder      = "order"
	RefMovement   = "movement"
)

// ItemRequest is one line of an order asking for stock.
type ItemRequest struct {
	ProductID   int64
	WarehouseID int64
	Qty         int64
}

// Service owns all ledger mutations.
type Service struct {
	repo    Repository
	audit   *shared.AuditLogger
	idem    *shared.IdempotencyStore
	metrics *observability.Metrics
	logger  *slog.Logger
	group   singleflight.Group
}

// NewService constructs the stock service.
func NewService(repo Repository, audit *shared.AuditLogger, idem *shared.IdempotencyStore, metrics *observability.Metrics, logger *slog.Logger) *Service {
	return &Service{repo: repo, audit: audit, idem: idem, metrics: metrics, logger: logger}
}

func (s *Service) recordAudit(ctx context.Context, action, entityID string, meta map[string]any) {
	actor := shared.ActorFromContext(ctx)
	if err := s.audit.Record(ctx, shared.AuditLog{
		ActorID:  actor.UserID,
		Action:   action,
		Entity:   "stock",
		EntityID: entityID,
		Meta:     meta,
	}); err != nil {
		s.logger.Warn("audit record", slog.String("action", action), slog.Any("error", err))
	}
}

func (s *Service) count(kind string) {
	if s.metrics != nil {
		s.metrics.CountStockMutation(kind)
	}
}

func levelKey(productID, warehouseID int64) string {
	return strconv.FormatInt(productID, 10) + ":" + strconv.FormatInt(warehouseID, 10)
}

// SetLevel replaces the absolute on-hand quantity for a product at a warehouse.
func (s *Service) SetLevel(ctx context.Context, productID, warehouseID, qty int64) (Level, error) {
	if productID <= 0 || warehouseID <= 0 {
		return Level{}, fmt.Errorf("%w: product and warehouse required", httpx.ErrValidation)
	}
	if qty < 0 {
		return Level{}, fmt.Errorf("%w: quantity must not be negative", httpx.ErrValidation)
	}
	var level Level
	err := s.repo.WithTx(ctx, func(ctx context.Context, tx TxRepository) error {
		before, err := tx.GetLevel(ctx, productID, warehouseID)
		if err != nil {
			return err
		}
		level, err = tx.SetOnHand(ctx, productID, warehouseID, qty)
		if err != nil {
			return err
		}
		if delta := qty - before.OnHand; delta != 0 {
			return tx.InsertEntry(ctx, Entry{
				ProductID:   productID,
				WarehouseID: warehouseID,
				Delta:       delta,
				Balance:     level.OnHand,
				RefType:     RefAdjustment,
			})
		}
		return nil
	})
	if err != nil {
		return Level{}, err
	}
	s.count("set_level")
	s.recordAudit(ctx, "stock.set_level", levelKey(productID, warehouseID), map[string]any{"qty": qty})
	return level, nil
}

// LevelIn reports on-hand for a product at a warehouse, zero when never stocked.
func (s *Service) LevelIn(ctx context.Context, productID, warehouseID int64) (Level, error) {
	return s.repo.GetLevel(ctx, productID, warehouseID)
}

// TotalOnHand sums on-hand across all warehouses.
func (s *Service) TotalOnHand(ctx context.Context, productID int64) (int64, error) {
	v, err, _ := s.group.Do("total:"+strconv.FormatInt(productID, 10), func() (any, error) {
		return s.repo.SumOnHand(ctx, productID)
	})
	if err != nil {
		return 0, err
	}
	return v.(int64), nil
}

// Availability lists per-warehouse levels for a product. Concurrent callers
// share one query via singleflight.
func (s *Service) Availability(ctx context.Context, productID int64) ([]Level, error) {
	v, err, _ := s.group.Do("avail:"+strconv.FormatInt(productID, 10), func() (any, error) {
		return s.repo.ListLevels(ctx, productID)
	})
	if err != nil {
		return nil, err
	}
	return v.([]Level), nil
}

// Transfer moves qty between warehouses atomically. The source decrement is
// guarded against reserved stock, so a failing transfer changes nothing.
func (s *Service) Transfer(ctx context.Context, productID, src, dst, qty int64, idempotencyKey string) error {
	if qty <= 0 {
		return fmt.Errorf("%w: quantity must be positive", httpx.ErrValidation)
	}
	if src == dst {
		return fmt.Errorf("%w: source and destination must differ", httpx.ErrValidation)
	}
	if idempotencyKey != "" {
		if err := s.idem.CheckAndInsert(ctx, idempotencyKey, "stock"); err != nil {
			return err
		}
	}
	err := s.repo.WithTx(ctx, func(ctx context.Context, tx TxRepository) error {
		out, err := tx.AdjustOnHand(ctx, productID, src, -qty)
		if err != nil {
			return err
		}
		in, err := tx.AdjustOnHand(ctx, productID, dst, qty)
		if err != nil {
			return err
		}
		if err := tx.InsertEntry(ctx, Entry{ProductID: productID, WarehouseID: src, Delta: -qty, Balance: out.OnHand, RefType: RefTransfer}); err != nil {
			return err
		}
		return tx.InsertEntry(ctx, Entry{ProductID: productID, WarehouseID: dst, Delta: qty, Balance: in.OnHand, RefType: RefTransfer})
	})
	if err != nil {
		if idempotencyKey != "" {
			if delErr := s.idem.Delete(ctx, idempotencyKey); delErr != nil {
				s.logger.Warn("idempotency rollback", slog.Any("error", delErr))
			}
		}
		return err
	}
	s.count("transfer")
	s.recordAudit(ctx, "stock.transfer", strconv.FormatInt(productID, 10), map[string]any{"src": src, "dst": dst, "qty": qty})
	return nil
}

// ApplyMovement applies a completed stock movement in one transaction:
// decrement the source and/or increment the destination, journaling each
// side. An insufficient source aborts both sides.
func (s *Service) ApplyMovement(ctx context.Context, productID int64, src, dst *int64, qty int64, refID string) error {
	if qty <= 0 {
		return fmt.Errorf("%w: quantity must be positive", httpx.ErrValidation)
	}
	if src == nil && dst == nil {
		return fmt.Errorf("%w: source or destination warehouse required", httpx.ErrValidation)
	}
	err := s.repo.WithTx(ctx, func(ctx context.Context, tx TxRepository) error {
		if src != nil {
			out, err := tx.AdjustOnHand(ctx, productID, *src, -qty)
			if err != nil {
				return err
			}
			if err := tx.InsertEntry(ctx, Entry{ProductID: productID, WarehouseID: *src, Delta: -qty, Balance: out.OnHand, RefType: RefMovement, RefID: refID}); err != nil {
				return err
			}
		}
		if dst != nil {
			in, err := tx.AdjustOnHand(ctx, productID, *dst, qty)
			if err != nil {
				return err
			}
			if err := tx.InsertEntry(ctx, Entry{ProductID: productID, WarehouseID: *dst, Delta: qty, Balance: in.OnHand, RefType: RefMovement, RefID: refID}); err != nil {
				return err
			}
		}
		return nil
	})
	if err != nil {
		return err
	}
	s.count("movement")
	s.recordAudit(ctx, "stock.movement", refID, map[string]any{"product_id": productID, "qty": qty})
	return nil
}

// Restock increments on-hand, used for cancelled confirmed orders and
// completed inbound movements.
func (s *Service) Restock(ctx context.Context, productID, warehouseID, qty int64, refType, refID string) (Level, error) {
	if qty <= 0 {
		return Level{}, fmt.Errorf("%w: quantity must be positive", httpx.ErrValidation)
	}
	if refType == "" {
		refType = RefRestock
	}
	var level Level
	err := s.repo.WithTx(ctx, func(ctx context.Context, tx TxRepository) error {
		var err error
		level, err = tx.AdjustOnHand(ctx, productID, warehouseID, qty)
		if err != nil {
			return err
		}
		return tx.InsertEntry(ctx, Entry{ProductID: productID, WarehouseID: warehouseID, Delta: qty, Balance: level.OnHand, RefType: refType, RefID: refID})
	})
	if err != nil {
		return Level{}, err
	}
	s.count("restock")
	return level, nil
}

// ReserveForOrder takes one hold per item inside a single transaction. Any
// item without enough available stock fails the whole set.
func (s *Service) ReserveForOrder(ctx context.Context, orderID int64, items []ItemRequest, ttl time.Duration) ([]Reservation, error) {
	if len(items) == 0 {
		return nil, fmt.Errorf("%w: at least one item required", httpx.ErrValidation)
	}
	expires := time.Now().Add(ttl)
	var holds []Reservation
	err := s.repo.WithTx(ctx, func(ctx context.Context, tx TxRepository) error {
		holds = holds[:0]
		for _, item := range items {
			if item.Qty <= 0 {
				return fmt.Errorf("%w: quantity must be positive", httpx.ErrValidation)
			}
			if _, err := tx.Reserve(ctx, item.ProductID, item.WarehouseID, item.Qty); err != nil {
				return fmt.Errorf("reserve product %d: %w", item.ProductID, err)
			}
			hold, err := tx.CreateReservation(ctx, Reservation{
				OrderID:     orderID,
				ProductID:   item.ProductID,
				WarehouseID: item.WarehouseID,
				Qty:         item.Qty,
				Status:      ReservationHeld,
				ExpiresAt:   expires,
			})
			if err != nil {
				return err
			}
			holds = append(holds, hold)
		}
		return nil
	})
	if err != nil {
		return nil, err
	}
	s.count("reserve")
	return holds, nil
}

// ReleaseReservation drops a single hold.
func (s *Service) ReleaseReservation(ctx context.Context, reservationID int64) error {
	err := s.repo.WithTx(ctx, func(ctx context.Context, tx TxRepository) error {
		res, err := tx.GetReservation(ctx, reservationID)
		if err != nil {
			return err
		}
		if err := tx.MarkReservation(ctx, res.ID, ReservationHeld, ReservationReleased); err != nil {
			return err
		}
		_, err = tx.ReleaseReserved(ctx, res.ProductID, res.WarehouseID, res.Qty)
		return err
	})
	if err != nil {
		return err
	}
	s.count("release")
	return nil
}

// CommitOrderHolds converts all held reservations of an order into on-hand
// decrements, all in one transaction. A missing or expired hold fails the
// whole commit.
func (s *Service) CommitOrderHolds(ctx context.Context, orderID int64) error {
	err := s.repo.WithTx(ctx, func(ctx context.Context, tx TxRepository) error {
		holds, err := tx.ListOrderReservations(ctx, orderID, ReservationHeld)
		if err != nil {
			return err
		}
		if len(holds) == 0 {
			return fmt.Errorf("%w: no holds for order %d", httpx.ErrInsufficientStock, orderID)
		}
		for _, hold := range holds {
			if err := tx.MarkReservation(ctx, hold.ID, ReservationHeld, ReservationCommitted); err != nil {
				return err
			}
			level, err := tx.CommitReserved(ctx, hold.ProductID, hold.WarehouseID, hold.Qty)
			if err != nil {
				return err
			}
			if err := tx.InsertEntry(ctx, Entry{
				ProductID:   hold.ProductID,
				WarehouseID: hold.WarehouseID,
				Delta:       -hold.Qty,
				Balance:     level.OnHand,
				RefType:     RefOrder,
				RefID:       strconv.FormatInt(orderID, 10),
			}); err != nil {
				return err
			}
		}
		return nil
	})
	if err != nil {
		return err
	}
	s.count("commit")
	s.recordAudit(ctx, "stock.commit_holds", strconv.FormatInt(orderID, 10), nil)
	return nil
}

// ReleaseOrderHolds drops every held reservation of an order.
func (s *Service) ReleaseOrderHolds(ctx context.Context, orderID int64) error {
	err := s.repo.WithTx(ctx, func(ctx context.Context, tx TxRepository) error {
		holds, err := tx.ListOrderReservations(ctx, orderID, ReservationHeld)
		if err != nil {
			return err
		}
		for _, hold := range holds {
			if err := tx.MarkReservation(ctx, hold.ID, ReservationHeld, ReservationReleased); err != nil {
				return err
			}
			if _, err := tx.ReleaseReserved(ctx, hold.ProductID, hold.WarehouseID, hold.Qty); err != nil {
				return err
			}
		}
		return nil
	})
	if err != nil {
		return err
	}
	s.count("release")
	return nil
}

// RestockCommitted returns the committed quantities of an order to the
// shelves. Used when a confirmed order is cancelled.
func (s *Service) RestockCommitted(ctx context.Context, orderID int64) error {
	refID := strconv.FormatInt(orderID, 10)
	err := s.repo.WithTx(ctx, func(ctx context.Context, tx TxRepository) error {
		committed, err := tx.ListOrderReservations(ctx, orderID, ReservationCommitted)
		if err != nil {
			return err
		}
		for _, res := range committed {
			level, err := tx.AdjustOnHand(ctx, res.ProductID, res.WarehouseID, res.Qty)
			if err != nil {
				return err
			}
			if err := tx.InsertEntry(ctx, Entry{
				ProductID:   res.ProductID,
				WarehouseID: res.WarehouseID,
				Delta:       res.Qty,
				Balance:     level.OnHand,
				RefType:     RefRestock,
				RefID:       refID,
			}); err != nil {
				return err
			}
			if err := tx.MarkReservation(ctx, res.ID, ReservationCommitted, ReservationReleased); err != nil {
				return err
			}
		}
		return nil
	})
	if err != nil {
		return err
	}
	s.count("restock")
	s.recordAudit(ctx, "stock.restock_committed", refID, nil)
	return nil
}

// PickWarehouse chooses the warehouse to serve qty of a product: the one
// with the most available stock, lowest ID breaking ties.
func (s *Service) PickWarehouse(ctx context.Context, productID, qty int64) (int64, error) {
	levels, err := s.repo.ListLevels(ctx, productID)
	if err != nil {
		return 0, err
	}
	sort.SliceStable(levels, func(i, j int) bool {
		if levels[i].Available() != levels[j].Available() {
			return levels[i].Available() > levels[j].Available()
		}
		return levels[i].WarehouseID < levels[j].WarehouseID
	})
	for _, l := range levels {
		if l.Available() >= qty {
			return l.WarehouseID, nil
		}
	}
	return 0, fmt.Errorf("%w: product %d", httpx.ErrInsufficientStock, productID)
}

// SweepExpiredHolds releases holds that outlived their TTL. Returns the
// number of reservations released.
func (s *Service) SweepExpiredHolds(ctx context.Context, now time.Time, limit int) (int, error) {
	if limit <= 0 {
		limit = 100
	}
	released := 0
	err := s.repo.WithTx(ctx, func(ctx context.Context, tx TxRepository) error {
		released = 0
		expired, err := tx.ListExpiredHeld(ctx, now, limit)
		if err != nil {
			return err
		}
		for _, res := range expired {
			if err := tx.MarkReservation(ctx, res.ID, ReservationHeld, ReservationReleased); err != nil {
				return err
			}
			if _, err := tx.ReleaseReserved(ctx, res.ProductID, res.WarehouseID, res.Qty); err != nil {
				return err
			}
			released++
		}
		return nil
	})
	if err != nil {
		return 0, err
	}
	if released > 0 {
		s.count("sweep")
		s.logger.Info("released expired holds", slog.Int("count", released))
	}
	return released, nil
}

// LowStock reports ledger rows whose availability is below threshold.
func (s *Service) LowStock(ctx context.Context, threshold int64) ([]LowStockRow, error) {
	if threshold <= 0 {
		return nil, fmt.Errorf("%w: threshold must be positive", httpx.ErrValidation)
	}
	return s.repo.LowStock(ctx, threshold)
}
