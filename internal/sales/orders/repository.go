package orders

import (
	"context"
	"errors"
	"fmt"
	"strconv"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/meridian-ims/meridian/internal/platform/db"
	"github.com/meridian-ims/meridian/internal/platform/httpx"
)

type Repository interface {
	WithTx(ctx context.Context, fn func(context.Context, Repository) error) error
	Create(ctx context.Context, order Order) (int64, error)
	Get(ctx context.Context, id int64) (*Order, error)
	List(ctx context.Context, req ListOrdersRequest) ([]OrderWithCustomer, int, error)
	InsertItem(ctx context.Context, item OrderItem) (int64, error)
	DeleteItem(ctx context.Context, orderID, itemID int64) (OrderItem, error)
	ListItems(ctx context.Context, orderID int64) ([]OrderItem, error)
	SetTotal(ctx context.Context, orderID int64, total float64) error
	TransitionStatus(ctx context.Context, id int64, from, to Status, stamp string) error
	SetCancelled(ctx context.Context, id int64, from Status, reason string) error
	Delete(ctx context.Context, id int64) error
	GenerateNumber(ctx context.Context) (string, error)
}

type querier interface {
	Query(ctx context.Context, sql string, args ...any) (pgx.Rows, error)
	QueryRow(ctx context.Context, sql string, args ...any) pgx.Row
	Exec(ctx context.Context, sql string, args ...any) (pgconn.CommandTag, error)
}

type repository struct {
	pool *pgxpool.Pool
	q    querier
}

func NewRepository(pool *pgxpool.Pool) Repository {
	return &repository{pool: pool, q: pool}
}

func (r *repository) WithTx(ctx context.Context, fn func(context.Context, Repository) error) error {
	return db.WithTx(ctx, r.pool, func(tx pgx.Tx) error {
		return fn(ctx, &repository{pool: r.pool, q: tx})
	})
}

const orderColumns = `id, number, customer_id, sales_manager_id, status, shipping_address, billing_address,
total, placed_at, shipped_at, delivered_at, cancelled_at, cancel_reason, created_by, created_at, updated_at`

func scanOrder(row pgx.Row) (*Order, error) {
	var o Order
	err := row.Scan(&o.ID, &o.Number, &o.CustomerID, &o.SalesManagerID, &o.Status, &o.ShippingAddress,
		&o.BillingAddress, &o.Total, &o.PlacedAt, &o.ShippedAt, &o.DeliveredAt, &o.CancelledAt,
		&o.CancelReason, &o.CreatedBy, &o.CreatedAt, &o.UpdatedAt)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, httpx.ErrNotFound
		}
		return nil, err
	}
	return &o, nil
}

func (r *repository) Create(ctx context.Context, order Order) (int64, error) {
	var id int64
	err := r.q.QueryRow(ctx, `INSERT INTO orders
(number, customer_id, sales_manager_id, status, shipping_address, billing_address, total, placed_at, created_by)
VALUES ($1, $2, $3, $4, $5, $6, $7, now(), $8) RETURNING id`,
		order.Number, order.CustomerID, order.SalesManagerID, order.Status,
		order.ShippingAddress, order.BillingAddress, order.Total, order.CreatedBy).Scan(&id)
	if err != nil {
		var pgErr *pgconn.PgError
		if errors.As(err, &pgErr) {
			switch pgErr.Code {
			case "23505":
				return 0, httpx.ErrDuplicate
			case "23503":
				return 0, httpx.ErrNotFound
			}
		}
		return 0, err
	}
	return id, nil
}

func (r *repository) Get(ctx context.Context, id int64) (*Order, error) {
	o, err := scanOrder(r.q.QueryRow(ctx, `SELECT `+orderColumns+` FROM orders WHERE id = $1`, id))
	if err != nil {
		return nil, err
	}
	o.Items, err = r.ListItems(ctx, id)
	if err != nil {
		return nil, err
	}
	return o, nil
}

func (r *repository) List(ctx context.Context, req ListOrdersRequest) ([]OrderWithCustomer, int, error) {
	query := `SELECT o.id, o.number, o.customer_id, o.sales_manager_id, o.status, o.shipping_address,
o.billing_address, o.total, o.placed_at, o.shipped_at, o.delivered_at, o.cancelled_at, o.cancel_reason,
o.created_by, o.created_at, o.updated_at, c.name AS customer_name
FROM orders o JOIN customers c ON c.id = o.customer_id WHERE 1=1`
	countQuery := `SELECT COUNT(*) FROM orders o WHERE 1=1`
	args := []any{}
	argCount := 0

	if req.CustomerID != nil {
		argCount++
		cond := ` AND o.customer_id = $` + strconv.Itoa(argCount)
		query += cond
		countQuery += cond
		args = append(args, *req.CustomerID)
	}
	if req.Status != nil {
		argCount++
		cond := ` AND o.status = $` + strconv.Itoa(argCount)
		query += cond
		countQuery += cond
		args = append(args, *req.Status)
	}

	var total int
	if err := r.q.QueryRow(ctx, countQuery, args...).Scan(&total); err != nil {
		return nil, 0, err
	}

	query += ` ORDER BY o.placed_at DESC, o.id DESC`
	if req.Limit > 0 {
		argCount++
		query += ` LIMIT $` + strconv.Itoa(argCount)
		args = append(args, req.Limit)
		argCount++
		query += ` OFFSET $` + strconv.Itoa(argCount)
		args = append(args, req.Offset)
	}

	rows, err := r.q.Query(ctx, query, args...)
	if err != nil {
		return nil, 0, err
	}
	defer rows.Close()

	var out []OrderWithCustomer
	for rows.Next() {
		var o OrderWithCustomer
		if err := rows.Scan(&o.ID, &o.Number, &o.CustomerID, &o.SalesManagerID, &o.Status, &o.ShippingAddress,
			&o.BillingAddress, &o.Total, &o.PlacedAt, &o.ShippedAt, &o.DeliveredAt, &o.CancelledAt,
			&o.CancelReason, &o.CreatedBy, &o.CreatedAt, &o.UpdatedAt, &o.CustomerName); err != nil {
			return nil, 0, err
		}
		out = append(out, o)
	}
	return out, total, rows.Err()
}

func (r *repository) InsertItem(ctx context.Context, item OrderItem) (int64, error) {
	var id int64
	err := r.q.QueryRow(ctx, `INSERT INTO order_items
(order_id, product_id, warehouse_id, reservation_id, qty, unit_price, line_total)
VALUES ($1, $2, $3, $4, $5, $6, $7) RETURNING id`,
		item.OrderID, item.ProductID, item.WarehouseID, item.ReservationID, item.Qty, item.UnitPrice, item.LineTotal).Scan(&id)
	if err != nil {
		var pgErr *pgconn.PgError
		if errors.As(err, &pgErr) && pgErr.Code == "23503" {
			return 0, httpx.ErrNotFound
		}
		return 0, err
	}
	return id, nil
}

func (r *repository) DeleteItem(ctx context.Context, orderID, itemID int64) (OrderItem, error) {
	var item OrderItem
	err := r.q.QueryRow(ctx, `DELETE FROM order_items WHERE id = $1 AND order_id = $2
RETURNING id, order_id, product_id, warehouse_id, reservation_id, qty, unit_price, line_total`,
		itemID, orderID).Scan(&item.ID, &item.OrderID, &item.ProductID, &item.WarehouseID,
		&item.ReservationID, &item.Qty, &item.UnitPrice, &item.LineTotal)
	if errors.Is(err, pgx.ErrNoRows) {
		return OrderItem{}, httpx.ErrNotFound
	}
	return item, err
}

func (r *repository) ListItems(ctx context.Context, orderID int64) ([]OrderItem, error) {
	rows, err := r.q.Query(ctx, `SELECT id, order_id, product_id, warehouse_id, reservation_id, qty, unit_price, line_total
FROM order_items WHERE order_id = $1 ORDER BY id`, orderID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var items []OrderItem
	for rows.Next() {
		var item OrderItem
		if err := rows.Scan(&item.ID, &item.OrderID, &item.ProductID, &item.WarehouseID,
			&item.ReservationID, &item.Qty, &item.UnitPrice, &item.LineTotal); err != nil {
			return nil, err
		}
		items = append(items, item)
	}
	return items, rows.Err()
}

func (r *repository) SetTotal(ctx context.Context, orderID int64, total float64) error {
	tag, err := r.q.Exec(ctx, `UPDATE orders SET total = $2, updated_at = now() WHERE id = $1`, orderID, total)
	if err != nil {
		return err
	}
	if tag.RowsAffected() == 0 {
		return httpx.ErrNotFound
	}
	return nil
}

// TransitionStatus performs a guarded status move. The stamp column, when
// set, receives now().
func (r *repository) TransitionStatus(ctx context.Context, id int64, from, to Status, stamp string) error {
	query := `UPDATE orders SET status = $3, updated_at = now()`
	switch stamp {
	case "shipped_at", "delivered_at", "cancelled_at":
		query += `, ` + stamp + ` = now()`
	case "":
	default:
		return fmt.Errorf("orders: unknown stamp column %q", stamp)
	}
	query += ` WHERE id = $1 AND status = $2`
	tag, err := r.q.Exec(ctx, query, id, from, to)
	if err != nil {
		return err
	}
	if tag.RowsAffected() == 0 {
		return httpx.ErrInvalidTransition
	}
	return nil
}

func (r *repository) SetCancelled(ctx context.Context, id int64, from Status, reason string) error {
	var reasonArg *string
	if reason != "" {
		reasonArg = &reason
	}
	tag, err := r.q.Exec(ctx, `UPDATE orders
SET status = $3, cancelled_at = now(), cancel_reason = $4, updated_at = now()
WHERE id = $1 AND status = $2`, id, from, StatusCancelled, reasonArg)
	if err != nil {
		return err
	}
	if tag.RowsAffected() == 0 {
		return httpx.ErrInvalidTransition
	}
	return nil
}

func (r *repository) Delete(ctx context.Context, id int64) error {
	if _, err := r.q.Exec(ctx, `DELETE FROM order_items WHERE order_id = $1`, id); err != nil {
		return err
	}
	tag, err := r.q.Exec(ctx, `DELETE FROM orders WHERE id = $1`, id)
	if err != nil {
		return err
	}
	if tag.RowsAffected() == 0 {
		return httpx.ErrNotFound
	}
	return nil
}

func (r *repository) GenerateNumber(ctx context.Context) (string, error) {
	var seq int64
	if err := r.q.QueryRow(ctx, `SELECT nextval('order_number_seq')`).Scan(&seq); err != nil {
		return "", err
	}
	return fmt.Sprintf("ORD-%s-%05d", time.Now().Format("20060102"), seq), nil
}
