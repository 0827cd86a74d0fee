package stock

import (
	"context"
	"errors"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/meridian-ims/meridian/internal/platform/db"
	"github.com/meridian-ims/meridian/internal/platform/httpx"
)

// TxRepository is the ledger surface available inside a transaction.
type TxRepository interface {
	GetLevel(ctx context.Context, productID, warehouseID int64) (Level, error)
	SetOnHand(ctx context.Context, productID, warehouseID, qty int64) (Level, error)
	AdjustOnHand(ctx context.Context, productID, warehouseID, delta int64) (Level, error)
	Reserve(ctx context.Context, productID, warehouseID, qty int64) (Level, error)
	ReleaseReserved(ctx context.Context, productID, warehouseID, qty int64) (Level, error)
	CommitReserved(ctx context.Context, productID, warehouseID, qty int64) (Level, error)
	ListLevels(ctx context.Context, productID int64) ([]Level, error)
	SumOnHand(ctx context.Context, productID int64) (int64, error)
	InsertEntry(ctx context.Context, e Entry) error
	CreateReservation(ctx context.Context, r Reservation) (Reservation, error)
	GetReservation(ctx context.Context, id int64) (Reservation, error)
	ListOrderReservations(ctx context.Context, orderID int64, status string) ([]Reservation, error)
	MarkReservation(ctx context.Context, id int64, from, to string) error
	ListExpiredHeld(ctx context.Context, now time.Time, limit int) ([]Reservation, error)
	LowStock(ctx context.Context, threshold int64) ([]LowStockRow, error)
}

// Repository adds transaction control on top of TxRepository.
type Repository interface {
	TxRepository
	WithTx(ctx context.Context, fn func(context.Context, TxRepository) error) error
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

// NewRepository constructs a postgres backed ledger repository.
func NewRepository(pool *pgxpool.Pool) Repository {
	return &repository{pool: pool, q: pool}
}

func (r *repository) WithTx(ctx context.Context, fn func(context.Context, TxRepository) error) error {
	return db.WithTx(ctx, r.pool, func(tx pgx.Tx) error {
		return fn(ctx, &repository{pool: r.pool, q: tx})
	})
}

const levelColumns = `product_id, warehouse_id, on_hand, reserved, updated_at`

func scanLevel(row pgx.Row) (Level, error) {
	var l Level
	err := row.Scan(&l.ProductID, &l.WarehouseID, &l.OnHand, &l.Reserved, &l.UpdatedAt)
	return l, err
}

// GetLevel returns the ledger row, or a zero level when no row exists yet.
func (r *repository) GetLevel(ctx context.Context, productID, warehouseID int64) (Level, error) {
	l, err := scanLevel(r.q.QueryRow(ctx,
		`SELECT `+levelColumns+` FROM stock_levels WHERE product_id = $1 AND warehouse_id = $2`,
		productID, warehouseID))
	if errors.Is(err, pgx.ErrNoRows) {
		return Level{ProductID: productID, WarehouseID: warehouseID}, nil
	}
	return l, err
}

func (r *repository) SetOnHand(ctx context.Context, productID, warehouseID, qty int64) (Level, error) {
	l, err := scanLevel(r.q.QueryRow(ctx, `INSERT INTO stock_levels (product_id, warehouse_id, on_hand, reserved, updated_at)
VALUES ($1, $2, $3, 0, now())
ON CONFLICT (product_id, warehouse_id) DO UPDATE SET on_hand = EXCLUDED.on_hand, updated_at = now()
RETURNING `+levelColumns, productID, warehouseID, qty))
	if err != nil {
		var pgErr *pgconn.PgError
		if errors.As(err, &pgErr) && pgErr.Code == "23503" {
			return Level{}, httpx.ErrNotFound
		}
		return Level{}, err
	}
	return l, nil
}

// AdjustOnHand applies a delta. Negative deltas are guarded so that the
// remaining on_hand still covers the reserved quantity.
func (r *repository) AdjustOnHand(ctx context.Context, productID, warehouseID, delta int64) (Level, error) {
	if delta >= 0 {
		l, err := scanLevel(r.q.QueryRow(ctx, `INSERT INTO stock_levels (product_id, warehouse_id, on_hand, reserved, updated_at)
VALUES ($1, $2, $3, 0, now())
ON CONFLICT (product_id, warehouse_id) DO UPDATE SET on_hand = stock_levels.on_hand + EXCLUDED.on_hand, updated_at = now()
RETURNING `+levelColumns, productID, warehouseID, delta))
		if err != nil {
			var pgErr *pgconn.PgError
			if errors.As(err, &pgErr) && pgErr.Code == "23503" {
				return Level{}, httpx.ErrNotFound
			}
			return Level{}, err
		}
		return l, nil
	}
	l, err := scanLevel(r.q.QueryRow(ctx, `UPDATE stock_levels
SET on_hand = on_hand + $3, updated_at = now()
WHERE product_id = $1 AND warehouse_id = $2 AND on_hand - reserved >= -$3
RETURNING `+levelColumns, productID, warehouseID, delta))
	if errors.Is(err, pgx.ErrNoRows) {
		return Level{}, httpx.ErrInsufficientStock
	}
	return l, err
}

// Reserve raises the hold if enough available stock exists.
func (r *repository) Reserve(ctx context.Context, productID, warehouseID, qty int64) (Level, error) {
	l, err := scanLevel(r.q.QueryRow(ctx, `UPDATE stock_levels
SET reserved = reserved + $3, updated_at = now()
WHERE product_id = $1 AND warehouse_id = $2 AND on_hand - reserved >= $3
RETURNING `+levelColumns, productID, warehouseID, qty))
	if errors.Is(err, pgx.ErrNoRows) {
		return Level{}, httpx.ErrInsufficientStock
	}
	return l, err
}

// ReleaseReserved lowers the hold without touching on_hand.
func (r *repository) ReleaseReserved(ctx context.Context, productID, warehouseID, qty int64) (Level, error) {
	l, err := scanLevel(r.q.QueryRow(ctx, `UPDATE stock_levels
SET reserved = reserved - $3, updated_at = now()
WHERE product_id = $1 AND warehouse_id = $2 AND reserved >= $3
RETURNING `+levelColumns, productID, warehouseID, qty))
	if errors.Is(err, pgx.ErrNoRows) {
		return Level{}, httpx.ErrInsufficientStock
	}
	return l, err
}

// CommitReserved turns a hold into a real decrement.
func (r *repository) CommitReserved(ctx context.Context, productID, warehouseID, qty int64) (Level, error) {
	l, err := scanLevel(r.q.QueryRow(ctx, `UPDATE stock_levels
SET on_hand = on_hand - $3, reserved = reserved - $3, updated_at = now()
WHERE product_id = $1 AND warehouse_id = $2 AND reserved >= $3 AND on_hand >= $3
RETURNING `+levelColumns, productID, warehouseID, qty))
	if errors.Is(err, pgx.ErrNoRows) {
		return Level{}, httpx.ErrInsufficientStock
	}
	return l, err
}

func (r *repository) ListLevels(ctx context.Context, productID int64) ([]Level, error) {
	rows, err := r.q.Query(ctx,
		`SELECT `+levelColumns+` FROM stock_levels WHERE product_id = $1 ORDER BY warehouse_id`, productID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var levels []Level
	for rows.Next() {
		l, err := scanLevel(rows)
		if err != nil {
			return nil, err
		}
		levels = append(levels, l)
	}
	return levels, rows.Err()
}

func (r *repository) SumOnHand(ctx context.Context, productID int64) (int64, error) {
	var total int64
	err := r.q.QueryRow(ctx,
		`SELECT COALESCE(SUM(on_hand), 0) FROM stock_levels WHERE product_id = $1`, productID).Scan(&total)
	return total, err
}

func (r *repository) InsertEntry(ctx context.Context, e Entry) error {
	_, err := r.q.Exec(ctx, `INSERT INTO stock_entries (product_id, warehouse_id, delta, balance, ref_type, ref_id, created_at)
VALUES ($1, $2, $3, $4, $5, $6, now())`,
		e.ProductID, e.WarehouseID, e.Delta, e.Balance, e.RefType, e.RefID)
	return err
}

const reservationColumns = `id, order_id, product_id, warehouse_id, qty, status, expires_at, created_at`

func scanReservation(row pgx.Row) (Reservation, error) {
	var res Reservation
	err := row.Scan(&res.ID, &res.OrderID, &res.ProductID, &res.WarehouseID, &res.Qty, &res.Status, &res.ExpiresAt, &res.CreatedAt)
	return res, err
}

func (r *repository) CreateReservation(ctx context.Context, res Reservation) (Reservation, error) {
	created, err := scanReservation(r.q.QueryRow(ctx, `INSERT INTO stock_reservations (order_id, product_id, warehouse_id, qty, status, expires_at, created_at)
VALUES ($1, $2, $3, $4, $5, $6, now()) RETURNING `+reservationColumns,
		res.OrderID, res.ProductID, res.WarehouseID, res.Qty, res.Status, res.ExpiresAt))
	if err != nil {
		return Reservation{}, err
	}
	return created, nil
}

func (r *repository) GetReservation(ctx context.Context, id int64) (Reservation, error) {
	res, err := scanReservation(r.q.QueryRow(ctx,
		`SELECT `+reservationColumns+` FROM stock_reservations WHERE id = $1`, id))
	if errors.Is(err, pgx.ErrNoRows) {
		return Reservation{}, httpx.ErrNotFound
	}
	return res, err
}

func (r *repository) ListOrderReservations(ctx context.Context, orderID int64, status string) ([]Reservation, error) {
	query := `SELECT ` + reservationColumns + ` FROM stock_reservations WHERE order_id = $1`
	args := []any{orderID}
	if status != "" {
		query += ` AND status = $2`
		args = append(args, status)
	}
	rows, err := r.q.Query(ctx, query+` ORDER BY id`, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var out []Reservation
	for rows.Next() {
		res, err := scanReservation(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, res)
	}
	return out, rows.Err()
}

// MarkReservation moves a reservation between statuses. The expected
// source status makes the transition exactly-once.
func (r *repository) MarkReservation(ctx context.Context, id int64, from, to string) error {
	tag, err := r.q.Exec(ctx,
		`UPDATE stock_reservations SET status = $3 WHERE id = $1 AND status = $2`, id, from, to)
	if err != nil {
		return err
	}
	if tag.RowsAffected() == 0 {
		return httpx.ErrInvalidTransition
	}
	return nil
}

func (r *repository) ListExpiredHeld(ctx context.Context, now time.Time, limit int) ([]Reservation, error) {
	rows, err := r.q.Query(ctx, `SELECT `+reservationColumns+` FROM stock_reservations
WHERE status = $1 AND expires_at < $2 ORDER BY expires_at LIMIT $3`, ReservationHeld, now, limit)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var out []Reservation
	for rows.Next() {
		res, err := scanReservation(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, res)
	}
	return out, rows.Err()
}

func (r *repository) LowStock(ctx context.Context, threshold int64) ([]LowStockRow, error) {
	rows, err := r.q.Query(ctx, `SELECT p.id, p.sku, p.name, sl.warehouse_id, sl.on_hand, sl.reserved
FROM stock_levels sl JOIN products p ON p.id = sl.product_id
WHERE sl.on_hand - sl.reserved < $1 AND p.is_active ORDER BY sl.on_hand - sl.reserved, p.sku`, threshold)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var out []LowStockRow
	for rows.Next() {
		var row LowStockRow
		if err := rows.Scan(&row.ProductID, &row.SKU, &row.Name, &row.WarehouseID, &row.OnHand, &row.Reserved); err != nil {
			return nil, err
		}
		out = append(out, row)
	}
	return out, rows.Err()
}
