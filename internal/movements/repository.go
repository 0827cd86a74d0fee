package movements

import (
	"context"
	"errors"
	"strconv"
	"strings"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/meridian-ims/meridian/internal/platform/httpx"
)

type Repository interface {
	Create(ctx context.Context, m Movement) (int64, error)
	Get(ctx context.Context, id int64) (*Movement, error)
	List(ctx context.Context, req ListMovementsRequest) ([]Movement, int, error)
	Update(ctx context.Context, id int64, req UpdateMovementRequest) error
	TransitionStatus(ctx context.Context, id int64, from, to Status) error
	Delete(ctx context.Context, id int64) error
}

type querier interface {
	Query(ctx context.Context, sql string, args ...any) (pgx.Rows, error)
	QueryRow(ctx context.Context, sql string, args ...any) pgx.Row
	Exec(ctx context.Context, sql string, args ...any) (pgconn.CommandTag, error)
}

type SQLRepository struct {
	pool *pgxpool.Pool
	q    querier
}

func NewRepository(pool *pgxpool.Pool) *SQLRepository {
	return &SQLRepository{pool: pool, q: pool}
}

const movementColumns = `id, product_id, source_warehouse_id, destination_warehouse_id,
	qty, status, movement_date, notes, created_by, completed_at, created_at, updated_at`

func scanMovement(row pgx.Row) (Movement, error) {
	var m Movement
	err := row.Scan(&m.ID, &m.ProductID, &m.SourceWarehouseID, &m.DestWarehouseID,
		&m.Qty, &m.Status, &m.MovementDate, &m.Notes, &m.CreatedBy,
		&m.CompletedAt, &m.CreatedAt, &m.UpdatedAt)
	return m, err
}

func (r *SQLRepository) Create(ctx context.Context, m Movement) (int64, error) {
	var id int64
	err := r.q.QueryRow(ctx, `
		INSERT INTO stock_movements
			(product_id, source_warehouse_id, destination_warehouse_id, qty,
			 status, movement_date, notes, created_by)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8)
		RETURNING id`,
		m.ProductID, m.SourceWarehouseID, m.DestWarehouseID, m.Qty,
		m.Status, m.MovementDate, m.Notes, m.CreatedBy).Scan(&id)
	if err != nil {
		var pgErr *pgconn.PgError
		if errors.As(err, &pgErr) && pgErr.Code == "23503" {
			return 0, httpx.ErrNotFound
		}
		return 0, err
	}
	return id, nil
}

func (r *SQLRepository) Get(ctx context.Context, id int64) (*Movement, error) {
	m, err := scanMovement(r.q.QueryRow(ctx,
		`SELECT `+movementColumns+` FROM stock_movements WHERE id = $1`, id))
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, httpx.ErrNotFound
		}
		return nil, err
	}
	return &m, nil
}

func (r *SQLRepository) List(ctx context.Context, req ListMovementsRequest) ([]Movement, int, error) {
	var (
		conds    []string
		args     []any
		argCount = 1
	)
	if req.ProductID != nil {
		conds = append(conds, "product_id = $"+strconv.Itoa(argCount))
		args = append(args, *req.ProductID)
		argCount++
	}
	if req.WarehouseID != nil {
		conds = append(conds, "(source_warehouse_id = $"+strconv.Itoa(argCount)+
			" OR destination_warehouse_id = $"+strconv.Itoa(argCount)+")")
		args = append(args, *req.WarehouseID)
		argCount++
	}
	if req.Status != nil {
		conds = append(conds, "status = $"+strconv.Itoa(argCount))
		args = append(args, *req.Status)
		argCount++
	}
	where := ""
	if len(conds) > 0 {
		where = " WHERE " + strings.Join(conds, " AND ")
	}

	var total int
	if err := r.q.QueryRow(ctx, "SELECT COUNT(*) FROM stock_movements"+where, args...).Scan(&total); err != nil {
		return nil, 0, err
	}

	query := `SELECT ` + movementColumns + ` FROM stock_movements` + where +
		` ORDER BY movement_date DESC, id DESC` +
		` LIMIT $` + strconv.Itoa(argCount) + ` OFFSET $` + strconv.Itoa(argCount+1)
	args = append(args, req.Limit, req.Offset)

	rows, err := r.q.Query(ctx, query, args...)
	if err != nil {
		return nil, 0, err
	}
	defer rows.Close()

	var out []Movement
	for rows.Next() {
		m, err := scanMovement(rows)
		if err != nil {
			return nil, 0, err
		}
		out = append(out, m)
	}
	return out, total, rows.Err()
}

func (r *SQLRepository) Update(ctx context.Context, id int64, req UpdateMovementRequest) error {
	var (
		sets     []string
		args     []any
		argCount = 1
	)
	if req.Qty != nil {
		sets = append(sets, "qty = $"+strconv.Itoa(argCount))
		args = append(args, *req.Qty)
		argCount++
	}
	if req.MovementDate != nil {
		sets = append(sets, "movement_date = $"+strconv.Itoa(argCount))
		args = append(args, *req.MovementDate)
		argCount++
	}
	if req.Notes != nil {
		sets = append(sets, "notes = $"+strconv.Itoa(argCount))
		args = append(args, *req.Notes)
		argCount++
	}
	if len(sets) == 0 {
		return nil
	}
	sets = append(sets, "updated_at = now()")
	args = append(args, id)

	tag, err := r.q.Exec(ctx,
		"UPDATE stock_movements SET "+strings.Join(sets, ", ")+" WHERE id = $"+strconv.Itoa(argCount),
		args...)
	if err != nil {
		return err
	}
	if tag.RowsAffected() == 0 {
		return httpx.ErrNotFound
	}
	return nil
}

// TransitionStatus flips status only when the row still carries the expected
// one, making each transition exactly-once under concurrency.
func (r *SQLRepository) TransitionStatus(ctx context.Context, id int64, from, to Status) error {
	stamp := ""
	if to == StatusCompleted {
		stamp = ", completed_at = now()"
	}
	tag, err := r.q.Exec(ctx,
		"UPDATE stock_movements SET status = $3, updated_at = now()"+stamp+
			" WHERE id = $1 AND status = $2",
		id, from, to)
	if err != nil {
		return err
	}
	if tag.RowsAffected() == 0 {
		return httpx.ErrInvalidTransition
	}
	return nil
}

func (r *SQLRepository) Delete(ctx context.Context, id int64) error {
	tag, err := r.q.Exec(ctx, `DELETE FROM stock_movements WHERE id = $1`, id)
	if err != nil {
		return err
	}
	if tag.RowsAffected() == 0 {
		return httpx.ErrNotFound
	}
	return nil
}
