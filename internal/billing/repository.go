package billing

import (
	"context"
	"errors"
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/meridian-ims/meridian/internal/platform/db"
	"github.com/meridian-ims/meridian/internal/platform/httpx"
)

type Repository interface {
	WithTx(ctx context.Context, fn func(context.Context, Repository) error) error
	CreateInvoice(ctx context.Context, inv Invoice) (int64, error)
	GetInvoice(ctx context.Context, id int64) (*Invoice, error)
	GetInvoiceForUpdate(ctx context.Context, id int64) (*Invoice, error)
	ListInvoices(ctx context.Context, req ListInvoicesRequest) ([]Invoice, int, error)
	ListOutstanding(ctx context.Context) ([]Invoice, error)
	TransitionStatus(ctx context.Context, id int64, from, to InvoiceStatus) error
	SetPaid(ctx context.Context, id int64, paid float64, status InvoiceStatus) error
	InsertPayment(ctx context.Context, p Payment) (int64, error)
	ListPayments(ctx context.Context, invoiceID int64) ([]Payment, error)
	GenerateInvoiceNumber(ctx context.Context) (string, error)
	GeneratePaymentNumber(ctx context.Context) (string, error)
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

const invoiceColumns = `id, number, order_id, customer_id, subtotal, tax_rate, tax_amount,
total, paid, status, due_date, issued_at, created_at, updated_at`

func scanInvoice(row pgx.Row) (*Invoice, error) {
	var inv Invoice
	err := row.Scan(&inv.ID, &inv.Number, &inv.OrderID, &inv.CustomerID, &inv.Subtotal,
		&inv.TaxRate, &inv.TaxAmount, &inv.Total, &inv.Paid, &inv.Status, &inv.DueDate,
		&inv.IssuedAt, &inv.CreatedAt, &inv.UpdatedAt)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, httpx.ErrNotFound
		}
		return nil, err
	}
	return &inv, nil
}

func (r *repository) CreateInvoice(ctx context.Context, inv Invoice) (int64, error) {
	var id int64
	err := r.q.QueryRow(ctx, `INSERT INTO invoices
(number, order_id, customer_id, subtotal, tax_rate, tax_amount, total, paid, status, due_date)
VALUES ($1, $2, $3, $4, $5, $6, $7, 0, $8, $9) RETURNING id`,
		inv.Number, inv.OrderID, inv.CustomerID, inv.Subtotal, inv.TaxRate,
		inv.TaxAmount, inv.Total, inv.Status, inv.DueDate).Scan(&id)
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

func (r *repository) GetInvoice(ctx context.Context, id int64) (*Invoice, error) {
	return scanInvoice(r.q.QueryRow(ctx, `SELECT `+invoiceColumns+` FROM invoices WHERE id = $1`, id))
}

// GetInvoiceForUpdate locks the invoice row for the rest of the transaction
// so concurrent payment registrations serialize on it.
func (r *repository) GetInvoiceForUpdate(ctx context.Context, id int64) (*Invoice, error) {
	return scanInvoice(r.q.QueryRow(ctx, `SELECT `+invoiceColumns+` FROM invoices WHERE id = $1 FOR UPDATE`, id))
}

func (r *repository) ListInvoices(ctx context.Context, req ListInvoicesRequest) ([]Invoice, int, error) {
	var (
		conds    []string
		args     []any
		argCount = 1
	)
	if req.CustomerID != nil {
		conds = append(conds, "customer_id = $"+strconv.Itoa(argCount))
		args = append(args, *req.CustomerID)
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
	if err := r.q.QueryRow(ctx, "SELECT COUNT(*) FROM invoices"+where, args...).Scan(&total); err != nil {
		return nil, 0, err
	}

	query := `SELECT ` + invoiceColumns + ` FROM invoices` + where +
		` ORDER BY created_at DESC, id DESC` +
		` LIMIT $` + strconv.Itoa(argCount) + ` OFFSET $` + strconv.Itoa(argCount+1)
	args = append(args, req.Limit, req.Offset)

	rows, err := r.q.Query(ctx, query, args...)
	if err != nil {
		return nil, 0, err
	}
	defer rows.Close()

	var out []Invoice
	for rows.Next() {
		inv, err := scanInvoice(rows)
		if err != nil {
			return nil, 0, err
		}
		out = append(out, *inv)
	}
	return out, total, rows.Err()
}

func (r *repository) ListOutstanding(ctx context.Context) ([]Invoice, error) {
	rows, err := r.q.Query(ctx, `SELECT `+invoiceColumns+` FROM invoices
WHERE status IN ('ISSUED', 'PARTIAL') ORDER BY due_date`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []Invoice
	for rows.Next() {
		inv, err := scanInvoice(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, *inv)
	}
	return out, rows.Err()
}

func (r *repository) TransitionStatus(ctx context.Context, id int64, from, to InvoiceStatus) error {
	stamp := ""
	if to == InvoiceIssued {
		stamp = ", issued_at = now()"
	}
	tag, err := r.q.Exec(ctx,
		"UPDATE invoices SET status = $3, updated_at = now()"+stamp+" WHERE id = $1 AND status = $2",
		id, from, to)
	if err != nil {
		return err
	}
	if tag.RowsAffected() == 0 {
		return httpx.ErrInvalidTransition
	}
	return nil
}

func (r *repository) SetPaid(ctx context.Context, id int64, paid float64, status InvoiceStatus) error {
	tag, err := r.q.Exec(ctx,
		`UPDATE invoices SET paid = $2, status = $3, updated_at = now() WHERE id = $1`,
		id, paid, status)
	if err != nil {
		return err
	}
	if tag.RowsAffected() == 0 {
		return httpx.ErrNotFound
	}
	return nil
}

func (r *repository) InsertPayment(ctx context.Context, p Payment) (int64, error) {
	var id int64
	err := r.q.QueryRow(ctx, `INSERT INTO payments
(number, invoice_id, amount, method, paid_at, note)
VALUES ($1, $2, $3, $4, $5, $6) RETURNING id`,
		p.Number, p.InvoiceID, p.Amount, p.Method, p.PaidAt, p.Note).Scan(&id)
	if err != nil {
		var pgErr *pgconn.PgError
		if errors.As(err, &pgErr) && pgErr.Code == "23503" {
			return 0, httpx.ErrNotFound
		}
		return 0, err
	}
	return id, nil
}

func (r *repository) ListPayments(ctx context.Context, invoiceID int64) ([]Payment, error) {
	rows, err := r.q.Query(ctx, `SELECT id, number, invoice_id, amount, method, paid_at, note, created_at
FROM payments WHERE invoice_id = $1 ORDER BY paid_at, id`, invoiceID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []Payment
	for rows.Next() {
		var p Payment
		if err := rows.Scan(&p.ID, &p.Number, &p.InvoiceID, &p.Amount, &p.Method,
			&p.PaidAt, &p.Note, &p.CreatedAt); err != nil {
			return nil, err
		}
		out = append(out, p)
	}
	return out, rows.Err()
}

func (r *repository) GenerateInvoiceNumber(ctx context.Context) (string, error) {
	var seq int64
	if err := r.q.QueryRow(ctx, `SELECT nextval('invoice_number_seq')`).Scan(&seq); err != nil {
		return "", err
	}
	return fmt.Sprintf("INV-%s-%05d", time.Now().Format("20060102"), seq), nil
}

func (r *repository) GeneratePaymentNumber(ctx context.Context) (string, error) {
	var seq int64
	if err := r.q.QueryRow(ctx, `SELECT nextval('payment_number_seq')`).Scan(&seq); err != nil {
		return "", err
	}
	return fmt.Sprintf("PAY-%s-%05d", time.Now().Format("20060102"), seq), nil
}
