package customers

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"strings"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/odyssey-erp/marginboard/internal/platform/db"
	"github.com/odyssey-erp/marginboard/internal/shared"
)

// Repository persists customers. Errors are *shared.StoreError.
type Repository interface {
	List(ctx context.Context, search string, limit, offset int) ([]Customer, int, error)
	Get(ctx context.Context, id string) (Customer, error)
	Create(ctx context.Context, customer Customer) (Customer, error)
	// Delete removes the customer and its styles, returning the number of styles removed.
	Delete(ctx context.Context, id string) (int64, error)
}

type dbtx interface {
	Exec(context.Context, string, ...any) (pgconn.CommandTag, error)
	Query(context.Context, string, ...any) (pgx.Rows, error)
	QueryRow(context.Context, string, ...any) pgx.Row
}

type repository struct {
	db   dbtx
	pool *pgxpool.Pool
}

// NewRepository returns the PostgreSQL backed Repository.
func NewRepository(pool *pgxpool.Pool) Repository {
	return &repository{db: pool, pool: pool}
}

func (r *repository) List(ctx context.Context, search string, limit, offset int) ([]Customer, int, error) {
	var conditions []string
	var args []any
	if search != "" {
		args = append(args, "%"+search+"%")
		conditions = append(conditions, fmt.Sprintf("(code ILIKE $%d OR name ILIKE $%d)", len(args), len(args)))
	}
	where := ""
	if len(conditions) > 0 {
		where = "WHERE " + strings.Join(conditions, " AND ")
	}

	var total int
	if err := r.db.QueryRow(ctx, "SELECT COUNT(*) FROM customers "+where, args...).Scan(&total); err != nil {
		return nil, 0, db.MapError("list customers", err)
	}

	args = append(args, limit, offset)
	query := fmt.Sprintf(`SELECT id, code, name, created_at FROM customers %s
		ORDER BY code LIMIT $%d OFFSET $%d`, where, len(args)-1, len(args))
	rows, err := r.db.Query(ctx, query, args...)
	if err != nil {
		return nil, 0, db.MapError("list customers", err)
	}
	defer rows.Close()

	var out []Customer
	for rows.Next() {
		var c Customer
		if err := rows.Scan(&c.ID, &c.Code, &c.Name, &c.CreatedAt); err != nil {
			return nil, 0, db.MapError("list customers", err)
		}
		out = append(out, c)
	}
	if err := rows.Err(); err != nil {
		return nil, 0, db.MapError("list customers", err)
	}
	return out, total, nil
}

func (r *repository) Get(ctx context.Context, id string) (Customer, error) {
	var c Customer
	err := r.db.QueryRow(ctx, `SELECT id, code, name, created_at FROM customers WHERE id = $1`, id).
		Scan(&c.ID, &c.Code, &c.Name, &c.CreatedAt)
	if err != nil {
		return Customer{}, db.MapError("get customer", err)
	}
	return c, nil
}

func (r *repository) Create(ctx context.Context, customer Customer) (Customer, error) {
	var c Customer
	err := r.db.QueryRow(ctx, `INSERT INTO customers (id, code, name, created_at)
		VALUES ($1, $2, $3, $4) RETURNING id, code, name, created_at`,
		customer.ID, customer.Code, customer.Name, customer.CreatedAt).
		Scan(&c.ID, &c.Code, &c.Name, &c.CreatedAt)
	if err != nil {
		return Customer{}, db.MapError("create customer", err)
	}
	return c, nil
}

func (r *repository) Delete(ctx context.Context, id string) (int64, error) {
	var removed int64
	err := db.WithTx(ctx, r.pool, func(tx pgx.Tx) error {
		tag, err := tx.Exec(ctx, `DELETE FROM styles WHERE customer_id = $1`, id)
		if err != nil {
			return db.MapError("delete customer styles", err)
		}
		removed = tag.RowsAffected()

		tag, err = tx.Exec(ctx, `DELETE FROM customers WHERE id = $1`, id)
		if err != nil {
			return db.MapError("delete customer", err)
		}
		if tag.RowsAffected() == 0 {
			return shared.NewStoreError("delete customer", http.StatusNotFound, shared.ErrNotFound)
		}
		return nil
	})
	if err != nil {
		var storeErr *shared.StoreError
		if !errors.As(err, &storeErr) {
			err = db.MapError("delete customer", err)
		}
		return 0, err
	}
	return removed, nil
}
