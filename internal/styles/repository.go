package styles

import (
	"context"
	"fmt"
	"net/http"
	"strconv"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/odyssey-erp/marginboard/internal/platform/db"
	"github.com/odyssey-erp/marginboard/internal/shared"
)

// Store is the record store contract. Every method may fail with a *shared.StoreError.
type Store interface {
	List(ctx context.Context, filter Filter) ([]Style, error)
	Get(ctx context.Context, customerID, id string) (Style, error)
	Create(ctx context.Context, style Style) (Style, error)
	Update(ctx context.Context, customerID, id string, patch Patch) (Style, error)
	Delete(ctx context.Context, customerID, id string) error
}

type repository struct {
	pool *pgxpool.Pool
}

// NewRepository returns the PostgreSQL backed Store.
func NewRepository(pool *pgxpool.Pool) Store {
	return &repository{pool: pool}
}

const selectColumns = `id, customer_id, style_code, factory, delivery_date, description, fabric_trim, style_type,
	units, pack, price, rate, extra_cost, selling_price, created_at, updated_at`

func scanStyle(row pgx.Row) (Style, error) {
	var s Style
	err := row.Scan(&s.ID, &s.CustomerID, &s.StyleCode, &s.Factory, &s.DeliveryDate, &s.Description, &s.FabricTrim, &s.Type,
		&s.Units, &s.Pack, &s.Price, &s.Rate, &s.ExtraCost, &s.SellingPrice, &s.CreatedAt, &s.UpdatedAt)
	return s, err
}

func (r *repository) List(ctx context.Context, filter Filter) ([]Style, error) {
	query := `SELECT ` + selectColumns + ` FROM styles WHERE customer_id = $1`
	args := []any{filter.CustomerID}

	if filter.Search != "" {
		args = append(args, "%"+filter.Search+"%")
		pos := strconv.Itoa(len(args))
		query += ` AND (style_code ILIKE $` + pos + ` OR description ILIKE $` + pos + ` OR factory ILIKE $` + pos + `)`
	}
	query += " ORDER BY " + sortOrder(filter.SortBy, filter.SortDir)

	rows, err := r.pool.Query(ctx, query, args...)
	if err != nil {
		return nil, db.MapError("list", err)
	}
	defer rows.Close()

	var out []Style
	for rows.Next() {
		s, err := scanStyle(rows)
		if err != nil {
			return nil, db.MapError("list", err)
		}
		out = append(out, s)
	}
	if err := rows.Err(); err != nil {
		return nil, db.MapError("list", err)
	}
	return out, nil
}

func (r *repository) Get(ctx context.Context, customerID, id string) (Style, error) {
	query := `SELECT ` + selectColumns + ` FROM styles WHERE customer_id = $1 AND id = $2`
	s, err := scanStyle(r.pool.QueryRow(ctx, query, customerID, id))
	if err != nil {
		return Style{}, db.MapError("get", err)
	}
	return s, nil
}

func (r *repository) Create(ctx context.Context, style Style) (Style, error) {
	if style.ID == "" {
		style.ID = uuid.NewString()
	}
	now := time.Now().UTC()
	query := `INSERT INTO styles (id, customer_id, style_code, factory, delivery_date, description, fabric_trim, style_type,
		units, pack, price, rate, extra_cost, selling_price, created_at, updated_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13, $14, $15, $15)
		RETURNING ` + selectColumns
	created, err := scanStyle(r.pool.QueryRow(ctx, query,
		style.ID, style.CustomerID, style.StyleCode, style.Factory, style.DeliveryDate, style.Description, style.FabricTrim, style.Type,
		style.Units, style.Pack, style.Price, style.Rate, style.ExtraCost, style.SellingPrice, now))
	if err != nil {
		return Style{}, db.MapError("create", err)
	}
	return created, nil
}

func (r *repository) Update(ctx context.Context, customerID, id string, patch Patch) (Style, error) {
	query := "UPDATE styles SET updated_at = NOW()"
	var args []any
	for _, f := range patch.Fields() {
		spec, ok := specByName[f]
		if !ok {
			return Style{}, shared.NewStoreError("update", http.StatusUnprocessableEntity, &ErrUnknownField{Field: string(f)})
		}
		args = append(args, patch[f])
		query += fmt.Sprintf(", %s = $%d", spec.column, len(args))
	}
	args = append(args, customerID, id)
	query += fmt.Sprintf(" WHERE customer_id = $%d AND id = $%d RETURNING %s", len(args)-1, len(args), selectColumns)

	updated, err := scanStyle(r.pool.QueryRow(ctx, query, args...))
	if err != nil {
		return Style{}, db.MapError("update", err)
	}
	return updated, nil
}

func (r *repository) Delete(ctx context.Context, customerID, id string) error {
	tag, err := r.pool.Exec(ctx, `DELETE FROM styles WHERE customer_id = $1 AND id = $2`, customerID, id)
	if err != nil {
		return db.MapError("delete", err)
	}
	if tag.RowsAffected() == 0 {
		return shared.NewStoreError("delete", http.StatusNotFound, shared.ErrNotFound)
	}
	return nil
}

func sortOrder(sortBy, sortDir string) string {
	dir := "ASC"
	if sortDir == "desc" {
		dir = "DESC"
	}
	switch sortBy {
	case "style_code":
		return "style_code " + dir + ", id"
	case "factory":
		return "factory " + dir + ", id"
	case "delivery_date":
		return "delivery_date " + dir + ", id"
	case "units":
		return "units " + dir + " NULLS LAST, id"
	case "selling_price":
		return "selling_price " + dir + " NULLS LAST, id"
	default:
		return "created_at " + dir + ", id"
	}
}
