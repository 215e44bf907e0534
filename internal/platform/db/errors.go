package db

import (
	"errors"
	"net/http"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"

	"github.com/odyssey-erp/marginboard/internal/shared"
)

// MapError attaches an HTTP-like status to database failures so the retry
// executor can classify them. Driver and network failures carry no status.
func MapError(op string, err error) error {
	if err == nil {
		return nil
	}
	if errors.Is(err, pgx.ErrNoRows) {
		return shared.NewStoreError(op, http.StatusNotFound, shared.ErrNotFound)
	}
	var pgErr *pgconn.PgError
	if errors.As(err, &pgErr) {
		switch pgErr.Code {
		case "23505":
			return shared.NewStoreError(op, http.StatusConflict, err)
		case "23514", "23503", "22P02":
			return shared.NewStoreError(op, http.StatusUnprocessableEntity, err)
		}
	}
	return shared.NewStoreError(op, 0, err)
}
