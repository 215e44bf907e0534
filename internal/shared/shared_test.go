package shared

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestUserMessage(t *testing.T) {
	cases := map[int]string{
		http.StatusUnauthorized:        "Session expired, please sign in again",
		http.StatusForbidden:           "Permission denied",
		http.StatusNotFound:            "Record not found, it may have been deleted",
		http.StatusConflict:            "Conflicting change, refresh and try again",
		http.StatusTooManyRequests:     "Too many requests, please retry shortly",
		http.StatusInternalServerError: "Failed to save, please retry",
		0:                              "Failed to save, please retry",
	}
	for status, want := range cases {
		err := fmt.Errorf("wrapped: %w", NewStoreError("update", status, errors.New("boom")))
		assert.Equal(t, want, UserMessage(err), "status %d", status)
	}
	assert.Empty(t, UserMessage(nil))
	assert.Equal(t, "Failed to save, please retry", UserMessage(errors.New("plain")))
}

func TestStoreErrorUnwrapAndStatus(t *testing.T) {
	err := NewStoreError("get", http.StatusNotFound, ErrNotFound)
	assert.ErrorIs(t, err, ErrNotFound)
	assert.Equal(t, http.StatusNotFound, StatusOf(err))
	assert.Zero(t, StatusOf(errors.New("no status")))
	assert.Equal(t, "store: get: status 404: not found", err.Error())
	assert.Equal(t, "store: list: timeout", NewStoreError("list", 0, errors.New("timeout")).Error())
}

func TestPagination(t *testing.T) {
	p := NewPagination(3, 10, 25)
	assert.Equal(t, Pagination{Page: 3, PerPage: 10, Total: 25, TotalPages: 3}, p)
	assert.Equal(t, 20, p.Offset())

	p = NewPagination(0, 0, 0)
	assert.Equal(t, 1, p.Page)
	assert.Equal(t, 20, p.PerPage)
	assert.Zero(t, p.TotalPages)
	assert.Zero(t, p.Offset())
}

func TestPrincipalContext(t *testing.T) {
	assert.Empty(t, PrincipalFromContext(context.Background()))
	ctx := ContextWithPrincipal(context.Background(), "token:abcd")
	assert.Equal(t, "token:abcd", PrincipalFromContext(ctx))
}
