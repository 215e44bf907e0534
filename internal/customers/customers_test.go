package customers

import (
	"context"
	"encoding/json"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"sort"
	"strings"
	"sync"
	"testing"

	"github.com/go-chi/chi/v5"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/odyssey-erp/marginboard/internal/shared"
	"github.com/odyssey-erp/marginboard/internal/validation"
)

type memoryRepo struct {
	mu        sync.Mutex
	customers map[string]Customer
	styles    map[string]int64
}

func newMemoryRepo() *memoryRepo {
	return &memoryRepo{customers: map[string]Customer{}, styles: map[string]int64{}}
}

func (m *memoryRepo) List(ctx context.Context, search string, limit, offset int) ([]Customer, int, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	var all []Customer
	for _, c := range m.customers {
		if search == "" || strings.Contains(strings.ToLower(c.Name+" "+c.Code), strings.ToLower(search)) {
			all = append(all, c)
		}
	}
	sort.Slice(all, func(i, j int) bool { return all[i].Code < all[j].Code })
	total := len(all)
	if offset >= total {
		return nil, total, nil
	}
	end := offset + limit
	if end > total {
		end = total
	}
	return all[offset:end], total, nil
}

func (m *memoryRepo) Get(ctx context.Context, id string) (Customer, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	c, ok := m.customers[id]
	if !ok {
		return Customer{}, shared.NewStoreError("get customer", http.StatusNotFound, shared.ErrNotFound)
	}
	return c, nil
}

func (m *memoryRepo) Create(ctx context.Context, c Customer) (Customer, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	for _, existing := range m.customers {
		if existing.Code == c.Code {
			return Customer{}, shared.NewStoreError("create customer", http.StatusConflict, assert.AnError)
		}
	}
	m.customers[c.ID] = c
	return c, nil
}

func (m *memoryRepo) Delete(ctx context.Context, id string) (int64, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if _, ok := m.customers[id]; !ok {
		return 0, shared.NewStoreError("delete customer", http.StatusNotFound, shared.ErrNotFound)
	}
	delete(m.customers, id)
	removed := m.styles[id]
	delete(m.styles, id)
	return removed, nil
}

type recordingInvalidator struct {
	mu  sync.Mutex
	ids []string
}

func (r *recordingInvalidator) Invalidate(ctx context.Context, customerID string) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.ids = append(r.ids, customerID)
	return nil
}

func quietLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

func TestServiceCreateValidatesRequest(t *testing.T) {
	svc := NewService(newMemoryRepo(), nil, quietLogger())

	_, err := svc.Create(context.Background(), CreateRequest{Code: "  ", Name: strings.Repeat("x", 201)})
	var verrs *validation.Errors
	require.ErrorAs(t, err, &verrs)
	require.Contains(t, verrs.Fields, "code")
	assert.Equal(t, validation.KindRequired, verrs.Fields["code"].Kind)
	require.Contains(t, verrs.Fields, "name")
	assert.Equal(t, "must be at most 200 characters", verrs.Fields["name"].Message)

	created, err := svc.Create(context.Background(), CreateRequest{Code: " ACME ", Name: "Acme Apparel"})
	require.NoError(t, err)
	assert.NotEmpty(t, created.ID)
	assert.Equal(t, "ACME", created.Code)

	_, err = svc.Create(context.Background(), CreateRequest{Code: "ACME", Name: "Other"})
	assert.Equal(t, http.StatusConflict, shared.StatusOf(err))
}

func TestServiceListPages(t *testing.T) {
	repo := newMemoryRepo()
	svc := NewService(repo, nil, quietLogger())
	for _, code := range []string{"A", "B", "C", "D", "E"} {
		_, err := svc.Create(context.Background(), CreateRequest{Code: code, Name: "Customer " + code})
		require.NoError(t, err)
	}

	list, page, err := svc.List(context.Background(), ListRequest{Page: 2, PerPage: 2})
	require.NoError(t, err)
	require.Len(t, list, 2)
	assert.Equal(t, "C", list[0].Code)
	assert.Equal(t, shared.Pagination{Page: 2, PerPage: 2, Total: 5, TotalPages: 3}, page)

	_, _, err = svc.List(context.Background(), ListRequest{PerPage: 1000})
	assert.True(t, validation.IsValidation(err))
}

func TestServiceDeleteInvalidatesSummary(t *testing.T) {
	repo := newMemoryRepo()
	inv := &recordingInvalidator{}
	svc := NewService(repo, inv, quietLogger())
	created, err := svc.Create(context.Background(), CreateRequest{Code: "ACME", Name: "Acme"})
	require.NoError(t, err)
	repo.styles[created.ID] = 3

	require.NoError(t, svc.Delete(context.Background(), created.ID))
	assert.Equal(t, []string{created.ID}, inv.ids)

	err = svc.Delete(context.Background(), created.ID)
	assert.Equal(t, http.StatusNotFound, shared.StatusOf(err))
	assert.ErrorIs(t, svc.Delete(context.Background(), ""), shared.ErrInvalidID)
}

func newTestRouter(svc *Service) chi.Router {
	h := NewHandler(quietLogger(), svc)
	r := chi.NewRouter()
	r.Route("/api/customers", func(r chi.Router) {
		h.MountRoutes(r)
		r.Get("/{customerID}", h.Get)
		r.Delete("/{customerID}", h.Delete)
	})
	return r
}

func TestHandlerLifecycle(t *testing.T) {
	r := newTestRouter(NewService(newMemoryRepo(), nil, quietLogger()))

	rec := httptest.NewRecorder()
	r.ServeHTTP(rec, httptest.NewRequest(http.MethodPost, "/api/customers", strings.NewReader(`{"code":"ACME","name":"Acme"}`)))
	require.Equal(t, http.StatusCreated, rec.Code)
	var created Customer
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &created))

	rec = httptest.NewRecorder()
	r.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/api/customers?search=acm", nil))
	require.Equal(t, http.StatusOK, rec.Code)
	var listed listResponse
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &listed))
	require.Len(t, listed.Customers, 1)
	assert.Equal(t, 1, listed.Pagination.Total)

	rec = httptest.NewRecorder()
	r.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/api/customers/"+created.ID, nil))
	assert.Equal(t, http.StatusOK, rec.Code)

	rec = httptest.NewRecorder()
	r.ServeHTTP(rec, httptest.NewRequest(http.MethodDelete, "/api/customers/"+created.ID, nil))
	assert.Equal(t, http.StatusNoContent, rec.Code)

	rec = httptest.NewRecorder()
	r.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/api/customers/"+created.ID, nil))
	assert.Equal(t, http.StatusNotFound, rec.Code)
}

func TestHandlerCreateRejectsInvalidBody(t *testing.T) {
	r := newTestRouter(NewService(newMemoryRepo(), nil, quietLogger()))

	rec := httptest.NewRecorder()
	r.ServeHTTP(rec, httptest.NewRequest(http.MethodPost, "/api/customers", strings.NewReader(`{"name":"No code"}`)))
	assert.Equal(t, http.StatusUnprocessableEntity, rec.Code)
	assert.Contains(t, rec.Body.String(), "code")

	rec = httptest.NewRecorder()
	r.ServeHTTP(rec, httptest.NewRequest(http.MethodPost, "/api/customers", strings.NewReader(`{`)))
	assert.Equal(t, http.StatusBadRequest, rec.Code)
}
