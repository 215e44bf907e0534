package e2e

import (
	"bytes"
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
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/gorilla/websocket"
	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"golang.org/x/crypto/bcrypt"

	"github.com/odyssey-erp/marginboard/internal/app"
	"github.com/odyssey-erp/marginboard/internal/costing"
	"github.com/odyssey-erp/marginboard/internal/customers"
	"github.com/odyssey-erp/marginboard/internal/livesync"
	"github.com/odyssey-erp/marginboard/internal/observability"
	"github.com/odyssey-erp/marginboard/internal/portfolio"
	"github.com/odyssey-erp/marginboard/internal/resilience"
	"github.com/odyssey-erp/marginboard/internal/shared"
	"github.com/odyssey-erp/marginboard/internal/styles"
	"github.com/odyssey-erp/marginboard/internal/styles/export"
	"github.com/odyssey-erp/marginboard/internal/validation"
)

const token = "e2e-token"

type styleStore struct {
	mu      sync.Mutex
	records map[string]styles.Style
}

func (m *styleStore) List(_ context.Context, f styles.Filter) ([]styles.Style, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	var out []styles.Style
	for _, s := range m.records {
		if s.CustomerID == f.CustomerID {
			out = append(out, s.Clone())
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].StyleCode < out[j].StyleCode })
	return out, nil
}

func (m *styleStore) Get(_ context.Context, customerID, id string) (styles.Style, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	s, ok := m.records[id]
	if !ok || s.CustomerID != customerID {
		return styles.Style{}, shared.NewStoreError("get", http.StatusNotFound, shared.ErrNotFound)
	}
	return s.Clone(), nil
}

func (m *styleStore) Create(_ context.Context, s styles.Style) (styles.Style, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	s.CreatedAt, s.UpdatedAt = time.Now(), time.Now()
	m.records[s.ID] = s.Clone()
	return s, nil
}

func (m *styleStore) Update(_ context.Context, customerID, id string, p styles.Patch) (styles.Style, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	s, ok := m.records[id]
	if !ok || s.CustomerID != customerID {
		return styles.Style{}, shared.NewStoreError("update", http.StatusNotFound, shared.ErrNotFound)
	}
	s = p.Apply(s)
	s.UpdatedAt = time.Now()
	m.records[id] = s
	return s.Clone(), nil
}

func (m *styleStore) Delete(_ context.Context, customerID, id string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	s, ok := m.records[id]
	if !ok || s.CustomerID != customerID {
		return shared.NewStoreError("delete", http.StatusNotFound, shared.ErrNotFound)
	}
	delete(m.records, id)
	return nil
}

type customerStore struct {
	mu   sync.Mutex
	byID map[string]customers.Customer
}

func (m *customerStore) List(context.Context, string, int, int) ([]customers.Customer, int, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	out := make([]customers.Customer, 0, len(m.byID))
	for _, c := range m.byID {
		out = append(out, c)
	}
	return out, len(out), nil
}

func (m *customerStore) Get(_ context.Context, id string) (customers.Customer, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	c, ok := m.byID[id]
	if !ok {
		return customers.Customer{}, shared.NewStoreError("get customer", http.StatusNotFound, shared.ErrNotFound)
	}
	return c, nil
}

func (m *customerStore) Create(_ context.Context, c customers.Customer) (customers.Customer, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.byID[c.ID] = c
	return c, nil
}

func (m *customerStore) Delete(_ context.Context, id string) (int64, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	delete(m.byID, id)
	return 0, nil
}

func newServer(t *testing.T) *httptest.Server {
	t.Helper()
	logger := slog.New(slog.NewTextHandler(io.Discard, nil))
	mr := miniredis.RunT(t)
	client := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { _ = client.Close() })

	calc := costing.MustCalculator(costing.DefaultConfig())
	validator, err := validation.New(validation.DefaultConfig())
	require.NoError(t, err)
	exec, err := resilience.NewExecutor(resilience.DefaultPolicy())
	require.NoError(t, err)

	events := styles.NewRedisEvents(client, logger)
	summaryCache := portfolio.NewCache(client, time.Minute)
	styleService := styles.NewService(styles.ServiceParams{
		Store:       &styleStore{records: map[string]styles.Style{}},
		Executor:    exec,
		Validator:   validator,
		Calculator:  calc,
		Events:      events,
		Invalidator: summaryCache,
		Logger:      logger,
	})
	hash, err := bcrypt.GenerateFromPassword([]byte(token), bcrypt.MinCost)
	require.NoError(t, err)

	gateway := livesync.NewGateway(livesync.Deps{
		Saver:     styleService,
		Validator: validator,
		Calc:      calc,
		Config:    livesync.Config{Debounce: 20 * time.Millisecond, StatusDisplay: 50 * time.Millisecond},
		Logger:    logger,
	}, styleService, events, logger, nil)

	router := app.NewRouter(app.RouterParams{
		Logger:    logger,
		Config:    &app.Config{AppEnv: "test", RateLimitPerMin: 10000, AppRequestTimeout: 5 * time.Second},
		Metrics:   observability.NewMetrics(),
		Auth:      app.NewTokenAuth(string(hash), logger),
		Customers: customers.NewHandler(logger, customers.NewService(&customerStore{byID: map[string]customers.Customer{}}, summaryCache, logger)),
		Styles:    styles.NewHandler(logger, styleService, nil),
		Export:    export.NewHandler(logger, styleService, export.NewWriter("$")),
		Summary:   portfolio.NewHandler(logger, portfolio.NewService(styleService, calc, summaryCache, logger)),
		Live:      gateway,
	})
	srv := httptest.NewServer(router)
	t.Cleanup(srv.Close)
	return srv
}

func call(t *testing.T, srv *httptest.Server, method, path string, body any, out any) int {
	t.Helper()
	var buf bytes.Buffer
	if body != nil {
		require.NoError(t, json.NewEncoder(&buf).Encode(body))
	}
	req, err := http.NewRequest(method, srv.URL+path, &buf)
	require.NoError(t, err)
	req.Header.Set("Authorization", "Bearer "+token)
	req.Header.Set("Content-Type", "application/json")
	resp, err := srv.Client().Do(req)
	require.NoError(t, err)
	defer resp.Body.Close()
	data, err := io.ReadAll(resp.Body)
	require.NoError(t, err)
	if out != nil {
		require.NoError(t, json.Unmarshal(data, out), string(data))
	}
	return resp.StatusCode
}

func summary(t *testing.T, srv *httptest.Server, customerID string) portfolio.Summary {
	t.Helper()
	var s portfolio.Summary
	require.Equal(t, http.StatusOK, call(t, srv, http.MethodGet, "/api/customers/"+customerID+"/summary", nil, &s))
	return s
}

func TestBoardFlow(t *testing.T) {
	srv := newServer(t)

	var customer customers.Customer
	require.Equal(t, http.StatusCreated, call(t, srv, http.MethodPost, "/api/customers/",
		map[string]string{"code": "ACME", "name": "Acme Apparel"}, &customer))
	require.NotEmpty(t, customer.ID)
	base := "/api/customers/" + customer.ID

	var row styles.Row
	require.Equal(t, http.StatusCreated, call(t, srv, http.MethodPost, base+"/styles/", map[string]any{
		"values": map[string]string{
			"styleCode": "ST-1", "units": "1500", "pack": "2", "price": "13.95",
			"rate": "42", "extraCost": "23", "sellingPrice": "129.5",
		},
	}, &row))
	assert.InDelta(t, 94.5, row.Metrics.LandedCost, 0.01)

	s := summary(t, srv, customer.ID)
	assert.Equal(t, 1, s.ItemCount)
	assert.Equal(t, int64(1500), s.TotalUnits)

	ws, _, err := websocket.DefaultDialer.Dial(
		"ws"+strings.TrimPrefix(srv.URL, "http")+base+"/live?access_token="+token, nil)
	require.NoError(t, err)
	defer ws.Close()
	require.NoError(t, ws.WriteJSON(livesync.ClientFrame{Type: livesync.FrameOpen, ID: row.ID}))
	waitForView(t, ws, func(v *livesync.View) bool { return v.Values["units"] == "1500" })

	require.Equal(t, http.StatusOK, call(t, srv, http.MethodPatch, base+"/styles/"+row.ID,
		map[string]any{"values": map[string]string{"units": "3000"}}, nil))
	waitForView(t, ws, func(v *livesync.View) bool { return v.Values["units"] == "3000" && !v.Dirty })

	assert.Equal(t, int64(3000), summary(t, srv, customer.ID).TotalUnits, "cache invalidated after update")

	req, err := http.NewRequest(http.MethodGet, srv.URL+base+"/styles/export?format=csv&flavor=display", nil)
	require.NoError(t, err)
	req.Header.Set("Authorization", "Bearer "+token)
	resp, err := srv.Client().Do(req)
	require.NoError(t, err)
	body, _ := io.ReadAll(resp.Body)
	resp.Body.Close()
	require.Equal(t, http.StatusOK, resp.StatusCode)
	assert.Contains(t, resp.Header.Get("Content-Type"), "text/csv")
	assert.Contains(t, string(body), "ST-1")

	var report styles.BulkReport
	require.Equal(t, http.StatusOK, call(t, srv, http.MethodPost, base+"/styles/bulk-delete",
		map[string]any{"ids": []string{row.ID, "missing"}}, &report))
	assert.Equal(t, 1, report.Succeeded)
	require.Len(t, report.Failed, 1)
	assert.Equal(t, "missing", report.Failed[0].ID)

	assert.Zero(t, summary(t, srv, customer.ID).ItemCount)
}

func waitForView(t *testing.T, ws *websocket.Conn, match func(*livesync.View) bool) {
	t.Helper()
	require.NoError(t, ws.SetReadDeadline(time.Now().Add(3*time.Second)))
	for {
		var frame livesync.ServerFrame
		require.NoError(t, ws.ReadJSON(&frame))
		if frame.Type == livesync.FrameView && frame.View != nil && match(frame.View) {
			return
		}
	}
}
