package styles

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"sort"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/odyssey-erp/marginboard/internal/costing"
	"github.com/odyssey-erp/marginboard/internal/resilience"
	"github.com/odyssey-erp/marginboard/internal/shared"
	"github.com/odyssey-erp/marginboard/internal/validation"
)

type memoryStore struct {
	mu      sync.Mutex
	records map[string]Style
	calls   map[string]int
	// failures returns an error to inject for op, or nil.
	failures func(op string, s Style) error
}

func newMemoryStore() *memoryStore {
	return &memoryStore{records: map[string]Style{}, calls: map[string]int{}}
}

func (m *memoryStore) fail(op string, s Style) error {
	m.calls[op]++
	if m.failures == nil {
		return nil
	}
	return m.failures(op, s)
}

func (m *memoryStore) List(ctx context.Context, filter Filter) ([]Style, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if err := m.fail("list", Style{}); err != nil {
		return nil, err
	}
	var out []Style
	for _, s := range m.records {
		if s.CustomerID == filter.CustomerID {
			out = append(out, s.Clone())
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].StyleCode < out[j].StyleCode })
	return out, nil
}

func (m *memoryStore) Get(ctx context.Context, customerID, id string) (Style, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if err := m.fail("get", Style{ID: id}); err != nil {
		return Style{}, err
	}
	s, ok := m.records[id]
	if !ok || s.CustomerID != customerID {
		return Style{}, shared.NewStoreError("get", http.StatusNotFound, shared.ErrNotFound)
	}
	return s.Clone(), nil
}

func (m *memoryStore) Create(ctx context.Context, style Style) (Style, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if err := m.fail("create", style); err != nil {
		return Style{}, err
	}
	if _, ok := m.records[style.ID]; ok {
		return Style{}, shared.NewStoreError("create", http.StatusConflict, errors.New("duplicate id"))
	}
	style.CreatedAt = time.Now()
	style.UpdatedAt = style.CreatedAt
	m.records[style.ID] = style.Clone()
	return style, nil
}

func (m *memoryStore) Update(ctx context.Context, customerID, id string, patch Patch) (Style, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if err := m.fail("update", Style{ID: id}); err != nil {
		return Style{}, err
	}
	s, ok := m.records[id]
	if !ok || s.CustomerID != customerID {
		return Style{}, shared.NewStoreError("update", http.StatusNotFound, shared.ErrNotFound)
	}
	s = patch.Apply(s)
	s.UpdatedAt = time.Now()
	m.records[id] = s
	return s.Clone(), nil
}

func (m *memoryStore) Delete(ctx context.Context, customerID, id string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if err := m.fail("delete", Style{ID: id}); err != nil {
		return err
	}
	s, ok := m.records[id]
	if !ok || s.CustomerID != customerID {
		return shared.NewStoreError("delete", http.StatusNotFound, shared.ErrNotFound)
	}
	delete(m.records, id)
	return nil
}

func (m *memoryStore) count(op string) int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.calls[op]
}

type recordingPublisher struct {
	mu     sync.Mutex
	events []Event
	err    error
}

func (p *recordingPublisher) Publish(ctx context.Context, customerID string, ev Event) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.events = append(p.events, ev)
	return p.err
}

type countingInvalidator struct {
	mu    sync.Mutex
	calls map[string]int
}

func (c *countingInvalidator) Invalidate(ctx context.Context, customerID string) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.calls == nil {
		c.calls = map[string]int{}
	}
	c.calls[customerID]++
	return nil
}

type serviceFixture struct {
	svc         *Service
	store       *memoryStore
	events      *recordingPublisher
	invalidator *countingInvalidator
}

func newServiceFixture(t *testing.T) serviceFixture {
	t.Helper()
	exec, err := resilience.NewExecutor(
		resilience.Policy{MaxAttempts: 3, BaseDelay: time.Millisecond, MaxBackoff: time.Millisecond},
		resilience.WithSleeper(func(ctx context.Context, d time.Duration) error { return ctx.Err() }),
	)
	require.NoError(t, err)
	f := serviceFixture{
		store:       newMemoryStore(),
		events:      &recordingPublisher{},
		invalidator: &countingInvalidator{},
	}
	f.svc = NewService(ServiceParams{
		Store:       f.store,
		Executor:    exec,
		Validator:   validation.MustNew(validation.DefaultConfig()),
		Calculator:  costing.MustCalculator(costing.DefaultConfig()),
		Events:      f.events,
		Invalidator: f.invalidator,
	})
	return f
}

func validValues(code string) map[string]string {
	return map[string]string{
		"styleCode":    code,
		"factory":      "Dhaka One",
		"units":        "1500",
		"pack":         "2",
		"price":        "13.95",
		"rate":         "42",
		"extraCost":    "23",
		"sellingPrice": "129.5",
	}
}

func TestServiceCreatePersistsAndFansOut(t *testing.T) {
	f := newServiceFixture(t)
	ctx := WithOrigin(context.Background(), "conn-1")

	created, err := f.svc.Create(ctx, "cust-1", validValues("ST-001"))
	require.NoError(t, err)
	assert.NotEmpty(t, created.ID)
	assert.Equal(t, "cust-1", created.CustomerID)
	require.NotNil(t, created.Units)
	assert.Equal(t, int64(1500), *created.Units)
	assert.Empty(t, created.Description)

	require.Len(t, f.events.events, 1)
	assert.Equal(t, ActionCreate, f.events.events[0].Action)
	assert.Equal(t, "conn-1", f.events.events[0].Origin)
	assert.Equal(t, 1, f.invalidator.calls["cust-1"])

	row := NewRow(f.svc.Calculator(), created)
	assert.InDelta(t, 18000, row.Metrics.TotalProfit, 1e-6)
}

func TestServiceCreateRejectsInvalidValues(t *testing.T) {
	f := newServiceFixture(t)
	values := validValues("ST-002")
	values["rate"] = "500"
	delete(values, "units")

	_, err := f.svc.Create(context.Background(), "cust-1", values)
	require.Error(t, err)
	assert.True(t, validation.IsValidation(err))
	var verrs *validation.Errors
	require.ErrorAs(t, err, &verrs)
	assert.ElementsMatch(t, []string{"rate", "units"}, validation.SortedFields(verrs.Fields))
	assert.Zero(t, f.store.count("create"))
	assert.Empty(t, f.events.events)
}

func TestServiceCreateRejectsUnknownField(t *testing.T) {
	f := newServiceFixture(t)
	values := validValues("ST-003")
	values["colour"] = "red"

	_, err := f.svc.Create(context.Background(), "cust-1", values)
	require.Error(t, err)
	assert.True(t, IsUnknownField(err))
}

func TestServiceUpdateWritesOnlyChangedFields(t *testing.T) {
	f := newServiceFixture(t)
	ctx := context.Background()
	created, err := f.svc.Create(ctx, "cust-1", validValues("ST-004"))
	require.NoError(t, err)

	updated, err := f.svc.Update(ctx, "cust-1", created.ID, map[string]string{"units": "2000", "factory": "Dhaka One"})
	require.NoError(t, err)
	require.NotNil(t, updated.Units)
	assert.Equal(t, int64(2000), *updated.Units)
	assert.Equal(t, 1, f.store.count("update"))

	_, err = f.svc.Update(ctx, "cust-1", created.ID, map[string]string{"units": "2000"})
	require.NoError(t, err)
	assert.Equal(t, 1, f.store.count("update"), "no-op update does not reach the store")

	_, err = f.svc.Update(ctx, "cust-1", created.ID, map[string]string{"sellingPrice": ""})
	require.Error(t, err)
	assert.True(t, validation.IsValidation(err))

	_, err = f.svc.Update(ctx, "cust-1", created.ID, map[string]string{"units": "1.5"})
	require.Error(t, err)
	assert.True(t, validation.IsValidation(err))
}

func TestServiceSaveRetriesTransientFailures(t *testing.T) {
	f := newServiceFixture(t)
	ctx := context.Background()
	created, err := f.svc.Create(ctx, "cust-1", validValues("ST-005"))
	require.NoError(t, err)

	failures := 2
	f.store.failures = func(op string, s Style) error {
		if op == "update" && failures > 0 {
			failures--
			return shared.NewStoreError(op, http.StatusServiceUnavailable, errors.New("unavailable"))
		}
		return nil
	}
	var retried []int
	saved, err := f.svc.Save(ctx, "cust-1", created.ID, Patch{FieldRate: costing.Float(50)}, func(attempt int, err error) {
		retried = append(retried, attempt)
	})
	require.NoError(t, err)
	assert.Equal(t, []int{1, 2}, retried)
	require.NotNil(t, saved.Rate)
	assert.Equal(t, 50.0, *saved.Rate)
	assert.Equal(t, 3, f.store.count("update"))
}

func TestServiceSaveTerminalFailureIsNotRetried(t *testing.T) {
	f := newServiceFixture(t)
	f.store.failures = func(op string, s Style) error {
		return shared.NewStoreError(op, http.StatusForbidden, errors.New("denied"))
	}
	_, err := f.svc.Save(context.Background(), "cust-1", "missing", Patch{FieldRate: costing.Float(50)}, nil)
	require.Error(t, err)
	assert.Equal(t, http.StatusForbidden, shared.StatusOf(err))
	assert.Equal(t, 1, f.store.count("update"))
	assert.Equal(t, "Permission denied", shared.UserMessage(err))
}

func TestServicePublishFailureDoesNotFailWrite(t *testing.T) {
	f := newServiceFixture(t)
	f.events.err = errors.New("redis down")

	_, err := f.svc.Create(context.Background(), "cust-1", validValues("ST-006"))
	require.NoError(t, err)
	assert.Len(t, f.events.events, 1)
}

func TestServiceRowsComputeMetrics(t *testing.T) {
	f := newServiceFixture(t)
	ctx := context.Background()
	for i := 0; i < 3; i++ {
		_, err := f.svc.Create(ctx, "cust-1", validValues(fmt.Sprintf("ST-%03d", i)))
		require.NoError(t, err)
	}
	_, err := f.svc.Create(ctx, "cust-2", validValues("OTHER"))
	require.NoError(t, err)

	rows, err := f.svc.Rows(ctx, Filter{CustomerID: "cust-1"})
	require.NoError(t, err)
	require.Len(t, rows, 3)
	for _, row := range rows {
		assert.InDelta(t, 9.27, row.Metrics.MarginPercent, 0.01)
		assert.Equal(t, costing.StatusLow, row.Metrics.Status)
	}

	_, err = f.svc.Rows(ctx, Filter{})
	assert.ErrorIs(t, err, shared.ErrInvalidID)
}

// ackLostStore persists the first insert of each id but reports it as a
// transient failure, as if the response never arrived.
type ackLostStore struct {
	*memoryStore
	lost map[string]bool
}

func (s *ackLostStore) Create(ctx context.Context, style Style) (Style, error) {
	created, err := s.memoryStore.Create(ctx, style)
	if err != nil || s.lost[style.ID] {
		return created, err
	}
	s.lost[style.ID] = true
	return Style{}, shared.NewStoreError("create", http.StatusBadGateway, errors.New("connection reset"))
}

func TestServiceCreateRecoversInsertWhoseAckWasLost(t *testing.T) {
	f := newServiceFixture(t)
	store := &ackLostStore{memoryStore: f.store, lost: map[string]bool{}}
	f.svc.store = store

	created, err := f.svc.Create(context.Background(), "cust-1", validValues("ST-ACK"))
	require.NoError(t, err)
	assert.Equal(t, "ST-ACK", created.StyleCode)
	assert.Equal(t, 2, f.store.count("create"))
	assert.Len(t, f.store.records, 1)

	require.Len(t, f.events.events, 1)
	assert.Equal(t, ActionCreate, f.events.events[0].Action)
	assert.Equal(t, 1, f.invalidator.calls["cust-1"])

	report := f.svc.Import(context.Background(), "cust-1", importRows(3))
	assert.Equal(t, 3, report.Imported)
	assert.Empty(t, report.Errors)
	assert.Len(t, f.store.records, 4)
}

func TestServiceCreateKeepsGenuineConflictOnRetry(t *testing.T) {
	f := newServiceFixture(t)
	first := true
	f.store.failures = func(op string, s Style) error {
		if op != "create" {
			return nil
		}
		if first {
			first = false
			return shared.NewStoreError("create", http.StatusServiceUnavailable, errors.New("busy"))
		}
		return shared.NewStoreError("create", http.StatusConflict, errors.New("duplicate style code"))
	}

	_, err := f.svc.Create(context.Background(), "cust-1", validValues("ST-DUP"))
	require.Error(t, err)
	assert.Equal(t, http.StatusConflict, shared.StatusOf(err))
	assert.Empty(t, f.events.events)
	assert.Equal(t, 1, f.store.count("get"), "the conflict is checked against the stored row")
}
