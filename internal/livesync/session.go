// Package livesync keeps locally edited styles, their persisted state and
// remote changes consistent while editors are connected.
package livesync

import (
	"context"
	"fmt"
	"log/slog"
	"sync/atomic"
	"time"

	"github.com/odyssey-erp/marginboard/internal/costing"
	"github.com/odyssey-erp/marginboard/internal/resilience"
	"github.com/odyssey-erp/marginboard/internal/shared"
	"github.com/odyssey-erp/marginboard/internal/styles"
	"github.com/odyssey-erp/marginboard/internal/validation"
)

// SaveStatus is the autosave state shown next to a row.
type SaveStatus string

const (
	StatusIdle    SaveStatus = "idle"
	StatusPending SaveStatus = "pending"
	StatusSaving  SaveStatus = "saving"
	StatusSuccess SaveStatus = "success"
	StatusError   SaveStatus = "error"
)

// Save outcomes reported to the Observer.
const (
	OutcomeSaved   = "saved"
	OutcomeFailed  = "failed"
	OutcomeInvalid = "invalid"
)

// Saver persists a validated patch with retries.
type Saver interface {
	Save(ctx context.Context, customerID, id string, patch styles.Patch, onRetry resilience.RetryFunc) (styles.Style, error)
}

// Config holds the synchronizer timings.
type Config struct {
	// Debounce is the quiet period after the last edit before a save starts.
	Debounce time.Duration
	// StatusDisplay is how long success or error stays visible before idle.
	StatusDisplay time.Duration
}

// DefaultConfig returns the production timings.
func DefaultConfig() Config {
	return Config{Debounce: 400 * time.Millisecond, StatusDisplay: 2 * time.Second}
}

// Validate rejects unusable timings.
func (c Config) Validate() error {
	if c.Debounce <= 0 {
		return shared.NewConfigError("SYNC_DEBOUNCE", "must be positive, got %s", c.Debounce)
	}
	if c.StatusDisplay < 0 {
		return shared.NewConfigError("SYNC_STATUS_DISPLAY", "must not be negative, got %s", c.StatusDisplay)
	}
	return nil
}

// Deps are the collaborators shared by every session of a board.
type Deps struct {
	Saver     Saver
	Validator *validation.Validator
	Calc      *costing.Calculator
	Config    Config
	Logger    *slog.Logger
	// Observer is told the outcome of every save attempt cycle. Optional.
	Observer func(outcome string)
}

// View is an immutable snapshot of a session for presentation.
type View struct {
	ID          string            `json:"id"`
	Record      styles.Style      `json:"record"`
	Values      map[string]string `json:"values"`
	Status      SaveStatus        `json:"status"`
	Dirty       bool              `json:"dirty"`
	FieldErrors map[string]string `json:"field_errors,omitempty"`
	Message     string            `json:"message,omitempty"`
	Metrics     costing.Metrics   `json:"metrics"`
}

// Session is the edit state machine for one visible style. All state is
// owned by a single goroutine; public methods enqueue work for it.
type Session struct {
	deps       Deps
	customerID string
	id         string
	origin     string
	onChange   func(View)

	inbox chan func()
	done  chan struct{}
	last  atomic.Pointer[View]

	// Owned by the loop goroutine.
	confirmed    styles.Style
	local        styles.Style
	raw          map[styles.Field]string
	dirty        bool
	status       SaveStatus
	fieldErrors  map[string]string
	message      string
	saving       bool
	saveQueued   bool
	editedInSave bool
	debounce     *time.Timer
	generation   uint64
	statusTimer  *time.Timer
	statusGen    uint64
	closed       bool
}

// NewSession starts a session for record. origin tags the session's saves so
// the owning connection can recognise their echoes. onChange may be nil.
func NewSession(deps Deps, record styles.Style, origin string, onChange func(View)) *Session {
	if deps.Logger == nil {
		deps.Logger = slog.Default()
	}
	s := &Session{
		deps:        deps,
		customerID:  record.CustomerID,
		id:          record.ID,
		origin:      origin,
		onChange:    onChange,
		inbox:       make(chan func(), 32),
		done:        make(chan struct{}),
		confirmed:   record.Clone(),
		local:       record.Clone(),
		raw:         map[styles.Field]string{},
		status:      StatusIdle,
		fieldErrors: map[string]string{},
	}
	v := s.snapshot()
	s.last.Store(&v)
	go s.loop()
	return s
}

// ID returns the record identifier.
func (s *Session) ID() string { return s.id }

// View returns the most recently published snapshot.
func (s *Session) View() View { return *s.last.Load() }

// Edit applies a field edit optimistically and restarts the debounce window.
func (s *Session) Edit(field, raw string) error {
	f, ok := styles.LookupField(field)
	if !ok {
		return &styles.ErrUnknownField{Field: field}
	}
	s.post(func() { s.handleEdit(f, raw) })
	return nil
}

// Blur runs advisory validation for one field.
func (s *Session) Blur(field string) {
	s.post(func() { s.handleBlur(field) })
}

// ApplyRemote reconciles a pushed version of the record. It is ignored while
// local edits are unsaved.
func (s *Session) ApplyRemote(record styles.Style) {
	record = record.Clone()
	s.post(func() { s.handleRemote(record) })
}

// Close cancels any pending debounce and stops the session. An in-flight save
// still completes; its result is discarded.
func (s *Session) Close() {
	select {
	case s.inbox <- s.handleClose:
	case <-s.done:
	}
	<-s.done
}

func (s *Session) post(fn func()) {
	select {
	case s.inbox <- fn:
	case <-s.done:
	}
}

func (s *Session) loop() {
	defer close(s.done)
	for fn := range s.inbox {
		fn()
		if s.closed {
			return
		}
	}
}

func (s *Session) handleEdit(f styles.Field, raw string) {
	if f.IsNumeric() {
		s.raw[f] = raw
	}
	// Unparseable numeric text keeps the last parsed value; validation at
	// debounce time reports the raw text.
	_ = s.local.Set(f, raw)
	delete(s.fieldErrors, string(f))
	s.dirty = true
	if s.saving {
		s.editedInSave = true
	} else {
		s.status = StatusPending
		s.message = ""
		s.statusGen++
	}
	s.restartDebounce()
	s.publish()
}

func (s *Session) restartDebounce() {
	if s.debounce != nil {
		s.debounce.Stop()
	}
	s.generation++
	gen := s.generation
	s.debounce = time.AfterFunc(s.deps.Config.Debounce, func() {
		s.post(func() { s.handleDebounce(gen) })
	})
}

func (s *Session) cancelDebounce() {
	if s.debounce != nil {
		s.debounce.Stop()
		s.debounce = nil
	}
	s.generation++
}

func (s *Session) handleDebounce(gen uint64) {
	if gen != s.generation || !s.dirty {
		return
	}
	s.debounce = nil
	if s.saving {
		s.saveQueued = true
		return
	}
	s.startSave()
}

func (s *Session) startSave() {
	res := s.deps.Validator.ValidateRecord(s.values())
	if !res.Valid {
		s.fieldErrors = res.Messages()
		s.status = StatusError
		s.message = ""
		s.observe(OutcomeInvalid)
		s.publish()
		return
	}
	s.fieldErrors = map[string]string{}

	patch := styles.Diff(s.confirmed, s.local)
	if len(patch) == 0 {
		s.dirty = false
		s.raw = map[styles.Field]string{}
		s.status = StatusIdle
		s.publish()
		return
	}

	s.saving = true
	s.editedInSave = false
	s.status = StatusSaving
	s.message = ""
	s.publish()

	customerID, id := s.customerID, s.id
	ctx := styles.WithOrigin(context.Background(), s.origin)
	go func() {
		saved, err := s.deps.Saver.Save(ctx, customerID, id, patch, func(attempt int, err error) {
			s.post(func() { s.handleRetry(attempt) })
		})
		s.post(func() { s.handleSaveResult(saved, err) })
	}()
}

func (s *Session) handleRetry(attempt int) {
	if !s.saving {
		return
	}
	s.message = fmt.Sprintf("Retrying save (attempt %d failed)", attempt)
	s.publish()
}

func (s *Session) handleSaveResult(saved styles.Style, err error) {
	s.saving = false
	if err != nil {
		s.deps.Logger.Warn("live save failed",
			slog.String("customer_id", s.customerID),
			slog.String("style_id", s.id),
			slog.Any("error", err))
		s.observe(OutcomeFailed)
		s.cancelDebounce()
		s.saveQueued = false
		s.local = s.confirmed.Clone()
		s.raw = map[styles.Field]string{}
		s.fieldErrors = map[string]string{}
		s.dirty = false
		s.status = StatusError
		s.message = shared.UserMessage(err)
		s.scheduleIdle()
		s.publish()
		return
	}

	s.observe(OutcomeSaved)
	s.confirmed = saved.Clone()
	if !s.editedInSave {
		s.local = saved.Clone()
		s.raw = map[styles.Field]string{}
		s.dirty = false
		s.status = StatusSuccess
		s.message = ""
		s.scheduleIdle()
		s.publish()
		return
	}

	// Edits arrived during the flight: keep them and let the next cycle save.
	s.local.UpdatedAt = saved.UpdatedAt
	s.status = StatusPending
	if s.saveQueued {
		s.saveQueued = false
		s.startSave()
		return
	}
	s.publish()
}

func (s *Session) scheduleIdle() {
	if s.statusTimer != nil {
		s.statusTimer.Stop()
	}
	s.statusGen++
	gen := s.statusGen
	s.statusTimer = time.AfterFunc(s.deps.Config.StatusDisplay, func() {
		s.post(func() { s.handleStatusExpiry(gen) })
	})
}

func (s *Session) handleStatusExpiry(gen uint64) {
	if gen != s.statusGen || (s.status != StatusSuccess && s.status != StatusError) {
		return
	}
	s.status = StatusIdle
	s.message = ""
	s.publish()
}

func (s *Session) handleBlur(field string) {
	if f, ok := styles.LookupField(field); !ok || !f.IsNumeric() {
		return
	}
	if fe := s.deps.Validator.ValidateField(field, s.values()[field]); fe != nil {
		s.fieldErrors[field] = fe.Message
	} else {
		delete(s.fieldErrors, field)
	}
	s.publish()
}

func (s *Session) handleRemote(record styles.Style) {
	if s.dirty {
		return
	}
	s.confirmed = record.Clone()
	s.local = record
	s.raw = map[styles.Field]string{}
	s.fieldErrors = map[string]string{}
	if s.status == StatusError {
		s.message = ""
	}
	s.publish()
}

func (s *Session) handleClose() {
	s.closed = true
	if s.debounce != nil {
		s.debounce.Stop()
	}
	if s.statusTimer != nil {
		s.statusTimer.Stop()
	}
}

// values returns the editor text of the numeric inputs, preferring raw text.
func (s *Session) values() map[string]string {
	values := s.local.NumericValues()
	for f, raw := range s.raw {
		values[string(f)] = raw
	}
	return values
}

func (s *Session) observe(outcome string) {
	if s.deps.Observer != nil {
		s.deps.Observer(outcome)
	}
}

func (s *Session) snapshot() View {
	values := make(map[string]string, 12)
	for _, name := range []styles.Field{
		styles.FieldStyleCode, styles.FieldFactory, styles.FieldDeliveryDate, styles.FieldDescription,
		styles.FieldFabricTrim, styles.FieldType,
	} {
		values[string(name)] = s.local.Format(name)
	}
	for name, v := range s.values() {
		values[name] = v
	}
	errs := make(map[string]string, len(s.fieldErrors))
	for k, v := range s.fieldErrors {
		errs[k] = v
	}
	return View{
		ID:          s.id,
		Record:      s.local.Clone(),
		Values:      values,
		Status:      s.status,
		Dirty:       s.dirty,
		FieldErrors: errs,
		Message:     s.message,
		Metrics:     s.deps.Calc.Compute(s.local.Inputs()),
	}
}

func (s *Session) publish() {
	v := s.snapshot()
	s.last.Store(&v)
	if s.onChange != nil {
		s.onChange(v)
	}
}
