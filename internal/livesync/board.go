package livesync

import (
	"errors"
	"sort"
	"sync"

	"github.com/odyssey-erp/marginboard/internal/styles"
)

// ErrNotOpen is returned for edits to a record that is not in view.
var ErrNotOpen = errors.New("livesync: record not open")

// Board holds the sessions of the records one editor has in view for a customer.
type Board struct {
	deps       Deps
	customerID string
	origin     string
	onView     func(View)
	onRemoved  func(id string)

	mu       sync.Mutex
	sessions map[string]*Session
	closed   bool
}

// NewBoard creates a board. origin identifies the editor's connection;
// onView and onRemoved may be nil.
func NewBoard(deps Deps, customerID, origin string, onView func(View), onRemoved func(id string)) *Board {
	return &Board{
		deps:       deps,
		customerID: customerID,
		origin:     origin,
		onView:     onView,
		onRemoved:  onRemoved,
		sessions:   map[string]*Session{},
	}
}

// Open brings record into view. A record already open is reconciled instead.
func (b *Board) Open(record styles.Style) {
	if record.CustomerID == "" {
		record.CustomerID = b.customerID
	}
	b.mu.Lock()
	if b.closed || record.CustomerID != b.customerID {
		b.mu.Unlock()
		return
	}
	if sess, ok := b.sessions[record.ID]; ok {
		b.mu.Unlock()
		sess.ApplyRemote(record)
		return
	}
	sess := NewSession(b.deps, record, b.origin, b.onView)
	b.sessions[record.ID] = sess
	b.mu.Unlock()
	if b.onView != nil {
		b.onView(sess.View())
	}
}

// Leave takes a record out of view, cancelling its pending debounce.
func (b *Board) Leave(id string) {
	b.mu.Lock()
	sess, ok := b.sessions[id]
	delete(b.sessions, id)
	b.mu.Unlock()
	if ok {
		sess.Close()
	}
}

// Edit forwards a field edit to the record's session.
func (b *Board) Edit(id, field, raw string) error {
	sess, err := b.session(id)
	if err != nil {
		return err
	}
	return sess.Edit(field, raw)
}

// Blur forwards advisory field validation to the record's session.
func (b *Board) Blur(id, field string) error {
	sess, err := b.session(id)
	if err != nil {
		return err
	}
	sess.Blur(field)
	return nil
}

// Dispatch reconciles a pushed change event.
func (b *Board) Dispatch(ev styles.Event) {
	if ev.Origin != "" && ev.Origin == b.origin {
		return
	}
	if ev.Record.CustomerID != "" && ev.Record.CustomerID != b.customerID {
		return
	}
	switch ev.Action {
	case styles.ActionCreate:
		b.Open(ev.Record)
	case styles.ActionUpdate:
		if sess, err := b.session(ev.Record.ID); err == nil {
			sess.ApplyRemote(ev.Record)
		}
	case styles.ActionDelete:
		b.mu.Lock()
		sess, ok := b.sessions[ev.Record.ID]
		delete(b.sessions, ev.Record.ID)
		b.mu.Unlock()
		if !ok {
			return
		}
		sess.Close()
		if b.onRemoved != nil {
			b.onRemoved(ev.Record.ID)
		}
	}
}

// View returns the latest view of an open record.
func (b *Board) View(id string) (View, error) {
	sess, err := b.session(id)
	if err != nil {
		return View{}, err
	}
	return sess.View(), nil
}

// Records returns the locally displayed snapshots, oldest first.
func (b *Board) Records() []styles.Style {
	b.mu.Lock()
	out := make([]styles.Style, 0, len(b.sessions))
	for _, sess := range b.sessions {
		out = append(out, sess.View().Record)
	}
	b.mu.Unlock()
	sort.Slice(out, func(i, j int) bool {
		if !out[i].CreatedAt.Equal(out[j].CreatedAt) {
			return out[i].CreatedAt.Before(out[j].CreatedAt)
		}
		return out[i].ID < out[j].ID
	})
	return out
}

// Close stops every session.
func (b *Board) Close() {
	b.mu.Lock()
	sessions := b.sessions
	b.sessions = map[string]*Session{}
	b.closed = true
	b.mu.Unlock()
	for _, sess := range sessions {
		sess.Close()
	}
}

func (b *Board) session(id string) (*Session, error) {
	b.mu.Lock()
	defer b.mu.Unlock()
	sess, ok := b.sessions[id]
	if !ok {
		return nil, ErrNotOpen
	}
	return sess, nil
}
