package livesync

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"sync"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"
	"github.com/gorilla/websocket"

	"github.com/odyssey-erp/marginboard/internal/portfolio"
	"github.com/odyssey-erp/marginboard/internal/shared"
	"github.com/odyssey-erp/marginboard/internal/styles"
)

const (
	writeWait      = 10 * time.Second
	pongWait       = 60 * time.Second
	pingPeriod     = pongWait * 9 / 10
	maxFrameBytes  = 64 << 10
	sendBufferSize = 256
)

// Frame types exchanged with editors.
const (
	FrameOpen    = "open"
	FrameLeave   = "leave"
	FrameEdit    = "edit"
	FrameBlur    = "blur"
	FrameView    = "view"
	FrameRemoved = "removed"
	FrameSummary = "summary"
	FrameWarning = "warning"
	FrameError   = "error"
)

// ClientFrame is a command sent by an editor. Open with an empty ID opens
// every record of the customer.
type ClientFrame struct {
	Type  string `json:"type"`
	ID    string `json:"id,omitempty"`
	Field string `json:"field,omitempty"`
	Value string `json:"value,omitempty"`
}

// ServerFrame is pushed to an editor.
type ServerFrame struct {
	Type    string             `json:"type"`
	ID      string             `json:"id,omitempty"`
	View    *View              `json:"view,omitempty"`
	Summary *portfolio.Summary `json:"summary,omitempty"`
	Message string             `json:"message,omitempty"`
}

// RecordSource loads records that enter view.
type RecordSource interface {
	Get(ctx context.Context, customerID, id string) (styles.Style, error)
	List(ctx context.Context, filter styles.Filter) ([]styles.Style, error)
}

// Subscriber is the push channel of record changes.
type Subscriber interface {
	Subscribe(ctx context.Context, customerID string) (<-chan styles.Event, error)
}

// Gateway is the websocket endpoint GET /api/customers/{customerID}/live.
type Gateway struct {
	deps     Deps
	records  RecordSource
	events   Subscriber
	logger   *slog.Logger
	upgrader websocket.Upgrader
	// Connections reports open sockets. Optional.
	Connections func(delta int)
}

// NewGateway builds the gateway. An empty allowedOrigins accepts any origin.
func NewGateway(deps Deps, records RecordSource, events Subscriber, logger *slog.Logger, allowedOrigins []string) *Gateway {
	if logger == nil {
		logger = slog.Default()
	}
	if deps.Logger == nil {
		deps.Logger = logger
	}
	allowed := make(map[string]struct{}, len(allowedOrigins))
	for _, o := range allowedOrigins {
		allowed[o] = struct{}{}
	}
	return &Gateway{
		deps:    deps,
		records: records,
		events:  events,
		logger:  logger,
		upgrader: websocket.Upgrader{
			ReadBufferSize:  4096,
			WriteBufferSize: 4096,
			CheckOrigin: func(r *http.Request) bool {
				if len(allowed) == 0 {
					return true
				}
				_, ok := allowed[r.Header.Get("Origin")]
				return ok
			},
		},
	}
}

func (g *Gateway) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	customerID := chi.URLParam(r, "customerID")
	if customerID == "" {
		http.Error(w, "customer required", http.StatusBadRequest)
		return
	}
	ws, err := g.upgrader.Upgrade(w, r, nil)
	if err != nil {
		g.logger.Warn("websocket upgrade failed", slog.Any("error", err))
		return
	}
	if g.Connections != nil {
		g.Connections(1)
		defer g.Connections(-1)
	}

	ctx, cancel := context.WithCancel(r.Context())
	c := &connection{
		gateway:    g,
		ws:         ws,
		customerID: customerID,
		id:         uuid.NewString(),
		send:       make(chan ServerFrame, sendBufferSize),
		summary:    make(chan struct{}, 1),
		logger:     g.logger.With(slog.String("customer_id", customerID)),
	}
	c.board = NewBoard(g.deps, customerID, c.id, c.onView, c.onRemoved)

	var wg sync.WaitGroup
	wg.Add(1)
	go func() {
		defer wg.Done()
		c.writeLoop(ctx)
	}()
	c.subscribe(ctx, &wg)

	c.readLoop(ctx)

	cancel()
	c.board.Close()
	wg.Wait()
	_ = ws.Close()
	c.logger.Debug("live connection closed", slog.String("connection_id", c.id))
}

type connection struct {
	gateway    *Gateway
	ws         *websocket.Conn
	customerID string
	id         string
	board      *Board
	send       chan ServerFrame
	summary    chan struct{}
	logger     *slog.Logger
	warnOnce   sync.Once
}

func (c *connection) onView(v View) {
	c.enqueue(ServerFrame{Type: FrameView, ID: v.ID, View: &v})
	c.requestSummary()
}

func (c *connection) onRemoved(id string) {
	c.enqueue(ServerFrame{Type: FrameRemoved, ID: id})
	c.requestSummary()
}

// enqueue never blocks a session loop; a saturated client loses frames and
// is expected to reopen.
func (c *connection) enqueue(f ServerFrame) {
	select {
	case c.send <- f:
	default:
		c.logger.Warn("live frame dropped", slog.String("type", f.Type), slog.String("connection_id", c.id))
	}
}

func (c *connection) requestSummary() {
	select {
	case c.summary <- struct{}{}:
	default:
	}
}

func (c *connection) warn(message string) {
	c.warnOnce.Do(func() {
		c.enqueue(ServerFrame{Type: FrameWarning, Message: message})
	})
}

func (c *connection) subscribe(ctx context.Context, wg *sync.WaitGroup) {
	if c.gateway.events == nil {
		c.warn(pushUnavailable)
		return
	}
	events, err := c.gateway.events.Subscribe(ctx, c.customerID)
	if err != nil {
		c.logger.Warn("push subscription failed", slog.Any("error", err))
		c.warn(pushUnavailable)
		return
	}
	wg.Add(1)
	go func() {
		defer wg.Done()
		for ev := range events {
			c.board.Dispatch(ev)
		}
		if ctx.Err() == nil {
			c.logger.Warn("push subscription ended")
			c.warn(pushUnavailable)
		}
	}()
}

const pushUnavailable = "Live updates from other editors are unavailable; refresh to see their changes"

func (c *connection) readLoop(ctx context.Context) {
	c.ws.SetReadLimit(maxFrameBytes)
	_ = c.ws.SetReadDeadline(time.Now().Add(pongWait))
	c.ws.SetPongHandler(func(string) error {
		return c.ws.SetReadDeadline(time.Now().Add(pongWait))
	})
	for {
		var frame ClientFrame
		if err := c.ws.ReadJSON(&frame); err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseNormalClosure) {
				c.logger.Info("live connection dropped", slog.Any("error", err))
			}
			return
		}
		c.handle(ctx, frame)
	}
}

func (c *connection) handle(ctx context.Context, frame ClientFrame) {
	var err error
	switch frame.Type {
	case FrameOpen:
		err = c.open(ctx, frame.ID)
	case FrameLeave:
		c.board.Leave(frame.ID)
		c.requestSummary()
	case FrameEdit:
		err = c.board.Edit(frame.ID, frame.Field, frame.Value)
	case FrameBlur:
		err = c.board.Blur(frame.ID, frame.Field)
	default:
		err = errors.New("unknown frame type " + frame.Type)
	}
	if err != nil {
		c.enqueue(ServerFrame{Type: FrameError, ID: frame.ID, Message: frameErrorMessage(err)})
	}
}

func (c *connection) open(ctx context.Context, id string) error {
	if id != "" {
		record, err := c.gateway.records.Get(ctx, c.customerID, id)
		if err != nil {
			return err
		}
		c.board.Open(record)
		return nil
	}
	list, err := c.gateway.records.List(ctx, styles.Filter{CustomerID: c.customerID})
	if err != nil {
		return err
	}
	for _, record := range list {
		c.board.Open(record)
	}
	c.requestSummary()
	return nil
}

func (c *connection) writeLoop(ctx context.Context) {
	ticker := time.NewTicker(pingPeriod)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			_ = c.ws.WriteControl(websocket.CloseMessage,
				websocket.FormatCloseMessage(websocket.CloseNormalClosure, ""), time.Now().Add(writeWait))
			return
		case frame := <-c.send:
			if !c.write(frame) {
				return
			}
		case <-c.summary:
			sum := portfolio.Aggregate(c.gateway.deps.Calc, c.board.Records())
			if !c.write(ServerFrame{Type: FrameSummary, Summary: &sum}) {
				return
			}
		case <-ticker.C:
			_ = c.ws.SetWriteDeadline(time.Now().Add(writeWait))
			if err := c.ws.WriteMessage(websocket.PingMessage, nil); err != nil {
				return
			}
		}
	}
}

func (c *connection) write(frame ServerFrame) bool {
	_ = c.ws.SetWriteDeadline(time.Now().Add(writeWait))
	if err := c.ws.WriteJSON(frame); err != nil {
		c.logger.Info("live write failed", slog.Any("error", err))
		_ = c.ws.Close()
		return false
	}
	return true
}

func frameErrorMessage(err error) string {
	var unknown *styles.ErrUnknownField
	switch {
	case errors.Is(err, ErrNotOpen):
		return "Record is not open"
	case errors.As(err, &unknown):
		return fmt.Sprintf("Unknown field %q", unknown.Field)
	default:
		return shared.UserMessage(err)
	}
}
