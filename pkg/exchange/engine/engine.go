package engine

import (
	"sort"
	"sync"

	"github.com/google/uuid"
)

// QuoteTicker is the settlement currency: every trade moves RUB against the
// instrument's asset.
const QuoteTicker = "RUB"

// Engine owns the canonical order records and runs matching and cancellation
// passes over a ticker's book. The caller serializes passes per ticker; the
// engine's own mutex only guards the record registry so that queries from
// other tickers' handlers stay safe.
type Engine struct {
	mu     sync.RWMutex
	orders map[uuid.UUID]*Order
}

func New() *Engine {
	return &Engine{orders: make(map[uuid.UUID]*Order)}
}

// Register adds a fresh order record.
func (e *Engine) Register(o *Order) {
	e.mu.Lock()
	e.orders[o.ID] = o
	e.mu.Unlock()
}

// Get returns a snapshot copy of an order record.
func (e *Engine) Get(id uuid.UUID) (Order, bool) {
	e.mu.RLock()
	defer e.mu.RUnlock()
	o, ok := e.orders[id]
	if !ok {
		return Order{}, false
	}
	return *o, true
}

// Owner returns the owning participant of an order without copying it.
func (e *Engine) Owner(id uuid.UUID) (uuid.UUID, bool) {
	e.mu.RLock()
	defer e.mu.RUnlock()
	o, ok := e.orders[id]
	if !ok {
		return uuid.UUID{}, false
	}
	return o.UserID, true
}

// ListByUser returns snapshot copies of a participant's orders, cancelled
// ones excluded, oldest first.
func (e *Engine) ListByUser(userID uuid.UUID) []Order {
	e.mu.RLock()
	out := make([]Order, 0)
	for _, o := range e.orders {
		if o.UserID == userID && o.Status != StatusCancelled {
			out = append(out, *o)
		}
	}
	e.mu.RUnlock()
	sort.Slice(out, func(i, j int) bool { return out[i].CreatedAt.Before(out[j].CreatedAt) })
	return out
}

// locked mutators used inside matching/cancellation passes

func (e *Engine) addFill(o *Order, qty int64) {
	e.mu.Lock()
	o.Filled += qty
	if o.Filled >= o.Qty {
		o.Status = StatusExecuted
	} else {
		o.Status = StatusPartiallyExecuted
	}
	e.mu.Unlock()
}

func (e *Engine) setStatus(o *Order, filled int64, status Status) {
	e.mu.Lock()
	o.Filled = filled
	o.Status = status
	e.mu.Unlock()
}

func (e *Engine) lookup(id uuid.UUID) *Order {
	e.mu.RLock()
	defer e.mu.RUnlock()
	return e.orders[id]
}
