package engine

import (
	"time"

	"github.com/google/uuid"

	"github.com/birzha-dev/birzha/pkg/exchange/book"
)

// Kind tags an order as limit or market. Market orders execute immediately or
// not at all and never rest in the book.
type Kind int8

const (
	Limit Kind = iota
	Market
)

func (k Kind) String() string {
	if k == Market {
		return "MARKET"
	}
	return "LIMIT"
}

// Status is the order lifecycle state.
//
// NEW -> {PARTIALLY_EXECUTED, EXECUTED, CANCELLED}
// PARTIALLY_EXECUTED -> {EXECUTED, CANCELLED}
// EXECUTED and CANCELLED are terminal.
//
// Only the matching pass drives an order toward EXECUTED; only cancellation
// drives it to CANCELLED.
type Status string

const (
	StatusNew               Status = "NEW"
	StatusPartiallyExecuted Status = "PARTIALLY_EXECUTED"
	StatusExecuted          Status = "EXECUTED"
	StatusCancelled         Status = "CANCELLED"
)

// Terminal reports whether no further transition is allowed.
func (s Status) Terminal() bool {
	return s == StatusExecuted || s == StatusCancelled
}

// Order is the canonical record of a submitted order. Records are never
// deleted; terminal statuses stay queryable.
type Order struct {
	ID        uuid.UUID      `json:"id"`
	UserID    uuid.UUID      `json:"user_id"`
	Ticker    string         `json:"ticker"`
	Direction book.Direction `json:"direction"`
	Kind      Kind           `json:"kind"`
	Qty       int64          `json:"qty"`
	Price     int64          `json:"price"` // limit orders only, 0 for market
	Filled    int64          `json:"filled"`
	Status    Status         `json:"status"`
	CreatedAt time.Time      `json:"timestamp"`
}

// Remaining returns the unfilled quantity.
func (o *Order) Remaining() int64 {
	return o.Qty - o.Filled
}

// Trade is the immutable record of one matched quantity increment between a
// taker and a resting level. Execution price is always the maker's.
type Trade struct {
	Ticker    string    `json:"ticker"`
	Qty       int64     `json:"amount"`
	Price     int64     `json:"price"`
	Timestamp time.Time `json:"timestamp"`
}
