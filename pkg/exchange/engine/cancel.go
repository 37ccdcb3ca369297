package engine

import (
	"fmt"

	"github.com/google/uuid"

	"github.com/birzha-dev/birzha/pkg/exchange/book"
	"github.com/birzha-dev/birzha/pkg/exchange/ledger"
)

// CancelResult reports what a cancellation touched, mirroring MatchResult.
type CancelResult struct {
	Order   Order // post-cancel snapshot
	Balance ledger.Key
}

// Cancel reverses the unfilled remainder of a resting limit order: refunds
// the ledger, shrinks the order's level, and moves the record to CANCELLED.
// The caller holds the ticker lock and has already checked ownership.
//
// The level to shrink is located by price only, not by order id — matching
// the observed behavior of the system this reimplements. When two distinct
// orders rest at the same price, the first level at that price is shrunk,
// which may belong to the other order. See TestCancelShrinksFirstLevelAtPrice.
func (e *Engine) Cancel(bk *book.Book, led *ledger.Ledger, orderID uuid.UUID) (*CancelResult, error) {
	o := e.lookup(orderID)
	if o == nil {
		return nil, fmt.Errorf("%w: order %s", ErrNotFound, orderID)
	}
	if o.Kind != Limit {
		return nil, fmt.Errorf("%w: market orders cannot be cancelled", ErrNotFound)
	}
	if o.Status != StatusNew && o.Status != StatusPartiallyExecuted {
		return nil, fmt.Errorf("%w: order %s is %s", ErrInvalidState, o.ID, o.Status)
	}
	unfilled := o.Remaining()
	if unfilled <= 0 {
		return nil, fmt.Errorf("%w: order %s already fully executed", ErrInvalidState, o.ID)
	}

	res := &CancelResult{}
	if o.Direction == book.Buy {
		led.Credit(o.UserID, QuoteTicker, unfilled*o.Price)
		res.Balance = ledger.Key{UserID: o.UserID, Ticker: QuoteTicker}
	} else {
		led.Credit(o.UserID, o.Ticker, unfilled)
		res.Balance = ledger.Key{UserID: o.UserID, Ticker: o.Ticker}
	}

	for _, lvl := range bk.Own(o.Direction) {
		if lvl.Price == o.Price {
			lvl.Qty -= unfilled
			break
		}
	}
	bk.RemoveEmpty()
	bk.Reorder()

	e.mu.Lock()
	o.Status = StatusCancelled
	res.Order = *o
	e.mu.Unlock()
	return res, nil
}
