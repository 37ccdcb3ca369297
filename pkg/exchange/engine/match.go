package engine

import (
	"fmt"
	"time"

	"github.com/google/uuid"

	"github.com/birzha-dev/birzha/pkg/exchange/book"
	"github.com/birzha-dev/birzha/pkg/exchange/ledger"
)

// MatchResult reports what one matching pass touched, so the caller can
// persist exactly those rows in a single atomic commit.
type MatchResult struct {
	Trades   []Trade
	Makers   []uuid.UUID  // maker order records updated
	Balances []ledger.Key // ledger rows mutated
}

// Match runs one matching pass for an already-validated incoming order
// against its ticker's book. The caller holds the ticker lock for the whole
// call; once a pass begins it runs to completion.
//
// Market orders are all-or-nothing on liquidity: if the opposing side's total
// quantity is short, the order stays NEW with filled=0 and nothing mutates.
// Limit orders match while the maker price does not violate the limit and
// rest any remainder.
func (e *Engine) Match(bk *book.Book, led *ledger.Ledger, o *Order, now time.Time) (*MatchResult, error) {
	res := &MatchResult{}
	if o.Kind == Market {
		if err := e.matchMarket(bk, led, o, now, res); err != nil {
			return nil, err
		}
		return res, nil
	}
	if err := e.matchLimit(bk, led, o, now, res); err != nil {
		return nil, err
	}
	return res, nil
}

func (e *Engine) matchMarket(bk *book.Book, led *ledger.Ledger, o *Order, now time.Time, res *MatchResult) error {
	levels := bk.Opposing(o.Direction)

	// Insufficient depth rejects the whole order from the pass: no partial
	// fills, and market orders never rest.
	if book.TotalQty(levels) < o.Qty {
		e.setStatus(o, 0, StatusNew)
		return nil
	}

	isBuy := o.Direction == book.Buy
	remaining := o.Qty
	for _, lvl := range levels {
		if remaining <= 0 {
			break
		}
		tradeQty := min(lvl.Qty, remaining)
		remaining -= tradeQty

		reserveDelta := tradeQty
		if isBuy {
			reserveDelta = tradeQty * lvl.Price
		}
		if err := e.fill(bk, led, o, lvl, tradeQty, lvl.Price, reserveDelta, now, res); err != nil {
			return err
		}
	}

	bk.RemoveEmpty()
	bk.Reorder()
	e.setStatus(o, o.Qty, StatusExecuted)
	return nil
}

func (e *Engine) matchLimit(bk *book.Book, led *ledger.Ledger, o *Order, now time.Time, res *MatchResult) error {
	isBuy := o.Direction == book.Buy
	matched := int64(0)
	remaining := o.Qty

	for _, lvl := range bk.Opposing(o.Direction) {
		if remaining <= 0 {
			break
		}
		// Maker-price priority: stop as soon as the next level violates the
		// limit.
		if (isBuy && lvl.Price > o.Price) || (!isBuy && lvl.Price < o.Price) {
			break
		}
		tradeQty := min(remaining, lvl.Qty)
		remaining -= tradeQty
		matched += tradeQty

		reserveDelta := tradeQty * lvl.Price
		if isBuy {
			reserveDelta = tradeQty
		}
		if err := e.fill(bk, led, o, lvl, tradeQty, lvl.Price, reserveDelta, now, res); err != nil {
			return err
		}
	}

	bk.RemoveEmpty()

	switch {
	case matched == 0:
		e.setStatus(o, 0, StatusNew)
		e.rest(bk, o, remaining)
	case remaining > 0:
		e.setStatus(o, matched, StatusPartiallyExecuted)
		e.rest(bk, o, remaining)
	default:
		e.setStatus(o, matched, StatusExecuted)
	}

	bk.Reorder()
	return nil
}

// fill settles one matched quantity increment: the trade record, the four
// ledger legs, the level's reservation and quantity, and the maker's order
// record. Shared by both passes.
func (e *Engine) fill(bk *book.Book, led *ledger.Ledger, taker *Order, lvl *book.Level, qty, price, reserveDelta int64, now time.Time, res *MatchResult) error {
	buyerID, sellerID := taker.UserID, lvl.UserID
	if taker.Direction == book.Sell {
		buyerID, sellerID = lvl.UserID, taker.UserID
	}

	res.Trades = append(res.Trades, Trade{
		Ticker:    taker.Ticker,
		Qty:       qty,
		Price:     price,
		Timestamp: now,
	})

	cost := qty * price
	led.Debit(buyerID, QuoteTicker, cost)
	led.Credit(buyerID, taker.Ticker, qty)
	led.Debit(sellerID, taker.Ticker, qty)
	led.Credit(sellerID, QuoteTicker, cost)
	res.Balances = append(res.Balances,
		ledger.Key{UserID: buyerID, Ticker: QuoteTicker},
		ledger.Key{UserID: buyerID, Ticker: taker.Ticker},
		ledger.Key{UserID: sellerID, Ticker: taker.Ticker},
		ledger.Key{UserID: sellerID, Ticker: QuoteTicker},
	)

	lvl.Reserved = max(lvl.Reserved-reserveDelta, 0)
	lvl.Qty -= qty
	if lvl.Qty < 0 {
		return fmt.Errorf("%w: level %s went negative (qty %d)", ErrInvariant, lvl.OrderID, lvl.Qty)
	}

	if maker := e.lookup(lvl.OrderID); maker != nil && !maker.Status.Terminal() {
		e.addFill(maker, qty)
		res.Makers = append(res.Makers, maker.ID)
	}
	return nil
}

// rest places the unfilled remainder of a limit order as a new level on its
// own side. A resting BUY reserves remainder*price of RUB, a resting SELL
// reserves the remainder in asset units.
func (e *Engine) rest(bk *book.Book, o *Order, remainder int64) {
	reserved := remainder
	if o.Direction == book.Buy {
		reserved = remainder * o.Price
	}
	bk.InsertOrMerge(o.Direction, &book.Level{
		Price:    o.Price,
		Qty:      remainder,
		UserID:   o.UserID,
		OrderID:  o.ID,
		Reserved: reserved,
	})
}
