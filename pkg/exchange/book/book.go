package book

import (
	"fmt"
	"sort"

	"github.com/google/uuid"
)

// Direction of an order: BUY rests on the bid side, SELL on the ask side.
type Direction int8

const (
	Buy  Direction = 1
	Sell Direction = -1
)

func (d Direction) String() string {
	if d == Buy {
		return "BUY"
	}
	return "SELL"
}

// ParseDirection maps the wire representation to a Direction.
func ParseDirection(s string) (Direction, error) {
	switch s {
	case "BUY":
		return Buy, nil
	case "SELL":
		return Sell, nil
	default:
		return 0, fmt.Errorf("unknown direction %q", s)
	}
}

// Level is the unfilled remainder of one resting limit order.
//
// Reserved tracks funds (for a resting BUY) or asset units (for a resting
// SELL) set aside by the owner. It is decremented as the level is consumed,
// never recomputed, and never goes below zero.
type Level struct {
	Price    int64     `json:"price"`
	Qty      int64     `json:"qty"`
	UserID   uuid.UUID `json:"user_id"`
	OrderID  uuid.UUID `json:"order_id"`
	Reserved int64     `json:"reserved"`
}

// PriceLevel is one row of the aggregated depth view: total quantity at a
// price across all owners.
type PriceLevel struct {
	Price int64 `json:"price"`
	Qty   int64 `json:"qty"`
}

// Book holds the resting limit orders of one ticker. Bids are kept sorted by
// descending price, asks by ascending price; among equal prices insertion
// order is preserved (time priority), which is why every re-sort must be
// stable.
//
// The book itself is not synchronized: the owner serializes all access per
// ticker for the duration of a full matching or cancellation pass.
type Book struct {
	Ticker string   `json:"ticker"`
	Bids   []*Level `json:"bid_levels"`
	Asks   []*Level `json:"ask_levels"`
}

func New(ticker string) *Book {
	return &Book{Ticker: ticker}
}

// Opposing returns the side an incoming order of direction d matches against.
func (b *Book) Opposing(d Direction) []*Level {
	if d == Buy {
		return b.Asks
	}
	return b.Bids
}

// Own returns the side an order of direction d would rest on.
func (b *Book) Own(d Direction) []*Level {
	if d == Buy {
		return b.Bids
	}
	return b.Asks
}

func (b *Book) setSide(d Direction, own bool, levels []*Level) {
	if (d == Buy) == own {
		b.Bids = levels
	} else {
		b.Asks = levels
	}
}

// InsertOrMerge places lvl on the own side for direction d. If a level with
// identical (price, owner, order id) already rests there, quantities and
// reservations are summed instead; this only happens when a fresh remainder
// of the same submission is re-added. Distinct orders never merge, even at
// the same price from the same owner.
func (b *Book) InsertOrMerge(d Direction, lvl *Level) {
	side := b.Own(d)
	for _, existing := range side {
		if existing.Price == lvl.Price &&
			existing.UserID == lvl.UserID &&
			existing.OrderID == lvl.OrderID {
			existing.Qty += lvl.Qty
			existing.Reserved += lvl.Reserved
			return
		}
	}
	b.setSide(d, true, append(side, lvl))
}

// RemoveEmpty drops every level whose remaining quantity is <= 0, on both
// sides.
func (b *Book) RemoveEmpty() {
	b.Bids = prune(b.Bids)
	b.Asks = prune(b.Asks)
}

func prune(side []*Level) []*Level {
	out := side[:0]
	for _, lvl := range side {
		if lvl.Qty > 0 {
			out = append(out, lvl)
		}
	}
	return out
}

// Reorder re-establishes book order after a mutation: bids descending, asks
// ascending by price. The sort is stable so equal-price levels keep their
// arrival order.
func (b *Book) Reorder() {
	sort.SliceStable(b.Bids, func(i, j int) bool { return b.Bids[i].Price > b.Bids[j].Price })
	sort.SliceStable(b.Asks, func(i, j int) bool { return b.Asks[i].Price < b.Asks[j].Price })
}

// Depth returns the price-aggregated view of both sides, bids sorted high to
// low and asks low to high. depth <= 0 means no truncation.
func (b *Book) Depth(depth int) (bids, asks []PriceLevel) {
	bids = aggregate(b.Bids, func(i, j int64) bool { return i > j })
	asks = aggregate(b.Asks, func(i, j int64) bool { return i < j })
	if depth > 0 {
		if len(bids) > depth {
			bids = bids[:depth]
		}
		if len(asks) > depth {
			asks = asks[:depth]
		}
	}
	return bids, asks
}

func aggregate(side []*Level, less func(i, j int64) bool) []PriceLevel {
	byPrice := make(map[int64]int64)
	for _, lvl := range side {
		byPrice[lvl.Price] += lvl.Qty
	}
	out := make([]PriceLevel, 0, len(byPrice))
	for price, qty := range byPrice {
		out = append(out, PriceLevel{Price: price, Qty: qty})
	}
	sort.Slice(out, func(i, j int) bool { return less(out[i].Price, out[j].Price) })
	return out
}

// TotalQty sums remaining quantity across a side.
func TotalQty(side []*Level) int64 {
	var total int64
	for _, lvl := range side {
		total += lvl.Qty
	}
	return total
}
