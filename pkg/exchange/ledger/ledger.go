package ledger

import (
	"sync"

	"github.com/google/uuid"
)

// Key identifies one balance row.
type Key struct {
	UserID uuid.UUID
	Ticker string
}

// Ledger maps (participant, ticker) to a signed integer amount.
//
// Credit and Debit are unconditional arithmetic: the ledger never rejects a
// debit, callers pre-check sufficiency with HasAtLeast. A row touched by any
// credit or debit is materialized and never deleted, so a zero balance
// persists as a row.
type Ledger struct {
	mu       sync.RWMutex
	balances map[Key]int64
}

func New() *Ledger {
	return &Ledger{balances: make(map[Key]int64)}
}

// Get returns the balance, defaulting to 0 for an absent row. It does not
// materialize the row.
func (l *Ledger) Get(userID uuid.UUID, ticker string) int64 {
	l.mu.RLock()
	defer l.mu.RUnlock()
	return l.balances[Key{UserID: userID, Ticker: ticker}]
}

// Credit adds amount to the row, materializing it first if absent.
func (l *Ledger) Credit(userID uuid.UUID, ticker string, amount int64) {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.balances[Key{UserID: userID, Ticker: ticker}] += amount
}

// Debit subtracts amount from the row, materializing it first if absent.
// No sufficiency check: the result may go negative if the caller did not
// pre-check.
func (l *Ledger) Debit(userID uuid.UUID, ticker string, amount int64) {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.balances[Key{UserID: userID, Ticker: ticker}] -= amount
}

// HasAtLeast reports whether the row holds at least amount. This is the only
// check used by order-submission validation.
func (l *Ledger) HasAtLeast(userID uuid.UUID, ticker string, amount int64) bool {
	l.mu.RLock()
	defer l.mu.RUnlock()
	return l.balances[Key{UserID: userID, Ticker: ticker}] >= amount
}

// Exists reports whether the row has been materialized.
func (l *Ledger) Exists(userID uuid.UUID, ticker string) bool {
	l.mu.RLock()
	defer l.mu.RUnlock()
	_, ok := l.balances[Key{UserID: userID, Ticker: ticker}]
	return ok
}

// Set overwrites a row. Used when restoring from the durable store.
func (l *Ledger) Set(userID uuid.UUID, ticker string, amount int64) {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.balances[Key{UserID: userID, Ticker: ticker}] = amount
}

// Balances returns all materialized rows for one participant.
func (l *Ledger) Balances(userID uuid.UUID) map[string]int64 {
	l.mu.RLock()
	defer l.mu.RUnlock()
	out := make(map[string]int64)
	for k, v := range l.balances {
		if k.UserID == userID {
			out[k.Ticker] = v
		}
	}
	return out
}

// ForEach visits every materialized row.
func (l *Ledger) ForEach(visit func(k Key, amount int64)) {
	l.mu.RLock()
	defer l.mu.RUnlock()
	for k, v := range l.balances {
		visit(k, v)
	}
}
