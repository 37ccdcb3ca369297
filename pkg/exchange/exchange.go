package exchange

import (
	"fmt"
	"sync"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/birzha-dev/birzha/pkg/exchange/book"
	"github.com/birzha-dev/birzha/pkg/exchange/engine"
	"github.com/birzha-dev/birzha/pkg/exchange/instrument"
	"github.com/birzha-dev/birzha/pkg/exchange/ledger"
	"github.com/birzha-dev/birzha/pkg/exchange/participant"
	"github.com/birzha-dev/birzha/pkg/storage"
	"github.com/birzha-dev/birzha/pkg/util"
)

// tickerState is everything owned by one ticker: its book, its trade history,
// and the lock serializing every matching and cancellation pass against it.
// The lock is held for the full pass — book read, walk, ledger updates, book
// write, durable commit — never for a single level mutation.
type tickerState struct {
	mu     sync.Mutex
	book   *book.Book
	trades []engine.Trade // execution order; queries read newest-first
}

// Exchange is the trading core facade: participants, instruments, the
// balance ledger, per-ticker order books, and the matching engine behind
// them. Cross-ticker operations proceed fully in parallel; operations on one
// ticker are serialized by that ticker's lock.
type Exchange struct {
	log          *zap.SugaredLogger
	clock        util.Clock
	ledger       *ledger.Ledger
	engine       *engine.Engine
	instruments  *instrument.Registry
	participants *participant.Registry
	store        *storage.PebbleStore // nil disables persistence

	mu      sync.Mutex
	tickers map[string]*tickerState

	// Hooks are registered during wiring, before any traffic.
	tradeHooks []func(t engine.Trade)
	bookHooks  []func(ticker string, bids, asks []book.PriceLevel)
}

// New builds the core. store may be nil for a purely in-memory exchange;
// otherwise previously committed state is restored before returning.
func New(log *zap.SugaredLogger, clock util.Clock, store *storage.PebbleStore) (*Exchange, error) {
	ex := &Exchange{
		log:          log,
		clock:        clock,
		ledger:       ledger.New(),
		engine:       engine.New(),
		instruments:  instrument.NewRegistry(),
		participants: participant.NewRegistry(),
		store:        store,
		tickers:      make(map[string]*tickerState),
	}
	if store != nil {
		st, err := store.Restore()
		if err != nil {
			return nil, fmt.Errorf("restore: %w", err)
		}
		ex.restore(st)
	}
	return ex, nil
}

func (ex *Exchange) restore(st *storage.State) {
	for _, p := range st.Participants {
		ex.participants.Put(p)
	}
	for _, ins := range st.Instruments {
		if err := ex.instruments.Add(ins); err != nil {
			ex.log.Warnw("restore_instrument_skipped", "ticker", ins.Ticker, "err", err)
		}
	}
	for k, amount := range st.Balances {
		ex.ledger.Set(k.UserID, k.Ticker, amount)
	}
	for i := range st.Orders {
		o := st.Orders[i]
		ex.engine.Register(&o)
	}
	for _, bk := range st.Books {
		ex.tickers[bk.Ticker] = &tickerState{book: bk, trades: st.Trades[bk.Ticker]}
	}
	// Trade history for tickers whose book never materialized on disk.
	for ticker, trades := range st.Trades {
		if _, ok := ex.tickers[ticker]; !ok {
			ex.tickers[ticker] = &tickerState{book: book.New(ticker), trades: trades}
		}
	}
	ex.log.Infow("state_restored",
		"participants", len(st.Participants),
		"instruments", len(st.Instruments),
		"orders", len(st.Orders),
		"books", len(st.Books),
	)
}

// OnTrade registers a hook invoked after each committed trade.
func (ex *Exchange) OnTrade(fn func(t engine.Trade)) {
	ex.tradeHooks = append(ex.tradeHooks, fn)
}

// OnBookUpdate registers a hook invoked with the aggregated depth after each
// pass that mutated a book.
func (ex *Exchange) OnBookUpdate(fn func(ticker string, bids, asks []book.PriceLevel)) {
	ex.bookHooks = append(ex.bookHooks, fn)
}

func (ex *Exchange) ticker(name string, create bool) *tickerState {
	ex.mu.Lock()
	defer ex.mu.Unlock()
	ts, ok := ex.tickers[name]
	if !ok && create {
		ts = &tickerState{book: book.New(name)}
		ex.tickers[name] = ts
	}
	return ts
}

// ---- participants ----

// RegisterParticipant creates (or returns) the participant with this name.
func (ex *Exchange) RegisterParticipant(name string) participant.Participant {
	p, created := ex.participants.Register(name)
	if created {
		if ex.store != nil {
			ex.store.SaveParticipant(p)
		}
		ex.log.Infow("participant_registered", "id", p.ID, "name", p.Name)
	}
	return p
}

// EnsureAdmin creates the bootstrap administrator if the key is configured
// and not yet present.
func (ex *Exchange) EnsureAdmin(name, apiKey string) {
	if apiKey == "" {
		return
	}
	if _, ok := ex.participants.ByKey(apiKey); ok {
		return
	}
	p := participant.Participant{ID: uuid.New(), Name: name, Role: participant.RoleAdmin, APIKey: apiKey}
	ex.participants.Put(p)
	if ex.store != nil {
		ex.store.SaveParticipant(p)
	}
	ex.log.Infow("admin_bootstrapped", "id", p.ID, "name", name)
}

// ParticipantByKey resolves the opaque API-key credential.
func (ex *Exchange) ParticipantByKey(apiKey string) (participant.Participant, error) {
	p, ok := ex.participants.ByKey(apiKey)
	if !ok {
		return participant.Participant{}, fmt.Errorf("%w: user account", engine.ErrNotFound)
	}
	return p, nil
}

// DeleteParticipant removes a participant; their ledger rows and order
// records remain.
func (ex *Exchange) DeleteParticipant(id uuid.UUID) (participant.Participant, error) {
	p, ok := ex.participants.Delete(id)
	if !ok {
		return participant.Participant{}, fmt.Errorf("%w: user %s", engine.ErrNotFound, id)
	}
	if ex.store != nil {
		ex.store.DeleteParticipant(id)
	}
	ex.log.Infow("participant_deleted", "id", id)
	return p, nil
}

// ---- instruments ----

func (ex *Exchange) AddInstrument(ins instrument.Instrument) error {
	if err := ex.instruments.Add(ins); err != nil {
		return err
	}
	if ex.store != nil {
		ex.store.SaveInstrument(ins)
	}
	ex.log.Infow("instrument_listed", "ticker", ins.Ticker, "name", ins.Name)
	return nil
}

func (ex *Exchange) RemoveInstrument(ticker string) error {
	if !ex.instruments.Remove(ticker) {
		return fmt.Errorf("%w: instrument %s", engine.ErrNotFound, ticker)
	}
	if ex.store != nil {
		ex.store.DeleteInstrument(ticker)
	}
	ex.log.Infow("instrument_delisted", "ticker", ticker)
	return nil
}

func (ex *Exchange) Instruments() []instrument.Instrument {
	return ex.instruments.List()
}

// ---- balances ----

func (ex *Exchange) Balances(userID uuid.UUID) (map[string]int64, error) {
	if _, ok := ex.participants.ByID(userID); !ok {
		return nil, fmt.Errorf("%w: user %s", engine.ErrNotFound, userID)
	}
	return ex.ledger.Balances(userID), nil
}

// Deposit is an administrative credit.
func (ex *Exchange) Deposit(userID uuid.UUID, ticker string, amount int64) error {
	if _, ok := ex.participants.ByID(userID); !ok {
		return fmt.Errorf("%w: user %s", engine.ErrNotFound, userID)
	}
	if amount <= 0 {
		return fmt.Errorf("deposit amount must be positive: %d", amount)
	}
	ex.ledger.Credit(userID, ticker, amount)
	if ex.store != nil {
		ex.store.SaveBalance(userID, ticker, ex.ledger.Get(userID, ticker))
	}
	ex.log.Infow("deposit", "user", userID, "ticker", ticker, "amount", amount)
	return nil
}

// Withdraw is an administrative debit; it is the one ledger mutation outside
// matching that checks sufficiency.
func (ex *Exchange) Withdraw(userID uuid.UUID, ticker string, amount int64) error {
	if _, ok := ex.participants.ByID(userID); !ok {
		return fmt.Errorf("%w: user %s", engine.ErrNotFound, userID)
	}
	if amount <= 0 {
		return fmt.Errorf("withdraw amount must be positive: %d", amount)
	}
	if !ex.ledger.HasAtLeast(userID, ticker, amount) {
		return fmt.Errorf("%w: %s", engine.ErrInsufficientBalance, ticker)
	}
	ex.ledger.Debit(userID, ticker, amount)
	if ex.store != nil {
		ex.store.SaveBalance(userID, ticker, ex.ledger.Get(userID, ticker))
	}
	ex.log.Infow("withdraw", "user", userID, "ticker", ticker, "amount", amount)
	return nil
}

// ---- orders ----

// OrderRequest is a validated order submission handed in by the API layer.
type OrderRequest struct {
	Direction book.Direction
	Ticker    string
	Kind      engine.Kind
	Qty       int64
	Price     int64 // limit orders only
}

// SubmitOrder validates the request against the caller's balances, then runs
// one matching pass under the ticker lock and commits it atomically.
//
// Validation is deliberately asymmetric: a SELL checks the caller's asset
// balance and a BUY limit checks the RUB cost, but a BUY market order is not
// balance-checked up front because its cost is unknown until matched.
func (ex *Exchange) SubmitOrder(req OrderRequest, callerID uuid.UUID) (engine.Order, error) {
	if _, ok := ex.participants.ByID(callerID); !ok {
		return engine.Order{}, fmt.Errorf("%w: user account", engine.ErrNotFound)
	}
	if !ex.instruments.Exists(req.Ticker) {
		return engine.Order{}, fmt.Errorf("%w: instrument %s", engine.ErrNotFound, req.Ticker)
	}
	if req.Qty <= 0 {
		return engine.Order{}, fmt.Errorf("qty must be positive: %d", req.Qty)
	}
	if req.Kind == engine.Limit && req.Price <= 0 {
		return engine.Order{}, fmt.Errorf("price must be positive: %d", req.Price)
	}

	switch {
	case req.Direction == book.Sell:
		if !ex.ledger.HasAtLeast(callerID, req.Ticker, req.Qty) {
			return engine.Order{}, fmt.Errorf("%w: %s for SELL order", engine.ErrInsufficientBalance, req.Ticker)
		}
	case req.Kind == engine.Limit:
		if !ex.ledger.HasAtLeast(callerID, engine.QuoteTicker, req.Qty*req.Price) {
			return engine.Order{}, fmt.Errorf("%w: %s for BUY order", engine.ErrInsufficientBalance, engine.QuoteTicker)
		}
	}

	o := &engine.Order{
		ID:        uuid.New(),
		UserID:    callerID,
		Ticker:    req.Ticker,
		Direction: req.Direction,
		Kind:      req.Kind,
		Qty:       req.Qty,
		Price:     req.Price,
		Status:    engine.StatusNew,
		CreatedAt: ex.clock.Now(),
	}
	ex.engine.Register(o)

	ts := ex.ticker(req.Ticker, true)
	ts.mu.Lock()
	res, err := ex.engine.Match(ts.book, ex.ledger, o, ex.clock.Now())
	if err != nil {
		ts.mu.Unlock()
		// Invariant violations are fatal: the book is corrupt.
		ex.log.Fatalw("matching_pass_failed", "order", o.ID, "err", err)
		return engine.Order{}, err
	}
	ts.trades = append(ts.trades, res.Trades...)
	ex.commitPass(ts, o, res)
	snapshot := *o
	bids, asks := ts.book.Depth(0)
	ts.mu.Unlock()

	ex.log.Infow("order_submitted",
		"order", o.ID, "user", callerID, "ticker", req.Ticker,
		"kind", req.Kind.String(), "direction", req.Direction.String(),
		"qty", req.Qty, "price", req.Price,
		"status", snapshot.Status, "filled", snapshot.Filled,
		"trades", len(res.Trades),
	)

	ex.notify(req.Ticker, res.Trades, bids, asks)
	return snapshot, nil
}

// commitPass persists everything one matching pass touched as a single
// batch. Called with the ticker lock held.
func (ex *Exchange) commitPass(ts *tickerState, taker *engine.Order, res *engine.MatchResult) {
	if ex.store == nil {
		return
	}
	balances := make(map[ledger.Key]int64, len(res.Balances))
	for _, k := range res.Balances {
		balances[k] = ex.ledger.Get(k.UserID, k.Ticker)
	}
	orders := []engine.Order{*taker}
	for _, id := range res.Makers {
		if m, ok := ex.engine.Get(id); ok {
			orders = append(orders, m)
		}
	}
	ex.store.CommitPass(storage.Pass{
		Balances: balances,
		Orders:   orders,
		Book:     ts.book,
		Trades:   res.Trades,
	})
}

// CancelOrder reverses the unfilled remainder of the caller's resting limit
// order.
func (ex *Exchange) CancelOrder(orderID, callerID uuid.UUID) error {
	if _, ok := ex.participants.ByID(callerID); !ok {
		return fmt.Errorf("%w: user account", engine.ErrNotFound)
	}
	o, ok := ex.engine.Get(orderID)
	if !ok {
		return fmt.Errorf("%w: order %s", engine.ErrNotFound, orderID)
	}
	if o.UserID != callerID {
		return fmt.Errorf("%w: order %s", engine.ErrForbidden, orderID)
	}

	ts := ex.ticker(o.Ticker, true)
	ts.mu.Lock()
	res, err := ex.engine.Cancel(ts.book, ex.ledger, orderID)
	if err != nil {
		ts.mu.Unlock()
		return err
	}
	if ex.store != nil {
		ex.store.CommitPass(storage.Pass{
			Balances: map[ledger.Key]int64{
				res.Balance: ex.ledger.Get(res.Balance.UserID, res.Balance.Ticker),
			},
			Orders: []engine.Order{res.Order},
			Book:   ts.book,
		})
	}
	bids, asks := ts.book.Depth(0)
	ts.mu.Unlock()

	ex.log.Infow("order_cancelled", "order", orderID, "user", callerID, "ticker", o.Ticker)
	ex.notify(o.Ticker, nil, bids, asks)
	return nil
}

func (ex *Exchange) GetOrder(orderID, callerID uuid.UUID) (engine.Order, error) {
	if _, ok := ex.participants.ByID(callerID); !ok {
		return engine.Order{}, fmt.Errorf("%w: user account", engine.ErrNotFound)
	}
	o, ok := ex.engine.Get(orderID)
	if !ok {
		return engine.Order{}, fmt.Errorf("%w: order %s", engine.ErrNotFound, orderID)
	}
	if o.UserID != callerID {
		return engine.Order{}, fmt.Errorf("%w: order %s", engine.ErrForbidden, orderID)
	}
	return o, nil
}

// ListOrders returns the caller's orders, cancelled ones excluded.
func (ex *Exchange) ListOrders(callerID uuid.UUID) ([]engine.Order, error) {
	if _, ok := ex.participants.ByID(callerID); !ok {
		return nil, fmt.Errorf("%w: user account", engine.ErrNotFound)
	}
	return ex.engine.ListByUser(callerID), nil
}

// ---- market data ----

// OrderBook returns the aggregated depth view. depth <= 0 returns all levels.
func (ex *Exchange) OrderBook(ticker string, depth int) (bids, asks []book.PriceLevel, err error) {
	if !ex.instruments.Exists(ticker) {
		return nil, nil, fmt.Errorf("%w: instrument %s", engine.ErrNotFound, ticker)
	}
	ts := ex.ticker(ticker, false)
	if ts == nil {
		return nil, nil, fmt.Errorf("%w: orderbook %s", engine.ErrNotFound, ticker)
	}
	ts.mu.Lock()
	defer ts.mu.Unlock()
	bids, asks = ts.book.Depth(depth)
	return bids, asks, nil
}

// Trades returns the ticker's trade history, newest first, optionally
// truncated to limit entries.
func (ex *Exchange) Trades(ticker string, limit int) ([]engine.Trade, error) {
	if !ex.instruments.Exists(ticker) {
		return nil, fmt.Errorf("%w: instrument %s", engine.ErrNotFound, ticker)
	}
	ts := ex.ticker(ticker, false)
	if ts == nil {
		return []engine.Trade{}, nil
	}
	ts.mu.Lock()
	defer ts.mu.Unlock()
	out := make([]engine.Trade, 0, len(ts.trades))
	for i := len(ts.trades) - 1; i >= 0; i-- {
		if limit > 0 && len(out) >= limit {
			break
		}
		out = append(out, ts.trades[i])
	}
	return out, nil
}

func (ex *Exchange) notify(ticker string, trades []engine.Trade, bids, asks []book.PriceLevel) {
	for _, t := range trades {
		for _, fn := range ex.tradeHooks {
			fn(t)
		}
	}
	for _, fn := range ex.bookHooks {
		fn(ticker, bids, asks)
	}
}
