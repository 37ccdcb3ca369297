package storage

import (
	"encoding/binary"
	"encoding/json"
	"fmt"
	"sync/atomic"

	"github.com/cockroachdb/pebble"
	"github.com/google/uuid"

	"github.com/birzha-dev/birzha/pkg/exchange/book"
	"github.com/birzha-dev/birzha/pkg/exchange/engine"
	"github.com/birzha-dev/birzha/pkg/exchange/instrument"
	"github.com/birzha-dev/birzha/pkg/exchange/ledger"
	"github.com/birzha-dev/birzha/pkg/exchange/participant"
)

// PebbleStore persists exchange state as JSON rows in Pebble. Matching and
// cancellation passes commit as a single synced batch, so a crash either
// keeps the whole pass or none of it.
//
// Durability failures panic: the in-memory state has already advanced, and
// continuing with state diverged from disk is worse than restarting into the
// last committed pass.
type PebbleStore struct {
	db       *pebble.DB
	tradeSeq atomic.Uint64
}

func Open(path string) (*PebbleStore, error) {
	db, err := pebble.Open(path, &pebble.Options{})
	if err != nil {
		return nil, err
	}
	s := &PebbleStore{db: db}
	if err := s.seedTradeSeq(); err != nil {
		db.Close()
		return nil, err
	}
	return s, nil
}

func (s *PebbleStore) Close() error { return s.db.Close() }

// seedTradeSeq continues the trade sequence after the highest persisted one.
func (s *PebbleStore) seedTradeSeq() error {
	iter, err := s.db.NewIter(&pebble.IterOptions{
		LowerBound: []byte("tr:"),
		UpperBound: prefixUpperBound([]byte("tr:")),
	})
	if err != nil {
		return err
	}
	defer iter.Close()
	var maxSeq uint64
	for iter.First(); iter.Valid(); iter.Next() {
		key := iter.Key()
		if len(key) < 8 {
			continue
		}
		if seq := binary.BigEndian.Uint64(key[len(key)-8:]); seq > maxSeq {
			maxSeq = seq
		}
	}
	s.tradeSeq.Store(maxSeq)
	return iter.Error()
}

type balanceRow struct {
	UserID uuid.UUID `json:"user_id"`
	Ticker string    `json:"ticker"`
	Amount int64     `json:"amount"`
}

func (s *PebbleStore) set(key []byte, v any) {
	val, err := json.Marshal(v)
	if err != nil {
		panic(fmt.Errorf("storage: encode %s: %w", key, err))
	}
	if err := s.db.Set(key, val, pebble.Sync); err != nil {
		panic(fmt.Errorf("storage: set %s: %w", key, err))
	}
}

func (s *PebbleStore) delete(key []byte) {
	if err := s.db.Delete(key, pebble.Sync); err != nil {
		panic(fmt.Errorf("storage: delete %s: %w", key, err))
	}
}

func (s *PebbleStore) SaveParticipant(p participant.Participant) { s.set(kParticipant(p.ID), p) }
func (s *PebbleStore) DeleteParticipant(id uuid.UUID)            { s.delete(kParticipant(id)) }

func (s *PebbleStore) SaveInstrument(ins instrument.Instrument) { s.set(kInstrument(ins.Ticker), ins) }
func (s *PebbleStore) DeleteInstrument(ticker string)           { s.delete(kInstrument(ticker)) }

// SaveBalance persists one ledger row outside a pass (deposit/withdraw).
func (s *PebbleStore) SaveBalance(userID uuid.UUID, ticker string, amount int64) {
	s.set(kBalance(userID, ticker), balanceRow{UserID: userID, Ticker: ticker, Amount: amount})
}

// SaveOrder persists one order record outside a pass (submission rejected
// from the book keeps its NEW record).
func (s *PebbleStore) SaveOrder(o engine.Order) { s.set(kOrder(o.ID), o) }

// Pass is everything one matching or cancellation pass touched.
type Pass struct {
	Balances map[ledger.Key]int64
	Orders   []engine.Order
	Book     *book.Book
	Trades   []engine.Trade
}

// CommitPass writes a whole pass as one synced batch.
func (s *PebbleStore) CommitPass(p Pass) {
	batch := s.db.NewBatch()
	defer batch.Close()

	put := func(key []byte, v any) {
		val, err := json.Marshal(v)
		if err != nil {
			panic(fmt.Errorf("storage: encode %s: %w", key, err))
		}
		if err := batch.Set(key, val, nil); err != nil {
			panic(fmt.Errorf("storage: batch set %s: %w", key, err))
		}
	}

	for k, amount := range p.Balances {
		put(kBalance(k.UserID, k.Ticker), balanceRow{UserID: k.UserID, Ticker: k.Ticker, Amount: amount})
	}
	for _, o := range p.Orders {
		put(kOrder(o.ID), o)
	}
	if p.Book != nil {
		put(kBook(p.Book.Ticker), p.Book)
	}
	for _, t := range p.Trades {
		put(kTrade(t.Ticker, s.tradeSeq.Add(1)), t)
	}

	if err := batch.Commit(pebble.Sync); err != nil {
		panic(fmt.Errorf("storage: commit pass: %w", err))
	}
}

// State is a full restore of the durable store.
type State struct {
	Participants []participant.Participant
	Instruments  []instrument.Instrument
	Balances     map[ledger.Key]int64
	Orders       []engine.Order
	Books        []*book.Book
	Trades       map[string][]engine.Trade // per ticker, execution order
}

// Restore loads everything back. Called once at startup.
func (s *PebbleStore) Restore() (*State, error) {
	st := &State{
		Balances: make(map[ledger.Key]int64),
		Trades:   make(map[string][]engine.Trade),
	}

	if err := s.scan("u:", func(val []byte) error {
		var p participant.Participant
		if err := json.Unmarshal(val, &p); err != nil {
			return err
		}
		st.Participants = append(st.Participants, p)
		return nil
	}); err != nil {
		return nil, err
	}

	if err := s.scan("i:", func(val []byte) error {
		var ins instrument.Instrument
		if err := json.Unmarshal(val, &ins); err != nil {
			return err
		}
		st.Instruments = append(st.Instruments, ins)
		return nil
	}); err != nil {
		return nil, err
	}

	if err := s.scan("bal:", func(val []byte) error {
		var row balanceRow
		if err := json.Unmarshal(val, &row); err != nil {
			return err
		}
		st.Balances[ledger.Key{UserID: row.UserID, Ticker: row.Ticker}] = row.Amount
		return nil
	}); err != nil {
		return nil, err
	}

	if err := s.scan("ord:", func(val []byte) error {
		var o engine.Order
		if err := json.Unmarshal(val, &o); err != nil {
			return err
		}
		st.Orders = append(st.Orders, o)
		return nil
	}); err != nil {
		return nil, err
	}

	if err := s.scan("book:", func(val []byte) error {
		var b book.Book
		if err := json.Unmarshal(val, &b); err != nil {
			return err
		}
		st.Books = append(st.Books, &b)
		return nil
	}); err != nil {
		return nil, err
	}

	if err := s.scan("tr:", func(val []byte) error {
		var t engine.Trade
		if err := json.Unmarshal(val, &t); err != nil {
			return err
		}
		st.Trades[t.Ticker] = append(st.Trades[t.Ticker], t)
		return nil
	}); err != nil {
		return nil, err
	}

	return st, nil
}

func (s *PebbleStore) scan(prefix string, visit func(val []byte) error) error {
	iter, err := s.db.NewIter(&pebble.IterOptions{
		LowerBound: []byte(prefix),
		UpperBound: prefixUpperBound([]byte(prefix)),
	})
	if err != nil {
		return err
	}
	defer iter.Close()
	for iter.First(); iter.Valid(); iter.Next() {
		val, err := iter.ValueAndErr()
		if err != nil {
			return err
		}
		if err := visit(val); err != nil {
			return err
		}
	}
	return iter.Error()
}
