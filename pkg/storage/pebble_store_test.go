package storage

import (
	"testing"
	"time"

	"github.com/google/uuid"

	"github.com/birzha-dev/birzha/pkg/exchange/book"
	"github.com/birzha-dev/birzha/pkg/exchange/engine"
	"github.com/birzha-dev/birzha/pkg/exchange/instrument"
	"github.com/birzha-dev/birzha/pkg/exchange/ledger"
	"github.com/birzha-dev/birzha/pkg/exchange/participant"
)

func TestRestoreRoundTrip(t *testing.T) {
	dir := t.TempDir()
	s, err := Open(dir)
	if err != nil {
		t.Fatalf("Open: %v", err)
	}

	user := uuid.New()
	p := participant.Participant{ID: user, Name: "alice", Role: participant.RoleUser, APIKey: "key-x"}
	s.SaveParticipant(p)
	s.SaveInstrument(instrument.Instrument{Name: "Acme", Ticker: "ACME"})

	bk := book.New("ACME")
	bk.Bids = []*book.Level{{Price: 100, Qty: 5, UserID: user, OrderID: uuid.New(), Reserved: 500}}
	order := engine.Order{
		ID: uuid.New(), UserID: user, Ticker: "ACME",
		Direction: book.Buy, Kind: engine.Limit, Qty: 5, Price: 100,
		Status: engine.StatusNew, CreatedAt: time.Now().UTC().Truncate(time.Second),
	}
	s.CommitPass(Pass{
		Balances: map[ledger.Key]int64{{UserID: user, Ticker: "RUB"}: 1000},
		Orders:   []engine.Order{order},
		Book:     bk,
		Trades: []engine.Trade{
			{Ticker: "ACME", Qty: 2, Price: 99, Timestamp: order.CreatedAt},
			{Ticker: "ACME", Qty: 1, Price: 101, Timestamp: order.CreatedAt},
		},
	})

	if err := s.Close(); err != nil {
		t.Fatalf("Close: %v", err)
	}

	s2, err := Open(dir)
	if err != nil {
		t.Fatalf("reopen: %v", err)
	}
	defer s2.Close()

	st, err := s2.Restore()
	if err != nil {
		t.Fatalf("Restore: %v", err)
	}

	if len(st.Participants) != 1 || st.Participants[0].APIKey != "key-x" {
		t.Fatalf("participants = %+v", st.Participants)
	}
	if len(st.Instruments) != 1 || st.Instruments[0].Ticker != "ACME" {
		t.Fatalf("instruments = %+v", st.Instruments)
	}
	if got := st.Balances[ledger.Key{UserID: user, Ticker: "RUB"}]; got != 1000 {
		t.Fatalf("balance = %d, want 1000", got)
	}
	if len(st.Orders) != 1 || st.Orders[0].ID != order.ID || st.Orders[0].Status != engine.StatusNew {
		t.Fatalf("orders = %+v", st.Orders)
	}
	if len(st.Books) != 1 || len(st.Books[0].Bids) != 1 || st.Books[0].Bids[0].Reserved != 500 {
		t.Fatalf("books = %+v", st.Books)
	}
	trades := st.Trades["ACME"]
	if len(trades) != 2 || trades[0].Price != 99 || trades[1].Price != 101 {
		t.Fatalf("trades = %+v, want execution order preserved", trades)
	}

	// Sequence continues after restart instead of overwriting old trades.
	s2.CommitPass(Pass{Trades: []engine.Trade{{Ticker: "ACME", Qty: 9, Price: 105, Timestamp: order.CreatedAt}}})
	st2, err := s2.Restore()
	if err != nil {
		t.Fatalf("Restore: %v", err)
	}
	if len(st2.Trades["ACME"]) != 3 {
		t.Fatalf("trades after second commit = %d, want 3", len(st2.Trades["ACME"]))
	}
}
