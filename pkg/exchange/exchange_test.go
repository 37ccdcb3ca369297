package exchange

import (
	"errors"
	"testing"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/birzha-dev/birzha/pkg/exchange/book"
	"github.com/birzha-dev/birzha/pkg/exchange/engine"
	"github.com/birzha-dev/birzha/pkg/exchange/instrument"
	"github.com/birzha-dev/birzha/pkg/exchange/participant"
	"github.com/birzha-dev/birzha/pkg/util"
)

func newTestExchange(t *testing.T) *Exchange {
	t.Helper()
	clock := &util.FixedClock{T: time.Date(2025, 6, 1, 12, 0, 0, 0, time.UTC)}
	ex, err := New(zap.NewNop().Sugar(), clock, nil)
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	if err := ex.AddInstrument(instrument.Instrument{Name: "Severstal", Ticker: "CHMF"}); err != nil {
		t.Fatalf("AddInstrument: %v", err)
	}
	return ex
}

func TestSubmitOrderUnknownCaller(t *testing.T) {
	ex := newTestExchange(t)
	_, err := ex.SubmitOrder(OrderRequest{
		Direction: book.Buy, Ticker: "CHMF", Kind: engine.Limit, Qty: 1, Price: 100,
	}, uuid.New())
	if !errors.Is(err, engine.ErrNotFound) {
		t.Fatalf("err = %v, want ErrNotFound", err)
	}
}

func TestSubmitOrderUnknownInstrument(t *testing.T) {
	ex := newTestExchange(t)
	p := ex.RegisterParticipant("alice")
	_, err := ex.SubmitOrder(OrderRequest{
		Direction: book.Buy, Ticker: "GAZP", Kind: engine.Limit, Qty: 1, Price: 100,
	}, p.ID)
	if !errors.Is(err, engine.ErrNotFound) {
		t.Fatalf("err = %v, want ErrNotFound", err)
	}
}

func TestSubmitOrderBalanceChecks(t *testing.T) {
	ex := newTestExchange(t)
	p := ex.RegisterParticipant("alice")

	// SELL requires the asset.
	_, err := ex.SubmitOrder(OrderRequest{
		Direction: book.Sell, Ticker: "CHMF", Kind: engine.Limit, Qty: 5, Price: 100,
	}, p.ID)
	if !errors.Is(err, engine.ErrInsufficientBalance) {
		t.Fatalf("sell err = %v, want ErrInsufficientBalance", err)
	}

	// BUY limit requires qty*price in quote currency.
	_, err = ex.SubmitOrder(OrderRequest{
		Direction: book.Buy, Ticker: "CHMF", Kind: engine.Limit, Qty: 5, Price: 100,
	}, p.ID)
	if !errors.Is(err, engine.ErrInsufficientBalance) {
		t.Fatalf("buy limit err = %v, want ErrInsufficientBalance", err)
	}

	// BUY market is not balance-checked up front. With an empty book it
	// comes back unfilled rather than rejected.
	o, err := ex.SubmitOrder(OrderRequest{
		Direction: book.Buy, Ticker: "CHMF", Kind: engine.Market, Qty: 5,
	}, p.ID)
	if err != nil {
		t.Fatalf("buy market err = %v", err)
	}
	if o.Status != engine.StatusNew || o.Filled != 0 {
		t.Fatalf("market order = %s filled=%d, want NEW filled=0", o.Status, o.Filled)
	}
}

func TestSubmitOrderValidatesQtyAndPrice(t *testing.T) {
	ex := newTestExchange(t)
	p := ex.RegisterParticipant("alice")
	if err := ex.Deposit(p.ID, engine.QuoteTicker, 1000); err != nil {
		t.Fatalf("Deposit: %v", err)
	}

	if _, err := ex.SubmitOrder(OrderRequest{
		Direction: book.Buy, Ticker: "CHMF", Kind: engine.Limit, Qty: 0, Price: 100,
	}, p.ID); err == nil {
		t.Fatal("zero qty accepted")
	}
	if _, err := ex.SubmitOrder(OrderRequest{
		Direction: book.Buy, Ticker: "CHMF", Kind: engine.Limit, Qty: 1, Price: 0,
	}, p.ID); err == nil {
		t.Fatal("zero price accepted")
	}
}

func TestSubmitAndMatchEndToEnd(t *testing.T) {
	ex := newTestExchange(t)
	seller := ex.RegisterParticipant("seller")
	buyer := ex.RegisterParticipant("buyer")
	if err := ex.Deposit(seller.ID, "CHMF", 10); err != nil {
		t.Fatalf("Deposit: %v", err)
	}
	if err := ex.Deposit(buyer.ID, engine.QuoteTicker, 1000); err != nil {
		t.Fatalf("Deposit: %v", err)
	}

	ask, err := ex.SubmitOrder(OrderRequest{
		Direction: book.Sell, Ticker: "CHMF", Kind: engine.Limit, Qty: 10, Price: 100,
	}, seller.ID)
	if err != nil {
		t.Fatalf("ask: %v", err)
	}
	if ask.Status != engine.StatusNew {
		t.Fatalf("ask status = %s, want NEW", ask.Status)
	}

	bid, err := ex.SubmitOrder(OrderRequest{
		Direction: book.Buy, Ticker: "CHMF", Kind: engine.Limit, Qty: 4, Price: 100,
	}, buyer.ID)
	if err != nil {
		t.Fatalf("bid: %v", err)
	}
	if bid.Status != engine.StatusExecuted || bid.Filled != 4 {
		t.Fatalf("bid = %s filled=%d, want EXECUTED filled=4", bid.Status, bid.Filled)
	}

	buyerBal, err := ex.Balances(buyer.ID)
	if err != nil {
		t.Fatalf("Balances: %v", err)
	}
	if buyerBal[engine.QuoteTicker] != 600 || buyerBal["CHMF"] != 4 {
		t.Fatalf("buyer balances = %v, want RUB=600 CHMF=4", buyerBal)
	}
	sellerBal, err := ex.Balances(seller.ID)
	if err != nil {
		t.Fatalf("Balances: %v", err)
	}
	if sellerBal[engine.QuoteTicker] != 400 || sellerBal["CHMF"] != 6 {
		t.Fatalf("seller balances = %v, want RUB=400 CHMF=6", sellerBal)
	}

	bids, asks, err := ex.OrderBook("CHMF", 0)
	if err != nil {
		t.Fatalf("OrderBook: %v", err)
	}
	if len(bids) != 0 {
		t.Fatalf("bids = %v, want empty", bids)
	}
	if len(asks) != 1 || asks[0].Price != 100 || asks[0].Qty != 6 {
		t.Fatalf("asks = %v, want [{100 6}]", asks)
	}

	trades, err := ex.Trades("CHMF", 0)
	if err != nil {
		t.Fatalf("Trades: %v", err)
	}
	if len(trades) != 1 || trades[0].Qty != 4 || trades[0].Price != 100 {
		t.Fatalf("trades = %v, want one 4@100", trades)
	}
}

func TestTradesNewestFirstWithLimit(t *testing.T) {
	ex := newTestExchange(t)
	seller := ex.RegisterParticipant("seller")
	buyer := ex.RegisterParticipant("buyer")
	_ = ex.Deposit(seller.ID, "CHMF", 10)
	_ = ex.Deposit(buyer.ID, engine.QuoteTicker, 10000)

	if _, err := ex.SubmitOrder(OrderRequest{
		Direction: book.Sell, Ticker: "CHMF", Kind: engine.Limit, Qty: 10, Price: 100,
	}, seller.ID); err != nil {
		t.Fatalf("ask: %v", err)
	}
	for i := 0; i < 3; i++ {
		if _, err := ex.SubmitOrder(OrderRequest{
			Direction: book.Buy, Ticker: "CHMF", Kind: engine.Limit, Qty: int64(i + 1), Price: 100,
		}, buyer.ID); err != nil {
			t.Fatalf("bid %d: %v", i, err)
		}
	}

	trades, err := ex.Trades("CHMF", 2)
	if err != nil {
		t.Fatalf("Trades: %v", err)
	}
	if len(trades) != 2 {
		t.Fatalf("len(trades) = %d, want 2", len(trades))
	}
	// Newest first: the last bid was qty 3, then qty 2.
	if trades[0].Qty != 3 || trades[1].Qty != 2 {
		t.Fatalf("trades = %v, want qty 3 then 2", trades)
	}
}

func TestCancelOrderOwnership(t *testing.T) {
	ex := newTestExchange(t)
	owner := ex.RegisterParticipant("owner")
	other := ex.RegisterParticipant("other")
	_ = ex.Deposit(owner.ID, engine.QuoteTicker, 1000)

	o, err := ex.SubmitOrder(OrderRequest{
		Direction: book.Buy, Ticker: "CHMF", Kind: engine.Limit, Qty: 5, Price: 100,
	}, owner.ID)
	if err != nil {
		t.Fatalf("submit: %v", err)
	}

	if err := ex.CancelOrder(o.ID, other.ID); !errors.Is(err, engine.ErrForbidden) {
		t.Fatalf("foreign cancel err = %v, want ErrForbidden", err)
	}
	if err := ex.CancelOrder(uuid.New(), owner.ID); !errors.Is(err, engine.ErrNotFound) {
		t.Fatalf("unknown cancel err = %v, want ErrNotFound", err)
	}
	if err := ex.CancelOrder(o.ID, owner.ID); err != nil {
		t.Fatalf("owner cancel err = %v", err)
	}

	got, err := ex.GetOrder(o.ID, owner.ID)
	if err != nil {
		t.Fatalf("GetOrder: %v", err)
	}
	if got.Status != engine.StatusCancelled {
		t.Fatalf("status = %s, want CANCELLED", got.Status)
	}
	bal, _ := ex.Balances(owner.ID)
	if bal[engine.QuoteTicker] != 1500 {
		t.Fatalf("RUB after cancel = %d, want 1500", bal[engine.QuoteTicker])
	}
}

func TestGetOrderForbiddenForOthers(t *testing.T) {
	ex := newTestExchange(t)
	owner := ex.RegisterParticipant("owner")
	other := ex.RegisterParticipant("other")
	_ = ex.Deposit(owner.ID, engine.QuoteTicker, 1000)

	o, err := ex.SubmitOrder(OrderRequest{
		Direction: book.Buy, Ticker: "CHMF", Kind: engine.Limit, Qty: 1, Price: 100,
	}, owner.ID)
	if err != nil {
		t.Fatalf("submit: %v", err)
	}
	if _, err := ex.GetOrder(o.ID, other.ID); !errors.Is(err, engine.ErrForbidden) {
		t.Fatalf("err = %v, want ErrForbidden", err)
	}
}

func TestDepositWithdraw(t *testing.T) {
	ex := newTestExchange(t)
	p := ex.RegisterParticipant("alice")

	if err := ex.Deposit(uuid.New(), "RUB", 100); !errors.Is(err, engine.ErrNotFound) {
		t.Fatalf("deposit unknown user err = %v, want ErrNotFound", err)
	}
	if err := ex.Deposit(p.ID, "RUB", 0); err == nil {
		t.Fatal("zero deposit accepted")
	}
	if err := ex.Deposit(p.ID, "RUB", 500); err != nil {
		t.Fatalf("deposit: %v", err)
	}
	if err := ex.Withdraw(p.ID, "RUB", 600); !errors.Is(err, engine.ErrInsufficientBalance) {
		t.Fatalf("overdraw err = %v, want ErrInsufficientBalance", err)
	}
	if err := ex.Withdraw(p.ID, "RUB", 200); err != nil {
		t.Fatalf("withdraw: %v", err)
	}
	bal, err := ex.Balances(p.ID)
	if err != nil {
		t.Fatalf("Balances: %v", err)
	}
	if bal["RUB"] != 300 {
		t.Fatalf("RUB = %d, want 300", bal["RUB"])
	}
}

func TestOrderBookMissing(t *testing.T) {
	ex := newTestExchange(t)
	if _, _, err := ex.OrderBook("GAZP", 0); !errors.Is(err, engine.ErrNotFound) {
		t.Fatalf("unknown instrument err = %v, want ErrNotFound", err)
	}
	// Listed instrument with no traffic yet has no book.
	if _, _, err := ex.OrderBook("CHMF", 0); !errors.Is(err, engine.ErrNotFound) {
		t.Fatalf("empty book err = %v, want ErrNotFound", err)
	}
}

func TestRegisterParticipantIdempotent(t *testing.T) {
	ex := newTestExchange(t)
	a := ex.RegisterParticipant("alice")
	b := ex.RegisterParticipant("alice")
	if a.ID != b.ID || a.APIKey != b.APIKey {
		t.Fatalf("re-registration returned a different participant: %v vs %v", a, b)
	}
}

func TestEnsureAdmin(t *testing.T) {
	ex := newTestExchange(t)
	ex.EnsureAdmin("admin", "key-secret")
	p, err := ex.ParticipantByKey("key-secret")
	if err != nil {
		t.Fatalf("ParticipantByKey: %v", err)
	}
	if p.Role != participant.RoleAdmin {
		t.Fatalf("role = %s, want ADMIN", p.Role)
	}

	ex.EnsureAdmin("admin", "key-secret")
	n := 0
	ex.participants.ForEach(func(participant.Participant) { n++ })
	if n != 1 {
		t.Fatalf("participants = %d, want 1 after repeated EnsureAdmin", n)
	}
}

func TestHooksFireAfterMatch(t *testing.T) {
	ex := newTestExchange(t)
	seller := ex.RegisterParticipant("seller")
	buyer := ex.RegisterParticipant("buyer")
	_ = ex.Deposit(seller.ID, "CHMF", 5)
	_ = ex.Deposit(buyer.ID, engine.QuoteTicker, 1000)

	var gotTrades []engine.Trade
	var bookUpdates int
	ex.OnTrade(func(tr engine.Trade) { gotTrades = append(gotTrades, tr) })
	ex.OnBookUpdate(func(ticker string, bids, asks []book.PriceLevel) { bookUpdates++ })

	if _, err := ex.SubmitOrder(OrderRequest{
		Direction: book.Sell, Ticker: "CHMF", Kind: engine.Limit, Qty: 5, Price: 100,
	}, seller.ID); err != nil {
		t.Fatalf("ask: %v", err)
	}
	if _, err := ex.SubmitOrder(OrderRequest{
		Direction: book.Buy, Ticker: "CHMF", Kind: engine.Limit, Qty: 2, Price: 100,
	}, buyer.ID); err != nil {
		t.Fatalf("bid: %v", err)
	}

	if len(gotTrades) != 1 || gotTrades[0].Qty != 2 {
		t.Fatalf("trade hook got %v, want one trade qty=2", gotTrades)
	}
	if bookUpdates != 2 {
		t.Fatalf("book hook fired %d times, want 2", bookUpdates)
	}
}

func TestListOrdersExcludesCancelled(t *testing.T) {
	ex := newTestExchange(t)
	p := ex.RegisterParticipant("alice")
	_ = ex.Deposit(p.ID, engine.QuoteTicker, 10000)

	o1, _ := ex.SubmitOrder(OrderRequest{
		Direction: book.Buy, Ticker: "CHMF", Kind: engine.Limit, Qty: 1, Price: 100,
	}, p.ID)
	o2, _ := ex.SubmitOrder(OrderRequest{
		Direction: book.Buy, Ticker: "CHMF", Kind: engine.Limit, Qty: 1, Price: 90,
	}, p.ID)
	if err := ex.CancelOrder(o1.ID, p.ID); err != nil {
		t.Fatalf("cancel: %v", err)
	}

	orders, err := ex.ListOrders(p.ID)
	if err != nil {
		t.Fatalf("ListOrders: %v", err)
	}
	if len(orders) != 1 || orders[0].ID != o2.ID {
		t.Fatalf("orders = %v, want only %s", orders, o2.ID)
	}
}
