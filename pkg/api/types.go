package api

// Wire types for REST endpoints and WebSocket messages.

// ==============================
// REST Request Types
// ==============================

// RegisterRequest is the payload for POST /api/v1/public/register.
type RegisterRequest struct {
	Name string `json:"name"`
}

// CreateOrderRequest is the payload for POST /api/v1/order. A present price
// makes it a limit order; an absent price makes it a market order.
type CreateOrderRequest struct {
	Direction string `json:"direction"` // "BUY" or "SELL"
	Ticker    string `json:"ticker"`
	Qty       int64  `json:"qty"`
	Price     *int64 `json:"price,omitempty"`
}

// InstrumentRequest is the payload for POST /api/v1/admin/instrument.
type InstrumentRequest struct {
	Name   string `json:"name"`
	Ticker string `json:"ticker"`
}

// BalanceChangeRequest is the payload for the admin deposit and withdraw
// endpoints.
type BalanceChangeRequest struct {
	UserID string `json:"user_id"`
	Ticker string `json:"ticker"`
	Amount int64  `json:"amount"`
}

// ==============================
// REST Response Types
// ==============================

// RegisterResponse returns the credential for a newly registered participant.
type RegisterResponse struct {
	UserID string `json:"user_id"`
	Name   string `json:"name"`
	APIKey string `json:"api_key"`
}

// InstrumentInfo represents a listed instrument.
type InstrumentInfo struct {
	Name   string `json:"name"`
	Ticker string `json:"ticker"`
}

// OrderInfo represents an order, open or historical.
type OrderInfo struct {
	ID        string `json:"id"`
	Ticker    string `json:"ticker"`
	Direction string `json:"direction"` // "BUY" or "SELL"
	Kind      string `json:"kind"`      // "LIMIT" or "MARKET"
	Qty       int64  `json:"qty"`
	Price     int64  `json:"price"` // 0 for market orders
	Filled    int64  `json:"filled"`
	Status    string `json:"status"`
	Timestamp int64  `json:"timestamp"` // Unix milliseconds
}

// PriceLevel is an aggregated [price, qty] tuple.
type PriceLevel struct {
	Price int64 `json:"price"`
	Qty   int64 `json:"qty"`
}

// OrderbookSnapshot represents the aggregated book at query time.
type OrderbookSnapshot struct {
	Ticker    string       `json:"ticker"`
	Bids      []PriceLevel `json:"bid_levels"` // sorted high to low
	Asks      []PriceLevel `json:"ask_levels"` // sorted low to high
	Timestamp int64        `json:"timestamp"`  // Unix milliseconds
}

// TradeInfo represents an executed trade.
type TradeInfo struct {
	Ticker    string `json:"ticker"`
	Qty       int64  `json:"amount"`
	Price     int64  `json:"price"`
	Timestamp int64  `json:"timestamp"` // Unix milliseconds
}

// StatusResponse is the generic acknowledgement body.
type StatusResponse struct {
	Status string `json:"status"` // "OK"
}

// ErrorResponse is returned for all errors.
type ErrorResponse struct {
	Error   string `json:"error"`
	Message string `json:"message"`
}

// ==============================
// WebSocket Message Types
// ==============================

// WSSubscribeRequest is sent by a client to manage channel subscriptions.
type WSSubscribeRequest struct {
	Op       string   `json:"op"`       // "subscribe" or "unsubscribe"
	Channels []string `json:"channels"` // e.g. ["orderbook:CHMF", "trades:CHMF"]
}

// OrderbookUpdate is broadcast after every pass that mutated a book.
type OrderbookUpdate struct {
	Type      string       `json:"type"` // "orderbook"
	Ticker    string       `json:"ticker"`
	Bids      []PriceLevel `json:"bid_levels"`
	Asks      []PriceLevel `json:"ask_levels"`
	Timestamp int64        `json:"timestamp"`
}

// TradeUpdate is broadcast when a trade executes.
type TradeUpdate struct {
	Type      string `json:"type"` // "trade"
	Ticker    string `json:"ticker"`
	Qty       int64  `json:"amount"`
	Price     int64  `json:"price"`
	Timestamp int64  `json:"timestamp"`
}
