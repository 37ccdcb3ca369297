package api

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/gorilla/mux"
	"github.com/rs/cors"
	"go.uber.org/zap"

	"github.com/birzha-dev/birzha/pkg/exchange"
	"github.com/birzha-dev/birzha/pkg/exchange/book"
	"github.com/birzha-dev/birzha/pkg/exchange/engine"
	"github.com/birzha-dev/birzha/pkg/exchange/instrument"
	"github.com/birzha-dev/birzha/pkg/exchange/participant"
)

type ctxKey int

const callerKey ctxKey = 0

// Server handles REST API and WebSocket connections.
type Server struct {
	ex      *exchange.Exchange
	router  *mux.Router
	hub     *Hub
	log     *zap.SugaredLogger
	origins []string
}

// NewServer wires the REST routes and subscribes the WebSocket hub to the
// exchange's market-data hooks.
func NewServer(ex *exchange.Exchange, log *zap.SugaredLogger, allowedOrigins []string) *Server {
	s := &Server{
		ex:      ex,
		router:  mux.NewRouter(),
		hub:     NewHub(),
		log:     log,
		origins: allowedOrigins,
	}

	ex.OnTrade(func(t engine.Trade) {
		s.hub.BroadcastToChannel("trades:"+t.Ticker, TradeUpdate{
			Type:      "trade",
			Ticker:    t.Ticker,
			Qty:       t.Qty,
			Price:     t.Price,
			Timestamp: t.Timestamp.UnixMilli(),
		})
	})
	ex.OnBookUpdate(func(ticker string, bids, asks []book.PriceLevel) {
		s.hub.BroadcastToChannel("orderbook:"+ticker, OrderbookUpdate{
			Type:      "orderbook",
			Ticker:    ticker,
			Bids:      toAPILevels(bids),
			Asks:      toAPILevels(asks),
			Timestamp: time.Now().UnixMilli(),
		})
	})

	s.setupRoutes()
	return s
}

func (s *Server) setupRoutes() {
	api := s.router.PathPrefix("/api/v1").Subrouter()

	// Public endpoints, no credential required
	api.HandleFunc("/public/register", s.handleRegister).Methods("POST")
	api.HandleFunc("/public/instrument", s.handleListInstruments).Methods("GET")
	api.HandleFunc("/public/orderbook/{ticker}", s.handleGetOrderbook).Methods("GET")
	api.HandleFunc("/public/transactions/{ticker}", s.handleGetTrades).Methods("GET")

	// Authenticated endpoints
	user := api.NewRoute().Subrouter()
	user.Use(s.authMiddleware)
	user.HandleFunc("/balance", s.handleGetBalance).Methods("GET")
	user.HandleFunc("/order", s.handleCreateOrder).Methods("POST")
	user.HandleFunc("/order", s.handleListOrders).Methods("GET")
	user.HandleFunc("/order/{order_id}", s.handleGetOrder).Methods("GET")
	user.HandleFunc("/order/{order_id}", s.handleCancelOrder).Methods("DELETE")

	// Administrative endpoints
	admin := api.PathPrefix("/admin").Subrouter()
	admin.Use(s.authMiddleware, s.adminMiddleware)
	admin.HandleFunc("/instrument", s.handleAddInstrument).Methods("POST")
	admin.HandleFunc("/instrument/{ticker}", s.handleRemoveInstrument).Methods("DELETE")
	admin.HandleFunc("/balance/deposit", s.handleDeposit).Methods("POST")
	admin.HandleFunc("/balance/withdraw", s.handleWithdraw).Methods("POST")
	admin.HandleFunc("/user/{user_id}", s.handleDeleteUser).Methods("DELETE")

	// WebSocket endpoint
	s.router.HandleFunc("/ws", s.handleWebSocket)

	// Health check
	s.router.HandleFunc("/health", s.handleHealth).Methods("GET")
}

// Start runs the WebSocket hub and serves HTTP until the listener fails.
func (s *Server) Start(addr string) error {
	go s.hub.Run()

	c := cors.New(cors.Options{
		AllowedOrigins:   s.origins,
		AllowedMethods:   []string{"GET", "POST", "DELETE", "OPTIONS"},
		AllowedHeaders:   []string{"Content-Type", "Authorization"},
		AllowCredentials: true,
	})

	s.log.Infow("api_listening", "addr", addr)
	return http.ListenAndServe(addr, c.Handler(s.router))
}

// Handler exposes the routed handler for tests.
func (s *Server) Handler() http.Handler { return s.router }

// ==============================
// Middleware
// ==============================

// authMiddleware resolves the "Authorization: TOKEN <api_key>" credential
// and stores the participant in the request context.
func (s *Server) authMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		header := r.Header.Get("Authorization")
		if header == "" {
			respondError(w, http.StatusUnauthorized, "missing credentials", "")
			return
		}
		scheme, key, ok := strings.Cut(header, " ")
		if !ok || scheme != "TOKEN" || key == "" {
			respondError(w, http.StatusUnauthorized, "malformed authorization header", "")
			return
		}
		p, err := s.ex.ParticipantByKey(key)
		if err != nil {
			respondError(w, http.StatusUnauthorized, "unknown api key", "")
			return
		}
		next.ServeHTTP(w, r.WithContext(context.WithValue(r.Context(), callerKey, p)))
	})
}

func (s *Server) adminMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if caller(r).Role != participant.RoleAdmin {
			respondError(w, http.StatusForbidden, "admin credential required", "")
			return
		}
		next.ServeHTTP(w, r)
	})
}

func caller(r *http.Request) participant.Participant {
	return r.Context().Value(callerKey).(participant.Participant)
}

// ==============================
// Public Handlers
// ==============================

func (s *Server) handleRegister(w http.ResponseWriter, r *http.Request) {
	var req RegisterRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		respondError(w, http.StatusBadRequest, "invalid request body", err.Error())
		return
	}
	if strings.TrimSpace(req.Name) == "" {
		respondError(w, http.StatusBadRequest, "name is required", "")
		return
	}

	p := s.ex.RegisterParticipant(strings.TrimSpace(req.Name))
	respondJSON(w, RegisterResponse{
		UserID: p.ID.String(),
		Name:   p.Name,
		APIKey: p.APIKey,
	})
}

func (s *Server) handleListInstruments(w http.ResponseWriter, r *http.Request) {
	list := s.ex.Instruments()
	response := make([]InstrumentInfo, len(list))
	for i, ins := range list {
		response[i] = InstrumentInfo{Name: ins.Name, Ticker: ins.Ticker}
	}
	respondJSON(w, response)
}

func (s *Server) handleGetOrderbook(w http.ResponseWriter, r *http.Request) {
	ticker := mux.Vars(r)["ticker"]
	depth := queryInt(r, "depth", 0)

	bids, asks, err := s.ex.OrderBook(ticker, depth)
	if err != nil {
		respondDomainError(w, err)
		return
	}
	respondJSON(w, OrderbookSnapshot{
		Ticker:    ticker,
		Bids:      toAPILevels(bids),
		Asks:      toAPILevels(asks),
		Timestamp: time.Now().UnixMilli(),
	})
}

func (s *Server) handleGetTrades(w http.ResponseWriter, r *http.Request) {
	ticker := mux.Vars(r)["ticker"]
	limit := queryInt(r, "limit", 0)

	trades, err := s.ex.Trades(ticker, limit)
	if err != nil {
		respondDomainError(w, err)
		return
	}
	response := make([]TradeInfo, len(trades))
	for i, t := range trades {
		response[i] = TradeInfo{
			Ticker:    t.Ticker,
			Qty:       t.Qty,
			Price:     t.Price,
			Timestamp: t.Timestamp.UnixMilli(),
		}
	}
	respondJSON(w, response)
}

// ==============================
// Authenticated Handlers
// ==============================

func (s *Server) handleGetBalance(w http.ResponseWriter, r *http.Request) {
	balances, err := s.ex.Balances(caller(r).ID)
	if err != nil {
		respondDomainError(w, err)
		return
	}
	respondJSON(w, balances)
}

func (s *Server) handleCreateOrder(w http.ResponseWriter, r *http.Request) {
	var req CreateOrderRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		respondError(w, http.StatusBadRequest, "invalid request body", err.Error())
		return
	}
	direction, err := book.ParseDirection(req.Direction)
	if err != nil {
		respondError(w, http.StatusBadRequest, "invalid direction", err.Error())
		return
	}

	order := exchange.OrderRequest{
		Direction: direction,
		Ticker:    req.Ticker,
		Kind:      engine.Market,
		Qty:       req.Qty,
	}
	if req.Price != nil {
		order.Kind = engine.Limit
		order.Price = *req.Price
	}

	o, err := s.ex.SubmitOrder(order, caller(r).ID)
	if err != nil {
		respondDomainError(w, err)
		return
	}
	respondJSON(w, toOrderInfo(o))
}

func (s *Server) handleListOrders(w http.ResponseWriter, r *http.Request) {
	orders, err := s.ex.ListOrders(caller(r).ID)
	if err != nil {
		respondDomainError(w, err)
		return
	}
	response := make([]OrderInfo, len(orders))
	for i, o := range orders {
		response[i] = toOrderInfo(o)
	}
	respondJSON(w, response)
}

func (s *Server) handleGetOrder(w http.ResponseWriter, r *http.Request) {
	orderID, err := uuid.Parse(mux.Vars(r)["order_id"])
	if err != nil {
		respondError(w, http.StatusBadRequest, "invalid order id", err.Error())
		return
	}
	o, err := s.ex.GetOrder(orderID, caller(r).ID)
	if err != nil {
		respondDomainError(w, err)
		return
	}
	respondJSON(w, toOrderInfo(o))
}

func (s *Server) handleCancelOrder(w http.ResponseWriter, r *http.Request) {
	orderID, err := uuid.Parse(mux.Vars(r)["order_id"])
	if err != nil {
		respondError(w, http.StatusBadRequest, "invalid order id", err.Error())
		return
	}
	if err := s.ex.CancelOrder(orderID, caller(r).ID); err != nil {
		respondDomainError(w, err)
		return
	}
	respondJSON(w, StatusResponse{Status: "OK"})
}

// ==============================
// Admin Handlers
// ==============================

func (s *Server) handleAddInstrument(w http.ResponseWriter, r *http.Request) {
	var req InstrumentRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		respondError(w, http.StatusBadRequest, "invalid request body", err.Error())
		return
	}
	ins := instrument.Instrument{Name: req.Name, Ticker: req.Ticker}
	if err := s.ex.AddInstrument(ins); err != nil {
		respondError(w, http.StatusBadRequest, "instrument rejected", err.Error())
		return
	}
	respondJSON(w, StatusResponse{Status: "OK"})
}

func (s *Server) handleRemoveInstrument(w http.ResponseWriter, r *http.Request) {
	if err := s.ex.RemoveInstrument(mux.Vars(r)["ticker"]); err != nil {
		respondDomainError(w, err)
		return
	}
	respondJSON(w, StatusResponse{Status: "OK"})
}

func (s *Server) handleDeposit(w http.ResponseWriter, r *http.Request) {
	req, ok := decodeBalanceChange(w, r)
	if !ok {
		return
	}
	userID, err := uuid.Parse(req.UserID)
	if err != nil {
		respondError(w, http.StatusBadRequest, "invalid user id", err.Error())
		return
	}
	if err := s.ex.Deposit(userID, req.Ticker, req.Amount); err != nil {
		respondDomainError(w, err)
		return
	}
	respondJSON(w, StatusResponse{Status: "OK"})
}

func (s *Server) handleWithdraw(w http.ResponseWriter, r *http.Request) {
	req, ok := decodeBalanceChange(w, r)
	if !ok {
		return
	}
	userID, err := uuid.Parse(req.UserID)
	if err != nil {
		respondError(w, http.StatusBadRequest, "invalid user id", err.Error())
		return
	}
	if err := s.ex.Withdraw(userID, req.Ticker, req.Amount); err != nil {
		respondDomainError(w, err)
		return
	}
	respondJSON(w, StatusResponse{Status: "OK"})
}

func (s *Server) handleDeleteUser(w http.ResponseWriter, r *http.Request) {
	userID, err := uuid.Parse(mux.Vars(r)["user_id"])
	if err != nil {
		respondError(w, http.StatusBadRequest, "invalid user id", err.Error())
		return
	}
	if _, err := s.ex.DeleteParticipant(userID); err != nil {
		respondDomainError(w, err)
		return
	}
	respondJSON(w, StatusResponse{Status: "OK"})
}

func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	respondJSON(w, map[string]string{"status": "ok"})
}

// ==============================
// Helper Functions
// ==============================

func decodeBalanceChange(w http.ResponseWriter, r *http.Request) (BalanceChangeRequest, bool) {
	var req BalanceChangeRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		respondError(w, http.StatusBadRequest, "invalid request body", err.Error())
		return req, false
	}
	return req, true
}

func toOrderInfo(o engine.Order) OrderInfo {
	return OrderInfo{
		ID:        o.ID.String(),
		Ticker:    o.Ticker,
		Direction: o.Direction.String(),
		Kind:      o.Kind.String(),
		Qty:       o.Qty,
		Price:     o.Price,
		Filled:    o.Filled,
		Status:    string(o.Status),
		Timestamp: o.CreatedAt.UnixMilli(),
	}
}

func toAPILevels(levels []book.PriceLevel) []PriceLevel {
	out := make([]PriceLevel, len(levels))
	for i, lvl := range levels {
		out[i] = PriceLevel{Price: lvl.Price, Qty: lvl.Qty}
	}
	return out
}

func queryInt(r *http.Request, name string, fallback int) int {
	raw := r.URL.Query().Get(name)
	if raw == "" {
		return fallback
	}
	n, err := strconv.Atoi(raw)
	if err != nil || n < 0 {
		return fallback
	}
	return n
}

func respondJSON(w http.ResponseWriter, data interface{}) {
	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(data)
}

func respondError(w http.ResponseWriter, status int, error string, message string) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(ErrorResponse{
		Error:   error,
		Message: message,
	})
}

// respondDomainError maps trading-core sentinel errors to HTTP statuses.
func respondDomainError(w http.ResponseWriter, err error) {
	switch {
	case errors.Is(err, engine.ErrNotFound):
		respondError(w, http.StatusNotFound, "not found", err.Error())
	case errors.Is(err, engine.ErrForbidden):
		respondError(w, http.StatusForbidden, "forbidden", err.Error())
	case errors.Is(err, engine.ErrInsufficientBalance),
		errors.Is(err, engine.ErrInvalidState):
		respondError(w, http.StatusBadRequest, "rejected", err.Error())
	case errors.Is(err, engine.ErrInvariant):
		respondError(w, http.StatusInternalServerError, "internal error", "")
	default:
		respondError(w, http.StatusBadRequest, "rejected", err.Error())
	}
}
