package api

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"strconv"
	"time"

	"github.com/ethereum/go-ethereum/common"
	"github.com/gorilla/mux"
	"github.com/rs/cors"
	"go.uber.org/zap"

	"github.com/uhyunpark/tokenex/pkg/app/core/asset"
	"github.com/uhyunpark/tokenex/pkg/app/core/events"
	"github.com/uhyunpark/tokenex/pkg/app/core/orderbook"
	"github.com/uhyunpark/tokenex/pkg/app/core/transaction"
	"github.com/uhyunpark/tokenex/pkg/app/exchange"
	"github.com/uhyunpark/tokenex/pkg/app/swap"
	"github.com/uhyunpark/tokenex/pkg/app/token"
)

const (
	maxBodyBytes  = 1 << 20
	defaultEvents = 100
	maxEvents     = 1000
)

// EventSource reads persisted events by sequence range
type EventSource interface {
	Events(from uint64, limit int) ([]events.Event, error)
}

// Options wires the server to the exchange and its collaborators.
// Events, Tokens and Native are optional; their routes answer 503 when unset.
type Options struct {
	Exchange       *exchange.Exchange
	Events         EventSource
	Tokens         *token.Registry
	Native         *token.NativeBank
	Logger         *zap.SugaredLogger
	AllowedOrigins []string
}

// Server handles REST API and WebSocket connections
type Server struct {
	ex      *exchange.Exchange
	history EventSource
	tokens  *token.Registry
	native  *token.NativeBank
	router  *mux.Router
	hub     *Hub
	log     *zap.SugaredLogger
	origins []string
}

func NewServer(o Options) *Server {
	log := o.Logger
	if log == nil {
		log = zap.NewNop().Sugar()
	}
	origins := o.AllowedOrigins
	if len(origins) == 0 {
		origins = []string{"http://localhost:3000", "http://localhost:3001"}
	}
	s := &Server{
		ex:      o.Exchange,
		history: o.Events,
		tokens:  o.Tokens,
		native:  o.Native,
		router:  mux.NewRouter(),
		hub:     NewHub(log),
		log:     log,
		origins: origins,
	}
	s.setupRoutes()
	return s
}

// Hub is the websocket fan-out; attach it to the event bus
func (s *Server) Hub() *Hub { return s.hub }

func (s *Server) setupRoutes() {
	api := s.router.PathPrefix("/api/v1").Subrouter()

	api.HandleFunc("/exchange", s.handleGetExchange).Methods("GET")
	api.HandleFunc("/balances/{asset}/{address}", s.handleGetBalance).Methods("GET")
	api.HandleFunc("/orders", s.handleGetOrders).Methods("GET")
	api.HandleFunc("/orders/{id:[0-9]+}", s.handleGetOrder).Methods("GET")
	api.HandleFunc("/events", s.handleGetEvents).Methods("GET")
	api.HandleFunc("/nonce/{address}", s.handleGetNonce).Methods("GET")

	api.HandleFunc("/tokens", s.handleGetTokens).Methods("GET")
	api.HandleFunc("/tokens/{token}/balances/{address}", s.handleGetTokenBalance).Methods("GET")
	api.HandleFunc("/native/{address}", s.handleGetNative).Methods("GET")

	api.HandleFunc("/tx", s.handleSubmitTx).Methods("POST")

	s.router.HandleFunc("/ws", s.handleWebSocket)
	s.router.HandleFunc("/health", s.handleHealth).Methods("GET")
}

// Handler is the router wrapped with CORS
func (s *Server) Handler() http.Handler {
	c := cors.New(cors.Options{
		AllowedOrigins:   s.origins,
		AllowedMethods:   []string{"GET", "POST", "OPTIONS"},
		AllowedHeaders:   []string{"Content-Type", "Authorization"},
		AllowCredentials: true,
	})
	return c.Handler(s.router)
}

// Start serves on addr and runs the hub until ctx is done
func (s *Server) Start(ctx context.Context, addr string) error {
	go s.hub.Run(ctx)

	srv := &http.Server{
		Addr:              addr,
		Handler:           s.Handler(),
		ReadHeaderTimeout: 10 * time.Second,
	}
	go func() {
		<-ctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		if err := srv.Shutdown(shutdownCtx); err != nil {
			s.log.Warnw("api_shutdown_failed", "err", err)
		}
	}()

	s.log.Infow("api_listening", "addr", addr)
	if err := srv.ListenAndServe(); !errors.Is(err, http.ErrServerClosed) {
		return err
	}
	return nil
}

// ==============================
// REST Handlers
// ==============================

func (s *Server) handleGetExchange(w http.ResponseWriter, r *http.Request) {
	respondJSON(w, ExchangeInfo{
		FeeAccount: s.ex.FeeAccount().Hex(),
		FeePercent: s.ex.FeePercent(),
		Custody:    s.ex.Custody().Hex(),
		OrderCount: s.ex.OrderCount(),
		Seq:        s.ex.Seq(),
		StateHash:  s.ex.StateHash().Hex(),
	})
}

func (s *Server) handleGetBalance(w http.ResponseWriter, r *http.Request) {
	vars := mux.Vars(r)
	a, err := asset.Parse(vars["asset"])
	if err != nil {
		respondError(w, http.StatusBadRequest, "invalid_asset", err.Error())
		return
	}
	addr, ok := parseAddress(w, vars["address"])
	if !ok {
		return
	}

	bal := s.ex.BalanceOf(a, addr)
	respondJSON(w, BalanceInfo{
		Asset:     a.Hex(),
		Address:   addr.Hex(),
		Balance:   bal.Dec(),
		Formatted: formatted(bal),
	})
}

func (s *Server) handleGetOrders(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()
	f := orderbook.Filter{Status: orderbook.StatusAny}

	if v := q.Get("status"); v != "" {
		st, ok := orderbook.ParseStatus(v)
		if !ok {
			respondError(w, http.StatusBadRequest, "invalid_status", v)
			return
		}
		f.Status = st
	}
	if v := q.Get("maker"); v != "" {
		addr, ok := parseAddress(w, v)
		if !ok {
			return
		}
		f.Maker = addr
	}
	if v := q.Get("limit"); v != "" {
		n, err := strconv.Atoi(v)
		if err != nil || n < 0 {
			respondError(w, http.StatusBadRequest, "invalid_limit", v)
			return
		}
		f.Limit = n
	}

	orders := s.ex.Orders(f)
	out := make([]OrderInfo, len(orders))
	for i, o := range orders {
		out[i] = orderInfo(o)
	}
	respondJSON(w, out)
}

func (s *Server) handleGetOrder(w http.ResponseWriter, r *http.Request) {
	id, err := strconv.ParseUint(mux.Vars(r)["id"], 10, 64)
	if err != nil {
		respondError(w, http.StatusBadRequest, "invalid_order_id", err.Error())
		return
	}
	o, err := s.ex.GetOrder(id)
	if err != nil {
		respondFailure(w, err)
		return
	}
	respondJSON(w, orderInfo(o))
}

func (s *Server) handleGetEvents(w http.ResponseWriter, r *http.Request) {
	if s.history == nil {
		respondError(w, http.StatusServiceUnavailable, "events_unavailable", "")
		return
	}
	q := r.URL.Query()
	from := uint64(1)
	if v := q.Get("from"); v != "" {
		n, err := strconv.ParseUint(v, 10, 64)
		if err != nil {
			respondError(w, http.StatusBadRequest, "invalid_from", v)
			return
		}
		from = n
	}
	limit := defaultEvents
	if v := q.Get("limit"); v != "" {
		n, err := strconv.Atoi(v)
		if err != nil || n <= 0 {
			respondError(w, http.StatusBadRequest, "invalid_limit", v)
			return
		}
		limit = min(n, maxEvents)
	}

	evs, err := s.history.Events(from, limit)
	if err != nil {
		s.log.Errorw("events_read_failed", "from", from, "err", err)
		respondError(w, http.StatusInternalServerError, "storage", err.Error())
		return
	}
	if evs == nil {
		evs = []events.Event{}
	}
	respondJSON(w, evs)
}

func (s *Server) handleGetNonce(w http.ResponseWriter, r *http.Request) {
	addr, ok := parseAddress(w, mux.Vars(r)["address"])
	if !ok {
		return
	}
	n := s.ex.Nonce(addr)
	respondJSON(w, NonceInfo{Address: addr.Hex(), Nonce: n, Next: n + 1})
}

func (s *Server) handleGetTokens(w http.ResponseWriter, r *http.Request) {
	if s.tokens == nil {
		respondError(w, http.StatusServiceUnavailable, "tokens_unavailable", "")
		return
	}
	toks := s.tokens.Tokens()
	out := make([]TokenInfo, len(toks))
	for i, t := range toks {
		out[i] = TokenInfo{
			Address:     t.Address.Hex(),
			Name:        t.Name,
			Symbol:      t.Symbol,
			Decimals:    t.Decimals,
			TotalSupply: t.TotalSupply().Dec(),
		}
	}
	respondJSON(w, out)
}

func (s *Server) handleGetTokenBalance(w http.ResponseWriter, r *http.Request) {
	if s.tokens == nil {
		respondError(w, http.StatusServiceUnavailable, "tokens_unavailable", "")
		return
	}
	vars := mux.Vars(r)
	tokenAddr, ok := parseAddress(w, vars["token"])
	if !ok {
		return
	}
	owner, ok := parseAddress(w, vars["address"])
	if !ok {
		return
	}
	t, err := s.tokens.Get(tokenAddr)
	if err != nil {
		respondError(w, http.StatusNotFound, "unknown_token", err.Error())
		return
	}
	bal := t.BalanceOf(owner)
	respondJSON(w, WalletBalance{
		Token:     t.Address.Hex(),
		Symbol:    t.Symbol,
		Address:   owner.Hex(),
		Balance:   bal.Dec(),
		Formatted: asset.FormatUnits(bal, int32(t.Decimals)),
	})
}

func (s *Server) handleGetNative(w http.ResponseWriter, r *http.Request) {
	if s.native == nil {
		respondError(w, http.StatusServiceUnavailable, "native_unavailable", "")
		return
	}
	addr, ok := parseAddress(w, mux.Vars(r)["address"])
	if !ok {
		return
	}
	bal := s.native.BalanceOf(addr)
	respondJSON(w, WalletBalance{Address: addr.Hex(), Balance: bal.Dec(), Formatted: formatted(bal)})
}

// handleSubmitTx applies a signed action envelope and returns its receipt
func (s *Server) handleSubmitTx(w http.ResponseWriter, r *http.Request) {
	var stx transaction.SignedTransaction
	dec := json.NewDecoder(http.MaxBytesReader(w, r.Body, maxBodyBytes))
	dec.DisallowUnknownFields()
	if err := dec.Decode(&stx); err != nil {
		respondError(w, http.StatusBadRequest, "malformed", err.Error())
		return
	}

	receipt, err := s.ex.ApplySigned(r.Context(), &stx)
	if err != nil {
		if receipt != nil {
			// the action took effect but could not be persisted
			s.log.Errorw("tx_unpersisted", "type", stx.Type, "receipt", receipt.ID, "err", err)
			respondJSON(w, receipt)
			return
		}
		s.log.Infow("tx_rejected", "type", stx.Type, "owner", stx.Action.Owner, "err", err)
		respondFailure(w, err)
		return
	}

	s.log.Infow("tx_applied", "type", stx.Type, "owner", stx.Action.Owner, "receipt", receipt.ID, "events", len(receipt.Events))
	respondJSON(w, receipt)
}

func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	respondJSON(w, map[string]string{"status": "ok"})
}

// ==============================
// Helper Functions
// ==============================

// errorClasses maps failures to HTTP status and a stable code; first match wins
var errorClasses = []struct {
	err    error
	status int
	code   string
}{
	{exchange.ErrMalformed, http.StatusBadRequest, "malformed"},
	{exchange.ErrValueMismatch, http.StatusBadRequest, "value_mismatch"},
	{exchange.ErrUnknownAction, http.StatusBadRequest, "unknown_action"},
	{asset.ErrBadAsset, http.StatusBadRequest, "malformed"},
	{asset.ErrBadAmount, http.StatusBadRequest, "malformed"},
	{exchange.ErrBadSignature, http.StatusForbidden, "bad_signature"},
	{exchange.ErrUnauthorized, http.StatusForbidden, "unauthorized"},
	{exchange.ErrOrderNotFound, http.StatusNotFound, "order_not_found"},
	{exchange.ErrAlreadyFilled, http.StatusConflict, "already_filled"},
	{exchange.ErrAlreadyCancelled, http.StatusConflict, "already_cancelled"},
	{exchange.ErrNonceTooLow, http.StatusConflict, "nonce_too_low"},
	{exchange.ErrInvalidAsset, http.StatusUnprocessableEntity, "invalid_asset"},
	{exchange.ErrTransferFailed, http.StatusUnprocessableEntity, "transfer_failed"},
	{exchange.ErrInsufficientBalance, http.StatusUnprocessableEntity, "insufficient_balance"},
	{exchange.ErrOverflow, http.StatusUnprocessableEntity, "overflow"},
	{swap.ErrInsufficientSupply, http.StatusUnprocessableEntity, "insufficient_supply"},
	{swap.ErrOverflow, http.StatusUnprocessableEntity, "overflow"},
	{token.ErrInsufficientBalance, http.StatusUnprocessableEntity, "insufficient_balance"},
	{token.ErrInsufficientAllowance, http.StatusUnprocessableEntity, "insufficient_allowance"},
	{token.ErrInvalidRecipient, http.StatusUnprocessableEntity, "invalid_recipient"},
	{exchange.ErrSignedDisabled, http.StatusServiceUnavailable, "signed_disabled"},
	{exchange.ErrStorage, http.StatusInternalServerError, "storage"},
}

func classify(err error) (int, string) {
	for _, c := range errorClasses {
		if errors.Is(err, c.err) {
			return c.status, c.code
		}
	}
	return http.StatusInternalServerError, "internal"
}

func respondFailure(w http.ResponseWriter, err error) {
	status, code := classify(err)
	respondError(w, status, code, err.Error())
}

func parseAddress(w http.ResponseWriter, s string) (common.Address, bool) {
	if !common.IsHexAddress(s) {
		respondError(w, http.StatusBadRequest, "invalid_address", s)
		return common.Address{}, false
	}
	return common.HexToAddress(s), true
}

func respondJSON(w http.ResponseWriter, data any) {
	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(data)
}

func respondError(w http.ResponseWriter, status int, code string, message string) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(ErrorResponse{Error: code, Message: message})
}
