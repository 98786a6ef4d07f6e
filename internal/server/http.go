// Package server exposes the ledger over a JSON HTTP API. The shell trusts
// the upstream gateway for authentication and takes the caller identity
// from the X-Caller-Address header; the engine enforces owner gates and
// balance checks regardless of what the header claims.
package server

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"math/big"
	"net/http"
	"strconv"
	"time"

	"github.com/ethereum/go-ethereum/common"
	"github.com/rs/zerolog"

	"MarketLedger/internal/core"
	"MarketLedger/internal/errs"
	"MarketLedger/internal/event"
	"MarketLedger/internal/market"
	"MarketLedger/internal/observability"
	"MarketLedger/internal/query"
)

// Server is the JSON API over the engine and the query service.
type Server struct {
	engine     *core.Engine
	queries    *query.Service
	health     *observability.HealthChecker
	metrics    *observability.Metrics
	log        zerolog.Logger
	httpServer *http.Server
}

func NewServer(addr string, engine *core.Engine, queries *query.Service,
	health *observability.HealthChecker, metrics *observability.Metrics,
	log zerolog.Logger) *Server {

	s := &Server{
		engine:  engine,
		queries: queries,
		health:  health,
		metrics: metrics,
		log:     log,
	}

	mux := http.NewServeMux()

	mux.HandleFunc("POST /api/tokens", s.route("create_token", s.handleCreateToken))
	mux.HandleFunc("POST /api/tokens/{token}/mint", s.route("mint", s.handleMint))
	mux.HandleFunc("POST /api/tokens/{token}/transfer", s.route("transfer", s.handleTransfer))
	mux.HandleFunc("POST /api/tokens/{token}/approve", s.route("approve", s.handleApprove))
	mux.HandleFunc("POST /api/tokens/{token}/transfer-from", s.route("transfer_from", s.handleTransferFrom))
	mux.HandleFunc("GET /api/tokens/{token}/balance/{account}", s.route("balance", s.handleBalance))
	mux.HandleFunc("GET /api/tokens/{token}/supply", s.route("total_supply", s.handleTotalSupply))
	mux.HandleFunc("GET /api/tokens/{token}/allowance/{owner}/{spender}", s.route("allowance", s.handleAllowance))

	mux.HandleFunc("POST /api/markets", s.route("create_market", s.handleCreateMarket))
	mux.HandleFunc("GET /api/markets", s.route("list_markets", s.handleListMarkets))
	mux.HandleFunc("GET /api/markets/{id}", s.route("get_market", s.handleGetMarket))
	mux.HandleFunc("POST /api/markets/{id}/state", s.route("update_market_state", s.handleUpdateMarketState))
	mux.HandleFunc("POST /api/markets/{id}/bets", s.route("place_bet", s.handlePlaceBet))
	mux.HandleFunc("GET /api/markets/{id}/bets", s.route("bet_history", s.handleBetHistory))
	mux.HandleFunc("GET /api/markets/{id}/events", s.route("market_events", s.handleMarketEvents))

	mux.HandleFunc("POST /api/orderbook/price-token", s.route("set_price_token", s.handleSetPriceToken))
	mux.HandleFunc("POST /api/orderbook/prices", s.route("set_prices", s.handleSetPrices))
	mux.HandleFunc("POST /api/orderbook/fee", s.route("set_orderbook_fee", s.handleSetOrderBookFee))
	mux.HandleFunc("POST /api/orderbook/buy", s.route("buy_order", s.handleBuyOrder))
	mux.HandleFunc("POST /api/orderbook/sell", s.route("sell_order", s.handleSellOrder))
	mux.HandleFunc("GET /api/orderbook/prices/{token}", s.route("get_price", s.handleGetPrice))
	mux.HandleFunc("GET /api/orderbook/orders/{account}", s.route("order_history", s.handleOrderHistory))

	mux.HandleFunc("POST /api/exchange/deposits", s.route("deposit_liquidity", s.handleDeposit))
	mux.HandleFunc("POST /api/exchange/withdrawals", s.route("withdraw_liquidity", s.handleWithdraw))
	mux.HandleFunc("POST /api/exchange/swaps", s.route("swap", s.handleSwap))
	mux.HandleFunc("POST /api/exchange/fee", s.route("set_exchange_fee", s.handleSetExchangeFee))
	mux.HandleFunc("GET /api/exchange/price", s.route("pool_price", s.handlePoolPrice))
	mux.HandleFunc("GET /api/exchange/pools/{token}", s.route("pool_total", s.handlePoolTotal))

	mux.HandleFunc("GET /api/query/balances/{account}", s.route("projected_balances", s.handleProjectedBalances))
	mux.HandleFunc("GET /api/query/balances/{account}/{token}", s.route("projected_balance", s.handleProjectedBalance))

	mux.HandleFunc("POST /api/bridge/sync", s.route("bridge_sync", s.handleBridgeSync))
	mux.HandleFunc("GET /api/integrity", s.route("integrity", s.handleIntegrity))
	mux.HandleFunc("GET /api/status", s.route("status", s.handleStatus))

	if health != nil {
		mux.HandleFunc("/healthz", health.LivenessHandler)
		mux.HandleFunc("/readyz", health.ReadinessHandler)
	}

	s.httpServer = &http.Server{
		Addr:         addr,
		Handler:      mux,
		ReadTimeout:  10 * time.Second,
		WriteTimeout: 30 * time.Second,
	}
	return s
}

// Start serves until the context is cancelled (blocking).
func (s *Server) Start(ctx context.Context) error {
	go func() {
		<-ctx.Done()
		s.log.Info().Msg("http server shutting down")
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		s.httpServer.Shutdown(shutdownCtx)
	}()

	s.log.Info().Str("addr", s.httpServer.Addr).Msg("http server listening")
	if err := s.httpServer.ListenAndServe(); err != nil && err != http.ErrServerClosed {
		return err
	}
	return nil
}

// ============================================================================
// Middleware and helpers
// ============================================================================

type statusRecorder struct {
	http.ResponseWriter
	status int
}

func (r *statusRecorder) WriteHeader(code int) {
	r.status = code
	r.ResponseWriter.WriteHeader(code)
}

func (s *Server) route(name string, h http.HandlerFunc) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		rec := &statusRecorder{ResponseWriter: w, status: http.StatusOK}

		h(rec, r)

		if s.metrics != nil {
			s.metrics.HTTPRequests.WithLabelValues(name, strconv.Itoa(rec.status)).Inc()
			s.metrics.HTTPDuration.WithLabelValues(name).Observe(time.Since(start).Seconds())
		}
		s.log.Debug().
			Str("route", name).
			Str("method", r.Method).
			Int("status", rec.status).
			Dur("duration", time.Since(start)).
			Msg("request")
	}
}

func (s *Server) caller(w http.ResponseWriter, r *http.Request) (common.Address, bool) {
	raw := r.Header.Get("X-Caller-Address")
	if raw == "" {
		s.writeErrorMessage(w, http.StatusBadRequest, "MissingCaller", "X-Caller-Address header is required")
		return common.Address{}, false
	}
	if !common.IsHexAddress(raw) {
		s.writeErrorMessage(w, http.StatusBadRequest, "InvalidCaller", "X-Caller-Address is not a hex address")
		return common.Address{}, false
	}
	return common.HexToAddress(raw), true
}

func (s *Server) decode(w http.ResponseWriter, r *http.Request, v interface{}) bool {
	dec := json.NewDecoder(r.Body)
	dec.DisallowUnknownFields()
	if err := dec.Decode(v); err != nil {
		s.writeErrorMessage(w, http.StatusBadRequest, "InvalidBody", err.Error())
		return false
	}
	return true
}

func (s *Server) writeJSON(w http.ResponseWriter, status int, v interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(v)
}

type errorBody struct {
	Code    string `json:"code"`
	Message string `json:"message"`
}

func (s *Server) writeErrorMessage(w http.ResponseWriter, status int, code, msg string) {
	s.writeJSON(w, status, errorBody{Code: code, Message: msg})
}

// writeError maps the error taxonomy onto HTTP statuses.
func (s *Server) writeError(w http.ResponseWriter, err error) {
	code := errs.Code(err)
	status := http.StatusInternalServerError
	switch {
	case errors.Is(err, errs.ErrUnauthorized):
		status = http.StatusUnauthorized
	case errors.Is(err, errs.ErrInsufficientBalance),
		errors.Is(err, errs.ErrInsufficientAllowance),
		errors.Is(err, errs.ErrInsufficientLiquidity),
		errors.Is(err, errs.ErrNoLiquidity):
		status = http.StatusPaymentRequired
	case errors.Is(err, errs.ErrMarketNotFound),
		errors.Is(err, errs.ErrTokenNotFound):
		status = http.StatusNotFound
	case errors.Is(err, errs.ErrMarketResolved),
		errors.Is(err, errs.ErrTransferFailed):
		status = http.StatusConflict
	case errors.Is(err, errs.ErrLimitExceeded),
		errors.Is(err, errs.ErrFeeTooHigh),
		errors.Is(err, errs.ErrLengthMismatch),
		errors.Is(err, errs.ErrInvalidMarketDefinition),
		errors.Is(err, errs.ErrPriceTokenNotSet),
		errors.Is(err, errs.ErrInvalidAmount):
		status = http.StatusUnprocessableEntity
	}
	s.writeJSON(w, status, errorBody{Code: code, Message: err.Error()})
}

func (s *Server) pathAddress(w http.ResponseWriter, r *http.Request, name string) (common.Address, bool) {
	raw := r.PathValue(name)
	if !common.IsHexAddress(raw) {
		s.writeErrorMessage(w, http.StatusBadRequest, "InvalidAddress", fmt.Sprintf("%s is not a hex address", name))
		return common.Address{}, false
	}
	return common.HexToAddress(raw), true
}

func (s *Server) pathMarketID(w http.ResponseWriter, r *http.Request) (int64, bool) {
	id, err := strconv.ParseInt(r.PathValue("id"), 10, 64)
	if err != nil {
		s.writeErrorMessage(w, http.StatusBadRequest, "InvalidMarketID", "market id must be an integer")
		return 0, false
	}
	return id, true
}

func (s *Server) bodyAmount(w http.ResponseWriter, field, raw string) (*big.Int, bool) {
	v, ok := new(big.Int).SetString(raw, 10)
	if !ok || v.Sign() < 0 {
		s.writeErrorMessage(w, http.StatusBadRequest, "InvalidAmount", fmt.Sprintf("%s must be a non-negative decimal string", field))
		return nil, false
	}
	return v, true
}

func (s *Server) bodyAddress(w http.ResponseWriter, field, raw string) (common.Address, bool) {
	if !common.IsHexAddress(raw) {
		s.writeErrorMessage(w, http.StatusBadRequest, "InvalidAddress", fmt.Sprintf("%s is not a hex address", field))
		return common.Address{}, false
	}
	return common.HexToAddress(raw), true
}

func queryCursor(r *http.Request) (int, *int64) {
	limit := 50
	if raw := r.URL.Query().Get("limit"); raw != "" {
		if v, err := strconv.Atoi(raw); err == nil {
			limit = v
		}
	}
	var before *int64
	if raw := r.URL.Query().Get("before"); raw != "" {
		if v, err := strconv.ParseInt(raw, 10, 64); err == nil {
			before = &v
		}
	}
	return limit, before
}

// ============================================================================
// Token handlers
// ============================================================================

func (s *Server) handleCreateToken(w http.ResponseWriter, r *http.Request) {
	caller, ok := s.caller(w, r)
	if !ok {
		return
	}
	var req struct {
		Name   string `json:"name"`
		Symbol string `json:"symbol"`
	}
	if !s.decode(w, r, &req) {
		return
	}

	tok, err := s.engine.CreateToken(caller, req.Name, req.Symbol)
	if err != nil {
		s.writeError(w, err)
		return
	}
	s.writeJSON(w, http.StatusCreated, map[string]string{"token": tok.Hex()})
}

func (s *Server) handleMint(w http.ResponseWriter, r *http.Request) {
	caller, ok := s.caller(w, r)
	if !ok {
		return
	}
	tok, ok := s.pathAddress(w, r, "token")
	if !ok {
		return
	}
	var req struct {
		To     string `json:"to"`
		Amount string `json:"amount"`
	}
	if !s.decode(w, r, &req) {
		return
	}
	to, ok := s.bodyAddress(w, "to", req.To)
	if !ok {
		return
	}
	amount, ok := s.bodyAmount(w, "amount", req.Amount)
	if !ok {
		return
	}

	if err := s.engine.Mint(caller, tok, to, amount); err != nil {
		s.writeError(w, err)
		return
	}
	s.writeJSON(w, http.StatusOK, map[string]bool{"ok": true})
}

func (s *Server) handleTransfer(w http.ResponseWriter, r *http.Request) {
	caller, ok := s.caller(w, r)
	if !ok {
		return
	}
	tok, ok := s.pathAddress(w, r, "token")
	if !ok {
		return
	}
	var req struct {
		To     string `json:"to"`
		Amount string `json:"amount"`
	}
	if !s.decode(w, r, &req) {
		return
	}
	to, ok := s.bodyAddress(w, "to", req.To)
	if !ok {
		return
	}
	amount, ok := s.bodyAmount(w, "amount", req.Amount)
	if !ok {
		return
	}

	if err := s.engine.Transfer(caller, tok, to, amount); err != nil {
		s.writeError(w, err)
		return
	}
	s.writeJSON(w, http.StatusOK, map[string]bool{"ok": true})
}

func (s *Server) handleApprove(w http.ResponseWriter, r *http.Request) {
	caller, ok := s.caller(w, r)
	if !ok {
		return
	}
	tok, ok := s.pathAddress(w, r, "token")
	if !ok {
		return
	}
	var req struct {
		Spender string `json:"spender"`
		Amount  string `json:"amount"`
	}
	if !s.decode(w, r, &req) {
		return
	}
	spender, ok := s.bodyAddress(w, "spender", req.Spender)
	if !ok {
		return
	}
	amount, ok := s.bodyAmount(w, "amount", req.Amount)
	if !ok {
		return
	}

	if err := s.engine.Approve(caller, tok, spender, amount); err != nil {
		s.writeError(w, err)
		return
	}
	s.writeJSON(w, http.StatusOK, map[string]bool{"ok": true})
}

func (s *Server) handleTransferFrom(w http.ResponseWriter, r *http.Request) {
	caller, ok := s.caller(w, r)
	if !ok {
		return
	}
	tok, ok := s.pathAddress(w, r, "token")
	if !ok {
		return
	}
	var req struct {
		Owner  string `json:"owner"`
		To     string `json:"to"`
		Amount string `json:"amount"`
	}
	if !s.decode(w, r, &req) {
		return
	}
	owner, ok := s.bodyAddress(w, "owner", req.Owner)
	if !ok {
		return
	}
	to, ok := s.bodyAddress(w, "to", req.To)
	if !ok {
		return
	}
	amount, ok := s.bodyAmount(w, "amount", req.Amount)
	if !ok {
		return
	}

	if err := s.engine.TransferFrom(caller, tok, owner, to, amount); err != nil {
		s.writeError(w, err)
		return
	}
	s.writeJSON(w, http.StatusOK, map[string]bool{"ok": true})
}

func (s *Server) handleBalance(w http.ResponseWriter, r *http.Request) {
	tok, ok := s.pathAddress(w, r, "token")
	if !ok {
		return
	}
	account, ok := s.pathAddress(w, r, "account")
	if !ok {
		return
	}

	balance, err := s.engine.BalanceOf(tok, account)
	if err != nil {
		s.writeError(w, err)
		return
	}
	s.writeJSON(w, http.StatusOK, map[string]string{
		"token":   tok.Hex(),
		"account": account.Hex(),
		"balance": balance.String(),
	})
}

func (s *Server) handleAllowance(w http.ResponseWriter, r *http.Request) {
	tok, ok := s.pathAddress(w, r, "token")
	if !ok {
		return
	}
	owner, ok := s.pathAddress(w, r, "owner")
	if !ok {
		return
	}
	spender, ok := s.pathAddress(w, r, "spender")
	if !ok {
		return
	}

	allowance, err := s.engine.Allowance(tok, owner, spender)
	if err != nil {
		s.writeError(w, err)
		return
	}
	s.writeJSON(w, http.StatusOK, map[string]string{
		"token":     tok.Hex(),
		"owner":     owner.Hex(),
		"spender":   spender.Hex(),
		"allowance": allowance.String(),
	})
}

func (s *Server) handleTotalSupply(w http.ResponseWriter, r *http.Request) {
	tok, ok := s.pathAddress(w, r, "token")
	if !ok {
		return
	}

	supply, err := s.engine.TotalSupply(tok)
	if err != nil {
		s.writeError(w, err)
		return
	}
	s.writeJSON(w, http.StatusOK, map[string]string{
		"token":  tok.Hex(),
		"supply": supply.String(),
	})
}

// ============================================================================
// Market handlers
// ============================================================================

func (s *Server) handleCreateMarket(w http.ResponseWriter, r *http.Request) {
	caller, ok := s.caller(w, r)
	if !ok {
		return
	}
	var req struct {
		Description string   `json:"description"`
		MarketType  string   `json:"market_type"`
		Outcomes    []string `json:"outcomes"`
	}
	if !s.decode(w, r, &req) {
		return
	}

	id, err := s.engine.CreateMarket(caller, req.Description, req.MarketType, req.Outcomes)
	if err != nil {
		s.writeError(w, err)
		return
	}
	s.writeJSON(w, http.StatusCreated, map[string]int64{"market_id": id})
}

func (s *Server) handleListMarkets(w http.ResponseWriter, r *http.Request) {
	s.writeJSON(w, http.StatusOK, map[string]interface{}{
		"markets": s.engine.Markets(),
	})
}

func (s *Server) handleGetMarket(w http.ResponseWriter, r *http.Request) {
	id, ok := s.pathMarketID(w, r)
	if !ok {
		return
	}

	snap, err := s.engine.Market(id)
	if err != nil {
		s.writeError(w, err)
		return
	}
	s.writeJSON(w, http.StatusOK, snap)
}

func (s *Server) handleUpdateMarketState(w http.ResponseWriter, r *http.Request) {
	caller, ok := s.caller(w, r)
	if !ok {
		return
	}
	id, ok := s.pathMarketID(w, r)
	if !ok {
		return
	}
	var req struct {
		CurrentPrice   string `json:"current_price"`
		TotalLiquidity string `json:"total_liquidity"`
		Resolved       bool   `json:"resolved"`
		Outcome        string `json:"outcome"`
	}
	if !s.decode(w, r, &req) {
		return
	}
	price, ok := s.bodyAmount(w, "current_price", req.CurrentPrice)
	if !ok {
		return
	}
	liquidity, ok := s.bodyAmount(w, "total_liquidity", req.TotalLiquidity)
	if !ok {
		return
	}

	err := s.engine.UpdateMarketState(caller, id, market.State{
		CurrentPrice:   price,
		TotalLiquidity: liquidity,
		Resolved:       req.Resolved,
		Outcome:        req.Outcome,
	})
	if err != nil {
		s.writeError(w, err)
		return
	}
	s.writeJSON(w, http.StatusOK, map[string]bool{"ok": true})
}

func (s *Server) handlePlaceBet(w http.ResponseWriter, r *http.Request) {
	caller, ok := s.caller(w, r)
	if !ok {
		return
	}
	id, ok := s.pathMarketID(w, r)
	if !ok {
		return
	}
	var req struct {
		Outcome string `json:"outcome"`
		Amount  string `json:"amount"`
		Price   string `json:"price"`
	}
	if !s.decode(w, r, &req) {
		return
	}
	amount, ok := s.bodyAmount(w, "amount", req.Amount)
	if !ok {
		return
	}
	price, ok := s.bodyAmount(w, "price", req.Price)
	if !ok {
		return
	}

	if err := s.engine.PlaceBet(caller, id, req.Outcome, amount, price); err != nil {
		s.writeError(w, err)
		return
	}
	s.writeJSON(w, http.StatusCreated, map[string]bool{"ok": true})
}

func (s *Server) handleBetHistory(w http.ResponseWriter, r *http.Request) {
	id, ok := s.pathMarketID(w, r)
	if !ok {
		return
	}
	limit, before := queryCursor(r)

	bets, err := s.queries.GetBetHistory(r.Context(), id, limit, before)
	if err != nil {
		s.writeError(w, err)
		return
	}
	s.writeJSON(w, http.StatusOK, map[string]interface{}{"bets": bets})
}

func (s *Server) handleMarketEvents(w http.ResponseWriter, r *http.Request) {
	id, ok := s.pathMarketID(w, r)
	if !ok {
		return
	}
	limit, before := queryCursor(r)

	events, err := s.queries.GetMarketEvents(r.Context(), id, limit, before)
	if err != nil {
		s.writeError(w, err)
		return
	}
	s.writeJSON(w, http.StatusOK, map[string]interface{}{"events": events})
}

// handleProjectedBalances serves balances from the read model rather than
// the engine, so callers get an as_of_sequence they can compare against the
// live sequence to judge staleness.
func (s *Server) handleProjectedBalances(w http.ResponseWriter, r *http.Request) {
	account, ok := s.pathAddress(w, r, "account")
	if !ok {
		return
	}
	balances, err := s.queries.GetAccountBalances(r.Context(), account.Hex())
	if err != nil {
		s.writeError(w, err)
		return
	}
	s.writeJSON(w, http.StatusOK, map[string]interface{}{"balances": balances})
}

func (s *Server) handleProjectedBalance(w http.ResponseWriter, r *http.Request) {
	account, ok := s.pathAddress(w, r, "account")
	if !ok {
		return
	}
	token, ok := s.pathAddress(w, r, "token")
	if !ok {
		return
	}
	balance, err := s.queries.GetBalance(r.Context(), token.Hex(), account.Hex())
	if err != nil {
		s.writeError(w, err)
		return
	}
	s.writeJSON(w, http.StatusOK, balance)
}

// ============================================================================
// Order book handlers
// ============================================================================

func (s *Server) handleSetPriceToken(w http.ResponseWriter, r *http.Request) {
	caller, ok := s.caller(w, r)
	if !ok {
		return
	}
	var req struct {
		Token string `json:"token"`
	}
	if !s.decode(w, r, &req) {
		return
	}
	tok, ok := s.bodyAddress(w, "token", req.Token)
	if !ok {
		return
	}

	if err := s.engine.SetPriceToken(caller, tok); err != nil {
		s.writeError(w, err)
		return
	}
	s.writeJSON(w, http.StatusOK, map[string]bool{"ok": true})
}

// handleSetPrices accepts either a single {token, price} or a batch
// {tokens, prices} with parallel arrays, matching the two oracle entry
// points of the driver.
func (s *Server) handleSetPrices(w http.ResponseWriter, r *http.Request) {
	caller, ok := s.caller(w, r)
	if !ok {
		return
	}
	var req struct {
		Token  string   `json:"token,omitempty"`
		Price  string   `json:"price,omitempty"`
		Tokens []string `json:"tokens,omitempty"`
		Prices []string `json:"prices,omitempty"`
	}
	if !s.decode(w, r, &req) {
		return
	}

	if len(req.Tokens) > 0 || len(req.Prices) > 0 {
		tokens := make([]common.Address, 0, len(req.Tokens))
		for i, raw := range req.Tokens {
			tok, ok := s.bodyAddress(w, fmt.Sprintf("tokens[%d]", i), raw)
			if !ok {
				return
			}
			tokens = append(tokens, tok)
		}
		prices := make([]*big.Int, 0, len(req.Prices))
		for i, raw := range req.Prices {
			price, ok := s.bodyAmount(w, fmt.Sprintf("prices[%d]", i), raw)
			if !ok {
				return
			}
			prices = append(prices, price)
		}
		if err := s.engine.SetPriceBatch(caller, tokens, prices); err != nil {
			s.writeError(w, err)
			return
		}
		s.writeJSON(w, http.StatusOK, map[string]int{"updated": len(tokens)})
		return
	}

	tok, ok := s.bodyAddress(w, "token", req.Token)
	if !ok {
		return
	}
	price, ok := s.bodyAmount(w, "price", req.Price)
	if !ok {
		return
	}
	if err := s.engine.SetPrice(caller, tok, price); err != nil {
		s.writeError(w, err)
		return
	}
	s.writeJSON(w, http.StatusOK, map[string]int{"updated": 1})
}

func (s *Server) handleSetOrderBookFee(w http.ResponseWriter, r *http.Request) {
	caller, ok := s.caller(w, r)
	if !ok {
		return
	}
	var req struct {
		Fee int64 `json:"fee"`
	}
	if !s.decode(w, r, &req) {
		return
	}

	if err := s.engine.SetOrderBookFee(caller, req.Fee); err != nil {
		s.writeError(w, err)
		return
	}
	s.writeJSON(w, http.StatusOK, map[string]bool{"ok": true})
}

func (s *Server) handleBuyOrder(w http.ResponseWriter, r *http.Request) {
	caller, ok := s.caller(w, r)
	if !ok {
		return
	}
	var req struct {
		Token      string `json:"token"`
		Amount     string `json:"amount"`
		LimitPrice string `json:"limit_price"`
	}
	if !s.decode(w, r, &req) {
		return
	}
	tok, ok := s.bodyAddress(w, "token", req.Token)
	if !ok {
		return
	}
	amount, ok := s.bodyAmount(w, "amount", req.Amount)
	if !ok {
		return
	}
	limitPrice, ok := s.bodyAmount(w, "limit_price", req.LimitPrice)
	if !ok {
		return
	}

	fill, err := s.engine.PlaceBuyOrder(caller, tok, amount, limitPrice)
	if err != nil {
		s.writeError(w, err)
		return
	}
	s.writeJSON(w, http.StatusOK, map[string]string{
		"price": fill.OldPrice.String(),
		"cost":  fill.Cost.String(),
	})
}

func (s *Server) handleSellOrder(w http.ResponseWriter, r *http.Request) {
	caller, ok := s.caller(w, r)
	if !ok {
		return
	}
	var req struct {
		Token      string `json:"token"`
		Amount     string `json:"amount"`
		LimitPrice string `json:"limit_price"`
	}
	if !s.decode(w, r, &req) {
		return
	}
	tok, ok := s.bodyAddress(w, "token", req.Token)
	if !ok {
		return
	}
	amount, ok := s.bodyAmount(w, "amount", req.Amount)
	if !ok {
		return
	}
	limitPrice, ok := s.bodyAmount(w, "limit_price", req.LimitPrice)
	if !ok {
		return
	}

	fill, err := s.engine.PlaceSellOrder(caller, tok, amount, limitPrice)
	if err != nil {
		s.writeError(w, err)
		return
	}
	s.writeJSON(w, http.StatusOK, map[string]string{
		"price":    fill.OldPrice.String(),
		"proceeds": fill.Cost.String(),
	})
}

func (s *Server) handleGetPrice(w http.ResponseWriter, r *http.Request) {
	tok, ok := s.pathAddress(w, r, "token")
	if !ok {
		return
	}

	price, found := s.engine.OraclePrice(tok)
	if !found {
		s.writeErrorMessage(w, http.StatusNotFound, "PriceNotSet", "no oracle price for token")
		return
	}
	s.writeJSON(w, http.StatusOK, map[string]string{
		"token": tok.Hex(),
		"price": price.String(),
	})
}

func (s *Server) handleOrderHistory(w http.ResponseWriter, r *http.Request) {
	account, ok := s.pathAddress(w, r, "account")
	if !ok {
		return
	}
	limit, before := queryCursor(r)

	var token *string
	if raw := r.URL.Query().Get("token"); raw != "" {
		if !common.IsHexAddress(raw) {
			s.writeErrorMessage(w, http.StatusBadRequest, "InvalidAddress", "token is not a hex address")
			return
		}
		hex := common.HexToAddress(raw).Hex()
		token = &hex
	}

	orders, err := s.queries.GetOrderHistory(r.Context(), account.Hex(), token, limit, before)
	if err != nil {
		s.writeError(w, err)
		return
	}
	s.writeJSON(w, http.StatusOK, map[string]interface{}{"orders": orders})
}

// ============================================================================
// Exchange handlers
// ============================================================================

func (s *Server) handleDeposit(w http.ResponseWriter, r *http.Request) {
	caller, ok := s.caller(w, r)
	if !ok {
		return
	}
	var req struct {
		Token  string `json:"token"`
		Amount string `json:"amount"`
	}
	if !s.decode(w, r, &req) {
		return
	}
	tok, ok := s.bodyAddress(w, "token", req.Token)
	if !ok {
		return
	}
	amount, ok := s.bodyAmount(w, "amount", req.Amount)
	if !ok {
		return
	}

	if err := s.engine.DepositLiquidity(caller, tok, amount); err != nil {
		s.writeError(w, err)
		return
	}
	s.writeJSON(w, http.StatusOK, map[string]bool{"ok": true})
}

func (s *Server) handleWithdraw(w http.ResponseWriter, r *http.Request) {
	caller, ok := s.caller(w, r)
	if !ok {
		return
	}
	var req struct {
		Token string `json:"token"`
	}
	if !s.decode(w, r, &req) {
		return
	}
	tok, ok := s.bodyAddress(w, "token", req.Token)
	if !ok {
		return
	}

	amount, err := s.engine.WithdrawLiquidity(caller, tok)
	if err != nil {
		s.writeError(w, err)
		return
	}
	s.writeJSON(w, http.StatusOK, map[string]string{"amount": amount.String()})
}

func (s *Server) handleSwap(w http.ResponseWriter, r *http.Request) {
	caller, ok := s.caller(w, r)
	if !ok {
		return
	}
	var req struct {
		SellToken  string `json:"sell_token"`
		SellAmount string `json:"sell_amount"`
		BuyToken   string `json:"buy_token"`
	}
	if !s.decode(w, r, &req) {
		return
	}
	sellToken, ok := s.bodyAddress(w, "sell_token", req.SellToken)
	if !ok {
		return
	}
	sellAmount, ok := s.bodyAmount(w, "sell_amount", req.SellAmount)
	if !ok {
		return
	}
	buyToken, ok := s.bodyAddress(w, "buy_token", req.BuyToken)
	if !ok {
		return
	}

	res, err := s.engine.Swap(caller, sellToken, sellAmount, buyToken)
	if err != nil {
		s.writeError(w, err)
		return
	}
	s.writeJSON(w, http.StatusOK, map[string]string{
		"price":      res.Price.String(),
		"buy_amount": res.BuyAmount.String(),
		"fee":        res.Fee.String(),
	})
}

func (s *Server) handleSetExchangeFee(w http.ResponseWriter, r *http.Request) {
	caller, ok := s.caller(w, r)
	if !ok {
		return
	}
	var req struct {
		Fee int64 `json:"fee"`
	}
	if !s.decode(w, r, &req) {
		return
	}

	if err := s.engine.SetExchangeFee(caller, req.Fee); err != nil {
		s.writeError(w, err)
		return
	}
	s.writeJSON(w, http.StatusOK, map[string]bool{"ok": true})
}

func (s *Server) handlePoolPrice(w http.ResponseWriter, r *http.Request) {
	sellRaw := r.URL.Query().Get("sell")
	buyRaw := r.URL.Query().Get("buy")
	sellToken, ok := s.bodyAddress(w, "sell", sellRaw)
	if !ok {
		return
	}
	buyToken, ok := s.bodyAddress(w, "buy", buyRaw)
	if !ok {
		return
	}

	price, err := s.engine.PoolPrice(sellToken, buyToken)
	if err != nil {
		s.writeError(w, err)
		return
	}
	s.writeJSON(w, http.StatusOK, map[string]string{"price": price.String()})
}

// handlePoolTotal reports a token's pool total, plus the caller-specified
// account's current deposit when ?account= is given.
func (s *Server) handlePoolTotal(w http.ResponseWriter, r *http.Request) {
	tok, ok := s.pathAddress(w, r, "token")
	if !ok {
		return
	}

	resp := map[string]string{
		"token": tok.Hex(),
		"total": s.engine.PoolTotal(tok).String(),
	}
	if raw := r.URL.Query().Get("account"); raw != "" {
		account, ok := s.bodyAddress(w, "account", raw)
		if !ok {
			return
		}
		resp["account"] = account.Hex()
		resp["deposit"] = s.engine.PoolDeposit(account, tok).String()
	}
	s.writeJSON(w, http.StatusOK, resp)
}

// ============================================================================
// Bridge, admin
// ============================================================================

func (s *Server) handleBridgeSync(w http.ResponseWriter, r *http.Request) {
	caller, ok := s.caller(w, r)
	if !ok {
		return
	}
	var req struct {
		Round     int64   `json:"round"`
		MarketIDs []int64 `json:"market_ids"`
		States    []struct {
			Description    string `json:"description"`
			CurrentPrice   string `json:"current_price"`
			TotalLiquidity string `json:"total_liquidity"`
			Resolved       bool   `json:"resolved"`
			Outcome        string `json:"outcome"`
		} `json:"states"`
	}
	if !s.decode(w, r, &req) {
		return
	}

	states := make([]event.MarketStateSnapshot, 0, len(req.States))
	for i, st := range req.States {
		price, ok := s.bodyAmount(w, fmt.Sprintf("states[%d].current_price", i), st.CurrentPrice)
		if !ok {
			return
		}
		liquidity, ok := s.bodyAmount(w, fmt.Sprintf("states[%d].total_liquidity", i), st.TotalLiquidity)
		if !ok {
			return
		}
		states = append(states, event.MarketStateSnapshot{
			Description:    st.Description,
			CurrentPrice:   price,
			TotalLiquidity: liquidity,
			Resolved:       st.Resolved,
			Outcome:        st.Outcome,
		})
	}

	if err := s.engine.SyncEnvironmentState(caller, req.Round, req.MarketIDs, states); err != nil {
		s.writeError(w, err)
		return
	}
	s.writeJSON(w, http.StatusOK, map[string]interface{}{
		"round":   req.Round,
		"markets": len(req.MarketIDs),
	})
}

func (s *Server) handleIntegrity(w http.ResponseWriter, r *http.Request) {
	report, err := s.queries.VerifyIntegrity(r.Context())
	if err != nil {
		s.writeError(w, err)
		return
	}
	status := http.StatusOK
	if !report.IsHealthy {
		status = http.StatusConflict
	}
	s.writeJSON(w, status, report)
}

func (s *Server) handleStatus(w http.ResponseWriter, r *http.Request) {
	resp := map[string]interface{}{
		"sequence":      s.engine.Sequence(),
		"state_hash":    s.engine.StateHash().Hex(),
		"owner":         s.engine.Owner().Hex(),
		"orderbook":     s.engine.OrderBookAccount().Hex(),
		"pool":          s.engine.PoolAccount().Hex(),
		"orderbook_fee": s.engine.OrderBookFee(),
		"exchange_fee":  s.engine.ExchangeFee(),
	}
	if pt, set := s.engine.PriceToken(); set {
		resp["price_token"] = pt.Hex()
	}
	s.writeJSON(w, http.StatusOK, resp)
}
