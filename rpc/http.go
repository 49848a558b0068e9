package rpc

import (
	"crypto/subtle"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"math/big"
	"net/http"
	"strings"
	"time"

	ethcommon "github.com/ethereum/go-ethereum/common"
	"github.com/go-chi/chi/v5"

	"bazaar/ledger"
	"bazaar/native/common"
	"bazaar/native/fees"
	"bazaar/native/market"
	"bazaar/observability"
)

const (
	jsonRPCVersion  = "2.0"
	maxRequestBytes = 1 << 20 // 1 MiB
)

const (
	codeParseError     = -32700
	codeInvalidRequest = -32600
	codeMethodNotFound = -32601
	codeInvalidParams  = -32602
	codeServerError    = -32000
	codeUnauthorized   = -32001

	codeMarketNotFound      = -32030
	codeMarketForbidden     = -32031
	codeInvalidQuantity     = -32032
	codeInvalidExpiry       = -32033
	codeOfferInactive       = -32034
	codeEscrowFailed        = -32035
	codeInsufficientPayment = -32036
	codeSettlementFailed    = -32037
	codeOutstandingBids     = -32038
	codeModulePaused        = -32039
)

// RPCRequest is a JSON-RPC 2.0 request envelope.
type RPCRequest struct {
	JSONRPC string            `json:"jsonrpc"`
	ID      json.RawMessage   `json:"id"`
	Method  string            `json:"method"`
	Params  []json.RawMessage `json:"params"`
}

// RPCError is a JSON-RPC 2.0 error object.
type RPCError struct {
	Code    int         `json:"code"`
	Message string      `json:"message"`
	Data    interface{} `json:"data,omitempty"`
}

// RPCResponse is a JSON-RPC 2.0 response envelope.
type RPCResponse struct {
	JSONRPC string          `json:"jsonrpc"`
	ID      json.RawMessage `json:"id,omitempty"`
	Result  interface{}     `json:"result,omitempty"`
	Error   *RPCError       `json:"error,omitempty"`
}

// Server exposes the exchange over a single JSON-RPC endpoint plus health and
// metrics routes. Mutating methods are gated by an optional bearer token.
type Server struct {
	engine    *market.Engine
	policy    *fees.Policy
	payments  *ledger.PaymentLedger
	custody   *ledger.CustodyLedger
	metrics   *observability.Metrics
	logger    *slog.Logger
	authToken string
	limiter   *RateLimiter
}

// NewServer wires the RPC surface to the exchange components.
func NewServer(engine *market.Engine, policy *fees.Policy, payments *ledger.PaymentLedger, custody *ledger.CustodyLedger, metrics *observability.Metrics, logger *slog.Logger, authToken string, limiter *RateLimiter) *Server {
	if logger == nil {
		logger = slog.Default()
	}
	return &Server{
		engine:    engine,
		policy:    policy,
		payments:  payments,
		custody:   custody,
		metrics:   metrics,
		logger:    logger,
		authToken: strings.TrimSpace(authToken),
		limiter:   limiter,
	}
}

// Router builds the chi router with middleware, health, metrics, and the RPC
// endpoint mounted.
func (s *Server) Router() http.Handler {
	r := chi.NewRouter()
	r.Use(RequestID)
	if s.limiter != nil {
		r.Use(s.limiter.Middleware())
	}
	r.Get("/healthz", func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
		_, _ = w.Write([]byte("ok"))
	})
	if s.metrics != nil {
		r.Handle("/metrics", s.metrics.Handler())
	}
	r.Post("/rpc", s.handleRPC)
	return r
}

type rpcHandler struct {
	fn      func(*RPCRequest) (interface{}, *RPCError)
	mutates bool
}

func (s *Server) handlers() map[string]rpcHandler {
	return map[string]rpcHandler{
		"market_createOffer":       {s.handleCreateOffer, true},
		"market_getOffer":          {s.handleGetOffer, false},
		"market_setPrice":          {s.handleSetPrice, true},
		"market_setExpiry":         {s.handleSetExpiry, true},
		"market_withdrawOffer":     {s.handleWithdrawOffer, true},
		"market_placeBid":          {s.handlePlaceBid, true},
		"market_cancelBid":         {s.handleCancelBid, true},
		"market_getBid":            {s.handleGetBid, false},
		"market_acceptBid":         {s.handleAcceptBid, true},
		"market_buyOffer":          {s.handleBuyOffer, true},
		"fees_setShare":            {s.handleSetFeeShare, true},
		"fees_getShare":            {s.handleGetFeeShare, false},
		"ledger_mint":              {s.handleLedgerMint, true},
		"ledger_approve":           {s.handleLedgerApprove, true},
		"ledger_getBalance":        {s.handleLedgerBalance, false},
		"ledger_getAllowance":      {s.handleLedgerAllowance, false},
		"custody_createCollection": {s.handleCustodyCreateCollection, true},
		"custody_mint":             {s.handleCustodyMint, true},
		"custody_setApproval":      {s.handleCustodySetApproval, true},
		"custody_getBalance":       {s.handleCustodyBalance, false},
	}
}

func (s *Server) handleRPC(w http.ResponseWriter, r *http.Request) {
	start := time.Now()
	body, err := io.ReadAll(io.LimitReader(r.Body, maxRequestBytes))
	if err != nil {
		s.writeError(w, http.StatusBadRequest, nil, codeParseError, "unable to read request body", nil)
		return
	}
	var req RPCRequest
	if err := json.Unmarshal(body, &req); err != nil {
		s.writeError(w, http.StatusBadRequest, nil, codeParseError, "invalid JSON-RPC payload", err.Error())
		return
	}
	if req.JSONRPC != "" && req.JSONRPC != jsonRPCVersion {
		s.writeError(w, http.StatusBadRequest, req.ID, codeInvalidRequest, "unsupported JSON-RPC version", nil)
		return
	}
	handler, ok := s.handlers()[req.Method]
	if !ok {
		s.writeError(w, http.StatusNotFound, req.ID, codeMethodNotFound, fmt.Sprintf("unknown method %s", req.Method), nil)
		return
	}
	if handler.mutates {
		if rpcErr := s.requireAuth(r); rpcErr != nil {
			s.observe(req.Method, "unauthorized", start)
			s.writeError(w, http.StatusUnauthorized, req.ID, rpcErr.Code, rpcErr.Message, rpcErr.Data)
			return
		}
	}
	result, rpcErr := handler.fn(&req)
	if rpcErr != nil {
		s.observe(req.Method, "error", start)
		s.writeError(w, http.StatusOK, req.ID, rpcErr.Code, rpcErr.Message, rpcErr.Data)
		return
	}
	s.observe(req.Method, "ok", start)
	s.writeResult(w, req.ID, result)
}

func (s *Server) nowUnix() int64 { return time.Now().Unix() }

func (s *Server) observe(method, status string, start time.Time) {
	if s.metrics == nil {
		return
	}
	s.metrics.Requests.WithLabelValues(method, status).Inc()
	s.metrics.Durations.WithLabelValues(method).Observe(time.Since(start).Seconds())
}

func (s *Server) requireAuth(r *http.Request) *RPCError {
	if s.authToken == "" {
		return nil
	}
	header := strings.TrimSpace(r.Header.Get("Authorization"))
	const prefix = "Bearer "
	if !strings.HasPrefix(header, prefix) {
		return &RPCError{Code: codeUnauthorized, Message: "missing bearer token"}
	}
	provided := strings.TrimSpace(strings.TrimPrefix(header, prefix))
	if subtle.ConstantTimeCompare([]byte(provided), []byte(s.authToken)) != 1 {
		return &RPCError{Code: codeUnauthorized, Message: "invalid bearer token"}
	}
	return nil
}

func (s *Server) writeResult(w http.ResponseWriter, id json.RawMessage, result interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(http.StatusOK)
	_ = json.NewEncoder(w).Encode(RPCResponse{JSONRPC: jsonRPCVersion, ID: id, Result: result})
}

func (s *Server) writeError(w http.ResponseWriter, status int, id json.RawMessage, code int, message string, data interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(RPCResponse{JSONRPC: jsonRPCVersion, ID: id, Error: &RPCError{Code: code, Message: message, Data: data}})
}

// errorToRPC maps engine sentinel errors onto stable JSON-RPC codes so
// clients can branch on the kind without parsing messages.
func errorToRPC(err error) *RPCError {
	switch {
	case errors.Is(err, market.ErrOfferNotFound), errors.Is(err, market.ErrBidNotFound):
		return &RPCError{Code: codeMarketNotFound, Message: err.Error()}
	case errors.Is(err, market.ErrUnauthorized), errors.Is(err, fees.ErrUnauthorized):
		return &RPCError{Code: codeMarketForbidden, Message: err.Error()}
	case errors.Is(err, market.ErrInvalidQuantity):
		return &RPCError{Code: codeInvalidQuantity, Message: err.Error()}
	case errors.Is(err, market.ErrInvalidExpiry):
		return &RPCError{Code: codeInvalidExpiry, Message: err.Error()}
	case errors.Is(err, market.ErrOfferInactive):
		return &RPCError{Code: codeOfferInactive, Message: err.Error()}
	case errors.Is(err, market.ErrEscrowFailed):
		return &RPCError{Code: codeEscrowFailed, Message: err.Error()}
	case errors.Is(err, market.ErrInsufficientPayment):
		return &RPCError{Code: codeInsufficientPayment, Message: err.Error()}
	case errors.Is(err, market.ErrSettlementFailed):
		return &RPCError{Code: codeSettlementFailed, Message: err.Error()}
	case errors.Is(err, market.ErrOutstandingBids):
		return &RPCError{Code: codeOutstandingBids, Message: err.Error()}
	case errors.Is(err, common.ErrModulePaused):
		return &RPCError{Code: codeModulePaused, Message: err.Error()}
	default:
		return &RPCError{Code: codeServerError, Message: err.Error()}
	}
}

func invalidParams(detail string) *RPCError {
	return &RPCError{Code: codeInvalidParams, Message: "invalid_params", Data: detail}
}

func decodeParams(req *RPCRequest, out interface{}) *RPCError {
	if len(req.Params) != 1 {
		return invalidParams("exactly one parameter object expected")
	}
	if err := json.Unmarshal(req.Params[0], out); err != nil {
		return invalidParams(err.Error())
	}
	return nil
}

func parseAddress(value string) ([20]byte, error) {
	var out [20]byte
	trimmed := strings.TrimSpace(value)
	if !ethcommon.IsHexAddress(trimmed) {
		return out, fmt.Errorf("invalid address %q", value)
	}
	copy(out[:], ethcommon.HexToAddress(trimmed).Bytes())
	return out, nil
}

func parsePositiveBigInt(value string) (*big.Int, error) {
	amount, ok := new(big.Int).SetString(strings.TrimSpace(value), 10)
	if !ok {
		return nil, fmt.Errorf("invalid amount %q", value)
	}
	if amount.Sign() <= 0 {
		return nil, fmt.Errorf("amount must be positive")
	}
	return amount, nil
}

func parseNonNegativeBigInt(value string) (*big.Int, error) {
	if strings.TrimSpace(value) == "" {
		return big.NewInt(0), nil
	}
	amount, ok := new(big.Int).SetString(strings.TrimSpace(value), 10)
	if !ok {
		return nil, fmt.Errorf("invalid amount %q", value)
	}
	if amount.Sign() < 0 {
		return nil, fmt.Errorf("amount must be non-negative")
	}
	return amount, nil
}
