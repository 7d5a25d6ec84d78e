package api

import (
	"net/http"
	"strconv"

	"github.com/ethereum/go-ethereum/common"
	"github.com/gorilla/mux"
	"github.com/holiman/uint256"
	"github.com/shopspring/decimal"

	"github.com/uhyunpark/hyperswap/pkg/app/core"
)

const (
	defaultEventPage = 100
	maxEventPage     = 1000
)

// ==============================
// REST Handlers
// ==============================

func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	resp := HealthResponse{
		Status: "ok",
		Events: s.engine.EventCount(),
		Digest: s.engine.EventDigest().Hex(),
	}
	err := s.engine.Fault()
	if err == nil {
		if err = s.engine.Audit(r.Context()); err != nil {
			s.log.Errorw("audit_failed", "error", err)
		}
	}
	if err != nil {
		resp.Status = "degraded"
		resp.Error = err.Error()
		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(http.StatusServiceUnavailable)
	}
	respondJSON(w, resp)
}

func (s *Server) handleGetConfig(w http.ResponseWriter, r *http.Request) {
	respondJSON(w, ConfigResponse{
		FeeAccount: s.engine.FeeAccount().Hex(),
		FeePercent: s.engine.FeePercent(),
		Custodian:  s.custodian.Address.Hex(),
		ChainID:    s.signer.Domain().ChainID.String(),
	})
}

func (s *Server) handleGetTokens(w http.ResponseWriter, r *http.Request) {
	tokens := s.tokens.Tokens()
	response := make([]TokenInfo, len(tokens))
	for i, t := range tokens {
		response[i] = TokenInfo{
			Address:     t.Address.Hex(),
			Name:        t.Name,
			Symbol:      t.Symbol,
			Decimals:    t.Decimals,
			TotalSupply: t.TotalSupply.Dec(),
		}
	}
	respondJSON(w, response)
}

func (s *Server) handleGetWalletBalance(w http.ResponseWriter, r *http.Request) {
	vars := mux.Vars(r)
	tok, ok := pathAddress(w, vars, "token")
	if !ok {
		return
	}
	account, ok := pathAddress(w, vars, "account")
	if !ok {
		return
	}

	balance, err := s.tokens.BalanceOf(tok, account)
	if err != nil {
		s.respondFailure(w, "balance", err)
		return
	}
	allowance, err := s.tokens.Allowance(tok, account, s.custodian.Address)
	if err != nil {
		s.respondFailure(w, "allowance", err)
		return
	}
	respondJSON(w, WalletBalance{
		Token:     tok.Hex(),
		Account:   account.Hex(),
		Balance:   balance.Dec(),
		Allowance: allowance.Dec(),
	})
}

func (s *Server) handleGetBalance(w http.ResponseWriter, r *http.Request) {
	vars := mux.Vars(r)
	asset, ok := pathAddress(w, vars, "asset")
	if !ok {
		return
	}
	account, ok := pathAddress(w, vars, "account")
	if !ok {
		return
	}

	amount := s.engine.BalanceOf(asset, account)
	resp := CustodyBalance{
		Asset:   asset.Hex(),
		Account: account.Hex(),
		Amount:  amount.Dec(),
	}
	// custody accepts any asset, display only what the registry knows
	if t, err := s.tokens.Token(asset); err == nil {
		resp.Symbol = t.Symbol
		resp.Display = displayAmount(amount, t.Decimals)
	}
	respondJSON(w, resp)
}

func (s *Server) handleGetOrder(w http.ResponseWriter, r *http.Request) {
	id, err := strconv.ParseUint(mux.Vars(r)["id"], 10, 64)
	if err != nil {
		respondError(w, http.StatusBadRequest, "invalid order id", err.Error())
		return
	}
	order, err := s.engine.Order(id)
	if err != nil {
		s.respondFailure(w, "order", err)
		return
	}
	respondJSON(w, order)
}

func (s *Server) handleGetAccountOrders(w http.ResponseWriter, r *http.Request) {
	account, ok := pathAddress(w, mux.Vars(r), "account")
	if !ok {
		return
	}

	var orders []core.Order
	switch r.URL.Query().Get("status") {
	case "", "all":
		orders = s.engine.Orders(account)
	case "open":
		orders = s.engine.OpenOrders(account)
	default:
		respondError(w, http.StatusBadRequest, "invalid status filter", "expected open or all")
		return
	}
	if orders == nil {
		orders = []core.Order{}
	}
	respondJSON(w, orders)
}

func (s *Server) handleGetNonce(w http.ResponseWriter, r *http.Request) {
	account, ok := pathAddress(w, mux.Vars(r), "account")
	if !ok {
		return
	}
	respondJSON(w, NonceResponse{Account: account.Hex(), Nonce: s.nonces.Last(account)})
}

func (s *Server) handleGetEvents(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()

	from := uint64(1)
	if v := q.Get("from"); v != "" {
		n, err := strconv.ParseUint(v, 10, 64)
		if err != nil {
			respondError(w, http.StatusBadRequest, "invalid from", err.Error())
			return
		}
		from = max(n, 1)
	}
	limit := defaultEventPage
	if v := q.Get("limit"); v != "" {
		n, err := strconv.Atoi(v)
		if err != nil || n <= 0 {
			respondError(w, http.StatusBadRequest, "invalid limit", "expected a positive integer")
			return
		}
		limit = min(n, maxEventPage)
	}

	records := s.engine.Events(from, limit)
	next := from
	if len(records) > 0 {
		next = records[len(records)-1].Seq + 1
	}
	if records == nil {
		records = []core.Record{}
	}
	respondJSON(w, EventsResponse{Records: records, Next: next})
}

func pathAddress(w http.ResponseWriter, vars map[string]string, name string) (common.Address, bool) {
	v := vars[name]
	if !common.IsHexAddress(v) {
		respondError(w, http.StatusBadRequest, "invalid "+name, v)
		return common.Address{}, false
	}
	return common.HexToAddress(v), true
}

// displayAmount scales base units by the token's decimals: 1e18 -> "1"
func displayAmount(amount *uint256.Int, decimals uint8) string {
	return decimal.NewFromBigInt(amount.ToBig(), -int32(decimals)).String()
}
