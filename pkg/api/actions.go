package api

import (
	"encoding/json"
	"errors"
	"fmt"
	"net/http"

	"github.com/ethereum/go-ethereum/common"
	"github.com/holiman/uint256"

	"github.com/uhyunpark/hyperswap/pkg/app/core"
	"github.com/uhyunpark/hyperswap/pkg/crypto"
)

var errBadSignature = errors.New("signature does not match owner")

// ==============================
// Signed actions
// ==============================

func (s *Server) handleApprove(w http.ResponseWriter, r *http.Request) {
	var req TokenActionRequest
	if !s.decode(w, r, &req) {
		return
	}
	amount, ok := parseAmount(w, req.Amount)
	if !ok {
		return
	}
	owner, tok := common.HexToAddress(req.Owner), common.HexToAddress(req.Token)
	if !s.authorize(w, crypto.NewApprove(tok, amount, req.Nonce, owner), req.Signature) {
		return
	}

	if err := s.tokens.Approve(tok, owner, s.custodian.Address, amount); err != nil {
		s.respondFailure(w, "approve", err)
		return
	}
	s.log.Debugw("api_approve", "owner", owner, "token", tok, "amount", amount.Dec())
	respondJSON(w, ActionResponse{Status: "approved"})
}

func (s *Server) handleDeposit(w http.ResponseWriter, r *http.Request) {
	var req TokenActionRequest
	if !s.decode(w, r, &req) {
		return
	}
	amount, ok := parseAmount(w, req.Amount)
	if !ok {
		return
	}
	owner, tok := common.HexToAddress(req.Owner), common.HexToAddress(req.Token)
	if !s.authorize(w, crypto.NewDeposit(tok, amount, req.Nonce, owner), req.Signature) {
		return
	}

	balance, err := s.engine.Deposit(r.Context(), tok, owner, amount)
	if err != nil {
		s.respondFailure(w, "deposit", err)
		return
	}
	respondJSON(w, ActionResponse{Status: "deposited", Balance: balance.Dec()})
}

func (s *Server) handleWithdraw(w http.ResponseWriter, r *http.Request) {
	var req TokenActionRequest
	if !s.decode(w, r, &req) {
		return
	}
	amount, ok := parseAmount(w, req.Amount)
	if !ok {
		return
	}
	owner, tok := common.HexToAddress(req.Owner), common.HexToAddress(req.Token)
	if !s.authorize(w, crypto.NewWithdraw(tok, amount, req.Nonce, owner), req.Signature) {
		return
	}

	balance, err := s.engine.Withdraw(r.Context(), tok, owner, amount)
	if err != nil {
		s.respondFailure(w, "withdraw", err)
		return
	}
	respondJSON(w, ActionResponse{Status: "withdrawn", Balance: balance.Dec()})
}

func (s *Server) handleMakeOrder(w http.ResponseWriter, r *http.Request) {
	var req MakeOrderRequest
	if !s.decode(w, r, &req) {
		return
	}
	amountGet, ok := parseAmount(w, req.AmountGet)
	if !ok {
		return
	}
	amountGive, ok := parseAmount(w, req.AmountGive)
	if !ok {
		return
	}
	action := &crypto.MakeOrderAction{
		TokenGet:   common.HexToAddress(req.TokenGet),
		AmountGet:  amountGet,
		TokenGive:  common.HexToAddress(req.TokenGive),
		AmountGive: amountGive,
		Nonce:      req.Nonce,
		Owner:      common.HexToAddress(req.Owner),
	}
	if !s.authorize(w, action, req.Signature) {
		return
	}

	order, err := s.engine.MakeOrder(r.Context(), action.Owner, action.TokenGet, amountGet, action.TokenGive, amountGive)
	if err != nil {
		s.respondFailure(w, "make order", err)
		return
	}
	respondJSON(w, order)
}

func (s *Server) handleCancelOrder(w http.ResponseWriter, r *http.Request) {
	var req OrderActionRequest
	if !s.decode(w, r, &req) {
		return
	}
	owner := common.HexToAddress(req.Owner)
	if !s.authorize(w, crypto.NewCancelOrder(req.OrderID, req.Nonce, owner), req.Signature) {
		return
	}

	order, err := s.engine.CancelOrder(r.Context(), owner, req.OrderID)
	if err != nil {
		s.respondFailure(w, "cancel order", err)
		return
	}
	respondJSON(w, order)
}

func (s *Server) handleFillOrder(w http.ResponseWriter, r *http.Request) {
	var req OrderActionRequest
	if !s.decode(w, r, &req) {
		return
	}
	owner := common.HexToAddress(req.Owner)
	if !s.authorize(w, crypto.NewFillOrder(req.OrderID, req.Nonce, owner), req.Signature) {
		return
	}

	trade, err := s.engine.FillOrder(r.Context(), owner, req.OrderID)
	if err != nil {
		s.respondFailure(w, "fill order", err)
		return
	}
	respondJSON(w, trade)
}

// decode reads a JSON body into req and validates its tags
func (s *Server) decode(w http.ResponseWriter, r *http.Request, req interface{}) bool {
	dec := json.NewDecoder(r.Body)
	dec.DisallowUnknownFields()
	if err := dec.Decode(req); err != nil {
		respondError(w, http.StatusBadRequest, "invalid request body", err.Error())
		return false
	}
	if err := s.validate.Struct(req); err != nil {
		respondError(w, http.StatusBadRequest, "invalid request", err.Error())
		return false
	}
	return true
}

// authorize checks the owner's signature over the action, then consumes
// its nonce. A nonce is spent even if the engine later rejects the action.
func (s *Server) authorize(w http.ResponseWriter, a crypto.Action, signature string) bool {
	sig := common.FromHex(signature)
	if len(sig) != 65 {
		respondError(w, http.StatusBadRequest, "invalid signature", fmt.Sprintf("expected 65 bytes, got %d", len(sig)))
		return false
	}
	ok, err := s.signer.Verify(a, sig)
	if err != nil || !ok {
		if err == nil {
			err = errBadSignature
		}
		s.log.Debugw("api_unauthorized", "action", a.PrimaryType(), "owner", a.Signer(), "error", err)
		respondError(w, http.StatusUnauthorized, "unauthorized", err.Error())
		return false
	}
	if err := s.nonces.Use(a.Signer(), a.NonceValue()); err != nil {
		s.respondFailure(w, "nonce", err)
		return false
	}
	return true
}

// parseAmount accepts a non-negative decimal string of base units
func parseAmount(w http.ResponseWriter, v string) (*uint256.Int, bool) {
	amount, err := uint256.FromDecimal(v)
	if err != nil {
		respondError(w, http.StatusBadRequest, "invalid amount", fmt.Errorf("%q: %w: %w", v, core.ErrInvalidAmount, err).Error())
		return nil, false
	}
	return amount, true
}
