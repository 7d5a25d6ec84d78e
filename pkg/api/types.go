package api

import "github.com/uhyunpark/hyperswap/pkg/app/core"

// API request and response types. Amounts are decimal strings of base
// units, addresses are 0x-prefixed hex.

// ==============================
// Signed requests
// ==============================

// TokenActionRequest is the body of approve, deposit and withdraw
type TokenActionRequest struct {
	Token     string `json:"token" validate:"required,eth_addr"`
	Amount    string `json:"amount" validate:"required,numeric"`
	Nonce     uint64 `json:"nonce" validate:"gte=1"`
	Owner     string `json:"owner" validate:"required,eth_addr"`
	Signature string `json:"signature" validate:"required,hexadecimal"`
}

// MakeOrderRequest is the body of POST /orders
type MakeOrderRequest struct {
	TokenGet   string `json:"tokenGet" validate:"required,eth_addr"`
	AmountGet  string `json:"amountGet" validate:"required,numeric"`
	TokenGive  string `json:"tokenGive" validate:"required,eth_addr"`
	AmountGive string `json:"amountGive" validate:"required,numeric"`
	Nonce      uint64 `json:"nonce" validate:"gte=1"`
	Owner      string `json:"owner" validate:"required,eth_addr"`
	Signature  string `json:"signature" validate:"required,hexadecimal"`
}

// OrderActionRequest is the body of cancel and fill
type OrderActionRequest struct {
	OrderID   uint64 `json:"orderId"`
	Nonce     uint64 `json:"nonce" validate:"gte=1"`
	Owner     string `json:"owner" validate:"required,eth_addr"`
	Signature string `json:"signature" validate:"required,hexadecimal"`
}

// ==============================
// REST responses
// ==============================

type ConfigResponse struct {
	FeeAccount string `json:"feeAccount"`
	FeePercent uint64 `json:"feePercent"`
	Custodian  string `json:"custodian"`
	ChainID    string `json:"chainId"`
}

type TokenInfo struct {
	Address     string `json:"address"`
	Name        string `json:"name"`
	Symbol      string `json:"symbol"`
	Decimals    uint8  `json:"decimals"`
	TotalSupply string `json:"totalSupply"`
}

// WalletBalance is an account's balance on the token ledger, outside custody
type WalletBalance struct {
	Token     string `json:"token"`
	Account   string `json:"account"`
	Balance   string `json:"balance"`
	Allowance string `json:"allowance"` // approved to the custodian
}

// CustodyBalance is an account's balance held by the exchange
type CustodyBalance struct {
	Asset   string `json:"asset"`
	Account string `json:"account"`
	Amount  string `json:"amount"`
	Display string `json:"display,omitempty"` // scaled by token decimals
	Symbol  string `json:"symbol,omitempty"`
}

type EventsResponse struct {
	Records []core.Record `json:"records"`
	Next    uint64        `json:"next"` // seq to pass as ?from= for the next page
}

type HealthResponse struct {
	Status string `json:"status"`
	Events uint64 `json:"events"`
	Digest string `json:"digest"`
	Error  string `json:"error,omitempty"`
}

type NonceResponse struct {
	Account string `json:"account"`
	Nonce   uint64 `json:"nonce"` // last accepted, 0 if none
}

type ActionResponse struct {
	Status  string `json:"status"`
	Balance string `json:"balance,omitempty"`
}

// ErrorResponse is the body of every non-2xx response
type ErrorResponse struct {
	Error   string `json:"error"`
	Message string `json:"message,omitempty"`
}

// ==============================
// WebSocket messages
// ==============================

// WSSubscribeRequest is sent by clients: {"op":"subscribe","channels":["trades"]}
type WSSubscribeRequest struct {
	Op       string   `json:"op"` // "subscribe" or "unsubscribe"
	Channels []string `json:"channels"`
}

// WSMessage carries one engine record to a subscribed channel
type WSMessage struct {
	Channel string      `json:"channel"`
	Record  core.Record `json:"record"`
}
