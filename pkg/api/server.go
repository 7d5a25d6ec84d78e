package api

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/gorilla/mux"
	"github.com/rs/cors"
	"go.uber.org/zap"

	"github.com/uhyunpark/hyperswap/pkg/app/core"
	"github.com/uhyunpark/hyperswap/pkg/app/exchange"
	"github.com/uhyunpark/hyperswap/pkg/crypto"
	"github.com/uhyunpark/hyperswap/pkg/token"
)

const shutdownTimeout = 5 * time.Second

// DefaultAllowedOrigins are the local frontend dev servers
var DefaultAllowedOrigins = []string{"http://localhost:3000", "http://localhost:3001"}

// Server handles REST API and WebSocket connections.
// Every mutating endpoint takes an EIP-712 signed request from the owner.
type Server struct {
	engine    *exchange.Engine
	tokens    *token.Registry
	custodian *token.Custodian
	signer    *crypto.EIP712Signer
	nonces    *NonceGuard
	validate  *validator.Validate
	router    *mux.Router
	hub       *Hub
	log       *zap.SugaredLogger

	AllowedOrigins []string
}

// NewServer creates the API server and subscribes its hub to the engine.
// Accepted request nonces are saved to nonces; nil keeps them in memory,
// so signed requests can be replayed after a restart.
func NewServer(engine *exchange.Engine, tokens *token.Registry, custodian *token.Custodian, signer *crypto.EIP712Signer, nonces NonceStore, logger *zap.SugaredLogger) (*Server, error) {
	if logger == nil {
		logger = zap.NewNop().Sugar()
	}
	guard, err := NewNonceGuard(nonces)
	if err != nil {
		return nil, err
	}
	s := &Server{
		engine:         engine,
		tokens:         tokens,
		custodian:      custodian,
		signer:         signer,
		nonces:         guard,
		validate:       validator.New(validator.WithRequiredStructEnabled()),
		router:         mux.NewRouter(),
		hub:            NewHub(logger.Named("ws")),
		log:            logger,
		AllowedOrigins: DefaultAllowedOrigins,
	}
	engine.Subscribe(s.hub.Publish)
	s.setupRoutes()
	return s, nil
}

func (s *Server) setupRoutes() {
	api := s.router.PathPrefix("/api/v1").Subrouter()

	// Exchange and token ledger
	api.HandleFunc("/config", s.handleGetConfig).Methods("GET")
	api.HandleFunc("/tokens", s.handleGetTokens).Methods("GET")
	api.HandleFunc("/tokens/{token}/balances/{account}", s.handleGetWalletBalance).Methods("GET")

	// Custody
	api.HandleFunc("/balances/{asset}/{account}", s.handleGetBalance).Methods("GET")
	api.HandleFunc("/tokens/approve", s.handleApprove).Methods("POST")
	api.HandleFunc("/deposit", s.handleDeposit).Methods("POST")
	api.HandleFunc("/withdraw", s.handleWithdraw).Methods("POST")

	// Orders
	api.HandleFunc("/orders", s.handleMakeOrder).Methods("POST")
	api.HandleFunc("/orders/cancel", s.handleCancelOrder).Methods("POST")
	api.HandleFunc("/orders/fill", s.handleFillOrder).Methods("POST")
	api.HandleFunc("/orders/{id:[0-9]+}", s.handleGetOrder).Methods("GET")

	// Accounts
	api.HandleFunc("/accounts/{account}/orders", s.handleGetAccountOrders).Methods("GET")
	api.HandleFunc("/accounts/{account}/nonce", s.handleGetNonce).Methods("GET")

	// Event log
	api.HandleFunc("/events", s.handleGetEvents).Methods("GET")

	s.router.HandleFunc("/ws", s.handleWebSocket)
	s.router.HandleFunc("/health", s.handleHealth).Methods("GET")
}

// Handler returns the router wrapped with CORS
func (s *Server) Handler() http.Handler {
	c := cors.New(cors.Options{
		AllowedOrigins:   s.AllowedOrigins,
		AllowedMethods:   []string{"GET", "POST", "OPTIONS"},
		AllowedHeaders:   []string{"Content-Type", "Authorization"},
		AllowCredentials: true,
	})
	return c.Handler(s.router)
}

// Start serves on addr until ctx is cancelled
func (s *Server) Start(ctx context.Context, addr string) error {
	go s.hub.Run(ctx)

	srv := &http.Server{
		Addr:              addr,
		Handler:           s.Handler(),
		ReadHeaderTimeout: 10 * time.Second,
	}
	go func() {
		<-ctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
		defer cancel()
		if err := srv.Shutdown(shutdownCtx); err != nil {
			s.log.Warnw("api_shutdown_failed", "error", err)
		}
	}()

	s.log.Infow("api_listening", "addr", addr)
	if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
		return fmt.Errorf("api server: %w", err)
	}
	return nil
}

// ==============================
// Helper Functions
// ==============================

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

// statusFor maps engine and token ledger errors to HTTP status codes.
// Client errors are checked before ErrTransferFailed so a deposit without
// allowance reports the allowance.
func statusFor(err error) int {
	switch {
	case errors.Is(err, core.ErrHalted):
		return http.StatusServiceUnavailable
	case errors.Is(err, core.ErrInvalidAmount),
		errors.Is(err, core.ErrAmountOverflow),
		errors.Is(err, token.ErrZeroAddress),
		errors.Is(err, token.ErrApproveZeroAddress):
		return http.StatusBadRequest
	case errors.Is(err, core.ErrNotOrderOwner):
		return http.StatusForbidden
	case errors.Is(err, core.ErrInvalidOrderID),
		errors.Is(err, token.ErrUnknownToken):
		return http.StatusNotFound
	case errors.Is(err, core.ErrAlreadyFilled),
		errors.Is(err, core.ErrOrderCancelled),
		errors.Is(err, core.ErrInvalidState),
		errors.Is(err, ErrStaleNonce):
		return http.StatusConflict
	case errors.Is(err, core.ErrInsufficientBalance),
		errors.Is(err, core.ErrInsufficientAllowance):
		return http.StatusUnprocessableEntity
	case errors.Is(err, core.ErrTransferFailed):
		return http.StatusBadGateway
	default:
		return http.StatusInternalServerError
	}
}

// respondFailure reports err with its mapped status
func (s *Server) respondFailure(w http.ResponseWriter, op string, err error) {
	status := statusFor(err)
	if status >= http.StatusInternalServerError {
		s.log.Errorw("api_request_failed", "op", op, "status", status, "error", err)
	} else {
		s.log.Debugw("api_request_rejected", "op", op, "status", status, "error", err)
	}
	respondError(w, status, op+" failed", err.Error())
}
