package token

import (
	"fmt"
	"sort"
	"sync"

	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/crypto"
	"github.com/holiman/uint256"
)

// Token describes one fungible asset. TotalSupply is in base units.
type Token struct {
	Address     common.Address `json:"address"`
	Name        string         `json:"name"`
	Symbol      string         `json:"symbol"`
	Decimals    uint8          `json:"decimals"`
	TotalSupply *uint256.Int   `json:"totalSupply"`
}

// TransferEvent mirrors the ERC-20 Transfer log
type TransferEvent struct {
	Token common.Address `json:"token"`
	From  common.Address `json:"from"`
	To    common.Address `json:"to"`
	Value *uint256.Int   `json:"value"`
}

// ApprovalEvent mirrors the ERC-20 Approval log
type ApprovalEvent struct {
	Token   common.Address `json:"token"`
	Owner   common.Address `json:"owner"`
	Spender common.Address `json:"spender"`
	Value   *uint256.Int   `json:"value"`
}

type ledger struct {
	meta       Token
	balances   map[common.Address]*uint256.Int
	allowances map[common.Address]map[common.Address]*uint256.Int // owner -> spender -> amount
}

// Registry is an in-process multi-token ledger with ERC-20 semantics.
// Thread-safe.
type Registry struct {
	mu        sync.RWMutex
	tokens    map[common.Address]*ledger
	nonces    map[common.Address]uint64 // deployer -> deployments so far
	transfers []TransferEvent
	approvals []ApprovalEvent
}

func NewRegistry() *Registry {
	return &Registry{
		tokens: make(map[common.Address]*ledger),
		nonces: make(map[common.Address]uint64),
	}
}

// Deploy creates a token and mints its whole supply to the deployer.
// supply is in whole tokens and scaled by 10^decimals. The address is
// derived like a contract creation address from (deployer, nonce).
func (r *Registry) Deploy(deployer common.Address, name, symbol string, decimals uint8, supply uint64) (Token, error) {
	if deployer == (common.Address{}) {
		return Token{}, ErrZeroAddress
	}
	scale := new(uint256.Int).Exp(uint256.NewInt(10), uint256.NewInt(uint64(decimals)))
	total, overflow := new(uint256.Int).MulOverflow(uint256.NewInt(supply), scale)
	if overflow {
		return Token{}, fmt.Errorf("supply %d with %d decimals overflows", supply, decimals)
	}

	r.mu.Lock()
	defer r.mu.Unlock()

	addr := crypto.CreateAddress(deployer, r.nonces[deployer])
	if _, ok := r.tokens[addr]; ok {
		return Token{}, fmt.Errorf("%s: %w", addr.Hex(), ErrTokenExists)
	}
	r.nonces[deployer]++

	meta := Token{Address: addr, Name: name, Symbol: symbol, Decimals: decimals, TotalSupply: total}
	r.tokens[addr] = &ledger{
		meta:       meta,
		balances:   map[common.Address]*uint256.Int{deployer: total.Clone()},
		allowances: make(map[common.Address]map[common.Address]*uint256.Int),
	}
	r.transfers = append(r.transfers, TransferEvent{Token: addr, From: common.Address{}, To: deployer, Value: total.Clone()})
	return cloneToken(meta), nil
}

// Token returns the metadata of a deployed token
func (r *Registry) Token(addr common.Address) (Token, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	l, ok := r.tokens[addr]
	if !ok {
		return Token{}, fmt.Errorf("%s: %w", addr.Hex(), ErrUnknownToken)
	}
	return cloneToken(l.meta), nil
}

// Tokens returns every deployed token sorted by symbol
func (r *Registry) Tokens() []Token {
	r.mu.RLock()
	defer r.mu.RUnlock()
	out := make([]Token, 0, len(r.tokens))
	for _, l := range r.tokens {
		out = append(out, cloneToken(l.meta))
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Symbol < out[j].Symbol })
	return out
}

// BySymbol finds a token by its symbol
func (r *Registry) BySymbol(symbol string) (Token, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	for _, l := range r.tokens {
		if l.meta.Symbol == symbol {
			return cloneToken(l.meta), true
		}
	}
	return Token{}, false
}

func (r *Registry) BalanceOf(token, account common.Address) (*uint256.Int, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	l, err := r.get(token)
	if err != nil {
		return nil, err
	}
	return amountOf(l.balances, account), nil
}

func (r *Registry) Allowance(token, owner, spender common.Address) (*uint256.Int, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	l, err := r.get(token)
	if err != nil {
		return nil, err
	}
	return amountOf(l.allowances[owner], spender), nil
}

// Transfer moves value from `from` to `to`
func (r *Registry) Transfer(token, from, to common.Address, value *uint256.Int) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	l, err := r.get(token)
	if err != nil {
		return err
	}
	return r.transfer(l, from, to, value)
}

// Approve sets spender's allowance over owner's balance to value
func (r *Registry) Approve(token, owner, spender common.Address, value *uint256.Int) error {
	if spender == (common.Address{}) {
		return ErrApproveZeroAddress
	}
	if value == nil {
		return ErrInvalidAmount
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	l, err := r.get(token)
	if err != nil {
		return err
	}
	if l.allowances[owner] == nil {
		l.allowances[owner] = make(map[common.Address]*uint256.Int)
	}
	l.allowances[owner][spender] = value.Clone()
	r.approvals = append(r.approvals, ApprovalEvent{Token: token, Owner: owner, Spender: spender, Value: value.Clone()})
	return nil
}

// TransferFrom moves value from `from` to `to` on behalf of spender,
// consuming allowance
func (r *Registry) TransferFrom(token, spender, from, to common.Address, value *uint256.Int) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	l, err := r.get(token)
	if err != nil {
		return err
	}
	if value == nil {
		return ErrInvalidAmount
	}
	allowed := amountOf(l.allowances[from], spender)
	if allowed.Lt(value) {
		return ErrInsufficientAllowance
	}
	if err := r.transfer(l, from, to, value); err != nil {
		return err
	}
	l.allowances[from][spender] = allowed.Sub(allowed, value)
	return nil
}

// Transfers returns the Transfer log, genesis mints included
func (r *Registry) Transfers() []TransferEvent {
	r.mu.RLock()
	defer r.mu.RUnlock()
	out := make([]TransferEvent, len(r.transfers))
	copy(out, r.transfers)
	return out
}

// Approvals returns the Approval log
func (r *Registry) Approvals() []ApprovalEvent {
	r.mu.RLock()
	defer r.mu.RUnlock()
	out := make([]ApprovalEvent, len(r.approvals))
	copy(out, r.approvals)
	return out
}

func (r *Registry) get(token common.Address) (*ledger, error) {
	l, ok := r.tokens[token]
	if !ok {
		return nil, fmt.Errorf("%s: %w", token.Hex(), ErrUnknownToken)
	}
	return l, nil
}

// transfer requires r.mu held for writing
func (r *Registry) transfer(l *ledger, from, to common.Address, value *uint256.Int) error {
	if to == (common.Address{}) {
		return ErrZeroAddress
	}
	if value == nil {
		return ErrInvalidAmount
	}
	have := amountOf(l.balances, from)
	if have.Lt(value) {
		return ErrInsufficientBalance
	}
	// total supply bounds every balance, so the credit cannot overflow
	l.balances[from] = have.Sub(have, value)
	recv := amountOf(l.balances, to)
	l.balances[to] = recv.Add(recv, value)
	r.transfers = append(r.transfers, TransferEvent{Token: l.meta.Address, From: from, To: to, Value: value.Clone()})
	return nil
}

func amountOf(m map[common.Address]*uint256.Int, addr common.Address) *uint256.Int {
	if v, ok := m[addr]; ok {
		return v.Clone()
	}
	return new(uint256.Int)
}

func cloneToken(t Token) Token {
	t.TotalSupply = t.TotalSupply.Clone()
	return t
}
