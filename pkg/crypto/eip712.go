package crypto

import (
	"encoding/json"
	"fmt"
	"math/big"
	"strconv"

	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/common/math"
	"github.com/ethereum/go-ethereum/crypto"
	"github.com/ethereum/go-ethereum/signer/core/apitypes"
	"github.com/holiman/uint256"
)

// EIP712Domain separates signatures across deployments and chains
type EIP712Domain struct {
	Name              string
	Version           string
	ChainID           *big.Int
	VerifyingContract common.Address // zero for off-chain signing
}

// DefaultDomain returns the local devnet domain
func DefaultDomain() EIP712Domain {
	return EIP712Domain{
		Name:              "HyperSwap",
		Version:           "1",
		ChainID:           big.NewInt(1337),
		VerifyingContract: common.Address{},
	}
}

var domainType = []apitypes.Type{
	{Name: "name", Type: "string"},
	{Name: "version", Type: "string"},
	{Name: "chainId", Type: "uint256"},
	{Name: "verifyingContract", Type: "address"},
}

// Action is a user request that must be signed by its Owner
type Action interface {
	PrimaryType() string
	Fields() []apitypes.Type
	Message() apitypes.TypedDataMessage
	Signer() common.Address
	NonceValue() uint64
}

// TokenAction covers the single-asset requests: Approve, Deposit and Withdraw
type TokenAction struct {
	Kind   string // "Approve", "Deposit" or "Withdraw"
	Token  common.Address
	Amount *uint256.Int
	Nonce  uint64
	Owner  common.Address
}

func NewApprove(token common.Address, amount *uint256.Int, nonce uint64, owner common.Address) *TokenAction {
	return &TokenAction{Kind: "Approve", Token: token, Amount: amount, Nonce: nonce, Owner: owner}
}

func NewDeposit(token common.Address, amount *uint256.Int, nonce uint64, owner common.Address) *TokenAction {
	return &TokenAction{Kind: "Deposit", Token: token, Amount: amount, Nonce: nonce, Owner: owner}
}

func NewWithdraw(token common.Address, amount *uint256.Int, nonce uint64, owner common.Address) *TokenAction {
	return &TokenAction{Kind: "Withdraw", Token: token, Amount: amount, Nonce: nonce, Owner: owner}
}

func (a *TokenAction) PrimaryType() string { return a.Kind }
func (a *TokenAction) Fields() []apitypes.Type {
	return []apitypes.Type{
		{Name: "token", Type: "address"},
		{Name: "amount", Type: "uint256"},
		{Name: "nonce", Type: "uint256"},
		{Name: "owner", Type: "address"},
	}
}
func (a *TokenAction) Message() apitypes.TypedDataMessage {
	return apitypes.TypedDataMessage{
		"token":  a.Token.Hex(),
		"amount": a.Amount.Dec(),
		"nonce":  strconv.FormatUint(a.Nonce, 10),
		"owner":  a.Owner.Hex(),
	}
}
func (a *TokenAction) Signer() common.Address { return a.Owner }
func (a *TokenAction) NonceValue() uint64     { return a.Nonce }

// MakeOrderAction offers amountGive of tokenGive for amountGet of tokenGet
type MakeOrderAction struct {
	TokenGet   common.Address
	AmountGet  *uint256.Int
	TokenGive  common.Address
	AmountGive *uint256.Int
	Nonce      uint64
	Owner      common.Address
}

func (a *MakeOrderAction) PrimaryType() string { return "MakeOrder" }
func (a *MakeOrderAction) Fields() []apitypes.Type {
	return []apitypes.Type{
		{Name: "tokenGet", Type: "address"},
		{Name: "amountGet", Type: "uint256"},
		{Name: "tokenGive", Type: "address"},
		{Name: "amountGive", Type: "uint256"},
		{Name: "nonce", Type: "uint256"},
		{Name: "owner", Type: "address"},
	}
}
func (a *MakeOrderAction) Message() apitypes.TypedDataMessage {
	return apitypes.TypedDataMessage{
		"tokenGet":   a.TokenGet.Hex(),
		"amountGet":  a.AmountGet.Dec(),
		"tokenGive":  a.TokenGive.Hex(),
		"amountGive": a.AmountGive.Dec(),
		"nonce":      strconv.FormatUint(a.Nonce, 10),
		"owner":      a.Owner.Hex(),
	}
}
func (a *MakeOrderAction) Signer() common.Address { return a.Owner }
func (a *MakeOrderAction) NonceValue() uint64     { return a.Nonce }

// OrderAction references an existing order: CancelOrder or FillOrder
type OrderAction struct {
	Kind    string // "CancelOrder" or "FillOrder"
	OrderID uint64
	Nonce   uint64
	Owner   common.Address
}

func NewCancelOrder(id, nonce uint64, owner common.Address) *OrderAction {
	return &OrderAction{Kind: "CancelOrder", OrderID: id, Nonce: nonce, Owner: owner}
}

func NewFillOrder(id, nonce uint64, owner common.Address) *OrderAction {
	return &OrderAction{Kind: "FillOrder", OrderID: id, Nonce: nonce, Owner: owner}
}

func (a *OrderAction) PrimaryType() string { return a.Kind }
func (a *OrderAction) Fields() []apitypes.Type {
	return []apitypes.Type{
		{Name: "orderId", Type: "uint256"},
		{Name: "nonce", Type: "uint256"},
		{Name: "owner", Type: "address"},
	}
}
func (a *OrderAction) Message() apitypes.TypedDataMessage {
	return apitypes.TypedDataMessage{
		"orderId": strconv.FormatUint(a.OrderID, 10),
		"nonce":   strconv.FormatUint(a.Nonce, 10),
		"owner":   a.Owner.Hex(),
	}
}
func (a *OrderAction) Signer() common.Address { return a.Owner }
func (a *OrderAction) NonceValue() uint64     { return a.Nonce }

// EIP712Signer hashes, signs and verifies typed actions for one domain
type EIP712Signer struct {
	domain EIP712Domain
}

func NewEIP712Signer(domain EIP712Domain) *EIP712Signer {
	return &EIP712Signer{domain: domain}
}

func (e *EIP712Signer) Domain() EIP712Domain {
	return e.domain
}

// TypedData builds the eth_signTypedData_v4 payload for an action
func (e *EIP712Signer) TypedData(a Action) apitypes.TypedData {
	return apitypes.TypedData{
		Types: apitypes.Types{
			"EIP712Domain": domainType,
			a.PrimaryType(): a.Fields(),
		},
		PrimaryType: a.PrimaryType(),
		Domain: apitypes.TypedDataDomain{
			Name:              e.domain.Name,
			Version:           e.domain.Version,
			ChainId:           (*math.HexOrDecimal256)(e.domain.ChainID),
			VerifyingContract: e.domain.VerifyingContract.Hex(),
		},
		Message: a.Message(),
	}
}

// Hash returns the digest the owner signs:
// keccak256("\x19\x01" || domainSeparator || hashStruct(message))
func (e *EIP712Signer) Hash(a Action) ([]byte, error) {
	typedData := e.TypedData(a)

	domainSeparator, err := typedData.HashStruct("EIP712Domain", typedData.Domain.Map())
	if err != nil {
		return nil, fmt.Errorf("failed to hash domain: %w", err)
	}
	messageHash, err := typedData.HashStruct(typedData.PrimaryType, typedData.Message)
	if err != nil {
		return nil, fmt.Errorf("failed to hash %s: %w", a.PrimaryType(), err)
	}

	raw := make([]byte, 0, 2+64)
	raw = append(raw, 0x19, 0x01)
	raw = append(raw, domainSeparator...)
	raw = append(raw, messageHash...)
	return crypto.Keccak256(raw), nil
}

// Sign signs an action with signer's key
func (e *EIP712Signer) Sign(signer *Signer, a Action) ([]byte, error) {
	hash, err := e.Hash(a)
	if err != nil {
		return nil, err
	}
	signature, err := signer.Sign(hash)
	if err != nil {
		return nil, fmt.Errorf("failed to sign %s: %w", a.PrimaryType(), err)
	}
	return signature, nil
}

// Recover returns the address that signed the action
func (e *EIP712Signer) Recover(a Action, signature []byte) (common.Address, error) {
	hash, err := e.Hash(a)
	if err != nil {
		return common.Address{}, err
	}
	return RecoverAddress(hash, signature)
}

// Verify reports whether the action was signed by its own Owner
func (e *EIP712Signer) Verify(a Action, signature []byte) (bool, error) {
	recovered, err := e.Recover(a, signature)
	if err != nil {
		return false, fmt.Errorf("failed to recover address: %w", err)
	}
	return recovered == a.Signer(), nil
}

// TypedDataJSON renders the action for wallet signing (MetaMask et al.)
func (e *EIP712Signer) TypedDataJSON(a Action) (string, error) {
	out, err := json.MarshalIndent(e.TypedData(a), "", "  ")
	if err != nil {
		return "", fmt.Errorf("failed to marshal JSON: %w", err)
	}
	return string(out), nil
}
