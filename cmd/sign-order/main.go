package main

import (
	"encoding/json"
	"flag"
	"fmt"
	"math/big"
	"os"

	"github.com/ethereum/go-ethereum/common"
	"github.com/holiman/uint256"

	"github.com/uhyunpark/hyperswap/pkg/api"
	"github.com/uhyunpark/hyperswap/pkg/crypto"
)

// Hardhat account #0, the devnet deployer
const devKey = "0xac0974bec39a17e36ba4a6b4d238ff944bacb478cbed5efcae784d7bf4f2ff80"

func main() {
	action := flag.String("action", "order", "approve, deposit, withdraw, order, cancel or fill")
	key := flag.String("key", devKey, "hex private key (empty generates one)")
	chainID := flag.Int64("chain-id", 1337, "EIP-712 chain id")
	nonce := flag.Uint64("nonce", 1, "request nonce, strictly increasing per account")
	tok := flag.String("token", "", "token address (approve, deposit, withdraw)")
	amount := flag.String("amount", "", "amount in base units (approve, deposit, withdraw)")
	tokenGet := flag.String("token-get", "", "token the creator wants (order)")
	amountGet := flag.String("amount-get", "", "amount the creator wants (order)")
	tokenGive := flag.String("token-give", "", "token the creator offers (order)")
	amountGive := flag.String("amount-give", "", "amount the creator offers (order)")
	orderID := flag.Uint64("id", 0, "order id (cancel, fill)")
	apiURL := flag.String("api", "http://localhost:8080", "API base URL for the hint")
	flag.Parse()

	signer, err := loadSigner(*key)
	if err != nil {
		fail("key", err)
	}
	fmt.Fprintf(os.Stderr, "Address: %s\n", signer.Address().Hex())

	domain := crypto.DefaultDomain()
	domain.ChainID = big.NewInt(*chainID)
	eip712 := crypto.NewEIP712Signer(domain)
	owner := signer.Address()

	var (
		a    crypto.Action
		path string
		body interface{}
	)
	switch *action {
	case "approve", "deposit", "withdraw":
		token := mustAddress("token", *tok)
		amt := mustAmount("amount", *amount)
		req := &api.TokenActionRequest{Token: token.Hex(), Amount: amt.Dec(), Nonce: *nonce, Owner: owner.Hex()}
		switch *action {
		case "approve":
			a, path = crypto.NewApprove(token, amt, *nonce, owner), "/api/v1/tokens/approve"
		case "deposit":
			a, path = crypto.NewDeposit(token, amt, *nonce, owner), "/api/v1/deposit"
		default:
			a, path = crypto.NewWithdraw(token, amt, *nonce, owner), "/api/v1/withdraw"
		}
		req.Signature = sign(eip712, signer, a)
		body = req

	case "order":
		mo := &crypto.MakeOrderAction{
			TokenGet:   mustAddress("token-get", *tokenGet),
			AmountGet:  mustAmount("amount-get", *amountGet),
			TokenGive:  mustAddress("token-give", *tokenGive),
			AmountGive: mustAmount("amount-give", *amountGive),
			Nonce:      *nonce,
			Owner:      owner,
		}
		path = "/api/v1/orders"
		body = &api.MakeOrderRequest{
			TokenGet:   mo.TokenGet.Hex(),
			AmountGet:  mo.AmountGet.Dec(),
			TokenGive:  mo.TokenGive.Hex(),
			AmountGive: mo.AmountGive.Dec(),
			Nonce:      *nonce,
			Owner:      owner.Hex(),
			Signature:  sign(eip712, signer, mo),
		}

	case "cancel", "fill":
		if *action == "cancel" {
			a, path = crypto.NewCancelOrder(*orderID, *nonce, owner), "/api/v1/orders/cancel"
		} else {
			a, path = crypto.NewFillOrder(*orderID, *nonce, owner), "/api/v1/orders/fill"
		}
		body = &api.OrderActionRequest{
			OrderID:   *orderID,
			Nonce:     *nonce,
			Owner:     owner.Hex(),
			Signature: sign(eip712, signer, a),
		}

	default:
		fail("action", fmt.Errorf("unknown action %q", *action))
	}

	out, err := json.MarshalIndent(body, "", "  ")
	if err != nil {
		fail("marshal", err)
	}
	fmt.Println(string(out))

	fmt.Fprintf(os.Stderr, "\nSubmit with:\n  curl -X POST %s%s -H 'Content-Type: application/json' -d @-\n", *apiURL, path)
}

func loadSigner(key string) (*crypto.Signer, error) {
	if key == "" {
		return crypto.GenerateKey()
	}
	return crypto.FromPrivateKeyHex(key)
}

func sign(e *crypto.EIP712Signer, s *crypto.Signer, a crypto.Action) string {
	sig, err := e.Sign(s, a)
	if err != nil {
		fail("sign", err)
	}
	return fmt.Sprintf("0x%x", sig)
}

func mustAddress(name, v string) common.Address {
	if !common.IsHexAddress(v) {
		fail(name, fmt.Errorf("invalid address %q", v))
	}
	return common.HexToAddress(v)
}

func mustAmount(name, v string) *uint256.Int {
	amt, err := uint256.FromDecimal(v)
	if err != nil {
		fail(name, fmt.Errorf("invalid amount %q: %w", v, err))
	}
	return amt
}

func fail(what string, err error) {
	fmt.Fprintf(os.Stderr, "Error (%s): %v\n", what, err)
	os.Exit(1)
}
