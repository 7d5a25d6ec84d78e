package crypto

import (
	"bytes"
	"encoding/json"
	"math/big"
	"testing"

	"github.com/ethereum/go-ethereum/common"
	"github.com/holiman/uint256"
)

func testActions(owner common.Address) []Action {
	tok := common.HexToAddress("0x1000000000000000000000000000000000000001")
	other := common.HexToAddress("0x2000000000000000000000000000000000000002")
	amt := uint256.MustFromDecimal("100000000000000000000")
	return []Action{
		NewApprove(tok, amt, 1, owner),
		NewDeposit(tok, amt, 2, owner),
		NewWithdraw(tok, amt, 3, owner),
		&MakeOrderAction{TokenGet: other, AmountGet: amt, TokenGive: tok, AmountGive: amt, Nonce: 4, Owner: owner},
		NewCancelOrder(1, 5, owner),
		NewFillOrder(1, 6, owner),
	}
}

func TestSignAndRecoverActions(t *testing.T) {
	signer, err := GenerateKey()
	if err != nil {
		t.Fatal(err)
	}
	e := NewEIP712Signer(DefaultDomain())

	for _, a := range testActions(signer.Address()) {
		t.Run(a.PrimaryType(), func(t *testing.T) {
			sig, err := e.Sign(signer, a)
			if err != nil {
				t.Fatalf("sign: %v", err)
			}
			ok, err := e.Verify(a, sig)
			if err != nil {
				t.Fatalf("verify: %v", err)
			}
			if !ok {
				t.Fatal("signature did not verify")
			}
		})
	}
}

func TestVerifyRejectsOtherOwner(t *testing.T) {
	signer, _ := GenerateKey()
	mallory, _ := GenerateKey()
	e := NewEIP712Signer(DefaultDomain())

	// mallory signs an action claiming signer's account
	a := NewWithdraw(common.HexToAddress("0x01"), uint256.NewInt(5), 1, signer.Address())
	sig, err := e.Sign(mallory, a)
	if err != nil {
		t.Fatal(err)
	}
	ok, err := e.Verify(a, sig)
	if err != nil {
		t.Fatal(err)
	}
	if ok {
		t.Fatal("signature from another key verified")
	}
}

func TestHashDependsOnDomainAndType(t *testing.T) {
	owner := common.HexToAddress("0xAA00000000000000000000000000000000000000")
	local := NewEIP712Signer(DefaultDomain())

	mainnet := DefaultDomain()
	mainnet.ChainID = big.NewInt(1)
	remote := NewEIP712Signer(mainnet)

	cancel := NewCancelOrder(7, 1, owner)
	fill := NewFillOrder(7, 1, owner)

	h1, err := local.Hash(cancel)
	if err != nil {
		t.Fatal(err)
	}
	h2, _ := remote.Hash(cancel)
	h3, _ := local.Hash(fill)

	if len(h1) != 32 {
		t.Fatalf("digest length = %d", len(h1))
	}
	if bytes.Equal(h1, h2) {
		t.Error("chain id does not affect the digest")
	}
	if bytes.Equal(h1, h3) {
		t.Error("cancel and fill share a digest")
	}

	again, _ := local.Hash(NewCancelOrder(7, 1, owner))
	if !bytes.Equal(h1, again) {
		t.Error("hash is not deterministic")
	}
}

func TestTypedDataJSON(t *testing.T) {
	e := NewEIP712Signer(DefaultDomain())
	out, err := e.TypedDataJSON(NewFillOrder(3, 9, common.HexToAddress("0xAA")))
	if err != nil {
		t.Fatal(err)
	}

	var doc struct {
		PrimaryType string                 `json:"primaryType"`
		Message     map[string]interface{} `json:"message"`
		Domain      map[string]interface{} `json:"domain"`
	}
	if err := json.Unmarshal([]byte(out), &doc); err != nil {
		t.Fatalf("invalid JSON: %v", err)
	}
	if doc.PrimaryType != "FillOrder" {
		t.Errorf("primaryType = %s", doc.PrimaryType)
	}
	if doc.Message["orderId"] != "3" {
		t.Errorf("orderId = %v", doc.Message["orderId"])
	}
	if doc.Domain["name"] != "HyperSwap" {
		t.Errorf("domain name = %v", doc.Domain["name"])
	}
}
