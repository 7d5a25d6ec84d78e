package storage

import (
	"fmt"
	"strconv"

	"github.com/ethereum/go-ethereum/common"
)

// Pebble key schema
//
//   bal:{asset}:{account}  → 32-byte big-endian amount
//   ord:{id, 20 digits}    → JSON order
//   evt:{seq, 20 digits}   → JSON record
//   non:{account}          → 8-byte big-endian last accepted request nonce
//   meta:last_order_id     → 8-byte big-endian id
//
// Ids and sequence numbers are zero-padded so iteration follows numeric order.
const (
	prefixBalance = "bal:"
	prefixOrder   = "ord:"
	prefixEvent   = "evt:"
	prefixNonce   = "non:"
	prefixMeta    = "meta:"
)

// balanceKey returns the key for a custody balance
// Format: "bal:{asset}:{account}"
func balanceKey(asset, account common.Address) []byte {
	return []byte(fmt.Sprintf("%s%s:%s", prefixBalance, asset.Hex(), account.Hex()))
}

// orderKey returns the key for an order
// Format: "ord:00000000000000000042"
func orderKey(id uint64) []byte {
	return []byte(fmt.Sprintf("%s%020d", prefixOrder, id))
}

// eventKey returns the key for an event record
// Format: "evt:00000000000000000007"
func eventKey(seq uint64) []byte {
	return []byte(fmt.Sprintf("%s%020d", prefixEvent, seq))
}

// nonceKey returns the key for an account's last accepted nonce
// Format: "non:{account}"
func nonceKey(account common.Address) []byte {
	return []byte(prefixNonce + account.Hex())
}

func parseNonceKey(key []byte) (common.Address, error) {
	if len(key) <= len(prefixNonce) || !common.IsHexAddress(string(key[len(prefixNonce):])) {
		return common.Address{}, fmt.Errorf("invalid nonce key: %s", key)
	}
	return common.HexToAddress(string(key[len(prefixNonce):])), nil
}

func lastOrderIDKey() []byte {
	return []byte(prefixMeta + "last_order_id")
}

// keyUpperBound returns the exclusive upper bound for a prefix scan
func keyUpperBound(prefix []byte) []byte {
	bound := make([]byte, len(prefix))
	copy(bound, prefix)
	bound[len(bound)-1]++
	return bound
}

// parseBalanceKey is the inverse of balanceKey
func parseBalanceKey(key []byte) (asset, account common.Address, err error) {
	// "bal:" + 42 + ":" + 42
	if len(key) != len(prefixBalance)+42+1+42 {
		return asset, account, fmt.Errorf("invalid balance key length: %d", len(key))
	}
	rest := string(key[len(prefixBalance):])
	assetHex, accountHex := rest[:42], rest[43:]
	if rest[42] != ':' || !common.IsHexAddress(assetHex) || !common.IsHexAddress(accountHex) {
		return asset, account, fmt.Errorf("invalid balance key: %s", key)
	}
	return common.HexToAddress(assetHex), common.HexToAddress(accountHex), nil
}

// parseEventKey extracts the sequence number from an event key
func parseEventKey(key []byte) (uint64, error) {
	if len(key) <= len(prefixEvent) {
		return 0, fmt.Errorf("invalid event key: %s", key)
	}
	return strconv.ParseUint(string(key[len(prefixEvent):]), 10, 64)
}
