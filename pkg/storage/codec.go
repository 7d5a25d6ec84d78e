package storage

import (
	"encoding/binary"
	"fmt"

	"github.com/holiman/uint256"
)

// encodeAmount stores amounts as fixed 32-byte big-endian values
func encodeAmount(v *uint256.Int) []byte {
	b := v.Bytes32()
	return b[:]
}

func decodeAmount(b []byte) (*uint256.Int, error) {
	if len(b) != 32 {
		return nil, fmt.Errorf("amount must be 32 bytes, got %d", len(b))
	}
	return new(uint256.Int).SetBytes32(b), nil
}

func encodeUint64(v uint64) []byte {
	var k [8]byte
	binary.BigEndian.PutUint64(k[:], v)
	return k[:]
}

func decodeUint64(b []byte) (uint64, error) {
	if len(b) != 8 {
		return 0, fmt.Errorf("uint64 must be 8 bytes, got %d", len(b))
	}
	return binary.BigEndian.Uint64(b), nil
}
