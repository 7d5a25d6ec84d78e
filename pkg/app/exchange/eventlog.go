package exchange

import (
	"encoding/binary"
	"fmt"

	"golang.org/x/crypto/sha3"

	"github.com/uhyunpark/hyperswap/pkg/app/core"
)

// EventLog is the ordered, append-only sequence of engine records.
// It also keeps a running keccak256 chain over the records so two nodes
// replaying the same history can compare a single digest.
type EventLog struct {
	records []core.Record
	digest  [32]byte
}

func NewEventLog() *EventLog {
	return &EventLog{}
}

// NextSeq returns the sequence number the next record will get
func (l *EventLog) NextSeq() uint64 {
	return uint64(len(l.records)) + 1
}

// Len returns the number of records
func (l *EventLog) Len() int {
	return len(l.records)
}

// Append adds records that were already durably committed.
// Sequence numbers must continue the log without gaps.
func (l *EventLog) Append(recs ...core.Record) error {
	for _, r := range recs {
		if r.Seq != l.NextSeq() {
			return fmt.Errorf("record seq %d, expected %d", r.Seq, l.NextSeq())
		}
		l.records = append(l.records, r)
		l.digest = chainDigest(l.digest, r)
	}
	return nil
}

// Range returns up to limit records starting at seq from (1-based).
// limit <= 0 means no limit.
func (l *EventLog) Range(from uint64, limit int) []core.Record {
	if from == 0 {
		from = 1
	}
	if from > uint64(len(l.records)) {
		return nil
	}
	rest := l.records[from-1:]
	if limit > 0 && limit < len(rest) {
		rest = rest[:limit]
	}
	out := make([]core.Record, len(rest))
	copy(out, rest)
	return out
}

// Digest returns the running hash over every appended record
func (l *EventLog) Digest() [32]byte {
	return l.digest
}

// chainDigest = keccak256(prev || seq || kind || payload)
func chainDigest(prev [32]byte, r core.Record) [32]byte {
	h := sha3.NewLegacyKeccak256()
	h.Write(prev[:])
	var seq [8]byte
	binary.BigEndian.PutUint64(seq[:], r.Seq)
	h.Write(seq[:])
	h.Write([]byte(r.Kind))
	h.Write(r.Payload)
	var out [32]byte
	copy(out[:], h.Sum(nil))
	return out
}
