package core

import (
	"encoding/json"
	"strings"
	"testing"

	"github.com/ethereum/go-ethereum/common"
	"github.com/holiman/uint256"
)

func TestRecordDecode(t *testing.T) {
	creator := common.HexToAddress("0xAA00000000000000000000000000000000000000")
	filler := common.HexToAddress("0xBB00000000000000000000000000000000000000")

	trade := TradeEvent{
		ID:         3,
		Filler:     filler,
		TokenGet:   common.HexToAddress("0x01"),
		AmountGet:  uint256.MustFromDecimal("100000000000000000000"),
		TokenGive:  common.HexToAddress("0x02"),
		AmountGive: uint256.NewInt(5),
		Creator:    creator,
		Fee:        uint256.MustFromDecimal("10000000000000000000"),
		CreatedAt:  1_700_000_000,
	}
	rec, err := NewRecord(9, trade)
	if err != nil {
		t.Fatal(err)
	}
	if rec.Seq != 9 || rec.Kind != KindTrade {
		t.Fatalf("record header = %d/%s", rec.Seq, rec.Kind)
	}
	// amounts travel as decimal strings
	if !strings.Contains(string(rec.Payload), `"amountGet":"100000000000000000000"`) {
		t.Fatalf("unexpected payload %s", rec.Payload)
	}

	ev, err := rec.Decode()
	if err != nil {
		t.Fatal(err)
	}
	got, ok := ev.(TradeEvent)
	if !ok {
		t.Fatalf("decoded %T, want TradeEvent", ev)
	}
	if got.Filler != filler || got.Creator != creator || got.Fee.Cmp(trade.Fee) != 0 {
		t.Fatalf("decoded trade mismatch: %+v", got)
	}
}

func TestRecordDecodeUnknownKind(t *testing.T) {
	r := Record{Seq: 1, Kind: "Mint", Payload: json.RawMessage(`{}`)}
	if _, err := r.Decode(); err == nil {
		t.Fatal("expected error for unknown kind")
	}
}

func TestOrderStatusText(t *testing.T) {
	for _, s := range []OrderStatus{OrderOpen, OrderFilled, OrderCancelled} {
		b, err := s.MarshalText()
		if err != nil {
			t.Fatal(err)
		}
		var back OrderStatus
		if err := back.UnmarshalText(b); err != nil {
			t.Fatal(err)
		}
		if back != s {
			t.Fatalf("status %s came back as %s", s, back)
		}
	}
	var s OrderStatus
	if err := s.UnmarshalText([]byte("matched")); err == nil {
		t.Fatal("expected error for unknown status")
	}
}

func TestCancelEventCarriesOrder(t *testing.T) {
	o := Order{
		ID:         4,
		Creator:    common.HexToAddress("0xAA"),
		AmountGet:  uint256.NewInt(1),
		AmountGive: uint256.NewInt(2),
		CreatedAt:  42,
	}
	ev := NewOrderCancelledEvent(o)
	if ev.ID != 4 || ev.Creator != o.Creator || ev.CreatedAt != 42 {
		t.Fatalf("cancel event = %+v", ev)
	}
	if ev.Kind() != KindOrderCancelled {
		t.Fatalf("kind = %s", ev.Kind())
	}
}
