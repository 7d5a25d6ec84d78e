package tests

import (
	"bufio"
	"context"
	"encoding/json"
	"errors"
	"os"
	"path/filepath"
	"testing"

	"github.com/ethereum/go-ethereum/common"
	"github.com/holiman/uint256"

	"github.com/uhyunpark/hyperswap/pkg/app/core"
	"github.com/uhyunpark/hyperswap/pkg/app/exchange"
	"github.com/uhyunpark/hyperswap/pkg/storage"
	"github.com/uhyunpark/hyperswap/pkg/token"
)

// Hardhat's default signers in the order the exchange tests use them
var (
	deployer   = common.HexToAddress("0xf39Fd6e51aad88F6F4ce6aB8827279cffFb92266")
	feeAccount = common.HexToAddress("0x70997970C51812dc3A010C7d01b50e0d17dc79C8")
	user1      = common.HexToAddress("0x3C44CdDdB6a900fa2b585dd299e03d12FA4293BC")
	user2      = common.HexToAddress("0x90F79bf6EB2c4f870365E785982E1f101E93b906")
	custodian  = common.HexToAddress("0x9fE46736679d2D9a65F0992F2272dE9f3c7fa6e0")
)

const feePercent = 10

// tokens scales whole tokens to 18-decimal base units
func tokens(n uint64) *uint256.Int {
	return new(uint256.Int).Mul(uint256.NewInt(n), uint256.NewInt(1_000_000_000_000_000_000))
}

type deployment struct {
	registry *token.Registry
	engine   *exchange.Engine
	token1   common.Address
	token2   common.Address
}

// deploy mirrors the exchange test fixture: two tokens, the exchange, and
// 1000 tokens handed to each user
func deploy(t *testing.T, store exchange.Store) *deployment {
	t.Helper()
	reg := token.NewRegistry()
	t1, err := reg.Deploy(deployer, "With Ease", "WEZ", 18, 1_000_000)
	if err != nil {
		t.Fatalf("deploy token1: %v", err)
	}
	t2, err := reg.Deploy(deployer, "Mock Token", "MTK", 18, 1_000_000)
	if err != nil {
		t.Fatalf("deploy token2: %v", err)
	}
	if err := reg.Transfer(t1.Address, deployer, user1, tokens(1000)); err != nil {
		t.Fatalf("fund user1: %v", err)
	}
	if err := reg.Transfer(t2.Address, deployer, user2, tokens(1000)); err != nil {
		t.Fatalf("fund user2: %v", err)
	}

	eng, err := exchange.New(exchange.Config{FeeAccount: feeAccount, FeePercent: feePercent}, token.NewCustodian(reg, custodian))
	if err != nil {
		t.Fatalf("new engine: %v", err)
	}
	if store != nil {
		snap, err := store.Load()
		if err != nil {
			t.Fatalf("load: %v", err)
		}
		if err := eng.Restore(snap); err != nil {
			t.Fatalf("restore: %v", err)
		}
		eng.Store = store
	}
	return &deployment{registry: reg, engine: eng, token1: t1.Address, token2: t2.Address}
}

func (d *deployment) approveAndDeposit(t *testing.T, asset, user common.Address, amount *uint256.Int) {
	t.Helper()
	if err := d.registry.Approve(asset, user, custodian, amount); err != nil {
		t.Fatalf("approve: %v", err)
	}
	if _, err := d.engine.Deposit(context.Background(), asset, user, amount); err != nil {
		t.Fatalf("deposit: %v", err)
	}
}

func (d *deployment) wallet(t *testing.T, asset, account common.Address) *uint256.Int {
	t.Helper()
	bal, err := d.registry.BalanceOf(asset, account)
	if err != nil {
		t.Fatalf("balanceOf: %v", err)
	}
	return bal
}

func expectAmount(t *testing.T, what string, got, want *uint256.Int) {
	t.Helper()
	if !got.Eq(want) {
		t.Fatalf("%s = %s, want %s", what, got.Dec(), want.Dec())
	}
}

func TestExchangeTradeLifecycle(t *testing.T) {
	ctx := context.Background()
	d := deploy(t, storage.NewMemoryStore())
	trade := tokens(100)
	fee := tokens(10)
	total := tokens(110)

	if d.engine.FeeAccount() != feeAccount || d.engine.FeePercent() != feePercent {
		t.Fatalf("config = %s/%d", d.engine.FeeAccount().Hex(), d.engine.FeePercent())
	}

	// a deposit without approval is refused by the token ledger
	if _, err := d.engine.Deposit(ctx, d.token1, user2, trade); !errors.Is(err, core.ErrInsufficientAllowance) {
		t.Fatalf("deposit without approval: %v", err)
	}

	d.approveAndDeposit(t, d.token1, user1, trade)
	d.approveAndDeposit(t, d.token2, user2, total)
	expectAmount(t, "custodian token1", d.wallet(t, d.token1, custodian), trade)

	order, err := d.engine.MakeOrder(ctx, user1, d.token2, trade, d.token1, trade)
	if err != nil {
		t.Fatalf("make order: %v", err)
	}
	if order.ID != 1 {
		t.Fatalf("order id = %d, want 1", order.ID)
	}

	ev, err := d.engine.FillOrder(ctx, user2, order.ID)
	if err != nil {
		t.Fatalf("fill: %v", err)
	}
	expectAmount(t, "trade fee", ev.Fee, fee)
	if ev.Filler != user2 || ev.Creator != user1 {
		t.Fatalf("trade parties = %s/%s", ev.Filler.Hex(), ev.Creator.Hex())
	}

	expectAmount(t, "user1 token2", d.engine.BalanceOf(d.token2, user1), trade)
	expectAmount(t, "user2 token1", d.engine.BalanceOf(d.token1, user2), trade)
	expectAmount(t, "fee account token2", d.engine.BalanceOf(d.token2, feeAccount), fee)
	expectAmount(t, "user2 token2", d.engine.BalanceOf(d.token2, user2), new(uint256.Int))
	if !d.engine.IsFilled(order.ID) {
		t.Fatal("order not marked filled")
	}

	if _, err := d.engine.FillOrder(ctx, user2, order.ID); !errors.Is(err, core.ErrAlreadyFilled) {
		t.Fatalf("second fill: %v", err)
	}

	// everyone takes their proceeds home
	if _, err := d.engine.Withdraw(ctx, d.token2, user1, trade); err != nil {
		t.Fatalf("user1 withdraw: %v", err)
	}
	if _, err := d.engine.Withdraw(ctx, d.token1, user2, trade); err != nil {
		t.Fatalf("user2 withdraw: %v", err)
	}
	if _, err := d.engine.Withdraw(ctx, d.token2, feeAccount, fee); err != nil {
		t.Fatalf("fee withdraw: %v", err)
	}
	expectAmount(t, "user1 wallet token2", d.wallet(t, d.token2, user1), trade)
	expectAmount(t, "user2 wallet token1", d.wallet(t, d.token1, user2), trade)
	expectAmount(t, "fee wallet token2", d.wallet(t, d.token2, feeAccount), fee)
	expectAmount(t, "custodian token1", d.wallet(t, d.token1, custodian), new(uint256.Int))
	expectAmount(t, "custodian token2", d.wallet(t, d.token2, custodian), new(uint256.Int))

	if err := d.engine.Audit(ctx); err != nil {
		t.Fatalf("audit: %v", err)
	}

	// Deposit, Deposit, Order, Trade, Withdraw x3
	wantKinds := []core.EventKind{
		core.KindDeposit, core.KindDeposit, core.KindOrderCreated, core.KindTrade,
		core.KindWithdraw, core.KindWithdraw, core.KindWithdraw,
	}
	records := d.engine.Events(0, 0)
	if len(records) != len(wantKinds) {
		t.Fatalf("records = %d, want %d", len(records), len(wantKinds))
	}
	for i, r := range records {
		if r.Seq != uint64(i+1) || r.Kind != wantKinds[i] {
			t.Fatalf("record %d = seq %d kind %s, want seq %d kind %s", i, r.Seq, r.Kind, i+1, wantKinds[i])
		}
	}
}

func TestExchangeCancelFlow(t *testing.T) {
	ctx := context.Background()
	d := deploy(t, nil)
	amount := tokens(1)

	d.approveAndDeposit(t, d.token1, user1, amount)
	order, err := d.engine.MakeOrder(ctx, user1, d.token2, amount, d.token1, amount)
	if err != nil {
		t.Fatalf("make order: %v", err)
	}

	if _, err := d.engine.CancelOrder(ctx, user2, order.ID); !errors.Is(err, core.ErrNotOrderOwner) {
		t.Fatalf("cancel by stranger: %v", err)
	}
	if _, err := d.engine.CancelOrder(ctx, user1, 9); !errors.Is(err, core.ErrInvalidOrderID) {
		t.Fatalf("cancel unknown order: %v", err)
	}
	if _, err := d.engine.CancelOrder(ctx, user1, order.ID); err != nil {
		t.Fatalf("cancel: %v", err)
	}
	if !d.engine.IsCancelled(order.ID) {
		t.Fatal("order not marked cancelled")
	}
	if _, err := d.engine.FillOrder(ctx, user2, order.ID); !errors.Is(err, core.ErrOrderCancelled) {
		t.Fatalf("fill cancelled: %v", err)
	}

	last := d.engine.Events(0, 0)
	ev, err := last[len(last)-1].Decode()
	if err != nil {
		t.Fatalf("decode: %v", err)
	}
	cancel, ok := ev.(core.OrderCancelledEvent)
	if !ok {
		t.Fatalf("last event is %T", ev)
	}
	if cancel.ID != order.ID || cancel.Creator != user1 || !cancel.AmountGive.Eq(amount) {
		t.Fatalf("cancel event = %+v", cancel)
	}

	// cancelling does not touch custody
	expectAmount(t, "user1 token1", d.engine.BalanceOf(d.token1, user1), amount)
}

func TestExchangeRestartFromPebble(t *testing.T) {
	ctx := context.Background()
	dir := filepath.Join(t.TempDir(), "exchange.db")

	store, err := storage.NewPebbleStore(dir)
	if err != nil {
		t.Fatalf("open: %v", err)
	}
	d := deploy(t, store)
	d.approveAndDeposit(t, d.token1, user1, tokens(100))
	d.approveAndDeposit(t, d.token2, user2, tokens(110))
	filled, err := d.engine.MakeOrder(ctx, user1, d.token2, tokens(100), d.token1, tokens(100))
	if err != nil {
		t.Fatal(err)
	}
	if _, err := d.engine.FillOrder(ctx, user2, filled.ID); err != nil {
		t.Fatal(err)
	}
	open, err := d.engine.MakeOrder(ctx, user2, d.token2, tokens(5), d.token1, tokens(5))
	if err != nil {
		t.Fatal(err)
	}

	digest := d.engine.EventDigest()
	events := d.engine.EventCount()
	if err := store.Close(); err != nil {
		t.Fatalf("close: %v", err)
	}

	store, err = storage.NewPebbleStore(dir)
	if err != nil {
		t.Fatalf("reopen: %v", err)
	}
	defer store.Close()
	r := deploy(t, store)

	if r.token1 != d.token1 {
		t.Fatalf("token addresses moved: %s vs %s", r.token1.Hex(), d.token1.Hex())
	}
	if r.engine.EventDigest() != digest || r.engine.EventCount() != events {
		t.Fatalf("event log differs after restart: %d/%s vs %d/%s",
			r.engine.EventCount(), r.engine.EventDigest().Hex(), events, digest.Hex())
	}
	expectAmount(t, "user2 token1", r.engine.BalanceOf(r.token1, user2), tokens(100))
	expectAmount(t, "fee account token2", r.engine.BalanceOf(r.token2, feeAccount), tokens(10))
	if !r.engine.IsFilled(filled.ID) {
		t.Fatal("filled order lost its status")
	}
	if got := r.engine.OpenOrders(user2); len(got) != 1 || got[0].ID != open.ID {
		t.Fatalf("open orders = %+v", got)
	}

	next, err := r.engine.MakeOrder(ctx, user1, r.token1, tokens(1), r.token2, tokens(1))
	if err != nil {
		t.Fatal(err)
	}
	if next.ID != open.ID+1 {
		t.Fatalf("next order id = %d, want %d", next.ID, open.ID+1)
	}
	if recs, err := store.LoadRecords(events+1, 0); err != nil || len(recs) != 1 {
		t.Fatalf("records after restart = %v, %v", recs, err)
	}
}

func TestJournalMirrorsEventLog(t *testing.T) {
	ctx := context.Background()
	path := filepath.Join(t.TempDir(), "journal.jsonl")
	journal, err := storage.NewFileJournal(path)
	if err != nil {
		t.Fatal(err)
	}

	d := deploy(t, nil)
	d.engine.Subscribe(journal.Append)
	d.approveAndDeposit(t, d.token1, user1, tokens(3))
	if _, err := d.engine.MakeOrder(ctx, user1, d.token2, tokens(1), d.token1, tokens(1)); err != nil {
		t.Fatal(err)
	}
	if _, err := d.engine.Withdraw(ctx, d.token1, user1, tokens(1)); err != nil {
		t.Fatal(err)
	}
	// rejected operations leave no trace
	if _, err := d.engine.Withdraw(ctx, d.token1, user1, tokens(50)); !errors.Is(err, core.ErrInsufficientBalance) {
		t.Fatalf("overdraw: %v", err)
	}
	if err := journal.Close(); err != nil {
		t.Fatal(err)
	}

	f, err := os.Open(path)
	if err != nil {
		t.Fatal(err)
	}
	defer f.Close()

	var lines []core.Record
	sc := bufio.NewScanner(f)
	for sc.Scan() {
		var r core.Record
		if err := json.Unmarshal(sc.Bytes(), &r); err != nil {
			t.Fatalf("bad journal line %q: %v", sc.Text(), err)
		}
		lines = append(lines, r)
	}
	if err := sc.Err(); err != nil {
		t.Fatal(err)
	}

	want := d.engine.Events(0, 0)
	if len(lines) != len(want) {
		t.Fatalf("journal has %d records, log has %d", len(lines), len(want))
	}
	for i := range want {
		if lines[i].Seq != want[i].Seq || lines[i].Kind != want[i].Kind || string(lines[i].Payload) != string(want[i].Payload) {
			t.Fatalf("journal[%d] = %+v, want %+v", i, lines[i], want[i])
		}
	}
}
