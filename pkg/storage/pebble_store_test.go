package storage

import (
	"bufio"
	"encoding/json"
	"os"
	"path/filepath"
	"testing"

	"github.com/ethereum/go-ethereum/common"
	"github.com/holiman/uint256"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/uhyunpark/hyperswap/pkg/app/core"
	"github.com/uhyunpark/hyperswap/pkg/app/exchange"
)

var (
	alice = common.HexToAddress("0xAA00000000000000000000000000000000000000")
	bob   = common.HexToAddress("0xBB00000000000000000000000000000000000000")
	usdc  = common.HexToAddress("0x1000000000000000000000000000000000000001")
)

var (
	_ exchange.Store = (*PebbleStore)(nil)
	_ exchange.Store = (*MemoryStore)(nil)
)

func newTestPebbleStore(t *testing.T) (*PebbleStore, string) {
	t.Helper()
	dir := filepath.Join(t.TempDir(), "db")
	s, err := NewPebbleStore(dir)
	require.NoError(t, err)
	t.Cleanup(func() { s.Close() })
	return s, dir
}

func record(t *testing.T, seq uint64, ev core.Event) core.Record {
	t.Helper()
	r, err := core.NewRecord(seq, ev)
	require.NoError(t, err)
	return r
}

func sampleChangeSets(t *testing.T) []core.ChangeSet {
	big := uint256.MustFromDecimal("1000000000000000000000000") // 1e24
	order := core.Order{
		ID: 1, Creator: alice, TokenGet: usdc, AmountGet: uint256.NewInt(5),
		TokenGive: usdc, AmountGive: uint256.NewInt(7), CreatedAt: 99, Status: core.OrderOpen,
	}
	return []core.ChangeSet{
		{
			Balances: []core.Balance{{Asset: usdc, Account: alice, Amount: big}},
			Records:  []core.Record{record(t, 1, core.DepositEvent{Asset: usdc, Account: alice, Amount: big, Balance: big})},
		},
		{
			Orders:      []core.Order{order},
			LastOrderID: 1,
			Records:     []core.Record{record(t, 2, core.NewOrderCreatedEvent(order))},
		},
	}
}

func TestPebbleStoreCommitAndLoad(t *testing.T) {
	s, _ := newTestPebbleStore(t)
	for _, cs := range sampleChangeSets(t) {
		require.NoError(t, s.Commit(cs))
	}

	snap, err := s.Load()
	require.NoError(t, err)
	require.Len(t, snap.Balances, 1)
	assert.Equal(t, "1000000000000000000000000", snap.Balances[0].Amount.Dec())
	assert.Equal(t, alice, snap.Balances[0].Account)
	require.Len(t, snap.Orders, 1)
	assert.Equal(t, uint64(7), snap.Orders[0].AmountGive.Uint64())
	assert.Equal(t, core.OrderOpen, snap.Orders[0].Status)
	assert.Equal(t, uint64(1), snap.LastOrderID)
	require.Len(t, snap.Records, 2)
	assert.Equal(t, core.KindOrderCreated, snap.Records[1].Kind)

	o, ok, err := s.LoadOrder(1)
	require.NoError(t, err)
	require.True(t, ok)
	assert.Equal(t, int64(99), o.CreatedAt)

	_, ok, err = s.LoadOrder(2)
	require.NoError(t, err)
	assert.False(t, ok)
}

func TestPebbleStoreSurvivesReopen(t *testing.T) {
	dir := filepath.Join(t.TempDir(), "db")
	s, err := NewPebbleStore(dir)
	require.NoError(t, err)
	for _, cs := range sampleChangeSets(t) {
		require.NoError(t, s.Commit(cs))
	}
	require.NoError(t, s.Close())

	s, err = NewPebbleStore(dir)
	require.NoError(t, err)
	defer s.Close()

	snap, err := s.Load()
	require.NoError(t, err)
	assert.Len(t, snap.Records, 2)
	assert.Equal(t, uint64(1), snap.LastOrderID)
}

func TestPebbleStoreZeroBalanceDeletes(t *testing.T) {
	s, _ := newTestPebbleStore(t)
	require.NoError(t, s.Commit(core.ChangeSet{Balances: []core.Balance{
		{Asset: usdc, Account: alice, Amount: uint256.NewInt(3)},
		{Asset: usdc, Account: bob, Amount: uint256.NewInt(4)},
	}}))
	require.NoError(t, s.Commit(core.ChangeSet{Balances: []core.Balance{
		{Asset: usdc, Account: alice, Amount: new(uint256.Int)},
	}}))

	snap, err := s.Load()
	require.NoError(t, err)
	require.Len(t, snap.Balances, 1)
	assert.Equal(t, bob, snap.Balances[0].Account)
}

func TestPebbleStoreDeleteRecords(t *testing.T) {
	s, _ := newTestPebbleStore(t)
	for _, cs := range sampleChangeSets(t) {
		require.NoError(t, s.Commit(cs))
	}
	require.NoError(t, s.Commit(core.ChangeSet{DeleteRecords: []uint64{2}}))

	recs, err := s.LoadRecords(1, 0)
	require.NoError(t, err)
	require.Len(t, recs, 1)
	assert.Equal(t, uint64(1), recs[0].Seq)
}

func TestPebbleStoreLoadRecordsRange(t *testing.T) {
	s, _ := newTestPebbleStore(t)
	var recs []core.Record
	for i := uint64(1); i <= 12; i++ {
		recs = append(recs, record(t, i, core.DepositEvent{Amount: uint256.NewInt(i), Balance: uint256.NewInt(i)}))
	}
	require.NoError(t, s.Commit(core.ChangeSet{Records: recs}))

	got, err := s.LoadRecords(10, 2)
	require.NoError(t, err)
	require.Len(t, got, 2)
	assert.Equal(t, uint64(10), got[0].Seq)
	assert.Equal(t, uint64(11), got[1].Seq)

	got, err = s.LoadRecords(0, 0)
	require.NoError(t, err)
	assert.Len(t, got, 12)
}

func TestMemoryStoreMatchesPebble(t *testing.T) {
	ps, _ := newTestPebbleStore(t)
	ms := NewMemoryStore()
	for _, cs := range sampleChangeSets(t) {
		require.NoError(t, ps.Commit(cs))
		require.NoError(t, ms.Commit(cs))
	}

	a, err := ps.Load()
	require.NoError(t, err)
	b, err := ms.Load()
	require.NoError(t, err)

	assert.Equal(t, a.LastOrderID, b.LastOrderID)
	assert.Equal(t, len(a.Balances), len(b.Balances))
	assert.Equal(t, len(a.Orders), len(b.Orders))
	require.Equal(t, len(a.Records), len(b.Records))
	for i := range a.Records {
		assert.Equal(t, a.Records[i].Seq, b.Records[i].Seq)
		assert.JSONEq(t, string(a.Records[i].Payload), string(b.Records[i].Payload))
	}
}

func TestBalanceKeyRoundTrip(t *testing.T) {
	asset, account, err := parseBalanceKey(balanceKey(usdc, alice))
	require.NoError(t, err)
	assert.Equal(t, usdc, asset)
	assert.Equal(t, alice, account)

	_, _, err = parseBalanceKey([]byte("bal:short"))
	assert.Error(t, err)
}

func TestFileJournal(t *testing.T) {
	path := filepath.Join(t.TempDir(), "journal.log")
	j, err := NewFileJournal(path)
	require.NoError(t, err)
	for _, cs := range sampleChangeSets(t) {
		for _, r := range cs.Records {
			j.Append(r)
		}
	}
	require.NoError(t, j.Close())

	f, err := os.Open(path)
	require.NoError(t, err)
	defer f.Close()

	var seqs []uint64
	sc := bufio.NewScanner(f)
	for sc.Scan() {
		var r core.Record
		require.NoError(t, json.Unmarshal(sc.Bytes(), &r))
		seqs = append(seqs, r.Seq)
	}
	assert.Equal(t, []uint64{1, 2}, seqs)
}

func TestNoncesSurviveReopen(t *testing.T) {
	dir := filepath.Join(t.TempDir(), "db")
	s, err := NewPebbleStore(dir)
	require.NoError(t, err)
	require.NoError(t, s.SaveNonce(alice, 3))
	require.NoError(t, s.SaveNonce(alice, 7))
	require.NoError(t, s.SaveNonce(bob, 1))
	require.NoError(t, s.Close())

	reopened, err := NewPebbleStore(dir)
	require.NoError(t, err)
	defer reopened.Close()

	nonces, err := reopened.LoadNonces()
	require.NoError(t, err)
	assert.Equal(t, map[common.Address]uint64{alice: 7, bob: 1}, nonces)

	ms := NewMemoryStore()
	require.NoError(t, ms.SaveNonce(alice, 2))
	got, err := ms.LoadNonces()
	require.NoError(t, err)
	assert.Equal(t, uint64(2), got[alice])
}
