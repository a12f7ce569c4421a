package executor

import (
	"context"
	"crypto/ecdsa"
	"errors"
	"math/big"
	"testing"

	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/common/hexutil"
	"github.com/ethereum/go-ethereum/core/types"
	"github.com/ethereum/go-ethereum/crypto"
	"github.com/holiman/uint256"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/colorfulnotion/zkstate/felt"
	"github.com/colorfulnotion/zkstate/hasher"
	"github.com/colorfulnotion/zkstate/stateview"
	"github.com/colorfulnotion/zkstate/storage"
	"github.com/colorfulnotion/zkstate/trie"
)

const testChainID = 100

var (
	sequencer = common.HexToAddress("0x617b3a3528F9cDd6630fd3301B9c8911F7Bf063D")
	receiver  = common.HexToAddress("0x1111111111111111111111111111111111111111")
)

type fixture struct {
	view *stateview.View
	exec *TransferExecutor
	key  *ecdsa.PrivateKey
	from common.Address
	root felt.Felt
}

// failingStore fails every read while armed.
type failingStore struct {
	*storage.MemoryStore
	failGets bool
}

var errDiskRead = errors.New("disk read failed")

func (s *failingStore) Get(key []byte) ([]byte, error) {
	if s.failGets {
		return nil, errDiskRead
	}
	return s.MemoryStore.Get(key)
}

func newFixture(t *testing.T, balance uint64) *fixture {
	t.Helper()
	return newFixtureOn(t, storage.NewMemoryStore(), balance)
}

func newFixtureOn(t *testing.T, store storage.KeyValueStore, balance uint64) *fixture {
	t.Helper()
	db := storage.NewDB(store)
	smt, err := trie.New(db, hasher.NewPoseidon(), 4)
	require.NoError(t, err)
	view := stateview.New(smt, db)

	key, err := crypto.GenerateKey()
	require.NoError(t, err)
	from := crypto.PubkeyToAddress(key.PublicKey)
	root, err := view.SetGenesis([]common.Address{from}, []*uint256.Int{uint256.NewInt(balance)}, []uint64{0})
	require.NoError(t, err)
	return &fixture{view: view, exec: NewTransferExecutor(view, testChainID, sequencer), key: key, from: from, root: root}
}

func (f *fixture) signTransfer(t *testing.T, chainID, nonce uint64, to *common.Address, value, gasPrice int64) []byte {
	t.Helper()
	tx := types.NewTx(&types.LegacyTx{
		Nonce:    nonce,
		To:       to,
		Value:    big.NewInt(value),
		Gas:      TxGas,
		GasPrice: big.NewInt(gasPrice),
	})
	signed, err := types.SignTx(tx, types.NewEIP155Signer(new(big.Int).SetUint64(chainID)), f.key)
	require.NoError(t, err)
	raw, err := signed.MarshalBinary()
	require.NoError(t, err)
	return raw
}

func (f *fixture) balance(t *testing.T, root felt.Felt, addr common.Address) uint64 {
	t.Helper()
	b, err := f.view.GetBalance(root, addr)
	require.NoError(t, err)
	return b.Uint64()
}

func TestTransferApplied(t *testing.T) {
	f := newFixture(t, 1_000_000)
	raw := f.signTransfer(t, testChainID, 0, &receiver, 1000, 2)

	res, err := f.exec.Execute(context.Background(), f.root, [][]byte{raw})
	require.NoError(t, err)
	require.Len(t, res.Outcomes, 1)
	assert.Equal(t, Applied, res.Outcomes[0].Status)
	assert.Equal(t, f.from, res.Outcomes[0].From)
	assert.Equal(t, 1, res.Applied())
	assert.False(t, felt.Equal(f.root, res.NewRoot))

	fee := 2 * TxGas
	assert.Equal(t, uint64(1_000_000)-1000-fee, f.balance(t, res.NewRoot, f.from))
	assert.Equal(t, uint64(1000), f.balance(t, res.NewRoot, receiver))
	assert.Equal(t, fee, f.balance(t, res.NewRoot, sequencer))
	nonce, err := f.view.GetNonce(res.NewRoot, f.from)
	require.NoError(t, err)
	assert.Equal(t, uint64(1), nonce)
}

func TestHexEncodedTx(t *testing.T) {
	f := newFixture(t, 1_000_000)
	raw := f.signTransfer(t, testChainID, 0, &receiver, 1, 1)
	res, err := f.exec.Execute(context.Background(), f.root, [][]byte{[]byte(hexutil.Encode(raw))})
	require.NoError(t, err)
	assert.Equal(t, Applied, res.Outcomes[0].Status)
}

func TestSkippedTxsLeaveRoot(t *testing.T) {
	f := newFixture(t, 50_000)
	cases := map[string][]byte{
		ReasonDecode:  []byte{0xde, 0xad},
		ReasonChainID: f.signTransfer(t, testChainID+1, 0, &receiver, 1, 1),
		ReasonCreate:  f.signTransfer(t, testChainID, 0, nil, 1, 1),
		ReasonNonce:   f.signTransfer(t, testChainID, 5, &receiver, 1, 1),
		ReasonFunds:   f.signTransfer(t, testChainID, 0, &receiver, 50_000, 1),
	}
	for reason, raw := range cases {
		res, err := f.exec.Execute(context.Background(), f.root, [][]byte{raw})
		require.NoError(t, err, reason)
		require.Len(t, res.Outcomes, 1)
		assert.Equal(t, Skipped, res.Outcomes[0].Status, reason)
		assert.Equal(t, reason, res.Outcomes[0].Reason)
		assert.True(t, felt.Equal(f.root, res.NewRoot), reason)
	}
}

func TestSequentialNonces(t *testing.T) {
	f := newFixture(t, 1_000_000)
	txs := [][]byte{
		f.signTransfer(t, testChainID, 0, &receiver, 10, 1),
		f.signTransfer(t, testChainID, 0, &receiver, 10, 1), // replay
		f.signTransfer(t, testChainID, 1, &receiver, 10, 1),
	}
	res, err := f.exec.Execute(context.Background(), f.root, txs)
	require.NoError(t, err)
	assert.Equal(t, Applied, res.Outcomes[0].Status)
	assert.Equal(t, Skipped, res.Outcomes[1].Status)
	assert.Equal(t, ReasonNonce, res.Outcomes[1].Reason)
	assert.Equal(t, Applied, res.Outcomes[2].Status)
	assert.Equal(t, uint64(20), f.balance(t, res.NewRoot, receiver))
}

func TestCancelledContextAborts(t *testing.T) {
	f := newFixture(t, 1_000_000)
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	_, err := f.exec.Execute(ctx, f.root, [][]byte{f.signTransfer(t, testChainID, 0, &receiver, 1, 1)})
	assert.ErrorIs(t, err, context.Canceled)
}

func TestEmptyBatch(t *testing.T) {
	f := newFixture(t, 1)
	res, err := f.exec.Execute(context.Background(), f.root, nil)
	require.NoError(t, err)
	assert.True(t, felt.Equal(f.root, res.NewRoot))
	assert.Empty(t, res.Outcomes)
}

func TestStoreFailureKeepsOutcomes(t *testing.T) {
	store := &failingStore{MemoryStore: storage.NewMemoryStore()}
	f := newFixtureOn(t, store, 1_000_000)
	txs := [][]byte{
		{0xde, 0xad},
		f.signTransfer(t, testChainID, 0, &receiver, 1, 1),
		f.signTransfer(t, testChainID, 1, &receiver, 1, 1),
	}
	store.failGets = true

	res, err := f.exec.Execute(context.Background(), f.root, txs)
	require.Error(t, err)
	assert.ErrorIs(t, err, errDiskRead)
	var abortErr *AbortError
	require.True(t, errors.As(err, &abortErr))
	assert.Equal(t, 1, abortErr.Index)

	require.NotNil(t, res)
	require.Len(t, res.Outcomes, 2)
	assert.Equal(t, Skipped, res.Outcomes[0].Status)
	assert.Equal(t, ReasonDecode, res.Outcomes[0].Reason)
	assert.Equal(t, Aborted, res.Outcomes[1].Status)
	assert.Equal(t, 1, res.Outcomes[1].Index)
	assert.Equal(t, f.from, res.Outcomes[1].From)
	assert.Contains(t, res.Outcomes[1].Reason, "disk read failed")
}

// cancelOnPut cancels a context on the first write it sees.
type cancelOnPut struct {
	*storage.MemoryStore
	cancel context.CancelFunc
}

func (s *cancelOnPut) Put(key, value []byte) error {
	if s.cancel != nil {
		s.cancel()
	}
	return s.MemoryStore.Put(key, value)
}

func TestCancelMidBatchKeepsAppliedOutcomes(t *testing.T) {
	store := &cancelOnPut{MemoryStore: storage.NewMemoryStore()}
	f := newFixtureOn(t, store, 1_000_000)
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	store.cancel = cancel

	txs := [][]byte{
		f.signTransfer(t, testChainID, 0, &receiver, 1, 1),
		f.signTransfer(t, testChainID, 1, &receiver, 1, 1),
	}
	res, err := f.exec.Execute(ctx, f.root, txs)
	assert.ErrorIs(t, err, context.Canceled)
	require.NotNil(t, res)
	require.Len(t, res.Outcomes, 2)
	assert.Equal(t, Applied, res.Outcomes[0].Status)
	assert.Equal(t, Aborted, res.Outcomes[1].Status)
}
