package statedb

import (
	"context"
	"testing"

	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/crypto"
	"github.com/holiman/uint256"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/colorfulnotion/zkstate/felt"
	"github.com/colorfulnotion/zkstate/stateview"
	"github.com/colorfulnotion/zkstate/storage"
	"github.com/colorfulnotion/zkstate/trie"
)

// polyHasher folds inputs as acc = acc*1000003 + x starting from the input
// count. It is cheap to recompute by hand, so fixed roots can be checked
// independently of the production hash.
type polyHasher struct{}

func (polyHasher) Name() string { return "poly" }

func (polyHasher) Hash(inputs ...felt.Felt) felt.Felt {
	mult := felt.FromUint64(1_000_003)
	acc := felt.FromUint64(uint64(len(inputs)))
	for i := range inputs {
		acc.Mul(&acc, &mult)
		acc.Add(&acc, &inputs[i])
	}
	return acc
}

const (
	goldenGenesisRoot = "0x00000000001b67211056f8c246165f645c1d835231deae6ff37b3250d6206c0e"
	goldenBatchRoot   = "0x1ae396a30685b55a830aeef7c1149dc1e143298b50e96175772e92994735d2ec"
)

func TestGoldenRoots(t *testing.T) {
	ctx := context.Background()
	key, err := crypto.ToECDSA(common.LeftPadBytes([]byte{1}, 32))
	require.NoError(t, err)
	alice := account{key: key, addr: crypto.PubkeyToAddress(key.PublicKey)}
	require.Equal(t, common.HexToAddress("0x7E5F4552091A69125d5DfCd7b8C2659029395Bdf"), alice.addr)
	bob := common.HexToAddress("0x2B5AD5c4795c026514f8317c7a215E218DcCD6cF")

	store := storage.NewMemoryStore()
	db := storage.NewDB(store)
	smt, err := trie.New(db, polyHasher{}, testArity)
	require.NoError(t, err)
	r0, err := stateview.New(smt, db).SetGenesis(
		[]common.Address{alice.addr, bob},
		[]*uint256.Int{uint256.NewInt(100), uint256.NewInt(50)},
		[]uint64{0, 0},
	)
	require.NoError(t, err)
	assert.Equal(t, goldenGenesisRoot, felt.Hex(r0))

	p := testParams(r0)
	p.Hasher = polyHasher{}
	s, err := Create(ctx, store, p)
	require.NoError(t, err)

	b := s.BuildBatch(common.Hash{}, common.Hash{})
	require.NoError(t, b.AddRawTx(alice.transfer(t, 0, receiver, 10)))
	require.NoError(t, b.ExecuteTxs(ctx))
	assert.Equal(t, 1, b.AppliedCount())
	require.NoError(t, s.Consolidate(ctx, b))
	assert.Equal(t, goldenBatchRoot, felt.Hex(s.StateRoot()))

	st, err := s.GetAccountState(alice.addr)
	require.NoError(t, err)
	assert.Equal(t, uint64(90), st.Balance.Uint64())
	assert.Equal(t, uint64(1), st.Nonce)
}
