package statedb

import (
	"context"
	"strings"
	"testing"

	"github.com/ethereum/go-ethereum/common"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/colorfulnotion/zkstate/felt"
	"github.com/colorfulnotion/zkstate/storage"
)

func TestDiffRoots(t *testing.T) {
	ctx := context.Background()
	store := storage.NewMemoryStore()
	alice := newAccount(t)
	bob := newAccount(t)
	r0 := genesisState(t, store, alice.addr, bob.addr)
	s, err := Create(ctx, store, testParams(r0))
	require.NoError(t, err)

	out, changed, err := s.DiffRoots(r0, r0, false)
	require.NoError(t, err)
	assert.False(t, changed)
	assert.Empty(t, out)

	b := s.BuildBatch(common.Hash{}, common.Hash{})
	require.NoError(t, b.AddRawTx(alice.transfer(t, 0, receiver, 10)))
	require.NoError(t, b.ExecuteTxs(ctx))

	out, changed, err = s.DiffRoots(r0, b.CurrentRoot(), false)
	require.NoError(t, err)
	assert.True(t, changed)
	// receiver balance is a new key
	assert.Contains(t, out, felt.Hex(s.View().KeyBalance(receiver)))
	assert.True(t, strings.Contains(out, "+"))
	assert.True(t, strings.Contains(out, "-"))
}

func TestTrieJSON(t *testing.T) {
	s, err := Create(context.Background(), storage.NewMemoryStore(), testParams(felt.Zero()))
	require.NoError(t, err)
	out, err := s.TrieJSON(felt.Zero())
	require.NoError(t, err)
	assert.Equal(t, "{}", string(out))
}
