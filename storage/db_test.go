package storage

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/colorfulnotion/zkstate/felt"
)

func TestNodeValueRoundTrip(t *testing.T) {
	db := NewDB(NewMemoryStore())
	key := felt.FromUint64(99)
	val := []felt.Felt{felt.FromUint64(1), felt.FromUint64(2), felt.Zero()}

	require.NoError(t, db.SetNodeValue(key, val))
	got, err := db.GetNodeValue(key)
	require.NoError(t, err)
	require.Len(t, got, 3)
	for i := range val {
		assert.True(t, felt.Equal(val[i], got[i]))
	}

	ok, err := db.HasNode(key)
	require.NoError(t, err)
	assert.True(t, ok)

	_, err = db.GetNodeValue(felt.FromUint64(100))
	assert.ErrorIs(t, err, ErrNotFound)

	n, err := db.CountNodes()
	require.NoError(t, err)
	assert.Equal(t, 1, n)
}

func TestDecodeFeltsCorrupt(t *testing.T) {
	_, err := DecodeFelts(make([]byte, 33))
	assert.ErrorIs(t, err, ErrCorrupt)

	over := felt.Modulus().FillBytes(make([]byte, 32))
	_, err = DecodeFelts(over)
	assert.ErrorIs(t, err, ErrCorrupt)
}

func TestMetadata(t *testing.T) {
	db := NewDB(NewMemoryStore())
	root := felt.FromUint64(0xabcdef)

	_, err := db.GetUint64(MetaLastBatch)
	assert.ErrorIs(t, err, ErrNotFound)

	err = db.NewMetaWriter().
		PutUint64(MetaChainID, 100).
		PutUint64(MetaArity, 4).
		PutFelt(BatchRootKey(1), root).
		PutBytes(MetaHasher, []byte("poseidon")).
		Commit()
	require.NoError(t, err)

	chainID, err := db.GetUint64(MetaChainID)
	require.NoError(t, err)
	assert.Equal(t, uint64(100), chainID)

	got, err := db.GetFelt(BatchRootKey(1))
	require.NoError(t, err)
	assert.True(t, felt.Equal(root, got))

	name, err := db.GetString(MetaHasher)
	require.NoError(t, err)
	assert.Equal(t, "poseidon", name)

	_, err = db.GetFelt(BatchRootKey(2))
	assert.ErrorIs(t, err, ErrNotFound)
	assert.Contains(t, err.Error(), "BATCH_ROOT(2)")
}

func TestMetadataBadLength(t *testing.T) {
	kv := NewMemoryStore()
	db := NewDB(kv)
	require.NoError(t, kv.Put(MetadataKey(MetaArity), []byte{4}))
	_, err := db.GetUint64(MetaArity)
	assert.ErrorIs(t, err, ErrCorrupt)

	require.NoError(t, kv.Put(MetadataKey(MetaGenesisRoot), []byte{1, 2}))
	_, err = db.GetFelt(MetaGenesisRoot)
	assert.ErrorIs(t, err, ErrCorrupt)
}

func TestNamespacesDisjoint(t *testing.T) {
	h := felt.FromUint64(5)
	assert.NotEqual(t, NodeKey(h), CodeKey(h))
	assert.Equal(t, NodePrefix, NodeKey(h)[0])
	assert.Equal(t, CodePrefix, CodeKey(h)[0])
	assert.Equal(t, MetaPrefix, MetadataKey(MetaArity)[0])
	assert.NotEqual(t, BatchRootKey(1), BatchRootKey(256))
}

func TestCode(t *testing.T) {
	db := NewDB(NewMemoryStore())
	h := felt.FromUint64(7)
	require.NoError(t, db.PutCode(h, []byte{0x60, 0x00}))
	code, err := db.GetCode(h)
	require.NoError(t, err)
	assert.Equal(t, []byte{0x60, 0x00}, code)
	_, err = db.GetCode(felt.FromUint64(8))
	assert.ErrorIs(t, err, ErrNotFound)
}
