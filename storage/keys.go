package storage

import (
	"encoding/binary"

	"github.com/colorfulnotion/zkstate/felt"
)

// Namespace tags. Every stored key starts with exactly one of them, so trie
// nodes, metadata and code can never collide.
const (
	NodePrefix byte = 'n'
	MetaPrefix byte = 'm'
	CodePrefix byte = 'c'
)

// MetaKey names a metadata entry.
type MetaKey string

const (
	MetaChainID        MetaKey = "SEQ_CHAIN_ID"
	MetaArity          MetaKey = "ARITY"
	MetaLastBatch      MetaKey = "LAST_BATCH"
	MetaHasher         MetaKey = "HASHER"
	MetaGenesisRoot    MetaKey = "GENESIS_ROOT"
	MetaSequencer      MetaKey = "SEQUENCER"
	MetaLocalExitRoot  MetaKey = "LOCAL_EXIT_ROOT"
	MetaGlobalExitRoot MetaKey = "GLOBAL_EXIT_ROOT"

	metaBatchRoot = "BATCH_ROOT"
)

// BatchRootKey is the metadata entry holding the root of consolidated batch n.
func BatchRootKey(n uint64) MetaKey {
	var b [8]byte
	binary.BigEndian.PutUint64(b[:], n)
	return MetaKey(metaBatchRoot + string(b[:]))
}

func NodeKey(h felt.Felt) []byte {
	b := h.Bytes()
	return append([]byte{NodePrefix}, b[:]...)
}

func MetadataKey(k MetaKey) []byte {
	return append([]byte{MetaPrefix}, k...)
}

func CodeKey(h felt.Felt) []byte {
	b := h.Bytes()
	return append([]byte{CodePrefix}, b[:]...)
}
