// Package storage defines the key-value contract the state db is persisted
// through, its in-memory and LevelDB implementations, and the typed DB facade
// that lays trie nodes, metadata and contract code out in disjoint namespaces.
package storage

import (
	"github.com/colorfulnotion/zkstate/zkerrors"
)

var (
	ErrNotFound = zkerrors.ErrNotFound
	ErrCorrupt  = zkerrors.ErrCorrupt
)

// KeyValueStore is a durable byte-keyed map. Get reports ErrNotFound for
// absent keys. Write applies every operation of the batch or none of them.
// Implementations must be safe for concurrent use.
type KeyValueStore interface {
	Get(key []byte) ([]byte, error)
	Has(key []byte) (bool, error)
	Put(key []byte, value []byte) error
	Delete(key []byte) error
	Write(batch *WriteBatch) error
	Close() error
}

// PrefixReader is implemented by stores that can enumerate a key range.
type PrefixReader interface {
	GetWithPrefix(prefix []byte) ([][2][]byte, error)
}

type batchOp struct {
	key    []byte
	value  []byte
	delete bool
}

// WriteBatch stages puts and deletes for one atomic Write.
type WriteBatch struct {
	ops []batchOp
}

func NewWriteBatch() *WriteBatch {
	return &WriteBatch{}
}

func (b *WriteBatch) Put(key, value []byte) {
	b.ops = append(b.ops, batchOp{key: append([]byte(nil), key...), value: append([]byte(nil), value...)})
}

func (b *WriteBatch) Delete(key []byte) {
	b.ops = append(b.ops, batchOp{key: append([]byte(nil), key...), delete: true})
}

func (b *WriteBatch) Len() int {
	return len(b.ops)
}

func (b *WriteBatch) Reset() {
	b.ops = b.ops[:0]
}

// Replay feeds the staged operations, in order, to put and del.
func (b *WriteBatch) Replay(put func(key, value []byte), del func(key []byte)) {
	for _, op := range b.ops {
		if op.delete {
			del(op.key)
		} else {
			put(op.key, op.value)
		}
	}
}
