package storage

import (
	"encoding/binary"
	"errors"
	"fmt"

	"github.com/colorfulnotion/zkstate/felt"
	"github.com/colorfulnotion/zkstate/log"
)

// DB is the typed view over a KeyValueStore used by the trie and the state db.
type DB struct {
	kv KeyValueStore
}

func NewDB(kv KeyValueStore) *DB {
	return &DB{kv: kv}
}

func (db *DB) Store() KeyValueStore {
	return db.kv
}

// EncodeFelts concatenates the canonical 32-byte encodings of fs.
func EncodeFelts(fs []felt.Felt) []byte {
	out := make([]byte, 0, len(fs)*felt.Bytes32)
	for i := range fs {
		b := fs[i].Bytes()
		out = append(out, b[:]...)
	}
	return out
}

// DecodeFelts is the inverse of EncodeFelts; any non-canonical element or
// trailing byte is ErrCorrupt.
func DecodeFelts(data []byte) ([]felt.Felt, error) {
	if len(data)%felt.Bytes32 != 0 {
		return nil, fmt.Errorf("felt sequence of %d bytes: %w", len(data), ErrCorrupt)
	}
	out := make([]felt.Felt, len(data)/felt.Bytes32)
	for i := range out {
		chunk := data[i*felt.Bytes32 : (i+1)*felt.Bytes32]
		if err := out[i].SetBytesCanonical(chunk); err != nil {
			return nil, fmt.Errorf("felt %d of sequence: %w", i, ErrCorrupt)
		}
	}
	return out, nil
}

// GetNodeValue loads the felt sequence stored under node digest key.
func (db *DB) GetNodeValue(key felt.Felt) ([]felt.Felt, error) {
	data, err := db.kv.Get(NodeKey(key))
	if err != nil {
		return nil, fmt.Errorf("node %s: %w", felt.Hex(key), err)
	}
	return DecodeFelts(data)
}

// SetNodeValue stores value under node digest key. Nodes are content
// addressed, so rewriting an existing key is a no-op in effect.
func (db *DB) SetNodeValue(key felt.Felt, value []felt.Felt) error {
	log.Trace(log.StorageMonitoring, "SetNodeValue", "key", felt.Hex(key), "len", len(value))
	return db.kv.Put(NodeKey(key), EncodeFelts(value))
}

func (db *DB) HasNode(key felt.Felt) (bool, error) {
	return db.kv.Has(NodeKey(key))
}

// CountNodes reports how many trie nodes are stored, when the store can enumerate.
func (db *DB) CountNodes() (int, error) {
	pr, ok := db.kv.(PrefixReader)
	if !ok {
		return 0, errors.New("store cannot enumerate keys")
	}
	kvs, err := pr.GetWithPrefix([]byte{NodePrefix})
	if err != nil {
		return 0, err
	}
	return len(kvs), nil
}

func (db *DB) GetMeta(k MetaKey) ([]byte, error) {
	v, err := db.kv.Get(MetadataKey(k))
	if err != nil {
		return nil, fmt.Errorf("metadata %q: %w", printableMeta(k), err)
	}
	return v, nil
}

func (db *DB) HasMeta(k MetaKey) (bool, error) {
	return db.kv.Has(MetadataKey(k))
}

func (db *DB) GetUint64(k MetaKey) (uint64, error) {
	v, err := db.GetMeta(k)
	if err != nil {
		return 0, err
	}
	if len(v) != 8 {
		return 0, fmt.Errorf("metadata %q holds %d bytes: %w", printableMeta(k), len(v), ErrCorrupt)
	}
	return binary.BigEndian.Uint64(v), nil
}

func (db *DB) GetFelt(k MetaKey) (felt.Felt, error) {
	v, err := db.GetMeta(k)
	if err != nil {
		return felt.Felt{}, err
	}
	f, err := felt.FromBytes(v)
	if err != nil {
		return felt.Felt{}, fmt.Errorf("metadata %q: %w", printableMeta(k), ErrCorrupt)
	}
	return f, nil
}

func (db *DB) GetString(k MetaKey) (string, error) {
	v, err := db.GetMeta(k)
	if err != nil {
		return "", err
	}
	return string(v), nil
}

// PutCode stores contract bytecode under its code hash.
func (db *DB) PutCode(hash felt.Felt, code []byte) error {
	return db.kv.Put(CodeKey(hash), code)
}

func (db *DB) GetCode(hash felt.Felt) ([]byte, error) {
	v, err := db.kv.Get(CodeKey(hash))
	if err != nil {
		return nil, fmt.Errorf("code %s: %w", felt.Hex(hash), err)
	}
	return v, nil
}

// MetaWriter stages metadata updates that commit together.
type MetaWriter struct {
	db    *DB
	batch *WriteBatch
}

func (db *DB) NewMetaWriter() *MetaWriter {
	return &MetaWriter{db: db, batch: NewWriteBatch()}
}

func (w *MetaWriter) PutUint64(k MetaKey, v uint64) *MetaWriter {
	var b [8]byte
	binary.BigEndian.PutUint64(b[:], v)
	w.batch.Put(MetadataKey(k), b[:])
	return w
}

func (w *MetaWriter) PutFelt(k MetaKey, f felt.Felt) *MetaWriter {
	b := f.Bytes()
	w.batch.Put(MetadataKey(k), b[:])
	return w
}

func (w *MetaWriter) PutBytes(k MetaKey, v []byte) *MetaWriter {
	w.batch.Put(MetadataKey(k), v)
	return w
}

// Commit writes every staged entry atomically.
func (w *MetaWriter) Commit() error {
	if w.batch.Len() == 0 {
		return nil
	}
	if err := w.db.kv.Write(w.batch); err != nil {
		return fmt.Errorf("commit %d metadata entries: %w", w.batch.Len(), err)
	}
	w.batch.Reset()
	return nil
}

func printableMeta(k MetaKey) string {
	s := string(k)
	if len(s) == len(metaBatchRoot)+8 && s[:len(metaBatchRoot)] == metaBatchRoot {
		return fmt.Sprintf("%s(%d)", metaBatchRoot, binary.BigEndian.Uint64([]byte(s[len(metaBatchRoot):])))
	}
	return s
}
