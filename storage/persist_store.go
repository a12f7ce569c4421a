package storage

import (
	"errors"
	"fmt"

	"github.com/syndtr/goleveldb/leveldb"
	leveldbstorage "github.com/syndtr/goleveldb/leveldb/storage"
	"github.com/syndtr/goleveldb/leveldb/util"

	"github.com/colorfulnotion/zkstate/log"
)

var errClosed = errors.New("store is closed")

// LevelDBStore is a KeyValueStore backed by LevelDB.
// Thread-safe: LevelDB handles its own synchronization.
type LevelDBStore struct {
	db   *leveldb.DB
	path string
}

// NewLevelDBStore opens or creates a LevelDB database at the given path.
// If path is empty, uses in-memory storage.
func NewLevelDBStore(path string) (*LevelDBStore, error) {
	var db *leveldb.DB
	var err error

	if path == "" {
		db, err = leveldb.Open(leveldbstorage.NewMemStorage(), nil)
	} else {
		db, err = leveldb.OpenFile(path, nil)
	}
	if err != nil {
		return nil, fmt.Errorf("failed to open database at %s: %w", path, err)
	}
	log.Debug(log.StorageMonitoring, "leveldb opened", "path", path)
	return &LevelDBStore{db: db, path: path}, nil
}

func (s *LevelDBStore) Get(key []byte) ([]byte, error) {
	data, err := s.db.Get(key, nil)
	if errors.Is(err, leveldb.ErrNotFound) {
		return nil, fmt.Errorf("Get %x: %w", key, ErrNotFound)
	}
	if err != nil {
		return nil, fmt.Errorf("Get %x: %w", key, err)
	}
	return data, nil
}

func (s *LevelDBStore) Has(key []byte) (bool, error) {
	return s.db.Has(key, nil)
}

func (s *LevelDBStore) Put(key []byte, value []byte) error {
	return s.db.Put(key, value, nil)
}

func (s *LevelDBStore) Delete(key []byte) error {
	return s.db.Delete(key, nil)
}

// Write commits the batch through a single leveldb.Batch.
func (s *LevelDBStore) Write(batch *WriteBatch) error {
	b := new(leveldb.Batch)
	batch.Replay(b.Put, b.Delete)
	if err := s.db.Write(b, nil); err != nil {
		return fmt.Errorf("Write %d ops: %w", batch.Len(), err)
	}
	return nil
}

// GetWithPrefix returns all key-value pairs with the given prefix.
// Returns pairs sorted by key order.
func (s *LevelDBStore) GetWithPrefix(prefix []byte) ([][2][]byte, error) {
	iter := s.db.NewIterator(util.BytesPrefix(prefix), nil)
	defer iter.Release()

	var results [][2][]byte
	for iter.Next() {
		// Copy key and value to avoid iterator reuse issues
		keyCopy := append([]byte(nil), iter.Key()...)
		valueCopy := append([]byte(nil), iter.Value()...)
		results = append(results, [2][]byte{keyCopy, valueCopy})
	}
	if err := iter.Error(); err != nil {
		return nil, fmt.Errorf("GetWithPrefix %x: %w", prefix, err)
	}
	return results, nil
}

func (s *LevelDBStore) Path() string {
	return s.path
}

func (s *LevelDBStore) Close() error {
	return s.db.Close()
}
