// Package statedb orchestrates the committed rollup state: it creates or
// rehydrates the state from a store, builds batches on the current root and
// consolidates executed batches into the persisted batch history.
package statedb

import (
	"context"
	"errors"
	"fmt"
	"math"
	"sync"

	"github.com/ethereum/go-ethereum/common"
	"github.com/holiman/uint256"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"

	"github.com/colorfulnotion/zkstate/executor"
	"github.com/colorfulnotion/zkstate/felt"
	"github.com/colorfulnotion/zkstate/hasher"
	"github.com/colorfulnotion/zkstate/log"
	"github.com/colorfulnotion/zkstate/stateview"
	"github.com/colorfulnotion/zkstate/storage"
	"github.com/colorfulnotion/zkstate/trie"
	"github.com/colorfulnotion/zkstate/zkerrors"
)

const tracerName = "github.com/colorfulnotion/zkstate/statedb"

// maxStoredArity bounds the ARITY metadata accepted on import.
const maxStoredArity = math.MaxInt32

var (
	ErrNotFound            = zkerrors.ErrNotFound
	ErrCorrupt             = zkerrors.ErrCorrupt
	ErrStaleBatch          = zkerrors.ErrStaleBatch
	ErrAlreadyExecuted     = zkerrors.ErrAlreadyExecuted
	ErrNotExecuted         = zkerrors.ErrNotExecuted
	ErrBatchAborted        = zkerrors.ErrBatchAborted
	ErrInvalidBatch        = zkerrors.ErrInvalidBatch
	ErrAlreadyConsolidated = zkerrors.ErrAlreadyConsolidated
	ErrArityMismatch       = zkerrors.ErrArityMismatch
	ErrChainIDMismatch     = zkerrors.ErrChainIDMismatch
	ErrHasherMismatch      = zkerrors.ErrHasherMismatch
	ErrAlreadyInitialized  = zkerrors.ErrAlreadyInitialized
	ErrInvalidArity        = zkerrors.ErrInvalidArity
)

// Params are the chain parameters a store is initialized with.
type Params struct {
	ChainID          uint64
	Arity            int
	Hasher           hasher.Hasher
	SequencerAddress common.Address
	GenesisRoot      felt.Felt
}

// ExecutorFactory builds the executor batches are run through.
type ExecutorFactory func(view *stateview.View, chainID uint64, sequencer common.Address) executor.Executor

type Option func(*StateDB)

// WithExecutor replaces the default transfer executor.
func WithExecutor(f ExecutorFactory) Option {
	return func(s *StateDB) { s.newExecutor = f }
}

// WithTracer sets the tracer spans are recorded on; the global provider is used otherwise.
func WithTracer(t trace.Tracer) Option {
	return func(s *StateDB) { s.tracer = t }
}

func defaultExecutor(view *stateview.View, chainID uint64, sequencer common.Address) executor.Executor {
	return executor.NewTransferExecutor(view, chainID, sequencer)
}

// StateDB is a handle over one initialized store. A single writer drives
// batch building and consolidation; accessors are safe to call concurrently.
type StateDB struct {
	db          *storage.DB
	smt         *trie.SMT
	view        *stateview.View
	exec        executor.Executor
	newExecutor ExecutorFactory
	tracer      trace.Tracer

	chainID     uint64
	arity       int
	hasherName  string
	sequencer   common.Address
	genesisRoot felt.Felt

	mu        sync.RWMutex
	stateRoot felt.Felt
	lastBatch uint64
}

func newStateDB(store storage.KeyValueStore, h hasher.Hasher, chainID uint64, arity int, sequencer common.Address, opts []Option) (*StateDB, error) {
	db := storage.NewDB(store)
	smt, err := trie.New(db, h, arity)
	if err != nil {
		return nil, err
	}
	s := &StateDB{
		db:          db,
		smt:         smt,
		view:        stateview.New(smt, db),
		newExecutor: defaultExecutor,
		tracer:      otel.Tracer(tracerName),
		chainID:     chainID,
		arity:       arity,
		hasherName:  h.Name(),
		sequencer:   sequencer,
	}
	for _, opt := range opts {
		opt(s)
	}
	s.exec = s.newExecutor(s.view, chainID, sequencer)
	return s, nil
}

// Create initializes store with p. It fails when the store already carries
// different parameters or already holds consolidated batches. Re-running it
// with identical parameters before the first consolidation is allowed; a
// different genesis root or sequencer is ErrAlreadyInitialized. LAST_BATCH is
// left unset until the first consolidation.
func Create(ctx context.Context, store storage.KeyValueStore, p Params, opts ...Option) (s *StateDB, err error) {
	if p.Arity < 2 {
		return nil, fmt.Errorf("create: arity %d: %w", p.Arity, ErrInvalidArity)
	}
	if p.Hasher == nil {
		return nil, fmt.Errorf("create: nil hasher")
	}
	s, err = newStateDB(store, p.Hasher, p.ChainID, p.Arity, p.SequencerAddress, opts)
	if err != nil {
		return nil, err
	}
	_, span := s.tracer.Start(ctx, "statedb.Create", trace.WithAttributes(
		attribute.Int64("chain_id", int64(p.ChainID)),
		attribute.Int("arity", p.Arity),
		attribute.String("hasher", p.Hasher.Name()),
	))
	defer func() { endSpan(span, err) }()

	s.genesisRoot = p.GenesisRoot
	if err := s.checkExisting(); err != nil {
		return nil, fmt.Errorf("create: %w", err)
	}
	err = s.db.NewMetaWriter().
		PutUint64(storage.MetaChainID, p.ChainID).
		PutUint64(storage.MetaArity, uint64(p.Arity)).
		PutBytes(storage.MetaHasher, []byte(p.Hasher.Name())).
		PutBytes(storage.MetaSequencer, p.SequencerAddress.Bytes()).
		PutFelt(storage.MetaGenesisRoot, p.GenesisRoot).
		Commit()
	if err != nil {
		return nil, fmt.Errorf("create: %w", err)
	}
	s.stateRoot = p.GenesisRoot
	log.Info(log.StateDBMonitoring, "state db created", "chainID", p.ChainID, "arity", p.Arity, "hasher", p.Hasher.Name(), "genesis", felt.Hex(p.GenesisRoot))
	return s, nil
}

func (s *StateDB) checkExisting() error {
	chainID, err := s.db.GetUint64(storage.MetaChainID)
	if errors.Is(err, ErrNotFound) {
		return nil
	}
	if err != nil {
		return err
	}
	if chainID != s.chainID {
		return fmt.Errorf("store chain id %d, requested %d: %w", chainID, s.chainID, ErrChainIDMismatch)
	}
	arity, err := s.db.GetUint64(storage.MetaArity)
	if err != nil {
		return err
	}
	if arity != uint64(s.arity) {
		return fmt.Errorf("store arity %d, requested %d: %w", arity, s.arity, ErrArityMismatch)
	}
	name, err := s.db.GetString(storage.MetaHasher)
	if err != nil && !errors.Is(err, ErrNotFound) {
		return err
	}
	if err == nil && name != s.hasherName {
		return fmt.Errorf("store hasher %q, requested %q: %w", name, s.hasherName, ErrHasherMismatch)
	}
	ok, err := s.db.HasMeta(storage.MetaLastBatch)
	if err != nil {
		return err
	}
	if ok {
		return ErrAlreadyInitialized
	}
	genesis, err := s.db.GetFelt(storage.MetaGenesisRoot)
	if err != nil && !errors.Is(err, ErrNotFound) {
		return err
	}
	if err == nil && !felt.Equal(genesis, s.genesisRoot) {
		return fmt.Errorf("store genesis root %s, requested %s: %w", felt.Hex(genesis), felt.Hex(s.genesisRoot), ErrAlreadyInitialized)
	}
	seq, err := s.db.GetMeta(storage.MetaSequencer)
	if err != nil && !errors.Is(err, ErrNotFound) {
		return err
	}
	if err == nil && common.BytesToAddress(seq) != s.sequencer {
		return fmt.Errorf("store sequencer %s, requested %s: %w", common.BytesToAddress(seq), s.sequencer, ErrAlreadyInitialized)
	}
	return nil
}

// Import rehydrates a StateDB from a store initialized by Create. A nil hasher
// selects the one recorded in the store; a zero sequencer selects the
// recorded sequencer.
func Import(ctx context.Context, store storage.KeyValueStore, h hasher.Hasher, sequencer common.Address, opts ...Option) (s *StateDB, err error) {
	db := storage.NewDB(store)
	chainID, err := db.GetUint64(storage.MetaChainID)
	if err != nil {
		return nil, fmt.Errorf("import: %w", err)
	}
	arity, err := db.GetUint64(storage.MetaArity)
	if err != nil {
		return nil, fmt.Errorf("import: %w", err)
	}
	if arity < 2 || arity > maxStoredArity {
		return nil, fmt.Errorf("import: stored arity %d: %w", arity, ErrCorrupt)
	}
	name, err := db.GetString(storage.MetaHasher)
	if err != nil {
		return nil, fmt.Errorf("import: %w", err)
	}
	if h == nil {
		if h, err = hasher.ByName(name); err != nil {
			return nil, fmt.Errorf("import: %w", err)
		}
	} else if h.Name() != name {
		return nil, fmt.Errorf("import: store hasher %q, given %q: %w", name, h.Name(), ErrHasherMismatch)
	}
	if sequencer == (common.Address{}) {
		b, err := db.GetMeta(storage.MetaSequencer)
		if err != nil && !errors.Is(err, ErrNotFound) {
			return nil, fmt.Errorf("import: %w", err)
		}
		sequencer = common.BytesToAddress(b)
	}

	s, err = newStateDB(store, h, chainID, int(arity), sequencer, opts)
	if err != nil {
		return nil, fmt.Errorf("import: %w", err)
	}
	_, span := s.tracer.Start(ctx, "statedb.Import")
	defer func() { endSpan(span, err) }()

	if s.genesisRoot, err = db.GetFelt(storage.MetaGenesisRoot); err != nil {
		return nil, fmt.Errorf("import: %w", err)
	}
	lastBatch, err := db.GetUint64(storage.MetaLastBatch)
	switch {
	case errors.Is(err, ErrNotFound):
		s.lastBatch, s.stateRoot = 0, s.genesisRoot
	case err != nil:
		return nil, fmt.Errorf("import: %w", err)
	default:
		root, err := db.GetFelt(storage.BatchRootKey(lastBatch))
		if errors.Is(err, ErrNotFound) {
			return nil, fmt.Errorf("import: last batch %d has no root: %w", lastBatch, ErrCorrupt)
		}
		if err != nil {
			return nil, fmt.Errorf("import: %w", err)
		}
		s.lastBatch, s.stateRoot = lastBatch, root
	}
	span.SetAttributes(attribute.Int64("last_batch", int64(s.lastBatch)))
	log.Info(log.StateDBMonitoring, "state db imported", "chainID", chainID, "arity", arity, "lastBatch", s.lastBatch, "root", felt.Hex(s.stateRoot))
	return s, nil
}

// Open imports store when it is initialized and creates it from p otherwise.
// An initialized store must match p's chain id, arity and hasher.
func Open(ctx context.Context, store storage.KeyValueStore, p Params, opts ...Option) (*StateDB, error) {
	ok, err := storage.NewDB(store).HasMeta(storage.MetaChainID)
	if err != nil {
		return nil, err
	}
	if !ok {
		return Create(ctx, store, p, opts...)
	}
	s, err := Import(ctx, store, p.Hasher, p.SequencerAddress, opts...)
	if err != nil {
		return nil, err
	}
	if s.chainID != p.ChainID {
		return nil, fmt.Errorf("open: store chain id %d, requested %d: %w", s.chainID, p.ChainID, ErrChainIDMismatch)
	}
	if s.arity != p.Arity {
		return nil, fmt.Errorf("open: store arity %d, requested %d: %w", s.arity, p.Arity, ErrArityMismatch)
	}
	return s, nil
}

func (s *StateDB) ChainID() uint64                  { return s.chainID }
func (s *StateDB) Arity() int                       { return s.arity }
func (s *StateDB) HasherName() string               { return s.hasherName }
func (s *StateDB) SequencerAddress() common.Address { return s.sequencer }
func (s *StateDB) GenesisRoot() felt.Felt           { return s.genesisRoot }
func (s *StateDB) Trie() *trie.SMT                  { return s.smt }
func (s *StateDB) View() *stateview.View            { return s.view }
func (s *StateDB) DB() *storage.DB                  { return s.db }

func (s *StateDB) StateRoot() felt.Felt {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.stateRoot
}

func (s *StateDB) LastBatch() uint64 {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.lastBatch
}

// BatchRoot returns the persisted root of consolidated batch n; batch 0 is genesis.
func (s *StateDB) BatchRoot(n uint64) (felt.Felt, error) {
	if n == 0 {
		return s.genesisRoot, nil
	}
	return s.db.GetFelt(storage.BatchRootKey(n))
}

// ExitRoots returns the exit roots recorded by the last consolidation.
func (s *StateDB) ExitRoots() (local, global common.Hash, err error) {
	l, err := s.db.GetMeta(storage.MetaLocalExitRoot)
	if err != nil {
		return local, global, err
	}
	g, err := s.db.GetMeta(storage.MetaGlobalExitRoot)
	if err != nil {
		return local, global, err
	}
	return common.BytesToHash(l), common.BytesToHash(g), nil
}

// GetAccountState reads an account at the current state root.
func (s *StateDB) GetAccountState(addr common.Address, slots ...*uint256.Int) (*stateview.AccountState, error) {
	return s.view.GetAccountState(s.StateRoot(), addr, slots...)
}

// BuildBatch starts a batch on the current state root.
func (s *StateDB) BuildBatch(localExitRoot, globalExitRoot common.Hash) *Batch {
	s.mu.RLock()
	defer s.mu.RUnlock()
	b := &Batch{
		sdb:            s,
		number:         s.lastBatch + 1,
		oldRoot:        s.stateRoot,
		currentRoot:    s.stateRoot,
		localExitRoot:  localExitRoot,
		globalExitRoot: globalExitRoot,
	}
	log.Debug(log.StateDBMonitoring, "batch built", "batch", b.number, "root", felt.Hex(b.oldRoot))
	return b
}

// Consolidate persists an executed batch as the next batch and advances the
// state root. The batch root and batch counter are written atomically; on any
// failure neither the store nor this handle changes.
func (s *StateDB) Consolidate(ctx context.Context, b *Batch) (err error) {
	_, span := s.tracer.Start(ctx, "statedb.Consolidate")
	defer func() { endSpan(span, err) }()

	if b == nil || b.sdb != s {
		return fmt.Errorf("consolidate: %w", ErrInvalidBatch)
	}
	b.mu.Lock()
	defer b.mu.Unlock()
	s.mu.Lock()
	defer s.mu.Unlock()

	switch b.status {
	case StatusConsolidated:
		return fmt.Errorf("consolidate batch %d: %w", b.number, ErrAlreadyConsolidated)
	case StatusExecuted:
	default:
		return fmt.Errorf("consolidate batch %d (%s): %w", b.number, b.status, ErrNotExecuted)
	}
	if !felt.Equal(b.oldRoot, s.stateRoot) {
		return fmt.Errorf("consolidate: batch root %s, state root %s: %w", felt.Hex(b.oldRoot), felt.Hex(s.stateRoot), ErrStaleBatch)
	}

	next := s.lastBatch + 1
	span.SetAttributes(attribute.Int64("batch", int64(next)), attribute.Int("txs", len(b.txs)))
	err = s.db.NewMetaWriter().
		PutFelt(storage.BatchRootKey(next), b.currentRoot).
		PutUint64(storage.MetaLastBatch, next).
		PutBytes(storage.MetaLocalExitRoot, b.localExitRoot.Bytes()).
		PutBytes(storage.MetaGlobalExitRoot, b.globalExitRoot.Bytes()).
		Commit()
	if err != nil {
		log.Error(log.StateDBMonitoring, "consolidate failed", "batch", next, "err", err)
		return fmt.Errorf("consolidate batch %d: %w", next, err)
	}
	s.lastBatch = next
	s.stateRoot = b.currentRoot
	b.number = next
	b.status = StatusConsolidated
	log.Info(log.StateDBMonitoring, "batch consolidated", "batch", next, "root", felt.Hex(b.currentRoot), "txs", len(b.txs))
	return nil
}

func endSpan(span trace.Span, err error) {
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
	}
	span.End()
}
