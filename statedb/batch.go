package statedb

import (
	"context"
	"fmt"
	"sync"

	"github.com/ethereum/go-ethereum/common"
	"go.opentelemetry.io/otel/attribute"

	"github.com/colorfulnotion/zkstate/executor"
	"github.com/colorfulnotion/zkstate/felt"
	"github.com/colorfulnotion/zkstate/log"
)

type BatchStatus uint8

const (
	StatusBuilt BatchStatus = iota
	StatusExecuted
	StatusAborted
	StatusConsolidated
)

func (s BatchStatus) String() string {
	switch s {
	case StatusBuilt:
		return "built"
	case StatusExecuted:
		return "executed"
	case StatusAborted:
		return "aborted"
	case StatusConsolidated:
		return "consolidated"
	}
	return "unknown"
}

// Batch is an ordered list of raw transactions built on a snapshot of the
// state root. It executes at most once.
type Batch struct {
	sdb *StateDB

	mu             sync.Mutex
	number         uint64
	oldRoot        felt.Felt
	currentRoot    felt.Felt
	localExitRoot  common.Hash
	globalExitRoot common.Hash
	txs            [][]byte
	status         BatchStatus
	outcomes       []executor.Outcome
}

// AddRawTx appends a transaction; only allowed before execution.
func (b *Batch) AddRawTx(raw []byte) error {
	b.mu.Lock()
	defer b.mu.Unlock()
	if b.status != StatusBuilt {
		return fmt.Errorf("add tx to batch %d (%s): %w", b.number, b.status, ErrAlreadyExecuted)
	}
	b.txs = append(b.txs, append([]byte(nil), raw...))
	return nil
}

// ExecuteTxs runs the batch through the executor. A failing executor leaves
// the batch aborted with its root unchanged and the outcomes reached before
// the abort recorded; a second call always fails.
func (b *Batch) ExecuteTxs(ctx context.Context) (err error) {
	ctx, span := b.sdb.tracer.Start(ctx, "statedb.Batch.ExecuteTxs")
	defer func() { endSpan(span, err) }()

	b.mu.Lock()
	defer b.mu.Unlock()
	if b.status != StatusBuilt {
		return fmt.Errorf("execute batch %d (%s): %w", b.number, b.status, ErrAlreadyExecuted)
	}
	span.SetAttributes(attribute.Int64("batch", int64(b.number)), attribute.Int("txs", len(b.txs)))

	res, err := b.sdb.exec.Execute(ctx, b.oldRoot, b.txs)
	if err != nil {
		b.status = StatusAborted
		if res != nil {
			b.outcomes = res.Outcomes
		}
		log.Error(log.StateDBMonitoring, "batch aborted", "batch", b.number, "err", err)
		return fmt.Errorf("execute batch %d: %w: %w", b.number, ErrBatchAborted, err)
	}
	b.currentRoot = res.NewRoot
	b.outcomes = res.Outcomes
	b.status = StatusExecuted
	span.SetAttributes(attribute.Int("applied", res.Applied()))
	log.Debug(log.StateDBMonitoring, "batch executed", "batch", b.number, "applied", res.Applied(), "txs", len(b.txs), "root", felt.Hex(b.currentRoot))
	return nil
}

func (b *Batch) Status() BatchStatus {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.status
}

// Number is the batch number this batch takes when consolidated.
func (b *Batch) Number() uint64 {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.number
}

func (b *Batch) OldRoot() felt.Felt {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.oldRoot
}

// CurrentRoot is the post-execution root, or the old root before execution.
func (b *Batch) CurrentRoot() felt.Felt {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.currentRoot
}

func (b *Batch) ExitRoots() (local, global common.Hash) {
	return b.localExitRoot, b.globalExitRoot
}

func (b *Batch) Txs() [][]byte {
	b.mu.Lock()
	defer b.mu.Unlock()
	return append([][]byte(nil), b.txs...)
}

func (b *Batch) Outcomes() []executor.Outcome {
	b.mu.Lock()
	defer b.mu.Unlock()
	return append([]executor.Outcome(nil), b.outcomes...)
}

func (b *Batch) AppliedCount() int {
	b.mu.Lock()
	defer b.mu.Unlock()
	n := 0
	for _, o := range b.outcomes {
		if o.Status == executor.Applied {
			n++
		}
	}
	return n
}

// AbortIndex returns the index of the transaction that aborted the batch.
func (b *Batch) AbortIndex() (int, bool) {
	b.mu.Lock()
	defer b.mu.Unlock()
	for _, o := range b.outcomes {
		if o.Status == executor.Aborted {
			return o.Index, true
		}
	}
	return 0, false
}
