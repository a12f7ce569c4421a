// Package executor applies the transactions of a batch to a state root.
package executor

import (
	"context"
	"fmt"

	"github.com/ethereum/go-ethereum/common"

	"github.com/colorfulnotion/zkstate/felt"
)

// Executor applies raw transactions, in order, on top of root. Transactions
// that cannot be applied are reported as skipped outcomes. A returned error
// aborts the whole batch; the Result is still returned with the outcomes
// reached so far, the last of them marked Aborted.
type Executor interface {
	Execute(ctx context.Context, root felt.Felt, txs [][]byte) (*Result, error)
}

type Status uint8

const (
	Applied Status = iota
	Skipped
	Aborted
)

func (s Status) String() string {
	switch s {
	case Applied:
		return "applied"
	case Skipped:
		return "skipped"
	case Aborted:
		return "aborted"
	}
	return "unknown"
}

// Outcome records what happened to one transaction.
type Outcome struct {
	Index  int            `json:"index"`
	Status Status         `json:"status"`
	Reason string         `json:"reason,omitempty"`
	TxHash common.Hash    `json:"txHash"`
	From   common.Address `json:"from"`
}

type Result struct {
	NewRoot  felt.Felt
	Outcomes []Outcome
}

func (r *Result) Applied() int {
	n := 0
	for _, o := range r.Outcomes {
		if o.Status == Applied {
			n++
		}
	}
	return n
}

// AbortError reports the transaction that aborted a batch.
type AbortError struct {
	Index int
	Err   error
}

func (e *AbortError) Error() string {
	return fmt.Sprintf("tx %d: %v", e.Index, e.Err)
}

func (e *AbortError) Unwrap() error { return e.Err }
