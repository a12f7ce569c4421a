package executor

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"math/big"

	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/common/hexutil"
	"github.com/ethereum/go-ethereum/core/types"
	"github.com/holiman/uint256"

	"github.com/colorfulnotion/zkstate/felt"
	"github.com/colorfulnotion/zkstate/log"
	"github.com/colorfulnotion/zkstate/stateview"
)

// TxGas is the flat gas charged for a value transfer.
const TxGas uint64 = 21000

// Skip reasons.
const (
	ReasonDecode        = "invalid encoding"
	ReasonChainID       = "invalid chain id"
	ReasonSender        = "invalid signature"
	ReasonCreate        = "contract creation not supported"
	ReasonNonce         = "invalid nonce"
	ReasonIntrinsicGas  = "intrinsic gas too low"
	ReasonFunds         = "insufficient funds"
	ReasonValueOverflow = "value overflow"
)

// TransferExecutor applies plain value transfers: the sender pays value plus
// gasPrice*TxGas, the receiver gets value and the sequencer collects the fee.
type TransferExecutor struct {
	view      *stateview.View
	chainID   *big.Int
	signer    types.Signer
	sequencer common.Address
}

func NewTransferExecutor(view *stateview.View, chainID uint64, sequencer common.Address) *TransferExecutor {
	id := new(big.Int).SetUint64(chainID)
	return &TransferExecutor{
		view:      view,
		chainID:   id,
		signer:    types.LatestSignerForChainID(id),
		sequencer: sequencer,
	}
}

// DecodeTx accepts either the binary envelope or its 0x-prefixed hex form.
func DecodeTx(raw []byte) (*types.Transaction, error) {
	if bytes.HasPrefix(raw, []byte("0x")) {
		b, err := hexutil.Decode(string(raw))
		if err != nil {
			return nil, err
		}
		raw = b
	}
	tx := new(types.Transaction)
	if err := tx.UnmarshalBinary(raw); err != nil {
		return nil, err
	}
	return tx, nil
}

func (e *TransferExecutor) Execute(ctx context.Context, root felt.Felt, txs [][]byte) (*Result, error) {
	res := &Result{NewRoot: root, Outcomes: make([]Outcome, 0, len(txs))}
	abort := func(out Outcome, err error) (*Result, error) {
		out.Status, out.Reason = Aborted, err.Error()
		res.Outcomes = append(res.Outcomes, out)
		log.Error(log.ExecutorMonitoring, "batch aborted", "tx", out.Index, "err", err)
		return res, &AbortError{Index: out.Index, Err: err}
	}
	for i, raw := range txs {
		if err := ctx.Err(); err != nil {
			return abort(Outcome{Index: i}, err)
		}
		out, next, err := e.apply(res.NewRoot, i, raw)
		if err != nil {
			return abort(out, err)
		}
		res.NewRoot = next
		res.Outcomes = append(res.Outcomes, out)
		log.Debug(log.ExecutorMonitoring, "tx", "index", i, "status", out.Status, "reason", out.Reason, "hash", out.TxHash)
	}
	return res, nil
}

// apply returns a skipped outcome with root unchanged when the tx is invalid,
// and an error only when the state cannot be read or written.
func (e *TransferExecutor) apply(root felt.Felt, i int, raw []byte) (Outcome, felt.Felt, error) {
	out := Outcome{Index: i, Status: Skipped}
	skip := func(reason string) (Outcome, felt.Felt, error) {
		out.Reason = reason
		return out, root, nil
	}

	tx, err := DecodeTx(raw)
	if err != nil {
		return skip(ReasonDecode)
	}
	out.TxHash = tx.Hash()
	if tx.ChainId().Cmp(e.chainID) != 0 {
		return skip(ReasonChainID)
	}
	from, err := types.Sender(e.signer, tx)
	if err != nil {
		return skip(ReasonSender)
	}
	out.From = from
	if tx.To() == nil {
		return skip(ReasonCreate)
	}
	if tx.Gas() < TxGas {
		return skip(ReasonIntrinsicGas)
	}
	value, overflow := uint256.FromBig(tx.Value())
	if overflow {
		return skip(ReasonValueOverflow)
	}
	gasPrice, overflow := uint256.FromBig(tx.GasPrice())
	if overflow {
		return skip(ReasonValueOverflow)
	}
	fee, overflow := new(uint256.Int).MulOverflow(gasPrice, uint256.NewInt(TxGas))
	if overflow {
		return skip(ReasonValueOverflow)
	}
	cost, overflow := new(uint256.Int).AddOverflow(value, fee)
	if overflow {
		return skip(ReasonValueOverflow)
	}

	nonce, err := e.view.GetNonce(root, from)
	if err != nil {
		return out, root, err
	}
	if tx.Nonce() != nonce {
		return skip(ReasonNonce)
	}
	balance, err := e.view.GetBalance(root, from)
	if err != nil {
		return out, root, err
	}
	if balance.Lt(cost) {
		return skip(ReasonFunds)
	}

	next := root
	if next, err = e.view.SetBalance(next, from, new(uint256.Int).Sub(balance, cost)); err != nil {
		return out, root, err
	}
	if next, err = e.view.SetNonce(next, from, nonce+1); err != nil {
		return out, root, err
	}
	if next, err = e.credit(next, *tx.To(), value); err != nil {
		if errors.Is(err, felt.ErrOverflow) {
			return skip(ReasonValueOverflow)
		}
		return out, root, err
	}
	if next, err = e.credit(next, e.sequencer, fee); err != nil {
		if errors.Is(err, felt.ErrOverflow) {
			return skip(ReasonValueOverflow)
		}
		return out, root, err
	}
	out.Status = Applied
	return out, next, nil
}

func (e *TransferExecutor) credit(root felt.Felt, addr common.Address, amount *uint256.Int) (felt.Felt, error) {
	if amount.IsZero() {
		return root, nil
	}
	bal, err := e.view.GetBalance(root, addr)
	if err != nil {
		return root, err
	}
	sum, overflow := new(uint256.Int).AddOverflow(bal, amount)
	if overflow {
		return root, fmt.Errorf("credit %s: %w", addr, felt.ErrOverflow)
	}
	return e.view.SetBalance(root, addr, sum)
}
