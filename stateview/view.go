// Package stateview maps account fields onto trie keys.
package stateview

import (
	"errors"
	"fmt"

	"github.com/ethereum/go-ethereum/common"
	"github.com/holiman/uint256"

	"github.com/colorfulnotion/zkstate/felt"
	"github.com/colorfulnotion/zkstate/hasher"
	"github.com/colorfulnotion/zkstate/log"
	"github.com/colorfulnotion/zkstate/storage"
	"github.com/colorfulnotion/zkstate/trie"
)

// AccountState is the decoded view of one account. Absent fields read as zero.
type AccountState struct {
	Balance  *uint256.Int
	Nonce    uint64
	CodeHash felt.Felt
	Storage  map[uint256.Int]*uint256.Int
}

func NewAccountState() *AccountState {
	return &AccountState{Balance: new(uint256.Int), Storage: make(map[uint256.Int]*uint256.Int)}
}

// View reads and writes account fields against a given root.
type View struct {
	t  *trie.SMT
	db *storage.DB
	h  hasher.Hasher
}

func New(t *trie.SMT, db *storage.DB) *View {
	return &View{t: t, db: db, h: t.Hasher()}
}

func (v *View) Trie() *trie.SMT { return v.t }

func (v *View) GetBalance(root felt.Felt, addr common.Address) (*uint256.Int, error) {
	val, _, err := v.t.Get(root, v.KeyBalance(addr))
	if err != nil {
		return nil, fmt.Errorf("balance of %s: %w", addr, err)
	}
	return felt.ToUint256(val), nil
}

func (v *View) SetBalance(root felt.Felt, addr common.Address, bal *uint256.Int) (felt.Felt, error) {
	f, err := felt.FromUint256(bal)
	if err != nil {
		return root, fmt.Errorf("balance of %s: %w", addr, err)
	}
	return v.t.Set(root, v.KeyBalance(addr), f)
}

func (v *View) GetNonce(root felt.Felt, addr common.Address) (uint64, error) {
	val, _, err := v.t.Get(root, v.KeyNonce(addr))
	if err != nil {
		return 0, fmt.Errorf("nonce of %s: %w", addr, err)
	}
	n, ok := felt.ToUint64(val)
	if !ok {
		return 0, fmt.Errorf("nonce of %s exceeds 64 bits: %w", addr, storage.ErrCorrupt)
	}
	return n, nil
}

func (v *View) SetNonce(root felt.Felt, addr common.Address, nonce uint64) (felt.Felt, error) {
	return v.t.Set(root, v.KeyNonce(addr), felt.FromUint64(nonce))
}

func (v *View) GetCodeHash(root felt.Felt, addr common.Address) (felt.Felt, error) {
	val, _, err := v.t.Get(root, v.KeyCodeHash(addr))
	if err != nil {
		return felt.Felt{}, fmt.Errorf("code hash of %s: %w", addr, err)
	}
	return val, nil
}

// SetCode persists code under its hash and records the hash on the account.
// Empty code clears the code hash.
func (v *View) SetCode(root felt.Felt, addr common.Address, code []byte) (felt.Felt, error) {
	if len(code) == 0 {
		return v.t.Set(root, v.KeyCodeHash(addr), felt.Felt{})
	}
	ch := CodeHash(code)
	if err := v.db.PutCode(ch, code); err != nil {
		return root, err
	}
	return v.t.Set(root, v.KeyCodeHash(addr), ch)
}

// GetCode returns nil for accounts without code.
func (v *View) GetCode(root felt.Felt, addr common.Address) ([]byte, error) {
	ch, err := v.GetCodeHash(root, addr)
	if err != nil || ch.IsZero() {
		return nil, err
	}
	return v.db.GetCode(ch)
}

func (v *View) GetStorage(root felt.Felt, addr common.Address, slot *uint256.Int) (*uint256.Int, error) {
	val, _, err := v.t.Get(root, v.KeyStorage(addr, slot))
	if err != nil {
		return nil, fmt.Errorf("storage %s[%s]: %w", addr, slot.Hex(), err)
	}
	return felt.ToUint256(val), nil
}

// SetStorage writes a slot; a zero value removes it.
func (v *View) SetStorage(root felt.Felt, addr common.Address, slot, val *uint256.Int) (felt.Felt, error) {
	f, err := felt.FromUint256(val)
	if err != nil {
		return root, fmt.Errorf("storage %s[%s]: %w", addr, slot.Hex(), err)
	}
	return v.t.Set(root, v.KeyStorage(addr, slot), f)
}

// GetAccountState reads balance, nonce, code hash and the listed storage slots.
func (v *View) GetAccountState(root felt.Felt, addr common.Address, slots ...*uint256.Int) (*AccountState, error) {
	st := NewAccountState()
	var err error
	if st.Balance, err = v.GetBalance(root, addr); err != nil {
		return nil, err
	}
	if st.Nonce, err = v.GetNonce(root, addr); err != nil {
		return nil, err
	}
	if st.CodeHash, err = v.GetCodeHash(root, addr); err != nil {
		return nil, err
	}
	for _, slot := range slots {
		val, err := v.GetStorage(root, addr, slot)
		if err != nil {
			return nil, err
		}
		st.Storage[*slot] = val
	}
	return st, nil
}

// SetAccountState writes every field of st, including each storage slot it
// lists, and returns the new root.
func (v *View) SetAccountState(root felt.Felt, addr common.Address, st *AccountState) (felt.Felt, error) {
	if st == nil {
		return root, errors.New("nil account state")
	}
	bal := st.Balance
	if bal == nil {
		bal = new(uint256.Int)
	}
	var err error
	if root, err = v.SetBalance(root, addr, bal); err != nil {
		return root, err
	}
	if root, err = v.SetNonce(root, addr, st.Nonce); err != nil {
		return root, err
	}
	if root, err = v.t.Set(root, v.KeyCodeHash(addr), st.CodeHash); err != nil {
		return root, err
	}
	for slot, val := range st.Storage {
		if root, err = v.SetStorage(root, addr, &slot, val); err != nil {
			return root, err
		}
	}
	return root, nil
}

// SetGenesis applies the parallel address/balance/nonce lists to the empty
// root. The resulting root does not depend on list order.
func (v *View) SetGenesis(addrs []common.Address, balances []*uint256.Int, nonces []uint64) (felt.Felt, error) {
	if len(addrs) != len(balances) || len(addrs) != len(nonces) {
		return felt.Felt{}, fmt.Errorf("genesis: %d addresses, %d balances, %d nonces", len(addrs), len(balances), len(nonces))
	}
	root := felt.Zero()
	var err error
	for i, addr := range addrs {
		if root, err = v.SetBalance(root, addr, balances[i]); err != nil {
			return felt.Felt{}, fmt.Errorf("genesis account %d: %w", i, err)
		}
		if root, err = v.SetNonce(root, addr, nonces[i]); err != nil {
			return felt.Felt{}, fmt.Errorf("genesis account %d: %w", i, err)
		}
		log.Debug(log.StateDBMonitoring, "genesis account", "address", addr, "balance", balances[i], "nonce", nonces[i])
	}
	return root, nil
}
