package stateview

import (
	"github.com/ethereum/go-ethereum/common"
	"github.com/holiman/uint256"
	"golang.org/x/crypto/sha3"

	"github.com/colorfulnotion/zkstate/felt"
)

// Field discriminators mixed into the account key derivation.
const (
	FieldBalance  uint64 = 0
	FieldNonce    uint64 = 1
	FieldCodeHash uint64 = 2
	FieldStorage  uint64 = 3
)

func (v *View) fieldKey(addr common.Address, field uint64) felt.Felt {
	return v.h.Hash(felt.FromAddress(addr), felt.FromUint64(field))
}

func (v *View) KeyBalance(addr common.Address) felt.Felt {
	return v.fieldKey(addr, FieldBalance)
}

func (v *View) KeyNonce(addr common.Address) felt.Felt {
	return v.fieldKey(addr, FieldNonce)
}

func (v *View) KeyCodeHash(addr common.Address) felt.Felt {
	return v.fieldKey(addr, FieldCodeHash)
}

// KeyStorage splits the slot into 128-bit halves so every 256-bit slot maps
// to a distinct pair of field elements.
func (v *View) KeyStorage(addr common.Address, slot *uint256.Int) felt.Felt {
	b := slot.Bytes32()
	var hi, lo felt.Felt
	hi.SetBytes(b[:16])
	lo.SetBytes(b[16:])
	return v.h.Hash(felt.FromAddress(addr), felt.FromUint64(FieldStorage), hi, lo)
}

// CodeHash is keccak256(code) reduced into the field.
func CodeHash(code []byte) felt.Felt {
	h := sha3.NewLegacyKeccak256()
	h.Write(code)
	return felt.FromBytesReduce(h.Sum(nil))
}
