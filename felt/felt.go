// Package felt wraps the BN254 scalar field element used for every trie key,
// value and digest.
package felt

import (
	"encoding/hex"
	"fmt"
	"math/big"
	"strings"

	"github.com/consensys/gnark-crypto/ecc/bn254/fr"
	"github.com/ethereum/go-ethereum/common"
	"github.com/holiman/uint256"

	"github.com/colorfulnotion/zkstate/zkerrors"
)

// Felt is an element of the BN254 scalar field.
type Felt = fr.Element

const Bytes32 = fr.Bytes

var (
	ErrOverflow = zkerrors.ErrOverflow

	modulus = fr.Modulus()
)

// Modulus returns a copy of the field modulus r.
func Modulus() *big.Int {
	return new(big.Int).Set(modulus)
}

func Zero() Felt {
	return Felt{}
}

func One() Felt {
	var f Felt
	f.SetOne()
	return f
}

func FromUint64(v uint64) Felt {
	var f Felt
	f.SetUint64(v)
	return f
}

// FromBig converts a non-negative integer strictly below the modulus.
func FromBig(b *big.Int) (Felt, error) {
	var f Felt
	if b == nil || b.Sign() < 0 || b.Cmp(modulus) >= 0 {
		return f, fmt.Errorf("felt %v: %w", b, ErrOverflow)
	}
	f.SetBigInt(b)
	return f, nil
}

// FromUint256 converts a 256-bit word, rejecting values at or above the modulus.
func FromUint256(v *uint256.Int) (Felt, error) {
	if v == nil {
		return Felt{}, nil
	}
	return FromBig(v.ToBig())
}

// ToUint256 returns the integer value of f as a 256-bit word.
func ToUint256(f Felt) *uint256.Int {
	b := f.Bytes()
	return new(uint256.Int).SetBytes32(b[:])
}

// ToBig returns the integer value of f.
func ToBig(f Felt) *big.Int {
	var b big.Int
	f.BigInt(&b)
	return &b
}

// ToUint64 returns the low 64 bits of f and whether f fits.
func ToUint64(f Felt) (uint64, bool) {
	if !f.IsUint64() {
		return 0, false
	}
	return f.Uint64(), true
}

// FromBytes decodes a canonical 32-byte big-endian encoding.
func FromBytes(b []byte) (Felt, error) {
	var f Felt
	if len(b) != Bytes32 {
		return f, fmt.Errorf("felt: bad length %d: %w", len(b), zkerrors.ErrCorrupt)
	}
	if err := f.SetBytesCanonical(b); err != nil {
		return f, fmt.Errorf("felt 0x%x: %w", b, ErrOverflow)
	}
	return f, nil
}

// FromBytesReduce interprets b as a big-endian integer reduced modulo r.
func FromBytesReduce(b []byte) Felt {
	var f Felt
	f.SetBytes(b)
	return f
}

// Bytes returns the canonical 32-byte big-endian encoding.
func Bytes(f Felt) [Bytes32]byte {
	return f.Bytes()
}

// Hex returns f as 0x-prefixed, zero-padded hex.
func Hex(f Felt) string {
	b := f.Bytes()
	return "0x" + hex.EncodeToString(b[:])
}

// FromHex parses a 0x-prefixed hex string or a decimal string.
func FromHex(s string) (Felt, error) {
	s = strings.TrimSpace(s)
	b, ok := new(big.Int), false
	if strings.HasPrefix(s, "0x") || strings.HasPrefix(s, "0X") {
		if len(s) == 2 {
			return Felt{}, nil
		}
		b, ok = b.SetString(s[2:], 16)
	} else {
		b, ok = b.SetString(s, 10)
	}
	if !ok {
		return Felt{}, fmt.Errorf("felt: cannot parse %q", s)
	}
	return FromBig(b)
}

// FromAddress embeds a 160-bit address as an integer.
func FromAddress(addr common.Address) Felt {
	var f Felt
	f.SetBytes(addr.Bytes())
	return f
}

// Equal reports field equality.
func Equal(a, b Felt) bool {
	return a.Equal(&b)
}

// Cmp compares the integer values of a and b.
func Cmp(a, b Felt) int {
	return a.Cmp(&b)
}
