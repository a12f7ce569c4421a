package felt

import (
	"errors"
	"math/big"
	"testing"

	"github.com/ethereum/go-ethereum/common"
	"github.com/holiman/uint256"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestFromBigRejectsModulus(t *testing.T) {
	_, err := FromBig(Modulus())
	require.Error(t, err)
	assert.True(t, errors.Is(err, ErrOverflow))

	below := new(big.Int).Sub(Modulus(), big.NewInt(1))
	f, err := FromBig(below)
	require.NoError(t, err)
	assert.Equal(t, below, ToBig(f))
}

func TestBytesCanonical(t *testing.T) {
	f := FromUint64(0xdeadbeef)
	b := Bytes(f)
	back, err := FromBytes(b[:])
	require.NoError(t, err)
	assert.True(t, Equal(f, back))

	over := Modulus().FillBytes(make([]byte, 32))
	_, err = FromBytes(over)
	assert.ErrorIs(t, err, ErrOverflow)

	_, err = FromBytes([]byte{1, 2, 3})
	assert.Error(t, err)
}

func TestUint256Conversion(t *testing.T) {
	v := uint256.NewInt(1_000_000_007)
	f, err := FromUint256(v)
	require.NoError(t, err)
	assert.Equal(t, v, ToUint256(f))

	allOnes := new(uint256.Int).SetAllOne()
	_, err = FromUint256(allOnes)
	assert.ErrorIs(t, err, ErrOverflow)
}

func TestHexRoundTrip(t *testing.T) {
	f := FromUint64(255)
	h := Hex(f)
	assert.Equal(t, "0x00000000000000000000000000000000000000000000000000000000000000ff", h)
	back, err := FromHex(h)
	require.NoError(t, err)
	assert.True(t, Equal(f, back))

	dec, err := FromHex("255")
	require.NoError(t, err)
	assert.True(t, Equal(f, dec))

	_, err = FromHex("0xzz")
	assert.Error(t, err)
}

func TestFromAddress(t *testing.T) {
	addr := common.HexToAddress("0x617b3a3528F9cDd6630fd3301B9c8911F7Bf063D")
	f := FromAddress(addr)
	b := Bytes(f)
	assert.Equal(t, addr.Bytes(), b[12:])
	assert.False(t, f.IsZero())
}
