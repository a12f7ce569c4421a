package hasher

import (
	"fmt"
	"sync"

	"github.com/consensys/gnark-crypto/ecc/bn254/fr"
	"github.com/consensys/gnark-crypto/ecc/bn254/fr/poseidon2"

	"github.com/colorfulnotion/zkstate/felt"
)

// Poseidon2 compression parameters for BN254, matching gnark-crypto's
// default Merkle-Damgard hasher: width 2, 6 full rounds, 50 partial rounds.
const (
	poseidonWidth         = 2
	poseidonFullRounds    = 6
	poseidonPartialRounds = 50
)

var (
	permOnce sync.Once
	perm     *poseidon2.Permutation
)

func loadPermutation() *poseidon2.Permutation {
	permOnce.Do(func() {
		perm = poseidon2.NewPermutation(poseidonWidth, poseidonFullRounds, poseidonPartialRounds)
	})
	return perm
}

// Poseidon chains the Poseidon2 compression function over the inputs in
// Merkle-Damgard fashion from a zero state. The input count is absorbed
// first, so sequences that share a prefix never collide.
type Poseidon struct {
	p *poseidon2.Permutation
}

func NewPoseidon() *Poseidon {
	return &Poseidon{p: loadPermutation()}
}

func (h *Poseidon) Name() string { return PoseidonName }

func (h *Poseidon) Hash(inputs ...felt.Felt) felt.Felt {
	state := make([]byte, fr.Bytes)
	length := felt.FromUint64(uint64(len(inputs)))
	state = h.compress(state, length)
	for i := range inputs {
		state = h.compress(state, inputs[i])
	}
	var out felt.Felt
	out.SetBytes(state)
	return out
}

// compress never fails for canonical field encodings.
func (h *Poseidon) compress(state []byte, x felt.Felt) []byte {
	b := x.Bytes()
	next, err := h.p.Compress(state, b[:])
	if err != nil {
		panic(fmt.Sprintf("poseidon2 compress: %v", err))
	}
	return next
}
