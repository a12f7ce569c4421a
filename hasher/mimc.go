package hasher

import (
	"fmt"
	"hash"

	"github.com/consensys/gnark-crypto/ecc/bn254/fr/mimc"

	"github.com/colorfulnotion/zkstate/felt"
)

// MiMC hashes with the Miyaguchi-Preneel MiMC construction from gnark-crypto.
// Each input is written as its canonical 32-byte encoding.
type MiMC struct{}

func NewMiMC() *MiMC {
	return &MiMC{}
}

func (h *MiMC) Name() string { return MiMCName }

func (h *MiMC) Hash(inputs ...felt.Felt) felt.Felt {
	d := mimc.NewMiMC()
	writeFelt(d, felt.FromUint64(uint64(len(inputs))))
	for i := range inputs {
		writeFelt(d, inputs[i])
	}
	return felt.FromBytesReduce(d.Sum(nil))
}

// writeFelt only fails on a non-canonical block, which a Felt cannot produce.
func writeFelt(d hash.Hash, x felt.Felt) {
	b := x.Bytes()
	if _, err := d.Write(b[:]); err != nil {
		panic(fmt.Sprintf("mimc write: %v", err))
	}
}
