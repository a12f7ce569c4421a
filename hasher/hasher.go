// Package hasher provides the field-native hash functions used to address
// trie nodes and to derive account keys.
package hasher

import (
	"fmt"

	"golang.org/x/exp/slices"

	"github.com/colorfulnotion/zkstate/felt"
)

// Hasher maps a sequence of field elements to one field element.
// Implementations must be deterministic and safe for concurrent use.
type Hasher interface {
	Hash(inputs ...felt.Felt) felt.Felt
	Name() string
}

const (
	PoseidonName = "poseidon"
	MiMCName     = "mimc"
)

var registry = map[string]func() Hasher{
	PoseidonName: func() Hasher { return NewPoseidon() },
	MiMCName:     func() Hasher { return NewMiMC() },
}

// ByName returns the hasher registered under name.
func ByName(name string) (Hasher, error) {
	ctor, ok := registry[name]
	if !ok {
		return nil, fmt.Errorf("unknown hasher %q (known: %v)", name, Names())
	}
	return ctor(), nil
}

func Names() []string {
	names := make([]string, 0, len(registry))
	for name := range registry {
		names = append(names, name)
	}
	slices.Sort(names)
	return names
}
