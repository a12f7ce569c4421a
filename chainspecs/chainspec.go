package chainspecs

import (
	"context"
	"embed"
	"encoding/json"
	"fmt"
	"os"

	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/common/hexutil"
	"github.com/holiman/uint256"

	"github.com/colorfulnotion/zkstate/felt"
	"github.com/colorfulnotion/zkstate/hasher"
	"github.com/colorfulnotion/zkstate/stateview"
	"github.com/colorfulnotion/zkstate/statedb"
	"github.com/colorfulnotion/zkstate/storage"
	"github.com/colorfulnotion/zkstate/trie"
)

//go:embed *.json
var configFS embed.FS

var networkFile = map[string]string{
	"dev":  "dev-spec.json",  // dev:  4-ary poseidon, chain 100
	"test": "test-spec.json", // test: binary mimc, chain 1000
}

func ReadSpec(id string) (spec *ChainSpec, err error) {
	var data []byte
	path, ok := networkFile[id]
	if ok {
		data, err = configFS.ReadFile(path)
		if err != nil {
			return spec, err
		}
	} else {
		data, err = os.ReadFile(id)
		if err != nil {
			return spec, err
		}
	}
	if err := json.Unmarshal(data, &spec); err != nil {
		return spec, fmt.Errorf("spec %s: %w", id, err)
	}
	if err := spec.Validate(); err != nil {
		return spec, fmt.Errorf("spec %s: %w", id, err)
	}
	return spec, nil
}

type GenesisAccount struct {
	Address common.Address `json:"address"`
	Balance string         `json:"balance"`
	Nonce   uint64         `json:"nonce"`
	Code    hexutil.Bytes  `json:"code,omitempty"`
}

type ChainSpec struct {
	ID               string           `json:"id"`
	ChainID          uint64           `json:"chainID"`
	Arity            int              `json:"arity"`
	Hasher           string           `json:"hasher"`
	SequencerAddress common.Address   `json:"sequencerAddress"`
	Genesis          []GenesisAccount `json:"genesis"`
}

func (a GenesisAccount) BalanceInt() (*uint256.Int, error) {
	if a.Balance == "" {
		return new(uint256.Int), nil
	}
	b, err := uint256.FromDecimal(a.Balance)
	if err != nil {
		return nil, fmt.Errorf("balance of %s: %w", a.Address, err)
	}
	return b, nil
}

func (cs *ChainSpec) Validate() error {
	if cs.Arity < 2 {
		return fmt.Errorf("arity %d: must be at least 2", cs.Arity)
	}
	if _, err := hasher.ByName(cs.Hasher); err != nil {
		return err
	}
	seen := make(map[common.Address]bool, len(cs.Genesis))
	for _, acc := range cs.Genesis {
		if seen[acc.Address] {
			return fmt.Errorf("duplicate genesis account %s", acc.Address)
		}
		seen[acc.Address] = true
		b, err := acc.BalanceInt()
		if err != nil {
			return err
		}
		if _, err := felt.FromUint256(b); err != nil {
			return fmt.Errorf("balance of %s: %w", acc.Address, err)
		}
	}
	return nil
}

// GenesisRoot writes the genesis accounts through view and returns the root.
func (cs *ChainSpec) GenesisRoot(view *stateview.View) (felt.Felt, error) {
	addrs := make([]common.Address, len(cs.Genesis))
	balances := make([]*uint256.Int, len(cs.Genesis))
	nonces := make([]uint64, len(cs.Genesis))
	for i, acc := range cs.Genesis {
		b, err := acc.BalanceInt()
		if err != nil {
			return felt.Felt{}, err
		}
		addrs[i], balances[i], nonces[i] = acc.Address, b, acc.Nonce
	}
	root, err := view.SetGenesis(addrs, balances, nonces)
	if err != nil {
		return felt.Felt{}, err
	}
	for _, acc := range cs.Genesis {
		if len(acc.Code) == 0 {
			continue
		}
		if root, err = view.SetCode(root, acc.Address, acc.Code); err != nil {
			return felt.Felt{}, fmt.Errorf("genesis code of %s: %w", acc.Address, err)
		}
	}
	return root, nil
}

// Params resolves the spec into state db parameters with the given genesis root.
func (cs *ChainSpec) Params(genesisRoot felt.Felt) (statedb.Params, error) {
	h, err := hasher.ByName(cs.Hasher)
	if err != nil {
		return statedb.Params{}, err
	}
	return statedb.Params{
		ChainID:          cs.ChainID,
		Arity:            cs.Arity,
		Hasher:           h,
		SequencerAddress: cs.SequencerAddress,
		GenesisRoot:      genesisRoot,
	}, nil
}

// BuildGenesis builds the genesis state into store and opens a state db on it.
// A store that is already initialized is imported and checked against the spec.
func (cs *ChainSpec) BuildGenesis(ctx context.Context, store storage.KeyValueStore, opts ...statedb.Option) (*statedb.StateDB, error) {
	h, err := hasher.ByName(cs.Hasher)
	if err != nil {
		return nil, err
	}
	db := storage.NewDB(store)
	smt, err := trie.New(db, h, cs.Arity)
	if err != nil {
		return nil, err
	}
	root, err := cs.GenesisRoot(stateview.New(smt, db))
	if err != nil {
		return nil, err
	}
	p, err := cs.Params(root)
	if err != nil {
		return nil, err
	}
	return statedb.Open(ctx, store, p, opts...)
}
