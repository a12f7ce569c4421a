package main

import (
	"bufio"
	"encoding/json"
	"fmt"
	"os"
	"strconv"
	"strings"

	"github.com/ethereum/go-ethereum/common"
	"github.com/holiman/uint256"
	"github.com/spf13/cobra"

	"github.com/colorfulnotion/zkstate/chainspecs"
	"github.com/colorfulnotion/zkstate/felt"
	log "github.com/colorfulnotion/zkstate/log"
	"github.com/colorfulnotion/zkstate/statedb"
)

func withStateDB(g *globalFlags, cmd *cobra.Command, fn func(s *statedb.StateDB) error) error {
	store, err := openStore(g)
	if err != nil {
		return err
	}
	defer store.Close()
	s, err := statedb.Import(cmd.Context(), store, nil, common.Address{})
	if err != nil {
		return fmt.Errorf("datadir %s: %w", g.dataDir, err)
	}
	return fn(s)
}

// rootAt resolves a batch number, or the current root when n is negative.
func rootAt(s *statedb.StateDB, n int64) (felt.Felt, error) {
	if n < 0 {
		return s.StateRoot(), nil
	}
	return s.BatchRoot(uint64(n))
}

func newInitCmd(g *globalFlags) *cobra.Command {
	var specID string
	cmd := &cobra.Command{
		Use:   "init",
		Short: "Write the genesis state of a chain spec into the data directory",
		RunE: func(cmd *cobra.Command, args []string) error {
			spec, err := chainspecs.ReadSpec(specID)
			if err != nil {
				return err
			}
			store, err := openStore(g)
			if err != nil {
				return err
			}
			defer store.Close()
			s, err := spec.BuildGenesis(cmd.Context(), store)
			if err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "✅ %s initialized: chain %d, arity %d, %s, genesis root %s\n",
				spec.ID, s.ChainID(), s.Arity(), s.HasherName(), felt.Hex(s.GenesisRoot()))
			return nil
		},
	}
	cmd.Flags().StringVar(&specID, "spec", "dev", "Embedded spec name (dev, test) or path to a spec JSON file")
	return cmd
}

type infoOutput struct {
	ChainID        uint64         `json:"chainID"`
	Arity          int            `json:"arity"`
	Hasher         string         `json:"hasher"`
	Sequencer      common.Address `json:"sequencer"`
	LastBatch      uint64         `json:"lastBatch"`
	StateRoot      string         `json:"stateRoot"`
	GenesisRoot    string         `json:"genesisRoot"`
	Nodes          int            `json:"nodes,omitempty"`
	LocalExitRoot  *common.Hash   `json:"localExitRoot,omitempty"`
	GlobalExitRoot *common.Hash   `json:"globalExitRoot,omitempty"`
	BatchRoots     []string       `json:"batchRoots,omitempty"`
}

func newInfoCmd(g *globalFlags) *cobra.Command {
	var listBatches bool
	cmd := &cobra.Command{
		Use:   "info",
		Short: "Show chain parameters, batch counter and state root",
		RunE: func(cmd *cobra.Command, args []string) error {
			return withStateDB(g, cmd, func(s *statedb.StateDB) error {
				out := infoOutput{
					ChainID:     s.ChainID(),
					Arity:       s.Arity(),
					Hasher:      s.HasherName(),
					Sequencer:   s.SequencerAddress(),
					LastBatch:   s.LastBatch(),
					StateRoot:   felt.Hex(s.StateRoot()),
					GenesisRoot: felt.Hex(s.GenesisRoot()),
				}
				if n, err := s.DB().CountNodes(); err == nil {
					out.Nodes = n
				}
				if local, global, err := s.ExitRoots(); err == nil {
					out.LocalExitRoot, out.GlobalExitRoot = &local, &global
				}
				if listBatches {
					for n := uint64(1); n <= s.LastBatch(); n++ {
						root, err := s.BatchRoot(n)
						if err != nil {
							return err
						}
						out.BatchRoots = append(out.BatchRoots, felt.Hex(root))
					}
				}
				return printJSON(cmd, out)
			})
		},
	}
	cmd.Flags().BoolVar(&listBatches, "batches", false, "List the root of every consolidated batch")
	return cmd
}

// readTxFile reads one hex-encoded raw transaction per line; blank lines and
// lines starting with # are ignored.
func readTxFile(path string) ([][]byte, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, err
	}
	defer f.Close()
	var txs [][]byte
	sc := bufio.NewScanner(f)
	sc.Buffer(make([]byte, 0, 64*1024), 16*1024*1024)
	for sc.Scan() {
		line := strings.TrimSpace(sc.Text())
		if line == "" || strings.HasPrefix(line, "#") {
			continue
		}
		txs = append(txs, []byte(line))
	}
	return txs, sc.Err()
}

func newBatchCmd(g *globalFlags) *cobra.Command {
	var (
		txFile         string
		localExitRoot  string
		globalExitRoot string
		dryRun         bool
	)
	cmd := &cobra.Command{
		Use:   "batch",
		Short: "Execute a batch of raw transactions and consolidate it",
		RunE: func(cmd *cobra.Command, args []string) error {
			txs, err := readTxFile(txFile)
			if err != nil {
				return err
			}
			return withStateDB(g, cmd, func(s *statedb.StateDB) error {
				b := s.BuildBatch(common.HexToHash(localExitRoot), common.HexToHash(globalExitRoot))
				for _, tx := range txs {
					if err := b.AddRawTx(tx); err != nil {
						return err
					}
				}
				execErr := b.ExecuteTxs(cmd.Context())
				w := cmd.OutOrStdout()
				for _, o := range b.Outcomes() {
					fmt.Fprintf(w, "%4d %-8s %s %s\n", o.Index, o.Status, o.TxHash.Hex(), o.Reason)
				}
				if execErr != nil {
					return execErr
				}
				if dryRun {
					fmt.Fprintf(w, "dry run: batch %d would move root %s -> %s (%d/%d applied)\n",
						b.Number(), felt.Hex(b.OldRoot()), felt.Hex(b.CurrentRoot()), b.AppliedCount(), len(txs))
					return nil
				}
				if err := s.Consolidate(cmd.Context(), b); err != nil {
					return err
				}
				log.Info(log.CLIMonitoring, "batch imported", "batch", s.LastBatch(), "txs", len(txs))
				fmt.Fprintf(w, "✅ batch %d consolidated: root %s (%d/%d applied)\n",
					s.LastBatch(), felt.Hex(s.StateRoot()), b.AppliedCount(), len(txs))
				return nil
			})
		},
	}
	cmd.Flags().StringVar(&txFile, "txs", "", "File with one hex-encoded signed transaction per line")
	cmd.Flags().StringVar(&localExitRoot, "local-exit-root", "0x", "Local exit root recorded with the batch")
	cmd.Flags().StringVar(&globalExitRoot, "global-exit-root", "0x", "Global exit root recorded with the batch")
	cmd.Flags().BoolVar(&dryRun, "dry-run", false, "Execute without consolidating")
	cmd.MarkFlagRequired("txs")
	return cmd
}

type accountOutput struct {
	Address  common.Address    `json:"address"`
	Root     string            `json:"root"`
	Balance  string            `json:"balance"`
	Nonce    uint64            `json:"nonce"`
	CodeHash string            `json:"codeHash"`
	Storage  map[string]string `json:"storage,omitempty"`
}

func newAccountCmd(g *globalFlags) *cobra.Command {
	var (
		batch int64
		slots []string
	)
	cmd := &cobra.Command{
		Use:   "account <address>",
		Short: "Show the state of an account",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			if !common.IsHexAddress(args[0]) {
				return fmt.Errorf("invalid address %q", args[0])
			}
			addr := common.HexToAddress(args[0])
			keys := make([]*uint256.Int, 0, len(slots))
			for _, s := range slots {
				k, err := uint256.FromHex(s)
				if err != nil {
					if k, err = uint256.FromDecimal(s); err != nil {
						return fmt.Errorf("slot %q: %w", s, err)
					}
				}
				keys = append(keys, k)
			}
			return withStateDB(g, cmd, func(s *statedb.StateDB) error {
				root, err := rootAt(s, batch)
				if err != nil {
					return err
				}
				st, err := s.View().GetAccountState(root, addr, keys...)
				if err != nil {
					return err
				}
				out := accountOutput{
					Address:  addr,
					Root:     felt.Hex(root),
					Balance:  st.Balance.Dec(),
					Nonce:    st.Nonce,
					CodeHash: felt.Hex(st.CodeHash),
				}
				if len(keys) > 0 {
					out.Storage = make(map[string]string, len(keys))
					for _, k := range keys {
						out.Storage[k.Hex()] = st.Storage[*k].Dec()
					}
				}
				return printJSON(cmd, out)
			})
		},
	}
	cmd.Flags().Int64Var(&batch, "batch", -1, "Batch number to read at (default: current root)")
	cmd.Flags().StringSliceVar(&slots, "slot", nil, "Storage slot to include (hex with 0x or decimal); repeatable")
	return cmd
}

func newDumpCmd(g *globalFlags) *cobra.Command {
	var batch int64
	cmd := &cobra.Command{
		Use:   "dump",
		Short: "Print the trie at a batch root",
		RunE: func(cmd *cobra.Command, args []string) error {
			return withStateDB(g, cmd, func(s *statedb.StateDB) error {
				root, err := rootAt(s, batch)
				if err != nil {
					return err
				}
				out, err := s.Trie().Dump(root)
				if err != nil {
					return err
				}
				fmt.Fprint(cmd.OutOrStdout(), out)
				return nil
			})
		},
	}
	cmd.Flags().Int64Var(&batch, "batch", -1, "Batch number to dump (default: current root)")
	return cmd
}

func newDiffCmd(g *globalFlags) *cobra.Command {
	var color bool
	cmd := &cobra.Command{
		Use:   "diff <from-batch> <to-batch>",
		Short: "Show the trie entries that changed between two batches",
		Args:  cobra.ExactArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			from, err := strconv.ParseUint(args[0], 10, 64)
			if err != nil {
				return err
			}
			to, err := strconv.ParseUint(args[1], 10, 64)
			if err != nil {
				return err
			}
			return withStateDB(g, cmd, func(s *statedb.StateDB) error {
				fromRoot, err := s.BatchRoot(from)
				if err != nil {
					return err
				}
				toRoot, err := s.BatchRoot(to)
				if err != nil {
					return err
				}
				out, changed, err := s.DiffRoots(fromRoot, toRoot, color)
				if err != nil {
					return err
				}
				if !changed {
					fmt.Fprintf(cmd.OutOrStdout(), "batches %d and %d share root %s\n", from, to, felt.Hex(fromRoot))
					return nil
				}
				fmt.Fprintln(cmd.OutOrStdout(), out)
				return nil
			})
		},
	}
	cmd.Flags().BoolVar(&color, "color", true, "Colorize the diff")
	return cmd
}

func printJSON(cmd *cobra.Command, v interface{}) error {
	enc := json.NewEncoder(cmd.OutOrStdout())
	enc.SetIndent("", "  ")
	return enc.Encode(v)
}
