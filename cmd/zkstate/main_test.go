package main

import (
	"bytes"
	"encoding/json"
	"fmt"
	"math/big"
	"os"
	"path/filepath"
	"testing"

	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/common/hexutil"
	"github.com/ethereum/go-ethereum/core/types"
	"github.com/ethereum/go-ethereum/crypto"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func run(t *testing.T, args ...string) (string, error) {
	t.Helper()
	var out bytes.Buffer
	cmd := newRootCmd()
	cmd.SetOut(&out)
	cmd.SetErr(&out)
	cmd.SetArgs(append(args, "--log-level", "error"))
	err := cmd.Execute()
	return out.String(), err
}

func TestCLIFlow(t *testing.T) {
	dir := t.TempDir()
	dataDir := filepath.Join(dir, "data")

	key, err := crypto.GenerateKey()
	require.NoError(t, err)
	sender := crypto.PubkeyToAddress(key.PublicKey)
	receiver := common.HexToAddress("0x00000000000000000000000000000000000000aa")

	spec := fmt.Sprintf(`{
  "id": "cli",
  "chainID": 7,
  "arity": 4,
  "hasher": "poseidon",
  "sequencerAddress": "0x0000000000000000000000000000000000000001",
  "genesis": [{"address": "%s", "balance": "1000000000", "nonce": 0}]
}`, sender.Hex())
	specPath := filepath.Join(dir, "spec.json")
	require.NoError(t, os.WriteFile(specPath, []byte(spec), 0o644))

	out, err := run(t, "init", "--datadir", dataDir, "--spec", specPath)
	require.NoError(t, err, out)
	assert.Contains(t, out, "cli initialized")

	tx := types.NewTx(&types.LegacyTx{Nonce: 0, To: &receiver, Value: big.NewInt(500), Gas: 21000, GasPrice: big.NewInt(1)})
	signed, err := types.SignTx(tx, types.NewEIP155Signer(big.NewInt(7)), key)
	require.NoError(t, err)
	raw, err := signed.MarshalBinary()
	require.NoError(t, err)
	txPath := filepath.Join(dir, "txs.txt")
	require.NoError(t, os.WriteFile(txPath, []byte("# batch 1\n"+hexutil.Encode(raw)+"\n0xdeadbeef\n"), 0o644))

	out, err = run(t, "batch", "--datadir", dataDir, "--txs", txPath, "--dry-run")
	require.NoError(t, err, out)
	assert.Contains(t, out, "dry run")

	out, err = run(t, "batch", "--datadir", dataDir, "--txs", txPath)
	require.NoError(t, err, out)
	assert.Contains(t, out, "applied")
	assert.Contains(t, out, "invalid encoding")
	assert.Contains(t, out, "batch 1 consolidated")

	out, err = run(t, "info", "--datadir", dataDir, "--batches")
	require.NoError(t, err, out)
	var info infoOutput
	require.NoError(t, json.Unmarshal([]byte(out), &info))
	assert.Equal(t, uint64(7), info.ChainID)
	assert.Equal(t, uint64(1), info.LastBatch)
	require.Len(t, info.BatchRoots, 1)
	assert.Equal(t, info.StateRoot, info.BatchRoots[0])

	out, err = run(t, "account", receiver.Hex(), "--datadir", dataDir)
	require.NoError(t, err, out)
	var acc accountOutput
	require.NoError(t, json.Unmarshal([]byte(out), &acc))
	assert.Equal(t, "500", acc.Balance)

	out, err = run(t, "account", receiver.Hex(), "--datadir", dataDir, "--batch", "0")
	require.NoError(t, err, out)
	require.NoError(t, json.Unmarshal([]byte(out), &acc))
	assert.Equal(t, "0", acc.Balance)

	out, err = run(t, "dump", "--datadir", dataDir)
	require.NoError(t, err, out)
	assert.Contains(t, out, "branch")

	out, err = run(t, "diff", "0", "1", "--datadir", dataDir, "--color=false")
	require.NoError(t, err, out)
	assert.Contains(t, out, "+")

	out, err = run(t, "diff", "1", "1", "--datadir", dataDir)
	require.NoError(t, err, out)
	assert.Contains(t, out, "share root")
}

func TestCLIUninitialized(t *testing.T) {
	_, err := run(t, "info", "--datadir", filepath.Join(t.TempDir(), "empty"))
	assert.Error(t, err)
}

func TestCLIBadLogLevel(t *testing.T) {
	cmd := newRootCmd()
	cmd.SetOut(&bytes.Buffer{})
	cmd.SetErr(&bytes.Buffer{})
	cmd.SetArgs([]string{"version", "--log-level", "loud"})
	assert.Error(t, cmd.Execute())
}
