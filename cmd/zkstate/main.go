// zkstate - operator tool for a rollup state db: genesis, batch import and inspection
package main

import (
	"context"
	"fmt"
	"os"

	"github.com/spf13/cobra"

	log "github.com/colorfulnotion/zkstate/log"
	"github.com/colorfulnotion/zkstate/storage"
	"github.com/colorfulnotion/zkstate/telemetry"
	"github.com/colorfulnotion/zkstate/zkerrors"
)

var (
	Version   = "dev"
	Commit    = "none"
	BuildTime = "unknown"
)

type globalFlags struct {
	dataDir      string
	logLevel     string
	debugModules string
	otlpEndpoint string
}

func main() {
	if err := newRootCmd().Execute(); err != nil {
		if zkerrors.GetErrorCode(err) != "" {
			fmt.Fprintf(os.Stderr, "Error [%s]: %v\n", zkerrors.GetErrorCodeWithName(err), err)
		} else {
			fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		}
		os.Exit(1)
	}
}

func newRootCmd() *cobra.Command {
	g := &globalFlags{}
	var tracing *telemetry.Tracing

	rootCmd := &cobra.Command{
		Use:   "zkstate",
		Short: "Rollup state db operator tool",
		Long: `Builds genesis state, consolidates batches of signed transactions and
inspects the committed sparse Merkle trie stored in a LevelDB data directory.`,
		SilenceUsage: true,
		PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
			if _, err := log.ParseLevel(g.logLevel); err != nil {
				return err
			}
			log.InitLogger(g.logLevel)
			log.EnableModules(g.debugModules)
			var err error
			tracing, err = telemetry.NewTracing(cmd.Context(), g.otlpEndpoint, "zkstate")
			if err != nil {
				return err
			}
			tracing.Install()
			return nil
		},
		PersistentPostRunE: func(cmd *cobra.Command, args []string) error {
			if tracing == nil {
				return nil
			}
			return tracing.Shutdown(context.Background())
		},
	}
	rootCmd.CompletionOptions.DisableDefaultCmd = true

	// Global flags
	rootCmd.PersistentFlags().StringVar(&g.dataDir, "datadir", "zkstate-data", "LevelDB data directory")
	rootCmd.PersistentFlags().StringVar(&g.logLevel, "log-level", "info", "Log level (trace, debug, info, warn, error)")
	rootCmd.PersistentFlags().StringVar(&g.debugModules, "debug", "", "Comma separated modules to debug log (statedb_mod, trie_mod, storage_mod, exec_mod, cli_mod, all)")
	rootCmd.PersistentFlags().StringVar(&g.otlpEndpoint, "otlp-endpoint", "", "OTLP/HTTP trace collector (host:port or URL); empty disables tracing")

	rootCmd.AddCommand(
		newInitCmd(g),
		newInfoCmd(g),
		newBatchCmd(g),
		newAccountCmd(g),
		newDumpCmd(g),
		newDiffCmd(g),
		&cobra.Command{
			Use:   "version",
			Short: "Print version information",
			Run: func(cmd *cobra.Command, args []string) {
				fmt.Fprintf(cmd.OutOrStdout(), "zkstate %s (commit %s, built %s)\n", Version, Commit, BuildTime)
			},
		},
	)
	return rootCmd
}

func openStore(g *globalFlags) (*storage.LevelDBStore, error) {
	store, err := storage.NewLevelDBStore(g.dataDir)
	if err != nil {
		return nil, err
	}
	log.Debug(log.CLIMonitoring, "store opened", "datadir", g.dataDir)
	return store, nil
}
