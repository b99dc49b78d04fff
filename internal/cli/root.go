// Package cli implements the distill CLI commands.
package cli

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"

	"github.com/spf13/cobra"

	"github.com/macrador/distill"
	"github.com/macrador/distill/reasoning"
	"github.com/macrador/distill/storage"
	"github.com/macrador/distill/types"
)

var (
	dbPath    string
	dataDir   string
	modelFlag string
)

// RootCmd is the top-level command.
var RootCmd = &cobra.Command{
	Use:   "distill",
	Short: "Tiered memory and context compression for agent runs",
	Long: "distill manages agent run transcripts with tiered memory: a short-term\n" +
		"message tail, compressed working memory, and a crash-safe canonical ledger.\n" +
		"SQLite-backed by default, Postgres with --postgres.",
}

func init() {
	RootCmd.PersistentFlags().StringVarP(&dbPath, "db", "d", "", "SQLite path (default: $DISTILL_DB or ~/.distill/distill.db)")
	RootCmd.PersistentFlags().String("postgres", "", "Postgres connection string (default: $DISTILL_POSTGRES; overrides --db)")
	RootCmd.PersistentFlags().StringVar(&dataDir, "data-dir", "", "Ledger and snapshot directory (default: $DISTILL_DATA_DIR or .distill)")
	RootCmd.PersistentFlags().StringVarP(&modelFlag, "model", "m", types.DefaultModel, "Model for LLM-backed runs")
}

func getDBPath() string {
	if dbPath != "" {
		return dbPath
	}
	if env := os.Getenv("DISTILL_DB"); env != "" {
		return env
	}
	home, _ := os.UserHomeDir()
	return filepath.Join(home, ".distill", "distill.db")
}

func getDataDir() string {
	if dataDir != "" {
		return dataDir
	}
	if env := os.Getenv("DISTILL_DATA_DIR"); env != "" {
		return env
	}
	return distill.DefaultDataDir
}

func openStore(cmd *cobra.Command) (storage.Store, error) {
	conn, _ := cmd.Flags().GetString("postgres")
	if conn == "" {
		conn = os.Getenv("DISTILL_POSTGRES")
	}
	if conn != "" {
		return storage.NewPostgresStore(cmd.Context(), conn)
	}
	return storage.NewSQLiteStore(getDBPath())
}

// openOrchestrator wires the store, data dir and, when an API key is
// present, the model-backed provider. A missing key is not an error here:
// runs with reasoning disabled never touch the provider, and runs that
// need it fail with a clear message at step time.
func openOrchestrator(cmd *cobra.Command) (*distill.Orchestrator, storage.Store, error) {
	store, err := openStore(cmd)
	if err != nil {
		return nil, nil, err
	}

	opts := []distill.Option{distill.WithDataDir(getDataDir())}
	provider, err := reasoning.NewAnthropicProviderFromEnv(modelFlag)
	if err == nil {
		opts = append(opts, distill.WithProvider(provider))
	} else if !errors.Is(err, reasoning.ErrMissingAPIKey) {
		store.Close()
		return nil, nil, err
	}

	return distill.New(store, opts...), store, nil
}

func exitErr(msg string, err error) {
	fmt.Fprintf(os.Stderr, "error: %s: %v\n", msg, err)
	os.Exit(1)
}
