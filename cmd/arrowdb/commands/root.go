package commands

import (
	"context"
	"log/slog"
	"os"

	"github.com/spf13/cobra"

	"github.com/haivivi/arrowdb/pkg/arrowdb"
)

var (
	dbPath  string
	verbose bool
)

var rootCmd = &cobra.Command{
	Use:   "arrowdb",
	Short: "Persistent vector database built on HNSW",
	Long: `arrowdb - a persistent vector database.

Collections of fixed-dimension float32 vectors are indexed with a
Hierarchical Navigable Small World graph and persisted in an embedded
BadgerDB keyspace, so they survive restarts.

Examples:
  # Create a collection and load it with random vectors
  arrowdb --db ./data create docs --dim 128
  arrowdb --db ./data load docs --count 10000

  # Query it
  arrowdb --db ./data search docs -k 5 --vector "0.1,0.2,..."`,
	SilenceUsage:  true,
	SilenceErrors: true,
}

// Execute runs the root command.
func Execute() error {
	return rootCmd.Execute()
}

func init() {
	cobra.OnInitialize(initLogging)

	rootCmd.PersistentFlags().StringVar(&dbPath, "db", "arrowdb-data", "keyspace directory")
	rootCmd.PersistentFlags().BoolVarP(&verbose, "verbose", "v", false, "verbose output")
}

func initLogging() {
	level := slog.LevelWarn
	if verbose {
		level = slog.LevelDebug
	}
	slog.SetDefault(slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: level})))
}

// openDB opens the keyspace named by the --db flag.
func openDB(ctx context.Context) (*arrowdb.DB, error) {
	return arrowdb.Open(ctx, dbPath, &arrowdb.Options{Logger: slog.Default()})
}
