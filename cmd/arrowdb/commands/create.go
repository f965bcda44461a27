package commands

import (
	"fmt"
	"os"

	"github.com/goccy/go-yaml"
	"github.com/spf13/cobra"

	"github.com/haivivi/arrowdb/pkg/arrowdb"
)

var (
	createDim    int
	createConfig string
)

var createCmd = &cobra.Command{
	Use:   "create <name>",
	Short: "Create a collection",
	Long: `Create a collection with the given name.

Parameters come from --dim plus defaults, or from a YAML config file:

  dimension: 128
  max_layer: 16
  nb_conn: 20
  ef: 200
  dist: l2`,
	Args: cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		name := args[0]

		c := arrowdb.Collection{Dimension: createDim}
		if createConfig != "" {
			data, err := os.ReadFile(createConfig)
			if err != nil {
				return err
			}
			if err := yaml.Unmarshal(data, &c); err != nil {
				return fmt.Errorf("parse %s: %w", createConfig, err)
			}
		}

		db, err := openDB(cmd.Context())
		if err != nil {
			return err
		}
		defer db.Close()

		if err := db.CreateCollectionWith(cmd.Context(), name, c); err != nil {
			return err
		}
		fmt.Printf("created collection %q (dimension %d)\n", name, c.Dimension)
		return nil
	},
}

func init() {
	createCmd.Flags().IntVar(&createDim, "dim", 0, "vector dimension")
	createCmd.Flags().StringVar(&createConfig, "config", "", "YAML collection config file")
	rootCmd.AddCommand(createCmd)
}
