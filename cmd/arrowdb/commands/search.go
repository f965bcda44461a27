package commands

import (
	"fmt"
	"strconv"
	"strings"

	"github.com/spf13/cobra"
)

var (
	searchVector string
	searchK      int
)

var searchCmd = &cobra.Command{
	Use:   "search <name>",
	Short: "Query a collection",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		name := args[0]

		query, err := parseVector(searchVector)
		if err != nil {
			return err
		}

		db, err := openDB(cmd.Context())
		if err != nil {
			return err
		}
		defer db.Close()

		c, ok := db.Collection(name)
		if !ok {
			return fmt.Errorf("collection %q does not exist", name)
		}
		if len(query) != c.Dimension {
			return fmt.Errorf("query has %d components, collection %q wants %d",
				len(query), name, c.Dimension)
		}
		h, err := db.HNSW(name, c.Dimension)
		if err != nil {
			return err
		}

		matches, err := h.Search(cmd.Context(), query, searchK)
		if err != nil {
			return err
		}
		for _, m := range matches {
			fmt.Printf("%d\t%g\n", m.ID, m.Dist)
		}
		return nil
	},
}

// parseVector parses a comma-separated list of floats.
func parseVector(s string) ([]float32, error) {
	if strings.TrimSpace(s) == "" {
		return nil, fmt.Errorf("--vector is required")
	}
	parts := strings.Split(s, ",")
	vec := make([]float32, len(parts))
	for i, p := range parts {
		f, err := strconv.ParseFloat(strings.TrimSpace(p), 32)
		if err != nil {
			return nil, fmt.Errorf("component %d: %w", i, err)
		}
		vec[i] = float32(f)
	}
	return vec, nil
}

func init() {
	searchCmd.Flags().StringVar(&searchVector, "vector", "", "comma-separated query vector")
	searchCmd.Flags().IntVarP(&searchK, "topk", "k", 10, "number of results")
	rootCmd.AddCommand(searchCmd)
}
