package commands

import (
	"fmt"
	"math/rand/v2"
	"runtime"
	"time"

	"github.com/spf13/cobra"
	"golang.org/x/sync/errgroup"
)

var (
	loadCount int
	loadSeed  uint64
)

var loadCmd = &cobra.Command{
	Use:   "load <name>",
	Short: "Insert random vectors into a collection",
	Long: `Insert uniformly random vectors into a collection, in parallel.

Mostly useful for smoke tests and benchmarking a keyspace on real
hardware.`,
	Args: cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		name := args[0]

		db, err := openDB(cmd.Context())
		if err != nil {
			return err
		}
		defer db.Close()

		c, ok := db.Collection(name)
		if !ok {
			return fmt.Errorf("collection %q does not exist", name)
		}
		h, err := db.HNSW(name, c.Dimension)
		if err != nil {
			return err
		}

		start := time.Now()
		g, ctx := errgroup.WithContext(cmd.Context())
		g.SetLimit(runtime.GOMAXPROCS(0))
		for w := range runtime.GOMAXPROCS(0) {
			share := loadCount / runtime.GOMAXPROCS(0)
			if w == 0 {
				share += loadCount % runtime.GOMAXPROCS(0)
			}
			g.Go(func() error {
				rng := rand.New(rand.NewPCG(loadSeed, uint64(w)))
				vec := make([]float32, c.Dimension)
				for range share {
					for i := range vec {
						vec[i] = float32(rng.Float64())
					}
					if _, err := h.Insert(ctx, vec); err != nil {
						return err
					}
				}
				return nil
			})
		}
		if err := g.Wait(); err != nil {
			return err
		}

		elapsed := time.Since(start)
		fmt.Printf("inserted %d vectors in %s (%.0f vectors/s)\n",
			loadCount, elapsed.Round(time.Millisecond),
			float64(loadCount)/elapsed.Seconds())
		return nil
	},
}

func init() {
	loadCmd.Flags().IntVar(&loadCount, "count", 1000, "number of vectors to insert")
	loadCmd.Flags().Uint64Var(&loadSeed, "seed", 1, "random seed")
	rootCmd.AddCommand(loadCmd)
}
