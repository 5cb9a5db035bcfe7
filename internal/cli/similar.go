package cli

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/repomd/vaultproc/internal/searcher"
)

var (
	similarLimit int
	similarDB    string
	similarJSON  bool
)

var similarCmd = &cobra.Command{
	Use:   "similar [slug-or-hash]",
	Short: "List documents similar to one document",
	Args:  cobra.ExactArgs(1),
	RunE:  runSimilar,
}

func init() {
	similarCmd.Flags().IntVarP(&similarLimit, "limit", "n", searcher.DefaultLimit, "maximum number of neighbors")
	similarCmd.Flags().StringVar(&similarDB, "db", "", "database path (default <output>/repo.db)")
	similarCmd.Flags().BoolVar(&similarJSON, "json", false, "output neighbors as JSON")
	rootCmd.AddCommand(similarCmd)
}

func runSimilar(cmd *cobra.Command, args []string) error {
	idx, err := openIndex(cmd, similarDB)
	if err != nil {
		return err
	}
	defer func() { _ = idx.Close() }()

	neighbors, err := idx.Searcher.Similar(cmd.Context(), args[0], similarLimit)
	if err != nil {
		return fmt.Errorf("similarity lookup failed: %w", err)
	}

	if similarJSON {
		return printJSON(cmd, neighbors)
	}
	if len(neighbors) == 0 {
		cmd.Println("No similar documents.")
		return nil
	}
	for _, n := range neighbors {
		cmd.Printf("  [%d] %s (%.4f)  %s\n", n.Rank, n.Title, n.Score, n.Slug)
	}
	return nil
}
