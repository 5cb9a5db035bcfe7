package cli

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/repomd/vaultproc/internal/app"
	"github.com/repomd/vaultproc/internal/searcher"
)

var (
	searchLimit    int
	searchMode     string
	searchMinScore float64
	searchDB       string
	searchJSON     bool
)

var searchCmd = &cobra.Command{
	Use:   "search [query]",
	Short: "Search processed documents",
	Long: `Searches the database written by build. The default hybrid mode
combines keyword (BM25) and semantic (vector) search with reciprocal rank
fusion.`,
	Args: cobra.ExactArgs(1),
	RunE: runSearch,
}

func init() {
	searchCmd.Flags().IntVarP(&searchLimit, "limit", "n", searcher.DefaultLimit, "maximum number of results")
	searchCmd.Flags().StringVarP(&searchMode, "mode", "m", string(searcher.SearchModeHybrid), "hybrid, vector or keyword")
	searchCmd.Flags().Float64Var(&searchMinScore, "min-score", 0, "minimum cosine similarity for vector matches")
	searchCmd.Flags().StringVar(&searchDB, "db", "", "database path (default <output>/repo.db)")
	searchCmd.Flags().BoolVar(&searchJSON, "json", false, "output results as JSON")
	rootCmd.AddCommand(searchCmd)
}

func runSearch(cmd *cobra.Command, args []string) error {
	idx, err := openIndex(cmd, searchDB)
	if err != nil {
		return err
	}
	defer func() { _ = idx.Close() }()

	resp, err := idx.Searcher.Search(cmd.Context(), searcher.SearchRequest{
		Query:    args[0],
		Limit:    searchLimit,
		Mode:     searcher.SearchMode(searchMode),
		MinScore: searchMinScore,
	})
	if err != nil {
		return fmt.Errorf("search failed: %w", err)
	}

	if searchJSON {
		return printJSON(cmd, resp.Results)
	}

	if len(resp.Results) == 0 {
		cmd.Println("No results found.")
		return nil
	}
	cmd.Printf("Results (%s, %s):\n\n", resp.SearchMode, resp.Duration)
	for _, r := range resp.Results {
		cmd.Printf("  [%d] %s (%.4f)\n", r.Rank, r.Title, r.Score)
		cmd.Printf("      %s  %s\n", r.Slug, r.OriginalPath)
		if r.Snippet != "" {
			cmd.Printf("      %s\n", r.Snippet)
		}
		cmd.Println()
	}
	return nil
}

// openIndex opens the database named by path, or the configured one
func openIndex(cmd *cobra.Command, path string) (*app.Index, error) {
	cfg, err := loadConfig()
	if err != nil {
		return nil, err
	}
	logger, err := newLogger(cfg.Debug)
	if err != nil {
		return nil, err
	}
	idx, err := app.Open(cmd.Context(), cfg, path, logger)
	if app.IsMissingDatabase(err) {
		return nil, fmt.Errorf("%w; run vaultproc build first", err)
	}
	return idx, err
}
