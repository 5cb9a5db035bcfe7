package cli

import (
	"encoding/json"
	"errors"
	"fmt"

	"github.com/spf13/cobra"

	"github.com/repomd/vaultproc/internal/app"
	"github.com/repomd/vaultproc/internal/processor"
	"github.com/repomd/vaultproc/pkg/types"
)

var (
	buildOutput  string
	buildDrafts  bool
	buildNoCache bool
	buildStrict  bool
	buildJSON    bool
)

// ErrRunHasErrors is returned by --strict builds whose report holds errors
var ErrRunHasErrors = errors.New("run finished with errors")

var buildCmd = &cobra.Command{
	Use:   "build [vault]",
	Short: "Process a vault",
	Long: `Processes every document and media file in the vault and writes the
results to the output directory. Results of the previous run in that
directory are reused for unchanged media and embeddings.`,
	Args: cobra.MaximumNArgs(1),
	RunE: runBuild,
}

func init() {
	buildCmd.Flags().StringVarP(&buildOutput, "output", "o", "", "output directory")
	buildCmd.Flags().BoolVar(&buildDrafts, "drafts", false, "include draft and unpublished documents")
	buildCmd.Flags().BoolVar(&buildNoCache, "no-cache", false, "ignore the previous run")
	buildCmd.Flags().BoolVar(&buildStrict, "strict", false, "exit non-zero when the issue report holds errors")
	buildCmd.Flags().BoolVar(&buildJSON, "json", false, "print the run summary as JSON")
	rootCmd.AddCommand(buildCmd)
}

func runBuild(cmd *cobra.Command, args []string) error {
	cfg, err := loadConfig()
	if err != nil {
		return err
	}
	if len(args) == 1 {
		cfg.Input = args[0]
	}
	if buildOutput != "" {
		cfg.Output = buildOutput
	}
	if cmd.Flags().Changed("drafts") {
		cfg.Documents.IncludeDrafts = buildDrafts
	}
	if buildNoCache {
		cfg.NoCache = true
	}

	logger, err := newLogger(cfg.Debug)
	if err != nil {
		return err
	}
	defer func() { _ = logger.Sync() }()

	ctx, stop := signalContext(cmd.Context())
	defer stop()

	result, err := app.Build(ctx, cfg, logger)
	if result == nil {
		return err
	}

	if buildJSON {
		if err := printJSON(cmd, result); err != nil {
			return err
		}
	} else {
		printSummary(cmd, result)
	}

	if err != nil {
		return err
	}
	if result.Cancelled {
		return fmt.Errorf("build cancelled")
	}
	if buildStrict && result.Issues.HasErrors() {
		return ErrRunHasErrors
	}
	return nil
}

func printSummary(cmd *cobra.Command, r *processor.Result) {
	st := r.Stats
	cmd.Printf("Run %s\n", r.RunID)
	cmd.Printf("  Documents: %d included, %d excluded, %d failed (%d scanned)\n",
		st.DocumentsIncluded, st.DocumentsExcluded, st.DocumentsFailed, st.DocumentsScanned)
	cmd.Printf("  Media:     %d processed, %d cached, %d copied, %d failed\n",
		st.MediaProcessed, st.MediaCached, st.MediaCopied, st.MediaFailed)
	cmd.Printf("  Embedded:  %d text (%d cached), %d images (%d cached)\n",
		st.TextEmbeddingsGenerated+st.TextEmbeddingsCached, st.TextEmbeddingsCached,
		st.ImageEmbeddingsGenerated+st.ImageEmbeddingsCached, st.ImageEmbeddingsCached)
	if r.Database != nil {
		cmd.Printf("  Database:  %s (%d documents, %d similarities)\n",
			r.Database.Path, r.Database.Documents, r.Database.Similarities)
	}
	if r.Issues != nil && r.Issues.Summary.Total > 0 {
		cmd.Printf("  Issues:    %d", r.Issues.Summary.Total)
		for _, sev := range []types.Severity{types.SeverityError, types.SeverityWarning, types.SeverityInfo} {
			if n := r.Issues.Summary.BySeverity[sev]; n > 0 {
				cmd.Printf(" %s=%d", sev, n)
			}
		}
		cmd.Println()
	}
	if r.Cancelled {
		cmd.Println("  Cancelled before completion")
	}
	cmd.Printf("  Duration:  %s\n", st.Duration)
}

func printJSON(cmd *cobra.Command, v any) error {
	data, err := json.MarshalIndent(v, "", "  ")
	if err != nil {
		return fmt.Errorf("failed to marshal output: %w", err)
	}
	cmd.Println(string(data))
	return nil
}
