package storage

import (
	"context"
	"runtime"
	"strings"

	"golang.org/x/sync/errgroup"

	"github.com/repomd/vaultproc/internal/vector"
)

// NearestNeighbors ranks, for every row, the topN other rows by cosine
// similarity. Rows must share one dimensionality and one row per hash.
// Equal scores keep the order of rows.
func NearestNeighbors(ctx context.Context, rows []EmbeddingRow, topN int) ([]SimilarityRow, error) {
	if topN <= 0 || len(rows) < 2 {
		return nil, nil
	}

	perRow := make([][]SimilarityRow, len(rows))
	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(runtime.NumCPU())
	for i := range rows {
		g.Go(func() error {
			if err := gctx.Err(); err != nil {
				return err
			}
			candidates := make([]vector.Scored, 0, len(rows)-1)
			for j := range rows {
				if j == i {
					continue
				}
				candidates = append(candidates, vector.Scored{Index: j, Score: vector.Cosine(rows[i].Vector, rows[j].Vector)})
			}
			ranked := vector.TopN(candidates, topN)
			out := make([]SimilarityRow, len(ranked))
			for k, r := range ranked {
				out[k] = SimilarityRow{Source: rows[i].Hash, Target: rows[r.Index].Hash, Score: r.Score, Rank: k + 1}
			}
			perRow[i] = out
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, err
	}

	var all []SimilarityRow
	for _, r := range perRow {
		all = append(all, r...)
	}
	return all, nil
}

// sanitizeFTSQuery turns free text into an FTS5 query of quoted terms that
// must all match. Quoting keeps operators and punctuation from being parsed
// as query syntax.
func sanitizeFTSQuery(query string) string {
	terms := strings.Fields(query)
	quoted := make([]string, 0, len(terms))
	for _, t := range terms {
		t = strings.Trim(t, `"'*^():`)
		if t == "" {
			continue
		}
		quoted = append(quoted, `"`+strings.ReplaceAll(t, `"`, `""`)+`"`)
	}
	return strings.Join(quoted, " ")
}
