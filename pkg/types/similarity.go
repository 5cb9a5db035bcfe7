package types

// Neighbor is one entry of a ranked most-similar list
type Neighbor struct {
	Hash  string  `json:"hash"`
	Slug  string  `json:"slug,omitempty"`
	Score float64 `json:"score"`
}

// SimilarityMap holds pairwise scores and per-document rankings, both keyed
// by slug. Slugs are unique within a run while hashes are not: two files
// with identical bytes share a hash but each gets its own ranking.
// Pairs is keyed by PairKey, which orders the two slugs so each unordered
// pair appears once; scores are symmetric.
type SimilarityMap struct {
	Method string                `json:"method"`
	Pairs  map[string]float64    `json:"pairs"`
	Top    map[string][]Neighbor `json:"top"`
}

// PairKey returns the canonical key for a pair of document slugs
func PairKey(a, b string) string {
	if b < a {
		a, b = b, a
	}
	return a + "|" + b
}

// Score returns the similarity for a pair of slugs, 0 when unknown
func (m *SimilarityMap) Score(a, b string) float64 {
	if m == nil || a == b {
		return 0
	}
	return m.Pairs[PairKey(a, b)]
}
