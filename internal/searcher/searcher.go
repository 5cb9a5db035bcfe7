// Package searcher answers queries against a built vault database:
// keyword search over the FTS5 index, vector search over stored text
// embeddings, hybrid search fusing both with Reciprocal Rank Fusion, and
// lookups of the precomputed nearest neighbors.
package searcher

import (
	"context"
	"crypto/sha256"
	"errors"
	"fmt"
	"sort"
	"strconv"
	"strings"
	"sync"
	"time"

	lru "github.com/hashicorp/golang-lru/v2"

	"github.com/repomd/vaultproc/internal/storage"
	"github.com/repomd/vaultproc/internal/vector"
)

// SearchMode defines how search is performed
type SearchMode string

const (
	SearchModeHybrid  SearchMode = "hybrid"  // Vector + BM25 with RRF
	SearchModeVector  SearchMode = "vector"  // Vector similarity only
	SearchModeKeyword SearchMode = "keyword" // BM25 text search only
)

// Limits and defaults
const (
	DefaultLimit       = 10
	MaxLimit           = 100
	DefaultRRFConstant = 60
	DefaultCacheSize   = 1000
	DefaultCacheTTL    = time.Hour
)

var (
	ErrEmptyQuery    = errors.New("query cannot be empty")
	ErrNoEmbedder    = errors.New("vector search needs a text embedder")
	ErrNoVectors     = errors.New("database has no text embeddings")
	ErrModelMismatch = errors.New("query embedder does not match stored embeddings")
)

// Embedder turns a query into a vector. plugin.TextEmbedder satisfies it.
type Embedder interface {
	Embed(ctx context.Context, text string) ([]float32, error)
	Model() string
	Dimensions() int
}

// SearchRequest contains parameters for a search operation
type SearchRequest struct {
	Query       string
	Limit       int
	Mode        SearchMode
	MinScore    float64 // vector mode only
	UseCache    bool
	CacheTTL    time.Duration
	RRFConstant float64 // k value for Reciprocal Rank Fusion (default 60)
}

// Result is one ranked document
type Result struct {
	storage.DocumentSummary
	Score   float64
	Rank    int
	Snippet string
}

// SearchResponse contains search results and metadata
type SearchResponse struct {
	Results       []Result
	TotalResults  int
	SearchMode    SearchMode
	Duration      time.Duration
	CacheHit      bool
	VectorResults int
	TextResults   int
}

// cacheEntry represents a cached search response with expiration time
type cacheEntry struct {
	response  *SearchResponse
	expiresAt time.Time
}

// Searcher coordinates search operations across vector and text search.
// It is safe for concurrent use.
type Searcher struct {
	store    *storage.Store
	embedder Embedder
	cache    *lru.Cache[[32]byte, *cacheEntry]
	cacheMu  sync.RWMutex

	loadOnce sync.Once
	vectors  []storage.EmbeddingRow
	model    string
	dims     int
	loadErr  error
}

// New creates a searcher. emb may be nil, which limits it to keyword
// search and neighbor lookups.
func New(store *storage.Store, emb Embedder) *Searcher {
	cache, err := lru.New[[32]byte, *cacheEntry](DefaultCacheSize)
	if err != nil {
		panic(fmt.Sprintf("failed to create LRU cache: %v", err))
	}
	return &Searcher{store: store, embedder: emb, cache: cache}
}

// Search performs a search based on the request parameters
func (s *Searcher) Search(ctx context.Context, req SearchRequest) (*SearchResponse, error) {
	startTime := time.Now()

	if err := validateRequest(&req); err != nil {
		return nil, fmt.Errorf("invalid search request: %w", err)
	}

	if req.UseCache {
		if cached := s.checkCache(req); cached != nil {
			cached.CacheHit = true
			cached.Duration = time.Since(startTime)
			return cached, nil
		}
	}

	var response *SearchResponse
	var err error

	switch req.Mode {
	case SearchModeHybrid:
		response, err = s.hybridSearch(ctx, req)
	case SearchModeVector:
		response, err = s.vectorSearch(ctx, req)
	case SearchModeKeyword:
		response, err = s.keywordSearch(ctx, req)
	default:
		return nil, fmt.Errorf("unsupported search mode: %s", req.Mode)
	}
	if err != nil {
		return nil, err
	}

	response.Duration = time.Since(startTime)
	response.SearchMode = req.Mode

	if req.UseCache && len(response.Results) > 0 {
		s.storeInCache(req, response)
	}

	return response, nil
}

// Similar returns the precomputed neighbors of the document named by a
// slug or a content hash.
func (s *Searcher) Similar(ctx context.Context, slugOrHash string, limit int) ([]storage.Neighbor, error) {
	if limit <= 0 {
		limit = DefaultLimit
	}
	doc, err := s.store.Document(ctx, slugOrHash)
	if errors.Is(err, storage.ErrNotFound) {
		doc, err = s.store.DocumentByHash(ctx, slugOrHash)
	}
	if err != nil {
		return nil, fmt.Errorf("document %q: %w", slugOrHash, err)
	}
	return s.store.Neighbors(ctx, doc.Hash, limit)
}

// scored is a document hash with its score
type scored struct {
	hash    string
	score   float64
	snippet string
}

// searchResult holds results from concurrent search operations
type searchResult struct {
	hits []scored
	err  error
}

// hybridSearch combines vector and BM25 search using Reciprocal Rank Fusion
func (s *Searcher) hybridSearch(ctx context.Context, req SearchRequest) (*SearchResponse, error) {
	vectorChan := make(chan searchResult, 1)
	textChan := make(chan searchResult, 1)

	go func() {
		hits, err := s.vectorHits(ctx, req.Query, req.Limit*2, 0)
		vectorChan <- searchResult{hits: hits, err: err}
	}()
	go func() {
		hits, err := s.textHits(ctx, req.Query, req.Limit*2)
		textChan <- searchResult{hits: hits, err: err}
	}()

	var vectorRes, textRes searchResult
	var vectorDone, textDone bool
	for !vectorDone || !textDone {
		select {
		case vectorRes = <-vectorChan:
			vectorDone = true
		case textRes = <-textChan:
			textDone = true
		case <-ctx.Done():
			return nil, ctx.Err()
		}
	}

	// one side may fail, e.g. no embedder or no FTS index
	if vectorRes.err != nil && textRes.err != nil {
		return nil, fmt.Errorf("both searches failed: vector=%w, text=%v", vectorRes.err, textRes.err)
	}

	fused := applyRRF(vectorRes.hits, textRes.hits, req.RRFConstant)
	results, err := s.fetchResults(ctx, fused, req.Limit)
	if err != nil {
		return nil, err
	}
	return &SearchResponse{
		Results:       results,
		TotalResults:  len(results),
		VectorResults: len(vectorRes.hits),
		TextResults:   len(textRes.hits),
	}, nil
}

// vectorSearch performs only vector similarity search
func (s *Searcher) vectorSearch(ctx context.Context, req SearchRequest) (*SearchResponse, error) {
	hits, err := s.vectorHits(ctx, req.Query, req.Limit, req.MinScore)
	if err != nil {
		return nil, err
	}
	results, err := s.fetchResults(ctx, hits, req.Limit)
	if err != nil {
		return nil, err
	}
	return &SearchResponse{Results: results, TotalResults: len(results), VectorResults: len(hits)}, nil
}

// keywordSearch performs only BM25 text search. Every matching document is
// returned, including ones that share content with another.
func (s *Searcher) keywordSearch(ctx context.Context, req SearchRequest) (*SearchResponse, error) {
	textResults, err := s.store.SearchText(ctx, req.Query, req.Limit)
	if err != nil {
		return nil, err
	}
	results := make([]Result, len(textResults))
	for i, tr := range textResults {
		results[i] = Result{DocumentSummary: tr.DocumentSummary, Score: tr.Score, Rank: i + 1, Snippet: tr.Snippet}
	}
	return &SearchResponse{Results: results, TotalResults: len(results), TextResults: len(textResults)}, nil
}

func (s *Searcher) textHits(ctx context.Context, query string, limit int) ([]scored, error) {
	textResults, err := s.store.SearchText(ctx, query, limit)
	if err != nil {
		return nil, err
	}
	hits := make([]scored, 0, len(textResults))
	seen := make(map[string]bool)
	for _, tr := range textResults {
		if seen[tr.Hash] {
			continue
		}
		seen[tr.Hash] = true
		hits = append(hits, scored{hash: tr.Hash, score: tr.Score, snippet: tr.Snippet})
	}
	return hits, nil
}

func (s *Searcher) vectorHits(ctx context.Context, query string, limit int, minScore float64) ([]scored, error) {
	if s.embedder == nil {
		return nil, ErrNoEmbedder
	}
	if err := s.loadVectors(ctx); err != nil {
		return nil, err
	}
	if len(s.vectors) == 0 {
		return nil, ErrNoVectors
	}
	if s.embedder.Model() != s.model || s.embedder.Dimensions() != s.dims {
		return nil, fmt.Errorf("%w: database %s/%d, embedder %s/%d",
			ErrModelMismatch, s.model, s.dims, s.embedder.Model(), s.embedder.Dimensions())
	}

	q, err := s.embedder.Embed(ctx, query)
	if err != nil {
		return nil, fmt.Errorf("failed to generate query embedding: %w", err)
	}

	candidates := make([]vector.Scored, 0, len(s.vectors))
	for i, row := range s.vectors {
		score := vector.Cosine(q, row.Vector)
		if score < minScore {
			continue
		}
		candidates = append(candidates, vector.Scored{Index: i, Score: score})
	}
	ranked := vector.TopN(candidates, limit)
	hits := make([]scored, len(ranked))
	for i, r := range ranked {
		hits[i] = scored{hash: s.vectors[r.Index].Hash, score: r.Score}
	}
	return hits, nil
}

// loadVectors reads the embeddings table once
func (s *Searcher) loadVectors(ctx context.Context) error {
	s.loadOnce.Do(func() {
		meta, err := s.store.Meta(ctx)
		if err != nil {
			s.loadErr = err
			return
		}
		s.model = meta[storage.MetaEmbeddingModel]
		s.dims, _ = strconv.Atoi(meta[storage.MetaEmbeddingDimensions])
		s.vectors, s.loadErr = s.store.Embeddings(ctx)
	})
	return s.loadErr
}

// applyRRF fuses rankings: RRF(d) = Σ 1/(k + rank(d)). Equal scores are
// ordered by hash.
func applyRRF(vectorHits, textHits []scored, k float64) []scored {
	if k == 0 {
		k = DefaultRRFConstant
	}

	scores := make(map[string]float64)
	snippets := make(map[string]string)
	for rank, h := range vectorHits {
		scores[h.hash] += 1.0 / (k + float64(rank+1))
	}
	for rank, h := range textHits {
		scores[h.hash] += 1.0 / (k + float64(rank+1))
		snippets[h.hash] = h.snippet
	}

	results := make([]scored, 0, len(scores))
	for hash, score := range scores {
		results = append(results, scored{hash: hash, score: score, snippet: snippets[hash]})
	}
	sort.Slice(results, func(i, j int) bool {
		if results[i].score != results[j].score {
			return results[i].score > results[j].score
		}
		return results[i].hash < results[j].hash
	})
	return results
}

// fetchResults attaches document summaries to ranked hashes
func (s *Searcher) fetchResults(ctx context.Context, ranked []scored, limit int) ([]Result, error) {
	if limit > len(ranked) {
		limit = len(ranked)
	}
	ranked = ranked[:limit]

	hashes := make([]string, len(ranked))
	for i, r := range ranked {
		hashes[i] = r.hash
	}
	summaries, err := s.store.Summaries(ctx, hashes)
	if err != nil {
		return nil, fmt.Errorf("failed to fetch documents: %w", err)
	}

	results := make([]Result, 0, len(ranked))
	for _, r := range ranked {
		summary, ok := summaries[r.hash]
		if !ok {
			continue
		}
		results = append(results, Result{DocumentSummary: summary, Score: r.score, Rank: len(results) + 1, Snippet: r.snippet})
	}
	return results, nil
}

// validateRequest ensures search request is valid
func validateRequest(req *SearchRequest) error {
	req.Query = strings.TrimSpace(req.Query)
	if req.Query == "" {
		return ErrEmptyQuery
	}
	if req.Limit <= 0 {
		req.Limit = DefaultLimit
	}
	if req.Limit > MaxLimit {
		req.Limit = MaxLimit
	}
	if req.Mode == "" {
		req.Mode = SearchModeHybrid
	}
	if req.RRFConstant == 0 {
		req.RRFConstant = DefaultRRFConstant
	}
	if req.CacheTTL == 0 {
		req.CacheTTL = DefaultCacheTTL
	}
	return nil
}

// checkCache returns a copy of a live cached response, or nil
func (s *Searcher) checkCache(req SearchRequest) *SearchResponse {
	hash := computeQueryHash(req)
	now := time.Now()

	s.cacheMu.RLock()
	entry, found := s.cache.Get(hash)
	if !found {
		s.cacheMu.RUnlock()
		return nil
	}
	if now.After(entry.expiresAt) {
		s.cacheMu.RUnlock()
		s.cacheMu.Lock()
		s.cache.Remove(hash)
		s.cacheMu.Unlock()
		return nil
	}
	response := copySearchResponse(entry.response)
	s.cacheMu.RUnlock()
	return response
}

// storeInCache saves a copy of response
func (s *Searcher) storeInCache(req SearchRequest, response *SearchResponse) {
	entry := &cacheEntry{
		response:  copySearchResponse(response),
		expiresAt: time.Now().Add(req.CacheTTL),
	}
	s.cacheMu.Lock()
	s.cache.Add(computeQueryHash(req), entry)
	s.cacheMu.Unlock()
}

// InvalidateCache drops every cached response
func (s *Searcher) InvalidateCache() {
	s.cacheMu.Lock()
	s.cache.Purge()
	s.cacheMu.Unlock()
}

// copySearchResponse creates a deep copy of a SearchResponse
func copySearchResponse(src *SearchResponse) *SearchResponse {
	if src == nil {
		return nil
	}
	dst := *src
	dst.Results = make([]Result, len(src.Results))
	copy(dst.Results, src.Results)
	return &dst
}

// computeQueryHash computes a unique hash for a search request
func computeQueryHash(req SearchRequest) [32]byte {
	var data strings.Builder
	data.WriteString(req.Query)
	data.WriteString("|")
	data.WriteString(string(req.Mode))
	data.WriteString("|")
	data.WriteString(strconv.Itoa(req.Limit))
	data.WriteString("|")
	data.WriteString(strconv.FormatFloat(req.MinScore, 'f', 4, 64))
	data.WriteString("|")
	data.WriteString(strconv.FormatFloat(req.RRFConstant, 'f', 2, 64))
	return sha256.Sum256([]byte(data.String()))
}
