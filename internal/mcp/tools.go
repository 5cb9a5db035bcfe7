package mcp

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"

	"github.com/mark3labs/mcp-go/mcp"
	"go.uber.org/zap"

	"github.com/repomd/vaultproc/internal/app"
	"github.com/repomd/vaultproc/internal/processor"
	"github.com/repomd/vaultproc/internal/searcher"
	"github.com/repomd/vaultproc/internal/storage"
	"github.com/repomd/vaultproc/pkg/types"
)

// MCP error codes
const (
	ErrorCodeInvalidParams        = -32602 // Invalid method parameters
	ErrorCodeInternalError        = -32603 // Internal JSON-RPC error
	ErrorCodeVaultNotFound        = -32001 // Input path is not a readable directory
	ErrorCodeProcessingInProgress = -32002 // Another process_vault call is running
	ErrorCodeNotProcessed         = -32003 // No database has been built yet
	ErrorCodeEmptyQuery           = -32004 // Query parameter is empty
	ErrorCodeDocumentNotFound     = -32005 // No document with that slug or hash
)

// handleProcessVault handles the process_vault tool invocation
func (s *Server) handleProcessVault(ctx context.Context, request mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	args, err := arguments(request)
	if err != nil {
		return nil, err
	}

	if !s.buildMu.TryLock() {
		return nil, newMCPError(ErrorCodeProcessingInProgress, "vault processing already in progress", nil)
	}
	defer s.buildMu.Unlock()

	s.mu.Lock()
	cfg := *s.cfg
	s.mu.Unlock()

	for _, p := range []struct {
		name string
		dst  *string
	}{
		{"input", &cfg.Input},
		{"output", &cfg.Output},
	} {
		v := getStringDefault(args, p.name, "")
		if v == "" {
			continue
		}
		if !filepath.IsAbs(v) {
			return nil, newMCPError(ErrorCodeInvalidParams, "invalid path", map[string]interface{}{
				"param":  p.name,
				"reason": ErrPathNotAbsolute.Error(),
			})
		}
		*p.dst = v
	}

	if err := validateVault(cfg.Input); err != nil {
		return nil, newMCPError(ErrorCodeVaultNotFound, "invalid vault", map[string]interface{}{
			"param":  "input",
			"reason": err.Error(),
		})
	}

	cfg.Documents.IncludeDrafts = getBoolDefault(args, "include_drafts", cfg.Documents.IncludeDrafts)
	cfg.NoCache = getBoolDefault(args, "no_cache", cfg.NoCache)

	// the index may point at the database about to be replaced
	s.closeIndex()

	result, err := app.Build(ctx, &cfg, s.logger)
	if result == nil {
		code := ErrorCodeInternalError
		if errors.Is(err, types.ErrInvalidConfig) {
			code = ErrorCodeInvalidParams
		}
		return nil, newMCPError(code, "processing failed", map[string]interface{}{
			"error": err.Error(),
		})
	}

	s.mu.Lock()
	s.cfg = &cfg
	s.mu.Unlock()
	s.closeIndex()

	response := processResponse(result)
	if err != nil {
		response["error"] = err.Error()
	}
	return mcp.NewToolResultText(formatJSON(response)), nil
}

func processResponse(result *processor.Result) map[string]interface{} {
	response := map[string]interface{}{
		"run_id":    result.RunID,
		"cancelled": result.Cancelled,
		"documents": len(result.Documents),
		"media":     len(result.Media),
		"files":     result.Files,
		"stats":     result.Stats,
	}
	if result.Database != nil {
		response["database"] = result.Database.Path
	}
	if result.Issues != nil {
		response["issues"] = result.Issues.Summary
		errs := make([]string, 0, 5)
		for _, is := range result.Issues.Issues {
			if is.Severity == types.SeverityError && len(errs) < 5 {
				errs = append(errs, is.Message)
			}
		}
		if len(errs) > 0 {
			response["errors"] = errs
		}
	}
	return response
}

// handleSearchVault handles the search_vault tool invocation
func (s *Server) handleSearchVault(ctx context.Context, request mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	args, err := arguments(request)
	if err != nil {
		return nil, err
	}

	query, ok := args["query"].(string)
	if !ok || query == "" {
		return nil, newMCPError(ErrorCodeEmptyQuery, "query parameter is required and cannot be empty", map[string]interface{}{
			"param":  "query",
			"reason": "missing or empty",
		})
	}

	limit, err := limitArg(args)
	if err != nil {
		return nil, err
	}

	mode := searcher.SearchMode(getStringDefault(args, "search_mode", string(searcher.SearchModeHybrid)))
	switch mode {
	case searcher.SearchModeHybrid, searcher.SearchModeVector, searcher.SearchModeKeyword:
	default:
		return nil, newMCPError(ErrorCodeInvalidParams, "invalid search_mode", map[string]interface{}{
			"param":   "search_mode",
			"value":   mode,
			"allowed": []string{"hybrid", "vector", "keyword"},
		})
	}

	idx, err := s.queryIndex(ctx)
	if err != nil {
		return nil, err
	}

	resp, err := idx.Searcher.Search(ctx, searcher.SearchRequest{
		Query:    query,
		Limit:    limit,
		Mode:     mode,
		MinScore: getFloatDefault(args, "min_score", 0),
		UseCache: true,
	})
	if err != nil {
		return nil, newMCPError(ErrorCodeInternalError, "search failed", map[string]interface{}{
			"error": err.Error(),
		})
	}

	results := make([]map[string]interface{}, len(resp.Results))
	for i, r := range resp.Results {
		item := summaryJSON(r.DocumentSummary)
		item["rank"] = r.Rank
		item["score"] = r.Score
		if r.Snippet != "" {
			item["snippet"] = r.Snippet
		}
		results[i] = item
	}

	response := map[string]interface{}{
		"query":          query,
		"search_mode":    resp.SearchMode,
		"total_results":  resp.TotalResults,
		"vector_results": resp.VectorResults,
		"text_results":   resp.TextResults,
		"cache_hit":      resp.CacheHit,
		"duration_ms":    resp.Duration.Milliseconds(),
		"results":        results,
	}
	return mcp.NewToolResultText(formatJSON(response)), nil
}

// handleSimilarDocuments handles the similar_documents tool invocation
func (s *Server) handleSimilarDocuments(ctx context.Context, request mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	args, err := arguments(request)
	if err != nil {
		return nil, err
	}

	doc, ok := args["document"].(string)
	if !ok || doc == "" {
		return nil, newMCPError(ErrorCodeInvalidParams, "document parameter is required", map[string]interface{}{
			"param":  "document",
			"reason": "missing or empty",
		})
	}

	limit, err := limitArg(args)
	if err != nil {
		return nil, err
	}

	idx, err := s.queryIndex(ctx)
	if err != nil {
		return nil, err
	}

	neighbors, err := idx.Searcher.Similar(ctx, doc, limit)
	if errors.Is(err, storage.ErrNotFound) {
		return nil, newMCPError(ErrorCodeDocumentNotFound, "document not found", map[string]interface{}{
			"param": "document",
			"value": doc,
		})
	}
	if err != nil {
		return nil, newMCPError(ErrorCodeInternalError, "similarity lookup failed", map[string]interface{}{
			"error": err.Error(),
		})
	}

	items := make([]map[string]interface{}, len(neighbors))
	for i, n := range neighbors {
		item := summaryJSON(n.DocumentSummary)
		item["rank"] = n.Rank
		item["score"] = n.Score
		items[i] = item
	}
	response := map[string]interface{}{
		"document": doc,
		"similar":  items,
	}
	return mcp.NewToolResultText(formatJSON(response)), nil
}

// handleVaultStatus handles the vault_status tool invocation
func (s *Server) handleVaultStatus(ctx context.Context, request mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	s.mu.Lock()
	input, output := s.cfg.Input, s.cfg.Output
	s.mu.Unlock()

	idx, err := s.openIndex(ctx)
	if app.IsMissingDatabase(err) {
		response := map[string]interface{}{
			"processed": false,
			"input":     input,
			"output":    output,
			"message":   "Vault not processed. Use process_vault tool to build it.",
		}
		return mcp.NewToolResultText(formatJSON(response)), nil
	}
	if err != nil {
		return nil, newMCPError(ErrorCodeInternalError, "failed to open database", map[string]interface{}{
			"error": err.Error(),
		})
	}

	st, err := idx.Store.Stats(ctx)
	if err != nil {
		return nil, newMCPError(ErrorCodeInternalError, "failed to get status", map[string]interface{}{
			"error": err.Error(),
		})
	}

	response := map[string]interface{}{
		"processed": true,
		"input":     input,
		"output":    output,
		"database": map[string]interface{}{
			"path":           idx.Store.Path(),
			"schema_version": st.SchemaVersion,
			"run_id":         st.RunID,
		},
		"statistics": map[string]interface{}{
			"documents":        st.Documents,
			"media":            st.Media,
			"links":            st.Links,
			"embeddings":       st.Embeddings,
			"media_embeddings": st.MediaEmbeddings,
			"similarities":     st.Similarities,
		},
		"health": map[string]interface{}{
			"fts_index_built":      st.FullText,
			"embeddings_available": st.Embeddings > 0,
			"embedding_model":      st.Model,
			"embedding_dimensions": st.Dimensions,
		},
	}
	return mcp.NewToolResultText(formatJSON(response)), nil
}

// queryIndex opens the shared index and maps a missing database to a tool error
func (s *Server) queryIndex(ctx context.Context) (*app.Index, error) {
	idx, err := s.openIndex(ctx)
	if app.IsMissingDatabase(err) {
		return nil, newMCPError(ErrorCodeNotProcessed, "vault not processed", map[string]interface{}{
			"reason": "run process_vault first",
		})
	}
	if err != nil {
		s.logger.Warn("failed to open database", zap.Error(err))
		return nil, newMCPError(ErrorCodeInternalError, "failed to open database", map[string]interface{}{
			"error": err.Error(),
		})
	}
	return idx, nil
}

// Helper functions

// newMCPError creates a properly formatted MCP error
func newMCPError(code int, message string, data interface{}) error {
	// MCP errors are returned as regular errors, the framework handles encoding
	return &MCPError{
		Code:    code,
		Message: message,
		Data:    data,
	}
}

// MCPError represents an MCP protocol error
type MCPError struct {
	Code    int
	Message string
	Data    interface{}
}

func (e *MCPError) Error() string {
	return fmt.Sprintf("MCP error %d: %s", e.Code, e.Message)
}

func arguments(request mcp.CallToolRequest) (map[string]interface{}, error) {
	if request.Params.Arguments == nil {
		return map[string]interface{}{}, nil
	}
	args, ok := request.Params.Arguments.(map[string]interface{})
	if !ok {
		return nil, newMCPError(ErrorCodeInvalidParams, "invalid arguments", nil)
	}
	return args, nil
}

func limitArg(args map[string]interface{}) (int, error) {
	limit := getIntDefault(args, "limit", searcher.DefaultLimit)
	if limit < 1 || limit > searcher.MaxLimit {
		return 0, newMCPError(ErrorCodeInvalidParams, "limit must be between 1 and 100", map[string]interface{}{
			"param": "limit",
			"value": limit,
		})
	}
	return limit, nil
}

// validateVault checks that path is a readable directory
func validateVault(path string) error {
	if path == "" {
		return ErrPathRequired
	}
	info, err := os.Stat(path)
	if os.IsNotExist(err) {
		return ErrPathNotFound
	}
	if err != nil {
		return ErrPathNotReadable
	}
	if !info.IsDir() {
		return ErrNotDirectory
	}
	f, err := os.Open(path)
	if err != nil {
		return ErrPathNotReadable
	}
	_ = f.Close()
	return nil
}

func summaryJSON(d storage.DocumentSummary) map[string]interface{} {
	return map[string]interface{}{
		"slug":       d.Slug,
		"hash":       d.Hash,
		"title":      d.Title,
		"path":       d.OriginalPath,
		"excerpt":    d.Excerpt,
		"word_count": d.WordCount,
	}
}

// formatJSON formats a map as indented JSON
func formatJSON(data map[string]interface{}) string {
	bytes, err := json.MarshalIndent(data, "", "  ")
	if err != nil {
		return fmt.Sprintf("%v", data)
	}
	return string(bytes)
}

// getBoolDefault extracts a boolean parameter with a default value
func getBoolDefault(args map[string]interface{}, key string, defaultValue bool) bool {
	if val, ok := args[key].(bool); ok {
		return val
	}
	return defaultValue
}

// getIntDefault extracts an integer parameter with a default value
func getIntDefault(args map[string]interface{}, key string, defaultValue int) int {
	if val, ok := args[key].(float64); ok {
		return int(val)
	}
	if val, ok := args[key].(int); ok {
		return val
	}
	return defaultValue
}

func getFloatDefault(args map[string]interface{}, key string, defaultValue float64) float64 {
	switch val := args[key].(type) {
	case float64:
		return val
	case int:
		return float64(val)
	}
	return defaultValue
}

// getStringDefault extracts a string parameter with a default value
func getStringDefault(args map[string]interface{}, key string, defaultValue string) string {
	if val, ok := args[key].(string); ok {
		return val
	}
	return defaultValue
}

// Validation helpers

var (
	ErrPathRequired    = errors.New("path is required")
	ErrPathNotAbsolute = errors.New("path must be absolute")
	ErrPathNotFound    = errors.New("path does not exist")
	ErrPathNotReadable = errors.New("path is not readable")
	ErrNotDirectory    = errors.New("path is not a directory")
)
