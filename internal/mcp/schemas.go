package mcp

import (
	"github.com/mark3labs/mcp-go/mcp"

	"github.com/repomd/vaultproc/internal/searcher"
)

// processVaultTool returns the tool definition for process_vault
func processVaultTool() mcp.Tool {
	return mcp.Tool{
		Name:        "process_vault",
		Description: "Process a Markdown vault into JSON outputs, optimized media and a searchable database",
		InputSchema: mcp.ToolInputSchema{
			Type: "object",
			Properties: map[string]interface{}{
				"input": map[string]interface{}{
					"type":        "string",
					"description": "Absolute path to the vault; defaults to the configured input",
				},
				"output": map[string]interface{}{
					"type":        "string",
					"description": "Absolute path to the output directory; defaults to the configured output",
				},
				"include_drafts": map[string]interface{}{
					"type":        "boolean",
					"description": "If true, keep documents marked draft or unpublished",
					"default":     false,
				},
				"no_cache": map[string]interface{}{
					"type":        "boolean",
					"description": "If true, ignore results of the previous run (full rebuild)",
					"default":     false,
				},
			},
		},
	}
}

// searchVaultTool returns the tool definition for search_vault
func searchVaultTool() mcp.Tool {
	return mcp.Tool{
		Name:        "search_vault",
		Description: "Search processed vault documents with natural language or keyword queries",
		InputSchema: mcp.ToolInputSchema{
			Type: "object",
			Properties: map[string]interface{}{
				"query": map[string]interface{}{
					"type":        "string",
					"description": "Search query (natural language or keywords)",
				},
				"limit": map[string]interface{}{
					"type":        "integer",
					"description": "Maximum number of results to return (1-100)",
					"default":     searcher.DefaultLimit,
					"minimum":     1,
					"maximum":     searcher.MaxLimit,
				},
				"min_score": map[string]interface{}{
					"type":        "number",
					"description": "Minimum cosine similarity for vector matches",
					"minimum":     0.0,
					"maximum":     1.0,
				},
				"search_mode": map[string]interface{}{
					"type":        "string",
					"description": "Search strategy: hybrid (vector + keyword), vector (semantic only), or keyword (BM25 only)",
					"enum":        []string{string(searcher.SearchModeHybrid), string(searcher.SearchModeVector), string(searcher.SearchModeKeyword)},
					"default":     string(searcher.SearchModeHybrid),
				},
			},
			Required: []string{"query"},
		},
	}
}

// similarDocumentsTool returns the tool definition for similar_documents
func similarDocumentsTool() mcp.Tool {
	return mcp.Tool{
		Name:        "similar_documents",
		Description: "List the documents most similar to a given document",
		InputSchema: mcp.ToolInputSchema{
			Type: "object",
			Properties: map[string]interface{}{
				"document": map[string]interface{}{
					"type":        "string",
					"description": "Slug or content hash of the document",
				},
				"limit": map[string]interface{}{
					"type":        "integer",
					"description": "Maximum number of neighbors to return (1-100)",
					"default":     searcher.DefaultLimit,
					"minimum":     1,
					"maximum":     searcher.MaxLimit,
				},
			},
			Required: []string{"document"},
		},
	}
}

// vaultStatusTool returns the tool definition for vault_status
func vaultStatusTool() mcp.Tool {
	return mcp.Tool{
		Name:        "vault_status",
		Description: "Report whether the vault has been processed and what the database holds",
		InputSchema: mcp.ToolInputSchema{
			Type:       "object",
			Properties: map[string]interface{}{},
		},
	}
}
