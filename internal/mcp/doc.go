// Package mcp implements the Model Context Protocol (MCP) server for vaultproc.
//
// The server exposes four tools to MCP clients:
//   - process_vault: process a Markdown vault into JSON outputs, media and a database
//   - search_vault: search processed documents with natural language or keywords
//   - similar_documents: list the nearest neighbors of one document
//   - vault_status: report what the last build produced
//
// MCP is JSON-RPC 2.0 over stdio. The server is started with
//
//	vaultproc serve --config vaultproc.toml
//
// and reads requests from stdin, writing responses to stdout. Logs go to
// stderr.
//
// # Tool: process_vault
//
//	Request:
//	{
//	  "name": "process_vault",
//	  "arguments": {
//	    "input": "/path/to/vault",
//	    "output": "/path/to/site",
//	    "include_drafts": false,
//	    "no_cache": false
//	  }
//	}
//
//	Response:
//	{
//	  "run_id": "5f0c...",
//	  "documents": 128,
//	  "media": 40,
//	  "database": "/path/to/site/repo.db",
//	  "stats": {"documentsScanned": 131, "mediaCached": 38, ...},
//	  "issues": {"total": 3, "bySeverity": {"warning": 3}, ...}
//	}
//
// Every argument is optional and falls back to the configuration. After a
// successful build, the query tools read from the new output directory.
//
// # Tool: search_vault
//
//	Request:
//	{
//	  "name": "search_vault",
//	  "arguments": {"query": "sourdough starter", "limit": 10, "search_mode": "hybrid"}
//	}
//
//	Response:
//	{
//	  "results": [
//	    {"rank": 1, "score": 0.032, "slug": "bread", "title": "Sourdough", "snippet": "..."}
//	  ]
//	}
//
// # Tool: similar_documents
//
// Takes a slug or content hash and returns the precomputed neighbors stored
// in the database.
//
// # Error Handling
//
// Errors are returned as *MCPError values carrying a JSON-RPC code:
//   - -32602: Invalid params (missing/invalid arguments)
//   - -32603: Internal error (database, filesystem, etc.)
//   - -32001: Vault directory not found
//   - -32002: Processing in progress
//   - -32003: Vault not processed yet
//   - -32004: Empty query
//   - -32005: Document not found
package mcp
