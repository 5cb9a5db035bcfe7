package mcp

import (
	"context"
	"fmt"
	"sync"

	"github.com/mark3labs/mcp-go/server"
	"go.uber.org/zap"

	"github.com/repomd/vaultproc/internal/app"
	"github.com/repomd/vaultproc/internal/config"
)

const (
	// ServerName is the MCP server name
	ServerName = "vaultproc"
	// ServerVersion is the current server version
	ServerVersion = "1.0.0"
)

// Server wraps the MCP server with application dependencies
type Server struct {
	mcp    *server.MCPServer
	cfg    *config.Config
	logger *zap.Logger

	// buildMu serializes process_vault calls
	buildMu sync.Mutex

	mu    sync.Mutex
	index *app.Index
}

// NewServer creates a new MCP server instance. cfg supplies defaults for
// every tool; tool arguments override the vault and output directories.
func NewServer(cfg *config.Config, logger *zap.Logger) (*Server, error) {
	if cfg == nil {
		return nil, fmt.Errorf("configuration is required")
	}
	if logger == nil {
		logger = zap.NewNop()
	}

	s := &Server{
		mcp:    server.NewMCPServer(ServerName, ServerVersion, server.WithToolCapabilities(false)),
		cfg:    cfg,
		logger: logger.Named("mcp"),
	}
	s.registerTools()
	return s, nil
}

// Serve starts the MCP server on stdio and blocks until shutdown
func (s *Server) Serve(ctx context.Context) error {
	defer s.closeIndex()
	return server.ServeStdio(s.mcp)
}

// registerTools registers all MCP tools
func (s *Server) registerTools() {
	s.mcp.AddTool(processVaultTool(), s.handleProcessVault)
	s.mcp.AddTool(searchVaultTool(), s.handleSearchVault)
	s.mcp.AddTool(similarDocumentsTool(), s.handleSimilarDocuments)
	s.mcp.AddTool(vaultStatusTool(), s.handleVaultStatus)
}

// openIndex returns the shared index for the configured output, opening it
// on first use
func (s *Server) openIndex(ctx context.Context) (*app.Index, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.index != nil {
		return s.index, nil
	}
	idx, err := app.Open(ctx, s.cfg, "", s.logger)
	if err != nil {
		return nil, err
	}
	s.index = idx
	return idx, nil
}

// closeIndex drops the shared index so the next query sees a fresh build
func (s *Server) closeIndex() {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.index == nil {
		return
	}
	if err := s.index.Close(); err != nil {
		s.logger.Warn("failed to close database", zap.Error(err))
	}
	s.index = nil
}
