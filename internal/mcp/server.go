// Package mcp provides an MCP (Model Context Protocol) server that lets
// agents run simulations and query batch history.
package mcp

import (
	"context"
	"fmt"
	"log/slog"
	"os"

	sdk "github.com/modelcontextprotocol/go-sdk/mcp"

	"github.com/nvandessel/bankrun/internal/logging"
	"github.com/nvandessel/bankrun/internal/montecarlo"
	"github.com/nvandessel/bankrun/internal/ratelimit"
	"github.com/nvandessel/bankrun/internal/simulation"
	"github.com/nvandessel/bankrun/internal/store"
)

// Server wraps the MCP SDK server and provides the bankrun tools.
type Server struct {
	server  *sdk.Server
	store   store.ResultStore
	harness *montecarlo.Harness

	defaults simulation.Params
	batch    montecarlo.Options

	toolLimiters ratelimit.ToolLimiters
	auditLogger  *AuditLogger
	logger       *slog.Logger
}

// Config holds server configuration.
type Config struct {
	Name    string // Server name (e.g., "bankrun")
	Version string // Server version

	// Defaults fill any parameter a tool call leaves out.
	Defaults simulation.Params
	Batch    montecarlo.Options

	// Store keeps batch reports. The server takes ownership and closes it.
	Store store.ResultStore

	// AuditDir receives audit.jsonl. Empty disables auditing.
	AuditDir string

	Logger *slog.Logger
}

// NewServer creates a new MCP server with the bankrun tools.
func NewServer(cfg *Config) (*Server, error) {
	if cfg.Store == nil {
		return nil, fmt.Errorf("mcp server needs a result store")
	}
	if err := cfg.Defaults.Validate(); err != nil {
		return nil, fmt.Errorf("default parameters: %w", err)
	}
	logger := cfg.Logger
	if logger == nil {
		logger = logging.Discard()
	}

	mcpServer := sdk.NewServer(&sdk.Implementation{
		Name:    cfg.Name,
		Version: cfg.Version,
	}, &sdk.ServerOptions{
		InitializedHandler: func(ctx context.Context, req *sdk.InitializedRequest) {
			logger.Debug("mcp client initialized")
		},
	})

	s := &Server{
		server:       mcpServer,
		store:        cfg.Store,
		harness:      montecarlo.New(),
		defaults:     cfg.Defaults,
		batch:        cfg.Batch,
		toolLimiters: ratelimit.NewToolLimiters(),
		auditLogger:  NewAuditLogger(cfg.AuditDir),
		logger:       logger,
	}
	s.harness.SetLogger(logger, nil)

	if err := s.registerTools(); err != nil {
		s.Close()
		return nil, fmt.Errorf("failed to register tools: %w", err)
	}
	if err := s.registerResources(); err != nil {
		s.Close()
		return nil, fmt.Errorf("failed to register resources: %w", err)
	}

	return s, nil
}

// Run starts the MCP server over stdio transport.
// This blocks until the client disconnects or the context is cancelled.
func (s *Server) Run(ctx context.Context) error {
	ctx, cancel := context.WithCancel(ctx)
	defer cancel()

	sigChan := make(chan os.Signal, 1)
	notifySignals(sigChan)
	go func() {
		select {
		case <-sigChan:
			cancel()
		case <-ctx.Done():
		}
	}()

	err := s.server.Run(ctx, &sdk.StdioTransport{})
	if cerr := s.Close(); err == nil {
		err = cerr
	}
	return err
}

// Close closes the store and the audit log. Safe to call more than once.
func (s *Server) Close() error {
	var firstErr error
	if s.store != nil {
		firstErr = s.store.Close()
		s.store = nil
	}
	if err := s.auditLogger.Close(); err != nil && firstErr == nil {
		firstErr = err
	}
	return firstErr
}
