package mcp

import (
	"context"
	"errors"
	"fmt"
	"log"
	"os"
	"path/filepath"
	"sync"
	"time"

	"github.com/mark3labs/mcp-go/server"

	"github.com/dshills/toolsearch-mcp/internal/config"
	"github.com/dshills/toolsearch-mcp/internal/embedder"
	"github.com/dshills/toolsearch-mcp/internal/indexer"
	"github.com/dshills/toolsearch-mcp/internal/scope"
	"github.com/dshills/toolsearch-mcp/internal/searcher"
	"github.com/dshills/toolsearch-mcp/internal/storage"
	"github.com/dshills/toolsearch-mcp/pkg/types"
)

const (
	// ServerName is the MCP server name
	ServerName = "toolsearch-mcp"
	// ServerVersion is the current server version
	ServerVersion = "1.0.0"

	// recentQueries is how many query log entries get_status reports
	recentQueries = 5
)

// ErrUnknownScope is returned for a scope other than project or user
var ErrUnknownScope = errors.New("unknown scope")

// Options wires a Server from already constructed dependencies. Storage
// and Provider may be nil.
type Options struct {
	Config   *config.Config
	Storage  storage.Storage
	Provider embedder.Provider
}

// Server wraps the MCP server with application dependencies
type Server struct {
	mcp      *server.MCPServer
	cfg      *config.Config
	storage  storage.Storage
	provider embedder.Provider
	indexer  *indexer.Indexer
	searcher *searcher.Searcher
	loader   *scope.Loader

	mu       sync.RWMutex
	snapshot *scope.Snapshot

	closeOnce sync.Once
	closeErr  error
}

// NewServer opens the store and embedding provider described by cfg and
// loads both scopes
func NewServer(ctx context.Context, cfg *config.Config) (*Server, error) {
	store, err := OpenStorage(cfg)
	if err != nil {
		return nil, err
	}

	provider, err := OpenProvider(cfg, embedder.NewRegistry())
	if err != nil {
		if store != nil {
			_ = store.Close()
		}
		return nil, err
	}

	s, err := New(ctx, Options{Config: cfg, Storage: store, Provider: provider})
	if err != nil {
		if store != nil {
			_ = store.Close()
		}
		return nil, err
	}
	return s, nil
}

// OpenStorage opens the SQLite store, or returns nil when no path is configured
func OpenStorage(cfg *config.Config) (storage.Storage, error) {
	dbPath := cfg.Storage.Path
	if dbPath == "" {
		return nil, nil
	}

	if dbPath != ":memory:" {
		if err := os.MkdirAll(filepath.Dir(dbPath), 0o755); err != nil {
			return nil, fmt.Errorf("failed to create database directory: %w", err)
		}
	}

	store, err := storage.NewSQLiteStorage(dbPath)
	if err != nil {
		return nil, fmt.Errorf("failed to initialize storage: %w", err)
	}
	return store, nil
}

// OpenProvider creates the configured embedding provider, or returns nil
// when embeddings are disabled
func OpenProvider(cfg *config.Config, registry *embedder.Registry) (embedder.Provider, error) {
	if !cfg.EmbeddingsEnabled() {
		return nil, nil
	}

	provider, err := registry.New(cfg.EmbedderConfig())
	if err != nil {
		return nil, fmt.Errorf("failed to initialize embedder: %w", err)
	}
	return provider, nil
}

// New creates a Server from opts and loads both scopes. The Server owns
// the storage and provider from then on.
func New(ctx context.Context, opts Options) (*Server, error) {
	cfg := opts.Config
	if cfg == nil {
		cfg = config.Default()
	}

	s := &Server{
		mcp:      server.NewMCPServer(ServerName, ServerVersion),
		cfg:      cfg,
		storage:  opts.Storage,
		provider: opts.Provider,
		indexer:  indexer.New(opts.Provider, cfg.IndexerConfig()),
		searcher: searcher.New(cfg.SearcherOptions(opts.Provider)),
		loader: &scope.Loader{
			Store:       opts.Storage,
			ProjectPath: cfg.Index.ProjectPath,
			UserPath:    cfg.Index.UserPath,
		},
	}

	if err := s.Reload(ctx); err != nil {
		_ = s.searcher.Close(ctx)
		return nil, err
	}

	s.registerTools()
	return s, nil
}

// Serve starts the MCP server on stdio and blocks until shutdown
func (s *Server) Serve(ctx context.Context) error {
	defer func() { _ = s.Close(context.Background()) }()

	log.Printf("Serving %s %s on stdio (%d tools loaded)", ServerName, ServerVersion, s.Collection().Len())
	return server.ServeStdio(s.mcp)
}

// Close disposes the strategies and closes the store. The searcher owns
// the provider and disposes it with its semantic strategy.
func (s *Server) Close(ctx context.Context) error {
	s.closeOnce.Do(func() {
		var errs []error
		if err := s.searcher.Close(ctx); err != nil {
			errs = append(errs, err)
		}
		if s.storage != nil {
			if err := s.storage.Close(); err != nil {
				errs = append(errs, err)
			}
		}
		s.closeErr = errors.Join(errs...)
	})
	return s.closeErr
}

// Reload reads both scopes again and swaps in the merged collection
func (s *Server) Reload(ctx context.Context) error {
	snap, err := s.loader.Load(ctx)
	if err != nil {
		return err
	}

	s.mu.Lock()
	s.snapshot = snap
	s.mu.Unlock()

	s.searcher.InvalidateCache()
	return nil
}

// Snapshot returns the currently loaded scopes
func (s *Server) Snapshot() *scope.Snapshot {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.snapshot
}

// Collection returns the collection searches currently run against
func (s *Server) Collection() *types.Collection {
	if snap := s.Snapshot(); snap != nil {
		return snap.Collection
	}
	return nil
}

// registerTools registers all MCP tools
func (s *Server) registerTools() {
	s.mcp.AddTool(searchToolsTool(), s.handleSearchTools)
	s.mcp.AddTool(getStatusTool(), s.handleGetStatus)
	s.mcp.AddTool(indexToolsTool(), s.handleIndexTools)
}

// Search runs req against the loaded collection, filling unset fields from
// the configured defaults, and records the outcome in the query log
func (s *Server) Search(ctx context.Context, req searcher.Request) (*searcher.Response, error) {
	return s.search(ctx, req, s.Collection())
}

// search runs req against c. Callers that resolve results back to tools
// pass the same collection they later look hits up in.
func (s *Server) search(ctx context.Context, req searcher.Request, c *types.Collection) (*searcher.Response, error) {
	if req.Mode == "" {
		req.Mode = searcher.Mode(s.cfg.Search.Mode)
	}
	if req.TopK == 0 {
		req.TopK = s.cfg.Search.TopK
	}

	resp, err := s.searcher.Search(ctx, req, c)
	s.recordQuery(ctx, req, resp, err)
	return resp, err
}

func (s *Server) recordQuery(ctx context.Context, req searcher.Request, resp *searcher.Response, searchErr error) {
	if s.storage == nil {
		return
	}

	record := &storage.QueryRecord{
		Query:     req.Query,
		Mode:      string(req.Mode),
		TopK:      req.TopK,
		Threshold: req.Threshold,
	}
	if resp != nil {
		record.Mode = string(resp.Mode)
		record.ResultCount = len(resp.Results)
		record.Duration = resp.Duration
		record.CacheHit = resp.CacheHit
	}
	if searchErr != nil {
		record.Error = searchErr.Error()
	}

	// The query log must not fail the search it describes
	if err := s.storage.RecordQuery(context.WithoutCancel(ctx), record); err != nil {
		log.Printf("Failed to record query: %v", err)
	}
}

// IndexOptions controls where IndexCatalog persists the built index
type IndexOptions struct {
	Scope     string
	OutPath   string // Overrides the configured index path of Scope
	SkipFile  bool
	SkipStore bool
}

// IndexResult describes one IndexCatalog call
type IndexResult struct {
	Scope   string
	Path    string // Empty when no file was written
	Stored  bool
	Index   *types.Index
	Stats   *indexer.Statistics
	Elapsed time.Duration
}

// IndexCatalog builds an index for one scope from a catalog file, writes it
// to the scope's index file and the store, and reloads the collection
func (s *Server) IndexCatalog(ctx context.Context, catalogPath string, opts IndexOptions) (*IndexResult, error) {
	startTime := time.Now()

	if opts.Scope == "" {
		opts.Scope = scope.Project
	}
	if opts.Scope != scope.Project && opts.Scope != scope.User {
		return nil, fmt.Errorf("%w: %q", ErrUnknownScope, opts.Scope)
	}

	path := opts.OutPath
	if path == "" && !opts.SkipFile {
		var err error
		if path, err = s.cfg.ScopePath(opts.Scope); err != nil {
			return nil, err
		}
	}
	servers, err := indexer.LoadCatalog(catalogPath)
	if err != nil {
		return nil, err
	}

	index, stats, err := s.indexer.Build(ctx, servers)
	if err != nil {
		return nil, err
	}

	result := &IndexResult{Scope: opts.Scope, Index: index, Stats: stats}

	if !opts.SkipFile {
		if err := indexer.WriteFile(path, index); err != nil {
			return nil, fmt.Errorf("failed to write index: %w", err)
		}
		result.Path = path
	}

	if s.storage != nil && !opts.SkipStore {
		if err := s.storage.SaveIndex(ctx, opts.Scope, index); err != nil {
			return nil, fmt.Errorf("failed to save index: %w", err)
		}
		result.Stored = true
	}

	log.Printf("Indexed %s scope: %d tools from %d servers, %d skipped, embeddings=%t in %v",
		opts.Scope, stats.ToolsIndexed, stats.Servers, stats.ToolsSkipped, index.HasEmbeddings, stats.Duration)

	if err := s.Reload(ctx); err != nil {
		return nil, fmt.Errorf("index saved but reload failed: %w", err)
	}

	result.Elapsed = time.Since(startTime)
	return result, nil
}
