package storage

import (
	"context"
	"time"

	"github.com/dshills/toolsearch-mcp/pkg/types"
)

// Storage defines the interface for persisting tool indexes and the query log
type Storage interface {
	// Index operations
	SaveIndex(ctx context.Context, scope string, index *types.Index) error
	LoadIndex(ctx context.Context, scope string) (*types.Index, error)
	DeleteIndex(ctx context.Context, scope string) error
	ListScopes(ctx context.Context) ([]*ScopeInfo, error)

	// Query log operations
	RecordQuery(ctx context.Context, record *QueryRecord) error
	QueryStats(ctx context.Context, recent int) (*QueryStats, error)

	// Status operations
	GetStatus(ctx context.Context) (*Status, error)

	// Database operations
	Close() error
	BeginTx(ctx context.Context) (Tx, error)
}

// Tx represents a database transaction
type Tx interface {
	Commit() error
	Rollback() error
	Storage // Embed Storage interface for transaction operations
}

// ScopeInfo summarizes one stored index
type ScopeInfo struct {
	Scope               string
	Version             string
	ToolCount           int
	HasEmbeddings       bool
	EmbeddingProvider   string
	EmbeddingDimensions int
	CreatedAt           time.Time
	UpdatedAt           time.Time
}

// QueryRecord is one entry of the query log
type QueryRecord struct {
	ID          int64
	Query       string
	Mode        string
	TopK        int
	Threshold   float64
	ResultCount int
	Duration    time.Duration
	CacheHit    bool
	Error       string // Empty for successful searches
	CreatedAt   time.Time
}

// QueryStats aggregates the query log
type QueryStats struct {
	TotalQueries int
	Failures     int
	CacheHits    int
	ByMode       map[string]int
	AvgDuration  time.Duration
	Recent       []*QueryRecord // Newest first
}

// Status contains statistics about the database
type Status struct {
	Scopes          []*ScopeInfo
	ToolsCount      int
	EmbeddingsCount int
	QueriesCount    int
	SizeMB          float64
	SchemaVersion   string
	Health          HealthStatus
}

// HealthStatus represents the health of the store
type HealthStatus struct {
	DatabaseAccessible  bool
	EmbeddingsAvailable bool
	VectorExtension     bool
}
