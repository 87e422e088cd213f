package storage

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/dshills/toolsearch-mcp/pkg/types"
)

var (
	// ErrNotFound is returned when a requested entity doesn't exist
	ErrNotFound = errors.New("not found")
	// ErrInvalidScope is returned for an empty scope name
	ErrInvalidScope = errors.New("invalid scope")
)

// SQLiteStorage implements the Storage interface using SQLite
type SQLiteStorage struct {
	db *sql.DB
}

// openDatabase opens a SQLite database with appropriate settings
func openDatabase(dbPath string) (*sql.DB, error) {
	db, err := sql.Open(DriverName, dbPath)
	if err != nil {
		return nil, err
	}

	// Enable WAL mode for better concurrency
	if _, err := db.Exec("PRAGMA journal_mode=WAL"); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("failed to enable WAL mode: %w", err)
	}

	// Set connection pool settings
	db.SetMaxOpenConns(1) // SQLite benefits from single writer
	db.SetMaxIdleConns(1)
	db.SetConnMaxLifetime(0)

	// Enable foreign keys
	if _, err := db.Exec("PRAGMA foreign_keys=ON"); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("failed to enable foreign keys: %w", err)
	}

	return db, nil
}

// NewSQLiteStorage creates a new SQLite storage instance
func NewSQLiteStorage(dbPath string) (*SQLiteStorage, error) {
	db, err := openDatabase(dbPath)
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}

	// Apply migrations
	if err := ApplyMigrations(context.Background(), db); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("failed to apply migrations: %w", err)
	}

	return &SQLiteStorage{db: db}, nil
}

// Close closes the database connection
func (s *SQLiteStorage) Close() error {
	return s.db.Close()
}

// BeginTx starts a new transaction
func (s *SQLiteStorage) BeginTx(ctx context.Context) (Tx, error) {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return nil, err
	}
	return &sqliteTx{tx: tx, storage: s}, nil
}

// querier is an interface that both *sql.DB and *sql.Tx implement
type querier interface {
	ExecContext(ctx context.Context, query string, args ...interface{}) (sql.Result, error)
	QueryContext(ctx context.Context, query string, args ...interface{}) (*sql.Rows, error)
	QueryRowContext(ctx context.Context, query string, args ...interface{}) *sql.Row
}

// sqliteTx wraps a SQL transaction
type sqliteTx struct {
	tx      *sql.Tx
	storage *SQLiteStorage
}

func (t *sqliteTx) Commit() error {
	return t.tx.Commit()
}

func (t *sqliteTx) Rollback() error {
	return t.tx.Rollback()
}

// querier returns the DB querier
func (s *SQLiteStorage) querier() querier {
	return s.db
}

// Index operations

// SaveIndex replaces the index stored for scope in a single transaction
func (s *SQLiteStorage) SaveIndex(ctx context.Context, scope string, index *types.Index) error {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer func() { _ = tx.Rollback() }()

	if err := s.saveIndexWithQuerier(ctx, tx, scope, index); err != nil {
		return err
	}
	return tx.Commit()
}

// saveIndexWithQuerier is the internal implementation that uses a querier
func (s *SQLiteStorage) saveIndexWithQuerier(ctx context.Context, q querier, scope string, index *types.Index) error {
	if scope == "" {
		return ErrInvalidScope
	}
	if err := index.Validate(); err != nil {
		return fmt.Errorf("refusing to save invalid index: %w", err)
	}

	createdAt, err := s.scopeCreatedAt(ctx, q, scope)
	if err != nil {
		return err
	}

	// Cascades to tools, embeddings and document frequencies
	if _, err := q.ExecContext(ctx, "DELETE FROM indexes WHERE scope = ?", scope); err != nil {
		return fmt.Errorf("failed to clear scope %s: %w", scope, err)
	}

	now := time.Now()
	if createdAt.IsZero() {
		createdAt = now
	}
	_, err = q.ExecContext(ctx, `
		INSERT INTO indexes (scope, version, embedding_provider, embedding_dimensions, has_embeddings,
		                     avg_doc_length, total_documents, built_at, created_at, updated_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
	`, scope, index.Version, index.EmbeddingProvider, index.EmbeddingDimensions, index.HasEmbeddings,
		index.BM25Stats.AvgDocLength, index.BM25Stats.TotalDocuments, index.CreatedAt, createdAt, now)
	if err != nil {
		return fmt.Errorf("failed to save index: %w", err)
	}

	for i := range index.Tools {
		if err := insertTool(ctx, q, scope, i, &index.Tools[i]); err != nil {
			return err
		}
	}

	for term, df := range index.BM25Stats.DocumentFrequencies {
		_, err := q.ExecContext(ctx,
			"INSERT INTO document_frequencies (scope, term, df) VALUES (?, ?, ?)", scope, term, df)
		if err != nil {
			return fmt.Errorf("failed to save document frequency %q: %w", term, err)
		}
	}

	return nil
}

// scopeCreatedAt returns when scope was first saved, zero if never
func (s *SQLiteStorage) scopeCreatedAt(ctx context.Context, q querier, scope string) (time.Time, error) {
	var createdAt time.Time
	err := q.QueryRowContext(ctx, "SELECT created_at FROM indexes WHERE scope = ?", scope).Scan(&createdAt)
	if err == sql.ErrNoRows {
		return time.Time{}, nil
	}
	if err != nil {
		return time.Time{}, err
	}
	return createdAt, nil
}

func insertTool(ctx context.Context, q querier, scope string, position int, tool *types.IndexedTool) error {
	var schema sql.NullString
	if len(tool.Tool.InputSchema) > 0 {
		schema = sql.NullString{String: string(tool.Tool.InputSchema), Valid: true}
	}

	result, err := q.ExecContext(ctx, `
		INSERT INTO tools (scope, position, server_name, name, title, description, input_schema,
		                   searchable_text, tokens)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)
	`, scope, position, tool.ServerName, tool.Tool.Name, tool.Tool.Title, tool.Tool.Description,
		schema, tool.SearchableText, joinTokens(tool.Tokens))
	if err != nil {
		return fmt.Errorf("failed to save tool %s: %w", tool.Tool.Name, err)
	}

	if tool.Embedding == nil {
		return nil
	}

	id, err := result.LastInsertId()
	if err != nil {
		return err
	}
	_, err = q.ExecContext(ctx,
		"INSERT INTO tool_embeddings (tool_id, vector, dimension) VALUES (?, ?, ?)",
		id, serializeVector(tool.Embedding), len(tool.Embedding))
	if err != nil {
		return fmt.Errorf("failed to save embedding for %s: %w", tool.Tool.Name, err)
	}
	return nil
}

func (s *SQLiteStorage) LoadIndex(ctx context.Context, scope string) (*types.Index, error) {
	return s.loadIndexWithQuerier(ctx, s.querier(), scope)
}

// loadIndexWithQuerier is the internal implementation that uses a querier
func (s *SQLiteStorage) loadIndexWithQuerier(ctx context.Context, q querier, scope string) (*types.Index, error) {
	var index types.Index
	var provider sql.NullString
	err := q.QueryRowContext(ctx, `
		SELECT version, embedding_provider, embedding_dimensions, has_embeddings,
		       avg_doc_length, total_documents, built_at
		FROM indexes
		WHERE scope = ?
	`, scope).Scan(
		&index.Version, &provider, &index.EmbeddingDimensions, &index.HasEmbeddings,
		&index.BM25Stats.AvgDocLength, &index.BM25Stats.TotalDocuments, &index.CreatedAt,
	)
	if err == sql.ErrNoRows {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, err
	}
	index.EmbeddingProvider = provider.String

	index.Tools, err = loadTools(ctx, q, scope)
	if err != nil {
		return nil, err
	}

	index.BM25Stats.DocumentFrequencies, err = loadDocumentFrequencies(ctx, q, scope)
	if err != nil {
		return nil, err
	}

	return &index, nil
}

func loadTools(ctx context.Context, q querier, scope string) ([]types.IndexedTool, error) {
	rows, err := q.QueryContext(ctx, `
		SELECT t.server_name, t.name, t.title, t.description, t.input_schema,
		       t.searchable_text, t.tokens, e.vector
		FROM tools t
		LEFT JOIN tool_embeddings e ON e.tool_id = t.id
		WHERE t.scope = ?
		ORDER BY t.position
	`, scope)
	if err != nil {
		return nil, fmt.Errorf("failed to load tools: %w", err)
	}
	defer func() { _ = rows.Close() }()

	tools := make([]types.IndexedTool, 0)
	for rows.Next() {
		var tool types.IndexedTool
		var title, description, schema sql.NullString
		var tokens string
		var vector []byte
		if err := rows.Scan(&tool.ServerName, &tool.Tool.Name, &title, &description, &schema,
			&tool.SearchableText, &tokens, &vector); err != nil {
			return nil, fmt.Errorf("failed to scan tool: %w", err)
		}

		tool.Tool.Title = title.String
		tool.Tool.Description = description.String
		if schema.Valid {
			tool.Tool.InputSchema = json.RawMessage(schema.String)
		}
		tool.Tokens = splitTokens(tokens)
		if vector != nil {
			tool.Embedding, err = deserializeVector(vector)
			if err != nil {
				return nil, fmt.Errorf("tool %s: %w", tool.Tool.Name, err)
			}
		}
		tools = append(tools, tool)
	}
	return tools, rows.Err()
}

func loadDocumentFrequencies(ctx context.Context, q querier, scope string) (map[string]int, error) {
	rows, err := q.QueryContext(ctx, "SELECT term, df FROM document_frequencies WHERE scope = ?", scope)
	if err != nil {
		return nil, fmt.Errorf("failed to load document frequencies: %w", err)
	}
	defer func() { _ = rows.Close() }()

	freqs := make(map[string]int)
	for rows.Next() {
		var term string
		var df int
		if err := rows.Scan(&term, &df); err != nil {
			return nil, err
		}
		freqs[term] = df
	}
	return freqs, rows.Err()
}

func (s *SQLiteStorage) DeleteIndex(ctx context.Context, scope string) error {
	return s.deleteIndexWithQuerier(ctx, s.querier(), scope)
}

func (s *SQLiteStorage) deleteIndexWithQuerier(ctx context.Context, q querier, scope string) error {
	result, err := q.ExecContext(ctx, "DELETE FROM indexes WHERE scope = ?", scope)
	if err != nil {
		return fmt.Errorf("failed to delete index: %w", err)
	}
	n, err := result.RowsAffected()
	if err != nil {
		return err
	}
	if n == 0 {
		return ErrNotFound
	}
	return nil
}

func (s *SQLiteStorage) ListScopes(ctx context.Context) ([]*ScopeInfo, error) {
	return s.listScopesWithQuerier(ctx, s.querier())
}

func (s *SQLiteStorage) listScopesWithQuerier(ctx context.Context, q querier) ([]*ScopeInfo, error) {
	rows, err := q.QueryContext(ctx, `
		SELECT i.scope, i.version, i.embedding_provider, i.embedding_dimensions, i.has_embeddings,
		       i.created_at, i.updated_at, COUNT(t.id)
		FROM indexes i
		LEFT JOIN tools t ON t.scope = i.scope
		GROUP BY i.scope
		ORDER BY i.scope
	`)
	if err != nil {
		return nil, fmt.Errorf("failed to list scopes: %w", err)
	}
	defer func() { _ = rows.Close() }()

	scopes := make([]*ScopeInfo, 0)
	for rows.Next() {
		var info ScopeInfo
		var provider sql.NullString
		if err := rows.Scan(&info.Scope, &info.Version, &provider, &info.EmbeddingDimensions,
			&info.HasEmbeddings, &info.CreatedAt, &info.UpdatedAt, &info.ToolCount); err != nil {
			return nil, err
		}
		info.EmbeddingProvider = provider.String
		scopes = append(scopes, &info)
	}
	return scopes, rows.Err()
}

// Query log operations

func (s *SQLiteStorage) RecordQuery(ctx context.Context, record *QueryRecord) error {
	return s.recordQueryWithQuerier(ctx, s.querier(), record)
}

func (s *SQLiteStorage) recordQueryWithQuerier(ctx context.Context, q querier, record *QueryRecord) error {
	if record.CreatedAt.IsZero() {
		record.CreatedAt = time.Now()
	}

	var errText sql.NullString
	if record.Error != "" {
		errText = sql.NullString{String: record.Error, Valid: true}
	}

	result, err := q.ExecContext(ctx, `
		INSERT INTO search_queries (query_text, mode, top_k, threshold, result_count, duration_us,
		                            cache_hit, error, created_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)
	`, record.Query, record.Mode, record.TopK, record.Threshold, record.ResultCount,
		record.Duration.Microseconds(), record.CacheHit, errText, record.CreatedAt)
	if err != nil {
		return fmt.Errorf("failed to record query: %w", err)
	}

	id, err := result.LastInsertId()
	if err != nil {
		return err
	}
	record.ID = id
	return nil
}

func (s *SQLiteStorage) QueryStats(ctx context.Context, recent int) (*QueryStats, error) {
	return s.queryStatsWithQuerier(ctx, s.querier(), recent)
}

// queryStatsWithQuerier aggregates the log and returns the newest recent entries
func (s *SQLiteStorage) queryStatsWithQuerier(ctx context.Context, q querier, recent int) (*QueryStats, error) {
	stats := &QueryStats{ByMode: make(map[string]int)}

	var avgMicros sql.NullFloat64
	var cacheHits, failures sql.NullInt64
	err := q.QueryRowContext(ctx, `
		SELECT COUNT(*),
		       SUM(CASE WHEN error IS NOT NULL THEN 1 ELSE 0 END),
		       SUM(CASE WHEN cache_hit THEN 1 ELSE 0 END),
		       AVG(duration_us)
		FROM search_queries
	`).Scan(&stats.TotalQueries, &failures, &cacheHits, &avgMicros)
	if err != nil {
		return nil, fmt.Errorf("failed to aggregate queries: %w", err)
	}
	stats.Failures = int(failures.Int64)
	stats.CacheHits = int(cacheHits.Int64)
	stats.AvgDuration = time.Duration(avgMicros.Float64) * time.Microsecond

	rows, err := q.QueryContext(ctx, "SELECT mode, COUNT(*) FROM search_queries GROUP BY mode")
	if err != nil {
		return nil, fmt.Errorf("failed to count modes: %w", err)
	}
	for rows.Next() {
		var mode string
		var count int
		if err := rows.Scan(&mode, &count); err != nil {
			_ = rows.Close()
			return nil, err
		}
		stats.ByMode[mode] = count
	}
	_ = rows.Close()
	if err := rows.Err(); err != nil {
		return nil, err
	}

	if recent <= 0 {
		return stats, nil
	}

	rows, err = q.QueryContext(ctx, `
		SELECT id, query_text, mode, top_k, threshold, result_count, duration_us, cache_hit, error, created_at
		FROM search_queries
		ORDER BY id DESC
		LIMIT ?
	`, recent)
	if err != nil {
		return nil, fmt.Errorf("failed to list recent queries: %w", err)
	}
	defer func() { _ = rows.Close() }()

	for rows.Next() {
		var r QueryRecord
		var micros int64
		var errText sql.NullString
		if err := rows.Scan(&r.ID, &r.Query, &r.Mode, &r.TopK, &r.Threshold, &r.ResultCount,
			&micros, &r.CacheHit, &errText, &r.CreatedAt); err != nil {
			return nil, err
		}
		r.Duration = time.Duration(micros) * time.Microsecond
		r.Error = errText.String
		stats.Recent = append(stats.Recent, &r)
	}
	return stats, rows.Err()
}

// Status operations

func (s *SQLiteStorage) GetStatus(ctx context.Context) (*Status, error) {
	return s.getStatusWithQuerier(ctx, s.querier())
}

func (s *SQLiteStorage) getStatusWithQuerier(ctx context.Context, q querier) (*Status, error) {
	scopes, err := s.listScopesWithQuerier(ctx, q)
	if err != nil {
		return nil, err
	}
	status := &Status{Scopes: scopes}

	if err := q.QueryRowContext(ctx, "SELECT COUNT(*) FROM tools").Scan(&status.ToolsCount); err != nil {
		return nil, err
	}
	if err := q.QueryRowContext(ctx, "SELECT COUNT(*) FROM tool_embeddings").Scan(&status.EmbeddingsCount); err != nil {
		return nil, err
	}
	if err := q.QueryRowContext(ctx, "SELECT COUNT(*) FROM search_queries").Scan(&status.QueriesCount); err != nil {
		return nil, err
	}

	// Calculate database size
	var pageCount, pageSize int
	err = q.QueryRowContext(ctx, "PRAGMA page_count").Scan(&pageCount)
	if err == nil {
		_ = q.QueryRowContext(ctx, "PRAGMA page_size").Scan(&pageSize)
		status.SizeMB = float64(pageCount*pageSize) / (1024 * 1024)
	}

	status.SchemaVersion, err = SchemaVersion(ctx, s.db)
	if err != nil {
		return nil, err
	}

	status.Health = HealthStatus{
		DatabaseAccessible:  true,
		EmbeddingsAvailable: status.EmbeddingsCount > 0,
		VectorExtension:     VectorExtensionAvailable,
	}

	return status, nil
}

// Transaction implementations

func (t *sqliteTx) SaveIndex(ctx context.Context, scope string, index *types.Index) error {
	return t.storage.saveIndexWithQuerier(ctx, t.tx, scope, index)
}

func (t *sqliteTx) LoadIndex(ctx context.Context, scope string) (*types.Index, error) {
	return t.storage.loadIndexWithQuerier(ctx, t.tx, scope)
}

func (t *sqliteTx) DeleteIndex(ctx context.Context, scope string) error {
	return t.storage.deleteIndexWithQuerier(ctx, t.tx, scope)
}

func (t *sqliteTx) ListScopes(ctx context.Context) ([]*ScopeInfo, error) {
	return t.storage.listScopesWithQuerier(ctx, t.tx)
}

func (t *sqliteTx) RecordQuery(ctx context.Context, record *QueryRecord) error {
	return t.storage.recordQueryWithQuerier(ctx, t.tx, record)
}

func (t *sqliteTx) QueryStats(ctx context.Context, recent int) (*QueryStats, error) {
	return t.storage.queryStatsWithQuerier(ctx, t.tx, recent)
}

// GetStatus reads the schema version through the pool, which the open
// transaction holds
func (t *sqliteTx) GetStatus(ctx context.Context) (*Status, error) {
	return nil, errors.New("status not available inside a transaction")
}

func (t *sqliteTx) Close() error {
	// Transactions don't close the underlying connection
	return nil
}

func (t *sqliteTx) BeginTx(ctx context.Context) (Tx, error) {
	// SQLite does not support true nested transactions
	return nil, errors.New("nested transactions not supported")
}
