package mcp

import (
	"context"
	"time"

	"github.com/dshills/toolsearch-mcp/internal/scope"
	"github.com/dshills/toolsearch-mcp/pkg/types"
)

// StatusReport is the get_status payload
type StatusReport struct {
	Scopes     map[string]ScopeStatus `json:"scopes"`
	Collection CollectionStatus       `json:"collection"`
	Provider   *ProviderStatus        `json:"provider"`
	Modes      []string               `json:"modes"`
	Defaults   SearchDefaults         `json:"defaults"`
	Store      *StoreStatus           `json:"store,omitempty"`
	Indexing   bool                   `json:"indexing"`
	LoadedAt   time.Time              `json:"loaded_at"`
}

// ScopeStatus describes one loaded scope
type ScopeStatus struct {
	Source              string    `json:"source"`
	Path                string    `json:"path,omitempty"`
	Tools               int       `json:"tools"`
	HasEmbeddings       bool      `json:"has_embeddings"`
	EmbeddingProvider   string    `json:"embedding_provider,omitempty"`
	EmbeddingDimensions int       `json:"embedding_dimensions,omitempty"`
	Version             string    `json:"version,omitempty"`
	CreatedAt           time.Time `json:"created_at,omitempty"`
}

// CollectionStatus describes the merged collection
type CollectionStatus struct {
	Tools               int  `json:"tools"`
	Servers             int  `json:"servers"`
	HasEmbeddings       bool `json:"has_embeddings"`
	EmbeddingDimensions int  `json:"embedding_dimensions"`
}

// ProviderStatus describes the configured embedding provider
type ProviderStatus struct {
	Name       string `json:"name"`
	Dimensions int    `json:"dimensions"`
}

// SearchDefaults are applied to searches that leave fields unset
type SearchDefaults struct {
	Mode      string  `json:"mode"`
	TopK      int     `json:"top_k"`
	Threshold float64 `json:"threshold"`
}

// StoreStatus summarizes the SQLite store and its query log
type StoreStatus struct {
	SchemaVersion string         `json:"schema_version"`
	SizeMB        float64        `json:"size_mb"`
	StoredScopes  []string       `json:"stored_scopes"`
	Queries       int            `json:"queries"`
	Failures      int            `json:"failures"`
	CacheHits     int            `json:"cache_hits"`
	ByMode        map[string]int `json:"by_mode"`
	AvgDurationMS float64        `json:"avg_duration_ms"`
	Recent        []RecentQuery  `json:"recent"`
}

// RecentQuery is one query log entry
type RecentQuery struct {
	Query       string    `json:"query"`
	Mode        string    `json:"mode"`
	ResultCount int       `json:"result_count"`
	Error       string    `json:"error,omitempty"`
	At          time.Time `json:"at"`
}

// Status reports what is loaded and, when a store is configured, the query
// log statistics
func (s *Server) Status(ctx context.Context) (*StatusReport, error) {
	snap := s.Snapshot()

	report := &StatusReport{
		Scopes: map[string]ScopeStatus{
			scope.Project: scopeStatus(snap.Project, snap.ProjectSource, s.cfg.Index.ProjectPath),
			scope.User:    scopeStatus(snap.User, snap.UserSource, s.cfg.Index.UserPath),
		},
		Collection: collectionStatus(snap.Collection),
		Defaults: SearchDefaults{
			Mode:      s.cfg.Search.Mode,
			TopK:      s.cfg.Search.TopK,
			Threshold: s.cfg.Search.Threshold,
		},
		Indexing: s.indexer.Building(),
		LoadedAt: snap.LoadedAt,
	}

	for _, mode := range s.searcher.Modes() {
		report.Modes = append(report.Modes, string(mode))
	}

	if s.provider != nil {
		report.Provider = &ProviderStatus{
			Name:       s.provider.Name(),
			Dimensions: s.provider.Dimensions(),
		}
	}

	if s.storage != nil {
		store, err := s.storeStatus(ctx)
		if err != nil {
			return nil, err
		}
		report.Store = store
	}

	return report, nil
}

func (s *Server) storeStatus(ctx context.Context) (*StoreStatus, error) {
	status, err := s.storage.GetStatus(ctx)
	if err != nil {
		return nil, err
	}
	queries, err := s.storage.QueryStats(ctx, recentQueries)
	if err != nil {
		return nil, err
	}

	out := &StoreStatus{
		SchemaVersion: status.SchemaVersion,
		SizeMB:        status.SizeMB,
		StoredScopes:  make([]string, 0, len(status.Scopes)),
		Queries:       queries.TotalQueries,
		Failures:      queries.Failures,
		CacheHits:     queries.CacheHits,
		ByMode:        queries.ByMode,
		AvgDurationMS: float64(queries.AvgDuration.Microseconds()) / 1000,
		Recent:        make([]RecentQuery, 0, len(queries.Recent)),
	}
	for _, info := range status.Scopes {
		out.StoredScopes = append(out.StoredScopes, info.Scope)
	}
	for _, q := range queries.Recent {
		out.Recent = append(out.Recent, RecentQuery{
			Query:       q.Query,
			Mode:        q.Mode,
			ResultCount: q.ResultCount,
			Error:       q.Error,
			At:          q.CreatedAt,
		})
	}
	return out, nil
}

func scopeStatus(index *types.Index, source, path string) ScopeStatus {
	st := ScopeStatus{Source: source}
	if source == scope.SourceFile {
		st.Path = path
	}
	if index == nil {
		return st
	}
	st.Tools = len(index.Tools)
	st.HasEmbeddings = index.HasEmbeddings
	st.EmbeddingProvider = index.EmbeddingProvider
	st.EmbeddingDimensions = index.EmbeddingDimensions
	st.Version = index.Version
	st.CreatedAt = index.CreatedAt
	return st
}

func collectionStatus(c *types.Collection) CollectionStatus {
	if c == nil {
		return CollectionStatus{}
	}
	servers := make(map[string]struct{})
	for i := range c.Tools {
		servers[c.Tools[i].ServerName] = struct{}{}
	}
	return CollectionStatus{
		Tools:               len(c.Tools),
		Servers:             len(servers),
		HasEmbeddings:       c.HasEmbeddings,
		EmbeddingDimensions: c.EmbeddingDimensions,
	}
}
