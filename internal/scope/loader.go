package scope

import (
	"context"
	"errors"
	"fmt"
	"log"
	"os"
	"time"

	"github.com/dshills/toolsearch-mcp/internal/indexer"
	"github.com/dshills/toolsearch-mcp/internal/storage"
	"github.com/dshills/toolsearch-mcp/pkg/types"
)

// Where a scope's index came from
const (
	SourceFile  = "file"
	SourceStore = "store"
	SourceNone  = "none"
)

// IndexStore is the part of storage.Storage the loader reads from
type IndexStore interface {
	LoadIndex(ctx context.Context, scope string) (*types.Index, error)
}

// Loader reads the project and user indexes. Each scope is read from its
// index file; when the file does not exist the store is consulted.
type Loader struct {
	Store       IndexStore // Optional
	ProjectPath string
	UserPath    string
}

// Snapshot is one load of both scopes and the collection merged from them
type Snapshot struct {
	Project       *types.Index
	User          *types.Index
	ProjectSource string
	UserSource    string
	Collection    *types.Collection
	LoadedAt      time.Time
}

// Load reads both scopes and merges them. A scope that exists nowhere is
// nil in the snapshot and contributes nothing to the collection.
func (l *Loader) Load(ctx context.Context) (*Snapshot, error) {
	project, projectSource, err := l.LoadScope(ctx, Project, l.ProjectPath)
	if err != nil {
		return nil, err
	}

	user, userSource, err := l.LoadScope(ctx, User, l.UserPath)
	if err != nil {
		return nil, err
	}

	return &Snapshot{
		Project:       project,
		User:          user,
		ProjectSource: projectSource,
		UserSource:    userSource,
		Collection:    Merge(project, user),
		LoadedAt:      time.Now(),
	}, nil
}

// LoadScope reads one scope and reports its source. A missing scope returns
// a nil index and SourceNone without error; a corrupt one is an error.
func (l *Loader) LoadScope(ctx context.Context, scope, path string) (*types.Index, string, error) {
	if path != "" {
		index, err := indexer.LoadFile(path)
		switch {
		case err == nil:
			logLoaded(scope, SourceFile, index)
			return index, SourceFile, nil
		case !errors.Is(err, os.ErrNotExist):
			return nil, SourceNone, fmt.Errorf("load %s index: %w", scope, err)
		}
	}

	if l.Store != nil {
		index, err := l.Store.LoadIndex(ctx, scope)
		switch {
		case err == nil:
			logLoaded(scope, SourceStore, index)
			return index, SourceStore, nil
		case !errors.Is(err, storage.ErrNotFound):
			return nil, SourceNone, fmt.Errorf("load %s index from store: %w", scope, err)
		}
	}

	log.Printf("No %s index found, scope is empty", scope)
	return nil, SourceNone, nil
}

func logLoaded(scope, source string, index *types.Index) {
	log.Printf("Loaded %s index from %s: %d tools, embeddings=%t", scope, source, len(index.Tools), index.HasEmbeddings)
}
