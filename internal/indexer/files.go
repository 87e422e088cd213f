package indexer

import (
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"

	"github.com/Masterminds/semver/v3"
	orderedmap "github.com/wk8/go-ordered-map/v2"

	"github.com/dshills/toolsearch-mcp/pkg/types"
)

// File errors
var (
	ErrIncompatibleVersion = errors.New("incompatible index version")
	ErrInvalidCatalog      = errors.New("invalid tool catalog")
)

// CheckVersion reports whether an index file written with version v can be
// read by this build. Any version with the same major number is accepted.
func CheckVersion(v string) error {
	version, err := semver.NewVersion(v)
	if err != nil {
		return fmt.Errorf("%w: %q: %v", ErrIncompatibleVersion, v, err)
	}

	constraint, err := semver.NewConstraint("^" + types.IndexVersion)
	if err != nil {
		return fmt.Errorf("invalid supported version constraint: %w", err)
	}

	if !constraint.Check(version) {
		return fmt.Errorf("%w: file has %s, supported %s", ErrIncompatibleVersion, v, constraint)
	}
	return nil
}

// LoadFile reads and validates an index file. A missing file yields an error
// satisfying errors.Is(err, os.ErrNotExist).
func LoadFile(path string) (*types.Index, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read index: %w", err)
	}

	var index types.Index
	if err := json.Unmarshal(data, &index); err != nil {
		return nil, fmt.Errorf("parse index %s: %w", path, err)
	}

	if err := CheckVersion(index.Version); err != nil {
		return nil, fmt.Errorf("%s: %w", path, err)
	}
	if err := index.Validate(); err != nil {
		return nil, fmt.Errorf("%s: %w", path, err)
	}

	if index.Tools == nil {
		index.Tools = make([]types.IndexedTool, 0)
	}
	if index.BM25Stats.DocumentFrequencies == nil {
		index.BM25Stats.DocumentFrequencies = make(map[string]int)
	}

	return &index, nil
}

// WriteFile writes index as indented JSON. The file is replaced atomically
// so readers never observe a partial index.
func WriteFile(path string, index *types.Index) error {
	if index == nil {
		return errors.New("nil index")
	}
	if err := index.Validate(); err != nil {
		return err
	}

	data, err := json.MarshalIndent(index, "", "  ")
	if err != nil {
		return fmt.Errorf("marshal index: %w", err)
	}

	dir := filepath.Dir(path)
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return fmt.Errorf("create index directory: %w", err)
	}

	tmp, err := os.CreateTemp(dir, ".index-*.json")
	if err != nil {
		return fmt.Errorf("create temp file: %w", err)
	}
	tmpName := tmp.Name()
	defer func() {
		_ = os.Remove(tmpName)
	}()

	if _, err := tmp.Write(append(data, '\n')); err != nil {
		_ = tmp.Close()
		return fmt.Errorf("write index: %w", err)
	}
	if err := tmp.Close(); err != nil {
		return fmt.Errorf("close index: %w", err)
	}

	if err := os.Rename(tmpName, path); err != nil {
		return fmt.Errorf("replace index: %w", err)
	}
	return nil
}

// catalogFile is the raw tool definition file:
//
//	{"servers": {"files": {"tools": [{"name": "read_file", ...}]}}}
//
// Server order in the file is preserved.
type catalogFile struct {
	Servers *orderedmap.OrderedMap[string, catalogServer] `json:"servers"`
}

type catalogServer struct {
	Tools []types.Tool `json:"tools"`
}

// ParseCatalog decodes a tool catalog
func ParseCatalog(data []byte) ([]ServerTools, error) {
	var catalog catalogFile
	if err := json.Unmarshal(data, &catalog); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrInvalidCatalog, err)
	}
	if catalog.Servers == nil {
		return nil, fmt.Errorf("%w: missing servers object", ErrInvalidCatalog)
	}

	servers := make([]ServerTools, 0, catalog.Servers.Len())
	for pair := catalog.Servers.Oldest(); pair != nil; pair = pair.Next() {
		if pair.Key == "" {
			return nil, fmt.Errorf("%w: empty server name", ErrInvalidCatalog)
		}
		servers = append(servers, ServerTools{
			Server: pair.Key,
			Tools:  pair.Value.Tools,
		})
	}
	return servers, nil
}

// LoadCatalog reads a tool catalog file
func LoadCatalog(path string) ([]ServerTools, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read catalog: %w", err)
	}

	servers, err := ParseCatalog(data)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", path, err)
	}
	return servers, nil
}
