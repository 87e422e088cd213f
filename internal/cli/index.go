package cli

import (
	"context"
	"encoding/json"
	"fmt"
	"io"

	"github.com/spf13/cobra"

	"github.com/dshills/toolsearch-mcp/internal/mcp"
	"github.com/dshills/toolsearch-mcp/internal/scope"
)

type indexOptions struct {
	catalog    string
	scope      string
	out        string
	noStore    bool
	jsonOutput bool
}

// NewIndexCmd creates the 'index' command
func NewIndexCmd(globals *GlobalOptions) *cobra.Command {
	opts := &indexOptions{}

	cmd := &cobra.Command{
		Use:   "index",
		Short: "Build a scope's index from a tool catalog",
		Long: `Read a catalog of MCP servers and their tools, build a search index and
save it to the scope's index file and the SQLite store.

The catalog is JSON of the form:
  {"servers": {"files": {"tools": [{"name": "read_file", "description": "..."}]}}}`,
		Example: `  toolsearch index --catalog catalog.json
  toolsearch index --catalog catalog.json --scope user
  toolsearch index --catalog catalog.json --out ./tools-index.json --no-store`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runIndex(cmd.Context(), cmd.OutOrStdout(), globals, opts)
		},
	}

	cmd.Flags().StringVar(&opts.catalog, "catalog", "", "Catalog file to index (required)")
	cmd.Flags().StringVarP(&opts.scope, "scope", "s", scope.Project, "Scope to build: project or user")
	cmd.Flags().StringVarP(&opts.out, "out", "o", "", "Index file to write (default: the scope's configured path)")
	cmd.Flags().BoolVar(&opts.noStore, "no-store", false, "Do not save the index to the SQLite store")
	cmd.Flags().BoolVarP(&opts.jsonOutput, "json", "j", false, "Output as JSON")
	_ = cmd.MarkFlagRequired("catalog")

	return cmd
}

func runIndex(ctx context.Context, out io.Writer, globals *GlobalOptions, opts *indexOptions) error {
	if ctx == nil {
		ctx = context.Background()
	}

	srv, _, err := openServer(ctx, globals)
	if err != nil {
		return err
	}
	defer func() { _ = srv.Close(context.Background()) }()

	result, err := srv.IndexCatalog(ctx, opts.catalog, mcp.IndexOptions{
		Scope:     opts.scope,
		OutPath:   opts.out,
		SkipStore: opts.noStore,
	})
	if err != nil {
		return fmt.Errorf("indexing failed: %w", err)
	}

	if opts.jsonOutput {
		enc := json.NewEncoder(out)
		enc.SetIndent("", "  ")
		return enc.Encode(map[string]interface{}{
			"scope":          result.Scope,
			"path":           result.Path,
			"stored":         result.Stored,
			"servers":        result.Stats.Servers,
			"tools_indexed":  result.Stats.ToolsIndexed,
			"tools_skipped":  result.Stats.ToolsSkipped,
			"embedded":       result.Stats.Embedded,
			"has_embeddings": result.Index.HasEmbeddings,
			"duplicates":     result.Stats.Duplicates,
			"errors":         result.Stats.ErrorMessages,
			"duration_ms":    result.Elapsed.Milliseconds(),
		})
	}

	fmt.Fprintf(out, "Indexed %s scope\n", result.Scope)
	fmt.Fprintf(out, "  Servers:    %d\n", result.Stats.Servers)
	fmt.Fprintf(out, "  Tools:      %d indexed, %d skipped\n", result.Stats.ToolsIndexed, result.Stats.ToolsSkipped)
	if result.Index.HasEmbeddings {
		fmt.Fprintf(out, "  Embeddings: %d (%s, %d dims)\n",
			result.Stats.Embedded, result.Index.EmbeddingProvider, result.Index.EmbeddingDimensions)
	} else {
		fmt.Fprintln(out, "  Embeddings: none")
	}
	if result.Path != "" {
		fmt.Fprintf(out, "  File:       %s\n", result.Path)
	}
	if result.Stored {
		fmt.Fprintln(out, "  Store:      saved")
	}
	for _, msg := range result.Stats.ErrorMessages {
		fmt.Fprintf(out, "  warning: %s\n", msg)
	}
	fmt.Fprintf(out, "Done in %v\n", result.Elapsed)
	return nil
}
