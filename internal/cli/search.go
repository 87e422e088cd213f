package cli

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"strings"
	"text/tabwriter"

	"github.com/spf13/cobra"

	"github.com/dshills/toolsearch-mcp/internal/mcp"
	"github.com/dshills/toolsearch-mcp/internal/searcher"
)

type searchOptions struct {
	mode       string
	topK       int
	threshold  float64
	jsonOutput bool
}

// NewSearchCmd creates the 'search' command
func NewSearchCmd(globals *GlobalOptions) *cobra.Command {
	opts := &searchOptions{}

	cmd := &cobra.Command{
		Use:   "search <query>",
		Short: "Rank indexed tools for a query",
		Long: `Search the merged project and user indexes and print the best matching tools.

Unset flags fall back to the [search] section of the config file.`,
		Example: `  toolsearch search "read a file"
  toolsearch search --mode pattern "^git_"
  toolsearch search --mode hybrid --top-k 3 --json "open a pull request"`,
		Args: cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return runSearch(cmd.Context(), cmd.OutOrStdout(), globals, args[0], opts)
		},
	}

	cmd.Flags().StringVarP(&opts.mode, "mode", "m", "", "Search mode: bm25, embedding, hybrid or pattern")
	cmd.Flags().IntVarP(&opts.topK, "top-k", "k", 0, "Maximum number of results")
	cmd.Flags().Float64VarP(&opts.threshold, "threshold", "t", 0, "Minimum normalized score (0-1)")
	cmd.Flags().BoolVarP(&opts.jsonOutput, "json", "j", false, "Output as JSON")

	return cmd
}

func runSearch(ctx context.Context, out io.Writer, globals *GlobalOptions, query string, opts *searchOptions) error {
	if ctx == nil {
		ctx = context.Background()
	}

	srv, cfg, err := openServer(ctx, globals)
	if err != nil {
		return err
	}
	defer func() { _ = srv.Close(context.Background()) }()

	threshold := opts.threshold
	if threshold == 0 {
		threshold = cfg.Search.Threshold
	}

	resp, err := srv.Search(ctx, searcher.Request{
		Query:     query,
		Mode:      searcher.Mode(opts.mode),
		TopK:      opts.topK,
		Threshold: threshold,
	})
	if err != nil {
		return fmt.Errorf("search failed: %w", err)
	}

	hits := toolHits(srv, resp)

	if opts.jsonOutput {
		enc := json.NewEncoder(out)
		enc.SetIndent("", "  ")
		return enc.Encode(map[string]interface{}{
			"query":   query,
			"mode":    string(resp.Mode),
			"results": hits,
			"count":   len(hits),
		})
	}

	if len(hits) == 0 {
		fmt.Fprintf(out, "No tools matched %q (%s)\n", query, resp.Mode)
		return nil
	}

	w := tabwriter.NewWriter(out, 0, 0, 2, ' ', 0)
	fmt.Fprintln(w, "SCORE\tSERVER\tTOOL\tDESCRIPTION")
	for _, hit := range hits {
		fmt.Fprintf(w, "%.3f\t%s\t%s\t%s\n", hit.Score, hit.Server, hit.Name, truncate(hit.Description, 60))
	}
	if err := w.Flush(); err != nil {
		return err
	}
	fmt.Fprintf(out, "\n%d result(s), mode %s, %v\n", len(hits), resp.Mode, resp.Duration)
	return nil
}

func toolHits(srv *mcp.Server, resp *searcher.Response) []mcp.ToolHit {
	collection := srv.Collection()
	hits := make([]mcp.ToolHit, 0, len(resp.Results))
	for _, r := range resp.Results {
		hit := mcp.ToolHit{Name: r.Tool.Name, Server: r.Tool.ServerName, Score: r.Score}
		if tool := collection.Lookup(r.Tool); tool != nil {
			hit.Title = tool.Tool.Title
			hit.Description = tool.Tool.Description
		}
		hits = append(hits, hit)
	}
	return hits
}

// truncate shortens s to max runes on a single line
func truncate(s string, max int) string {
	s = strings.Join(strings.Fields(s), " ")
	runes := []rune(s)
	if len(runes) <= max {
		return s
	}
	return string(runes[:max-3]) + "..."
}
