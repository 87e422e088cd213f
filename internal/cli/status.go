package cli

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"strings"

	"github.com/spf13/cobra"

	"github.com/dshills/toolsearch-mcp/internal/mcp"
	"github.com/dshills/toolsearch-mcp/internal/scope"
)

// NewStatusCmd creates the 'status' command
func NewStatusCmd(globals *GlobalOptions) *cobra.Command {
	var jsonOutput bool

	cmd := &cobra.Command{
		Use:   "status",
		Short: "Show loaded indexes and query statistics",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runStatus(cmd.Context(), cmd.OutOrStdout(), globals, jsonOutput)
		},
	}

	cmd.Flags().BoolVarP(&jsonOutput, "json", "j", false, "Output as JSON")

	return cmd
}

func runStatus(ctx context.Context, out io.Writer, globals *GlobalOptions, jsonOutput bool) error {
	if ctx == nil {
		ctx = context.Background()
	}

	srv, _, err := openServer(ctx, globals)
	if err != nil {
		return err
	}
	defer func() { _ = srv.Close(context.Background()) }()

	report, err := srv.Status(ctx)
	if err != nil {
		return fmt.Errorf("failed to get status: %w", err)
	}

	if jsonOutput {
		enc := json.NewEncoder(out)
		enc.SetIndent("", "  ")
		return enc.Encode(report)
	}

	printStatus(out, report)
	return nil
}

func printStatus(out io.Writer, report *mcp.StatusReport) {
	fmt.Fprintln(out, "Scopes:")
	for _, name := range []string{scope.Project, scope.User} {
		st := report.Scopes[name]
		line := fmt.Sprintf("  %-8s %-6s %d tools", name, st.Source, st.Tools)
		if st.HasEmbeddings {
			line += fmt.Sprintf(", embeddings %s/%d", st.EmbeddingProvider, st.EmbeddingDimensions)
		}
		if st.Path != "" {
			line += " (" + st.Path + ")"
		}
		fmt.Fprintln(out, line)
	}

	fmt.Fprintf(out, "Collection: %d tools from %d servers, embeddings %t\n",
		report.Collection.Tools, report.Collection.Servers, report.Collection.HasEmbeddings)

	if report.Provider != nil {
		fmt.Fprintf(out, "Provider:   %s (%d dims)\n", report.Provider.Name, report.Provider.Dimensions)
	} else {
		fmt.Fprintln(out, "Provider:   disabled")
	}
	fmt.Fprintf(out, "Modes:      %s\n", strings.Join(report.Modes, ", "))
	fmt.Fprintf(out, "Defaults:   mode=%s top_k=%d threshold=%.2f\n",
		report.Defaults.Mode, report.Defaults.TopK, report.Defaults.Threshold)

	if store := report.Store; store != nil {
		fmt.Fprintf(out, "Store:      schema %s, %.2f MB, scopes [%s]\n",
			store.SchemaVersion, store.SizeMB, strings.Join(store.StoredScopes, ", "))
		fmt.Fprintf(out, "Queries:    %d total, %d failed, %d cache hits, avg %.2f ms\n",
			store.Queries, store.Failures, store.CacheHits, store.AvgDurationMS)
		for _, q := range store.Recent {
			status := fmt.Sprintf("%d results", q.ResultCount)
			if q.Error != "" {
				status = "error: " + q.Error
			}
			fmt.Fprintf(out, "  %s  %-9s %q %s\n", q.At.Format("2006-01-02 15:04:05"), q.Mode, q.Query, status)
		}
	}
}
