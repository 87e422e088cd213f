// Package cli implements the toolsearch command line: serve, search, index
// and status.
package cli

import (
	"context"
	"fmt"

	"github.com/spf13/cobra"

	"github.com/dshills/toolsearch-mcp/internal/config"
	"github.com/dshills/toolsearch-mcp/internal/mcp"
)

// GlobalOptions holds flags shared by every command
type GlobalOptions struct {
	ConfigPath string
}

// NewRootCmd creates the toolsearch root command with all subcommands
func NewRootCmd(version string) *cobra.Command {
	globals := &GlobalOptions{}

	rootCmd := &cobra.Command{
		Use:   "toolsearch",
		Short: "Search the tools of many MCP servers from one endpoint",
		Long: `toolsearch indexes the tool definitions of upstream MCP servers and
ranks them for a query, so an assistant can load only the tools it needs.

Search modes:
  • bm25      - Keyword relevance
  • embedding - Semantic similarity over stored vectors
  • hybrid    - bm25 and embedding fused with reciprocal rank fusion
  • pattern   - Case-insensitive regular expression`,
		Version:       version,
		SilenceUsage:  true,
		SilenceErrors: true,
	}

	rootCmd.PersistentFlags().StringVarP(&globals.ConfigPath, "config", "c", "",
		"Config file (default ~/.toolsearch/config.toml, or $"+config.EnvConfigPath+")")

	rootCmd.AddCommand(NewServeCmd(globals))
	rootCmd.AddCommand(NewSearchCmd(globals))
	rootCmd.AddCommand(NewIndexCmd(globals))
	rootCmd.AddCommand(NewStatusCmd(globals))

	return rootCmd
}

// openServer loads the configuration and wires a server from it
func openServer(ctx context.Context, globals *GlobalOptions) (*mcp.Server, *config.Config, error) {
	cfg, err := config.Load(globals.ConfigPath)
	if err != nil {
		return nil, nil, fmt.Errorf("failed to load config: %w", err)
	}

	srv, err := mcp.NewServer(ctx, cfg)
	if err != nil {
		return nil, nil, err
	}
	return srv, cfg, nil
}
