package cli

import (
	"context"
	"fmt"
	"log"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"
)

// NewServeCmd creates the 'serve' command for running the MCP server
func NewServeCmd(globals *GlobalOptions) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Run the MCP server (stdio transport)",
		Long: `Start the toolsearch MCP server using stdio transport.

The server exposes three tools to AI clients:
  • search_tools - Rank indexed tools for a query
  • get_status   - Report loaded indexes and query statistics
  • index_tools  - Rebuild a scope's index from a catalog file`,
		Example: `  # Run directly
  toolsearch serve

  # Use a specific config file
  toolsearch serve --config ./toolsearch.toml`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runServe(cmd.Context(), globals)
		},
	}

	return cmd
}

// runServe starts the MCP server and shuts it down on SIGINT/SIGTERM or
// when stdin closes
func runServe(ctx context.Context, globals *GlobalOptions) error {
	if ctx == nil {
		ctx = context.Background()
	}

	srv, cfg, err := openServer(ctx, globals)
	if err != nil {
		return err
	}
	if cfg.Path() != "" {
		log.Printf("Loaded config from %s", cfg.Path())
	}

	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, os.Interrupt, syscall.SIGTERM)
	defer signal.Stop(sigChan)

	errChan := make(chan error, 1)
	go func() {
		log.Println("MCP server ready, listening on stdio...")
		errChan <- srv.Serve(ctx)
	}()

	select {
	case sig := <-sigChan:
		log.Printf("Received signal %v, shutting down gracefully...", sig)
		if err := srv.Close(context.Background()); err != nil {
			log.Printf("Error during shutdown: %v", err)
			return err
		}
		log.Println("Server stopped")
		return nil

	case err := <-errChan:
		if err != nil {
			return fmt.Errorf("server error: %w", err)
		}
		log.Println("Server stopped")
		return nil
	}
}
