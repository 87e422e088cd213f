// Command toolsearch serves and queries a search index over the tools of
// many MCP servers.
package main

import (
	"fmt"
	"log"
	"os"

	"github.com/dshills/toolsearch-mcp/internal/cli"
	"github.com/dshills/toolsearch-mcp/internal/storage"
)

var (
	version   = "dev"
	buildTime = "unknown"
)

func main() {
	// stdout is reserved for the MCP protocol
	log.SetOutput(os.Stderr)

	rootCmd := cli.NewRootCmd(version)
	rootCmd.SetVersionTemplate(fmt.Sprintf(
		"toolsearch {{.Version}}\nBuild Time: %s\nBuild Mode: %s\nSQLite Driver: %s\n",
		buildTime, storage.BuildMode, storage.DriverName))

	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
}
