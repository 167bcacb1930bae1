package main

import (
	canvassmcp "github.com/hyperengineering/canvass/mcp"
	"github.com/spf13/cobra"
)

var mcpCmd = &cobra.Command{
	Use:   "mcp",
	Short: "Start MCP server for agent integration",
	Long: `Start a Model Context Protocol (MCP) server over stdio so an assistant can
add leads, record check-ins and schedule appointments.

Example client configuration:

  {
    "mcpServers": {
      "canvass": {
        "command": "canvass",
        "args": ["mcp"],
        "env": {
          "CANVASS_PROFILE": "field"
        }
      }
    }
  }

Environment variables:
  CANVASS_PROFILE     Local profile (default: "default")
  CANVASS_DB_PATH     Explicit database path
  CANVASS_REMOTE_URL  Document server URL (optional)
  CANVASS_API_KEY     Document server API key (required with a URL)`,
	RunE: runMCP,
}

func init() {
	rootCmd.AddCommand(mcpCmd)
}

func runMCP(cmd *cobra.Command, args []string) error {
	a, err := openApp(cmd)
	if err != nil {
		return err
	}
	defer func() { _ = a.Close() }()

	return canvassmcp.NewServer(a).Run()
}
