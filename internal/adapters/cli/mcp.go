package cli

import (
	"github.com/spf13/cobra"

	mcpadapter "github.com/kirillkom/hybrid-qa-engine/internal/adapters/mcp"
)

func newMCPCommand(root *rootOptions) *cobra.Command {
	return &cobra.Command{
		Use:   "mcp",
		Short: "Serve the corpus to MCP clients over stdio",
		Long: `Builds the corpus and starts a Model Context Protocol server on stdio,
exposing question answering and question flows as tools.

Client configuration:
  {
    "mcpServers": {
      "hqa": {
        "command": "/path/to/qactl",
        "args": ["mcp", "--dir", "/path/to/corpus"]
      }
    }
  }`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			app, err := root.openApp(cmd, true)
			if err != nil {
				return err
			}
			defer app.Close()
			return mcpadapter.NewServer(app.Corpus, app.Queries, app.Sessions, app.Logger).Serve()
		},
	}
}
