package cli

import (
	"errors"
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"github.com/kirillkom/hybrid-qa-engine/internal/core/ports"
)

type flowOptions struct {
	exportPath string
	asJSON     bool
}

func newFlowCommand(root *rootOptions) *cobra.Command {
	opts := &flowOptions{}
	cmd := &cobra.Command{
		Use:   "flow [name]",
		Short: "Run a question flow to completion",
		Long: `Builds the corpus, then walks a question flow from its root node until it
ends, printing every answer. Without a name the default flow runs.

Examples:
  qactl flow intake --dir ./cases/123 --flows ./flows
  qactl flow intake --export results.xlsx`,
		Args: cobra.MaximumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			name := ""
			if len(args) == 1 {
				name = args[0]
			}
			return runFlow(cmd, root, opts, name)
		},
	}
	cmd.Flags().StringVarP(&opts.exportPath, "export", "o", "", "write the results as an xlsx workbook")
	cmd.Flags().BoolVar(&opts.asJSON, "json", false, "output the session as JSON")
	return cmd
}

func runFlow(cmd *cobra.Command, root *rootOptions, opts *flowOptions, name string) error {
	app, err := root.openApp(cmd, true)
	if err != nil {
		return err
	}
	defer app.Close()

	ctx := cmd.Context()
	session, err := app.Sessions.Start(ctx, name)
	if err != nil {
		return err
	}
	state, err := app.Sessions.Run(ctx, session.ID)
	if err != nil {
		return fmt.Errorf("flow %s stopped at %s: %w", state.Flow, state.CurrentID, err)
	}

	if opts.exportPath != "" {
		if err := exportSession(cmd, app.Sessions, state.ID, opts.exportPath); err != nil {
			return err
		}
	}
	if opts.asJSON {
		return printJSON(cmd, state)
	}

	cmd.Printf("Flow %s (%s)\n\n", state.Flow, state.Status)
	for i, result := range state.Results {
		cmd.Printf("[%d] %s: %s\n", i+1, result.NodeID, result.Question)
		printResult(cmd, result)
		cmd.Println()
	}
	return nil
}

func exportSession(cmd *cobra.Command, sessions ports.SessionService, id, path string) (err error) {
	f, err := os.Create(path)
	if err != nil {
		return fmt.Errorf("create export file: %w", err)
	}
	defer func() {
		err = errors.Join(err, f.Close())
	}()
	if err := sessions.Export(cmd.Context(), id, f); err != nil {
		return fmt.Errorf("export session: %w", err)
	}
	fmt.Fprintf(cmd.ErrOrStderr(), "results written to %s\n", path)
	return nil
}
