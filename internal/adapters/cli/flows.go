package cli

import (
	"github.com/spf13/cobra"
)

func newFlowsCommand(root *rootOptions) *cobra.Command {
	return &cobra.Command{
		Use:   "flows",
		Short: "List the loaded question flows",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			app, err := root.openApp(cmd, false)
			if err != nil {
				return err
			}
			defer app.Close()

			names := app.Sessions.Flows()
			if len(names) == 0 {
				cmd.Println("No flows loaded. Set FLOW_PATH or pass --flows.")
				return nil
			}
			for _, name := range names {
				cmd.Println(name)
			}
			return nil
		},
	}
}
