package commands

import (
	"context"

	"github.com/spf13/cobra"

	"github.com/alamotechllc/semsync/pkg/engine"
)

func newStatusCommand(c *cli) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "status",
		Short: "Show the current content of a project",
		Long: `List every key, repository, inventory, secret, environment and template
of a project, and its most recent tasks. The collections are read
concurrently.`,
		Example: `  semsync status --project 3
  SEMSYNC_PROJECT_ID=3 semsync status --json`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx := cmd.Context()
			rt, err := c.newRuntime("")
			if err != nil {
				return err
			}
			defer rt.close()

			return rt.operation(ctx, "status", func(ctx context.Context) error {
				pid, err := rt.projectID()
				if err != nil {
					return err
				}
				snapshot, err := rt.engine(engine.Options{}).Status(ctx, pid)
				if err != nil {
					return err
				}
				return c.printSnapshot(cmd.OutOrStdout(), snapshot)
			})
		},
	}

	return cmd
}
