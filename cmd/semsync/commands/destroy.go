package commands

import (
	"context"
	"fmt"

	"github.com/spf13/cobra"

	"github.com/alamotechllc/semsync/pkg/engine"
)

func newDestroyCommand(c *cli) *cobra.Command {
	var (
		dryRun        bool
		withProject   bool
		confirmDelete bool
	)

	cmd := &cobra.Command{
		Use:   "destroy FILE",
		Short: "Delete the resources declared in a desired-state file",
		Long: `Delete the declared resources in reverse dependency order: templates,
environments, secrets, inventories, repositories, keys.

Resources that are not on the server are reported as absent. Resources the
file does not declare are left alone. The project itself is deleted only
with --project-too.`,
		Example: `  # Show what would be deleted
  semsync destroy --dry-run network.yaml

  # Delete the declared resources and the project
  semsync destroy --yes --project-too network.yaml`,
		Args: cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			if !dryRun && !confirmDelete {
				return fmt.Errorf("destroy deletes server resources: pass --yes, or --dry-run to preview")
			}
			ctx := cmd.Context()
			desired, err := c.loadDesired(ctx, args[0])
			if err != nil {
				return err
			}

			rt, err := c.newRuntime("")
			if err != nil {
				return err
			}
			defer rt.close()

			return rt.operation(ctx, "destroy", func(ctx context.Context) error {
				report, err := rt.engine(engine.Options{Plan: dryRun, DestroyProject: withProject}).Destroy(ctx, desired)
				if report == nil {
					return err
				}
				if perr := c.printReport(cmd.OutOrStdout(), report); perr != nil {
					return perr
				}
				if err != nil {
					return err
				}
				return report.Err()
			})
		},
	}

	cmd.Flags().BoolVar(&dryRun, "dry-run", false, "report what would be deleted")
	cmd.Flags().BoolVar(&withProject, "project-too", false, "delete the project itself")
	cmd.Flags().BoolVarP(&confirmDelete, "yes", "y", false, "confirm deletion")

	return cmd
}
