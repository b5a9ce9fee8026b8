package commands

import (
	"context"

	"github.com/spf13/cobra"

	"github.com/alamotechllc/semsync/pkg/engine"
)

func newApplyCommand(c *cli) *cobra.Command {
	var updateExisting bool

	cmd := &cobra.Command{
		Use:   "apply FILE",
		Short: "Reconcile the server with a desired-state file",
		Long: `Create every declared resource that does not exist yet and reuse the rest.

Resources are handled in dependency order: keys, repositories, inventories,
secrets, environments, templates. A resource whose dependency failed is
skipped; independent resources continue. Policy violations with error
severity stop apply before any request is sent.

Running apply twice over the same file performs no writes the second time.`,
		Example: `  # Apply a project
  semsync apply network.yaml

  # Also update drifted repositories, inventories and templates
  semsync apply --update-existing network.cue`,
		Args: cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
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

			return rt.operation(ctx, "apply", func(ctx context.Context) error {
				result, err := c.checkPolicies(ctx, desired, "apply", rt.telemetry.Events)
				if err != nil {
					return err
				}
				if !result.Allowed {
					return policyError(result)
				}

				report, err := rt.engine(engine.Options{UpdateExisting: updateExisting}).Reconcile(ctx, desired)
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

	cmd.Flags().BoolVar(&updateExisting, "update-existing", false, "diff and update existing resources")

	return cmd
}
