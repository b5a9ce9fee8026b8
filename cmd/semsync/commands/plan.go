package commands

import (
	"context"

	"github.com/rs/zerolog/log"
	"github.com/spf13/cobra"

	"github.com/alamotechllc/semsync/pkg/engine"
)

func newPlanCommand(c *cli) *cobra.Command {
	var updateExisting bool

	cmd := &cobra.Command{
		Use:   "plan FILE",
		Short: "Show what apply would change",
		Long: `Compare a desired-state file with the server without writing.

Each declared resource is reported as reused, would-create or, with
--update-existing, would-update. Missing dependencies are reported as
failures exactly as apply would report them.`,
		Example: `  # Plan a project
  semsync plan network.yaml

  # Include updates to existing repositories, inventories and templates
  semsync plan --update-existing network.yaml`,
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

			return rt.operation(ctx, "plan", func(ctx context.Context) error {
				result, err := c.checkPolicies(ctx, desired, "plan", rt.telemetry.Events)
				if err != nil {
					return err
				}
				if !result.Allowed {
					log.Warn().Int("errors", len(result.Errors())).Msg("Apply would be blocked by policy")
				}

				report, err := rt.engine(engine.Options{Plan: true, UpdateExisting: updateExisting}).Reconcile(ctx, desired)
				if report != nil {
					if perr := c.printReport(cmd.OutOrStdout(), report); perr != nil {
						return perr
					}
				}
				return err
			})
		},
	}

	cmd.Flags().BoolVar(&updateExisting, "update-existing", false, "diff existing resources and plan updates")

	return cmd
}
