package commands

import (
	"context"
	"fmt"

	"github.com/spf13/cobra"

	"github.com/alamotechllc/semsync/pkg/engine"
)

func newVerifyCommand(c *cli) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "verify FILE",
		Short: "Check that declared templates are runnable",
		Long: `Read-only check of the server against a desired-state file.

For every declared template this checks that it exists and that its
inventory, repository and key ids point at existing records. Inventories and
repositories must have an SSH key, required survey variables must be
present, and app_id must be set when the server requires it.`,
		Example: `  semsync verify network.yaml`,
		Args:    cobra.ExactArgs(1),
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

			return rt.operation(ctx, "verify", func(ctx context.Context) error {
				findings, err := rt.engine(engine.Options{}).Verify(ctx, desired)
				if err != nil {
					return err
				}
				if err := c.printFindings(cmd.OutOrStdout(), findings); err != nil {
					return err
				}

				errs := 0
				for _, f := range findings {
					if f.Severity == engine.SeverityError {
						errs++
					}
				}
				if errs > 0 {
					return fmt.Errorf("verify found %d error(s)", errs)
				}
				return nil
			})
		},
	}

	return cmd
}
