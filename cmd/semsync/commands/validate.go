package commands

import (
	"github.com/rs/zerolog/log"
	"github.com/spf13/cobra"
)

func newValidateCommand(c *cli) *cobra.Command {
	var operation string

	cmd := &cobra.Command{
		Use:   "validate FILE",
		Short: "Validate a desired-state file",
		Long: `Validate a desired-state file without contacting the server.

This command checks:
  - YAML, JSON, CUE or Starlark syntax
  - Schema conformance (unknown fields, reference shapes, enums)
  - Unique names per resource kind
  - Rego policies, built-in and from --policy`,
		Example: `  # Validate a YAML file
  semsync validate network.yaml

  # Validate with site policies, as apply would see it
  semsync validate --policy ./policies --operation apply network.star`,
		Args: cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx := cmd.Context()
			desired, err := c.loadDesired(ctx, args[0])
			if err != nil {
				return err
			}
			log.Debug().
				Str("file", args[0]).
				Int("keys", len(desired.Keys)).
				Int("templates", len(desired.Templates)).
				Msg("Desired state loaded")

			result, err := c.checkPolicies(ctx, desired, operation, nil)
			if err != nil {
				return err
			}
			if err := c.printViolations(cmd.OutOrStdout(), result); err != nil {
				return err
			}
			if !result.Allowed {
				return policyError(result)
			}
			return nil
		},
	}

	cmd.Flags().StringVar(&operation, "operation", "validate", "operation name passed to policies")

	return cmd
}
