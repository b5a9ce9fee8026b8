package commands

import (
	"context"
	"fmt"
	"strconv"
	"strings"

	"github.com/rs/zerolog/log"
	"github.com/spf13/cobra"
	"gopkg.in/yaml.v3"

	"github.com/alamotechllc/semsync/pkg/config"
	"github.com/alamotechllc/semsync/pkg/engine"
	"github.com/alamotechllc/semsync/pkg/semaphore"
)

func newRunCommand(c *cli) *cobra.Command {
	var (
		vars       []string
		varsScript string
		dryRun     bool
		debug      bool
	)

	cmd := &cobra.Command{
		Use:   "run TEMPLATE",
		Short: "Start a template run",
		Long: `Start a task for a template, given by id or by name, and print its id.

Extra variables come from --var and from a Starlark script. The script sees
the --var values as the global "vars" and must set a global named
"extra_vars"; its keys override --var. The command does not wait for the
task to finish.`,
		Example: `  # Run by name with two variables
  semsync run --project 3 configure-switch --var switch_name=sw-01 --var vlan=20

  # Compute variables with a script
  semsync run --project 3 12 --vars-script vars.star --dry-run`,
		Args: cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx := cmd.Context()
			extraVars, err := parseVars(vars)
			if err != nil {
				return err
			}
			if varsScript != "" {
				loader := config.NewLoader(config.WithLoaderLogger(log.Logger))
				computed, err := loader.EvaluateVars(ctx, varsScript, map[string]any{"vars": extraVars})
				if err != nil {
					return err
				}
				for k, v := range computed {
					extraVars[k] = v
				}
			}

			rt, err := c.newRuntime("")
			if err != nil {
				return err
			}
			defer rt.close()

			return rt.operation(ctx, "run", func(ctx context.Context) error {
				pid, err := rt.projectID()
				if err != nil {
					return err
				}

				req := engine.RunRequest{ExtraVars: extraVars, DryRun: dryRun, Debug: debug}
				trigger := rt.trigger()
				var handle *semaphore.TaskHandle
				if id, convErr := strconv.Atoi(args[0]); convErr == nil && id > 0 {
					req.ProjectID = pid
					req.TemplateID = id
					handle, err = trigger.Run(ctx, req)
				} else {
					handle, err = trigger.RunByName(ctx, pid, args[0], req)
				}
				if err != nil {
					return err
				}
				if c.jsonOutput {
					return printJSON(cmd.OutOrStdout(), handle)
				}
				fmt.Fprintf(cmd.OutOrStdout(), "Started task %d\n", handle.ID)
				return nil
			})
		},
	}

	cmd.Flags().StringArrayVar(&vars, "var", nil, "extra variable as key=value (repeatable)")
	cmd.Flags().StringVar(&varsScript, "vars-script", "", "Starlark script that sets extra_vars")
	cmd.Flags().BoolVar(&dryRun, "dry-run", false, "start the task in dry-run mode")
	cmd.Flags().BoolVar(&debug, "debug", false, "start the task with debug output")

	return cmd
}

// parseVars turns key=value pairs into extra variables. Values are read as
// YAML scalars, so 20 is a number and true a boolean; quote them to keep a
// string.
func parseVars(pairs []string) (map[string]any, error) {
	out := make(map[string]any, len(pairs))
	for _, pair := range pairs {
		key, raw, ok := strings.Cut(pair, "=")
		key = strings.TrimSpace(key)
		if !ok || key == "" {
			return nil, fmt.Errorf("invalid --var %q: want key=value", pair)
		}
		var value any
		if err := yaml.Unmarshal([]byte(raw), &value); err != nil || value == nil {
			value = raw
		}
		switch value.(type) {
		case string, bool, int, float64:
		default:
			value = raw
		}
		out[key] = value
	}
	return out, nil
}
