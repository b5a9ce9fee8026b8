package commands

import (
	"context"
	"fmt"
	"strconv"

	"github.com/spf13/cobra"

	"github.com/alamotechllc/semsync/pkg/semaphore"
)

func newTasksCommand(c *cli) *cobra.Command {
	var templateID int

	cmd := &cobra.Command{
		Use:   "tasks [TASK_ID]",
		Short: "List tasks or show one task",
		Example: `  # Tasks of the project
  semsync tasks --project 3

  # Tasks of one template
  semsync tasks --project 3 --template 12

  # One task
  semsync tasks --project 3 481`,
		Args: cobra.MaximumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx := cmd.Context()
			rt, err := c.newRuntime("")
			if err != nil {
				return err
			}
			defer rt.close()

			return rt.operation(ctx, "tasks", func(ctx context.Context) error {
				pid, err := rt.projectID()
				if err != nil {
					return err
				}
				trigger := rt.trigger()

				if len(args) == 1 {
					taskID, err := strconv.Atoi(args[0])
					if err != nil || taskID <= 0 {
						return fmt.Errorf("invalid task id %q", args[0])
					}
					task, err := trigger.Task(ctx, pid, taskID)
					if err != nil {
						return err
					}
					if c.jsonOutput {
						return printJSON(cmd.OutOrStdout(), task)
					}
					return c.printTasks(cmd.OutOrStdout(), []semaphore.Task{*task})
				}

				tasks, err := trigger.Tasks(ctx, pid, templateID)
				if err != nil {
					return err
				}
				return c.printTasks(cmd.OutOrStdout(), tasks)
			})
		},
	}

	cmd.Flags().IntVar(&templateID, "template", 0, "only tasks of this template id")

	return cmd
}
