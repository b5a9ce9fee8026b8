package commands

import (
	"context"
	"fmt"
	"io"
	"os"

	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
	"github.com/spf13/cobra"
	"github.com/spf13/viper"

	"github.com/alamotechllc/semsync/pkg/config"
	"github.com/alamotechllc/semsync/pkg/telemetry"
)

// cli is the state shared by the commands of one root command: global flag
// values and the layered settings loaded by the root pre-run.
type cli struct {
	configPath  string
	jsonOutput  bool
	policyPaths []string

	settings *viper.Viper
	version  string
	stderr   io.Writer
}

// settingFlags maps persistent flags to settings keys.
var settingFlags = map[string]string{
	"log-level":  "log_level",
	"log-format": "log_format",
	"server-url": "server_url",
	"project":    "project_id",
}

// Execute runs the root command
func Execute(ctx context.Context, version, commit, buildDate string) error {
	rootCmd := newRootCommand(version, commit, buildDate)
	return rootCmd.ExecuteContext(ctx)
}

func newRootCommand(version, commit, buildDate string) *cobra.Command {
	c := &cli{version: version, stderr: os.Stderr}

	rootCmd := &cobra.Command{
		Use:   "semsync",
		Short: "semsync - keep a Semaphore server in line with declared state",
		Long: `semsync reconciles projects, SSH keys, repositories, inventories, secrets,
environments and templates on a Semaphore automation server against a
desired-state file, and triggers template runs.

Desired state can be written in YAML, JSON, CUE or Starlark and is checked
against a schema and Rego policies before anything is sent to the server.

Settings come from flags, SEMSYNC_* environment variables, .env files and
semsync.yaml, in that order of precedence.`,
		Version:       fmt.Sprintf("%s (commit: %s, built: %s)", version, commit, buildDate),
		SilenceUsage:  true,
		SilenceErrors: true,
		PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
			config.LoadDotEnv()
			c.stderr = cmd.ErrOrStderr()
			v := config.NewViper(c.configPath)
			// Unchanged flags lose to the environment and settings file.
			for flag, key := range settingFlags {
				if err := v.BindPFlag(key, cmd.Root().PersistentFlags().Lookup(flag)); err != nil {
					return err
				}
			}
			c.settings = v
			return setupLogging(v.GetString("log_level"), v.GetString("log_format"), c.stderr)
		},
	}

	flags := rootCmd.PersistentFlags()
	flags.StringVarP(&c.configPath, "config", "c", "", "settings file (default semsync.yaml)")
	flags.BoolVar(&c.jsonOutput, "json", false, "output in JSON format")
	flags.StringSliceVar(&c.policyPaths, "policy", nil, "extra Rego policy files or directories")
	flags.String("log-level", "info", "log level (trace, debug, info, warn, error)")
	flags.String("log-format", "console", "log format (console, json)")
	flags.String("server-url", "", "Semaphore server URL")
	flags.Int("project", 0, "project id, overriding the desired state")

	rootCmd.AddCommand(newValidateCommand(c))
	rootCmd.AddCommand(newPlanCommand(c))
	rootCmd.AddCommand(newApplyCommand(c))
	rootCmd.AddCommand(newDestroyCommand(c))
	rootCmd.AddCommand(newVerifyCommand(c))
	rootCmd.AddCommand(newStatusCommand(c))
	rootCmd.AddCommand(newRunCommand(c))
	rootCmd.AddCommand(newTasksCommand(c))
	rootCmd.AddCommand(newWatchCommand(c))

	return rootCmd
}

// setupLogging points the global logger at w with the configured level and
// format.
func setupLogging(level, format string, w io.Writer) error {
	switch format {
	case "console", "json":
	default:
		return fmt.Errorf("invalid log format %q", format)
	}
	logger := telemetry.NewLoggerWithWriter(telemetry.LoggingConfig{
		Level:  level,
		Format: format,
	}, w)
	log.Logger = logger.Zerolog()
	zerolog.SetGlobalLevel(telemetry.ParseLevel(level))
	return nil
}
