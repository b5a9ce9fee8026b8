package commands

import (
	"context"
	"fmt"
	"path/filepath"
	"time"

	"github.com/fsnotify/fsnotify"
	"github.com/rs/zerolog/log"
	"github.com/spf13/cobra"

	"github.com/alamotechllc/semsync/pkg/engine"
	"github.com/alamotechllc/semsync/pkg/policy"
	"github.com/alamotechllc/semsync/pkg/telemetry"
)

func newWatchCommand(c *cli) *cobra.Command {
	var (
		metricsAddr    string
		updateExisting bool
		debounce       time.Duration
	)

	cmd := &cobra.Command{
		Use:   "watch FILE",
		Short: "Apply a desired-state file every time it changes",
		Long: `Apply the file once, then again after each change to it, until interrupted.

A file that fails to load or is blocked by policy is logged and skipped;
the previous state on the server is left as it is. Policy files given with
--policy are reloaded when they change. With --metrics-addr, Prometheus
metrics are served on /metrics for the lifetime of the command.`,
		Example: `  semsync watch network.yaml --metrics-addr :9464`,
		Args:    cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx := cmd.Context()
			path, err := filepath.Abs(args[0])
			if err != nil {
				return err
			}

			rt, err := c.newRuntime(metricsAddr)
			if err != nil {
				return err
			}
			defer rt.close()

			go func() {
				if err := rt.telemetry.Metrics.Serve(ctx); err != nil {
					log.Error().Err(err).Msg("Metrics server failed")
				}
			}()

			pe, err := c.newPolicyEngine(ctx, rt.telemetry.Events)
			if err != nil {
				return err
			}
			if len(c.policyPaths) > 0 {
				err := policy.NewLoader(log.Logger).Watch(ctx, c.policyPaths, func(policies []policy.Policy) error {
					return pe.AddPolicies(ctx, policies)
				})
				if err != nil {
					return err
				}
			}

			w := &watcher{
				path:     path,
				debounce: debounce,
				apply: func(ctx context.Context) error {
					return rt.operation(ctx, "watch.apply", func(ctx context.Context) error {
						return c.applyOnce(ctx, rt, pe, path, engine.Options{UpdateExisting: updateExisting})
					})
				},
			}
			return w.run(ctx)
		},
	}

	cmd.Flags().StringVar(&metricsAddr, "metrics-addr", "", "serve Prometheus metrics on this address")
	cmd.Flags().BoolVar(&updateExisting, "update-existing", false, "diff and update existing resources")
	cmd.Flags().DurationVar(&debounce, "debounce", 500*time.Millisecond, "wait this long after the last change")

	return cmd
}

// applyOnce loads, checks and reconciles the file. Failures are logged and
// returned.
func (c *cli) applyOnce(ctx context.Context, rt *runtime, pe *policy.Engine, path string, opts engine.Options) error {
	logger := telemetry.FromContext(ctx).NewComponentLogger("watch").WithField("file", path)

	desired, err := c.loadDesired(ctx, path)
	if err != nil {
		logger.WithError(err).Error("Desired state rejected")
		return err
	}
	result, err := evaluatePolicies(ctx, pe, desired, "apply")
	if err != nil {
		return err
	}
	if !result.Allowed {
		err := policyError(result)
		logger.WithError(err).Error("Apply blocked by policy")
		return err
	}

	report, err := rt.engine(opts).Reconcile(ctx, desired)
	if report == nil {
		logger.WithError(err).Error("Reconcile aborted")
		return err
	}
	logger = logger.WithRunID(report.RunID).
		WithField("writes", report.Writes()).
		WithField("status", string(report.Status()))
	if err == nil {
		err = report.Err()
	}
	if err != nil {
		logger.WithError(err).Warn(report.String())
		return err
	}
	logger.Info(report.String())
	return nil
}

// watcher calls apply once, then after every burst of changes to path.
type watcher struct {
	path     string
	debounce time.Duration
	apply    func(context.Context) error
}

func (w *watcher) run(ctx context.Context) error {
	fw, err := fsnotify.NewWatcher()
	if err != nil {
		return fmt.Errorf("failed to create watcher: %w", err)
	}
	defer fw.Close()

	// Editors replace files by rename, so the directory is watched.
	if err := fw.Add(filepath.Dir(w.path)); err != nil {
		return fmt.Errorf("failed to watch %s: %w", w.path, err)
	}

	_ = w.apply(ctx)
	log.Info().Str("file", w.path).Msg("Watching for changes")

	changed := make(chan struct{}, 1)
	var timer *time.Timer
	defer func() {
		if timer != nil {
			timer.Stop()
		}
	}()

	for {
		select {
		case <-ctx.Done():
			return nil

		case event, ok := <-fw.Events:
			if !ok {
				return nil
			}
			if filepath.Clean(event.Name) != w.path || event.Op&(fsnotify.Write|fsnotify.Create|fsnotify.Rename) == 0 {
				continue
			}
			log.Debug().Str("op", event.Op.String()).Msg("Desired state changed")
			if timer != nil {
				timer.Stop()
			}
			timer = time.AfterFunc(w.debounce, func() {
				select {
				case changed <- struct{}{}:
				default:
				}
			})

		case <-changed:
			_ = w.apply(ctx)

		case err, ok := <-fw.Errors:
			if !ok {
				return nil
			}
			log.Error().Err(err).Msg("Watcher error")
		}
	}
}
