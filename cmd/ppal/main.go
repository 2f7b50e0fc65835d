package main

import (
	"context"
	"errors"
	"fmt"
	"os"
	"os/signal"
	"strconv"
	"strings"
	"syscall"
	"time"

	"github.com/google/uuid"
	"github.com/spf13/cobra"

	"progresspal-web/internal/apiclient"
	"progresspal-web/internal/config"
	"progresspal-web/internal/engine"
	"progresspal-web/internal/logging"
	"progresspal-web/internal/models"
	"progresspal-web/internal/repository"
	"progresspal-web/internal/services"
)

func main() {
	if err := newRootCmd().Execute(); err != nil {
		_, _ = fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

type options struct {
	user   string
	apiURL string
}

func newRootCmd() *cobra.Command {
	opts := &options{}

	root := &cobra.Command{
		Use:           "ppal",
		Short:         "ProgressPal live session client",
		SilenceUsage:  true,
		SilenceErrors: true,
	}
	root.PersistentFlags().StringVar(&opts.user, "user", "", "user ID (defaults to PROGRESSPAL_USER_ID)")
	root.PersistentFlags().StringVar(&opts.apiURL, "api", "", "ProgressPal API base URL (defaults to PROGRESSPAL_API_URL)")

	root.AddCommand(newLiveCmd(opts))
	root.AddCommand(newStartCmd(opts))
	root.AddCommand(newPauseCmd(opts))
	root.AddCommand(newResumeCmd(opts))
	root.AddCommand(newStopCmd(opts))
	root.AddCommand(newGoalCmd(opts))
	root.AddCommand(newProgressCmd(opts))
	root.AddCommand(newUndoCmd(opts))
	root.AddCommand(newWatchCmd(opts))
	root.AddCommand(newActivityTypesCmd(opts))
	root.AddCommand(newDurationCmd())
	root.AddCommand(newGoalPreviewCmd())
	return root
}

type app struct {
	cfg     *config.Config
	service *services.LiveSessionService
	stores  *repository.Stores
	userID  uuid.UUID
}

func loadApp(ctx context.Context, opts *options) (*app, context.Context, error) {
	cfg := config.LoadClient()
	if opts.apiURL != "" {
		cfg.APIURL = strings.TrimRight(opts.apiURL, "/")
	}

	rawUser := opts.user
	if rawUser == "" {
		rawUser = cfg.UserID
	}
	if rawUser == "" {
		return nil, ctx, errors.New("no user: pass --user or set PROGRESSPAL_USER_ID")
	}
	userID, err := uuid.Parse(rawUser)
	if err != nil {
		return nil, ctx, fmt.Errorf("invalid user ID %q: %w", rawUser, err)
	}

	logger := logging.New(logging.ConfigFrom(cfg.LogLevel, cfg.LogFormat))

	stores, err := repository.OpenStores(ctx, cfg.RedisURL, cfg.SnapshotTTL, cfg.UndoWindow)
	if err != nil {
		return nil, ctx, fmt.Errorf("open stores: %w", err)
	}

	client := apiclient.New(cfg.APIURL, cfg.APITimeout)
	if cfg.APIToken != "" {
		ctx = apiclient.WithBearerToken(ctx, cfg.APIToken)
	}
	ctx = logging.WithContext(ctx, logger)

	return &app{
		cfg:     cfg,
		service: services.NewLiveSessionService(client, stores.Snapshots, stores.Undo, logger),
		stores:  stores,
		userID:  userID,
	}, ctx, nil
}

func (a *app) close() {
	_ = a.stores.Close()
}

// withApp runs fn with a loaded app and closes it afterwards.
func withApp(opts *options, fn func(ctx context.Context, a *app) error) error {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	a, ctx, err := loadApp(ctx, opts)
	if err != nil {
		return err
	}
	defer a.close()
	return fn(ctx, a)
}

func printSnapshot(cmd *cobra.Command, snap *models.Snapshot, stale bool) {
	renderView(cmd.OutOrStdout(), services.BuildView(snap, stale, time.Now()))
}

func newLiveCmd(opts *options) *cobra.Command {
	return &cobra.Command{
		Use:   "live",
		Short: "Show the current live session",
		RunE: func(cmd *cobra.Command, _ []string) error {
			return withApp(opts, func(ctx context.Context, a *app) error {
				state, err := a.service.Live(ctx, a.userID)
				if err != nil {
					return err
				}
				if state == nil {
					_, _ = fmt.Fprintln(cmd.OutOrStdout(), "no live session")
					return nil
				}
				printSnapshot(cmd, state.Snapshot, state.Stale)
				return nil
			})
		},
	}
}

func newStartCmd(opts *options) *cobra.Command {
	var activity, title, description, visibility string
	var goal services.GoalInput

	cmd := &cobra.Command{
		Use:   "start",
		Short: "Start a live session",
		RunE: func(cmd *cobra.Command, _ []string) error {
			activityID, err := uuid.Parse(activity)
			if err != nil {
				return fmt.Errorf("invalid activity type ID %q: %w", activity, err)
			}
			return withApp(opts, func(ctx context.Context, a *app) error {
				snap, err := a.service.Start(ctx, a.userID, services.StartInput{
					ActivityTypeID: activityID,
					Title:          title,
					Description:    description,
					Visibility:     models.Visibility(strings.ToUpper(visibility)),
					Goal:           goal,
				})
				if err != nil {
					return err
				}
				printSnapshot(cmd, snap, false)
				return nil
			})
		},
	}
	cmd.Flags().StringVar(&activity, "activity", "", "activity type ID")
	cmd.Flags().StringVar(&title, "title", "", "session title")
	cmd.Flags().StringVar(&description, "description", "", "session description")
	cmd.Flags().StringVar(&visibility, "visibility", string(models.VisibilityPrivate), "PUBLIC|PRIVATE")
	cmd.Flags().StringVar(&goal.Type, "goal-type", "", "NONE|TIME|METRIC")
	cmd.Flags().StringVar(&goal.Target, "goal-target", "", "H:M:S for TIME, a number for METRIC")
	cmd.Flags().StringVar(&goal.Note, "goal-note", "", "goal note")
	_ = cmd.MarkFlagRequired("activity")
	return cmd
}

func newPauseCmd(opts *options) *cobra.Command {
	return &cobra.Command{
		Use:   "pause",
		Short: "Pause the live session",
		RunE: func(cmd *cobra.Command, _ []string) error {
			return withApp(opts, func(ctx context.Context, a *app) error {
				snap, err := a.service.Pause(ctx, a.userID)
				if err != nil {
					return err
				}
				printSnapshot(cmd, snap, false)
				return nil
			})
		},
	}
}

func newResumeCmd(opts *options) *cobra.Command {
	return &cobra.Command{
		Use:   "resume",
		Short: "Resume the paused live session",
		RunE: func(cmd *cobra.Command, _ []string) error {
			return withApp(opts, func(ctx context.Context, a *app) error {
				snap, err := a.service.Resume(ctx, a.userID)
				if err != nil {
					return err
				}
				printSnapshot(cmd, snap, false)
				return nil
			})
		},
	}
}

func newStopCmd(opts *options) *cobra.Command {
	var metric string

	cmd := &cobra.Command{
		Use:   "stop",
		Short: "Stop the live session",
		RunE: func(cmd *cobra.Command, _ []string) error {
			value, err := parseMetricFlag(metric)
			if err != nil {
				return err
			}
			return withApp(opts, func(ctx context.Context, a *app) error {
				snap, err := a.service.Stop(ctx, a.userID, value)
				if err != nil {
					return err
				}
				_, _ = fmt.Fprintln(cmd.OutOrStdout(), "session stopped")
				printSnapshot(cmd, snap, false)
				return nil
			})
		},
	}
	cmd.Flags().StringVar(&metric, "metric", "", "final metric value")
	return cmd
}

func parseMetricFlag(raw string) (*float64, error) {
	raw = strings.TrimSpace(raw)
	if raw == "" {
		return nil, nil
	}
	v, err := strconv.ParseFloat(raw, 64)
	if err != nil {
		return nil, fmt.Errorf("metric must be a number: %q", raw)
	}
	return &v, nil
}

func newGoalCmd(opts *options) *cobra.Command {
	var goal services.GoalInput

	cmd := &cobra.Command{
		Use:   "goal",
		Short: "Set or clear the live session's goal",
		RunE: func(cmd *cobra.Command, _ []string) error {
			return withApp(opts, func(ctx context.Context, a *app) error {
				snap, err := a.service.UpdateGoal(ctx, a.userID, goal)
				if err != nil {
					return err
				}
				printSnapshot(cmd, snap, false)
				return nil
			})
		},
	}
	cmd.Flags().StringVar(&goal.Type, "type", string(models.GoalTypeNone), "NONE|TIME|METRIC")
	cmd.Flags().StringVar(&goal.Target, "target", "", "H:M:S for TIME, a number for METRIC")
	cmd.Flags().StringVar(&goal.Note, "note", "", "goal note")
	return cmd
}

func newProgressCmd(opts *options) *cobra.Command {
	return &cobra.Command{
		Use:   "progress <value>",
		Short: "Save the live session's metric progress",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return withApp(opts, func(ctx context.Context, a *app) error {
				result, err := a.service.UpdateProgress(ctx, a.userID, args[0])
				if err != nil {
					return err
				}
				printSnapshot(cmd, result.Snapshot, false)
				renderUndo(cmd.OutOrStdout(), result.Undo, time.Now())
				return nil
			})
		},
	}
}

func newUndoCmd(opts *options) *cobra.Command {
	return &cobra.Command{
		Use:   "undo",
		Short: "Revert the most recent progress update (requires REDIS_URL)",
		Long: "Revert the most recent progress update within the undo window.\n\n" +
			"The undo offer recorded by `ppal progress` outlives the process only in Redis,\n" +
			"so REDIS_URL must be set for both commands.",
		RunE: func(cmd *cobra.Command, _ []string) error {
			return withApp(opts, func(ctx context.Context, a *app) error {
				if err := requireSharedStores(a.stores); err != nil {
					return err
				}
				result, err := a.service.UndoProgress(ctx, a.userID)
				if err != nil {
					return err
				}
				printSnapshot(cmd, result.Snapshot, false)
				return nil
			})
		},
	}
}

// requireSharedStores rejects commands whose state must survive between
// invocations when only process-local stores are available.
func requireSharedStores(stores *repository.Stores) error {
	if stores.Backend == repository.BackendMemory {
		return errors.New("undo needs REDIS_URL: without Redis the undo offer from `ppal progress` is lost when that command exits")
	}
	return nil
}

func newWatchCmd(opts *options) *cobra.Command {
	return &cobra.Command{
		Use:   "watch",
		Short: "Redraw the live session every tick until it ends",
		RunE: func(cmd *cobra.Command, _ []string) error {
			return withApp(opts, func(ctx context.Context, a *app) error {
				ticker := services.NewTicker(a.cfg.TickInterval)
				defer ticker.Stop()

				out := cmd.OutOrStdout()
				return a.service.Watch(ctx, a.userID, ticker, func(view models.LiveView) {
					_, _ = fmt.Fprint(out, "\033[H\033[2J")
					renderView(out, view)
				})
			})
		},
	}
}

func newActivityTypesCmd(opts *options) *cobra.Command {
	return &cobra.Command{
		Use:   "activity-types",
		Short: "List activity types available to the user",
		RunE: func(cmd *cobra.Command, _ []string) error {
			return withApp(opts, func(ctx context.Context, a *app) error {
				types, err := a.service.ActivityTypes(ctx, a.userID)
				if err != nil {
					return err
				}
				for _, t := range types {
					metric := string(t.EffectiveMetricKind())
					if label := t.Label(); label != "" {
						metric += " (" + label + ")"
					}
					_, _ = fmt.Fprintf(cmd.OutOrStdout(), "%s  %-24s %s\n", t.ID, t.Name, metric)
				}
				return nil
			})
		},
	}
}

func newDurationCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "duration <seconds>",
		Short: "Format a number of seconds as H:MM:SS",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			secs, err := strconv.ParseInt(args[0], 10, 64)
			if err != nil {
				return fmt.Errorf("seconds must be a whole number: %q", args[0])
			}
			_, _ = fmt.Fprintln(cmd.OutOrStdout(), engine.FormatDuration(secs))
			return nil
		},
	}
}

func newGoalPreviewCmd() *cobra.Command {
	var goalType, target, note, metricKind string

	cmd := &cobra.Command{
		Use:   "goal-preview",
		Short: "Validate a goal locally and print the normalized payload",
		RunE: func(cmd *cobra.Command, _ []string) error {
			gt, err := engine.ParseGoalType(goalType)
			if err != nil {
				return err
			}
			kind, err := engine.ParseMetricKind(metricKind)
			if err != nil {
				return err
			}
			if err := engine.CheckGoalAgainstActivity(gt, kind); err != nil {
				return err
			}
			goal, err := engine.BuildGoalSubmission(gt, target, note)
			if err != nil {
				return err
			}

			out := cmd.OutOrStdout()
			_, _ = fmt.Fprintf(out, "type:   %s\n", goal.GoalType)
			_, _ = fmt.Fprintf(out, "target: %s\n", engine.FormatGoalValue(goal.GoalTarget, goal.GoalType, ""))
			if goal.GoalNote != nil {
				_, _ = fmt.Fprintf(out, "note:   %s\n", *goal.GoalNote)
			}
			return nil
		},
	}
	cmd.Flags().StringVar(&goalType, "type", string(models.GoalTypeNone), "NONE|TIME|METRIC")
	cmd.Flags().StringVar(&target, "target", "", "H:M:S for TIME, a number for METRIC")
	cmd.Flags().StringVar(&note, "note", "", "goal note")
	cmd.Flags().StringVar(&metricKind, "metric-kind", string(models.MetricKindDecimal), "activity metric kind: NONE|INTEGER|DECIMAL")
	return cmd
}
