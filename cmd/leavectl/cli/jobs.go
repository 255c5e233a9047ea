package cli

import (
	"errors"
	"fmt"

	"github.com/cmlabs-hris/hris-leave-go/internal/config"
	"github.com/cmlabs-hris/hris-leave-go/internal/jobs"
	"github.com/hibiken/asynq"
	"github.com/spf13/cobra"
)

func newJobsCmd(opts *options) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "jobs",
		Short: "Manage background leave jobs",
	}
	cmd.AddCommand(newJobsTriggerCmd(opts))
	cmd.AddCommand(newJobsStatsCmd(opts))
	return cmd
}

func redisOpts() (asynq.RedisClientOpt, error) {
	cfg, err := config.Load()
	if err != nil {
		return asynq.RedisClientOpt{}, err
	}
	if cfg.Redis.Addr == "" {
		return asynq.RedisClientOpt{}, errors.New("REDIS_ADDR is required for job commands")
	}
	return asynq.RedisClientOpt{Addr: cfg.Redis.Addr, Password: cfg.Redis.Password, DB: cfg.Redis.DB}, nil
}

func newJobsTriggerCmd(opts *options) *cobra.Command {
	var trigger string
	cmd := &cobra.Command{
		Use:   "trigger",
		Short: "Enqueue a ledger reconciliation on the worker",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			ro, err := redisOpts()
			if err != nil {
				return err
			}
			client := jobs.NewClient(ro)
			defer client.Close()

			out := cmd.OutOrStdout()
			info, err := client.EnqueueReconcile(cmd.Context(), trigger)
			if errors.Is(err, asynq.ErrDuplicateTask) {
				fmt.Fprintln(out, "A reconciliation is already queued.")
				return nil
			}
			if err != nil {
				return fmt.Errorf("failed to enqueue reconcile: %w", err)
			}

			if opts.jsonOutput {
				return writeJSON(out, map[string]string{"id": info.ID, "queue": info.Queue, "type": info.Type})
			}
			fmt.Fprintf(out, "Enqueued %s on %s (id %s)\n", info.Type, info.Queue, info.ID)
			return nil
		},
	}
	cmd.Flags().StringVar(&trigger, "trigger", "leavectl", "label recorded with the task")
	return cmd
}

func newJobsStatsCmd(opts *options) *cobra.Command {
	return &cobra.Command{
		Use:   "stats",
		Short: "Show the leave job queue",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			ro, err := redisOpts()
			if err != nil {
				return err
			}
			inspector := asynq.NewInspector(ro)
			defer inspector.Close()

			info, err := inspector.GetQueueInfo(jobs.QueueDefault)
			if err != nil {
				return fmt.Errorf("failed to inspect queue: %w", err)
			}

			out := cmd.OutOrStdout()
			if opts.jsonOutput {
				return writeJSON(out, map[string]any{
					"queue":     info.Queue,
					"pending":   info.Pending,
					"active":    info.Active,
					"scheduled": info.Scheduled,
					"retry":     info.Retry,
					"archived":  info.Archived,
				})
			}
			fmt.Fprintf(out, "Queue %s: pending=%d active=%d scheduled=%d retry=%d archived=%d\n",
				info.Queue, info.Pending, info.Active, info.Scheduled, info.Retry, info.Archived)
			return nil
		},
	}
}
