package cmd

import (
	"context"
	"log/slog"
	"os/signal"
	"syscall"
	"time"

	"github.com/sourcegraph/conc"
	"github.com/spf13/cobra"
)

var workerCmd = &cobra.Command{
	Use:   "worker",
	Short: "Start background workers",
}

var schedulerWorkerCmd = &cobra.Command{
	Use:   "scheduler",
	Short: "Start the disbursement scheduler",
	Long:  `Start due batches, monitor processing batches, poll providers for accepted payments and check provider health on fixed intervals`,
	RunE: func(cmd *cobra.Command, args []string) error {
		return startScheduler()
	},
}

func startScheduler() error {
	cfg, lg, err := setup()
	if err != nil {
		return err
	}

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	app, err := newApp(ctx, cfg, lg)
	if err != nil {
		return err
	}

	lg.Info("scheduler is running. Press Ctrl+C to stop.")
	newScheduler(app).Run(ctx)
	lg.Info("received signal, shutting down scheduler")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()
	if err := app.Close(shutdownCtx); err != nil {
		lg.Warn("shutdown incomplete", "error", err)
	}
	lg.Info("scheduler shutdown complete")
	return nil
}

type job struct {
	name     string
	interval time.Duration
	run      func(ctx context.Context) error
}

type scheduler struct {
	jobs   []job
	logger *slog.Logger
}

func newScheduler(app *App) *scheduler {
	d := app.Config.Disbursement
	return &scheduler{
		logger: app.Logger,
		jobs: []job{
			{name: "process_due_batches", interval: d.SchedulerInterval, run: func(ctx context.Context) error {
				_, err := app.Batches.ProcessDueBatches(ctx)
				return err
			}},
			{name: "monitor_processing", interval: d.MonitorInterval, run: func(ctx context.Context) error {
				_, err := app.Batches.MonitorProcessing(ctx)
				return err
			}},
			{name: "poll_accepted", interval: d.MonitorInterval, run: func(ctx context.Context) error {
				settled, err := app.Executor.PollAccepted(ctx, d.PollAcceptedAfter)
				if settled > 0 {
					app.Logger.Info("settled accepted payments", "count", settled)
				}
				return err
			}},
			{name: "fsp_health", interval: d.SchedulerInterval, run: func(ctx context.Context) error {
				for _, h := range app.FSP.CheckHealth(ctx) {
					if !h.Healthy {
						app.Logger.Warn("fsp unhealthy", "fsp_code", h.Code, "error", h.Error)
					}
				}
				return nil
			}},
		},
	}
}

// Run starts one loop per job and blocks until ctx ends and every loop has
// returned. Each job runs once immediately.
func (s *scheduler) Run(ctx context.Context) {
	var wg conc.WaitGroup
	for _, j := range s.jobs {
		j := j
		wg.Go(func() { s.loop(ctx, j) })
	}
	wg.Wait()
}

func (s *scheduler) loop(ctx context.Context, j job) {
	ticker := time.NewTicker(j.interval)
	defer ticker.Stop()

	for {
		started := time.Now()
		if err := j.run(ctx); err != nil && ctx.Err() == nil {
			s.logger.Error("scheduled job failed", "job", j.name, "error", err)
		} else {
			s.logger.Debug("scheduled job finished", "job", j.name, "duration_ms", time.Since(started).Milliseconds())
		}

		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
		}
	}
}

func init() {
	workerCmd.AddCommand(schedulerWorkerCmd)
	rootCmd.AddCommand(workerCmd)
}
