// Package cli builds the schedulerd command tree. Adapted from the
// teacher's own internal/cli package: same Cobra root-plus-subcommands
// shape and the same --config flag convention, with the distributed
// master/worker/gRPC mode split dropped — this scheduler's correctness
// comes from the store's claim protocol, not from a dedicated
// coordinator process.
package cli

import (
	"context"
	"fmt"
	"log"
	"log/slog"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/cobra"

	"github.com/ChuLiYu/taskscheduler/internal/config"
	"github.com/ChuLiYu/taskscheduler/internal/demotasks"
	"github.com/ChuLiYu/taskscheduler/internal/metrics"
	"github.com/ChuLiYu/taskscheduler/internal/repository"
	"github.com/ChuLiYu/taskscheduler/pkg/scheduler"

	"github.com/prometheus/client_golang/prometheus"
)

var configFile string

// BuildCLI assembles the schedulerd root command.
func BuildCLI() *cobra.Command {
	rootCmd := &cobra.Command{
		Use:   "schedulerd",
		Short: "A persistent, cluster-safe task scheduler",
		Long: `schedulerd runs a scheduler instance against a shared store:
- durable optimistically-locked execution repository
- bounded worker pool with zero queuing
- due-polling, dead-detection, and heartbeat loops`,
		Version: "1.0.0",
	}

	rootCmd.PersistentFlags().StringVarP(&configFile, "config", "c", "configs/default.yaml", "config file path")

	rootCmd.AddCommand(buildRunCommand())
	rootCmd.AddCommand(buildScheduleCommand())
	rootCmd.AddCommand(buildStatusCommand())

	return rootCmd
}

func openRepository(cfg *config.Config) (scheduler.Repository, func(), error) {
	switch cfg.Store.Driver {
	case "memory":
		return repository.NewInMemoryRepository(), func() {}, nil
	case "sqlite", "":
		repo, err := repository.Open(context.Background(), cfg.Store.DSN)
		if err != nil {
			return nil, nil, err
		}
		return repo, func() { repo.Close() }, nil
	default:
		return nil, nil, fmt.Errorf("cli: unknown store driver %q", cfg.Store.Driver)
	}
}

func buildRunCommand() *cobra.Command {
	return &cobra.Command{
		Use:   "run",
		Short: "Start a scheduler instance",
		RunE: func(cmd *cobra.Command, args []string) error {
			return runScheduler()
		},
	}
}

func runScheduler() error {
	cfg, err := config.Load(configFile)
	if err != nil {
		return fmt.Errorf("cli: load config: %w", err)
	}

	logger := slog.Default()

	repo, closeRepo, err := openRepository(cfg)
	if err != nil {
		return fmt.Errorf("cli: open repository: %w", err)
	}
	defer closeRepo()

	collector := metrics.NewCollector(prometheus.DefaultRegisterer)

	if cfg.Metrics.Enabled {
		go func() {
			log.Printf("metrics server listening on :%d/metrics\n", cfg.Metrics.Port)
			if err := metrics.StartServer(cfg.Metrics.Port); err != nil {
				log.Printf("metrics server error: %v\n", err)
			}
		}()
	}

	builder := scheduler.NewBuilder(repo, demotasks.Cleanup(logger), demotasks.HeartbeatLog(logger)).
		ExecutorThreads(cfg.Scheduler.ExecutorThreads).
		PollingInterval(time.Duration(cfg.Scheduler.PollingInterval)).
		HeartbeatInterval(time.Duration(cfg.Scheduler.HeartbeatInterval)).
		StatsRegistry(collector).
		Logger(logger)
	if cfg.Scheduler.Name != "" {
		builder.SchedulerName(cfg.Scheduler.Name)
	}

	sched, err := builder.Build()
	if err != nil {
		return fmt.Errorf("cli: build scheduler: %w", err)
	}

	ctx := context.Background()
	sched.Start(ctx)
	logger.Info("scheduler started")

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)
	<-sigCh

	logger.Info("received shutdown signal, stopping gracefully")
	stopCtx, cancel := context.WithTimeout(context.Background(), 31*time.Minute)
	defer cancel()
	if err := sched.Stop(stopCtx); err != nil {
		logger.Warn("scheduler stop returned an error", slog.Any("error", err))
	}
	logger.Info("scheduler stopped")
	return nil
}

func buildScheduleCommand() *cobra.Command {
	var at string

	cmd := &cobra.Command{
		Use:   "schedule <task-name> [instance-id]",
		Short: "Create an execution row without a running daemon",
		Args:  cobra.RangeArgs(1, 2),
		RunE: func(cmd *cobra.Command, args []string) error {
			when := time.Now()
			if at != "" {
				parsed, err := time.Parse(time.RFC3339, at)
				if err != nil {
					return fmt.Errorf("cli: parse --at: %w", err)
				}
				when = parsed
			}
			// With no instance-id given, generate one rather than force
			// the caller to invent an identity for a one-off run.
			instance := scheduler.NewTaskInstance(args[0])
			if len(args) == 2 {
				instance = scheduler.TaskInstance{TaskName: args[0], ID: args[1]}
			}
			return scheduleOne(instance, when)
		},
	}
	cmd.Flags().StringVar(&at, "at", "", "RFC3339 execution time (default: now)")
	return cmd
}

func scheduleOne(instance scheduler.TaskInstance, at time.Time) error {
	cfg, err := config.Load(configFile)
	if err != nil {
		return fmt.Errorf("cli: load config: %w", err)
	}
	repo, closeRepo, err := openRepository(cfg)
	if err != nil {
		return fmt.Errorf("cli: open repository: %w", err)
	}
	defer closeRepo()

	ok, err := repo.CreateIfNotExists(context.Background(), scheduler.Execution{
		TaskInstance:  instance,
		ExecutionTime: at,
	})
	if err != nil {
		return fmt.Errorf("cli: schedule: %w", err)
	}
	if !ok {
		fmt.Printf("execution %s already exists, not rescheduled\n", instance)
		return nil
	}
	fmt.Printf("scheduled %s at %s\n", instance, at.Format(time.RFC3339))
	return nil
}

func buildStatusCommand() *cobra.Command {
	return &cobra.Command{
		Use:   "status",
		Short: "Show due and dead-candidate row counts",
		RunE: func(cmd *cobra.Command, args []string) error {
			return showStatus()
		},
	}
}

func showStatus() error {
	cfg, err := config.Load(configFile)
	if err != nil {
		return fmt.Errorf("cli: load config: %w", err)
	}
	repo, closeRepo, err := openRepository(cfg)
	if err != nil {
		return fmt.Errorf("cli: open repository: %w", err)
	}
	defer closeRepo()

	now := time.Now()
	due, err := repo.GetDue(context.Background(), now)
	if err != nil {
		return fmt.Errorf("cli: get_due: %w", err)
	}
	deadThreshold := now.Add(-4 * time.Duration(cfg.Scheduler.HeartbeatInterval))
	old, err := repo.GetOldExecutions(context.Background(), deadThreshold)
	if err != nil {
		return fmt.Errorf("cli: get_old_executions: %w", err)
	}

	fmt.Println("schedulerd status")
	fmt.Printf("  config:              %s\n", configFile)
	fmt.Printf("  store driver:        %s\n", cfg.Store.Driver)
	fmt.Printf("  due, unclaimed:      %d\n", len(due))
	fmt.Printf("  dead-candidate rows: %d\n", len(old))
	return nil
}
