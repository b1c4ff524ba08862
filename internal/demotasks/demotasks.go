// Package demotasks supplies the small built-in task set cmd/schedulerd
// registers when no application tasks are wired in, so `schedulerd run`
// has something schedulable out of the box.
package demotasks

import (
	"context"
	"log/slog"
	"time"

	"github.com/ChuLiYu/taskscheduler/pkg/scheduler"
)

// Cleanup is a one-shot task: it runs once and removes its own row.
func Cleanup(log *slog.Logger) scheduler.Task {
	return scheduler.NewOneTimeTask("cleanup", func(ctx context.Context, instance scheduler.TaskInstance, execCtx scheduler.ExecutionContext) error {
		log.Info("running cleanup", slog.String("instance", instance.ID))
		return nil
	})
}

// HeartbeatLog is a recurring task that logs once a minute, reinserted
// by OnCompleteReschedule after every run.
func HeartbeatLog(log *slog.Logger) scheduler.Task {
	return scheduler.NewRecurringTask("heartbeat-log", time.Minute, func(ctx context.Context, instance scheduler.TaskInstance, execCtx scheduler.ExecutionContext) error {
		log.Info("heartbeat-log tick", slog.String("instance", instance.ID), slog.String("scheduler", execCtx.SchedulerName))
		return nil
	})
}
