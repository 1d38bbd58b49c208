package worker

import (
	"context"
	"fmt"
	"log/slog"

	counting "github.com/cuongbtq/inventory-counting/internal/counting/domain"
	"github.com/cuongbtq/inventory-counting/internal/worker/domain"
)

// processCommand runs one batch escalation. Per-location failures are part of
// a successful batch. Only a whole-batch creation failure is retried, once.
func (w *Worker) processCommand(ctx context.Context, msg *domain.CommandMessage) error {
	cmd := msg.Command
	w.logger.Info("Processing escalation command",
		slog.String("command_id", cmd.CommandID),
		slog.Int("job_count", len(cmd.JobIDs)),
		slog.Int64("team_id", cmd.TeamID),
		slog.Bool("redelivered", msg.Delivery.Redelivered),
	)

	jobCtx, cancel := context.WithTimeout(ctx, w.jobTimeout)
	defer cancel()

	result, err := w.runner.LaunchCountingForJobs(jobCtx, cmd.JobIDs, cmd.TeamID)
	if err != nil {
		switch {
		case !counting.IsKind(err, counting.KindCreation) && !counting.IsKind(err, counting.KindConflict):
			return fmt.Errorf("%w: %v", domain.ErrRejected, err)
		case msg.Delivery.Redelivered:
			return fmt.Errorf("%w: %v", domain.ErrMaxRetriesExceeded, err)
		default:
			return domain.NewRetryableError(err)
		}
	}

	outcome := domain.OutcomeCompleted
	switch {
	case len(result.Failures) > 0 && len(result.Launched) == 0:
		outcome = domain.OutcomeFailed
	case len(result.Failures) > 0:
		outcome = domain.OutcomePartial
	}

	w.logger.Info("Escalation command finished",
		slog.String("command_id", cmd.CommandID),
		slog.String("outcome", outcome),
		slog.Int("launched", len(result.Launched)),
		slog.Int("failures", len(result.Failures)),
	)
	for _, f := range result.Failures {
		w.logger.Warn("Escalation failure in batch",
			slog.String("command_id", cmd.CommandID),
			slog.Int64("job_id", f.JobID),
			slog.Int64("location_id", f.LocationID),
			slog.String("kind", f.Kind),
			slog.String("message", f.Message),
		)
	}
	return nil
}
