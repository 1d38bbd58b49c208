package service

import (
	"context"
	"log/slog"

	"github.com/cuongbtq/inventory-counting/internal/counting/domain"
	"go.opentelemetry.io/otel/attribute"
)

// SkippedJob is a job left untouched by a reset because of its status.
type SkippedJob struct {
	JobID  int64         `json:"job_id"`
	Status domain.Status `json:"status"`
}

// ResetResult summarises a ResetJobs call.
type ResetResult struct {
	ResetJobIDs       []int64      `json:"reset_job_ids"`
	Skipped           []SkippedJob `json:"skipped"`
	AssignmentsReset  int          `json:"assignments_reset"`
	ResourcesReleased int64        `json:"resources_released"`
}

// ResetJobs returns VALIDATED, ASSIGNED and READY jobs to PENDING. Assigned
// and ready jobs also lose their teams and resource allocations. Other
// statuses are skipped. A missing job aborts the whole call.
func (s *Service) ResetJobs(ctx context.Context, jobIDs []int64) (*ResetResult, error) {
	ctx, span := s.startSpan(ctx, "reset_jobs", attribute.Int("jobs.count", len(jobIDs)))
	result, err := s.resetJobs(ctx, jobIDs)
	if err = s.finish(span, "reset jobs", err); err != nil {
		return nil, err
	}
	return result, nil
}

func (s *Service) resetJobs(ctx context.Context, jobIDs []int64) (*ResetResult, error) {
	if err := validateIDs("job_ids", jobIDs); err != nil {
		return nil, err
	}

	unlock, err := s.lockJobs(ctx, jobIDs)
	if err != nil {
		return nil, err
	}
	defer unlock()

	var result *ResetResult
	err = s.inTx(ctx, "reset jobs", func(ctx context.Context, repos Repositories) error {
		jobs, err := loadJobs(ctx, repos.Jobs, jobIDs)
		if err != nil {
			return err
		}

		now := s.now()
		r := &ResetResult{ResetJobIDs: []int64{}, Skipped: []SkippedJob{}}
		for i := range jobs {
			job := &jobs[i]

			switch job.Status {
			case domain.StatusValidated:
			case domain.StatusAssigned, domain.StatusReady:
				cleared, released, err := s.releaseJobWork(ctx, repos, job.ID)
				if err != nil {
					return err
				}
				r.AssignmentsReset += cleared
				r.ResourcesReleased += released
			default:
				s.logger.Info("Job status does not allow reset, skipping",
					slog.Int64("job_id", job.ID),
					slog.String("status", job.Status.String()),
				)
				r.Skipped = append(r.Skipped, SkippedJob{JobID: job.ID, Status: job.Status})
				continue
			}

			job.Status = domain.StatusPending
			job.PendingAt = timePtr(now)
			job.ValidatedAt = nil
			job.AssignedAt = nil
			job.ReadyAt = nil
			if err := repos.Jobs.UpdateJob(ctx, job); err != nil {
				return err
			}
			r.ResetJobIDs = append(r.ResetJobIDs, job.ID)
		}

		result = r
		return nil
	})
	if err != nil {
		return nil, err
	}

	s.logger.Info("Jobs reset",
		slog.Int("reset", len(result.ResetJobIDs)),
		slog.Int("skipped", len(result.Skipped)),
		slog.Int("assignments_reset", result.AssignmentsReset),
		slog.Int64("resources_released", result.ResourcesReleased),
	)
	return result, nil
}

// releaseJobWork unbinds every assignment of the job and deletes its resource allocations.
func (s *Service) releaseJobWork(ctx context.Context, repos Repositories, jobID int64) (int, int64, error) {
	assignments, err := repos.Assignments.ListAssignmentsByJob(ctx, jobID)
	if err != nil {
		return 0, 0, err
	}
	for i := range assignments {
		a := &assignments[i].Assignment
		a.ClearProgress()
		if err := repos.Assignments.UpdateAssignment(ctx, a); err != nil {
			return 0, 0, err
		}
	}

	released, err := repos.Resources.DeleteResourcesByJob(ctx, jobID)
	if err != nil {
		return 0, 0, err
	}
	return len(assignments), released, nil
}
