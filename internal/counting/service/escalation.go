package service

import (
	"context"
	"errors"
	"log/slog"

	"github.com/cuongbtq/inventory-counting/internal/counting/domain"
	"go.opentelemetry.io/otel/attribute"
)

// EscalationResult describes the round opened for a (job, location).
type EscalationResult struct {
	JobID             int64 `json:"job_id"`
	LocationID        int64 `json:"location_id"`
	TeamID            int64 `json:"team_id"`
	CountingID        int64 `json:"counting_id"`
	CountingOrder     int   `json:"counting_order"`
	CountingCreated   bool  `json:"counting_created"`
	AssignmentCreated bool  `json:"assignment_created"`
	JobDetailCreated  bool  `json:"job_detail_created"`
	// RepairedOrders lists prior rounds whose missing JobDetail was backfilled
	// from a DONE assignment.
	RepairedOrders []int `json:"repaired_orders,omitempty"`
}

// LaunchFailure is one (job, location) that could not be escalated.
type LaunchFailure struct {
	JobID      int64  `json:"job_id"`
	LocationID int64  `json:"location_id,omitempty"`
	Kind       string `json:"kind"`
	Message    string `json:"message"`
}

// BatchEscalationResult aggregates a LaunchCountingForJobs call. Successes are
// never undone by failures.
type BatchEscalationResult struct {
	TeamID   int64              `json:"team_id"`
	Launched []EscalationResult `json:"launched"`
	Failures []LaunchFailure    `json:"failures"`
}

// OK reports whether every attempted location was escalated.
func (r *BatchEscalationResult) OK() bool {
	return len(r.Failures) == 0
}

// LaunchCounting opens the next counting round (3 or beyond) for a location of
// a job and transfers it to the team.
func (s *Service) LaunchCounting(ctx context.Context, jobID, locationID, teamID int64) (*EscalationResult, error) {
	ctx, span := s.startSpan(ctx, "launch_counting",
		attribute.Int64("job.id", jobID),
		attribute.Int64("location.id", locationID),
		attribute.Int64("team.id", teamID),
	)
	result, err := s.launchCounting(ctx, jobID, locationID, teamID)
	if err = s.finish(span, "launch counting", err); err != nil {
		return nil, err
	}
	return result, nil
}

func (s *Service) launchCounting(ctx context.Context, jobID, locationID, teamID int64) (*EscalationResult, error) {
	if jobID <= 0 || locationID <= 0 || teamID <= 0 {
		return nil, domain.Validationf("job_id, location_id and team_id must be positive, got %d, %d and %d",
			jobID, locationID, teamID)
	}

	team, err := s.resolveTeam(ctx, teamID)
	if err != nil {
		return nil, err
	}
	return s.launchForTeam(ctx, jobID, locationID, team)
}

// LaunchCountingForJobs escalates every location of the jobs that has an
// unresolved discrepancy. Each location runs in its own transaction and
// failures are collected instead of aborting the batch.
func (s *Service) LaunchCountingForJobs(ctx context.Context, jobIDs []int64, teamID int64) (*BatchEscalationResult, error) {
	ctx, span := s.startSpan(ctx, "launch_counting_for_jobs",
		attribute.Int("jobs.count", len(jobIDs)),
		attribute.Int64("team.id", teamID),
	)
	result, err := s.launchCountingForJobs(ctx, jobIDs, teamID)
	if result != nil {
		span.SetAttributes(
			attribute.Int("launched", len(result.Launched)),
			attribute.Int("failures", len(result.Failures)),
		)
	}
	if err = s.finish(span, "launch counting for jobs", err); err != nil {
		return nil, err
	}
	return result, nil
}

func (s *Service) launchCountingForJobs(ctx context.Context, jobIDs []int64, teamID int64) (*BatchEscalationResult, error) {
	if err := validateIDs("job_ids", jobIDs); err != nil {
		return nil, err
	}
	if teamID <= 0 {
		return nil, domain.Validationf("team_id must be positive, got %d", teamID)
	}

	team, err := s.resolveTeam(ctx, teamID)
	if err != nil {
		return nil, err
	}

	result := &BatchEscalationResult{
		TeamID:   teamID,
		Launched: []EscalationResult{},
		Failures: []LaunchFailure{},
	}

	for _, jobID := range jobIDs {
		var locations []int64
		err := s.store.WithinTx(ctx, func(ctx context.Context, repos Repositories) error {
			var err error
			locations, err = unresolvedLocations(ctx, repos, jobID)
			return err
		})
		if err != nil {
			result.Failures = append(result.Failures, s.launchFailure("list unresolved locations", jobID, 0, err))
			continue
		}

		if len(locations) == 0 {
			s.logger.Debug("No unresolved discrepancy for job",
				slog.Int64("job_id", jobID),
			)
			continue
		}

		for _, locationID := range locations {
			launched, err := s.launchForTeam(ctx, jobID, locationID, team)
			if err != nil {
				result.Failures = append(result.Failures, s.launchFailure("launch counting", jobID, locationID, err))
				continue
			}
			result.Launched = append(result.Launched, *launched)
		}
	}

	s.logger.Info("Batch escalation finished",
		slog.Int64("team_id", teamID),
		slog.Int("jobs", len(jobIDs)),
		slog.Int("launched", len(result.Launched)),
		slog.Int("failures", len(result.Failures)),
	)
	return result, nil
}

func (s *Service) launchFailure(op string, jobID, locationID int64, err error) LaunchFailure {
	derr := s.classify(op, err)
	s.logger.Warn("Escalation failed for location",
		slog.Int64("job_id", jobID),
		slog.Int64("location_id", locationID),
		slog.String("kind", derr.Kind.String()),
		slog.String("error", derr.Error()),
	)
	return LaunchFailure{
		JobID:      jobID,
		LocationID: locationID,
		Kind:       derr.Kind.String(),
		Message:    derr.Message,
	}
}

func (s *Service) launchForTeam(ctx context.Context, jobID, locationID int64, team *domain.Team) (*EscalationResult, error) {
	unlock, err := s.lockJobs(ctx, []int64{jobID})
	if err != nil {
		return nil, err
	}
	defer unlock()

	var result *EscalationResult
	err = s.inTx(ctx, "launch counting", func(ctx context.Context, repos Repositories) error {
		r, err := s.openRound(ctx, repos, jobID, locationID, team.ID)
		if err != nil {
			return err
		}
		result = r
		return nil
	})
	if err != nil {
		return nil, err
	}

	s.logger.Info("Counting round launched",
		slog.Int64("job_id", jobID),
		slog.Int64("location_id", locationID),
		slog.Int64("team_id", team.ID),
		slog.Int("counting_order", result.CountingOrder),
		slog.Bool("counting_created", result.CountingCreated),
	)
	return result, nil
}

func (s *Service) openRound(ctx context.Context, repos Repositories, jobID, locationID, teamID int64) (*EscalationResult, error) {
	job, err := getJob(ctx, repos.Jobs, jobID)
	if err != nil {
		return nil, err
	}

	exists, err := repos.Locations.LocationExists(ctx, locationID)
	if err != nil {
		return nil, err
	}
	if !exists {
		return nil, domain.NotFoundf("location %d not found", locationID).With("location_id", locationID)
	}

	details, err := repos.Details.ListDetailsByJobLocation(ctx, job.ID, locationID)
	if err != nil {
		return nil, err
	}
	if len(details) == 0 {
		return nil, domain.Validationf("location %d is not part of job %d", locationID, job.ID).
			With("job_id", job.ID).
			With("location_id", locationID)
	}

	settled, err := repos.Discrepancies.HasSettledDiscrepancy(ctx, job.InventoryID, locationID)
	if err != nil {
		return nil, err
	}
	if settled {
		return nil, domain.BusinessRulef("discrepancy at location %d is already resolved with a final result", locationID).
			With("location_id", locationID)
	}

	template, err := s.countingByOrder(ctx, repos, job.InventoryID, domain.FirstEscalationOrder)
	if err != nil {
		return nil, err
	}

	highest := 0
	for _, d := range details {
		if d.CountingOrder > highest {
			highest = d.CountingOrder
		}
	}

	result := &EscalationResult{JobID: job.ID, LocationID: locationID, TeamID: teamID}
	target := template
	required := []int{1, 2}
	if highest >= domain.FirstEscalationOrder {
		order := highest + 1
		required = []int{highest}

		target, err = repos.Countings.GetCountingByOrder(ctx, job.InventoryID, order)
		if errors.Is(err, domain.ErrRecordNotFound) {
			clone := template.CloneAs(order)
			if err := repos.Countings.CreateCounting(ctx, &clone); err != nil {
				return nil, err
			}
			target = &clone
			result.CountingCreated = true
		} else if err != nil {
			return nil, err
		}
	}
	if !target.Mode.AcceptsTeam() {
		return nil, domain.BusinessRulef("counting %d runs in %s mode and cannot take a team", target.Order, target.Mode).
			With("count_mode", string(target.Mode))
	}
	result.CountingID = target.ID
	result.CountingOrder = target.Order

	now := s.now()
	result.RepairedOrders, err = s.ensurePriorRoundsDone(ctx, repos, job, locationID, required)
	if err != nil {
		return nil, err
	}

	_, err = repos.Details.GetDetail(ctx, job.ID, locationID, target.ID)
	if errors.Is(err, domain.ErrRecordNotFound) {
		detail := &domain.JobDetail{
			JobID:      job.ID,
			LocationID: locationID,
			CountingID: target.ID,
			Status:     domain.StatusPending,
		}
		if err := repos.Details.CreateDetail(ctx, detail); err != nil {
			return nil, err
		}
		result.JobDetailCreated = true
	} else if err != nil {
		return nil, err
	}

	// Escalation rounds are pre-authorised: the assignment jumps straight to
	// TRANSFERRED with every progression timestamp set.
	assignment, err := repos.Assignments.GetAssignment(ctx, job.ID, target.ID)
	if errors.Is(err, domain.ErrRecordNotFound) {
		assignment = &domain.Assignment{JobID: job.ID, CountingID: target.ID}
		result.AssignmentCreated = true
	} else if err != nil {
		return nil, err
	}
	assignment.TeamID = &teamID
	assignment.Status = domain.StatusTransferred
	assignment.AssignedAt = timePtr(now)
	assignment.ReadyAt = timePtr(now)
	assignment.TransferredAt = timePtr(now)

	if result.AssignmentCreated {
		err = repos.Assignments.CreateAssignment(ctx, assignment)
	} else {
		err = repos.Assignments.UpdateAssignment(ctx, assignment)
	}
	if err != nil {
		return nil, err
	}
	return result, nil
}

// ensurePriorRoundsDone checks that the location was counted in every required
// round. A missing JobDetail whose round assignment is DONE is recreated as
// DONE; the orders repaired this way are returned.
func (s *Service) ensurePriorRoundsDone(ctx context.Context, repos Repositories, job *domain.Job, locationID int64, orders []int) ([]int, error) {
	var repaired []int
	for _, order := range orders {
		counting, err := s.countingByOrder(ctx, repos, job.InventoryID, order)
		if err != nil {
			return nil, err
		}

		detail, err := repos.Details.GetDetail(ctx, job.ID, locationID, counting.ID)
		if err == nil {
			if detail.Status != domain.StatusDone {
				return nil, roundIncomplete(order, locationID)
			}
			continue
		}
		if !errors.Is(err, domain.ErrRecordNotFound) {
			return nil, err
		}

		assignment, err := repos.Assignments.GetAssignment(ctx, job.ID, counting.ID)
		if errors.Is(err, domain.ErrRecordNotFound) {
			return nil, roundIncomplete(order, locationID)
		}
		if err != nil {
			return nil, err
		}
		if assignment.Status != domain.StatusDone {
			return nil, roundIncomplete(order, locationID)
		}

		doneAt := assignment.DoneAt
		if doneAt == nil {
			doneAt = timePtr(s.now())
		}
		backfill := &domain.JobDetail{
			JobID:      job.ID,
			LocationID: locationID,
			CountingID: counting.ID,
			Status:     domain.StatusDone,
			DoneAt:     doneAt,
		}
		if err := repos.Details.CreateDetail(ctx, backfill); err != nil {
			return nil, err
		}

		s.logger.Warn("Missing job detail recreated from finished assignment",
			slog.String("event", "job_detail_repaired"),
			slog.Int64("job_id", job.ID),
			slog.Int64("location_id", locationID),
			slog.Int("counting_order", order),
			slog.Int64("assignment_id", assignment.ID),
			slog.Int64("job_detail_id", backfill.ID),
		)
		repaired = append(repaired, order)
	}
	return repaired, nil
}

func roundIncomplete(order int, locationID int64) error {
	return domain.BusinessRulef("counting %d is not done for location %d", order, locationID).
		With("counting_order", order).
		With("location_id", locationID)
}

func (s *Service) countingByOrder(ctx context.Context, repos Repositories, inventoryID int64, order int) (*domain.Counting, error) {
	counting, err := repos.Countings.GetCountingByOrder(ctx, inventoryID, order)
	if err != nil {
		if errors.Is(err, domain.ErrRecordNotFound) {
			return nil, domain.NotFoundf("counting %d not found for inventory %d", order, inventoryID).
				With("inventory_id", inventoryID).
				With("counting_order", order)
		}
		return nil, err
	}
	return counting, nil
}
