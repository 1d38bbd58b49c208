package service

import (
	"context"
	"errors"
	"log/slog"
	"time"

	"github.com/cuongbtq/inventory-counting/internal/counting/domain"
	"go.opentelemetry.io/otel/attribute"
)

// AssignTeamsInput is the request to bind a team to one round of several jobs.
type AssignTeamsInput struct {
	JobIDs        []int64
	CountingOrder int
	TeamID        *int64
	StartTime     *time.Time
}

// AssignmentResult summarises an AssignTeams call.
type AssignmentResult struct {
	CountingOrder int   `json:"counting_order"`
	InventoryID   int64 `json:"inventory_id"`
	Created       int   `json:"created"`
	Updated       int   `json:"updated"`
}

// AssignTeams creates or updates the assignment of every job for the round of
// the given order, then re-derives each job's status.
func (s *Service) AssignTeams(ctx context.Context, in AssignTeamsInput) (*AssignmentResult, error) {
	ctx, span := s.startSpan(ctx, "assign_teams",
		attribute.Int("counting.order", in.CountingOrder),
		attribute.Int("jobs.count", len(in.JobIDs)),
	)
	result, err := s.assignTeams(ctx, in)
	if err = s.finish(span, "assign teams", err); err != nil {
		return nil, err
	}
	return result, nil
}

func (s *Service) assignTeams(ctx context.Context, in AssignTeamsInput) (*AssignmentResult, error) {
	if err := validateIDs("job_ids", in.JobIDs); err != nil {
		return nil, err
	}
	if in.CountingOrder <= 0 {
		return nil, domain.Validationf("counting_order must be positive, got %d", in.CountingOrder)
	}
	if in.TeamID != nil && *in.TeamID <= 0 {
		return nil, domain.Validationf("team_id must be positive, got %d", *in.TeamID)
	}

	var team *domain.Team
	if in.TeamID != nil {
		var err error
		if team, err = s.resolveTeam(ctx, *in.TeamID); err != nil {
			return nil, err
		}
	}

	unlock, err := s.lockJobs(ctx, in.JobIDs)
	if err != nil {
		return nil, err
	}
	defer unlock()

	s.logger.Info("Assigning teams",
		slog.Int("counting_order", in.CountingOrder),
		slog.Int("job_count", len(in.JobIDs)),
		slog.Bool("with_team", team != nil),
	)

	var result *AssignmentResult
	err = s.inTx(ctx, "assign teams", func(ctx context.Context, repos Repositories) error {
		jobs, err := loadJobs(ctx, repos.Jobs, in.JobIDs)
		if err != nil {
			return err
		}

		inventoryID, err := singleInventory(jobs)
		if err != nil {
			return err
		}

		var unvalidated []int64
		for _, job := range jobs {
			if job.Status == domain.StatusPending {
				unvalidated = append(unvalidated, job.ID)
			}
		}
		if len(unvalidated) > 0 {
			return domain.BusinessRulef("jobs must be validated before assignment: %v", unvalidated).
				With("job_ids", unvalidated)
		}

		counting, err := s.countingByOrder(ctx, repos, inventoryID, in.CountingOrder)
		if err != nil {
			return err
		}

		if team != nil && !counting.Mode.AcceptsTeam() {
			return domain.BusinessRulef("counting %d runs in %s mode and cannot take a team", counting.Order, counting.Mode).
				With("count_mode", string(counting.Mode))
		}

		now := s.now()
		r := &AssignmentResult{CountingOrder: counting.Order, InventoryID: inventoryID}
		for i := range jobs {
			job := &jobs[i]

			created, err := s.upsertAssignment(ctx, repos, job, counting, in, now)
			if err != nil {
				return err
			}
			if created {
				r.Created++
			} else {
				r.Updated++
			}

			if err := s.deriveJobStatus(ctx, repos, job, now); err != nil {
				return err
			}
		}

		result = r
		return nil
	})
	if err != nil {
		return nil, err
	}

	s.logger.Info("Teams assigned",
		slog.Int64("inventory_id", result.InventoryID),
		slog.Int("counting_order", result.CountingOrder),
		slog.Int("created", result.Created),
		slog.Int("updated", result.Updated),
	)
	return result, nil
}

func singleInventory(jobs []domain.Job) (int64, error) {
	seen := make(map[int64]struct{})
	var inventories []int64
	for _, job := range jobs {
		if _, ok := seen[job.InventoryID]; ok {
			continue
		}
		seen[job.InventoryID] = struct{}{}
		inventories = append(inventories, job.InventoryID)
	}
	if len(inventories) != 1 {
		return 0, domain.Validationf("jobs must belong to exactly one inventory, got %v", inventories).
			With("inventory_ids", inventories)
	}
	return inventories[0], nil
}

// upsertAssignment reports whether a new assignment was created.
func (s *Service) upsertAssignment(ctx context.Context, repos Repositories, job *domain.Job, counting *domain.Counting, in AssignTeamsInput, now time.Time) (bool, error) {
	assignment, err := repos.Assignments.GetAssignment(ctx, job.ID, counting.ID)
	if errors.Is(err, domain.ErrRecordNotFound) {
		assignment = &domain.Assignment{
			JobID:      job.ID,
			CountingID: counting.ID,
			TeamID:     copyID(in.TeamID),
			Status:     domain.StatusAssigned,
			AssignedAt: timePtr(now),
			StartedAt:  in.StartTime,
		}
		return true, repos.Assignments.CreateAssignment(ctx, assignment)
	}
	if err != nil {
		return false, err
	}

	status, stamp := domain.ResolveAssignmentStatus(assignment.Status, job.Status)
	assignment.Status = status
	if stamp {
		assignment.AssignedAt = timePtr(now)
	}
	if in.TeamID != nil {
		assignment.TeamID = copyID(in.TeamID)
	}
	if in.StartTime != nil {
		assignment.StartedAt = in.StartTime
	}
	return false, repos.Assignments.UpdateAssignment(ctx, assignment)
}

// deriveJobStatus moves the job to ASSIGNED once rounds 1 or 2 carry a team,
// and aligns the job's other unprotected assignments with it. A job without
// any team keeps its VALIDATED status.
func (s *Service) deriveJobStatus(ctx context.Context, repos Repositories, job *domain.Job, now time.Time) error {
	assignments, err := repos.Assignments.ListAssignmentsByJob(ctx, job.ID)
	if err != nil {
		return err
	}

	teamBound := false
	for _, a := range assignments {
		if a.CountingOrder <= 2 && a.TeamID != nil {
			teamBound = true
			break
		}
	}
	if !teamBound || job.Status.Protected() {
		return nil
	}

	if job.Status != domain.StatusAssigned {
		job.Status = domain.StatusAssigned
		job.AssignedAt = timePtr(now)
		if err := repos.Jobs.UpdateJob(ctx, job); err != nil {
			return err
		}
	}

	for i := range assignments {
		a := &assignments[i]
		if a.InventoryID != job.InventoryID || a.Status.Protected() || a.Status == domain.StatusAssigned {
			continue
		}
		a.Status = domain.StatusAssigned
		a.AssignedAt = timePtr(now)
		if err := repos.Assignments.UpdateAssignment(ctx, &a.Assignment); err != nil {
			return err
		}
	}
	return nil
}

func copyID(id *int64) *int64 {
	if id == nil {
		return nil
	}
	v := *id
	return &v
}
