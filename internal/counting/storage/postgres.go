package storage

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"log/slog"

	"github.com/cuongbtq/inventory-counting/internal/counting/domain"
	"github.com/cuongbtq/inventory-counting/internal/counting/service"
	"github.com/jmoiron/sqlx"
	"github.com/lib/pq"
)

const uniqueViolationCode = "23505"

// Storage handles all counting database operations on PostgreSQL
type Storage struct {
	db     *sqlx.DB
	logger *slog.Logger
}

// NewStorage creates a new Storage instance
func NewStorage(db *sqlx.DB, logger *slog.Logger) *Storage {
	return &Storage{
		db:     db,
		logger: logger,
	}
}

// WithinTx implements service.TxRunner
func (s *Storage) WithinTx(ctx context.Context, fn func(ctx context.Context, repos service.Repositories) error) error {
	tx, err := s.db.BeginTxx(ctx, nil)
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}

	repo := &pgRepo{q: tx}
	repos := service.Repositories{
		Jobs:          repo,
		Countings:     repo,
		Details:       repo,
		Assignments:   repo,
		Discrepancies: repo,
		Resources:     repo,
		Locations:     repo,
	}

	if err := fn(ctx, repos); err != nil {
		if rbErr := tx.Rollback(); rbErr != nil {
			s.logger.Error("Failed to rollback transaction",
				slog.String("error", rbErr.Error()),
			)
		}
		return err
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("failed to commit transaction: %w", mapError(err))
	}
	return nil
}

// ResolveActiveTeam implements service.TeamDirectory against the mobile_teams table
func (s *Storage) ResolveActiveTeam(ctx context.Context, teamID int64) (*domain.Team, error) {
	query := `
		SELECT id, username, is_active
		FROM mobile_teams
		WHERE id = $1 AND is_active
	`

	var team domain.Team
	if err := s.db.GetContext(ctx, &team, query, teamID); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, domain.ErrRecordNotFound
		}
		return nil, fmt.Errorf("failed to get team: %w", err)
	}
	return &team, nil
}

// mapError converts driver errors into domain sentinels
func mapError(err error) error {
	if errors.Is(err, sql.ErrNoRows) {
		return domain.ErrRecordNotFound
	}
	var pqErr *pq.Error
	if errors.As(err, &pqErr) && pqErr.Code == uniqueViolationCode {
		return fmt.Errorf("%w: %s", domain.ErrUniqueViolation, pqErr.Constraint)
	}
	return err
}

type pgRepo struct {
	q sqlx.ExtContext
}

const jobColumns = `
	id, reference, warehouse_id, inventory_id, status,
	pending_at, validated_at, assigned_at, ready_at, transferred_at,
	entame_at, done_at, created_at, updated_at`

func (r *pgRepo) GetJob(ctx context.Context, id int64) (*domain.Job, error) {
	query := `SELECT ` + jobColumns + ` FROM jobs WHERE id = $1 FOR UPDATE`

	var job domain.Job
	if err := sqlx.GetContext(ctx, r.q, &job, query, id); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, domain.ErrRecordNotFound
		}
		return nil, fmt.Errorf("failed to get job: %w", err)
	}
	return &job, nil
}

func (r *pgRepo) GetJobsByIDs(ctx context.Context, ids []int64) ([]domain.Job, error) {
	query := `SELECT ` + jobColumns + ` FROM jobs WHERE id = ANY($1) ORDER BY id FOR UPDATE`

	var jobs []domain.Job
	if err := sqlx.SelectContext(ctx, r.q, &jobs, query, pq.Array(ids)); err != nil {
		return nil, fmt.Errorf("failed to get jobs: %w", err)
	}
	return jobs, nil
}

func (r *pgRepo) UpdateJob(ctx context.Context, job *domain.Job) error {
	query := `
		UPDATE jobs
		SET status = $1,
		    pending_at = $2,
		    validated_at = $3,
		    assigned_at = $4,
		    ready_at = $5,
		    transferred_at = $6,
		    updated_at = NOW()
		WHERE id = $7
	`

	result, err := r.q.ExecContext(ctx, query,
		job.Status,
		job.PendingAt,
		job.ValidatedAt,
		job.AssignedAt,
		job.ReadyAt,
		job.TransferredAt,
		job.ID,
	)
	if err != nil {
		return fmt.Errorf("failed to update job: %w", err)
	}
	return expectRow(result, "job")
}

const countingColumns = `
	id, inventory_id, counting_order, count_mode, label,
	unit_scanned, entry_quantity, show_product, created_at`

func (r *pgRepo) GetCountingByOrder(ctx context.Context, inventoryID int64, order int) (*domain.Counting, error) {
	query := `SELECT ` + countingColumns + ` FROM countings WHERE inventory_id = $1 AND counting_order = $2`

	var counting domain.Counting
	if err := sqlx.GetContext(ctx, r.q, &counting, query, inventoryID, order); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, domain.ErrRecordNotFound
		}
		return nil, fmt.Errorf("failed to get counting: %w", err)
	}
	return &counting, nil
}

func (r *pgRepo) CreateCounting(ctx context.Context, counting *domain.Counting) error {
	query := `
		INSERT INTO countings (
			inventory_id, counting_order, count_mode, label,
			unit_scanned, entry_quantity, show_product, created_at
		) VALUES (
			$1, $2, $3, $4,
			$5, $6, $7, NOW()
		)
		RETURNING id, created_at
	`

	err := r.q.QueryRowxContext(ctx, query,
		counting.InventoryID,
		counting.Order,
		counting.Mode,
		counting.Label,
		counting.UnitScanned,
		counting.EntryQuantity,
		counting.ShowProduct,
	).Scan(&counting.ID, &counting.CreatedAt)
	if err != nil {
		return fmt.Errorf("failed to create counting: %w", mapError(err))
	}
	return nil
}

func (r *pgRepo) ListDetailsByJobLocation(ctx context.Context, jobID, locationID int64) ([]domain.LocatedDetail, error) {
	query := `
		SELECT jd.id, jd.job_id, jd.location_id, jd.counting_id, jd.status, jd.done_at,
		       c.counting_order
		FROM job_details jd
		JOIN countings c ON c.id = jd.counting_id
		WHERE jd.job_id = $1 AND jd.location_id = $2
		ORDER BY c.counting_order
	`

	var details []domain.LocatedDetail
	if err := sqlx.SelectContext(ctx, r.q, &details, query, jobID, locationID); err != nil {
		return nil, fmt.Errorf("failed to list job details: %w", err)
	}
	return details, nil
}

func (r *pgRepo) GetDetail(ctx context.Context, jobID, locationID, countingID int64) (*domain.JobDetail, error) {
	query := `
		SELECT id, job_id, location_id, counting_id, status, done_at
		FROM job_details
		WHERE job_id = $1 AND location_id = $2 AND counting_id = $3
	`

	var detail domain.JobDetail
	if err := sqlx.GetContext(ctx, r.q, &detail, query, jobID, locationID, countingID); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, domain.ErrRecordNotFound
		}
		return nil, fmt.Errorf("failed to get job detail: %w", err)
	}
	return &detail, nil
}

func (r *pgRepo) CreateDetail(ctx context.Context, detail *domain.JobDetail) error {
	query := `
		INSERT INTO job_details (job_id, location_id, counting_id, status, done_at)
		VALUES ($1, $2, $3, $4, $5)
		RETURNING id
	`

	err := r.q.QueryRowxContext(ctx, query,
		detail.JobID,
		detail.LocationID,
		detail.CountingID,
		detail.Status,
		detail.DoneAt,
	).Scan(&detail.ID)
	if err != nil {
		return fmt.Errorf("failed to create job detail: %w", mapError(err))
	}
	return nil
}

const assignmentColumns = `
	a.id, a.job_id, a.counting_id, a.team_id, a.status,
	a.assigned_at, a.ready_at, a.transferred_at, a.started_at, a.done_at`

func (r *pgRepo) GetAssignment(ctx context.Context, jobID, countingID int64) (*domain.Assignment, error) {
	query := `SELECT ` + assignmentColumns + ` FROM assignments a WHERE a.job_id = $1 AND a.counting_id = $2 FOR UPDATE`

	var assignment domain.Assignment
	if err := sqlx.GetContext(ctx, r.q, &assignment, query, jobID, countingID); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, domain.ErrRecordNotFound
		}
		return nil, fmt.Errorf("failed to get assignment: %w", err)
	}
	return &assignment, nil
}

func (r *pgRepo) ListAssignmentsByJob(ctx context.Context, jobID int64) ([]domain.RoundAssignment, error) {
	query := `
		SELECT ` + assignmentColumns + `, c.inventory_id, c.counting_order
		FROM assignments a
		JOIN countings c ON c.id = a.counting_id
		WHERE a.job_id = $1
		ORDER BY c.counting_order
		FOR UPDATE OF a
	`

	var assignments []domain.RoundAssignment
	if err := sqlx.SelectContext(ctx, r.q, &assignments, query, jobID); err != nil {
		return nil, fmt.Errorf("failed to list assignments: %w", err)
	}
	return assignments, nil
}

func (r *pgRepo) CreateAssignment(ctx context.Context, assignment *domain.Assignment) error {
	query := `
		INSERT INTO assignments (
			job_id, counting_id, team_id, status,
			assigned_at, ready_at, transferred_at, started_at, done_at
		) VALUES (
			$1, $2, $3, $4,
			$5, $6, $7, $8, $9
		)
		RETURNING id
	`

	err := r.q.QueryRowxContext(ctx, query,
		assignment.JobID,
		assignment.CountingID,
		assignment.TeamID,
		assignment.Status,
		assignment.AssignedAt,
		assignment.ReadyAt,
		assignment.TransferredAt,
		assignment.StartedAt,
		assignment.DoneAt,
	).Scan(&assignment.ID)
	if err != nil {
		return fmt.Errorf("failed to create assignment: %w", mapError(err))
	}
	return nil
}

func (r *pgRepo) UpdateAssignment(ctx context.Context, assignment *domain.Assignment) error {
	query := `
		UPDATE assignments
		SET team_id = $1,
		    status = $2,
		    assigned_at = $3,
		    ready_at = $4,
		    transferred_at = $5,
		    started_at = $6,
		    done_at = $7
		WHERE id = $8
	`

	result, err := r.q.ExecContext(ctx, query,
		assignment.TeamID,
		assignment.Status,
		assignment.AssignedAt,
		assignment.ReadyAt,
		assignment.TransferredAt,
		assignment.StartedAt,
		assignment.DoneAt,
		assignment.ID,
	)
	if err != nil {
		return fmt.Errorf("failed to update assignment: %w", err)
	}
	return expectRow(result, "assignment")
}

func (r *pgRepo) HasSettledDiscrepancy(ctx context.Context, inventoryID, locationID int64) (bool, error) {
	query := `
		SELECT EXISTS (
			SELECT 1
			FROM discrepancies
			WHERE inventory_id = $1
			  AND location_id = $2
			  AND resolved
			  AND final_result IS NOT NULL
		)
	`

	var exists bool
	if err := sqlx.GetContext(ctx, r.q, &exists, query, inventoryID, locationID); err != nil {
		return false, fmt.Errorf("failed to check settled discrepancy: %w", err)
	}
	return exists, nil
}

func (r *pgRepo) ListCountedLines(ctx context.Context, jobID int64, order int) ([]domain.CountedLine, error) {
	query := `
		SELECT cd.location_id, cd.product_id, cd.quantity
		FROM counting_details cd
		JOIN countings c ON c.id = cd.counting_id
		WHERE cd.job_id = $1 AND c.counting_order = $2
	`

	var lines []domain.CountedLine
	if err := sqlx.SelectContext(ctx, r.q, &lines, query, jobID, order); err != nil {
		return nil, fmt.Errorf("failed to list counted lines: %w", err)
	}
	return lines, nil
}

// latestSequences selects, per discrepancy key, the most recent sequence entry
// and the counted line it points to.
const latestSequences = `
	SELECT DISTINCT ON (d.inventory_id, d.location_id, d.product_id)
	       d.location_id, d.resolved, cd.job_id, c.counting_order
	FROM discrepancy_sequences s
	JOIN counting_details cd ON cd.id = s.counting_detail_id
	JOIN countings c ON c.id = cd.counting_id
	JOIN discrepancies d ON d.id = s.discrepancy_id
	JOIN jobs j ON j.id = cd.job_id
	WHERE %s
	ORDER BY d.inventory_id, d.location_id, d.product_id, s.seq DESC`

func (r *pgRepo) ListUnresolvedLocations(ctx context.Context, jobID int64) ([]int64, error) {
	query := `
		SELECT DISTINCT latest.location_id
		FROM (` + fmt.Sprintf(latestSequences, "cd.job_id = $1") + `) latest
		WHERE NOT latest.resolved
		ORDER BY latest.location_id
	`

	locations := []int64{}
	if err := sqlx.SelectContext(ctx, r.q, &locations, query, jobID); err != nil {
		return nil, fmt.Errorf("failed to list unresolved locations: %w", err)
	}
	return locations, nil
}

func (r *pgRepo) ListJobRoundsWithUnresolvedDiscrepancy(ctx context.Context, inventoryID, warehouseID int64) ([]domain.JobRound, error) {
	query := `
		SELECT DISTINCT latest.job_id, latest.counting_order
		FROM (` + fmt.Sprintf(latestSequences, "j.inventory_id = $1 AND j.warehouse_id = $2") + `) latest
		WHERE NOT latest.resolved
		ORDER BY latest.counting_order, latest.job_id
	`

	var rounds []domain.JobRound
	if err := sqlx.SelectContext(ctx, r.q, &rounds, query, inventoryID, warehouseID); err != nil {
		return nil, fmt.Errorf("failed to list jobs with unresolved discrepancy: %w", err)
	}
	return rounds, nil
}

func (r *pgRepo) DeleteResourcesByJob(ctx context.Context, jobID int64) (int64, error) {
	result, err := r.q.ExecContext(ctx, `DELETE FROM resource_allocations WHERE job_id = $1`, jobID)
	if err != nil {
		return 0, fmt.Errorf("failed to release job resources: %w", err)
	}

	deleted, err := result.RowsAffected()
	if err != nil {
		return 0, fmt.Errorf("failed to get rows affected: %w", err)
	}
	return deleted, nil
}

func (r *pgRepo) LocationExists(ctx context.Context, id int64) (bool, error) {
	var exists bool
	if err := sqlx.GetContext(ctx, r.q, &exists, `SELECT EXISTS (SELECT 1 FROM locations WHERE id = $1)`, id); err != nil {
		return false, fmt.Errorf("failed to check location: %w", err)
	}
	return exists, nil
}

func expectRow(result sql.Result, entity string) error {
	rows, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("failed to get rows affected: %w", err)
	}
	if rows == 0 {
		return fmt.Errorf("%s: %w", entity, domain.ErrRecordNotFound)
	}
	return nil
}
