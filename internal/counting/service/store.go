package service

import (
	"context"

	"github.com/cuongbtq/inventory-counting/internal/counting/domain"
)

// Stores return domain.ErrRecordNotFound for missing single rows and
// domain.ErrUniqueViolation when a create breaks a uniqueness constraint.

type JobStore interface {
	GetJob(ctx context.Context, id int64) (*domain.Job, error)
	GetJobsByIDs(ctx context.Context, ids []int64) ([]domain.Job, error)
	UpdateJob(ctx context.Context, job *domain.Job) error
}

type CountingStore interface {
	GetCountingByOrder(ctx context.Context, inventoryID int64, order int) (*domain.Counting, error)
	CreateCounting(ctx context.Context, counting *domain.Counting) error
}

type JobDetailStore interface {
	ListDetailsByJobLocation(ctx context.Context, jobID, locationID int64) ([]domain.LocatedDetail, error)
	GetDetail(ctx context.Context, jobID, locationID, countingID int64) (*domain.JobDetail, error)
	CreateDetail(ctx context.Context, detail *domain.JobDetail) error
}

type AssignmentStore interface {
	GetAssignment(ctx context.Context, jobID, countingID int64) (*domain.Assignment, error)
	ListAssignmentsByJob(ctx context.Context, jobID int64) ([]domain.RoundAssignment, error)
	CreateAssignment(ctx context.Context, assignment *domain.Assignment) error
	UpdateAssignment(ctx context.Context, assignment *domain.Assignment) error
}

type DiscrepancyStore interface {
	// HasSettledDiscrepancy reports whether a resolved discrepancy with a final
	// result exists for the location within the inventory.
	HasSettledDiscrepancy(ctx context.Context, inventoryID, locationID int64) (bool, error)
	// ListCountedLines returns the lines counted for a job in the round of the given order.
	ListCountedLines(ctx context.Context, jobID int64, order int) ([]domain.CountedLine, error)
	// ListUnresolvedLocations returns the distinct locations of the job whose
	// latest discrepancy sequence points to an unresolved discrepancy.
	ListUnresolvedLocations(ctx context.Context, jobID int64) ([]int64, error)
	// ListJobRoundsWithUnresolvedDiscrepancy returns (job, counting order) pairs
	// whose counted lines carry an unresolved discrepancy.
	ListJobRoundsWithUnresolvedDiscrepancy(ctx context.Context, inventoryID, warehouseID int64) ([]domain.JobRound, error)
}

type ResourceStore interface {
	DeleteResourcesByJob(ctx context.Context, jobID int64) (int64, error)
}

type LocationStore interface {
	LocationExists(ctx context.Context, id int64) (bool, error)
}

// Repositories groups the stores bound to one transaction.
type Repositories struct {
	Jobs          JobStore
	Countings     CountingStore
	Details       JobDetailStore
	Assignments   AssignmentStore
	Discrepancies DiscrepancyStore
	Resources     ResourceStore
	Locations     LocationStore
}

// TxRunner runs fn inside one atomic transaction. Returning an error from fn
// rolls back every mutation made through repos.
type TxRunner interface {
	WithinTx(ctx context.Context, fn func(ctx context.Context, repos Repositories) error) error
}

// TeamDirectory resolves mobile teams.
type TeamDirectory interface {
	// ResolveActiveTeam returns domain.ErrRecordNotFound for unknown or inactive teams.
	ResolveActiveTeam(ctx context.Context, teamID int64) (*domain.Team, error)
}

// Locker serialises work on a key across callers.
type Locker interface {
	Lock(ctx context.Context, key string) (unlock func(), err error)
}
