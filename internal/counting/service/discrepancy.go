package service

import (
	"context"
	"errors"
	"log/slog"
	"sort"

	"github.com/cuongbtq/inventory-counting/internal/counting/domain"
	"github.com/shopspring/decimal"
	"go.opentelemetry.io/otel/attribute"
)

// DiscrepancyReport compares the first two rounds of a job.
type DiscrepancyReport struct {
	JobID         int64           `json:"job_id"`
	MismatchCount int             `json:"mismatch_count"`
	Rate          decimal.Decimal `json:"rate"`
	TotalRound1   int             `json:"total_round_1"`
	TotalRound2   int             `json:"total_round_2"`
	CommonLines   int             `json:"common_lines"`
}

// CountingGroup lists the jobs with an unresolved discrepancy in one round.
type CountingGroup struct {
	CountingOrder int     `json:"counting_order"`
	JobIDs        []int64 `json:"job_ids"`
}

type lineKey struct {
	locationID int64
	productID  int64
}

var hundred = decimal.NewFromInt(100)

// CompareRounds counts the (location, product) keys present in both rounds
// whose quantities differ. Keys counted in only one round are ignored.
// Repeated keys within a round are summed.
func CompareRounds(round1, round2 []domain.CountedLine) DiscrepancyReport {
	q1 := sumByKey(round1)
	q2 := sumByKey(round2)

	report := DiscrepancyReport{
		TotalRound1: len(q1),
		TotalRound2: len(q2),
		Rate:        decimal.Zero,
	}
	for key, qty1 := range q1 {
		qty2, ok := q2[key]
		if !ok {
			continue
		}
		report.CommonLines++
		if !qty1.Equal(qty2) {
			report.MismatchCount++
		}
	}

	if report.CommonLines > 0 {
		report.Rate = decimal.NewFromInt(int64(report.MismatchCount)).
			Div(decimal.NewFromInt(int64(report.CommonLines))).
			Mul(hundred).
			Round(2)
	}
	return report
}

func sumByKey(lines []domain.CountedLine) map[lineKey]decimal.Decimal {
	out := make(map[lineKey]decimal.Decimal, len(lines))
	for _, line := range lines {
		key := lineKey{locationID: line.LocationID, productID: line.ProductID}
		out[key] = out[key].Add(line.Quantity)
	}
	return out
}

// ComputeJobDiscrepancy compares the quantities counted in rounds 1 and 2 of a job.
func (s *Service) ComputeJobDiscrepancy(ctx context.Context, jobID int64) (*DiscrepancyReport, error) {
	ctx, span := s.startSpan(ctx, "compute_job_discrepancy", attribute.Int64("job.id", jobID))
	report, err := s.computeJobDiscrepancy(ctx, jobID)
	if err = s.finish(span, "compute job discrepancy", err); err != nil {
		return nil, err
	}
	return report, nil
}

func (s *Service) computeJobDiscrepancy(ctx context.Context, jobID int64) (*DiscrepancyReport, error) {
	if jobID <= 0 {
		return nil, domain.Validationf("job_id must be positive, got %d", jobID)
	}

	var report DiscrepancyReport
	err := s.store.WithinTx(ctx, func(ctx context.Context, repos Repositories) error {
		if _, err := getJob(ctx, repos.Jobs, jobID); err != nil {
			return err
		}

		round1, err := repos.Discrepancies.ListCountedLines(ctx, jobID, 1)
		if err != nil {
			return err
		}
		round2, err := repos.Discrepancies.ListCountedLines(ctx, jobID, 2)
		if err != nil {
			return err
		}

		report = CompareRounds(round1, round2)
		report.JobID = jobID
		return nil
	})
	if err != nil {
		return nil, err
	}

	s.logger.Debug("Job discrepancy computed",
		slog.Int64("job_id", jobID),
		slog.Int("mismatch_count", report.MismatchCount),
		slog.String("rate", report.Rate.StringFixed(2)),
	)
	return &report, nil
}

// UnresolvedLocationsForJob returns the locations of the job whose visible
// discrepancy is not resolved.
func (s *Service) UnresolvedLocationsForJob(ctx context.Context, jobID int64) ([]int64, error) {
	ctx, span := s.startSpan(ctx, "unresolved_locations_for_job", attribute.Int64("job.id", jobID))
	if jobID <= 0 {
		return nil, s.finish(span, "list unresolved locations", domain.Validationf("job_id must be positive, got %d", jobID))
	}

	var locations []int64
	err := s.store.WithinTx(ctx, func(ctx context.Context, repos Repositories) error {
		var err error
		locations, err = unresolvedLocations(ctx, repos, jobID)
		return err
	})
	if err = s.finish(span, "list unresolved locations", err); err != nil {
		return nil, err
	}
	return locations, nil
}

func unresolvedLocations(ctx context.Context, repos Repositories, jobID int64) ([]int64, error) {
	if _, err := getJob(ctx, repos.Jobs, jobID); err != nil {
		return nil, err
	}
	locations, err := repos.Discrepancies.ListUnresolvedLocations(ctx, jobID)
	if err != nil {
		return nil, err
	}
	sort.Slice(locations, func(i, j int) bool { return locations[i] < locations[j] })
	return locations, nil
}

// GroupJobsByCountingWithUnresolvedDiscrepancy groups the jobs of a warehouse
// having an unresolved discrepancy by the order of the offending round.
func (s *Service) GroupJobsByCountingWithUnresolvedDiscrepancy(ctx context.Context, inventoryID, warehouseID int64) ([]CountingGroup, error) {
	ctx, span := s.startSpan(ctx, "group_jobs_by_counting",
		attribute.Int64("inventory.id", inventoryID),
		attribute.Int64("warehouse.id", warehouseID),
	)
	if inventoryID <= 0 || warehouseID <= 0 {
		return nil, s.finish(span, "group jobs by counting",
			domain.Validationf("inventory_id and warehouse_id must be positive, got %d and %d", inventoryID, warehouseID))
	}

	var rounds []domain.JobRound
	err := s.store.WithinTx(ctx, func(ctx context.Context, repos Repositories) error {
		var err error
		rounds, err = repos.Discrepancies.ListJobRoundsWithUnresolvedDiscrepancy(ctx, inventoryID, warehouseID)
		return err
	})
	if err = s.finish(span, "group jobs by counting", err); err != nil {
		return nil, err
	}
	return groupRounds(rounds), nil
}

func groupRounds(rounds []domain.JobRound) []CountingGroup {
	byOrder := make(map[int]map[int64]struct{})
	for _, r := range rounds {
		if byOrder[r.CountingOrder] == nil {
			byOrder[r.CountingOrder] = make(map[int64]struct{})
		}
		byOrder[r.CountingOrder][r.JobID] = struct{}{}
	}

	groups := make([]CountingGroup, 0, len(byOrder))
	for order, jobs := range byOrder {
		ids := make([]int64, 0, len(jobs))
		for id := range jobs {
			ids = append(ids, id)
		}
		sort.Slice(ids, func(i, j int) bool { return ids[i] < ids[j] })
		groups = append(groups, CountingGroup{CountingOrder: order, JobIDs: ids})
	}
	sort.Slice(groups, func(i, j int) bool { return groups[i].CountingOrder < groups[j].CountingOrder })
	return groups
}

func getJob(ctx context.Context, jobs JobStore, jobID int64) (*domain.Job, error) {
	job, err := jobs.GetJob(ctx, jobID)
	if err != nil {
		if errors.Is(err, domain.ErrRecordNotFound) {
			return nil, domain.NotFoundf("job %d not found", jobID).With("job_id", jobID)
		}
		return nil, err
	}
	return job, nil
}
