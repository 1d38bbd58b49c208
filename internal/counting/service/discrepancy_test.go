package service_test

import (
	"testing"

	"github.com/cuongbtq/inventory-counting/internal/counting/domain"
	"github.com/cuongbtq/inventory-counting/internal/counting/service"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func line(location, product int64, qty int64) domain.CountedLine {
	return domain.CountedLine{LocationID: location, ProductID: product, Quantity: decimal.NewFromInt(qty)}
}

func TestCompareRounds(t *testing.T) {
	tests := []struct {
		name         string
		round1       []domain.CountedLine
		round2       []domain.CountedLine
		wantMismatch int
		wantCommon   int
		wantRate     string
		wantTotals   [2]int
	}{
		{
			name:         "partial overlap",
			round1:       []domain.CountedLine{line(1, 1, 10), line(1, 2, 5), line(1, 3, 7)},
			round2:       []domain.CountedLine{line(1, 1, 10), line(1, 2, 6), line(1, 4, 3)},
			wantMismatch: 1,
			wantCommon:   2,
			wantRate:     "50",
			wantTotals:   [2]int{3, 3},
		},
		{
			name:       "no common lines",
			round1:     []domain.CountedLine{line(1, 1, 10)},
			round2:     []domain.CountedLine{line(2, 1, 10)},
			wantRate:   "0",
			wantTotals: [2]int{1, 1},
		},
		{
			name:     "both rounds empty",
			wantRate: "0",
		},
		{
			name:         "rate rounded to two decimals",
			round1:       []domain.CountedLine{line(1, 1, 1), line(1, 2, 2), line(1, 3, 3)},
			round2:       []domain.CountedLine{line(1, 1, 9), line(1, 2, 2), line(1, 3, 3)},
			wantMismatch: 1,
			wantCommon:   3,
			wantRate:     "33.33",
			wantTotals:   [2]int{3, 3},
		},
		{
			name:         "repeated keys are summed",
			round1:       []domain.CountedLine{line(1, 1, 4), line(1, 1, 6)},
			round2:       []domain.CountedLine{line(1, 1, 10)},
			wantMismatch: 0,
			wantCommon:   1,
			wantRate:     "0",
			wantTotals:   [2]int{1, 1},
		},
		{
			name:         "same product at different locations",
			round1:       []domain.CountedLine{line(1, 1, 4), line(2, 1, 6)},
			round2:       []domain.CountedLine{line(1, 1, 4), line(2, 1, 7)},
			wantMismatch: 1,
			wantCommon:   2,
			wantRate:     "50",
			wantTotals:   [2]int{2, 2},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			report := service.CompareRounds(tt.round1, tt.round2)

			assert.Equal(t, tt.wantMismatch, report.MismatchCount)
			assert.Equal(t, tt.wantCommon, report.CommonLines)
			assert.True(t, decimal.RequireFromString(tt.wantRate).Equal(report.Rate),
				"rate = %s, want %s", report.Rate, tt.wantRate)
			assert.Equal(t, tt.wantTotals[0], report.TotalRound1)
			assert.Equal(t, tt.wantTotals[1], report.TotalRound2)
		})
	}
}

func TestComputeJobDiscrepancy(t *testing.T) {
	f := newFixture(t)
	job := f.addJob(domain.StatusAssigned)
	f.addLine(job.ID, 1, locationA, 1, "10")
	f.addLine(job.ID, 1, locationA, 2, "5")
	f.addLine(job.ID, 1, locationA, 3, "7")
	f.addLine(job.ID, 2, locationA, 1, "10")
	f.addLine(job.ID, 2, locationA, 2, "6")
	f.addLine(job.ID, 2, locationA, 4, "3")
	f.addLine(job.ID, 3, locationA, 2, "6")

	other := f.addJob(domain.StatusAssigned)
	f.addLine(other.ID, 1, locationA, 1, "99")

	report, err := f.svc.ComputeJobDiscrepancy(f.ctx, job.ID)
	require.NoError(t, err)

	assert.Equal(t, job.ID, report.JobID)
	assert.Equal(t, 1, report.MismatchCount)
	assert.Equal(t, 2, report.CommonLines)
	assert.Equal(t, 3, report.TotalRound1)
	assert.Equal(t, 3, report.TotalRound2)
	assert.Equal(t, "50.00", report.Rate.StringFixed(2))
}

func TestComputeJobDiscrepancy_Errors(t *testing.T) {
	f := newFixture(t)

	_, err := f.svc.ComputeJobDiscrepancy(f.ctx, 0)
	requireKind(t, err, domain.KindValidation)

	_, err = f.svc.ComputeJobDiscrepancy(f.ctx, 424242)
	requireKind(t, err, domain.KindNotFound)
}

func TestUnresolvedLocationsForJob(t *testing.T) {
	f := newFixture(t)
	job := f.addJob(domain.StatusAssigned)

	// Open discrepancy, listed.
	f.addDiscrepancy(job.ID, 2, locationB, 1, false, 1)
	f.addDiscrepancy(job.ID, 2, locationB, 2, false, 1)
	// Resolved discrepancy, not listed.
	f.addDiscrepancy(job.ID, 2, locationA, 1, true, 1)
	// Superseded by a later resolved entry for the same key.
	f.addDiscrepancy(job.ID, 1, locationC, 1, false, 1)
	f.addDiscrepancy(job.ID, 2, locationC, 1, true, 2)

	other := f.addJob(domain.StatusAssigned)
	f.addDiscrepancy(other.ID, 2, strayLocation, 1, false, 1)

	locations, err := f.svc.UnresolvedLocationsForJob(f.ctx, job.ID)
	require.NoError(t, err)
	assert.Equal(t, []int64{locationB}, locations)
}

func TestUnresolvedLocationsForJob_LaterOpenEntryWins(t *testing.T) {
	f := newFixture(t)
	job := f.addJob(domain.StatusAssigned)
	f.addDiscrepancy(job.ID, 1, locationA, 1, true, 1)
	f.addDiscrepancy(job.ID, 2, locationA, 1, false, 2)

	locations, err := f.svc.UnresolvedLocationsForJob(f.ctx, job.ID)
	require.NoError(t, err)
	assert.Equal(t, []int64{locationA}, locations)
}

func TestUnresolvedLocationsForJob_Errors(t *testing.T) {
	f := newFixture(t)

	_, err := f.svc.UnresolvedLocationsForJob(f.ctx, -1)
	requireKind(t, err, domain.KindValidation)

	_, err = f.svc.UnresolvedLocationsForJob(f.ctx, 424242)
	requireKind(t, err, domain.KindNotFound)

	job := f.addJob(domain.StatusAssigned)
	locations, err := f.svc.UnresolvedLocationsForJob(f.ctx, job.ID)
	require.NoError(t, err)
	assert.Empty(t, locations)
}

func TestGroupJobsByCountingWithUnresolvedDiscrepancy(t *testing.T) {
	f := newFixture(t)
	first := f.addJob(domain.StatusAssigned)
	second := f.addJob(domain.StatusAssigned)
	third := f.addJob(domain.StatusAssigned)

	f.addDiscrepancy(second.ID, 2, locationA, 1, false, 1)
	f.addDiscrepancy(second.ID, 2, locationA, 2, false, 1)
	f.addDiscrepancy(first.ID, 2, locationB, 1, false, 1)
	f.addDiscrepancy(first.ID, 3, locationC, 1, false, 1)
	f.addDiscrepancy(third.ID, 2, strayLocation, 1, true, 1)

	elsewhere := f.store.AddJob(domain.Job{
		Reference:   "ELSEWHERE",
		WarehouseID: warehouseID + 1,
		InventoryID: inventoryID,
		Status:      domain.StatusAssigned,
	})
	f.addDiscrepancy(elsewhere.ID, 2, strayLocation, 2, false, 1)

	groups, err := f.svc.GroupJobsByCountingWithUnresolvedDiscrepancy(f.ctx, inventoryID, warehouseID)
	require.NoError(t, err)

	assert.Equal(t, []service.CountingGroup{
		{CountingOrder: 2, JobIDs: []int64{first.ID, second.ID}},
		{CountingOrder: 3, JobIDs: []int64{first.ID}},
	}, groups)
}

func TestGroupJobsByCountingWithUnresolvedDiscrepancy_Empty(t *testing.T) {
	f := newFixture(t)

	groups, err := f.svc.GroupJobsByCountingWithUnresolvedDiscrepancy(f.ctx, inventoryID, warehouseID)
	require.NoError(t, err)
	assert.Empty(t, groups)

	_, err = f.svc.GroupJobsByCountingWithUnresolvedDiscrepancy(f.ctx, 0, warehouseID)
	requireKind(t, err, domain.KindValidation)
}
