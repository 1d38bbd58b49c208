package service_test

import (
	"errors"
	"testing"

	"github.com/cuongbtq/inventory-counting/internal/counting/domain"
	"github.com/cuongbtq/inventory-counting/internal/counting/service"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLaunchCounting_OpensRoundThree(t *testing.T) {
	f := newFixture(t)
	job := f.addJob(domain.StatusAssigned)
	f.countedRounds(job.ID, locationA)

	result, err := f.svc.LaunchCounting(f.ctx, job.ID, locationA, activeTeam)
	require.NoError(t, err)

	assert.Equal(t, 3, result.CountingOrder)
	assert.Equal(t, f.rounds[3].ID, result.CountingID)
	assert.False(t, result.CountingCreated)
	assert.True(t, result.JobDetailCreated)
	assert.True(t, result.AssignmentCreated)
	assert.Empty(t, result.RepairedOrders)

	detail, ok := f.detailFor(job.ID, locationA, f.rounds[3].ID)
	require.True(t, ok)
	assert.Equal(t, domain.StatusPending, detail.Status)

	a := f.assignmentFor(job.ID, f.rounds[3].ID)
	assert.Equal(t, domain.StatusTransferred, a.Status)
	require.NotNil(t, a.TeamID)
	assert.Equal(t, activeTeam, *a.TeamID)
	require.NotNil(t, a.AssignedAt)
	require.NotNil(t, a.ReadyAt)
	require.NotNil(t, a.TransferredAt)
	assert.Equal(t, fixedNow, *a.TransferredAt)

	assert.Equal(t, domain.StatusAssigned, f.job(job.ID).Status)
}

func TestLaunchCounting_ClonesRoundFour(t *testing.T) {
	f := newFixture(t)
	job := f.addJob(domain.StatusAssigned)
	f.countedRounds(job.ID, locationA)
	f.addDetail(job.ID, locationA, 3, domain.StatusDone)

	result, err := f.svc.LaunchCounting(f.ctx, job.ID, locationA, activeTeam)
	require.NoError(t, err)

	assert.Equal(t, 4, result.CountingOrder)
	assert.True(t, result.CountingCreated)

	countings := f.store.Countings(inventoryID)
	require.Len(t, countings, 4)
	round4 := countings[3]
	assert.Equal(t, 4, round4.Order)
	assert.Equal(t, result.CountingID, round4.ID)
	assert.Equal(t, f.rounds[3].Mode, round4.Mode)
	assert.Equal(t, f.rounds[3].Label, round4.Label)
	assert.Equal(t, f.rounds[3].EntryQuantity, round4.EntryQuantity)

	_, ok := f.detailFor(job.ID, locationA, round4.ID)
	assert.True(t, ok)
}

func TestLaunchCounting_ReusesExistingRound(t *testing.T) {
	f := newFixture(t)
	first := f.addJob(domain.StatusAssigned)
	second := f.addJob(domain.StatusAssigned)
	for _, id := range []int64{first.ID, second.ID} {
		f.countedRounds(id, locationA)
		f.addDetail(id, locationA, 3, domain.StatusDone)
	}

	r1, err := f.svc.LaunchCounting(f.ctx, first.ID, locationA, activeTeam)
	require.NoError(t, err)
	r2, err := f.svc.LaunchCounting(f.ctx, second.ID, locationA, activeTeam)
	require.NoError(t, err)

	assert.True(t, r1.CountingCreated)
	assert.False(t, r2.CountingCreated)
	assert.Equal(t, r1.CountingID, r2.CountingID)
	assert.Len(t, f.store.Countings(inventoryID), 4)
}

func TestLaunchCounting_RequiresFinishedRounds(t *testing.T) {
	t.Run("round two still pending", func(t *testing.T) {
		f := newFixture(t)
		job := f.addJob(domain.StatusAssigned)
		f.addDetail(job.ID, locationA, 1, domain.StatusDone)
		f.addDetail(job.ID, locationA, 2, domain.StatusAssigned)

		_, err := f.svc.LaunchCounting(f.ctx, job.ID, locationA, activeTeam)
		requireKind(t, err, domain.KindBusinessRule)
		assert.Empty(t, f.store.Assignments(job.ID))
	})

	t.Run("round one not done", func(t *testing.T) {
		f := newFixture(t)
		job := f.addJob(domain.StatusAssigned)
		f.addDetail(job.ID, locationA, 1, domain.StatusTransferred)
		f.addDetail(job.ID, locationA, 2, domain.StatusDone)

		_, err := f.svc.LaunchCounting(f.ctx, job.ID, locationA, activeTeam)
		requireKind(t, err, domain.KindBusinessRule)
		assert.Contains(t, err.Error(), "counting 1")
		assert.Empty(t, f.store.Assignments(job.ID))
		assert.Len(t, f.store.JobDetails(job.ID), 2)
	})

	t.Run("round three not finished", func(t *testing.T) {
		f := newFixture(t)
		job := f.addJob(domain.StatusAssigned)
		f.countedRounds(job.ID, locationA)

		_, err := f.svc.LaunchCounting(f.ctx, job.ID, locationA, activeTeam)
		require.NoError(t, err)

		_, err = f.svc.LaunchCounting(f.ctx, job.ID, locationA, activeTeam)
		requireKind(t, err, domain.KindBusinessRule)
		assert.Len(t, f.store.Countings(inventoryID), 3)
	})

	t.Run("missing detail without finished assignment", func(t *testing.T) {
		f := newFixture(t)
		job := f.addJob(domain.StatusAssigned)
		f.addDetail(job.ID, locationA, 2, domain.StatusDone)
		f.addAssignment(job.ID, 1, domain.StatusAssigned, int64Ptr(activeTeam))

		_, err := f.svc.LaunchCounting(f.ctx, job.ID, locationA, activeTeam)
		requireKind(t, err, domain.KindBusinessRule)
	})
}

func TestLaunchCounting_StockImageRoundTakesNoTeam(t *testing.T) {
	imageInventory := inventoryID + 3

	setup := func(t *testing.T) (*fixture, domain.Job, map[int]domain.Counting) {
		f := newFixture(t)
		rounds := make(map[int]domain.Counting)
		for order, mode := range map[int]domain.CountMode{
			1: domain.CountModeBulk,
			2: domain.CountModeBulk,
			3: domain.CountModeStockImage,
		} {
			rounds[order] = f.store.AddCounting(domain.Counting{InventoryID: imageInventory, Order: order, Mode: mode})
		}
		job := f.store.AddJob(domain.Job{
			Reference:   "IMAGE",
			WarehouseID: warehouseID,
			InventoryID: imageInventory,
			Status:      domain.StatusAssigned,
		})
		for _, order := range []int{1, 2} {
			f.store.AddJobDetail(domain.JobDetail{
				JobID:      job.ID,
				LocationID: locationA,
				CountingID: rounds[order].ID,
				Status:     domain.StatusDone,
			})
		}
		return f, job, rounds
	}

	t.Run("round three", func(t *testing.T) {
		f, job, _ := setup(t)

		_, err := f.svc.LaunchCounting(f.ctx, job.ID, locationA, activeTeam)
		requireKind(t, err, domain.KindBusinessRule)
		assert.Empty(t, f.store.Assignments(job.ID))
		assert.Len(t, f.store.JobDetails(job.ID), 2)

		var derr *domain.Error
		require.True(t, errors.As(err, &derr))
		assert.Equal(t, "launch counting", derr.Op)
		assert.Equal(t, "stock-image", derr.Details["count_mode"])
	})

	t.Run("cloned round four", func(t *testing.T) {
		f, job, rounds := setup(t)
		f.store.AddJobDetail(domain.JobDetail{
			JobID:      job.ID,
			LocationID: locationA,
			CountingID: rounds[3].ID,
			Status:     domain.StatusDone,
		})

		_, err := f.svc.LaunchCounting(f.ctx, job.ID, locationA, activeTeam)
		requireKind(t, err, domain.KindBusinessRule)
		assert.Len(t, f.store.Countings(imageInventory), 3)
		assert.Empty(t, f.store.Assignments(job.ID))
	})
}

func TestLaunchCounting_RepairsMissingDetail(t *testing.T) {
	f := newFixture(t)
	job := f.addJob(domain.StatusAssigned)
	f.addDetail(job.ID, locationA, 2, domain.StatusDone)
	f.addAssignment(job.ID, 1, domain.StatusDone, int64Ptr(activeTeam))

	result, err := f.svc.LaunchCounting(f.ctx, job.ID, locationA, activeTeam)
	require.NoError(t, err)

	assert.Equal(t, []int{1}, result.RepairedOrders)
	assert.Equal(t, 3, result.CountingOrder)

	repaired, ok := f.detailFor(job.ID, locationA, f.rounds[1].ID)
	require.True(t, ok)
	assert.Equal(t, domain.StatusDone, repaired.Status)
	require.NotNil(t, repaired.DoneAt)
	assert.Equal(t, fixedNow, *repaired.DoneAt)
}

func TestLaunchCounting_SettledDiscrepancy(t *testing.T) {
	f := newFixture(t)
	job := f.addJob(domain.StatusAssigned)
	f.countedRounds(job.ID, locationA)
	f.store.AddDiscrepancy(domain.Discrepancy{
		InventoryID: inventoryID,
		LocationID:  locationA,
		ProductID:   7,
		Resolved:    true,
		FinalResult: decimal.NewNullDecimal(decimal.NewFromInt(12)),
	})

	_, err := f.svc.LaunchCounting(f.ctx, job.ID, locationA, activeTeam)
	requireKind(t, err, domain.KindBusinessRule)
	assert.Empty(t, f.store.Assignments(job.ID))
}

func TestLaunchCounting_ResolvedWithoutFinalResultIsOpen(t *testing.T) {
	f := newFixture(t)
	job := f.addJob(domain.StatusAssigned)
	f.countedRounds(job.ID, locationA)
	f.store.AddDiscrepancy(domain.Discrepancy{
		InventoryID: inventoryID,
		LocationID:  locationA,
		ProductID:   7,
		Resolved:    true,
	})

	_, err := f.svc.LaunchCounting(f.ctx, job.ID, locationA, activeTeam)
	assert.NoError(t, err)
}

func TestLaunchCounting_Errors(t *testing.T) {
	f := newFixture(t)
	job := f.addJob(domain.StatusAssigned)
	f.countedRounds(job.ID, locationA)

	orphan := f.store.AddJob(domain.Job{
		Reference:   "NO-TEMPLATE",
		WarehouseID: warehouseID,
		InventoryID: inventoryID + 5,
		Status:      domain.StatusAssigned,
	})
	r1 := f.store.AddCounting(domain.Counting{InventoryID: orphan.InventoryID, Order: 1, Mode: domain.CountModeBulk})
	r2 := f.store.AddCounting(domain.Counting{InventoryID: orphan.InventoryID, Order: 2, Mode: domain.CountModeBulk})
	f.store.AddJobDetail(domain.JobDetail{JobID: orphan.ID, LocationID: locationA, CountingID: r1.ID, Status: domain.StatusDone})
	f.store.AddJobDetail(domain.JobDetail{JobID: orphan.ID, LocationID: locationA, CountingID: r2.ID, Status: domain.StatusDone})

	tests := []struct {
		name       string
		jobID      int64
		locationID int64
		teamID     int64
		kind       domain.ErrorKind
	}{
		{name: "non-positive ids", jobID: 0, locationID: locationA, teamID: activeTeam, kind: domain.KindValidation},
		{name: "missing job", jobID: 424242, locationID: locationA, teamID: activeTeam, kind: domain.KindNotFound},
		{name: "missing location", jobID: job.ID, locationID: 5000, teamID: activeTeam, kind: domain.KindNotFound},
		{name: "location outside job", jobID: job.ID, locationID: strayLocation, teamID: activeTeam, kind: domain.KindValidation},
		{name: "inactive team", jobID: job.ID, locationID: locationA, teamID: inactiveTeam, kind: domain.KindNotFound},
		{name: "unknown team", jobID: job.ID, locationID: locationA, teamID: 777, kind: domain.KindNotFound},
		{name: "round three not provisioned", jobID: orphan.ID, locationID: locationA, teamID: activeTeam, kind: domain.KindNotFound},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := f.svc.LaunchCounting(f.ctx, tt.jobID, tt.locationID, tt.teamID)
			requireKind(t, err, tt.kind)
		})
	}

	assert.Empty(t, f.store.Assignments(job.ID))
	assert.Len(t, f.store.Countings(orphan.InventoryID), 2)
}

func TestLaunchCountingForJobs_PartialFailures(t *testing.T) {
	f := newFixture(t)
	ready := f.addJob(domain.StatusAssigned)
	f.countedRounds(ready.ID, locationA)
	f.addDiscrepancy(ready.ID, 2, locationA, 1, false, 1)

	f.addDetail(ready.ID, locationB, 1, domain.StatusDone)
	f.addDetail(ready.ID, locationB, 2, domain.StatusAssigned)
	f.addDiscrepancy(ready.ID, 2, locationB, 1, false, 1)

	quiet := f.addJob(domain.StatusAssigned)
	f.countedRounds(quiet.ID, locationC)

	result, err := f.svc.LaunchCountingForJobs(f.ctx, []int64{ready.ID, quiet.ID, 424242}, activeTeam)
	require.NoError(t, err)

	assert.False(t, result.OK())
	require.Len(t, result.Launched, 1)
	assert.Equal(t, ready.ID, result.Launched[0].JobID)
	assert.Equal(t, locationA, result.Launched[0].LocationID)
	assert.Equal(t, 3, result.Launched[0].CountingOrder)

	require.Len(t, result.Failures, 2)
	assert.Equal(t, service.LaunchFailure{
		JobID:      ready.ID,
		LocationID: locationB,
		Kind:       domain.KindBusinessRule.String(),
		Message:    "counting 2 is not done for location 11",
	}, result.Failures[0])
	assert.Equal(t, int64(424242), result.Failures[1].JobID)
	assert.Equal(t, int64(0), result.Failures[1].LocationID)
	assert.Equal(t, domain.KindNotFound.String(), result.Failures[1].Kind)

	a := f.assignmentFor(ready.ID, f.rounds[3].ID)
	assert.Equal(t, domain.StatusTransferred, a.Status)
	_, ok := f.detailFor(ready.ID, locationB, f.rounds[3].ID)
	assert.False(t, ok)
	assert.Empty(t, f.store.Assignments(quiet.ID))
}

func TestLaunchCountingForJobs_Validation(t *testing.T) {
	f := newFixture(t)
	job := f.addJob(domain.StatusAssigned)

	_, err := f.svc.LaunchCountingForJobs(f.ctx, nil, activeTeam)
	requireKind(t, err, domain.KindValidation)

	_, err = f.svc.LaunchCountingForJobs(f.ctx, []int64{job.ID}, 0)
	requireKind(t, err, domain.KindValidation)

	_, err = f.svc.LaunchCountingForJobs(f.ctx, []int64{job.ID}, inactiveTeam)
	requireKind(t, err, domain.KindNotFound)
}
