package service_test

import (
	"context"
	"io"
	"log/slog"
	"testing"
	"time"

	"github.com/cuongbtq/inventory-counting/internal/counting/domain"
	"github.com/cuongbtq/inventory-counting/internal/counting/service"
	"github.com/cuongbtq/inventory-counting/internal/counting/storage"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/require"
)

const (
	inventoryID   = int64(1)
	warehouseID   = int64(2)
	activeTeam    = int64(5)
	inactiveTeam  = int64(6)
	locationA     = int64(10)
	locationB     = int64(11)
	locationC     = int64(12)
	strayLocation = int64(99)
)

var fixedNow = time.Date(2026, 3, 2, 9, 30, 0, 0, time.UTC)

type fixture struct {
	t      *testing.T
	ctx    context.Context
	store  *storage.MemoryStore
	svc    *service.Service
	rounds map[int]domain.Counting
}

func discardLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

// newFixture seeds an inventory with rounds 1 to 3, one active and one
// inactive team and three locations.
func newFixture(t *testing.T) *fixture {
	t.Helper()
	store := storage.NewMemoryStore()

	f := &fixture{
		t:      t,
		ctx:    context.Background(),
		store:  store,
		rounds: make(map[int]domain.Counting),
	}
	f.svc = service.New(service.Config{
		Logger: discardLogger(),
		Store:  store,
		Teams:  store,
		Now:    func() time.Time { return fixedNow },
	})

	for _, order := range []int{1, 2, 3} {
		f.rounds[order] = store.AddCounting(domain.Counting{
			InventoryID:   inventoryID,
			Order:         order,
			Mode:          domain.CountModeBulk,
			Label:         "Counting",
			EntryQuantity: true,
		})
	}

	store.AddTeam(domain.Team{ID: activeTeam, Username: "team-5", Active: true})
	store.AddTeam(domain.Team{ID: inactiveTeam, Username: "team-6", Active: false})
	for _, loc := range []int64{locationA, locationB, locationC, strayLocation} {
		store.AddLocation(loc)
	}
	return f
}

func (f *fixture) addJob(status domain.Status) domain.Job {
	return f.store.AddJob(domain.Job{
		Reference:   "JOB",
		WarehouseID: warehouseID,
		InventoryID: inventoryID,
		Status:      status,
	})
}

func (f *fixture) job(id int64) domain.Job {
	f.t.Helper()
	job, ok := f.store.Job(id)
	require.True(f.t, ok, "job %d not found", id)
	return job
}

func (f *fixture) addDetail(jobID, locationID int64, order int, status domain.Status) domain.JobDetail {
	return f.store.AddJobDetail(domain.JobDetail{
		JobID:      jobID,
		LocationID: locationID,
		CountingID: f.rounds[order].ID,
		Status:     status,
	})
}

func (f *fixture) addAssignment(jobID int64, order int, status domain.Status, teamID *int64) domain.Assignment {
	return f.store.AddAssignment(domain.Assignment{
		JobID:      jobID,
		CountingID: f.rounds[order].ID,
		TeamID:     teamID,
		Status:     status,
	})
}

// countedRounds marks rounds 1 and 2 as finished for the location.
func (f *fixture) countedRounds(jobID, locationID int64) {
	f.addDetail(jobID, locationID, 1, domain.StatusDone)
	f.addDetail(jobID, locationID, 2, domain.StatusDone)
}

func (f *fixture) addLine(jobID int64, order int, locationID, productID int64, qty string) domain.CountingDetail {
	return f.store.AddCountingDetail(domain.CountingDetail{
		JobID:      jobID,
		CountingID: f.rounds[order].ID,
		LocationID: locationID,
		ProductID:  productID,
		Quantity:   decimal.RequireFromString(qty),
	})
}

// addDiscrepancy links a new counted line to a discrepancy of the location.
func (f *fixture) addDiscrepancy(jobID int64, order int, locationID, productID int64, resolved bool, seq int64) domain.Discrepancy {
	line := f.addLine(jobID, order, locationID, productID, "1")
	d := f.store.AddDiscrepancy(domain.Discrepancy{
		InventoryID: inventoryID,
		LocationID:  locationID,
		ProductID:   productID,
		HasGap:      !resolved,
		Resolved:    resolved,
	})
	f.store.AddDiscrepancySequence(domain.DiscrepancySequence{
		DiscrepancyID:    d.ID,
		CountingDetailID: line.ID,
		Seq:              seq,
	})
	return d
}

func (f *fixture) assignmentFor(jobID int64, countingID int64) domain.Assignment {
	f.t.Helper()
	for _, a := range f.store.Assignments(jobID) {
		if a.CountingID == countingID {
			return a
		}
	}
	f.t.Fatalf("no assignment for job %d counting %d", jobID, countingID)
	return domain.Assignment{}
}

func (f *fixture) detailFor(jobID, locationID, countingID int64) (domain.JobDetail, bool) {
	for _, d := range f.store.JobDetails(jobID) {
		if d.LocationID == locationID && d.CountingID == countingID {
			return d, true
		}
	}
	return domain.JobDetail{}, false
}

func int64Ptr(v int64) *int64 {
	return &v
}

func requireKind(t *testing.T, err error, kind domain.ErrorKind) {
	t.Helper()
	require.Error(t, err)
	require.Equal(t, kind, domain.KindOf(err), "unexpected error: %v", err)
}
