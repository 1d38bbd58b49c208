package storage

import (
	"context"
	"sort"
	"sync"
	"time"

	"github.com/cuongbtq/inventory-counting/internal/counting/domain"
	"github.com/cuongbtq/inventory-counting/internal/counting/service"
)

// MemoryStore keeps every entity in memory. Transactions are serialised and
// rolled back by restoring a snapshot taken when they start.
type MemoryStore struct {
	mu    sync.Mutex
	state *memState
}

type memState struct {
	jobs            map[int64]domain.Job
	countings       map[int64]domain.Counting
	details         map[int64]domain.JobDetail
	assignments     map[int64]domain.Assignment
	countingDetails map[int64]domain.CountingDetail
	discrepancies   map[int64]domain.Discrepancy
	sequences       map[int64]domain.DiscrepancySequence
	resources       map[int64]domain.ResourceAllocation
	locations       map[int64]bool
	teams           map[int64]domain.Team
	nextID          int64
}

func NewMemoryStore() *MemoryStore {
	return &MemoryStore{state: &memState{
		jobs:            make(map[int64]domain.Job),
		countings:       make(map[int64]domain.Counting),
		details:         make(map[int64]domain.JobDetail),
		assignments:     make(map[int64]domain.Assignment),
		countingDetails: make(map[int64]domain.CountingDetail),
		discrepancies:   make(map[int64]domain.Discrepancy),
		sequences:       make(map[int64]domain.DiscrepancySequence),
		resources:       make(map[int64]domain.ResourceAllocation),
		locations:       make(map[int64]bool),
		teams:           make(map[int64]domain.Team),
		nextID:          1000,
	}}
}

func cloneMap[K comparable, V any](in map[K]V) map[K]V {
	out := make(map[K]V, len(in))
	for k, v := range in {
		out[k] = v
	}
	return out
}

func (st *memState) clone() *memState {
	return &memState{
		jobs:            cloneMap(st.jobs),
		countings:       cloneMap(st.countings),
		details:         cloneMap(st.details),
		assignments:     cloneMap(st.assignments),
		countingDetails: cloneMap(st.countingDetails),
		discrepancies:   cloneMap(st.discrepancies),
		sequences:       cloneMap(st.sequences),
		resources:       cloneMap(st.resources),
		locations:       cloneMap(st.locations),
		teams:           cloneMap(st.teams),
		nextID:          st.nextID,
	}
}

func (st *memState) newID() int64 {
	st.nextID++
	return st.nextID
}

// WithinTx implements service.TxRunner
func (m *MemoryStore) WithinTx(ctx context.Context, fn func(ctx context.Context, repos service.Repositories) error) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	working := m.state.clone()
	repo := &memRepo{st: working}
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
		return err
	}
	m.state = working
	return nil
}

// ResolveActiveTeam implements service.TeamDirectory
func (m *MemoryStore) ResolveActiveTeam(_ context.Context, teamID int64) (*domain.Team, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	team, ok := m.state.teams[teamID]
	if !ok || !team.Active {
		return nil, domain.ErrRecordNotFound
	}
	return &team, nil
}

// Seeding and inspection helpers. IDs left at zero are generated.

func (m *MemoryStore) AddJob(job domain.Job) domain.Job {
	m.mu.Lock()
	defer m.mu.Unlock()
	if job.ID == 0 {
		job.ID = m.state.newID()
	}
	m.state.jobs[job.ID] = job
	return job
}

func (m *MemoryStore) AddCounting(c domain.Counting) domain.Counting {
	m.mu.Lock()
	defer m.mu.Unlock()
	if c.ID == 0 {
		c.ID = m.state.newID()
	}
	m.state.countings[c.ID] = c
	return c
}

func (m *MemoryStore) AddJobDetail(d domain.JobDetail) domain.JobDetail {
	m.mu.Lock()
	defer m.mu.Unlock()
	if d.ID == 0 {
		d.ID = m.state.newID()
	}
	m.state.details[d.ID] = d
	return d
}

func (m *MemoryStore) AddAssignment(a domain.Assignment) domain.Assignment {
	m.mu.Lock()
	defer m.mu.Unlock()
	if a.ID == 0 {
		a.ID = m.state.newID()
	}
	m.state.assignments[a.ID] = a
	return a
}

func (m *MemoryStore) AddCountingDetail(cd domain.CountingDetail) domain.CountingDetail {
	m.mu.Lock()
	defer m.mu.Unlock()
	if cd.ID == 0 {
		cd.ID = m.state.newID()
	}
	m.state.countingDetails[cd.ID] = cd
	return cd
}

func (m *MemoryStore) AddDiscrepancy(d domain.Discrepancy) domain.Discrepancy {
	m.mu.Lock()
	defer m.mu.Unlock()
	if d.ID == 0 {
		d.ID = m.state.newID()
	}
	m.state.discrepancies[d.ID] = d
	return d
}

func (m *MemoryStore) AddDiscrepancySequence(s domain.DiscrepancySequence) domain.DiscrepancySequence {
	m.mu.Lock()
	defer m.mu.Unlock()
	if s.ID == 0 {
		s.ID = m.state.newID()
	}
	m.state.sequences[s.ID] = s
	return s
}

func (m *MemoryStore) AddResource(r domain.ResourceAllocation) domain.ResourceAllocation {
	m.mu.Lock()
	defer m.mu.Unlock()
	if r.ID == 0 {
		r.ID = m.state.newID()
	}
	m.state.resources[r.ID] = r
	return r
}

func (m *MemoryStore) AddLocation(id int64) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.state.locations[id] = true
}

func (m *MemoryStore) AddTeam(team domain.Team) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.state.teams[team.ID] = team
}

func (m *MemoryStore) Job(id int64) (domain.Job, bool) {
	m.mu.Lock()
	defer m.mu.Unlock()
	job, ok := m.state.jobs[id]
	return job, ok
}

// Assignments returns every assignment of the job ordered by id.
func (m *MemoryStore) Assignments(jobID int64) []domain.Assignment {
	m.mu.Lock()
	defer m.mu.Unlock()
	var out []domain.Assignment
	for _, a := range m.state.assignments {
		if a.JobID == jobID {
			out = append(out, a)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out
}

// JobDetails returns every job detail of the job ordered by id.
func (m *MemoryStore) JobDetails(jobID int64) []domain.JobDetail {
	m.mu.Lock()
	defer m.mu.Unlock()
	var out []domain.JobDetail
	for _, d := range m.state.details {
		if d.JobID == jobID {
			out = append(out, d)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out
}

// Countings returns the countings of the inventory ordered by order.
func (m *MemoryStore) Countings(inventoryID int64) []domain.Counting {
	m.mu.Lock()
	defer m.mu.Unlock()
	var out []domain.Counting
	for _, c := range m.state.countings {
		if c.InventoryID == inventoryID {
			out = append(out, c)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Order < out[j].Order })
	return out
}

func (m *MemoryStore) Resources(jobID int64) []domain.ResourceAllocation {
	m.mu.Lock()
	defer m.mu.Unlock()
	var out []domain.ResourceAllocation
	for _, r := range m.state.resources {
		if r.JobID == jobID {
			out = append(out, r)
		}
	}
	return out
}

// memRepo implements every store interface over one transaction's working state.
type memRepo struct {
	st *memState
}

func (r *memRepo) GetJob(_ context.Context, id int64) (*domain.Job, error) {
	job, ok := r.st.jobs[id]
	if !ok {
		return nil, domain.ErrRecordNotFound
	}
	return &job, nil
}

func (r *memRepo) GetJobsByIDs(_ context.Context, ids []int64) ([]domain.Job, error) {
	out := make([]domain.Job, 0, len(ids))
	for _, id := range ids {
		if job, ok := r.st.jobs[id]; ok {
			out = append(out, job)
		}
	}
	return out, nil
}

func (r *memRepo) UpdateJob(_ context.Context, job *domain.Job) error {
	if _, ok := r.st.jobs[job.ID]; !ok {
		return domain.ErrRecordNotFound
	}
	job.UpdatedAt = time.Now().UTC()
	r.st.jobs[job.ID] = *job
	return nil
}

func (r *memRepo) GetCountingByOrder(_ context.Context, inventoryID int64, order int) (*domain.Counting, error) {
	for _, c := range r.st.countings {
		if c.InventoryID == inventoryID && c.Order == order {
			return &c, nil
		}
	}
	return nil, domain.ErrRecordNotFound
}

func (r *memRepo) CreateCounting(_ context.Context, counting *domain.Counting) error {
	for _, c := range r.st.countings {
		if c.InventoryID == counting.InventoryID && c.Order == counting.Order {
			return domain.ErrUniqueViolation
		}
	}
	counting.ID = r.st.newID()
	counting.CreatedAt = time.Now().UTC()
	r.st.countings[counting.ID] = *counting
	return nil
}

func (r *memRepo) ListDetailsByJobLocation(_ context.Context, jobID, locationID int64) ([]domain.LocatedDetail, error) {
	var out []domain.LocatedDetail
	for _, d := range r.st.details {
		if d.JobID != jobID || d.LocationID != locationID {
			continue
		}
		out = append(out, domain.LocatedDetail{JobDetail: d, CountingOrder: r.st.countings[d.CountingID].Order})
	}
	sort.Slice(out, func(i, j int) bool { return out[i].CountingOrder < out[j].CountingOrder })
	return out, nil
}

func (r *memRepo) GetDetail(_ context.Context, jobID, locationID, countingID int64) (*domain.JobDetail, error) {
	for _, d := range r.st.details {
		if d.JobID == jobID && d.LocationID == locationID && d.CountingID == countingID {
			return &d, nil
		}
	}
	return nil, domain.ErrRecordNotFound
}

func (r *memRepo) CreateDetail(ctx context.Context, detail *domain.JobDetail) error {
	if _, err := r.GetDetail(ctx, detail.JobID, detail.LocationID, detail.CountingID); err == nil {
		return domain.ErrUniqueViolation
	}
	detail.ID = r.st.newID()
	r.st.details[detail.ID] = *detail
	return nil
}

func (r *memRepo) GetAssignment(_ context.Context, jobID, countingID int64) (*domain.Assignment, error) {
	for _, a := range r.st.assignments {
		if a.JobID == jobID && a.CountingID == countingID {
			return &a, nil
		}
	}
	return nil, domain.ErrRecordNotFound
}

func (r *memRepo) ListAssignmentsByJob(_ context.Context, jobID int64) ([]domain.RoundAssignment, error) {
	var out []domain.RoundAssignment
	for _, a := range r.st.assignments {
		if a.JobID != jobID {
			continue
		}
		c := r.st.countings[a.CountingID]
		out = append(out, domain.RoundAssignment{Assignment: a, InventoryID: c.InventoryID, CountingOrder: c.Order})
	}
	sort.Slice(out, func(i, j int) bool { return out[i].CountingOrder < out[j].CountingOrder })
	return out, nil
}

func (r *memRepo) CreateAssignment(ctx context.Context, assignment *domain.Assignment) error {
	if _, err := r.GetAssignment(ctx, assignment.JobID, assignment.CountingID); err == nil {
		return domain.ErrUniqueViolation
	}
	assignment.ID = r.st.newID()
	r.st.assignments[assignment.ID] = *assignment
	return nil
}

func (r *memRepo) UpdateAssignment(_ context.Context, assignment *domain.Assignment) error {
	if _, ok := r.st.assignments[assignment.ID]; !ok {
		return domain.ErrRecordNotFound
	}
	r.st.assignments[assignment.ID] = *assignment
	return nil
}

func (r *memRepo) HasSettledDiscrepancy(_ context.Context, inventoryID, locationID int64) (bool, error) {
	for _, d := range r.st.discrepancies {
		if d.InventoryID == inventoryID && d.LocationID == locationID && d.Settled() {
			return true, nil
		}
	}
	return false, nil
}

func (r *memRepo) ListCountedLines(_ context.Context, jobID int64, order int) ([]domain.CountedLine, error) {
	var out []domain.CountedLine
	for _, cd := range r.st.countingDetails {
		if cd.JobID != jobID || r.st.countings[cd.CountingID].Order != order {
			continue
		}
		out = append(out, domain.CountedLine{LocationID: cd.LocationID, ProductID: cd.ProductID, Quantity: cd.Quantity})
	}
	return out, nil
}

type discrepancyKey struct {
	inventoryID int64
	locationID  int64
	productID   int64
}

type visibleDiscrepancy struct {
	seq         int64
	detail      domain.CountingDetail
	discrepancy domain.Discrepancy
}

// latestDiscrepancies keeps, per discrepancy key, the entry with the highest
// sequence among the counted lines accepted by keep.
func (r *memRepo) latestDiscrepancies(keep func(domain.CountingDetail) bool) map[discrepancyKey]visibleDiscrepancy {
	latest := make(map[discrepancyKey]visibleDiscrepancy)
	for _, s := range r.st.sequences {
		cd, ok := r.st.countingDetails[s.CountingDetailID]
		if !ok || !keep(cd) {
			continue
		}
		d, ok := r.st.discrepancies[s.DiscrepancyID]
		if !ok {
			continue
		}
		key := discrepancyKey{inventoryID: d.InventoryID, locationID: d.LocationID, productID: d.ProductID}
		if cur, ok := latest[key]; ok && cur.seq >= s.Seq {
			continue
		}
		latest[key] = visibleDiscrepancy{seq: s.Seq, detail: cd, discrepancy: d}
	}
	return latest
}

func (r *memRepo) ListUnresolvedLocations(_ context.Context, jobID int64) ([]int64, error) {
	latest := r.latestDiscrepancies(func(cd domain.CountingDetail) bool { return cd.JobID == jobID })

	seen := make(map[int64]struct{})
	out := []int64{}
	for _, v := range latest {
		if v.discrepancy.Resolved {
			continue
		}
		if _, ok := seen[v.discrepancy.LocationID]; ok {
			continue
		}
		seen[v.discrepancy.LocationID] = struct{}{}
		out = append(out, v.discrepancy.LocationID)
	}
	sort.Slice(out, func(i, j int) bool { return out[i] < out[j] })
	return out, nil
}

func (r *memRepo) ListJobRoundsWithUnresolvedDiscrepancy(_ context.Context, inventoryID, warehouseID int64) ([]domain.JobRound, error) {
	latest := r.latestDiscrepancies(func(cd domain.CountingDetail) bool {
		job, ok := r.st.jobs[cd.JobID]
		return ok && job.InventoryID == inventoryID && job.WarehouseID == warehouseID
	})

	var out []domain.JobRound
	for _, v := range latest {
		if v.discrepancy.Resolved {
			continue
		}
		out = append(out, domain.JobRound{
			JobID:         v.detail.JobID,
			CountingOrder: r.st.countings[v.detail.CountingID].Order,
		})
	}
	return out, nil
}

func (r *memRepo) DeleteResourcesByJob(_ context.Context, jobID int64) (int64, error) {
	var deleted int64
	for id, res := range r.st.resources {
		if res.JobID == jobID {
			delete(r.st.resources, id)
			deleted++
		}
	}
	return deleted, nil
}

func (r *memRepo) LocationExists(_ context.Context, id int64) (bool, error) {
	return r.st.locations[id], nil
}
