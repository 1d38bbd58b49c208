package domain

import (
	"time"

	"github.com/shopspring/decimal"
)

// FirstEscalationOrder is the first round opened by escalation. Its Counting
// must be provisioned with the inventory and serves as the template for every
// later round.
const FirstEscalationOrder = 3

// Job is a unit of counting work for one warehouse within one inventory.
type Job struct {
	ID            int64      `db:"id"`
	Reference     string     `db:"reference"`
	WarehouseID   int64      `db:"warehouse_id"`
	InventoryID   int64      `db:"inventory_id"`
	Status        Status     `db:"status"`
	PendingAt     *time.Time `db:"pending_at"`
	ValidatedAt   *time.Time `db:"validated_at"`
	AssignedAt    *time.Time `db:"assigned_at"`
	ReadyAt       *time.Time `db:"ready_at"`
	TransferredAt *time.Time `db:"transferred_at"`
	EntameAt      *time.Time `db:"entame_at"`
	DoneAt        *time.Time `db:"done_at"`
	CreatedAt     time.Time  `db:"created_at"`
	UpdatedAt     time.Time  `db:"updated_at"`
}

// Counting is one ordered counting round of an inventory.
type Counting struct {
	ID            int64     `db:"id"`
	InventoryID   int64     `db:"inventory_id"`
	Order         int       `db:"counting_order"`
	Mode          CountMode `db:"count_mode"`
	Label         string    `db:"label"`
	UnitScanned   bool      `db:"unit_scanned"`
	EntryQuantity bool      `db:"entry_quantity"`
	ShowProduct   bool      `db:"show_product"`
	CreatedAt     time.Time `db:"created_at"`
}

// CloneAs copies the round definition onto a new order of the same inventory.
func (c Counting) CloneAs(order int) Counting {
	return Counting{
		InventoryID:   c.InventoryID,
		Order:         order,
		Mode:          c.Mode,
		Label:         c.Label,
		UnitScanned:   c.UnitScanned,
		EntryQuantity: c.EntryQuantity,
		ShowProduct:   c.ShowProduct,
	}
}

// JobDetail records that a location must be (or was) counted for a job in a round.
type JobDetail struct {
	ID         int64      `db:"id"`
	JobID      int64      `db:"job_id"`
	LocationID int64      `db:"location_id"`
	CountingID int64      `db:"counting_id"`
	Status     Status     `db:"status"`
	DoneAt     *time.Time `db:"done_at"`
}

// LocatedDetail is a JobDetail together with the order of its round.
type LocatedDetail struct {
	JobDetail
	CountingOrder int `db:"counting_order"`
}

// Assignment binds a team to a (job, counting) pair.
type Assignment struct {
	ID            int64      `db:"id"`
	JobID         int64      `db:"job_id"`
	CountingID    int64      `db:"counting_id"`
	TeamID        *int64     `db:"team_id"`
	Status        Status     `db:"status"`
	AssignedAt    *time.Time `db:"assigned_at"`
	ReadyAt       *time.Time `db:"ready_at"`
	TransferredAt *time.Time `db:"transferred_at"`
	StartedAt     *time.Time `db:"started_at"`
	DoneAt        *time.Time `db:"done_at"`
}

// RoundAssignment is an Assignment with the inventory and order of its counting.
type RoundAssignment struct {
	Assignment
	InventoryID   int64 `db:"inventory_id"`
	CountingOrder int   `db:"counting_order"`
}

// ClearProgress unbinds the team and returns the assignment to PENDING.
func (a *Assignment) ClearProgress() {
	a.TeamID = nil
	a.Status = StatusPending
	a.AssignedAt = nil
	a.ReadyAt = nil
	a.TransferredAt = nil
	a.StartedAt = nil
	a.DoneAt = nil
}

// CountingDetail is one counted line written by ingestion.
type CountingDetail struct {
	ID         int64           `db:"id"`
	JobID      int64           `db:"job_id"`
	CountingID int64           `db:"counting_id"`
	LocationID int64           `db:"location_id"`
	ProductID  int64           `db:"product_id"`
	Quantity   decimal.Decimal `db:"quantity"`
}

// CountedLine is the quantity counted for a (location, product) in one round.
type CountedLine struct {
	LocationID int64           `db:"location_id"`
	ProductID  int64           `db:"product_id"`
	Quantity   decimal.Decimal `db:"quantity"`
}

// Discrepancy is a disagreement between rounds for a product at a location.
type Discrepancy struct {
	ID          int64               `db:"id"`
	InventoryID int64               `db:"inventory_id"`
	LocationID  int64               `db:"location_id"`
	ProductID   int64               `db:"product_id"`
	HasGap      bool                `db:"has_gap"`
	FinalResult decimal.NullDecimal `db:"final_result"`
	Resolved    bool                `db:"resolved"`
}

// Settled reports whether the discrepancy was closed with a final result.
func (d Discrepancy) Settled() bool {
	return d.Resolved && d.FinalResult.Valid
}

// DiscrepancySequence links a counted line to a discrepancy. The entry with the
// highest Seq for a discrepancy key is the visible state.
type DiscrepancySequence struct {
	ID               int64 `db:"id"`
	DiscrepancyID    int64 `db:"discrepancy_id"`
	CountingDetailID int64 `db:"counting_detail_id"`
	Seq              int64 `db:"seq"`
}

// JobRound pairs a job with the order of a round it has work in.
type JobRound struct {
	JobID         int64 `db:"job_id"`
	CountingOrder int   `db:"counting_order"`
}

// ResourceAllocation is a resource reserved for a job.
type ResourceAllocation struct {
	ID         int64 `db:"id"`
	JobID      int64 `db:"job_id"`
	ResourceID int64 `db:"resource_id"`
	Quantity   int   `db:"quantity"`
}

// Team is an active mobile operator identity.
type Team struct {
	ID       int64  `db:"id" json:"id"`
	Username string `db:"username" json:"username"`
	Active   bool   `db:"is_active" json:"is_active"`
}
