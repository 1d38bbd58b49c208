package domain

// Status is the lifecycle state shared by jobs, assignments and job details.
// Values are stored verbatim in the database.
type Status string

const (
	StatusPending     Status = "PENDING"
	StatusValidated   Status = "VALIDATED"
	StatusAssigned    Status = "ASSIGNED"
	StatusReady       Status = "READY"
	StatusTransferred Status = "TRANSFERRED"
	// StatusEntame marks counting in progress on the mobile side.
	StatusEntame Status = "ENTAME"
	StatusDone   Status = "DONE"
)

// preservedStatuses may be copied from a job onto its assignments and are
// never replaced by ASSIGNED.
var preservedStatuses = map[Status]bool{
	StatusReady:       true,
	StatusTransferred: true,
}

// settledStatuses are written by counting ingestion; orchestrators keep them
// on the record that carries them but never copy them elsewhere.
var settledStatuses = map[Status]bool{
	StatusEntame: true,
	StatusDone:   true,
}

func (s Status) String() string { return string(s) }

// IsPreserved reports whether s belongs to the preserved set {READY, TRANSFERRED}.
func (s Status) IsPreserved() bool { return preservedStatuses[s] }

// IsSettled reports whether s was set by counting ingestion.
func (s Status) IsSettled() bool { return settledStatuses[s] }

// Protected reports whether an assignment call must leave s untouched.
func (s Status) Protected() bool { return s.IsPreserved() || s.IsSettled() }

// Valid reports whether s is a known status.
func (s Status) Valid() bool {
	switch s {
	case StatusPending, StatusValidated, StatusAssigned, StatusReady,
		StatusTransferred, StatusEntame, StatusDone:
		return true
	}
	return false
}

// ResolveAssignmentStatus applies the status-preservation rule to an existing
// assignment. The assignment's own protected status wins, then a preserved job
// status, otherwise the assignment becomes ASSIGNED. The second result is
// true when the default transition applied and assigned-at must be stamped.
func ResolveAssignmentStatus(assignment, job Status) (Status, bool) {
	if assignment.Protected() {
		return assignment, false
	}
	if job.IsPreserved() {
		return job, false
	}
	return StatusAssigned, true
}

// CountMode is how a counting round is performed.
type CountMode string

const (
	CountModeBulk       CountMode = "bulk"
	CountModePerArticle CountMode = "per-article"
	// CountModeStockImage rounds are automatic and run without a team.
	CountModeStockImage CountMode = "stock-image"
)

// AcceptsTeam reports whether a mobile team may be attached to a round in this mode.
func (m CountMode) AcceptsTeam() bool {
	return m == CountModeBulk || m == CountModePerArticle
}

func (m CountMode) Valid() bool {
	switch m {
	case CountModeBulk, CountModePerArticle, CountModeStockImage:
		return true
	}
	return false
}
