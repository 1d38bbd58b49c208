package domain

// Batch outcome constants, reported in logs
const (
	OutcomeCompleted = "COMPLETED"
	OutcomePartial   = "PARTIAL"
	OutcomeFailed    = "FAILED"
)
