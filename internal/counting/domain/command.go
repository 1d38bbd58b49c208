package domain

import "time"

// EscalationCommand asks the worker to run a batch escalation. It is published
// by the API when a batch is submitted asynchronously.
type EscalationCommand struct {
	CommandID   string    `json:"command_id"`
	JobIDs      []int64   `json:"job_ids"`
	TeamID      int64     `json:"team_id"`
	RequestedAt time.Time `json:"requested_at"`
}
