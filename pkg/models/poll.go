package models

import "time"

// OutcomeAuthError marks a poll cycle that could not log in
const OutcomeAuthError = "auth_error"

// PollRecord is one entry in the poll log
type PollRecord struct {
	ID         int       `json:"id"`
	CycleID    string    `json:"cycle_id"`
	PolledAt   time.Time `json:"polled_at"`
	Outcome    string    `json:"outcome"`               // "ok", a fetch outcome, or "auth_error"
	StatusCode int       `json:"status_code,omitempty"` // HTTP status, 0 when none
	Usage      *float64  `json:"usage,omitempty"`       // set for "ok" cycles
	Detail     string    `json:"detail,omitempty"`      // error text
}
