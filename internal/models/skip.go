package models

import "time"

// SkipPeriod suspends quota generation for an agent over an inclusive date range.
type SkipPeriod struct {
	ID          string     `json:"id"`
	AgentID     string     `json:"agent_id"`
	StartDate   string     `json:"start_date"` // YYYY-MM-DD format
	EndDate     string     `json:"end_date"`   // YYYY-MM-DD format
	Reason      string     `json:"reason,omitempty"`
	CreatedAt   time.Time  `json:"created_at"`
	CancelledAt *time.Time `json:"cancelled_at,omitempty"`
}

func (p SkipPeriod) IsCancelled() bool {
	return p.CancelledAt != nil
}

// Covers reports whether the uncancelled period contains date (YYYY-MM-DD).
// Dates in DateFormat compare correctly as strings.
func (p SkipPeriod) Covers(date string) bool {
	if p.IsCancelled() {
		return false
	}
	return p.StartDate <= date && date <= p.EndDate
}
