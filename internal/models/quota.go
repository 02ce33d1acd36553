package models

import (
	"slices"
	"time"
)

// QuotaBlock explains why a quota was generated empty.
type QuotaBlock string

const (
	QuotaBlockNone       QuotaBlock = ""
	QuotaBlockSunday     QuotaBlock = "sunday"
	QuotaBlockSkipPeriod QuotaBlock = "skip_period"
)

// DailyQuota is an agent's call list for one calendar date.
type DailyQuota struct {
	AgentID   string     `json:"agent_id"`
	Date      string     `json:"date"` // YYYY-MM-DD format
	Target    int        `json:"target"`
	Assigned  []string   `json:"assigned"`
	Remaining int        `json:"remaining"`
	Consumed  []string   `json:"consumed"`
	Cancelled []string   `json:"cancelled"`
	Blocked   QuotaBlock `json:"blocked,omitempty"`
	Version   int        `json:"version"`
	CreatedAt time.Time  `json:"created_at"`
	UpdatedAt time.Time  `json:"updated_at"`
}

// Key identifies the quota in storage and in the per-key lock table.
func (q DailyQuota) Key() string {
	return QuotaKey(q.AgentID, q.Date)
}

func QuotaKey(agentID, date string) string {
	return agentID + "/" + date
}

// IsBlocked reports whether the quota was suppressed (Sunday or skip period).
func (q DailyQuota) IsBlocked() bool {
	return q.Blocked != QuotaBlockNone
}

func (q DailyQuota) Has(companyID string) bool {
	return slices.Contains(q.Assigned, companyID)
}

// Touched reports whether the company was already handled today in any way.
func (q DailyQuota) Touched(companyID string) bool {
	return slices.Contains(q.Assigned, companyID) ||
		slices.Contains(q.Consumed, companyID) ||
		slices.Contains(q.Cancelled, companyID)
}

// Clone returns a deep copy so callers can mutate slices freely.
func (q DailyQuota) Clone() DailyQuota {
	c := q
	c.Assigned = slices.Clone(q.Assigned)
	c.Consumed = slices.Clone(q.Consumed)
	c.Cancelled = slices.Clone(q.Cancelled)
	return c
}
