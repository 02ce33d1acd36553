package models

import (
	"fmt"
	"strings"
	"time"
)

// Tier is the account segment a company belongs to.
type Tier string

const (
	TierTop50     Tier = "Top50"
	TierNext30    Tier = "Next30"
	TierBalance20 Tier = "Balance20"
	TierTSA       Tier = "TSA"
	TierCSR       Tier = "CSR"
)

// Tiers lists every known tier in allocation priority order.
var Tiers = []Tier{TierTop50, TierNext30, TierBalance20, TierCSR, TierTSA}

func (t Tier) Valid() bool {
	switch t {
	case TierTop50, TierNext30, TierBalance20, TierTSA, TierCSR:
		return true
	}
	return false
}

// ParseTier resolves a tier name case-insensitively.
func ParseTier(s string) (Tier, error) {
	s = strings.TrimSpace(s)
	for _, t := range Tiers {
		if strings.EqualFold(string(t), s) {
			return t, nil
		}
	}
	return "", fmt.Errorf("unknown tier %q (expected one of Top50, Next30, Balance20, TSA, CSR)", s)
}

type Company struct {
	ID            string     `json:"id"`
	Name          string     `json:"name"`
	Tier          Tier       `json:"tier"`
	AgentID       string     `json:"agent_id"`
	LastContacted *time.Time `json:"last_contacted,omitempty"`
	ContactPerson string     `json:"contact_person,omitempty"`
	Email         string     `json:"email,omitempty"`
	Phone         string     `json:"phone,omitempty"`
	Address       string     `json:"address,omitempty"`
}

func (c *Company) Validate() error {
	if strings.TrimSpace(c.ID) == "" {
		return fmt.Errorf("company id cannot be empty")
	}
	if strings.TrimSpace(c.Name) == "" {
		return fmt.Errorf("company name cannot be empty")
	}
	if !c.Tier.Valid() {
		return fmt.Errorf("company %s has unknown tier %q", c.ID, c.Tier)
	}
	return nil
}

// Snapshot copies the contact fields an activity keeps for itself.
func (c Company) Snapshot() CompanySnapshot {
	return CompanySnapshot{
		Name:          c.Name,
		ContactPerson: c.ContactPerson,
		Email:         c.Email,
		Phone:         c.Phone,
		Address:       c.Address,
	}
}
