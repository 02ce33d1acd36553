// Package duetimer derives when an activity becomes due again from the
// outcome recorded on its latest update.
package duetimer

import (
	"slices"
	"time"

	"github.com/julianstephens/fieldcall/internal/models"
)

// Offset is a calendar-aware duration. Days and months are applied with
// time.AddDate so they follow the base timestamp's wall clock.
type Offset struct {
	Months   int
	Days     int
	Duration time.Duration
}

func (o Offset) From(base time.Time) time.Time {
	return base.AddDate(0, o.Months, o.Days).Add(o.Duration)
}

// Rule is the timer attached to one outcome.
type Rule struct {
	Due Offset
	// Ceiling, when set, is the validity window after which the item no
	// longer surfaces regardless of its due timestamp.
	Ceiling *Offset
}

var rules = map[models.Outcome]Rule{
	models.OutcomeRingingOnly:               {Due: Offset{Days: 10}},
	models.OutcomeNoRequirements:            {Due: Offset{Days: 15}},
	models.OutcomeCannotBeReached:           {Due: Offset{Days: 3}},
	models.OutcomeNotConnected:              {Due: Offset{Duration: 15 * time.Minute}},
	models.OutcomeWaitingForFutureProjects:  {Due: Offset{Days: 30}},
	models.OutcomeWaitingForProjects:        {Due: Offset{Days: 30}},
	models.OutcomeSentQuotationStandard:     {Due: Offset{Days: 1}},
	models.OutcomeSentQuotationSpecialPrice: {Due: Offset{Days: 1}},
	models.OutcomeSentQuotationSPF:          {Due: Offset{Days: 5}},
	models.OutcomeWithSPFS:                  {Due: Offset{Days: 7}, Ceiling: &Offset{Months: 2}},
}

// Lookup returns the rule for outcome.
func Lookup(outcome models.Outcome) (Rule, bool) {
	r, ok := rules[outcome]
	return r, ok
}

// ComputeDue returns the next due timestamp, or nil when no timer applies.
// For outbound calls an outcome that does not belong to callStatus is not
// recognized.
func ComputeDue(activityType models.ActivityType, outcome models.Outcome, callStatus models.CallStatus, base time.Time) *time.Time {
	rule, ok := rules[outcome]
	if !ok {
		return nil
	}
	if activityType == models.ActivityOutboundCalls && callStatus != "" {
		if !slices.Contains(models.CallOutcomes[callStatus], outcome) {
			return nil
		}
	}
	due := rule.Due.From(base)
	return &due
}

// Expiry returns the validity ceiling for outcome, or nil when unbounded.
func Expiry(outcome models.Outcome, base time.Time) *time.Time {
	rule, ok := rules[outcome]
	if !ok || rule.Ceiling == nil {
		return nil
	}
	exp := rule.Ceiling.From(base)
	return &exp
}

// Expired reports whether now is past the outcome's validity ceiling.
func Expired(outcome models.Outcome, base, now time.Time) bool {
	exp := Expiry(outcome, base)
	return exp != nil && now.After(*exp)
}
