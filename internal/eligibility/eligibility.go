// Package eligibility decides whether a company may be called today.
package eligibility

import (
	"time"

	"github.com/julianstephens/fieldcall/internal/constants"
	"github.com/julianstephens/fieldcall/internal/models"
	"github.com/julianstephens/fieldcall/internal/utils"
)

// recontactDays is the minimum number of calendar days between contacts per
// tier. Tiers absent from the table are always eligible.
var recontactDays = map[models.Tier]int{
	models.TierTop50:     constants.Top50RecontactDays,
	models.TierNext30:    constants.Next30RecontactDays,
	models.TierBalance20: constants.Balance20RecontactDays,
}

// IsDue reports whether company can be placed on today's call list.
func IsDue(company models.Company, today time.Time) bool {
	window, ok := recontactDays[company.Tier]
	if !ok {
		return true
	}
	if company.LastContacted == nil {
		return true
	}
	return utils.CalendarDaysBetween(company.LastContacted.In(today.Location()), today) >= window
}

// Filter returns the eligible subset of companies, preserving order.
func Filter(companies []models.Company, today time.Time) []models.Company {
	eligible := make([]models.Company, 0, len(companies))
	for _, c := range companies {
		if IsDue(c, today) {
			eligible = append(eligible, c)
		}
	}
	return eligible
}

// Window returns the recontact window for tier and whether one applies.
func Window(tier models.Tier) (int, bool) {
	days, ok := recontactDays[tier]
	return days, ok
}
