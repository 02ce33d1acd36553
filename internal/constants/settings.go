package constants

import "time"

const (
	// Quota defaults
	DefaultQuotaTarget = 35
	DefaultSundayOff   = true

	// Eligibility windows, in calendar days since last contact
	Top50RecontactDays     = 10
	Next30RecontactDays    = 30
	Balance20RecontactDays = 30

	// Due scanning
	DefaultScanInterval = 45 * time.Second
	MinScanInterval     = 10 * time.Second
	DefaultScanJitter   = 0.2

	// Survey dispatch
	DefaultSurveyTimeout    = 10 * time.Second
	DefaultSurveyRatePerSec = 2

	// Notifications
	DefaultNotificationsEnabled = true
	DefaultNotifyRatePerSec     = 1

	// Log file rotation
	DefaultLogFormat     = "text"
	DefaultLogMaxSizeMB  = 10
	DefaultLogMaxBackups = 3
	DefaultLogMaxAgeDays = 28

	DefaultTimezone = "Local"
)
