package constants

import "time"

const (
	AppName            = "fieldcall"
	DefaultKeyringUser = "database-connection"
	DefaultDBPath      = "~/.config/fieldcall/fieldcall.db"
	DefaultConfigPath  = "~/.config/fieldcall/config.yaml"
	Version            = "v0.3.0"

	// DateFormat is the standard date format used throughout the application (YYYY-MM-DD)
	DateFormat = "2006-01-02"

	// TimeFormat is the standard time format used throughout the application (HH:MM)
	TimeFormat = "15:04"

	// Backup constants
	MaxBackups       = 14
	BackupDirName    = "backups"
	BackupFilePrefix = "fieldcall-"
	BackupFileSuffix = ".db"

	// Notify constants
	NotifierLockfileName   = "fieldcall-notifier.lock"
	NotificationDurationMs = 8000
	TrayAppIdentifier      = "com.julianstephens.fieldcall"

	// Survey constants
	SurveyMaxRetries = 3
	SurveyRetryDelay = 250 * time.Millisecond
)
