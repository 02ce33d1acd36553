package storage

import (
	"context"
	"time"

	"github.com/julianstephens/fieldcall/internal/models"
)

// ActivityFilter narrows ListActivities. Zero values match everything.
type ActivityFilter struct {
	AgentIDs []string
	OpenOnly bool
}

// Provider is the persistence collaborator. Writes are atomic per key; there
// are no cross-key transactions. Missing records yield errors matching
// errors.ErrNotFound and lost compare-and-swaps yield errors.ErrConflict.
type Provider interface {
	// Lifecycle
	Init() error
	Load() error
	Close() error

	// Companies
	SaveCompany(ctx context.Context, c models.Company) error
	GetCompany(ctx context.Context, id string) (models.Company, error)
	ListCompanies(ctx context.Context, agentID string) ([]models.Company, error)
	MarkContacted(ctx context.Context, companyID string, at time.Time) error

	// Quotas
	GetQuota(ctx context.Context, agentID, date string) (models.DailyQuota, error)
	// CreateQuota stores q only when no quota exists for its (agent, date)
	// key and fails with a conflict otherwise.
	CreateQuota(ctx context.Context, q models.DailyQuota) error
	// UpdateQuota overwrites the quota if the stored version still equals
	// q.Version and returns the stored copy with the bumped version.
	UpdateQuota(ctx context.Context, q models.DailyQuota) (models.DailyQuota, error)

	// Skip periods
	SaveSkipPeriod(ctx context.Context, p models.SkipPeriod) error
	GetSkipPeriod(ctx context.Context, id string) (models.SkipPeriod, error)
	ListSkipPeriods(ctx context.Context, agentID string) ([]models.SkipPeriod, error)

	// Activities
	AddActivity(ctx context.Context, a models.Activity) error
	GetActivity(ctx context.Context, id string) (models.Activity, error)
	// UpdateActivity follows the same compare-and-swap contract as UpdateQuota.
	UpdateActivity(ctx context.Context, a models.Activity) (models.Activity, error)
	DeleteActivity(ctx context.Context, id string) error
	ListActivities(ctx context.Context, filter ActivityFilter) ([]models.Activity, error)

	// Utils
	GetConfigPath() string
}
