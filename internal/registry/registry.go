// Package registry is the store-backed account registry: the source of
// companies, their tiers and their last-contacted timestamps.
package registry

import (
	"context"
	"time"

	"github.com/julianstephens/fieldcall/internal/eligibility"
	"github.com/julianstephens/fieldcall/internal/models"
)

// CompanyStore is the company half of storage.Provider.
type CompanyStore interface {
	SaveCompany(ctx context.Context, c models.Company) error
	GetCompany(ctx context.Context, id string) (models.Company, error)
	ListCompanies(ctx context.Context, agentID string) ([]models.Company, error)
	MarkContacted(ctx context.Context, companyID string, at time.Time) error
}

type Registry struct {
	store CompanyStore
}

func New(store CompanyStore) *Registry {
	return &Registry{store: store}
}

// ListEligibleCompanies returns the agent's companies that pass the
// recontact window on today.
func (r *Registry) ListEligibleCompanies(ctx context.Context, agentID string, today time.Time) ([]models.Company, error) {
	companies, err := r.store.ListCompanies(ctx, agentID)
	if err != nil {
		return nil, err
	}
	return eligibility.Filter(companies, today), nil
}

func (r *Registry) GetCompany(ctx context.Context, id string) (models.Company, error) {
	return r.store.GetCompany(ctx, id)
}

func (r *Registry) ListCompanies(ctx context.Context, agentID string) ([]models.Company, error) {
	return r.store.ListCompanies(ctx, agentID)
}

func (r *Registry) SaveCompany(ctx context.Context, c models.Company) error {
	return r.store.SaveCompany(ctx, c)
}

func (r *Registry) MarkContacted(ctx context.Context, companyID string, at time.Time) error {
	return r.store.MarkContacted(ctx, companyID, at)
}
