// Package memory is an in-process storage.Provider used by tests and by the
// CLI when --db is ":memory:".
package memory

import (
	"context"
	"slices"
	"sort"
	"sync"
	"time"

	apperrors "github.com/julianstephens/fieldcall/internal/errors"
	"github.com/julianstephens/fieldcall/internal/models"
	"github.com/julianstephens/fieldcall/internal/storage"
)

type Store struct {
	mu         sync.RWMutex
	companies  map[string]models.Company
	quotas     map[string]models.DailyQuota
	skips      map[string]models.SkipPeriod
	activities map[string]models.Activity
}

var _ storage.Provider = (*Store)(nil)

func New() *Store {
	return &Store{
		companies:  map[string]models.Company{},
		quotas:     map[string]models.DailyQuota{},
		skips:      map[string]models.SkipPeriod{},
		activities: map[string]models.Activity{},
	}
}

func (s *Store) Init() error  { return nil }
func (s *Store) Load() error  { return nil }
func (s *Store) Close() error { return nil }

func (s *Store) GetConfigPath() string { return ":memory:" }

func (s *Store) SaveCompany(_ context.Context, c models.Company) error {
	if err := c.Validate(); err != nil {
		return apperrors.Invalid("company", "%v", err)
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	s.companies[c.ID] = c
	return nil
}

func (s *Store) GetCompany(_ context.Context, id string) (models.Company, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	c, ok := s.companies[id]
	if !ok {
		return models.Company{}, apperrors.NotFound("company", id)
	}
	return c, nil
}

func (s *Store) ListCompanies(_ context.Context, agentID string) ([]models.Company, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	var out []models.Company
	for _, c := range s.companies {
		if agentID == "" || c.AgentID == agentID {
			out = append(out, c)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out, nil
}

func (s *Store) MarkContacted(_ context.Context, companyID string, at time.Time) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	c, ok := s.companies[companyID]
	if !ok {
		return apperrors.NotFound("company", companyID)
	}
	at = at.UTC()
	c.LastContacted = &at
	s.companies[companyID] = c
	return nil
}

func (s *Store) GetQuota(_ context.Context, agentID, date string) (models.DailyQuota, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	key := models.QuotaKey(agentID, date)
	q, ok := s.quotas[key]
	if !ok {
		return models.DailyQuota{}, apperrors.NotFound("quota", key)
	}
	return q.Clone(), nil
}

func (s *Store) CreateQuota(_ context.Context, q models.DailyQuota) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, exists := s.quotas[q.Key()]; exists {
		return apperrors.Conflict("quota", q.Key())
	}
	s.quotas[q.Key()] = q.Clone()
	return nil
}

func (s *Store) UpdateQuota(_ context.Context, q models.DailyQuota) (models.DailyQuota, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	cur, ok := s.quotas[q.Key()]
	if !ok {
		return models.DailyQuota{}, apperrors.NotFound("quota", q.Key())
	}
	if cur.Version != q.Version {
		return models.DailyQuota{}, apperrors.Conflict("quota", q.Key())
	}
	q = q.Clone()
	q.Version++
	s.quotas[q.Key()] = q
	return q.Clone(), nil
}

func (s *Store) SaveSkipPeriod(_ context.Context, p models.SkipPeriod) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.skips[p.ID] = p
	return nil
}

func (s *Store) GetSkipPeriod(_ context.Context, id string) (models.SkipPeriod, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	p, ok := s.skips[id]
	if !ok {
		return models.SkipPeriod{}, apperrors.NotFound("skip period", id)
	}
	return p, nil
}

func (s *Store) ListSkipPeriods(_ context.Context, agentID string) ([]models.SkipPeriod, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	var out []models.SkipPeriod
	for _, p := range s.skips {
		if p.AgentID == agentID {
			out = append(out, p)
		}
	}
	sort.Slice(out, func(i, j int) bool {
		if out[i].StartDate != out[j].StartDate {
			return out[i].StartDate < out[j].StartDate
		}
		return out[i].ID < out[j].ID
	})
	return out, nil
}

func (s *Store) AddActivity(_ context.Context, a models.Activity) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, exists := s.activities[a.ID]; exists {
		return apperrors.Conflict("activity", a.ID)
	}
	s.activities[a.ID] = a.Clone()
	return nil
}

func (s *Store) GetActivity(_ context.Context, id string) (models.Activity, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	a, ok := s.activities[id]
	if !ok {
		return models.Activity{}, apperrors.NotFound("activity", id)
	}
	return a.Clone(), nil
}

func (s *Store) UpdateActivity(_ context.Context, a models.Activity) (models.Activity, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	cur, ok := s.activities[a.ID]
	if !ok {
		return models.Activity{}, apperrors.NotFound("activity", a.ID)
	}
	if cur.Version != a.Version {
		return models.Activity{}, apperrors.Conflict("activity", a.ID)
	}
	a = a.Clone()
	a.Version++
	s.activities[a.ID] = a
	return a.Clone(), nil
}

func (s *Store) DeleteActivity(_ context.Context, id string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.activities[id]; !ok {
		return apperrors.NotFound("activity", id)
	}
	delete(s.activities, id)
	return nil
}

func (s *Store) ListActivities(_ context.Context, filter storage.ActivityFilter) ([]models.Activity, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	var out []models.Activity
	for _, a := range s.activities {
		if len(filter.AgentIDs) > 0 && !slices.Contains(filter.AgentIDs, a.AgentID) {
			continue
		}
		if filter.OpenOnly && !a.IsOpen() {
			continue
		}
		out = append(out, a.Clone())
	}
	sort.Slice(out, func(i, j int) bool {
		if !out[i].CreatedAt.Equal(out[j].CreatedAt) {
			return out[i].CreatedAt.Before(out[j].CreatedAt)
		}
		return out[i].ID < out[j].ID
	})
	return out, nil
}
