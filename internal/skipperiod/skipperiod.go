// Package skipperiod records the date ranges during which an agent gets no
// call list.
package skipperiod

import (
	"context"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/julianstephens/fieldcall/internal/constants"
	apperrors "github.com/julianstephens/fieldcall/internal/errors"
	"github.com/julianstephens/fieldcall/internal/logger"
	"github.com/julianstephens/fieldcall/internal/models"
)

type Store interface {
	SaveSkipPeriod(ctx context.Context, p models.SkipPeriod) error
	GetSkipPeriod(ctx context.Context, id string) (models.SkipPeriod, error)
	ListSkipPeriods(ctx context.Context, agentID string) ([]models.SkipPeriod, error)
}

type Registry struct {
	store Store
	now   func() time.Time
}

func New(store Store, now func() time.Time) *Registry {
	if now == nil {
		now = time.Now
	}
	return &Registry{store: store, now: now}
}

// Set records a new inclusive [start, end] period for agent.
func (r *Registry) Set(ctx context.Context, agentID, start, end, reason string) (models.SkipPeriod, error) {
	if agentID == "" {
		return models.SkipPeriod{}, apperrors.Missing("agent")
	}
	if err := checkDate("start", start); err != nil {
		return models.SkipPeriod{}, err
	}
	if err := checkDate("end", end); err != nil {
		return models.SkipPeriod{}, err
	}
	if start > end {
		return models.SkipPeriod{}, apperrors.Invalid("end", "%s is before start %s", end, start)
	}

	p := models.SkipPeriod{
		ID:        uuid.NewString(),
		AgentID:   agentID,
		StartDate: start,
		EndDate:   end,
		Reason:    strings.TrimSpace(reason),
		CreatedAt: r.now(),
	}
	if err := r.store.SaveSkipPeriod(ctx, p); err != nil {
		return models.SkipPeriod{}, err
	}
	logger.Info("skip period set", "agent", agentID, "id", p.ID, "start", start, "end", end)
	return p, nil
}

func checkDate(field, s string) error {
	if s == "" {
		return apperrors.Missing(field)
	}
	if _, err := time.Parse(constants.DateFormat, s); err != nil {
		return apperrors.Invalid(field, "expected YYYY-MM-DD, got %q", s)
	}
	return nil
}

// Cancel marks the period cancelled. Cancelling twice returns the period
// unchanged. Quotas already generated are left as they are.
func (r *Registry) Cancel(ctx context.Context, agentID, id string) (models.SkipPeriod, error) {
	p, err := r.store.GetSkipPeriod(ctx, id)
	if err != nil {
		return models.SkipPeriod{}, err
	}
	if p.AgentID != agentID {
		return models.SkipPeriod{}, apperrors.NotFound("skip period", id)
	}
	if p.IsCancelled() {
		return p, nil
	}
	now := r.now()
	p.CancelledAt = &now
	if err := r.store.SaveSkipPeriod(ctx, p); err != nil {
		return models.SkipPeriod{}, err
	}
	logger.Info("skip period cancelled", "agent", agentID, "id", id)
	return p, nil
}

// List returns every period for agent, cancelled ones included, by start date.
func (r *Registry) List(ctx context.Context, agentID string) ([]models.SkipPeriod, error) {
	return r.store.ListSkipPeriods(ctx, agentID)
}

// Active reports whether an uncancelled period contains date.
func (r *Registry) Active(ctx context.Context, agentID, date string) (bool, error) {
	periods, err := r.store.ListSkipPeriods(ctx, agentID)
	if err != nil {
		return false, err
	}
	for _, p := range periods {
		if p.Covers(date) {
			return true, nil
		}
	}
	return false, nil
}
