// Package engine wires the allocator, skip periods, activity lifecycle and
// due scanner over one storage.Provider and exposes the operations callers
// use.
package engine

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/julianstephens/fieldcall/internal/allocator"
	"github.com/julianstephens/fieldcall/internal/config"
	apperrors "github.com/julianstephens/fieldcall/internal/errors"
	"github.com/julianstephens/fieldcall/internal/keylock"
	"github.com/julianstephens/fieldcall/internal/lifecycle"
	"github.com/julianstephens/fieldcall/internal/logger"
	"github.com/julianstephens/fieldcall/internal/models"
	"github.com/julianstephens/fieldcall/internal/registry"
	"github.com/julianstephens/fieldcall/internal/scanner"
	"github.com/julianstephens/fieldcall/internal/skipperiod"
	"github.com/julianstephens/fieldcall/internal/storage"
	"github.com/julianstephens/fieldcall/internal/utils"
)

type Options struct {
	Plan      allocator.Plan
	Target    int
	SundayOff bool
	Location  *time.Location
	Survey    lifecycle.SurveyDispatcher
	Now       func() time.Time
	// Seed, when non-zero, makes quota draws reproducible.
	Seed uint64
}

// OptionsFromConfig maps the quota and timezone settings of cfg. The survey
// dispatcher is left for the caller.
func OptionsFromConfig(cfg *config.Config) (Options, error) {
	loc, err := utils.LoadLocation(cfg.Timezone)
	if err != nil {
		return Options{}, fmt.Errorf("invalid timezone %q: %w", cfg.Timezone, err)
	}
	plan := make(allocator.Plan, 0, len(cfg.Quota.Steps))
	for _, s := range cfg.Quota.Steps {
		plan = append(plan, allocator.Step{Tier: s.Tier, Count: s.Count})
	}
	return Options{
		Plan:      plan,
		Target:    cfg.Quota.Target,
		SundayOff: cfg.SundayOff(),
		Location:  loc,
	}, nil
}

type Engine struct {
	store     storage.Provider
	registry  *registry.Registry
	skips     *skipperiod.Registry
	allocator *allocator.Allocator
	lifecycle *lifecycle.Manager
	scanner   *scanner.Scanner
	loc       *time.Location
	now       func() time.Time
}

func New(store storage.Provider, opts Options) *Engine {
	if opts.Location == nil {
		opts.Location = time.Local
	}
	if opts.Now == nil {
		opts.Now = time.Now
	}
	locks := keylock.New()
	reg := registry.New(store)
	skips := skipperiod.New(store, opts.Now)

	allocOpts := []allocator.Option{
		allocator.WithSundayOff(opts.SundayOff),
		allocator.WithLocation(opts.Location),
		allocator.WithClock(opts.Now),
		allocator.WithLocker(locks),
	}
	if len(opts.Plan) > 0 {
		allocOpts = append(allocOpts, allocator.WithPlan(opts.Plan))
	}
	if opts.Target > 0 {
		allocOpts = append(allocOpts, allocator.WithTargetPolicy(allocator.FixedTarget(opts.Target)))
	}
	if opts.Seed != 0 {
		allocOpts = append(allocOpts, allocator.WithSeed(opts.Seed))
	}

	return &Engine{
		store:     store,
		registry:  reg,
		skips:     skips,
		allocator: allocator.New(store, reg, skips, allocOpts...),
		lifecycle: lifecycle.New(store, opts.Survey, lifecycle.WithClock(opts.Now), lifecycle.WithLocker(locks)),
		scanner:   scanner.New(store, opts.Location),
		loc:       opts.Location,
		now:       opts.Now,
	}
}

func (e *Engine) Registry() *registry.Registry { return e.registry }

func (e *Engine) Scanner() *scanner.Scanner { return e.scanner }

func (e *Engine) Location() *time.Location { return e.loc }

func (e *Engine) Now() time.Time { return e.now() }

// ResolveDate accepts "today", "tomorrow" or YYYY-MM-DD in the engine's
// timezone.
func (e *Engine) ResolveDate(s string) (string, error) {
	d, err := utils.ResolveDate(strings.TrimSpace(s), e.now().In(e.loc))
	if err != nil {
		return "", apperrors.Invalid("date", "%v", err)
	}
	return d, nil
}

// =============================================================================
// Quotas
// =============================================================================

func (e *Engine) GetOrCreateQuota(ctx context.Context, agentID, date string) (models.DailyQuota, error) {
	return e.allocator.GetOrCreateQuota(ctx, agentID, date)
}

func (e *Engine) ConsumeQuotaItem(ctx context.Context, agentID, date, companyID string) (models.DailyQuota, error) {
	return e.allocator.Consume(ctx, agentID, date, companyID)
}

func (e *Engine) CancelQuotaItem(ctx context.Context, agentID, date, companyID string) (models.DailyQuota, error) {
	return e.allocator.Cancel(ctx, agentID, date, companyID)
}

// =============================================================================
// Skip periods
// =============================================================================

func (e *Engine) SetSkipPeriod(ctx context.Context, agentID, start, end, reason string) (models.SkipPeriod, error) {
	return e.skips.Set(ctx, agentID, start, end, reason)
}

func (e *Engine) CancelSkipPeriod(ctx context.Context, agentID, id string) (models.SkipPeriod, error) {
	return e.skips.Cancel(ctx, agentID, id)
}

func (e *Engine) ListSkipPeriods(ctx context.Context, agentID string) ([]models.SkipPeriod, error) {
	return e.skips.List(ctx, agentID)
}

// =============================================================================
// Activities
// =============================================================================

// CreateActivityRequest starts an activity either from a registry company
// (optionally an item on a day's call list) or from an ad-hoc company
// snapshot, as for walk-in inquiries.
type CreateActivityRequest struct {
	AgentID   string
	Type      models.ActivityType
	CompanyID string
	// QuotaDate, when set, names the call list CompanyID is taken from. The
	// slot is consumed once the activity exists.
	QuotaDate string
	Company   models.CompanySnapshot
	Callback  *time.Time
	Remarks   string
}

func (e *Engine) CreateActivity(ctx context.Context, req CreateActivityRequest) (models.Activity, error) {
	in := lifecycle.NewActivity{
		AgentID:  req.AgentID,
		Type:     req.Type,
		Company:  req.Company,
		Callback: req.Callback,
		Remarks:  req.Remarks,
	}

	if req.QuotaDate != "" && req.CompanyID == "" {
		return models.Activity{}, apperrors.Missing("company_id")
	}
	if req.CompanyID != "" {
		company, err := e.registry.GetCompany(ctx, req.CompanyID)
		if err != nil {
			return models.Activity{}, err
		}
		in.CompanyID = company.ID
		in.Company = company.Snapshot()
	}
	if req.QuotaDate != "" {
		q, err := e.store.GetQuota(ctx, req.AgentID, req.QuotaDate)
		if err != nil {
			return models.Activity{}, err
		}
		if !q.Has(req.CompanyID) {
			return models.Activity{}, apperrors.NotFound("quota item", models.QuotaKey(req.AgentID, req.QuotaDate)+"/"+req.CompanyID)
		}
	}

	a, err := e.lifecycle.Create(ctx, in)
	if err != nil {
		return models.Activity{}, err
	}

	if req.QuotaDate != "" {
		if _, err := e.allocator.Consume(ctx, req.AgentID, req.QuotaDate, req.CompanyID); err != nil {
			if rmErr := e.lifecycle.Remove(ctx, a.ID); rmErr != nil {
				logger.Error("failed to roll back activity after quota consume failed", "id", a.ID, "error", rmErr)
			}
			return models.Activity{}, err
		}
	}
	if req.CompanyID != "" {
		if err := e.registry.MarkContacted(ctx, req.CompanyID, a.CreatedAt); err != nil {
			logger.Warn("failed to mark company contacted", "company", req.CompanyID, "error", err)
		}
	}
	return a, nil
}

func (e *Engine) UpdateActivityStatus(ctx context.Context, u lifecycle.Update) (models.Activity, error) {
	return e.lifecycle.UpdateStatus(ctx, u)
}

func (e *Engine) SetCallback(ctx context.Context, id string, at *time.Time, version *int) (models.Activity, error) {
	return e.lifecycle.SetCallback(ctx, id, at, version)
}

func (e *Engine) RemoveActivity(ctx context.Context, id string) error {
	return e.lifecycle.Remove(ctx, id)
}

func (e *Engine) GetActivity(ctx context.Context, id string) (models.Activity, error) {
	return e.lifecycle.Get(ctx, id)
}

func (e *Engine) ListActivities(ctx context.Context, filter storage.ActivityFilter) ([]models.Activity, error) {
	return e.lifecycle.List(ctx, filter)
}

// =============================================================================
// Due items
// =============================================================================

// ScanDue lists agentID's due items as of now. owns may be nil.
func (e *Engine) ScanDue(ctx context.Context, agentID string, owns scanner.Owns) ([]scanner.DueItem, error) {
	if strings.TrimSpace(agentID) == "" {
		return nil, apperrors.Missing("agent")
	}
	return e.scanner.ScanDue(ctx, scanner.Request{AgentID: agentID, Now: e.now(), Owns: owns})
}
