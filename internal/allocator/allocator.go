// Package allocator builds each agent's daily call list by tiered random
// sampling and replaces cancelled items.
package allocator

import (
	"context"
	"errors"
	"math/rand/v2"
	"slices"
	"strconv"
	"sync"
	"time"

	"github.com/julianstephens/fieldcall/internal/constants"
	apperrors "github.com/julianstephens/fieldcall/internal/errors"
	"github.com/julianstephens/fieldcall/internal/keylock"
	"github.com/julianstephens/fieldcall/internal/logger"
	"github.com/julianstephens/fieldcall/internal/metrics"
	"github.com/julianstephens/fieldcall/internal/models"
	"github.com/julianstephens/fieldcall/internal/utils"
)

// AccountRegistry is the source of companies, tiers and contact history.
type AccountRegistry interface {
	// ListEligibleCompanies returns the agent's companies that may be
	// called on today.
	ListEligibleCompanies(ctx context.Context, agentID string, today time.Time) ([]models.Company, error)
	GetCompany(ctx context.Context, id string) (models.Company, error)
}

// QuotaStore is the slice of storage.Provider the allocator writes through.
type QuotaStore interface {
	GetQuota(ctx context.Context, agentID, date string) (models.DailyQuota, error)
	CreateQuota(ctx context.Context, q models.DailyQuota) error
	UpdateQuota(ctx context.Context, q models.DailyQuota) (models.DailyQuota, error)
}

// SkipChecker reports whether an uncancelled skip period covers date.
type SkipChecker interface {
	Active(ctx context.Context, agentID, date string) (bool, error)
}

// TargetPolicy chooses how many companies an agent should call on a day.
type TargetPolicy interface {
	Target(ctx context.Context, agentID string, day time.Time) int
}

// FixedTarget returns the same target for every agent and day.
type FixedTarget int

func (f FixedTarget) Target(context.Context, string, time.Time) int { return int(f) }

type Allocator struct {
	store     QuotaStore
	registry  AccountRegistry
	skips     SkipChecker
	policy    TargetPolicy
	plan      Plan
	sundayOff bool
	loc       *time.Location
	now       func() time.Time
	locks     *keylock.Locker

	rngMu sync.Mutex
	rng   *rand.Rand
}

type Option func(*Allocator)

func WithPlan(p Plan) Option { return func(a *Allocator) { a.plan = p } }

func WithTargetPolicy(p TargetPolicy) Option { return func(a *Allocator) { a.policy = p } }

func WithSundayOff(off bool) Option { return func(a *Allocator) { a.sundayOff = off } }

func WithLocation(loc *time.Location) Option { return func(a *Allocator) { a.loc = loc } }

func WithClock(now func() time.Time) Option { return func(a *Allocator) { a.now = now } }

// WithLocker shares a lock table with other components writing the same keys.
func WithLocker(l *keylock.Locker) Option { return func(a *Allocator) { a.locks = l } }

// WithSeed makes draws reproducible.
func WithSeed(seed uint64) Option {
	return func(a *Allocator) { a.rng = rand.New(rand.NewPCG(seed, seed^0x9e3779b97f4a7c15)) }
}

func New(store QuotaStore, registry AccountRegistry, skips SkipChecker, opts ...Option) *Allocator {
	a := &Allocator{
		store:     store,
		registry:  registry,
		skips:     skips,
		policy:    FixedTarget(constants.DefaultQuotaTarget),
		plan:      DefaultPlan(),
		sundayOff: constants.DefaultSundayOff,
		loc:       time.Local,
		now:       time.Now,
		locks:     keylock.New(),
		rng:       rand.New(rand.NewPCG(uint64(time.Now().UnixNano()), 0)),
	}
	for _, opt := range opts {
		opt(a)
	}
	return a
}

func (a *Allocator) parseKey(agentID, date string) (time.Time, error) {
	if agentID == "" {
		return time.Time{}, apperrors.Missing("agent")
	}
	if date == "" {
		return time.Time{}, apperrors.Missing("date")
	}
	day, err := utils.ParseDateInLocation(date, a.loc)
	if err != nil {
		return time.Time{}, apperrors.Invalid("date", "expected YYYY-MM-DD, got %q", date)
	}
	return day, nil
}

// GetOrCreateQuota returns the stored quota for (agent, date) or generates
// and persists one. A stored quota is never regenerated.
func (a *Allocator) GetOrCreateQuota(ctx context.Context, agentID, date string) (models.DailyQuota, error) {
	day, err := a.parseKey(agentID, date)
	if err != nil {
		return models.DailyQuota{}, err
	}

	q, err := a.store.GetQuota(ctx, agentID, date)
	if err == nil || !errors.Is(err, apperrors.ErrNotFound) {
		return q, err
	}

	unlock := a.locks.Lock(models.QuotaKey(agentID, date))
	defer unlock()

	q, err = a.store.GetQuota(ctx, agentID, date)
	if err == nil || !errors.Is(err, apperrors.ErrNotFound) {
		return q, err
	}

	q, err = a.generate(ctx, agentID, date, day)
	if err != nil {
		return models.DailyQuota{}, err
	}

	if err := a.store.CreateQuota(ctx, q); err != nil {
		if errors.Is(err, apperrors.ErrConflict) {
			// Another process created it first; theirs wins.
			return a.store.GetQuota(ctx, agentID, date)
		}
		return models.DailyQuota{}, err
	}
	a.record(q)
	return q, nil
}

func (a *Allocator) generate(ctx context.Context, agentID, date string, day time.Time) (models.DailyQuota, error) {
	now := a.now()
	q := models.DailyQuota{
		AgentID:   agentID,
		Date:      date,
		Assigned:  []string{},
		Consumed:  []string{},
		Cancelled: []string{},
		CreatedAt: now,
		UpdatedAt: now,
	}

	if a.sundayOff && day.Weekday() == time.Sunday {
		q.Blocked = models.QuotaBlockSunday
		return q, nil
	}
	if a.skips != nil {
		skipped, err := a.skips.Active(ctx, agentID, date)
		if err != nil {
			return models.DailyQuota{}, err
		}
		if skipped {
			q.Blocked = models.QuotaBlockSkipPeriod
			return q, nil
		}
	}

	q.Target = max(a.policy.Target(ctx, agentID, day), 0)
	q.Remaining = q.Target

	companies, err := a.registry.ListEligibleCompanies(ctx, agentID, day)
	if err != nil {
		return models.DailyQuota{}, apperrors.Dependency("account registry", err)
	}
	q.Assigned = a.allocate(companies, q.Target)
	return q, nil
}

func (a *Allocator) record(q models.DailyQuota) {
	if q.IsBlocked() {
		metrics.QuotasGenerated.WithLabelValues(string(q.Blocked)).Inc()
		logger.Info("no quota generated", "agent", q.AgentID, "date", q.Date, "reason", q.Blocked)
		return
	}
	metrics.QuotasGenerated.WithLabelValues("allocated").Inc()
	metrics.QuotaSize.Observe(float64(len(q.Assigned)))
	if len(q.Assigned) < q.Target {
		metrics.QuotaShortfall.Inc()
		logger.Info("quota below target", "agent", q.AgentID, "date", q.Date,
			"assigned", len(q.Assigned), "target", q.Target)
		return
	}
	logger.Debug("quota generated", "agent", q.AgentID, "date", q.Date, "assigned", len(q.Assigned))
}

// allocate fills target slots step by step, carrying each step's shortfall
// forward, then tops up from every eligible company not yet picked.
func (a *Allocator) allocate(companies []models.Company, target int) []string {
	byTier := map[models.Tier][]string{}
	for _, c := range companies {
		byTier[c.Tier] = append(byTier[c.Tier], c.ID)
	}

	picked := make([]string, 0, target)
	taken := map[string]bool{}
	remaining := target
	carry := 0
	for _, step := range a.plan {
		if remaining == 0 {
			break
		}
		want := step.Count + carry
		n := min(want, remaining, len(byTier[step.Tier]))
		for _, id := range a.sample(byTier[step.Tier], n) {
			picked = append(picked, id)
			taken[id] = true
		}
		remaining -= n
		carry = want - n
	}

	if remaining > 0 {
		var rest []string
		for _, c := range companies {
			if !taken[c.ID] {
				rest = append(rest, c.ID)
			}
		}
		picked = append(picked, a.sample(rest, min(remaining, len(rest)))...)
	}
	return picked
}

// sample draws n distinct ids uniformly at random.
func (a *Allocator) sample(pool []string, n int) []string {
	if n <= 0 {
		return nil
	}
	a.rngMu.Lock()
	perm := a.rng.Perm(len(pool))
	a.rngMu.Unlock()

	out := make([]string, n)
	for i := range n {
		out[i] = pool[perm[i]]
	}
	return out
}

// Consume marks companyID as called. No replacement is drawn.
func (a *Allocator) Consume(ctx context.Context, agentID, date, companyID string) (models.DailyQuota, error) {
	return a.mutate(ctx, agentID, date, companyID, func(q *models.DailyQuota, _ time.Time) error {
		q.Consumed = append(q.Consumed, companyID)
		q.Remaining = max(q.Remaining-1, 0)
		metrics.QuotaItems.WithLabelValues("consume").Inc()
		return nil
	})
}

// Cancel skips companyID for today and tries to draw one replacement from
// the same tier, then from any tier. Without a candidate the list shrinks.
func (a *Allocator) Cancel(ctx context.Context, agentID, date, companyID string) (models.DailyQuota, error) {
	return a.mutate(ctx, agentID, date, companyID, func(q *models.DailyQuota, day time.Time) error {
		q.Cancelled = append(q.Cancelled, companyID)
		metrics.QuotaItems.WithLabelValues("cancel").Inc()

		replacement, source, err := a.replacement(ctx, *q, companyID, day)
		if err != nil {
			return err
		}
		metrics.Replacements.WithLabelValues(source).Inc()
		if replacement != "" {
			q.Assigned = append(q.Assigned, replacement)
		}
		logger.Debug("quota item cancelled", "agent", agentID, "date", date,
			"company", companyID, "replacement", replacement, "source", source)
		return nil
	})
}

func (a *Allocator) replacement(ctx context.Context, q models.DailyQuota, cancelled string, day time.Time) (string, string, error) {
	eligible, err := a.registry.ListEligibleCompanies(ctx, q.AgentID, day)
	if err != nil {
		return "", "", apperrors.Dependency("account registry", err)
	}

	var tier models.Tier
	if c, err := a.registry.GetCompany(ctx, cancelled); err == nil {
		tier = c.Tier
	} else if !errors.Is(err, apperrors.ErrNotFound) {
		return "", "", apperrors.Dependency("account registry", err)
	}

	var sameTier, anyTier []string
	for _, c := range eligible {
		if q.Touched(c.ID) {
			continue
		}
		anyTier = append(anyTier, c.ID)
		if tier != "" && c.Tier == tier {
			sameTier = append(sameTier, c.ID)
		}
	}
	switch {
	case len(sameTier) > 0:
		return a.sample(sameTier, 1)[0], "same_tier", nil
	case len(anyTier) > 0:
		return a.sample(anyTier, 1)[0], "any_tier", nil
	}
	return "", "none", nil
}

func (a *Allocator) mutate(ctx context.Context, agentID, date, companyID string, apply func(*models.DailyQuota, time.Time) error) (models.DailyQuota, error) {
	day, err := a.parseKey(agentID, date)
	if err != nil {
		return models.DailyQuota{}, err
	}
	if companyID == "" {
		return models.DailyQuota{}, apperrors.Missing("company")
	}

	unlock := a.locks.Lock(models.QuotaKey(agentID, date))
	defer unlock()

	q, err := a.store.GetQuota(ctx, agentID, date)
	if err != nil {
		return models.DailyQuota{}, err
	}
	i := slices.Index(q.Assigned, companyID)
	if i < 0 {
		return models.DailyQuota{}, apperrors.NotFound("quota item", q.Key()+"/"+companyID)
	}
	q.Assigned = slices.Delete(q.Assigned, i, i+1)

	if err := apply(&q, day); err != nil {
		return models.DailyQuota{}, err
	}
	q.UpdatedAt = a.now()
	return a.store.UpdateQuota(ctx, q)
}

// Plan is the ordered list of per-tier step quotas.
type Plan []Step

type Step struct {
	Tier  models.Tier
	Count int
}

// DefaultPlan draws 15 Top50, 10 Next30, 5 Balance20, 5 CSR and 5 TSA.
func DefaultPlan() Plan {
	return Plan{
		{models.TierTop50, 15},
		{models.TierNext30, 10},
		{models.TierBalance20, 5},
		{models.TierCSR, 5},
		{models.TierTSA, 5},
	}
}

func (p Plan) String() string {
	s := ""
	for i, step := range p {
		if i > 0 {
			s += ","
		}
		s += string(step.Tier) + ":" + strconv.Itoa(step.Count)
	}
	return s
}
