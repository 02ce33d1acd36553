// Package storagetest is a behavioural suite every storage.Provider must pass.
package storagetest

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	apperrors "github.com/julianstephens/fieldcall/internal/errors"
	"github.com/julianstephens/fieldcall/internal/models"
	"github.com/julianstephens/fieldcall/internal/storage"
)

// Run exercises the provider returned by newProvider. Each subtest gets a
// fresh, initialised provider.
func Run(t *testing.T, newProvider func(t *testing.T) storage.Provider) {
	t.Run("companies", func(t *testing.T) { testCompanies(t, newProvider(t)) })
	t.Run("quota create is exclusive", func(t *testing.T) { testQuotaCreate(t, newProvider(t)) })
	t.Run("quota update compares versions", func(t *testing.T) { testQuotaCAS(t, newProvider(t)) })
	t.Run("skip periods", func(t *testing.T) { testSkipPeriods(t, newProvider(t)) })
	t.Run("activities", func(t *testing.T) { testActivities(t, newProvider(t)) })
	t.Run("activity filters", func(t *testing.T) { testActivityFilters(t, newProvider(t)) })
	t.Run("activities list in creation order", func(t *testing.T) { testActivityOrder(t, newProvider(t)) })
}

var base = time.Date(2024, 3, 4, 9, 30, 0, 0, time.UTC)

func testCompanies(t *testing.T, p storage.Provider) {
	ctx := context.Background()

	require.NoError(t, p.SaveCompany(ctx, models.Company{ID: "c2", Name: "Globex", Tier: models.TierNext30, AgentID: "a1"}))
	require.NoError(t, p.SaveCompany(ctx, models.Company{ID: "c1", Name: "Acme", Tier: models.TierTop50, AgentID: "a1", Phone: "555"}))
	require.NoError(t, p.SaveCompany(ctx, models.Company{ID: "c3", Name: "Initech", Tier: models.TierTSA, AgentID: "a2"}))

	err := p.SaveCompany(ctx, models.Company{ID: "bad", Name: "Bad", Tier: "Gold"})
	assert.ErrorIs(t, err, apperrors.ErrValidation)

	list, err := p.ListCompanies(ctx, "a1")
	require.NoError(t, err)
	require.Len(t, list, 2)
	assert.Equal(t, "c1", list[0].ID)
	assert.Equal(t, "555", list[0].Phone)

	all, err := p.ListCompanies(ctx, "")
	require.NoError(t, err)
	assert.Len(t, all, 3)

	require.NoError(t, p.MarkContacted(ctx, "c1", base))
	c, err := p.GetCompany(ctx, "c1")
	require.NoError(t, err)
	require.NotNil(t, c.LastContacted)
	assert.True(t, c.LastContacted.Equal(base))

	_, err = p.GetCompany(ctx, "nope")
	assert.ErrorIs(t, err, apperrors.ErrNotFound)
	assert.ErrorIs(t, p.MarkContacted(ctx, "nope", base), apperrors.ErrNotFound)
}

func newQuota() models.DailyQuota {
	return models.DailyQuota{
		AgentID:   "a1",
		Date:      "2024-03-04",
		Target:    3,
		Assigned:  []string{"c1", "c2", "c3"},
		Remaining: 3,
		CreatedAt: base,
		UpdatedAt: base,
	}
}

func testQuotaCreate(t *testing.T, p storage.Provider) {
	ctx := context.Background()

	_, err := p.GetQuota(ctx, "a1", "2024-03-04")
	assert.ErrorIs(t, err, apperrors.ErrNotFound)

	require.NoError(t, p.CreateQuota(ctx, newQuota()))
	err = p.CreateQuota(ctx, newQuota())
	assert.ErrorIs(t, err, apperrors.ErrConflict)

	got, err := p.GetQuota(ctx, "a1", "2024-03-04")
	require.NoError(t, err)
	assert.Equal(t, []string{"c1", "c2", "c3"}, got.Assigned)
	assert.Empty(t, got.Consumed)
	assert.Equal(t, 3, got.Remaining)
	assert.False(t, got.IsBlocked())

	blocked := models.DailyQuota{AgentID: "a1", Date: "2024-03-10", Blocked: models.QuotaBlockSunday, CreatedAt: base, UpdatedAt: base}
	require.NoError(t, p.CreateQuota(ctx, blocked))
	got, err = p.GetQuota(ctx, "a1", "2024-03-10")
	require.NoError(t, err)
	assert.Equal(t, models.QuotaBlockSunday, got.Blocked)
	assert.Empty(t, got.Assigned)
}

func testQuotaCAS(t *testing.T, p storage.Provider) {
	ctx := context.Background()
	require.NoError(t, p.CreateQuota(ctx, newQuota()))

	q, err := p.GetQuota(ctx, "a1", "2024-03-04")
	require.NoError(t, err)
	stale := q.Clone()

	q.Assigned = []string{"c2", "c3"}
	q.Consumed = []string{"c1"}
	q.Remaining = 2
	updated, err := p.UpdateQuota(ctx, q)
	require.NoError(t, err)
	assert.Equal(t, q.Version+1, updated.Version)

	stale.Assigned = []string{"c1"}
	_, err = p.UpdateQuota(ctx, stale)
	assert.ErrorIs(t, err, apperrors.ErrConflict)

	got, err := p.GetQuota(ctx, "a1", "2024-03-04")
	require.NoError(t, err)
	assert.Equal(t, []string{"c2", "c3"}, got.Assigned)
	assert.Equal(t, []string{"c1"}, got.Consumed)
	assert.Equal(t, updated.Version, got.Version)

	missing := newQuota()
	missing.Date = "2030-01-01"
	_, err = p.UpdateQuota(ctx, missing)
	assert.ErrorIs(t, err, apperrors.ErrNotFound)
}

func testSkipPeriods(t *testing.T, p storage.Provider) {
	ctx := context.Background()
	later := models.SkipPeriod{ID: "s2", AgentID: "a1", StartDate: "2024-04-01", EndDate: "2024-04-03", CreatedAt: base}
	earlier := models.SkipPeriod{ID: "s1", AgentID: "a1", StartDate: "2024-03-05", EndDate: "2024-03-06", Reason: "leave", CreatedAt: base}
	require.NoError(t, p.SaveSkipPeriod(ctx, later))
	require.NoError(t, p.SaveSkipPeriod(ctx, earlier))

	list, err := p.ListSkipPeriods(ctx, "a1")
	require.NoError(t, err)
	require.Len(t, list, 2)
	assert.Equal(t, "s1", list[0].ID)
	assert.Equal(t, "leave", list[0].Reason)

	cancelled := base.Add(time.Hour)
	earlier.CancelledAt = &cancelled
	require.NoError(t, p.SaveSkipPeriod(ctx, earlier))
	got, err := p.GetSkipPeriod(ctx, "s1")
	require.NoError(t, err)
	assert.True(t, got.IsCancelled())

	_, err = p.GetSkipPeriod(ctx, "missing")
	assert.ErrorIs(t, err, apperrors.ErrNotFound)
}

func testActivities(t *testing.T, p storage.Provider) {
	ctx := context.Background()
	due := base.AddDate(0, 0, 7)
	a := models.Activity{
		ID:        "act-1",
		AgentID:   "a1",
		CompanyID: "c1",
		Company:   models.CompanySnapshot{Name: "Acme", Phone: "555"},
		Type:      models.ActivityQuotationPreparation,
		Status:    models.StatusQuoteDone,
		Outcome:   models.OutcomeSentQuotationStandard,
		Quotation: &models.QuotationDetails{Number: "Q-1", Products: []string{"pump"}, CustomerType: models.CustomerEndUser},
		CreatedAt: base,
		UpdatedAt: base,
		DueAt:     &due,
	}
	require.NoError(t, p.AddActivity(ctx, a))
	assert.ErrorIs(t, p.AddActivity(ctx, a), apperrors.ErrConflict)

	got, err := p.GetActivity(ctx, "act-1")
	require.NoError(t, err)
	assert.Equal(t, "Acme", got.Company.Name)
	require.NotNil(t, got.Quotation)
	assert.Equal(t, []string{"pump"}, got.Quotation.Products)
	require.NotNil(t, got.DueAt)
	assert.True(t, got.DueAt.Equal(due))
	assert.Nil(t, got.Callback)
	assert.Nil(t, got.SalesOrder)

	got.Status = models.StatusSODone
	got.SalesOrder = &models.SalesOrderDetails{Number: "SO-9", Amount: 1200.5, OrderType: models.OrderStock}
	updated, err := p.UpdateActivity(ctx, got)
	require.NoError(t, err)
	assert.Equal(t, got.Version+1, updated.Version)

	_, err = p.UpdateActivity(ctx, got)
	assert.ErrorIs(t, err, apperrors.ErrConflict)

	reread, err := p.GetActivity(ctx, "act-1")
	require.NoError(t, err)
	assert.Equal(t, models.StatusSODone, reread.Status)
	require.NotNil(t, reread.SalesOrder)
	assert.InDelta(t, 1200.5, reread.SalesOrder.Amount, 0.001)

	require.NoError(t, p.DeleteActivity(ctx, "act-1"))
	_, err = p.GetActivity(ctx, "act-1")
	assert.True(t, errors.Is(err, apperrors.ErrNotFound))
	assert.ErrorIs(t, p.DeleteActivity(ctx, "act-1"), apperrors.ErrNotFound)
}

func testActivityFilters(t *testing.T, p storage.Provider) {
	ctx := context.Background()
	add := func(id, agent string, status models.Status, offset time.Duration) {
		require.NoError(t, p.AddActivity(ctx, models.Activity{
			ID: id, AgentID: agent, Type: models.ActivityOutboundCalls, Status: status,
			CreatedAt: base.Add(offset), UpdatedAt: base.Add(offset),
		}))
	}
	add("x1", "a1", models.StatusOnProgress, 2*time.Minute)
	add("x2", "a1", models.StatusDelivered, time.Minute)
	add("x3", "a2", models.StatusAssisted, 0)
	add("x4", "a3", models.StatusLoss, 0)

	all, err := p.ListActivities(ctx, storage.ActivityFilter{})
	require.NoError(t, err)
	assert.Len(t, all, 4)

	open, err := p.ListActivities(ctx, storage.ActivityFilter{OpenOnly: true})
	require.NoError(t, err)
	require.Len(t, open, 2)
	assert.Equal(t, "x3", open[0].ID)
	assert.Equal(t, "x1", open[1].ID)

	mine, err := p.ListActivities(ctx, storage.ActivityFilter{AgentIDs: []string{"a1", "a3"}})
	require.NoError(t, err)
	assert.Len(t, mine, 3)
}

func testActivityOrder(t *testing.T, p storage.Provider) {
	ctx := context.Background()
	// Offsets within one second, including a whole second with no fraction.
	for id, offset := range map[string]time.Duration{
		"o1": 0,
		"o2": 500 * time.Millisecond,
		"o3": time.Second,
		"o4": 1250 * time.Millisecond,
	} {
		require.NoError(t, p.AddActivity(ctx, models.Activity{
			ID: id, AgentID: "a1", Type: models.ActivityOutboundCalls, Status: models.StatusOnProgress,
			CreatedAt: base.Add(offset), UpdatedAt: base.Add(offset),
		}))
	}

	list, err := p.ListActivities(ctx, storage.ActivityFilter{})
	require.NoError(t, err)
	ids := make([]string, 0, len(list))
	for _, a := range list {
		ids = append(ids, a.ID)
	}
	assert.Equal(t, []string{"o1", "o2", "o3", "o4"}, ids)

	got, err := p.GetActivity(ctx, "o2")
	require.NoError(t, err)
	assert.True(t, got.CreatedAt.Equal(base.Add(500*time.Millisecond)))
}
