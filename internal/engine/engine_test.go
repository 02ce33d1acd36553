package engine

import (
	"context"
	"fmt"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/julianstephens/fieldcall/internal/config"
	apperrors "github.com/julianstephens/fieldcall/internal/errors"
	"github.com/julianstephens/fieldcall/internal/lifecycle"
	"github.com/julianstephens/fieldcall/internal/models"
	"github.com/julianstephens/fieldcall/internal/scanner"
	"github.com/julianstephens/fieldcall/internal/storage"
	"github.com/julianstephens/fieldcall/internal/storage/memory"
)

type clock struct {
	mu sync.Mutex
	t  time.Time
}

func (c *clock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.t
}

func (c *clock) Advance(d time.Duration) {
	c.mu.Lock()
	c.t = c.t.Add(d)
	c.mu.Unlock()
}

type okSurvey struct{ sent []string }

func (s *okSurvey) SendSurvey(_ context.Context, email string) error {
	s.sent = append(s.sent, email)
	return nil
}

func newEngine(t *testing.T) (*Engine, *memory.Store, *clock) {
	t.Helper()
	store := memory.New()
	ctx := context.Background()
	for i := range 40 {
		id := fmt.Sprintf("top-%02d", i)
		require.NoError(t, store.SaveCompany(ctx, models.Company{
			ID: id, Name: "Company " + id, Tier: models.TierTop50, AgentID: "a1",
			Email: id + "@example.test",
		}))
	}
	for i := range 5 {
		id := fmt.Sprintf("next-%02d", i)
		require.NoError(t, store.SaveCompany(ctx, models.Company{ID: id, Name: id, Tier: models.TierNext30, AgentID: "a1"}))
	}
	// Monday 2024-03-04 09:00 UTC.
	c := &clock{t: time.Date(2024, 3, 4, 9, 0, 0, 0, time.UTC)}
	e := New(store, Options{
		Location:  time.UTC,
		Now:       c.Now,
		Survey:    &okSurvey{},
		SundayOff: true,
		Seed:      11,
	})
	return e, store, c
}

func TestQuotaFromCallListToActivity(t *testing.T) {
	e, store, c := newEngine(t)
	ctx := context.Background()

	q, err := e.GetOrCreateQuota(ctx, "a1", "2024-03-04")
	require.NoError(t, err)
	require.Len(t, q.Assigned, 35)
	companyID := q.Assigned[0]

	a, err := e.CreateActivity(ctx, CreateActivityRequest{
		AgentID:   "a1",
		Type:      models.ActivityOutboundCalls,
		CompanyID: companyID,
		QuotaDate: "2024-03-04",
	})
	require.NoError(t, err)
	assert.Equal(t, "Company "+companyID, a.Company.Name)

	q, err = e.GetOrCreateQuota(ctx, "a1", "2024-03-04")
	require.NoError(t, err)
	assert.Equal(t, 34, q.Remaining)
	assert.Contains(t, q.Consumed, companyID)
	assert.NotContains(t, q.Assigned, companyID)

	company, err := store.GetCompany(ctx, companyID)
	require.NoError(t, err)
	require.NotNil(t, company.LastContacted)
	assert.True(t, company.LastContacted.Equal(c.Now()))

	// The same slot cannot be turned into a second activity.
	_, err = e.CreateActivity(ctx, CreateActivityRequest{
		AgentID: "a1", Type: models.ActivityOutboundCalls, CompanyID: companyID, QuotaDate: "2024-03-04",
	})
	assert.ErrorIs(t, err, apperrors.ErrNotFound)

	follow := c.Now().AddDate(0, 0, 1)
	_, err = e.UpdateActivityStatus(ctx, lifecycle.Update{
		ActivityID:   a.ID,
		CallStatus:   models.CallUnsuccessful,
		Outcome:      models.OutcomeNotConnected,
		FollowUpDate: &follow,
	})
	require.NoError(t, err)

	items, err := e.ScanDue(ctx, "a1", nil)
	require.NoError(t, err)
	assert.Empty(t, items)

	c.Advance(16 * time.Minute)
	items, err = e.ScanDue(ctx, "a1", nil)
	require.NoError(t, err)
	require.Len(t, items, 1)
	assert.Equal(t, a.ID, items[0].ActivityID)
	assert.Equal(t, scanner.KindFollowUp, items[0].Kind)
}

func TestCreateActivityAdHocInquiry(t *testing.T) {
	e, _, _ := newEngine(t)
	ctx := context.Background()

	a, err := e.CreateActivity(ctx, CreateActivityRequest{
		AgentID: "a1",
		Type:    models.ActivityInboundInquiry,
		Company: models.CompanySnapshot{Name: "Walk-in Hardware", Email: "owner@walkin.test"},
	})
	require.NoError(t, err)
	assert.Empty(t, a.CompanyID)

	items, err := e.ScanDue(ctx, "a1", nil)
	require.NoError(t, err)
	require.Len(t, items, 1)
	assert.Equal(t, scanner.KindInquiry, items[0].Kind)

	list, err := e.ListActivities(ctx, storage.ActivityFilter{AgentIDs: []string{"a1"}, OpenOnly: true})
	require.NoError(t, err)
	assert.Len(t, list, 1)
}

func TestCreateActivityRejectsUnknownCompanyAndMissingQuota(t *testing.T) {
	e, _, _ := newEngine(t)
	ctx := context.Background()

	_, err := e.CreateActivity(ctx, CreateActivityRequest{AgentID: "a1", Type: models.ActivityOutboundCalls, CompanyID: "nope"})
	assert.ErrorIs(t, err, apperrors.ErrNotFound)

	_, err = e.CreateActivity(ctx, CreateActivityRequest{
		AgentID: "a1", Type: models.ActivityOutboundCalls, CompanyID: "top-00", QuotaDate: "2024-03-05",
	})
	assert.ErrorIs(t, err, apperrors.ErrNotFound)

	_, err = e.CreateActivity(ctx, CreateActivityRequest{AgentID: "a1", Type: models.ActivityOutboundCalls, QuotaDate: "2024-03-04"})
	assert.ErrorIs(t, err, apperrors.ErrValidation)

	list, err := e.ListActivities(ctx, storage.ActivityFilter{})
	require.NoError(t, err)
	assert.Empty(t, list)
}

func TestSkipPeriodBlocksQuota(t *testing.T) {
	e, _, _ := newEngine(t)
	ctx := context.Background()

	p, err := e.SetSkipPeriod(ctx, "a1", "2024-03-05", "2024-03-06", "training")
	require.NoError(t, err)

	q, err := e.GetOrCreateQuota(ctx, "a1", "2024-03-05")
	require.NoError(t, err)
	assert.Zero(t, q.Target)
	assert.Empty(t, q.Assigned)

	_, err = e.CancelSkipPeriod(ctx, "a1", p.ID)
	require.NoError(t, err)

	q, err = e.GetOrCreateQuota(ctx, "a1", "2024-03-06")
	require.NoError(t, err)
	assert.Len(t, q.Assigned, 35)

	periods, err := e.ListSkipPeriods(ctx, "a1")
	require.NoError(t, err)
	require.Len(t, periods, 1)
	assert.True(t, periods[0].IsCancelled())
}

func TestCancelQuotaItemReplaces(t *testing.T) {
	e, _, _ := newEngine(t)
	ctx := context.Background()

	q, err := e.GetOrCreateQuota(ctx, "a1", "2024-03-04")
	require.NoError(t, err)
	// 40 Top50 and 5 Next30 leave 10 undrawn companies for replacements.
	victim := q.Assigned[3]

	after, err := e.CancelQuotaItem(ctx, "a1", "2024-03-04", victim)
	require.NoError(t, err)
	assert.Len(t, after.Assigned, len(q.Assigned))
	assert.NotContains(t, after.Assigned, victim)

	after, err = e.ConsumeQuotaItem(ctx, "a1", "2024-03-04", after.Assigned[0])
	require.NoError(t, err)
	assert.Equal(t, q.Remaining-1, after.Remaining)
}

func TestResolveDate(t *testing.T) {
	e, _, _ := newEngine(t)

	d, err := e.ResolveDate("tomorrow")
	require.NoError(t, err)
	assert.Equal(t, "2024-03-05", d)

	_, err = e.ResolveDate("next week")
	assert.ErrorIs(t, err, apperrors.ErrValidation)
}

func TestOptionsFromConfig(t *testing.T) {
	cfg := config.Default()
	cfg.Timezone = "Asia/Manila"
	cfg.Quota.Target = 20

	opts, err := OptionsFromConfig(cfg)
	require.NoError(t, err)
	assert.Equal(t, 20, opts.Target)
	assert.Equal(t, "Asia/Manila", opts.Location.String())
	assert.Len(t, opts.Plan, len(cfg.Quota.Steps))
	assert.True(t, opts.SundayOff)

	cfg.Timezone = "Mars/Olympus"
	_, err = OptionsFromConfig(cfg)
	assert.Error(t, err)
}

func TestScanDueRequiresAgent(t *testing.T) {
	e, _, _ := newEngine(t)
	_, err := e.ScanDue(context.Background(), " ", nil)
	assert.ErrorIs(t, err, apperrors.ErrValidation)
}
