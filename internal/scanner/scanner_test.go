package scanner

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/julianstephens/fieldcall/internal/models"
	"github.com/julianstephens/fieldcall/internal/storage/memory"
)

var now = time.Date(2024, 3, 4, 10, 0, 0, 0, time.UTC)

func ptr(t time.Time) *time.Time { return &t }

func activity(id string, typ models.ActivityType, status models.Status, created time.Time) models.Activity {
	return models.Activity{
		ID:        id,
		AgentID:   "a1",
		Company:   models.CompanySnapshot{Name: "Co " + id},
		Type:      typ,
		Status:    status,
		CreatedAt: created,
		UpdatedAt: created,
	}
}

func seed(t *testing.T, acts ...models.Activity) *memory.Store {
	t.Helper()
	store := memory.New()
	for _, a := range acts {
		require.NoError(t, store.AddActivity(context.Background(), a))
	}
	return store
}

func ids(items []DueItem) []string {
	out := make([]string, len(items))
	for i, it := range items {
		out[i] = it.ActivityID
	}
	return out
}

func TestScanDueClassification(t *testing.T) {
	yesterday := now.AddDate(0, 0, -1)

	callbackLaterToday := activity("cb-today", models.ActivityOutboundCalls, models.StatusOnProgress, yesterday)
	callbackLaterToday.Callback = ptr(now.Add(5 * time.Hour))

	callbackTomorrow := activity("cb-tomorrow", models.ActivityOutboundCalls, models.StatusOnProgress, yesterday)
	callbackTomorrow.Callback = ptr(now.AddDate(0, 0, 1))

	followDue := activity("fu-due", models.ActivityOutboundCalls, models.StatusOnProgress, yesterday.AddDate(0, 0, -10))
	followDue.Outcome = models.OutcomeRingingOnly
	followDue.DueAt = ptr(now.Add(-time.Hour))

	followLater := activity("fu-later", models.ActivityOutboundCalls, models.StatusOnProgress, yesterday)
	followLater.DueAt = ptr(now.Add(time.Hour))

	spfsExpired := activity("spfs", models.ActivityQuotationPreparation, models.StatusQuoteDone, now.AddDate(0, -3, 0))
	spfsExpired.Outcome = models.OutcomeWithSPFS
	spfsExpired.DueAt = ptr(now.AddDate(0, -3, 7))
	spfsExpired.DueExpiresAt = ptr(now.AddDate(0, -1, 0))

	inquiry := activity("inq", models.ActivityInboundInquiry, models.StatusOnProgress, yesterday)
	inquiryAssisted := activity("inq-assisted", models.ActivityInboundInquiry, models.StatusAssisted, yesterday)
	inquiryTomorrow := activity("inq-future", models.ActivityInboundInquiry, models.StatusOnProgress, now.AddDate(0, 0, 1))

	both := activity("both", models.ActivityOutboundCalls, models.StatusOnProgress, yesterday)
	both.Callback = ptr(now.Add(-2 * time.Hour))
	both.DueAt = ptr(now.Add(-3 * time.Hour))

	delivered := activity("done", models.ActivityInboundInquiry, models.StatusDelivered, yesterday)
	delivered.Callback = ptr(now)

	store := seed(t, callbackLaterToday, callbackTomorrow, followDue, followLater, spfsExpired,
		inquiry, inquiryAssisted, inquiryTomorrow, both, delivered)

	items, err := New(store, time.UTC).ScanDue(context.Background(), Request{AgentID: "a1", Now: now})
	require.NoError(t, err)

	kinds := map[string]Kind{}
	for _, it := range items {
		kinds[it.ActivityID] = it.Kind
	}
	assert.Equal(t, map[string]Kind{
		"cb-today": KindCallback,
		"both":     KindCallback,
		"fu-due":   KindFollowUp,
		"inq":      KindInquiry,
	}, kinds)
}

func TestScanDueOrdering(t *testing.T) {
	a := activity("a", models.ActivityInboundInquiry, models.StatusOnProgress, now.Add(-3*time.Hour))
	b := activity("b", models.ActivityInboundInquiry, models.StatusOnProgress, now.Add(-1*time.Hour))
	c := activity("c", models.ActivityOutboundCalls, models.StatusOnProgress, now.AddDate(0, 0, -2))
	c.Callback = ptr(now.Add(-1 * time.Hour))
	d := activity("d", models.ActivityOutboundCalls, models.StatusOnProgress, now.AddDate(0, 0, -2))
	d.DueAt = ptr(now.Add(-30 * time.Minute))

	items, err := New(seed(t, a, b, c, d), time.UTC).ScanDue(context.Background(), Request{AgentID: "a1", Now: now})
	require.NoError(t, err)
	assert.Equal(t, []string{"d", "b", "c", "a"}, ids(items))
}

func TestScanDueExcludesExpiredSPFS(t *testing.T) {
	base := now.AddDate(0, -2, -1)
	a := activity("spfs", models.ActivityQuotationPreparation, models.StatusQuoteDone, base)
	a.Outcome = models.OutcomeWithSPFS
	a.DueAt = ptr(base.AddDate(0, 0, 7))
	a.DueExpiresAt = ptr(base.AddDate(0, 2, 0))

	s := New(seed(t, a), time.UTC)
	items, err := s.ScanDue(context.Background(), Request{AgentID: "a1", Now: now})
	require.NoError(t, err)
	assert.Empty(t, items)

	items, err = s.ScanDue(context.Background(), Request{AgentID: "a1", Now: base.AddDate(0, 1, 0)})
	require.NoError(t, err)
	assert.Equal(t, []string{"spfs"}, ids(items))
}

func TestScanDueOwnership(t *testing.T) {
	mine := activity("mine", models.ActivityInboundInquiry, models.StatusOnProgress, now)
	sub := activity("sub", models.ActivityInboundInquiry, models.StatusOnProgress, now.Add(-time.Minute))
	sub.AgentID = "a2"
	other := activity("other", models.ActivityInboundInquiry, models.StatusOnProgress, now)
	other.AgentID = "a3"

	s := New(seed(t, mine, sub, other), time.UTC)

	items, err := s.ScanDue(context.Background(), Request{AgentID: "a1", Now: now})
	require.NoError(t, err)
	assert.Equal(t, []string{"mine"}, ids(items))

	team := map[string]bool{"a1": true, "a2": true}
	items, err = s.ScanDue(context.Background(), Request{
		AgentID: "a1", Now: now,
		Owns: func(owner string) bool { return team[owner] },
	})
	require.NoError(t, err)
	assert.Equal(t, []string{"mine", "sub"}, ids(items))
}

func TestScanDueStable(t *testing.T) {
	var acts []models.Activity
	for _, id := range []string{"x3", "x1", "x2"} {
		a := activity(id, models.ActivityOutboundCalls, models.StatusOnProgress, now.AddDate(0, 0, -1))
		a.Callback = ptr(now.Add(-time.Hour))
		acts = append(acts, a)
	}
	s := New(seed(t, acts...), time.UTC)

	first, err := s.ScanDue(context.Background(), Request{AgentID: "a1", Now: now})
	require.NoError(t, err)
	second, err := s.ScanDue(context.Background(), Request{AgentID: "a1", Now: now.Add(30 * time.Second)})
	require.NoError(t, err)
	assert.Equal(t, first, second)
	assert.Equal(t, []string{"x1", "x2", "x3"}, ids(first))
}

func TestScanDueCancelled(t *testing.T) {
	s := New(seed(t, activity("a", models.ActivityInboundInquiry, models.StatusOnProgress, now)), time.UTC)
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	_, err := s.ScanDue(ctx, Request{AgentID: "a1", Now: now})
	assert.ErrorIs(t, err, context.Canceled)
}

func TestScanDueCallbackUsesLocalDate(t *testing.T) {
	manila := time.FixedZone("PHT", 8*3600)
	// 2024-03-04 23:30 UTC is already 2024-03-05 in Manila.
	scanAt := time.Date(2024, 3, 4, 23, 30, 0, 0, time.UTC)
	a := activity("a", models.ActivityOutboundCalls, models.StatusOnProgress, now.AddDate(0, 0, -1))
	a.Callback = ptr(time.Date(2024, 3, 5, 9, 0, 0, 0, manila))

	items, err := New(seed(t, a), manila).ScanDue(context.Background(), Request{AgentID: "a1", Now: scanAt})
	require.NoError(t, err)
	assert.Equal(t, []string{"a"}, ids(items))

	items, err = New(seed(t, a), time.UTC).ScanDue(context.Background(), Request{AgentID: "a1", Now: scanAt})
	require.NoError(t, err)
	assert.Empty(t, items)
}

func TestTracker(t *testing.T) {
	tr := NewTracker()
	a := DueItem{ActivityID: "a", At: now}
	b := DueItem{ActivityID: "b", At: now}

	assert.Len(t, tr.Fresh([]DueItem{a, b}), 2)
	assert.Empty(t, tr.Fresh([]DueItem{a, b}))

	moved := DueItem{ActivityID: "a", At: now.Add(time.Hour)}
	assert.Equal(t, []DueItem{moved}, tr.Fresh([]DueItem{moved, b}))

	// b drops out of the scan and comes back.
	assert.Empty(t, tr.Fresh([]DueItem{moved}))
	assert.Equal(t, []DueItem{b}, tr.Fresh([]DueItem{moved, b}))

	tr.Forget("a")
	assert.Equal(t, []DueItem{moved}, tr.Fresh([]DueItem{moved, b}))
}

type recordingSink struct {
	mu     sync.Mutex
	fail   map[string]bool
	err    error
	got    []string
	notify chan struct{}
}

func (s *recordingSink) Deliver(_ context.Context, _ string, items []DueItem) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.err != nil {
		return s.err
	}
	var failed []string
	for _, it := range items {
		if s.fail[it.ActivityID] {
			failed = append(failed, it.ActivityID)
			continue
		}
		s.got = append(s.got, it.ActivityID)
	}
	if s.notify != nil {
		select {
		case s.notify <- struct{}{}:
		default:
		}
	}
	if len(failed) > 0 {
		return &PartialDelivery{Failed: failed, Err: errors.New("tray busy")}
	}
	return nil
}

func (s *recordingSink) delivered() []string {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]string(nil), s.got...)
}

func TestRunOnceDeduplicates(t *testing.T) {
	store := seed(t,
		activity("a", models.ActivityInboundInquiry, models.StatusOnProgress, now),
		activity("b", models.ActivityInboundInquiry, models.StatusOnProgress, now.Add(-time.Minute)),
	)
	sink := &recordingSink{fail: map[string]bool{"b": true}}
	r := NewRunner(New(store, time.UTC), sink, "a1", WithRunnerClock(func() time.Time { return now }))

	n, err := r.RunOnce(context.Background())
	assert.Error(t, err)
	assert.Equal(t, 1, n)
	assert.Equal(t, []string{"a"}, sink.delivered())

	sink.fail = nil
	n, err = r.RunOnce(context.Background())
	require.NoError(t, err)
	assert.Equal(t, 1, n)
	assert.Equal(t, []string{"a", "b"}, sink.delivered())

	n, err = r.RunOnce(context.Background())
	require.NoError(t, err)
	assert.Zero(t, n)
}

func TestRunOnceSinkFailureRetries(t *testing.T) {
	store := seed(t, activity("a", models.ActivityInboundInquiry, models.StatusOnProgress, now))
	sink := &recordingSink{err: errors.New("down")}
	r := NewRunner(New(store, time.UTC), sink, "a1", WithRunnerClock(func() time.Time { return now }))

	_, err := r.RunOnce(context.Background())
	require.Error(t, err)

	sink.err = nil
	n, err := r.RunOnce(context.Background())
	require.NoError(t, err)
	assert.Equal(t, 1, n)
}

func TestRunnerApplyRejectsTinyInterval(t *testing.T) {
	r := NewRunner(New(memory.New(), time.UTC), &recordingSink{}, "a1")
	assert.Error(t, r.Apply(100*time.Millisecond, 0))
	assert.NoError(t, r.Apply(time.Minute, 0.1))
}

func TestRunnerStartTicks(t *testing.T) {
	store := seed(t, activity("a", models.ActivityInboundInquiry, models.StatusOnProgress, now))
	sink := &recordingSink{notify: make(chan struct{}, 1)}
	r := NewRunner(New(store, time.UTC), sink, "a1",
		WithInterval(time.Second), WithJitter(0),
		WithRunnerClock(func() time.Time { return now }))

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- r.Start(ctx) }()

	select {
	case <-sink.notify:
	case <-time.After(3 * time.Second):
		t.Fatal("initial scan did not deliver")
	}

	require.NoError(t, store.AddActivity(context.Background(),
		activity("b", models.ActivityInboundInquiry, models.StatusOnProgress, now.Add(-time.Minute))))

	select {
	case <-sink.notify:
	case <-time.After(5 * time.Second):
		t.Fatal("scheduled scan did not deliver")
	}

	cancel()
	require.NoError(t, <-done)
	assert.ElementsMatch(t, []string{"a", "b"}, sink.delivered())
}

func TestFormat(t *testing.T) {
	it := DueItem{Kind: KindFollowUp, Company: "Acme", Type: models.ActivityOutboundCalls, Outcome: models.OutcomeRingingOnly, At: now}
	assert.Equal(t, "Follow-up: Acme (Outbound calls, Ringing Only) since 2024-03-04 10:00", Format(it, time.UTC))
}
