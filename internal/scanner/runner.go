package scanner

import (
	"context"
	"errors"
	"fmt"
	"math/rand/v2"
	"sync"
	"time"

	"github.com/robfig/cron/v3"

	"github.com/julianstephens/fieldcall/internal/constants"
	"github.com/julianstephens/fieldcall/internal/logger"
	"github.com/julianstephens/fieldcall/internal/metrics"
	"github.com/julianstephens/fieldcall/internal/notifier"
)

// Sink receives the freshly due items of one scan.
type Sink interface {
	Deliver(ctx context.Context, agentID string, items []DueItem) error
}

// PartialDelivery lists the items a sink failed to surface. The runner
// retries them on the next tick.
type PartialDelivery struct {
	Failed []string
	Err    error
}

func (e *PartialDelivery) Error() string {
	return fmt.Sprintf("%d due items not delivered: %v", len(e.Failed), e.Err)
}

func (e *PartialDelivery) Unwrap() error { return e.Err }

// NotifySink surfaces each item as one notification.
type NotifySink struct {
	Notifier notifier.Notifier
	Location *time.Location
}

func (s NotifySink) Deliver(ctx context.Context, _ string, items []DueItem) error {
	var failed []string
	var errs []error
	for _, it := range items {
		if err := s.Notifier.Notify(ctx, Format(it, s.Location)); err != nil {
			failed = append(failed, it.ActivityID)
			errs = append(errs, err)
		}
	}
	if len(failed) == 0 {
		return nil
	}
	return &PartialDelivery{Failed: failed, Err: errors.Join(errs...)}
}

// Format renders an item as a single notification line.
func Format(it DueItem, loc *time.Location) string {
	if loc == nil {
		loc = time.Local
	}
	label := map[Kind]string{KindCallback: "Callback", KindFollowUp: "Follow-up", KindInquiry: "Inquiry"}[it.Kind]
	s := fmt.Sprintf("%s: %s (%s", label, it.Company, it.Type)
	if it.Outcome != "" {
		s += ", " + string(it.Outcome)
	}
	return s + ") since " + it.At.In(loc).Format(constants.DateFormat+" "+constants.TimeFormat)
}

type Runner struct {
	scanner *Scanner
	tracker *Tracker
	sink    Sink
	agentID string
	owns    Owns
	loc     *time.Location
	now     func() time.Time

	rngMu sync.Mutex
	rng   *rand.Rand

	mu       sync.Mutex
	c        *cron.Cron
	ctx      context.Context
	entry    cron.EntryID
	interval time.Duration
	jitter   float64
}

type RunnerOption func(*Runner)

func WithInterval(d time.Duration) RunnerOption { return func(r *Runner) { r.interval = d } }

// WithJitter delays each tick by a random fraction (0..j) of the interval.
func WithJitter(j float64) RunnerOption { return func(r *Runner) { r.jitter = j } }

func WithOwnership(owns Owns) RunnerOption { return func(r *Runner) { r.owns = owns } }

func WithRunnerClock(now func() time.Time) RunnerOption { return func(r *Runner) { r.now = now } }

func WithRunnerLocation(loc *time.Location) RunnerOption { return func(r *Runner) { r.loc = loc } }

func NewRunner(s *Scanner, sink Sink, agentID string, opts ...RunnerOption) *Runner {
	r := &Runner{
		scanner:  s,
		tracker:  NewTracker(),
		sink:     sink,
		agentID:  agentID,
		loc:      s.loc,
		now:      time.Now,
		rng:      rand.New(rand.NewPCG(uint64(time.Now().UnixNano()), 0)),
		interval: constants.DefaultScanInterval,
		jitter:   constants.DefaultScanJitter,
	}
	for _, opt := range opts {
		opt(r)
	}
	return r
}

// Start scans once, then on every interval until ctx is cancelled.
func (r *Runner) Start(ctx context.Context) error {
	r.mu.Lock()
	if r.c != nil {
		r.mu.Unlock()
		return errors.New("runner already started")
	}
	r.ctx = ctx
	r.c = cron.New(cron.WithLocation(r.loc), cron.WithChain(cron.SkipIfStillRunning(cron.DiscardLogger)))
	if err := r.scheduleLocked(); err != nil {
		r.c = nil
		r.mu.Unlock()
		return err
	}
	r.c.Start()
	interval := r.interval
	r.mu.Unlock()

	logger.Info("due scanner started", "agent", r.agentID, "interval", interval, "jitter", r.jitter)
	if _, err := r.RunOnce(ctx); err != nil && ctx.Err() == nil {
		logger.Warn("due scan failed", "error", err)
	}

	<-ctx.Done()

	r.mu.Lock()
	c := r.c
	r.c = nil
	r.mu.Unlock()
	<-c.Stop().Done()
	logger.Info("due scanner stopped", "agent", r.agentID)
	return nil
}

// Apply changes the interval and jitter, rescheduling a running runner.
func (r *Runner) Apply(interval time.Duration, jitter float64) error {
	if interval < time.Second {
		return fmt.Errorf("scan interval %s is below one second", interval)
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	if interval == r.interval && jitter == r.jitter {
		return nil
	}
	r.interval, r.jitter = interval, jitter
	if r.c == nil {
		return nil
	}
	r.c.Remove(r.entry)
	if err := r.scheduleLocked(); err != nil {
		return err
	}
	logger.Info("due scanner rescheduled", "interval", interval, "jitter", jitter)
	return nil
}

func (r *Runner) scheduleLocked() error {
	id, err := r.c.AddFunc("@every "+r.interval.String(), r.tick)
	if err != nil {
		return fmt.Errorf("schedule due scan: %w", err)
	}
	r.entry = id
	return nil
}

func (r *Runner) tick() {
	r.mu.Lock()
	ctx, interval, jitter := r.ctx, r.interval, r.jitter
	r.mu.Unlock()

	if d := r.delay(interval, jitter); d > 0 {
		t := time.NewTimer(d)
		select {
		case <-ctx.Done():
			t.Stop()
			return
		case <-t.C:
		}
	}
	if _, err := r.RunOnce(ctx); err != nil && ctx.Err() == nil {
		logger.Warn("due scan failed", "error", err)
	}
}

func (r *Runner) delay(interval time.Duration, jitter float64) time.Duration {
	span := int64(float64(interval) * jitter)
	if span <= 0 {
		return 0
	}
	r.rngMu.Lock()
	defer r.rngMu.Unlock()
	return time.Duration(r.rng.Int64N(span))
}

// RunOnce scans, filters out items already surfaced and hands the rest to
// the sink. It returns how many items were delivered.
func (r *Runner) RunOnce(ctx context.Context) (int, error) {
	items, err := r.scanner.ScanDue(ctx, Request{AgentID: r.agentID, Now: r.now(), Owns: r.owns})
	if err != nil {
		return 0, err
	}
	fresh := r.tracker.Fresh(items)
	if len(fresh) == 0 {
		return 0, nil
	}

	err = r.sink.Deliver(ctx, r.agentID, fresh)
	failed := map[string]bool{}
	if err != nil {
		metrics.ScanErrors.WithLabelValues("deliver").Inc()
		var pd *PartialDelivery
		if !errors.As(err, &pd) {
			for _, it := range fresh {
				r.tracker.Forget(it.ActivityID)
			}
			return 0, err
		}
		for _, id := range pd.Failed {
			failed[id] = true
			r.tracker.Forget(id)
		}
	}

	delivered := 0
	for _, it := range fresh {
		if failed[it.ActivityID] {
			continue
		}
		delivered++
		metrics.ItemsSurfaced.WithLabelValues(string(it.Kind)).Inc()
	}
	return delivered, err
}
