// Package scanner finds the activities an agent should act on now and
// surfaces them on a timer.
package scanner

import (
	"context"
	"sort"
	"time"

	"github.com/julianstephens/fieldcall/internal/logger"
	"github.com/julianstephens/fieldcall/internal/metrics"
	"github.com/julianstephens/fieldcall/internal/models"
	"github.com/julianstephens/fieldcall/internal/storage"
	"github.com/julianstephens/fieldcall/internal/utils"
)

type Kind string

const (
	KindCallback Kind = "callback"
	KindFollowUp Kind = "follow_up"
	KindInquiry  Kind = "inquiry"
)

var kinds = []Kind{KindCallback, KindFollowUp, KindInquiry}

// DueItem is one activity surfaced by a scan. At is the timestamp that made
// it due and drives ordering and deduplication.
type DueItem struct {
	ActivityID string
	AgentID    string
	Kind       Kind
	Company    string
	Type       models.ActivityType
	Status     models.Status
	Outcome    models.Outcome
	At         time.Time
}

type Source interface {
	ListActivities(ctx context.Context, filter storage.ActivityFilter) ([]models.Activity, error)
}

// Owns reports whether the scanning agent may see activities bound to owner.
type Owns func(owner string) bool

type Request struct {
	AgentID string
	Now     time.Time
	// Owns widens visibility beyond the agent's own activities. Nil means the
	// agent only sees its own.
	Owns Owns
}

type Scanner struct {
	source Source
	loc    *time.Location
}

func New(source Source, loc *time.Location) *Scanner {
	if loc == nil {
		loc = time.Local
	}
	return &Scanner{source: source, loc: loc}
}

// ScanDue returns the due items for req ordered by At descending, ties by
// activity id. It performs no writes.
func (s *Scanner) ScanDue(ctx context.Context, req Request) ([]DueItem, error) {
	start := time.Now()
	defer func() { metrics.ScanDurationSeconds.Observe(time.Since(start).Seconds()) }()

	filter := storage.ActivityFilter{OpenOnly: true}
	owns := req.Owns
	if owns == nil {
		filter.AgentIDs = []string{req.AgentID}
		owns = func(owner string) bool { return owner == req.AgentID }
	}
	activities, err := s.source.ListActivities(ctx, filter)
	if err != nil {
		metrics.ScanErrors.WithLabelValues("list").Inc()
		return nil, err
	}

	now := req.Now
	today := utils.DateKey(now.In(s.loc))
	var items []DueItem
	for i, a := range activities {
		if i%64 == 0 {
			if err := ctx.Err(); err != nil {
				return nil, err
			}
		}
		if !owns(a.AgentID) {
			continue
		}
		if item, ok := s.classify(a, now, today); ok {
			items = append(items, item)
		}
	}

	sort.SliceStable(items, func(i, j int) bool {
		if !items[i].At.Equal(items[j].At) {
			return items[i].At.After(items[j].At)
		}
		return items[i].ActivityID < items[j].ActivityID
	})

	record(items)
	logger.Debug("due scan complete", "agent", req.AgentID, "open", len(activities), "due", len(items))
	return items, nil
}

// classify applies callback > follow-up > inquiry precedence.
func (s *Scanner) classify(a models.Activity, now time.Time, today string) (DueItem, bool) {
	if !a.IsOpen() {
		return DueItem{}, false
	}
	item := DueItem{
		ActivityID: a.ID,
		AgentID:    a.AgentID,
		Company:    a.Company.Name,
		Type:       a.Type,
		Status:     a.Status,
		Outcome:    a.Outcome,
	}

	if a.Callback != nil && utils.DateKey(a.Callback.In(s.loc)) <= today {
		item.Kind, item.At = KindCallback, *a.Callback
		return item, true
	}

	// Past its validity ceiling the activity no longer surfaces at all.
	if a.DueExpiresAt != nil && now.After(*a.DueExpiresAt) {
		return DueItem{}, false
	}
	if a.DueAt != nil && !now.Before(*a.DueAt) {
		item.Kind, item.At = KindFollowUp, *a.DueAt
		return item, true
	}

	if a.Type == models.ActivityInboundInquiry && a.Status == models.StatusOnProgress &&
		utils.DateKey(a.CreatedAt.In(s.loc)) <= today {
		item.Kind, item.At = KindInquiry, a.CreatedAt
		return item, true
	}
	return DueItem{}, false
}

func record(items []DueItem) {
	metrics.ResetScanGauges()
	counts := map[Kind]int{}
	for _, it := range items {
		counts[it.Kind]++
	}
	for _, k := range kinds {
		metrics.DueItems.WithLabelValues(string(k)).Set(float64(counts[k]))
	}
}
