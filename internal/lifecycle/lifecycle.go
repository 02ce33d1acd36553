// Package lifecycle moves activities through their statuses, enforcing the
// fields each activity type and destination status require.
package lifecycle

import (
	"context"
	"errors"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/julianstephens/fieldcall/internal/duetimer"
	apperrors "github.com/julianstephens/fieldcall/internal/errors"
	"github.com/julianstephens/fieldcall/internal/keylock"
	"github.com/julianstephens/fieldcall/internal/logger"
	"github.com/julianstephens/fieldcall/internal/metrics"
	"github.com/julianstephens/fieldcall/internal/models"
	"github.com/julianstephens/fieldcall/internal/storage"
)

type Store interface {
	AddActivity(ctx context.Context, a models.Activity) error
	GetActivity(ctx context.Context, id string) (models.Activity, error)
	UpdateActivity(ctx context.Context, a models.Activity) (models.Activity, error)
	DeleteActivity(ctx context.Context, id string) error
	ListActivities(ctx context.Context, filter storage.ActivityFilter) ([]models.Activity, error)
}

// SurveyDispatcher sends the post-delivery survey. A Delivered transition is
// only committed after it succeeds.
type SurveyDispatcher interface {
	SendSurvey(ctx context.Context, email string) error
}

type Manager struct {
	store  Store
	survey SurveyDispatcher
	now    func() time.Time
	locks  *keylock.Locker
}

type Option func(*Manager)

func WithClock(now func() time.Time) Option { return func(m *Manager) { m.now = now } }

func WithLocker(l *keylock.Locker) Option { return func(m *Manager) { m.locks = l } }

func New(store Store, survey SurveyDispatcher, opts ...Option) *Manager {
	m := &Manager{
		store:  store,
		survey: survey,
		now:    time.Now,
		locks:  keylock.New(),
	}
	for _, opt := range opts {
		opt(m)
	}
	return m
}

func lockKey(id string) string { return "activity/" + id }

// NewActivity is the intake for CreateActivity.
type NewActivity struct {
	AgentID   string
	CompanyID string
	Company   models.CompanySnapshot
	Type      models.ActivityType
	Callback  *time.Time
	Remarks   string
}

// Create stores a new activity in On Progress.
func (m *Manager) Create(ctx context.Context, in NewActivity) (models.Activity, error) {
	if err := validateNew(in); err != nil {
		rejected(err)
		return models.Activity{}, err
	}
	now := m.now()
	a := models.Activity{
		ID:        uuid.NewString(),
		AgentID:   in.AgentID,
		CompanyID: in.CompanyID,
		Company:   in.Company,
		Type:      in.Type,
		Status:    models.StatusOnProgress,
		Callback:  in.Callback,
		Remarks:   strings.TrimSpace(in.Remarks),
		CreatedAt: now,
		UpdatedAt: now,
	}
	if err := m.store.AddActivity(ctx, a); err != nil {
		return models.Activity{}, err
	}
	metrics.ActivityTransitions.WithLabelValues(string(a.Status)).Inc()
	logger.Info("activity created", "id", a.ID, "agent", a.AgentID, "type", a.Type, "company", a.Company.Name)
	return a, nil
}

func validateNew(in NewActivity) error {
	if strings.TrimSpace(in.AgentID) == "" {
		return apperrors.Missing("agent")
	}
	if in.Type == "" {
		return apperrors.Missing("type")
	}
	if _, err := models.ParseActivityType(string(in.Type)); err != nil {
		return apperrors.Invalid("type", "%v", err)
	}
	if strings.TrimSpace(in.Company.Name) == "" {
		return apperrors.Missing("company")
	}
	return nil
}

// Update is one status/outcome submission. Zero-valued fields keep what the
// activity already carries.
type Update struct {
	ActivityID string
	// Version, when set, must equal the stored version.
	Version *int
	// Type, when set, promotes the activity to a later-stage type, e.g. an
	// outbound call that turned into a quotation.
	Type         models.ActivityType
	Status       models.Status
	CallStatus   models.CallStatus
	Outcome      models.Outcome
	FollowUpDate *time.Time
	Quotation    *models.QuotationDetails
	SalesOrder   *models.SalesOrderDetails
	Delivery     *models.DeliveryDetails
	Remarks      string
}

// UpdateStatus validates and commits u. On any error nothing is persisted.
func (m *Manager) UpdateStatus(ctx context.Context, u Update) (models.Activity, error) {
	if u.ActivityID == "" {
		return models.Activity{}, apperrors.Missing("activity")
	}

	unlock := m.locks.Lock(lockKey(u.ActivityID))
	defer unlock()

	cur, err := m.store.GetActivity(ctx, u.ActivityID)
	if err != nil {
		return models.Activity{}, err
	}
	if u.Version != nil && *u.Version != cur.Version {
		return models.Activity{}, apperrors.Conflict("activity", cur.ID)
	}

	next := merge(cur, canonical(u))
	dest, err := Validate(cur, next, u.Status)
	if err != nil {
		rejected(err)
		return models.Activity{}, err
	}
	next.Status = dest

	now := m.now()
	if dest == models.StatusDelivered && cur.Status != models.StatusDelivered {
		if err := m.sendSurvey(ctx, next); err != nil {
			return models.Activity{}, err
		}
		next.SurveySentAt = &now
	}

	next.UpdatedAt = now
	if dest.IsTerminal() {
		next.DueAt, next.DueExpiresAt = nil, nil
	} else {
		next.DueAt = duetimer.ComputeDue(next.Type, next.Outcome, next.CallStatus, now)
		next.DueExpiresAt = nil
		if next.DueAt != nil {
			next.DueExpiresAt = duetimer.Expiry(next.Outcome, now)
		}
	}

	saved, err := m.store.UpdateActivity(ctx, next)
	if err != nil {
		return models.Activity{}, err
	}
	metrics.ActivityTransitions.WithLabelValues(string(dest)).Inc()
	logger.Info("activity updated", "id", saved.ID, "type", saved.Type, "from", cur.Status, "to", dest, "outcome", saved.Outcome)
	return saved, nil
}

func (m *Manager) sendSurvey(ctx context.Context, a models.Activity) error {
	if m.survey == nil {
		return apperrors.Dependency("survey dispatcher", errNoDispatcher)
	}
	if err := m.survey.SendSurvey(ctx, a.Company.Email); err != nil {
		metrics.SurveyDispatches.WithLabelValues("failed").Inc()
		logger.Warn("survey dispatch failed, delivery not committed", "id", a.ID, "error", err)
		return apperrors.Dependency("survey dispatcher", err)
	}
	metrics.SurveyDispatches.WithLabelValues("sent").Inc()
	return nil
}

// canonical fixes the case of enum names it recognizes. Unknown names pass
// through for Validate to reject.
func canonical(u Update) Update {
	if t, err := models.ParseActivityType(string(u.Type)); u.Type != "" && err == nil {
		u.Type = t
	}
	if cs, err := models.ParseCallStatus(string(u.CallStatus)); u.CallStatus != "" && err == nil {
		u.CallStatus = cs
	}
	if o, err := models.ParseOutcome(string(u.Outcome)); u.Outcome != "" && err == nil {
		u.Outcome = o
	}
	return u
}

func merge(cur models.Activity, u Update) models.Activity {
	next := cur.Clone()
	if u.Type != "" {
		next.Type = u.Type
	}
	if u.CallStatus != "" {
		next.CallStatus = u.CallStatus
	}
	if u.Outcome != "" {
		next.Outcome = u.Outcome
	}
	if u.FollowUpDate != nil {
		t := *u.FollowUpDate
		next.FollowUpDate = &t
	}
	if u.Quotation != nil {
		q := *u.Quotation
		next.Quotation = &q
	}
	if u.SalesOrder != nil {
		so := *u.SalesOrder
		next.SalesOrder = &so
	}
	if u.Delivery != nil {
		d := *u.Delivery
		next.Delivery = &d
	}
	if r := strings.TrimSpace(u.Remarks); r != "" {
		next.Remarks = r
	}
	return next
}

// SetCallback sets or, with a nil at, clears the callback timestamp. The
// follow-up timer is left untouched.
func (m *Manager) SetCallback(ctx context.Context, id string, at *time.Time, version *int) (models.Activity, error) {
	if id == "" {
		return models.Activity{}, apperrors.Missing("activity")
	}
	unlock := m.locks.Lock(lockKey(id))
	defer unlock()

	a, err := m.store.GetActivity(ctx, id)
	if err != nil {
		return models.Activity{}, err
	}
	if version != nil && *version != a.Version {
		return models.Activity{}, apperrors.Conflict("activity", id)
	}
	if a.Status.IsClosed() {
		return models.Activity{}, apperrors.Invalid("status", "activity is %s and accepts no further updates", a.Status)
	}
	if at != nil {
		t := *at
		a.Callback = &t
	} else {
		a.Callback = nil
	}
	a.UpdatedAt = m.now()
	saved, err := m.store.UpdateActivity(ctx, a)
	if err != nil {
		return models.Activity{}, err
	}
	logger.Debug("activity callback set", "id", id, "callback", saved.Callback)
	return saved, nil
}

func (m *Manager) Remove(ctx context.Context, id string) error {
	if id == "" {
		return apperrors.Missing("activity")
	}
	unlock := m.locks.Lock(lockKey(id))
	defer unlock()

	if err := m.store.DeleteActivity(ctx, id); err != nil {
		return err
	}
	logger.Info("activity removed", "id", id)
	return nil
}

func (m *Manager) Get(ctx context.Context, id string) (models.Activity, error) {
	return m.store.GetActivity(ctx, id)
}

func (m *Manager) List(ctx context.Context, filter storage.ActivityFilter) ([]models.Activity, error) {
	return m.store.ListActivities(ctx, filter)
}

func rejected(err error) {
	var ve *apperrors.ValidationError
	if errors.As(err, &ve) {
		metrics.ValidationRejections.WithLabelValues(ve.Field).Inc()
		logger.Debug("activity submission rejected", "field", ve.Field, "reason", ve.Reason)
	}
}
