// Package sqldb holds the SQL shared by the sqlite and postgres providers.
// Statements are written with ? placeholders and rebound per dialect.
// Timestamps are stored as fixed-width UTC text (timeLayout) so they sort
// lexically, list and detail fields as JSON text, so both schemas stay
// identical.
package sqldb

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"strconv"
	"strings"
	"time"

	apperrors "github.com/julianstephens/fieldcall/internal/errors"
	"github.com/julianstephens/fieldcall/internal/models"
	"github.com/julianstephens/fieldcall/internal/storage"
)

type Dialect int

const (
	SQLite Dialect = iota
	Postgres
)

// Queries implements the data methods of storage.Provider over a *sql.DB.
// The owning store supplies Init, Load, Close and GetConfigPath.
type Queries struct {
	DB      *sql.DB
	Dialect Dialect
}

func (q *Queries) rebind(query string) string {
	if q.Dialect != Postgres {
		return query
	}
	var b strings.Builder
	n := 0
	for _, r := range query {
		if r == '?' {
			n++
			b.WriteString("$" + strconv.Itoa(n))
			continue
		}
		b.WriteRune(r)
	}
	return b.String()
}

func (q *Queries) exec(ctx context.Context, query string, args ...any) (sql.Result, error) {
	if q.DB == nil {
		return nil, errors.New("database not loaded")
	}
	return q.DB.ExecContext(ctx, q.rebind(query), args...)
}

func (q *Queries) query(ctx context.Context, query string, args ...any) (*sql.Rows, error) {
	if q.DB == nil {
		return nil, errors.New("database not loaded")
	}
	return q.DB.QueryContext(ctx, q.rebind(query), args...)
}

// Companies

const companyColumns = `id, name, tier, agent_id, last_contacted, contact_person, email, phone, address`

func (q *Queries) SaveCompany(ctx context.Context, c models.Company) error {
	if err := c.Validate(); err != nil {
		return apperrors.Invalid("company", "%v", err)
	}
	_, err := q.exec(ctx, `
		INSERT INTO companies (`+companyColumns+`)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT (id) DO UPDATE SET
			name = excluded.name,
			tier = excluded.tier,
			agent_id = excluded.agent_id,
			last_contacted = excluded.last_contacted,
			contact_person = excluded.contact_person,
			email = excluded.email,
			phone = excluded.phone,
			address = excluded.address`,
		c.ID, c.Name, string(c.Tier), c.AgentID, formatTimePtr(c.LastContacted),
		c.ContactPerson, c.Email, c.Phone, c.Address)
	if err != nil {
		return fmt.Errorf("failed to save company %s: %w", c.ID, err)
	}
	return nil
}

func (q *Queries) GetCompany(ctx context.Context, id string) (models.Company, error) {
	rows, err := q.query(ctx, `SELECT `+companyColumns+` FROM companies WHERE id = ?`, id)
	if err != nil {
		return models.Company{}, fmt.Errorf("failed to query company: %w", err)
	}
	companies, err := scanCompanies(rows)
	if err != nil {
		return models.Company{}, err
	}
	if len(companies) == 0 {
		return models.Company{}, apperrors.NotFound("company", id)
	}
	return companies[0], nil
}

func (q *Queries) ListCompanies(ctx context.Context, agentID string) ([]models.Company, error) {
	var (
		rows *sql.Rows
		err  error
	)
	if agentID == "" {
		rows, err = q.query(ctx, `SELECT `+companyColumns+` FROM companies ORDER BY id`)
	} else {
		rows, err = q.query(ctx, `SELECT `+companyColumns+` FROM companies WHERE agent_id = ? ORDER BY id`, agentID)
	}
	if err != nil {
		return nil, fmt.Errorf("failed to list companies: %w", err)
	}
	return scanCompanies(rows)
}

func (q *Queries) MarkContacted(ctx context.Context, companyID string, at time.Time) error {
	res, err := q.exec(ctx, `UPDATE companies SET last_contacted = ? WHERE id = ?`, formatTime(at), companyID)
	if err != nil {
		return fmt.Errorf("failed to mark company contacted: %w", err)
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return apperrors.NotFound("company", companyID)
	}
	return nil
}

func scanCompanies(rows *sql.Rows) ([]models.Company, error) {
	defer rows.Close()
	var out []models.Company
	for rows.Next() {
		var (
			c             models.Company
			tier          string
			lastContacted sql.NullString
		)
		if err := rows.Scan(&c.ID, &c.Name, &tier, &c.AgentID, &lastContacted,
			&c.ContactPerson, &c.Email, &c.Phone, &c.Address); err != nil {
			return nil, fmt.Errorf("failed to scan company: %w", err)
		}
		c.Tier = models.Tier(tier)
		t, err := parseNullTime(lastContacted)
		if err != nil {
			return nil, err
		}
		c.LastContacted = t
		out = append(out, c)
	}
	return out, rows.Err()
}

// Quotas

const quotaColumns = `agent_id, date, target, assigned, remaining, consumed, cancelled, blocked, version, created_at, updated_at`

func (q *Queries) GetQuota(ctx context.Context, agentID, date string) (models.DailyQuota, error) {
	rows, err := q.query(ctx, `SELECT `+quotaColumns+` FROM daily_quotas WHERE agent_id = ? AND date = ?`, agentID, date)
	if err != nil {
		return models.DailyQuota{}, fmt.Errorf("failed to query quota: %w", err)
	}
	defer rows.Close()
	if !rows.Next() {
		if err := rows.Err(); err != nil {
			return models.DailyQuota{}, err
		}
		return models.DailyQuota{}, apperrors.NotFound("quota", models.QuotaKey(agentID, date))
	}

	var (
		quota                         models.DailyQuota
		assigned, consumed, cancelled string
		blocked, createdAt, updatedAt string
	)
	if err := rows.Scan(&quota.AgentID, &quota.Date, &quota.Target, &assigned, &quota.Remaining,
		&consumed, &cancelled, &blocked, &quota.Version, &createdAt, &updatedAt); err != nil {
		return models.DailyQuota{}, fmt.Errorf("failed to scan quota: %w", err)
	}
	quota.Blocked = models.QuotaBlock(blocked)
	for _, f := range []struct {
		raw string
		dst *[]string
	}{{assigned, &quota.Assigned}, {consumed, &quota.Consumed}, {cancelled, &quota.Cancelled}} {
		if err := json.Unmarshal([]byte(f.raw), f.dst); err != nil {
			return models.DailyQuota{}, fmt.Errorf("failed to decode quota lists: %w", err)
		}
	}
	if quota.CreatedAt, err = parseTime(createdAt); err != nil {
		return models.DailyQuota{}, err
	}
	if quota.UpdatedAt, err = parseTime(updatedAt); err != nil {
		return models.DailyQuota{}, err
	}
	return quota, nil
}

func (q *Queries) CreateQuota(ctx context.Context, quota models.DailyQuota) error {
	assigned, consumed, cancelled, err := encodeQuotaLists(quota)
	if err != nil {
		return err
	}
	res, err := q.exec(ctx, `
		INSERT INTO daily_quotas (`+quotaColumns+`)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT (agent_id, date) DO NOTHING`,
		quota.AgentID, quota.Date, quota.Target, assigned, quota.Remaining, consumed, cancelled,
		string(quota.Blocked), quota.Version, formatTime(quota.CreatedAt), formatTime(quota.UpdatedAt))
	if err != nil {
		return fmt.Errorf("failed to create quota: %w", err)
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return apperrors.Conflict("quota", quota.Key())
	}
	return nil
}

func (q *Queries) UpdateQuota(ctx context.Context, quota models.DailyQuota) (models.DailyQuota, error) {
	assigned, consumed, cancelled, err := encodeQuotaLists(quota)
	if err != nil {
		return models.DailyQuota{}, err
	}
	res, err := q.exec(ctx, `
		UPDATE daily_quotas SET
			target = ?, assigned = ?, remaining = ?, consumed = ?, cancelled = ?,
			blocked = ?, version = version + 1, updated_at = ?
		WHERE agent_id = ? AND date = ? AND version = ?`,
		quota.Target, assigned, quota.Remaining, consumed, cancelled,
		string(quota.Blocked), formatTime(quota.UpdatedAt),
		quota.AgentID, quota.Date, quota.Version)
	if err != nil {
		return models.DailyQuota{}, fmt.Errorf("failed to update quota: %w", err)
	}
	if n, _ := res.RowsAffected(); n == 0 {
		if _, getErr := q.GetQuota(ctx, quota.AgentID, quota.Date); getErr != nil {
			return models.DailyQuota{}, getErr
		}
		return models.DailyQuota{}, apperrors.Conflict("quota", quota.Key())
	}
	out := quota.Clone()
	out.Version++
	return out, nil
}

func encodeQuotaLists(quota models.DailyQuota) (string, string, string, error) {
	var out [3]string
	for i, list := range [][]string{quota.Assigned, quota.Consumed, quota.Cancelled} {
		if list == nil {
			list = []string{}
		}
		b, err := json.Marshal(list)
		if err != nil {
			return "", "", "", fmt.Errorf("failed to encode quota lists: %w", err)
		}
		out[i] = string(b)
	}
	return out[0], out[1], out[2], nil
}

// Skip periods

const skipColumns = `id, agent_id, start_date, end_date, reason, created_at, cancelled_at`

func (q *Queries) SaveSkipPeriod(ctx context.Context, p models.SkipPeriod) error {
	_, err := q.exec(ctx, `
		INSERT INTO skip_periods (`+skipColumns+`)
		VALUES (?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT (id) DO UPDATE SET
			start_date = excluded.start_date,
			end_date = excluded.end_date,
			reason = excluded.reason,
			cancelled_at = excluded.cancelled_at`,
		p.ID, p.AgentID, p.StartDate, p.EndDate, p.Reason, formatTime(p.CreatedAt), formatTimePtr(p.CancelledAt))
	if err != nil {
		return fmt.Errorf("failed to save skip period: %w", err)
	}
	return nil
}

func (q *Queries) GetSkipPeriod(ctx context.Context, id string) (models.SkipPeriod, error) {
	rows, err := q.query(ctx, `SELECT `+skipColumns+` FROM skip_periods WHERE id = ?`, id)
	if err != nil {
		return models.SkipPeriod{}, fmt.Errorf("failed to query skip period: %w", err)
	}
	periods, err := scanSkipPeriods(rows)
	if err != nil {
		return models.SkipPeriod{}, err
	}
	if len(periods) == 0 {
		return models.SkipPeriod{}, apperrors.NotFound("skip period", id)
	}
	return periods[0], nil
}

func (q *Queries) ListSkipPeriods(ctx context.Context, agentID string) ([]models.SkipPeriod, error) {
	rows, err := q.query(ctx, `SELECT `+skipColumns+` FROM skip_periods WHERE agent_id = ? ORDER BY start_date, id`, agentID)
	if err != nil {
		return nil, fmt.Errorf("failed to list skip periods: %w", err)
	}
	return scanSkipPeriods(rows)
}

func scanSkipPeriods(rows *sql.Rows) ([]models.SkipPeriod, error) {
	defer rows.Close()
	var out []models.SkipPeriod
	for rows.Next() {
		var (
			p           models.SkipPeriod
			createdAt   string
			cancelledAt sql.NullString
		)
		if err := rows.Scan(&p.ID, &p.AgentID, &p.StartDate, &p.EndDate, &p.Reason, &createdAt, &cancelledAt); err != nil {
			return nil, fmt.Errorf("failed to scan skip period: %w", err)
		}
		var err error
		if p.CreatedAt, err = parseTime(createdAt); err != nil {
			return nil, err
		}
		if p.CancelledAt, err = parseNullTime(cancelledAt); err != nil {
			return nil, err
		}
		out = append(out, p)
	}
	return out, rows.Err()
}

// Activities

const activityColumns = `id, agent_id, company_id, company, type, status, call_status, outcome,
	followup_date, callback, quotation, sales_order, delivery, remarks,
	created_at, updated_at, due_at, due_expires_at, survey_sent_at, version`

func (q *Queries) AddActivity(ctx context.Context, a models.Activity) error {
	args, err := activityArgs(a)
	if err != nil {
		return err
	}
	res, err := q.exec(ctx, `
		INSERT INTO activities (`+activityColumns+`)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT (id) DO NOTHING`, args...)
	if err != nil {
		return fmt.Errorf("failed to add activity: %w", err)
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return apperrors.Conflict("activity", a.ID)
	}
	return nil
}

func (q *Queries) GetActivity(ctx context.Context, id string) (models.Activity, error) {
	rows, err := q.query(ctx, `SELECT `+activityColumns+` FROM activities WHERE id = ?`, id)
	if err != nil {
		return models.Activity{}, fmt.Errorf("failed to query activity: %w", err)
	}
	activities, err := scanActivities(rows)
	if err != nil {
		return models.Activity{}, err
	}
	if len(activities) == 0 {
		return models.Activity{}, apperrors.NotFound("activity", id)
	}
	return activities[0], nil
}

func (q *Queries) UpdateActivity(ctx context.Context, a models.Activity) (models.Activity, error) {
	args, err := activityArgs(a)
	if err != nil {
		return models.Activity{}, err
	}
	// args[2:19] covers company_id through survey_sent_at.
	set := append([]any{}, args[2:19]...)
	set = append(set, a.ID, a.Version)
	res, err := q.exec(ctx, `
		UPDATE activities SET
			company_id = ?, company = ?, type = ?, status = ?, call_status = ?, outcome = ?,
			followup_date = ?, callback = ?, quotation = ?, sales_order = ?, delivery = ?, remarks = ?,
			created_at = ?, updated_at = ?, due_at = ?, due_expires_at = ?, survey_sent_at = ?,
			version = version + 1
		WHERE id = ? AND version = ?`, set...)
	if err != nil {
		return models.Activity{}, fmt.Errorf("failed to update activity: %w", err)
	}
	if n, _ := res.RowsAffected(); n == 0 {
		if _, getErr := q.GetActivity(ctx, a.ID); getErr != nil {
			return models.Activity{}, getErr
		}
		return models.Activity{}, apperrors.Conflict("activity", a.ID)
	}
	out := a.Clone()
	out.Version++
	return out, nil
}

func (q *Queries) DeleteActivity(ctx context.Context, id string) error {
	res, err := q.exec(ctx, `DELETE FROM activities WHERE id = ?`, id)
	if err != nil {
		return fmt.Errorf("failed to delete activity: %w", err)
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return apperrors.NotFound("activity", id)
	}
	return nil
}

func (q *Queries) ListActivities(ctx context.Context, filter storage.ActivityFilter) ([]models.Activity, error) {
	var (
		where []string
		args  []any
	)
	if len(filter.AgentIDs) > 0 {
		marks := strings.TrimSuffix(strings.Repeat("?, ", len(filter.AgentIDs)), ", ")
		where = append(where, "agent_id IN ("+marks+")")
		for _, id := range filter.AgentIDs {
			args = append(args, id)
		}
	}
	if filter.OpenOnly {
		where = append(where, "status NOT IN (?, ?, ?, ?)")
		args = append(args, string(models.StatusDelivered), string(models.StatusCollected),
			string(models.StatusCancelled), string(models.StatusLoss))
	}
	stmt := `SELECT ` + activityColumns + ` FROM activities`
	if len(where) > 0 {
		stmt += " WHERE " + strings.Join(where, " AND ")
	}
	stmt += " ORDER BY created_at, id"

	rows, err := q.query(ctx, stmt, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to list activities: %w", err)
	}
	return scanActivities(rows)
}

func activityArgs(a models.Activity) ([]any, error) {
	company, err := json.Marshal(a.Company)
	if err != nil {
		return nil, fmt.Errorf("failed to encode company snapshot: %w", err)
	}
	quotation, err := encodeOptional(a.Quotation)
	if err != nil {
		return nil, err
	}
	salesOrder, err := encodeOptional(a.SalesOrder)
	if err != nil {
		return nil, err
	}
	delivery, err := encodeOptional(a.Delivery)
	if err != nil {
		return nil, err
	}
	return []any{
		a.ID, a.AgentID, a.CompanyID, string(company), string(a.Type), string(a.Status),
		string(a.CallStatus), string(a.Outcome),
		formatTimePtr(a.FollowUpDate), formatTimePtr(a.Callback),
		quotation, salesOrder, delivery, a.Remarks,
		formatTime(a.CreatedAt), formatTime(a.UpdatedAt),
		formatTimePtr(a.DueAt), formatTimePtr(a.DueExpiresAt), formatTimePtr(a.SurveySentAt),
		a.Version,
	}, nil
}

func scanActivities(rows *sql.Rows) ([]models.Activity, error) {
	defer rows.Close()
	var out []models.Activity
	for rows.Next() {
		var (
			a                                         models.Activity
			company, typ, status, callStatus, outcome string
			followUp, callback                        sql.NullString
			quotation, salesOrder, delivery           sql.NullString
			createdAt, updatedAt                      string
			dueAt, dueExpiresAt, surveySentAt         sql.NullString
		)
		if err := rows.Scan(&a.ID, &a.AgentID, &a.CompanyID, &company, &typ, &status, &callStatus, &outcome,
			&followUp, &callback, &quotation, &salesOrder, &delivery, &a.Remarks,
			&createdAt, &updatedAt, &dueAt, &dueExpiresAt, &surveySentAt, &a.Version); err != nil {
			return nil, fmt.Errorf("failed to scan activity: %w", err)
		}
		a.Type = models.ActivityType(typ)
		a.Status = models.Status(status)
		a.CallStatus = models.CallStatus(callStatus)
		a.Outcome = models.Outcome(outcome)

		if err := json.Unmarshal([]byte(company), &a.Company); err != nil {
			return nil, fmt.Errorf("failed to decode company snapshot: %w", err)
		}
		if err := decodeOptional(quotation, &a.Quotation); err != nil {
			return nil, err
		}
		if err := decodeOptional(salesOrder, &a.SalesOrder); err != nil {
			return nil, err
		}
		if err := decodeOptional(delivery, &a.Delivery); err != nil {
			return nil, err
		}

		var err error
		if a.CreatedAt, err = parseTime(createdAt); err != nil {
			return nil, err
		}
		if a.UpdatedAt, err = parseTime(updatedAt); err != nil {
			return nil, err
		}
		for _, f := range []struct {
			raw sql.NullString
			dst **time.Time
		}{
			{followUp, &a.FollowUpDate}, {callback, &a.Callback}, {dueAt, &a.DueAt},
			{dueExpiresAt, &a.DueExpiresAt}, {surveySentAt, &a.SurveySentAt},
		} {
			if *f.dst, err = parseNullTime(f.raw); err != nil {
				return nil, err
			}
		}
		out = append(out, a)
	}
	return out, rows.Err()
}

func encodeOptional[T any](v *T) (sql.NullString, error) {
	if v == nil {
		return sql.NullString{}, nil
	}
	b, err := json.Marshal(v)
	if err != nil {
		return sql.NullString{}, fmt.Errorf("failed to encode activity details: %w", err)
	}
	return sql.NullString{String: string(b), Valid: true}, nil
}

func decodeOptional[T any](raw sql.NullString, dst **T) error {
	if !raw.Valid || raw.String == "" {
		*dst = nil
		return nil
	}
	v := new(T)
	if err := json.Unmarshal([]byte(raw.String), v); err != nil {
		return fmt.Errorf("failed to decode activity details: %w", err)
	}
	*dst = v
	return nil
}

// timeLayout keeps all nine fractional digits; RFC3339Nano trims trailing
// zeros and breaks ORDER BY within a second.
const timeLayout = "2006-01-02T15:04:05.000000000Z07:00"

func formatTime(t time.Time) string {
	return t.UTC().Format(timeLayout)
}

func formatTimePtr(t *time.Time) sql.NullString {
	if t == nil {
		return sql.NullString{}
	}
	return sql.NullString{String: formatTime(*t), Valid: true}
}

func parseTime(s string) (time.Time, error) {
	t, err := time.Parse(time.RFC3339Nano, s)
	if err != nil {
		return time.Time{}, fmt.Errorf("invalid stored timestamp %q: %w", s, err)
	}
	return t, nil
}

func parseNullTime(s sql.NullString) (*time.Time, error) {
	if !s.Valid || s.String == "" {
		return nil, nil
	}
	t, err := parseTime(s.String)
	if err != nil {
		return nil, err
	}
	return &t, nil
}
