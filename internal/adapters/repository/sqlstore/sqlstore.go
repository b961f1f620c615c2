// Package sqlstore persists profiles, events, evaluations and the audit trail
// through database/sql. The same queries run on SQLite (modernc.org/sqlite)
// and PostgreSQL (lib/pq); placeholders are rebound per dialect.
package sqlstore

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/google/uuid"
	_ "github.com/lib/pq"  // postgres driver
	_ "modernc.org/sqlite" // sqlite driver

	"github.com/okian/stark/internal/adapters/repository"
	"github.com/okian/stark/internal/domain/audit"
	"github.com/okian/stark/internal/domain/model"
	"github.com/okian/stark/pkg/errs"
	"github.com/okian/stark/pkg/metrics"
)

// Supported drivers.
const (
	DriverSQLite   = "sqlite"
	DriverPostgres = "postgres"
)

// ErrUnsupportedDriver is returned by Open for unknown drivers.
var ErrUnsupportedDriver = errors.New("unsupported database driver")

var _ repository.Store = (*Store)(nil)

// Store is a database/sql backed store.
type Store struct {
	db       *sql.DB
	postgres bool
	now      func() time.Time
}

// Open connects to dsn with driver and verifies the connection.
func Open(ctx context.Context, driver, dsn string) (*Store, error) {
	switch driver {
	case DriverSQLite, DriverPostgres:
	default:
		return nil, fmt.Errorf("%w: %q", ErrUnsupportedDriver, driver)
	}

	db, err := sql.Open(driver, dsn)
	if err != nil {
		return nil, fmt.Errorf("database connection failed: %w", err)
	}
	if driver == DriverSQLite {
		// one writer at a time; avoids SQLITE_BUSY under concurrent saves
		db.SetMaxOpenConns(1)
	}

	s := New(db, driver)
	if err := s.Ping(ctx); err != nil {
		_ = db.Close()
		return nil, err
	}
	return s, nil
}

// New wraps an open handle. driver selects the placeholder dialect.
func New(db *sql.DB, driver string) *Store {
	return &Store{db: db, postgres: driver == DriverPostgres, now: time.Now}
}

// Ping verifies the connection.
func (s *Store) Ping(ctx context.Context) error {
	if err := s.db.PingContext(ctx); err != nil {
		return fmt.Errorf("database ping failed: %w", err)
	}
	return nil
}

// Close releases the handle.
func (s *Store) Close() error {
	return s.db.Close()
}

// rebind turns ? placeholders into $n for postgres.
func (s *Store) rebind(query string) string {
	if !s.postgres {
		return query
	}
	var b strings.Builder
	b.Grow(len(query) + 8)
	n := 0
	for _, r := range query {
		if r == '?' {
			n++
			b.WriteByte('$')
			b.WriteString(strconv.Itoa(n))
			continue
		}
		b.WriteRune(r)
	}
	return b.String()
}

// observe records latency and failure metrics for op and tags err.
func observe(op string, start time.Time, err *error) {
	metrics.RecordStoreQuery(op, float64(time.Since(start).Microseconds())/1000)
	if *err != nil {
		metrics.RecordStoreError(op)
		*err = errs.Wrap("sqlstore."+op, *err)
	}
}

func placeholders(n int) string {
	return strings.TrimSuffix(strings.Repeat("?,", n), ",")
}

func nullString(s *string) sql.NullString {
	if s == nil {
		return sql.NullString{}
	}
	return sql.NullString{String: *s, Valid: true}
}

func stringPtr(ns sql.NullString) *string {
	if !ns.Valid {
		return nil
	}
	v := ns.String
	return &v
}

func floatPtr(nf sql.NullFloat64) *float64 {
	if !nf.Valid {
		return nil
	}
	v := nf.Float64
	return &v
}

// ApplicationsByEvent lists an event's applications in entry order.
func (s *Store) ApplicationsByEvent(ctx context.Context, eventID string) (out []model.Application, err error) {
	defer observe("applications_by_event", time.Now(), &err)

	rows, err := s.db.QueryContext(ctx, s.rebind(`
		SELECT id, event_id, participant_id, created_at
		FROM applications
		WHERE event_id = ?
		ORDER BY created_at, id`), eventID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	for rows.Next() {
		var a model.Application
		if err := rows.Scan(&a.ID, &a.EventID, &a.ParticipantID, &a.CreatedAt); err != nil {
			return nil, err
		}
		out = append(out, a)
	}
	return out, rows.Err()
}

// EvaluationsByEvent lists an event's evaluations, restricted to judgeID when set.
func (s *Store) EvaluationsByEvent(ctx context.Context, eventID, judgeID string) (out []model.Evaluation, err error) {
	defer observe("evaluations_by_event", time.Now(), &err)

	query := `
		SELECT id, event_id, participant_id, judge_id,
		       score_teamwork, score_idea, score_execution, score_business, updated_at
		FROM evaluations
		WHERE event_id = ?`
	args := []any{eventID}
	if judgeID != "" {
		query += ` AND judge_id = ?`
		args = append(args, judgeID)
	}
	query += ` ORDER BY created_at, id`

	rows, err := s.db.QueryContext(ctx, s.rebind(query), args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	for rows.Next() {
		var (
			e                 model.Evaluation
			tw, idea, ex, bus sql.NullFloat64
		)
		if err := rows.Scan(&e.ID, &e.EventID, &e.ParticipantID, &e.JudgeID, &tw, &idea, &ex, &bus, &e.UpdatedAt); err != nil {
			return nil, err
		}
		e.Teamwork, e.Idea, e.Execution, e.Business = floatPtr(tw), floatPtr(idea), floatPtr(ex), floatPtr(bus)
		out = append(out, e)
	}
	return out, rows.Err()
}

// AssignedJudges lists the judge ids on an event's panel.
func (s *Store) AssignedJudges(ctx context.Context, eventID string) (out []string, err error) {
	defer observe("assigned_judges", time.Now(), &err)

	rows, err := s.db.QueryContext(ctx, s.rebind(`
		SELECT judge_id FROM judge_assignments WHERE event_id = ? ORDER BY created_at, judge_id`), eventID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	for rows.Next() {
		var id string
		if err := rows.Scan(&id); err != nil {
			return nil, err
		}
		out = append(out, id)
	}
	return out, rows.Err()
}

// IsAssigned reports whether judgeID sits on eventID's panel.
func (s *Store) IsAssigned(ctx context.Context, eventID, judgeID string) (ok bool, err error) {
	defer observe("is_assigned", time.Now(), &err)

	var n int
	err = s.db.QueryRowContext(ctx, s.rebind(`
		SELECT COUNT(*) FROM judge_assignments WHERE event_id = ? AND judge_id = ?`), eventID, judgeID).Scan(&n)
	if err != nil {
		return false, err
	}
	return n > 0, nil
}

const profileColumns = `id, role, sub_role, full_name, avatar_url, website, approval_status`

func scanProfile(row interface{ Scan(...any) error }) (model.Profile, error) {
	var (
		p                     model.Profile
		subRole, avatar, site sql.NullString
		role, approval        string
	)
	if err := row.Scan(&p.ID, &role, &subRole, &p.FullName, &avatar, &site, &approval); err != nil {
		return model.Profile{}, err
	}
	p.Role = model.ParseRole(role)
	p.SubRole = model.ParseSubRole(subRole.String)
	p.AvatarURL = stringPtr(avatar)
	p.Website = stringPtr(site)
	p.ApprovalStatus = model.ApprovalStatus(approval)
	return p, nil
}

// Profiles resolves ids; unknown ids are skipped.
func (s *Store) Profiles(ctx context.Context, ids []string) (out []model.Profile, err error) {
	if len(ids) == 0 {
		return nil, nil
	}
	defer observe("profiles", time.Now(), &err)

	args := make([]any, len(ids))
	for i, id := range ids {
		args[i] = id
	}
	rows, err := s.db.QueryContext(ctx, s.rebind(
		`SELECT `+profileColumns+` FROM profiles WHERE id IN (`+placeholders(len(ids))+`)`), args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	for rows.Next() {
		p, err := scanProfile(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, p)
	}
	return out, rows.Err()
}

// Profile loads one profile.
func (s *Store) Profile(ctx context.Context, id string) (p model.Profile, err error) {
	defer observe("profile", time.Now(), &err)

	p, err = scanProfile(s.db.QueryRowContext(ctx, s.rebind(
		`SELECT `+profileColumns+` FROM profiles WHERE id = ?`), id))
	if errors.Is(err, sql.ErrNoRows) {
		return model.Profile{}, errs.New("profile", errs.ErrNotFound)
	}
	return p, err
}

// UpsertEvaluation inserts or replaces the (event, participant, judge) row and
// returns its id. The id of an existing row is kept.
func (s *Store) UpsertEvaluation(ctx context.Context, e model.Evaluation) (id string, err error) {
	defer observe("upsert_evaluation", time.Now(), &err)

	if e.ID == "" {
		e.ID = uuid.NewString()
	}
	now := e.UpdatedAt
	if now.IsZero() {
		now = s.now().UTC()
	}

	err = s.db.QueryRowContext(ctx, s.rebind(`
		INSERT INTO evaluations (id, event_id, participant_id, judge_id,
			score_teamwork, score_idea, score_execution, score_business, created_at, updated_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT (event_id, participant_id, judge_id) DO UPDATE SET
			score_teamwork = excluded.score_teamwork,
			score_idea = excluded.score_idea,
			score_execution = excluded.score_execution,
			score_business = excluded.score_business,
			updated_at = excluded.updated_at
		RETURNING id`),
		e.ID, e.EventID, e.ParticipantID, e.JudgeID,
		e.Teamwork, e.Idea, e.Execution, e.Business, now, now,
	).Scan(&id)
	if err != nil {
		return "", err
	}
	return id, nil
}

const eventColumns = `e.id, e.company_id, e.title, e.event_date, e.location, e.created_at`

func scanEvent(row interface{ Scan(...any) error }) (model.Event, error) {
	var (
		ev       model.Event
		date     sql.NullTime
		location sql.NullString
	)
	if err := row.Scan(&ev.ID, &ev.CompanyID, &ev.Title, &date, &location, &ev.CreatedAt); err != nil {
		return model.Event{}, err
	}
	if date.Valid {
		d := date.Time
		ev.EventDate = &d
	}
	ev.Location = stringPtr(location)
	return ev, nil
}

func (s *Store) queryEvents(ctx context.Context, query string, args ...any) ([]model.Event, error) {
	rows, err := s.db.QueryContext(ctx, s.rebind(query), args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []model.Event
	for rows.Next() {
		ev, err := scanEvent(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, ev)
	}
	return out, rows.Err()
}

// Event loads one event.
func (s *Store) Event(ctx context.Context, id string) (ev model.Event, err error) {
	defer observe("event", time.Now(), &err)

	ev, err = scanEvent(s.db.QueryRowContext(ctx, s.rebind(
		`SELECT `+eventColumns+` FROM events e WHERE e.id = ?`), id))
	if errors.Is(err, sql.ErrNoRows) {
		return model.Event{}, errs.New("event", errs.ErrNotFound)
	}
	return ev, err
}

// EventsByCompany lists a company's events, newest first.
func (s *Store) EventsByCompany(ctx context.Context, companyID string) (out []model.Event, err error) {
	defer observe("events_by_company", time.Now(), &err)
	return s.queryEvents(ctx, `SELECT `+eventColumns+` FROM events e
		WHERE e.company_id = ? ORDER BY e.created_at DESC, e.id`, companyID)
}

// EventsByJudge lists the events a judge is assigned to, newest first.
func (s *Store) EventsByJudge(ctx context.Context, judgeID string) (out []model.Event, err error) {
	defer observe("events_by_judge", time.Now(), &err)
	return s.queryEvents(ctx, `SELECT `+eventColumns+` FROM events e
		JOIN judge_assignments ja ON ja.event_id = e.id
		WHERE ja.judge_id = ? ORDER BY e.created_at DESC, e.id`, judgeID)
}

// AllEvents lists every event, newest first.
func (s *Store) AllEvents(ctx context.Context) (out []model.Event, err error) {
	defer observe("all_events", time.Now(), &err)
	return s.queryEvents(ctx, `SELECT `+eventColumns+` FROM events e ORDER BY e.created_at DESC, e.id`)
}

// InsertAudit appends one audit entry.
func (s *Store) InsertAudit(ctx context.Context, e audit.Entry) (err error) {
	defer observe("insert_audit", time.Now(), &err)

	var details sql.NullString
	if len(e.Details) > 0 {
		raw, err := json.Marshal(e.Details)
		if err != nil {
			return fmt.Errorf("encode details: %w", err)
		}
		details = sql.NullString{String: string(raw), Valid: true}
	}
	if e.ID == "" {
		e.ID = uuid.NewString()
	}
	if e.CreatedAt.IsZero() {
		e.CreatedAt = s.now().UTC()
	}
	var ip *string
	if e.IPAddress != "" {
		ip = &e.IPAddress
	}

	_, err = s.db.ExecContext(ctx, s.rebind(`
		INSERT INTO audit_logs (id, user_id, action, details, ip_address, created_at)
		VALUES (?, ?, ?, ?, ?, ?)`),
		e.ID, e.UserID, string(e.Action), details, nullString(ip), e.CreatedAt)
	return err
}

// AuditByUser lists a user's entries, newest first.
func (s *Store) AuditByUser(ctx context.Context, userID string, limit int) (out []audit.Entry, err error) {
	defer observe("audit_by_user", time.Now(), &err)

	rows, err := s.db.QueryContext(ctx, s.rebind(`
		SELECT id, user_id, action, details, ip_address, created_at
		FROM audit_logs
		WHERE user_id = ?
		ORDER BY created_at DESC, id DESC
		LIMIT ?`), userID, limit)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	for rows.Next() {
		var (
			e           audit.Entry
			action      string
			details, ip sql.NullString
		)
		if err := rows.Scan(&e.ID, &e.UserID, &action, &details, &ip, &e.CreatedAt); err != nil {
			return nil, err
		}
		e.Action = audit.Action(action)
		e.IPAddress = ip.String
		if details.Valid && details.String != "" {
			if err := json.Unmarshal([]byte(details.String), &e.Details); err != nil {
				return nil, fmt.Errorf("decode details of %s: %w", e.ID, err)
			}
		}
		out = append(out, e)
	}
	return out, rows.Err()
}

// PutProfile inserts or replaces a profile.
func (s *Store) PutProfile(ctx context.Context, p model.Profile) (err error) {
	defer observe("put_profile", time.Now(), &err)

	var subRole *string
	if p.SubRole != "" {
		v := string(p.SubRole)
		subRole = &v
	}
	approval := p.ApprovalStatus
	if approval == "" {
		approval = model.ApprovalPending
	}
	_, err = s.db.ExecContext(ctx, s.rebind(`
		INSERT INTO profiles (id, role, sub_role, full_name, avatar_url, website, approval_status, created_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT (id) DO UPDATE SET
			role = excluded.role,
			sub_role = excluded.sub_role,
			full_name = excluded.full_name,
			avatar_url = excluded.avatar_url,
			website = excluded.website,
			approval_status = excluded.approval_status`),
		p.ID, string(p.Role), nullString(subRole), p.FullName, nullString(p.AvatarURL), nullString(p.Website),
		string(approval), s.now().UTC())
	return err
}

// PutEvent inserts or replaces an event.
func (s *Store) PutEvent(ctx context.Context, ev model.Event) (err error) {
	defer observe("put_event", time.Now(), &err)

	created := ev.CreatedAt
	if created.IsZero() {
		created = s.now().UTC()
	}
	var date sql.NullTime
	if ev.EventDate != nil {
		date = sql.NullTime{Time: ev.EventDate.UTC(), Valid: true}
	}
	_, err = s.db.ExecContext(ctx, s.rebind(`
		INSERT INTO events (id, company_id, title, event_date, location, created_at)
		VALUES (?, ?, ?, ?, ?, ?)
		ON CONFLICT (id) DO UPDATE SET
			company_id = excluded.company_id,
			title = excluded.title,
			event_date = excluded.event_date,
			location = excluded.location`),
		ev.ID, ev.CompanyID, ev.Title, date, nullString(ev.Location), created)
	return err
}

// PutApplication records an application; repeats are ignored.
func (s *Store) PutApplication(ctx context.Context, a model.Application) (err error) {
	defer observe("put_application", time.Now(), &err)

	if a.ID == "" {
		a.ID = uuid.NewString()
	}
	created := a.CreatedAt
	if created.IsZero() {
		created = s.now().UTC()
	}
	_, err = s.db.ExecContext(ctx, s.rebind(`
		INSERT INTO applications (id, event_id, participant_id, created_at)
		VALUES (?, ?, ?, ?)
		ON CONFLICT (event_id, participant_id) DO NOTHING`),
		a.ID, a.EventID, a.ParticipantID, created)
	return err
}

// PutAssignment places a judge on a panel; repeats are ignored.
func (s *Store) PutAssignment(ctx context.Context, ja model.JudgeAssignment) (err error) {
	defer observe("put_assignment", time.Now(), &err)

	_, err = s.db.ExecContext(ctx, s.rebind(`
		INSERT INTO judge_assignments (event_id, judge_id, created_at)
		VALUES (?, ?, ?)
		ON CONFLICT (event_id, judge_id) DO NOTHING`),
		ja.EventID, ja.JudgeID, s.now().UTC())
	return err
}
