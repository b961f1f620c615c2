// Package memstore keeps the whole data set in process memory. It backs tests
// and throwaway `-store memory` runs; nothing survives a restart.
package memstore

import (
	"context"
	"slices"
	"sort"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/okian/stark/internal/adapters/repository"
	"github.com/okian/stark/internal/domain/audit"
	"github.com/okian/stark/internal/domain/model"
	"github.com/okian/stark/pkg/errs"
)

var _ repository.Store = (*Store)(nil)

type evalKey struct {
	event, participant, judge string
}

// Store is a mutex-guarded in-memory backend.
type Store struct {
	mu sync.RWMutex

	profiles     map[string]model.Profile
	events       map[string]model.Event
	applications map[string][]model.Application // by event
	assignments  map[string][]string            // judge ids by event
	evaluations  map[evalKey]model.Evaluation
	evalOrder    map[string][]evalKey // by event, insertion order
	auditLog     []audit.Entry

	now func() time.Time
}

// Option configures a Store.
type Option func(*Store)

// WithClock replaces time.Now for stamping rows.
func WithClock(now func() time.Time) Option {
	return func(s *Store) {
		if now != nil {
			s.now = now
		}
	}
}

// New returns an empty store.
func New(opts ...Option) *Store {
	s := &Store{
		profiles:     make(map[string]model.Profile),
		events:       make(map[string]model.Event),
		applications: make(map[string][]model.Application),
		assignments:  make(map[string][]string),
		evaluations:  make(map[evalKey]model.Evaluation),
		evalOrder:    make(map[string][]evalKey),
		now:          time.Now,
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// stamp is the store clock in UTC.
func (s *Store) stamp() time.Time { return s.now().UTC() }

// Ping always succeeds unless ctx is done.
func (s *Store) Ping(ctx context.Context) error { return ctx.Err() }

// Close is a no-op.
func (s *Store) Close() error { return nil }

// ApplicationsByEvent lists an event's applications in entry order.
func (s *Store) ApplicationsByEvent(ctx context.Context, eventID string) ([]model.Application, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	s.mu.RLock()
	defer s.mu.RUnlock()
	return slices.Clone(s.applications[eventID]), nil
}

// EvaluationsByEvent lists an event's evaluations, restricted to judgeID when set.
func (s *Store) EvaluationsByEvent(ctx context.Context, eventID, judgeID string) ([]model.Evaluation, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	s.mu.RLock()
	defer s.mu.RUnlock()

	var out []model.Evaluation
	for _, k := range s.evalOrder[eventID] {
		if judgeID != "" && k.judge != judgeID {
			continue
		}
		out = append(out, copyEvaluation(s.evaluations[k]))
	}
	return out, nil
}

// AssignedJudges lists the judge ids on an event's panel.
func (s *Store) AssignedJudges(ctx context.Context, eventID string) ([]string, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	s.mu.RLock()
	defer s.mu.RUnlock()

	return slices.Clone(s.assignments[eventID]), nil
}

// IsAssigned reports whether judgeID sits on eventID's panel.
func (s *Store) IsAssigned(ctx context.Context, eventID, judgeID string) (bool, error) {
	if err := ctx.Err(); err != nil {
		return false, err
	}
	s.mu.RLock()
	defer s.mu.RUnlock()

	return slices.Contains(s.assignments[eventID], judgeID), nil
}

// Profiles resolves ids; unknown ids are skipped.
func (s *Store) Profiles(ctx context.Context, ids []string) ([]model.Profile, error) {
	if len(ids) == 0 {
		return nil, nil
	}
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	s.mu.RLock()
	defer s.mu.RUnlock()

	var out []model.Profile
	seen := make(map[string]struct{}, len(ids))
	for _, id := range ids {
		if _, dup := seen[id]; dup {
			continue
		}
		seen[id] = struct{}{}
		if p, ok := s.profiles[id]; ok {
			out = append(out, p)
		}
	}
	return out, nil
}

// Profile loads one profile.
func (s *Store) Profile(ctx context.Context, id string) (model.Profile, error) {
	if err := ctx.Err(); err != nil {
		return model.Profile{}, err
	}
	s.mu.RLock()
	defer s.mu.RUnlock()

	p, ok := s.profiles[id]
	if !ok {
		return model.Profile{}, errs.New("memstore.profile", errs.ErrNotFound)
	}
	return p, nil
}

// Event loads one event.
func (s *Store) Event(ctx context.Context, id string) (model.Event, error) {
	if err := ctx.Err(); err != nil {
		return model.Event{}, err
	}
	s.mu.RLock()
	defer s.mu.RUnlock()

	ev, ok := s.events[id]
	if !ok {
		return model.Event{}, errs.New("memstore.event", errs.ErrNotFound)
	}
	return ev, nil
}

// EventsByCompany lists a company's events, newest first.
func (s *Store) EventsByCompany(ctx context.Context, companyID string) ([]model.Event, error) {
	return s.filterEvents(ctx, func(ev model.Event) bool { return ev.CompanyID == companyID })
}

// EventsByJudge lists the events a judge is assigned to, newest first.
func (s *Store) EventsByJudge(ctx context.Context, judgeID string) ([]model.Event, error) {
	return s.filterEvents(ctx, func(ev model.Event) bool {
		return slices.Contains(s.assignments[ev.ID], judgeID)
	})
}

// AllEvents lists every event, newest first.
func (s *Store) AllEvents(ctx context.Context) ([]model.Event, error) {
	return s.filterEvents(ctx, func(model.Event) bool { return true })
}

// filterEvents returns matching events newest first. keep runs under the read lock.
func (s *Store) filterEvents(ctx context.Context, keep func(model.Event) bool) ([]model.Event, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	s.mu.RLock()
	defer s.mu.RUnlock()

	var out []model.Event
	for _, ev := range s.events {
		if keep(ev) {
			out = append(out, ev)
		}
	}
	sort.Slice(out, func(i, j int) bool {
		if !out[i].CreatedAt.Equal(out[j].CreatedAt) {
			return out[i].CreatedAt.After(out[j].CreatedAt)
		}
		return out[i].ID < out[j].ID
	})
	return out, nil
}

// AuditByUser lists a user's entries, newest first.
func (s *Store) AuditByUser(ctx context.Context, userID string, limit int) ([]audit.Entry, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	s.mu.RLock()
	defer s.mu.RUnlock()

	var out []audit.Entry
	for _, e := range s.auditLog {
		if e.UserID == userID {
			out = append(out, e)
		}
	}
	sort.SliceStable(out, func(i, j int) bool {
		if !out[i].CreatedAt.Equal(out[j].CreatedAt) {
			return out[i].CreatedAt.After(out[j].CreatedAt)
		}
		return out[i].ID > out[j].ID
	})
	if limit > 0 && len(out) > limit {
		out = out[:limit]
	}
	return out, nil
}

// UpsertEvaluation inserts or replaces the (event, participant, judge) row and
// returns its id. The id of an existing row is kept.
func (s *Store) UpsertEvaluation(ctx context.Context, e model.Evaluation) (string, error) {
	if err := ctx.Err(); err != nil {
		return "", err
	}
	s.mu.Lock()
	defer s.mu.Unlock()

	if e.UpdatedAt.IsZero() {
		e.UpdatedAt = s.stamp()
	}
	k := evalKey{event: e.EventID, participant: e.ParticipantID, judge: e.JudgeID}
	if prev, ok := s.evaluations[k]; ok {
		e.ID = prev.ID
	} else {
		if e.ID == "" {
			e.ID = uuid.NewString()
		}
		s.evalOrder[e.EventID] = append(s.evalOrder[e.EventID], k)
	}
	s.evaluations[k] = copyEvaluation(e)
	return e.ID, nil
}

// InsertAudit appends one audit entry.
func (s *Store) InsertAudit(ctx context.Context, e audit.Entry) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	s.mu.Lock()
	defer s.mu.Unlock()

	if e.ID == "" {
		e.ID = uuid.NewString()
	}
	if e.CreatedAt.IsZero() {
		e.CreatedAt = s.stamp()
	}
	s.auditLog = append(s.auditLog, e)
	return nil
}

// PutProfile inserts or replaces a profile.
func (s *Store) PutProfile(ctx context.Context, p model.Profile) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	if p.ApprovalStatus == "" {
		p.ApprovalStatus = model.ApprovalPending
	}
	s.mu.Lock()
	s.profiles[p.ID] = p
	s.mu.Unlock()
	return nil
}

// PutEvent inserts or replaces an event.
func (s *Store) PutEvent(ctx context.Context, ev model.Event) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	s.mu.Lock()
	defer s.mu.Unlock()

	if prev, ok := s.events[ev.ID]; ok {
		ev.CreatedAt = prev.CreatedAt
	} else if ev.CreatedAt.IsZero() {
		ev.CreatedAt = s.stamp()
	}
	s.events[ev.ID] = ev
	return nil
}

// PutApplication records an application; repeats are ignored.
func (s *Store) PutApplication(ctx context.Context, a model.Application) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	s.mu.Lock()
	defer s.mu.Unlock()

	apps := s.applications[a.EventID]
	if slices.ContainsFunc(apps, func(x model.Application) bool { return x.ParticipantID == a.ParticipantID }) {
		return nil
	}
	if a.ID == "" {
		a.ID = uuid.NewString()
	}
	if a.CreatedAt.IsZero() {
		a.CreatedAt = s.stamp()
	}
	apps = append(apps, a)
	sort.SliceStable(apps, func(i, j int) bool {
		if !apps[i].CreatedAt.Equal(apps[j].CreatedAt) {
			return apps[i].CreatedAt.Before(apps[j].CreatedAt)
		}
		return apps[i].ID < apps[j].ID
	})
	s.applications[a.EventID] = apps
	return nil
}

// PutAssignment places a judge on a panel; repeats are ignored.
func (s *Store) PutAssignment(ctx context.Context, ja model.JudgeAssignment) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	s.mu.Lock()
	defer s.mu.Unlock()

	panel := s.assignments[ja.EventID]
	if slices.Contains(panel, ja.JudgeID) {
		return nil
	}
	s.assignments[ja.EventID] = append(panel, ja.JudgeID)
	return nil
}

func copyEvaluation(e model.Evaluation) model.Evaluation {
	for _, f := range model.Fields {
		if v := e.Get(f); v != nil {
			e.Set(f, model.Score(*v))
		}
	}
	return e
}
