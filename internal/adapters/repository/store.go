// Package repository defines the persistence surface shared by the SQL and
// in-memory stores.
package repository

import (
	"context"

	"github.com/okian/stark/internal/domain/audit"
	"github.com/okian/stark/internal/domain/model"
)

// Reader serves the leaderboard, the judge sheet and the access policy.
type Reader interface {
	// ApplicationsByEvent lists an event's applications in entry order.
	ApplicationsByEvent(ctx context.Context, eventID string) ([]model.Application, error)
	// EvaluationsByEvent lists an event's evaluations; judgeID restricts them when non-empty.
	EvaluationsByEvent(ctx context.Context, eventID, judgeID string) ([]model.Evaluation, error)
	// AssignedJudges lists the judge ids on an event's panel.
	AssignedJudges(ctx context.Context, eventID string) ([]string, error)
	IsAssigned(ctx context.Context, eventID, judgeID string) (bool, error)

	// Profiles resolves ids; unknown ids are skipped.
	Profiles(ctx context.Context, ids []string) ([]model.Profile, error)
	// Profile returns errs.ErrNotFound for unknown ids.
	Profile(ctx context.Context, id string) (model.Profile, error)

	// Event returns errs.ErrNotFound for unknown ids.
	Event(ctx context.Context, id string) (model.Event, error)
	EventsByCompany(ctx context.Context, companyID string) ([]model.Event, error)
	EventsByJudge(ctx context.Context, judgeID string) ([]model.Event, error)
	AllEvents(ctx context.Context) ([]model.Event, error)

	// AuditByUser lists a user's entries, newest first.
	AuditByUser(ctx context.Context, userID string, limit int) ([]audit.Entry, error)
}

// Writer mutates stored state.
type Writer interface {
	// UpsertEvaluation inserts or replaces the (event, participant, judge)
	// row and returns its id.
	UpsertEvaluation(ctx context.Context, e model.Evaluation) (string, error)
	InsertAudit(ctx context.Context, e audit.Entry) error

	PutProfile(ctx context.Context, p model.Profile) error
	PutEvent(ctx context.Context, ev model.Event) error
	PutApplication(ctx context.Context, a model.Application) error
	PutAssignment(ctx context.Context, ja model.JudgeAssignment) error
}

// Store is a complete backend.
type Store interface {
	Reader
	Writer

	Ping(ctx context.Context) error
	Close() error
}
