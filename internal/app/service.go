// Package service wires the store, the leaderboard aggregator, judge sheets,
// the access policy and the audit pipeline into the operations the HTTP API
// serves.
package service

import (
	"context"
	"errors"
	"sync"
	"time"

	auditqueue "github.com/okian/stark/internal/adapters/mq/queue"
	auditpool "github.com/okian/stark/internal/adapters/mq/worker"
	"github.com/okian/stark/internal/adapters/repository"
	"github.com/okian/stark/internal/adapters/repository/memstore"
	"github.com/okian/stark/internal/domain/audit"
	"github.com/okian/stark/internal/domain/export"
	"github.com/okian/stark/internal/domain/judging"
	"github.com/okian/stark/internal/domain/model"
	"github.com/okian/stark/internal/domain/policy"
	"github.com/okian/stark/internal/domain/ranking"
	"github.com/okian/stark/internal/domain/scoring"
	"github.com/okian/stark/pkg/errs"
	"github.com/okian/stark/pkg/logger"
	"github.com/okian/stark/pkg/metrics"
)

// Service implements the API dependencies for the judging system.
type Service struct {
	mu sync.RWMutex

	// Core components
	store      repository.Store
	aggregator *ranking.Aggregator
	policy     *policy.Policy
	auditQueue *auditqueue.InMemoryQueue
	auditPool  *auditpool.Pool

	// Configuration
	threshold       float64
	auditQueueSize  int
	auditWorkers    int
	maxAuditLimit   int
	shutdownTimeout time.Duration

	// State
	started bool

	logger logger.Logger
}

// New constructs a Service. Call Start before serving requests so audit
// entries are persisted.
func New(opts ...Option) *Service {
	s := &Service{
		threshold:       scoring.DefaultProvisionalThreshold,
		auditQueueSize:  1024,
		auditWorkers:    2,
		maxAuditLimit:   audit.MaxLimit,
		shutdownTimeout: 10 * time.Second,
	}

	for _, opt := range opts {
		opt(s)
	}

	if s.logger == nil {
		s.logger = logger.Get().Named("service")
	}
	if s.store == nil {
		s.store = memstore.New()
	}
	s.aggregator = ranking.New(s.store,
		ranking.WithProvisionalThreshold(s.threshold),
		ranking.WithLogger(s.logger.Named("ranking")),
	)
	s.policy = policy.New(s.store)

	return s
}

// Start launches the audit pipeline. Calling it on a started service is a no-op.
func (s *Service) Start(ctx context.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.started {
		return nil
	}

	s.logger.Info(ctx, "starting judging service...")

	s.auditQueue = auditqueue.NewInMemoryQueue(auditqueue.WithCapacity(s.auditQueueSize))
	s.auditPool = auditpool.NewPool(s.auditWorkers, s.auditQueue, s.store,
		auditpool.WithLogger(s.logger.Named("audit")),
	)
	// workers outlive the caller's ctx so Stop can drain the queue
	s.auditPool.Start(context.WithoutCancel(ctx))

	s.started = true
	s.logger.Info(ctx, "judging service started",
		logger.Int("audit_workers", s.auditWorkers),
		logger.Int("audit_queue_size", s.auditQueueSize),
		logger.Float64("provisional_threshold", s.threshold),
	)

	return nil
}

// Stop drains the audit queue, bounded by the shutdown timeout, and closes
// the store. Calling it on a stopped service is a no-op.
func (s *Service) Stop() {
	s.mu.Lock()
	defer s.mu.Unlock()

	if !s.started {
		return
	}

	ctx, cancel := context.WithTimeout(context.Background(), s.shutdownTimeout)
	defer cancel()

	s.logger.Info(ctx, "stopping judging service...")

	if err := s.auditPool.Shutdown(ctx); err != nil {
		s.logger.Warn(ctx, "audit queue not fully drained", logger.Error(err))
	}
	written, failed := s.auditPool.Stats()

	if err := s.store.Close(); err != nil {
		s.logger.Error(ctx, "error closing store", logger.Error(err))
	}

	s.started = false
	s.logger.Info(ctx, "judging service stopped",
		logger.Int("audit_written", int(written)),
		logger.Int("audit_failed", int(failed)),
	)
}

// Authenticate resolves a verified user id into an actor. Unknown users are
// unauthenticated.
func (s *Service) Authenticate(ctx context.Context, userID string) (policy.Actor, error) {
	const op = "service.authenticate"

	if userID == "" {
		return policy.Actor{}, errs.New(op, errs.ErrUnauthenticated)
	}
	p, err := s.store.Profile(ctx, userID)
	switch {
	case errors.Is(err, errs.ErrNotFound):
		return policy.Actor{}, errs.WrapKind(op, errs.ErrUnauthenticated, err)
	case err != nil:
		return policy.Actor{}, s.storeFailure(ctx, op, err)
	}
	return policy.ActorFromProfile(p), nil
}

// ListEvents returns the events visible to actor, newest first.
func (s *Service) ListEvents(ctx context.Context, actor policy.Actor) ([]model.Event, error) {
	const op = "service.list_events"

	if err := s.authorize(ctx, op, actor, policy.CapListEvents, nil); err != nil {
		return nil, err
	}

	var (
		events []model.Event
		err    error
	)
	switch policy.ListScope(actor) {
	case policy.ScopeAll:
		events, err = s.store.AllEvents(ctx)
	case policy.ScopeOwned:
		events, err = s.store.EventsByCompany(ctx, actor.UserID)
	case policy.ScopeAssigned:
		events, err = s.store.EventsByJudge(ctx, actor.UserID)
	case policy.ScopeNone:
	}
	if err != nil {
		return nil, s.storeFailure(ctx, op, err)
	}
	if events == nil {
		events = []model.Event{}
	}
	return events, nil
}

// Leaderboard builds the sponsor view of an event's results.
func (s *Service) Leaderboard(ctx context.Context, actor policy.Actor, eventID string) (model.Event, ranking.Board, error) {
	ev, board, err := s.board(ctx, "service.leaderboard", actor, eventID)
	if err != nil {
		return model.Event{}, ranking.Board{}, err
	}
	s.record(ctx, actor.UserID, audit.ActionResultsViewed, map[string]any{
		"event_id":     ev.ID,
		"participants": len(board.Results),
	})
	return ev, board, nil
}

func (s *Service) board(ctx context.Context, op string, actor policy.Actor, eventID string) (model.Event, ranking.Board, error) {
	ev, err := s.event(ctx, op, eventID)
	if err != nil {
		return model.Event{}, ranking.Board{}, err
	}
	if err := s.authorize(ctx, op, actor, policy.CapViewResults, &ev); err != nil {
		return model.Event{}, ranking.Board{}, err
	}

	board, err := s.aggregator.Aggregate(ctx, ranking.Query{EventID: ev.ID})
	if err != nil {
		return model.Event{}, ranking.Board{}, errs.Wrap(op, err)
	}
	return ev, board, nil
}

// Export renders the event's leaderboard as CSV and returns the download
// filename with the body.
func (s *Service) Export(ctx context.Context, actor policy.Actor, eventID string) (string, []byte, error) {
	const op = "service.export"

	ev, board, err := s.board(ctx, op, actor, eventID)
	if err != nil {
		return "", nil, err
	}

	body := export.Bytes(board.Results)
	filename := export.Filename(ev.Title)
	metrics.RecordExport()

	s.record(ctx, actor.UserID, audit.ActionResultsExported, map[string]any{
		"event_id": ev.ID,
		"filename": filename,
		"rows":     len(board.Results),
	})
	return filename, body, nil
}

// Sheet loads actor's judging sheet for an event.
func (s *Service) Sheet(ctx context.Context, actor policy.Actor, eventID string) (model.Event, *judging.Sheet, error) {
	const op = "service.sheet"

	ev, err := s.event(ctx, op, eventID)
	if err != nil {
		return model.Event{}, nil, err
	}
	if err := s.authorize(ctx, op, actor, policy.CapJudge, &ev); err != nil {
		return model.Event{}, nil, err
	}

	sheet, err := judging.Load(ctx, s.store, ev.ID, actor.UserID)
	if err != nil {
		return model.Event{}, nil, errs.Wrap(op, err)
	}
	return ev, sheet, nil
}

// JudgeBoard ranks an event's participants by actor's own evaluations.
// Provisional flags still count the whole panel.
func (s *Service) JudgeBoard(ctx context.Context, actor policy.Actor, eventID string) (model.Event, ranking.Board, error) {
	const op = "service.judge_board"

	ev, err := s.event(ctx, op, eventID)
	if err != nil {
		return model.Event{}, ranking.Board{}, err
	}
	if err := s.authorize(ctx, op, actor, policy.CapJudge, &ev); err != nil {
		return model.Event{}, ranking.Board{}, err
	}

	board, err := s.aggregator.Aggregate(ctx, ranking.Query{EventID: ev.ID, JudgeID: actor.UserID})
	if err != nil {
		return model.Event{}, ranking.Board{}, errs.Wrap(op, err)
	}
	return ev, board, nil
}

// SaveEvaluation stores actor's scores for one participant of an event.
// Scores are clamped; nil sub-scores stay unset. A participant who has not
// applied to the event is not found.
func (s *Service) SaveEvaluation(ctx context.Context, actor policy.Actor, eventID, participantID string, scores model.Scores) (judging.Row, error) {
	const op = "service.save_evaluation"

	_, sheet, err := s.Sheet(ctx, actor, eventID)
	if err != nil {
		return judging.Row{}, errs.Wrap(op, err)
	}
	if err := sheet.SetScores(participantID, scores); err != nil {
		return judging.Row{}, errs.Wrap(op, err)
	}

	row, err := sheet.Save(ctx, participantID)
	if err != nil {
		metrics.RecordEvaluationSaveError()
		s.logger.Error(ctx, "evaluation save failed",
			logger.String("event_id", eventID),
			logger.String("participant_id", participantID),
			logger.String("judge_id", actor.UserID),
			logger.Error(err),
		)
		return row, errs.Wrap(op, err)
	}
	metrics.RecordEvaluationSaved()

	s.record(ctx, actor.UserID, audit.ActionEvaluationSaved, map[string]any{
		"event_id":       eventID,
		"participant_id": participantID,
		"evaluation_id":  row.EvaluationID,
		"average":        row.Average(),
	})
	return row, nil
}

// AuditLog returns actor's own audit entries, newest first.
func (s *Service) AuditLog(ctx context.Context, actor policy.Actor, limit int) ([]audit.Entry, error) {
	const op = "service.audit_log"

	if err := s.authorize(ctx, op, actor, policy.CapReadAudit, nil); err != nil {
		return nil, err
	}
	entries, err := s.store.AuditByUser(ctx, actor.UserID, audit.ClampLimit(limit, s.maxAuditLimit))
	if err != nil {
		return nil, s.storeFailure(ctx, op, err)
	}
	if entries == nil {
		entries = []audit.Entry{}
	}
	return entries, nil
}

// Ping checks the store.
func (s *Service) Ping(ctx context.Context) error {
	return s.store.Ping(ctx)
}

// GetStats returns service statistics for monitoring.
func (s *Service) GetStats() map[string]interface{} {
	s.mu.RLock()
	defer s.mu.RUnlock()

	stats := map[string]interface{}{
		"started":               s.started,
		"auditWorkers":          s.auditWorkers,
		"auditQueueCapacity":    s.auditQueueSize,
		"provisionalThreshold":  s.threshold,
		"maxAuditLimit":         s.maxAuditLimit,
		"shutdownTimeoutMillis": s.shutdownTimeout.Milliseconds(),
	}

	if s.started {
		written, failed := s.auditPool.Stats()
		stats["auditQueueLength"] = s.auditQueue.Len()
		stats["auditWritten"] = written
		stats["auditFailed"] = failed
	}

	return stats
}

// record queues an audit entry. A full or stopped queue drops it; callers
// never see audit failures.
func (s *Service) record(ctx context.Context, userID string, action audit.Action, details map[string]any) {
	s.mu.RLock()
	q := s.auditQueue
	s.mu.RUnlock()

	if q == nil {
		metrics.RecordAuditDropped()
		return
	}
	if !q.Enqueue(context.WithoutCancel(ctx), audit.NewEntry(ctx, userID, action, details)) {
		s.logger.Warn(ctx, "audit entry dropped",
			logger.String("user_id", userID),
			logger.String("action", string(action)),
		)
	}
}

func (s *Service) event(ctx context.Context, op, eventID string) (model.Event, error) {
	if eventID == "" {
		return model.Event{}, errs.WrapKind(op, errs.ErrInvalid, ranking.ErrMissingEvent)
	}
	ev, err := s.store.Event(ctx, eventID)
	switch {
	case errors.Is(err, errs.ErrNotFound):
		return model.Event{}, errs.Wrap(op, err)
	case err != nil:
		return model.Event{}, s.storeFailure(ctx, op, err)
	}
	return ev, nil
}

func (s *Service) authorize(ctx context.Context, op string, actor policy.Actor, capability policy.Capability, ev *model.Event) error {
	d, err := s.policy.Check(ctx, actor, capability, ev)
	if err != nil {
		return errs.Wrap(op, err)
	}
	if !d.Allowed {
		s.logger.Debug(ctx, "request denied",
			logger.String("user_id", actor.UserID),
			logger.String("capability", capability.String()),
			logger.String("reason", d.Reason),
		)
	}
	return d.Err(op)
}

func (s *Service) storeFailure(ctx context.Context, op string, err error) error {
	if ctxErr := ctx.Err(); ctxErr != nil {
		return ctxErr
	}
	s.logger.Error(ctx, "store read failed", logger.String("op", op), logger.Error(err))
	return errs.WrapKind(op, errs.ErrUnavailable, err)
}
