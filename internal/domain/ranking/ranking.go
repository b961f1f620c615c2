// Package ranking aggregates judge evaluations into an event leaderboard.
//
// One aggregation reads the event's applications, then fans out to
// participant identities, evaluations and judge assignments, then resolves
// judge identities. Any store failure aborts the whole aggregation; callers
// never see a partial board.
package ranking

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"strings"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"
	"golang.org/x/sync/errgroup"

	"github.com/okian/stark/internal/domain/model"
	"github.com/okian/stark/internal/domain/scoring"
	"github.com/okian/stark/pkg/errs"
	"github.com/okian/stark/pkg/logger"
	"github.com/okian/stark/pkg/metrics"
)

const podiumSize = 3

// ErrMissingEvent is returned when a query names no event.
var ErrMissingEvent = errors.New("event id is required")

// ApplicationReader lists the participants applied to an event, oldest first.
type ApplicationReader interface {
	ApplicationsByEvent(ctx context.Context, eventID string) ([]model.Application, error)
}

// EvaluationReader lists an event's evaluations; an empty judgeID means every judge.
type EvaluationReader interface {
	EvaluationsByEvent(ctx context.Context, eventID, judgeID string) ([]model.Evaluation, error)
}

// AssignmentReader lists the judges assigned to an event.
type AssignmentReader interface {
	AssignedJudges(ctx context.Context, eventID string) ([]string, error)
}

// IdentityReader resolves profiles by id. Unknown ids are skipped.
type IdentityReader interface {
	Profiles(ctx context.Context, ids []string) ([]model.Profile, error)
}

// Store is everything an aggregation reads.
type Store interface {
	ApplicationReader
	EvaluationReader
	AssignmentReader
	IdentityReader
}

// Query selects the board to build. JudgeID restricts the evaluations to one judge.
type Query struct {
	EventID string
	JudgeID string
}

// JudgeScore is one judge's evaluation of a participant, as shown in the breakdown.
type JudgeScore struct {
	EvaluationID string  `json:"evaluation_id"`
	JudgeID      string  `json:"judge_id"`
	JudgeName    string  `json:"judge_name"`
	Teamwork     float64 `json:"teamwork"`
	Idea         float64 `json:"idea"`
	Execution    float64 `json:"execution"`
	Business     float64 `json:"business"`
	Average      float64 `json:"average"`
	Voted        bool    `json:"voted"`
}

// Result is one participant's line on the board.
type Result struct {
	Rank          int          `json:"rank"`
	ParticipantID string       `json:"participant_id"`
	Name          string       `json:"name"`
	AvatarURL     *string      `json:"avatar_url,omitempty"`
	Website       *string      `json:"website,omitempty"`
	Average       float64      `json:"average"`
	Teamwork      float64      `json:"teamwork"`
	Idea          float64      `json:"idea"`
	Execution     float64      `json:"execution"`
	Business      float64      `json:"business"`
	VotedJudges   int          `json:"voted_judges"`
	Provisional   bool         `json:"provisional"`
	Evaluations   []JudgeScore `json:"evaluations"`
}

// Board is a ranked leaderboard for one event.
type Board struct {
	EventID        string
	JudgeID        string
	AssignedJudges int
	Results        []Result
}

// Podium returns up to the first three results.
func (b Board) Podium() []Result {
	if len(b.Results) <= podiumSize {
		return b.Results
	}
	return b.Results[:podiumSize]
}

// Rest returns the results after the podium.
func (b Board) Rest() []Result {
	if len(b.Results) <= podiumSize {
		return []Result{}
	}
	return b.Results[podiumSize:]
}

// Aggregator builds boards from a Store.
type Aggregator struct {
	store     Store
	threshold float64
	logger    logger.Logger
	tracer    trace.Tracer
}

// New creates an Aggregator reading from store.
func New(store Store, opts ...Option) *Aggregator {
	a := &Aggregator{
		store:     store,
		threshold: scoring.DefaultProvisionalThreshold,
		logger:    logger.Get().Named("ranking"),
		tracer:    otel.Tracer("stark/ranking"),
	}
	for _, opt := range opts {
		opt(a)
	}
	return a
}

// Aggregate builds the board for q.
func (a *Aggregator) Aggregate(ctx context.Context, q Query) (Board, error) {
	view := metrics.ViewSponsor
	if q.JudgeID != "" {
		view = metrics.ViewJudge
	}

	ctx, span := a.tracer.Start(ctx, "ranking.Aggregate", trace.WithAttributes(
		attribute.String("event.id", q.EventID),
		attribute.String("view", view),
	))
	defer span.End()

	start := time.Now()
	board, err := a.aggregate(ctx, q)
	elapsed := time.Since(start)

	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
		if errors.Is(err, errs.ErrUnavailable) {
			metrics.RecordAggregationFailure(view)
			a.logger.Error(ctx, "aggregation failed",
				logger.String("event_id", q.EventID),
				logger.String("view", view),
				logger.Error(err),
			)
		}
		return Board{}, err
	}

	provisional := 0
	for i := range board.Results {
		if board.Results[i].Provisional {
			provisional++
		}
	}
	metrics.RecordAggregation(view, float64(elapsed.Microseconds())/1000, len(board.Results))
	metrics.RecordProvisionalResults(provisional)
	span.SetAttributes(attribute.Int("participants", len(board.Results)))
	span.SetStatus(codes.Ok, "")

	a.logger.Debug(ctx, "aggregated leaderboard",
		logger.String("event_id", q.EventID),
		logger.String("view", view),
		logger.Int("participants", len(board.Results)),
		logger.Duration("took", elapsed),
	)
	return board, nil
}

func (a *Aggregator) aggregate(ctx context.Context, q Query) (Board, error) {
	const op = "ranking.aggregate"

	if strings.TrimSpace(q.EventID) == "" {
		return Board{}, errs.WrapKind(op, errs.ErrInvalid, ErrMissingEvent)
	}

	apps, err := a.store.ApplicationsByEvent(ctx, q.EventID)
	if err != nil {
		return Board{}, storeFailure(ctx, op, fmt.Errorf("applications: %w", err))
	}
	if err := ctx.Err(); err != nil {
		return Board{}, err
	}

	board := Board{EventID: q.EventID, JudgeID: q.JudgeID, Results: []Result{}}
	participantIDs := participantOrder(apps)
	if len(participantIDs) == 0 {
		return board, nil
	}

	var (
		participants []model.Profile
		evaluations  []model.Evaluation
		judgeIDs     []string
	)
	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		p, err := a.store.Profiles(gctx, participantIDs)
		if err != nil {
			return fmt.Errorf("participant identities: %w", err)
		}
		participants = p
		return nil
	})
	g.Go(func() error {
		e, err := a.store.EvaluationsByEvent(gctx, q.EventID, q.JudgeID)
		if err != nil {
			return fmt.Errorf("evaluations: %w", err)
		}
		evaluations = e
		return nil
	})
	g.Go(func() error {
		j, err := a.store.AssignedJudges(gctx, q.EventID)
		if err != nil {
			return fmt.Errorf("judge assignments: %w", err)
		}
		judgeIDs = j
		return nil
	})
	if err := g.Wait(); err != nil {
		return Board{}, storeFailure(ctx, op, err)
	}
	if err := ctx.Err(); err != nil {
		return Board{}, err
	}

	inScope := make(map[string]struct{}, len(participantIDs))
	for _, id := range participantIDs {
		inScope[id] = struct{}{}
	}
	byParticipant := make(map[string][]model.Evaluation, len(participantIDs))
	var evaluatorIDs []string
	seenJudge := map[string]struct{}{}
	for _, e := range evaluations {
		if _, ok := inScope[e.ParticipantID]; !ok {
			continue
		}
		byParticipant[e.ParticipantID] = append(byParticipant[e.ParticipantID], e)
		if _, ok := seenJudge[e.JudgeID]; !ok && e.JudgeID != "" {
			seenJudge[e.JudgeID] = struct{}{}
			evaluatorIDs = append(evaluatorIDs, e.JudgeID)
		}
	}

	judgeNames := map[string]string{}
	if len(evaluatorIDs) > 0 {
		judges, err := a.store.Profiles(ctx, evaluatorIDs)
		if err != nil {
			return Board{}, storeFailure(ctx, op, fmt.Errorf("judge identities: %w", err))
		}
		for i := range judges {
			judgeNames[judges[i].ID] = model.DisplayName(&judges[i], model.PlaceholderJudge)
		}
		if err := ctx.Err(); err != nil {
			return Board{}, err
		}
	}

	board.AssignedJudges = countDistinct(judgeIDs)

	profiles := make(map[string]*model.Profile, len(participants))
	for i := range participants {
		profiles[participants[i].ID] = &participants[i]
	}

	results := make([]Result, 0, len(participantIDs))
	for _, id := range participantIDs {
		r := summarize(byParticipant[id], judgeNames)
		r.ParticipantID = id
		r.Name = model.DisplayName(profiles[id], model.PlaceholderParticipant)
		if p := profiles[id]; p != nil {
			r.AvatarURL = p.AvatarURL
			r.Website = p.Website
		}
		r.Provisional = scoring.Provisional(r.VotedJudges, board.AssignedJudges, a.threshold)
		results = append(results, r)
	}

	sort.SliceStable(results, func(i, j int) bool {
		return results[i].Average > results[j].Average
	})
	for i := range results {
		results[i].Rank = i + 1
	}
	board.Results = results
	return board, nil
}

// storeFailure reports a cancelled caller as ctx.Err() and anything else as unavailable.
func storeFailure(ctx context.Context, op string, err error) error {
	if ctxErr := ctx.Err(); ctxErr != nil {
		return ctxErr
	}
	return errs.WrapKind(op, errs.ErrUnavailable, err)
}

// summarize computes averages over every row. Rows with no sub-score still
// count with zeros but are not counted as votes.
func summarize(rows []model.Evaluation, judgeNames map[string]string) Result {
	r := Result{Evaluations: make([]JudgeScore, 0, len(rows))}
	if len(rows) == 0 {
		return r
	}

	averages := make([]float64, 0, len(rows))
	voted := map[string]struct{}{}
	var tw, idea, exec, bus float64
	for _, e := range rows {
		js := JudgeScore{
			EvaluationID: e.ID,
			JudgeID:      e.JudgeID,
			JudgeName:    model.PlaceholderJudge,
			Teamwork:     scoring.CoerceZero(e.Teamwork),
			Idea:         scoring.CoerceZero(e.Idea),
			Execution:    scoring.CoerceZero(e.Execution),
			Business:     scoring.CoerceZero(e.Business),
			Average:      scoring.JudgeAverage(e.Scores),
			Voted:        scoring.HasVoted(e.Scores),
		}
		if name, ok := judgeNames[e.JudgeID]; ok {
			js.JudgeName = name
		}
		if js.Voted {
			voted[e.JudgeID] = struct{}{}
		}
		tw += js.Teamwork
		idea += js.Idea
		exec += js.Execution
		bus += js.Business
		averages = append(averages, js.Average)
		r.Evaluations = append(r.Evaluations, js)
	}

	n := float64(len(rows))
	r.Average = scoring.Mean(averages)
	r.Teamwork = tw / n
	r.Idea = idea / n
	r.Execution = exec / n
	r.Business = bus / n
	r.VotedJudges = len(voted)
	return r
}

// participantOrder returns distinct participant ids in application order.
func participantOrder(apps []model.Application) []string {
	seen := make(map[string]struct{}, len(apps))
	ids := make([]string, 0, len(apps))
	for _, a := range apps {
		if a.ParticipantID == "" {
			continue
		}
		if _, ok := seen[a.ParticipantID]; ok {
			continue
		}
		seen[a.ParticipantID] = struct{}{}
		ids = append(ids, a.ParticipantID)
	}
	return ids
}

func countDistinct(ids []string) int {
	seen := make(map[string]struct{}, len(ids))
	for _, id := range ids {
		if id != "" {
			seen[id] = struct{}{}
		}
	}
	return len(seen)
}
