// Package api declares HTTP contracts and route registration helpers.
package api

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"

	"github.com/go-playground/validator/v10"
	"golang.org/x/time/rate"

	"github.com/okian/stark/internal/adapters/http/auth"
	"github.com/okian/stark/internal/domain/audit"
	"github.com/okian/stark/internal/domain/judging"
	"github.com/okian/stark/internal/domain/model"
	"github.com/okian/stark/internal/domain/policy"
	"github.com/okian/stark/internal/domain/ranking"
	"github.com/okian/stark/pkg/errs"
	"github.com/okian/stark/pkg/logger"
)

// Dependencies required by HTTP handlers. Using an interface bundle keeps
// the handler layer loosely coupled to implementations in other packages.
type Dependencies interface {
	// Authenticate resolves a verified user id into an actor.
	Authenticate(ctx context.Context, userID string) (policy.Actor, error)

	ListEvents(ctx context.Context, actor policy.Actor) ([]model.Event, error)
	Leaderboard(ctx context.Context, actor policy.Actor, eventID string) (model.Event, ranking.Board, error)
	Export(ctx context.Context, actor policy.Actor, eventID string) (string, []byte, error)

	Sheet(ctx context.Context, actor policy.Actor, eventID string) (model.Event, *judging.Sheet, error)
	JudgeBoard(ctx context.Context, actor policy.Actor, eventID string) (model.Event, ranking.Board, error)
	SaveEvaluation(ctx context.Context, actor policy.Actor, eventID, participantID string, scores model.Scores) (judging.Row, error)

	AuditLog(ctx context.Context, actor policy.Actor, limit int) ([]audit.Entry, error)
}

// TokenVerifier turns a bearer token into a user id.
type TokenVerifier interface {
	Verify(token string) (string, error)
}

var validate = validator.New() //nolint:gochecknoglobals // validator caches struct metadata

// Server wires HTTP routes for the business API.
type Server struct {
	deps     Dependencies
	verifier TokenVerifier

	healthHandler      *HealthHandler
	statsHandler       *StatsHandler
	eventsHandler      *EventsHandler
	leaderboardHandler *LeaderboardHandler
	sheetHandler       *SheetHandler
	auditHandler       *AuditHandler

	saveRate  rate.Limit
	saveBurst int
	logger    logger.Logger
}

// NewServer creates a new API server with all handlers.
func NewServer(deps Dependencies, statsProvider StatsProvider, verifier TokenVerifier, opts ...Option) *Server {
	s := &Server{
		deps:      deps,
		verifier:  verifier,
		saveRate:  defaultSaveRate,
		saveBurst: defaultSaveBurst,
	}
	for _, opt := range opts {
		opt(s)
	}
	if s.logger == nil {
		s.logger = logger.Get().Named("http")
	}

	s.healthHandler = NewHealthHandler()
	s.statsHandler = NewStatsHandler(statsProvider)
	s.eventsHandler = NewEventsHandler(deps, s.logger)
	s.leaderboardHandler = NewLeaderboardHandler(deps, s.logger)
	s.sheetHandler = NewSheetHandler(deps, newSaveLimiter(s.saveRate, s.saveBurst), s.logger)
	s.auditHandler = NewAuditHandler(deps, s.logger)
	return s
}

// Register attaches all HTTP routes to mux.
func (s *Server) Register(_ context.Context, mux *http.ServeMux) {
	mux.HandleFunc("GET /healthz", MetricsMiddleware(s.healthHandler.HandleHealth, "healthz"))
	mux.HandleFunc("GET /stats", MetricsMiddleware(s.statsHandler.HandleStats, "stats"))

	mux.HandleFunc("GET /v1/events",
		MetricsMiddleware(s.authenticated(s.eventsHandler.HandleListEvents), "events"))
	mux.HandleFunc("GET /v1/events/{eventID}/leaderboard",
		MetricsMiddleware(s.authenticated(s.leaderboardHandler.HandleGetLeaderboard), "leaderboard"))
	mux.HandleFunc("GET /v1/events/{eventID}/leaderboard/export",
		MetricsMiddleware(s.authenticated(s.leaderboardHandler.HandleExport), "leaderboard_export"))
	mux.HandleFunc("GET /v1/events/{eventID}/sheet",
		MetricsMiddleware(s.authenticated(s.sheetHandler.HandleGetSheet), "sheet"))
	mux.HandleFunc("PUT /v1/events/{eventID}/evaluations/{participantID}",
		MetricsMiddleware(s.authenticated(s.sheetHandler.HandleSaveEvaluation), "evaluation"))
	mux.HandleFunc("GET /v1/audit",
		MetricsMiddleware(s.authenticated(s.auditHandler.HandleListAudit), "audit"))
}

type errorResponse struct {
	Code    string `json:"code"`
	Message string `json:"message"`
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json; charset=utf-8")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

// codeInternal marks failures without a kind. Their messages are not returned.
const codeInternal = "internal_error"

// writeError writes the error body. Store and save failures carry the wrapped
// message so the caller can show it.
func writeError(w http.ResponseWriter, status int, code string, err error) {
	msg := http.StatusText(status)
	if err != nil && code != codeInternal {
		msg = err.Error()
	}
	writeJSON(w, status, errorResponse{Code: code, Message: msg})
}

// statusClientClosedRequest is reported when the caller went away first.
const statusClientClosedRequest = 499

// failure maps err onto a status and code. unavailableCode names store
// failures and internalCode everything without a kind.
func failure(err error, unavailableCode, internalCode string) (int, string) {
	switch {
	case errors.Is(err, context.Canceled):
		return statusClientClosedRequest, "cancelled"
	case errors.Is(err, context.DeadlineExceeded):
		return http.StatusGatewayTimeout, "timeout"
	}

	switch errs.KindOf(err) {
	case errs.ErrUnauthenticated:
		return http.StatusUnauthorized, "unauthenticated"
	case errs.ErrForbidden:
		return http.StatusForbidden, "forbidden"
	case errs.ErrNotFound:
		return http.StatusNotFound, "not_found"
	case errs.ErrInvalid:
		return http.StatusBadRequest, "bad_request"
	case errs.ErrRateLimited:
		return http.StatusTooManyRequests, "rate_limited"
	case errs.ErrUnavailable:
		return http.StatusBadGateway, unavailableCode
	}
	return http.StatusInternalServerError, internalCode
}

// fail writes the response for err and logs server-side failures.
func fail(ctx context.Context, l logger.Logger, w http.ResponseWriter, op string, err error, unavailableCode, internalCode string) {
	status, code := failure(err, unavailableCode, internalCode)
	if status >= http.StatusInternalServerError {
		l.Error(ctx, "request failed",
			logger.String("op", op),
			logger.Int("status", status),
			logger.Error(err),
		)
	}
	writeError(w, status, code, err)
}

// authenticated verifies the bearer token, resolves the actor and attaches
// the user id and client address to the request context.
func (s *Server) authenticated(next func(http.ResponseWriter, *http.Request, policy.Actor)) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		const op = "api.authenticate"

		token, err := auth.BearerToken(r)
		if err != nil {
			writeError(w, http.StatusUnauthorized, "unauthenticated", errs.WrapKind(op, errs.ErrUnauthenticated, err))
			return
		}
		userID, err := s.verifier.Verify(token)
		if err != nil {
			writeError(w, http.StatusUnauthorized, "unauthenticated", errs.WrapKind(op, errs.ErrUnauthenticated, err))
			return
		}

		ctx := auth.WithUserID(r.Context(), userID)
		ctx = audit.WithClientIP(ctx, clientIP(r))

		actor, err := s.deps.Authenticate(ctx, userID)
		if err != nil {
			fail(ctx, s.logger, w, op, err, "store_unavailable", codeInternal)
			return
		}
		next(w, r.WithContext(ctx), actor)
	}
}
