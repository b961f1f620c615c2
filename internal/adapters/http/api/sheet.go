package api

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"net/http"

	"github.com/okian/stark/internal/domain/judging"
	"github.com/okian/stark/internal/domain/model"
	"github.com/okian/stark/internal/domain/policy"
	"github.com/okian/stark/internal/domain/ranking"
	"github.com/okian/stark/internal/domain/scoring"
	"github.com/okian/stark/pkg/errs"
	"github.com/okian/stark/pkg/logger"
	"github.com/okian/stark/pkg/metrics"
)

// maxEvaluationBody bounds the PUT body.
const maxEvaluationBody = 4 << 10

// SheetDependencies defines the interface for the judge's sheet.
type SheetDependencies interface {
	Sheet(ctx context.Context, actor policy.Actor, eventID string) (model.Event, *judging.Sheet, error)
	JudgeBoard(ctx context.Context, actor policy.Actor, eventID string) (model.Event, ranking.Board, error)
	SaveEvaluation(ctx context.Context, actor policy.Actor, eventID, participantID string, scores model.Scores) (judging.Row, error)
}

// SheetHandler handles judge sheet reads and evaluation saves.
type SheetHandler struct {
	deps    SheetDependencies
	limiter *saveLimiter
	logger  logger.Logger
}

// NewSheetHandler creates a new sheet handler.
func NewSheetHandler(deps SheetDependencies, limiter *saveLimiter, l logger.Logger) *SheetHandler {
	return &SheetHandler{deps: deps, limiter: limiter, logger: l}
}

type rowResponse struct {
	ParticipantID string   `json:"participant_id"`
	Name          string   `json:"name"`
	EvaluationID  string   `json:"evaluation_id,omitempty"`
	Teamwork      *float64 `json:"teamwork"`
	Idea          *float64 `json:"idea"`
	Execution     *float64 `json:"execution"`
	Business      *float64 `json:"business"`
	Average       float64  `json:"average"`
	Best          bool     `json:"best"`
	Rank          int      `json:"rank,omitempty"`
	Voted         bool     `json:"voted"`
}

type sheetResponse struct {
	Event          model.Event   `json:"event"`
	Rows           []rowResponse `json:"rows"`
	OverallAverage float64       `json:"overall_average"`
	AssignedJudges int           `json:"assigned_judges"`
}

func toRow(r judging.Row, best bool) rowResponse {
	return rowResponse{
		ParticipantID: r.ParticipantID,
		Name:          r.Name,
		EvaluationID:  r.EvaluationID,
		Teamwork:      r.Scores.Teamwork,
		Idea:          r.Scores.Idea,
		Execution:     r.Scores.Execution,
		Business:      r.Scores.Business,
		Average:       r.Average(),
		Best:          best,
		Voted:         scoring.HasVoted(r.Scores),
	}
}

// HandleGetSheet handles GET /v1/events/{eventID}/sheet.
func (h *SheetHandler) HandleGetSheet(w http.ResponseWriter, r *http.Request, actor policy.Actor) {
	const op = "api.get_sheet"

	ev, sheet, err := h.deps.Sheet(r.Context(), actor, r.PathValue("eventID"))
	if err != nil {
		fail(r.Context(), h.logger, w, op, err, "store_unavailable", codeInternal)
		return
	}

	_, board, err := h.deps.JudgeBoard(r.Context(), actor, ev.ID)
	if err != nil {
		fail(r.Context(), h.logger, w, op, err, "store_unavailable", codeInternal)
		return
	}
	ranks := make(map[string]int, len(board.Results))
	for _, res := range board.Results {
		ranks[res.ParticipantID] = res.Rank
	}

	bestID, hasBest := sheet.Best()
	rows := sheet.Rows()
	out := sheetResponse{
		Event:          ev,
		Rows:           make([]rowResponse, len(rows)),
		OverallAverage: sheet.OverallAverage(),
		AssignedJudges: board.AssignedJudges,
	}
	for i, row := range rows {
		out.Rows[i] = toRow(row, hasBest && row.ParticipantID == bestID)
		out.Rows[i].Rank = ranks[row.ParticipantID]
	}
	writeJSON(w, http.StatusOK, out)
}

// evaluationRequest is the PUT body plus its path parameters. A missing
// sub-score key reads as null.
type evaluationRequest struct {
	EventID       string   `json:"-" validate:"required,max=128"`
	ParticipantID string   `json:"-" validate:"required,max=128"`
	Teamwork      *float64 `json:"teamwork"`
	Idea          *float64 `json:"idea"`
	Execution     *float64 `json:"execution"`
	Business      *float64 `json:"business"`
}

func (e evaluationRequest) scores() model.Scores {
	return model.Scores{Teamwork: e.Teamwork, Idea: e.Idea, Execution: e.Execution, Business: e.Business}
}

// HandleSaveEvaluation handles PUT /v1/events/{eventID}/evaluations/{participantID}.
func (h *SheetHandler) HandleSaveEvaluation(w http.ResponseWriter, r *http.Request, actor policy.Actor) {
	const op = "api.save_evaluation"

	if !h.limiter.Allow(actor.UserID) {
		metrics.RecordSaveRateLimited()
		writeError(w, http.StatusTooManyRequests, "rate_limited", errs.WrapKind(op, errs.ErrRateLimited, ErrRateLimited))
		return
	}

	var req evaluationRequest
	dec := json.NewDecoder(http.MaxBytesReader(w, r.Body, maxEvaluationBody))
	dec.DisallowUnknownFields()
	if err := dec.Decode(&req); err != nil && !errors.Is(err, io.EOF) {
		writeError(w, http.StatusBadRequest, "bad_request", errs.WrapKind(op, errs.ErrInvalid, err))
		return
	}
	if err := dec.Decode(&struct{}{}); !errors.Is(err, io.EOF) {
		writeError(w, http.StatusBadRequest, "bad_request", errs.WrapKind(op, errs.ErrInvalid, ErrTrailingBody))
		return
	}
	req.EventID = r.PathValue("eventID")
	req.ParticipantID = r.PathValue("participantID")
	if err := validate.Struct(req); err != nil {
		writeError(w, http.StatusBadRequest, "bad_request", errs.WrapKind(op, errs.ErrInvalid, err))
		return
	}

	row, err := h.deps.SaveEvaluation(r.Context(), actor, req.EventID, req.ParticipantID, req.scores())
	if err != nil {
		fail(r.Context(), h.logger, w, op, err, "store_unavailable", "save_failed")
		return
	}
	writeJSON(w, http.StatusOK, toRow(row, false))
}
