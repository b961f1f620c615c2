package api

import (
	"context"
	"net/http"
	"strconv"

	"github.com/okian/stark/internal/domain/export"
	"github.com/okian/stark/internal/domain/model"
	"github.com/okian/stark/internal/domain/policy"
	"github.com/okian/stark/internal/domain/ranking"
	"github.com/okian/stark/pkg/logger"
)

// LeaderboardDependencies defines the interface for the sponsor results view.
type LeaderboardDependencies interface {
	Leaderboard(ctx context.Context, actor policy.Actor, eventID string) (model.Event, ranking.Board, error)
	Export(ctx context.Context, actor policy.Actor, eventID string) (string, []byte, error)
}

// LeaderboardHandler handles leaderboard and export requests.
type LeaderboardHandler struct {
	deps   LeaderboardDependencies
	logger logger.Logger
}

// NewLeaderboardHandler creates a new leaderboard handler.
func NewLeaderboardHandler(deps LeaderboardDependencies, l logger.Logger) *LeaderboardHandler {
	return &LeaderboardHandler{deps: deps, logger: l}
}

type leaderboardResponse struct {
	Event          model.Event      `json:"event"`
	AssignedJudges int              `json:"assigned_judges"`
	Podium         []ranking.Result `json:"podium"`
	Rest           []ranking.Result `json:"rest"`
	Results        []ranking.Result `json:"results"`
}

// HandleGetLeaderboard handles GET /v1/events/{eventID}/leaderboard.
func (h *LeaderboardHandler) HandleGetLeaderboard(w http.ResponseWriter, r *http.Request, actor policy.Actor) {
	const op = "api.get_leaderboard"

	ev, board, err := h.deps.Leaderboard(r.Context(), actor, r.PathValue("eventID"))
	if err != nil {
		fail(r.Context(), h.logger, w, op, err, "leaderboard_unavailable", codeInternal)
		return
	}
	if board.Results == nil {
		board.Results = []ranking.Result{}
	}
	writeJSON(w, http.StatusOK, leaderboardResponse{
		Event:          ev,
		AssignedJudges: board.AssignedJudges,
		Podium:         board.Podium(),
		Rest:           board.Rest(),
		Results:        board.Results,
	})
}

// HandleExport handles GET /v1/events/{eventID}/leaderboard/export.
func (h *LeaderboardHandler) HandleExport(w http.ResponseWriter, r *http.Request, actor policy.Actor) {
	const op = "api.export_leaderboard"

	filename, body, err := h.deps.Export(r.Context(), actor, r.PathValue("eventID"))
	if err != nil {
		fail(r.Context(), h.logger, w, op, err, "leaderboard_unavailable", codeInternal)
		return
	}
	w.Header().Set("Content-Type", export.ContentType)
	w.Header().Set("Content-Disposition", `attachment; filename="`+filename+`"`)
	w.Header().Set("Content-Length", strconv.Itoa(len(body)))
	w.WriteHeader(http.StatusOK)
	_, _ = w.Write(body)
}
