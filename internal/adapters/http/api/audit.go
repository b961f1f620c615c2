package api

import (
	"context"
	"net/http"
	"strconv"

	"github.com/okian/stark/internal/domain/audit"
	"github.com/okian/stark/internal/domain/policy"
	"github.com/okian/stark/pkg/errs"
	"github.com/okian/stark/pkg/logger"
)

// AuditDependencies defines the interface for reading the caller's audit trail.
type AuditDependencies interface {
	AuditLog(ctx context.Context, actor policy.Actor, limit int) ([]audit.Entry, error)
}

// AuditHandler handles audit trail requests.
type AuditHandler struct {
	deps   AuditDependencies
	logger logger.Logger
}

// NewAuditHandler creates a new audit handler.
func NewAuditHandler(deps AuditDependencies, l logger.Logger) *AuditHandler {
	return &AuditHandler{deps: deps, logger: l}
}

type auditResponse struct {
	Entries []audit.Entry `json:"entries"`
}

// HandleListAudit handles GET /v1/audit?limit=N. Without a limit the default
// page size applies; the service caps larger values.
func (h *AuditHandler) HandleListAudit(w http.ResponseWriter, r *http.Request, actor policy.Actor) {
	const op = "api.list_audit"

	limit := 0
	if raw := r.URL.Query().Get("limit"); raw != "" {
		n, err := strconv.Atoi(raw)
		if err != nil || n < 1 {
			writeError(w, http.StatusBadRequest, "bad_request", errs.WrapKind(op, errs.ErrInvalid, ErrBadRequest))
			return
		}
		limit = n
	}

	entries, err := h.deps.AuditLog(r.Context(), actor, limit)
	if err != nil {
		fail(r.Context(), h.logger, w, op, err, "store_unavailable", codeInternal)
		return
	}
	writeJSON(w, http.StatusOK, auditResponse{Entries: entries})
}
