// Package audit defines the entries written to the audit trail.
package audit

import (
	"context"
	"time"

	"github.com/google/uuid"
)

// Action names a recorded user action.
type Action string

// Recorded actions.
const (
	ActionEvaluationSaved Action = "evaluation.saved"
	ActionResultsViewed   Action = "results.viewed"
	ActionResultsExported Action = "results.exported"
)

// Listing limits for a user's trail.
const (
	DefaultLimit = 50
	MaxLimit     = 200
)

// Entry is one audit record.
type Entry struct {
	ID        string         `json:"id"`
	UserID    string         `json:"user_id"`
	Action    Action         `json:"action"`
	Details   map[string]any `json:"details,omitempty"`
	IPAddress string         `json:"ip_address,omitempty"`
	CreatedAt time.Time      `json:"created_at"`
}

// NewEntry stamps a fresh id and the current time. The client address is
// taken from ctx when the transport attached one.
func NewEntry(ctx context.Context, userID string, action Action, details map[string]any) Entry {
	return Entry{
		ID:        uuid.NewString(),
		UserID:    userID,
		Action:    action,
		Details:   details,
		IPAddress: ClientIP(ctx),
		CreatedAt: time.Now().UTC(),
	}
}

// ClampLimit applies the default and the ceiling to a requested list size.
func ClampLimit(limit, ceiling int) int {
	if ceiling <= 0 || ceiling > MaxLimit {
		ceiling = MaxLimit
	}
	if limit <= 0 {
		limit = DefaultLimit
	}
	return min(limit, ceiling)
}

type ipKey struct{}

// WithClientIP attaches the caller's address to ctx.
func WithClientIP(ctx context.Context, ip string) context.Context {
	return context.WithValue(ctx, ipKey{}, ip)
}

// ClientIP returns the address attached by WithClientIP, or "".
func ClientIP(ctx context.Context) string {
	ip, _ := ctx.Value(ipKey{}).(string)
	return ip
}
