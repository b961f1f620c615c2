// Package policy decides what an authenticated actor may do with an event.
package policy

import (
	"context"
	"errors"

	"github.com/okian/stark/internal/domain/model"
	"github.com/okian/stark/pkg/errs"
	"github.com/okian/stark/pkg/metrics"
)

// Capability is an action guarded by the policy.
type Capability int

// Capabilities.
const (
	CapListEvents Capability = iota
	CapViewResults
	CapJudge
	CapReadAudit
)

func (c Capability) String() string {
	switch c {
	case CapListEvents:
		return "list_events"
	case CapViewResults:
		return "view_results"
	case CapJudge:
		return "judge"
	case CapReadAudit:
		return "read_audit"
	}
	return "unknown"
}

// Denial reasons.
const (
	ReasonNotOwner        = "event belongs to another company"
	ReasonRole            = "role may not perform this action"
	ReasonNotJudge        = "actor is not a judge"
	ReasonNotApproved     = "jury membership is not approved"
	ReasonNotAssigned     = "judge is not assigned to this event"
	ReasonNoEvent         = "event is required"
	ReasonUnauthenticated = "actor is not authenticated"
)

// Actor is the authenticated caller.
type Actor struct {
	UserID   string
	Role     model.Role
	SubRole  model.SubRole
	Approval model.ApprovalStatus
}

// ActorFromProfile builds an Actor, normalising role spelling.
func ActorFromProfile(p model.Profile) Actor {
	return Actor{
		UserID:   p.ID,
		Role:     model.ParseRole(string(p.Role)),
		SubRole:  model.ParseSubRole(string(p.SubRole)),
		Approval: p.ApprovalStatus,
	}
}

// IsJudge reports whether the actor acts as a judge: the judge role, or an
// approved individual jury member.
func (a Actor) IsJudge() bool {
	if a.Role == model.RoleJudge {
		return true
	}
	return a.Role == model.RoleIndividual && a.SubRole == model.SubRoleJury && a.Approval == model.ApprovalApproved
}

// Decision is the outcome of a check.
type Decision struct {
	Allowed bool
	Reason  string
}

// Allow grants the request.
func Allow() Decision { return Decision{Allowed: true} }

// Deny refuses the request for reason.
func Deny(reason string) Decision { return Decision{Reason: reason} }

// Err converts a denial into an ErrForbidden error tagged with op; nil when allowed.
func (d Decision) Err(op string) error {
	if d.Allowed {
		return nil
	}
	return errs.WrapKind(op, errs.ErrForbidden, errors.New(d.Reason))
}

// AssignmentChecker answers whether a judge sits on an event's panel.
type AssignmentChecker interface {
	IsAssigned(ctx context.Context, eventID, judgeID string) (bool, error)
}

// Policy evaluates capabilities.
type Policy struct {
	assignments AssignmentChecker
}

// New creates a Policy that consults assignments for judging rights.
func New(assignments AssignmentChecker) *Policy {
	return &Policy{assignments: assignments}
}

// Check decides whether actor may exercise capability on event. The event
// may be nil for CapListEvents and CapReadAudit. An error is returned only
// when the assignment lookup fails.
func (p *Policy) Check(ctx context.Context, actor Actor, capability Capability, event *model.Event) (Decision, error) {
	d, err := p.check(ctx, actor, capability, event)
	if err == nil && !d.Allowed {
		metrics.RecordPolicyDenial(capability.String())
	}
	return d, err
}

func (p *Policy) check(ctx context.Context, actor Actor, capability Capability, event *model.Event) (Decision, error) {
	if actor.UserID == "" {
		return Deny(ReasonUnauthenticated), nil
	}

	switch capability {
	case CapListEvents, CapReadAudit:
		return Allow(), nil

	case CapViewResults:
		if event == nil {
			return Deny(ReasonNoEvent), nil
		}
		switch actor.Role {
		case model.RoleAdmin:
			return Allow(), nil
		case model.RoleITCompany:
			if event.CompanyID == actor.UserID {
				return Allow(), nil
			}
			return Deny(ReasonNotOwner), nil
		}
		return Deny(ReasonRole), nil

	case CapJudge:
		if event == nil {
			return Deny(ReasonNoEvent), nil
		}
		if !actor.IsJudge() {
			if actor.Role == model.RoleIndividual && actor.SubRole == model.SubRoleJury {
				return Deny(ReasonNotApproved), nil
			}
			return Deny(ReasonNotJudge), nil
		}
		ok, err := p.assignments.IsAssigned(ctx, event.ID, actor.UserID)
		if err != nil {
			return Decision{}, errs.WrapKind("policy.check", errs.ErrUnavailable, err)
		}
		if !ok {
			return Deny(ReasonNotAssigned), nil
		}
		return Allow(), nil
	}

	return Deny(ReasonRole), nil
}

// EventScope says which events ListEvents shows an actor.
type EventScope int

// Scopes.
const (
	ScopeNone EventScope = iota
	ScopeAll
	ScopeOwned
	ScopeAssigned
)

// ListScope returns the event scope for actor.
func ListScope(actor Actor) EventScope {
	switch {
	case actor.Role == model.RoleAdmin:
		return ScopeAll
	case actor.Role == model.RoleITCompany:
		return ScopeOwned
	case actor.IsJudge():
		return ScopeAssigned
	}
	return ScopeNone
}
