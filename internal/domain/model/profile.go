// Package model contains domain models passed between layers.
package model

import "strings"

// Role is the platform role of a profile.
type Role string

// Known roles.
const (
	RoleAdmin      Role = "admin"
	RoleStartup    Role = "startup"
	RoleInvestor   Role = "investor"
	RoleITCompany  Role = "it_company"
	RoleIndividual Role = "individual"
	RoleJudge      Role = "judge"
)

// SubRole refines the individual role.
type SubRole string

// Known sub-roles.
const (
	SubRoleMentor SubRole = "mentor"
	SubRoleJury   SubRole = "jury"
)

// ApprovalStatus tracks moderation of a profile.
type ApprovalStatus string

// Approval states.
const (
	ApprovalPending  ApprovalStatus = "pending"
	ApprovalApproved ApprovalStatus = "approved"
	ApprovalRejected ApprovalStatus = "rejected"
)

// Display-name placeholders for missing or blank names.
const (
	PlaceholderParticipant = "Startup"
	PlaceholderJudge       = "Judge"
)

// Profile is a platform identity: a participant, a judge, a sponsor company or an admin.
type Profile struct {
	ID             string         `json:"id" yaml:"id"`
	Role           Role           `json:"role" yaml:"role"`
	SubRole        SubRole        `json:"sub_role,omitempty" yaml:"sub_role,omitempty"`
	FullName       string         `json:"full_name" yaml:"full_name"`
	AvatarURL      *string        `json:"avatar_url,omitempty" yaml:"avatar_url,omitempty"`
	Website        *string        `json:"website,omitempty" yaml:"website,omitempty"`
	ApprovalStatus ApprovalStatus `json:"approval_status" yaml:"approval_status"`
}

// ParseRole lower-cases s and replaces dashes with underscores, so "it-company"
// and "IT_Company" both read as RoleITCompany.
func ParseRole(s string) Role {
	return Role(normalize(s))
}

// ParseSubRole applies the same normalisation as ParseRole.
func ParseSubRole(s string) SubRole {
	return SubRole(normalize(s))
}

func normalize(s string) string {
	return strings.ReplaceAll(strings.ToLower(strings.TrimSpace(s)), "-", "_")
}

// DisplayName returns the trimmed full name of p, or placeholder when p is nil
// or its name is blank.
func DisplayName(p *Profile, placeholder string) string {
	if p == nil {
		return placeholder
	}
	if name := strings.TrimSpace(p.FullName); name != "" {
		return name
	}
	return placeholder
}
