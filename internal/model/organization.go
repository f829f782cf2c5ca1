package model

import (
	"time"

	"github.com/google/uuid"
)

// OrganizationType is a closed enumeration of tenant kinds. Every switch over
// it must be exhaustive so a new type fails loudly at each decision point.
type OrganizationType string

const (
	OrgTypePharmacy OrganizationType = "pharmacy"
	OrgTypeClinic   OrganizationType = "clinic"
	OrgTypeHospital OrganizationType = "hospital"
	OrgTypeAgedCare OrganizationType = "aged_care"
)

// Valid reports whether t is a known organization type.
func (t OrganizationType) Valid() bool {
	switch t {
	case OrgTypePharmacy, OrgTypeClinic, OrgTypeHospital, OrgTypeAgedCare:
		return true
	}
	return false
}

// Role is a closed enumeration of membership roles within an organization.
type Role string

const (
	RoleOwner  Role = "owner"
	RoleAdmin  Role = "admin"
	RoleMember Role = "member"
	RoleViewer Role = "viewer"
)

// Valid reports whether r is a known role.
func (r Role) Valid() bool {
	switch r {
	case RoleOwner, RoleAdmin, RoleMember, RoleViewer:
		return true
	}
	return false
}

// CanManageGrants reports whether the role may approve, deny or revoke
// access grants for the organization's patients.
func (r Role) CanManageGrants() bool {
	switch r {
	case RoleOwner, RoleAdmin:
		return true
	case RoleMember, RoleViewer:
		return false
	}
	// Unknown roles deny by default.
	return false
}

// Organization is the tenant boundary. Every patient belongs to exactly one
// organization.
type Organization struct {
	Base
	Name    string           `db:"name" json:"name"`
	Type    OrganizationType `db:"type" json:"type"`
	OwnerID uuid.UUID        `db:"owner_id" json:"owner_id"`
}

// Member links an authenticated user to an organization with a role. The
// engine consumes identities minted elsewhere; membership is the only
// identity data it owns.
type Member struct {
	UserID         uuid.UUID `db:"user_id" json:"user_id"`
	OrganizationID uuid.UUID `db:"organization_id" json:"organization_id"`
	Role           Role      `db:"role" json:"role"`
	Email          string    `db:"email" json:"email"`
	CreatedAt      time.Time `db:"created_at" json:"created_at"`
}

type CreateOrganizationRequest struct {
	Name  string `json:"name" binding:"required"`
	Type  string `json:"type" binding:"required,oneof=pharmacy clinic hospital aged_care"`
	Email string `json:"email" binding:"required,email"`
}

type AddMemberRequest struct {
	UserID string `json:"user_id" binding:"required,uuid"`
	Email  string `json:"email" binding:"required,email"`
	Role   string `json:"role" binding:"required,oneof=owner admin member viewer"`
}
