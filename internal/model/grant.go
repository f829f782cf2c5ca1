package model

import (
	"time"

	"github.com/google/uuid"
	"github.com/lib/pq"
)

// GrantStatus is the lifecycle state of a token access grant. Transitions are
// one-directional: pending->approved, pending->denied, approved->revoked.
// Denied and revoked are terminal.
type GrantStatus string

const (
	GrantStatusPending  GrantStatus = "pending"
	GrantStatusApproved GrantStatus = "approved"
	GrantStatusDenied   GrantStatus = "denied"
	GrantStatusRevoked  GrantStatus = "revoked"
)

// Permission scopes what a cross-organization grantee may do with a patient
// record. Same-organization members are never permission-scoped.
type Permission string

const (
	PermissionView            Permission = "view"
	PermissionComment         Permission = "comment"
	PermissionViewMedications Permission = "view_medications"
)

// Valid reports whether p is a known permission.
func (p Permission) Valid() bool {
	switch p {
	case PermissionView, PermissionComment, PermissionViewMedications:
		return true
	}
	return false
}

// PermissionList is stored as a postgres text[] column.
type PermissionList []Permission

// Strings returns the list as plain strings for pq.Array binding.
func (l PermissionList) Strings() []string {
	out := make([]string, len(l))
	for i, p := range l {
		out[i] = string(p)
	}
	return out
}

// FullPermissions is what same-organization members implicitly hold.
func FullPermissions() PermissionList {
	return PermissionList{PermissionView, PermissionComment, PermissionViewMedications}
}

// TokenAccessGrant is one user's standing permission to access one patient
// record across organization boundaries.
type TokenAccessGrant struct {
	Base
	PatientID      uuid.UUID      `db:"patient_id" json:"patient_id"`
	ShareToken     string         `db:"share_token" json:"share_token"`
	GranteeUserID  uuid.UUID      `db:"grantee_user_id" json:"grantee_user_id"`
	GranteeOrgID   uuid.UUID      `db:"grantee_org_id" json:"grantee_org_id"`
	GrantedBy      *uuid.UUID     `db:"granted_by" json:"granted_by,omitempty"`
	Status         GrantStatus    `db:"status" json:"status"`
	RawPermissions pq.StringArray `db:"permissions" json:"-"`
	ExpiresAt      *time.Time     `db:"expires_at" json:"expires_at,omitempty"`
	RequestedAt    time.Time      `db:"requested_at" json:"requested_at"`
	GrantedAt      *time.Time     `db:"granted_at" json:"granted_at,omitempty"`
	DeniedAt       *time.Time     `db:"denied_at" json:"denied_at,omitempty"`
	DeniedBy       *uuid.UUID     `db:"denied_by" json:"denied_by,omitempty"`
	RevokedAt      *time.Time     `db:"revoked_at" json:"revoked_at,omitempty"`
	RevokedBy      *uuid.UUID     `db:"revoked_by" json:"revoked_by,omitempty"`
	Active         bool           `db:"active" json:"active"`
}

// Permissions returns the stored permission set as typed values.
func (g *TokenAccessGrant) Permissions() PermissionList {
	out := make(PermissionList, len(g.RawPermissions))
	for i, s := range g.RawPermissions {
		out[i] = Permission(s)
	}
	return out
}

// IsLive reports whether the grant confers access at the given instant.
// Expiry is evaluated lazily here, never via a background sweep, so status
// alone must never be trusted.
func (g *TokenAccessGrant) IsLive(now time.Time) bool {
	if g.Status != GrantStatusApproved || !g.Active {
		return false
	}
	if g.ExpiresAt != nil && !g.ExpiresAt.After(now) {
		return false
	}
	return true
}

type RequestAccessRequest struct {
	ShareToken string `json:"share_token" binding:"required,sharetoken"`
}

type ApproveAccessRequest struct {
	Permissions []string   `json:"permissions" binding:"required,min=1,dive,oneof=view comment view_medications"`
	ExpiresAt   *time.Time `json:"expires_at"`
}
