package model

import (
	"time"

	"github.com/google/uuid"
)

// Patient is a care recipient's record. The share token is generated once at
// creation and never changes; deactivation is a soft delete so grants and
// audit rows keep a valid reference.
type Patient struct {
	Base
	OrganizationID uuid.UUID  `db:"organization_id" json:"organization_id"`
	FirstName      string     `db:"first_name" json:"first_name"`
	LastName       string     `db:"last_name" json:"last_name"`
	DateOfBirth    *time.Time `db:"date_of_birth" json:"date_of_birth,omitempty"`
	ShareToken     string     `db:"share_token" json:"share_token"`
	Active         bool       `db:"active" json:"active"`
}

type CreatePatientRequest struct {
	FirstName   string     `json:"first_name" binding:"required"`
	LastName    string     `json:"last_name" binding:"required"`
	DateOfBirth *time.Time `json:"date_of_birth"`
}

// PatientView is what a caller sees after passing the access check. For
// cross-organization callers the permission set narrows what the UI may
// render; same-organization callers always get the full set.
type PatientView struct {
	Patient     *Patient       `json:"patient"`
	AccessType  AccessType     `json:"access_type"`
	Permissions PermissionList `json:"permissions"`
}
