package model

import (
	"time"

	"github.com/google/uuid"
)

// PartnershipType classifies the organization-to-organization relationship.
type PartnershipType string

const (
	PartnershipTypeDataSharing     PartnershipType = "data_sharing"
	PartnershipTypeReferralNetwork PartnershipType = "referral_network"
	PartnershipTypeMerger          PartnershipType = "merger"
)

// Valid reports whether t is a known partnership type.
func (t PartnershipType) Valid() bool {
	switch t {
	case PartnershipTypeDataSharing, PartnershipTypeReferralNetwork, PartnershipTypeMerger:
		return true
	}
	return false
}

type PartnershipStatus string

const (
	PartnershipStatusPending  PartnershipStatus = "pending"
	PartnershipStatusAccepted PartnershipStatus = "accepted"
	PartnershipStatusRejected PartnershipStatus = "rejected"
	PartnershipStatusExpired  PartnershipStatus = "expired"
)

// OrganizationPartnership is a coarse trust record between two organizations,
// established by sharing its token out of band. It never grants patient-level
// access by itself; that always requires an explicit TokenAccessGrant.
type OrganizationPartnership struct {
	Base
	InitiatorOrgID uuid.UUID         `db:"initiator_org_id" json:"initiator_org_id"`
	PartnerOrgID   *uuid.UUID        `db:"partner_org_id" json:"partner_org_id,omitempty"`
	Token          string            `db:"token" json:"token"`
	Type           PartnershipType   `db:"type" json:"type"`
	Status         PartnershipStatus `db:"status" json:"status"`
	Notes          string            `db:"notes" json:"notes,omitempty"`
	ExpiresAt      time.Time         `db:"expires_at" json:"expires_at"`
	CreatedBy      uuid.UUID         `db:"created_by" json:"created_by"`
	AcceptedBy     *uuid.UUID        `db:"accepted_by" json:"accepted_by,omitempty"`
	AcceptedAt     *time.Time        `db:"accepted_at" json:"accepted_at,omitempty"`
}

// IsExpired reports whether the acceptance window has closed. Like grant
// expiry this is evaluated on read; the stored status may lag behind.
func (p *OrganizationPartnership) IsExpired(now time.Time) bool {
	return !p.ExpiresAt.After(now)
}

type CreatePartnershipRequest struct {
	Type  string `json:"type" binding:"required,oneof=data_sharing referral_network merger"`
	Notes string `json:"notes"`
}

type AcceptPartnershipRequest struct {
	Token string `json:"token" binding:"required,sharetoken"`
}
