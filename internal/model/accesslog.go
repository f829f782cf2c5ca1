package model

import (
	"time"

	"github.com/google/uuid"
)

// AccessType classifies how a caller reached a patient record.
type AccessType string

const (
	AccessTypeSameOrganization  AccessType = "same_organization"
	AccessTypeCrossOrganization AccessType = "cross_organization"
)

// ShareTokenAccessLog is one append-only audit row per access-via-token
// event. Rows are never updated or deleted.
type ShareTokenAccessLog struct {
	ID             uuid.UUID  `db:"id" json:"id"`
	PatientID      uuid.UUID  `db:"patient_id" json:"patient_id"`
	UserID         uuid.UUID  `db:"user_id" json:"user_id"`
	OrganizationID uuid.UUID  `db:"organization_id" json:"organization_id"`
	OwnerOrgID     uuid.UUID  `db:"owner_org_id" json:"owner_org_id"`
	ShareToken     string     `db:"share_token" json:"share_token"`
	AccessType     AccessType `db:"access_type" json:"access_type"`
	CreatedAt      time.Time  `db:"created_at" json:"created_at"`
}

// AccessLogFilter narrows audit queries; point lookups are indexed by
// patient and by accessor so the ledger stays queryable as it grows.
type AccessLogFilter struct {
	PatientID uuid.UUID `form:"patient_id"`
	UserID    uuid.UUID `form:"user_id"`
	StartDate time.Time `form:"start_date"`
	EndDate   time.Time `form:"end_date"`
	Pagination
}
