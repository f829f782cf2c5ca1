package repository

import (
	"context"
	"time"

	"github.com/google/uuid"

	"github.com/hitpixel/pillflow-api/internal/model"
)

// All repository interfaces in one file
type (
	OrganizationRepository interface {
		Create(ctx context.Context, org *model.Organization, owner *model.Member) error
		Get(ctx context.Context, id uuid.UUID) (*model.Organization, error)
		List(ctx context.Context) ([]*model.Organization, error)
		AddMember(ctx context.Context, member *model.Member) error
		RemoveMember(ctx context.Context, orgID, userID uuid.UUID) error
		GetMember(ctx context.Context, userID uuid.UUID) (*model.Member, error)
		ListAdmins(ctx context.Context, orgID uuid.UUID) ([]*model.Member, error)
	}

	PatientRepository interface {
		Create(ctx context.Context, patient *model.Patient) error
		Get(ctx context.Context, id uuid.UUID) (*model.Patient, error)
		GetByShareToken(ctx context.Context, shareToken string) (*model.Patient, error)
		Update(ctx context.Context, patient *model.Patient) error
		Deactivate(ctx context.Context, id uuid.UUID) error
		List(ctx context.Context, orgID uuid.UUID) ([]*model.Patient, error)
	}

	// GrantRepository owns all writes to token access grants. Status guards
	// live in the UPDATE statements so an illegal transition can never win a
	// race: the row is matched by (id, expected status) and zero affected
	// rows means the grant moved on.
	GrantRepository interface {
		Create(ctx context.Context, grant *model.TokenAccessGrant) error
		Get(ctx context.Context, id uuid.UUID) (*model.TokenAccessGrant, error)
		// GetLive returns the live grant for the pair, applying the
		// liveness predicate (approved, active, unexpired) at the given
		// instant. Always reads committed state, never a cache.
		GetLive(ctx context.Context, patientID, userID uuid.UUID, now time.Time) (*model.TokenAccessGrant, error)
		GetPending(ctx context.Context, patientID, userID uuid.UUID) (*model.TokenAccessGrant, error)
		Approve(ctx context.Context, id, approverID uuid.UUID, permissions model.PermissionList, expiresAt *time.Time, now time.Time) error
		Deny(ctx context.Context, id, denierID uuid.UUID, now time.Time) error
		Revoke(ctx context.Context, id, revokerID uuid.UUID, now time.Time) error
		// RevokeOtherLive revokes every approved grant for the pair except
		// keepID, making the newest approval authoritative.
		RevokeOtherLive(ctx context.Context, patientID, userID, keepID, revokerID uuid.UUID, now time.Time) error
		ListByPatient(ctx context.Context, patientID uuid.UUID) ([]*model.TokenAccessGrant, error)
		ListByGrantee(ctx context.Context, userID uuid.UUID) ([]*model.TokenAccessGrant, error)
	}

	PartnershipRepository interface {
		Create(ctx context.Context, p *model.OrganizationPartnership) error
		Get(ctx context.Context, id uuid.UUID) (*model.OrganizationPartnership, error)
		GetByToken(ctx context.Context, token string) (*model.OrganizationPartnership, error)
		Accept(ctx context.Context, id, partnerOrgID, acceptedBy uuid.UUID, now time.Time) error
		MarkExpired(ctx context.Context, id uuid.UUID) error
		// ExpirePending sweeps every pending partnership whose window has
		// closed. Expiry is still enforced lazily on read; the sweep only
		// keeps stored statuses honest.
		ExpirePending(ctx context.Context, now time.Time) (int64, error)
		ListByOrganization(ctx context.Context, orgID uuid.UUID) ([]*model.OrganizationPartnership, error)
	}

	// AccessLogRepository is append-only: there is deliberately no update or
	// delete operation.
	AccessLogRepository interface {
		Create(ctx context.Context, entry *model.ShareTokenAccessLog) error
		ListByPatient(ctx context.Context, patientID uuid.UUID, p model.Pagination) ([]*model.ShareTokenAccessLog, int64, error)
		ListByAccessor(ctx context.Context, userID uuid.UUID, p model.Pagination) ([]*model.ShareTokenAccessLog, int64, error)
	}

	OutboxRepository interface {
		Create(ctx context.Context, event *model.OutboxEvent) error
		GetPendingEventsWithLock(ctx context.Context, limit int) ([]*model.OutboxEvent, error)
		UpdateStatus(ctx context.Context, id uuid.UUID, status model.OutboxStatus, errorMessage *string) error
	}
)
