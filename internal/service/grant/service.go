// Package grant manages the access grant lifecycle: request, approve, deny,
// revoke. Transitions are one-directional and the storage layer enforces
// them with status-guarded updates, so a racing transition loses cleanly
// with InvalidState instead of clobbering state.
package grant

import (
	"context"
	"encoding/json"
	"time"

	"github.com/google/uuid"

	"github.com/hitpixel/pillflow-api/internal/model"
	"github.com/hitpixel/pillflow-api/internal/repository"
	"github.com/hitpixel/pillflow-api/internal/service/identity"
	apperrors "github.com/hitpixel/pillflow-api/pkg/errors"
	"github.com/hitpixel/pillflow-api/pkg/logger"
	"github.com/hitpixel/pillflow-api/pkg/metrics"
	"github.com/hitpixel/pillflow-api/pkg/token"
)

// Notifier delivers lifecycle notifications. Delivery is best-effort; a
// failed email never fails the transition that triggered it.
type Notifier interface {
	GrantRequested(ctx context.Context, patient *model.Patient, grant *model.TokenAccessGrant)
	GrantApproved(ctx context.Context, grant *model.TokenAccessGrant)
	GrantDenied(ctx context.Context, grant *model.TokenAccessGrant)
	GrantRevoked(ctx context.Context, grant *model.TokenAccessGrant)
}

type Service struct {
	grants   repository.GrantRepository
	patients repository.PatientRepository
	identity identity.Resolver
	outbox   repository.OutboxRepository
	notifier Notifier
	logger   *logger.Logger
	metrics  *metrics.Metrics
	nowFn    func() time.Time
}

func NewService(
	grants repository.GrantRepository,
	patients repository.PatientRepository,
	resolver identity.Resolver,
	outbox repository.OutboxRepository,
	notifier Notifier,
	log *logger.Logger,
	m *metrics.Metrics,
) *Service {
	return &Service{
		grants:   grants,
		patients: patients,
		identity: resolver,
		outbox:   outbox,
		notifier: notifier,
		logger:   log,
		metrics:  m,
		nowFn:    time.Now,
	}
}

// WithClock overrides the service clock for tests.
func (s *Service) WithClock(nowFn func() time.Time) *Service {
	s.nowFn = nowFn
	return s
}

// RequestAccess redeems a share token into a pending grant. Same-organization
// callers never need a grant, and callers who already hold a live one get
// Conflict; a repeated request while one is still pending returns the
// existing grant instead of creating a duplicate.
func (s *Service) RequestAccess(ctx context.Context, shareToken string, callerID uuid.UUID) (*model.TokenAccessGrant, error) {
	if !token.Valid(shareToken, token.PatientPrefix) {
		return nil, apperrors.BadRequest("malformed share token", nil)
	}

	patient, err := s.patients.GetByShareToken(ctx, shareToken)
	if err != nil {
		return nil, err
	}
	if !patient.Active {
		return nil, apperrors.NotFound("patient", nil)
	}

	member, err := s.identity.Resolve(ctx, callerID)
	if err != nil {
		return nil, err
	}

	if member.OrganizationID == patient.OrganizationID {
		return nil, apperrors.Conflict("access already granted: same organization", nil)
	}

	now := s.nowFn()
	if live, err := s.grants.GetLive(ctx, patient.ID, callerID, now); err == nil && live != nil {
		return nil, apperrors.Conflict("access already granted", nil)
	}

	if pending, err := s.grants.GetPending(ctx, patient.ID, callerID); err == nil && pending != nil {
		return pending, nil
	}

	grant := &model.TokenAccessGrant{
		Base:          model.Base{ID: uuid.New()},
		PatientID:     patient.ID,
		ShareToken:    shareToken,
		GranteeUserID: callerID,
		GranteeOrgID:  member.OrganizationID,
		Status:        model.GrantStatusPending,
		RequestedAt:   now,
		Active:        true,
	}

	if err := s.grants.Create(ctx, grant); err != nil {
		// Lost the race against an identical request; the winner's pending
		// grant is the one to hand back.
		if apperrors.HasCode(err, apperrors.ErrConflict) {
			if pending, perr := s.grants.GetPending(ctx, patient.ID, callerID); perr == nil {
				return pending, nil
			}
		}
		return nil, err
	}

	s.transitioned("requested")
	s.emit(ctx, model.EventGrantRequested, grant)
	if s.notifier != nil {
		s.notifier.GrantRequested(ctx, patient, grant)
	}

	return grant, nil
}

// ApproveAccess transitions a pending grant to approved, storing the
// permission set and optional expiry. Only owners and admins of the
// patient's owning organization may approve.
func (s *Service) ApproveAccess(ctx context.Context, grantID, approverID uuid.UUID, permissions model.PermissionList, expiresAt *time.Time) error {
	grant, err := s.grants.Get(ctx, grantID)
	if err != nil {
		return err
	}

	if err := s.authorizeTransition(ctx, grant, approverID); err != nil {
		return err
	}

	if len(permissions) == 0 {
		return apperrors.BadRequest("at least one permission is required", nil)
	}
	for _, p := range permissions {
		if !p.Valid() {
			return apperrors.BadRequest("unknown permission "+string(p), nil)
		}
	}

	now := s.nowFn()
	if expiresAt != nil && !expiresAt.After(now) {
		return apperrors.BadRequest("expiry must be in the future", nil)
	}

	if err := s.grants.Approve(ctx, grantID, approverID, permissions, expiresAt, now); err != nil {
		return err
	}

	// The newest approval is authoritative: any older live grant for the
	// same (patient, grantee) pair is revoked so at most one stays live.
	if err := s.grants.RevokeOtherLive(ctx, grant.PatientID, grant.GranteeUserID, grantID, approverID, now); err != nil {
		s.logError(err, "failed to revoke superseded grants", grantID)
	}

	s.transitioned("approved")
	grant.Status = model.GrantStatusApproved
	grant.ExpiresAt = expiresAt
	s.emit(ctx, model.EventGrantApproved, grant)
	if s.notifier != nil {
		s.notifier.GrantApproved(ctx, grant)
	}

	return nil
}

// DenyAccess transitions a pending grant to denied. Terminal.
func (s *Service) DenyAccess(ctx context.Context, grantID, denierID uuid.UUID) error {
	grant, err := s.grants.Get(ctx, grantID)
	if err != nil {
		return err
	}

	if err := s.authorizeTransition(ctx, grant, denierID); err != nil {
		return err
	}

	if err := s.grants.Deny(ctx, grantID, denierID, s.nowFn()); err != nil {
		return err
	}

	s.transitioned("denied")
	grant.Status = model.GrantStatusDenied
	s.emit(ctx, model.EventGrantDenied, grant)
	if s.notifier != nil {
		s.notifier.GrantDenied(ctx, grant)
	}

	return nil
}

// RevokeAccess transitions an approved grant to revoked. Terminal, and
// effective the instant the update commits: the next access decision reads
// the same rows this update wrote.
func (s *Service) RevokeAccess(ctx context.Context, grantID, revokerID uuid.UUID) error {
	grant, err := s.grants.Get(ctx, grantID)
	if err != nil {
		return err
	}

	if err := s.authorizeTransition(ctx, grant, revokerID); err != nil {
		return err
	}

	if err := s.grants.Revoke(ctx, grantID, revokerID, s.nowFn()); err != nil {
		return err
	}

	s.transitioned("revoked")
	grant.Status = model.GrantStatusRevoked
	s.emit(ctx, model.EventGrantRevoked, grant)
	if s.notifier != nil {
		s.notifier.GrantRevoked(ctx, grant)
	}

	return nil
}

// ListForPatient returns the grant history for one patient, visible only to
// members of the owning organization.
func (s *Service) ListForPatient(ctx context.Context, patientID, callerID uuid.UUID) ([]*model.TokenAccessGrant, error) {
	patient, err := s.patients.Get(ctx, patientID)
	if err != nil {
		return nil, err
	}

	member, err := s.identity.Resolve(ctx, callerID)
	if err != nil {
		return nil, err
	}
	if member.OrganizationID != patient.OrganizationID {
		return nil, apperrors.Forbidden("caller does not belong to the owning organization")
	}

	return s.grants.ListByPatient(ctx, patientID)
}

// ListForGrantee returns the caller's own grants across patients.
func (s *Service) ListForGrantee(ctx context.Context, callerID uuid.UUID) ([]*model.TokenAccessGrant, error) {
	if _, err := s.identity.Resolve(ctx, callerID); err != nil {
		return nil, err
	}
	return s.grants.ListByGrantee(ctx, callerID)
}

// authorizeTransition checks that the actor belongs to the patient's owning
// organization and holds a role allowed to manage grants.
func (s *Service) authorizeTransition(ctx context.Context, grant *model.TokenAccessGrant, actorID uuid.UUID) error {
	patient, err := s.patients.Get(ctx, grant.PatientID)
	if err != nil {
		return err
	}

	actor, err := s.identity.Resolve(ctx, actorID)
	if err != nil {
		return err
	}

	if actor.OrganizationID != patient.OrganizationID {
		return apperrors.Forbidden("caller does not belong to the owning organization")
	}
	if !actor.Role.CanManageGrants() {
		return apperrors.Forbidden("role may not manage access grants")
	}

	return nil
}

func (s *Service) emit(ctx context.Context, eventType string, grant *model.TokenAccessGrant) {
	if s.outbox == nil {
		return
	}
	payload, err := json.Marshal(grant)
	if err != nil {
		s.logError(err, "failed to marshal grant event", grant.ID)
		return
	}
	if err := s.outbox.Create(ctx, &model.OutboxEvent{EventType: eventType, Payload: payload}); err != nil {
		s.logError(err, "failed to write outbox event", grant.ID)
	}
}

func (s *Service) transitioned(kind string) {
	if s.metrics != nil {
		s.metrics.GrantTransitions.WithLabelValues(kind).Inc()
	}
}

func (s *Service) logError(err error, msg string, grantID uuid.UUID) {
	if s.logger != nil {
		s.logger.Error(err, msg, "grant_id", grantID.String())
	}
}
