// Package audit records share token access events. The log is append-only
// and a compliance requirement: a failed write aborts the access that
// triggered it rather than being swallowed.
package audit

import (
	"context"
	"fmt"

	"github.com/google/uuid"

	"github.com/hitpixel/pillflow-api/internal/model"
	"github.com/hitpixel/pillflow-api/internal/repository"
	"github.com/hitpixel/pillflow-api/internal/service/identity"
	apperrors "github.com/hitpixel/pillflow-api/pkg/errors"
	"github.com/hitpixel/pillflow-api/pkg/metrics"
)

type Service struct {
	repo     repository.AccessLogRepository
	patients repository.PatientRepository
	identity identity.Resolver
	metrics  *metrics.Metrics
}

func NewService(
	repo repository.AccessLogRepository,
	patients repository.PatientRepository,
	resolver identity.Resolver,
	m *metrics.Metrics,
) *Service {
	return &Service{repo: repo, patients: patients, identity: resolver, metrics: m}
}

// Record appends exactly one row for an access-via-token event. It is
// deliberately synchronous: callers must propagate a returned error and fail
// the access (fail-closed), never log-and-continue.
func (s *Service) Record(ctx context.Context, patient *model.Patient, accessor *model.Member, accessType model.AccessType) error {
	entry := &model.ShareTokenAccessLog{
		ID:             uuid.New(),
		PatientID:      patient.ID,
		UserID:         accessor.UserID,
		OrganizationID: accessor.OrganizationID,
		OwnerOrgID:     patient.OrganizationID,
		ShareToken:     patient.ShareToken,
		AccessType:     accessType,
	}

	if err := s.repo.Create(ctx, entry); err != nil {
		if s.metrics != nil {
			s.metrics.AuditFailures.Inc()
		}
		return fmt.Errorf("failed to record access: %w", err)
	}

	if s.metrics != nil {
		s.metrics.AuditAppends.Inc()
	}
	return nil
}

// ListForPatient returns the audit trail for one patient. The trail names
// accessors from other tenants, so it is visible only to grant-manager roles
// of the owning organization; callers from any other organization get
// Forbidden before a single row, or even a count, is read.
func (s *Service) ListForPatient(ctx context.Context, patientID, callerID uuid.UUID, p model.Pagination) ([]*model.ShareTokenAccessLog, int64, error) {
	patient, err := s.patients.Get(ctx, patientID)
	if err != nil {
		return nil, 0, err
	}

	member, err := s.identity.Resolve(ctx, callerID)
	if err != nil {
		return nil, 0, err
	}
	if member.OrganizationID != patient.OrganizationID {
		return nil, 0, apperrors.Forbidden("caller does not belong to the owning organization")
	}
	if !member.Role.CanManageGrants() {
		return nil, 0, apperrors.Forbidden("role may not view access logs")
	}

	return s.repo.ListByPatient(ctx, patientID, p)
}

// ListForAccessor returns the caller's own access history across patients.
func (s *Service) ListForAccessor(ctx context.Context, userID uuid.UUID, p model.Pagination) ([]*model.ShareTokenAccessLog, int64, error) {
	return s.repo.ListByAccessor(ctx, userID, p)
}
