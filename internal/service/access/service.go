// Package access implements the access decision predicate. Every read or
// mutation that touches patient data is gated here; no caller may
// special-case around it.
package access

import (
	"context"
	"time"

	"github.com/google/uuid"
	"github.com/prometheus/client_golang/prometheus"

	"github.com/hitpixel/pillflow-api/internal/model"
	"github.com/hitpixel/pillflow-api/internal/repository"
	"github.com/hitpixel/pillflow-api/internal/service/identity"
	apperrors "github.com/hitpixel/pillflow-api/pkg/errors"
	"github.com/hitpixel/pillflow-api/pkg/metrics"
)

type Service struct {
	patients repository.PatientRepository
	grants   repository.GrantRepository
	identity identity.Resolver
	metrics  *metrics.Metrics
	nowFn    func() time.Time
}

func NewService(patients repository.PatientRepository, grants repository.GrantRepository, resolver identity.Resolver, m *metrics.Metrics) *Service {
	return &Service{
		patients: patients,
		grants:   grants,
		identity: resolver,
		metrics:  m,
		nowFn:    time.Now,
	}
}

// WithClock overrides the service clock. Tests use it to move past grant
// expiries without sleeping.
func (s *Service) WithClock(nowFn func() time.Time) *Service {
	s.nowFn = nowFn
	return s
}

// Decide evaluates whether the caller may access the patient record. On
// denial the returned decision has Allowed=false and the error carries the
// reason (NotFound, Unauthorized or Forbidden). The grant read always hits
// committed storage, so a revoke that has committed is visible to the very
// next call.
func (s *Service) Decide(ctx context.Context, patientID, callerID uuid.UUID) (*model.AccessDecision, error) {
	if s.metrics != nil {
		timer := prometheus.NewTimer(s.metrics.DecisionLatency)
		defer timer.ObserveDuration()
	}

	patient, err := s.patients.Get(ctx, patientID)
	if err != nil {
		return s.deny("", err)
	}
	if !patient.Active {
		return s.deny("", apperrors.NotFound("patient", nil))
	}

	member, err := s.identity.Resolve(ctx, callerID)
	if err != nil {
		return s.deny("", err)
	}

	// Members of the owning organization have unrestricted access to their
	// own patients; no grant is consulted.
	if member.OrganizationID == patient.OrganizationID {
		return s.allow(&model.AccessDecision{
			Allowed:     true,
			AccessType:  model.AccessTypeSameOrganization,
			Permissions: model.FullPermissions(),
		})
	}

	grant, err := s.grants.GetLive(ctx, patientID, callerID, s.nowFn())
	if err != nil {
		if apperrors.HasCode(err, apperrors.ErrNotFound) {
			return s.deny(string(model.AccessTypeCrossOrganization), apperrors.Forbidden("access denied"))
		}
		return s.deny(string(model.AccessTypeCrossOrganization), err)
	}

	// Permissions are exactly the grant's set, never broader.
	return s.allow(&model.AccessDecision{
		Allowed:     true,
		AccessType:  model.AccessTypeCrossOrganization,
		Permissions: grant.Permissions(),
	})
}

func (s *Service) allow(d *model.AccessDecision) (*model.AccessDecision, error) {
	if s.metrics != nil {
		s.metrics.AccessDecisions.WithLabelValues("allow", string(d.AccessType)).Inc()
	}
	return d, nil
}

func (s *Service) deny(accessType string, err error) (*model.AccessDecision, error) {
	if s.metrics != nil {
		s.metrics.AccessDecisions.WithLabelValues("deny", accessType).Inc()
	}
	return model.Deny(), err
}
