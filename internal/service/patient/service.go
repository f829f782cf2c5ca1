// Package patient owns patient records and the share tokens minted for them.
// Reads go through the access decision first; token-based reads additionally
// append an audit row before any data leaves the service.
package patient

import (
	"context"
	"time"

	"github.com/google/uuid"

	"github.com/hitpixel/pillflow-api/internal/model"
	"github.com/hitpixel/pillflow-api/internal/repository"
	"github.com/hitpixel/pillflow-api/internal/service/access"
	"github.com/hitpixel/pillflow-api/internal/service/audit"
	"github.com/hitpixel/pillflow-api/internal/service/identity"
	apperrors "github.com/hitpixel/pillflow-api/pkg/errors"
	"github.com/hitpixel/pillflow-api/pkg/metrics"
	"github.com/hitpixel/pillflow-api/pkg/token"
)

const maxTokenAttempts = 5

type Service struct {
	patients repository.PatientRepository
	access   *access.Service
	audit    *audit.Service
	identity identity.Resolver
	tokens   *token.Generator
	metrics  *metrics.Metrics
	nowFn    func() time.Time
}

func NewService(
	patients repository.PatientRepository,
	accessSvc *access.Service,
	auditSvc *audit.Service,
	resolver identity.Resolver,
	m *metrics.Metrics,
) *Service {
	return &Service{
		patients: patients,
		access:   accessSvc,
		audit:    auditSvc,
		identity: resolver,
		tokens:   token.NewGenerator(token.PatientPrefix),
		metrics:  m,
		nowFn:    time.Now,
	}
}

// WithClock overrides the service clock for tests.
func (s *Service) WithClock(nowFn func() time.Time) *Service {
	s.nowFn = nowFn
	return s
}

// Create registers a patient under the caller's organization and mints the
// share token. Token collisions are vanishingly rare but handled: the insert
// is retried with a fresh token until the unique index accepts it.
func (s *Service) Create(ctx context.Context, callerID uuid.UUID, req *model.CreatePatientRequest) (*model.Patient, error) {
	member, err := s.identity.Resolve(ctx, callerID)
	if err != nil {
		return nil, err
	}

	for attempt := 0; attempt < maxTokenAttempts; attempt++ {
		shareToken, err := s.tokens.Generate()
		if err != nil {
			return nil, apperrors.Internal(err)
		}

		patient := &model.Patient{
			Base:           model.Base{ID: uuid.New()},
			OrganizationID: member.OrganizationID,
			FirstName:      req.FirstName,
			LastName:       req.LastName,
			DateOfBirth:    req.DateOfBirth,
			ShareToken:     shareToken,
			Active:         true,
		}

		err = s.patients.Create(ctx, patient)
		if err == nil {
			return patient, nil
		}
		if !apperrors.HasCode(err, apperrors.ErrConflict) {
			return nil, err
		}
		if s.metrics != nil {
			s.metrics.TokenCollisions.Inc()
		}
	}

	return nil, apperrors.Internal(nil)
}

// Get returns the patient through the access decision. Same-organization
// callers get full permissions; cross-organization callers need a live grant
// and see only the granted permission set.
func (s *Service) Get(ctx context.Context, patientID, callerID uuid.UUID) (*model.PatientView, error) {
	decision, err := s.access.Decide(ctx, patientID, callerID)
	if err != nil {
		return nil, err
	}

	patient, err := s.patients.Get(ctx, patientID)
	if err != nil {
		return nil, err
	}

	return &model.PatientView{
		Patient:     patient,
		AccessType:  decision.AccessType,
		Permissions: decision.Permissions,
	}, nil
}

// GetByShareToken resolves a share token to the patient it names, gated by
// the same access decision as an ID lookup. Every successful resolution is
// audited before the record is returned; if the audit append fails the read
// fails with it. Same-organization resolutions are logged too, tagged as
// such, so the trail shows every token use regardless of who made it.
func (s *Service) GetByShareToken(ctx context.Context, shareToken string, callerID uuid.UUID) (*model.PatientView, error) {
	if !token.Valid(shareToken, token.PatientPrefix) {
		return nil, apperrors.BadRequest("malformed share token", nil)
	}

	patient, err := s.patients.GetByShareToken(ctx, shareToken)
	if err != nil {
		return nil, err
	}

	decision, err := s.access.Decide(ctx, patient.ID, callerID)
	if err != nil {
		return nil, err
	}

	member, err := s.identity.Resolve(ctx, callerID)
	if err != nil {
		return nil, err
	}

	if err := s.audit.Record(ctx, patient, member, decision.AccessType); err != nil {
		return nil, err
	}

	return &model.PatientView{
		Patient:     patient,
		AccessType:  decision.AccessType,
		Permissions: decision.Permissions,
	}, nil
}

// Update modifies demographic fields. Only members of the owning
// organization may update; the share token and organization are immutable.
func (s *Service) Update(ctx context.Context, patientID, callerID uuid.UUID, req *model.CreatePatientRequest) (*model.Patient, error) {
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

	patient.FirstName = req.FirstName
	patient.LastName = req.LastName
	patient.DateOfBirth = req.DateOfBirth

	if err := s.patients.Update(ctx, patient); err != nil {
		return nil, err
	}
	return patient, nil
}

// Deactivate soft-deletes the patient. The share token stops resolving and
// cross-organization access is cut off, but existing grants keep their
// status so the history stays intact. Owners and admins only.
func (s *Service) Deactivate(ctx context.Context, patientID, callerID uuid.UUID) error {
	patient, err := s.patients.Get(ctx, patientID)
	if err != nil {
		return err
	}

	member, err := s.identity.Resolve(ctx, callerID)
	if err != nil {
		return err
	}
	if member.OrganizationID != patient.OrganizationID {
		return apperrors.Forbidden("caller does not belong to the owning organization")
	}
	if !member.Role.CanManageGrants() {
		return apperrors.Forbidden("role may not deactivate patients")
	}

	return s.patients.Deactivate(ctx, patientID)
}

// List returns the caller's organization's own patients. Cross-organization
// listing does not exist; grants are always per patient.
func (s *Service) List(ctx context.Context, callerID uuid.UUID) ([]*model.Patient, error) {
	member, err := s.identity.Resolve(ctx, callerID)
	if err != nil {
		return nil, err
	}
	return s.patients.List(ctx, member.OrganizationID)
}
