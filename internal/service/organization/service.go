// Package organization manages tenants and their memberships.
package organization

import (
	"context"
	"time"

	"github.com/google/uuid"

	"github.com/hitpixel/pillflow-api/internal/model"
	"github.com/hitpixel/pillflow-api/internal/repository"
	apperrors "github.com/hitpixel/pillflow-api/pkg/errors"
)

type Service struct {
	orgs repository.OrganizationRepository
}

func NewService(orgs repository.OrganizationRepository) *Service {
	return &Service{orgs: orgs}
}

// Create registers a new organization with the caller as its owner. The
// owner membership is written in the same transaction as the organization
// so there is never a tenant without an owner.
func (s *Service) Create(ctx context.Context, callerID uuid.UUID, req *model.CreateOrganizationRequest) (*model.Organization, error) {
	orgType := model.OrganizationType(req.Type)
	if !orgType.Valid() {
		return nil, apperrors.BadRequest("unknown organization type "+req.Type, nil)
	}

	org := &model.Organization{
		Base:    model.Base{ID: uuid.New()},
		Name:    req.Name,
		Type:    orgType,
		OwnerID: callerID,
	}
	owner := &model.Member{
		UserID:         callerID,
		OrganizationID: org.ID,
		Role:           model.RoleOwner,
		Email:          req.Email,
		CreatedAt:      time.Now(),
	}

	if err := s.orgs.Create(ctx, org, owner); err != nil {
		return nil, err
	}
	return org, nil
}

func (s *Service) Get(ctx context.Context, id uuid.UUID) (*model.Organization, error) {
	return s.orgs.Get(ctx, id)
}

func (s *Service) List(ctx context.Context) ([]*model.Organization, error) {
	return s.orgs.List(ctx)
}

// AddMember adds a user to the caller's organization. Owners and admins
// only, and a user can belong to at most one organization.
func (s *Service) AddMember(ctx context.Context, callerID uuid.UUID, req *model.AddMemberRequest) (*model.Member, error) {
	caller, err := s.orgs.GetMember(ctx, callerID)
	if err != nil {
		return nil, err
	}
	if !caller.Role.CanManageGrants() {
		return nil, apperrors.Forbidden("role may not manage members")
	}

	userID, err := uuid.Parse(req.UserID)
	if err != nil {
		return nil, apperrors.BadRequest("invalid user id", err)
	}
	role := model.Role(req.Role)
	if !role.Valid() {
		return nil, apperrors.BadRequest("unknown role "+req.Role, nil)
	}

	member := &model.Member{
		UserID:         userID,
		OrganizationID: caller.OrganizationID,
		Role:           role,
		Email:          req.Email,
		CreatedAt:      time.Now(),
	}
	if err := s.orgs.AddMember(ctx, member); err != nil {
		return nil, err
	}
	return member, nil
}

// RemoveMember removes a user from the caller's organization. An owner
// cannot be removed; ownership transfer is out of scope.
func (s *Service) RemoveMember(ctx context.Context, callerID, userID uuid.UUID) error {
	caller, err := s.orgs.GetMember(ctx, callerID)
	if err != nil {
		return err
	}
	if !caller.Role.CanManageGrants() {
		return apperrors.Forbidden("role may not manage members")
	}

	target, err := s.orgs.GetMember(ctx, userID)
	if err != nil {
		return err
	}
	if target.OrganizationID != caller.OrganizationID {
		return apperrors.NotFound("member", nil)
	}
	if target.Role == model.RoleOwner {
		return apperrors.Forbidden("the owner cannot be removed")
	}

	return s.orgs.RemoveMember(ctx, caller.OrganizationID, userID)
}

// GetMember returns a user's membership.
func (s *Service) GetMember(ctx context.Context, userID uuid.UUID) (*model.Member, error) {
	return s.orgs.GetMember(ctx, userID)
}
