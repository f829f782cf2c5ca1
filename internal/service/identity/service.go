// Package identity resolves an authenticated caller to an organization
// membership. Authentication itself happens upstream; by the time a user ID
// reaches this service it has already been verified.
package identity

import (
	"context"
	"fmt"

	"github.com/google/uuid"

	"github.com/hitpixel/pillflow-api/internal/model"
	"github.com/hitpixel/pillflow-api/internal/repository"
)

// Resolver maps an authenticated user to their organization and role.
type Resolver interface {
	Resolve(ctx context.Context, userID uuid.UUID) (*model.Member, error)
}

type Service struct {
	orgs repository.OrganizationRepository
}

func NewService(orgs repository.OrganizationRepository) *Service {
	return &Service{orgs: orgs}
}

// Resolve returns the caller's membership. A user without one cannot touch
// patient data at all, so the repository's Unauthorized error passes through
// untouched.
func (s *Service) Resolve(ctx context.Context, userID uuid.UUID) (*model.Member, error) {
	member, err := s.orgs.GetMember(ctx, userID)
	if err != nil {
		return nil, fmt.Errorf("failed to resolve membership: %w", err)
	}
	return member, nil
}
