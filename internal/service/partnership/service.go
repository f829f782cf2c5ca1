// Package partnership manages organization partnerships. A partnership is
// proposed with an invite token that the partner organization redeems; the
// token stays valid for a fixed window and the proposal expires with it.
package partnership

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
	"github.com/hitpixel/pillflow-api/pkg/token"
)

// TokenTTL is how long a partnership invite token stays redeemable.
const TokenTTL = 30 * 24 * time.Hour

const maxTokenAttempts = 5

type Service struct {
	partnerships repository.PartnershipRepository
	identity     identity.Resolver
	outbox       repository.OutboxRepository
	tokens       *token.Generator
	logger       *logger.Logger
	nowFn        func() time.Time
}

func NewService(
	partnerships repository.PartnershipRepository,
	resolver identity.Resolver,
	outbox repository.OutboxRepository,
	log *logger.Logger,
) *Service {
	return &Service{
		partnerships: partnerships,
		identity:     resolver,
		outbox:       outbox,
		tokens:       token.NewGenerator(token.PartnershipPrefix),
		logger:       log,
		nowFn:        time.Now,
	}
}

// WithClock overrides the service clock for tests.
func (s *Service) WithClock(nowFn func() time.Time) *Service {
	s.nowFn = nowFn
	return s
}

// Propose creates a pending partnership owned by the caller's organization
// and mints its invite token. Only owners and admins may propose.
func (s *Service) Propose(ctx context.Context, callerID uuid.UUID, partnershipType model.PartnershipType, notes string) (*model.OrganizationPartnership, error) {
	if !partnershipType.Valid() {
		return nil, apperrors.BadRequest("unknown partnership type "+string(partnershipType), nil)
	}

	member, err := s.identity.Resolve(ctx, callerID)
	if err != nil {
		return nil, err
	}
	if !member.Role.CanManageGrants() {
		return nil, apperrors.Forbidden("role may not manage partnerships")
	}

	now := s.nowFn()
	expires := now.Add(TokenTTL)

	for attempt := 0; attempt < maxTokenAttempts; attempt++ {
		inviteToken, err := s.tokens.Generate()
		if err != nil {
			return nil, apperrors.Internal(err)
		}

		p := &model.OrganizationPartnership{
			Base:           model.Base{ID: uuid.New()},
			InitiatorOrgID: member.OrganizationID,
			Type:           partnershipType,
			Status:         model.PartnershipStatusPending,
			Token:          inviteToken,
			Notes:          notes,
			ExpiresAt:      expires,
			CreatedBy:      callerID,
		}

		err = s.partnerships.Create(ctx, p)
		if err == nil {
			return p, nil
		}
		if !apperrors.HasCode(err, apperrors.ErrConflict) {
			return nil, err
		}
	}

	return nil, apperrors.Internal(nil)
}

// Accept redeems an invite token on behalf of the caller's organization.
// The initiator cannot accept its own proposal, and an expired token is
// rejected and the row marked expired on the spot.
func (s *Service) Accept(ctx context.Context, inviteToken string, callerID uuid.UUID) (*model.OrganizationPartnership, error) {
	if !token.Valid(inviteToken, token.PartnershipPrefix) {
		return nil, apperrors.BadRequest("malformed partnership token", nil)
	}

	member, err := s.identity.Resolve(ctx, callerID)
	if err != nil {
		return nil, err
	}
	if !member.Role.CanManageGrants() {
		return nil, apperrors.Forbidden("role may not manage partnerships")
	}

	p, err := s.partnerships.GetByToken(ctx, inviteToken)
	if err != nil {
		return nil, err
	}

	now := s.nowFn()
	if p.IsExpired(now) {
		if err := s.partnerships.MarkExpired(ctx, p.ID); err != nil {
			s.logWarn(err, "failed to mark partnership expired", p.ID)
		}
		return nil, apperrors.Expired("partnership token")
	}

	if p.InitiatorOrgID == member.OrganizationID {
		return nil, apperrors.BadRequest("cannot accept a partnership proposed by your own organization", nil)
	}

	if err := s.partnerships.Accept(ctx, p.ID, member.OrganizationID, callerID, now); err != nil {
		return nil, err
	}

	p.Status = model.PartnershipStatusAccepted
	p.PartnerOrgID = &member.OrganizationID
	p.AcceptedBy = &callerID
	p.AcceptedAt = &now

	if s.outbox != nil {
		if payload, err := json.Marshal(p); err == nil {
			if err := s.outbox.Create(ctx, &model.OutboxEvent{EventType: model.EventPartnershipAccepted, Payload: payload}); err != nil {
				s.logWarn(err, "failed to write outbox event", p.ID)
			}
		}
	}
	return p, nil
}

// Get returns a partnership visible to members of either side.
func (s *Service) Get(ctx context.Context, id, callerID uuid.UUID) (*model.OrganizationPartnership, error) {
	member, err := s.identity.Resolve(ctx, callerID)
	if err != nil {
		return nil, err
	}

	p, err := s.partnerships.Get(ctx, id)
	if err != nil {
		return nil, err
	}

	if p.InitiatorOrgID != member.OrganizationID &&
		(p.PartnerOrgID == nil || *p.PartnerOrgID != member.OrganizationID) {
		return nil, apperrors.NotFound("partnership", nil)
	}
	return p, nil
}

// List returns all partnerships the caller's organization participates in,
// on either side.
func (s *Service) List(ctx context.Context, callerID uuid.UUID) ([]*model.OrganizationPartnership, error) {
	member, err := s.identity.Resolve(ctx, callerID)
	if err != nil {
		return nil, err
	}
	return s.partnerships.ListByOrganization(ctx, member.OrganizationID)
}

func (s *Service) logWarn(err error, msg string, id uuid.UUID) {
	if s.logger != nil {
		s.logger.Warn(msg, "error", err.Error(), "partnership_id", id.String())
	}
}
