package partnership

import (
	"context"
	"strings"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/hitpixel/pillflow-api/internal/model"
	"github.com/hitpixel/pillflow-api/internal/repository/memory"
	"github.com/hitpixel/pillflow-api/internal/service/identity"
	apperrors "github.com/hitpixel/pillflow-api/pkg/errors"
)

type fixture struct {
	store  *memory.Store
	outbox *memory.OutboxRepository
	svc    *Service

	initiatorID uuid.UUID
	viewerID    uuid.UUID
	partnerID   uuid.UUID
	now         time.Time
}

func newFixture(t *testing.T) *fixture {
	t.Helper()
	ctx := context.Background()
	store := memory.NewStore()

	f := &fixture{
		store:       store,
		outbox:      store.Outbox(),
		initiatorID: uuid.New(),
		viewerID:    uuid.New(),
		partnerID:   uuid.New(),
		now:         time.Date(2025, 6, 1, 8, 0, 0, 0, time.UTC),
	}

	initiatorOrg := &model.Organization{Base: model.Base{ID: uuid.New()}, Name: "Westbrook Hospital", Type: model.OrgTypeHospital, OwnerID: f.initiatorID}
	require.NoError(t, store.Organizations().Create(ctx, initiatorOrg, &model.Member{
		UserID: f.initiatorID, OrganizationID: initiatorOrg.ID, Role: model.RoleOwner, Email: "owner@westbrook.example",
	}))
	require.NoError(t, store.Organizations().AddMember(ctx, &model.Member{
		UserID: f.viewerID, OrganizationID: initiatorOrg.ID, Role: model.RoleViewer, Email: "viewer@westbrook.example",
	}))

	partnerOrg := &model.Organization{Base: model.Base{ID: uuid.New()}, Name: "Eastgate Pharmacy", Type: model.OrgTypePharmacy, OwnerID: f.partnerID}
	require.NoError(t, store.Organizations().Create(ctx, partnerOrg, &model.Member{
		UserID: f.partnerID, OrganizationID: partnerOrg.ID, Role: model.RoleOwner, Email: "owner@eastgate.example",
	}))

	resolver := identity.NewService(store.Organizations())
	f.svc = NewService(store.Partnerships(), resolver, f.outbox, nil).
		WithClock(func() time.Time { return f.now })

	return f
}

func TestPropose(t *testing.T) {
	f := newFixture(t)

	p, err := f.svc.Propose(context.Background(), f.initiatorID, model.PartnershipTypeDataSharing, "quarterly medication sync")
	require.NoError(t, err)

	assert.True(t, strings.HasPrefix(p.Token, "PRT-"))
	assert.Equal(t, model.PartnershipStatusPending, p.Status)
	assert.Equal(t, f.now.Add(TokenTTL), p.ExpiresAt, "invite token lives for thirty days")
	assert.Equal(t, f.initiatorID, p.CreatedBy)
	assert.Nil(t, p.PartnerOrgID)
}

func TestProposeRoleGating(t *testing.T) {
	f := newFixture(t)

	_, err := f.svc.Propose(context.Background(), f.viewerID, model.PartnershipTypeDataSharing, "")
	require.Error(t, err)
	assert.True(t, apperrors.HasCode(err, apperrors.ErrForbidden))
}

func TestProposeUnknownType(t *testing.T) {
	f := newFixture(t)

	_, err := f.svc.Propose(context.Background(), f.initiatorID, model.PartnershipType("franchise"), "")
	require.Error(t, err)
	assert.True(t, apperrors.HasCode(err, apperrors.ErrBadRequest))
}

func TestAccept(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	p, err := f.svc.Propose(ctx, f.initiatorID, model.PartnershipTypeReferralNetwork, "")
	require.NoError(t, err)

	accepted, err := f.svc.Accept(ctx, p.Token, f.partnerID)
	require.NoError(t, err)

	assert.Equal(t, model.PartnershipStatusAccepted, accepted.Status)
	require.NotNil(t, accepted.PartnerOrgID)
	require.NotNil(t, accepted.AcceptedBy)
	assert.Equal(t, f.partnerID, *accepted.AcceptedBy)
	assert.Equal(t, f.now, *accepted.AcceptedAt)

	events := f.outbox.Events()
	require.Len(t, events, 1)
	assert.Equal(t, model.EventPartnershipAccepted, events[0].EventType)
}

func TestAcceptOwnProposalRejected(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	p, err := f.svc.Propose(ctx, f.initiatorID, model.PartnershipTypeDataSharing, "")
	require.NoError(t, err)

	_, err = f.svc.Accept(ctx, p.Token, f.initiatorID)
	require.Error(t, err)
	assert.True(t, apperrors.HasCode(err, apperrors.ErrBadRequest))
}

func TestAcceptExpiredToken(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	p, err := f.svc.Propose(ctx, f.initiatorID, model.PartnershipTypeDataSharing, "")
	require.NoError(t, err)

	f.now = f.now.Add(TokenTTL + time.Hour)
	_, err = f.svc.Accept(ctx, p.Token, f.partnerID)
	require.Error(t, err)
	assert.True(t, apperrors.HasCode(err, apperrors.ErrExpired))

	stored, err := f.store.Partnerships().Get(ctx, p.ID)
	require.NoError(t, err)
	assert.Equal(t, model.PartnershipStatusExpired, stored.Status, "expired token flips the stored status on redemption")
}

func TestAcceptTwice(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	p, err := f.svc.Propose(ctx, f.initiatorID, model.PartnershipTypeDataSharing, "")
	require.NoError(t, err)

	_, err = f.svc.Accept(ctx, p.Token, f.partnerID)
	require.NoError(t, err)

	_, err = f.svc.Accept(ctx, p.Token, f.partnerID)
	require.Error(t, err)
	assert.True(t, apperrors.HasCode(err, apperrors.ErrInvalidState))
}

func TestAcceptRoleGating(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	p, err := f.svc.Propose(ctx, f.initiatorID, model.PartnershipTypeDataSharing, "")
	require.NoError(t, err)

	_, err = f.svc.Accept(ctx, p.Token, f.viewerID)
	require.Error(t, err)
	assert.True(t, apperrors.HasCode(err, apperrors.ErrForbidden))
}

func TestAcceptMalformedToken(t *testing.T) {
	f := newFixture(t)

	_, err := f.svc.Accept(context.Background(), "PAT-AAAA-BBBB-CCCC", f.partnerID)
	require.Error(t, err)
	assert.True(t, apperrors.HasCode(err, apperrors.ErrBadRequest))
}

func TestGetVisibility(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	p, err := f.svc.Propose(ctx, f.initiatorID, model.PartnershipTypeDataSharing, "")
	require.NoError(t, err)

	// Visible to the initiator, hidden from outsiders until they accept.
	_, err = f.svc.Get(ctx, p.ID, f.initiatorID)
	require.NoError(t, err)

	_, err = f.svc.Get(ctx, p.ID, f.partnerID)
	require.Error(t, err)
	assert.True(t, apperrors.HasCode(err, apperrors.ErrNotFound))

	_, err = f.svc.Accept(ctx, p.Token, f.partnerID)
	require.NoError(t, err)

	_, err = f.svc.Get(ctx, p.ID, f.partnerID)
	require.NoError(t, err)
}

func TestListCoversBothSides(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	p, err := f.svc.Propose(ctx, f.initiatorID, model.PartnershipTypeDataSharing, "")
	require.NoError(t, err)
	_, err = f.svc.Accept(ctx, p.Token, f.partnerID)
	require.NoError(t, err)

	mine, err := f.svc.List(ctx, f.initiatorID)
	require.NoError(t, err)
	assert.Len(t, mine, 1)

	theirs, err := f.svc.List(ctx, f.partnerID)
	require.NoError(t, err)
	assert.Len(t, theirs, 1)
}

func TestExpirePendingSweep(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	stale, err := f.svc.Propose(ctx, f.initiatorID, model.PartnershipTypeDataSharing, "")
	require.NoError(t, err)
	accepted, err := f.svc.Propose(ctx, f.initiatorID, model.PartnershipTypeReferralNetwork, "")
	require.NoError(t, err)
	_, err = f.svc.Accept(ctx, accepted.Token, f.partnerID)
	require.NoError(t, err)

	n, err := f.store.Partnerships().ExpirePending(ctx, f.now.Add(TokenTTL+time.Minute))
	require.NoError(t, err)
	assert.EqualValues(t, 1, n, "only pending proposals past their window are swept")

	stored, err := f.store.Partnerships().Get(ctx, stale.ID)
	require.NoError(t, err)
	assert.Equal(t, model.PartnershipStatusExpired, stored.Status)
}
