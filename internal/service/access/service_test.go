package access

import (
	"context"
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
	store   *memory.Store
	svc     *Service
	ownerID uuid.UUID
	otherID uuid.UUID
	patient *model.Patient
	now     time.Time
}

func newFixture(t *testing.T) *fixture {
	t.Helper()
	ctx := context.Background()
	store := memory.NewStore()

	f := &fixture{
		store:   store,
		ownerID: uuid.New(),
		otherID: uuid.New(),
		now:     time.Date(2025, 6, 1, 12, 0, 0, 0, time.UTC),
	}

	owningOrg := &model.Organization{Base: model.Base{ID: uuid.New()}, Name: "Riverside Pharmacy", Type: model.OrgTypePharmacy, OwnerID: f.ownerID}
	require.NoError(t, store.Organizations().Create(ctx, owningOrg, &model.Member{
		UserID: f.ownerID, OrganizationID: owningOrg.ID, Role: model.RoleOwner, Email: "owner@riverside.example",
	}))

	otherOrg := &model.Organization{Base: model.Base{ID: uuid.New()}, Name: "Hilltop Clinic", Type: model.OrgTypeClinic, OwnerID: f.otherID}
	require.NoError(t, store.Organizations().Create(ctx, otherOrg, &model.Member{
		UserID: f.otherID, OrganizationID: otherOrg.ID, Role: model.RoleOwner, Email: "owner@hilltop.example",
	}))

	f.patient = &model.Patient{
		Base:           model.Base{ID: uuid.New()},
		OrganizationID: owningOrg.ID,
		FirstName:      "June",
		LastName:       "Carter",
		ShareToken:     "PAT-AAAA-BBBB-CCCC",
		Active:         true,
	}
	require.NoError(t, store.Patients().Create(ctx, f.patient))

	resolver := identity.NewService(store.Organizations())
	f.svc = NewService(store.Patients(), store.Grants(), resolver, nil).
		WithClock(func() time.Time { return f.now })

	return f
}

func (f *fixture) approveGrant(t *testing.T, userID uuid.UUID, perms model.PermissionList, expiresAt *time.Time) *model.TokenAccessGrant {
	t.Helper()
	ctx := context.Background()
	member, err := f.store.Organizations().GetMember(ctx, userID)
	require.NoError(t, err)

	grant := &model.TokenAccessGrant{
		Base:          model.Base{ID: uuid.New()},
		PatientID:     f.patient.ID,
		ShareToken:    f.patient.ShareToken,
		GranteeUserID: userID,
		GranteeOrgID:  member.OrganizationID,
		Status:        model.GrantStatusPending,
		RequestedAt:   f.now,
		Active:        true,
	}
	require.NoError(t, f.store.Grants().Create(ctx, grant))
	require.NoError(t, f.store.Grants().Approve(ctx, grant.ID, f.ownerID, perms, expiresAt, f.now))
	return grant
}

func TestDecideSameOrganization(t *testing.T) {
	f := newFixture(t)

	decision, err := f.svc.Decide(context.Background(), f.patient.ID, f.ownerID)
	require.NoError(t, err)

	assert.True(t, decision.Allowed)
	assert.Equal(t, model.AccessTypeSameOrganization, decision.AccessType)
	assert.Equal(t, model.FullPermissions(), decision.Permissions)
}

func TestDecideCrossOrganizationWithoutGrant(t *testing.T) {
	f := newFixture(t)

	decision, err := f.svc.Decide(context.Background(), f.patient.ID, f.otherID)
	require.Error(t, err)
	assert.True(t, apperrors.HasCode(err, apperrors.ErrForbidden))
	assert.False(t, decision.Allowed)
	assert.Empty(t, decision.Permissions)
}

func TestDecideCrossOrganizationWithGrant(t *testing.T) {
	f := newFixture(t)
	f.approveGrant(t, f.otherID, model.PermissionList{model.PermissionView, model.PermissionComment}, nil)

	decision, err := f.svc.Decide(context.Background(), f.patient.ID, f.otherID)
	require.NoError(t, err)

	assert.True(t, decision.Allowed)
	assert.Equal(t, model.AccessTypeCrossOrganization, decision.AccessType)
	assert.ElementsMatch(t, model.PermissionList{model.PermissionView, model.PermissionComment}, decision.Permissions)
	// The granted set is authoritative, never widened to the full set.
	assert.NotContains(t, decision.Permissions, model.PermissionViewMedications)
}

func TestDecideExpiredGrant(t *testing.T) {
	f := newFixture(t)
	expires := f.now.Add(7 * 24 * time.Hour)
	f.approveGrant(t, f.otherID, model.PermissionList{model.PermissionView}, &expires)

	_, err := f.svc.Decide(context.Background(), f.patient.ID, f.otherID)
	require.NoError(t, err, "grant should be live before expiry")

	f.now = expires.Add(time.Second)
	decision, err := f.svc.Decide(context.Background(), f.patient.ID, f.otherID)
	require.Error(t, err)
	assert.True(t, apperrors.HasCode(err, apperrors.ErrForbidden))
	assert.False(t, decision.Allowed)
}

func TestDecideRevokedGrantDeniesImmediately(t *testing.T) {
	f := newFixture(t)
	grant := f.approveGrant(t, f.otherID, model.PermissionList{model.PermissionView}, nil)

	_, err := f.svc.Decide(context.Background(), f.patient.ID, f.otherID)
	require.NoError(t, err)

	require.NoError(t, f.store.Grants().Revoke(context.Background(), grant.ID, f.ownerID, f.now))

	decision, err := f.svc.Decide(context.Background(), f.patient.ID, f.otherID)
	require.Error(t, err)
	assert.True(t, apperrors.HasCode(err, apperrors.ErrForbidden))
	assert.False(t, decision.Allowed)
}

func TestDecideInactivePatient(t *testing.T) {
	f := newFixture(t)
	require.NoError(t, f.store.Patients().Deactivate(context.Background(), f.patient.ID))

	_, err := f.svc.Decide(context.Background(), f.patient.ID, f.ownerID)
	require.Error(t, err)
	assert.True(t, apperrors.HasCode(err, apperrors.ErrNotFound))
}

func TestDecideUnknownCaller(t *testing.T) {
	f := newFixture(t)

	decision, err := f.svc.Decide(context.Background(), f.patient.ID, uuid.New())
	require.Error(t, err)
	assert.True(t, apperrors.HasCode(err, apperrors.ErrUnauthorized))
	assert.False(t, decision.Allowed)
}

func TestDecideUnknownPatient(t *testing.T) {
	f := newFixture(t)

	_, err := f.svc.Decide(context.Background(), uuid.New(), f.ownerID)
	require.Error(t, err)
	assert.True(t, apperrors.HasCode(err, apperrors.ErrNotFound))
}
