package grant

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

type recordingNotifier struct {
	requested, approved, denied, revoked int
}

func (n *recordingNotifier) GrantRequested(ctx context.Context, p *model.Patient, g *model.TokenAccessGrant) {
	n.requested++
}
func (n *recordingNotifier) GrantApproved(ctx context.Context, g *model.TokenAccessGrant) { n.approved++ }
func (n *recordingNotifier) GrantDenied(ctx context.Context, g *model.TokenAccessGrant)   { n.denied++ }
func (n *recordingNotifier) GrantRevoked(ctx context.Context, g *model.TokenAccessGrant)  { n.revoked++ }

type fixture struct {
	store    *memory.Store
	outbox   *memory.OutboxRepository
	notifier *recordingNotifier
	svc      *Service

	ownerID   uuid.UUID // owner of the patient's organization
	viewerID  uuid.UUID // viewer in the patient's organization
	granteeID uuid.UUID // owner of the other organization
	patient   *model.Patient
	now       time.Time
}

func newFixture(t *testing.T) *fixture {
	t.Helper()
	ctx := context.Background()
	store := memory.NewStore()

	f := &fixture{
		store:     store,
		outbox:    store.Outbox(),
		notifier:  &recordingNotifier{},
		ownerID:   uuid.New(),
		viewerID:  uuid.New(),
		granteeID: uuid.New(),
		now:       time.Date(2025, 6, 1, 9, 0, 0, 0, time.UTC),
	}

	owningOrg := &model.Organization{Base: model.Base{ID: uuid.New()}, Name: "Seaview Aged Care", Type: model.OrgTypeAgedCare, OwnerID: f.ownerID}
	require.NoError(t, store.Organizations().Create(ctx, owningOrg, &model.Member{
		UserID: f.ownerID, OrganizationID: owningOrg.ID, Role: model.RoleOwner, Email: "owner@seaview.example",
	}))
	require.NoError(t, store.Organizations().AddMember(ctx, &model.Member{
		UserID: f.viewerID, OrganizationID: owningOrg.ID, Role: model.RoleViewer, Email: "viewer@seaview.example",
	}))

	granteeOrg := &model.Organization{Base: model.Base{ID: uuid.New()}, Name: "Central Pharmacy", Type: model.OrgTypePharmacy, OwnerID: f.granteeID}
	require.NoError(t, store.Organizations().Create(ctx, granteeOrg, &model.Member{
		UserID: f.granteeID, OrganizationID: granteeOrg.ID, Role: model.RoleOwner, Email: "owner@central.example",
	}))

	f.patient = &model.Patient{
		Base:           model.Base{ID: uuid.New()},
		OrganizationID: owningOrg.ID,
		FirstName:      "Alma",
		LastName:       "Reyes",
		ShareToken:     "PAT-QQQQ-WWWW-EEEE",
		Active:         true,
	}
	require.NoError(t, store.Patients().Create(ctx, f.patient))

	resolver := identity.NewService(store.Organizations())
	f.svc = NewService(store.Grants(), store.Patients(), resolver, f.outbox, f.notifier, nil, nil).
		WithClock(func() time.Time { return f.now })

	return f
}

func (f *fixture) outboxTypes() []string {
	var types []string
	for _, e := range f.outbox.Events() {
		types = append(types, e.EventType)
	}
	return types
}

func TestRequestAccess(t *testing.T) {
	f := newFixture(t)

	grant, err := f.svc.RequestAccess(context.Background(), f.patient.ShareToken, f.granteeID)
	require.NoError(t, err)

	assert.Equal(t, model.GrantStatusPending, grant.Status)
	assert.Equal(t, f.patient.ID, grant.PatientID)
	assert.Equal(t, f.granteeID, grant.GranteeUserID)
	assert.Equal(t, f.now, grant.RequestedAt)
	assert.Equal(t, 1, f.notifier.requested)
	assert.Equal(t, []string{model.EventGrantRequested}, f.outboxTypes())
}

func TestRequestAccessIdempotentWhilePending(t *testing.T) {
	f := newFixture(t)

	first, err := f.svc.RequestAccess(context.Background(), f.patient.ShareToken, f.granteeID)
	require.NoError(t, err)

	second, err := f.svc.RequestAccess(context.Background(), f.patient.ShareToken, f.granteeID)
	require.NoError(t, err)

	assert.Equal(t, first.ID, second.ID)
	assert.Equal(t, 1, f.notifier.requested, "repeat request must not re-notify")
	assert.Len(t, f.outbox.Events(), 1)
}

func TestRequestAccessSameOrganization(t *testing.T) {
	f := newFixture(t)

	_, err := f.svc.RequestAccess(context.Background(), f.patient.ShareToken, f.viewerID)
	require.Error(t, err)
	assert.True(t, apperrors.HasCode(err, apperrors.ErrConflict))
}

func TestRequestAccessWithLiveGrant(t *testing.T) {
	f := newFixture(t)

	grant, err := f.svc.RequestAccess(context.Background(), f.patient.ShareToken, f.granteeID)
	require.NoError(t, err)
	require.NoError(t, f.svc.ApproveAccess(context.Background(), grant.ID, f.ownerID, model.PermissionList{model.PermissionView}, nil))

	_, err = f.svc.RequestAccess(context.Background(), f.patient.ShareToken, f.granteeID)
	require.Error(t, err)
	assert.True(t, apperrors.HasCode(err, apperrors.ErrConflict))
}

func TestRequestAccessMalformedToken(t *testing.T) {
	f := newFixture(t)

	_, err := f.svc.RequestAccess(context.Background(), "PAT-123", f.granteeID)
	require.Error(t, err)
	assert.True(t, apperrors.HasCode(err, apperrors.ErrBadRequest))
}

func TestRequestAccessDeactivatedPatient(t *testing.T) {
	f := newFixture(t)
	require.NoError(t, f.store.Patients().Deactivate(context.Background(), f.patient.ID))

	_, err := f.svc.RequestAccess(context.Background(), f.patient.ShareToken, f.granteeID)
	require.Error(t, err)
	assert.True(t, apperrors.HasCode(err, apperrors.ErrNotFound))
}

func TestApproveAccess(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	grant, err := f.svc.RequestAccess(ctx, f.patient.ShareToken, f.granteeID)
	require.NoError(t, err)

	expires := f.now.Add(7 * 24 * time.Hour)
	perms := model.PermissionList{model.PermissionView, model.PermissionViewMedications}
	require.NoError(t, f.svc.ApproveAccess(ctx, grant.ID, f.ownerID, perms, &expires))

	stored, err := f.store.Grants().Get(ctx, grant.ID)
	require.NoError(t, err)
	assert.Equal(t, model.GrantStatusApproved, stored.Status)
	assert.Equal(t, f.ownerID, *stored.GrantedBy)
	assert.Equal(t, expires, *stored.ExpiresAt)
	assert.ElementsMatch(t, perms, stored.Permissions())
	assert.True(t, stored.IsLive(f.now))
	assert.False(t, stored.IsLive(expires.Add(time.Second)))

	assert.Equal(t, 1, f.notifier.approved)
	assert.Equal(t, []string{model.EventGrantRequested, model.EventGrantApproved}, f.outboxTypes())
}

func TestApproveAccessAuthorization(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	grant, err := f.svc.RequestAccess(ctx, f.patient.ShareToken, f.granteeID)
	require.NoError(t, err)
	perms := model.PermissionList{model.PermissionView}

	// A viewer in the owning organization cannot approve.
	err = f.svc.ApproveAccess(ctx, grant.ID, f.viewerID, perms, nil)
	assert.True(t, apperrors.HasCode(err, apperrors.ErrForbidden))

	// Neither can the grantee, despite being an owner elsewhere.
	err = f.svc.ApproveAccess(ctx, grant.ID, f.granteeID, perms, nil)
	assert.True(t, apperrors.HasCode(err, apperrors.ErrForbidden))

	stored, err := f.store.Grants().Get(ctx, grant.ID)
	require.NoError(t, err)
	assert.Equal(t, model.GrantStatusPending, stored.Status)
}

func TestApproveAccessValidation(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	grant, err := f.svc.RequestAccess(ctx, f.patient.ShareToken, f.granteeID)
	require.NoError(t, err)

	err = f.svc.ApproveAccess(ctx, grant.ID, f.ownerID, nil, nil)
	assert.True(t, apperrors.HasCode(err, apperrors.ErrBadRequest))

	err = f.svc.ApproveAccess(ctx, grant.ID, f.ownerID, model.PermissionList{"edit"}, nil)
	assert.True(t, apperrors.HasCode(err, apperrors.ErrBadRequest))

	past := f.now.Add(-time.Hour)
	err = f.svc.ApproveAccess(ctx, grant.ID, f.ownerID, model.PermissionList{model.PermissionView}, &past)
	assert.True(t, apperrors.HasCode(err, apperrors.ErrBadRequest))
}

func TestDenyAccessIsTerminal(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	grant, err := f.svc.RequestAccess(ctx, f.patient.ShareToken, f.granteeID)
	require.NoError(t, err)

	require.NoError(t, f.svc.DenyAccess(ctx, grant.ID, f.ownerID))
	assert.Equal(t, 1, f.notifier.denied)

	err = f.svc.ApproveAccess(ctx, grant.ID, f.ownerID, model.PermissionList{model.PermissionView}, nil)
	assert.True(t, apperrors.HasCode(err, apperrors.ErrInvalidState))

	err = f.svc.DenyAccess(ctx, grant.ID, f.ownerID)
	assert.True(t, apperrors.HasCode(err, apperrors.ErrInvalidState))
}

func TestRevokeAccessIsTerminal(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	grant, err := f.svc.RequestAccess(ctx, f.patient.ShareToken, f.granteeID)
	require.NoError(t, err)
	require.NoError(t, f.svc.ApproveAccess(ctx, grant.ID, f.ownerID, model.PermissionList{model.PermissionView}, nil))

	require.NoError(t, f.svc.RevokeAccess(ctx, grant.ID, f.ownerID))
	assert.Equal(t, 1, f.notifier.revoked)

	stored, err := f.store.Grants().Get(ctx, grant.ID)
	require.NoError(t, err)
	assert.Equal(t, model.GrantStatusRevoked, stored.Status)
	assert.Equal(t, f.ownerID, *stored.RevokedBy)
	assert.False(t, stored.IsLive(f.now))

	err = f.svc.RevokeAccess(ctx, grant.ID, f.ownerID)
	assert.True(t, apperrors.HasCode(err, apperrors.ErrInvalidState))
}

func TestRevokePendingGrantRejected(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	grant, err := f.svc.RequestAccess(ctx, f.patient.ShareToken, f.granteeID)
	require.NoError(t, err)

	err = f.svc.RevokeAccess(ctx, grant.ID, f.ownerID)
	assert.True(t, apperrors.HasCode(err, apperrors.ErrInvalidState))
}

func TestRequestAgainAfterRevoke(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	first, err := f.svc.RequestAccess(ctx, f.patient.ShareToken, f.granteeID)
	require.NoError(t, err)
	require.NoError(t, f.svc.ApproveAccess(ctx, first.ID, f.ownerID, model.PermissionList{model.PermissionView}, nil))
	require.NoError(t, f.svc.RevokeAccess(ctx, first.ID, f.ownerID))

	second, err := f.svc.RequestAccess(ctx, f.patient.ShareToken, f.granteeID)
	require.NoError(t, err)
	assert.NotEqual(t, first.ID, second.ID)
	assert.Equal(t, model.GrantStatusPending, second.Status)
}

func TestListForPatient(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	grant, err := f.svc.RequestAccess(ctx, f.patient.ShareToken, f.granteeID)
	require.NoError(t, err)

	grants, err := f.svc.ListForPatient(ctx, f.patient.ID, f.ownerID)
	require.NoError(t, err)
	require.Len(t, grants, 1)
	assert.Equal(t, grant.ID, grants[0].ID)

	// Grant history is visible only inside the owning organization.
	_, err = f.svc.ListForPatient(ctx, f.patient.ID, f.granteeID)
	assert.True(t, apperrors.HasCode(err, apperrors.ErrForbidden))
}

func TestListForGrantee(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	grant, err := f.svc.RequestAccess(ctx, f.patient.ShareToken, f.granteeID)
	require.NoError(t, err)

	grants, err := f.svc.ListForGrantee(ctx, f.granteeID)
	require.NoError(t, err)
	require.Len(t, grants, 1)
	assert.Equal(t, grant.ID, grants[0].ID)

	grants, err = f.svc.ListForGrantee(ctx, f.ownerID)
	require.NoError(t, err)
	assert.Empty(t, grants)
}
