package patient

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
	"github.com/hitpixel/pillflow-api/internal/service/access"
	"github.com/hitpixel/pillflow-api/internal/service/audit"
	"github.com/hitpixel/pillflow-api/internal/service/identity"
	apperrors "github.com/hitpixel/pillflow-api/pkg/errors"
	"github.com/hitpixel/pillflow-api/pkg/token"
)

type fixture struct {
	store     *memory.Store
	accessLog *memory.AccessLogRepository
	svc       *Service

	ownerID   uuid.UUID
	viewerID  uuid.UUID
	otherID   uuid.UUID
	owningOrg *model.Organization
	now       time.Time
}

func newFixture(t *testing.T) *fixture {
	t.Helper()
	ctx := context.Background()
	store := memory.NewStore()

	f := &fixture{
		store:     store,
		accessLog: store.AccessLogs(),
		ownerID:   uuid.New(),
		viewerID:  uuid.New(),
		otherID:   uuid.New(),
		now:       time.Date(2025, 6, 1, 10, 0, 0, 0, time.UTC),
	}

	f.owningOrg = &model.Organization{Base: model.Base{ID: uuid.New()}, Name: "Lakeside Pharmacy", Type: model.OrgTypePharmacy, OwnerID: f.ownerID}
	require.NoError(t, store.Organizations().Create(ctx, f.owningOrg, &model.Member{
		UserID: f.ownerID, OrganizationID: f.owningOrg.ID, Role: model.RoleOwner, Email: "owner@lakeside.example",
	}))
	require.NoError(t, store.Organizations().AddMember(ctx, &model.Member{
		UserID: f.viewerID, OrganizationID: f.owningOrg.ID, Role: model.RoleViewer, Email: "viewer@lakeside.example",
	}))

	otherOrg := &model.Organization{Base: model.Base{ID: uuid.New()}, Name: "Northgate Clinic", Type: model.OrgTypeClinic, OwnerID: f.otherID}
	require.NoError(t, store.Organizations().Create(ctx, otherOrg, &model.Member{
		UserID: f.otherID, OrganizationID: otherOrg.ID, Role: model.RoleOwner, Email: "owner@northgate.example",
	}))

	resolver := identity.NewService(store.Organizations())
	accessSvc := access.NewService(store.Patients(), store.Grants(), resolver, nil).
		WithClock(func() time.Time { return f.now })
	auditSvc := audit.NewService(f.accessLog, store.Patients(), resolver, nil)

	f.svc = NewService(store.Patients(), accessSvc, auditSvc, resolver, nil).
		WithClock(func() time.Time { return f.now })

	return f
}

func (f *fixture) createPatient(t *testing.T) *model.Patient {
	t.Helper()
	patient, err := f.svc.Create(context.Background(), f.ownerID, &model.CreatePatientRequest{
		FirstName: "Noor", LastName: "Haddad",
	})
	require.NoError(t, err)
	return patient
}

func (f *fixture) grantAccess(t *testing.T, patient *model.Patient, userID uuid.UUID, perms model.PermissionList) {
	t.Helper()
	ctx := context.Background()
	member, err := f.store.Organizations().GetMember(ctx, userID)
	require.NoError(t, err)

	grant := &model.TokenAccessGrant{
		Base:          model.Base{ID: uuid.New()},
		PatientID:     patient.ID,
		ShareToken:    patient.ShareToken,
		GranteeUserID: userID,
		GranteeOrgID:  member.OrganizationID,
		Status:        model.GrantStatusPending,
		RequestedAt:   f.now,
		Active:        true,
	}
	require.NoError(t, f.store.Grants().Create(ctx, grant))
	require.NoError(t, f.store.Grants().Approve(ctx, grant.ID, f.ownerID, perms, nil, f.now))
}

func TestCreateMintsShareToken(t *testing.T) {
	f := newFixture(t)

	patient := f.createPatient(t)

	assert.True(t, strings.HasPrefix(patient.ShareToken, "PAT-"))
	assert.True(t, token.Valid(patient.ShareToken, token.PatientPrefix))
	assert.Equal(t, f.owningOrg.ID, patient.OrganizationID)
	assert.True(t, patient.Active)
}

func TestGetByShareTokenSameOrganization(t *testing.T) {
	f := newFixture(t)
	patient := f.createPatient(t)

	view, err := f.svc.GetByShareToken(context.Background(), patient.ShareToken, f.viewerID)
	require.NoError(t, err)

	assert.Equal(t, patient.ID, view.Patient.ID)
	assert.Equal(t, model.AccessTypeSameOrganization, view.AccessType)
	assert.Equal(t, model.FullPermissions(), view.Permissions)

	// Same-organization token reads are audited too, tagged as such.
	entries, total, err := f.accessLog.ListByPatient(context.Background(), patient.ID, model.Pagination{})
	require.NoError(t, err)
	assert.EqualValues(t, 1, total)
	require.Len(t, entries, 1)
	assert.Equal(t, model.AccessTypeSameOrganization, entries[0].AccessType)
	assert.Equal(t, f.viewerID, entries[0].UserID)
	assert.Equal(t, f.owningOrg.ID, entries[0].OwnerOrgID)
}

func TestGetByShareTokenCrossOrganization(t *testing.T) {
	f := newFixture(t)
	patient := f.createPatient(t)
	f.grantAccess(t, patient, f.otherID, model.PermissionList{model.PermissionView})

	view, err := f.svc.GetByShareToken(context.Background(), patient.ShareToken, f.otherID)
	require.NoError(t, err)

	assert.Equal(t, model.AccessTypeCrossOrganization, view.AccessType)
	assert.Equal(t, model.PermissionList{model.PermissionView}, view.Permissions)

	entries, _, err := f.accessLog.ListByPatient(context.Background(), patient.ID, model.Pagination{})
	require.NoError(t, err)
	require.Len(t, entries, 1)
	assert.Equal(t, model.AccessTypeCrossOrganization, entries[0].AccessType)
}

func TestGetByShareTokenDeniedLeavesNoTrace(t *testing.T) {
	f := newFixture(t)
	patient := f.createPatient(t)

	_, err := f.svc.GetByShareToken(context.Background(), patient.ShareToken, f.otherID)
	require.Error(t, err)
	assert.True(t, apperrors.HasCode(err, apperrors.ErrForbidden))

	entries, _, err := f.accessLog.ListByPatient(context.Background(), patient.ID, model.Pagination{})
	require.NoError(t, err)
	assert.Empty(t, entries, "denied reads must not be logged as accesses")
}

func TestGetByShareTokenFailsClosedOnAuditError(t *testing.T) {
	f := newFixture(t)
	patient := f.createPatient(t)

	f.accessLog.FailNext = true
	_, err := f.svc.GetByShareToken(context.Background(), patient.ShareToken, f.viewerID)
	require.Error(t, err, "a failed audit append must abort the read")

	// The next read succeeds and is logged normally.
	_, err = f.svc.GetByShareToken(context.Background(), patient.ShareToken, f.viewerID)
	require.NoError(t, err)
	entries, _, err := f.accessLog.ListByPatient(context.Background(), patient.ID, model.Pagination{})
	require.NoError(t, err)
	assert.Len(t, entries, 1)
}

func TestGetByShareTokenMalformed(t *testing.T) {
	f := newFixture(t)

	_, err := f.svc.GetByShareToken(context.Background(), "PAT-not-a-token", f.ownerID)
	require.Error(t, err)
	assert.True(t, apperrors.HasCode(err, apperrors.ErrBadRequest))
}

func TestGetByShareTokenDeactivatedPatient(t *testing.T) {
	f := newFixture(t)
	patient := f.createPatient(t)
	require.NoError(t, f.svc.Deactivate(context.Background(), patient.ID, f.ownerID))

	_, err := f.svc.GetByShareToken(context.Background(), patient.ShareToken, f.ownerID)
	require.Error(t, err)
	assert.True(t, apperrors.HasCode(err, apperrors.ErrNotFound))
}

func TestUpdateRequiresOwningOrganization(t *testing.T) {
	f := newFixture(t)
	patient := f.createPatient(t)
	req := &model.CreatePatientRequest{FirstName: "Noora", LastName: "Haddad"}

	updated, err := f.svc.Update(context.Background(), patient.ID, f.viewerID, req)
	require.NoError(t, err)
	assert.Equal(t, "Noora", updated.FirstName)
	assert.Equal(t, patient.ShareToken, updated.ShareToken, "share token is immutable")

	_, err = f.svc.Update(context.Background(), patient.ID, f.otherID, req)
	require.Error(t, err)
	assert.True(t, apperrors.HasCode(err, apperrors.ErrForbidden))
}

func TestDeactivateRoleGating(t *testing.T) {
	f := newFixture(t)
	patient := f.createPatient(t)

	err := f.svc.Deactivate(context.Background(), patient.ID, f.viewerID)
	require.Error(t, err)
	assert.True(t, apperrors.HasCode(err, apperrors.ErrForbidden))

	err = f.svc.Deactivate(context.Background(), patient.ID, f.otherID)
	require.Error(t, err)
	assert.True(t, apperrors.HasCode(err, apperrors.ErrForbidden))

	require.NoError(t, f.svc.Deactivate(context.Background(), patient.ID, f.ownerID))

	stored, err := f.store.Patients().Get(context.Background(), patient.ID)
	require.NoError(t, err)
	assert.False(t, stored.Active)
}

func TestListScopedToCallerOrganization(t *testing.T) {
	f := newFixture(t)
	f.createPatient(t)
	f.createPatient(t)

	mine, err := f.svc.List(context.Background(), f.ownerID)
	require.NoError(t, err)
	assert.Len(t, mine, 2)

	theirs, err := f.svc.List(context.Background(), f.otherID)
	require.NoError(t, err)
	assert.Empty(t, theirs)
}
