// Package memory provides in-memory repository implementations backing the
// service unit tests. Semantics mirror the postgres implementations,
// including the status-guarded transitions and the open-grant uniqueness
// check.
package memory

import (
	"context"
	"sort"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/hitpixel/pillflow-api/internal/model"
	apperrors "github.com/hitpixel/pillflow-api/pkg/errors"
)

type Store struct {
	mu            sync.Mutex
	organizations map[uuid.UUID]*model.Organization
	members       map[uuid.UUID]*model.Member
	patients      map[uuid.UUID]*model.Patient
	grants        map[uuid.UUID]*model.TokenAccessGrant
	partnerships  map[uuid.UUID]*model.OrganizationPartnership
	accessLogs    []*model.ShareTokenAccessLog
	outbox        []*model.OutboxEvent
}

func NewStore() *Store {
	return &Store{
		organizations: make(map[uuid.UUID]*model.Organization),
		members:       make(map[uuid.UUID]*model.Member),
		patients:      make(map[uuid.UUID]*model.Patient),
		grants:        make(map[uuid.UUID]*model.TokenAccessGrant),
		partnerships:  make(map[uuid.UUID]*model.OrganizationPartnership),
	}
}

// --- OrganizationRepository ---

type OrganizationRepository struct{ s *Store }

func (s *Store) Organizations() *OrganizationRepository { return &OrganizationRepository{s} }

func (r *OrganizationRepository) Create(ctx context.Context, org *model.Organization, owner *model.Member) error {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	cp := *org
	r.s.organizations[org.ID] = &cp
	mc := *owner
	r.s.members[owner.UserID] = &mc
	return nil
}

func (r *OrganizationRepository) Get(ctx context.Context, id uuid.UUID) (*model.Organization, error) {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	org, ok := r.s.organizations[id]
	if !ok {
		return nil, apperrors.NotFound("organization", nil)
	}
	cp := *org
	return &cp, nil
}

func (r *OrganizationRepository) List(ctx context.Context) ([]*model.Organization, error) {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	out := make([]*model.Organization, 0, len(r.s.organizations))
	for _, org := range r.s.organizations {
		cp := *org
		out = append(out, &cp)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].CreatedAt.Before(out[j].CreatedAt) })
	return out, nil
}

func (r *OrganizationRepository) AddMember(ctx context.Context, member *model.Member) error {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	if _, exists := r.s.members[member.UserID]; exists {
		return apperrors.Conflict("user already belongs to an organization", nil)
	}
	cp := *member
	r.s.members[member.UserID] = &cp
	return nil
}

func (r *OrganizationRepository) RemoveMember(ctx context.Context, orgID, userID uuid.UUID) error {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	m, ok := r.s.members[userID]
	if !ok || m.OrganizationID != orgID {
		return apperrors.NotFound("membership", nil)
	}
	delete(r.s.members, userID)
	return nil
}

func (r *OrganizationRepository) GetMember(ctx context.Context, userID uuid.UUID) (*model.Member, error) {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	m, ok := r.s.members[userID]
	if !ok {
		return nil, apperrors.Unauthorized("caller has no organization membership", nil)
	}
	cp := *m
	return &cp, nil
}

func (r *OrganizationRepository) ListAdmins(ctx context.Context, orgID uuid.UUID) ([]*model.Member, error) {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	var out []*model.Member
	for _, m := range r.s.members {
		if m.OrganizationID == orgID && m.Role.CanManageGrants() {
			cp := *m
			out = append(out, &cp)
		}
	}
	return out, nil
}

// --- PatientRepository ---

type PatientRepository struct{ s *Store }

func (s *Store) Patients() *PatientRepository { return &PatientRepository{s} }

func (r *PatientRepository) Create(ctx context.Context, patient *model.Patient) error {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	for _, p := range r.s.patients {
		if p.ShareToken == patient.ShareToken {
			return apperrors.Conflict("share token already exists", nil)
		}
	}
	patient.CreatedAt = time.Now()
	patient.UpdatedAt = patient.CreatedAt
	cp := *patient
	r.s.patients[patient.ID] = &cp
	return nil
}

func (r *PatientRepository) Get(ctx context.Context, id uuid.UUID) (*model.Patient, error) {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	p, ok := r.s.patients[id]
	if !ok {
		return nil, apperrors.NotFound("patient", nil)
	}
	cp := *p
	return &cp, nil
}

func (r *PatientRepository) GetByShareToken(ctx context.Context, shareToken string) (*model.Patient, error) {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	for _, p := range r.s.patients {
		if p.ShareToken == shareToken {
			cp := *p
			return &cp, nil
		}
	}
	return nil, apperrors.NotFound("patient", nil)
}

func (r *PatientRepository) Update(ctx context.Context, patient *model.Patient) error {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	if _, ok := r.s.patients[patient.ID]; !ok {
		return apperrors.NotFound("patient", nil)
	}
	patient.UpdatedAt = time.Now()
	cp := *patient
	r.s.patients[patient.ID] = &cp
	return nil
}

func (r *PatientRepository) Deactivate(ctx context.Context, id uuid.UUID) error {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	p, ok := r.s.patients[id]
	if !ok || !p.Active {
		return apperrors.NotFound("patient", nil)
	}
	p.Active = false
	p.UpdatedAt = time.Now()
	return nil
}

func (r *PatientRepository) List(ctx context.Context, orgID uuid.UUID) ([]*model.Patient, error) {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	var out []*model.Patient
	for _, p := range r.s.patients {
		if p.OrganizationID == orgID && p.Active {
			cp := *p
			out = append(out, &cp)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].CreatedAt.Before(out[j].CreatedAt) })
	return out, nil
}

// --- GrantRepository ---

type GrantRepository struct{ s *Store }

func (s *Store) Grants() *GrantRepository { return &GrantRepository{s} }

func (r *GrantRepository) Create(ctx context.Context, grant *model.TokenAccessGrant) error {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	for _, g := range r.s.grants {
		if g.PatientID == grant.PatientID && g.GranteeUserID == grant.GranteeUserID &&
			g.Active && (g.Status == model.GrantStatusPending || g.Status == model.GrantStatusApproved) {
			return apperrors.Conflict("an open grant already exists for this patient and user", nil)
		}
	}
	grant.CreatedAt = time.Now()
	grant.UpdatedAt = grant.CreatedAt
	cp := *grant
	r.s.grants[grant.ID] = &cp
	return nil
}

func (r *GrantRepository) Get(ctx context.Context, id uuid.UUID) (*model.TokenAccessGrant, error) {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	g, ok := r.s.grants[id]
	if !ok {
		return nil, apperrors.NotFound("grant", nil)
	}
	cp := *g
	return &cp, nil
}

func (r *GrantRepository) GetLive(ctx context.Context, patientID, userID uuid.UUID, now time.Time) (*model.TokenAccessGrant, error) {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	var best *model.TokenAccessGrant
	for _, g := range r.s.grants {
		if g.PatientID != patientID || g.GranteeUserID != userID || !g.IsLive(now) {
			continue
		}
		if best == nil || (g.GrantedAt != nil && best.GrantedAt != nil && g.GrantedAt.After(*best.GrantedAt)) {
			best = g
		}
	}
	if best == nil {
		return nil, apperrors.NotFound("grant", nil)
	}
	cp := *best
	return &cp, nil
}

func (r *GrantRepository) GetPending(ctx context.Context, patientID, userID uuid.UUID) (*model.TokenAccessGrant, error) {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	for _, g := range r.s.grants {
		if g.PatientID == patientID && g.GranteeUserID == userID && g.Active && g.Status == model.GrantStatusPending {
			cp := *g
			return &cp, nil
		}
	}
	return nil, apperrors.NotFound("grant", nil)
}

func (r *GrantRepository) Approve(ctx context.Context, id, approverID uuid.UUID, permissions model.PermissionList, expiresAt *time.Time, now time.Time) error {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	g, ok := r.s.grants[id]
	if !ok || g.Status != model.GrantStatusPending {
		return apperrors.InvalidState("grant is not in the required state for this transition")
	}
	g.Status = model.GrantStatusApproved
	g.GrantedBy = &approverID
	t := now
	g.GrantedAt = &t
	g.RawPermissions = permissions.Strings()
	g.ExpiresAt = expiresAt
	g.UpdatedAt = now
	return nil
}

func (r *GrantRepository) Deny(ctx context.Context, id, denierID uuid.UUID, now time.Time) error {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	g, ok := r.s.grants[id]
	if !ok || g.Status != model.GrantStatusPending {
		return apperrors.InvalidState("grant is not in the required state for this transition")
	}
	g.Status = model.GrantStatusDenied
	g.DeniedBy = &denierID
	t := now
	g.DeniedAt = &t
	g.UpdatedAt = now
	return nil
}

func (r *GrantRepository) Revoke(ctx context.Context, id, revokerID uuid.UUID, now time.Time) error {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	g, ok := r.s.grants[id]
	if !ok || g.Status != model.GrantStatusApproved {
		return apperrors.InvalidState("grant is not in the required state for this transition")
	}
	g.Status = model.GrantStatusRevoked
	g.RevokedBy = &revokerID
	t := now
	g.RevokedAt = &t
	g.UpdatedAt = now
	return nil
}

func (r *GrantRepository) RevokeOtherLive(ctx context.Context, patientID, userID, keepID, revokerID uuid.UUID, now time.Time) error {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	for _, g := range r.s.grants {
		if g.PatientID == patientID && g.GranteeUserID == userID && g.ID != keepID && g.Status == model.GrantStatusApproved {
			g.Status = model.GrantStatusRevoked
			g.RevokedBy = &revokerID
			t := now
			g.RevokedAt = &t
			g.UpdatedAt = now
		}
	}
	return nil
}

func (r *GrantRepository) ListByPatient(ctx context.Context, patientID uuid.UUID) ([]*model.TokenAccessGrant, error) {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	var out []*model.TokenAccessGrant
	for _, g := range r.s.grants {
		if g.PatientID == patientID {
			cp := *g
			out = append(out, &cp)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].RequestedAt.After(out[j].RequestedAt) })
	return out, nil
}

func (r *GrantRepository) ListByGrantee(ctx context.Context, userID uuid.UUID) ([]*model.TokenAccessGrant, error) {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	var out []*model.TokenAccessGrant
	for _, g := range r.s.grants {
		if g.GranteeUserID == userID {
			cp := *g
			out = append(out, &cp)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].RequestedAt.After(out[j].RequestedAt) })
	return out, nil
}

// --- PartnershipRepository ---

type PartnershipRepository struct{ s *Store }

func (s *Store) Partnerships() *PartnershipRepository { return &PartnershipRepository{s} }

func (r *PartnershipRepository) Create(ctx context.Context, p *model.OrganizationPartnership) error {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	for _, existing := range r.s.partnerships {
		if existing.Token == p.Token {
			return apperrors.Conflict("partnership token already exists", nil)
		}
	}
	p.CreatedAt = time.Now()
	p.UpdatedAt = p.CreatedAt
	cp := *p
	r.s.partnerships[p.ID] = &cp
	return nil
}

func (r *PartnershipRepository) Get(ctx context.Context, id uuid.UUID) (*model.OrganizationPartnership, error) {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	p, ok := r.s.partnerships[id]
	if !ok {
		return nil, apperrors.NotFound("partnership", nil)
	}
	cp := *p
	return &cp, nil
}

func (r *PartnershipRepository) GetByToken(ctx context.Context, token string) (*model.OrganizationPartnership, error) {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	for _, p := range r.s.partnerships {
		if p.Token == token {
			cp := *p
			return &cp, nil
		}
	}
	return nil, apperrors.NotFound("partnership", nil)
}

func (r *PartnershipRepository) Accept(ctx context.Context, id, partnerOrgID, acceptedBy uuid.UUID, now time.Time) error {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	p, ok := r.s.partnerships[id]
	if !ok || p.Status != model.PartnershipStatusPending {
		return apperrors.InvalidState("partnership is not pending")
	}
	p.Status = model.PartnershipStatusAccepted
	p.PartnerOrgID = &partnerOrgID
	p.AcceptedBy = &acceptedBy
	t := now
	p.AcceptedAt = &t
	p.UpdatedAt = now
	return nil
}

func (r *PartnershipRepository) MarkExpired(ctx context.Context, id uuid.UUID) error {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	p, ok := r.s.partnerships[id]
	if ok && p.Status == model.PartnershipStatusPending {
		p.Status = model.PartnershipStatusExpired
		p.UpdatedAt = time.Now()
	}
	return nil
}

func (r *PartnershipRepository) ExpirePending(ctx context.Context, now time.Time) (int64, error) {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	var n int64
	for _, p := range r.s.partnerships {
		if p.Status == model.PartnershipStatusPending && !p.ExpiresAt.After(now) {
			p.Status = model.PartnershipStatusExpired
			p.UpdatedAt = now
			n++
		}
	}
	return n, nil
}

func (r *PartnershipRepository) ListByOrganization(ctx context.Context, orgID uuid.UUID) ([]*model.OrganizationPartnership, error) {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	var out []*model.OrganizationPartnership
	for _, p := range r.s.partnerships {
		if p.InitiatorOrgID == orgID || (p.PartnerOrgID != nil && *p.PartnerOrgID == orgID) {
			cp := *p
			out = append(out, &cp)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].CreatedAt.After(out[j].CreatedAt) })
	return out, nil
}

// --- AccessLogRepository ---

type AccessLogRepository struct {
	s *Store
	// FailNext forces the next append to fail, for fail-closed audit tests.
	FailNext bool
}

func (s *Store) AccessLogs() *AccessLogRepository { return &AccessLogRepository{s: s} }

func (r *AccessLogRepository) Create(ctx context.Context, entry *model.ShareTokenAccessLog) error {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	if r.FailNext {
		r.FailNext = false
		return apperrors.Internal(nil)
	}
	entry.CreatedAt = time.Now()
	cp := *entry
	r.s.accessLogs = append(r.s.accessLogs, &cp)
	return nil
}

func (r *AccessLogRepository) ListByPatient(ctx context.Context, patientID uuid.UUID, p model.Pagination) ([]*model.ShareTokenAccessLog, int64, error) {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	var out []*model.ShareTokenAccessLog
	for _, l := range r.s.accessLogs {
		if l.PatientID == patientID {
			cp := *l
			out = append(out, &cp)
		}
	}
	return out, int64(len(out)), nil
}

func (r *AccessLogRepository) ListByAccessor(ctx context.Context, userID uuid.UUID, p model.Pagination) ([]*model.ShareTokenAccessLog, int64, error) {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	var out []*model.ShareTokenAccessLog
	for _, l := range r.s.accessLogs {
		if l.UserID == userID {
			cp := *l
			out = append(out, &cp)
		}
	}
	return out, int64(len(out)), nil
}

// --- OutboxRepository ---

type OutboxRepository struct{ s *Store }

func (s *Store) Outbox() *OutboxRepository { return &OutboxRepository{s} }

func (r *OutboxRepository) Create(ctx context.Context, event *model.OutboxEvent) error {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	event.ID = uuid.New()
	event.Status = model.OutboxStatusPending
	event.CreatedAt = time.Now()
	event.UpdatedAt = event.CreatedAt
	cp := *event
	r.s.outbox = append(r.s.outbox, &cp)
	return nil
}

func (r *OutboxRepository) GetPendingEventsWithLock(ctx context.Context, limit int) ([]*model.OutboxEvent, error) {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	var out []*model.OutboxEvent
	for _, e := range r.s.outbox {
		if e.Status == model.OutboxStatusPending && len(out) < limit {
			cp := *e
			out = append(out, &cp)
		}
	}
	return out, nil
}

func (r *OutboxRepository) UpdateStatus(ctx context.Context, id uuid.UUID, status model.OutboxStatus, errorMessage *string) error {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	for _, e := range r.s.outbox {
		if e.ID == id {
			e.Status = status
			e.ErrorMessage = errorMessage
			now := time.Now()
			e.ProcessedAt = &now
			e.UpdatedAt = now
			return nil
		}
	}
	return apperrors.NotFound("outbox event", nil)
}

// Events returns a snapshot of all outbox events, newest last.
func (r *OutboxRepository) Events() []*model.OutboxEvent {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	out := make([]*model.OutboxEvent, len(r.s.outbox))
	copy(out, r.s.outbox)
	return out
}
