package postgres

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"

	"github.com/hitpixel/pillflow-api/internal/model"
	"github.com/hitpixel/pillflow-api/internal/repository"
	apperrors "github.com/hitpixel/pillflow-api/pkg/errors"
)

type partnershipRepository struct {
	BaseRepository
}

func NewPartnershipRepository(base BaseRepository) repository.PartnershipRepository {
	return &partnershipRepository{base}
}

func (r *partnershipRepository) Create(ctx context.Context, p *model.OrganizationPartnership) error {
	query := `
		INSERT INTO organization_partnerships (
			id, initiator_org_id, token, type, status, notes, expires_at, created_by, created_at, updated_at
		) VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10)
	`
	p.CreatedAt = time.Now()
	p.UpdatedAt = p.CreatedAt

	_, err := r.GetDB().ExecContext(ctx, query,
		p.ID, p.InitiatorOrgID, p.Token, p.Type, p.Status, p.Notes, p.ExpiresAt, p.CreatedBy, p.CreatedAt, p.UpdatedAt,
	)
	if err != nil {
		if IsUniqueViolation(err) {
			return apperrors.Conflict("partnership token already exists", err)
		}
		return fmt.Errorf("failed to create partnership: %w", err)
	}
	return nil
}

func (r *partnershipRepository) Get(ctx context.Context, id uuid.UUID) (*model.OrganizationPartnership, error) {
	query := `SELECT * FROM organization_partnerships WHERE id = $1`
	var p model.OrganizationPartnership
	if err := r.GetDB().GetContext(ctx, &p, query, id); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, apperrors.NotFound("partnership", err)
		}
		return nil, fmt.Errorf("failed to get partnership: %w", err)
	}
	return &p, nil
}

func (r *partnershipRepository) GetByToken(ctx context.Context, token string) (*model.OrganizationPartnership, error) {
	query := `SELECT * FROM organization_partnerships WHERE token = $1`
	var p model.OrganizationPartnership
	if err := r.GetDB().GetContext(ctx, &p, query, token); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, apperrors.NotFound("partnership", err)
		}
		return nil, fmt.Errorf("failed to get partnership by token: %w", err)
	}
	return &p, nil
}

// Accept transitions pending->accepted with the status guard in the WHERE
// clause, so two organizations racing on the same token cannot both win.
func (r *partnershipRepository) Accept(ctx context.Context, id, partnerOrgID, acceptedBy uuid.UUID, now time.Time) error {
	query := `
		UPDATE organization_partnerships
		SET status = $1, partner_org_id = $2, accepted_by = $3, accepted_at = $4, updated_at = $4
		WHERE id = $5 AND status = $6
	`
	result, err := r.GetDB().ExecContext(ctx, query,
		model.PartnershipStatusAccepted, partnerOrgID, acceptedBy, now, id, model.PartnershipStatusPending,
	)
	if err != nil {
		return fmt.Errorf("failed to accept partnership: %w", err)
	}
	rows, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("failed to get rows affected: %w", err)
	}
	if rows == 0 {
		return apperrors.InvalidState("partnership is not pending")
	}
	return nil
}

func (r *partnershipRepository) MarkExpired(ctx context.Context, id uuid.UUID) error {
	query := `
		UPDATE organization_partnerships
		SET status = $1, updated_at = $2
		WHERE id = $3 AND status = $4
	`
	_, err := r.GetDB().ExecContext(ctx, query,
		model.PartnershipStatusExpired, time.Now(), id, model.PartnershipStatusPending,
	)
	if err != nil {
		return fmt.Errorf("failed to mark partnership expired: %w", err)
	}
	return nil
}

func (r *partnershipRepository) ExpirePending(ctx context.Context, now time.Time) (int64, error) {
	query := `
		UPDATE organization_partnerships
		SET status = $1, updated_at = $2
		WHERE status = $3 AND expires_at <= $2
	`
	result, err := r.GetDB().ExecContext(ctx, query,
		model.PartnershipStatusExpired, now, model.PartnershipStatusPending,
	)
	if err != nil {
		return 0, fmt.Errorf("failed to expire pending partnerships: %w", err)
	}
	return result.RowsAffected()
}

func (r *partnershipRepository) ListByOrganization(ctx context.Context, orgID uuid.UUID) ([]*model.OrganizationPartnership, error) {
	query := `
		SELECT * FROM organization_partnerships
		WHERE initiator_org_id = $1 OR partner_org_id = $1
		ORDER BY created_at DESC
	`
	var partnerships []*model.OrganizationPartnership
	if err := r.GetDB().SelectContext(ctx, &partnerships, query, orgID); err != nil {
		return nil, fmt.Errorf("failed to list partnerships: %w", err)
	}
	return partnerships, nil
}
