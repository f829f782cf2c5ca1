package postgres

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/lib/pq"

	"github.com/hitpixel/pillflow-api/internal/model"
	"github.com/hitpixel/pillflow-api/internal/repository"
	apperrors "github.com/hitpixel/pillflow-api/pkg/errors"
)

type grantRepository struct {
	BaseRepository
}

func NewGrantRepository(base BaseRepository) repository.GrantRepository {
	return &grantRepository{base}
}

func (r *grantRepository) Create(ctx context.Context, grant *model.TokenAccessGrant) error {
	query := `
		INSERT INTO token_access_grants (
			id, patient_id, share_token, grantee_user_id, grantee_org_id,
			status, permissions, requested_at, active, created_at, updated_at
		) VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11)
	`
	grant.CreatedAt = time.Now()
	grant.UpdatedAt = grant.CreatedAt

	_, err := r.GetDB().ExecContext(ctx, query,
		grant.ID,
		grant.PatientID,
		grant.ShareToken,
		grant.GranteeUserID,
		grant.GranteeOrgID,
		grant.Status,
		pq.Array(grant.Permissions().Strings()),
		grant.RequestedAt,
		grant.Active,
		grant.CreatedAt,
		grant.UpdatedAt,
	)
	if err != nil {
		// The partial unique index on open grants per (patient, grantee)
		// catches racing duplicate requests.
		if IsUniqueViolation(err) {
			return apperrors.Conflict("an open grant already exists for this patient and user", err)
		}
		return fmt.Errorf("failed to create grant: %w", err)
	}
	return nil
}

func (r *grantRepository) Get(ctx context.Context, id uuid.UUID) (*model.TokenAccessGrant, error) {
	query := `SELECT * FROM token_access_grants WHERE id = $1`
	var grant model.TokenAccessGrant
	if err := r.GetDB().GetContext(ctx, &grant, query, id); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, apperrors.NotFound("grant", err)
		}
		return nil, fmt.Errorf("failed to get grant: %w", err)
	}
	return &grant, nil
}

// GetLive applies the full liveness predicate in SQL. Expiry is checked
// against the caller's instant, not a stored status, so a grant past its
// window stops conferring access without any sweeper having run.
func (r *grantRepository) GetLive(ctx context.Context, patientID, userID uuid.UUID, now time.Time) (*model.TokenAccessGrant, error) {
	query := `
		SELECT * FROM token_access_grants
		WHERE patient_id = $1
		AND grantee_user_id = $2
		AND status = $3
		AND active = true
		AND (expires_at IS NULL OR expires_at > $4)
		ORDER BY granted_at DESC
		LIMIT 1
	`
	var grant model.TokenAccessGrant
	err := r.GetDB().GetContext(ctx, &grant, query, patientID, userID, model.GrantStatusApproved, now)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, apperrors.NotFound("grant", err)
		}
		return nil, fmt.Errorf("failed to get live grant: %w", err)
	}
	return &grant, nil
}

func (r *grantRepository) GetPending(ctx context.Context, patientID, userID uuid.UUID) (*model.TokenAccessGrant, error) {
	query := `
		SELECT * FROM token_access_grants
		WHERE patient_id = $1 AND grantee_user_id = $2 AND status = $3 AND active = true
		ORDER BY requested_at DESC
		LIMIT 1
	`
	var grant model.TokenAccessGrant
	err := r.GetDB().GetContext(ctx, &grant, query, patientID, userID, model.GrantStatusPending)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, apperrors.NotFound("grant", err)
		}
		return nil, fmt.Errorf("failed to get pending grant: %w", err)
	}
	return &grant, nil
}

// Approve transitions pending->approved. The WHERE clause carries the status
// guard: zero affected rows means the grant was not pending anymore.
func (r *grantRepository) Approve(ctx context.Context, id, approverID uuid.UUID, permissions model.PermissionList, expiresAt *time.Time, now time.Time) error {
	query := `
		UPDATE token_access_grants
		SET status = $1, granted_by = $2, granted_at = $3, permissions = $4, expires_at = $5, updated_at = $3
		WHERE id = $6 AND status = $7
	`
	return r.transition(ctx, query,
		model.GrantStatusApproved, approverID, now, pq.Array(permissions.Strings()), expiresAt, id, model.GrantStatusPending)
}

func (r *grantRepository) Deny(ctx context.Context, id, denierID uuid.UUID, now time.Time) error {
	query := `
		UPDATE token_access_grants
		SET status = $1, denied_by = $2, denied_at = $3, updated_at = $3
		WHERE id = $4 AND status = $5
	`
	return r.transition(ctx, query,
		model.GrantStatusDenied, denierID, now, id, model.GrantStatusPending)
}

func (r *grantRepository) Revoke(ctx context.Context, id, revokerID uuid.UUID, now time.Time) error {
	query := `
		UPDATE token_access_grants
		SET status = $1, revoked_by = $2, revoked_at = $3, updated_at = $3
		WHERE id = $4 AND status = $5
	`
	return r.transition(ctx, query,
		model.GrantStatusRevoked, revokerID, now, id, model.GrantStatusApproved)
}

func (r *grantRepository) RevokeOtherLive(ctx context.Context, patientID, userID, keepID, revokerID uuid.UUID, now time.Time) error {
	query := `
		UPDATE token_access_grants
		SET status = $1, revoked_by = $2, revoked_at = $3, updated_at = $3
		WHERE patient_id = $4 AND grantee_user_id = $5 AND id != $6 AND status = $7
	`
	_, err := r.GetDB().ExecContext(ctx, query,
		model.GrantStatusRevoked, revokerID, now, patientID, userID, keepID, model.GrantStatusApproved,
	)
	if err != nil {
		return fmt.Errorf("failed to revoke superseded grants: %w", err)
	}
	return nil
}

func (r *grantRepository) transition(ctx context.Context, query string, args ...interface{}) error {
	result, err := r.GetDB().ExecContext(ctx, query, args...)
	if err != nil {
		return fmt.Errorf("failed to transition grant: %w", err)
	}
	rows, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("failed to get rows affected: %w", err)
	}
	if rows == 0 {
		return apperrors.InvalidState("grant is not in the required state for this transition")
	}
	return nil
}

func (r *grantRepository) ListByPatient(ctx context.Context, patientID uuid.UUID) ([]*model.TokenAccessGrant, error) {
	query := `SELECT * FROM token_access_grants WHERE patient_id = $1 ORDER BY requested_at DESC`
	var grants []*model.TokenAccessGrant
	if err := r.GetDB().SelectContext(ctx, &grants, query, patientID); err != nil {
		return nil, fmt.Errorf("failed to list grants by patient: %w", err)
	}
	return grants, nil
}

func (r *grantRepository) ListByGrantee(ctx context.Context, userID uuid.UUID) ([]*model.TokenAccessGrant, error) {
	query := `SELECT * FROM token_access_grants WHERE grantee_user_id = $1 ORDER BY requested_at DESC`
	var grants []*model.TokenAccessGrant
	if err := r.GetDB().SelectContext(ctx, &grants, query, userID); err != nil {
		return nil, fmt.Errorf("failed to list grants by grantee: %w", err)
	}
	return grants, nil
}
