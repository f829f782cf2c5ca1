package postgres

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/jmoiron/sqlx"

	"github.com/hitpixel/pillflow-api/internal/model"
	"github.com/hitpixel/pillflow-api/internal/repository"
	apperrors "github.com/hitpixel/pillflow-api/pkg/errors"
)

type organizationRepository struct {
	BaseRepository
}

func NewOrganizationRepository(base BaseRepository) repository.OrganizationRepository {
	return &organizationRepository{base}
}

func (r *organizationRepository) Create(ctx context.Context, org *model.Organization, owner *model.Member) error {
	return r.WithTx(ctx, func(tx *sqlx.Tx) error {
		now := time.Now()
		org.CreatedAt = now
		org.UpdatedAt = now

		query := `
			INSERT INTO organizations (id, name, type, owner_id, created_at, updated_at)
			VALUES ($1, $2, $3, $4, $5, $6)
		`
		if _, err := tx.ExecContext(ctx, query,
			org.ID, org.Name, org.Type, org.OwnerID, org.CreatedAt, org.UpdatedAt,
		); err != nil {
			return fmt.Errorf("failed to create organization: %w", err)
		}

		owner.CreatedAt = now
		memberQuery := `
			INSERT INTO organization_members (user_id, organization_id, role, email, created_at)
			VALUES ($1, $2, $3, $4, $5)
		`
		if _, err := tx.ExecContext(ctx, memberQuery,
			owner.UserID, owner.OrganizationID, owner.Role, owner.Email, owner.CreatedAt,
		); err != nil {
			return fmt.Errorf("failed to create owner membership: %w", err)
		}

		return nil
	})
}

func (r *organizationRepository) Get(ctx context.Context, id uuid.UUID) (*model.Organization, error) {
	query := `SELECT * FROM organizations WHERE id = $1`
	var org model.Organization
	if err := r.GetDB().GetContext(ctx, &org, query, id); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, apperrors.NotFound("organization", err)
		}
		return nil, fmt.Errorf("failed to get organization: %w", err)
	}
	return &org, nil
}

func (r *organizationRepository) List(ctx context.Context) ([]*model.Organization, error) {
	query := `SELECT * FROM organizations ORDER BY created_at`
	var orgs []*model.Organization
	if err := r.GetDB().SelectContext(ctx, &orgs, query); err != nil {
		return nil, fmt.Errorf("failed to list organizations: %w", err)
	}
	return orgs, nil
}

func (r *organizationRepository) AddMember(ctx context.Context, member *model.Member) error {
	member.CreatedAt = time.Now()
	query := `
		INSERT INTO organization_members (user_id, organization_id, role, email, created_at)
		VALUES ($1, $2, $3, $4, $5)
	`
	_, err := r.GetDB().ExecContext(ctx, query,
		member.UserID, member.OrganizationID, member.Role, member.Email, member.CreatedAt,
	)
	if err != nil {
		if IsUniqueViolation(err) {
			return apperrors.Conflict("user already belongs to an organization", err)
		}
		return fmt.Errorf("failed to add member: %w", err)
	}
	return nil
}

func (r *organizationRepository) RemoveMember(ctx context.Context, orgID, userID uuid.UUID) error {
	query := `DELETE FROM organization_members WHERE organization_id = $1 AND user_id = $2`
	result, err := r.GetDB().ExecContext(ctx, query, orgID, userID)
	if err != nil {
		return fmt.Errorf("failed to remove member: %w", err)
	}
	rows, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("failed to get rows affected: %w", err)
	}
	if rows == 0 {
		return apperrors.NotFound("membership", nil)
	}
	return nil
}

func (r *organizationRepository) GetMember(ctx context.Context, userID uuid.UUID) (*model.Member, error) {
	query := `SELECT * FROM organization_members WHERE user_id = $1`
	var member model.Member
	if err := r.GetDB().GetContext(ctx, &member, query, userID); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, apperrors.Unauthorized("caller has no organization membership", err)
		}
		return nil, fmt.Errorf("failed to get member: %w", err)
	}
	return &member, nil
}

func (r *organizationRepository) ListAdmins(ctx context.Context, orgID uuid.UUID) ([]*model.Member, error) {
	query := `
		SELECT * FROM organization_members
		WHERE organization_id = $1 AND role IN ($2, $3)
	`
	var members []*model.Member
	if err := r.GetDB().SelectContext(ctx, &members, query, orgID, model.RoleOwner, model.RoleAdmin); err != nil {
		return nil, fmt.Errorf("failed to list admins: %w", err)
	}
	return members, nil
}
