package postgres

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"

	"github.com/hitpixel/pillflow-api/internal/model"
	"github.com/hitpixel/pillflow-api/internal/repository"
)

type accessLogRepository struct {
	BaseRepository
}

func NewAccessLogRepository(base BaseRepository) repository.AccessLogRepository {
	return &accessLogRepository{base}
}

// Create appends one audit row. There is no update or delete on this table;
// the insert failing must fail the enclosing access operation.
func (r *accessLogRepository) Create(ctx context.Context, entry *model.ShareTokenAccessLog) error {
	query := `
		INSERT INTO share_token_access_logs (
			id, patient_id, user_id, organization_id, owner_org_id, share_token, access_type, created_at
		) VALUES ($1, $2, $3, $4, $5, $6, $7, $8)
	`
	entry.CreatedAt = time.Now()

	_, err := r.GetDB().ExecContext(ctx, query,
		entry.ID,
		entry.PatientID,
		entry.UserID,
		entry.OrganizationID,
		entry.OwnerOrgID,
		entry.ShareToken,
		entry.AccessType,
		entry.CreatedAt,
	)
	if err != nil {
		return fmt.Errorf("failed to append access log: %w", err)
	}
	return nil
}

func (r *accessLogRepository) ListByPatient(ctx context.Context, patientID uuid.UUID, p model.Pagination) ([]*model.ShareTokenAccessLog, int64, error) {
	return r.list(ctx, "patient_id", patientID, p)
}

func (r *accessLogRepository) ListByAccessor(ctx context.Context, userID uuid.UUID, p model.Pagination) ([]*model.ShareTokenAccessLog, int64, error) {
	return r.list(ctx, "user_id", userID, p)
}

func (r *accessLogRepository) list(ctx context.Context, column string, id uuid.UUID, p model.Pagination) ([]*model.ShareTokenAccessLog, int64, error) {
	countQuery := fmt.Sprintf(`SELECT COUNT(*) FROM share_token_access_logs WHERE %s = $1`, column)
	var total int64
	if err := r.GetDB().GetContext(ctx, &total, countQuery, id); err != nil {
		return nil, 0, fmt.Errorf("failed to count access logs: %w", err)
	}

	query := fmt.Sprintf(`
		SELECT * FROM share_token_access_logs
		WHERE %s = $1
		ORDER BY created_at DESC
		LIMIT $2 OFFSET $3
	`, column)

	var logs []*model.ShareTokenAccessLog
	if err := r.GetDB().SelectContext(ctx, &logs, query, id, p.Limit(), p.Offset()); err != nil {
		return nil, 0, fmt.Errorf("failed to list access logs: %w", err)
	}
	return logs, total, nil
}
