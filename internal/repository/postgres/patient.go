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

type patientRepository struct {
	BaseRepository
}

func NewPatientRepository(base BaseRepository) repository.PatientRepository {
	return &patientRepository{base}
}

func (r *patientRepository) Create(ctx context.Context, patient *model.Patient) error {
	query := `
		INSERT INTO patients (id, organization_id, first_name, last_name, date_of_birth, share_token, active, created_at, updated_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9)
	`
	patient.CreatedAt = time.Now()
	patient.UpdatedAt = patient.CreatedAt

	_, err := r.GetDB().ExecContext(ctx, query,
		patient.ID,
		patient.OrganizationID,
		patient.FirstName,
		patient.LastName,
		patient.DateOfBirth,
		patient.ShareToken,
		patient.Active,
		patient.CreatedAt,
		patient.UpdatedAt,
	)
	if err != nil {
		// A share_token unique hit means the generator collided; the caller
		// regenerates and retries, never overwrites.
		if IsUniqueViolation(err) {
			return apperrors.Conflict("share token already exists", err)
		}
		return fmt.Errorf("failed to create patient: %w", err)
	}
	return nil
}

func (r *patientRepository) Get(ctx context.Context, id uuid.UUID) (*model.Patient, error) {
	query := `SELECT * FROM patients WHERE id = $1`
	var patient model.Patient
	if err := r.GetDB().GetContext(ctx, &patient, query, id); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, apperrors.NotFound("patient", err)
		}
		return nil, fmt.Errorf("failed to get patient: %w", err)
	}
	return &patient, nil
}

func (r *patientRepository) GetByShareToken(ctx context.Context, shareToken string) (*model.Patient, error) {
	query := `SELECT * FROM patients WHERE share_token = $1`
	var patient model.Patient
	if err := r.GetDB().GetContext(ctx, &patient, query, shareToken); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, apperrors.NotFound("patient", err)
		}
		return nil, fmt.Errorf("failed to get patient by share token: %w", err)
	}
	return &patient, nil
}

func (r *patientRepository) Update(ctx context.Context, patient *model.Patient) error {
	query := `
		UPDATE patients
		SET first_name = $1, last_name = $2, date_of_birth = $3, updated_at = $4
		WHERE id = $5
	`
	patient.UpdatedAt = time.Now()
	result, err := r.GetDB().ExecContext(ctx, query,
		patient.FirstName, patient.LastName, patient.DateOfBirth, patient.UpdatedAt, patient.ID,
	)
	if err != nil {
		return fmt.Errorf("failed to update patient: %w", err)
	}
	rows, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("failed to get rows affected: %w", err)
	}
	if rows == 0 {
		return apperrors.NotFound("patient", nil)
	}
	return nil
}

// Deactivate soft-deletes the patient. Grants referencing it stay untouched;
// the decision engine denies on inactive patients before consulting them.
func (r *patientRepository) Deactivate(ctx context.Context, id uuid.UUID) error {
	query := `UPDATE patients SET active = false, updated_at = $1 WHERE id = $2 AND active = true`
	result, err := r.GetDB().ExecContext(ctx, query, time.Now(), id)
	if err != nil {
		return fmt.Errorf("failed to deactivate patient: %w", err)
	}
	rows, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("failed to get rows affected: %w", err)
	}
	if rows == 0 {
		return apperrors.NotFound("patient", nil)
	}
	return nil
}

func (r *patientRepository) List(ctx context.Context, orgID uuid.UUID) ([]*model.Patient, error) {
	query := `SELECT * FROM patients WHERE organization_id = $1 AND active = true ORDER BY created_at`
	var patients []*model.Patient
	if err := r.GetDB().SelectContext(ctx, &patients, query, orgID); err != nil {
		return nil, fmt.Errorf("failed to list patients: %w", err)
	}
	return patients, nil
}
