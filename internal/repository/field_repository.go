package repository

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/jmoiron/sqlx"

	"github.com/e-uprava/portal-api/internal/models"
)

// FieldRepository handles persistence for dynamic form field definitions.
type FieldRepository struct {
	db *sqlx.DB
}

// NewFieldRepository creates a new repository instance.
func NewFieldRepository(db *sqlx.DB) *FieldRepository {
	return &FieldRepository{db: db}
}

// ListByService returns a service's field definitions ordered by sort_order
// ascending with creation time breaking ties.
func (r *FieldRepository) ListByService(ctx context.Context, serviceID string) ([]models.ServiceField, error) {
	const query = `SELECT id, service_id, key, label, data_type, is_required, options, validation_rules, sort_order, created_at, updated_at FROM service_fields WHERE service_id = $1 ORDER BY sort_order ASC, created_at ASC`
	var fields []models.ServiceField
	if err := r.db.SelectContext(ctx, &fields, query, serviceID); err != nil {
		return nil, fmt.Errorf("list service fields: %w", err)
	}
	return fields, nil
}

// FindByID returns a field definition by id.
func (r *FieldRepository) FindByID(ctx context.Context, id string) (*models.ServiceField, error) {
	const query = `SELECT id, service_id, key, label, data_type, is_required, options, validation_rules, sort_order, created_at, updated_at FROM service_fields WHERE id = $1`
	var field models.ServiceField
	if err := r.db.GetContext(ctx, &field, query, id); err != nil {
		return nil, err
	}
	return &field, nil
}

// ExistsByKey checks key uniqueness within a service.
func (r *FieldRepository) ExistsByKey(ctx context.Context, serviceID, key string, excludeID string) (bool, error) {
	query := "SELECT 1 FROM service_fields WHERE service_id = $1 AND key = $2"
	args := []interface{}{serviceID, key}
	if excludeID != "" {
		query += " AND id <> $3"
		args = append(args, excludeID)
	}

	var exists int
	if err := r.db.GetContext(ctx, &exists, query+" LIMIT 1", args...); err != nil {
		if err == sql.ErrNoRows {
			return false, nil
		}
		return false, fmt.Errorf("check field key: %w", err)
	}
	return true, nil
}

// Create persists a new field definition.
func (r *FieldRepository) Create(ctx context.Context, field *models.ServiceField) error {
	if field.ID == "" {
		field.ID = uuid.NewString()
	}
	now := time.Now().UTC()
	if field.CreatedAt.IsZero() {
		field.CreatedAt = now
	}
	field.UpdatedAt = now

	const query = `INSERT INTO service_fields (id, service_id, key, label, data_type, is_required, options, validation_rules, sort_order, created_at, updated_at) VALUES (:id, :service_id, :key, :label, :data_type, :is_required, :options, :validation_rules, :sort_order, :created_at, :updated_at)`
	if _, err := r.db.NamedExecContext(ctx, query, field); err != nil {
		return fmt.Errorf("create service field: %w", err)
	}
	return nil
}

// Update modifies a field definition.
func (r *FieldRepository) Update(ctx context.Context, field *models.ServiceField) error {
	field.UpdatedAt = time.Now().UTC()
	const query = `UPDATE service_fields SET key = :key, label = :label, data_type = :data_type, is_required = :is_required, options = :options, validation_rules = :validation_rules, sort_order = :sort_order, updated_at = :updated_at WHERE id = :id`
	if _, err := r.db.NamedExecContext(ctx, query, field); err != nil {
		return fmt.Errorf("update service field: %w", err)
	}
	return nil
}

// Delete removes a field definition. Historical request payloads keep the
// values recorded under the deleted key.
func (r *FieldRepository) Delete(ctx context.Context, id string) error {
	if _, err := r.db.ExecContext(ctx, `DELETE FROM service_fields WHERE id = $1`, id); err != nil {
		return fmt.Errorf("delete service field: %w", err)
	}
	return nil
}
