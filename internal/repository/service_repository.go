package repository

import (
	"context"
	"database/sql"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/jmoiron/sqlx"

	"github.com/e-uprava/portal-api/internal/models"
)

// ServiceRepository handles persistence for the service catalog.
type ServiceRepository struct {
	db *sqlx.DB
}

// NewServiceRepository creates a new repository instance.
func NewServiceRepository(db *sqlx.DB) *ServiceRepository {
	return &ServiceRepository{db: db}
}

// List returns catalog entries matching the filter, sorted by name ascending.
func (r *ServiceRepository) List(ctx context.Context, filter models.ServiceFilter) ([]models.Service, error) {
	base := "SELECT id, institution_id, name, description, fee, requires_attachment, status, created_at, updated_at FROM services WHERE 1=1"
	var conditions []string
	var args []interface{}

	if filter.Status != nil {
		conditions = append(conditions, fmt.Sprintf("status = $%d", len(args)+1))
		args = append(args, *filter.Status)
	}
	if filter.InstitutionID != "" {
		conditions = append(conditions, fmt.Sprintf("institution_id = $%d", len(args)+1))
		args = append(args, filter.InstitutionID)
	}
	if filter.Search != "" {
		conditions = append(conditions, fmt.Sprintf("(LOWER(name) LIKE $%d OR LOWER(description) LIKE $%d)", len(args)+1, len(args)+1))
		args = append(args, "%"+strings.ToLower(filter.Search)+"%")
	}

	query := base
	if len(conditions) > 0 {
		query += " AND " + strings.Join(conditions, " AND ")
	}
	query += " ORDER BY name ASC"

	var services []models.Service
	if err := r.db.SelectContext(ctx, &services, query, args...); err != nil {
		return nil, fmt.Errorf("list services: %w", err)
	}
	return services, nil
}

// FindByID returns a service by id.
func (r *ServiceRepository) FindByID(ctx context.Context, id string) (*models.Service, error) {
	const query = `SELECT id, institution_id, name, description, fee, requires_attachment, status, created_at, updated_at FROM services WHERE id = $1`
	var service models.Service
	if err := r.db.GetContext(ctx, &service, query, id); err != nil {
		return nil, err
	}
	return &service, nil
}

// ExistsByName checks uniqueness of service name.
func (r *ServiceRepository) ExistsByName(ctx context.Context, name string, excludeID string) (bool, error) {
	query := "SELECT 1 FROM services WHERE LOWER(name) = LOWER($1)"
	args := []interface{}{name}
	if excludeID != "" {
		query += " AND id <> $2"
		args = append(args, excludeID)
	}

	var exists int
	if err := r.db.GetContext(ctx, &exists, query+" LIMIT 1", args...); err != nil {
		if err == sql.ErrNoRows {
			return false, nil
		}
		return false, fmt.Errorf("check service name: %w", err)
	}
	return true, nil
}

// Create persists a new catalog entry.
func (r *ServiceRepository) Create(ctx context.Context, service *models.Service) error {
	if service.ID == "" {
		service.ID = uuid.NewString()
	}
	now := time.Now().UTC()
	if service.CreatedAt.IsZero() {
		service.CreatedAt = now
	}
	service.UpdatedAt = now

	const query = `INSERT INTO services (id, institution_id, name, description, fee, requires_attachment, status, created_at, updated_at) VALUES (:id, :institution_id, :name, :description, :fee, :requires_attachment, :status, :created_at, :updated_at)`
	if _, err := r.db.NamedExecContext(ctx, query, service); err != nil {
		return fmt.Errorf("create service: %w", err)
	}
	return nil
}

// Update modifies a catalog entry.
func (r *ServiceRepository) Update(ctx context.Context, service *models.Service) error {
	service.UpdatedAt = time.Now().UTC()
	const query = `UPDATE services SET institution_id = :institution_id, name = :name, description = :description, fee = :fee, requires_attachment = :requires_attachment, status = :status, updated_at = :updated_at WHERE id = :id`
	if _, err := r.db.NamedExecContext(ctx, query, service); err != nil {
		return fmt.Errorf("update service: %w", err)
	}
	return nil
}

// Delete removes a service and cascades its field definitions in one
// transaction. Requests referencing the service are the caller's concern.
func (r *ServiceRepository) Delete(ctx context.Context, id string) error {
	tx, err := r.db.BeginTxx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin service delete: %w", err)
	}
	defer tx.Rollback() //nolint:errcheck

	if _, err := tx.ExecContext(ctx, `DELETE FROM service_fields WHERE service_id = $1`, id); err != nil {
		return fmt.Errorf("delete service fields: %w", err)
	}
	if _, err := tx.ExecContext(ctx, `DELETE FROM services WHERE id = $1`, id); err != nil {
		return fmt.Errorf("delete service: %w", err)
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("commit service delete: %w", err)
	}
	return nil
}

// CountRequests returns the number of requests referencing the service.
func (r *ServiceRepository) CountRequests(ctx context.Context, id string) (int, error) {
	const query = `SELECT COUNT(*) FROM service_requests WHERE service_id = $1`
	var count int
	if err := r.db.GetContext(ctx, &count, query, id); err != nil {
		return 0, fmt.Errorf("count service requests: %w", err)
	}
	return count, nil
}

// Count returns the total number of catalog entries.
func (r *ServiceRepository) Count(ctx context.Context) (int, error) {
	var count int
	if err := r.db.GetContext(ctx, &count, `SELECT COUNT(*) FROM services`); err != nil {
		return 0, fmt.Errorf("count services: %w", err)
	}
	return count, nil
}
