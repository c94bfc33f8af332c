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

// InstitutionRepository handles persistence for institutions.
type InstitutionRepository struct {
	db *sqlx.DB
}

// NewInstitutionRepository creates a new repository instance.
func NewInstitutionRepository(db *sqlx.DB) *InstitutionRepository {
	return &InstitutionRepository{db: db}
}

// List returns institutions matching filters with pagination metadata.
func (r *InstitutionRepository) List(ctx context.Context, filter models.InstitutionFilter) ([]models.Institution, int, error) {
	base := "FROM institutions WHERE 1=1"
	var conditions []string
	var args []interface{}

	if filter.City != "" {
		conditions = append(conditions, fmt.Sprintf("LOWER(city) = LOWER($%d)", len(args)+1))
		args = append(args, filter.City)
	}
	if filter.Search != "" {
		conditions = append(conditions, fmt.Sprintf("(LOWER(name) LIKE $%d OR LOWER(city) LIKE $%d)", len(args)+1, len(args)+1))
		args = append(args, "%"+strings.ToLower(filter.Search)+"%")
	}

	if len(conditions) > 0 {
		base += " AND " + strings.Join(conditions, " AND ")
	}

	sortBy := filter.SortBy
	allowedSorts := map[string]bool{
		"name":       true,
		"city":       true,
		"created_at": true,
	}
	if !allowedSorts[sortBy] {
		sortBy = "name"
	}

	order := strings.ToUpper(filter.SortOrder)
	if order != "ASC" && order != "DESC" {
		order = "ASC"
	}

	page := filter.Page
	if page < 1 {
		page = 1
	}
	size := filter.PageSize
	if size <= 0 || size > 100 {
		size = 20
	}
	offset := (page - 1) * size

	query := fmt.Sprintf("SELECT id, name, city, address, email, created_at, updated_at %s ORDER BY %s %s LIMIT %d OFFSET %d", base, sortBy, order, size, offset)
	var institutions []models.Institution
	if err := r.db.SelectContext(ctx, &institutions, query, args...); err != nil {
		return nil, 0, fmt.Errorf("list institutions: %w", err)
	}

	countQuery := fmt.Sprintf("SELECT COUNT(*) %s", base)
	var total int
	if err := r.db.GetContext(ctx, &total, countQuery, args...); err != nil {
		return nil, 0, fmt.Errorf("count institutions: %w", err)
	}

	return institutions, total, nil
}

// FindByID returns an institution by id.
func (r *InstitutionRepository) FindByID(ctx context.Context, id string) (*models.Institution, error) {
	const query = `SELECT id, name, city, address, email, created_at, updated_at FROM institutions WHERE id = $1`
	var institution models.Institution
	if err := r.db.GetContext(ctx, &institution, query, id); err != nil {
		return nil, err
	}
	return &institution, nil
}

// ExistsByName checks uniqueness of institution name.
func (r *InstitutionRepository) ExistsByName(ctx context.Context, name string, excludeID string) (bool, error) {
	query := "SELECT 1 FROM institutions WHERE LOWER(name) = LOWER($1)"
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
		return false, fmt.Errorf("check institution name: %w", err)
	}
	return true, nil
}

// Create persists a new institution.
func (r *InstitutionRepository) Create(ctx context.Context, institution *models.Institution) error {
	if institution.ID == "" {
		institution.ID = uuid.NewString()
	}
	now := time.Now().UTC()
	if institution.CreatedAt.IsZero() {
		institution.CreatedAt = now
	}
	institution.UpdatedAt = now

	const query = `INSERT INTO institutions (id, name, city, address, email, created_at, updated_at) VALUES (:id, :name, :city, :address, :email, :created_at, :updated_at)`
	if _, err := r.db.NamedExecContext(ctx, query, institution); err != nil {
		return fmt.Errorf("create institution: %w", err)
	}
	return nil
}

// Update modifies an institution.
func (r *InstitutionRepository) Update(ctx context.Context, institution *models.Institution) error {
	institution.UpdatedAt = time.Now().UTC()
	const query = `UPDATE institutions SET name = :name, city = :city, address = :address, email = :email, updated_at = :updated_at WHERE id = :id`
	if _, err := r.db.NamedExecContext(ctx, query, institution); err != nil {
		return fmt.Errorf("update institution: %w", err)
	}
	return nil
}

// Delete removes an institution record.
func (r *InstitutionRepository) Delete(ctx context.Context, id string) error {
	if _, err := r.db.ExecContext(ctx, `DELETE FROM institutions WHERE id = $1`, id); err != nil {
		return fmt.Errorf("delete institution: %w", err)
	}
	return nil
}

// CountServices returns the number of services referencing the institution.
func (r *InstitutionRepository) CountServices(ctx context.Context, id string) (int, error) {
	const query = `SELECT COUNT(*) FROM services WHERE institution_id = $1`
	var count int
	if err := r.db.GetContext(ctx, &count, query, id); err != nil {
		return 0, fmt.Errorf("count institution services: %w", err)
	}
	return count, nil
}

// Count returns the total number of institutions.
func (r *InstitutionRepository) Count(ctx context.Context) (int, error) {
	var count int
	if err := r.db.GetContext(ctx, &count, `SELECT COUNT(*) FROM institutions`); err != nil {
		return 0, fmt.Errorf("count institutions: %w", err)
	}
	return count, nil
}
