package repository

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/jmoiron/sqlx"

	"github.com/e-uprava/portal-api/internal/models"
)

// RequestRepository handles persistence for service requests.
type RequestRepository struct {
	db *sqlx.DB
}

// NewRequestRepository creates a new repository instance.
func NewRequestRepository(db *sqlx.DB) *RequestRepository {
	return &RequestRepository{db: db}
}

const requestColumns = `id, citizen_id, service_id, processed_by, status, citizen_note, officer_note, attachment, form_data, payment_status, payment_date, created_at, updated_at`

// List returns requests matching filters with pagination metadata.
func (r *RequestRepository) List(ctx context.Context, filter models.RequestFilter) ([]models.ServiceRequest, int, error) {
	base := "FROM service_requests WHERE 1=1"
	var conditions []string
	var args []interface{}

	if filter.CitizenID != "" {
		conditions = append(conditions, fmt.Sprintf("citizen_id = $%d", len(args)+1))
		args = append(args, filter.CitizenID)
	}
	if filter.ServiceID != "" {
		conditions = append(conditions, fmt.Sprintf("service_id = $%d", len(args)+1))
		args = append(args, filter.ServiceID)
	}
	if filter.ProcessedBy != "" {
		conditions = append(conditions, fmt.Sprintf("processed_by = $%d", len(args)+1))
		args = append(args, filter.ProcessedBy)
	}
	if filter.Status != nil {
		conditions = append(conditions, fmt.Sprintf("status = $%d", len(args)+1))
		args = append(args, *filter.Status)
	}
	if filter.Payment != nil {
		conditions = append(conditions, fmt.Sprintf("payment_status = $%d", len(args)+1))
		args = append(args, *filter.Payment)
	}

	if len(conditions) > 0 {
		base += " AND " + strings.Join(conditions, " AND ")
	}

	sortBy := filter.SortBy
	allowedSorts := map[string]bool{
		"status":     true,
		"created_at": true,
		"updated_at": true,
	}
	if !allowedSorts[sortBy] {
		sortBy = "created_at"
	}

	order := strings.ToUpper(filter.SortOrder)
	if order != "ASC" && order != "DESC" {
		order = "DESC"
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

	query := fmt.Sprintf("SELECT %s %s ORDER BY %s %s LIMIT %d OFFSET %d", requestColumns, base, sortBy, order, size, offset)
	var requests []models.ServiceRequest
	if err := r.db.SelectContext(ctx, &requests, query, args...); err != nil {
		return nil, 0, fmt.Errorf("list service requests: %w", err)
	}

	countQuery := fmt.Sprintf("SELECT COUNT(*) %s", base)
	var total int
	if err := r.db.GetContext(ctx, &total, countQuery, args...); err != nil {
		return nil, 0, fmt.Errorf("count service requests: %w", err)
	}

	return requests, total, nil
}

// FindByID returns a request by id.
func (r *RequestRepository) FindByID(ctx context.Context, id string) (*models.ServiceRequest, error) {
	query := fmt.Sprintf("SELECT %s FROM service_requests WHERE id = $1", requestColumns)
	var request models.ServiceRequest
	if err := r.db.GetContext(ctx, &request, query, id); err != nil {
		return nil, err
	}
	return &request, nil
}

// Create persists a new request.
func (r *RequestRepository) Create(ctx context.Context, request *models.ServiceRequest) error {
	if request.ID == "" {
		request.ID = uuid.NewString()
	}
	now := time.Now().UTC()
	if request.CreatedAt.IsZero() {
		request.CreatedAt = now
	}
	request.UpdatedAt = now

	const query = `INSERT INTO service_requests (id, citizen_id, service_id, processed_by, status, citizen_note, officer_note, attachment, form_data, payment_status, payment_date, created_at, updated_at) VALUES (:id, :citizen_id, :service_id, :processed_by, :status, :citizen_note, :officer_note, :attachment, :form_data, :payment_status, :payment_date, :created_at, :updated_at)`
	if _, err := r.db.NamedExecContext(ctx, query, request); err != nil {
		return fmt.Errorf("create service request: %w", err)
	}
	return nil
}

// UpdateDraft replaces the citizen-editable part of a draft request.
func (r *RequestRepository) UpdateDraft(ctx context.Context, request *models.ServiceRequest) error {
	request.UpdatedAt = time.Now().UTC()
	const query = `UPDATE service_requests SET citizen_note = :citizen_note, attachment = :attachment, form_data = :form_data, updated_at = :updated_at WHERE id = :id`
	if _, err := r.db.NamedExecContext(ctx, query, request); err != nil {
		return fmt.Errorf("update draft request: %w", err)
	}
	return nil
}

// UpdateStatus sets the lifecycle status and optional officer note.
func (r *RequestRepository) UpdateStatus(ctx context.Context, id string, status models.RequestStatus, officerNote *string, updatedAt time.Time) error {
	const query = `UPDATE service_requests SET status = $2, officer_note = COALESCE($3, officer_note), updated_at = $4 WHERE id = $1`
	if _, err := r.db.ExecContext(ctx, query, id, status, officerNote, updatedAt); err != nil {
		return fmt.Errorf("update request status: %w", err)
	}
	return nil
}

// Assign claims an unassigned request for an officer. The conditional WHERE
// makes concurrent claims resolve to exactly one winner; the loser sees zero
// rows affected.
func (r *RequestRepository) Assign(ctx context.Context, id, officerID string, updatedAt time.Time) (bool, error) {
	const query = `UPDATE service_requests SET processed_by = $2, updated_at = $3 WHERE id = $1 AND processed_by IS NULL`
	result, err := r.db.ExecContext(ctx, query, id, officerID, updatedAt)
	if err != nil {
		return false, fmt.Errorf("assign request: %w", err)
	}
	affected, err := result.RowsAffected()
	if err != nil {
		return false, fmt.Errorf("assign request rows: %w", err)
	}
	return affected == 1, nil
}

// UpdatePayment sets the payment sub-state and payment date.
func (r *RequestRepository) UpdatePayment(ctx context.Context, id string, status models.PaymentStatus, paymentDate *time.Time, updatedAt time.Time) error {
	const query = `UPDATE service_requests SET payment_status = $2, payment_date = $3, updated_at = $4 WHERE id = $1`
	if _, err := r.db.ExecContext(ctx, query, id, status, paymentDate, updatedAt); err != nil {
		return fmt.Errorf("update request payment: %w", err)
	}
	return nil
}

// Delete removes a request record.
func (r *RequestRepository) Delete(ctx context.Context, id string) error {
	if _, err := r.db.ExecContext(ctx, `DELETE FROM service_requests WHERE id = $1`, id); err != nil {
		return fmt.Errorf("delete service request: %w", err)
	}
	return nil
}

// Count returns the total number of requests.
func (r *RequestRepository) Count(ctx context.Context) (int, error) {
	var count int
	if err := r.db.GetContext(ctx, &count, `SELECT COUNT(*) FROM service_requests`); err != nil {
		return 0, fmt.Errorf("count requests: %w", err)
	}
	return count, nil
}

// CountByStatus aggregates request totals per lifecycle status.
func (r *RequestRepository) CountByStatus(ctx context.Context) ([]models.StatusCount, error) {
	const query = `SELECT status, COUNT(*) AS count FROM service_requests GROUP BY status ORDER BY status`
	var counts []models.StatusCount
	if err := r.db.SelectContext(ctx, &counts, query); err != nil {
		return nil, fmt.Errorf("count requests by status: %w", err)
	}
	return counts, nil
}

// CountByPayment aggregates request totals per payment status.
func (r *RequestRepository) CountByPayment(ctx context.Context) ([]models.PaymentCount, error) {
	const query = `SELECT payment_status, COUNT(*) AS count FROM service_requests GROUP BY payment_status ORDER BY payment_status`
	var counts []models.PaymentCount
	if err := r.db.SelectContext(ctx, &counts, query); err != nil {
		return nil, fmt.Errorf("count requests by payment: %w", err)
	}
	return counts, nil
}

// CountByService aggregates request totals per service.
func (r *RequestRepository) CountByService(ctx context.Context) ([]models.ServiceCount, error) {
	const query = `SELECT sr.service_id, s.name AS service_name, COUNT(*) AS count FROM service_requests sr JOIN services s ON s.id = sr.service_id GROUP BY sr.service_id, s.name ORDER BY count DESC`
	var counts []models.ServiceCount
	if err := r.db.SelectContext(ctx, &counts, query); err != nil {
		return nil, fmt.Errorf("count requests by service: %w", err)
	}
	return counts, nil
}
