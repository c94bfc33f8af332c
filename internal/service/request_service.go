package service

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/e-uprava/portal-api/internal/formdata"
	"github.com/e-uprava/portal-api/internal/models"
	appErrors "github.com/e-uprava/portal-api/pkg/errors"
)

type requestRepository interface {
	List(ctx context.Context, filter models.RequestFilter) ([]models.ServiceRequest, int, error)
	FindByID(ctx context.Context, id string) (*models.ServiceRequest, error)
	Create(ctx context.Context, request *models.ServiceRequest) error
	UpdateDraft(ctx context.Context, request *models.ServiceRequest) error
	UpdateStatus(ctx context.Context, id string, status models.RequestStatus, officerNote *string, updatedAt time.Time) error
	Assign(ctx context.Context, id, officerID string, updatedAt time.Time) (bool, error)
	UpdatePayment(ctx context.Context, id string, status models.PaymentStatus, paymentDate *time.Time, updatedAt time.Time) error
	Delete(ctx context.Context, id string) error
}

type requestCatalogRepository interface {
	FindByID(ctx context.Context, id string) (*models.Service, error)
}

type requestFieldRepository interface {
	ListByService(ctx context.Context, serviceID string) ([]models.ServiceField, error)
}

// CreateRequestPayload opens a new draft for a service.
type CreateRequestPayload struct {
	ServiceID   string                 `json:"service_id" validate:"required"`
	CitizenNote *string                `json:"citizen_note"`
	Attachment  *string                `json:"attachment"`
	FormValues  map[string]interface{} `json:"form_data"`
}

// UpdateRequestPayload replaces the editable parts of a draft.
type UpdateRequestPayload struct {
	CitizenNote *string                `json:"citizen_note"`
	Attachment  *string                `json:"attachment"`
	FormValues  map[string]interface{} `json:"form_data"`
}

// UpdateStatusPayload moves a request to a review outcome.
type UpdateStatusPayload struct {
	Status      models.RequestStatus `json:"status" validate:"required,oneof=IN_REVIEW APPROVED REJECTED"`
	OfficerNote *string              `json:"officer_note"`
}

// UpdatePaymentPayload changes the payment sub-state.
type UpdatePaymentPayload struct {
	PaymentStatus models.PaymentStatus `json:"payment_status" validate:"required,oneof=NOT_PAID PENDING PAID"`
}

// RequestService drives the service-request lifecycle: draft, submit,
// assignment, review outcomes, payment and deletion.
type RequestService struct {
	repo      requestRepository
	catalog   requestCatalogRepository
	fields    requestFieldRepository
	audit     institutionAuditRepository
	cache     *CacheService
	metrics   *MetricsService
	validator *validator.Validate
	logger    *zap.Logger
}

// NewRequestService constructs a RequestService.
func NewRequestService(
	repo requestRepository,
	catalog requestCatalogRepository,
	fields requestFieldRepository,
	audit institutionAuditRepository,
	cache *CacheService,
	metrics *MetricsService,
	validate *validator.Validate,
	logger *zap.Logger,
) *RequestService {
	if logger == nil {
		logger = zap.NewNop()
	}
	if validate == nil {
		validate = validator.New()
	}
	return &RequestService{
		repo:      repo,
		catalog:   catalog,
		fields:    fields,
		audit:     audit,
		cache:     cache,
		metrics:   metrics,
		validator: validate,
		logger:    logger,
	}
}

// List returns requests visible to the caller. Citizens only ever see their
// own requests; the ownership filter is applied here, not by the client.
func (s *RequestService) List(ctx context.Context, actor models.JWTClaims, filter models.RequestFilter) ([]models.ServiceRequest, *models.Pagination, error) {
	if actor.Role == models.RoleCitizen {
		filter.CitizenID = actor.UserID
	}

	requests, total, err := s.repo.List(ctx, filter)
	if err != nil {
		return nil, nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to list requests")
	}

	page := filter.Page
	if page < 1 {
		page = 1
	}
	pageSize := filter.PageSize
	if pageSize <= 0 {
		pageSize = 20
	}

	return requests, &models.Pagination{Page: page, PageSize: pageSize, TotalCount: total}, nil
}

// Get returns one request. Citizens may only read their own.
func (s *RequestService) Get(ctx context.Context, actor models.JWTClaims, id string) (*models.ServiceRequest, error) {
	request, err := s.loadRequest(ctx, id)
	if err != nil {
		return nil, err
	}
	if actor.Role == models.RoleCitizen && request.CitizenID != actor.UserID {
		// Hide rather than admit existence.
		return nil, appErrors.Clone(appErrors.ErrNotFound, "request not found")
	}
	return request, nil
}

// Create opens a DRAFT request against an ACTIVE service. The form values
// are normalized through the field schema before being stored, and the
// payment sub-state is derived from the service fee.
func (s *RequestService) Create(ctx context.Context, actor models.JWTClaims, req CreateRequestPayload) (*models.ServiceRequest, error) {
	if actor.Role != models.RoleCitizen {
		return nil, appErrors.Clone(appErrors.ErrForbidden, "only citizens may open requests")
	}
	if err := s.validator.Struct(req); err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrValidation.Code, appErrors.ErrValidation.Status, "invalid request payload")
	}

	service, err := s.catalog.FindByID(ctx, req.ServiceID)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, appErrors.Clone(appErrors.ErrNotFound, "service not found")
		}
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to load service")
	}
	if service.Status != models.ServiceActive {
		return nil, appErrors.Clone(appErrors.ErrNotFound, "service not found")
	}

	fields, err := s.fields.ListByService(ctx, service.ID)
	if err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to load fields")
	}

	payment := models.PaymentNotRequired
	if service.Fee > 0 {
		payment = models.PaymentNotPaid
	}

	now := time.Now().UTC()
	request := &models.ServiceRequest{
		ID:            uuid.NewString(),
		CitizenID:     actor.UserID,
		ServiceID:     service.ID,
		Status:        models.RequestDraft,
		CitizenNote:   req.CitizenNote,
		Attachment:    req.Attachment,
		FormData:      formdata.BuildPayload(fields, req.FormValues),
		PaymentStatus: payment,
		CreatedAt:     now,
		UpdatedAt:     now,
	}

	if err := s.repo.Create(ctx, request); err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to create request")
	}

	s.afterMutation(ctx, actor.UserID, request.ID, models.AuditActionRequestCreate, "create", nil, request)
	return request, nil
}

// Update replaces the editable parts of a draft. Only the owning citizen may
// edit, and only while the request is still in DRAFT.
func (s *RequestService) Update(ctx context.Context, actor models.JWTClaims, id string, req UpdateRequestPayload) (*models.ServiceRequest, error) {
	request, err := s.loadRequest(ctx, id)
	if err != nil {
		return nil, err
	}
	if request.CitizenID != actor.UserID {
		if actor.Role == models.RoleCitizen {
			return nil, appErrors.Clone(appErrors.ErrNotFound, "request not found")
		}
		return nil, appErrors.Clone(appErrors.ErrForbidden, "only the owner may edit a draft")
	}
	if request.Status != models.RequestDraft {
		return nil, appErrors.Clone(appErrors.ErrConflict, "only drafts can be edited")
	}

	fields, err := s.fields.ListByService(ctx, request.ServiceID)
	if err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to load fields")
	}

	previous := *request
	request.CitizenNote = req.CitizenNote
	request.Attachment = req.Attachment
	if req.FormValues != nil {
		request.FormData = formdata.BuildPayload(fields, req.FormValues)
	}
	request.UpdatedAt = time.Now().UTC()

	if err := s.repo.UpdateDraft(ctx, request); err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to update request")
	}

	s.afterMutation(ctx, actor.UserID, request.ID, models.AuditActionRequestUpdate, "update", &previous, request)
	return request, nil
}

// Submit moves a draft to SUBMITTED after required-field validation. A
// failed validation leaves the request untouched in DRAFT.
func (s *RequestService) Submit(ctx context.Context, actor models.JWTClaims, id string) (*models.ServiceRequest, error) {
	request, err := s.loadRequest(ctx, id)
	if err != nil {
		return nil, err
	}
	if request.CitizenID != actor.UserID {
		if actor.Role == models.RoleCitizen {
			return nil, appErrors.Clone(appErrors.ErrNotFound, "request not found")
		}
		return nil, appErrors.Clone(appErrors.ErrForbidden, "only the owner may submit")
	}
	if request.Status != models.RequestDraft {
		return nil, appErrors.Clone(appErrors.ErrConflict, "only drafts can be submitted")
	}

	service, err := s.catalog.FindByID(ctx, request.ServiceID)
	if err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to load service")
	}

	fields, err := s.fields.ListByService(ctx, request.ServiceID)
	if err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to load fields")
	}

	if err := formdata.ValidateRequired(fields, request.FormData); err != nil {
		return nil, err
	}
	if service.RequiresAttachment && (request.Attachment == nil || *request.Attachment == "") {
		return nil, appErrors.Clone(appErrors.ErrValidation, "an attachment is required for this service")
	}

	now := time.Now().UTC()
	if err := s.repo.UpdateStatus(ctx, id, models.RequestSubmitted, nil, now); err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to submit request")
	}

	previous := *request
	request.Status = models.RequestSubmitted
	request.UpdatedAt = now

	s.afterMutation(ctx, actor.UserID, request.ID, models.AuditActionRequestSubmit, "submit", &previous, request)
	return request, nil
}

// Assign claims a SUBMITTED request for the calling officer. The claim is an
// atomic conditional update; when two officers race, exactly one wins and the
// other gets a conflict.
func (s *RequestService) Assign(ctx context.Context, actor models.JWTClaims, id string) (*models.ServiceRequest, error) {
	if actor.Role != models.RoleOfficer && actor.Role != models.RoleAdmin {
		return nil, appErrors.Clone(appErrors.ErrForbidden, "only officers may claim requests")
	}

	request, err := s.loadRequest(ctx, id)
	if err != nil {
		return nil, err
	}
	if request.Status != models.RequestSubmitted {
		return nil, appErrors.Clone(appErrors.ErrConflict, "only submitted requests can be claimed")
	}

	now := time.Now().UTC()
	claimed, err := s.repo.Assign(ctx, id, actor.UserID, now)
	if err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to claim request")
	}
	if !claimed {
		return nil, appErrors.Clone(appErrors.ErrConflict, "request is already claimed")
	}

	previous := *request
	request.ProcessedBy = &actor.UserID
	request.UpdatedAt = now

	s.afterMutation(ctx, actor.UserID, request.ID, models.AuditActionRequestAssign, "assign", &previous, request)
	return request, nil
}

// UpdateStatus moves a request to IN_REVIEW, APPROVED or REJECTED. Any
// officer may transition any request; terminal requests are immutable.
func (s *RequestService) UpdateStatus(ctx context.Context, actor models.JWTClaims, id string, req UpdateStatusPayload) (*models.ServiceRequest, error) {
	if actor.Role != models.RoleOfficer && actor.Role != models.RoleAdmin {
		return nil, appErrors.Clone(appErrors.ErrForbidden, "only officers may change request status")
	}
	if err := s.validator.Struct(req); err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrValidation.Code, appErrors.ErrValidation.Status, "invalid status payload")
	}

	request, err := s.loadRequest(ctx, id)
	if err != nil {
		return nil, err
	}
	if request.Status.Terminal() {
		return nil, appErrors.Clone(appErrors.ErrConflict, "request is already finalized")
	}

	now := time.Now().UTC()
	if err := s.repo.UpdateStatus(ctx, id, req.Status, req.OfficerNote, now); err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to update status")
	}

	previous := *request
	request.Status = req.Status
	if req.OfficerNote != nil {
		request.OfficerNote = req.OfficerNote
	}
	request.UpdatedAt = now

	s.afterMutation(ctx, actor.UserID, request.ID, models.AuditActionRequestStatus, "status", &previous, request)
	return request, nil
}

// UpdatePayment changes the payment sub-state. It is independent of the
// lifecycle status: approving a request never implies payment, and payment
// never advances the request.
func (s *RequestService) UpdatePayment(ctx context.Context, actor models.JWTClaims, id string, req UpdatePaymentPayload) (*models.ServiceRequest, error) {
	if actor.Role != models.RoleOfficer && actor.Role != models.RoleAdmin {
		return nil, appErrors.Clone(appErrors.ErrForbidden, "only officers may change payment status")
	}
	if err := s.validator.Struct(req); err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrValidation.Code, appErrors.ErrValidation.Status, "invalid payment payload")
	}

	request, err := s.loadRequest(ctx, id)
	if err != nil {
		return nil, err
	}
	if request.PaymentStatus == models.PaymentNotRequired {
		return nil, appErrors.Clone(appErrors.ErrValidation, "request has no fee to pay")
	}

	now := time.Now().UTC()
	var paymentDate *time.Time
	if req.PaymentStatus == models.PaymentPaid {
		paymentDate = &now
	}

	if err := s.repo.UpdatePayment(ctx, id, req.PaymentStatus, paymentDate, now); err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to update payment")
	}

	previous := *request
	request.PaymentStatus = req.PaymentStatus
	request.PaymentDate = paymentDate
	request.UpdatedAt = now

	s.afterMutation(ctx, actor.UserID, request.ID, models.AuditActionRequestPayment, "payment", &previous, request)
	return request, nil
}

// Delete removes a request. Only the owning citizen or an admin may delete.
func (s *RequestService) Delete(ctx context.Context, actor models.JWTClaims, id string) error {
	request, err := s.loadRequest(ctx, id)
	if err != nil {
		return err
	}
	if actor.Role != models.RoleAdmin && request.CitizenID != actor.UserID {
		if actor.Role == models.RoleCitizen {
			return appErrors.Clone(appErrors.ErrNotFound, "request not found")
		}
		return appErrors.Clone(appErrors.ErrForbidden, "only the owner or an admin may delete")
	}

	if err := s.repo.Delete(ctx, id); err != nil {
		return appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to delete request")
	}

	s.afterMutation(ctx, actor.UserID, request.ID, models.AuditActionRequestDelete, "delete", request, nil)
	return nil
}

func (s *RequestService) loadRequest(ctx context.Context, id string) (*models.ServiceRequest, error) {
	request, err := s.repo.FindByID(ctx, id)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, appErrors.Clone(appErrors.ErrNotFound, "request not found")
		}
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to load request")
	}
	return request, nil
}

func (s *RequestService) afterMutation(ctx context.Context, actorID, requestID, auditAction, transition string, oldValue, newValue *models.ServiceRequest) {
	s.metrics.RecordTransition(transition)

	if s.cache != nil {
		if err := s.cache.Invalidate(ctx, "stats:*"); err != nil {
			s.logger.Warn("failed to invalidate stats cache", zap.Error(err))
		}
	}

	if s.audit == nil {
		return
	}
	var oldJSON, newJSON []byte
	if oldValue != nil {
		oldJSON, _ = json.Marshal(oldValue)
	}
	if newValue != nil {
		newJSON, _ = json.Marshal(newValue)
	}
	if err := s.audit.CreateAuditLog(ctx, &models.AuditLog{
		UserID:     &actorID,
		Action:     auditAction,
		Resource:   "service_requests",
		ResourceID: &requestID,
		OldValues:  oldJSON,
		NewValues:  newJSON,
	}); err != nil {
		s.logger.Warn("failed to record request audit log", zap.Error(err))
	}
}
