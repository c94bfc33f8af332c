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

	"github.com/e-uprava/portal-api/internal/models"
	appErrors "github.com/e-uprava/portal-api/pkg/errors"
)

type catalogRepository interface {
	List(ctx context.Context, filter models.ServiceFilter) ([]models.Service, error)
	FindByID(ctx context.Context, id string) (*models.Service, error)
	ExistsByName(ctx context.Context, name string, excludeID string) (bool, error)
	Create(ctx context.Context, service *models.Service) error
	Update(ctx context.Context, service *models.Service) error
	Delete(ctx context.Context, id string) error
	CountRequests(ctx context.Context, id string) (int, error)
}

type catalogInstitutionRepository interface {
	FindByID(ctx context.Context, id string) (*models.Institution, error)
}

// ServiceRequestPayload is the admin payload for creating or updating a
// catalog service.
type ServiceRequestPayload struct {
	InstitutionID      string               `json:"institution_id" validate:"required"`
	Name               string               `json:"name" validate:"required"`
	Description        string               `json:"description"`
	Fee                float64              `json:"fee" validate:"gte=0"`
	RequiresAttachment bool                 `json:"requires_attachment"`
	Status             models.ServiceStatus `json:"status" validate:"required,oneof=ACTIVE INACTIVE"`
}

// CatalogService manages the service catalog. Non-admin callers only see
// ACTIVE services; all writes are admin only.
type CatalogService struct {
	repo         catalogRepository
	institutions catalogInstitutionRepository
	audit        institutionAuditRepository
	validator    *validator.Validate
	logger       *zap.Logger
}

// NewCatalogService constructs a CatalogService.
func NewCatalogService(repo catalogRepository, institutions catalogInstitutionRepository, audit institutionAuditRepository, validate *validator.Validate, logger *zap.Logger) *CatalogService {
	if logger == nil {
		logger = zap.NewNop()
	}
	if validate == nil {
		validate = validator.New()
	}
	return &CatalogService{repo: repo, institutions: institutions, audit: audit, validator: validate, logger: logger}
}

// List returns catalog services visible to the caller. Citizens and officers
// are restricted to ACTIVE services regardless of the requested filter.
func (s *CatalogService) List(ctx context.Context, actor models.JWTClaims, filter models.ServiceFilter) ([]models.Service, error) {
	if actor.Role != models.RoleAdmin {
		active := models.ServiceActive
		filter.Status = &active
	}

	services, err := s.repo.List(ctx, filter)
	if err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to list services")
	}
	return services, nil
}

// Get returns a single catalog service with its institution. Inactive
// services are hidden from non-admin callers.
func (s *CatalogService) Get(ctx context.Context, actor models.JWTClaims, id string) (*models.Service, error) {
	service, err := s.repo.FindByID(ctx, id)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, appErrors.Clone(appErrors.ErrNotFound, "service not found")
		}
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to load service")
	}

	if service.Status != models.ServiceActive && actor.Role != models.RoleAdmin {
		return nil, appErrors.Clone(appErrors.ErrNotFound, "service not found")
	}

	if institution, err := s.institutions.FindByID(ctx, service.InstitutionID); err == nil {
		service.Institution = institution
	}
	return service, nil
}

// Create adds a new catalog service. Admin only.
func (s *CatalogService) Create(ctx context.Context, actor models.JWTClaims, req ServiceRequestPayload) (*models.Service, error) {
	if actor.Role != models.RoleAdmin {
		return nil, appErrors.Clone(appErrors.ErrForbidden, "only admins may create services")
	}
	if err := s.validator.Struct(req); err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrValidation.Code, appErrors.ErrValidation.Status, "invalid service payload")
	}

	if _, err := s.institutions.FindByID(ctx, req.InstitutionID); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, appErrors.Clone(appErrors.ErrValidation, "institution does not exist")
		}
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to load institution")
	}

	exists, err := s.repo.ExistsByName(ctx, req.Name, "")
	if err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to check service name")
	}
	if exists {
		return nil, appErrors.Clone(appErrors.ErrConflict, "service name already exists")
	}

	now := time.Now().UTC()
	service := &models.Service{
		ID:                 uuid.NewString(),
		InstitutionID:      req.InstitutionID,
		Name:               req.Name,
		Description:        req.Description,
		Fee:                req.Fee,
		RequiresAttachment: req.RequiresAttachment,
		Status:             req.Status,
		CreatedAt:          now,
		UpdatedAt:          now,
	}

	if err := s.repo.Create(ctx, service); err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to create service")
	}

	s.recordAudit(ctx, actor.UserID, service.ID, nil, service)
	return service, nil
}

// Update modifies an existing catalog service. Admin only.
func (s *CatalogService) Update(ctx context.Context, actor models.JWTClaims, id string, req ServiceRequestPayload) (*models.Service, error) {
	if actor.Role != models.RoleAdmin {
		return nil, appErrors.Clone(appErrors.ErrForbidden, "only admins may update services")
	}
	if err := s.validator.Struct(req); err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrValidation.Code, appErrors.ErrValidation.Status, "invalid service payload")
	}

	service, err := s.repo.FindByID(ctx, id)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, appErrors.Clone(appErrors.ErrNotFound, "service not found")
		}
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to load service")
	}

	if req.InstitutionID != service.InstitutionID {
		if _, err := s.institutions.FindByID(ctx, req.InstitutionID); err != nil {
			if errors.Is(err, sql.ErrNoRows) {
				return nil, appErrors.Clone(appErrors.ErrValidation, "institution does not exist")
			}
			return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to load institution")
		}
	}

	exists, err := s.repo.ExistsByName(ctx, req.Name, id)
	if err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to check service name")
	}
	if exists {
		return nil, appErrors.Clone(appErrors.ErrConflict, "service name already exists")
	}

	previous := *service
	service.InstitutionID = req.InstitutionID
	service.Name = req.Name
	service.Description = req.Description
	service.Fee = req.Fee
	service.RequiresAttachment = req.RequiresAttachment
	service.Status = req.Status
	service.UpdatedAt = time.Now().UTC()

	if err := s.repo.Update(ctx, service); err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to update service")
	}

	s.recordAudit(ctx, actor.UserID, service.ID, &previous, service)
	return service, nil
}

// Delete removes a catalog service and its field definitions. Admin only;
// services with existing requests cannot be deleted.
func (s *CatalogService) Delete(ctx context.Context, actor models.JWTClaims, id string) error {
	if actor.Role != models.RoleAdmin {
		return appErrors.Clone(appErrors.ErrForbidden, "only admins may delete services")
	}

	service, err := s.repo.FindByID(ctx, id)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return appErrors.Clone(appErrors.ErrNotFound, "service not found")
		}
		return appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to load service")
	}

	count, err := s.repo.CountRequests(ctx, id)
	if err != nil {
		return appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to count requests")
	}
	if count > 0 {
		return appErrors.Clone(appErrors.ErrPreconditionFailed, "service has submitted requests")
	}

	if err := s.repo.Delete(ctx, id); err != nil {
		return appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to delete service")
	}

	s.recordAudit(ctx, actor.UserID, service.ID, service, nil)
	return nil
}

func (s *CatalogService) recordAudit(ctx context.Context, actorID, serviceID string, oldValue, newValue *models.Service) {
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
		Action:     models.AuditActionServiceWrite,
		Resource:   "services",
		ResourceID: &serviceID,
		OldValues:  oldJSON,
		NewValues:  newJSON,
	}); err != nil {
		s.logger.Warn("failed to record service audit log", zap.Error(err))
	}
}
