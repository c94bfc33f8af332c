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

type fieldRepository interface {
	ListByService(ctx context.Context, serviceID string) ([]models.ServiceField, error)
	FindByID(ctx context.Context, id string) (*models.ServiceField, error)
	ExistsByKey(ctx context.Context, serviceID, key string, excludeID string) (bool, error)
	Create(ctx context.Context, field *models.ServiceField) error
	Update(ctx context.Context, field *models.ServiceField) error
	Delete(ctx context.Context, id string) error
}

type fieldCatalogRepository interface {
	FindByID(ctx context.Context, id string) (*models.Service, error)
}

// CreateFieldRequest is the admin payload for adding a form field.
type CreateFieldRequest struct {
	Key             string            `json:"key" validate:"required"`
	Label           string            `json:"label" validate:"required"`
	DataType        models.FieldType  `json:"data_type" validate:"required,oneof=STRING NUMBER DATE BOOLEAN SELECT FILE"`
	IsRequired      bool              `json:"is_required"`
	Options         models.StringList `json:"options"`
	ValidationRules models.StringList `json:"validation_rules"`
	SortOrder       int               `json:"sort_order" validate:"gte=0"`
}

// UpdateFieldRequest is a partial update; nil fields keep their stored value.
// The field key and owning service are immutable once created.
type UpdateFieldRequest struct {
	Label           *string           `json:"label"`
	DataType        *models.FieldType `json:"data_type"`
	IsRequired      *bool             `json:"is_required"`
	Options         models.StringList `json:"options"`
	ValidationRules models.StringList `json:"validation_rules"`
	SortOrder       *int              `json:"sort_order"`
}

// FieldService manages dynamic form-field definitions for catalog services.
type FieldService struct {
	repo      fieldRepository
	catalog   fieldCatalogRepository
	audit     institutionAuditRepository
	validator *validator.Validate
	logger    *zap.Logger
}

// NewFieldService constructs a FieldService.
func NewFieldService(repo fieldRepository, catalog fieldCatalogRepository, audit institutionAuditRepository, validate *validator.Validate, logger *zap.Logger) *FieldService {
	if logger == nil {
		logger = zap.NewNop()
	}
	if validate == nil {
		validate = validator.New()
	}
	return &FieldService{repo: repo, catalog: catalog, audit: audit, validator: validate, logger: logger}
}

// ListByService returns the form fields of a service in display order.
// Visibility follows the service: non-admins cannot read fields of an
// inactive service.
func (s *FieldService) ListByService(ctx context.Context, actor models.JWTClaims, serviceID string) ([]models.ServiceField, error) {
	service, err := s.catalog.FindByID(ctx, serviceID)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, appErrors.Clone(appErrors.ErrNotFound, "service not found")
		}
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to load service")
	}
	if service.Status != models.ServiceActive && actor.Role != models.RoleAdmin {
		return nil, appErrors.Clone(appErrors.ErrNotFound, "service not found")
	}

	fields, err := s.repo.ListByService(ctx, serviceID)
	if err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to list fields")
	}
	return fields, nil
}

// Create adds a form field to a service. Admin only.
func (s *FieldService) Create(ctx context.Context, actor models.JWTClaims, serviceID string, req CreateFieldRequest) (*models.ServiceField, error) {
	if actor.Role != models.RoleAdmin {
		return nil, appErrors.Clone(appErrors.ErrForbidden, "only admins may define fields")
	}
	if err := s.validator.Struct(req); err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrValidation.Code, appErrors.ErrValidation.Status, "invalid field payload")
	}
	if req.DataType == models.FieldSelect && len(req.Options) == 0 {
		return nil, appErrors.Clone(appErrors.ErrValidation, "select fields require at least one option")
	}

	if _, err := s.catalog.FindByID(ctx, serviceID); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, appErrors.Clone(appErrors.ErrNotFound, "service not found")
		}
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to load service")
	}

	exists, err := s.repo.ExistsByKey(ctx, serviceID, req.Key, "")
	if err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to check field key")
	}
	if exists {
		return nil, appErrors.Clone(appErrors.ErrConflict, "field key already exists for this service")
	}

	now := time.Now().UTC()
	field := &models.ServiceField{
		ID:              uuid.NewString(),
		ServiceID:       serviceID,
		Key:             req.Key,
		Label:           req.Label,
		DataType:        req.DataType,
		IsRequired:      req.IsRequired,
		Options:         req.Options,
		ValidationRules: req.ValidationRules,
		SortOrder:       req.SortOrder,
		CreatedAt:       now,
		UpdatedAt:       now,
	}

	if err := s.repo.Create(ctx, field); err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to create field")
	}

	s.recordAudit(ctx, actor.UserID, field.ID, nil, field)
	return field, nil
}

// Update applies a partial update to a form field. Admin only. The merged
// result must still be a valid definition.
func (s *FieldService) Update(ctx context.Context, actor models.JWTClaims, id string, req UpdateFieldRequest) (*models.ServiceField, error) {
	if actor.Role != models.RoleAdmin {
		return nil, appErrors.Clone(appErrors.ErrForbidden, "only admins may define fields")
	}

	field, err := s.repo.FindByID(ctx, id)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, appErrors.Clone(appErrors.ErrNotFound, "field not found")
		}
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to load field")
	}

	previous := *field
	if req.Label != nil {
		if *req.Label == "" {
			return nil, appErrors.Clone(appErrors.ErrValidation, "label cannot be empty")
		}
		field.Label = *req.Label
	}
	if req.DataType != nil {
		if !req.DataType.Valid() {
			return nil, appErrors.Validationf("unknown field type %q", string(*req.DataType))
		}
		field.DataType = *req.DataType
	}
	if req.IsRequired != nil {
		field.IsRequired = *req.IsRequired
	}
	if req.Options != nil {
		field.Options = req.Options
	}
	if req.ValidationRules != nil {
		field.ValidationRules = req.ValidationRules
	}
	if req.SortOrder != nil {
		if *req.SortOrder < 0 {
			return nil, appErrors.Clone(appErrors.ErrValidation, "sort_order cannot be negative")
		}
		field.SortOrder = *req.SortOrder
	}

	// Validate the merged definition, not just the patch. Switching an
	// existing field to SELECT without options must fail.
	if field.DataType == models.FieldSelect && len(field.Options) == 0 {
		return nil, appErrors.Clone(appErrors.ErrValidation, "select fields require at least one option")
	}

	field.UpdatedAt = time.Now().UTC()
	if err := s.repo.Update(ctx, field); err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to update field")
	}

	s.recordAudit(ctx, actor.UserID, field.ID, &previous, field)
	return field, nil
}

// Delete removes a form field definition. Admin only.
func (s *FieldService) Delete(ctx context.Context, actor models.JWTClaims, id string) error {
	if actor.Role != models.RoleAdmin {
		return appErrors.Clone(appErrors.ErrForbidden, "only admins may define fields")
	}

	field, err := s.repo.FindByID(ctx, id)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return appErrors.Clone(appErrors.ErrNotFound, "field not found")
		}
		return appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to load field")
	}

	if err := s.repo.Delete(ctx, id); err != nil {
		return appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to delete field")
	}

	s.recordAudit(ctx, actor.UserID, field.ID, field, nil)
	return nil
}

func (s *FieldService) recordAudit(ctx context.Context, actorID, fieldID string, oldValue, newValue *models.ServiceField) {
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
		Action:     models.AuditActionFieldWrite,
		Resource:   "service_fields",
		ResourceID: &fieldID,
		OldValues:  oldJSON,
		NewValues:  newJSON,
	}); err != nil {
		s.logger.Warn("failed to record field audit log", zap.Error(err))
	}
}
