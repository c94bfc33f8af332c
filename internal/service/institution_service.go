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

type institutionRepository interface {
	List(ctx context.Context, filter models.InstitutionFilter) ([]models.Institution, int, error)
	FindByID(ctx context.Context, id string) (*models.Institution, error)
	ExistsByName(ctx context.Context, name string, excludeID string) (bool, error)
	Create(ctx context.Context, institution *models.Institution) error
	Update(ctx context.Context, institution *models.Institution) error
	Delete(ctx context.Context, id string) error
	CountServices(ctx context.Context, id string) (int, error)
}

type institutionAuditRepository interface {
	CreateAuditLog(ctx context.Context, log *models.AuditLog) error
}

// InstitutionRequest is the payload for creating or updating an institution.
type InstitutionRequest struct {
	Name    string  `json:"name" validate:"required"`
	City    string  `json:"city" validate:"required"`
	Address string  `json:"address" validate:"required"`
	Email   *string `json:"email" validate:"omitempty,email"`
}

// InstitutionService manages the institution registry. Reads are open to all
// authenticated users; writes are admin only.
type InstitutionService struct {
	repo      institutionRepository
	audit     institutionAuditRepository
	validator *validator.Validate
	logger    *zap.Logger
}

// NewInstitutionService constructs an InstitutionService.
func NewInstitutionService(repo institutionRepository, audit institutionAuditRepository, validate *validator.Validate, logger *zap.Logger) *InstitutionService {
	if logger == nil {
		logger = zap.NewNop()
	}
	if validate == nil {
		validate = validator.New()
	}
	return &InstitutionService{repo: repo, audit: audit, validator: validate, logger: logger}
}

// List returns institutions matching the filter with pagination metadata.
func (s *InstitutionService) List(ctx context.Context, filter models.InstitutionFilter) ([]models.Institution, *models.Pagination, error) {
	institutions, total, err := s.repo.List(ctx, filter)
	if err != nil {
		return nil, nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to list institutions")
	}

	page := filter.Page
	if page < 1 {
		page = 1
	}
	pageSize := filter.PageSize
	if pageSize <= 0 {
		pageSize = 20
	}

	return institutions, &models.Pagination{Page: page, PageSize: pageSize, TotalCount: total}, nil
}

// Get returns one institution by ID.
func (s *InstitutionService) Get(ctx context.Context, id string) (*models.Institution, error) {
	institution, err := s.repo.FindByID(ctx, id)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, appErrors.Clone(appErrors.ErrNotFound, "institution not found")
		}
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to load institution")
	}
	return institution, nil
}

// Create adds a new institution. Admin only.
func (s *InstitutionService) Create(ctx context.Context, actor models.JWTClaims, req InstitutionRequest) (*models.Institution, error) {
	if actor.Role != models.RoleAdmin {
		return nil, appErrors.Clone(appErrors.ErrForbidden, "only admins may create institutions")
	}
	if err := s.validator.Struct(req); err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrValidation.Code, appErrors.ErrValidation.Status, "invalid institution payload")
	}

	exists, err := s.repo.ExistsByName(ctx, req.Name, "")
	if err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to check institution name")
	}
	if exists {
		return nil, appErrors.Clone(appErrors.ErrConflict, "institution name already exists")
	}

	now := time.Now().UTC()
	institution := &models.Institution{
		ID:        uuid.NewString(),
		Name:      req.Name,
		City:      req.City,
		Address:   req.Address,
		Email:     req.Email,
		CreatedAt: now,
		UpdatedAt: now,
	}

	if err := s.repo.Create(ctx, institution); err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to create institution")
	}

	s.recordAudit(ctx, actor.UserID, institution.ID, nil, institution)
	return institution, nil
}

// Update modifies an existing institution. Admin only.
func (s *InstitutionService) Update(ctx context.Context, actor models.JWTClaims, id string, req InstitutionRequest) (*models.Institution, error) {
	if actor.Role != models.RoleAdmin {
		return nil, appErrors.Clone(appErrors.ErrForbidden, "only admins may update institutions")
	}
	if err := s.validator.Struct(req); err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrValidation.Code, appErrors.ErrValidation.Status, "invalid institution payload")
	}

	institution, err := s.repo.FindByID(ctx, id)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, appErrors.Clone(appErrors.ErrNotFound, "institution not found")
		}
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to load institution")
	}

	exists, err := s.repo.ExistsByName(ctx, req.Name, id)
	if err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to check institution name")
	}
	if exists {
		return nil, appErrors.Clone(appErrors.ErrConflict, "institution name already exists")
	}

	previous := *institution
	institution.Name = req.Name
	institution.City = req.City
	institution.Address = req.Address
	institution.Email = req.Email
	institution.UpdatedAt = time.Now().UTC()

	if err := s.repo.Update(ctx, institution); err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to update institution")
	}

	s.recordAudit(ctx, actor.UserID, institution.ID, &previous, institution)
	return institution, nil
}

// Delete removes an institution. Admin only; institutions that still own
// services cannot be deleted.
func (s *InstitutionService) Delete(ctx context.Context, actor models.JWTClaims, id string) error {
	if actor.Role != models.RoleAdmin {
		return appErrors.Clone(appErrors.ErrForbidden, "only admins may delete institutions")
	}

	institution, err := s.repo.FindByID(ctx, id)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return appErrors.Clone(appErrors.ErrNotFound, "institution not found")
		}
		return appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to load institution")
	}

	count, err := s.repo.CountServices(ctx, id)
	if err != nil {
		return appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to count services")
	}
	if count > 0 {
		return appErrors.Clone(appErrors.ErrPreconditionFailed, "institution still has services")
	}

	if err := s.repo.Delete(ctx, id); err != nil {
		return appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to delete institution")
	}

	s.recordAudit(ctx, actor.UserID, institution.ID, institution, nil)
	return nil
}

func (s *InstitutionService) recordAudit(ctx context.Context, actorID, institutionID string, oldValue, newValue *models.Institution) {
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
		Action:     models.AuditActionInstitutionWrite,
		Resource:   "institutions",
		ResourceID: &institutionID,
		OldValues:  oldJSON,
		NewValues:  newJSON,
	}); err != nil {
		s.logger.Warn("failed to record institution audit log", zap.Error(err))
	}
}
