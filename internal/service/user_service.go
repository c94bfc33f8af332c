package service

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"time"

	"github.com/go-playground/validator/v10"
	"go.uber.org/zap"

	"github.com/e-uprava/portal-api/internal/models"
	appErrors "github.com/e-uprava/portal-api/pkg/errors"
)

type userRepository interface {
	List(ctx context.Context, filter models.UserFilter) ([]models.User, int, error)
	FindByID(ctx context.Context, id string) (*models.User, error)
	UpdateRole(ctx context.Context, id string, role models.UserRole, updatedAt time.Time) error
	Delete(ctx context.Context, id string) error
	RevokeUserRefreshTokens(ctx context.Context, userID string) error
	CreateAuditLog(ctx context.Context, log *models.AuditLog) error
}

// UpdateUserRoleRequest payload for changing a user's role.
type UpdateUserRoleRequest struct {
	Role models.UserRole `json:"role" validate:"required,oneof=CITIZEN OFFICER ADMIN"`
}

// UserService handles admin user management workflows.
type UserService struct {
	repo      userRepository
	validator *validator.Validate
	logger    *zap.Logger
}

// NewUserService creates an instance of UserService.
func NewUserService(repo userRepository, validate *validator.Validate, logger *zap.Logger) *UserService {
	if logger == nil {
		logger = zap.NewNop()
	}
	if validate == nil {
		validate = validator.New()
	}
	return &UserService{repo: repo, validator: validate, logger: logger}
}

// List returns paginated users and pagination metadata. Admin only.
func (s *UserService) List(ctx context.Context, actor models.JWTClaims, filter models.UserFilter) ([]models.User, *models.Pagination, error) {
	if actor.Role != models.RoleAdmin {
		return nil, nil, appErrors.Clone(appErrors.ErrForbidden, "only admins may list users")
	}

	users, total, err := s.repo.List(ctx, filter)
	if err != nil {
		return nil, nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to list users")
	}

	page := filter.Page
	if page < 1 {
		page = 1
	}
	pageSize := filter.PageSize
	if pageSize <= 0 {
		pageSize = 20
	}

	pagination := &models.Pagination{
		Page:       page,
		PageSize:   pageSize,
		TotalCount: total,
	}

	return users, pagination, nil
}

// Get returns a user by ID. Admins may view anyone, others only themselves.
func (s *UserService) Get(ctx context.Context, actor models.JWTClaims, id string) (*models.User, error) {
	if actor.Role != models.RoleAdmin && actor.UserID != id {
		return nil, appErrors.Clone(appErrors.ErrForbidden, "cannot view other users")
	}

	user, err := s.repo.FindByID(ctx, id)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, appErrors.Clone(appErrors.ErrNotFound, "user not found")
		}
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to load user")
	}
	return user, nil
}

// UpdateRole changes a user's role. Admin only; admins may not change their own role.
func (s *UserService) UpdateRole(ctx context.Context, actor models.JWTClaims, id string, req UpdateUserRoleRequest) (*models.User, error) {
	if actor.Role != models.RoleAdmin {
		return nil, appErrors.Clone(appErrors.ErrForbidden, "only admins may change roles")
	}
	if actor.UserID == id {
		return nil, appErrors.Clone(appErrors.ErrForbidden, "cannot change own role")
	}
	if err := s.validator.Struct(req); err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrValidation.Code, appErrors.ErrValidation.Status, "invalid role payload")
	}

	user, err := s.repo.FindByID(ctx, id)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, appErrors.Clone(appErrors.ErrNotFound, "user not found")
		}
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to load user")
	}

	previousRole := user.Role
	now := time.Now().UTC()
	if err := s.repo.UpdateRole(ctx, id, req.Role, now); err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to update role")
	}

	// Force re-authentication so the new role takes effect on the next token.
	if err := s.repo.RevokeUserRefreshTokens(ctx, id); err != nil {
		s.logger.Warn("failed to revoke refresh tokens after role change", zap.Error(err))
	}

	oldValues, _ := json.Marshal(map[string]models.UserRole{"role": previousRole})
	newValues, _ := json.Marshal(map[string]models.UserRole{"role": req.Role})
	if err := s.repo.CreateAuditLog(ctx, &models.AuditLog{
		UserID:     &actor.UserID,
		Action:     models.AuditActionUserRoleUpdate,
		Resource:   "users",
		ResourceID: &id,
		OldValues:  oldValues,
		NewValues:  newValues,
	}); err != nil {
		s.logger.Warn("failed to record role change audit log", zap.Error(err))
	}

	user.Role = req.Role
	user.UpdatedAt = now
	return user, nil
}

// Delete removes a user account. Admin only; admins may not delete themselves.
func (s *UserService) Delete(ctx context.Context, actor models.JWTClaims, id string) error {
	if actor.Role != models.RoleAdmin {
		return appErrors.Clone(appErrors.ErrForbidden, "only admins may delete users")
	}
	if actor.UserID == id {
		return appErrors.Clone(appErrors.ErrForbidden, "cannot delete own account")
	}

	if _, err := s.repo.FindByID(ctx, id); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return appErrors.Clone(appErrors.ErrNotFound, "user not found")
		}
		return appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to load user")
	}

	if err := s.repo.RevokeUserRefreshTokens(ctx, id); err != nil {
		s.logger.Warn("failed to revoke refresh tokens before delete", zap.Error(err))
	}

	if err := s.repo.Delete(ctx, id); err != nil {
		return appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to delete user")
	}

	if err := s.repo.CreateAuditLog(ctx, &models.AuditLog{
		UserID:     &actor.UserID,
		Action:     models.AuditActionUserDelete,
		Resource:   "users",
		ResourceID: &id,
	}); err != nil {
		s.logger.Warn("failed to record user delete audit log", zap.Error(err))
	}

	return nil
}
