package service

import (
	"context"
	"time"

	"go.uber.org/zap"

	"github.com/e-uprava/portal-api/internal/models"
	appErrors "github.com/e-uprava/portal-api/pkg/errors"
)

const statsCacheKey = "stats:portal"

type statsRequestRepository interface {
	Count(ctx context.Context) (int, error)
	CountByStatus(ctx context.Context) ([]models.StatusCount, error)
	CountByPayment(ctx context.Context) ([]models.PaymentCount, error)
	CountByService(ctx context.Context) ([]models.ServiceCount, error)
}

type statsCountRepository interface {
	Count(ctx context.Context) (int, error)
}

type statsUserRepository interface {
	CountByRole(ctx context.Context) ([]models.RoleCount, error)
}

// StatsService aggregates portal-wide statistics for officers and admins.
type StatsService struct {
	requests     statsRequestRepository
	institutions statsCountRepository
	services     statsCountRepository
	users        statsUserRepository
	cache        *CacheService
	cacheTTL     time.Duration
	logger       *zap.Logger
}

// NewStatsService constructs a StatsService.
func NewStatsService(
	requests statsRequestRepository,
	institutions statsCountRepository,
	services statsCountRepository,
	users statsUserRepository,
	cache *CacheService,
	cacheTTL time.Duration,
	logger *zap.Logger,
) *StatsService {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &StatsService{
		requests:     requests,
		institutions: institutions,
		services:     services,
		users:        users,
		cache:        cache,
		cacheTTL:     cacheTTL,
		logger:       logger,
	}
}

// Get returns the aggregate statistics and whether they came from the cache.
// Citizens are not allowed to read portal-wide numbers.
func (s *StatsService) Get(ctx context.Context, actor models.JWTClaims) (*models.PortalStats, bool, error) {
	if actor.Role != models.RoleOfficer && actor.Role != models.RoleAdmin {
		return nil, false, appErrors.Clone(appErrors.ErrForbidden, "statistics are restricted to staff")
	}

	var cached models.PortalStats
	if hit, err := s.cache.Get(ctx, statsCacheKey, &cached); err == nil && hit {
		return &cached, true, nil
	}

	stats, err := s.compute(ctx)
	if err != nil {
		return nil, false, err
	}

	if err := s.cache.Set(ctx, statsCacheKey, stats, s.cacheTTL); err != nil {
		s.logger.Warn("failed to cache stats", zap.Error(err))
	}

	return stats, false, nil
}

func (s *StatsService) compute(ctx context.Context) (*models.PortalStats, error) {
	total, err := s.requests.Count(ctx)
	if err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to count requests")
	}

	byStatus, err := s.requests.CountByStatus(ctx)
	if err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to count by status")
	}

	byPayment, err := s.requests.CountByPayment(ctx)
	if err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to count by payment")
	}

	byService, err := s.requests.CountByService(ctx)
	if err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to count by service")
	}

	institutions, err := s.institutions.Count(ctx)
	if err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to count institutions")
	}

	services, err := s.services.Count(ctx)
	if err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to count services")
	}

	byRole, err := s.users.CountByRole(ctx)
	if err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to count users")
	}

	return &models.PortalStats{
		TotalRequests:     total,
		RequestsByStatus:  byStatus,
		RequestsByPayment: byPayment,
		RequestsByService: byService,
		TotalInstitutions: institutions,
		TotalServices:     services,
		UsersByRole:       byRole,
	}, nil
}
