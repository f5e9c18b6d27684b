package service

import (
	"context"
	"math"
	"time"

	"go.uber.org/zap"

	"github.com/noah-isme/repense-api/internal/dto"
	"github.com/noah-isme/repense-api/pkg/cache"
)

var adminDashboardKey = cache.Key("dashboard", "admin")

type dashboardSummaryRepository interface {
	GroupSummaries(ctx context.Context) ([]dto.GroupSummary, error)
	UnreadAdminNotifications(ctx context.Context) (int, error)
}

// DashboardServiceConfig tunes dashboard behaviour.
type DashboardServiceConfig struct {
	CacheTTL time.Duration
}

// DashboardService composes the admin overview.
type DashboardService struct {
	repo   dashboardSummaryRepository
	cache  *CacheService
	logger *zap.Logger
	now    func() time.Time
	cfg    DashboardServiceConfig
}

// NewDashboardService constructs a DashboardService with sane defaults.
func NewDashboardService(repo dashboardSummaryRepository, cache *CacheService, logger *zap.Logger, cfg DashboardServiceConfig) *DashboardService {
	if cfg.CacheTTL <= 0 {
		cfg.CacheTTL = 5 * time.Minute
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &DashboardService{repo: repo, cache: cache, logger: logger, now: time.Now, cfg: cfg}
}

// Admin returns per group totals and indicates cache utilisation.
func (s *DashboardService) Admin(ctx context.Context) (*dto.AdminDashboardResponse, bool, error) {
	return remember(ctx, s.cache, adminDashboardKey, s.cfg.CacheTTL, s.composeAdmin)
}

func (s *DashboardService) composeAdmin(ctx context.Context) (*dto.AdminDashboardResponse, error) {
	groups, err := s.repo.GroupSummaries(ctx)
	if err != nil {
		return nil, internalError(err, "failed to load group summaries")
	}
	unread, err := s.repo.UnreadAdminNotifications(ctx)
	if err != nil {
		return nil, internalError(err, "failed to count unread notifications")
	}

	summary := &dto.AdminDashboardResponse{
		Groups:              groups,
		UnreadNotifications: unread,
		GeneratedAt:         s.now().UTC(),
	}
	for _, group := range groups {
		summary.TotalCapacity += group.Capacity
		summary.TotalEnrolled += group.Enrolled
		summary.TotalWaiting += group.Waiting
	}
	if summary.TotalCapacity > 0 {
		rate := float64(summary.TotalEnrolled) / float64(summary.TotalCapacity) * 100
		summary.OccupancyRate = math.Round(rate*100) / 100
	}
	s.logger.Debug("admin dashboard composed", zap.Int("groups", len(groups)), zap.Int("enrolled", summary.TotalEnrolled))
	return summary, nil
}

// invalidateDashboard drops the cached overview after a counter changed.
func invalidateDashboard(ctx context.Context, c cacheInvalidator) {
	if c == nil {
		return
	}
	c.Invalidate(ctx, adminDashboardKey)
}
