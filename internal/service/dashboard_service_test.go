package service

import (
	"context"
	"encoding/json"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/noah-isme/repense-api/internal/dto"
	appErrors "github.com/noah-isme/repense-api/pkg/errors"
)

type stubCacheRepo struct {
	store   map[string][]byte
	deleted []string
}

func (s *stubCacheRepo) Get(_ context.Context, key string, dest interface{}) error {
	if s.store == nil {
		return appErrors.ErrCacheMiss
	}
	payload, ok := s.store[key]
	if !ok {
		return appErrors.ErrCacheMiss
	}
	return json.Unmarshal(payload, dest)
}

func (s *stubCacheRepo) Set(_ context.Context, key string, value interface{}, _ time.Duration) error {
	if s.store == nil {
		s.store = make(map[string][]byte)
	}
	payload, err := json.Marshal(value)
	if err != nil {
		return err
	}
	s.store[key] = payload
	return nil
}

func (s *stubCacheRepo) Delete(_ context.Context, keys ...string) error {
	for _, key := range keys {
		delete(s.store, key)
		s.deleted = append(s.deleted, key)
	}
	return nil
}

type fakeDashboardRepo struct {
	groups []dto.GroupSummary
	unread int
	calls  int
	err    error
}

func (f *fakeDashboardRepo) GroupSummaries(context.Context) ([]dto.GroupSummary, error) {
	f.calls++
	if f.err != nil {
		return nil, f.err
	}
	return f.groups, nil
}

func (f *fakeDashboardRepo) UnreadAdminNotifications(context.Context) (int, error) {
	return f.unread, nil
}

func TestDashboardServiceAdmin_ComposesAndCaches(t *testing.T) {
	repo := &fakeDashboardRepo{
		groups: []dto.GroupSummary{
			{Grupo: "igreja", Classes: 2, ActiveClasses: 2, Capacity: 20, Enrolled: 15, Waiting: 1},
			{Grupo: "espiritualidade", Classes: 1, ActiveClasses: 1, Capacity: 10, Enrolled: 3},
			{Grupo: "evangelho"},
		},
		unread: 4,
	}
	cacheSvc := NewCacheService(&stubCacheRepo{}, nil, time.Minute, zap.NewNop(), true)
	svc := NewDashboardService(repo, cacheSvc, zap.NewNop(), DashboardServiceConfig{})
	now := time.Date(2026, 3, 2, 10, 0, 0, 0, time.UTC)
	svc.now = func() time.Time { return now }

	ctx := context.Background()
	result, hit, err := svc.Admin(ctx)
	require.NoError(t, err)
	assert.False(t, hit)
	assert.Equal(t, 30, result.TotalCapacity)
	assert.Equal(t, 18, result.TotalEnrolled)
	assert.Equal(t, 1, result.TotalWaiting)
	assert.Equal(t, 60.0, result.OccupancyRate)
	assert.Equal(t, 4, result.UnreadNotifications)
	assert.Len(t, result.Groups, 3)

	cached, hit, err := svc.Admin(ctx)
	require.NoError(t, err)
	assert.True(t, hit)
	assert.Equal(t, 1, repo.calls)
	assert.Equal(t, result.TotalEnrolled, cached.TotalEnrolled)
}

func TestDashboardServiceAdmin_InvalidationForcesRecompose(t *testing.T) {
	repo := &fakeDashboardRepo{groups: []dto.GroupSummary{{Grupo: "igreja", Capacity: 10, Enrolled: 1}}}
	cacheRepo := &stubCacheRepo{}
	cacheSvc := NewCacheService(cacheRepo, nil, time.Minute, zap.NewNop(), true)
	svc := NewDashboardService(repo, cacheSvc, nil, DashboardServiceConfig{})

	ctx := context.Background()
	_, _, err := svc.Admin(ctx)
	require.NoError(t, err)

	invalidateDashboard(ctx, cacheSvc)
	assert.Equal(t, []string{"repense:dashboard:admin"}, cacheRepo.deleted)

	_, hit, err := svc.Admin(ctx)
	require.NoError(t, err)
	assert.False(t, hit)
	assert.Equal(t, 2, repo.calls)
}

func TestDashboardServiceAdmin_WithoutCache(t *testing.T) {
	repo := &fakeDashboardRepo{}
	svc := NewDashboardService(repo, NewCacheService(nil, nil, time.Minute, zap.NewNop(), false), nil, DashboardServiceConfig{})

	result, hit, err := svc.Admin(context.Background())
	require.NoError(t, err)
	assert.False(t, hit)
	assert.Zero(t, result.OccupancyRate)
}

func TestDashboardServiceAdmin_RepositoryError(t *testing.T) {
	svc := NewDashboardService(&fakeDashboardRepo{err: assert.AnError}, nil, nil, DashboardServiceConfig{})

	_, _, err := svc.Admin(context.Background())
	require.Error(t, err)
	assert.Equal(t, appErrors.ErrInternal.Code, errorCode(err))
}
