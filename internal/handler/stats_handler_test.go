package handler

import (
	"context"
	"encoding/json"
	"net/http"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/e-uprava/portal-api/internal/models"
	"github.com/e-uprava/portal-api/internal/service"
	appErrors "github.com/e-uprava/portal-api/pkg/errors"
)

type statsRequestsStub struct {
	calls int
}

func (m *statsRequestsStub) Count(ctx context.Context) (int, error) {
	m.calls++
	return 12, nil
}

func (m *statsRequestsStub) CountByStatus(ctx context.Context) ([]models.StatusCount, error) {
	return []models.StatusCount{{Status: models.RequestSubmitted, Count: 4}}, nil
}

func (m *statsRequestsStub) CountByPayment(ctx context.Context) ([]models.PaymentCount, error) {
	return []models.PaymentCount{{Status: models.PaymentPaid, Count: 2}}, nil
}

func (m *statsRequestsStub) CountByService(ctx context.Context) ([]models.ServiceCount, error) {
	return []models.ServiceCount{{ServiceID: "svc-1", ServiceName: "Certificate", Count: 6}}, nil
}

type counterStub struct{ n int }

func (m *counterStub) Count(ctx context.Context) (int, error) { return m.n, nil }

type roleCounterStub struct{}

func (roleCounterStub) CountByRole(ctx context.Context) ([]models.RoleCount, error) {
	return []models.RoleCount{{Role: models.RoleCitizen, Count: 9}}, nil
}

type memCacheStub struct {
	entries map[string][]byte
}

func (m *memCacheStub) Get(ctx context.Context, key string, dest interface{}) error {
	data, ok := m.entries[key]
	if !ok {
		return appErrors.ErrCacheMiss
	}
	return json.Unmarshal(data, dest)
}

func (m *memCacheStub) Set(ctx context.Context, key string, value interface{}, ttl time.Duration) error {
	if m.entries == nil {
		m.entries = make(map[string][]byte)
	}
	data, err := json.Marshal(value)
	if err != nil {
		return err
	}
	m.entries[key] = data
	return nil
}

func (m *memCacheStub) DeleteByPattern(ctx context.Context, pattern string) error {
	m.entries = make(map[string][]byte)
	return nil
}

func newStatsHandlerFixture() (*StatsHandler, *statsRequestsStub) {
	requests := &statsRequestsStub{}
	cache := service.NewCacheService(&memCacheStub{}, nil, time.Minute, nil, true)
	stats := service.NewStatsService(requests, &counterStub{n: 3}, &counterStub{n: 5}, roleCounterStub{}, cache, time.Minute, nil)
	return NewStatsHandler(stats), requests
}

func TestStatsHandlerEmitsCacheMeta(t *testing.T) {
	handler, requests := newStatsHandlerFixture()
	claims := &models.JWTClaims{UserID: "off-1", Role: models.RoleOfficer}

	type envelope struct {
		Data models.PortalStats     `json:"data"`
		Meta map[string]interface{} `json:"meta"`
	}

	w := performJSON(handler.Get, http.MethodGet, "/stats", nil, claims)
	require.Equal(t, http.StatusOK, w.Code)

	var first envelope
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &first))
	assert.Equal(t, 12, first.Data.TotalRequests)
	assert.Equal(t, false, first.Meta["cache_hit"])
	assert.Contains(t, first.Meta, "processing_time_ms")

	w = performJSON(handler.Get, http.MethodGet, "/stats", nil, claims)
	require.Equal(t, http.StatusOK, w.Code)

	var second envelope
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &second))
	assert.Equal(t, true, second.Meta["cache_hit"])
	assert.Equal(t, 1, requests.calls, "second read should be served from cache")
}

func TestStatsHandlerForbiddenForCitizens(t *testing.T) {
	handler, _ := newStatsHandlerFixture()
	claims := &models.JWTClaims{UserID: "cit-1", Role: models.RoleCitizen}

	w := performJSON(handler.Get, http.MethodGet, "/stats", nil, claims)
	assert.Equal(t, http.StatusForbidden, w.Code)
}
