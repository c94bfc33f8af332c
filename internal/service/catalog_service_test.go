package service

import (
	"context"
	"database/sql"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/e-uprava/portal-api/internal/models"
	appErrors "github.com/e-uprava/portal-api/pkg/errors"
)

type mockCatalogRepo struct {
	services   map[string]models.Service
	names      map[string]bool
	requests   map[string]int
	lastFilter models.ServiceFilter
	deleted    []string
}

func (m *mockCatalogRepo) List(ctx context.Context, filter models.ServiceFilter) ([]models.Service, error) {
	m.lastFilter = filter
	var out []models.Service
	for _, s := range m.services {
		if filter.Status != nil && s.Status != *filter.Status {
			continue
		}
		out = append(out, s)
	}
	return out, nil
}

func (m *mockCatalogRepo) FindByID(ctx context.Context, id string) (*models.Service, error) {
	if s, ok := m.services[id]; ok {
		return &s, nil
	}
	return nil, sql.ErrNoRows
}

func (m *mockCatalogRepo) ExistsByName(ctx context.Context, name string, excludeID string) (bool, error) {
	return m.names[name], nil
}

func (m *mockCatalogRepo) Create(ctx context.Context, service *models.Service) error {
	if m.services == nil {
		m.services = make(map[string]models.Service)
	}
	m.services[service.ID] = *service
	return nil
}

func (m *mockCatalogRepo) Update(ctx context.Context, service *models.Service) error {
	m.services[service.ID] = *service
	return nil
}

func (m *mockCatalogRepo) Delete(ctx context.Context, id string) error {
	delete(m.services, id)
	m.deleted = append(m.deleted, id)
	return nil
}

func (m *mockCatalogRepo) CountRequests(ctx context.Context, id string) (int, error) {
	return m.requests[id], nil
}

type mockInstitutionLookup struct {
	institutions map[string]models.Institution
}

func (m *mockInstitutionLookup) FindByID(ctx context.Context, id string) (*models.Institution, error) {
	if i, ok := m.institutions[id]; ok {
		return &i, nil
	}
	return nil, sql.ErrNoRows
}

func newCatalogFixture() (*CatalogService, *mockCatalogRepo) {
	repo := &mockCatalogRepo{
		services: map[string]models.Service{
			"svc-1": {ID: "svc-1", InstitutionID: "inst-1", Name: "Certificate", Status: models.ServiceActive},
			"svc-2": {ID: "svc-2", InstitutionID: "inst-1", Name: "Legacy", Status: models.ServiceInactive},
		},
		names:    make(map[string]bool),
		requests: make(map[string]int),
	}
	institutions := &mockInstitutionLookup{institutions: map[string]models.Institution{
		"inst-1": {ID: "inst-1", Name: "City Hall", City: "Novi Sad"},
	}}
	return NewCatalogService(repo, institutions, &mockAuditRepo{}, nil, nil), repo
}

func TestCatalogServiceWritesRequireAdmin(t *testing.T) {
	svc, _ := newCatalogFixture()
	ctx := context.Background()

	valid := ServiceRequestPayload{InstitutionID: "inst-1", Name: "Permit", Status: models.ServiceActive}
	for _, actor := range []models.JWTClaims{citizenClaims("cit-1"), officerClaims("off-1")} {
		_, err := svc.Create(ctx, actor, valid)
		require.Error(t, err)
		assert.Equal(t, appErrors.ErrForbidden.Code, appErrors.FromError(err).Code)

		_, err = svc.Update(ctx, actor, "svc-1", valid)
		require.Error(t, err)
		assert.Equal(t, appErrors.ErrForbidden.Code, appErrors.FromError(err).Code)

		err = svc.Delete(ctx, actor, "svc-1")
		require.Error(t, err)
		assert.Equal(t, appErrors.ErrForbidden.Code, appErrors.FromError(err).Code)
	}
}

func TestCatalogServiceListHidesInactiveFromNonAdmins(t *testing.T) {
	svc, repo := newCatalogFixture()
	ctx := context.Background()

	visible, err := svc.List(ctx, citizenClaims("cit-1"), models.ServiceFilter{})
	require.NoError(t, err)
	require.Len(t, visible, 1)
	assert.Equal(t, "svc-1", visible[0].ID)
	require.NotNil(t, repo.lastFilter.Status)
	assert.Equal(t, models.ServiceActive, *repo.lastFilter.Status)

	all, err := svc.List(ctx, adminClaims("adm-1"), models.ServiceFilter{})
	require.NoError(t, err)
	assert.Len(t, all, 2)
}

func TestCatalogServiceGetHidesInactive(t *testing.T) {
	svc, _ := newCatalogFixture()
	ctx := context.Background()

	_, err := svc.Get(ctx, citizenClaims("cit-1"), "svc-2")
	require.Error(t, err)
	assert.Equal(t, appErrors.ErrNotFound.Code, appErrors.FromError(err).Code)

	service, err := svc.Get(ctx, adminClaims("adm-1"), "svc-2")
	require.NoError(t, err)
	require.NotNil(t, service.Institution)
	assert.Equal(t, "City Hall", service.Institution.Name)
}

func TestCatalogServiceCreateValidation(t *testing.T) {
	svc, repo := newCatalogFixture()
	ctx := context.Background()

	_, err := svc.Create(ctx, adminClaims("adm-1"), ServiceRequestPayload{
		InstitutionID: "inst-1", Name: "Permit", Fee: -5, Status: models.ServiceActive,
	})
	require.Error(t, err)
	assert.Equal(t, appErrors.ErrValidation.Code, appErrors.FromError(err).Code)

	_, err = svc.Create(ctx, adminClaims("adm-1"), ServiceRequestPayload{
		InstitutionID: "missing", Name: "Permit", Status: models.ServiceActive,
	})
	require.Error(t, err)
	assert.Equal(t, appErrors.ErrValidation.Code, appErrors.FromError(err).Code)

	repo.names["Permit"] = true
	_, err = svc.Create(ctx, adminClaims("adm-1"), ServiceRequestPayload{
		InstitutionID: "inst-1", Name: "Permit", Status: models.ServiceActive,
	})
	require.Error(t, err)
	assert.Equal(t, appErrors.ErrConflict.Code, appErrors.FromError(err).Code)

	created, err := svc.Create(ctx, adminClaims("adm-1"), ServiceRequestPayload{
		InstitutionID: "inst-1", Name: "Residence Permit", Fee: 350,
		RequiresAttachment: true, Status: models.ServiceActive,
	})
	require.NoError(t, err)
	assert.Equal(t, 350.0, created.Fee)
}

func TestCatalogServiceDeleteBlockedByRequests(t *testing.T) {
	svc, repo := newCatalogFixture()
	ctx := context.Background()

	repo.requests["svc-1"] = 3
	err := svc.Delete(ctx, adminClaims("adm-1"), "svc-1")
	require.Error(t, err)
	assert.Equal(t, appErrors.ErrPreconditionFailed.Code, appErrors.FromError(err).Code)

	require.NoError(t, svc.Delete(ctx, adminClaims("adm-1"), "svc-2"))
	assert.Equal(t, []string{"svc-2"}, repo.deleted)
}
