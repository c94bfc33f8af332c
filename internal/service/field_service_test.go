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

type mockFieldRepo struct {
	fields map[string]models.ServiceField
	keys   map[string]bool
}

func (m *mockFieldRepo) ListByService(ctx context.Context, serviceID string) ([]models.ServiceField, error) {
	var out []models.ServiceField
	for _, f := range m.fields {
		if f.ServiceID == serviceID {
			out = append(out, f)
		}
	}
	return out, nil
}

func (m *mockFieldRepo) FindByID(ctx context.Context, id string) (*models.ServiceField, error) {
	if f, ok := m.fields[id]; ok {
		return &f, nil
	}
	return nil, sql.ErrNoRows
}

func (m *mockFieldRepo) ExistsByKey(ctx context.Context, serviceID, key string, excludeID string) (bool, error) {
	return m.keys[serviceID+"/"+key], nil
}

func (m *mockFieldRepo) Create(ctx context.Context, field *models.ServiceField) error {
	if m.fields == nil {
		m.fields = make(map[string]models.ServiceField)
	}
	m.fields[field.ID] = *field
	return nil
}

func (m *mockFieldRepo) Update(ctx context.Context, field *models.ServiceField) error {
	m.fields[field.ID] = *field
	return nil
}

func (m *mockFieldRepo) Delete(ctx context.Context, id string) error {
	delete(m.fields, id)
	return nil
}

func newFieldFixture() (*FieldService, *mockFieldRepo, *mockCatalogLookup) {
	repo := &mockFieldRepo{fields: make(map[string]models.ServiceField), keys: make(map[string]bool)}
	catalog := &mockCatalogLookup{services: map[string]models.Service{
		"svc-1": {ID: "svc-1", Name: "Certificate", Status: models.ServiceActive},
		"svc-2": {ID: "svc-2", Name: "Legacy", Status: models.ServiceInactive},
	}}
	return NewFieldService(repo, catalog, &mockAuditRepo{}, nil, nil), repo, catalog
}

func adminClaims(id string) models.JWTClaims {
	return models.JWTClaims{UserID: id, Role: models.RoleAdmin}
}

func TestFieldServiceWritesRequireAdmin(t *testing.T) {
	svc, _, _ := newFieldFixture()
	ctx := context.Background()

	valid := CreateFieldRequest{Key: "city", Label: "City", DataType: models.FieldString}
	for _, actor := range []models.JWTClaims{citizenClaims("cit-1"), officerClaims("off-1")} {
		_, err := svc.Create(ctx, actor, "svc-1", valid)
		require.Error(t, err)
		assert.Equal(t, appErrors.ErrForbidden.Code, appErrors.FromError(err).Code)

		_, err = svc.Update(ctx, actor, "any", UpdateFieldRequest{})
		require.Error(t, err)
		assert.Equal(t, appErrors.ErrForbidden.Code, appErrors.FromError(err).Code)

		err = svc.Delete(ctx, actor, "any")
		require.Error(t, err)
		assert.Equal(t, appErrors.ErrForbidden.Code, appErrors.FromError(err).Code)
	}
}

func TestFieldServiceSelectRequiresOptions(t *testing.T) {
	svc, _, _ := newFieldFixture()
	ctx := context.Background()

	_, err := svc.Create(ctx, adminClaims("adm-1"), "svc-1", CreateFieldRequest{
		Key: "color", Label: "Color", DataType: models.FieldSelect,
	})
	require.Error(t, err)
	assert.Equal(t, appErrors.ErrValidation.Code, appErrors.FromError(err).Code)

	created, err := svc.Create(ctx, adminClaims("adm-1"), "svc-1", CreateFieldRequest{
		Key: "color", Label: "Color", DataType: models.FieldSelect,
		Options: models.StringList{"red", "blue"},
	})
	require.NoError(t, err)
	assert.Equal(t, models.StringList{"red", "blue"}, created.Options)
}

func TestFieldServiceUpdateValidatesMergedDefinition(t *testing.T) {
	svc, repo, _ := newFieldFixture()
	ctx := context.Background()

	repo.fields["f-1"] = models.ServiceField{
		ID: "f-1", ServiceID: "svc-1", Key: "city", Label: "City", DataType: models.FieldString,
	}

	// Switching to SELECT without supplying options must fail on the
	// merged result even though the patch itself looks harmless.
	selectType := models.FieldSelect
	_, err := svc.Update(ctx, adminClaims("adm-1"), "f-1", UpdateFieldRequest{DataType: &selectType})
	require.Error(t, err)
	assert.Equal(t, appErrors.ErrValidation.Code, appErrors.FromError(err).Code)

	_, err = svc.Update(ctx, adminClaims("adm-1"), "f-1", UpdateFieldRequest{
		DataType: &selectType,
		Options:  models.StringList{"a"},
	})
	require.NoError(t, err)
	assert.Equal(t, models.FieldSelect, repo.fields["f-1"].DataType)
}

func TestFieldServiceDuplicateKeyRejected(t *testing.T) {
	svc, repo, _ := newFieldFixture()
	repo.keys["svc-1/city"] = true

	_, err := svc.Create(context.Background(), adminClaims("adm-1"), "svc-1", CreateFieldRequest{
		Key: "city", Label: "City", DataType: models.FieldString,
	})
	require.Error(t, err)
	assert.Equal(t, appErrors.ErrConflict.Code, appErrors.FromError(err).Code)
}

func TestFieldServiceListFollowsServiceVisibility(t *testing.T) {
	svc, repo, _ := newFieldFixture()
	ctx := context.Background()

	repo.fields["f-1"] = models.ServiceField{ID: "f-1", ServiceID: "svc-2", Key: "city", Label: "City", DataType: models.FieldString}

	_, err := svc.ListByService(ctx, citizenClaims("cit-1"), "svc-2")
	require.Error(t, err)
	assert.Equal(t, appErrors.ErrNotFound.Code, appErrors.FromError(err).Code)

	fields, err := svc.ListByService(ctx, adminClaims("adm-1"), "svc-2")
	require.NoError(t, err)
	assert.Len(t, fields, 1)
}

func TestFieldServiceNegativeSortOrderRejected(t *testing.T) {
	svc, _, _ := newFieldFixture()

	_, err := svc.Create(context.Background(), adminClaims("adm-1"), "svc-1", CreateFieldRequest{
		Key: "city", Label: "City", DataType: models.FieldString, SortOrder: -1,
	})
	require.Error(t, err)
	assert.Equal(t, appErrors.ErrValidation.Code, appErrors.FromError(err).Code)
}
