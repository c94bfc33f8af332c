package handler

import (
	"context"
	"database/sql"
	"net/http"
	"testing"

	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/e-uprava/portal-api/internal/models"
	"github.com/e-uprava/portal-api/internal/service"
)

type fieldRepoStub struct {
	fields map[string]models.ServiceField
}

func (m *fieldRepoStub) ListByService(ctx context.Context, serviceID string) ([]models.ServiceField, error) {
	var out []models.ServiceField
	for _, f := range m.fields {
		if f.ServiceID == serviceID {
			out = append(out, f)
		}
	}
	return out, nil
}

func (m *fieldRepoStub) FindByID(ctx context.Context, id string) (*models.ServiceField, error) {
	if f, ok := m.fields[id]; ok {
		return &f, nil
	}
	return nil, sql.ErrNoRows
}

func (m *fieldRepoStub) ExistsByKey(ctx context.Context, serviceID, key string, excludeID string) (bool, error) {
	for _, f := range m.fields {
		if f.ServiceID == serviceID && f.Key == key && f.ID != excludeID {
			return true, nil
		}
	}
	return false, nil
}

func (m *fieldRepoStub) Create(ctx context.Context, field *models.ServiceField) error {
	m.fields[field.ID] = *field
	return nil
}

func (m *fieldRepoStub) Update(ctx context.Context, field *models.ServiceField) error {
	m.fields[field.ID] = *field
	return nil
}

func (m *fieldRepoStub) Delete(ctx context.Context, id string) error {
	delete(m.fields, id)
	return nil
}

func newFieldHandlerFixture() (*ServiceFieldHandler, *fieldRepoStub) {
	repo := &fieldRepoStub{fields: make(map[string]models.ServiceField)}
	catalog := &catalogStub{services: map[string]models.Service{
		"svc-1": {ID: "svc-1", Name: "Certificate", Status: models.ServiceActive},
	}}
	fields := service.NewFieldService(repo, catalog, auditStub{}, nil, nil)
	return NewServiceFieldHandler(fields), repo
}

func TestServiceFieldHandlerCreate(t *testing.T) {
	handler, repo := newFieldHandlerFixture()
	claims := &models.JWTClaims{UserID: "adm-1", Role: models.RoleAdmin}

	w := performJSON(handler.Create, http.MethodPost, "/services/svc-1/fields", map[string]interface{}{
		"key":       "full_name",
		"label":     "Ime i prezime",
		"data_type": "STRING",
	}, claims, gin.Param{Key: "id", Value: "svc-1"})

	require.Equal(t, http.StatusCreated, w.Code)
	require.Len(t, repo.fields, 1)
}

func TestServiceFieldHandlerCreateForbiddenForNonAdmins(t *testing.T) {
	handler, repo := newFieldHandlerFixture()

	for _, role := range []models.UserRole{models.RoleCitizen, models.RoleOfficer} {
		claims := &models.JWTClaims{UserID: "u-1", Role: role}
		w := performJSON(handler.Create, http.MethodPost, "/services/svc-1/fields", map[string]interface{}{
			"key":       "full_name",
			"label":     "Ime i prezime",
			"data_type": "STRING",
		}, claims, gin.Param{Key: "id", Value: "svc-1"})

		assert.Equal(t, http.StatusForbidden, w.Code, string(role))
	}
	assert.Empty(t, repo.fields)
}

func TestServiceFieldHandlerCreateMalformedBody(t *testing.T) {
	handler, _ := newFieldHandlerFixture()
	claims := &models.JWTClaims{UserID: "adm-1", Role: models.RoleAdmin}

	w := performJSON(handler.Create, http.MethodPost, "/services/svc-1/fields",
		"not an object", claims, gin.Param{Key: "id", Value: "svc-1"})

	assert.Equal(t, http.StatusBadRequest, w.Code)
}

func TestServiceFieldHandlerUpdateMergedSelectNeedsOptions(t *testing.T) {
	handler, repo := newFieldHandlerFixture()
	repo.fields["f-1"] = models.ServiceField{
		ID: "f-1", ServiceID: "svc-1", Key: "city", Label: "Grad", DataType: models.FieldString,
	}
	claims := &models.JWTClaims{UserID: "adm-1", Role: models.RoleAdmin}

	w := performJSON(handler.Update, http.MethodPut, "/service-fields/f-1", map[string]interface{}{
		"data_type": "SELECT",
	}, claims, gin.Param{Key: "id", Value: "f-1"})

	assert.Equal(t, http.StatusBadRequest, w.Code)
	assert.Equal(t, models.FieldString, repo.fields["f-1"].DataType)
}

func TestServiceFieldHandlerDelete(t *testing.T) {
	handler, repo := newFieldHandlerFixture()
	repo.fields["f-1"] = models.ServiceField{ID: "f-1", ServiceID: "svc-1", Key: "city", Label: "Grad", DataType: models.FieldString}
	claims := &models.JWTClaims{UserID: "adm-1", Role: models.RoleAdmin}

	w := performJSON(handler.Delete, http.MethodDelete, "/service-fields/f-1", nil, claims,
		gin.Param{Key: "id", Value: "f-1"})

	assert.Equal(t, http.StatusNoContent, w.Code)
	assert.Empty(t, repo.fields)
}

func TestServiceFieldHandlerListUnauthenticated(t *testing.T) {
	handler, _ := newFieldHandlerFixture()

	w := performJSON(handler.ListByService, http.MethodGet, "/services/svc-1/fields", nil, nil,
		gin.Param{Key: "id", Value: "svc-1"})

	assert.Equal(t, http.StatusUnauthorized, w.Code)
}
