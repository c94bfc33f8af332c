package handler

import (
	"bytes"
	"context"
	"database/sql"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/e-uprava/portal-api/internal/middleware"
	"github.com/e-uprava/portal-api/internal/models"
	"github.com/e-uprava/portal-api/internal/service"
)

type requestRepoStub struct {
	requests map[string]models.ServiceRequest
}

func (m *requestRepoStub) List(ctx context.Context, filter models.RequestFilter) ([]models.ServiceRequest, int, error) {
	var out []models.ServiceRequest
	for _, r := range m.requests {
		if filter.CitizenID != "" && r.CitizenID != filter.CitizenID {
			continue
		}
		out = append(out, r)
	}
	return out, len(out), nil
}

func (m *requestRepoStub) FindByID(ctx context.Context, id string) (*models.ServiceRequest, error) {
	if r, ok := m.requests[id]; ok {
		return &r, nil
	}
	return nil, sql.ErrNoRows
}

func (m *requestRepoStub) Create(ctx context.Context, request *models.ServiceRequest) error {
	m.requests[request.ID] = *request
	return nil
}

func (m *requestRepoStub) UpdateDraft(ctx context.Context, request *models.ServiceRequest) error {
	m.requests[request.ID] = *request
	return nil
}

func (m *requestRepoStub) UpdateStatus(ctx context.Context, id string, status models.RequestStatus, officerNote *string, updatedAt time.Time) error {
	r := m.requests[id]
	r.Status = status
	m.requests[id] = r
	return nil
}

func (m *requestRepoStub) Assign(ctx context.Context, id, officerID string, updatedAt time.Time) (bool, error) {
	r, ok := m.requests[id]
	if !ok || r.ProcessedBy != nil {
		return false, nil
	}
	r.ProcessedBy = &officerID
	m.requests[id] = r
	return true, nil
}

func (m *requestRepoStub) UpdatePayment(ctx context.Context, id string, status models.PaymentStatus, paymentDate *time.Time, updatedAt time.Time) error {
	r := m.requests[id]
	r.PaymentStatus = status
	r.PaymentDate = paymentDate
	m.requests[id] = r
	return nil
}

func (m *requestRepoStub) Delete(ctx context.Context, id string) error {
	delete(m.requests, id)
	return nil
}

type catalogStub struct {
	services map[string]models.Service
}

func (m *catalogStub) FindByID(ctx context.Context, id string) (*models.Service, error) {
	if s, ok := m.services[id]; ok {
		return &s, nil
	}
	return nil, sql.ErrNoRows
}

type fieldsStub struct {
	fields map[string][]models.ServiceField
}

func (m *fieldsStub) ListByService(ctx context.Context, serviceID string) ([]models.ServiceField, error) {
	return m.fields[serviceID], nil
}

type auditStub struct{}

func (auditStub) CreateAuditLog(ctx context.Context, log *models.AuditLog) error { return nil }

func newRequestHandlerFixture() (*ServiceRequestHandler, *requestRepoStub) {
	repo := &requestRepoStub{requests: make(map[string]models.ServiceRequest)}
	catalog := &catalogStub{services: map[string]models.Service{
		"svc-1": {ID: "svc-1", Name: "Certificate", Fee: 350, Status: models.ServiceActive},
	}}
	fields := &fieldsStub{fields: map[string][]models.ServiceField{
		"svc-1": {{ID: "f1", ServiceID: "svc-1", Key: "number_of_copies", Label: "Broj kopija", DataType: models.FieldNumber, IsRequired: true}},
	}}
	requests := service.NewRequestService(repo, catalog, fields, auditStub{}, nil, nil, nil, nil)
	return NewServiceRequestHandler(requests, nil), repo
}

func performJSON(handler gin.HandlerFunc, method, target string, body interface{}, claims *models.JWTClaims, params ...gin.Param) *httptest.ResponseRecorder {
	gin.SetMode(gin.TestMode)
	w := httptest.NewRecorder()
	c, _ := gin.CreateTestContext(w)

	var buf bytes.Buffer
	if body != nil {
		_ = json.NewEncoder(&buf).Encode(body)
	}
	req, _ := http.NewRequest(method, target, &buf)
	req.Header.Set("Content-Type", "application/json")
	c.Request = req
	c.Params = params
	if claims != nil {
		c.Set(middleware.ContextUserKey, claims)
	}

	handler(c)
	c.Writer.WriteHeaderNow()
	return w
}

func TestServiceRequestHandlerCreate(t *testing.T) {
	handler, repo := newRequestHandlerFixture()
	claims := &models.JWTClaims{UserID: "cit-1", Role: models.RoleCitizen}

	w := performJSON(handler.Create, http.MethodPost, "/service-requests", map[string]interface{}{
		"service_id": "svc-1",
		"form_data":  map[string]interface{}{"number_of_copies": 2},
	}, claims)

	require.Equal(t, http.StatusCreated, w.Code)
	require.Len(t, repo.requests, 1)
	for _, r := range repo.requests {
		assert.Equal(t, models.RequestDraft, r.Status)
		assert.Equal(t, models.PaymentNotPaid, r.PaymentStatus)
	}
}

func TestServiceRequestHandlerCreateUnauthenticated(t *testing.T) {
	handler, _ := newRequestHandlerFixture()

	w := performJSON(handler.Create, http.MethodPost, "/service-requests", map[string]interface{}{
		"service_id": "svc-1",
	}, nil)

	assert.Equal(t, http.StatusUnauthorized, w.Code)
}

func TestServiceRequestHandlerSubmitValidationFailure(t *testing.T) {
	handler, repo := newRequestHandlerFixture()
	repo.requests["req-1"] = models.ServiceRequest{
		ID: "req-1", CitizenID: "cit-1", ServiceID: "svc-1",
		Status:   models.RequestDraft,
		FormData: models.FormData{"number_of_copies": nil},
	}
	claims := &models.JWTClaims{UserID: "cit-1", Role: models.RoleCitizen}

	w := performJSON(handler.Submit, http.MethodPatch, "/service-requests/req-1/submit", nil, claims,
		gin.Param{Key: "id", Value: "req-1"})

	require.Equal(t, http.StatusBadRequest, w.Code)
	assert.Contains(t, w.Body.String(), "Broj kopija")
	assert.Equal(t, models.RequestDraft, repo.requests["req-1"].Status)
}

func TestServiceRequestHandlerAssignConflict(t *testing.T) {
	handler, repo := newRequestHandlerFixture()
	officer := "off-1"
	repo.requests["req-1"] = models.ServiceRequest{
		ID: "req-1", CitizenID: "cit-1", ServiceID: "svc-1",
		Status: models.RequestSubmitted, ProcessedBy: &officer,
	}
	claims := &models.JWTClaims{UserID: "off-2", Role: models.RoleOfficer}

	w := performJSON(handler.Assign, http.MethodPatch, "/service-requests/req-1/assign", nil, claims,
		gin.Param{Key: "id", Value: "req-1"})

	assert.Equal(t, http.StatusConflict, w.Code)
	assert.Equal(t, "off-1", *repo.requests["req-1"].ProcessedBy)
}

func TestServiceRequestHandlerListFiltersStatus(t *testing.T) {
	handler, repo := newRequestHandlerFixture()
	repo.requests["req-1"] = models.ServiceRequest{ID: "req-1", CitizenID: "cit-1", ServiceID: "svc-1", Status: models.RequestDraft}
	claims := &models.JWTClaims{UserID: "cit-1", Role: models.RoleCitizen}

	w := performJSON(handler.List, http.MethodGet, "/service-requests?status=BOGUS", nil, claims)
	assert.Equal(t, http.StatusBadRequest, w.Code)

	w = performJSON(handler.List, http.MethodGet, "/service-requests", nil, claims)
	require.Equal(t, http.StatusOK, w.Code)

	var envelope struct {
		Data []models.ServiceRequest `json:"data"`
	}
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &envelope))
	assert.Len(t, envelope.Data, 1)
}
