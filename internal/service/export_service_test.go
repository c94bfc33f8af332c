package service

import (
	"context"
	"database/sql"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/e-uprava/portal-api/internal/models"
	appErrors "github.com/e-uprava/portal-api/pkg/errors"
)

type mockExportRequests struct {
	requests map[string]models.ServiceRequest
}

func (m *mockExportRequests) FindByID(ctx context.Context, id string) (*models.ServiceRequest, error) {
	if r, ok := m.requests[id]; ok {
		return &r, nil
	}
	return nil, sql.ErrNoRows
}

func (m *mockExportRequests) List(ctx context.Context, filter models.RequestFilter) ([]models.ServiceRequest, int, error) {
	var out []models.ServiceRequest
	for _, r := range m.requests {
		out = append(out, r)
	}
	return out, len(out), nil
}

type mockUserFinder struct {
	users map[string]models.User
}

func (m *mockUserFinder) FindByID(ctx context.Context, id string) (*models.User, error) {
	if u, ok := m.users[id]; ok {
		return &u, nil
	}
	return nil, sql.ErrNoRows
}

func newExportFixture() (*ExportService, *mockExportRequests) {
	officer := "off-1"
	requests := &mockExportRequests{requests: map[string]models.ServiceRequest{
		"req-1": {
			ID:            "req-1",
			CitizenID:     "cit-1",
			ServiceID:     "svc-1",
			ProcessedBy:   &officer,
			Status:        models.RequestApproved,
			FormData:      models.FormData{"number_of_copies": float64(2)},
			PaymentStatus: models.PaymentPaid,
			CreatedAt:     time.Date(2026, 3, 12, 9, 30, 0, 0, time.UTC),
		},
	}}
	catalog := &mockCatalogLookup{services: map[string]models.Service{
		"svc-1": {ID: "svc-1", InstitutionID: "inst-1", Name: "Izvod iz maticne knjige", Fee: 350, Status: models.ServiceActive},
	}}
	fields := &mockFieldLookup{fields: map[string][]models.ServiceField{
		"svc-1": {{ID: "f1", ServiceID: "svc-1", Key: "number_of_copies", Label: "Broj kopija", DataType: models.FieldNumber, IsRequired: true}},
	}}
	institutions := &mockInstitutionLookup{institutions: map[string]models.Institution{
		"inst-1": {ID: "inst-1", Name: "Gradska uprava", City: "Novi Sad"},
	}}
	users := &mockUserFinder{users: map[string]models.User{
		"cit-1": {ID: "cit-1", FullName: "Petar Petrovic", Role: models.RoleCitizen},
	}}
	return NewExportService(requests, catalog, fields, institutions, users, nil), requests
}

func TestExportServiceRequestPDF(t *testing.T) {
	svc, _ := newExportFixture()

	data, filename, err := svc.RequestPDF(context.Background(), citizenClaims("cit-1"), "req-1")
	require.NoError(t, err)
	assert.Equal(t, "request-req-1.pdf", filename)
	assert.True(t, strings.HasPrefix(string(data), "%PDF"))
}

func TestExportServiceRequestPDFHidesForeignRequests(t *testing.T) {
	svc, _ := newExportFixture()

	_, _, err := svc.RequestPDF(context.Background(), citizenClaims("cit-2"), "req-1")
	require.Error(t, err)
	assert.Equal(t, appErrors.ErrNotFound.Code, appErrors.FromError(err).Code)
}

func TestExportServiceRequestsCSV(t *testing.T) {
	svc, _ := newExportFixture()

	data, filename, err := svc.RequestsCSV(context.Background(), officerClaims("off-1"), models.RequestFilter{})
	require.NoError(t, err)
	assert.Equal(t, "service-requests.csv", filename)

	out := string(data)
	assert.Contains(t, out, "id,service,citizen_id,processed_by,status,payment,created_at")
	assert.Contains(t, out, "req-1,Izvod iz maticne knjige,cit-1,off-1,APPROVED,PAID,2026-03-12 09:30")
}

func TestExportServiceRequestsCSVStaffOnly(t *testing.T) {
	svc, _ := newExportFixture()

	_, _, err := svc.RequestsCSV(context.Background(), citizenClaims("cit-1"), models.RequestFilter{})
	require.Error(t, err)
	assert.Equal(t, appErrors.ErrForbidden.Code, appErrors.FromError(err).Code)
}
