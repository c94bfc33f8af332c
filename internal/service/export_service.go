package service

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"go.uber.org/zap"

	"github.com/e-uprava/portal-api/internal/formdata"
	"github.com/e-uprava/portal-api/internal/models"
	appErrors "github.com/e-uprava/portal-api/pkg/errors"
	"github.com/e-uprava/portal-api/pkg/export"
)

type exportRequestRepository interface {
	FindByID(ctx context.Context, id string) (*models.ServiceRequest, error)
	List(ctx context.Context, filter models.RequestFilter) ([]models.ServiceRequest, int, error)
}

type pdfRenderer interface {
	Render(doc export.Document) ([]byte, error)
}

type csvRenderer interface {
	Render(data export.Dataset) ([]byte, error)
}

// ExportService renders service requests as downloadable documents.
type ExportService struct {
	requests     exportRequestRepository
	catalog      requestCatalogRepository
	fields       requestFieldRepository
	institutions catalogInstitutionRepository
	users        statsUserFinder
	pdf          pdfRenderer
	csv          csvRenderer
	logger       *zap.Logger
}

type statsUserFinder interface {
	FindByID(ctx context.Context, id string) (*models.User, error)
}

// NewExportService constructs an ExportService.
func NewExportService(
	requests exportRequestRepository,
	catalog requestCatalogRepository,
	fields requestFieldRepository,
	institutions catalogInstitutionRepository,
	users statsUserFinder,
	logger *zap.Logger,
) *ExportService {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &ExportService{
		requests:     requests,
		catalog:      catalog,
		fields:       fields,
		institutions: institutions,
		users:        users,
		pdf:          export.NewPDFExporter(),
		csv:          export.NewCSVExporter(),
		logger:       logger,
	}
}

// RequestPDF renders one request as a printable PDF. Visibility follows the
// same ownership rules as reading the request.
func (s *ExportService) RequestPDF(ctx context.Context, actor models.JWTClaims, id string) ([]byte, string, error) {
	request, err := s.requests.FindByID(ctx, id)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, "", appErrors.Clone(appErrors.ErrNotFound, "request not found")
		}
		return nil, "", appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to load request")
	}
	if actor.Role == models.RoleCitizen && request.CitizenID != actor.UserID {
		return nil, "", appErrors.Clone(appErrors.ErrNotFound, "request not found")
	}

	service, err := s.catalog.FindByID(ctx, request.ServiceID)
	if err != nil {
		return nil, "", appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to load service")
	}

	fields, err := s.fields.ListByService(ctx, request.ServiceID)
	if err != nil {
		return nil, "", appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to load fields")
	}

	subtitle := ""
	if institution, err := s.institutions.FindByID(ctx, service.InstitutionID); err == nil {
		subtitle = fmt.Sprintf("%s, %s", institution.Name, institution.City)
	}

	meta := []export.DocumentRow{
		{Label: "Request ID", Value: request.ID},
		{Label: "Status", Value: string(request.Status)},
		{Label: "Payment", Value: string(request.PaymentStatus)},
		{Label: "Fee", Value: fmt.Sprintf("%.2f", service.Fee)},
		{Label: "Created", Value: request.CreatedAt.Format("2006-01-02 15:04")},
	}
	if citizen, err := s.users.FindByID(ctx, request.CitizenID); err == nil {
		meta = append(meta, export.DocumentRow{Label: "Applicant", Value: citizen.FullName})
	}
	if request.PaymentDate != nil {
		meta = append(meta, export.DocumentRow{Label: "Paid on", Value: request.PaymentDate.Format("2006-01-02")})
	}
	if request.CitizenNote != nil && *request.CitizenNote != "" {
		meta = append(meta, export.DocumentRow{Label: "Applicant note", Value: *request.CitizenNote})
	}
	if request.OfficerNote != nil && *request.OfficerNote != "" {
		meta = append(meta, export.DocumentRow{Label: "Officer note", Value: *request.OfficerNote})
	}

	typeByKey := make(map[string]models.FieldType, len(fields))
	for _, field := range fields {
		typeByKey[field.Key] = field.DataType
	}

	var form []export.DocumentRow
	for _, row := range formdata.Render(fields, request.FormData) {
		dataType, ok := typeByKey[row.Key]
		if !ok {
			dataType = models.FieldString
		}
		form = append(form, export.DocumentRow{
			Label: row.Label,
			Value: formdata.DisplayValue(row.Value, dataType),
		})
	}

	doc := export.Document{
		Title:    service.Name,
		Subtitle: subtitle,
		Meta:     meta,
		Form:     form,
	}

	data, err := s.pdf.Render(doc)
	if err != nil {
		return nil, "", appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to render pdf")
	}

	filename := fmt.Sprintf("request-%s.pdf", request.ID)
	return data, filename, nil
}

// RequestsCSV renders the request register as CSV for staff.
func (s *ExportService) RequestsCSV(ctx context.Context, actor models.JWTClaims, filter models.RequestFilter) ([]byte, string, error) {
	if actor.Role != models.RoleOfficer && actor.Role != models.RoleAdmin {
		return nil, "", appErrors.Clone(appErrors.ErrForbidden, "register export is restricted to staff")
	}

	filter.Page = 1
	filter.PageSize = 10000

	requests, _, err := s.requests.List(ctx, filter)
	if err != nil {
		return nil, "", appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to list requests")
	}

	serviceNames := make(map[string]string)
	rows := make([]map[string]string, 0, len(requests))
	for _, request := range requests {
		name, ok := serviceNames[request.ServiceID]
		if !ok {
			if service, err := s.catalog.FindByID(ctx, request.ServiceID); err == nil {
				name = service.Name
			}
			serviceNames[request.ServiceID] = name
		}

		processedBy := ""
		if request.ProcessedBy != nil {
			processedBy = *request.ProcessedBy
		}
		row := map[string]string{
			"id":           request.ID,
			"service":      name,
			"citizen_id":   request.CitizenID,
			"processed_by": processedBy,
			"status":       string(request.Status),
			"payment":      string(request.PaymentStatus),
			"created_at":   request.CreatedAt.Format("2006-01-02 15:04"),
		}
		rows = append(rows, row)
	}

	data, err := s.csv.Render(export.Dataset{
		Headers: []string{"id", "service", "citizen_id", "processed_by", "status", "payment", "created_at"},
		Rows:    rows,
	})
	if err != nil {
		return nil, "", appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to render csv")
	}

	return data, "service-requests.csv", nil
}
