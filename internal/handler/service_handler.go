package handler

import (
	"net/http"
	"strings"

	"github.com/gin-gonic/gin"

	"github.com/e-uprava/portal-api/internal/models"
	"github.com/e-uprava/portal-api/internal/service"
	appErrors "github.com/e-uprava/portal-api/pkg/errors"
	"github.com/e-uprava/portal-api/pkg/response"
)

// ServiceHandler exposes the service catalog endpoints.
type ServiceHandler struct {
	catalog *service.CatalogService
}

// NewServiceHandler constructs ServiceHandler.
func NewServiceHandler(catalog *service.CatalogService) *ServiceHandler {
	return &ServiceHandler{catalog: catalog}
}

// List godoc
// @Summary List catalog services
// @Description Citizens and officers only see ACTIVE services
// @Tags Services
// @Produce json
// @Param search query string false "Search by name or description"
// @Param institutionId query string false "Filter by institution"
// @Param status query string false "Filter by status (admin only)"
// @Success 200 {object} response.Envelope
// @Router /services [get]
func (h *ServiceHandler) List(c *gin.Context) {
	claims := claimsFromContext(c)
	if claims == nil {
		response.Error(c, appErrors.ErrUnauthorized)
		return
	}

	var filter models.ServiceFilter
	filter.Search = strings.TrimSpace(c.Query("search"))
	filter.InstitutionID = c.Query("institutionId")
	if status := c.Query("status"); status != "" {
		s := models.ServiceStatus(status)
		if !s.Valid() {
			response.Error(c, appErrors.Clone(appErrors.ErrValidation, "unknown service status"))
			return
		}
		filter.Status = &s
	}

	services, err := h.catalog.List(c.Request.Context(), *claims, filter)
	if err != nil {
		response.Error(c, err)
		return
	}
	response.JSON(c, http.StatusOK, services, nil)
}

// Get godoc
// @Summary Get service detail
// @Tags Services
// @Produce json
// @Param id path string true "Service ID"
// @Success 200 {object} response.Envelope
// @Failure 404 {object} response.Envelope
// @Router /services/{id} [get]
func (h *ServiceHandler) Get(c *gin.Context) {
	claims := claimsFromContext(c)
	if claims == nil {
		response.Error(c, appErrors.ErrUnauthorized)
		return
	}

	svc, err := h.catalog.Get(c.Request.Context(), *claims, c.Param("id"))
	if err != nil {
		response.Error(c, err)
		return
	}
	response.JSON(c, http.StatusOK, svc, nil)
}

// Create godoc
// @Summary Create catalog service
// @Tags Services
// @Accept json
// @Produce json
// @Param payload body service.ServiceRequestPayload true "Service payload"
// @Success 201 {object} response.Envelope
// @Failure 403 {object} response.Envelope
// @Router /services [post]
func (h *ServiceHandler) Create(c *gin.Context) {
	claims := claimsFromContext(c)
	if claims == nil {
		response.Error(c, appErrors.ErrUnauthorized)
		return
	}

	var req service.ServiceRequestPayload
	if err := c.ShouldBindJSON(&req); err != nil {
		response.Error(c, appErrors.Wrap(err, appErrors.ErrValidation.Code, http.StatusBadRequest, "invalid service payload"))
		return
	}

	svc, err := h.catalog.Create(c.Request.Context(), *claims, req)
	if err != nil {
		response.Error(c, err)
		return
	}
	response.Created(c, svc)
}

// Update godoc
// @Summary Update catalog service
// @Tags Services
// @Accept json
// @Produce json
// @Param id path string true "Service ID"
// @Param payload body service.ServiceRequestPayload true "Service payload"
// @Success 200 {object} response.Envelope
// @Failure 403 {object} response.Envelope
// @Router /services/{id} [put]
func (h *ServiceHandler) Update(c *gin.Context) {
	claims := claimsFromContext(c)
	if claims == nil {
		response.Error(c, appErrors.ErrUnauthorized)
		return
	}

	var req service.ServiceRequestPayload
	if err := c.ShouldBindJSON(&req); err != nil {
		response.Error(c, appErrors.Wrap(err, appErrors.ErrValidation.Code, http.StatusBadRequest, "invalid service payload"))
		return
	}

	svc, err := h.catalog.Update(c.Request.Context(), *claims, c.Param("id"), req)
	if err != nil {
		response.Error(c, err)
		return
	}
	response.JSON(c, http.StatusOK, svc, nil)
}

// Delete godoc
// @Summary Delete catalog service
// @Tags Services
// @Produce json
// @Param id path string true "Service ID"
// @Success 204 {object} response.Envelope
// @Failure 412 {object} response.Envelope
// @Router /services/{id} [delete]
func (h *ServiceHandler) Delete(c *gin.Context) {
	claims := claimsFromContext(c)
	if claims == nil {
		response.Error(c, appErrors.ErrUnauthorized)
		return
	}

	if err := h.catalog.Delete(c.Request.Context(), *claims, c.Param("id")); err != nil {
		response.Error(c, err)
		return
	}
	response.NoContent(c)
}
