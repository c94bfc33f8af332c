package handler

import (
	"net/http"
	"strconv"

	"github.com/gin-gonic/gin"

	"github.com/e-uprava/portal-api/internal/models"
	"github.com/e-uprava/portal-api/internal/service"
	appErrors "github.com/e-uprava/portal-api/pkg/errors"
	"github.com/e-uprava/portal-api/pkg/response"
)

// ServiceRequestHandler exposes the request lifecycle endpoints.
type ServiceRequestHandler struct {
	requests *service.RequestService
	exports  *service.ExportService
}

// NewServiceRequestHandler constructs ServiceRequestHandler.
func NewServiceRequestHandler(requests *service.RequestService, exports *service.ExportService) *ServiceRequestHandler {
	return &ServiceRequestHandler{requests: requests, exports: exports}
}

// List godoc
// @Summary List service requests
// @Description Citizens only receive their own requests
// @Tags ServiceRequests
// @Produce json
// @Param status query string false "Filter by status"
// @Param serviceId query string false "Filter by service"
// @Param assignedToMe query bool false "Only requests claimed by the caller"
// @Param page query int false "Page"
// @Param limit query int false "Page size"
// @Success 200 {object} response.Envelope
// @Router /service-requests [get]
func (h *ServiceRequestHandler) List(c *gin.Context) {
	claims := claimsFromContext(c)
	if claims == nil {
		response.Error(c, appErrors.ErrUnauthorized)
		return
	}

	var filter models.RequestFilter
	filter.ServiceID = c.Query("serviceId")
	if status := c.Query("status"); status != "" {
		s := models.RequestStatus(status)
		if !s.Valid() {
			response.Error(c, appErrors.Clone(appErrors.ErrValidation, "unknown request status"))
			return
		}
		filter.Status = &s
	}
	if payment := c.Query("payment"); payment != "" {
		p := models.PaymentStatus(payment)
		if !p.Valid() {
			response.Error(c, appErrors.Clone(appErrors.ErrValidation, "unknown payment status"))
			return
		}
		filter.Payment = &p
	}
	if c.Query("assignedToMe") == "true" {
		filter.ProcessedBy = claims.UserID
	}
	if page, err := strconv.Atoi(c.DefaultQuery("page", "1")); err == nil {
		filter.Page = page
	}
	if size, err := strconv.Atoi(c.DefaultQuery("limit", "20")); err == nil {
		filter.PageSize = size
	}
	filter.SortBy = c.Query("sort")
	filter.SortOrder = c.Query("order")

	requests, pagination, err := h.requests.List(c.Request.Context(), *claims, filter)
	if err != nil {
		response.Error(c, err)
		return
	}
	response.JSON(c, http.StatusOK, requests, pagination)
}

// Get godoc
// @Summary Get request detail
// @Tags ServiceRequests
// @Produce json
// @Param id path string true "Request ID"
// @Success 200 {object} response.Envelope
// @Failure 404 {object} response.Envelope
// @Router /service-requests/{id} [get]
func (h *ServiceRequestHandler) Get(c *gin.Context) {
	claims := claimsFromContext(c)
	if claims == nil {
		response.Error(c, appErrors.ErrUnauthorized)
		return
	}

	request, err := h.requests.Get(c.Request.Context(), *claims, c.Param("id"))
	if err != nil {
		response.Error(c, err)
		return
	}
	response.JSON(c, http.StatusOK, request, nil)
}

// Create godoc
// @Summary Open a draft request
// @Tags ServiceRequests
// @Accept json
// @Produce json
// @Param payload body service.CreateRequestPayload true "Request payload"
// @Success 201 {object} response.Envelope
// @Failure 404 {object} response.Envelope
// @Router /service-requests [post]
func (h *ServiceRequestHandler) Create(c *gin.Context) {
	claims := claimsFromContext(c)
	if claims == nil {
		response.Error(c, appErrors.ErrUnauthorized)
		return
	}

	var req service.CreateRequestPayload
	if err := c.ShouldBindJSON(&req); err != nil {
		response.Error(c, appErrors.Wrap(err, appErrors.ErrValidation.Code, http.StatusBadRequest, "invalid request payload"))
		return
	}

	request, err := h.requests.Create(c.Request.Context(), *claims, req)
	if err != nil {
		response.Error(c, err)
		return
	}
	response.Created(c, request)
}

// Update godoc
// @Summary Update a draft request
// @Tags ServiceRequests
// @Accept json
// @Produce json
// @Param id path string true "Request ID"
// @Param payload body service.UpdateRequestPayload true "Draft payload"
// @Success 200 {object} response.Envelope
// @Failure 409 {object} response.Envelope
// @Router /service-requests/{id} [put]
func (h *ServiceRequestHandler) Update(c *gin.Context) {
	claims := claimsFromContext(c)
	if claims == nil {
		response.Error(c, appErrors.ErrUnauthorized)
		return
	}

	var req service.UpdateRequestPayload
	if err := c.ShouldBindJSON(&req); err != nil {
		response.Error(c, appErrors.Wrap(err, appErrors.ErrValidation.Code, http.StatusBadRequest, "invalid request payload"))
		return
	}

	request, err := h.requests.Update(c.Request.Context(), *claims, c.Param("id"), req)
	if err != nil {
		response.Error(c, err)
		return
	}
	response.JSON(c, http.StatusOK, request, nil)
}

// Submit godoc
// @Summary Submit a draft request
// @Description Validates required fields before moving the draft to SUBMITTED
// @Tags ServiceRequests
// @Produce json
// @Param id path string true "Request ID"
// @Success 200 {object} response.Envelope
// @Failure 400 {object} response.Envelope
// @Router /service-requests/{id}/submit [patch]
func (h *ServiceRequestHandler) Submit(c *gin.Context) {
	claims := claimsFromContext(c)
	if claims == nil {
		response.Error(c, appErrors.ErrUnauthorized)
		return
	}

	request, err := h.requests.Submit(c.Request.Context(), *claims, c.Param("id"))
	if err != nil {
		response.Error(c, err)
		return
	}
	response.JSON(c, http.StatusOK, request, nil)
}

// Assign godoc
// @Summary Claim a submitted request
// @Description Atomically assigns the request to the calling officer
// @Tags ServiceRequests
// @Produce json
// @Param id path string true "Request ID"
// @Success 200 {object} response.Envelope
// @Failure 409 {object} response.Envelope
// @Router /service-requests/{id}/assign [patch]
func (h *ServiceRequestHandler) Assign(c *gin.Context) {
	claims := claimsFromContext(c)
	if claims == nil {
		response.Error(c, appErrors.ErrUnauthorized)
		return
	}

	request, err := h.requests.Assign(c.Request.Context(), *claims, c.Param("id"))
	if err != nil {
		response.Error(c, err)
		return
	}
	response.JSON(c, http.StatusOK, request, nil)
}

// UpdateStatus godoc
// @Summary Update request status
// @Tags ServiceRequests
// @Accept json
// @Produce json
// @Param id path string true "Request ID"
// @Param payload body service.UpdateStatusPayload true "Status payload"
// @Success 200 {object} response.Envelope
// @Failure 409 {object} response.Envelope
// @Router /service-requests/{id}/status [patch]
func (h *ServiceRequestHandler) UpdateStatus(c *gin.Context) {
	claims := claimsFromContext(c)
	if claims == nil {
		response.Error(c, appErrors.ErrUnauthorized)
		return
	}

	var req service.UpdateStatusPayload
	if err := c.ShouldBindJSON(&req); err != nil {
		response.Error(c, appErrors.Wrap(err, appErrors.ErrValidation.Code, http.StatusBadRequest, "invalid status payload"))
		return
	}

	request, err := h.requests.UpdateStatus(c.Request.Context(), *claims, c.Param("id"), req)
	if err != nil {
		response.Error(c, err)
		return
	}
	response.JSON(c, http.StatusOK, request, nil)
}

// UpdatePayment godoc
// @Summary Update payment status
// @Tags ServiceRequests
// @Accept json
// @Produce json
// @Param id path string true "Request ID"
// @Param payload body service.UpdatePaymentPayload true "Payment payload"
// @Success 200 {object} response.Envelope
// @Failure 400 {object} response.Envelope
// @Router /service-requests/{id}/payment [patch]
func (h *ServiceRequestHandler) UpdatePayment(c *gin.Context) {
	claims := claimsFromContext(c)
	if claims == nil {
		response.Error(c, appErrors.ErrUnauthorized)
		return
	}

	var req service.UpdatePaymentPayload
	if err := c.ShouldBindJSON(&req); err != nil {
		response.Error(c, appErrors.Wrap(err, appErrors.ErrValidation.Code, http.StatusBadRequest, "invalid payment payload"))
		return
	}

	request, err := h.requests.UpdatePayment(c.Request.Context(), *claims, c.Param("id"), req)
	if err != nil {
		response.Error(c, err)
		return
	}
	response.JSON(c, http.StatusOK, request, nil)
}

// Delete godoc
// @Summary Delete a request
// @Tags ServiceRequests
// @Produce json
// @Param id path string true "Request ID"
// @Success 204 {object} response.Envelope
// @Failure 403 {object} response.Envelope
// @Router /service-requests/{id} [delete]
func (h *ServiceRequestHandler) Delete(c *gin.Context) {
	claims := claimsFromContext(c)
	if claims == nil {
		response.Error(c, appErrors.ErrUnauthorized)
		return
	}

	if err := h.requests.Delete(c.Request.Context(), *claims, c.Param("id")); err != nil {
		response.Error(c, err)
		return
	}
	response.NoContent(c)
}

// ExportPDF godoc
// @Summary Download a request as PDF
// @Tags ServiceRequests
// @Produce application/pdf
// @Param id path string true "Request ID"
// @Success 200 {file} binary
// @Failure 404 {object} response.Envelope
// @Router /service-requests/{id}/pdf [get]
func (h *ServiceRequestHandler) ExportPDF(c *gin.Context) {
	claims := claimsFromContext(c)
	if claims == nil {
		response.Error(c, appErrors.ErrUnauthorized)
		return
	}

	data, filename, err := h.exports.RequestPDF(c.Request.Context(), *claims, c.Param("id"))
	if err != nil {
		response.Error(c, err)
		return
	}

	c.Header("Content-Disposition", `attachment; filename="`+filename+`"`)
	c.Data(http.StatusOK, "application/pdf", data)
}

// ExportCSV godoc
// @Summary Download the request register as CSV
// @Tags ServiceRequests
// @Produce text/csv
// @Success 200 {file} binary
// @Failure 403 {object} response.Envelope
// @Router /service-requests/export/csv [get]
func (h *ServiceRequestHandler) ExportCSV(c *gin.Context) {
	claims := claimsFromContext(c)
	if claims == nil {
		response.Error(c, appErrors.ErrUnauthorized)
		return
	}

	var filter models.RequestFilter
	if status := c.Query("status"); status != "" {
		s := models.RequestStatus(status)
		if !s.Valid() {
			response.Error(c, appErrors.Clone(appErrors.ErrValidation, "unknown request status"))
			return
		}
		filter.Status = &s
	}
	filter.ServiceID = c.Query("serviceId")

	data, filename, err := h.exports.RequestsCSV(c.Request.Context(), *claims, filter)
	if err != nil {
		response.Error(c, err)
		return
	}

	c.Header("Content-Disposition", `attachment; filename="`+filename+`"`)
	c.Data(http.StatusOK, "text/csv", data)
}
