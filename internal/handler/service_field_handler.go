package handler

import (
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/e-uprava/portal-api/internal/service"
	appErrors "github.com/e-uprava/portal-api/pkg/errors"
	"github.com/e-uprava/portal-api/pkg/response"
)

// ServiceFieldHandler exposes dynamic form-field endpoints. Listing and
// creation are nested under a service; mutation and deletion are flat.
type ServiceFieldHandler struct {
	fields *service.FieldService
}

// NewServiceFieldHandler constructs ServiceFieldHandler.
func NewServiceFieldHandler(fields *service.FieldService) *ServiceFieldHandler {
	return &ServiceFieldHandler{fields: fields}
}

// ListByService godoc
// @Summary List form fields of a service
// @Tags ServiceFields
// @Produce json
// @Param id path string true "Service ID"
// @Success 200 {object} response.Envelope
// @Failure 404 {object} response.Envelope
// @Router /services/{id}/fields [get]
func (h *ServiceFieldHandler) ListByService(c *gin.Context) {
	claims := claimsFromContext(c)
	if claims == nil {
		response.Error(c, appErrors.ErrUnauthorized)
		return
	}

	fields, err := h.fields.ListByService(c.Request.Context(), *claims, c.Param("id"))
	if err != nil {
		response.Error(c, err)
		return
	}
	response.JSON(c, http.StatusOK, fields, nil)
}

// Create godoc
// @Summary Add a form field to a service
// @Tags ServiceFields
// @Accept json
// @Produce json
// @Param id path string true "Service ID"
// @Param payload body service.CreateFieldRequest true "Field payload"
// @Success 201 {object} response.Envelope
// @Failure 403 {object} response.Envelope
// @Failure 409 {object} response.Envelope
// @Router /services/{id}/fields [post]
func (h *ServiceFieldHandler) Create(c *gin.Context) {
	claims := claimsFromContext(c)
	if claims == nil {
		response.Error(c, appErrors.ErrUnauthorized)
		return
	}

	var req service.CreateFieldRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		response.Error(c, appErrors.Wrap(err, appErrors.ErrValidation.Code, http.StatusBadRequest, "invalid field payload"))
		return
	}

	field, err := h.fields.Create(c.Request.Context(), *claims, c.Param("id"), req)
	if err != nil {
		response.Error(c, err)
		return
	}
	response.Created(c, field)
}

// Update godoc
// @Summary Update a form field
// @Tags ServiceFields
// @Accept json
// @Produce json
// @Param id path string true "Field ID"
// @Param payload body service.UpdateFieldRequest true "Partial field payload"
// @Success 200 {object} response.Envelope
// @Failure 403 {object} response.Envelope
// @Router /service-fields/{id} [put]
func (h *ServiceFieldHandler) Update(c *gin.Context) {
	claims := claimsFromContext(c)
	if claims == nil {
		response.Error(c, appErrors.ErrUnauthorized)
		return
	}

	var req service.UpdateFieldRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		response.Error(c, appErrors.Wrap(err, appErrors.ErrValidation.Code, http.StatusBadRequest, "invalid field payload"))
		return
	}

	field, err := h.fields.Update(c.Request.Context(), *claims, c.Param("id"), req)
	if err != nil {
		response.Error(c, err)
		return
	}
	response.JSON(c, http.StatusOK, field, nil)
}

// Delete godoc
// @Summary Delete a form field
// @Tags ServiceFields
// @Produce json
// @Param id path string true "Field ID"
// @Success 204 {object} response.Envelope
// @Failure 403 {object} response.Envelope
// @Router /service-fields/{id} [delete]
func (h *ServiceFieldHandler) Delete(c *gin.Context) {
	claims := claimsFromContext(c)
	if claims == nil {
		response.Error(c, appErrors.ErrUnauthorized)
		return
	}

	if err := h.fields.Delete(c.Request.Context(), *claims, c.Param("id")); err != nil {
		response.Error(c, err)
		return
	}
	response.NoContent(c)
}
