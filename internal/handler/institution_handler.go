package handler

import (
	"net/http"
	"strconv"
	"strings"

	"github.com/gin-gonic/gin"

	"github.com/e-uprava/portal-api/internal/models"
	"github.com/e-uprava/portal-api/internal/service"
	appErrors "github.com/e-uprava/portal-api/pkg/errors"
	"github.com/e-uprava/portal-api/pkg/response"
)

// InstitutionHandler exposes institution registry endpoints.
type InstitutionHandler struct {
	institutions *service.InstitutionService
}

// NewInstitutionHandler constructs InstitutionHandler.
func NewInstitutionHandler(institutions *service.InstitutionService) *InstitutionHandler {
	return &InstitutionHandler{institutions: institutions}
}

// List godoc
// @Summary List institutions
// @Tags Institutions
// @Produce json
// @Param search query string false "Search by name"
// @Param city query string false "Filter by city"
// @Param page query int false "Page"
// @Param limit query int false "Page size"
// @Success 200 {object} response.Envelope
// @Router /institutions [get]
func (h *InstitutionHandler) List(c *gin.Context) {
	var filter models.InstitutionFilter
	filter.Search = strings.TrimSpace(c.Query("search"))
	filter.City = c.Query("city")
	if page, err := strconv.Atoi(c.DefaultQuery("page", "1")); err == nil {
		filter.Page = page
	}
	if size, err := strconv.Atoi(c.DefaultQuery("limit", "20")); err == nil {
		filter.PageSize = size
	}
	filter.SortBy = c.Query("sort")
	filter.SortOrder = c.Query("order")

	institutions, pagination, err := h.institutions.List(c.Request.Context(), filter)
	if err != nil {
		response.Error(c, err)
		return
	}
	response.JSON(c, http.StatusOK, institutions, pagination)
}

// Get godoc
// @Summary Get institution detail
// @Tags Institutions
// @Produce json
// @Param id path string true "Institution ID"
// @Success 200 {object} response.Envelope
// @Router /institutions/{id} [get]
func (h *InstitutionHandler) Get(c *gin.Context) {
	institution, err := h.institutions.Get(c.Request.Context(), c.Param("id"))
	if err != nil {
		response.Error(c, err)
		return
	}
	response.JSON(c, http.StatusOK, institution, nil)
}

// Create godoc
// @Summary Create institution
// @Tags Institutions
// @Accept json
// @Produce json
// @Param payload body service.InstitutionRequest true "Institution payload"
// @Success 201 {object} response.Envelope
// @Failure 403 {object} response.Envelope
// @Router /institutions [post]
func (h *InstitutionHandler) Create(c *gin.Context) {
	claims := claimsFromContext(c)
	if claims == nil {
		response.Error(c, appErrors.ErrUnauthorized)
		return
	}

	var req service.InstitutionRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		response.Error(c, appErrors.Wrap(err, appErrors.ErrValidation.Code, http.StatusBadRequest, "invalid institution payload"))
		return
	}

	institution, err := h.institutions.Create(c.Request.Context(), *claims, req)
	if err != nil {
		response.Error(c, err)
		return
	}
	response.Created(c, institution)
}

// Update godoc
// @Summary Update institution
// @Tags Institutions
// @Accept json
// @Produce json
// @Param id path string true "Institution ID"
// @Param payload body service.InstitutionRequest true "Institution payload"
// @Success 200 {object} response.Envelope
// @Failure 403 {object} response.Envelope
// @Router /institutions/{id} [put]
func (h *InstitutionHandler) Update(c *gin.Context) {
	claims := claimsFromContext(c)
	if claims == nil {
		response.Error(c, appErrors.ErrUnauthorized)
		return
	}

	var req service.InstitutionRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		response.Error(c, appErrors.Wrap(err, appErrors.ErrValidation.Code, http.StatusBadRequest, "invalid institution payload"))
		return
	}

	institution, err := h.institutions.Update(c.Request.Context(), *claims, c.Param("id"), req)
	if err != nil {
		response.Error(c, err)
		return
	}
	response.JSON(c, http.StatusOK, institution, nil)
}

// Delete godoc
// @Summary Delete institution
// @Tags Institutions
// @Produce json
// @Param id path string true "Institution ID"
// @Success 204 {object} response.Envelope
// @Failure 412 {object} response.Envelope
// @Router /institutions/{id} [delete]
func (h *InstitutionHandler) Delete(c *gin.Context) {
	claims := claimsFromContext(c)
	if claims == nil {
		response.Error(c, appErrors.ErrUnauthorized)
		return
	}

	if err := h.institutions.Delete(c.Request.Context(), *claims, c.Param("id")); err != nil {
		response.Error(c, err)
		return
	}
	response.NoContent(c)
}
