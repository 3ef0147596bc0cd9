package handler

import (
	"net/http"
	"strconv"

	"faturacao/internal/middleware"
	"faturacao/internal/model"
	"faturacao/internal/service"
	"faturacao/pkg/pagination"
	"faturacao/pkg/response"

	"github.com/gin-gonic/gin"
)

type SeriesHandler struct {
	seriesService   service.SeriesService
	documentService service.DocumentService
}

func NewSeriesHandler(seriesService service.SeriesService, documentService service.DocumentService) *SeriesHandler {
	return &SeriesHandler{seriesService: seriesService, documentService: documentService}
}

func (h *SeriesHandler) RegisterRoutes(router *gin.RouterGroup) {
	series := router.Group("/api/series")
	{
		series.POST("", middleware.RequireRole(model.RoleAdmin), h.CreateSeries)
		series.GET("", middleware.RequireRole(model.RoleAdmin, model.RoleGestor, model.RoleOperador), h.ListSeries)
		series.GET("/:id", middleware.RequireRole(model.RoleAdmin, model.RoleGestor, model.RoleOperador), h.GetSeries)
		series.PUT("/:id", middleware.RequireRole(model.RoleAdmin), h.UpdateSeries)
		series.POST("/:id/deactivate", middleware.RequireRole(model.RoleAdmin, model.RoleGestor), h.DeactivateSeries)
		series.DELETE("/:id", middleware.RequireRole(model.RoleAdmin), h.DeleteSeries)
		series.GET("/:id/verify", middleware.RequireRole(model.RoleAdmin, model.RoleGestor), h.VerifyChain)
	}
}

// CreateSeries registers a new document series
// @Summary      Create series
// @Description  Registers a new numbering series for a document type and fiscal year
// @Tags         series
// @Security     BearerAuth
// @Accept       json
// @Produce      json
// @Param        payload  body      service.CreateSeriesRequest  true  "Create Series Payload"
// @Success      201      {object}  response.Response{data=service.SeriesResponse}
// @Failure      400      {object}  response.Response
// @Router       /api/series [post]
func (h *SeriesHandler) CreateSeries(c *gin.Context) {
	var req service.CreateSeriesRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, response.Error(http.StatusBadRequest, "Invalid request payload: "+err.Error()))
		return
	}

	userID, _ := c.Get("userID")
	userIDStr, _ := userID.(string)

	series, err := h.seriesService.CreateSeries(c.Request.Context(), userIDStr, req)
	if err != nil {
		status := statusFor(err)
		c.JSON(status, response.Error(status, err.Error()))
		return
	}

	c.JSON(http.StatusCreated, response.Success(http.StatusCreated, series))
}

// ListSeries returns a paginated list of series
// @Summary      List series
// @Description  Retrieves series, optionally filtered by fiscal year
// @Tags         series
// @Security     BearerAuth
// @Produce      json
// @Param        fiscal_year  query     int  false  "Filter by fiscal year"
// @Param        page         query     int  false  "Page number (default 1)"
// @Param        limit        query     int  false  "Number of items per page (default 20)"
// @Success      200          {object}  response.Response{data=[]service.SeriesResponse}
// @Failure      500          {object}  response.Response
// @Router       /api/series [get]
func (h *SeriesHandler) ListSeries(c *gin.Context) {
	params := pagination.Parse(c)
	fiscalYear, _ := strconv.Atoi(c.Query("fiscal_year"))

	series, total, err := h.seriesService.ListSeries(c.Request.Context(), fiscalYear, params.Page, params.Limit)
	if err != nil {
		status := statusFor(err)
		c.JSON(status, response.Error(status, err.Error()))
		return
	}

	c.JSON(http.StatusOK, response.Paginated(http.StatusOK, series, params.Page, params.Limit, total))
}

// GetSeries returns a single series
// @Summary      Get series
// @Description  Retrieves a series by ID, including its current sequence number
// @Tags         series
// @Security     BearerAuth
// @Produce      json
// @Param        id   path      string  true  "Series ID"
// @Success      200  {object}  response.Response{data=service.SeriesResponse}
// @Failure      404  {object}  response.Response
// @Router       /api/series/{id} [get]
func (h *SeriesHandler) GetSeries(c *gin.Context) {
	series, err := h.seriesService.GetSeries(c.Request.Context(), c.Param("id"))
	if err != nil {
		status := statusFor(err)
		c.JSON(status, response.Error(status, err.Error()))
		return
	}

	c.JSON(http.StatusOK, response.Success(http.StatusOK, series))
}

// UpdateSeries updates a series
// @Summary      Update series
// @Description  Updates series fields. Structural fields are immutable once the series is locked
// @Tags         series
// @Security     BearerAuth
// @Accept       json
// @Produce      json
// @Param        id       path      string                       true  "Series ID"
// @Param        payload  body      service.UpdateSeriesRequest  true  "Update Series Payload"
// @Success      200      {object}  response.Response{data=service.SeriesResponse}
// @Failure      404      {object}  response.Response
// @Failure      409      {object}  response.Response
// @Router       /api/series/{id} [put]
func (h *SeriesHandler) UpdateSeries(c *gin.Context) {
	var req service.UpdateSeriesRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, response.Error(http.StatusBadRequest, "Invalid request payload: "+err.Error()))
		return
	}

	series, err := h.seriesService.UpdateSeries(c.Request.Context(), c.Param("id"), req)
	if err != nil {
		status := statusFor(err)
		c.JSON(status, response.Error(status, err.Error()))
		return
	}

	c.JSON(http.StatusOK, response.Success(http.StatusOK, series))
}

// DeactivateSeries closes a series for further issuance
// @Summary      Deactivate series
// @Description  Deactivates a series. Already-issued documents are unaffected
// @Tags         series
// @Security     BearerAuth
// @Produce      json
// @Param        id   path      string  true  "Series ID"
// @Success      200  {object}  response.Response{data=service.SeriesResponse}
// @Failure      404  {object}  response.Response
// @Router       /api/series/{id}/deactivate [post]
func (h *SeriesHandler) DeactivateSeries(c *gin.Context) {
	userID, _ := c.Get("userID")
	userIDStr, _ := userID.(string)

	series, err := h.seriesService.DeactivateSeries(c.Request.Context(), c.Param("id"), userIDStr)
	if err != nil {
		status := statusFor(err)
		c.JSON(status, response.Error(status, err.Error()))
		return
	}

	c.JSON(http.StatusOK, response.Success(http.StatusOK, series))
}

// DeleteSeries removes a series that never issued a document
// @Summary      Delete series
// @Description  Deletes a series. Refused once the series has issued its first document
// @Tags         series
// @Security     BearerAuth
// @Produce      json
// @Param        id   path      string  true  "Series ID"
// @Success      200  {object}  response.Response
// @Failure      404  {object}  response.Response
// @Failure      409  {object}  response.Response
// @Router       /api/series/{id} [delete]
func (h *SeriesHandler) DeleteSeries(c *gin.Context) {
	if err := h.seriesService.DeleteSeries(c.Request.Context(), c.Param("id")); err != nil {
		status := statusFor(err)
		c.JSON(status, response.Error(status, err.Error()))
		return
	}

	c.JSON(http.StatusOK, response.Success(http.StatusOK, gin.H{"deleted": true}))
}

// VerifyChain recomputes and checks the hash chain of a series
// @Summary      Verify series chain
// @Description  Walks every document of the series in order, recomputing hashes and checking the links
// @Tags         series
// @Security     BearerAuth
// @Produce      json
// @Param        id   path      string  true  "Series ID"
// @Success      200  {object}  response.Response{data=service.ChainVerificationResult}
// @Failure      404  {object}  response.Response
// @Router       /api/series/{id}/verify [get]
func (h *SeriesHandler) VerifyChain(c *gin.Context) {
	result, err := h.documentService.VerifyChain(c.Request.Context(), c.Param("id"))
	if err != nil {
		status := statusFor(err)
		c.JSON(status, response.Error(status, err.Error()))
		return
	}

	c.JSON(http.StatusOK, response.Success(http.StatusOK, result))
}
