package handler

import (
	"net/http"

	"faturacao/internal/middleware"
	"faturacao/internal/model"
	"faturacao/internal/service"
	"faturacao/pkg/pagination"
	"faturacao/pkg/response"

	"github.com/gin-gonic/gin"
)

type DocumentHandler struct {
	documentService service.DocumentService
}

func NewDocumentHandler(documentService service.DocumentService) *DocumentHandler {
	return &DocumentHandler{documentService: documentService}
}

func (h *DocumentHandler) RegisterRoutes(router *gin.RouterGroup) {
	docs := router.Group("/api/documents")
	{
		docs.POST("", middleware.RequireRole(model.RoleAdmin, model.RoleGestor, model.RoleOperador), h.CreateDocument)
		docs.GET("", middleware.RequireRole(model.RoleAdmin, model.RoleGestor, model.RoleOperador), h.ListDocuments)
		docs.GET("/:id", middleware.RequireRole(model.RoleAdmin, model.RoleGestor, model.RoleOperador), h.GetDocument)
		docs.POST("/:id/annul", middleware.RequireRole(model.RoleAdmin, model.RoleGestor), h.AnnulDocument)
		docs.POST("/:id/credit-note", middleware.RequireRole(model.RoleAdmin, model.RoleGestor), h.IssueCreditNote)
		docs.POST("/:id/pay", middleware.RequireRole(model.RoleAdmin, model.RoleGestor, model.RoleOperador), h.MarkPaid)
	}
}

// CreateDocument issues a new fiscal document
// @Summary      Issue document
// @Description  Allocates the next sequence number in the series, chains the hash and issues the document atomically
// @Tags         documents
// @Security     BearerAuth
// @Accept       json
// @Produce      json
// @Param        payload  body      service.CreateDocumentRequest  true  "Issue Document Payload"
// @Success      201      {object}  response.Response{data=service.DocumentResponse}
// @Failure      400      {object}  response.Response
// @Failure      409      {object}  response.Response
// @Router       /api/documents [post]
func (h *DocumentHandler) CreateDocument(c *gin.Context) {
	var req service.CreateDocumentRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, response.Error(http.StatusBadRequest, "Invalid request payload: "+err.Error()))
		return
	}

	userID, _ := c.Get("userID")
	userIDStr, _ := userID.(string)

	doc, err := h.documentService.CreateDocument(c.Request.Context(), userIDStr, req)
	if err != nil {
		status := statusFor(err)
		c.JSON(status, response.Error(status, err.Error()))
		return
	}

	c.JSON(http.StatusCreated, response.Success(http.StatusCreated, doc))
}

// ListDocuments returns a paginated list of documents
// @Summary      List documents
// @Description  Retrieves documents, optionally filtered by series, type and status
// @Tags         documents
// @Security     BearerAuth
// @Produce      json
// @Param        series_id  query     string  false  "Filter by series ID"
// @Param        type       query     string  false  "Filter by document type (INVOICE, CREDIT_NOTE, ...)"
// @Param        status     query     string  false  "Filter by status (ISSUED, ANNULLED)"
// @Param        page       query     int     false  "Page number (default 1)"
// @Param        limit      query     int     false  "Number of items per page (default 20)"
// @Success      200        {object}  response.Response{data=[]service.DocumentResponse}
// @Failure      500        {object}  response.Response
// @Router       /api/documents [get]
func (h *DocumentHandler) ListDocuments(c *gin.Context) {
	params := pagination.Parse(c)

	filter := service.DocumentFilter{
		SeriesID:     c.Query("series_id"),
		DocumentType: c.Query("type"),
		Status:       c.Query("status"),
		Page:         params.Page,
		Limit:        params.Limit,
	}

	docs, total, err := h.documentService.ListDocuments(c.Request.Context(), filter)
	if err != nil {
		status := statusFor(err)
		c.JSON(status, response.Error(status, err.Error()))
		return
	}

	c.JSON(http.StatusOK, response.Paginated(http.StatusOK, docs, params.Page, params.Limit, total))
}

// GetDocument returns a single document with its lines
// @Summary      Get document
// @Description  Retrieves a document by ID, including lines, hash, ATCUD and QR payload
// @Tags         documents
// @Security     BearerAuth
// @Produce      json
// @Param        id   path      string  true  "Document ID"
// @Success      200  {object}  response.Response{data=service.DocumentResponse}
// @Failure      404  {object}  response.Response
// @Router       /api/documents/{id} [get]
func (h *DocumentHandler) GetDocument(c *gin.Context) {
	doc, err := h.documentService.GetDocument(c.Request.Context(), c.Param("id"))
	if err != nil {
		status := statusFor(err)
		c.JSON(status, response.Error(status, err.Error()))
		return
	}

	c.JSON(http.StatusOK, response.Success(http.StatusOK, doc))
}

// AnnulDocument annuls an issued document
// @Summary      Annul document
// @Description  Marks an issued document as annulled. The document keeps its number and chain position
// @Tags         documents
// @Security     BearerAuth
// @Accept       json
// @Produce      json
// @Param        id       path      string                        true  "Document ID"
// @Param        payload  body      service.AnnulDocumentRequest  true  "Annulment Payload"
// @Success      200      {object}  response.Response{data=service.DocumentResponse}
// @Failure      400      {object}  response.Response
// @Failure      404      {object}  response.Response
// @Router       /api/documents/{id}/annul [post]
func (h *DocumentHandler) AnnulDocument(c *gin.Context) {
	var req service.AnnulDocumentRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, response.Error(http.StatusBadRequest, "Invalid request payload: "+err.Error()))
		return
	}

	userID, _ := c.Get("userID")
	userIDStr, _ := userID.(string)

	doc, err := h.documentService.AnnulDocument(c.Request.Context(), c.Param("id"), userIDStr, req)
	if err != nil {
		status := statusFor(err)
		c.JSON(status, response.Error(status, err.Error()))
		return
	}

	c.JSON(http.StatusOK, response.Success(http.StatusOK, doc))
}

// IssueCreditNote issues a credit note against an issued document
// @Summary      Issue credit note
// @Description  Issues a credit note in its own series referencing the corrected document
// @Tags         documents
// @Security     BearerAuth
// @Accept       json
// @Produce      json
// @Param        id       path      string                     true  "Source document ID"
// @Param        payload  body      service.CreditNoteRequest  true  "Credit Note Payload"
// @Success      201      {object}  response.Response{data=service.DocumentResponse}
// @Failure      400      {object}  response.Response
// @Failure      404      {object}  response.Response
// @Router       /api/documents/{id}/credit-note [post]
func (h *DocumentHandler) IssueCreditNote(c *gin.Context) {
	var req service.CreditNoteRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, response.Error(http.StatusBadRequest, "Invalid request payload: "+err.Error()))
		return
	}

	userID, _ := c.Get("userID")
	userIDStr, _ := userID.(string)

	doc, err := h.documentService.IssueCreditNote(c.Request.Context(), c.Param("id"), userIDStr, req)
	if err != nil {
		status := statusFor(err)
		c.JSON(status, response.Error(status, err.Error()))
		return
	}

	c.JSON(http.StatusCreated, response.Success(http.StatusCreated, doc))
}

// MarkPaid records a payment against an issued document
// @Summary      Mark document paid
// @Description  Records the payment timestamp on an issued document
// @Tags         documents
// @Security     BearerAuth
// @Produce      json
// @Param        id   path      string  true  "Document ID"
// @Success      200  {object}  response.Response{data=service.DocumentResponse}
// @Failure      400  {object}  response.Response
// @Failure      404  {object}  response.Response
// @Router       /api/documents/{id}/pay [post]
func (h *DocumentHandler) MarkPaid(c *gin.Context) {
	doc, err := h.documentService.MarkPaid(c.Request.Context(), c.Param("id"))
	if err != nil {
		status := statusFor(err)
		c.JSON(status, response.Error(status, err.Error()))
		return
	}

	c.JSON(http.StatusOK, response.Success(http.StatusOK, doc))
}
