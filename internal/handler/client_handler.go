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

type ClientHandler struct {
	clientService service.ClientService
}

func NewClientHandler(clientService service.ClientService) *ClientHandler {
	return &ClientHandler{clientService: clientService}
}

func (h *ClientHandler) RegisterRoutes(router *gin.RouterGroup) {
	clients := router.Group("/api/clients")
	{
		clients.POST("", middleware.RequireRole(model.RoleAdmin, model.RoleGestor), h.CreateClient)
		clients.GET("", middleware.RequireRole(model.RoleAdmin, model.RoleGestor, model.RoleOperador), h.ListClients)
		clients.GET("/:id", middleware.RequireRole(model.RoleAdmin, model.RoleGestor, model.RoleOperador), h.GetClient)
		clients.PUT("/:id", middleware.RequireRole(model.RoleAdmin, model.RoleGestor), h.UpdateClient)
		clients.POST("/:id/deactivate", middleware.RequireRole(model.RoleAdmin, model.RoleGestor), h.DeactivateClient)
	}
}

// CreateClient registers a client
// @Summary      Create client
// @Description  Registers a client whose identification is snapshotted into issued documents
// @Tags         clients
// @Security     BearerAuth
// @Accept       json
// @Produce      json
// @Param        payload  body      service.CreateClientRequest  true  "Create Client Payload"
// @Success      201      {object}  response.Response{data=service.ClientResponse}
// @Failure      400      {object}  response.Response
// @Router       /api/clients [post]
func (h *ClientHandler) CreateClient(c *gin.Context) {
	var req service.CreateClientRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, response.Error(http.StatusBadRequest, "Invalid request payload: "+err.Error()))
		return
	}

	userID, _ := c.Get("userID")
	userIDStr, _ := userID.(string)

	client, err := h.clientService.CreateClient(c.Request.Context(), userIDStr, req)
	if err != nil {
		status := statusFor(err)
		c.JSON(status, response.Error(status, err.Error()))
		return
	}

	c.JSON(http.StatusCreated, response.Success(http.StatusCreated, client))
}

// ListClients returns a paginated list of clients
// @Summary      List clients
// @Description  Retrieves registered clients
// @Tags         clients
// @Security     BearerAuth
// @Produce      json
// @Param        page   query     int  false  "Page number (default 1)"
// @Param        limit  query     int  false  "Number of items per page (default 20)"
// @Success      200    {object}  response.Response{data=[]service.ClientResponse}
// @Failure      500    {object}  response.Response
// @Router       /api/clients [get]
func (h *ClientHandler) ListClients(c *gin.Context) {
	params := pagination.Parse(c)

	clients, total, err := h.clientService.ListClients(c.Request.Context(), params.Page, params.Limit)
	if err != nil {
		status := statusFor(err)
		c.JSON(status, response.Error(status, err.Error()))
		return
	}

	c.JSON(http.StatusOK, response.Paginated(http.StatusOK, clients, params.Page, params.Limit, total))
}

// GetClient returns a single client
// @Summary      Get client
// @Description  Retrieves a client by ID
// @Tags         clients
// @Security     BearerAuth
// @Produce      json
// @Param        id   path      string  true  "Client ID"
// @Success      200  {object}  response.Response{data=service.ClientResponse}
// @Failure      404  {object}  response.Response
// @Router       /api/clients/{id} [get]
func (h *ClientHandler) GetClient(c *gin.Context) {
	client, err := h.clientService.GetClient(c.Request.Context(), c.Param("id"))
	if err != nil {
		status := statusFor(err)
		c.JSON(status, response.Error(status, err.Error()))
		return
	}

	c.JSON(http.StatusOK, response.Success(http.StatusOK, client))
}

// UpdateClient updates a client
// @Summary      Update client
// @Description  Updates client fields. Issued documents keep their snapshots
// @Tags         clients
// @Security     BearerAuth
// @Accept       json
// @Produce      json
// @Param        id       path      string                       true  "Client ID"
// @Param        payload  body      service.UpdateClientRequest  true  "Update Client Payload"
// @Success      200      {object}  response.Response{data=service.ClientResponse}
// @Failure      404      {object}  response.Response
// @Router       /api/clients/{id} [put]
func (h *ClientHandler) UpdateClient(c *gin.Context) {
	var req service.UpdateClientRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, response.Error(http.StatusBadRequest, "Invalid request payload: "+err.Error()))
		return
	}

	client, err := h.clientService.UpdateClient(c.Request.Context(), c.Param("id"), req)
	if err != nil {
		status := statusFor(err)
		c.JSON(status, response.Error(status, err.Error()))
		return
	}

	c.JSON(http.StatusOK, response.Success(http.StatusOK, client))
}

// DeactivateClient deactivates a client
// @Summary      Deactivate client
// @Description  Deactivates a client so it can no longer be referenced by new documents
// @Tags         clients
// @Security     BearerAuth
// @Produce      json
// @Param        id   path      string  true  "Client ID"
// @Success      200  {object}  response.Response
// @Failure      404  {object}  response.Response
// @Router       /api/clients/{id}/deactivate [post]
func (h *ClientHandler) DeactivateClient(c *gin.Context) {
	if err := h.clientService.DeactivateClient(c.Request.Context(), c.Param("id")); err != nil {
		status := statusFor(err)
		c.JSON(status, response.Error(status, err.Error()))
		return
	}

	c.JSON(http.StatusOK, response.Success(http.StatusOK, gin.H{"deactivated": true}))
}
