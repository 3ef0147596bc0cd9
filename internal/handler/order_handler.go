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

type OrderHandler struct {
	orderService service.OrderService
}

func NewOrderHandler(orderService service.OrderService) *OrderHandler {
	return &OrderHandler{orderService: orderService}
}

func (h *OrderHandler) RegisterRoutes(router *gin.RouterGroup) {
	orders := router.Group("/api/orders")
	{
		orders.POST("", middleware.RequireRole(model.RoleAdmin, model.RoleGestor, model.RoleOperador), h.CreateOrder)
		orders.GET("", middleware.RequireRole(model.RoleAdmin, model.RoleGestor, model.RoleOperador), h.ListOrders)
		orders.GET("/:id", middleware.RequireRole(model.RoleAdmin, model.RoleGestor, model.RoleOperador), h.GetOrder)
		orders.POST("/:id/invoice", middleware.RequireRole(model.RoleAdmin, model.RoleGestor), h.ConvertToInvoice)
	}
}

// CreateOrder creates a sales order
// @Summary      Create order
// @Description  Creates a pending sales order with computed line amounts
// @Tags         orders
// @Security     BearerAuth
// @Accept       json
// @Produce      json
// @Param        payload  body      service.CreateOrderRequest  true  "Create Order Payload"
// @Success      201      {object}  response.Response{data=service.OrderResponse}
// @Failure      400      {object}  response.Response
// @Router       /api/orders [post]
func (h *OrderHandler) CreateOrder(c *gin.Context) {
	var req service.CreateOrderRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, response.Error(http.StatusBadRequest, "Invalid request payload: "+err.Error()))
		return
	}

	userID, _ := c.Get("userID")
	userIDStr, _ := userID.(string)

	order, err := h.orderService.CreateOrder(c.Request.Context(), userIDStr, req)
	if err != nil {
		status := statusFor(err)
		c.JSON(status, response.Error(status, err.Error()))
		return
	}

	c.JSON(http.StatusCreated, response.Success(http.StatusCreated, order))
}

// ListOrders returns a paginated list of orders
// @Summary      List orders
// @Description  Retrieves sales orders, optionally filtered by status
// @Tags         orders
// @Security     BearerAuth
// @Produce      json
// @Param        status  query     string  false  "Filter by status (PENDING, INVOICED, CANCELLED)"
// @Param        page    query     int     false  "Page number (default 1)"
// @Param        limit   query     int     false  "Number of items per page (default 20)"
// @Success      200     {object}  response.Response{data=[]service.OrderResponse}
// @Failure      500     {object}  response.Response
// @Router       /api/orders [get]
func (h *OrderHandler) ListOrders(c *gin.Context) {
	params := pagination.Parse(c)

	orders, total, err := h.orderService.ListOrders(c.Request.Context(), c.Query("status"), params.Page, params.Limit)
	if err != nil {
		status := statusFor(err)
		c.JSON(status, response.Error(status, err.Error()))
		return
	}

	c.JSON(http.StatusOK, response.Paginated(http.StatusOK, orders, params.Page, params.Limit, total))
}

// GetOrder returns a single order with its items
// @Summary      Get order
// @Description  Retrieves a sales order by ID
// @Tags         orders
// @Security     BearerAuth
// @Produce      json
// @Param        id   path      string  true  "Order ID"
// @Success      200  {object}  response.Response{data=service.OrderResponse}
// @Failure      404  {object}  response.Response
// @Router       /api/orders/{id} [get]
func (h *OrderHandler) GetOrder(c *gin.Context) {
	order, err := h.orderService.GetOrder(c.Request.Context(), c.Param("id"))
	if err != nil {
		status := statusFor(err)
		c.JSON(status, response.Error(status, err.Error()))
		return
	}

	c.JSON(http.StatusOK, response.Success(http.StatusOK, order))
}

// ConvertToInvoice issues an invoice from a pending order
// @Summary      Convert order to invoice
// @Description  Issues an invoice from a pending order through the issuance pipeline and marks the order invoiced
// @Tags         orders
// @Security     BearerAuth
// @Accept       json
// @Produce      json
// @Param        id       path      string                       true  "Order ID"
// @Param        payload  body      service.ConvertOrderRequest  true  "Conversion Payload"
// @Success      201      {object}  response.Response{data=service.DocumentResponse}
// @Failure      400      {object}  response.Response
// @Failure      404      {object}  response.Response
// @Router       /api/orders/{id}/invoice [post]
func (h *OrderHandler) ConvertToInvoice(c *gin.Context) {
	var req service.ConvertOrderRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, response.Error(http.StatusBadRequest, "Invalid request payload: "+err.Error()))
		return
	}

	userID, _ := c.Get("userID")
	userIDStr, _ := userID.(string)

	doc, err := h.orderService.ConvertToInvoice(c.Request.Context(), c.Param("id"), userIDStr, req)
	if err != nil {
		status := statusFor(err)
		c.JSON(status, response.Error(status, err.Error()))
		return
	}

	c.JSON(http.StatusCreated, response.Success(http.StatusCreated, doc))
}
