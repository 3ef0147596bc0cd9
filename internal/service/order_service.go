package service

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"faturacao/internal/model"
	"faturacao/internal/repository"

	"github.com/google/uuid"
	"github.com/rs/zerolog/log"
	"github.com/shopspring/decimal"
	"gorm.io/gorm"
)

// --- DTOs ---

type OrderItemRequest struct {
	Description string `json:"description" binding:"required"`
	Quantity    string `json:"quantity" binding:"required"`
	UnitPrice   string `json:"unit_price" binding:"required"`
	TaxRate     string `json:"tax_rate"` // percentage, defaults to 0
}

type CreateOrderRequest struct {
	OrderCode string             `json:"order_code" binding:"required"`
	ClientID  string             `json:"client_id" binding:"required"`
	Note      string             `json:"note"`
	Items     []OrderItemRequest `json:"items" binding:"required,min=1,dive"`
}

type ConvertOrderRequest struct {
	SeriesID string `json:"series_id" binding:"required"` // an INVOICE series
}

type OrderItemResponse struct {
	Description string `json:"description"`
	Quantity    string `json:"quantity"`
	UnitPrice   string `json:"unit_price"`
	TaxRate     string `json:"tax_rate"`
	NetAmount   string `json:"net_amount"`
	TaxAmount   string `json:"tax_amount"`
}

type OrderResponse struct {
	ID         string              `json:"id"`
	OrderCode  string              `json:"order_code"`
	ClientID   string              `json:"client_id"`
	ClientName string              `json:"client_name"`
	Status     string              `json:"status"`
	Note       string              `json:"note"`
	InvoiceID  *string             `json:"invoice_id"`
	Items      []OrderItemResponse `json:"items"`
	CreatedAt  string              `json:"created_at"`
}

// --- Interface ---

type OrderService interface {
	CreateOrder(ctx context.Context, actorID string, req CreateOrderRequest) (OrderResponse, error)
	GetOrder(ctx context.Context, id string) (OrderResponse, error)
	ListOrders(ctx context.Context, status string, page, limit int) ([]OrderResponse, int64, error)
	// ConvertToInvoice issues an invoice from a pending order through the
	// issuance coordinator.
	ConvertToInvoice(ctx context.Context, orderID, actorID string, req ConvertOrderRequest) (DocumentResponse, error)
}

type orderService struct {
	orderRepo   repository.OrderRepository
	clientRepo  repository.ClientRepository
	auditRepo   repository.AuditRepository
	coordinator IssuanceCoordinator
	txManager   repository.TransactionManager
}

func NewOrderService(
	orderRepo repository.OrderRepository,
	clientRepo repository.ClientRepository,
	auditRepo repository.AuditRepository,
	coordinator IssuanceCoordinator,
	txManager repository.TransactionManager,
) OrderService {
	return &orderService{
		orderRepo:   orderRepo,
		clientRepo:  clientRepo,
		auditRepo:   auditRepo,
		coordinator: coordinator,
		txManager:   txManager,
	}
}

// --- Implementation ---

func (s *orderService) CreateOrder(ctx context.Context, actorID string, req CreateOrderRequest) (OrderResponse, error) {
	clientID, err := uuid.Parse(req.ClientID)
	if err != nil {
		return OrderResponse{}, fmt.Errorf("%w: invalid client id", ErrValidationFailed)
	}
	client, err := s.clientRepo.FindByID(ctx, clientID)
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return OrderResponse{}, ErrClientNotFound
		}
		return OrderResponse{}, fmt.Errorf("failed to load client: %w", err)
	}

	items := make([]model.SalesOrderItem, 0, len(req.Items))
	for i, ir := range req.Items {
		quantity, err := decimal.NewFromString(ir.Quantity)
		if err != nil || !quantity.IsPositive() {
			return OrderResponse{}, fmt.Errorf("%w: item %d has invalid quantity", ErrValidationFailed, i+1)
		}
		unitPrice, err := decimal.NewFromString(ir.UnitPrice)
		if err != nil || unitPrice.IsNegative() {
			return OrderResponse{}, fmt.Errorf("%w: item %d has invalid unit price", ErrValidationFailed, i+1)
		}
		taxRate := decimal.Zero
		if ir.TaxRate != "" {
			taxRate, err = decimal.NewFromString(ir.TaxRate)
			if err != nil || taxRate.IsNegative() {
				return OrderResponse{}, fmt.Errorf("%w: item %d has invalid tax rate", ErrValidationFailed, i+1)
			}
		}

		// Tax is calculated here, before issuance: the coordinator receives
		// finished amounts and the hash covers the resulting gross total.
		net := quantity.Mul(unitPrice).Round(2)
		tax := net.Mul(taxRate).Div(decimal.NewFromInt(100)).Round(2)

		items = append(items, model.SalesOrderItem{
			Description: ir.Description,
			Quantity:    quantity,
			UnitPrice:   unitPrice,
			TaxRate:     taxRate,
			NetAmount:   net,
			TaxAmount:   tax,
		})
	}

	order := model.SalesOrder{
		OrderCode: req.OrderCode,
		ClientID:  client.ID,
		Status:    model.OrderStatusPending,
		Note:      req.Note,
		Items:     items,
	}

	err = s.txManager.RunInTx(ctx, func(txCtx context.Context) error {
		if err := s.orderRepo.Create(txCtx, &order); err != nil {
			return fmt.Errorf("failed to create order: %w", err)
		}
		details, _ := json.Marshal(req)
		return s.auditRepo.Log(txCtx, &model.AuditLog{
			UserID:     parseActor(actorID),
			Action:     model.ActionCreateOrder,
			EntityID:   order.ID.String(),
			EntityName: order.OrderCode,
			Details:    string(details),
		})
	})
	if err != nil {
		return OrderResponse{}, err
	}

	order.Client = client
	return toOrderResponse(order), nil
}

func (s *orderService) GetOrder(ctx context.Context, id string) (OrderResponse, error) {
	order, err := s.load(ctx, id)
	if err != nil {
		return OrderResponse{}, err
	}
	return toOrderResponse(*order), nil
}

func (s *orderService) ListOrders(ctx context.Context, status string, page, limit int) ([]OrderResponse, int64, error) {
	if page <= 0 {
		page = 1
	}
	if limit <= 0 {
		limit = 20
	}

	orders, total, err := s.orderRepo.List(ctx, status, page, limit)
	if err != nil {
		return nil, 0, fmt.Errorf("failed to fetch orders: %w", err)
	}

	result := make([]OrderResponse, 0, len(orders))
	for _, o := range orders {
		result = append(result, toOrderResponse(o))
	}
	return result, total, nil
}

func (s *orderService) ConvertToInvoice(ctx context.Context, orderID, actorID string, req ConvertOrderRequest) (DocumentResponse, error) {
	order, err := s.load(ctx, orderID)
	if err != nil {
		return DocumentResponse{}, err
	}
	if order.Status != model.OrderStatusPending {
		return DocumentResponse{}, fmt.Errorf("%w: order is already %s", ErrValidationFailed, order.Status)
	}

	seriesID, err := uuid.Parse(req.SeriesID)
	if err != nil {
		return DocumentResponse{}, fmt.Errorf("%w: invalid series id", ErrValidationFailed)
	}

	lines := make([]model.DocumentLine, 0, len(order.Items))
	for _, item := range order.Items {
		lines = append(lines, model.DocumentLine{
			Description: item.Description,
			Quantity:    item.Quantity,
			UnitPrice:   item.UnitPrice,
			TaxRate:     item.TaxRate,
			NetAmount:   item.NetAmount,
			TaxAmount:   item.TaxAmount,
		})
	}

	sourceRef := order.ID
	doc, err := s.coordinator.Issue(ctx, IssueCommand{
		SeriesID:      seriesID,
		DocumentType:  model.DocTypeInvoice,
		Client:        order.Client,
		Lines:         lines,
		SourceOrderID: &sourceRef,
		ActorID:       parseActor(actorID),
		AuditAction:   model.ActionConvertOrder,
	})
	if err != nil {
		return DocumentResponse{}, err
	}

	// The invoice is legally final once the coordinator returns. Flipping
	// the order is bookkeeping: a failure here is logged and fixed by hand,
	// never by undoing the issuance.
	if err := s.orderRepo.MarkInvoiced(ctx, order.ID, doc.ID); err != nil {
		log.Error().Err(err).
			Str("order", order.OrderCode).
			Str("invoice", doc.FullNumber).
			Msg("invoice issued but order status update failed")
	}

	return toDocumentResponse(*doc), nil
}

// --- Helpers ---

func (s *orderService) load(ctx context.Context, id string) (*model.SalesOrder, error) {
	orderID, err := uuid.Parse(id)
	if err != nil {
		return nil, ErrOrderNotFound
	}
	order, err := s.orderRepo.FindByIDWithItems(ctx, orderID)
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, ErrOrderNotFound
		}
		return nil, fmt.Errorf("failed to load order: %w", err)
	}
	return order, nil
}

func toOrderResponse(o model.SalesOrder) OrderResponse {
	resp := OrderResponse{
		ID:        o.ID.String(),
		OrderCode: o.OrderCode,
		ClientID:  o.ClientID.String(),
		Status:    o.Status,
		Note:      o.Note,
		CreatedAt: o.CreatedAt.Format(time.RFC3339),
	}
	if o.Client != nil {
		resp.ClientName = o.Client.Name
	}
	if o.InvoiceID != nil {
		s := o.InvoiceID.String()
		resp.InvoiceID = &s
	}
	for _, item := range o.Items {
		resp.Items = append(resp.Items, OrderItemResponse{
			Description: item.Description,
			Quantity:    item.Quantity.String(),
			UnitPrice:   item.UnitPrice.String(),
			TaxRate:     item.TaxRate.StringFixed(2),
			NetAmount:   item.NetAmount.StringFixed(2),
			TaxAmount:   item.TaxAmount.StringFixed(2),
		})
	}
	return resp
}
